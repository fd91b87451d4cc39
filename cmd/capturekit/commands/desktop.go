package commands

import (
	"github.com/bryanchriswhite/CaptureKit/internal/capture"
	"github.com/bryanchriswhite/CaptureKit/internal/display"
	"github.com/bryanchriswhite/CaptureKit/internal/logger"
	"github.com/bryanchriswhite/CaptureKit/internal/target"
	"github.com/bryanchriswhite/CaptureKit/internal/window"
)

// desktop bundles the live collaborators a session needs
type desktop struct {
	windows  *window.X11Backend
	monitors *display.Manager
	router   *capture.Router
	resolver *target.Resolver
}

// openDesktop connects to the display server. Monitor capture works without
// X11, so a failed connection only disables window targets.
func openDesktop() *desktop {
	d := &desktop{monitors: display.NewManager()}
	d.router = capture.NewRouter(nil, capture.NewMonitorCapturer(d.monitors))

	x11, err := window.NewX11Backend()
	if err != nil {
		logger.WithComponent("x11-backend").Warn().Err(err).Msg("X11 unavailable, window targets disabled")
		d.resolver = target.NewResolver(nil, d.monitors)
		return d
	}

	d.windows = x11
	d.router.SetWindowBackend(capture.NewX11Capturer(x11.Conn()))
	d.resolver = target.NewResolver(x11, d.monitors)
	return d
}

func (d *desktop) Close() {
	if d.windows != nil {
		d.windows.Close()
	}
}
