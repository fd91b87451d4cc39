package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/composite"
	"github.com/BurntSushi/xgb/xfixes"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/CaptureKit/internal/frame"
	"github.com/bryanchriswhite/CaptureKit/internal/logger"
	"github.com/bryanchriswhite/CaptureKit/internal/target"
	"github.com/bryanchriswhite/CaptureKit/internal/window"
)

// X11Capturer captures windows using X11/XWayland
type X11Capturer struct {
	conn             *xgb.Conn
	root             xproto.Window
	screen           *xproto.ScreenInfo
	compositeEnabled bool
	xfixesEnabled    bool
	mu               sync.Mutex
}

// NewX11Capturer creates a window capturer on an existing X connection.
// The connection is owned by the caller.
func NewX11Capturer(conn *xgb.Conn) *X11Capturer {
	log := logger.WithComponent("x11-capturer")

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	c := &X11Capturer{
		conn:   conn,
		root:   screen.Root,
		screen: screen,
	}

	// Composite lets us read obscured windows from their backing pixmap
	if err := composite.Init(conn); err != nil {
		log.Warn().
			Err(err).
			Msg("Composite extension not available - captures of obscured windows may be incomplete")
	} else {
		c.compositeEnabled = true
	}

	// XFixes provides the cursor image for cursor capture
	if err := xfixes.Init(conn); err == nil {
		if _, err := xfixes.QueryVersion(conn, 4, 0).Reply(); err == nil {
			c.xfixesEnabled = true
		}
	}

	log.Debug().
		Bool("composite", c.compositeEnabled).
		Bool("xfixes", c.xfixesEnabled).
		Msg("X11 capturer initialized")
	return c
}

// Name returns the capturer name
func (c *X11Capturer) Name() string {
	return "x11"
}

// Open starts a capture stream for a resolved window
func (c *X11Capturer) Open(ctx context.Context, t target.Resolved, s Settings) (Stream, error) {
	if !t.IsWindow() {
		return nil, fmt.Errorf("x11 capturer only captures windows, got %s", t)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log := logger.WithComponent("x11-capturer")
	win := xproto.Window(t.Window.ID)

	if _, err := xproto.GetWindowAttributes(c.conn, win).Reply(); err != nil {
		if window.IsBadWindow(err) {
			return nil, fmt.Errorf("window 0x%x: %w", t.Window.ID, ErrTargetLost)
		}
		return nil, fmt.Errorf("failed to get window attributes: %w", err)
	}

	st := &x11Stream{
		capturer: c,
		win:      win,
		settings: s,
		pacer:    newPacer(s.Interval()),
		started:  time.Now(),
	}

	if c.compositeEnabled {
		if err := composite.RedirectWindowChecked(c.conn, win, composite.RedirectAutomatic).Check(); err != nil {
			log.Warn().
				Err(err).
				Uint32("window_id", t.Window.ID).
				Msg("Failed to redirect window via Composite, falling back to direct capture")
		} else {
			st.redirected = true
		}
	}

	if s.DrawBorder != nil && *s.DrawBorder {
		log.Debug().Msg("Capture border is not supported on X11, ignoring draw_border")
	}
	if s.CursorCapture != nil && *s.CursorCapture && !c.xfixesEnabled {
		log.Debug().Msg("XFixes not available, cursor will not be captured")
	}

	log.Info().
		Uint32("window_id", t.Window.ID).
		Str("title", t.Window.Title).
		Str("cursor", boolSetting(s.CursorCapture)).
		Dur("interval", s.Interval()).
		Msg("Opened window capture stream")
	return st, nil
}

// x11Stream delivers frames of one window. Frames share one reused buffer.
type x11Stream struct {
	capturer   *X11Capturer
	win        xproto.Window
	settings   Settings
	pacer      *pacer
	started    time.Time
	redirected bool
	buf        []byte

	closeOnce sync.Once
}

// Next waits for the pacing interval and grabs the window contents
func (s *x11Stream) Next(ctx context.Context) (*frame.Frame, error) {
	c := s.capturer
	for {
		if err := s.pacer.Wait(ctx); err != nil {
			return nil, err
		}

		attrs, err := xproto.GetWindowAttributes(c.conn, s.win).Reply()
		if err != nil {
			if window.IsBadWindow(err) {
				return nil, fmt.Errorf("window 0x%x: %w", uint32(s.win), ErrTargetLost)
			}
			return nil, fmt.Errorf("failed to get window attributes: %w", err)
		}

		// Minimized or on another desktop: wait until it is viewable again
		if attrs.MapState != xproto.MapStateViewable {
			continue
		}

		win := s.win
		if attrs.Class != xproto.WindowClassInputOutput {
			child, err := c.findCapturableChild(win)
			if err != nil {
				return nil, fmt.Errorf("no capturable window found: %w", err)
			}
			win = child
		}

		f, err := s.grab(win)
		if err != nil {
			if window.IsBadWindow(err) {
				return nil, fmt.Errorf("window 0x%x: %w", uint32(s.win), ErrTargetLost)
			}
			return nil, err
		}
		return f, nil
	}
}

func (s *x11Stream) grab(win xproto.Window) (*frame.Frame, error) {
	c := s.capturer
	c.mu.Lock()
	defer c.mu.Unlock()

	geom, err := xproto.GetGeometry(c.conn, xproto.Drawable(win)).Reply()
	if err != nil {
		return nil, err
	}

	drawable := xproto.Drawable(win)
	if s.redirected {
		// The backing pixmap changes on resize, so it is named per frame
		if pixmap, err := xproto.NewPixmapId(c.conn); err == nil {
			if err := composite.NameWindowPixmapChecked(c.conn, win, pixmap).Check(); err == nil {
				drawable = xproto.Drawable(pixmap)
				defer xproto.FreePixmap(c.conn, pixmap)
			}
		}
	}

	reply, err := xproto.GetImage(
		c.conn,
		xproto.ImageFormatZPixmap,
		drawable,
		0, 0,
		geom.Width, geom.Height,
		0xffffffff,
	).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}

	width, height := int(geom.Width), int(geom.Height)
	s.convertImageData(reply.Data, width, height)

	if s.settings.CursorCapture != nil && *s.settings.CursorCapture && c.xfixesEnabled {
		if pos, err := xproto.TranslateCoordinates(c.conn, win, c.root, 0, 0).Reply(); err == nil {
			c.overlayCursor(s.buf, width, height, int(pos.DstX), int(pos.DstY), s.settings.ColorFormat)
		}
	}

	return frame.New(width, height, width*4, s.buf, s.settings.ColorFormat, time.Since(s.started))
}

// convertImageData copies X11 BGRX data into the stream buffer in the
// requested pixel order with an opaque alpha channel
func (s *x11Stream) convertImageData(data []byte, width, height int) {
	n := width * height * 4
	if cap(s.buf) < n {
		s.buf = make([]byte, n)
	}
	s.buf = s.buf[:n]

	depth := int(s.capturer.screen.RootDepth)
	if depth != 24 && depth != 32 {
		clear(s.buf)
		return
	}

	bgra := s.settings.ColorFormat == frame.BGRA8
	for i := 0; i+3 < n && i+3 < len(data); i += 4 {
		if bgra {
			s.buf[i], s.buf[i+1], s.buf[i+2] = data[i], data[i+1], data[i+2]
		} else {
			s.buf[i], s.buf[i+1], s.buf[i+2] = data[i+2], data[i+1], data[i]
		}
		s.buf[i+3] = 255
	}
}

// Close unredirects the window. The X connection stays open.
func (s *x11Stream) Close() error {
	s.closeOnce.Do(func() {
		if s.redirected {
			composite.UnredirectWindow(s.capturer.conn, s.win, composite.RedirectAutomatic)
		}
		s.buf = nil
		logger.WithComponent("x11-capturer").Debug().
			Uint32("window_id", uint32(s.win)).
			Msg("Closed window capture stream")
	})
	return nil
}

// findCapturableChild recursively searches for a capturable child window
func (c *X11Capturer) findCapturableChild(parent xproto.Window) (xproto.Window, error) {
	tree, err := xproto.QueryTree(c.conn, parent).Reply()
	if err != nil {
		return 0, fmt.Errorf("failed to query tree: %w", err)
	}

	for _, child := range tree.Children {
		attrs, err := xproto.GetWindowAttributes(c.conn, child).Reply()
		if err != nil {
			continue
		}

		geom, err := xproto.GetGeometry(c.conn, xproto.Drawable(child)).Reply()
		if err != nil {
			continue
		}

		if attrs.Class == xproto.WindowClassInputOutput && attrs.MapState == xproto.MapStateViewable {
			if geom.Width > 10 && geom.Height > 10 {
				return child, nil
			}
		}

		if grandchild, err := c.findCapturableChild(child); err == nil {
			return grandchild, nil
		}
	}

	return 0, fmt.Errorf("no capturable child found")
}
