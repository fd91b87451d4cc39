package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bryanchriswhite/CaptureKit/internal/logger"
	"github.com/bryanchriswhite/CaptureKit/internal/target"
)

// Router routes capture requests to the appropriate capturer
type Router struct {
	windows  Backend
	monitors Backend
	mu       sync.RWMutex
}

// NewRouter creates a router. Either backend may be nil when it is not
// available in the current environment.
func NewRouter(windows, monitors Backend) *Router {
	return &Router{windows: windows, monitors: monitors}
}

// Name returns the router name
func (r *Router) Name() string {
	return "router"
}

// Open opens a stream on the capturer responsible for the target kind.
// Any failure is returned as *BackendError.
func (r *Router) Open(ctx context.Context, t target.Resolved, s Settings) (Stream, error) {
	r.mu.RLock()
	backend := r.monitors
	if t.IsWindow() {
		backend = r.windows
	}
	r.mu.RUnlock()

	if backend == nil {
		return nil, &BackendError{
			Op:  "open",
			Err: fmt.Errorf("no capturer available for %s", t.Kind),
		}
	}

	logger.WithComponent("capture-router").Debug().
		Str("backend", backend.Name()).
		Str("target", t.String()).
		Msg("Routing capture stream")

	stream, err := backend.Open(ctx, t, s)
	if err != nil {
		var be *BackendError
		if errors.As(err, &be) {
			return nil, err
		}
		return nil, &BackendError{Backend: backend.Name(), Op: "open", Err: err}
	}
	return stream, nil
}

// SetWindowBackend replaces the window capturer
func (r *Router) SetWindowBackend(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.windows = b
}

// HasWindows returns true if window capture is available
func (r *Router) HasWindows() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.windows != nil
}

// HasMonitors returns true if monitor capture is available
func (r *Router) HasMonitors() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.monitors != nil
}
