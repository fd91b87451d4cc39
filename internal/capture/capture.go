// Package capture opens OS capture streams for resolved targets.
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bryanchriswhite/CaptureKit/internal/frame"
	"github.com/bryanchriswhite/CaptureKit/internal/target"
)

// DefaultFPS paces streams that have neither a minimum update interval nor an FPS.
const DefaultFPS = 30

// ErrTargetLost is returned by Stream.Next when the captured window was
// closed or the monitor was disconnected.
var ErrTargetLost = errors.New("capture target is no longer available")

// Settings are the per-session capture options. Tri-state options use nil
// for "backend default"; backends ignore options they cannot honor.
type Settings struct {
	CursorCapture     *bool
	DrawBorder        *bool
	SecondaryWindow   *bool
	DirtyRegion       *bool
	MinUpdateInterval time.Duration
	FPS               int
	ColorFormat       frame.PixelFormat
}

// Interval returns the minimum time between two frames.
func (s Settings) Interval() time.Duration {
	if s.MinUpdateInterval > 0 {
		return s.MinUpdateInterval
	}
	fps := s.FPS
	if fps <= 0 {
		fps = DefaultFPS
	}
	return time.Second / time.Duration(fps)
}

// Backend opens capture streams
type Backend interface {
	// Open starts capturing the target. The returned stream must be closed.
	Open(ctx context.Context, t target.Resolved, s Settings) (Stream, error)

	// Name returns a human-readable name for this backend
	Name() string
}

// Stream produces frames for one target
type Stream interface {
	// Next blocks until the next frame is available. It returns io.EOF when
	// the stream ended normally, an error wrapping ErrTargetLost when the
	// target disappeared, or ctx.Err() when ctx is done. The returned frame's
	// buffer is only valid until the next call to Next or Close.
	Next(ctx context.Context) (*frame.Frame, error)

	// Close releases the OS resources. It is safe to call more than once.
	Close() error
}

// BackendError reports a failure of the capture backend.
type BackendError struct {
	Backend string
	Op      string
	Err     error
}

func (e *BackendError) Error() string {
	if e.Backend == "" {
		return fmt.Sprintf("capture %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s capture %s failed: %v", e.Backend, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

func boolSetting(p *bool) string {
	if p == nil {
		return "default"
	}
	if *p {
		return "on"
	}
	return "off"
}
