package output

import (
	"github.com/bryanchriswhite/CaptureKit/internal/frame"
)

// Output defines the interface for frame output mechanisms:
// - MJPEG HTTP stream
// - image files on disk
type Output interface {
	// Start initializes the output mechanism
	Start() error

	// Stop cleanly shuts down the output
	Stop() error

	// WriteFrame consumes a frame. The frame's buffer may be reused after
	// WriteFrame returns, so outputs must not retain it.
	WriteFrame(f *frame.Frame) error

	// Name returns a human-readable name for this output type
	Name() string

	// IsRunning returns true if the output is currently active
	IsRunning() bool
}

// Config holds common configuration for all output types
type Config struct {
	FPS         int
	JPEGQuality int
}
