package capture

import (
	"context"
	"fmt"
	"image"
	"io"
	"sync"
	"time"

	"github.com/bryanchriswhite/CaptureKit/internal/frame"
	"github.com/bryanchriswhite/CaptureKit/internal/logger"
	"github.com/bryanchriswhite/CaptureKit/internal/target"
)

// ScreenGrabber is the monitor side of the platform screenshot API
type ScreenGrabber interface {
	NumDisplays() int
	DisplayBounds(index int) image.Rectangle
	Grab(rect image.Rectangle) (*image.RGBA, error)
}

// MonitorCapturer captures whole monitors
type MonitorCapturer struct {
	screens ScreenGrabber
}

// NewMonitorCapturer creates a monitor capturer
func NewMonitorCapturer(screens ScreenGrabber) *MonitorCapturer {
	return &MonitorCapturer{screens: screens}
}

// Name returns the capturer name
func (c *MonitorCapturer) Name() string {
	return "monitor"
}

// Open starts a capture stream for a resolved monitor
func (c *MonitorCapturer) Open(ctx context.Context, t target.Resolved, s Settings) (Stream, error) {
	if t.IsWindow() {
		return nil, fmt.Errorf("monitor capturer cannot capture %s", t)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.Monitor >= c.screens.NumDisplays() {
		return nil, fmt.Errorf("monitor %d: %w", t.Monitor, ErrTargetLost)
	}

	log := logger.WithComponent("monitor-capturer")
	if s.CursorCapture != nil && *s.CursorCapture {
		log.Debug().Msg("Cursor capture is not supported for monitor streams, ignoring cursor_capture")
	}
	log.Info().
		Int("monitor", t.Monitor).
		Str("bounds", t.Bounds.String()).
		Dur("interval", s.Interval()).
		Msg("Opened monitor capture stream")

	return &monitorStream{
		screens: c.screens,
		index:   t.Monitor,
		format:  s.ColorFormat,
		pacer:   newPacer(s.Interval()),
		started: time.Now(),
	}, nil
}

type monitorStream struct {
	screens ScreenGrabber
	index   int
	format  frame.PixelFormat
	pacer   *pacer
	started time.Time

	mu     sync.Mutex
	closed bool
}

func (s *monitorStream) Next(ctx context.Context) (*frame.Frame, error) {
	if err := s.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, io.EOF
	}

	// Bounds are re-read so that resolution changes are picked up
	if s.index >= s.screens.NumDisplays() {
		return nil, fmt.Errorf("monitor %d disconnected: %w", s.index, ErrTargetLost)
	}
	bounds := s.screens.DisplayBounds(s.index)

	img, err := s.screens.Grab(bounds)
	if err != nil {
		return nil, err
	}
	return frame.FromRGBA(img, s.format, time.Since(s.started)), nil
}

func (s *monitorStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
