// Package display enumerates attached monitors and grabs their contents.
package display

import (
	"fmt"
	"image"
	"sync"

	"github.com/bryanchriswhite/CaptureKit/internal/logger"
	"github.com/kbinani/screenshot"
)

// Monitor describes one attached display
type Monitor struct {
	Index   int             `json:"index"`
	Bounds  image.Rectangle `json:"-"`
	X       int             `json:"x"`
	Y       int             `json:"y"`
	Width   int             `json:"width"`
	Height  int             `json:"height"`
	Primary bool            `json:"primary"`
}

// Manager answers monitor queries against the live desktop
type Manager struct {
	mu     sync.Mutex
	count  func() int
	bounds func(int) image.Rectangle
	grab   func(image.Rectangle) (*image.RGBA, error)
}

// NewManager creates a monitor manager backed by the platform screenshot API
func NewManager() *Manager {
	return &Manager{
		count:  screenshot.NumActiveDisplays,
		bounds: screenshot.GetDisplayBounds,
		grab:   screenshot.CaptureRect,
	}
}

// NumDisplays returns the number of currently attached monitors
func (m *Manager) NumDisplays() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count()
}

// DisplayBounds returns the bounds of a monitor in desktop coordinates.
// An out of range index yields an empty rectangle.
func (m *Manager) DisplayBounds(index int) image.Rectangle {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= m.count() {
		return image.Rectangle{}
	}
	return m.bounds(index)
}

// List returns all attached monitors. Index 0 is the primary monitor.
func (m *Manager) List() []Monitor {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.count()
	monitors := make([]Monitor, 0, n)
	for i := 0; i < n; i++ {
		b := m.bounds(i)
		monitors = append(monitors, Monitor{
			Index:   i,
			Bounds:  b,
			X:       b.Min.X,
			Y:       b.Min.Y,
			Width:   b.Dx(),
			Height:  b.Dy(),
			Primary: i == 0,
		})
	}
	return monitors
}

// Grab captures a rectangle of the desktop
func (m *Manager) Grab(rect image.Rectangle) (*image.RGBA, error) {
	if rect.Empty() {
		return nil, fmt.Errorf("empty capture rectangle %v", rect)
	}

	img, err := m.grab(rect)
	if err != nil {
		logger.WithComponent("display").Debug().
			Err(err).
			Str("rect", rect.String()).
			Msg("Screen grab failed")
		return nil, fmt.Errorf("failed to capture %v: %w", rect, err)
	}
	return img, nil
}
