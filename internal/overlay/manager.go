package overlay

import (
	"fmt"
	"sync"

	"github.com/bryanchriswhite/CaptureKit/internal/frame"
	"github.com/bryanchriswhite/CaptureKit/internal/logger"
)

// Manager holds the overlay widgets and applies them to frames
type Manager struct {
	widgets []Widget
	mu      sync.RWMutex
	enabled bool
}

// NewManager creates a new overlay manager
func NewManager() *Manager {
	return &Manager{enabled: true}
}

// AddWidget adds a widget on top of the existing ones
func (m *Manager) AddWidget(widget Widget) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range m.widgets {
		if w.ID() == widget.ID() {
			return fmt.Errorf("widget with ID %s already exists", widget.ID())
		}
	}

	m.widgets = append(m.widgets, widget)
	logger.WithComponent("overlay").Debug().
		Str("id", widget.ID()).
		Str("type", widget.Type()).
		Msg("Added widget")
	return nil
}

// RemoveWidget removes a widget from the overlay
func (m *Manager) RemoveWidget(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, w := range m.widgets {
		if w.ID() == id {
			m.widgets = append(m.widgets[:i], m.widgets[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("widget with ID %s not found", id)
}

// Widgets returns the widgets in drawing order
func (m *Manager) Widgets() []Widget {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Widget(nil), m.widgets...)
}

// SetEnabled enables or disables the entire overlay
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
}

// IsEnabled returns whether the overlay is enabled
func (m *Manager) IsEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Apply returns an annotated RGBA8 copy of f. The input frame is never
// modified; when the overlay is disabled or empty f itself is returned.
func (m *Manager) Apply(f *frame.Frame) *frame.Frame {
	m.mu.RLock()
	enabled := m.enabled
	widgets := append([]Widget(nil), m.widgets...)
	m.mu.RUnlock()

	if !enabled || len(widgets) == 0 {
		return f
	}

	src := f
	if f.Format() == frame.RGBA8 {
		src = f.Clone()
	}
	img := src.Image()

	for _, widget := range widgets {
		if !widget.IsEnabled() {
			continue
		}
		if err := widget.Render(img, f); err != nil {
			logger.WithComponent("overlay").Warn().Err(err).Str("id", widget.ID()).Msg("Failed to render widget")
		}
	}

	return frame.FromRGBA(img, frame.RGBA8, f.Timestamp()).WithSequence(f.Sequence())
}
