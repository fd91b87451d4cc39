package window

import (
	"errors"
	"image"
)

// ErrWindowNotFound is returned when a window id does not refer to an existing window.
var ErrWindowNotFound = errors.New("window not found")

// Info describes a top-level window
type Info struct {
	ID       uint32   `json:"id"`
	Title    string   `json:"title"`
	Class    string   `json:"class"`
	PID      int      `json:"pid"`
	Focused  bool     `json:"focused"`
	Visible  bool     `json:"visible"`
	Geometry Geometry `json:"geometry"`
	Desktop  int      `json:"desktop"` // Virtual desktop number (-1 means all desktops/sticky)
}

// Geometry represents window geometry
type Geometry struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect returns the geometry as an image rectangle in root coordinates.
func (g Geometry) Rect() image.Rectangle {
	return image.Rect(g.X, g.Y, g.X+g.Width, g.Y+g.Height)
}

// Backend defines the interface for window discovery backends
type Backend interface {
	// ListWindows returns top-level application windows in enumeration order
	ListWindows() ([]*Info, error)

	// GetWindowInfo looks up a single window, returning ErrWindowNotFound
	// if the id does not exist
	GetWindowInfo(id uint32) (*Info, error)

	// GetFocusedWindow returns the currently focused window
	GetFocusedWindow() (*Info, error)

	// Close closes the connection to the display server
	Close() error

	// Name returns the backend name (e.g., "x11")
	Name() string
}
