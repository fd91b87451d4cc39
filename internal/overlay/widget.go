// Package overlay draws annotations on top of captured frames before they
// are served.
package overlay

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/bryanchriswhite/CaptureKit/internal/frame"
)

// Widget represents a renderable overlay widget
type Widget interface {
	// ID returns the unique identifier for this widget instance
	ID() string

	// Type returns the widget type name
	Type() string

	// Render draws the widget onto img, which holds the pixels of f
	Render(img *image.RGBA, f *frame.Frame) error

	// IsEnabled returns whether the widget should be rendered
	IsEnabled() bool

	// SetEnabled sets whether the widget should be rendered
	SetEnabled(enabled bool)
}

// BaseWidget provides common functionality for all widgets
type BaseWidget struct {
	id      string
	enabled bool
	x       int
	y       int
	opacity float64 // 0.0 to 1.0
}

// NewBaseWidget creates a new base widget
func NewBaseWidget(id string, x, y int, opacity float64) *BaseWidget {
	w := &BaseWidget{id: id, enabled: true, x: x, y: y}
	w.SetOpacity(opacity)
	return w
}

// ID returns the widget's unique identifier
func (w *BaseWidget) ID() string {
	return w.id
}

// IsEnabled returns whether the widget should be rendered
func (w *BaseWidget) IsEnabled() bool {
	return w.enabled
}

// SetEnabled sets whether the widget should be rendered
func (w *BaseWidget) SetEnabled(enabled bool) {
	w.enabled = enabled
}

// Position returns the widget's top-left corner
func (w *BaseWidget) Position() (int, int) {
	return w.x, w.y
}

// SetPosition sets the widget's position
func (w *BaseWidget) SetPosition(x, y int) {
	w.x = x
	w.y = y
}

// Opacity returns the widget's opacity
func (w *BaseWidget) Opacity() float64 {
	return w.opacity
}

// SetOpacity sets the widget's opacity, clamped to 0.0..1.0
func (w *BaseWidget) SetOpacity(opacity float64) {
	w.opacity = min(max(opacity, 0), 1)
}

// opacityMask turns an opacity into a uniform alpha mask for draw.DrawMask
func opacityMask(opacity float64) image.Image {
	return image.NewUniform(color.Alpha{A: uint8(min(max(opacity, 0), 1) * 255)})
}

// BlendImage draws src over dst with its top-left corner at (x, y),
// scaled by opacity. Parts outside dst are clipped.
func BlendImage(dst *image.RGBA, src image.Image, x, y int, opacity float64) {
	sb := src.Bounds()
	r := image.Rect(x, y, x+sb.Dx(), y+sb.Dy())
	draw.DrawMask(dst, r, src, sb.Min, opacityMask(opacity), image.Point{}, draw.Over)
}

// FillRect blends a solid rectangle onto dst
func FillRect(dst *image.RGBA, r image.Rectangle, c color.Color, opacity float64) {
	draw.DrawMask(dst, r, image.NewUniform(c), image.Point{}, opacityMask(opacity), image.Point{}, draw.Over)
}
