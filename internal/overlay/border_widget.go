package overlay

import (
	"image"
	"image/color"

	"github.com/bryanchriswhite/CaptureKit/internal/frame"
)

// BorderWidget outlines the whole frame
type BorderWidget struct {
	*BaseWidget
	width int
	color color.RGBA
}

// NewBorderWidget creates a border of the given thickness in pixels
func NewBorderWidget(id string, width int, c color.RGBA) *BorderWidget {
	if width < 1 {
		width = 1
	}
	return &BorderWidget{BaseWidget: NewBaseWidget(id, 0, 0, 1.0), width: width, color: c}
}

// Type returns the widget type
func (w *BorderWidget) Type() string {
	return "border"
}

// Render draws the four edges
func (w *BorderWidget) Render(img *image.RGBA, _ *frame.Frame) error {
	b := img.Bounds()
	t := min(w.width, b.Dx()/2, b.Dy()/2)
	if t <= 0 {
		return nil
	}
	edges := []image.Rectangle{
		image.Rect(b.Min.X, b.Min.Y, b.Max.X, b.Min.Y+t),
		image.Rect(b.Min.X, b.Max.Y-t, b.Max.X, b.Max.Y),
		image.Rect(b.Min.X, b.Min.Y+t, b.Min.X+t, b.Max.Y-t),
		image.Rect(b.Max.X-t, b.Min.Y+t, b.Max.X, b.Max.Y-t),
	}
	for _, r := range edges {
		FillRect(img, r, w.color, w.opacity)
	}
	return nil
}
