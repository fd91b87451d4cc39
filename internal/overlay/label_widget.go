package overlay

import (
	"fmt"
	"image"
	"image/color"

	"github.com/bryanchriswhite/CaptureKit/internal/frame"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// TextFunc produces the label text for a frame
type TextFunc func(f *frame.Frame) string

// LabelWidget draws a line of text with an optional background box
type LabelWidget struct {
	*BaseWidget
	text      TextFunc
	textColor color.RGBA
	bgColor   *color.RGBA // nil for no background
	padding   int
}

// NewLabelWidget creates a label at (x, y)
func NewLabelWidget(id string, x, y int, text TextFunc) *LabelWidget {
	return &LabelWidget{
		BaseWidget: NewBaseWidget(id, x, y, 1.0),
		text:       text,
		textColor:  color.RGBA{255, 255, 255, 255},
		bgColor:    &color.RGBA{0, 0, 0, 160},
		padding:    4,
	}
}

// StaticText returns a TextFunc that ignores the frame
func StaticText(s string) TextFunc {
	return func(*frame.Frame) string { return s }
}

// CaptionText labels frames with the target, sequence number and capture time
func CaptionText(target string) TextFunc {
	return func(f *frame.Frame) string {
		return fmt.Sprintf("%s  #%d  %s", target, f.Sequence(), f.CapturedAt().Format("15:04:05.000"))
	}
}

// Type returns the widget type
func (w *LabelWidget) Type() string {
	return "label"
}

// SetColor sets the text color
func (w *LabelWidget) SetColor(c color.RGBA) {
	w.textColor = c
}

// SetBackground sets the background color (nil for transparent)
func (w *LabelWidget) SetBackground(c *color.RGBA) {
	w.bgColor = c
}

// Render draws the label
func (w *LabelWidget) Render(img *image.RGBA, f *frame.Frame) error {
	if w.text == nil {
		return fmt.Errorf("label %s has no text source", w.id)
	}
	text := w.text(f)
	if text == "" {
		return nil
	}

	face := basicfont.Face7x13
	metrics := face.Metrics()
	ascent := metrics.Ascent.Ceil()
	lineHeight := metrics.Height.Ceil()

	textWidth := font.MeasureString(face, text).Ceil()
	box := image.Rect(w.x, w.y, w.x+textWidth+w.padding*2, w.y+lineHeight+w.padding*2)

	if w.bgColor != nil {
		FillRect(img, box, *w.bgColor, w.opacity)
	}

	// Text is rendered into its own buffer so opacity applies to it as a whole
	textImg := image.NewRGBA(image.Rect(0, 0, textWidth, lineHeight))
	d := &font.Drawer{
		Dst:  textImg,
		Src:  image.NewUniform(w.textColor),
		Face: face,
		Dot:  fixed.P(0, ascent),
	}
	d.DrawString(text)

	BlendImage(img, textImg, w.x+w.padding, w.y+w.padding, w.opacity)
	return nil
}
