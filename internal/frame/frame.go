// Package frame holds the captured image value handed to frame handlers.
package frame

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"strings"
	"time"

	"github.com/bryanchriswhite/CaptureKit/internal/encoder"
)

// PixelFormat is the byte order of a frame's pixel buffer.
type PixelFormat int

const (
	// RGBA8 is 8-bit R, G, B, A per pixel, the layout of image.RGBA.
	RGBA8 PixelFormat = iota
	// BGRA8 is 8-bit B, G, R, A per pixel, the native layout of most capture APIs.
	BGRA8
)

func (p PixelFormat) String() string {
	if p == BGRA8 {
		return "bgra8"
	}
	return "rgba8"
}

// ParsePixelFormat parses "rgba8" or "bgra8". An empty string means RGBA8.
func ParsePixelFormat(s string) (PixelFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "rgba8", "rgba":
		return RGBA8, nil
	case "bgra8", "bgra":
		return BGRA8, nil
	default:
		return RGBA8, fmt.Errorf("unknown color format %q", s)
	}
}

// Frame is one captured image. The pixel buffer is owned by the producer and
// may be reused once the frame handler returns; use Clone to keep a frame.
type Frame struct {
	width      int
	height     int
	stride     int
	pix        []byte
	format     PixelFormat
	sequence   uint64
	timestamp  time.Duration
	capturedAt time.Time
}

// New wraps a pixel buffer. stride is the number of bytes per row.
func New(width, height, stride int, pix []byte, format PixelFormat, timestamp time.Duration) (*Frame, error) {
	if width < 0 || height < 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	if stride < width*4 {
		return nil, fmt.Errorf("stride %d too small for width %d", stride, width)
	}
	if height > 0 && len(pix) < stride*(height-1)+width*4 {
		return nil, fmt.Errorf("pixel buffer of %d bytes too small for %dx%d", len(pix), width, height)
	}
	return &Frame{
		width:      width,
		height:     height,
		stride:     stride,
		pix:        pix,
		format:     format,
		timestamp:  timestamp,
		capturedAt: time.Now(),
	}, nil
}

// FromRGBA wraps an RGBA image. RGBA8 frames share img's buffer; BGRA8
// frames get a reordered copy and img is left untouched.
func FromRGBA(img *image.RGBA, format PixelFormat, timestamp time.Duration) *Frame {
	width, height := img.Rect.Dx(), img.Rect.Dy()
	pix, stride := img.Pix, img.Stride
	if format == BGRA8 {
		pix, stride = packRows(img.Pix, width, height, img.Stride), width*4
		swapRB(pix, width, height, stride)
	}
	return &Frame{
		width:      width,
		height:     height,
		stride:     stride,
		pix:        pix,
		format:     format,
		timestamp:  timestamp,
		capturedAt: time.Now(),
	}
}

// WithSequence returns a shallow copy carrying the given sequence number.
func (f *Frame) WithSequence(seq uint64) *Frame {
	c := *f
	c.sequence = seq
	return &c
}

func (f *Frame) Width() int  { return f.width }
func (f *Frame) Height() int { return f.height }
func (f *Frame) Stride() int { return f.stride }

// Pix returns the raw pixel buffer. Callers must not modify it.
func (f *Frame) Pix() []byte { return f.pix }

func (f *Frame) Format() PixelFormat { return f.format }

// Sequence is 1 for the first frame a session delivers and increases by one per frame.
func (f *Frame) Sequence() uint64 { return f.sequence }

// Timestamp is the capture time relative to the start of the stream.
func (f *Frame) Timestamp() time.Duration { return f.timestamp }

func (f *Frame) CapturedAt() time.Time { return f.capturedAt }

// Bounds returns the frame rectangle anchored at the origin.
func (f *Frame) Bounds() image.Rectangle { return image.Rect(0, 0, f.width, f.height) }

// Clone deep-copies the frame so it can outlive the handler invocation.
func (f *Frame) Clone() *Frame {
	c := *f
	c.stride = f.width * 4
	c.pix = packRows(f.pix, f.width, f.height, f.stride)
	return &c
}

// Image returns the frame as an RGBA image. RGBA8 frames share the buffer;
// BGRA8 frames are converted into a new buffer.
func (f *Frame) Image() *image.RGBA {
	if f.format == RGBA8 {
		return &image.RGBA{Pix: f.pix, Stride: f.stride, Rect: f.Bounds()}
	}
	c := f.Clone()
	swapRB(c.pix, c.width, c.height, c.stride)
	return &image.RGBA{Pix: c.pix, Stride: c.stride, Rect: c.Bounds()}
}

// Crop returns a copy of the part of the frame inside r.
func (f *Frame) Crop(r image.Rectangle) (*Frame, error) {
	r = r.Intersect(f.Bounds())
	if r.Empty() {
		return nil, errors.New("crop rectangle does not intersect frame")
	}
	c := *f
	c.width, c.height = r.Dx(), r.Dy()
	c.stride = c.width * 4
	c.pix = make([]byte, c.stride*c.height)
	for y := 0; y < c.height; y++ {
		src := (r.Min.Y+y)*f.stride + r.Min.X*4
		copy(c.pix[y*c.stride:(y+1)*c.stride], f.pix[src:src+c.stride])
	}
	return &c, nil
}

// Encode writes the frame to w in the given format.
func (f *Frame) Encode(w io.Writer, format encoder.Format) error {
	return encoder.Default.Encode(w, f.Image(), format)
}

// SaveAsImage encodes the frame in the format implied by the path extension
// and writes it to path. It returns *encoder.UnsupportedFormatError for an
// unknown extension and *IOError when the file cannot be written.
func (f *Frame) SaveAsImage(path string) error {
	format, err := encoder.FormatFromPath(path)
	if err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return &IOError{Path: path, Err: err}
	}

	w := bufio.NewWriter(file)
	err = f.Encode(w, format)
	if err == nil {
		err = w.Flush()
	}
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return &IOError{Path: path, Err: err}
	}
	return nil
}

// IOError reports a failed frame export.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("failed to save frame to %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// packRows copies the visible rows of pix into a buffer without row padding.
func packRows(pix []byte, width, height, stride int) []byte {
	row := width * 4
	out := make([]byte, row*height)
	for y := 0; y < height; y++ {
		copy(out[y*row:(y+1)*row], pix[y*stride:y*stride+row])
	}
	return out
}

func swapRB(pix []byte, width, height, stride int) {
	for y := 0; y < height; y++ {
		row := pix[y*stride : y*stride+width*4]
		for i := 0; i+3 < len(row); i += 4 {
			row[i], row[i+2] = row[i+2], row[i]
		}
	}
}
