// Package encoder converts captured pixel buffers into image file formats.
package encoder

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Format is an output image format.
type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
	BMP  Format = "bmp"
	TIFF Format = "tiff"
)

// DefaultJPEGQuality is used when no quality is configured.
const DefaultJPEGQuality = 90

var extensions = map[string]Format{
	".png":  PNG,
	".jpg":  JPEG,
	".jpeg": JPEG,
	".bmp":  BMP,
	".tif":  TIFF,
	".tiff": TIFF,
}

// UnsupportedFormatError is returned for an unknown file extension or format name.
type UnsupportedFormatError struct {
	Ext string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Ext == "" {
		return "unsupported image format: missing file extension"
	}
	return fmt.Sprintf("unsupported image format %q", e.Ext)
}

// FormatFromPath infers the format from a file extension, case-insensitively.
func FormatFromPath(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if f, ok := extensions[ext]; ok {
		return f, nil
	}
	return "", &UnsupportedFormatError{Ext: ext}
}

// ParseFormat accepts a format name such as "png" or "jpg".
func ParseFormat(name string) (Format, error) {
	return FormatFromPath("x." + strings.TrimPrefix(name, "."))
}

// Ext returns the canonical file extension including the dot.
func (f Format) Ext() string {
	switch f {
	case JPEG:
		return ".jpg"
	case TIFF:
		return ".tiff"
	default:
		return "." + string(f)
	}
}

// Options tune lossy formats.
type Options struct {
	JPEGQuality int
}

// Encoder writes images in a given format.
type Encoder interface {
	Encode(w io.Writer, img image.Image, f Format) error
}

// Standard encodes with the stdlib and golang.org/x/image codecs.
type Standard struct {
	Options Options
}

// Default is the encoder used by frame export.
var Default Encoder = Standard{}

// Encode writes img to w.
func (s Standard) Encode(w io.Writer, img image.Image, f Format) error {
	var err error
	switch f {
	case PNG:
		err = png.Encode(w, img)
	case JPEG:
		q := s.Options.JPEGQuality
		if q <= 0 || q > 100 {
			q = DefaultJPEGQuality
		}
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: q})
	case BMP:
		err = bmp.Encode(w, img)
	case TIFF:
		err = tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return &UnsupportedFormatError{Ext: string(f)}
	}
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", f, err)
	}
	return nil
}

// Encode encodes img with the Default encoder and returns the bytes.
func Encode(img image.Image, f Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := Default.Encode(&buf, img, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
