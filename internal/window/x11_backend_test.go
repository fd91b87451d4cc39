package window

import (
	"errors"
	"image"
	"testing"

	"github.com/BurntSushi/xgb/xproto"
)

func TestGeometryRect(t *testing.T) {
	g := Geometry{X: 10, Y: 20, Width: 300, Height: 200}
	want := image.Rect(10, 20, 310, 220)
	if got := g.Rect(); got != want {
		t.Fatalf("Rect() = %v, want %v", got, want)
	}
}

func TestIsBadWindow(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"window error", xproto.WindowError{}, true},
		{"drawable error", xproto.DrawableError{}, true},
		{"match error", xproto.MatchError{}, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsBadWindow(tt.err); got != tt.want {
				t.Errorf("IsBadWindow(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestLE32(t *testing.T) {
	if got := le32([]byte{0x78, 0x56, 0x34, 0x12}); got != 0x12345678 {
		t.Fatalf("le32 = 0x%x", got)
	}
}
