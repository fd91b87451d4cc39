package display

import (
	"errors"
	"image"
	"testing"
)

func newFakeManager(rects []image.Rectangle, grabErr error) *Manager {
	return &Manager{
		count:  func() int { return len(rects) },
		bounds: func(i int) image.Rectangle { return rects[i] },
		grab: func(r image.Rectangle) (*image.RGBA, error) {
			if grabErr != nil {
				return nil, grabErr
			}
			return image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy())), nil
		},
	}
}

func TestManager_List(t *testing.T) {
	m := newFakeManager([]image.Rectangle{
		image.Rect(0, 0, 1920, 1080),
		image.Rect(1920, 0, 3200, 1024),
	}, nil)

	monitors := m.List()
	if len(monitors) != 2 {
		t.Fatalf("List() returned %d monitors, want 2", len(monitors))
	}
	if !monitors[0].Primary || monitors[1].Primary {
		t.Errorf("only monitor 0 should be primary: %+v", monitors)
	}
	if monitors[1].X != 1920 || monitors[1].Width != 1280 || monitors[1].Height != 1024 {
		t.Errorf("unexpected second monitor: %+v", monitors[1])
	}
}

func TestManager_DisplayBounds(t *testing.T) {
	m := newFakeManager([]image.Rectangle{image.Rect(0, 0, 800, 600)}, nil)

	tests := []struct {
		name  string
		index int
		want  image.Rectangle
	}{
		{"primary", 0, image.Rect(0, 0, 800, 600)},
		{"negative", -1, image.Rectangle{}},
		{"past end", 1, image.Rectangle{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.DisplayBounds(tt.index); got != tt.want {
				t.Errorf("DisplayBounds(%d) = %v, want %v", tt.index, got, tt.want)
			}
		})
	}
}

func TestManager_Grab(t *testing.T) {
	m := newFakeManager(nil, nil)
	img, err := m.Grab(image.Rect(10, 10, 50, 30))
	if err != nil {
		t.Fatalf("Grab() error = %v", err)
	}
	if img.Bounds().Dx() != 40 || img.Bounds().Dy() != 20 {
		t.Errorf("Grab() size = %v", img.Bounds())
	}

	if _, err := m.Grab(image.Rectangle{}); err == nil {
		t.Error("Grab() of empty rect should fail")
	}

	boom := errors.New("boom")
	m = newFakeManager(nil, boom)
	if _, err := m.Grab(image.Rect(0, 0, 1, 1)); !errors.Is(err, boom) {
		t.Errorf("Grab() error = %v, want wrapped %v", err, boom)
	}
}
