package target

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/bryanchriswhite/CaptureKit/internal/logger"
	"github.com/bryanchriswhite/CaptureKit/internal/window"
)

// WindowLister is the window enumeration collaborator. ListWindows must
// return top-level windows in the display server's enumeration order.
type WindowLister interface {
	ListWindows() ([]*window.Info, error)
	GetWindowInfo(id uint32) (*window.Info, error)
}

// DisplayLister reports the currently attached monitors.
type DisplayLister interface {
	NumDisplays() int
	DisplayBounds(index int) image.Rectangle
}

// Resolved is a Spec bound to a live window or monitor.
type Resolved struct {
	Spec   Spec
	Kind   Kind
	Window *window.Info
	// Monitor is only meaningful for KindMonitorIndex.
	Monitor int
	Bounds  image.Rectangle
}

// IsWindow reports whether the resolved target is a window.
func (r Resolved) IsWindow() bool { return r.Window != nil }

func (r Resolved) String() string {
	if r.Window != nil {
		return fmt.Sprintf("window 0x%x %q", r.Window.ID, r.Window.Title)
	}
	return fmt.Sprintf("monitor %d %v", r.Monitor, r.Bounds)
}

// Resolver binds specs to live desktop objects.
type Resolver struct {
	windows  WindowLister
	displays DisplayLister
}

// NewResolver creates a resolver. Either collaborator may be nil, in which
// case specs that need it fail to resolve.
func NewResolver(windows WindowLister, displays DisplayLister) *Resolver {
	return &Resolver{windows: windows, displays: displays}
}

// Resolve looks the spec up once. Failures are returned as *ResolutionError;
// a target that simply does not exist additionally matches ErrTargetNotFound.
func (r *Resolver) Resolve(ctx context.Context, spec Spec) (Resolved, error) {
	if err := ctx.Err(); err != nil {
		return Resolved{}, &ResolutionError{Spec: spec, Err: err}
	}

	var (
		res Resolved
		err error
	)
	switch spec.Kind() {
	case KindWindowHandle:
		res, err = r.resolveHandle(spec)
	case KindWindowTitle:
		res, err = r.resolveTitle(spec)
	default:
		res, err = r.resolveMonitor(spec)
	}
	if err != nil {
		return Resolved{}, &ResolutionError{Spec: spec, Err: err}
	}

	logger.WithComponent("target-resolver").Debug().
		Str("spec", spec.String()).
		Str("resolved", res.String()).
		Msg("Resolved capture target")
	return res, nil
}

func (r *Resolver) resolveHandle(spec Spec) (Resolved, error) {
	if r.windows == nil {
		return Resolved{}, errors.New("window enumeration is not available")
	}
	handle, _ := spec.Handle()
	if handle <= 0 || handle > math.MaxUint32 {
		return Resolved{}, &TargetNotFoundError{Spec: spec, Reason: "handle is not a valid window id"}
	}

	info, err := r.windows.GetWindowInfo(uint32(handle))
	if err != nil {
		if errors.Is(err, window.ErrWindowNotFound) {
			return Resolved{}, &TargetNotFoundError{Spec: spec, Reason: "no such window"}
		}
		return Resolved{}, fmt.Errorf("failed to query window: %w", err)
	}
	if !info.Visible {
		return Resolved{}, &TargetNotFoundError{Spec: spec, Reason: "window is not visible"}
	}
	return Resolved{Spec: spec, Kind: KindWindowHandle, Window: info, Bounds: info.Geometry.Rect()}, nil
}

func (r *Resolver) resolveTitle(spec Spec) (Resolved, error) {
	if r.windows == nil {
		return Resolved{}, errors.New("window enumeration is not available")
	}
	title, _ := spec.Title()
	if title == "" {
		return Resolved{}, &TargetNotFoundError{Spec: spec, Reason: "empty title matches no window"}
	}

	windows, err := r.windows.ListWindows()
	if err != nil {
		return Resolved{}, fmt.Errorf("failed to list windows: %w", err)
	}

	if info := MatchTitle(windows, title); info != nil {
		return Resolved{Spec: spec, Kind: KindWindowTitle, Window: info, Bounds: info.Geometry.Rect()}, nil
	}
	return Resolved{}, &TargetNotFoundError{
		Spec:   spec,
		Reason: fmt.Sprintf("none of %d windows has a matching title", len(windows)),
	}
}

// MatchTitle returns the first visible window whose title contains text,
// compared case-insensitively, or nil.
func MatchTitle(windows []*window.Info, text string) *window.Info {
	needle := strings.ToLower(text)
	for _, info := range windows {
		if info == nil || !info.Visible {
			continue
		}
		if strings.Contains(strings.ToLower(info.Title), needle) {
			return info
		}
	}
	return nil
}

func (r *Resolver) resolveMonitor(spec Spec) (Resolved, error) {
	if r.displays == nil {
		return Resolved{}, errors.New("display enumeration is not available")
	}
	index, _ := spec.Monitor()
	count := r.displays.NumDisplays()
	if index < 0 || index >= count {
		return Resolved{}, &TargetNotFoundError{
			Spec:   spec,
			Reason: fmt.Sprintf("index out of range, %d monitor(s) attached", count),
		}
	}
	return Resolved{
		Spec:    spec,
		Kind:    KindMonitorIndex,
		Monitor: index,
		Bounds:  r.displays.DisplayBounds(index),
	}, nil
}
