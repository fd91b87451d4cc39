// Package target validates capture target descriptions and resolves them
// against the live desktop.
//
// A target is selected by exactly one of a window handle, a monitor index or
// a window title substring. Validation is pure and never touches the display
// server; resolution happens once, when a capture session starts.
package target

import (
	"fmt"
	"strconv"
)

// Field names as they appear in configuration and error messages.
const (
	FieldWindowHandle = "window_handle"
	FieldMonitorIndex = "monitor_index"
	FieldWindowTitle  = "window_title"
)

// DefaultMonitorIndex is the monitor captured when no target field is supplied.
const DefaultMonitorIndex = 0

// Kind identifies the TargetSpec variant.
type Kind int

const (
	KindMonitorIndex Kind = iota
	KindWindowHandle
	KindWindowTitle
)

func (k Kind) String() string {
	switch k {
	case KindMonitorIndex:
		return "monitor"
	case KindWindowHandle:
		return "window_handle"
	case KindWindowTitle:
		return "window_title"
	default:
		return "unknown"
	}
}

// Fields is the target-selecting part of a capture configuration. A nil
// pointer means the field was not supplied; zero values are still "supplied".
type Fields struct {
	WindowHandle *int64  `json:"window_handle,omitempty" yaml:"window_handle,omitempty" mapstructure:"window_handle"`
	MonitorIndex *int    `json:"monitor_index,omitempty" yaml:"monitor_index,omitempty" mapstructure:"monitor_index"`
	WindowTitle  *string `json:"window_title,omitempty" yaml:"window_title,omitempty" mapstructure:"window_title"`
}

// supplied lists the supplied field names in canonical order.
func (f Fields) supplied() []string {
	var names []string
	if f.WindowHandle != nil {
		names = append(names, FieldWindowHandle)
	}
	if f.MonitorIndex != nil {
		names = append(names, FieldMonitorIndex)
	}
	if f.WindowTitle != nil {
		names = append(names, FieldWindowTitle)
	}
	return names
}

// Spec is a validated, immutable target description. The zero value is the
// default target (monitor DefaultMonitorIndex).
type Spec struct {
	kind     Kind
	handle   int64
	monitor  int
	title    string
	implicit bool
}

// WindowHandle builds a window handle spec.
func WindowHandle(id int64) Spec { return Spec{kind: KindWindowHandle, handle: id} }

// MonitorIndex builds a monitor spec.
func MonitorIndex(n int) Spec { return Spec{kind: KindMonitorIndex, monitor: n} }

// WindowTitle builds a title-substring spec.
func WindowTitle(text string) Spec { return Spec{kind: KindWindowTitle, title: text} }

// Default returns the spec used when no target field is supplied.
func Default() Spec {
	return Spec{kind: KindMonitorIndex, monitor: DefaultMonitorIndex, implicit: true}
}

// Validate turns the optional target fields into exactly one Spec.
// Supplying two or more fields fails with *ConflictingTargetError.
func Validate(f Fields) (Spec, error) {
	names := f.supplied()
	switch len(names) {
	case 0:
		return Default(), nil
	case 1:
	default:
		return Spec{}, &ConflictingTargetError{Fields: names}
	}

	switch {
	case f.WindowHandle != nil:
		return WindowHandle(*f.WindowHandle), nil
	case f.MonitorIndex != nil:
		return MonitorIndex(*f.MonitorIndex), nil
	default:
		return WindowTitle(*f.WindowTitle), nil
	}
}

func (s Spec) Kind() Kind { return s.kind }

// Handle returns the window handle and whether the spec is a WindowHandle.
func (s Spec) Handle() (int64, bool) { return s.handle, s.kind == KindWindowHandle }

// Monitor returns the monitor index and whether the spec is a MonitorIndex.
func (s Spec) Monitor() (int, bool) { return s.monitor, s.kind == KindMonitorIndex }

// Title returns the title text and whether the spec is a WindowTitle.
func (s Spec) Title() (string, bool) { return s.title, s.kind == KindWindowTitle }

// IsDefault reports whether the spec was chosen implicitly.
func (s Spec) IsDefault() bool { return s.implicit }

func (s Spec) String() string {
	switch s.kind {
	case KindWindowHandle:
		return "WindowHandle(" + strconv.FormatInt(s.handle, 10) + ")"
	case KindWindowTitle:
		return "WindowTitle(" + strconv.Quote(s.title) + ")"
	default:
		if s.implicit {
			return fmt.Sprintf("MonitorIndex(%d, default)", s.monitor)
		}
		return fmt.Sprintf("MonitorIndex(%d)", s.monitor)
	}
}
