package target

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTargetNotFound is the sentinel wrapped by every TargetNotFoundError.
var ErrTargetNotFound = errors.New("capture target not found")

// ConflictingTargetError reports that more than one target field was supplied.
type ConflictingTargetError struct {
	Fields []string
}

func (e *ConflictingTargetError) Error() string {
	return fmt.Sprintf("only one of %s, %s or %s can be specified (got %s)",
		FieldWindowHandle, FieldMonitorIndex, FieldWindowTitle, strings.Join(e.Fields, " and "))
}

// TargetNotFoundError reports that a spec did not match anything on the live desktop.
type TargetNotFoundError struct {
	Spec   Spec
	Reason string
}

func (e *TargetNotFoundError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: %v", e.Spec, ErrTargetNotFound)
	}
	return fmt.Sprintf("%s: %v: %s", e.Spec, ErrTargetNotFound, e.Reason)
}

func (e *TargetNotFoundError) Unwrap() error { return ErrTargetNotFound }

// ResolutionError wraps any failure to resolve a spec at session start.
type ResolutionError struct {
	Spec Spec
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("failed to resolve capture target %s: %v", e.Spec, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }
