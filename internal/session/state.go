package session

import "fmt"

// State is a session lifecycle state.
type State int32

const (
	StateConfigured State = iota
	StateStarting
	StateRunning
	StateStopping
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConfigured:
		return "configured"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// InvalidStateError is returned when a lifecycle method is called in the wrong state.
type InvalidStateError struct {
	Op    string
	State State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s a session that is %s", e.Op, e.State)
}
