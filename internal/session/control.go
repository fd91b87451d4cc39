package session

import "sync/atomic"

// Control is handed to frame handlers so they can end the session from
// inside the callback. The request is observed after the handler returns.
type Control struct {
	stopped atomic.Bool
}

// Stop requests termination. It never blocks and may be called any number of times.
func (c *Control) Stop() {
	c.stopped.Store(true)
}

// StopRequested reports whether Stop has been called.
func (c *Control) StopRequested() bool {
	return c.stopped.Load()
}
