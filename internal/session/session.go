// Package session runs one capture stream from target resolution to the
// closed notification.
//
// A Session moves through Configured, Starting, Running, Stopping and Closed.
// Frames are delivered to the frame handler one at a time, in sequence order,
// on the goroutine running the delivery loop. The closed handler runs exactly
// once, after the loop has drained and the backend stream has been released.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/CaptureKit/internal/capture"
	"github.com/bryanchriswhite/CaptureKit/internal/frame"
	"github.com/bryanchriswhite/CaptureKit/internal/logger"
	"github.com/bryanchriswhite/CaptureKit/internal/target"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FrameHandler receives every captured frame. The frame's buffer is only
// valid until the handler returns. Returning an error ends the session with
// that error as the close cause.
type FrameHandler func(f *frame.Frame, ctl *Control) error

// ClosedHandler is called once when a running session closes. cause is nil
// for a requested stop or a normal end of stream.
type ClosedHandler func(cause error)

// Resolver binds a target spec to a live window or monitor.
type Resolver interface {
	Resolve(ctx context.Context, spec target.Spec) (target.Resolved, error)
}

// Options configure a session.
type Options struct {
	Target   target.Fields
	Settings capture.Settings
}

// Stats is a point-in-time view of a session.
type Stats struct {
	ID        string    `json:"id"`
	State     string    `json:"state"`
	Target    string    `json:"target"`
	Resolved  string    `json:"resolved,omitempty"`
	Frames    uint64    `json:"frames"`
	StartedAt time.Time `json:"started_at,omitempty"`
	ClosedAt  time.Time `json:"closed_at,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Session owns one capture stream.
type Session struct {
	id       string
	spec     target.Spec
	settings capture.Settings
	resolver Resolver
	backend  capture.Backend
	log      zerolog.Logger

	mu        sync.Mutex
	state     State
	onFrame   FrameHandler
	onClosed  ClosedHandler
	resolved  *target.Resolved
	control   *Control
	cancel    context.CancelFunc
	cause     error
	startedAt time.Time
	closedAt  time.Time

	frames atomic.Uint64
	done   chan struct{}
}

// New validates the target fields and returns a Configured session. It fails
// with *target.ConflictingTargetError before touching the resolver or backend.
func New(opts Options, resolver Resolver, backend capture.Backend) (*Session, error) {
	spec, err := target.Validate(opts.Target)
	if err != nil {
		return nil, err
	}
	if resolver == nil {
		return nil, errors.New("session requires a target resolver")
	}
	if backend == nil {
		return nil, errors.New("session requires a capture backend")
	}

	id := uuid.NewString()
	return &Session{
		id:       id,
		spec:     spec,
		settings: opts.Settings,
		resolver: resolver,
		backend:  backend,
		log:      logger.WithComponent("session").With().Str("session_id", id).Logger(),
		state:    StateConfigured,
		done:     make(chan struct{}),
	}, nil
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// Spec returns the validated target spec.
func (s *Session) Spec() target.Spec { return s.spec }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnFrame registers the frame handler. Handlers can only be registered
// while the session is Configured.
func (s *Session) OnFrame(h FrameHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConfigured {
		return &InvalidStateError{Op: "register a frame handler on", State: s.state}
	}
	s.onFrame = h
	return nil
}

// OnClosed registers the closed handler.
func (s *Session) OnClosed(h ClosedHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConfigured {
		return &InvalidStateError{Op: "register a closed handler on", State: s.state}
	}
	s.onClosed = h
	return nil
}

// Start resolves the target, opens the stream and runs the delivery loop on
// the calling goroutine until the session is Closed. Resolution and backend
// open failures are returned directly and do not invoke the closed handler;
// failures while streaming are reported to the closed handler only. A Stop
// that arrives while Starting closes the session with a nil cause.
func (s *Session) Start(ctx context.Context) error {
	ctx, stream, err := s.begin(ctx)
	if err != nil || stream == nil {
		return err
	}
	s.run(ctx, stream)
	return nil
}

// StartBackground is Start with the delivery loop on a new goroutine. It
// returns once the stream is open. Use Wait or Done to observe the end.
func (s *Session) StartBackground(ctx context.Context) error {
	ctx, stream, err := s.begin(ctx)
	if err != nil || stream == nil {
		return err
	}
	go s.run(ctx, stream)
	return nil
}

// Stop requests termination. It is a no-op on a Configured or Closed
// session, never blocks, and is honored at the next frame boundary.
func (s *Session) Stop() {
	s.mu.Lock()
	state, ctl, cancel := s.state, s.control, s.cancel
	s.mu.Unlock()

	if state != StateStarting && state != StateRunning {
		return
	}
	s.log.Debug().Str("state", state.String()).Msg("Stop requested")
	ctl.Stop()
	// Unblocks a pending Next; a running handler is never interrupted
	cancel()
}

// Wait blocks until the session is Closed and returns the close cause.
// After a failed start it returns the start error.
func (s *Session) Wait() error {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

// Done returns a channel that is closed once the session is Closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// IsFinished reports whether the session reached Closed.
func (s *Session) IsFinished() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Resolved returns the live target once resolution succeeded.
func (s *Session) Resolved() (target.Resolved, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolved == nil {
		return target.Resolved{}, false
	}
	return *s.resolved, true
}

// Stats returns a snapshot of the session.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		ID:        s.id,
		State:     s.state.String(),
		Target:    s.spec.String(),
		Frames:    s.frames.Load(),
		StartedAt: s.startedAt,
		ClosedAt:  s.closedAt,
	}
	if s.resolved != nil {
		st.Resolved = s.resolved.String()
	}
	if s.cause != nil {
		st.Error = s.cause.Error()
	}
	return st
}

// begin performs the Configured -> Starting -> Running transition. A Stop
// while Starting closes the session with a nil cause and begin returns a nil
// stream and a nil error.
func (s *Session) begin(parent context.Context) (context.Context, capture.Stream, error) {
	s.mu.Lock()
	if s.state != StateConfigured {
		state := s.state
		s.mu.Unlock()
		return nil, nil, &InvalidStateError{Op: "start", State: state}
	}
	ctx, cancel := context.WithCancel(parent)
	s.state = StateStarting
	s.control = &Control{}
	s.cancel = cancel
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.log.Debug().Str("target", s.spec.String()).Msg("Starting capture session")

	resolved, err := s.resolver.Resolve(ctx, s.spec)
	if s.control.StopRequested() {
		s.close(nil, nil)
		return nil, nil, nil
	}
	if err != nil {
		s.fail(err)
		return nil, nil, err
	}

	stream, err := s.backend.Open(ctx, resolved, s.settings)
	if err != nil && s.control.StopRequested() {
		s.close(nil, nil)
		return nil, nil, nil
	}
	if err != nil {
		var be *capture.BackendError
		if !errors.As(err, &be) {
			err = &capture.BackendError{Backend: s.backend.Name(), Op: "open", Err: err}
		}
		s.fail(err)
		return nil, nil, err
	}

	s.mu.Lock()
	s.resolved = &resolved
	s.state = StateRunning
	s.mu.Unlock()

	s.log.Info().
		Str("target", s.spec.String()).
		Str("resolved", resolved.String()).
		Msg("Capture session running")
	return ctx, stream, nil
}

// fail moves a session that never reached Running straight to Closed.
func (s *Session) fail(err error) {
	s.mu.Lock()
	s.state = StateClosed
	s.cause = err
	s.closedAt = time.Now()
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	close(s.done)
	s.log.Warn().Err(err).Msg("Capture session failed to start")
}

// run is the delivery loop. It owns the stream and always releases it.
func (s *Session) run(ctx context.Context, stream capture.Stream) {
	s.mu.Lock()
	onFrame, ctl := s.onFrame, s.control
	s.mu.Unlock()

	var cause error
	for !ctl.StopRequested() {
		f, err := stream.Next(ctx)
		if err != nil {
			cause = s.streamCause(ctx, ctl, err)
			break
		}

		seq := s.frames.Add(1)
		if onFrame == nil {
			continue
		}
		if err := deliver(onFrame, f.WithSequence(seq), ctl); err != nil {
			cause = err
			break
		}
	}

	s.close(stream, cause)
}

// streamCause classifies an error returned by Stream.Next.
func (s *Session) streamCause(ctx context.Context, ctl *Control, err error) error {
	switch {
	case errors.Is(err, io.EOF):
		return nil
	case ctx.Err() != nil:
		if ctl.StopRequested() {
			return nil
		}
		return ctx.Err()
	case errors.Is(err, capture.ErrTargetLost):
		return err
	}

	var be *capture.BackendError
	if errors.As(err, &be) {
		return err
	}
	return &capture.BackendError{Backend: s.backend.Name(), Op: "next frame", Err: err}
}

// deliver invokes the handler, turning a panic into an error so the closed
// notification still fires.
func deliver(h FrameHandler, f *frame.Frame, ctl *Control) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("frame handler panicked on frame %d: %v", f.Sequence(), r)
		}
	}()
	if err := h(f, ctl); err != nil {
		return fmt.Errorf("frame handler failed on frame %d: %w", f.Sequence(), err)
	}
	return nil
}

// close moves the session through Stopping to Closed and fires the closed
// handler. stream is nil when Stop arrived before the stream was open.
func (s *Session) close(stream capture.Stream, cause error) {
	s.mu.Lock()
	s.state = StateStopping
	cancel := s.cancel
	s.mu.Unlock()

	if stream != nil {
		if err := stream.Close(); err != nil {
			s.log.Warn().Err(err).Msg("Failed to close capture stream")
		}
	}
	cancel()

	s.mu.Lock()
	s.state = StateClosed
	s.cause = cause
	s.closedAt = time.Now()
	onClosed := s.onClosed
	s.mu.Unlock()

	event := s.log.Info()
	if cause != nil {
		event = s.log.Warn().Err(cause)
	}
	event.Uint64("frames", s.frames.Load()).Msg("Capture session closed")

	if onClosed != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error().Interface("panic", r).Msg("Closed handler panicked")
				}
			}()
			onClosed(cause)
		}()
	}
	close(s.done)
}
