package session

import (
	"context"
	"errors"
	"image"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bryanchriswhite/CaptureKit/internal/capture"
	"github.com/bryanchriswhite/CaptureKit/internal/frame"
	"github.com/bryanchriswhite/CaptureKit/internal/target"
	"github.com/bryanchriswhite/CaptureKit/internal/window"
)

// fakeDesktop implements both target collaborators
type fakeDesktop struct {
	windows  []*window.Info
	monitors []image.Rectangle
	calls    atomic.Int32
}

func (d *fakeDesktop) ListWindows() ([]*window.Info, error) {
	d.calls.Add(1)
	return d.windows, nil
}

func (d *fakeDesktop) GetWindowInfo(id uint32) (*window.Info, error) {
	d.calls.Add(1)
	for _, w := range d.windows {
		if w.ID == id {
			return w, nil
		}
	}
	return nil, window.ErrWindowNotFound
}

func (d *fakeDesktop) NumDisplays() int {
	d.calls.Add(1)
	return len(d.monitors)
}

func (d *fakeDesktop) DisplayBounds(i int) image.Rectangle { return d.monitors[i] }

func (d *fakeDesktop) Grab(r image.Rectangle) (*image.RGBA, error) {
	return image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy())), nil
}

func newDesktop() *fakeDesktop {
	return &fakeDesktop{
		windows: []*window.Info{
			{ID: 12345, Title: "Untitled - Notepad", Visible: true},
			{ID: 777, Title: "Terminal", Visible: true},
		},
		monitors: []image.Rectangle{image.Rect(0, 0, 32, 24)},
	}
}

// fakeStream produces `limit` frames (0 = unlimited), then endErr or io.EOF.
// With block set it waits for ctx instead of producing frames.
type fakeStream struct {
	limit  int
	endErr error
	block  bool

	produced int
	closed   atomic.Int32
}

func (s *fakeStream) Next(ctx context.Context) (*frame.Frame, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.limit > 0 && s.produced >= s.limit {
		if s.endErr != nil {
			return nil, s.endErr
		}
		return nil, io.EOF
	}
	s.produced++
	return frame.FromRGBA(image.NewRGBA(image.Rect(0, 0, 4, 3)), frame.RGBA8, time.Duration(s.produced)*time.Millisecond), nil
}

func (s *fakeStream) Close() error {
	s.closed.Add(1)
	return nil
}

type fakeBackend struct {
	stream  *fakeStream
	openErr error
	opens   atomic.Int32
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Open(context.Context, target.Resolved, capture.Settings) (capture.Stream, error) {
	b.opens.Add(1)
	if b.openErr != nil {
		return nil, b.openErr
	}
	return b.stream, nil
}

// stoppingResolver stops the session from inside resolution
type stoppingResolver struct {
	inner target.DisplayLister
	sess  *Session
}

func (r *stoppingResolver) Resolve(ctx context.Context, spec target.Spec) (target.Resolved, error) {
	r.sess.Stop()
	return target.NewResolver(nil, r.inner).Resolve(ctx, spec)
}

// stoppingBackend stops the session while the stream is being opened
type stoppingBackend struct {
	sess *Session
}

func (b *stoppingBackend) Name() string { return "stopping" }

func (b *stoppingBackend) Open(ctx context.Context, _ target.Resolved, _ capture.Settings) (capture.Stream, error) {
	b.sess.Stop()
	<-ctx.Done()
	return nil, ctx.Err()
}

var (
	_ capture.Backend       = (*fakeBackend)(nil)
	_ capture.Backend       = (*stoppingBackend)(nil)
	_ capture.Stream        = (*fakeStream)(nil)
	_ capture.ScreenGrabber = (*fakeDesktop)(nil)
	_ Resolver              = (*stoppingResolver)(nil)
)

func ptr[T any](v T) *T { return &v }

func newSession(t *testing.T, fields target.Fields, backend *fakeBackend) (*Session, *fakeDesktop) {
	t.Helper()
	desktop := newDesktop()
	s, err := New(Options{Target: fields}, target.NewResolver(desktop, desktop), backend)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s, desktop
}

func TestNew_ConflictingTargets(t *testing.T) {
	tests := []struct {
		name   string
		fields target.Fields
	}{
		{"handle and monitor", target.Fields{WindowHandle: ptr[int64](12345), MonitorIndex: ptr(0)}},
		{"handle and title", target.Fields{WindowHandle: ptr[int64](12345), WindowTitle: ptr("test")}},
		{"monitor and title", target.Fields{MonitorIndex: ptr(1), WindowTitle: ptr("")}},
		{"all three", target.Fields{WindowHandle: ptr[int64](0), MonitorIndex: ptr(0), WindowTitle: ptr("x")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desktop := newDesktop()
			backend := &fakeBackend{stream: &fakeStream{}}

			s, err := New(Options{Target: tt.fields}, target.NewResolver(desktop, desktop), backend)
			var cte *target.ConflictingTargetError
			if !errors.As(err, &cte) {
				t.Fatalf("New() error = %v, want ConflictingTargetError", err)
			}
			if s != nil {
				t.Error("New() returned a session alongside the error")
			}
			if desktop.calls.Load() != 0 || backend.opens.Load() != 0 {
				t.Errorf("validation touched collaborators: desktop=%d backend=%d", desktop.calls.Load(), backend.opens.Load())
			}
		})
	}
}

func TestNew_TargetVariants(t *testing.T) {
	tests := []struct {
		name   string
		fields target.Fields
		want   target.Kind
	}{
		{"window handle", target.Fields{WindowHandle: ptr[int64](12345)}, target.KindWindowHandle},
		{"monitor", target.Fields{MonitorIndex: ptr(0)}, target.KindMonitorIndex},
		{"title", target.Fields{WindowTitle: ptr("test")}, target.KindWindowTitle},
		{"default", target.Fields{}, target.KindMonitorIndex},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newSession(t, tt.fields, &fakeBackend{stream: &fakeStream{}})
			if got := s.Spec().Kind(); got != tt.want {
				t.Errorf("Spec().Kind() = %v, want %v", got, tt.want)
			}
			if s.State() != StateConfigured {
				t.Errorf("State() = %v, want configured", s.State())
			}
		})
	}
}

func TestSession_TitleNotFound(t *testing.T) {
	backend := &fakeBackend{stream: &fakeStream{}}
	s, _ := newSession(t, target.Fields{WindowTitle: ptr("NoSuchWindowXYZ")}, backend)

	var frames, closed int
	s.OnFrame(func(*frame.Frame, *Control) error { frames++; return nil })
	s.OnClosed(func(error) { closed++ })

	err := s.Start(context.Background())
	var nf *target.TargetNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Start() error = %v, want TargetNotFoundError", err)
	}
	var re *target.ResolutionError
	if !errors.As(err, &re) {
		t.Errorf("Start() error = %v, want ResolutionError", err)
	}
	if s.State() != StateClosed {
		t.Errorf("State() = %v, want closed", s.State())
	}
	if frames != 0 || closed != 0 {
		t.Errorf("handlers invoked: frames=%d closed=%d", frames, closed)
	}
	if backend.opens.Load() != 0 {
		t.Error("backend opened despite resolution failure")
	}
	if !s.IsFinished() || !errors.Is(s.Wait(), target.ErrTargetNotFound) {
		t.Error("Wait() should report the start error")
	}
}

func TestSession_HandlerStopsOnFifthFrame(t *testing.T) {
	stream := &fakeStream{}
	s, _ := newSession(t, target.Fields{WindowHandle: ptr[int64](12345)}, &fakeBackend{stream: stream})

	var frames, closed int
	var closeCause error
	s.OnFrame(func(f *frame.Frame, ctl *Control) error {
		frames++
		if f.Sequence() == 5 {
			ctl.Stop()
		}
		return nil
	})
	s.OnClosed(func(cause error) {
		closed++
		closeCause = cause
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if frames != 5 {
		t.Errorf("frame handler called %d times, want 5", frames)
	}
	if closed != 1 || closeCause != nil {
		t.Errorf("closed handler called %d times with %v, want once with nil", closed, closeCause)
	}
	if stream.closed.Load() != 1 {
		t.Errorf("stream closed %d times, want 1", stream.closed.Load())
	}
	if s.State() != StateClosed {
		t.Errorf("State() = %v, want closed", s.State())
	}
	if res, ok := s.Resolved(); !ok || res.Window.ID != 12345 || res.Kind != target.KindWindowHandle {
		t.Errorf("Resolved() = %+v, %v", res, ok)
	}
}

func TestSession_SequenceOrderedWithoutGaps(t *testing.T) {
	stream := &fakeStream{limit: 20}
	s, _ := newSession(t, target.Fields{}, &fakeBackend{stream: stream})

	var seqs []uint64
	var inFlight atomic.Int32
	var overlapped bool
	s.OnFrame(func(f *frame.Frame, _ *Control) error {
		if inFlight.Add(1) != 1 {
			overlapped = true
		}
		defer inFlight.Add(-1)
		seqs = append(seqs, f.Sequence())
		return nil
	})
	closed := 0
	s.OnClosed(func(cause error) {
		closed++
		if cause != nil {
			t.Errorf("close cause = %v, want nil at end of stream", cause)
		}
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(seqs) != 20 {
		t.Fatalf("delivered %d frames, want 20", len(seqs))
	}
	for i, seq := range seqs {
		if seq != uint64(i+1) {
			t.Fatalf("frame %d has sequence %d", i, seq)
		}
	}
	if overlapped {
		t.Error("frame handler invocations overlapped")
	}
	if closed != 1 {
		t.Errorf("closed handler called %d times", closed)
	}
	if got := s.Stats().Frames; got != 20 {
		t.Errorf("Stats().Frames = %d", got)
	}
}

func TestSession_StopWhileConfiguredIsNoop(t *testing.T) {
	stream := &fakeStream{limit: 2}
	s, _ := newSession(t, target.Fields{}, &fakeBackend{stream: stream})

	s.Stop()
	s.Stop()
	if s.State() != StateConfigured {
		t.Fatalf("State() = %v after Stop, want configured", s.State())
	}

	closed := 0
	s.OnClosed(func(error) { closed++ })
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() after Stop error = %v", err)
	}
	if closed != 1 || stream.produced != 2 {
		t.Errorf("closed=%d produced=%d", closed, stream.produced)
	}

	s.Stop()
	if s.State() != StateClosed {
		t.Errorf("Stop on closed session changed state to %v", s.State())
	}
}

func TestSession_StopWhileStarting(t *testing.T) {
	tests := []struct {
		name  string
		build func(t *testing.T, desktop *fakeDesktop) *Session
	}{
		{
			name: "during resolution",
			build: func(t *testing.T, desktop *fakeDesktop) *Session {
				r := &stoppingResolver{inner: desktop}
				s, err := New(Options{}, r, capture.NewMonitorCapturer(desktop))
				if err != nil {
					t.Fatalf("New() error = %v", err)
				}
				r.sess = s
				return s
			},
		},
		{
			name: "during open",
			build: func(t *testing.T, desktop *fakeDesktop) *Session {
				b := &stoppingBackend{}
				s, err := New(Options{}, target.NewResolver(desktop, desktop), b)
				if err != nil {
					t.Fatalf("New() error = %v", err)
				}
				b.sess = s
				return s
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.build(t, newDesktop())

			var closedCalls atomic.Int32
			var cause error
			s.OnClosed(func(err error) {
				closedCalls.Add(1)
				cause = err
			})

			if err := s.Start(context.Background()); err != nil {
				t.Fatalf("Start() error = %v, want nil for a requested stop", err)
			}
			if n := closedCalls.Load(); n != 1 {
				t.Errorf("closed handler calls = %d, want 1", n)
			}
			if cause != nil {
				t.Errorf("close cause = %v, want nil", cause)
			}
			if s.State() != StateClosed {
				t.Errorf("State() = %v, want Closed", s.State())
			}
			if err := s.Wait(); err != nil {
				t.Errorf("Wait() = %v, want nil", err)
			}
		})
	}
}

func TestSession_DeadlineShorterThanInterval(t *testing.T) {
	desktop := newDesktop()
	settings := capture.Settings{MinUpdateInterval: time.Second}
	s, err := New(Options{Settings: settings}, target.NewResolver(desktop, desktop), capture.NewMonitorCapturer(desktop))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var cause error
	s.OnFrame(func(*frame.Frame, *Control) error { return nil })
	s.OnClosed(func(err error) { cause = err })

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("session closed after %v, before the deadline", elapsed)
	}
	if !errors.Is(cause, context.DeadlineExceeded) {
		t.Errorf("close cause = %v, want context.DeadlineExceeded", cause)
	}
	var be *capture.BackendError
	if errors.As(cause, &be) {
		t.Errorf("close cause reported as backend error: %v", cause)
	}
	if got := s.Stats().Frames; got != 1 {
		t.Errorf("frames = %d, want 1", got)
	}
}

func TestSession_ExternalStopUnblocksStream(t *testing.T) {
	stream := &fakeStream{block: true}
	s, _ := newSession(t, target.Fields{MonitorIndex: ptr(0)}, &fakeBackend{stream: stream})

	var closed atomic.Int32
	s.OnClosed(func(error) { closed.Add(1) })

	if err := s.StartBackground(context.Background()); err != nil {
		t.Fatalf("StartBackground() error = %v", err)
	}
	if s.State() != StateRunning {
		t.Errorf("State() = %v, want running", s.State())
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Stop()
		}()
	}
	wg.Wait()

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not close after Stop")
	}
	if err := s.Wait(); err != nil {
		t.Errorf("Wait() = %v, want nil after requested stop", err)
	}
	if closed.Load() != 1 {
		t.Errorf("closed handler called %d times, want 1", closed.Load())
	}
	if stream.closed.Load() != 1 {
		t.Errorf("stream closed %d times", stream.closed.Load())
	}
}

func TestSession_ParentContextCancel(t *testing.T) {
	s, _ := newSession(t, target.Fields{}, &fakeBackend{stream: &fakeStream{block: true}})

	var cause error
	s.OnClosed(func(c error) { cause = c })

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.StartBackground(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()

	if err := s.Wait(); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() = %v, want context.Canceled", err)
	}
	if !errors.Is(cause, context.Canceled) {
		t.Errorf("close cause = %v", cause)
	}
}

func TestSession_StartTwice(t *testing.T) {
	s, _ := newSession(t, target.Fields{}, &fakeBackend{stream: &fakeStream{limit: 1}})
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	err := s.Start(context.Background())
	var ise *InvalidStateError
	if !errors.As(err, &ise) || ise.State != StateClosed {
		t.Errorf("second Start() error = %v, want InvalidStateError(closed)", err)
	}
	if err := s.OnFrame(nil); !errors.As(err, &ise) {
		t.Errorf("OnFrame() after start error = %v, want InvalidStateError", err)
	}
}

func TestSession_StreamErrors(t *testing.T) {
	boom := errors.New("device removed")
	tests := []struct {
		name    string
		endErr  error
		wantIs  error
		backend bool
	}{
		{"target lost", capture.ErrTargetLost, capture.ErrTargetLost, false},
		{"backend failure", boom, boom, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream := &fakeStream{limit: 3, endErr: tt.endErr}
			s, _ := newSession(t, target.Fields{WindowTitle: ptr("notepad")}, &fakeBackend{stream: stream})

			frames, closed := 0, 0
			var cause error
			s.OnFrame(func(*frame.Frame, *Control) error { frames++; return nil })
			s.OnClosed(func(c error) { closed++; cause = c })

			if err := s.Start(context.Background()); err != nil {
				t.Fatalf("Start() error = %v", err)
			}
			if frames != 3 || closed != 1 {
				t.Errorf("frames=%d closed=%d", frames, closed)
			}
			if !errors.Is(cause, tt.wantIs) {
				t.Errorf("close cause = %v, want %v", cause, tt.wantIs)
			}
			var be *capture.BackendError
			if got := errors.As(cause, &be); got != tt.backend {
				t.Errorf("cause is BackendError = %v, want %v", got, tt.backend)
			}
			if stream.closed.Load() != 1 {
				t.Errorf("stream closed %d times", stream.closed.Load())
			}
		})
	}
}

func TestSession_OpenFailure(t *testing.T) {
	backend := &fakeBackend{openErr: errors.New("no compositor")}
	s, _ := newSession(t, target.Fields{}, backend)

	closed := 0
	s.OnClosed(func(error) { closed++ })

	err := s.Start(context.Background())
	var be *capture.BackendError
	if !errors.As(err, &be) {
		t.Fatalf("Start() error = %v, want BackendError", err)
	}
	if closed != 0 {
		t.Error("closed handler fired for a session that never ran")
	}
	if s.State() != StateClosed {
		t.Errorf("State() = %v", s.State())
	}
}

func TestSession_HandlerFailure(t *testing.T) {
	handlerErr := errors.New("disk full")
	tests := []struct {
		name    string
		handler FrameHandler
		check   func(error) bool
	}{
		{
			name:    "error",
			handler: func(*frame.Frame, *Control) error { return handlerErr },
			check:   func(err error) bool { return errors.Is(err, handlerErr) },
		},
		{
			name:    "panic",
			handler: func(*frame.Frame, *Control) error { panic("oops") },
			check:   func(err error) bool { return err != nil },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream := &fakeStream{}
			s, _ := newSession(t, target.Fields{}, &fakeBackend{stream: stream})
			s.OnFrame(tt.handler)
			closed := 0
			var cause error
			s.OnClosed(func(c error) { closed++; cause = c })

			if err := s.Start(context.Background()); err != nil {
				t.Fatal(err)
			}
			if closed != 1 || !tt.check(cause) {
				t.Errorf("closed=%d cause=%v", closed, cause)
			}
			if stream.produced != 1 || stream.closed.Load() != 1 {
				t.Errorf("produced=%d closed=%d", stream.produced, stream.closed.Load())
			}
		})
	}
}

func TestSession_MonitorOutOfRange(t *testing.T) {
	backend := &fakeBackend{stream: &fakeStream{}}
	s, _ := newSession(t, target.Fields{MonitorIndex: ptr(4)}, backend)

	err := s.Start(context.Background())
	if !errors.Is(err, target.ErrTargetNotFound) {
		t.Errorf("Start() error = %v, want ErrTargetNotFound", err)
	}
	if backend.opens.Load() != 0 {
		t.Error("backend opened for missing monitor")
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateConfigured, "configured"},
		{StateStarting, "starting"},
		{StateRunning, "running"},
		{StateStopping, "stopping"},
		{StateClosed, "closed"},
		{State(42), "state(42)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestControl_StopIdempotent(t *testing.T) {
	var c Control
	if c.StopRequested() {
		t.Fatal("new control already stopped")
	}
	c.Stop()
	c.Stop()
	if !c.StopRequested() {
		t.Error("Stop() not observed")
	}
}
