package api

import (
	"encoding/json"
	"errors"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bryanchriswhite/CaptureKit/internal/display"
	"github.com/bryanchriswhite/CaptureKit/internal/frame"
	"github.com/bryanchriswhite/CaptureKit/internal/session"
	"github.com/bryanchriswhite/CaptureKit/internal/window"
	"github.com/gorilla/websocket"
)

type fakeWindows struct {
	windows []*window.Info
	err     error
}

func (f *fakeWindows) ListWindows() ([]*window.Info, error) { return f.windows, f.err }

func (f *fakeWindows) GetFocusedWindow() (*window.Info, error) {
	for _, w := range f.windows {
		if w.Focused {
			return w, nil
		}
	}
	return nil, window.ErrWindowNotFound
}

type fakeMonitors []display.Monitor

func (m fakeMonitors) List() []display.Monitor { return m }

type fakeSession struct {
	state string
	stops atomic.Int32
}

func (f *fakeSession) Stats() session.Stats {
	return session.Stats{ID: "abc", State: f.state, Target: "MonitorIndex(0)", Frames: 7}
}

func (f *fakeSession) Stop() { f.stops.Add(1) }

func newTestServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(opts)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func TestServer_Routes(t *testing.T) {
	sess := &fakeSession{state: "running"}
	_, ts := newTestServer(t, Options{
		Windows: &fakeWindows{windows: []*window.Info{
			{ID: 1, Title: "Terminal", Visible: true, Focused: true},
			{ID: 2, Title: "hidden", Visible: false},
		}},
		Monitors: fakeMonitors{{Index: 0, Width: 1920, Height: 1080, Primary: true}},
		Session:  sess,
	})

	tests := []struct {
		name     string
		method   string
		path     string
		wantCode int
		wantBody string
	}{
		{"health", "GET", "/api/health", http.StatusOK, `"status":"healthy"`},
		{"windows", "GET", "/api/windows", http.StatusOK, `"title":"hidden"`},
		{"focused", "GET", "/api/windows/focused", http.StatusOK, `"title":"Terminal"`},
		{"monitors", "GET", "/api/monitors", http.StatusOK, `"width":1920`},
		{"session", "GET", "/api/session", http.StatusOK, `"frames":7`},
		{"stop", "POST", "/api/session/stop", http.StatusAccepted, `"id":"abc"`},
		{"stop wrong method", "GET", "/api/session/stop", http.StatusMethodNotAllowed, ""},
		{"no stream configured", "GET", "/stream", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, ts.URL+tt.path, nil)
			if err != nil {
				t.Fatal(err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantCode {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantCode)
			}
			if tt.wantBody == "" {
				return
			}
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(string(body), tt.wantBody) {
				t.Errorf("body = %s, want substring %s", body, tt.wantBody)
			}
		})
	}

	if sess.stops.Load() != 1 {
		t.Errorf("session Stop called %d times, want 1", sess.stops.Load())
	}
}

func TestServer_VisibleFilterAndErrors(t *testing.T) {
	s := NewServer(Options{Windows: &fakeWindows{windows: []*window.Info{
		{ID: 1, Title: "a", Visible: true},
		{ID: 2, Title: "b", Visible: false},
	}}})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/windows?visible=true", nil))
	var got []window.Info
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != 1 {
		t.Errorf("visible windows = %+v", got)
	}

	tests := []struct {
		name string
		opts Options
		path string
		want int
	}{
		{"no window source", Options{}, "/api/windows", http.StatusServiceUnavailable},
		{"no monitor source", Options{}, "/api/monitors", http.StatusServiceUnavailable},
		{"no session", Options{}, "/api/session", http.StatusNotFound},
		{"enumeration failure", Options{Windows: &fakeWindows{err: errors.New("x11 gone")}}, "/api/windows", http.StatusInternalServerError},
		{"no focused window", Options{Windows: &fakeWindows{}}, "/api/windows/focused", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewServer(tt.opts).Handler().ServeHTTP(rec, httptest.NewRequest("GET", tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestServer_CORSPreflight(t *testing.T) {
	rec := httptest.NewRecorder()
	NewServer(Options{}).Handler().ServeHTTP(rec, httptest.NewRequest("OPTIONS", "/api/session/stop", nil))
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("preflight = %d %v", rec.Code, rec.Header())
	}
}

func TestServer_SessionEvents(t *testing.T) {
	s, ts := newTestServer(t, Options{Session: &fakeSession{state: "running"}})

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/session/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != EventState || ev.State != "running" {
		t.Errorf("first event = %+v", ev)
	}

	f := frame.FromRGBA(image.NewRGBA(image.Rect(0, 0, 6, 4)), frame.RGBA8, 40*time.Millisecond).WithSequence(3)
	s.PublishFrame(f)
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != EventFrame || ev.Sequence != 3 || ev.Width != 6 || ev.Height != 4 {
		t.Errorf("frame event = %+v", ev)
	}

	s.PublishClosed(errors.New("capture target is no longer available"))
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != EventClosed || !strings.Contains(ev.Error, "no longer available") {
		t.Errorf("closed event = %+v", ev)
	}

	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("after close event err = %v, want normal closure", err)
	}
}

func TestHub_PublishDoesNotBlock(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()
	for i := 0; i < 200; i++ {
		h.Publish(Event{Type: EventFrame, Sequence: uint64(i)})
	}
	if len(ch) != cap(ch) {
		t.Errorf("buffered %d events, want %d", len(ch), cap(ch))
	}
	h.Unsubscribe(ch)
	h.Unsubscribe(ch)
	if h.Count() != 0 {
		t.Errorf("Count() = %d", h.Count())
	}

	h.Close()
	late := h.Subscribe()
	if _, ok := <-late; ok {
		t.Error("subscription after Close is open")
	}
}
