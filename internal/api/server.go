package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bryanchriswhite/CaptureKit/internal/display"
	"github.com/bryanchriswhite/CaptureKit/internal/frame"
	"github.com/bryanchriswhite/CaptureKit/internal/logger"
	"github.com/bryanchriswhite/CaptureKit/internal/output"
	"github.com/bryanchriswhite/CaptureKit/internal/session"
	"github.com/bryanchriswhite/CaptureKit/internal/window"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Version is reported by the health endpoint
const Version = "0.1.0"

// WindowSource enumerates top-level windows
type WindowSource interface {
	ListWindows() ([]*window.Info, error)
	GetFocusedWindow() (*window.Info, error)
}

// MonitorSource enumerates attached monitors
type MonitorSource interface {
	List() []display.Monitor
}

// SessionView is the part of a capture session the API exposes
type SessionView interface {
	Stats() session.Stats
	Stop()
}

// Options wires the server to its collaborators. Any of them may be nil;
// the matching routes then answer 503.
type Options struct {
	Windows  WindowSource
	Monitors MonitorSource
	Session  SessionView
	Stream   *output.MJPEGOutput
}

// Server represents the HTTP API server
type Server struct {
	router   *mux.Router
	opts     Options
	events   *Hub
	upgrader websocket.Upgrader
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	s := &Server{
		router: mux.NewRouter(),
		opts:   opts,
		events: NewHub(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for development
			},
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Desktop enumeration
	api.HandleFunc("/windows", s.handleGetWindows).Methods("GET")
	api.HandleFunc("/windows/focused", s.handleGetFocusedWindow).Methods("GET")
	api.HandleFunc("/monitors", s.handleGetMonitors).Methods("GET")

	// Session control
	api.HandleFunc("/session", s.handleGetSession).Methods("GET")
	api.HandleFunc("/session/stop", s.handleStopSession).Methods("POST")
	api.HandleFunc("/session/events", s.handleSessionEvents)

	// Stream
	if s.opts.Stream != nil {
		api.HandleFunc("/stream/stats", s.handleStreamStats).Methods("GET")
		s.router.HandleFunc("/stream", s.opts.Stream.Handler()).Methods("GET")
		s.router.HandleFunc("/", s.opts.Stream.ViewerHandler()).Methods("GET")
	}
}

// Handler returns the root handler with CORS applied
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Events returns the session event hub
func (s *Server) Events() *Hub {
	return s.events
}

// PublishFrame announces a delivered frame to event subscribers
func (s *Server) PublishFrame(f *frame.Frame) {
	s.events.Publish(FrameEvent(f))
}

// PublishClosed announces the end of the session and disconnects subscribers
func (s *Server) PublishClosed(cause error) {
	s.events.Publish(ClosedEvent(cause))
	s.events.Close()
}

// Start serves on port until ctx is done, then shuts down gracefully
func (s *Server) Start(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithComponent("api").Info().
			Str("addr", "http://localhost"+srv.Addr).
			Msg("Starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.events.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithComponent("api").Debug().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// HTTP Handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}

func (s *Server) handleGetWindows(w http.ResponseWriter, r *http.Request) {
	if s.opts.Windows == nil {
		writeError(w, http.StatusServiceUnavailable, "window enumeration is not available")
		return
	}
	windows, err := s.opts.Windows.ListWindows()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if r.URL.Query().Get("visible") == "true" {
		visible := make([]*window.Info, 0, len(windows))
		for _, info := range windows {
			if info.Visible {
				visible = append(visible, info)
			}
		}
		windows = visible
	}
	if windows == nil {
		windows = []*window.Info{}
	}
	writeJSON(w, http.StatusOK, windows)
}

func (s *Server) handleGetFocusedWindow(w http.ResponseWriter, r *http.Request) {
	if s.opts.Windows == nil {
		writeError(w, http.StatusServiceUnavailable, "window enumeration is not available")
		return
	}
	info, err := s.opts.Windows.GetFocusedWindow()
	if err != nil {
		if errors.Is(err, window.ErrWindowNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleGetMonitors(w http.ResponseWriter, r *http.Request) {
	if s.opts.Monitors == nil {
		writeError(w, http.StatusServiceUnavailable, "monitor enumeration is not available")
		return
	}
	monitors := s.opts.Monitors.List()
	if monitors == nil {
		monitors = []display.Monitor{}
	}
	writeJSON(w, http.StatusOK, monitors)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if s.opts.Session == nil {
		writeError(w, http.StatusNotFound, "no capture session")
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Session.Stats())
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	if s.opts.Session == nil {
		writeError(w, http.StatusNotFound, "no capture session")
		return
	}
	s.opts.Session.Stop()
	logger.WithComponent("api").Info().Str("remote", r.RemoteAddr).Msg("Session stop requested")
	writeJSON(w, http.StatusAccepted, s.opts.Session.Stats())
}

func (s *Server) handleStreamStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Stream.Stats())
}

func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithComponent("api").Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	events := s.events.Subscribe()
	defer s.events.Unsubscribe(events)

	// Send the current state first
	if s.opts.Session != nil {
		st := s.opts.Session.Stats()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(Event{Type: EventState, State: st.State, Time: time.Now(), Error: st.Error}); err != nil {
			return
		}
	}

	pump(conn, events)
}
