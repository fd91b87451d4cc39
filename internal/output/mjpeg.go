package output

import (
	"bytes"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bryanchriswhite/CaptureKit/internal/encoder"
	"github.com/bryanchriswhite/CaptureKit/internal/frame"
	"github.com/bryanchriswhite/CaptureKit/internal/logger"
)

// Boundary separates the parts of the multipart stream.
const Boundary = "frame"

// MJPEGOutput streams frames as Motion JPEG over HTTP
type MJPEGOutput struct {
	config  Config
	enc     encoder.Encoder
	running bool
	mu      sync.RWMutex

	// Latest encoded frame, sent to clients as soon as they connect
	frameMu    sync.RWMutex
	latest     []byte
	lastUpdate time.Time
	width      int
	height     int

	// Connected clients
	clientsMu sync.RWMutex
	clients   map[chan []byte]struct{}

	// Stats
	frameCount uint64
	dropped    uint64
	startTime  time.Time
}

// Stats is a snapshot of the MJPEG output
type Stats struct {
	Running    bool      `json:"running"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	FPS        float64   `json:"fps"`
	Frames     uint64    `json:"frames"`
	Dropped    uint64    `json:"dropped"`
	Clients    int       `json:"clients"`
	LastUpdate time.Time `json:"last_update,omitempty"`
}

// NewMJPEGOutput creates a new MJPEG stream output
func NewMJPEGOutput(config Config) *MJPEGOutput {
	quality := config.JPEGQuality
	if quality <= 0 {
		quality = encoder.DefaultJPEGQuality
	}
	return &MJPEGOutput{
		config:  config,
		enc:     encoder.Standard{Options: encoder.Options{JPEGQuality: quality}},
		clients: make(map[chan []byte]struct{}),
	}
}

// Start initializes the MJPEG output. The HTTP handler is mounted separately via Handler().
func (m *MJPEGOutput) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("MJPEG output already running")
	}

	m.running = true
	m.startTime = time.Now()
	m.frameCount = 0
	m.dropped = 0

	logger.WithComponent("mjpeg").Info().Int("fps", m.config.FPS).Msg("Output started")
	return nil
}

// Stop disconnects all clients
func (m *MJPEGOutput) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false

	m.clientsMu.Lock()
	for ch := range m.clients {
		close(ch)
	}
	m.clients = make(map[chan []byte]struct{})
	m.clientsMu.Unlock()

	logger.WithComponent("mjpeg").Info().Uint64("frames", m.frameCount).Msg("Output stopped")
	return nil
}

// WriteFrame encodes the frame once and fans it out to every client
func (m *MJPEGOutput) WriteFrame(f *frame.Frame) error {
	if !m.IsRunning() {
		return fmt.Errorf("MJPEG output not running")
	}

	var buf bytes.Buffer
	if err := m.enc.Encode(&buf, f.Image(), encoder.JPEG); err != nil {
		return fmt.Errorf("failed to encode JPEG: %w", err)
	}
	jpegData := buf.Bytes()

	m.frameMu.Lock()
	m.latest = jpegData
	m.lastUpdate = time.Now()
	m.width, m.height = f.Width(), f.Height()
	m.frameMu.Unlock()

	m.mu.Lock()
	m.frameCount++
	m.mu.Unlock()

	var dropped uint64
	m.clientsMu.RLock()
	for ch := range m.clients {
		select {
		case ch <- jpegData:
		default:
			// Client is slow, skip this frame
			dropped++
		}
	}
	m.clientsMu.RUnlock()

	if dropped > 0 {
		m.mu.Lock()
		m.dropped += dropped
		m.mu.Unlock()
	}
	return nil
}

// Name returns the output type name
func (m *MJPEGOutput) Name() string {
	return "MJPEG HTTP Stream"
}

// IsRunning returns true if the output is active
func (m *MJPEGOutput) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// ClientCount returns the number of connected stream clients
func (m *MJPEGOutput) ClientCount() int {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	return len(m.clients)
}

// Stats returns a snapshot of the output counters
func (m *MJPEGOutput) Stats() Stats {
	m.mu.RLock()
	st := Stats{Running: m.running, Frames: m.frameCount, Dropped: m.dropped}
	startTime := m.startTime
	m.mu.RUnlock()

	m.frameMu.RLock()
	st.Width, st.Height, st.LastUpdate = m.width, m.height, m.lastUpdate
	m.frameMu.RUnlock()

	st.Clients = m.ClientCount()

	if st.Running && !startTime.IsZero() {
		if elapsed := time.Since(startTime).Seconds(); elapsed > 0 {
			st.FPS = float64(st.Frames) / elapsed
		}
	}
	return st
}

// Handler returns an http.Handler for the MJPEG stream.
// Mount this at /stream or similar endpoint.
func (m *MJPEGOutput) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !m.IsRunning() {
			http.Error(w, "stream is not running", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+Boundary)
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		w.Header().Set("Connection", "close")

		frameChan := make(chan []byte, 2)

		m.frameMu.RLock()
		if m.latest != nil {
			frameChan <- m.latest
		}
		m.frameMu.RUnlock()

		m.clientsMu.Lock()
		m.clients[frameChan] = struct{}{}
		clientCount := len(m.clients)
		m.clientsMu.Unlock()

		log := logger.WithComponent("mjpeg")
		log.Info().Int("clients", clientCount).Str("remote", r.RemoteAddr).Msg("Client connected")

		defer func() {
			m.clientsMu.Lock()
			delete(m.clients, frameChan)
			clientCount := len(m.clients)
			m.clientsMu.Unlock()
			log.Info().Int("clients", clientCount).Msg("Client disconnected")
		}()

		for {
			select {
			case <-r.Context().Done():
				return
			case jpegData, ok := <-frameChan:
				if !ok {
					return
				}
				if err := writePart(w, jpegData); err != nil {
					return
				}
			}
		}
	}
}

func writePart(w http.ResponseWriter, jpegData []byte) error {
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", Boundary, len(jpegData)); err != nil {
		return err
	}
	if _, err := w.Write(jpegData); err != nil {
		return err
	}
	if _, err := fmt.Fprint(w, "\r\n"); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// ViewerHandler returns a minimal page that displays the stream
func (m *MJPEGOutput) ViewerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(viewerHTML))
	}
}

const viewerHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>CaptureKit</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body { background: #000; display: flex; justify-content: center; align-items: center; min-height: 100vh; }
        img { width: 100vw; height: 100vh; object-fit: contain; display: block; }
    </style>
</head>
<body>
    <img src="/stream" alt="CaptureKit live capture">
</body>
</html>`
