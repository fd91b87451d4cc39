package api

import (
	"sync"
	"time"

	"github.com/bryanchriswhite/CaptureKit/internal/frame"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Event types sent on /api/session/events
const (
	EventState  = "state"
	EventFrame  = "frame"
	EventClosed = "closed"
)

// Event is one message on the session event stream
type Event struct {
	Type      string    `json:"type"`
	State     string    `json:"state,omitempty"`
	Sequence  uint64    `json:"sequence,omitempty"`
	Width     int       `json:"width,omitempty"`
	Height    int       `json:"height,omitempty"`
	Timestamp string    `json:"timestamp,omitempty"`
	Time      time.Time `json:"time"`
	Error     string    `json:"error,omitempty"`
}

// FrameEvent describes a delivered frame without its pixels
func FrameEvent(f *frame.Frame) Event {
	return Event{
		Type:      EventFrame,
		Sequence:  f.Sequence(),
		Width:     f.Width(),
		Height:    f.Height(),
		Timestamp: f.Timestamp().String(),
		Time:      f.CapturedAt(),
	}
}

// ClosedEvent reports the end of the session
func ClosedEvent(cause error) Event {
	ev := Event{Type: EventClosed, State: "closed", Time: time.Now()}
	if cause != nil {
		ev.Error = cause.Error()
	}
	return ev
}

// Hub fans events out to websocket subscribers. Slow subscribers miss events
// rather than stalling the publisher.
type Hub struct {
	mu     sync.RWMutex
	subs   map[chan Event]struct{}
	closed bool
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a new subscriber. The channel is closed by
// Unsubscribe or Close.
func (h *Hub) Subscribe() chan Event {
	ch := make(chan Event, 64)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch
	}
	h.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes a subscriber
func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

// Publish delivers ev to every subscriber without blocking
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close disconnects every subscriber
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		close(ch)
	}
	h.subs = make(map[chan Event]struct{})
}

// Count returns the number of subscribers
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// pump writes events to conn until the channel closes or the peer goes away.
// Only pump writes to conn.
func pump(conn *websocket.Conn, events <-chan Event) {
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			// Clients never send; reading surfaces close frames and pongs
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			return
		case ev, ok := <-events:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
