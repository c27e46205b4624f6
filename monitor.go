package main

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// monitorTailLength bounds how much of the sample buffer a status frame
// carries, enough for a dashboard sparkline without re-sending the whole
// acquisition on every tick.
const monitorTailLength = 64

// StatusFrame is the read-only snapshot pushed to monitor subscribers
// (SPEC_FULL.md 3.2).
type StatusFrame struct {
	State           string    `json:"state"`
	AcquiredSamples int       `json:"acquired_samples"`
	ElapsedSeconds  float64   `json:"elapsed_seconds"`
	BufferTail      []float64 `json:"buffer_tail"`
}

var monitorUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Monitor fans a single status stream out to any number of read-only
// websocket subscribers, adapted from the teacher's SpectrumManager
// subscriber-channel pattern in spectrum.go down to one publisher (the
// session's engine) instead of N spectrum channels.
type Monitor struct {
	mu          sync.Mutex
	subscribers map[chan StatusFrame]struct{}
}

// NewMonitor returns an idle Monitor ready to accept subscribers.
func NewMonitor() *Monitor {
	return &Monitor{subscribers: make(map[chan StatusFrame]struct{})}
}

// Publish builds a StatusFrame from an engine snapshot and fans it out to
// every connected subscriber, dropping the frame for any subscriber whose
// channel is full rather than blocking the caller.
func (m *Monitor) Publish(engine *Engine) {
	if m == nil {
		return
	}
	st := engine.Status()
	frame := StatusFrame{
		State:           st.State.String(),
		AcquiredSamples: st.AcquiredSamples,
		ElapsedSeconds:  st.ElapsedSeconds,
		BufferTail:      engine.Tail(monitorTailLength),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.subscribers {
		select {
		case ch <- frame:
		default:
		}
	}
}

func (m *Monitor) subscribe() chan StatusFrame {
	ch := make(chan StatusFrame, 4)
	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	m.mu.Unlock()
	return ch
}

func (m *Monitor) unsubscribe(ch chan StatusFrame) {
	m.mu.Lock()
	delete(m.subscribers, ch)
	m.mu.Unlock()
	close(ch)
}

// ServeHTTP upgrades the request to a websocket and streams StatusFrames
// until the client disconnects. Read-only: anything the client sends is
// discarded, and this endpoint has no effect on the TCP protocol's
// single-client admission rule (I6).
func (m *Monitor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := monitorUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("monitor: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ch := m.subscribe()
	defer m.unsubscribe(ch)

	go drainIncoming(conn)

	for frame := range ch {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		data, err := json.Marshal(frame)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// drainIncoming discards client messages so a dead connection's read side
// reports the close promptly.
func drainIncoming(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
