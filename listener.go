package main

import (
	"bufio"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// heartbeatInterval is how often a connected session publishes a
// telemetry heartbeat while an MQTT broker is configured (SPEC_FULL.md
// 3.1: "on every Engine state transition and on a periodic heartbeat").
const heartbeatInterval = 15 * time.Second

// maxFrameBytes bounds a single request line so a misbehaving client
// cannot exhaust memory with an unterminated frame (spec.md 8: "Requests
// longer than any reasonable bound... do not crash the server").
const maxFrameBytes = 64 * 1024

// SessionListener binds one TCP endpoint and enforces single-client
// admission (spec.md 4.F, invariant I6): a process-wide flag guards
// acceptance, set when a session begins handling and cleared on
// teardown, the same role the teacher's SessionManager plays for a
// single radiod resource slot, generalized here from "N sessions" down
// to "exactly one".
type SessionListener struct {
	addr         string
	store        *ParameterStore
	serverName   string
	timeScale    float64
	cmdRateLimit int
	telemetry    *TelemetryPublisher // optional, nil when no MQTT broker is configured
	metrics      *Metrics            // optional, nil when no metrics listener is configured
	health       *HealthReporter     // optional, nil disables staleness tracking
	monitor      *Monitor            // optional, nil disables the dashboard push feed

	mu     sync.Mutex
	busy   bool
	active *Session
}

// NewSessionListener returns a listener bound to addr, not yet serving.
// telemetry, metrics, health and monitor may be nil. cmdRateLimit <= 0
// disables per-session command throttling.
func NewSessionListener(addr string, store *ParameterStore, serverName string, timeScale float64, cmdRateLimit int, telemetry *TelemetryPublisher, metrics *Metrics, health *HealthReporter, monitor *Monitor) *SessionListener {
	return &SessionListener{addr: addr, store: store, serverName: serverName, timeScale: timeScale, cmdRateLimit: cmdRateLimit, telemetry: telemetry, metrics: metrics, health: health, monitor: monitor}
}

// CurrentStatus returns the active session's engine status, or an Idle
// snapshot when no client is connected (I6: at most one session at a
// time). It backs the optional /health endpoint's staleness check.
func (l *SessionListener) CurrentStatus() EngineStatus {
	l.mu.Lock()
	active := l.active
	l.mu.Unlock()
	if active == nil {
		return EngineStatus{State: EngineIdle}
	}
	return active.engine.Status()
}

// Serve accepts connections until ln is closed or accept fails fatally.
func (l *SessionListener) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go l.handleConn(conn)
	}
}

func (l *SessionListener) handleConn(conn net.Conn) {
	defer conn.Close()

	l.mu.Lock()
	if l.busy {
		l.mu.Unlock()
		// Refuse at accept time: spec.md 4.F allows either this or a
		// protocol-level rejection of the first frame. Refusing outright
		// keeps the single admitted session's framing unambiguous.
		log.Printf("session listener: rejecting connection from %s, already serving %s",
			conn.RemoteAddr(), l.active.ID)
		return
	}
	sess := NewSession(conn, l.store, l.serverName, l.timeScale, l.cmdRateLimit, l.telemetry, l.metrics, l.health, l.monitor)
	l.busy = true
	l.active = sess
	l.mu.Unlock()

	l.metrics.SetConnected(true)
	log.Printf("[%s] session started from %s", sess.ID, conn.RemoteAddr())
	sess.Run()
	log.Printf("[%s] session ended", sess.ID)

	l.mu.Lock()
	l.busy = false
	l.active = nil
	l.mu.Unlock()
	l.metrics.SetConnected(false)
}

// Session owns one TCP connection's read-line loop, its Dispatcher, and
// the Engine backing that dispatcher's acquisition state. One Engine is
// created per Session and discarded on teardown (spec.md 4.C).
type Session struct {
	ID   string
	conn net.Conn

	engine     *Engine
	dispatcher *Dispatcher
	rateLimit  *RateLimiter
	telemetry  *TelemetryPublisher // optional, nil when no MQTT broker is configured
}

// NewSession constructs a Session ready for Run. The uuid gives each
// session a correlation id usable in logs and telemetry envelopes, the
// same role it plays as Session.ID in the teacher's session.go.
func NewSession(conn net.Conn, store *ParameterStore, serverName string, timeScale float64, cmdRateLimit int, telemetry *TelemetryPublisher, metrics *Metrics, health *HealthReporter, monitor *Monitor) *Session {
	id := uuid.NewString()
	engine := NewEngine(timeScale, id)
	if telemetry != nil {
		engine.onTransition = func(from, to EngineState) {
			telemetry.PublishStateTransition(id, from.String(), to.String())
		}
	}
	if monitor != nil {
		prevTransition := engine.onTransition
		engine.onTransition = func(from, to EngineState) {
			if prevTransition != nil {
				prevTransition(from, to)
			}
			// onTransition runs with the engine's mutex held, so the
			// snapshot is taken on a separate goroutine.
			go monitor.Publish(engine)
		}
	}
	if health != nil {
		engine.onSample = health.RecordSample
	}
	if monitor != nil {
		prevSample := engine.onSample
		engine.onSample = func() {
			if prevSample != nil {
				prevSample()
			}
			monitor.Publish(engine)
		}
	}
	if metrics != nil {
		prevTransition := engine.onTransition
		engine.onTransition = func(from, to EngineState) {
			if prevTransition != nil {
				prevTransition(from, to)
			}
			go func() {
				metrics.ObserveEngineStatus(engine.Status(), engine.BufferLen())
			}()
		}
		prevSample := engine.onSample
		engine.onSample = func() {
			if prevSample != nil {
				prevSample()
			}
			metrics.ObserveEngineStatus(engine.Status(), engine.BufferLen())
		}
	}
	return &Session{
		ID:         id,
		conn:       conn,
		engine:     engine,
		dispatcher: NewDispatcher(engine, store, serverName, metrics),
		rateLimit:  NewRateLimiter(cmdRateLimit),
		telemetry:  telemetry,
	}
}

// Run executes the read-line loop until Disconnect, EOF, or a fatal I/O
// error, then performs the teardown sequence: cancel generator, release
// admission slot (the caller does this once Run returns), close socket
// (deferred by the caller too; Run itself only stops reading and
// ensures the engine is quiesced).
func (s *Session) Run() {
	defer s.engine.Disconnect()

	stopHeartbeat := s.startHeartbeat()
	defer stopHeartbeat()

	reader := bufio.NewReaderSize(s.conn, maxFrameBytes)
	writer := bufio.NewWriter(s.conn)

	for {
		line, tooLong, err := readFrame(reader)
		if err != nil {
			return
		}
		if tooLong {
			if _, err := writer.WriteString(FormatErrorResponse(malformedReqID, errUnknownMessageFormat()) + "\n"); err != nil {
				return
			}
			if err := writer.Flush(); err != nil {
				return
			}
			continue
		}
		if line == "" {
			continue
		}

		s.rateLimit.Wait()
		response, shouldClose := s.dispatchLine(line)

		if _, err := writer.WriteString(response + "\n"); err != nil {
			return
		}
		if err := writer.Flush(); err != nil {
			return
		}
		if shouldClose {
			return
		}
	}
}

// startHeartbeat publishes a periodic telemetry heartbeat for the
// lifetime of the session when an MQTT broker is configured, and
// returns a function that stops it (SPEC_FULL.md 3.1).
func (s *Session) startHeartbeat() func() {
	if s.telemetry == nil {
		return func() {}
	}
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.telemetry.PublishHeartbeat(s.ID, s.engine.Status())
			case <-stop:
				return
			}
		}
	}()
	return func() { close(stop) }
}

func (s *Session) dispatchLine(line string) (string, bool) {
	req, perr := ParseRequestLine(line)
	if perr != nil {
		return FormatErrorResponse(malformedReqID, perr), false
	}
	return s.dispatcher.Handle(req)
}

// readFrame reads one LF-terminated line, tolerating a CR immediately
// before the LF. A frame exceeding maxFrameBytes is reported via the
// tooLong flag rather than a fatal error, so the session stays alive
// and the caller can answer with a conformant Error:4 (spec.md 8:
// "Requests longer than any reasonable bound... do not crash the
// server; they either parse or produce Error:4").
func readFrame(reader *bufio.Reader) (line string, tooLong bool, err error) {
	slice, err := reader.ReadSlice('\n')
	if err == bufio.ErrBufferFull {
		// Discard the rest of the oversized frame without buffering it.
		for err == bufio.ErrBufferFull {
			_, err = reader.ReadSlice('\n')
		}
		if err != nil {
			return "", false, err
		}
		return "", true, nil
	}
	if err != nil {
		return "", false, err
	}
	raw := strings.TrimSuffix(string(slice), "\n")
	raw = strings.TrimSuffix(raw, "\r")
	return raw, false, nil
}
