package main

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// EngineState is the acquisition state machine's observable state
// (spec.md 4.C).
type EngineState int

const (
	EngineIdle EngineState = iota
	EngineValidated
	EngineRunning
	EnginePaused
	EngineFinished
	EngineAborted
	EngineError
)

// String returns the lowercase wire spelling used in ControllerStatus.
func (s EngineState) String() string {
	switch s {
	case EngineIdle:
		return "idle"
	case EngineValidated:
		return "validated"
	case EngineRunning:
		return "running"
	case EnginePaused:
		return "paused"
	case EngineFinished:
		return "finished"
	case EngineAborted:
		return "aborted"
	case EngineError:
		return "error"
	default:
		return "unknown"
	}
}

// EngineStatus is the snapshot returned by GetAcquisitionStatus.
type EngineStatus struct {
	State            EngineState
	AcquiredSamples  int
	ElapsedSeconds   float64
	CurrentIteration int
	ErrorMessage     string
}

// Engine owns the spectrum spec, sample buffer, progress counter, engine
// state, and the background generator task (spec.md 4.C). One Engine is
// created per Session and discarded on disconnect.
type Engine struct {
	mu sync.Mutex

	spec      *SpectrumSpec
	defined   bool
	validated bool
	state     EngineState
	errMsg    string

	buffer    []float64
	progress  int
	startTime time.Time

	genDone chan struct{}

	timeScale     float64
	safeStateFlag bool

	onTransition func(from, to EngineState) // optional telemetry/metrics hook
	onSample     func()                     // optional health/metrics hook, called per produced sample
	label        string                     // for log lines, e.g. session id
}

// NewEngine returns an idle Engine. timeScale > 1 accelerates dwell-time
// sleeps for testing, per spec.md 9.
func NewEngine(timeScale float64, label string) *Engine {
	if timeScale <= 0 {
		timeScale = 1
	}
	return &Engine{state: EngineIdle, timeScale: timeScale, label: label}
}

func (e *Engine) setState(s EngineState) {
	prev := e.state
	e.state = s
	if prev != s {
		log.Printf("[%s] engine state %s -> %s", e.label, prev, s)
		if e.onTransition != nil {
			e.onTransition(prev, s)
		}
	}
}

// Define validates and stores a new spectrum spec (spec.md 4.C "define").
func (e *Engine) Define(spec *SpectrumSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.spec = spec
	e.defined = true
	e.validated = false
	e.buffer = nil
	e.progress = 0
	e.setState(EngineIdle)
	return nil
}

// ErrNoSpectrumDefined is returned by Validate when no spec was defined.
var ErrNoSpectrumDefined = fmt.Errorf("no spectrum defined")

// Validate marks the defined spec validated and returns a copy of it for
// the parameter echo; callers derive S/total_values from that copy.
func (e *Engine) Validate() (*SpectrumSpec, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.defined {
		return nil, ErrNoSpectrumDefined
	}
	e.validated = true
	e.setState(EngineValidated)
	specCopy := *e.spec
	return &specCopy, nil
}

// ErrInvalidStateTransition is returned by Clear outside a clearable state.
var ErrInvalidStateTransition = fmt.Errorf("invalid state for this operation")

// Clear discards the spec and buffer from {Idle, Validated, Finished,
// Aborted, Error}.
func (e *Engine) Clear() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case EngineIdle, EngineValidated, EngineFinished, EngineAborted, EngineError:
	default:
		return ErrInvalidStateTransition
	}
	e.spec = nil
	e.defined = false
	e.validated = false
	e.buffer = nil
	e.progress = 0
	e.errMsg = ""
	e.setState(EngineIdle)
	return nil
}

// ErrNotValidated is returned by Start when the spec was never validated.
var ErrNotValidated = fmt.Errorf("spectrum not validated")

// ErrAlreadyRunning is returned by Start when an acquisition is already in progress.
var ErrAlreadyRunning = fmt.Errorf("acquisition already running")

// Start reserves the sample buffer and launches the background generator.
func (e *Engine) Start(safeStateAfter bool) error {
	e.mu.Lock()
	if !e.validated {
		e.mu.Unlock()
		return ErrNotValidated
	}
	switch e.state {
	case EngineValidated, EngineFinished, EngineAborted:
	case EngineRunning, EnginePaused:
		e.mu.Unlock()
		return ErrAlreadyRunning
	default:
		e.mu.Unlock()
		return ErrNotValidated
	}

	spec := e.spec
	e.buffer = make([]float64, 0, spec.TotalValues())
	e.progress = 0
	e.errMsg = ""
	e.safeStateFlag = safeStateAfter
	e.startTime = time.Now()
	e.genDone = make(chan struct{})
	e.setState(EngineRunning)
	e.mu.Unlock()

	go func() {
		defer e.recoverGenerator()
		e.runGenerator(spec)
	}()
	return nil
}

func (e *Engine) recoverGenerator() {
	if r := recover(); r != nil {
		e.mu.Lock()
		e.errMsg = fmt.Sprintf("generator panic: %v", r)
		e.setState(EngineError)
		e.mu.Unlock()
		log.Printf("[%s] generator recovered from panic: %v", e.label, r)
	}
}

// ErrNotRunning is returned by Pause when no acquisition is running.
var ErrNotRunning = fmt.Errorf("no acquisition running")

// Pause requires Running.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != EngineRunning {
		return ErrNotRunning
	}
	e.setState(EnginePaused)
	return nil
}

// ErrNotPaused is returned by Resume when the engine isn't paused.
var ErrNotPaused = fmt.Errorf("acquisition not paused")

// Resume requires Paused.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != EnginePaused {
		return ErrNotPaused
	}
	e.setState(EngineRunning)
	return nil
}

// ErrNothingToAbort is returned by Abort outside {Running, Paused}.
var ErrNothingToAbort = fmt.Errorf("no acquisition to abort")

// Abort signals the generator and blocks until it quiesces.
func (e *Engine) Abort() error {
	e.mu.Lock()
	if e.state != EngineRunning && e.state != EnginePaused {
		e.mu.Unlock()
		return ErrNothingToAbort
	}
	e.setState(EngineAborted)
	done := e.genDone
	e.mu.Unlock()

	if done != nil {
		<-done
	}
	return nil
}

// Status returns a snapshot for GetAcquisitionStatus.
func (e *Engine) Status() EngineStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	elapsed := 0.0
	if !e.startTime.IsZero() {
		elapsed = time.Since(e.startTime).Seconds()
	}
	return EngineStatus{
		State:            e.state,
		AcquiredSamples:  e.progress,
		ElapsedSeconds:   elapsed,
		CurrentIteration: 1,
		ErrorMessage:     e.errMsg,
	}
}

// ErrInvalidRange is returned by Read for an out-of-bounds request.
var ErrInvalidRange = fmt.Errorf("invalid data range")

// Read returns buffer[from:to+1]. 0 <= from <= to < buffer_len is required.
func (e *Engine) Read(from, to int) ([]float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.buffer)
	if from < 0 || to < from || to >= n {
		return nil, ErrInvalidRange
	}
	out := make([]float64, to-from+1)
	copy(out, e.buffer[from:to+1])
	return out, nil
}

// BufferLen returns the number of values produced so far.
func (e *Engine) BufferLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.buffer)
}

// Tail returns up to the last n produced values, for monitoring dashboards
// that don't need the whole buffer.
func (e *Engine) Tail(n int) []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n > len(e.buffer) {
		n = len(e.buffer)
	}
	out := make([]float64, n)
	copy(out, e.buffer[len(e.buffer)-n:])
	return out
}

// Disconnect cancels any generator and resets the engine to Idle,
// regardless of prior state (spec.md 4.C "any --disconnect--> Idle").
func (e *Engine) Disconnect() {
	e.mu.Lock()
	running := e.state == EngineRunning || e.state == EnginePaused
	if running {
		e.setState(EngineAborted)
	}
	done := e.genDone
	e.mu.Unlock()

	if running && done != nil {
		<-done
	}

	e.mu.Lock()
	e.spec = nil
	e.defined = false
	e.validated = false
	e.buffer = nil
	e.progress = 0
	e.errMsg = ""
	e.setState(EngineIdle)
	e.mu.Unlock()
}

func (e *Engine) appendSample(value float64) {
	e.mu.Lock()
	e.buffer = append(e.buffer, value)
	e.mu.Unlock()
	if e.onSample != nil {
		e.onSample()
	}
}

func (e *Engine) advanceProgress(n int) {
	e.mu.Lock()
	e.progress = n
	e.mu.Unlock()
}

func (e *Engine) finishIfRunning() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == EngineRunning {
		e.setState(EngineFinished)
	}
}
