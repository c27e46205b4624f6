package main

import (
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// HealthStatus is a process-level liveness snapshot, the generalization of
// the teacher's DecoderHealthStatus down from "N decoder bands" to "one
// acquisition engine": healthy unless the engine is stuck in Running/Paused
// with no new sample in the stale threshold.
type HealthStatus struct {
	Healthy        bool      `json:"healthy"`
	State          string    `json:"state"`
	AcquiredPoints int       `json:"acquired_points"`
	Issues         []string  `json:"issues"`
	CPUPercent     float64   `json:"cpu_percent"`
	RSSBytes       uint64    `json:"rss_bytes"`
	LastUpdateTime time.Time `json:"last_update_time"`
}

// staleThreshold bounds how long the engine may sit in Running or Paused
// without a new sample before health reporting calls it unhealthy.
const staleThreshold = 30 * time.Second

// HealthReporter samples the running process's own resource usage
// (grounded on the teacher's decoder_health.go staleness checks, generalized
// to gopsutil/v3 for CPU/RSS the way dastard's heartbeat samples client
// backlog) and combines it with the engine's last-sample timestamp.
type HealthReporter struct {
	proc *process.Process

	mu           sync.Mutex
	lastSampleAt time.Time
}

// NewHealthReporter binds to the current process. Sampling failures are
// logged by the caller; a nil *process.Process is tolerated by Snapshot.
func NewHealthReporter() (*HealthReporter, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &HealthReporter{proc: proc, lastSampleAt: time.Now()}, nil
}

// RecordSample marks that the engine produced a new data point just now.
func (h *HealthReporter) RecordSample() {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.lastSampleAt = time.Now()
	h.mu.Unlock()
}

// Snapshot reports current process resource usage plus engine staleness.
func (h *HealthReporter) Snapshot(st EngineStatus) HealthStatus {
	status := HealthStatus{
		Healthy:        true,
		State:          st.State.String(),
		AcquiredPoints: st.AcquiredSamples,
		Issues:         make([]string, 0),
		LastUpdateTime: time.Now(),
	}

	if h != nil && h.proc != nil {
		if cpu, err := h.proc.CPUPercent(); err == nil {
			status.CPUPercent = cpu
		}
		if mem, err := h.proc.MemoryInfo(); err == nil && mem != nil {
			status.RSSBytes = mem.RSS
		}
	}

	running := st.State == EngineRunning || st.State == EnginePaused
	if running && h != nil {
		h.mu.Lock()
		elapsed := time.Since(h.lastSampleAt)
		h.mu.Unlock()
		if elapsed > staleThreshold {
			status.Healthy = false
			status.Issues = append(status.Issues, "no new sample in "+elapsed.Round(time.Second).String())
		}
	}

	return status
}
