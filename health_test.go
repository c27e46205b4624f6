package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthReporterSnapshotHealthyWhenIdle(t *testing.T) {
	h := &HealthReporter{}
	status := h.Snapshot(EngineStatus{State: EngineIdle})
	if !status.Healthy {
		t.Errorf("an idle engine should always report healthy, got issues %v", status.Issues)
	}
}

func TestHealthReporterNilIsSafe(t *testing.T) {
	var h *HealthReporter
	h.RecordSample() // must not panic
	status := h.Snapshot(EngineStatus{State: EngineRunning})
	if !status.Healthy {
		t.Errorf("a nil HealthReporter should not itself introduce an unhealthy verdict, got %v", status.Issues)
	}
}

func TestHealthReporterStaleWhileRunning(t *testing.T) {
	h := &HealthReporter{}
	h.lastSampleAt = h.lastSampleAt.Add(-2 * staleThreshold)
	status := h.Snapshot(EngineStatus{State: EngineRunning})
	if status.Healthy {
		t.Error("a running engine with no sample within staleThreshold should be unhealthy")
	}
	if len(status.Issues) == 0 {
		t.Error("an unhealthy snapshot should record at least one issue")
	}
}

func TestHealthReporterRecordSampleResetsStaleness(t *testing.T) {
	h := &HealthReporter{}
	h.lastSampleAt = h.lastSampleAt.Add(-2 * staleThreshold)
	h.RecordSample()
	status := h.Snapshot(EngineStatus{State: EngineRunning})
	if !status.Healthy {
		t.Error("RecordSample should clear staleness for a running engine")
	}
}

func TestHandleHealthServesIdleSnapshotWhenNoSessionActive(t *testing.T) {
	h := &HealthReporter{}
	store := NewParameterStore()
	listener := NewSessionListener("127.0.0.1:0", store, "KREIOS-150-SIM", 1, 0, nil, nil, nil, nil)

	rec := httptest.NewRecorder()
	handleHealth(rec, h, listener)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 when no session is connected", rec.Code)
	}
	var status HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decode health body: %v", err)
	}
	if status.State != "idle" {
		t.Errorf("State = %q, want idle", status.State)
	}
}
