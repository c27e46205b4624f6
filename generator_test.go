package main

import (
	"testing"
	"time"
)

func TestSampleIntensityNonNegative(t *testing.T) {
	spec := validFATSpec()
	for s := 0; s < spec.NumSamples(); s++ {
		for v := 0; v < spec.ValuesPerSample; v++ {
			if got := sampleIntensity(spec, 0, s, v); got < 0 {
				t.Errorf("sampleIntensity(z=0, s=%d, v=%d) = %g, want >= 0 (I4)", s, v, got)
			}
		}
	}
}

func TestGeneratorNoiseIsBounded(t *testing.T) {
	for i := 0; i < 1000; i++ {
		n := generatorNoise()
		if n < -noiseFraction || n > noiseFraction {
			t.Fatalf("generatorNoise() = %g, want within +/-%g", n, noiseFraction)
		}
	}
}

func TestRunGeneratorFillsExpectedBufferLength(t *testing.T) {
	spec := validFATSpec()
	e := NewEngine(1000, "test")
	if err := e.Define(spec); err != nil {
		t.Fatalf("Define: %v", err)
	}
	if _, err := e.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := e.Start(false); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for e.Status().State == EngineRunning && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	st := e.Status()
	if st.State != EngineFinished {
		t.Fatalf("final state = %v, want Finished", st.State)
	}
	if got, want := e.BufferLen(), spec.TotalValues(); got != want {
		t.Errorf("BufferLen() = %d, want %d (Z*S*V)", got, want)
	}
	if st.AcquiredSamples != spec.NumSamples() {
		t.Errorf("AcquiredSamples = %d, want %d (completed samples in the final slice pass)", st.AcquiredSamples, spec.NumSamples())
	}
}

func TestRunGeneratorProgressStaysWithinSliceBound(t *testing.T) {
	spec := validFATSpec()
	spec.NumSlices = 3
	e := NewEngine(1, "test") // real-time dwell so the poller can observe mid-run progress
	if err := e.Define(spec); err != nil {
		t.Fatalf("Define: %v", err)
	}
	if _, err := e.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := e.Start(false); err != nil {
		t.Fatalf("Start: %v", err)
	}

	S := spec.NumSamples()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st := e.Status()
		if st.AcquiredSamples < 0 || st.AcquiredSamples > S {
			t.Fatalf("AcquiredSamples = %d, want within [0, %d] (spec.md 3/8: per-slice bound, Z=%d)", st.AcquiredSamples, S, spec.NumSlices)
		}
		if st.State == EngineFinished {
			break
		}
		time.Sleep(time.Millisecond)
	}

	st := e.Status()
	if st.State != EngineFinished {
		t.Fatalf("final state = %v, want Finished", st.State)
	}
	if got, want := e.BufferLen(), spec.TotalValues(); got != want {
		t.Errorf("BufferLen() = %d, want %d (Z*S*V)", got, want)
	}
}

func TestPauseStopsProgress(t *testing.T) {
	spec := validFATSpec()
	spec.DwellTime = 0.05 // slow enough to pause mid-scan even with timeScale 1
	e := NewEngine(1, "test")
	if err := e.Define(spec); err != nil {
		t.Fatalf("Define: %v", err)
	}
	if _, err := e.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := e.Start(false); err != nil {
		t.Fatalf("Start: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if err := e.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	before := e.Status().AcquiredSamples
	time.Sleep(100 * time.Millisecond)
	after := e.Status().AcquiredSamples
	if after != before {
		t.Errorf("AcquiredSamples changed from %d to %d while paused, want no progress", before, after)
	}

	if err := e.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	e.Disconnect()
}
