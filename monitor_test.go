package main

import "testing"

func TestMonitorPublishFansOutToSubscribers(t *testing.T) {
	m := NewMonitor()
	ch1 := m.subscribe()
	ch2 := m.subscribe()
	defer m.unsubscribe(ch1)
	defer m.unsubscribe(ch2)

	e := NewEngine(1, "test")
	if err := e.Define(validFATSpec()); err != nil {
		t.Fatalf("Define: %v", err)
	}

	m.Publish(e)

	select {
	case frame := <-ch1:
		if frame.State != "idle" {
			t.Errorf("frame.State = %q, want idle", frame.State)
		}
	default:
		t.Fatal("first subscriber did not receive a published frame")
	}
	select {
	case <-ch2:
	default:
		t.Fatal("second subscriber did not receive a published frame")
	}
}

func TestMonitorPublishOnNilIsSafe(t *testing.T) {
	var m *Monitor
	e := NewEngine(1, "test")
	m.Publish(e) // must not panic
}

func TestMonitorUnsubscribeStopsDelivery(t *testing.T) {
	m := NewMonitor()
	ch := m.subscribe()
	m.unsubscribe(ch)

	if _, ok := <-ch; ok {
		t.Error("an unsubscribed channel should be closed, not yield a value")
	}
}
