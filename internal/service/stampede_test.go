package service

import (
	"sync"
	"testing"
)

// TestMissTracker_BeginDone verifies per-key counting and cleanup.
func TestMissTracker_BeginDone(t *testing.T) {
	m := newMissTracker()

	if got := m.begin("karachi"); got != 1 {
		t.Errorf("begin first = %d, want 1", got)
	}
	if got := m.begin("karachi"); got != 2 {
		t.Errorf("begin second = %d, want 2", got)
	}
	if got := m.begin("lahore"); got != 1 {
		t.Errorf("begin other key = %d, want 1", got)
	}

	m.done("karachi")
	m.done("karachi")
	m.done("karachi") // extra done is a no-op
	if got := m.inFlight("karachi"); got != 0 {
		t.Errorf("inFlight after done = %d, want 0", got)
	}
	if _, ok := m.active["karachi"]; ok {
		t.Error("key not removed after last done")
	}
}

// TestMissTracker_Concurrent verifies the tracker is safe under parallel use.
func TestMissTracker_Concurrent(t *testing.T) {
	m := newMissTracker()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.begin("quetta")
			m.done("quetta")
		}()
	}
	wg.Wait()
	if got := m.inFlight("quetta"); got != 0 {
		t.Errorf("inFlight = %d, want 0", got)
	}
}
