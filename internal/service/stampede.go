package service

import "sync"

// missTracker counts provider fetches in flight per city. The resolver does
// not deduplicate them; the count only feeds the stampede metric.
type missTracker struct {
	mu     sync.Mutex
	active map[string]int
}

func newMissTracker() *missTracker {
	return &missTracker{active: make(map[string]int)}
}

// begin registers a fetch for key and returns how many are now in flight, including this one.
// Pair every begin with a done.
func (m *missTracker) begin(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[key]++
	return m.active[key]
}

// done releases a fetch registered by begin.
func (m *missTracker) done(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch n := m.active[key]; {
	case n > 1:
		m.active[key] = n - 1
	case n == 1:
		delete(m.active, key)
	}
}

func (m *missTracker) inFlight(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[key]
}
