// Package traffic keeps sliding-window counts of weather lookup outcomes.
// The health handler derives the provider error rate from it and the metrics
// registry exposes request and denial counts as gauges.
package traffic

import (
	"sync"
	"time"
)

// Outcome classifies one recorded event.
type Outcome int

const (
	// Success is a lookup answered from cache or a successful provider fetch.
	Success Outcome = iota
	// ProviderError is a lookup that failed reaching the provider.
	ProviderError
	// Denied is a request rejected by the rate limiter.
	Denied
)

// retention bounds memory; windows longer than this are truncated.
const retention = 10 * time.Minute

var defaultTracker = NewTracker(time.Now)

// Record adds an outcome to the process-wide tracker.
func Record(o Outcome) {
	defaultTracker.Record(o)
}

// RequestCount returns the number of outcomes of any kind within the window.
func RequestCount(window time.Duration) int {
	return defaultTracker.RequestCount(window)
}

// DenialCount returns the number of rate-limit denials within the window.
func DenialCount(window time.Duration) int {
	return defaultTracker.DenialCount(window)
}

// ErrorRate returns (providerErrors, successes+providerErrors) within the window.
func ErrorRate(window time.Duration) (errors, total int) {
	return defaultTracker.ErrorRate(window)
}

// Reset clears the process-wide tracker. For tests only.
func Reset() {
	defaultTracker.Reset()
}

type event struct {
	at      time.Time
	outcome Outcome
}

// Tracker holds timestamped outcomes in arrival order.
type Tracker struct {
	mu     sync.Mutex
	now    func() time.Time
	events []event
}

// NewTracker returns a Tracker that reads time from now.
func NewTracker(now func() time.Time) *Tracker {
	return &Tracker{now: now}
}

// Record appends an outcome stamped with the current time.
func (t *Tracker) Record(o Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.events = append(t.events, event{at: now, outcome: o})
	t.pruneLocked(now)
}

// RequestCount returns all outcomes within the window.
func (t *Tracker) RequestCount(window time.Duration) int {
	n := 0
	t.each(window, func(event) { n++ })
	return n
}

// DenialCount returns Denied outcomes within the window.
func (t *Tracker) DenialCount(window time.Duration) int {
	n := 0
	t.each(window, func(e event) {
		if e.outcome == Denied {
			n++
		}
	})
	return n
}

// ErrorRate returns (errors, total) within the window; denials are excluded from total.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	t.each(window, func(e event) {
		switch e.outcome {
		case ProviderError:
			errors++
			total++
		case Success:
			total++
		}
	})
	return errors, total
}

// Reset drops all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = nil
}

// each calls fn for every event not older than window, newest last.
func (t *Tracker) each(window time.Duration, fn func(event)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.pruneLocked(now)
	cutoff := now.Add(-window)
	for i := len(t.events) - 1; i >= 0; i-- {
		if t.events[i].at.Before(cutoff) {
			break
		}
		fn(t.events[i])
	}
}

// pruneLocked drops events older than retention. Caller holds mu.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-retention)
	i := 0
	for ; i < len(t.events) && t.events[i].at.Before(cutoff); i++ {
	}
	if i > 0 {
		t.events = append(t.events[:0], t.events[i:]...)
	}
}
