// Package lifecycle tracks process-wide state the health endpoint reports on.
package lifecycle

import (
	"sync/atomic"
	"time"
)

var (
	shuttingDown atomic.Bool
	startedAt    atomic.Int64
)

func init() {
	MarkStarted(time.Now())
}

// SetShuttingDown flips the draining flag. main sets it on SIGTERM/SIGINT so
// /health answers 503 shutting-down while in-flight requests finish.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown reports whether the process is draining.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

// MarkStarted records the moment the service began serving.
func MarkStarted(t time.Time) {
	startedAt.Store(t.UnixNano())
}

// Uptime returns the time elapsed since MarkStarted.
func Uptime() time.Duration {
	return time.Since(time.Unix(0, startedAt.Load()))
}
