package client

import (
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig holds circuit breaker parameters for the provider.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32        // probes allowed while half-open
	Interval         time.Duration // closed-state count reset period (0 = never)
	Timeout          time.Duration // open → half-open delay
	FailureThreshold uint32        // consecutive failures that open the breaker
	OnStateChange    func(name string, from, to gobreaker.State)
}

// NewCircuitBreaker builds a breaker that opens after FailureThreshold
// consecutive transport failures.
func NewCircuitBreaker(cfg BreakerConfig) *gobreaker.CircuitBreaker {
	if cfg.Name == "" {
		cfg.Name = "weather_api"
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	threshold := cfg.FailureThreshold
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: cfg.OnStateChange,
	})
}

// StateValue maps a breaker state to the circuitBreakerState gauge value.
func StateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
