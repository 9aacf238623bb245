// Package resilience wraps the store and the remote cache layers with a
// circuit breaker and per-call timeouts.
package resilience

import (
	"time"
)

// Config configures timeout and circuit breaker behavior.
type Config struct {
	// Timeout bounds every call. Zero disables it.
	Timeout time.Duration `yaml:"timeout"`

	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	// MaxRequests allowed through while half-open.
	MaxRequests uint32 `yaml:"max_requests"`

	// Interval after which the closed state clears its counts. Zero never clears.
	Interval time.Duration `yaml:"interval"`

	// OpenTimeout is how long the breaker stays open before going half-open.
	OpenTimeout time.Duration `yaml:"open_timeout"`

	// MinRequests before the failure ratio is considered.
	MinRequests uint32 `yaml:"min_requests"`

	// FailureRatio at or above which the breaker trips.
	FailureRatio float64 `yaml:"failure_ratio"`

	// ConsecutiveFailures trips the breaker regardless of the ratio.
	// Zero disables it.
	ConsecutiveFailures uint32 `yaml:"consecutive_failures"`
}

// Counts mirrors the breaker's request counters.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// DefaultConfig returns the defaults used for the store.
func DefaultConfig() Config {
	return Config{
		Timeout: 5 * time.Second,
		Breaker: BreakerConfig{
			MaxRequests:         5,
			Interval:            60 * time.Second,
			OpenTimeout:         30 * time.Second,
			MinRequests:         20,
			FailureRatio:        0.15,
			ConsecutiveFailures: 5,
		},
	}
}

// WithTimeout returns a copy of the config with the given call timeout.
func (c Config) WithTimeout(timeout time.Duration) Config {
	c.Timeout = timeout
	return c
}

// WithOpenTimeout returns a copy of the config with the given open period.
func (c Config) WithOpenTimeout(timeout time.Duration) Config {
	c.Breaker.OpenTimeout = timeout
	return c
}

// ReadyToTrip reports whether counts should open the breaker.
func (b BreakerConfig) ReadyToTrip(counts Counts) bool {
	if b.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= b.ConsecutiveFailures {
		return true
	}
	if b.FailureRatio <= 0 || counts.Requests < b.MinRequests || counts.Requests == 0 {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= b.FailureRatio
}
