package metrics

import (
	"time"
)

// Collector defines the interface for collecting ledger service metrics.
// Implementations can export metrics to various backends (Prometheus, in-memory for tests).
type Collector interface {
	// Store calls (through the resilience layer)
	RecordStoreOp(op string, success bool, duration time.Duration)

	// Circuit breaker
	RecordCircuitState(name string, state CircuitState)

	// Cache chain
	RecordCacheGet(layer string, hit bool, duration time.Duration)

	// Ledger engine
	RecordLedgerOp(op string, outcome string)
	RecordBalance(balance float64)

	// Validation gate
	RecordValidationFailure(field string)
}

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed means the circuit breaker is allowing requests through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the circuit breaker is blocking requests.
	CircuitOpen
	// CircuitHalfOpen means the circuit breaker is testing if the store has recovered.
	CircuitHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Outcome labels used with RecordLedgerOp.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// NoOpCollector is the default collector when metrics are not needed.
type NoOpCollector struct{}

// RecordStoreOp does nothing.
func (NoOpCollector) RecordStoreOp(op string, success bool, duration time.Duration) {}

// RecordCircuitState does nothing.
func (NoOpCollector) RecordCircuitState(name string, state CircuitState) {}

// RecordCacheGet does nothing.
func (NoOpCollector) RecordCacheGet(layer string, hit bool, duration time.Duration) {}

// RecordLedgerOp does nothing.
func (NoOpCollector) RecordLedgerOp(op string, outcome string) {}

// RecordBalance does nothing.
func (NoOpCollector) RecordBalance(balance float64) {}

// RecordValidationFailure does nothing.
func (NoOpCollector) RecordValidationFailure(field string) {}

// OrNoOp returns c, or NoOpCollector when c is nil.
func OrNoOp(c Collector) Collector {
	if c == nil {
		return NoOpCollector{}
	}
	return c
}
