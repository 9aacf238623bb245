package resilience

import (
	"context"
	"errors"
	"time"

	"cheque-ledger/pkg/logging"
	"cheque-ledger/pkg/metrics"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var (
	// ErrCircuitOpen is returned while the breaker rejects calls.
	ErrCircuitOpen = errors.New("resilience: circuit breaker open")

	// ErrTimeout is returned when a call exceeds the configured timeout.
	ErrTimeout = errors.New("resilience: operation timeout")
)

// IsCircuitOpen reports whether err came from an open breaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

// IsTimeout reports whether err is a call timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// guard runs calls through a gobreaker breaker with a timeout.
type guard struct {
	name     string
	cb       *gobreaker.CircuitBreaker
	timeout  time.Duration
	expected func(error) bool
	metrics  metrics.Collector
	logger   *logging.Logger

	// recordOps reports every call through RecordStoreOp.
	recordOps bool
}

// newGuard builds a guard. expected reports errors that are normal
// outcomes and must not count against the breaker.
func newGuard(name string, cfg Config, expected func(error) bool, collector metrics.Collector, logger *logging.Logger) *guard {
	g := &guard{
		name:     name,
		timeout:  cfg.Timeout,
		expected: expected,
		metrics:  metrics.OrNoOp(collector),
		logger:   logging.OrNop(logger).Named("resilience").With(zap.String("target", name)),
	}

	g.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.Breaker.MaxRequests,
		Interval:    cfg.Breaker.Interval,
		Timeout:     cfg.Breaker.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return cfg.Breaker.ReadyToTrip(Counts{
				Requests:             c.Requests,
				TotalSuccesses:       c.TotalSuccesses,
				TotalFailures:        c.TotalFailures,
				ConsecutiveSuccesses: c.ConsecutiveSuccesses,
				ConsecutiveFailures:  c.ConsecutiveFailures,
			})
		},
		IsSuccessful: func(err error) bool {
			return err == nil || expected(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.logger.Warn("circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			g.metrics.RecordCircuitState(name, circuitState(to))
		},
	})

	g.metrics.RecordCircuitState(name, metrics.CircuitClosed)
	g.logger.Info("circuit breaker initialized",
		zap.Duration("timeout", cfg.Timeout),
		zap.Uint32("max_requests", cfg.Breaker.MaxRequests),
		zap.Duration("open_timeout", cfg.Breaker.OpenTimeout),
	)

	return g
}

func circuitState(s gobreaker.State) metrics.CircuitState {
	switch s {
	case gobreaker.StateOpen:
		return metrics.CircuitOpen
	case gobreaker.StateHalfOpen:
		return metrics.CircuitHalfOpen
	default:
		return metrics.CircuitClosed
	}
}

// State returns the breaker state.
func (g *guard) State() metrics.CircuitState {
	return circuitState(g.cb.State())
}

// run executes fn through the breaker and maps breaker and deadline
// failures to ErrCircuitOpen and ErrTimeout.
func (g *guard) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	start := time.Now()

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	_, err := g.cb.Execute(func() (any, error) {
		return nil, fn(ctx)
	})

	duration := time.Since(start)

	switch {
	case err == nil:
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		g.logger.Warn("circuit breaker open, request rejected", zap.String("operation", op))
		err = ErrCircuitOpen
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		g.logger.Warn("operation timeout",
			zap.String("operation", op),
			zap.Duration("timeout", g.timeout),
			zap.Duration("elapsed", duration),
		)
		err = ErrTimeout
	}

	if g.recordOps {
		g.metrics.RecordStoreOp(op, err == nil || g.expected(err), duration)
	}
	return err
}
