package resilience

import (
	"context"
	"time"

	"cheque-ledger/pkg/cache"
	"cheque-ledger/pkg/logging"
	"cheque-ledger/pkg/metrics"

	"go.uber.org/zap"
)

// Layer wraps a cache.Layer with a circuit breaker and timeout.
// Cache misses count as successful calls.
type Layer struct {
	layer cache.Layer
	guard *guard
}

// NewLayer wraps layer.
func NewLayer(layer cache.Layer, cfg Config, collector metrics.Collector, logger *logging.Logger) *Layer {
	return &Layer{
		layer: layer,
		guard: newGuard(layer.Name(), cfg, cache.IsNotFound, collector, logger),
	}
}

// Name returns the wrapped layer's name.
func (l *Layer) Name() string {
	return l.layer.Name()
}

// State returns the breaker state.
func (l *Layer) State() metrics.CircuitState {
	return l.guard.State()
}

// Get reads through the breaker.
func (l *Layer) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := l.guard.run(ctx, "get", func(ctx context.Context) error {
		var err error
		value, err = l.layer.Get(ctx, key)
		return err
	})
	if err != nil {
		if !cache.IsNotFound(err) {
			l.guard.logger.Debug("get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, err
	}
	return value, nil
}

// Set writes through the breaker.
func (l *Layer) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return l.guard.run(ctx, "set", func(ctx context.Context) error {
		return l.layer.Set(ctx, key, value, ttl)
	})
}

// Delete deletes through the breaker.
func (l *Layer) Delete(ctx context.Context, key string) error {
	return l.guard.run(ctx, "delete", func(ctx context.Context) error {
		return l.layer.Delete(ctx, key)
	})
}

// Close closes the wrapped layer.
func (l *Layer) Close() error {
	return l.layer.Close()
}

var _ cache.Layer = (*Layer)(nil)
