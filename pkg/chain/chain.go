// Package chain reads through an ordered list of cache layers, from the
// fastest to the source of truth, and warms the faster layers on a hit.
package chain

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"cheque-ledger/pkg/cache"
	"cheque-ledger/pkg/logging"
	"cheque-ledger/pkg/metrics"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Options configures a Chain.
type Options struct {
	// TTL distributes BaseTTL across layers. Defaults to UniformTTL.
	TTL TTLStrategy

	// BaseTTL is used when Set is called with a zero ttl and for warm-up.
	BaseTTL time.Duration

	Metrics metrics.Collector
	Logger  *logging.Logger
}

// generationStripes is the number of invalidation counters keys are
// hashed onto. Keys sharing a stripe only cost each other a warm-up.
const generationStripes = 256

// Chain manages cache layers ordered from fastest (L1) to slowest (LN).
type Chain struct {
	layers  []cache.Layer
	sf      singleflight.Group
	gens    [generationStripes]atomic.Uint64
	ttl     TTLStrategy
	baseTTL time.Duration
	metrics metrics.Collector
	logger  *logging.Logger
}

// New creates a chain. At least one layer is required.
func New(opts Options, layers ...cache.Layer) (*Chain, error) {
	if len(layers) == 0 {
		return nil, errors.New("chain: at least one layer required")
	}
	if opts.TTL == nil {
		opts.TTL = UniformTTL{}
	}
	if opts.BaseTTL <= 0 {
		opts.BaseTTL = time.Minute
	}

	return &Chain{
		layers:  append([]cache.Layer(nil), layers...),
		ttl:     opts.TTL,
		baseTTL: opts.BaseTTL,
		metrics: metrics.OrNoOp(opts.Metrics),
		logger:  logging.OrNop(opts.Logger).Named("chain"),
	}, nil
}

// Get walks the layers until one holds key and then writes the value to
// every faster layer before returning. Concurrent Gets of the same key
// share one walk. When every layer misses, the error of the deepest
// layer is returned.
func (c *Chain) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v, err, shared := c.sf.Do(key, func() (any, error) {
		return c.getWithFallback(ctx, key)
	})
	if err != nil {
		return nil, err
	}

	value := v.([]byte)
	if shared {
		value = append([]byte(nil), value...)
	}
	return value, nil
}

func (c *Chain) getWithFallback(ctx context.Context, key string) ([]byte, error) {
	lastErr := cache.ErrKeyNotFound
	gen := c.generation(key).Load()

	for i, layer := range c.layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		value, err := layer.Get(ctx, key)
		c.metrics.RecordCacheGet(layer.Name(), err == nil, time.Since(start))

		if err != nil {
			if !cache.IsNotFound(err) {
				c.logger.Warn("layer get failed, falling through",
					zap.String("layer", layer.Name()),
					zap.String("key", key),
					zap.String("error_type", cache.ClassifyError(err)),
					zap.Error(err),
				)
			}
			lastErr = err
			continue
		}

		if i > 0 {
			c.warm(ctx, key, value, i, gen)
		}
		return value, nil
	}

	return nil, lastErr
}

// warm writes value to the layers above hit. Failures are logged only.
//
// gen is the key's generation when the read started. If a Set or Delete
// bumps it before the warm-up is done, value may predate that write, so
// the warm-up stops and whatever it wrote is removed again.
func (c *Chain) warm(ctx context.Context, key string, value []byte, hit int, gen uint64) {
	counter := c.generation(key)

	for i := hit - 1; i >= 0; i-- {
		if counter.Load() != gen {
			break
		}
		layer := c.layers[i]
		ttl := c.ttl.TTL(i, len(c.layers), c.baseTTL)
		if err := layer.Set(ctx, key, value, ttl); err != nil {
			c.logger.Debug("warm-up failed",
				zap.String("layer", layer.Name()),
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}

	if counter.Load() == gen {
		return
	}

	c.logger.Debug("key changed during read, dropping warm-up", zap.String("key", key))
	for i := hit - 1; i >= 0; i-- {
		if err := c.layers[i].Delete(ctx, key); err != nil {
			c.logger.Warn("failed to drop stale warm-up",
				zap.String("layer", c.layers[i].Name()),
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}
}

// generation returns the invalidation counter of key.
func (c *Chain) generation(key string) *atomic.Uint64 {
	return &c.gens[xxhash.Sum64String(key)%generationStripes]
}

// Set writes value to every layer. All layers are attempted; the
// failures are combined.
func (c *Chain) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.baseTTL
	}
	c.generation(key).Add(1)

	var errs error
	for i, layer := range c.layers {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		layerTTL := c.ttl.TTL(i, len(c.layers), ttl)
		if err := layer.Set(ctx, key, value, layerTTL); err != nil {
			errs = multierr.Append(errs, cache.WrapError(err, layer.Name(), "set"))
		}
	}
	return errs
}

// Delete removes key from every layer. Reads of key already in flight
// will not write their result back.
func (c *Chain) Delete(ctx context.Context, key string) error {
	c.generation(key).Add(1)

	var errs error
	for _, layer := range c.layers {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		if err := layer.Delete(ctx, key); err != nil {
			errs = multierr.Append(errs, cache.WrapError(err, layer.Name(), "delete"))
		}
	}
	return errs
}

// Close closes every layer.
func (c *Chain) Close() error {
	var errs error
	for _, layer := range c.layers {
		errs = multierr.Append(errs, layer.Close())
	}
	return errs
}

// Layers returns a copy of the layer list.
func (c *Chain) Layers() []cache.Layer {
	return append([]cache.Layer(nil), c.layers...)
}

// Len returns the number of layers.
func (c *Chain) Len() int {
	return len(c.layers)
}

// String lists the layers in lookup order.
func (c *Chain) String() string {
	names := make([]string, len(c.layers))
	for i, layer := range c.layers {
		names[i] = layer.Name()
	}
	return "chain(" + strings.Join(names, " -> ") + ")"
}
