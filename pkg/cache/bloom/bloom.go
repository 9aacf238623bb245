// Package bloom puts a bloom filter in front of a cache layer so lookups
// of keys that were never written skip the layer entirely.
package bloom

import (
	"context"
	"sync"
	"time"

	"cheque-ledger/pkg/cache"

	"github.com/bits-and-blooms/bloom/v3"
)

// Layer wraps a cache.Layer with probabilistic membership testing.
// Keys must be registered through Set or Add before Get reaches the
// wrapped layer; deleted keys stay in the filter.
type Layer struct {
	layer cache.Layer

	mu       sync.RWMutex
	filter   *bloom.BloomFilter
	expected uint
	fpRate   float64

	totalQueries   uint64
	bloomRejected  uint64
	falsePositives uint64
}

// New wraps layer with a filter sized for expectedItems at the given
// false positive rate.
func New(layer cache.Layer, expectedItems uint, falsePositiveRate float64) *Layer {
	if expectedItems == 0 {
		expectedItems = 10000
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}

	return &Layer{
		layer:    layer,
		filter:   bloom.NewWithEstimates(expectedItems, falsePositiveRate),
		expected: expectedItems,
		fpRate:   falsePositiveRate,
	}
}

// Name returns the wrapped layer's name decorated with the filter.
func (l *Layer) Name() string {
	return "bloom(" + l.layer.Name() + ")"
}

// Add registers keys as possibly present without writing a value.
func (l *Layer) Add(keys ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, key := range keys {
		l.filter.AddString(key)
	}
}

// MayContain reports whether key may have been registered.
func (l *Layer) MayContain(key string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.filter.TestString(key)
}

// Get returns cache.ErrKeyNotFound without consulting the wrapped layer
// when the filter has never seen key.
func (l *Layer) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.totalQueries++
	if !l.filter.TestString(key) {
		l.bloomRejected++
		l.mu.Unlock()
		return nil, cache.ErrKeyNotFound
	}
	l.mu.Unlock()

	value, err := l.layer.Get(ctx, key)
	if cache.IsNotFound(err) {
		l.mu.Lock()
		l.falsePositives++
		l.mu.Unlock()
	}

	return value, err
}

// Set registers key and writes through to the wrapped layer.
func (l *Layer) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.Add(key)
	return l.layer.Set(ctx, key, value, ttl)
}

// Delete removes key from the wrapped layer.
func (l *Layer) Delete(ctx context.Context, key string) error {
	return l.layer.Delete(ctx, key)
}

// Close closes the wrapped layer.
func (l *Layer) Close() error {
	return l.layer.Close()
}

// Reset clears the filter and the counters.
func (l *Layer) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.filter = bloom.NewWithEstimates(l.expected, l.fpRate)
	l.totalQueries = 0
	l.bloomRejected = 0
	l.falsePositives = 0
}

// Stats returns the filter's counters.
func (l *Layer) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := Stats{
		TotalQueries:   l.totalQueries,
		BloomRejected:  l.bloomRejected,
		FalsePositives: l.falsePositives,
		FilterCapacity: l.filter.Cap(),
	}

	if l.totalQueries > 0 {
		s.RejectionRate = float64(l.bloomRejected) / float64(l.totalQueries)
		if queried := l.totalQueries - l.bloomRejected; queried > 0 {
			s.FalsePositiveRate = float64(l.falsePositives) / float64(queried)
		}
	}

	return s
}

// Stats holds bloom filter counters.
type Stats struct {
	TotalQueries      uint64
	BloomRejected     uint64
	FalsePositives    uint64
	RejectionRate     float64
	FalsePositiveRate float64
	FilterCapacity    uint
}

var _ cache.Layer = (*Layer)(nil)
