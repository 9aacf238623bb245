// Package memory is an in-process cache layer with TTL expiry and LRU eviction.
package memory

import (
	"context"
	"sync"
	"time"

	"cheque-ledger/pkg/cache"
)

// Config holds configuration for the memory layer.
type Config struct {
	// Name is the layer identifier.
	Name string

	// MaxSize is the maximum number of entries (0 = unlimited).
	MaxSize int

	// DefaultTTL is used when Set receives a zero ttl.
	DefaultTTL time.Duration

	// MaxTTL caps any requested ttl. Zero means no cap.
	MaxTTL time.Duration

	// CleanupInterval is how often expired entries are swept.
	CleanupInterval time.Duration
}

// Layer is a thread-safe in-memory cache.Layer.
type Layer struct {
	mu     sync.RWMutex
	data   map[string]*item
	config Config
	closed bool

	now         func() time.Time
	stopCleanup chan struct{}
	wg          sync.WaitGroup
}

type item struct {
	cache.Entry
	accessedAt time.Time
}

// New creates a memory layer and starts its background sweeper.
func New(config Config) *Layer {
	if config.Name == "" {
		config.Name = "memory"
	}
	if config.DefaultTTL == 0 {
		config.DefaultTTL = time.Minute
	}
	if config.CleanupInterval == 0 {
		config.CleanupInterval = time.Minute
	}

	l := &Layer{
		data:        make(map[string]*item),
		config:      config,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}

	l.wg.Add(1)
	go l.cleanup()

	return l
}

// Get returns a copy of the value under key.
func (l *Layer) Get(ctx context.Context, key string) ([]byte, error) {
	if err := cache.ValidateKey(key); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, cache.ErrLayerUnavailable
	}

	it, ok := l.data[key]
	if !ok {
		return nil, cache.ErrKeyNotFound
	}

	now := l.now()
	if it.IsExpired(now) {
		delete(l.data, key)
		return nil, cache.ErrKeyNotFound
	}
	it.accessedAt = now

	return append([]byte(nil), it.Value...), nil
}

// Set stores a copy of value, evicting the least recently used entry
// when the layer is full.
func (l *Layer) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}
	if value == nil {
		return cache.ErrInvalidValue
	}
	if ttl <= 0 {
		ttl = l.config.DefaultTTL
	}
	if l.config.MaxTTL > 0 && ttl > l.config.MaxTTL {
		ttl = l.config.MaxTTL
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return cache.ErrLayerUnavailable
	}

	if _, exists := l.data[key]; !exists && l.config.MaxSize > 0 && len(l.data) >= l.config.MaxSize {
		l.evictLRU()
	}

	now := l.now()
	l.data[key] = &item{
		Entry: cache.Entry{
			Value:     append([]byte(nil), value...),
			ExpiresAt: now.Add(ttl),
		},
		accessedAt: now,
	}

	return nil
}

// Delete removes key.
func (l *Layer) Delete(ctx context.Context, key string) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}

	l.mu.Lock()
	delete(l.data, key)
	l.mu.Unlock()

	return nil
}

// Name returns the layer name.
func (l *Layer) Name() string {
	return l.config.Name
}

// Close stops the sweeper and drops every entry.
func (l *Layer) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.data = make(map[string]*item)
	l.mu.Unlock()

	close(l.stopCleanup)
	l.wg.Wait()

	return nil
}

// Len returns the number of stored entries, expired ones included.
func (l *Layer) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.data)
}

// evictLRU drops the least recently accessed entry. Caller holds mu.
func (l *Layer) evictLRU() {
	var (
		lruKey  string
		lruTime time.Time
	)
	for k, it := range l.data {
		if lruKey == "" || it.accessedAt.Before(lruTime) {
			lruKey = k
			lruTime = it.accessedAt
		}
	}
	if lruKey != "" {
		delete(l.data, lruKey)
	}
}

func (l *Layer) cleanup() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.removeExpired()
		case <-l.stopCleanup:
			return
		}
	}
}

func (l *Layer) removeExpired() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, it := range l.data {
		if it.IsExpired(now) {
			delete(l.data, key)
		}
	}
}

var _ cache.Layer = (*Layer)(nil)
