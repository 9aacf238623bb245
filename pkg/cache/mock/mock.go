// Package mock provides a scriptable cache.Layer for tests.
package mock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"cheque-ledger/pkg/cache"
)

// Layer is a cache.Layer whose behavior is set through function hooks.
// Without hooks it behaves like an empty map-backed cache.
type Layer struct {
	GetFunc    func(ctx context.Context, key string) ([]byte, error)
	SetFunc    func(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteFunc func(ctx context.Context, key string) error
	CloseFunc  func() error

	name string

	mu   sync.Mutex
	data map[string][]byte

	getCalls    int64
	setCalls    int64
	deleteCalls int64
	closeCalls  int64
}

// New creates a mock layer named name.
func New(name string) *Layer {
	return &Layer{name: name, data: make(map[string][]byte)}
}

// Get runs GetFunc, or reads the backing map.
func (m *Layer) Get(ctx context.Context, key string) ([]byte, error) {
	atomic.AddInt64(&m.getCalls, 1)
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, cache.ErrKeyNotFound
	}
	return v, nil
}

// Set runs SetFunc, or writes the backing map.
func (m *Layer) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	atomic.AddInt64(&m.setCalls, 1)
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value, ttl)
	}

	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
	return nil
}

// Delete runs DeleteFunc, or deletes from the backing map.
func (m *Layer) Delete(ctx context.Context, key string) error {
	atomic.AddInt64(&m.deleteCalls, 1)
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}

	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

// Name returns the configured name.
func (m *Layer) Name() string {
	return m.name
}

// Close runs CloseFunc.
func (m *Layer) Close() error {
	atomic.AddInt64(&m.closeCalls, 1)
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Has reports whether the backing map holds key.
func (m *Layer) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

// GetCalls returns the number of Get calls.
func (m *Layer) GetCalls() int {
	return int(atomic.LoadInt64(&m.getCalls))
}

// SetCalls returns the number of Set calls.
func (m *Layer) SetCalls() int {
	return int(atomic.LoadInt64(&m.setCalls))
}

// DeleteCalls returns the number of Delete calls.
func (m *Layer) DeleteCalls() int {
	return int(atomic.LoadInt64(&m.deleteCalls))
}

// CloseCalls returns the number of Close calls.
func (m *Layer) CloseCalls() int {
	return int(atomic.LoadInt64(&m.closeCalls))
}

var _ cache.Layer = (*Layer)(nil)
