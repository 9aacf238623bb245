// Package cache defines the layers that sit in front of the ledger store.
package cache

import (
	"context"
	"time"
)

// Layer is a single level of the read cache. Values are opaque encoded
// bytes; callers own the encoding.
type Layer interface {
	// Get returns the value stored under key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A zero ttl selects the layer default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Name identifies the layer in logs and metrics.
	Name() string

	// Close releases the layer's resources.
	Close() error
}

// Entry is a stored value with its expiry.
type Entry struct {
	Value     []byte
	ExpiresAt time.Time
}

// IsExpired reports whether the entry has expired at now.
func (e *Entry) IsExpired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// TimeToLive returns the time left before expiry, or 0 once expired.
func (e *Entry) TimeToLive(now time.Time) time.Duration {
	if e.IsExpired(now) {
		return 0
	}
	return e.ExpiresAt.Sub(now)
}
