package chain

import (
	"math"
	"time"
)

// TTLStrategy picks the TTL each layer receives for a write.
type TTLStrategy interface {
	// TTL returns the ttl of layer (0 = fastest) in a chain of n layers.
	TTL(layer, n int, base time.Duration) time.Duration
}

// UniformTTL gives every layer the base TTL.
type UniformTTL struct{}

// TTL returns base.
func (UniformTTL) TTL(layer, n int, base time.Duration) time.Duration {
	return base
}

// DecayingTTL shortens the TTL of faster layers so they go stale first.
// With a factor of 0.5 and three layers, L1 gets base/4, L2 base/2 and
// L3 base.
type DecayingTTL struct {
	Factor float64
}

// TTL returns base scaled by Factor once per layer below this one.
func (s DecayingTTL) TTL(layer, n int, base time.Duration) time.Duration {
	if s.Factor <= 0 || s.Factor >= 1 || layer >= n-1 {
		return base
	}
	return time.Duration(float64(base) * math.Pow(s.Factor, float64(n-1-layer)))
}

// CustomTTL assigns explicit TTLs by layer index. Layers past the end of
// TTLs, or with a zero entry, get the base TTL.
type CustomTTL struct {
	TTLs []time.Duration
}

// TTL returns the configured TTL for layer.
func (s CustomTTL) TTL(layer, n int, base time.Duration) time.Duration {
	if layer < len(s.TTLs) && s.TTLs[layer] > 0 {
		return s.TTLs[layer]
	}
	return base
}
