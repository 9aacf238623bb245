package cache

import "time"

// LayerConfig holds the TTL limits of a cache layer.
type LayerConfig struct {
	// Name identifies the layer ("memory", "redis").
	Name string `yaml:"name"`

	// DefaultTTL applies when Set is called with a zero ttl.
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// MaxTTL caps any requested ttl. Zero means no cap.
	MaxTTL time.Duration `yaml:"max_ttl"`

	// Enabled turns the layer on.
	Enabled bool `yaml:"enabled"`
}

// Validate checks the configuration is consistent.
func (c *LayerConfig) Validate() error {
	if c.Name == "" {
		return ErrInvalidValue
	}

	if c.DefaultTTL < 0 || c.MaxTTL < 0 {
		return ErrInvalidValue
	}

	if c.MaxTTL > 0 && c.DefaultTTL > c.MaxTTL {
		return ErrInvalidValue
	}

	return nil
}

// EffectiveTTL returns DefaultTTL for a non-positive ttl and caps the
// rest at MaxTTL.
func (c *LayerConfig) EffectiveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return c.DefaultTTL
	}

	if c.MaxTTL > 0 && ttl > c.MaxTTL {
		return c.MaxTTL
	}

	return ttl
}
