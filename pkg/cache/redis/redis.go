// Package redis is a cache layer backed by Redis through rueidis.
package redis

import (
	"context"
	"fmt"
	"time"

	"cheque-ledger/pkg/cache"

	"github.com/redis/rueidis"
)

// Config holds configuration for the Redis layer.
type Config struct {
	Name string `yaml:"name"`

	// Addr is the server address for single node mode.
	Addr string `yaml:"addr"`

	// ClusterAddrs enables cluster mode when set. Only DB 0 is available.
	ClusterAddrs []string `yaml:"cluster_addrs"`

	// SentinelAddrs enables sentinel mode when set.
	SentinelAddrs     []string `yaml:"sentinel_addrs"`
	SentinelMasterSet string   `yaml:"sentinel_master_set"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// KeyPrefix is prepended to every key.
	KeyPrefix  string        `yaml:"key_prefix"`
	DefaultTTL time.Duration `yaml:"default_ttl"`

	DialTimeout  time.Duration `yaml:"dial_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// DisableClientCache turns off RESP3 client side caching, for servers
	// that do not support CLIENT TRACKING.
	DisableClientCache bool `yaml:"disable_client_cache"`
}

// DefaultConfig returns the configuration of a local single node.
func DefaultConfig() Config {
	return Config{
		Name:         "redis",
		Addr:         "localhost:6379",
		KeyPrefix:    "ledger:",
		DefaultTTL:   5 * time.Minute,
		DialTimeout:  5 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

func (c Config) initAddress() ([]string, error) {
	switch {
	case len(c.ClusterAddrs) > 0:
		return c.ClusterAddrs, nil
	case len(c.SentinelAddrs) > 0:
		return c.SentinelAddrs, nil
	case c.Addr != "":
		return []string{c.Addr}, nil
	default:
		return nil, fmt.Errorf("redis: no addresses configured (set addr, cluster_addrs or sentinel_addrs)")
	}
}

// Layer is a cache.Layer stored in Redis.
type Layer struct {
	client rueidis.Client
	config Config
}

// New connects to Redis and verifies the connection with PING.
func New(config Config) (*Layer, error) {
	if config.Name == "" {
		config.Name = "redis"
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 5 * time.Minute
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 5 * time.Second
	}

	addrs, err := config.initAddress()
	if err != nil {
		return nil, err
	}

	opts := rueidis.ClientOption{
		InitAddress:      addrs,
		Username:         config.Username,
		Password:         config.Password,
		SelectDB:         config.DB,
		ConnWriteTimeout: config.WriteTimeout,
		DisableCache:     config.DisableClientCache,
		MaxFlushDelay:    100 * time.Microsecond,
	}
	if len(config.SentinelAddrs) > 0 {
		opts.Sentinel = rueidis.SentinelOption{
			MasterSet: config.SentinelMasterSet,
			Username:  config.Username,
			Password:  config.Password,
		}
	}

	client, err := rueidis.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("redis: failed to create client: %w", err)
	}

	l := &Layer{client: client, config: config}

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()

	if err := l.Ping(ctx); err != nil {
		client.Close()
		return nil, err
	}

	return l, nil
}

func (l *Layer) key(key string) string {
	return l.config.KeyPrefix + key
}

// Get returns the value under key.
func (l *Layer) Get(ctx context.Context, key string) ([]byte, error) {
	if err := cache.ValidateKey(key); err != nil {
		return nil, err
	}

	resp := l.client.Do(ctx, l.client.B().Get().Key(l.key(key)).Build())
	if err := resp.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, cache.ErrKeyNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	data, err := resp.AsBytes()
	if err != nil {
		return nil, fmt.Errorf("redis get: failed to read response: %w", err)
	}
	return data, nil
}

// Set stores value with SET EX.
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

	cmd := l.client.B().Set().Key(l.key(key)).Value(rueidis.BinaryString(value)).Ex(ttl).Build()
	if err := l.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes key.
func (l *Layer) Delete(ctx context.Context, key string) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}

	if err := l.client.Do(ctx, l.client.B().Del().Key(l.key(key)).Build()).Error(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// Name returns the layer name.
func (l *Layer) Name() string {
	return l.config.Name
}

// Close closes the client.
func (l *Layer) Close() error {
	l.client.Close()
	return nil
}

// Ping checks the server answers.
func (l *Layer) Ping(ctx context.Context) error {
	if err := l.client.Do(ctx, l.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// TTL returns the remaining lifetime of key, or cache.ErrKeyNotFound.
func (l *Layer) TTL(ctx context.Context, key string) (time.Duration, error) {
	resp := l.client.Do(ctx, l.client.B().Ttl().Key(l.key(key)).Build())
	if err := resp.Error(); err != nil {
		return 0, fmt.Errorf("redis ttl: %w", err)
	}

	seconds, err := resp.AsInt64()
	if err != nil {
		return 0, fmt.Errorf("redis ttl: failed to read response: %w", err)
	}

	switch seconds {
	case -2:
		return 0, cache.ErrKeyNotFound
	case -1:
		return -1, nil
	}
	return time.Duration(seconds) * time.Second, nil
}

var _ cache.Layer = (*Layer)(nil)
