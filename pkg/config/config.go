// Package config loads the service configuration from a YAML file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"cheque-ledger/pkg/cache"
	"cheque-ledger/pkg/cache/redis"
	"cheque-ledger/pkg/ledger"
	"cheque-ledger/pkg/ledger/mysql"
	"cheque-ledger/pkg/ledger/postgres"
	"cheque-ledger/pkg/logging"
	"cheque-ledger/pkg/resilience"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when CONFIG_FILE is not set.
const DefaultPath = "config/config.yaml"

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverMemory   = "memory"
)

// TTL strategies of the cache chain.
const (
	TTLUniform  = "uniform"
	TTLDecaying = "decaying"
)

// Config is the whole service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Cache      CacheConfig      `yaml:"cache"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Logging    logging.Config   `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return ":" + c.Port
}

type StoreConfig struct {
	// Driver is postgres, mysql or memory.
	Driver   string          `yaml:"driver"`
	Postgres postgres.Config `yaml:"postgres"`
	MySQL    mysql.Config    `yaml:"mysql"`
}

type LedgerConfig struct {
	AccountName string `yaml:"account_name"`
	// OpeningBalance is kept as text so YAML floats do not lose cents.
	OpeningBalance string             `yaml:"opening_balance"`
	BalanceMode    ledger.BalanceMode `yaml:"balance_mode"`
}

// Options converts the section into ledger options.
func (c LedgerConfig) Options() (ledger.Options, error) {
	opening, err := decimal.NewFromString(c.OpeningBalance)
	if err != nil {
		return ledger.Options{}, fmt.Errorf("ledger.opening_balance: %w", err)
	}
	return ledger.Options{
		AccountName:    c.AccountName,
		OpeningBalance: opening,
		BalanceMode:    c.BalanceMode,
	}, nil
}

type CacheConfig struct {
	Enabled bool `yaml:"enabled"`

	// TTL is the base TTL of cached records.
	TTL time.Duration `yaml:"ttl"`

	// TTLStrategy is uniform or decaying.
	TTLStrategy string  `yaml:"ttl_strategy"`
	DecayFactor float64 `yaml:"decay_factor"`

	Memory MemoryConfig `yaml:"memory"`
	Redis  RedisConfig  `yaml:"redis"`
	Bloom  BloomConfig  `yaml:"bloom"`
}

type MemoryConfig struct {
	cache.LayerConfig `yaml:",inline"`

	MaxSize         int           `yaml:"max_size"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

type RedisConfig struct {
	Enabled bool `yaml:"enabled"`

	redis.Config `yaml:",inline"`
}

type BloomConfig struct {
	ExpectedItems     uint    `yaml:"expected_items"`
	FalsePositiveRate float64 `yaml:"false_positive_rate"`
}

type ResilienceConfig struct {
	Store resilience.Config `yaml:"store"`
	Redis resilience.Config `yaml:"redis"`
}

type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
}

// Default returns the configuration used for missing values.
func Default() Config {
	redisCfg := redis.DefaultConfig()

	return Config{
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Driver:   DriverPostgres,
			Postgres: postgres.DefaultConfig(),
			MySQL:    mysql.DefaultConfig(),
		},
		Ledger: LedgerConfig{
			AccountName:    ledger.DefaultAccountName,
			OpeningBalance: ledger.DefaultOpeningBalance.String(),
			BalanceMode:    ledger.BalanceOnCreate,
		},
		Cache: CacheConfig{
			Enabled:     true,
			TTL:         5 * time.Minute,
			TTLStrategy: TTLUniform,
			DecayFactor: 0.5,
			Memory: MemoryConfig{
				LayerConfig: cache.LayerConfig{
					Name:       "memory",
					DefaultTTL: time.Minute,
					MaxTTL:     10 * time.Minute,
					Enabled:    true,
				},
				MaxSize:         1000,
				CleanupInterval: time.Minute,
			},
			Redis: RedisConfig{Enabled: false, Config: redisCfg},
			Bloom: BloomConfig{
				ExpectedItems:     100000,
				FalsePositiveRate: 0.01,
			},
		},
		Resilience: ResilienceConfig{
			Store: resilience.DefaultConfig().WithTimeout(10 * time.Second),
			Redis: resilience.DefaultConfig().WithTimeout(time.Second),
		},
		Logging: logging.DefaultConfig(),
		Metrics: MetricsConfig{Namespace: "cheque_ledger"},
	}
}

// Load reads the file named by CONFIG_FILE (or DefaultPath), applies the
// environment and validates the result. A missing file is not an error.
func Load() (Config, error) {
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = DefaultPath
	}
	return LoadFile(path)
}

// LoadFile is Load with an explicit path.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	default:
		if cfg, err = Parse(data); err != nil {
			return cfg, err
		}
	}

	cfg = cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Parse decodes YAML on top of the defaults.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides values from the environment.
func (c Config) ApplyEnv() Config {
	setString(&c.Server.Port, "PORT")
	setString(&c.Store.Driver, "STORE_DRIVER")

	setString(&c.Store.Postgres.Host, "POSTGRES_HOST")
	setInt(&c.Store.Postgres.Port, "POSTGRES_PORT")
	setString(&c.Store.Postgres.User, "POSTGRES_USER")
	setString(&c.Store.Postgres.Password, "POSTGRES_PASSWORD")
	setString(&c.Store.Postgres.Database, "POSTGRES_DB")
	setString(&c.Store.Postgres.SSLMode, "POSTGRES_SSLMODE")

	setString(&c.Store.MySQL.Host, "MYSQL_HOST")
	setInt(&c.Store.MySQL.Port, "MYSQL_PORT")
	setString(&c.Store.MySQL.User, "MYSQL_USER")
	setString(&c.Store.MySQL.Password, "MYSQL_PASSWORD")
	setString(&c.Store.MySQL.Database, "MYSQL_DB")

	setString(&c.Ledger.AccountName, "ACCOUNT_NAME")
	setString(&c.Ledger.OpeningBalance, "OPENING_BALANCE")
	if v := os.Getenv("BALANCE_MODE"); v != "" {
		c.Ledger.BalanceMode = ledger.BalanceMode(strings.ToLower(v))
	}

	setBool(&c.Cache.Enabled, "CACHE_ENABLED")
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
		c.Cache.Redis.Enabled = true
	}
	setString(&c.Cache.Redis.Password, "REDIS_PASSWORD")

	c.Logging = c.Logging.ApplyEnv()
	return c
}

// Validate rejects unknown drivers, modes and strategies.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverPostgres, DriverMySQL, DriverMemory:
	default:
		return fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver)
	}

	if !c.Ledger.BalanceMode.Valid() {
		return fmt.Errorf("ledger.balance_mode: unknown mode %q", c.Ledger.BalanceMode)
	}
	opening, err := decimal.NewFromString(c.Ledger.OpeningBalance)
	if err != nil {
		return fmt.Errorf("ledger.opening_balance: %w", err)
	}
	if opening.IsNegative() {
		return errors.New("ledger.opening_balance: must not be negative")
	}
	if !ledger.FitsScale(opening) {
		return errors.New("ledger.opening_balance: too many decimal places")
	}

	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("server.port: %w", err)
	}

	switch c.Cache.TTLStrategy {
	case TTLUniform:
	case TTLDecaying:
		if c.Cache.DecayFactor <= 0 || c.Cache.DecayFactor >= 1 {
			return fmt.Errorf("cache.decay_factor: %v not in (0, 1)", c.Cache.DecayFactor)
		}
	default:
		return fmt.Errorf("cache.ttl_strategy: unknown strategy %q", c.Cache.TTLStrategy)
	}

	if c.Cache.Memory.Enabled {
		if err := c.Cache.Memory.Validate(); err != nil {
			return fmt.Errorf("cache.memory: %w", err)
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
