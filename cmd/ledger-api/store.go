package main

import (
	"context"
	"fmt"

	"cheque-ledger/pkg/cache"
	"cheque-ledger/pkg/cache/memory"
	"cheque-ledger/pkg/cache/redis"
	"cheque-ledger/pkg/chain"
	"cheque-ledger/pkg/config"
	"cheque-ledger/pkg/ledger"
	"cheque-ledger/pkg/ledger/cached"
	memorystore "cheque-ledger/pkg/ledger/memory"
	"cheque-ledger/pkg/ledger/mysql"
	"cheque-ledger/pkg/ledger/postgres"
	"cheque-ledger/pkg/logging"
	"cheque-ledger/pkg/metrics"
	"cheque-ledger/pkg/resilience"

	"go.uber.org/zap"
)

// buildStore opens the configured backend and stacks the breaker and the
// cache chain on top of it: cached -> resilience -> backend.
func buildStore(ctx context.Context, cfg config.Config, collector metrics.Collector, logger *logging.Logger) (ledger.Store, error) {
	backend, err := openBackend(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("✓ Store initialized", zap.String("driver", cfg.Store.Driver))

	var store ledger.Store = resilience.NewStore(backend, cfg.Resilience.Store, collector, logger)

	if !cfg.Cache.Enabled {
		return store, nil
	}

	layers, err := cacheLayers(cfg, collector, logger)
	if err != nil {
		backend.Close()
		return nil, err
	}

	var strategy chain.TTLStrategy = chain.UniformTTL{}
	if cfg.Cache.TTLStrategy == config.TTLDecaying {
		strategy = chain.DecayingTTL{Factor: cfg.Cache.DecayFactor}
	}

	cs, err := cached.New(store, cached.Options{
		Layers:                 layers,
		TTL:                    cfg.Cache.TTL,
		TTLStrategy:            strategy,
		BloomExpectedItems:     cfg.Cache.Bloom.ExpectedItems,
		BloomFalsePositiveRate: cfg.Cache.Bloom.FalsePositiveRate,
		Metrics:                collector,
		Logger:                 logger,
	})
	if err != nil {
		backend.Close()
		return nil, err
	}
	if err := cs.Warm(ctx); err != nil {
		cs.Close()
		return nil, fmt.Errorf("warm cache: %w", err)
	}
	return cs, nil
}

func openBackend(ctx context.Context, cfg config.StoreConfig, logger *logging.Logger) (ledger.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return postgres.Open(ctx, cfg.Postgres, logger)

	case config.DriverMySQL:
		db, err := mysql.Connect(cfg.MySQL, logger)
		if err != nil {
			return nil, err
		}
		s := mysql.NewStore(db, logger)
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil

	case config.DriverMemory:
		logger.Warn("using the in-memory store: data is lost on restart")
		return memorystore.NewStore(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

// cacheLayers builds the layers above the store, fastest first. The
// Redis layer sits behind its own breaker.
func cacheLayers(cfg config.Config, collector metrics.Collector, logger *logging.Logger) ([]cache.Layer, error) {
	var layers []cache.Layer

	if m := cfg.Cache.Memory; m.Enabled {
		layers = append(layers, memory.New(memory.Config{
			Name:            m.Name,
			MaxSize:         m.MaxSize,
			DefaultTTL:      m.EffectiveTTL(0),
			MaxTTL:          m.MaxTTL,
			CleanupInterval: m.CleanupInterval,
		}))
		logger.Info("✓ Memory cache layer initialized", zap.Int("max_size", m.MaxSize))
	}

	if r := cfg.Cache.Redis; r.Enabled {
		layer, err := redis.New(r.Config)
		if err != nil {
			for _, l := range layers {
				l.Close()
			}
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		layers = append(layers, resilience.NewLayer(layer, cfg.Resilience.Redis, collector, logger))
		logger.Info("✓ Redis cache layer initialized", zap.String("addr", r.Addr))
	}

	return layers, nil
}
