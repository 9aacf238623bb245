package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"cheque-ledger/pkg/api"
	"cheque-ledger/pkg/config"
	"cheque-ledger/pkg/ledger"
	"cheque-ledger/pkg/logging"
	promMetrics "cheque-ledger/pkg/metrics/prometheus"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("ledger api stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *logging.Logger) error {
	logger.Info("🚀 Starting cheque ledger API...",
		zap.String("store", cfg.Store.Driver),
		zap.Bool("cache", cfg.Cache.Enabled),
		zap.String("balance_mode", string(cfg.Ledger.BalanceMode)),
	)

	collector := promMetrics.NewCollector(cfg.Metrics.Namespace)
	if err := collector.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}
	httpMetrics := api.NewHTTPMetrics(cfg.Metrics.Namespace)
	if err := httpMetrics.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}
	logger.Info("✓ Prometheus metrics registered")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := buildStore(ctx, cfg, collector, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("close store", zap.Error(err))
		}
	}()

	opts, err := cfg.Ledger.Options()
	if err != nil {
		return err
	}
	opts.Logger = logger
	opts.Metrics = collector

	l := ledger.New(store, opts)
	if _, err := l.Init(ctx); err != nil {
		return err
	}

	srv := api.NewServer(l, api.ServerConfig{
		Address:      cfg.Server.Addr(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}, api.Options{
		Logger:      logger,
		Collector:   collector,
		HTTPMetrics: httpMetrics,
	})
	if err := srv.Start(); err != nil {
		return err
	}

	<-ctx.Done()

	logger.Info("🛑 Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	logger.Info("✓ Server stopped gracefully")
	return nil
}
