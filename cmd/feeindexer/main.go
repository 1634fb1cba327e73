package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KostasCherv/lifi-fee-collector/internal/apperr"
	"github.com/KostasCherv/lifi-fee-collector/internal/cache"
	"github.com/KostasCherv/lifi-fee-collector/internal/chain"
	"github.com/KostasCherv/lifi-fee-collector/internal/config"
	"github.com/KostasCherv/lifi-fee-collector/internal/control"
	"github.com/KostasCherv/lifi-fee-collector/internal/processor"
	"github.com/KostasCherv/lifi-fee-collector/internal/store"
	"github.com/KostasCherv/lifi-fee-collector/internal/store/postgres"
	"github.com/KostasCherv/lifi-fee-collector/internal/supervisor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const migrationsDir = "internal/store/postgres/migrations"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	logger.Info("starting feeindexer",
		"health_port", cfg.Server.HealthPort,
		"default_scan_interval_ms", cfg.Defaults.ScanIntervalMS,
		"chain_seed_file", cfg.Seed.FilePath,
	)

	db, err := postgres.New(postgres.Config{
		URL:             cfg.DB.URL,
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to database")

	if err := db.RunMigrations(migrationsDir); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	registry := postgres.NewRegistry(db)
	events := postgres.NewFeeEventRepo(db)

	var invalidator control.Invalidator
	if cfg.Redis.URL != "" {
		inv, err := cache.NewInvalidator(cfg.Redis.URL)
		if err != nil {
			logger.Warn("cache invalidation disabled: failed to connect to redis", "error", err)
		} else {
			defer inv.Close()
			invalidator = inv
		}
	}

	pool := chain.NewPool()
	proc := processor.New(pool, registry, events)
	gracefulShutdown := time.Duration(cfg.Defaults.GracefulShutdownMS) * time.Millisecond
	sup := supervisor.New(pool, registry, proc, logger, gracefulShutdown)
	plane := control.New(registry, pool, sup, invalidator)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := bootstrap(ctx, plane, registry, sup, cfg.Seed.FilePath, logger); err != nil {
		logger.Error("failed to bootstrap chains", "error", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runHealthServer(gCtx, cfg.Server.HealthPort, logger)
	})

	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("feeindexer exited with error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), gracefulShutdown+5*time.Second)
	defer shutdownCancel()
	if err := sup.GracefulShutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown did not complete in time", "error", err)
		os.Exit(1)
	}

	logger.Info("feeindexer shut down gracefully")
}

// bootstrap brings the Worker Supervisor up to date with persisted
// state: every already-enabled chain from a prior run is restarted,
// and every enabled chain named in an operator-provided seed file that
// is not already configured is added through the Control Plane. Seeds
// for already-configured chains are skipped, not updated, and a
// conflict from add is logged and skipped, not fatal.
func bootstrap(ctx context.Context, plane *control.Plane, registry store.ChainRegistry, sup *supervisor.Supervisor, seedFile string, logger *slog.Logger) error {
	existing, err := registry.ListChainConfigs(ctx)
	if err != nil {
		return fmt.Errorf("list chain configs: %w", err)
	}

	seeded := make(map[int64]bool, len(existing))
	for _, cfg := range existing {
		seeded[cfg.ChainID] = true
		if !cfg.IsEnabled {
			continue
		}
		if err := sup.Start(ctx, cfg); err != nil {
			logger.Warn("failed to restart chain worker", "chain_id", cfg.ChainID, "error", err)
		}
	}

	seeds, err := config.LoadChainSeeds(seedFile)
	if err != nil {
		return fmt.Errorf("load chain seeds: %w", err)
	}

	for _, seed := range seeds {
		if seeded[seed.ChainID] {
			continue
		}
		if !seed.Enabled {
			continue
		}

		_, err := plane.Add(ctx, control.AddInput{
			ChainID:         seed.ChainID,
			Name:            seed.Name,
			RPCURL:          seed.RPCURL,
			ContractAddress: seed.ContractAddress,
			StartingBlock:   seed.StartingBlock,
			ScanIntervalMS:  seed.ScanIntervalMS,
			MaxBlockRange:   seed.MaxBlockRange,
			RetryAttempts:   seed.RetryAttempts,
		})
		if err != nil {
			if apperr.KindOf(err) == apperr.KindConflict {
				logger.Info("seed chain already configured, skipping", "chain_id", seed.ChainID)
				continue
			}
			return fmt.Errorf("seed chain %d: %w", seed.ChainID, err)
		}
		logger.Info("seeded chain from file", "chain_id", seed.ChainID, "name", seed.Name)
	}

	return nil
}

func runHealthServer(ctx context.Context, port int, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logger.Warn("failed to write health response", "error", err)
		}
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("health server shutdown error", "error", err)
		}
	}()

	logger.Info("health server started", "port", port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}
