package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kindling-app/kindling/internal/aggregation"
	"github.com/kindling-app/kindling/internal/cache"
	corecfg "github.com/kindling-app/kindling/internal/core/config"
	"github.com/kindling-app/kindling/internal/core/storage"
	"github.com/kindling-app/kindling/internal/core/storage/postgres"
	"github.com/kindling-app/kindling/internal/migrations"
	"github.com/kindling-app/kindling/internal/server"
)

func main() {
	configPath := flag.String("config", "kindling.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config", "config", cfg)

	// 2. Initialize Storage
	var store storage.ActivityStore
	var dbAdapter *postgres.Adapter
	switch cfg.Database.Type {
	case "postgres":
		dbAdapter, err = postgres.NewAdapter(
			cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
		)
		if err != nil {
			slog.Error("Failed to initialize database", "error", err)
			os.Exit(1)
		}
		defer dbAdapter.Close()

		// 2.1. Run Database Migrations
		if err := migrations.RunMigrations(dbAdapter.DB(), cfg.Database.AutoMigrate); err != nil {
			slog.Error("Failed to run database migrations", "error", err)
			os.Exit(1)
		}
		store = dbAdapter
	case "memory":
		slog.Warn("Using in-memory store; data does not survive restarts")
		store = storage.NewMemoryStore()
	}

	// 3. Initialize Cache
	var cacheLayer cache.Layer
	cacheTTL, cacheSWR := time.Duration(0), time.Duration(0)
	if cfg.Cache.Enabled {
		cacheTTL, _ = cfg.Cache.ParsedTTL()
		cacheSWR, _ = cfg.Cache.ParsedSWR()
		janitorInterval, _ := cfg.Cache.ParsedJanitorInterval()

		memCache := cache.NewMemory(janitorInterval)
		defer memCache.Stop()
		cacheLayer = memCache

		slog.Info("Cache layer initialized",
			"ttl", cacheTTL,
			"swr", cacheSWR,
			"janitor_interval", janitorInterval,
		)
	} else {
		slog.Info("Cache disabled by config; all reads served fresh")
	}

	// 4. Initialize Aggregation Service
	svc := aggregation.NewService(store, cacheLayer, aggregation.Options{
		CacheTTL:      cacheTTL,
		CacheSWR:      cacheSWR,
		MaxBodySizeMB: cfg.Server.MaxBodySizeMB,
	})

	// 5. Initialize Server
	var srv *server.Server
	if dbAdapter != nil {
		srv = server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), dbAdapter.DB(), cfg.Server.Mode)
	} else {
		srv = server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), nil, cfg.Server.Mode)
	}
	svc.RegisterRoutes(srv.Engine)

	// 6. Start Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Streak reconciler sweeps broken streaks in the background if enabled.
	if cfg.Reconciler.Enabled {
		interval, _ := cfg.Reconciler.ParsedInterval()
		reconciler := aggregation.NewReconciler(
			store,
			svc,
			interval,
			cfg.Reconciler.BatchSize,
			cfg.Reconciler.WorkerCount,
		)
		go func() {
			if err := reconciler.Start(ctx); err != nil {
				slog.Error("Reconciler stopped with error", "error", err)
			}
		}()
	} else {
		slog.Info("Streak reconciler disabled by config")
	}

	// Signal handler triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
