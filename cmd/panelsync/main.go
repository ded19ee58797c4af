// Package main is the entrypoint for the panelsync server.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Saivel1/panelsync/internal/cache"
	"github.com/Saivel1/panelsync/internal/config"
	"github.com/Saivel1/panelsync/internal/mirror"
	"github.com/Saivel1/panelsync/internal/panel"
	"github.com/Saivel1/panelsync/internal/provision"
	"github.com/Saivel1/panelsync/internal/server"
	"github.com/Saivel1/panelsync/internal/store"
	"github.com/Saivel1/panelsync/internal/sub"

	// Register cache and store drivers
	_ "github.com/Saivel1/panelsync/internal/cache/loader"
	_ "github.com/Saivel1/panelsync/internal/store/loader"
)

func main() {
	configPath := flag.String("config", "", "Path to TOML config file (optional)")
	listenAddr := flag.String("listen", "", "Listen address (overrides config)")
	dataDir := flag.String("data-dir", "", "Data directory (overrides config)")
	cacheDriver := flag.String("cache-driver", "", "Cache driver: memory or valkey (overrides config)")
	loggingLevel := flag.String("logging-level", "", "Log level: debug, info, warn, error (overrides config)")
	flag.Parse()

	// Bootstrap logger for config loading errors (uses default level)
	bootstrapLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(config.LoaderOptions{
		ConfigPath: *configPath,
		FlagOverrides: config.FlagOverrides{
			ListenAddr:   listenAddr,
			StoreDataDir: dataDir,
			CacheDriver:  cacheDriver,
			LoggingLevel: loggingLevel,
		},
		Logger: bootstrapLogger,
	})
	if err != nil {
		bootstrapLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Log effective config with secrets redacted
	logger.Info("effective configuration", "config", cfg.Redacted())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Persistence
	if err := os.MkdirAll(cfg.Store.DataDir, 0700); err != nil {
		logger.Error("failed to create data directory", "path", cfg.Store.DataDir, "error", err)
		os.Exit(1)
	}
	storeDriver, err := store.New(&store.DriverConfig{
		Driver:  cfg.Store.Driver,
		DataDir: cfg.Store.DataDir,
	})
	if err != nil {
		logger.Error("failed to create store", "error", err)
		os.Exit(1)
	}
	if err := storeDriver.Init(ctx); err != nil {
		logger.Error("failed to initialize store", "driver", storeDriver.Name(), "error", err)
		os.Exit(1)
	}
	defer storeDriver.Close()

	links, ok := storeDriver.(store.LinkStore)
	if !ok {
		logger.Error("store driver does not support link records", "driver", storeDriver.Name())
		os.Exit(1)
	}
	queue, ok := storeDriver.(store.RetryQueue)
	if !ok {
		logger.Error("store driver does not support the retry queue", "driver", storeDriver.Name())
		os.Exit(1)
	}

	// Cache (defaults to in-memory if not configured)
	cacheInstance, err := cache.NewFromConfig(cfg.Cache.Driver, cfg.Cache.Drivers)
	if err != nil {
		logger.Error("failed to create cache", "error", err)
		os.Exit(1)
	}
	defer cacheInstance.Close()

	// Panel clients and routing registry
	panelOpts := panel.Options{
		Retry: panel.RetryPolicy{
			MaxAttempts: cfg.Sync.MaxAttempts,
			BaseDelay:   time.Duration(cfg.Sync.RetryBaseDelayMS) * time.Millisecond,
		},
		FallbackSignatures: cfg.Sync.FallbackSignatures,
	}
	clients := make([]*panel.Client, len(cfg.Panels))
	for i, pc := range cfg.Panels {
		clients[i] = panel.NewClient(panel.Endpoint{
			Name:            pc.Name,
			BaseURL:         pc.BaseURL,
			Username:        pc.Username,
			Password:        pc.Password,
			URLMarker:       pc.URLMarker,
			DefaultInbounds: pc.DefaultInbounds,
		}, panelOpts, logger)
	}
	registry, err := panel.NewRegistry(clients[0], clients[1])
	if err != nil {
		logger.Error("failed to build panel registry", "error", err)
		os.Exit(1)
	}

	// Mirror pipeline
	guard := mirror.NewGuard(cacheInstance, logger)
	coordinator := mirror.NewCoordinator(registry, guard, links, queue, logger)
	reconciler := mirror.NewReconciler(registry, queue,
		time.Duration(cfg.Sync.ReconcileIntervalSeconds)*time.Second,
		cfg.Sync.ReconcileBatchSize, logger)
	go reconciler.Run(ctx)

	resolver := sub.New(links, sub.Options{
		ProbeTimeout:  time.Duration(cfg.Resolver.ProbeTimeoutMS) * time.Millisecond,
		ProbeAttempts: cfg.Resolver.ProbeAttempts,
		ProbeDelay:    time.Duration(cfg.Resolver.ProbeDelayMS) * time.Millisecond,
	}, logger)

	provisioner := provision.New(registry, links, logger)

	srv, err := server.New(cfg, logger, &server.Deps{
		Coordinator: coordinator,
		Resolver:    resolver,
		Provisioner: provisioner,
	})
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	logger.Info("server started, press Ctrl+C to stop")

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
