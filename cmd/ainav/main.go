// Command ainav runs the AI navigation service: a SQLite-backed
// navigation store with an HTTP API and an adaptive batch engine that
// enriches items through an OpenAI-compatible provider.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zczy-k/ai-nav-item/internal/backup"
	"github.com/zczy-k/ai-nav-item/internal/config"
	"github.com/zczy-k/ai-nav-item/internal/database"
	"github.com/zczy-k/ai-nav-item/internal/enrich"
	"github.com/zczy-k/ai-nav-item/internal/icon"
	"github.com/zczy-k/ai-nav-item/internal/web"
	"github.com/zczy-k/ai-nav-item/pkg/batch"
	"github.com/zczy-k/ai-nav-item/pkg/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ainav: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Logger.Level),
		Pretty: cfg.Logger.Pretty,
	})

	store, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()
	logger.Info().Str("path", cfg.Database.Path).Msg("Database opened")

	// Redis is optional. Without it the icon cache degrades to
	// fetch-per-request.
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).
				Msg("Redis unreachable, icon caching disabled")
			redisClient.Close()
			redisClient = nil
		} else {
			defer redisClient.Close()
			logger.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
		}
	}

	provider, err := enrich.NewClient(enrich.ProviderConfig{
		BaseURL: cfg.Provider.BaseURL,
		APIKey:  cfg.Provider.APIKey,
		Model:   cfg.Provider.Model,
		Timeout: cfg.Provider.Timeout,
	})
	if err != nil {
		return fmt.Errorf("create provider client: %w", err)
	}

	ctrl, err := batch.NewController(cfg.Policy())
	if err != nil {
		return fmt.Errorf("create batch controller: %w", err)
	}

	backups := backup.NewManager(store, backup.Config{
		Dir:      cfg.Backup.Dir,
		Keep:     cfg.Backup.Keep,
		Debounce: cfg.Backup.Debounce,
		Interval: cfg.Backup.Interval,
	}, logger)

	server := web.NewServer(web.Options{
		Store:      store,
		Controller: ctrl,
		Enricher:   enrich.NewEnricher(store, provider),
		Icons:      icon.NewFetcher(icon.NewCache(redisClient, cfg.Redis.IconTTL), logger),
		Notifier:   backups,
		Logger:     logger,
		BaseDelay:  cfg.Batch.BaseDelay,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backupDone := make(chan struct{})
	go func() {
		defer close(backupDone)
		backups.Run(ctx)
	}()

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")

	// Ask a running enrichment task to stop at the next batch boundary,
	// then drain HTTP connections.
	ctrl.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP shutdown failed")
	}

	<-backupDone
	logger.Info().Msg("Shutdown complete")
	return nil
}
