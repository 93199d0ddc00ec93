package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/storesync/internal/adapters/driven/auth"
	"github.com/custodia-labs/storesync/internal/adapters/driven/bolt"
	"github.com/custodia-labs/storesync/internal/adapters/driven/postgres"
	redisadapter "github.com/custodia-labs/storesync/internal/adapters/driven/redis"
	"github.com/custodia-labs/storesync/internal/adapters/driven/woocommerce"
	"github.com/custodia-labs/storesync/internal/adapters/driving/http"
	"github.com/custodia-labs/storesync/internal/config"
	"github.com/custodia-labs/storesync/internal/core/ports/driven"
	"github.com/custodia-labs/storesync/internal/core/services"
	"github.com/custodia-labs/storesync/internal/worker"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "storesync: %v\n", err)
		os.Exit(1)
	}

	// A mode argument overrides RUN_MODE
	if len(os.Args) > 1 {
		cfg.RunMode = os.Args[1]
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "storesync: %v\n", err)
			os.Exit(1)
		}
	}

	logger := config.NewLogger(cfg, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("storesync stopped with error", "error", err)
		os.Exit(1)
	}
}

// backend is the store pair selected by STORE_BACKEND
type backend struct {
	entities driven.EntityStore
	settings driven.SettingsStore
	ping     http.Pinger
	close    func() error
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("storesync starting", "version", version, "mode", cfg.RunMode, "backend", cfg.StoreBackend)

	store, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.close(); err != nil {
			logger.Warn("failed to close store", "error", err)
		}
	}()

	checks := map[string]http.Pinger{cfg.StoreBackend: store.ping}

	settingsStore := store.settings
	var lock driven.DistributedLock
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}

		redisLock := redisadapter.NewLock(client)
		settingsStore = redisadapter.NewSettingsStore(client)
		lock = redisLock
		checks["redis"] = redisLock
		logger.Info("using redis settings store and refresh lock")
	}

	transport, err := woocommerce.NewClient(woocommerce.Config{
		BaseURL:        cfg.Woo.BaseURL,
		ConsumerKey:    cfg.Woo.ConsumerKey,
		ConsumerSecret: cfg.Woo.ConsumerSecret,
		Timeout:        cfg.Woo.Timeout,
		MaxRetries:     cfg.Woo.MaxRetries,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("create remote client: %w", err)
	}

	executor := worker.NewExecutor(worker.ExecutorConfig{Name: "sync", Logger: logger})
	if err := executor.Start(ctx); err != nil {
		return fmt.Errorf("start executor: %w", err)
	}
	defer executor.Stop()

	settingsService := services.NewSettingsService(settingsStore, logger)

	lists, err := services.NewListRegistry(services.ListRegistryConfig{
		Store:             store.entities,
		Transport:         transport,
		Settings:          settingsService,
		Executor:          executor,
		Logger:            logger,
		StrictProjections: cfg.ProjectionStrict,
		WatchStore:        true,
		FetchTimeout:      cfg.FetchTimeout,
	})
	if err != nil {
		return fmt.Errorf("create list registry: %w", err)
	}
	defer lists.Close()

	var scheduler *services.Scheduler
	if cfg.SchedulerEnabled || cfg.RunMode == config.ModeSync {
		scheduler = services.NewScheduler(services.SchedulerConfig{
			Lists:    lists,
			Lock:     lock,
			Logger:   logger,
			SiteIDs:  cfg.SiteIDs,
			Interval: cfg.RefreshInterval,
		})
		if err := scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer scheduler.Stop()
	} else {
		logger.Info("scheduler disabled via SCHEDULER_ENABLED=false")
	}

	if cfg.RunMode == config.ModeSync {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		return nil
	}

	var tokens driven.TokenAdapter
	if cfg.JWTSecret != "" {
		tokens = auth.NewAdapter(cfg.JWTSecret)
	} else {
		logger.Warn("JWT_SECRET not set, API authentication disabled")
	}

	server := http.NewServer(http.Config{
		Host:    cfg.Host,
		Port:    cfg.Port,
		Version: version,
		Logger:  logger,
	}, lists, settingsService, tokens, checks)

	logger.Info("api server starting", "port", cfg.Port)
	return server.Start(ctx)
}

func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backend, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.Pool{
			MaxOpen:     cfg.DBMaxOpenConns,
			MaxIdle:     cfg.DBMaxIdleConns,
			MaxLifetime: cfg.DBConnMaxLifetime,
			MaxIdleTime: cfg.DBConnMaxIdleTime,
		})
		if err != nil {
			return nil, err
		}
		entities := postgres.NewEntityStore(db, logger)
		return &backend{
			entities: entities,
			settings: postgres.NewSettingsStore(db),
			ping:     db,
			close: func() error {
				return errors.Join(entities.Close(), db.Close())
			},
		}, nil

	case config.BackendBolt:
		db, err := bolt.Open(cfg.BoltPath)
		if err != nil {
			return nil, err
		}
		entities := bolt.NewEntityStore(db, logger)
		return &backend{
			entities: entities,
			settings: bolt.NewSettingsStore(db),
			ping:     db,
			close: func() error {
				return errors.Join(entities.Close(), db.Close())
			},
		}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}
