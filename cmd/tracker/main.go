package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/annel0/StatsPlugin/internal/tracker"
	"github.com/annel0/StatsPlugin/pkg/cache"
	"github.com/annel0/StatsPlugin/pkg/config"
	"github.com/annel0/StatsPlugin/pkg/consumer"
	"github.com/annel0/StatsPlugin/pkg/logger"
	"github.com/annel0/StatsPlugin/pkg/migrate"
	"github.com/annel0/StatsPlugin/pkg/rank"
	"github.com/annel0/StatsPlugin/pkg/retry"
	"github.com/annel0/StatsPlugin/pkg/server"
	"github.com/annel0/StatsPlugin/pkg/stats"
	"github.com/annel0/StatsPlugin/pkg/storage"
	"github.com/annel0/StatsPlugin/pkg/worker"
)

const saveWorkers = 4

func main() {
	// 1. Load config
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	l, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Environment,
		ServiceName: "tracker",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer l.Sync()

	l.Info("tracker service initializing",
		zap.String("env", cfg.Environment),
		zap.String("storage", cfg.Storage.Type))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Initialize the storage backend
	backend, err := buildBackend(ctx, cfg, cfg.Storage.Type, l)
	if err != nil {
		l.Error("failed to initialize storage backend", err)
		os.Exit(1)
	}

	// 4. Aggregation cache and save pool
	agg := cache.New(l, backend)
	pool := worker.NewPool(l, func(ctx context.Context, s stats.PlayerStats) error {
		// Resolved per save so submissions follow a backend migration.
		return agg.Backend().Save(ctx, s)
	}, saveWorkers)
	agg.SetSaver(pool)
	pool.Start()

	// 5. Optional Redis rank cache
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer rdb.Close()
	}
	ranker := rank.New(l, agg, rdb, cfg.Redis.TTL)

	// 6. Backend migration trigger
	coordinator := migrate.New(l, agg)
	migrateFn := newMigrateFunc(cfg, l, agg, coordinator, ranker)

	// 7. Event intake
	kafkaConsumer := consumer.NewKafkaConsumer(consumer.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
		GroupID: cfg.Kafka.GroupID,
	})

	svc := tracker.NewService(l, kafkaConsumer, agg, cfg.Features, cfg.Autosave)

	// 8. Observability and admin server
	obsServer := server.New(cfg.Server.Addr, l, ranker, migrateFn)
	go func() {
		if err := obsServer.Start(); err != nil {
			l.Error("observability server failed", err)
		}
	}()

	// 9. Run until signal
	l.Info("tracker service starting")
	if err := svc.Start(ctx); err != nil {
		if err == context.Canceled {
			l.Info("tracker service stopping")
		} else {
			l.Error("tracker service failed", err)
		}
	}

	// 10. Drain: final synchronous flush, then stop everything
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := agg.FlushAll(shutdownCtx); err != nil {
		l.Error("final flush incomplete", err)
	}
	if err := pool.Shutdown(shutdownCtx); err != nil {
		l.Error("save pool shutdown incomplete", err)
	}
	if err := svc.Shutdown(); err != nil {
		l.Error("tracker shutdown failed", err)
	}
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		l.Error("observability server shutdown failed", err)
	}
	if err := agg.Backend().Close(); err != nil {
		l.Error("backend close failed", err)
	}

	l.Info("tracker service stopped")
}

// newMigrateFunc builds the admin migration handler: it refuses a target
// that is already the active storage type, otherwise constructs the new
// backend, runs the coordinator and drops cached rankings.
func newMigrateFunc(cfg *config.AppConfig, l *logger.Logger, agg *cache.Cache, coordinator *migrate.Coordinator, ranker *rank.Service) server.MigrateFunc {
	return func(ctx context.Context, target string) error {
		if target == backendKind(agg.Backend()) {
			return fmt.Errorf("storage type %q is already active", target)
		}
		newBackend, err := buildBackend(ctx, cfg, target, l)
		if err != nil {
			return err
		}
		if err := coordinator.Run(ctx, newBackend); err != nil {
			return err
		}
		ranker.Invalidate(ctx)
		return nil
	}
}

// backendKind maps a live backend to its configuration type name.
func backendKind(b storage.Backend) string {
	switch b.(type) {
	case *storage.FileBackend:
		return config.StorageFile
	case *storage.PostgresBackend:
		return config.StorageDatabase
	default:
		return ""
	}
}

// buildBackend constructs a storage backend of the given type. Postgres
// connection attempts are retried with backoff before giving up.
func buildBackend(ctx context.Context, cfg *config.AppConfig, kind string, l *logger.Logger) (storage.Backend, error) {
	switch kind {
	case config.StorageFile:
		return storage.NewFileBackend(cfg.Storage.Dir, l)

	case config.StorageDatabase:
		pgCfg := storage.PostgresConfig{
			Host:           cfg.Database.Host,
			Port:           cfg.Database.Port,
			Database:       cfg.Database.Name,
			User:           cfg.Database.User,
			Password:       cfg.Database.Password,
			MinConns:       int32(cfg.Database.MinConns),
			MaxConns:       int32(cfg.Database.MaxConns),
			ConnectTimeout: cfg.Database.ConnectTimeout,
		}

		var backend *storage.PostgresBackend
		err := retry.Do(ctx, func() error {
			var err error
			backend, err = storage.NewPostgresBackend(ctx, pgCfg, l)
			return err
		}, retry.DefaultOptions())
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		return backend, nil

	default:
		return nil, fmt.Errorf("unknown backend type %q", kind)
	}
}
