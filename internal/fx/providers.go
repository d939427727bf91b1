package fx

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/sp3dr4/hop/config"
	"github.com/sp3dr4/hop/internal/application"
	"github.com/sp3dr4/hop/internal/domain"
	"github.com/sp3dr4/hop/internal/infrastructure/airtable"
	"github.com/sp3dr4/hop/internal/infrastructure/cache"
	"github.com/sp3dr4/hop/internal/infrastructure/migrations"
	postgresSource "github.com/sp3dr4/hop/internal/infrastructure/postgres"
	redisSource "github.com/sp3dr4/hop/internal/infrastructure/redis"
	sqliteSource "github.com/sp3dr4/hop/internal/infrastructure/sqlite"
	"github.com/sp3dr4/hop/internal/infrastructure/static"
	"github.com/sp3dr4/hop/internal/pkg/logging"
	"github.com/sp3dr4/hop/internal/pkg/metrics"
)

const migrationsDir = "migrations"

// ProvideLogger creates and configures the application logger
func ProvideLogger(cfg *config.Config) *slog.Logger {
	logger := logging.New(os.Stdout, cfg.Logging.Level)
	slog.SetDefault(logger)
	return logger
}

// ProvideLinkSource creates the link source selected by source.type
func ProvideLinkSource(cfg *config.Config, logger *slog.Logger) (domain.LinkSource, error) {
	switch cfg.Source.Type {
	case "airtable":
		logger.Info("Using Airtable link source",
			"base_id", cfg.Source.Airtable.BaseID,
			"table", cfg.Source.Airtable.Table,
			"view", cfg.SourceView(),
		)
		return airtable.NewSource(airtable.Options{
			Endpoint:      cfg.Source.Airtable.Endpoint,
			APIKey:        cfg.Source.Airtable.APIKey,
			BaseID:        cfg.Source.Airtable.BaseID,
			Table:         cfg.Source.Airtable.Table,
			View:          cfg.SourceView(),
			RetryAttempts: cfg.Source.RetryAttempts,
			RetryDelay:    cfg.RetryDelay(),
		}, logger), nil

	case "sqlite":
		path := cfg.Source.SQLite.Path
		logger.Info("Using SQLite link source", "path", path, "view", cfg.SourceView())

		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}

		db, err := sqlx.Connect("sqlite3", path)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to SQLite: %w", err)
		}

		if err := migrations.Run(db, "sqlite3", filepath.Join(migrationsDir, "sqlite")); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}

		repo, err := sqliteSource.NewLinkRepository(db, cfg.SourceView())
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return repo, nil

	case "postgres":
		logger.Info("Using PostgreSQL link source", "view", cfg.SourceView())

		db, err := sqlx.Connect("postgres", cfg.Source.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}

		if err := migrations.Run(db, "postgres", filepath.Join(migrationsDir, "postgres")); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}

		repo, err := postgresSource.NewLinkRepository(db, cfg.SourceView())
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return repo, nil

	case "redis":
		logger.Info("Using Redis link source", "addr", cfg.Source.Redis.Addr, "key", cfg.Source.Redis.Key)

		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Source.Redis.Addr,
			Password: cfg.Source.Redis.Password,
			DB:       cfg.Source.Redis.DB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}

		return redisSource.NewLinkSource(client, cfg.Source.Redis.Key, logger), nil

	case "static":
		logger.Info("Using static link source", "links", len(cfg.Source.Static.Links))
		return static.NewSource(cfg.Source.Static.Links), nil

	default:
		return nil, fmt.Errorf("unsupported source type: %s", cfg.Source.Type)
	}
}

// ProvideLinkCache creates the empty cache shared by the resolver
func ProvideLinkCache() *cache.LinkCache {
	return cache.NewLinkCache()
}

// ProvideResolver creates the link resolver from the cache settings
func ProvideResolver(
	source domain.LinkSource,
	linkCache *cache.LinkCache,
	cfg *config.Config,
	registry metrics.Registry,
	logger *slog.Logger,
) *application.Resolver {
	return application.NewResolver(source, linkCache, application.ResolverOptions{
		CacheDuration: cfg.CacheDuration(),
		MaxRecords:    cfg.Source.MaxRecords,
		FetchTimeout:  cfg.FetchTimeout(),
		SingleFlight:  cfg.Cache.SingleFlight,
	}, registry, logger)
}

// ProvideMetricsRegistry creates the prometheus registry, or a no-op one when metrics are disabled
func ProvideMetricsRegistry(cfg *config.Config, logger *slog.Logger) (metrics.Registry, error) {
	if !cfg.Metrics.Enabled {
		logger.Info("Metrics disabled")
		return metrics.NewNoOpRegistry(), nil
	}

	registry, err := metrics.NewPrometheusRegistry(cfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics registry: %w", err)
	}
	logger.Info("Metrics enabled", "path", cfg.Metrics.Path)
	return registry, nil
}

// SourceParams holds the parameters needed for link source lifecycle management
type SourceParams struct {
	fx.In

	Source domain.LinkSource
	Logger *slog.Logger
}

// RegisterSourceHooks closes the link source on shutdown
func RegisterSourceHooks(lc fx.Lifecycle, params SourceParams) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := params.Source.Close(); err != nil {
				params.Logger.Error("Failed to close link source", "error", err)
				return err
			}
			params.Logger.Info("Link source closed successfully")
			return nil
		},
	})
}

// CacheParams holds the parameters needed to warm the link cache
type CacheParams struct {
	fx.In

	Resolver *application.Resolver
	Logger   *slog.Logger
}

// RegisterCacheHooks loads the link table once at startup. A failed load is logged and
// left to the first request to retry.
func RegisterCacheHooks(lc fx.Lifecycle, params CacheParams) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := params.Resolver.Refresh(ctx, time.Now()); err != nil {
				params.Logger.Warn("Initial link cache load failed", "error", err)
				return nil
			}
			params.Logger.Info("Link cache warmed")
			return nil
		},
	})
}
