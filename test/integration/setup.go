//go:build integration

package integration

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	postgresContainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/sp3dr4/hop/config"
	httpAdapter "github.com/sp3dr4/hop/internal/adapters/http"
	"github.com/sp3dr4/hop/internal/application"
	"github.com/sp3dr4/hop/internal/infrastructure/cache"
	"github.com/sp3dr4/hop/internal/infrastructure/migrations"
	postgresSource "github.com/sp3dr4/hop/internal/infrastructure/postgres"
	"github.com/sp3dr4/hop/internal/pkg/metrics"
)

const cacheWindow = 10 * time.Second

var (
	sharedContainer *postgresContainer.PostgresContainer
	sharedDB        *sqlx.DB
	containerOnce   sync.Once
	cleanupOnce     sync.Once
)

// TestEnvironment is a redirector wired to a real PostgreSQL link table.
type TestEnvironment struct {
	DB      *sqlx.DB
	Router  http.Handler
	Clock   *Clock
	Metrics metrics.Registry
}

// Clock is a settable time source shared by the handlers.
type Clock struct {
	now atomic.Int64
}

func (c *Clock) Now() time.Time {
	return time.Unix(0, c.now.Load()).UTC()
}

func (c *Clock) Set(t time.Time) {
	c.now.Store(t.UnixNano())
}

func (c *Clock) Advance(d time.Duration) {
	c.now.Add(int64(d))
}

// SetupTestEnvironment starts a PostgreSQL container (shared), runs migrations, and returns a
// router serving redirects from an empty links table.
func SetupTestEnvironment(t *testing.T) *TestEnvironment {
	containerOnce.Do(func() {
		ctx := context.Background()

		container, err := postgresContainer.Run(ctx,
			"postgres:16-alpine",
			postgresContainer.WithDatabase("hop_test"),
			postgresContainer.WithUsername("test"),
			postgresContainer.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			t.Fatalf("failed to start postgres container: %v", err)
		}
		sharedContainer = container

		connStr, err := container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			t.Fatalf("failed to get connection string: %v", err)
		}

		db, err := sqlx.Connect("postgres", connStr)
		if err != nil {
			t.Fatalf("failed to connect to database: %v", err)
		}
		sharedDB = db

		dir, err := filepath.Abs("../../migrations/postgres")
		if err != nil {
			t.Fatalf("failed to get migrations path: %v", err)
		}
		if err := migrations.Run(db, "postgres", dir); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
	})

	cleanDatabase(t, sharedDB)

	source, err := postgresSource.NewLinkRepository(sharedDB, "")
	if err != nil {
		t.Fatalf("failed to create link source: %v", err)
	}

	cfg := &config.Config{Metrics: config.MetricsConfig{
		Enabled:   true,
		Path:      "/metrics",
		Namespace: "hop",
		Subsystem: "integration",
	}}
	registry, err := metrics.NewPrometheusRegistry(cfg.Metrics)
	if err != nil {
		t.Fatalf("failed to create metrics registry: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	resolver := application.NewResolver(source, cache.NewLinkCache(), application.ResolverOptions{
		CacheDuration: cacheWindow,
		MaxRecords:    config.DefaultMaxRecords,
		SingleFlight:  true,
	}, registry, logger)
	service := application.NewRedirectService(resolver, registry)

	clock := &Clock{}
	clock.Set(time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC))
	handlers := httpAdapter.NewHandlers(service, source).WithClock(clock.Now)

	return &TestEnvironment{
		DB:      sharedDB,
		Router:  httpAdapter.NewRouter(handlers, logger, cfg, registry),
		Clock:   clock,
		Metrics: registry,
	}
}

// InsertLink appends a row to the links table.
func (e *TestEnvironment) InsertLink(t *testing.T, key, targetURL string, enabled bool) {
	t.Helper()
	_, err := e.DB.Exec(
		`INSERT INTO links (name, link_key, resolved_key, target_url, enabled) VALUES ($1, $2, $3, $4, $5)`,
		key, key, key, targetURL, enabled,
	)
	if err != nil {
		t.Fatalf("failed to insert link: %v", err)
	}
}

// CleanupSharedResources should be called once at the end of all tests
func CleanupSharedResources() {
	cleanupOnce.Do(func() {
		ctx := context.Background()
		if sharedDB != nil {
			_ = sharedDB.Close()
		}
		if sharedContainer != nil {
			_ = sharedContainer.Terminate(ctx)
		}
	})
}

// cleanDatabase truncates all tables to ensure test isolation
func cleanDatabase(t *testing.T, db *sqlx.DB) {
	_, err := db.Exec("TRUNCATE TABLE links RESTART IDENTITY CASCADE")
	if err != nil {
		t.Fatalf("failed to clean database: %v", err)
	}
}

// TestMain handles setup and teardown for the entire test suite
func TestMain(m *testing.M) {
	code := m.Run()

	CleanupSharedResources()

	os.Exit(code)
}
