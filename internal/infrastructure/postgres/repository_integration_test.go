//go:build integration

package postgres

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	postgresContainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/sp3dr4/hop/internal/domain"
	"github.com/sp3dr4/hop/internal/infrastructure/migrations"
)

func setupPostgres(t *testing.T) *sqlx.DB {
	t.Helper()
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
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sqlx.Connect("postgres", connStr)
	require.NoError(t, err)

	dir, err := filepath.Abs("../../../migrations/postgres")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(db, "postgres", dir))

	return db
}

func TestLinkRepository_Integration(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	rows := []struct {
		key, url string
		enabled  bool
	}{
		{"abc", "https://example.com/a", true},
		{"abc", "https://example.com/a-shadowed", true},
		{"off", "https://example.com/off", false},
	}
	for _, row := range rows {
		_, err := db.ExecContext(ctx,
			`INSERT INTO links (name, link_key, resolved_key, target_url, enabled) VALUES ($1, $2, $3, $4, $5)`,
			row.key, row.key, row.key, row.url, row.enabled)
		require.NoError(t, err)
	}

	repo, err := NewLinkRepository(db, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	require.NoError(t, repo.HealthCheck(ctx))

	links, err := repo.ListLinks(ctx, 9999)
	require.NoError(t, err)
	require.Len(t, links, 3)
	assert.Equal(t, "1", links[0].RecordID)
	assert.Equal(t, "https://example.com/a", links[0].TargetURL)
	assert.Equal(t, "https://example.com/a-shadowed", links[1].TargetURL)
	assert.False(t, links[2].Enabled)

	limited, err := repo.ListLinks(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = db.ExecContext(ctx, `CREATE VIEW live_links AS SELECT * FROM links WHERE enabled`)
	require.NoError(t, err)
	viewRepo, err := NewLinkRepository(db, "live_links")
	require.NoError(t, err)
	live, err := viewRepo.ListLinks(ctx, 9999)
	require.NoError(t, err)
	assert.Len(t, live, 2)

	missing, err := NewLinkRepository(db, "missing_view")
	require.NoError(t, err)
	_, err = missing.ListLinks(ctx, 10)
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
}
