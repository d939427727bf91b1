package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sp3dr4/hop/internal/domain"
)

const linksTable = "links"

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// LinkRepository lists links from the links table, or from a view over it.
type LinkRepository struct {
	db       *sqlx.DB
	relation string
}

// NewLinkRepository reads from view when set. The view must expose the links columns.
func NewLinkRepository(db *sqlx.DB, view string) (*LinkRepository, error) {
	relation := linksTable
	if view != "" {
		if !identifierPattern.MatchString(view) {
			return nil, fmt.Errorf("invalid view name %q", view)
		}
		relation = view
	}
	return &LinkRepository{db: db, relation: relation}, nil
}

func (r *LinkRepository) ListLinks(ctx context.Context, limit int) ([]domain.Link, error) {
	query := fmt.Sprintf(`
		SELECT CAST(id AS TEXT) AS record_id, name, link_key, resolved_key, target_url, enabled
		FROM %s
		ORDER BY id
		LIMIT $1
	`, pq.QuoteIdentifier(r.relation))

	links := []domain.Link{}
	if err := r.db.SelectContext(ctx, &links, query, limit); err != nil {
		return nil, r.handlePostgreSQLError(err, "list links")
	}

	slog.Debug("Links listed", "relation", r.relation, "count", len(links))
	return links, nil
}

// handlePostgreSQLError converts PostgreSQL-specific errors to domain errors
func (r *LinkRepository) handlePostgreSQLError(err error, operation string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		slog.Error("PostgreSQL error",
			"operation", operation,
			"code", pqErr.Code,
			"message", pqErr.Message,
			"detail", pqErr.Detail,
		)

		switch pqErr.Code.Class() {
		case "08": // connection exception
			return fmt.Errorf("%w: database connection error: %s", domain.ErrSourceUnavailable, pqErr.Message)
		case "42": // syntax error or access rule violation, e.g. missing view
			return fmt.Errorf("%w: %s: %s", domain.ErrSourceUnavailable, operation, pqErr.Message)
		default:
			return fmt.Errorf("database error [%s]: %s", pqErr.Code, pqErr.Message)
		}
	}

	return fmt.Errorf("%s: %w", operation, err)
}

func (r *LinkRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *LinkRepository) HealthCheck(ctx context.Context) error {
	if r.db == nil {
		return errors.New("database connection is nil")
	}
	return r.db.PingContext(ctx)
}
