package sqlite

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jmoiron/sqlx"

	"github.com/sp3dr4/hop/internal/domain"
)

const linksTable = "links"

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type LinkRepository struct {
	db       *sqlx.DB
	relation string
}

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
		FROM "%s"
		ORDER BY id
		LIMIT $1
	`, r.relation)

	links := []domain.Link{}
	if err := r.db.SelectContext(ctx, &links, query, limit); err != nil {
		return nil, fmt.Errorf("%w: list links: %w", domain.ErrSourceUnavailable, err)
	}

	return links, nil
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
