package static

import (
	"context"
	"sync"

	"github.com/sp3dr4/hop/internal/domain"
)

// Source serves a fixed, in-memory link table. Used for local runs and tests.
type Source struct {
	mu    sync.RWMutex
	links []domain.Link
}

func NewSource(links []domain.Link) *Source {
	s := &Source{}
	s.Set(links)
	return s
}

// Set replaces the table contents.
func (s *Source) Set(links []domain.Link) {
	cp := make([]domain.Link, len(links))
	copy(cp, links)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.links = cp
}

func (s *Source) ListLinks(ctx context.Context, limit int) ([]domain.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.links)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.Link, n)
	copy(out, s.links[:n])
	return out, nil
}

func (s *Source) HealthCheck(ctx context.Context) error {
	return nil
}

func (s *Source) Close() error {
	return nil
}
