package cache

import (
	"sync/atomic"
	"time"

	"github.com/sp3dr4/hop/internal/domain"
)

// Snapshot is one fetched generation of links. It is immutable once built.
type Snapshot struct {
	links     []domain.Link
	fetchedAt time.Time

	// position of the first enabled link per resolved key
	index   map[string]int
	enabled int
}

func newSnapshot(links []domain.Link, fetchedAt time.Time) *Snapshot {
	s := &Snapshot{
		links:     links,
		fetchedAt: fetchedAt,
		index:     make(map[string]int, len(links)),
	}
	for i, link := range links {
		if !link.Enabled {
			continue
		}
		s.enabled++
		if link.ResolvedKey == "" {
			continue
		}
		if _, seen := s.index[link.ResolvedKey]; !seen {
			s.index[link.ResolvedKey] = i
		}
	}
	return s
}

// Match returns the first enabled link, in fetch order, resolving key.
func (s *Snapshot) Match(key string) (domain.Link, bool) {
	if s == nil || key == "" {
		return domain.Link{}, false
	}
	i, ok := s.index[key]
	if !ok {
		return domain.Link{}, false
	}
	return s.links[i], true
}

func (s *Snapshot) FetchedAt() time.Time {
	return s.fetchedAt
}

func (s *Snapshot) Len() int {
	return len(s.links)
}

func (s *Snapshot) Enabled() int {
	return s.enabled
}

// LinkCache holds the current snapshot. Readers never observe a partial update:
// Replace swaps the whole snapshot in one store.
type LinkCache struct {
	current atomic.Pointer[Snapshot]
}

func NewLinkCache() *LinkCache {
	return &LinkCache{}
}

// Get returns the current snapshot, or nil if nothing was fetched yet.
func (c *LinkCache) Get() *Snapshot {
	return c.current.Load()
}

// Replace installs links as the new snapshot. The slice is owned by the cache afterwards.
func (c *LinkCache) Replace(links []domain.Link, fetchedAt time.Time) *Snapshot {
	s := newSnapshot(links, fetchedAt)
	c.current.Store(s)
	return s
}

// Stale reports whether the cache must be refreshed at now.
func (c *LinkCache) Stale(now time.Time, window time.Duration) bool {
	s := c.current.Load()
	if s == nil {
		return true
	}
	return now.Sub(s.fetchedAt) > window
}
