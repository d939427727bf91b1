package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sp3dr4/hop/internal/domain"
	"github.com/sp3dr4/hop/internal/infrastructure/cache"
	"github.com/sp3dr4/hop/internal/pkg/logging"
	"github.com/sp3dr4/hop/internal/pkg/metrics"
)

const (
	DefaultCacheDuration = 10 * time.Second
	DefaultMaxRecords    = 9999

	refreshKey = "links"
)

type ResolverOptions struct {
	// CacheDuration is the staleness window. A snapshot older than this is refetched.
	// Zero selects DefaultCacheDuration.
	CacheDuration time.Duration
	MaxRecords    int
	// FetchTimeout bounds one ListLinks call. With zero, a non-shared fetch is bounded
	// only by the caller's context and a shared one is unbounded.
	FetchTimeout time.Duration
	// SingleFlight collapses concurrent refreshes into one fetch. When false every
	// caller that sees a stale cache fetches and the last completed fetch wins.
	SingleFlight bool
}

// Resolver answers lookups from a time-windowed cache over a LinkSource.
type Resolver struct {
	source  domain.LinkSource
	cache   *cache.LinkCache
	opts    ResolverOptions
	metrics metrics.Registry
	logger  *slog.Logger
	group   singleflight.Group
}

func NewResolver(source domain.LinkSource, linkCache *cache.LinkCache, opts ResolverOptions, registry metrics.Registry, logger *slog.Logger) *Resolver {
	if opts.CacheDuration <= 0 {
		opts.CacheDuration = DefaultCacheDuration
	}
	if opts.MaxRecords <= 0 {
		opts.MaxRecords = DefaultMaxRecords
	}
	if registry == nil {
		registry = metrics.NewNoOpRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		source:  source,
		cache:   linkCache,
		opts:    opts,
		metrics: registry,
		logger:  logger,
	}
}

// Resolve looks key up, refreshing the cache first when bypassCache is set, the
// cache is empty, or the snapshot is older than the staleness window. A failed
// refresh is logged and counted; the previous snapshot (possibly none) is used.
func (r *Resolver) Resolve(ctx context.Context, key string, bypassCache bool, now time.Time) domain.Resolution {
	if bypassCache || r.cache.Stale(now, r.opts.CacheDuration) {
		if err := r.Refresh(ctx, now); err != nil {
			logging.FromContext(ctx).Warn("Link cache refresh failed, serving previous snapshot",
				"error", err,
				"bypass_cache", bypassCache,
			)
		}
	}

	link, ok := r.cache.Get().Match(key)
	if !ok {
		return domain.NotFound()
	}
	return domain.Found(link.TargetURL)
}

// Refresh fetches all links and replaces the cached snapshot stamped with now.
func (r *Resolver) Refresh(ctx context.Context, now time.Time) error {
	if !r.opts.SingleFlight {
		return r.refresh(ctx, now)
	}
	// The shared fetch must not be cut short by whichever caller started it; each
	// caller stops waiting when its own context ends.
	shared := context.WithoutCancel(ctx)
	ch := r.group.DoChan(refreshKey, func() (any, error) {
		return nil, r.refresh(shared, now)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return fmt.Errorf("wait for link refresh: %w", ctx.Err())
	}
}

func (r *Resolver) refresh(ctx context.Context, now time.Time) (err error) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: panic while listing links: %v", domain.ErrSourceUnavailable, rec)
		}
		result := metrics.RefreshSuccess
		if err != nil {
			result = metrics.RefreshFailure
		}
		r.metrics.RecordCacheRefresh(result, time.Since(start).Seconds())
	}()

	if r.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.FetchTimeout)
		defer cancel()
	}

	links, err := r.source.ListLinks(ctx, r.opts.MaxRecords)
	if err != nil {
		return fmt.Errorf("list links: %w", err)
	}
	if len(links) > r.opts.MaxRecords {
		links = links[:r.opts.MaxRecords]
	}

	snapshot := r.cache.Replace(links, now)
	r.metrics.SetCachedLinks(snapshot.Len())
	r.logger.Debug("Link cache refreshed",
		"links", snapshot.Len(),
		"enabled", snapshot.Enabled(),
		"fetched_at", now,
	)
	return nil
}

// CacheStatus describes the snapshot currently served.
type CacheStatus struct {
	Links     int        `json:"records"`
	Enabled   int        `json:"enabled"`
	FetchedAt *time.Time `json:"fetchedAt,omitempty"`
	AgeMs     int64      `json:"ageMs"`
	Stale     bool       `json:"stale"`
}

func (r *Resolver) Status(now time.Time) CacheStatus {
	snapshot := r.cache.Get()
	if snapshot == nil {
		return CacheStatus{Stale: true}
	}
	fetchedAt := snapshot.FetchedAt()
	return CacheStatus{
		Links:     snapshot.Len(),
		Enabled:   snapshot.Enabled(),
		FetchedAt: &fetchedAt,
		AgeMs:     now.Sub(fetchedAt).Milliseconds(),
		Stale:     r.cache.Stale(now, r.opts.CacheDuration),
	}
}
