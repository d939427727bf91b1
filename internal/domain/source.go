package domain

import "context"

// LinkSource is the read-only tabular store the resolver refreshes from.
type LinkSource interface {
	// ListLinks returns at most limit links in source order.
	ListLinks(ctx context.Context, limit int) ([]Link, error)

	// HealthCheck reports whether the source is reachable
	HealthCheck(ctx context.Context) error

	Close() error
}
