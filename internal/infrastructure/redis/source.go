package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/sp3dr4/hop/internal/domain"
)

// LinkSource reads links from a Redis list. Each element is a JSON object with the
// same fields as an Airtable record (uid, resolvedUid, url, enabled, name); list
// order is fetch order.
type LinkSource struct {
	client *redis.Client
	key    string
	logger *slog.Logger
}

func NewLinkSource(client *redis.Client, key string, logger *slog.Logger) *LinkSource {
	return &LinkSource{
		client: client,
		key:    key,
		logger: logger,
	}
}

func (s *LinkSource) ListLinks(ctx context.Context, limit int) ([]domain.Link, error) {
	values, err := s.client.LRange(ctx, s.key, 0, int64(limit)-1).Result()
	if err != nil {
		s.logger.Error("Failed to read links from Redis", "key", s.key, "error", err)
		return nil, fmt.Errorf("%w: redis lrange failed: %w", domain.ErrSourceUnavailable, err)
	}

	links := make([]domain.Link, 0, len(values))
	for i, val := range values {
		var link domain.Link
		if err := json.Unmarshal([]byte(val), &link); err != nil {
			s.logger.Error("Failed to unmarshal link", "key", s.key, "index", i, "error", err)
			return nil, fmt.Errorf("%w: element %d: %w", domain.ErrInvalidRecord, i, err)
		}
		if link.RecordID == "" {
			link.RecordID = s.recordID(i)
		}
		links = append(links, link)
	}

	return links, nil
}

func (s *LinkSource) recordID(index int) string {
	return fmt.Sprintf("%s:%d", s.key, index)
}

func (s *LinkSource) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.logger.Error("Failed to ping Redis", "error", err)
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (s *LinkSource) Close() error {
	return s.client.Close()
}
