package application

import (
	"context"
	"strings"
	"time"

	"github.com/sp3dr4/hop/internal/domain"
	"github.com/sp3dr4/hop/internal/pkg/logging"
	"github.com/sp3dr4/hop/internal/pkg/metrics"
)

// TimestampLayout is ISO 8601 with milliseconds, always rendered in UTC.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

const notAvailable = "n/a"

// RedirectRequest is what the HTTP adapter extracts from an incoming request.
type RedirectRequest struct {
	Key         string
	BypassCache bool
	ClientIP    string
	Protocol    string
	Host        string
	Now         time.Time
}

type RedirectResult struct {
	Resolution domain.Resolution
	// Source is protocol://host/<encoded key>, the link the client followed.
	Source    string
	Timestamp string
}

type RedirectService struct {
	resolver *Resolver
	metrics  metrics.Registry
}

func NewRedirectService(resolver *Resolver, registry metrics.Registry) *RedirectService {
	if registry == nil {
		registry = metrics.NewNoOpRegistry()
	}
	return &RedirectService{
		resolver: resolver,
		metrics:  registry,
	}
}

// Redirect resolves the request and emits exactly one log line for it:
// info when a link was found, error when it was not.
func (s *RedirectService) Redirect(ctx context.Context, req RedirectRequest) RedirectResult {
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}

	result := RedirectResult{
		Resolution: s.resolver.Resolve(ctx, req.Key, req.BypassCache, now),
		Source:     SourceDescriptor(req.Protocol, req.Host, req.Key),
		Timestamp:  now.UTC().Format(TimestampLayout),
	}

	logger := logging.FromContext(ctx)
	if result.Resolution.IsFound() {
		s.metrics.IncLinksResolved(metrics.OutcomeFound)
		logger.Info("Link resolved",
			"timestamp", result.Timestamp,
			"client_ip", req.ClientIP,
			"source", result.Source,
			"target", result.Resolution.URL,
		)
		return result
	}

	s.metrics.IncLinksResolved(metrics.OutcomeNotFound)
	logger.Error("Link not found",
		"timestamp", result.Timestamp,
		"client_ip", req.ClientIP,
		"source", result.Source,
		"target", notAvailable,
	)
	return result
}

func (s *RedirectService) CacheStatus(now time.Time) CacheStatus {
	return s.resolver.Status(now)
}

// SourceDescriptor builds protocol://host/key with key percent-encoded.
func SourceDescriptor(protocol, host, key string) string {
	return protocol + "://" + host + "/" + EncodeURIComponent(key)
}

// EncodeURIComponent escapes s the way browsers encode a single URI component:
// everything except A-Z a-z 0-9 - _ . ! ~ * ' ( ) is percent-encoded as UTF-8.
func EncodeURIComponent(s string) string {
	const hex = "0123456789ABCDEF"

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isURIUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isURIUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
