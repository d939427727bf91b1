// Package airtable lists link records from an Airtable table over its REST API.
package airtable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go"

	"github.com/sp3dr4/hop/internal/domain"
)

const (
	DefaultEndpoint = "https://api.airtable.com"

	// error bodies beyond this are truncated in messages
	maxErrorBody = 4 << 10
)

type Options struct {
	Endpoint      string
	APIKey        string
	BaseID        string
	Table         string
	View          string
	RetryAttempts uint
	RetryDelay    time.Duration
	HTTPClient    *http.Client
}

// Source reads the link table. Each call issues one list request; the offset
// Airtable returns for further pages is ignored.
type Source struct {
	opts   Options
	client *http.Client
	logger *slog.Logger
}

func NewSource(opts Options, logger *slog.Logger) *Source {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.RetryAttempts == 0 {
		opts.RetryAttempts = 1
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{opts: opts, client: client, logger: logger}
}

type listResponse struct {
	Records []record `json:"records"`
	Offset  string   `json:"offset,omitempty"`
}

type record struct {
	ID          string      `json:"id"`
	CreatedTime string      `json:"createdTime"`
	Fields      domain.Link `json:"fields"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// APIError is a non-2xx answer from Airtable.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("airtable: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("airtable: status %d: %s: %s", e.StatusCode, e.Type, e.Message)
}

func (e *APIError) Unwrap() error {
	return domain.ErrSourceUnavailable
}

// retryable reports whether another attempt could succeed.
func (e *APIError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func (s *Source) ListLinks(ctx context.Context, limit int) ([]domain.Link, error) {
	var links []domain.Link

	err := retry.Do(
		func() error {
			var err error
			links, err = s.list(ctx, limit)
			var apiErr *APIError
			if errors.As(err, &apiErr) && !apiErr.retryable() {
				return retry.Unrecoverable(err)
			}
			if errors.Is(err, domain.ErrInvalidRecord) {
				return retry.Unrecoverable(err)
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(s.opts.RetryAttempts),
		retry.Delay(s.opts.RetryDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			if n+1 < s.opts.RetryAttempts {
				s.logger.Warn("Retrying Airtable list request", "attempt", n+2, "error", err)
			}
		}),
	)
	if err != nil {
		return nil, err
	}
	return links, nil
}

func (s *Source) list(ctx context.Context, limit int) ([]domain.Link, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.listURL(limit), nil)
	if err != nil {
		return nil, fmt.Errorf("build airtable request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.opts.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSourceUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp)
	}

	var body listResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode airtable response: %w", domain.ErrInvalidRecord, err)
	}
	if body.Offset != "" {
		s.logger.Debug("Airtable returned more pages than requested, ignoring offset", "limit", limit)
	}

	links := make([]domain.Link, 0, len(body.Records))
	for _, rec := range body.Records {
		link := rec.Fields
		link.RecordID = rec.ID
		links = append(links, link)
	}
	return links, nil
}

func (s *Source) listURL(limit int) string {
	endpoint := strings.TrimRight(s.opts.Endpoint, "/")
	query := url.Values{}
	query.Set("maxRecords", strconv.Itoa(limit))
	if s.opts.View != "" {
		query.Set("view", s.opts.View)
	}
	return fmt.Sprintf("%s/v0/%s/%s?%s",
		endpoint,
		url.PathEscape(s.opts.BaseID),
		url.PathEscape(s.opts.Table),
		query.Encode(),
	)
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

	var body errorResponse
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Message != "" {
		apiErr.Type = body.Error.Type
		apiErr.Message = body.Error.Message
		return apiErr
	}

	// Airtable sometimes answers with "error": "NOT_FOUND" instead of an object
	var flat struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &flat); err == nil && flat.Error != "" {
		apiErr.Type = flat.Error
	}
	return apiErr
}

func (s *Source) HealthCheck(ctx context.Context) error {
	_, err := s.list(ctx, 1)
	return err
}

func (s *Source) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
