package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sp3dr4/hop/config"
	"github.com/sp3dr4/hop/internal/application"
	"github.com/sp3dr4/hop/internal/domain"
	"github.com/sp3dr4/hop/internal/infrastructure/cache"
	"github.com/sp3dr4/hop/internal/infrastructure/static"
	"github.com/sp3dr4/hop/internal/pkg/metrics"
)

var fixedNow = time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC)

type unhealthySource struct {
	*static.Source
}

func (unhealthySource) HealthCheck(context.Context) error {
	return errors.New("connection refused")
}

func newTestHandlers(source domain.LinkSource) *Handlers {
	resolver := application.NewResolver(source, cache.NewLinkCache(), application.ResolverOptions{
		CacheDuration: 10 * time.Second,
		MaxRecords:    100,
		SingleFlight:  true,
	}, metrics.NewNoOpRegistry(), nil)
	service := application.NewRedirectService(resolver, metrics.NewNoOpRegistry())
	return NewHandlers(service, source).WithClock(func() time.Time { return fixedNow })
}

func newTestRouter(t *testing.T, source domain.LinkSource) http.Handler {
	t.Helper()
	cfg := &config.Config{Metrics: config.MetricsConfig{Enabled: false, Path: "/metrics"}}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewRouter(newTestHandlers(source), logger, cfg, metrics.NewNoOpRegistry())
}

func testLinks() []domain.Link {
	return []domain.Link{
		{RecordID: "rec1", Key: "gh", ResolvedKey: "gh", TargetURL: "https://github.com", Enabled: true},
		{RecordID: "rec2", Key: "old", ResolvedKey: "old", TargetURL: "https://old.example.com", Enabled: false},
		{RecordID: "rec3", Key: "a b", ResolvedKey: "a b", TargetURL: "https://spaces.example.com", Enabled: true},
	}
}

func TestHandleRedirect_Found(t *testing.T) {
	router := newTestRouter(t, static.NewSource(testLinks()))

	tests := []struct {
		name   string
		method string
		target string
		want   string
	}{
		{name: "path key", method: http.MethodGet, target: "/gh", want: "https://github.com"},
		{name: "query key", method: http.MethodGet, target: "/?uid=gh", want: "https://github.com"},
		{name: "head request", method: http.MethodHead, target: "/gh", want: "https://github.com"},
		{name: "escaped path key", method: http.MethodGet, target: "/a%20b", want: "https://spaces.example.com"},
		{name: "nocache without value", method: http.MethodGet, target: "/gh?nocache", want: "https://github.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusPermanentRedirect, w.Code)
			assert.Equal(t, tt.want, w.Header().Get("Location"))
		})
	}
}

func TestHandleRedirect_NotFound(t *testing.T) {
	router := newTestRouter(t, static.NewSource(testLinks()))

	tests := []struct {
		name       string
		target     string
		headers    map[string]string
		wantSource string
	}{
		{
			name:       "unknown key",
			target:     "/missing",
			wantSource: "http://example.com/missing",
		},
		{
			name:       "disabled link",
			target:     "/old",
			wantSource: "http://example.com/old",
		},
		{
			name:       "no key",
			target:     "/",
			wantSource: "http://example.com/",
		},
		{
			name:       "forwarded protocol",
			target:     "/missing",
			headers:    map[string]string{"X-Forwarded-Proto": "https"},
			wantSource: "https://example.com/missing",
		},
		{
			name:       "key is percent encoded",
			target:     "/?uid=a/b",
			wantSource: "http://example.com/a%2Fb",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			require.Equal(t, http.StatusNotFound, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.Empty(t, w.Header().Get("Location"))

			var body NotFoundResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "link not found", body.Error)
			assert.Equal(t, tt.wantSource, body.Source)
			assert.Equal(t, "2024-01-31T12:00:00.000Z", body.Timestamp)
		})
	}
}

func TestHandleRedirect_NoCacheRefetches(t *testing.T) {
	source := static.NewSource(testLinks())
	router := newTestRouter(t, source)

	req := httptest.NewRequest(http.MethodGet, "/new", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)

	source.Set(append(testLinks(), domain.Link{
		RecordID: "rec4", Key: "new", ResolvedKey: "new", TargetURL: "https://new.example.com", Enabled: true,
	}))

	// Still inside the cache window.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/new", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/new?nocache=1", nil))
	assert.Equal(t, http.StatusPermanentRedirect, w.Code)
	assert.Equal(t, "https://new.example.com", w.Header().Get("Location"))
}

func TestParseRedirectRequest(t *testing.T) {
	handlers := newTestHandlers(static.NewSource(nil))

	t.Run("forwarded headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/?uid=abc&nocache=", nil)
		req.Host = "go.example.com"
		req.Header.Set("X-Forwarded-For", " 203.0.113.7 , 10.0.0.1")
		req.Header.Set("X-Forwarded-Proto", "https")

		got := handlers.parseRedirectRequest(req)

		assert.Equal(t, "abc", got.Key)
		assert.True(t, got.BypassCache)
		assert.Equal(t, "203.0.113.7", got.ClientIP)
		assert.Equal(t, "https", got.Protocol)
		assert.Equal(t, "go.example.com", got.Host)
		assert.Equal(t, fixedNow, got.Now)
	})

	t.Run("fallbacks", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.10:51234"

		got := handlers.parseRedirectRequest(req)

		assert.Empty(t, got.Key)
		assert.False(t, got.BypassCache)
		assert.Equal(t, "192.0.2.10", got.ClientIP)
		assert.Equal(t, "http", got.Protocol)
	})

	t.Run("remote address without port", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.10"

		assert.Equal(t, "192.0.2.10", clientIP(req))
	})
}

func TestHandleHealth(t *testing.T) {
	router := newTestRouter(t, static.NewSource(nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestHandleReady(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		router := newTestRouter(t, static.NewSource(nil))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "ready", body["status"])
	})

	t.Run("source unavailable", func(t *testing.T) {
		router := newTestRouter(t, unhealthySource{static.NewSource(nil)})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		var body ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Contains(t, body.Error["message"], "link source unavailable")
	})
}

func TestHandleCacheStatus(t *testing.T) {
	router := newTestRouter(t, static.NewSource(testLinks()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cache", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var empty application.CacheStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &empty))
	assert.Equal(t, 0, empty.Links)
	assert.True(t, empty.Stale)
	assert.Nil(t, empty.FetchedAt)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/gh", nil))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cache", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var warm application.CacheStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &warm))
	assert.Equal(t, 3, warm.Links)
	assert.Equal(t, 2, warm.Enabled)
	assert.False(t, warm.Stale)
	require.NotNil(t, warm.FetchedAt)
	assert.True(t, warm.FetchedAt.Equal(fixedNow))
}

func TestLoggingMiddleware_SetsTraceID(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	handler := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Trace-Id", "trace-123")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "trace-123", w.Header().Get("X-Trace-Id"))
}

func TestRouter_OperationalPathsShadowKeys(t *testing.T) {
	router := newTestRouter(t, static.NewSource([]domain.Link{
		{RecordID: "rec1", Key: "health", ResolvedKey: "health", TargetURL: "https://status.example.com", Enabled: true},
	}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/?uid=health", nil))
	assert.Equal(t, http.StatusPermanentRedirect, w.Code)
	assert.Equal(t, "https://status.example.com", w.Header().Get("Location"))
}
