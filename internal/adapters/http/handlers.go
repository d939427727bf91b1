package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sp3dr4/hop/internal/application"
	"github.com/sp3dr4/hop/internal/domain"
)

const (
	keyParam     = "key"
	keyQuery     = "uid"
	nocacheQuery = "nocache"
)

type Handlers struct {
	service *application.RedirectService
	source  domain.LinkSource
	now     func() time.Time
}

func NewHandlers(service *application.RedirectService, source domain.LinkSource) *Handlers {
	return &Handlers{
		service: service,
		source:  source,
		now:     time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (h *Handlers) WithClock(now func() time.Time) *Handlers {
	h.now = now
	return h
}

// HandleHealth handles the health check endpoint.
//
//	@Summary		Health check endpoint
//	@Description	Check if the service is running
//	@Tags			health
//	@Produce		plain
//	@Success		200	{string}	string	"OK"
//	@Router			/health [get]
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK")
}

// HandleReady handles the readiness check endpoint.
//
//	@Summary		Readiness check endpoint
//	@Description	Check if the link source is reachable
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	object{status=string,timestamp=string}	"Service is ready"
//	@Failure		503	{object}	ErrorResponse							"Service is not ready"
//	@Router			/ready [get]
func (h *Handlers) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.source.HealthCheck(ctx); err != nil {
		slog.Error("Readiness check failed", "error", err)
		respondWithError(w, http.StatusServiceUnavailable, "Service not ready: link source unavailable")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{
		"status":    "ready",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// HandleCacheStatus reports the state of the link cache.
//
//	@Summary		Link cache status
//	@Description	Size and age of the cached link snapshot
//	@Tags			cache
//	@Produce		json
//	@Success		200	{object}	application.CacheStatus
//	@Router			/cache [get]
func (h *Handlers) HandleCacheStatus(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, h.service.CacheStatus(h.now()))
}

// HandleRedirect handles the redirect endpoint.
//
//	@Summary		Redirect to the link target
//	@Description	Look the key up in the link table and redirect to its URL. Any nocache parameter forces a refetch of the table. Keys equal to an operational path (health, ready, cache, redoc, swagger, metrics) are shadowed by those routes and resolve only through ?uid=.
//	@Tags			links
//	@Produce		json
//	@Param			key		path	string	true	"Link key"
//	@Param			nocache	query	string	false	"Bypass the link cache"
//	@Success		308		"Redirect to the link target"
//	@Failure		404		{object}	NotFoundResponse	"Link not found"
//	@Router			/{key} [get]
func (h *Handlers) HandleRedirect(w http.ResponseWriter, r *http.Request) {
	req := h.parseRedirectRequest(r)
	result := h.service.Redirect(r.Context(), req)

	if result.Resolution.IsFound() {
		w.Header().Set("Location", result.Resolution.URL)
		w.WriteHeader(http.StatusPermanentRedirect)
		return
	}

	respondWithJSON(w, http.StatusNotFound, NotFoundResponse{
		Error:     domain.ErrLinkNotFound.Error(),
		Source:    result.Source,
		Timestamp: result.Timestamp,
	})
}

func (h *Handlers) parseRedirectRequest(r *http.Request) application.RedirectRequest {
	query := r.URL.Query()

	key := chi.URLParam(r, keyParam)
	if key == "" {
		key = query.Get(keyQuery)
	}
	_, bypass := query[nocacheQuery]

	return application.RedirectRequest{
		Key:         key,
		BypassCache: bypass,
		ClientIP:    clientIP(r),
		Protocol:    protocol(r),
		Host:        r.Host,
		Now:         h.now(),
	}
}

// clientIP prefers the first X-Forwarded-For hop and falls back to the peer address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func protocol(r *http.Request) string {
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		first, _, _ := strings.Cut(proto, ",")
		return strings.TrimSpace(first)
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

// NotFoundResponse is the body of a 404 from the redirect endpoint.
type NotFoundResponse struct {
	Error     string `json:"error" example:"link not found"`
	Source    string `json:"source" example:"https://go.example.com/abc"`
	Timestamp string `json:"timestamp" example:"2024-01-31T12:00:00.000Z"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error     map[string]string `json:"error"`
	Timestamp string            `json:"timestamp" example:"2024-01-31T12:00:00Z"`
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{
		Error: map[string]string{
			"message": message,
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
