package metrics

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// GetRoutePath extracts the route pattern from the request context
// This helps group metrics by route pattern rather than specific keys
func GetRoutePath(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}

	return NormalizePath(r.URL.Path)
}

// NormalizePath maps raw paths onto route patterns so link keys never become labels
func NormalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}

	switch {
	case path == "/health", path == "/ready", path == "/cache", path == "/redoc":
		return path
	case path == MetricsPath:
		return MetricsPath
	case strings.HasPrefix(path, "/swagger"):
		return "/swagger/*"
	}

	// "/abc123" becomes "/{key}"
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) == 1 && segments[0] != "" {
		return "/{key}"
	}

	return "/*"
}

// FormatStatusCode converts an integer status code to string
func FormatStatusCode(statusCode int) string {
	return strconv.Itoa(statusCode)
}
