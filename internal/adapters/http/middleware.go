package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/sp3dr4/hop/internal/pkg/logging"
)

// LoggingMiddleware stores a request-scoped logger carrying the request and trace IDs in
// the context and logs the start and end of every request.
func LoggingMiddleware(baseLogger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := r.Context()

			if reqID := middleware.GetReqID(ctx); reqID != "" {
				ctx = logging.WithRequestID(ctx, reqID)
			}

			traceID := r.Header.Get("X-Trace-Id")
			if traceID == "" {
				traceID = logging.GenerateTraceID()
			}
			ctx = logging.WithTraceID(ctx, traceID)
			w.Header().Set("X-Trace-Id", traceID)

			requestLogger := logging.NewRequestLogger(ctx, baseLogger)
			ctx = logging.WithLogger(ctx, requestLogger)

			requestLogger.Debug("Request started",
				"method", r.Method,
				"host", r.Host,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			)

			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(ww, r.WithContext(ctx))

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status_code", ww.statusCode,
				"duration_ms", float64(time.Since(start).Nanoseconds()) / 1e6,
			}
			if location := ww.Header().Get("Location"); location != "" {
				attrs = append(attrs, "location", location)
			}
			if ww.statusCode >= http.StatusInternalServerError {
				requestLogger.Warn("Request completed", attrs...)
				return
			}
			requestLogger.Info("Request completed", attrs...)
		})
	}
}

// responseWriter captures the status code written by the handler.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
