package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sp3dr4/hop/config"
)

// PrometheusRegistry implements the Registry interface using Prometheus metrics
type PrometheusRegistry struct {
	registry *prometheus.Registry
	config   config.MetricsConfig

	// HTTP Metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Resolver Metrics
	linksResolvedTotal   *prometheus.CounterVec
	cacheRefreshesTotal  *prometheus.CounterVec
	cacheRefreshDuration *prometheus.HistogramVec
	cachedLinks          prometheus.Gauge
}

// NewPrometheusRegistry creates a new Prometheus metrics registry
func NewPrometheusRegistry(cfg config.MetricsConfig) (Registry, error) {
	registry := prometheus.NewRegistry()

	httpRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{LabelMethod, LabelPath, LabelStatusCode},
	)

	httpRequestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelMethod, LabelPath, LabelStatusCode},
	)

	httpRequestsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "http_requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
	)

	linksResolvedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "links_resolved_total",
			Help:      "Total number of link lookups by outcome",
		},
		[]string{LabelOutcome},
	)

	cacheRefreshesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "cache_refreshes_total",
			Help:      "Total number of link cache refreshes by result",
		},
		[]string{LabelResult},
	)

	cacheRefreshDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "cache_refresh_duration_seconds",
			Help:      "Time spent fetching links from the source",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelResult},
	)

	cachedLinks := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "cache_links",
			Help:      "Number of links in the current cache snapshot",
		},
	)

	metricsCollectors := []prometheus.Collector{
		httpRequestsTotal,
		httpRequestDuration,
		httpRequestsInFlight,
		linksResolvedTotal,
		cacheRefreshesTotal,
		cacheRefreshDuration,
		cachedLinks,
	}

	for _, collector := range metricsCollectors {
		if err := registry.Register(collector); err != nil {
			return nil, err
		}
	}

	// Register Go runtime metrics if enabled
	if cfg.CollectRuntime {
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	return &PrometheusRegistry{
		registry:             registry,
		config:               cfg,
		httpRequestsTotal:    httpRequestsTotal,
		httpRequestDuration:  httpRequestDuration,
		httpRequestsInFlight: httpRequestsInFlight,
		linksResolvedTotal:   linksResolvedTotal,
		cacheRefreshesTotal:  cacheRefreshesTotal,
		cacheRefreshDuration: cacheRefreshDuration,
		cachedLinks:          cachedLinks,
	}, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration
func (p *PrometheusRegistry) RecordHTTPRequest(method, path, statusCode string, duration float64) {
	labels := prometheus.Labels{
		LabelMethod:     method,
		LabelPath:       path,
		LabelStatusCode: statusCode,
	}
	p.httpRequestsTotal.With(labels).Inc()
	p.httpRequestDuration.With(labels).Observe(duration)
}

// IncHTTPRequestsInFlight increments the in-flight HTTP requests counter
func (p *PrometheusRegistry) IncHTTPRequestsInFlight() {
	p.httpRequestsInFlight.Inc()
}

// DecHTTPRequestsInFlight decrements the in-flight HTTP requests counter
func (p *PrometheusRegistry) DecHTTPRequestsInFlight() {
	p.httpRequestsInFlight.Dec()
}

// IncLinksResolved counts one lookup with outcome found or not_found
func (p *PrometheusRegistry) IncLinksResolved(outcome string) {
	p.linksResolvedTotal.WithLabelValues(outcome).Inc()
}

// RecordCacheRefresh counts a refresh attempt and how long the fetch took
func (p *PrometheusRegistry) RecordCacheRefresh(result string, duration float64) {
	p.cacheRefreshesTotal.WithLabelValues(result).Inc()
	p.cacheRefreshDuration.WithLabelValues(result).Observe(duration)
}

func (p *PrometheusRegistry) SetCachedLinks(n int) {
	p.cachedLinks.Set(float64(n))
}

// GetRegistry returns the underlying Prometheus registry
func (p *PrometheusRegistry) GetRegistry() *prometheus.Registry {
	return p.registry
}

// GetHandler returns an HTTP handler for the metrics endpoint
func (p *PrometheusRegistry) GetHandler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
