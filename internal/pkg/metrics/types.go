package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry defines the interface for metrics collection
type Registry interface {
	// HTTP Metrics
	RecordHTTPRequest(method, path, statusCode string, duration float64)
	IncHTTPRequestsInFlight()
	DecHTTPRequestsInFlight()

	// Resolver Metrics
	IncLinksResolved(outcome string)
	RecordCacheRefresh(result string, duration float64)
	SetCachedLinks(n int)

	// Prometheus-specific methods
	GetRegistry() *prometheus.Registry
	GetHandler() http.Handler
}

// NoOpRegistry provides a no-op implementation for when metrics are disabled
type NoOpRegistry struct{}

func NewNoOpRegistry() Registry {
	return &NoOpRegistry{}
}

func (n *NoOpRegistry) RecordHTTPRequest(method, path, statusCode string, duration float64) {}
func (n *NoOpRegistry) IncHTTPRequestsInFlight()                                            {}
func (n *NoOpRegistry) DecHTTPRequestsInFlight()                                            {}
func (n *NoOpRegistry) IncLinksResolved(outcome string)                                     {}
func (n *NoOpRegistry) RecordCacheRefresh(result string, duration float64)                  {}
func (n *NoOpRegistry) SetCachedLinks(count int)                                            {}
func (n *NoOpRegistry) GetRegistry() *prometheus.Registry                                   { return nil }
func (n *NoOpRegistry) GetHandler() http.Handler                                            { return nil }

// Common label names as constants
const (
	LabelMethod     = "method"
	LabelPath       = "path"
	LabelStatusCode = "status_code"
	LabelOutcome    = "outcome"
	LabelResult     = "result"
)

// Label values for resolver metrics
const (
	OutcomeFound    = "found"
	OutcomeNotFound = "not_found"

	RefreshSuccess = "success"
	RefreshFailure = "failure"
)
