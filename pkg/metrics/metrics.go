// Package metrics exposes Prometheus metrics for the catalog service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "datacatalog"

// Metrics holds the service's collectors, registered on their own
// registry.
type Metrics struct {
	registry *prometheus.Registry

	// RequestDuration tracks HTTP request latency by route, method and
	// status code.
	RequestDuration *prometheus.HistogramVec

	// Searches counts searches by outcome.
	Searches *prometheus.CounterVec

	// SearchHits observes the total hit count of each successful search.
	SearchHits prometheus.Histogram

	// Notifications counts notifications by outcome.
	Notifications *prometheus.CounterVec

	// Cascade counts collaborator deletes by service and result.
	Cascade *prometheus.CounterVec

	// StreamListeners is the number of connected event stream clients.
	StreamListeners prometheus.Gauge

	// StreamDropped counts events dropped for slow stream clients.
	StreamDropped prometheus.Counter
}

// New creates and registers the service metrics plus the Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Time spent serving HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "code"}),
		Searches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Searches by outcome",
		}, []string{"outcome"}),
		SearchHits: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_hits",
			Help:      "Total hits per successful search",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications by outcome",
		}, []string{"outcome"}),
		Cascade: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_deletes_total",
			Help:      "Deletes sent to collaborating services by service and result",
		}, []string{"service", "deleted"}),
		StreamListeners: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_listeners",
			Help:      "Connected event stream clients",
		}),
		StreamDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_dropped_events_total",
			Help:      "Events dropped for slow stream clients",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRequest records one served request.
func (m *Metrics) ObserveRequest(route, method string, code int, elapsed time.Duration) {
	m.RequestDuration.WithLabelValues(route, method, strconv.Itoa(code)).Observe(elapsed.Seconds())
}

// ObserveCascade records the result of one collaborator delete.
func (m *Metrics) ObserveCascade(service string, deleted bool) {
	m.Cascade.WithLabelValues(service, strconv.FormatBool(deleted)).Inc()
}
