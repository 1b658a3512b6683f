// Package metrics exposes the Prometheus instruments used by the folio daemon.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the application.
// Each Collector owns its registry, so tests can create as many as they like.
type Collector struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	StoreOperations *prometheus.CounterVec
	Syncs           *prometheus.CounterVec
	OriginFetches   *prometheus.CounterVec
	Collections     prometheus.Gauge
}

// NewCollector creates a collector with the given namespace.
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		StoreOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_operations_total",
				Help:      "Collection store operations by operation and result",
			},
			[]string{"op", "result"},
		),
		Syncs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_syncs_total",
				Help:      "Storage initializations by winning source",
			},
			[]string{"source"},
		),
		OriginFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "origin_fetches_total",
				Help:      "Remote origin fetches by result",
			},
			[]string{"result"},
		),
		Collections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "collections",
				Help:      "Number of records in the working file after the last operation",
			},
		),
	}

	c.registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.StoreOperations,
		c.Syncs,
		c.OriginFetches,
		c.Collections,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the registry the collector's metrics live in.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one served HTTP request.
func (c *Collector) ObserveRequest(method, route, status string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, status).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveStore records the outcome of a store operation and the resulting catalogue size.
func (c *Collector) ObserveStore(op string, err error, size int) {
	if c == nil {
		return
	}
	c.StoreOperations.WithLabelValues(op, result(err)).Inc()
	if err == nil {
		c.Collections.Set(float64(size))
	}
}

// ObserveSync records which source won an initialization.
func (c *Collector) ObserveSync(source string) {
	if c == nil {
		return
	}
	c.Syncs.WithLabelValues(source).Inc()
}

// ObserveFetch records a remote origin fetch.
func (c *Collector) ObserveFetch(err error) {
	if c == nil {
		return
	}
	c.OriginFetches.WithLabelValues(result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
