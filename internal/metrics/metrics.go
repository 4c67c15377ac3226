// Package metrics provides Prometheus metrics for the document store.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	OperationsTotal     *prometheus.CounterVec
	OperationDuration   *prometheus.HistogramVec
	ConflictsTotal      *prometheus.CounterVec
	CacheLookupsTotal   *prometheus.CounterVec
	ChangeEventsDropped prometheus.Counter
	ChangeEventsTotal   *prometheus.CounterVec

	GrpcRequestsTotal    *prometheus.CounterVec
	GrpcRequestDuration  *prometheus.HistogramVec
	GrpcRequestsInFlight prometheus.Gauge
}

// New creates all collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		OperationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "versionstore_operations_total",
				Help: "Total number of document operations",
			},
			[]string{"operation", "status"},
		),
		OperationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "versionstore_operation_duration_seconds",
				Help:    "Duration of document operations in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"operation"},
		),
		ConflictsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "versionstore_optimistic_conflicts_total",
				Help: "Total number of writes rejected by the version compare",
			},
			[]string{"operation"},
		),
		CacheLookupsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "versionstore_cache_lookups_total",
				Help: "Document cache lookups by result",
			},
			[]string{"result"},
		),
		ChangeEventsDropped: f.NewCounter(
			prometheus.CounterOpts{
				Name: "versionstore_change_events_dropped_total",
				Help: "Change events dropped because the feed queue was full",
			},
		),
		ChangeEventsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "versionstore_change_events_published_total",
				Help: "Change events handed to the publisher by status",
			},
			[]string{"status"},
		),
		GrpcRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "versionstore_grpc_requests_total",
				Help: "Total number of gRPC requests",
			},
			[]string{"method", "status"},
		),
		GrpcRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "versionstore_grpc_request_duration_seconds",
				Help:    "Duration of gRPC requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		GrpcRequestsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "versionstore_grpc_requests_in_flight",
				Help: "Number of gRPC requests currently being processed",
			},
		),
	}
}

func (m *Metrics) RecordOperation(operation, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *Metrics) RecordConflict(operation string) {
	if m == nil {
		return
	}
	m.ConflictsTotal.WithLabelValues(operation).Inc()
}

func (m *Metrics) RecordCacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookupsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordChangeDropped() {
	if m == nil {
		return
	}
	m.ChangeEventsDropped.Inc()
}

func (m *Metrics) RecordChangePublished(status string) {
	if m == nil {
		return
	}
	m.ChangeEventsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordGrpcRequest(method, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.GrpcRequestsTotal.WithLabelValues(method, status).Inc()
	m.GrpcRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}
