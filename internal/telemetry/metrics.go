// Package telemetry provides prometheus instrumentation for the trace sync
// server.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's prometheus registry and instrument sets.
type Metrics struct {
	registry *prometheus.Registry

	Sync *SyncMetrics
	HTTP *HTTPMetrics
}

// NewMetrics creates the metric sets on a dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Sync:     newSyncMetrics(factory),
		HTTP:     newHTTPMetrics(factory),
	}
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SyncMetrics holds the instruments for sync operation metrics.
type SyncMetrics struct {
	attempts     *prometheus.CounterVec
	syncDuration *prometheus.HistogramVec
}

func newSyncMetrics(factory promauto.Factory) *SyncMetrics {
	return &SyncMetrics{
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cts_sync_attempts_total",
			Help: "Number of audited sync attempts by type and outcome",
		}, []string{"sync_type", "outcome"}),
		syncDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cts_sync_duration_seconds",
			Help:    "Duration of sync passes in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"sync_type"}),
	}
}

// RecordAttempt records one audited sync attempt. Safe to call on a nil
// receiver (no-op metrics).
func (m *SyncMetrics) RecordAttempt(syncType, outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(syncType, outcome).Inc()
}

// RecordSyncDuration records the duration of one sync pass.
func (m *SyncMetrics) RecordSyncDuration(syncType string, seconds float64) {
	if m == nil {
		return
	}
	m.syncDuration.WithLabelValues(syncType).Observe(seconds)
}
