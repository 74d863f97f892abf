// Package prometheus is the Prometheus implementation of
// metrics.Metrics.
package prometheus

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/godokan/go-dokan"
	"github.com/godokan/go-dokan/metrics"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "dokanfs"

type callMetrics struct {
	callsTotal    *prometheus.CounterVec
	callDuration  *prometheus.HistogramVec
	callsInFlight *prometheus.GaugeVec
	bytesTotal    *prometheus.CounterVec
	openHandles   prometheus.Gauge
}

var _ metrics.Metrics = (*callMetrics)(nil)

// New registers the dispatcher metrics on reg. A nil reg
// returns the no-op implementation.
func New(reg prometheus.Registerer, namespace string) metrics.Metrics {
	if reg == nil {
		return metrics.Noop()
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &callMetrics{
		callsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "calls_total",
				Help:      "Total number of driver callbacks by operation and status",
			},
			[]string{"operation", "status"},
		),
		callDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "call_duration_seconds",
				Help:      "Duration of driver callbacks in seconds",
				Buckets: []float64{
					0.0001, // 100us
					0.001,  // 1ms
					0.01,   // 10ms
					0.1,    // 100ms
					1,      // 1s
					10,     // 10s
				},
			},
			[]string{"operation"},
		),
		callsInFlight: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "calls_in_flight",
				Help:      "Current number of driver callbacks being processed",
			},
			[]string{"operation"},
		),
		bytesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_transferred_total",
				Help:      "Total bytes read or written through handles",
			},
			[]string{"direction"},
		),
		openHandles: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "open_handles",
				Help:      "Current number of open handles",
			},
		),
	}
}

func (m *callMetrics) RecordCallStart(op string) {
	m.callsInFlight.WithLabelValues(op).Inc()
}

func (m *callMetrics) RecordCall(op string, status dokan.StatusCode, duration time.Duration) {
	m.callsInFlight.WithLabelValues(op).Dec()
	m.callsTotal.WithLabelValues(op, status.String()).Inc()
	m.callDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func (m *callMetrics) RecordBytes(direction string, bytes int) {
	if bytes > 0 {
		m.bytesTotal.WithLabelValues(direction).Add(float64(bytes))
	}
}

func (m *callMetrics) SetOpenHandles(count int) {
	m.openHandles.Set(float64(count))
}

// Handler serves the metrics gathered by reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
