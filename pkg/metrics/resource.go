package metrics

import (
	"time"

	"github.com/marmos91/dittores/pkg/resource"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// resourceMetrics is the Prometheus implementation of resource.Metrics.
//
// This implementation collects metrics about resource operations including:
//   - Operation counts by scheme, operation and outcome
//   - Operation latency
//   - Bytes read and written
//   - Error counts by failure reason
type resourceMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec
}

// NewResourceMetrics creates a new Prometheus-backed resource.Metrics
// instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called), which
// makes resources fall back to their built-in no-op implementation.
func NewResourceMetrics() resource.Metrics {
	if !IsEnabled() {
		return nil
	}
	return newResourceMetrics(GetRegistry())
}

func newResourceMetrics(reg prometheus.Registerer) *resourceMetrics {
	return &resourceMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittores_resource_operations_total",
				Help: "Total number of resource operations by scheme, operation and status",
			},
			[]string{"scheme", "operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittores_resource_operation_duration_seconds",
				Help: "Duration of resource operations in seconds",
				Buckets: []float64{
					0.0001, // 100µs
					0.001,  // 1ms
					0.01,   // 10ms
					0.05,   // 50ms
					0.1,    // 100ms
					0.5,    // 500ms
					1.0,    // 1s
					5.0,    // 5s
					30.0,   // 30s
				},
			},
			[]string{"scheme", "operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittores_resource_bytes_total",
				Help: "Total bytes moved through resource streams",
			},
			[]string{"scheme", "direction"}, // read or write
		),
		errorsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittores_resource_errors_total",
				Help: "Total number of failed resource operations by reason",
			},
			[]string{"scheme", "operation", "reason"},
		),
	}
}

// ObserveOperation implements resource.Metrics.ObserveOperation
func (m *resourceMetrics) ObserveOperation(scheme, operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		m.errorsTotal.WithLabelValues(scheme, operation, resource.ReasonOf(err).String()).Inc()
	}

	m.operationsTotal.WithLabelValues(scheme, operation, status).Inc()
	m.operationDuration.WithLabelValues(scheme, operation).Observe(duration.Seconds())
}

// RecordBytes implements resource.Metrics.RecordBytes
func (m *resourceMetrics) RecordBytes(scheme, direction string, bytes int64) {
	m.bytesTransferred.WithLabelValues(scheme, direction).Add(float64(bytes))
}
