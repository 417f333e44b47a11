package metrics

import (
	"github.com/marmos91/dittores/pkg/backend/kv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// engineMetrics is the Prometheus implementation of kv.ManagerMetrics.
type engineMetrics struct {
	opened      prometheus.Counter
	closed      *prometheus.CounterVec
	openEngines prometheus.Gauge
}

// NewEngineMetrics creates a new Prometheus-backed kv.ManagerMetrics
// instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewEngineMetrics() kv.ManagerMetrics {
	if !IsEnabled() {
		return nil
	}
	return newEngineMetrics(GetRegistry())
}

func newEngineMetrics(reg prometheus.Registerer) *engineMetrics {
	return &engineMetrics{
		opened: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittores_kv_engines_opened_total",
				Help: "Total number of kv databases opened",
			},
		),
		closed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittores_kv_engines_closed_total",
				Help: "Total number of kv databases closed by reason",
			},
			[]string{"reason"}, // collected, stale, shutdown
		),
		openEngines: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittores_kv_engines_open",
				Help: "Number of rows in the kv engine table",
			},
		),
	}
}

func (m *engineMetrics) EngineOpened(string) {
	m.opened.Inc()
}

func (m *engineMetrics) EngineClosed(_ string, reason string) {
	m.closed.WithLabelValues(reason).Inc()
}

func (m *engineMetrics) SetOpenEngines(n int) {
	m.openEngines.Set(float64(n))
}
