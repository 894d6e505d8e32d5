package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PipelineMetrics covers the worker's per-phase throughput and latency.
type PipelineMetrics struct {
	worker   string
	registry *prometheus.Registry

	unitsTotal      *prometheus.CounterVec
	batchDuration   *prometheus.HistogramVec
	batchesInFlight *prometheus.GaugeVec
	heartbeats      prometheus.Counter
}

func NewPipelineMetrics(workerID string) *PipelineMetrics {
	registry := prometheus.NewRegistry()

	unitsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "archive",
			Subsystem: "pipeline",
			Name:      "units_processed_total",
			Help:      "Processed documents/chunks by phase and outcome.",
		},
		[]string{"worker", "phase", "outcome"},
	)
	batchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "archive",
			Subsystem: "pipeline",
			Name:      "batch_duration_seconds",
			Help:      "Phase batch duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"worker", "phase"},
	)
	batchesInFlight := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "archive",
			Subsystem: "pipeline",
			Name:      "batches_in_flight",
			Help:      "Batches currently being processed per phase.",
		},
		[]string{"worker", "phase"},
	)
	heartbeats := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "archive",
			Subsystem: "worker",
			Name:      "heartbeats_total",
			Help:      "Heartbeats written to the workers table.",
		},
	)

	registry.MustRegister(unitsTotal, batchDuration, batchesInFlight, heartbeats)

	return &PipelineMetrics{
		worker:          workerID,
		registry:        registry,
		unitsTotal:      unitsTotal,
		batchDuration:   batchDuration,
		batchesInFlight: batchesInFlight,
		heartbeats:      heartbeats,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) StartBatch(phase string) {
	m.batchesInFlight.WithLabelValues(m.worker, phase).Inc()
}

// FinishBatch records one completed sub-batch: the gauge drops, the unit
// counter grows by however many units the batch actually processed.
func (m *PipelineMetrics) FinishBatch(phase string, units int, duration time.Duration, err error) {
	m.batchesInFlight.WithLabelValues(m.worker, phase).Dec()
	m.unitsTotal.WithLabelValues(m.worker, phase, outcome(err)).Add(float64(units))
	m.batchDuration.WithLabelValues(m.worker, phase).Observe(duration.Seconds())
}

func (m *PipelineMetrics) ObserveHeartbeat() {
	m.heartbeats.Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
