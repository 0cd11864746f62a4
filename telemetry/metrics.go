package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports garden progress to Prometheus. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	generations        prometheus.Counter
	runs               *prometheus.CounterVec
	failures           prometheus.Counter
	folded             prometheus.Counter
	dropped            prometheus.Counter
	generationDuration prometheus.Histogram
	plants             prometheus.Gauge
	totalAmount        prometheus.Gauge
	maxAbsDrift        prometheus.Gauge
}

// NewMetrics registers the garden metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		generations: f.NewCounter(prometheus.CounterOpts{
			Namespace: "sap",
			Subsystem: "garden",
			Name:      "generations_total",
			Help:      "Completed garden generations",
		}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sap",
			Subsystem: "diffusion",
			Name:      "runs_total",
			Help:      "Successful diffusion calls",
		}, []string{"mode"}),
		failures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "sap",
			Subsystem: "diffusion",
			Name:      "failures_total",
			Help:      "Diffusion calls that returned an error",
		}),
		folded: f.NewCounter(prometheus.CounterOpts{
			Namespace: "sap",
			Subsystem: "diffusion",
			Name:      "amounts_folded_total",
			Help:      "Amount symbols folded into a node",
		}),
		dropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "sap",
			Subsystem: "diffusion",
			Name:      "amounts_dropped_total",
			Help:      "Amount symbols with no enclosing node",
		}),
		generationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sap",
			Subsystem: "garden",
			Name:      "generation_duration_seconds",
			Help:      "Wall time of one garden generation",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		plants: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "sap",
			Subsystem: "garden",
			Name:      "plants",
			Help:      "Plants in the garden",
		}),
		totalAmount: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "sap",
			Subsystem: "garden",
			Name:      "total_amount",
			Help:      "Sum of resource amounts at the last window end",
		}),
		maxAbsDrift: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "sap",
			Subsystem: "garden",
			Name:      "max_abs_drift",
			Help:      "Largest amount drift of any run in the last window",
		}),
	}
}

// ObserveGeneration records one finished generation.
func (m *Metrics) ObserveGeneration(runs []RunStats, failures, plants int, d time.Duration) {
	if m == nil {
		return
	}
	m.generations.Inc()
	m.generationDuration.Observe(d.Seconds())
	m.failures.Add(float64(failures))
	m.plants.Set(float64(plants))
	for _, rs := range runs {
		m.runs.WithLabelValues(rs.Mode).Inc()
		m.folded.Add(float64(rs.Folded))
		m.dropped.Add(float64(rs.Dropped))
	}
}

// ObserveWindow records a flushed window.
func (m *Metrics) ObserveWindow(stats WindowStats) {
	if m == nil {
		return
	}
	m.totalAmount.Set(stats.TotalAmount)
	m.maxAbsDrift.Set(stats.MaxAbsDrift)
}
