package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "flood_trigger"

// Metrics holds the Prometheus counters, histograms, and gauges for the analysis engine.
type Metrics struct {
	PipelineRunning prometheus.Gauge
	RunsTotal       *prometheus.CounterVec // labels: outcome={success,error}
	RunDuration     prometheus.Histogram

	// Per-basin analysis metrics.
	BasinsAnalyzed *prometheus.CounterVec // labels: country
	BasinsSkipped  *prometheus.CounterVec // labels: country, reason
	RecordsWritten *prometheus.CounterVec // labels: country
	NoDataCells    *prometheus.CounterVec // labels: country

	// Decision and alert metrics.
	Decisions       *prometheus.CounterVec // labels: country, state
	AlertsPublished prometheus.Counter
	AlertErrors     prometheus.Counter
	StaleSkipped    prometheus.Counter

	ThresholdCache *prometheus.CounterVec // labels: result={hit,miss}
}

// NewMetrics creates and registers all engine metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.PipelineRunning,
		m.RunsTotal,
		m.RunDuration,
		m.BasinsAnalyzed,
		m.BasinsSkipped,
		m.RecordsWritten,
		m.NoDataCells,
		m.Decisions,
		m.AlertsPublished,
		m.AlertErrors,
		m.StaleSkipped,
		m.ThresholdCache,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, so tests can
// build as many as they need.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the scheduler is active, 0 when shut down.",
		}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Analysis runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete analysis run across all countries.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		BasinsAnalyzed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "basins_analyzed_total",
			Help:      "Basins that produced analysis records.",
		}, []string{"country"}),
		BasinsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "basins_skipped_total",
			Help:      "Basins or stations skipped, by reason.",
		}, []string{"country", "reason"}),
		RecordsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_written_total",
			Help:      "Analysis records written to artifacts.",
		}, []string{"country"}),
		NoDataCells: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "no_data_records_total",
			Help:      "Records whose ensemble had no valid members.",
		}, []string{"country"}),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Activation decisions by state.",
		}, []string{"country", "state"}),
		AlertsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_published_total",
			Help:      "Activation alerts published to the alert topic.",
		}),
		AlertErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_publish_errors_total",
			Help:      "Alert publish failures, including open-breaker rejections.",
		}),
		StaleSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_forecasts_skipped_total",
			Help:      "Triggered decisions withheld because a newer forecast exists.",
		}),
		ThresholdCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "threshold_cache_total",
			Help:      "Threshold cache lookups by result.",
		}, []string{"result"}),
	}
}
