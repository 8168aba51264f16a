package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	reportEngine = "report_engine"

	reportsSubmittedTotal = "reports_submitted_total"
	reportsProcessedTotal = "reports_processed_total"
	reportsOrphanedCount  = "reports_orphaned_count"

	processingDuration = "report_processing_duration_seconds"

	// Labels
	outcomeLabel = "outcome"
)

var reportsProcessedLabels = []string{
	outcomeLabel,
}

/**
* Metrics definition
**/
var reportsSubmittedTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: reportEngine,
		Name:      reportsSubmittedTotal,
		Help:      "number of report requests submitted",
	},
)

var reportsProcessedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: reportEngine,
		Name:      reportsProcessedTotal,
		Help:      "number of report jobs processed partitioned by outcome",
	},
	reportsProcessedLabels,
)

var reportsOrphanedCountMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: reportEngine,
		Name:      reportsOrphanedCount,
		Help:      "number of pending report records with no matching queue entry",
	},
)

var processingDurationMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Subsystem: reportEngine,
		Name:      processingDuration,
		Help:      "time spent processing a report job partitioned by outcome",
		Buckets:   []float64{1, 5, 10, 30, 60, 120},
	},
	reportsProcessedLabels,
)

func IncreaseReportsSubmittedMetric() {
	reportsSubmittedTotalMetric.Inc()
}

func IncreaseReportsProcessedMetric(outcome string) {
	labels := prometheus.Labels{
		outcomeLabel: outcome,
	}
	reportsProcessedTotalMetric.With(labels).Inc()
}

func UpdateOrphanedReportsMetric(count int) {
	reportsOrphanedCountMetric.Set(float64(count))
}

func ObserveProcessingDurationMetric(outcome string, seconds float64) {
	labels := prometheus.Labels{
		outcomeLabel: outcome,
	}
	processingDurationMetric.With(labels).Observe(seconds)
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(reportsSubmittedTotalMetric)
	prometheus.MustRegister(reportsProcessedTotalMetric)
	prometheus.MustRegister(reportsOrphanedCountMetric)
	prometheus.MustRegister(processingDurationMetric)
}
