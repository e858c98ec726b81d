package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "payroll_"

	resultSuccess = "success"
	resultError   = "error"

	postResultPosted  = "posted"
	postResultFailed  = "failed"
	postResultSkipped = "skipped"
)

var (
	registerOnce sync.Once

	ingestFiles     *prometheus.CounterVec
	ingestLatency   *prometheus.HistogramVec
	ingestRowErrors prometheus.Counter

	analyzeTotal   *prometheus.CounterVec
	analyzeLatency *prometheus.HistogramVec

	branchExecTotal   *prometheus.CounterVec
	branchExecLatency *prometheus.HistogramVec
	linePostTotal     *prometheus.CounterVec
	linePostLatency   *prometheus.HistogramVec

	standingRunTotal   *prometheus.CounterVec
	standingRunLatency *prometheus.HistogramVec
	standingOrderTotal *prometheus.CounterVec

	summaryExportTotal   *prometheus.CounterVec
	summaryExportLatency *prometheus.HistogramVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		ingestFiles = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_files_total",
				Help: "Total payroll file ingestions by result",
			},
			[]string{"result"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Payroll file ingest latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		ingestRowErrors = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_row_errors_total",
				Help: "Total rejected payroll rows",
			},
		)

		analyzeTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "analyze_total",
				Help: "Total allocation analysis runs by result",
			},
			[]string{"result"},
		)
		analyzeLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "analyze_latency_seconds",
				Help:    "Allocation analysis latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		branchExecTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "branch_execution_total",
				Help: "Total branch execution runs by result",
			},
			[]string{"result"},
		)
		branchExecLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "branch_execution_latency_seconds",
				Help:    "Branch execution latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		linePostTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "line_postings_total",
				Help: "Total salary line postings by outcome",
			},
			[]string{"outcome"},
		)
		linePostLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "line_posting_latency_seconds",
				Help:    "Ledger posting latency per line in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		)

		standingRunTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "standing_order_runs_total",
				Help: "Total standing order scheduler runs by result",
			},
			[]string{"result"},
		)
		standingRunLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "standing_order_run_latency_seconds",
				Help:    "Standing order run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		standingOrderTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "standing_order_postings_total",
				Help: "Total standing order postings by outcome",
			},
			[]string{"outcome"},
		)

		summaryExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "summary_export_total",
				Help: "Total posting summary exports by format and result",
			},
			[]string{"format", "result"},
		)
		summaryExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "summary_export_latency_seconds",
				Help:    "Posting summary export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			ingestFiles,
			ingestLatency,
			ingestRowErrors,
			analyzeTotal,
			analyzeLatency,
			branchExecTotal,
			branchExecLatency,
			linePostTotal,
			linePostLatency,
			standingRunTotal,
			standingRunLatency,
			standingOrderTotal,
			summaryExportTotal,
			summaryExportLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveIngest records ingest duration and result.
func ObserveIngest(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if ingestFiles != nil {
		ingestFiles.WithLabelValues(result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// AddRowErrors increments the rejected row counter by count.
func AddRowErrors(count int) {
	if count <= 0 {
		return
	}
	if ingestRowErrors != nil {
		ingestRowErrors.Add(float64(count))
	}
}

// ObserveAnalyze records allocation analysis latency and result.
func ObserveAnalyze(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if analyzeTotal != nil {
		analyzeTotal.WithLabelValues(result).Inc()
	}
	if analyzeLatency != nil {
		analyzeLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveBranchExecution records branch execution latency and result.
func ObserveBranchExecution(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if branchExecTotal != nil {
		branchExecTotal.WithLabelValues(result).Inc()
	}
	if branchExecLatency != nil {
		branchExecLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveLinePosting records a single line posting outcome.
func ObserveLinePosting(outcome string, duration time.Duration) {
	if outcome == "" {
		outcome = postResultPosted
	}
	if linePostTotal != nil {
		linePostTotal.WithLabelValues(outcome).Inc()
	}
	if linePostLatency != nil {
		linePostLatency.WithLabelValues(outcome).Observe(duration.Seconds())
	}
}

// ObserveStandingRun records a scheduler run latency and result.
func ObserveStandingRun(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if standingRunTotal != nil {
		standingRunTotal.WithLabelValues(result).Inc()
	}
	if standingRunLatency != nil {
		standingRunLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncStandingOrderPosting increments standing order posting outcome counters.
func IncStandingOrderPosting(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	if standingOrderTotal != nil {
		standingOrderTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveSummaryExport records export latency and result.
func ObserveSummaryExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if summaryExportTotal != nil {
		summaryExportTotal.WithLabelValues(format, result).Inc()
	}
	if summaryExportLatency != nil {
		summaryExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	PostingPosted  = postResultPosted
	PostingFailed  = postResultFailed
	PostingSkipped = postResultSkipped
)
