package metrics

import (
	"database/sql"
	"log"

	"github.com/prometheus/client_golang/prometheus"
)

func registerDBMetrics(db *sql.DB, logger *log.Logger) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "pending_salary_lines",
			Help: "Salary lines awaiting posting",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM salary_lines WHERE status = 'pending'")
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "failed_salary_lines",
			Help: "Salary lines in failed state",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM salary_lines WHERE status = 'failed'")
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "active_standing_orders",
			Help: "Active standing orders",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM standing_orders WHERE active")
		},
	))
}

func queryCount(db *sql.DB, logger *log.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		if logger != nil {
			logger.Printf("metrics query failed: %v", err)
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
