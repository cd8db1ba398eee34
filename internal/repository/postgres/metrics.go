package postgres

import "boxscout/internal/metrics"

// trackQuery records one query outcome
func trackQuery(operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueries.WithLabelValues("postgres", operation, status).Inc()
}
