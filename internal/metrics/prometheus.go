package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Worker metrics
	WorkerExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boxscout_worker_executions_total",
			Help: "Total number of worker executions",
		},
		[]string{"worker", "status"}, // status: success|error
	)

	WorkerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "boxscout_worker_duration_seconds",
			Help:    "Worker execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"worker"},
	)

	WorkerLastRun = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "boxscout_worker_last_run_timestamp",
			Help: "Unix timestamp of last worker execution",
		},
		[]string{"worker"},
	)

	// Scan metrics
	SymbolsEvaluated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boxscout_symbols_evaluated_total",
			Help: "Total number of symbol evaluations",
		},
		[]string{"outcome"}, // outcome: idea|skip|error
	)

	GateFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boxscout_gate_failures_total",
			Help: "Total gate failures by skip reason",
		},
		[]string{"reason"},
	)

	AlertsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boxscout_alerts_emitted_total",
			Help: "Total number of alerts emitted",
		},
		[]string{"direction", "stock_only"},
	)

	AlertConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "boxscout_alert_confidence",
			Help:    "Confidence score distribution of emitted alerts",
			Buckets: []float64{6, 6.5, 7, 7.5, 8, 8.5, 9, 9.5, 10},
		},
	)

	// Provider metrics
	ProviderAPICalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boxscout_provider_api_calls_total",
			Help: "Total number of market-data provider API calls",
		},
		[]string{"endpoint", "status"}, // status: success|error|rate_limited
	)

	ProviderAPILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "boxscout_provider_api_latency_seconds",
			Help:    "Market-data provider API latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"endpoint"},
	)

	// Database metrics
	DBQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boxscout_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"database", "operation", "status"}, // database: postgres|clickhouse|redis
	)

	// System metrics
	KafkaMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boxscout_kafka_messages_total",
			Help: "Total Kafka messages produced",
		},
		[]string{"topic", "status"},
	)
)

// Init registers all metrics with Prometheus
func Init() {
	prometheus.MustRegister(WorkerExecutions)
	prometheus.MustRegister(WorkerDuration)
	prometheus.MustRegister(WorkerLastRun)

	prometheus.MustRegister(SymbolsEvaluated)
	prometheus.MustRegister(GateFailures)
	prometheus.MustRegister(AlertsEmitted)
	prometheus.MustRegister(AlertConfidence)

	prometheus.MustRegister(ProviderAPICalls)
	prometheus.MustRegister(ProviderAPILatency)

	prometheus.MustRegister(DBQueries)
	prometheus.MustRegister(KafkaMessages)
}

// Handler returns the HTTP handler for the metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}
