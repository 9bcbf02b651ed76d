package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ModelCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsinsight_model_calls_total",
			Help: "Model completions by outcome (ok, retry, failed)",
		},
		[]string{"outcome"},
	)

	Statements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsinsight_statements_total",
			Help: "SQL statements by outcome (ok, rejected, failed)",
		},
		[]string{"outcome"},
	)

	Charts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsinsight_charts_total",
			Help: "Charts emitted by type",
		},
		[]string{"type"},
	)

	Responses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsinsight_responses_total",
			Help: "Pipeline responses by type",
		},
		[]string{"type"},
	)

	PipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opsinsight_pipeline_duration_seconds",
			Help:    "Duration of one question through the pipeline",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"type"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsinsight_http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)
)
