package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts requests handled by the API, by route and code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docc_http_requests_total",
			Help: "Total number of HTTP requests handled by the service.",
		},
		[]string{"method", "path", "code"},
	)

	// JobExecutionsTotal counts job execution state transitions.
	JobExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docc_job_executions_total",
			Help: "Total number of job execution transitions, by job kind and status.",
		},
		[]string{"job_type", "status"},
	)

	// TaskReportsTotal counts terminal reports accepted for task units.
	TaskReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docc_task_reports_total",
			Help: "Total number of accepted terminal task unit reports, by task type and outcome.",
		},
		[]string{"task_type", "outcome"},
	)

	// MaterializerRunsTotal counts external materializer invocations.
	MaterializerRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docc_materializer_runs_total",
			Help: "Total number of materializer tool invocations, by result.",
		},
		[]string{"result"},
	)
)
