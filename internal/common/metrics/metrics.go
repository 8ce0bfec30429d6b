// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CreditsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credits_consumed_total",
			Help: "Credits charged by successful consumptions",
		},
		[]string{"feature", "plan"},
	)

	ConsumptionsDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credit_consumptions_denied_total",
			Help: "Consumption attempts rejected by the gate",
		},
		[]string{"feature", "reason"},
	)

	BalanceResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credit_balance_resolutions_total",
			Help: "Balance resolutions by outcome and plan source",
		},
		[]string{"outcome", "source"},
	)

	BalanceCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credit_balance_cache_total",
			Help: "Balance cache lookups by result",
		},
		[]string{"result"},
	)

	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_webhook_events_total",
			Help: "Billing webhook events by type and result",
		},
		[]string{"event_type", "result"},
	)

	GenerationRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_requests_total",
			Help: "Generation requests by feature and path taken",
		},
		[]string{"feature", "path"},
	)

	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "generation_duration_seconds",
			Help:    "Duration of generation backend calls",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60},
		},
		[]string{"feature"},
	)

	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)
)
