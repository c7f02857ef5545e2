package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "api_http_requests_total", Help: "HTTP requests"},
		[]string{"method", "path", "status"},
	)
	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	CampaignsLaunched = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "campaigns_launched_total", Help: "Launch requests accepted, by entry path"},
		[]string{"path"},
	)

	StageInvocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pipeline_stage_invocations_total", Help: "Stage invocations by outcome"},
		[]string{"stage", "outcome"},
	)
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Time spent in one stage invocation",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"stage"},
	)
	TasksPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pipeline_tasks_published_total", Help: "Stage tasks published to the queue"},
		[]string{"stage"},
	)
	PlatformLaunches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "platform_launches_total", Help: "Per-platform launch outcomes"},
		[]string{"platform", "result"},
	)
	PlatformLaunchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "platform_launch_duration_seconds",
			Help:    "Time spent launching on one platform, retries included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"platform"},
	)

	WorkerDeliveries = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "worker_deliveries_total", Help: "Task deliveries consumed"},
	)
	WorkerDeliveryRetries = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "worker_delivery_retries_total", Help: "Deliveries re-published for retry"},
	)
	WorkerDeliveriesAbandoned = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "worker_deliveries_abandoned_total", Help: "Deliveries that exhausted retries"},
	)
)

func init() {
	prometheus.MustRegister(
		APIRequestsTotal, APIRequestDuration, CampaignsLaunched,
		StageInvocations, StageDuration, TasksPublished, PlatformLaunches, PlatformLaunchDuration,
		WorkerDeliveries, WorkerDeliveryRetries, WorkerDeliveriesAbandoned,
	)
}

func Handler() http.Handler { return promhttp.Handler() }
