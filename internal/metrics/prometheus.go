package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Backend metrics
	BackendRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confras_backend_requests_total",
			Help: "Requests sent to the content backend by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"}, // outcome: response, transport_error
	)

	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "confras_backend_request_duration_seconds",
			Help:    "Duration of content backend requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	CollectionFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confras_collection_fallbacks_total",
			Help: "Collection fetches that degraded to an empty result",
		},
		[]string{"collection"},
	)

	// Domain metrics
	TenantsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confras_tenants_created_total",
			Help: "Tenants created by requested plan",
		},
		[]string{"plan"},
	)

	GuestSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confras_guest_submissions_total",
			Help: "Guest receipt submissions by result",
		},
		[]string{"result"}, // result: created, limit_reached, upload_failed, error
	)

	GuestApprovalsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "confras_guest_approvals_total",
			Help: "Guests moved to CONFIRMED",
		},
	)

	WebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confras_payment_webhooks_total",
			Help: "Payment webhook calls by provider and outcome",
		},
		[]string{"provider", "outcome"}, // outcome: applied, ignored, failed
	)

	// Job metrics
	JobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confras_jobs_processed_total",
			Help: "Background jobs processed by kind and status",
		},
		[]string{"kind", "status"}, // status: success, failed
	)

	JobProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "confras_job_processing_duration_seconds",
			Help:    "Duration of background job processing",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "confras_active_workers",
			Help: "Current number of job workers",
		},
	)

	RabbitMQConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "confras_rabbitmq_connections_active",
			Help: "Number of active RabbitMQ connections",
		},
		[]string{"status"}, // status: connected, disconnected
	)

	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confras_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"endpoint"},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confras_api_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "confras_api_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

// IncrementBackendRequests counts one attempt against a backend endpoint
func IncrementBackendRequests(endpoint, outcome string) {
	BackendRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
}

func RecordBackendRequestDuration(method string, duration float64) {
	BackendRequestDuration.WithLabelValues(method).Observe(duration)
}

func IncrementCollectionFallbacks(collection string) {
	CollectionFallbacksTotal.WithLabelValues(collection).Inc()
}

func IncrementTenantsCreated(plan string) {
	TenantsCreatedTotal.WithLabelValues(plan).Inc()
}

func IncrementGuestSubmissions(result string) {
	GuestSubmissionsTotal.WithLabelValues(result).Inc()
}

func IncrementGuestApprovals() {
	GuestApprovalsTotal.Inc()
}

func IncrementWebhooks(provider, outcome string) {
	WebhooksTotal.WithLabelValues(provider, outcome).Inc()
}

// IncrementJobsProcessed increments processed jobs counter
func IncrementJobsProcessed(kind, status string) {
	JobsProcessedTotal.WithLabelValues(kind, status).Inc()
}

// RecordJobProcessingDuration records job processing duration
func RecordJobProcessingDuration(kind string, duration float64) {
	JobProcessingDuration.WithLabelValues(kind).Observe(duration)
}

func UpdateActiveWorkers(count float64) {
	ActiveWorkers.Set(count)
}

// UpdateRabbitMQConnections updates RabbitMQ connection status
func UpdateRabbitMQConnections(status string, count float64) {
	RabbitMQConnections.WithLabelValues(status).Set(count)
}

func IncrementRateLimited(endpoint string) {
	RateLimitedTotal.WithLabelValues(endpoint).Inc()
}

// IncrementAPIRequests increments API request counter
func IncrementAPIRequests(method, endpoint, statusCode string) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
}

// RecordAPIRequestDuration records API request duration
func RecordAPIRequestDuration(method, endpoint string, duration float64) {
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}
