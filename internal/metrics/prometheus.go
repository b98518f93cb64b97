package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docqa_query_duration_seconds",
			Help:    "Time from query submission to answer or apology",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"scope"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqa_query_total",
			Help: "Total number of completed queries",
		},
		[]string{"status"},
	)

	SubmitIgnored = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqa_submit_ignored_total",
			Help: "Submissions dropped before reaching the backend",
		},
		[]string{"reason"},
	)

	ConfidenceScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docqa_confidence_score",
			Help:    "Confidence reported with successful answers",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	SourcesPerAnswer = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docqa_sources_per_answer",
			Help:    "Number of cited sources per successful answer",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
		},
	)

	FeedbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqa_feedback_total",
			Help: "Feedback submissions by type and outcome",
		},
		[]string{"type", "status"},
	)

	UploadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqa_upload_files_total",
			Help: "Uploaded files by outcome",
		},
		[]string{"status"},
	)

	UploadBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docqa_upload_batch_size",
			Help:    "Files per upload batch",
			Buckets: []float64{1, 2, 3, 5, 10, 20},
		},
	)

	RegistryReloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqa_registry_reload_total",
			Help: "Document list reloads by outcome",
		},
		[]string{"status"},
	)

	DocumentDeletes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqa_document_delete_total",
			Help: "Document deletions by outcome",
		},
		[]string{"status"},
	)

	ConversationClears = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docqa_conversation_clear_total",
			Help: "Confirmed conversation clears",
		},
	)

	BackendRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqa_backend_requests_total",
			Help: "Requests sent to the document service",
		},
		[]string{"operation", "status"},
	)

	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "docqa_backend_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "docqa_active_sessions",
			Help: "Sessions currently held by the gateway",
		},
	)

	SnapshotOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqa_snapshot_operations_total",
			Help: "Session snapshot store operations",
		},
		[]string{"op", "status"},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(QueryDuration)
		prometheus.MustRegister(QueryTotal)
		prometheus.MustRegister(SubmitIgnored)
		prometheus.MustRegister(ConfidenceScore)
		prometheus.MustRegister(SourcesPerAnswer)
		prometheus.MustRegister(FeedbackTotal)
		prometheus.MustRegister(UploadTotal)
		prometheus.MustRegister(UploadBatchSize)
		prometheus.MustRegister(RegistryReloads)
		prometheus.MustRegister(DocumentDeletes)
		prometheus.MustRegister(ConversationClears)
		prometheus.MustRegister(BackendRequests)
		prometheus.MustRegister(BreakerState)
		prometheus.MustRegister(ActiveSessions)
		prometheus.MustRegister(SnapshotOps)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
