package metrics

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Job outcomes recorded by JobsProcessed.
const (
	OutcomeCompleted      = "completed"
	OutcomeFailed         = "failed"
	OutcomeTimeout        = "timeout"
	OutcomeTooLarge       = "too_large"
	OutcomeChannelMissing = "channel_missing"
)

var (
	JobsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaqueue_jobs_submitted_total",
		Help: "The total number of submitted jobs",
	}, []string{"category"})

	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaqueue_jobs_processed_total",
		Help: "The total number of finished jobs",
	}, []string{"category", "outcome"})

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mediaqueue_job_duration_seconds",
		Help:    "Duration of job processing.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	}, []string{"category"})

	ClaimErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaqueue_claim_errors_total",
		Help: "Failed attempts to claim the next job",
	}, []string{"category"})

	LoopPanics = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaqueue_loop_panics_total",
		Help: "Panics recovered by a dispatcher loop",
	}, []string{"category"})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mediaqueue_queue_depth",
		Help: "Pending jobs per category at the last submission",
	}, []string{"category"})
)

// ObserveJob records the outcome and duration of one job.
func ObserveJob(category, outcome string, elapsed time.Duration) {
	JobsProcessed.WithLabelValues(category, outcome).Inc()
	JobDuration.WithLabelValues(category).Observe(elapsed.Seconds())
}

// RegisterDB exports the pool statistics of db under dbName.
func RegisterDB(db *sql.DB, dbName string) error {
	return prometheus.Register(collectors.NewDBStatsCollector(db, dbName))
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// NewServer returns an HTTP server that serves /metrics on addr.
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
