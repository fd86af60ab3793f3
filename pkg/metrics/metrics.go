package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Ingestor metrics
	ReadingsIngested *prometheus.CounterVec
	ReadingsFailed   *prometheus.CounterVec
	IngestLatency    prometheus.Histogram
	RegistryPushes   *prometheus.CounterVec

	// Queue metrics
	JobsEnqueued     *prometheus.CounterVec
	JobsProcessed    *prometheus.CounterVec
	JobsFailed       *prometheus.CounterVec
	JobsDeadLettered prometheus.Counter
	JobLatency       *prometheus.HistogramVec
	QueueDepth       prometheus.Gauge

	// Claims metrics
	ClaimsApproved prometheus.Counter
	ClaimsRejected *prometheus.CounterVec
	LedgerBalance  prometheus.Gauge

	// Notification metrics
	ChannelSends   *prometheus.CounterVec
	ChannelLatency *prometheus.HistogramVec
}

// New creates and registers all application metrics under namespace.
func New(namespace string) *Metrics {
	return &Metrics{
		ReadingsIngested: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_ingested_total",
			Help:      "Total number of readings ingested per station",
		}, []string{"station"}),
		ReadingsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_failed_total",
			Help:      "Total number of failed ingestion cycles per station",
		}, []string{"station", "stage"}),
		IngestLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_cycle_duration_seconds",
			Help:      "Time spent per ingestion tick",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		RegistryPushes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_pushes_total",
			Help:      "Level pushes to the settlement registry",
		}, []string{"station", "status"}),

		JobsEnqueued: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_enqueued_total",
			Help:      "Jobs pushed onto the dispatch queue",
		}, []string{"job_type"}),
		JobsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_processed_total",
			Help:      "Jobs completed successfully",
		}, []string{"job_type"}),
		JobsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_failed_total",
			Help:      "Job attempts that failed",
		}, []string{"job_type"}),
		JobsDeadLettered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_dead_lettered_total",
			Help:      "Jobs moved to the dead-letter table",
		}),
		JobLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_processing_duration_seconds",
			Help:      "Time spent processing a job",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"job_type"}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_pending_jobs",
			Help:      "Jobs waiting in the dispatch queue",
		}),

		ClaimsApproved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_approved_total",
			Help:      "Claims settled against the ledger",
		}),
		ClaimsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_rejected_total",
			Help:      "Claims rejected by reason",
		}, []string{"reason"}),
		LedgerBalance: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_available_balance",
			Help:      "Current available balance in native units",
		}),

		ChannelSends: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_sends_total",
			Help:      "Channel delivery attempts by outcome",
		}, []string{"channel", "status"}),
		ChannelLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "channel_send_duration_seconds",
			Help:      "Duration of channel sends",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"channel"}),
	}
}
