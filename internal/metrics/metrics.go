package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BatchesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paper_harvester_batches_started_total",
		Help: "Total number of batch tasks started",
	})

	BatchesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paper_harvester_batches_completed_total",
		Help: "Total number of batch tasks that ran to completion",
	})

	BatchesInterrupted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paper_harvester_batches_interrupted_total",
		Help: "Total number of batch tasks cancelled mid-run",
	})

	PapersDownloaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paper_harvester_papers_downloaded_total",
		Help: "Total number of papers downloaded",
	})

	PapersSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paper_harvester_papers_skipped_total",
		Help: "Total number of papers skipped (already present or access denied)",
	})

	PapersFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paper_harvester_papers_failed_total",
		Help: "Total number of papers that exhausted their retries",
	})

	AcquireDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "paper_harvester_acquire_duration_seconds",
		Help:    "Wall time of one paper acquisition, retries included",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	ArtifactBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paper_harvester_artifact_bytes_total",
		Help: "Total bytes of downloaded artifacts",
	})
)
