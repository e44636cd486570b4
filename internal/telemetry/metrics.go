// Package telemetry carries the ambient observability stack that spec.md
// §13 deliberately keeps out of the core's own scope (it names health
// checks and HTTP routing as external collaborators, not the metrics a
// production deployment of the core still needs). Grounded on
// tomtom215-cartographus's internal/metrics (promauto Vec declarations) and
// ManuGH-xg2g's cmd/daemon/main.go (mounting promhttp.Handler() on its own
// listener, separate from any application routing).
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TasksProcessed counts asynq task completions by queue, task type, and
	// outcome ("ok" or "error"), across every Queue-registered handler
	// (Indexer, Downloader, Retention).
	TasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tubevault_tasks_processed_total",
			Help: "Total number of queue tasks processed, by queue, task type and outcome.",
		},
		[]string{"queue", "task_type", "outcome"},
	)

	// TaskDuration observes wall-clock handler time, the same dimensions as
	// TasksProcessed minus outcome (failures still get timed).
	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tubevault_task_duration_seconds",
			Help:    "Duration of queue task processing in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"queue", "task_type"},
	)

	// IndexedMedia counts Media rows the Indexer has created or refreshed,
	// by source key.
	IndexedMedia = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tubevault_indexed_media_total",
			Help: "Total number of Media rows created or refreshed by the Indexer.",
		},
		[]string{"source_key"},
	)

	// DownloadsCompleted counts successful Downloader runs by source key
	// and the format-matcher's chosen resolution bucket.
	DownloadsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tubevault_downloads_completed_total",
			Help: "Total number of media files successfully downloaded.",
		},
		[]string{"source_key", "height"},
	)

	// DownloadedBytes sums the on-disk size (os.Stat) of completed
	// downloads, by source key.
	DownloadedBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tubevault_downloaded_bytes_total",
			Help: "Total bytes written by completed downloads.",
		},
		[]string{"source_key"},
	)

	// ExtractorGatewayState mirrors the circuit breaker's current state (0
	// closed, 1 half-open, 2 open) for the Extractor Gateway.
	ExtractorGatewayState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tubevault_extractor_gateway_state",
			Help: "Extractor Gateway circuit breaker state (0=closed, 1=half-open, 2=open).",
		},
	)

	// RetentionFilesDeleted counts files removed by cleanup_old_media,
	// reconcile_removed, and the detached-source purge.
	RetentionFilesDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tubevault_retention_files_deleted_total",
			Help: "Total number of media/sidecar files deleted by retention.",
		},
		[]string{"reason"},
	)

	// WatcherReconciles counts disappeared-file reconciliations performed
	// by the download-root watcher.
	WatcherReconciles = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tubevault_watcher_reconciles_total",
			Help: "Total number of Media rows reconciled after their file disappeared on disk.",
		},
	)
)

// ObserveTask records a completed task's outcome and duration. The jobs
// package's queue middleware calls it after every handler's ProcessTask
// returns.
func ObserveTask(queue, taskType string, started time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	TasksProcessed.WithLabelValues(queue, taskType, outcome).Inc()
	TaskDuration.WithLabelValues(queue, taskType).Observe(time.Since(started).Seconds())
}
