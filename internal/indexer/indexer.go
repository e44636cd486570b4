// Package indexer implements the Indexer (spec.md §4.6) as an asynq task
// handler. Grounded on the teacher's handler-struct + ProcessTask idiom in
// internal/jobs/tasks.go: a struct carrying its dependencies with one
// ProcessTask method per task type, registered against the Queue's mux.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/tubevault/tubevault/internal/extractor"
	"github.com/tubevault/tubevault/internal/jobs"
	"github.com/tubevault/tubevault/internal/models"
	"github.com/tubevault/tubevault/internal/retention"
	"github.com/tubevault/tubevault/internal/store"
	"github.com/tubevault/tubevault/internal/taskerr"
	"github.com/tubevault/tubevault/internal/telemetry"
)

const mediaBatchSize = 10

// Handler processes the index_source/index_media task family (spec.md
// §4.6): one struct, dispatched by task type in ProcessTask, the same
// fan-in idiom internal/retention uses for its own task family.
type Handler struct {
	Sources      *store.SourceRepository
	Media        *store.MediaRepository
	Metadata     *store.MetadataRepository
	Locks        *store.Locks
	Queue        *jobs.Queue
	Gateway      extractor.Gateway
	Retention    *retention.Handler
	DownloadRoot string
	Logger       zerolog.Logger
}

func (h *Handler) httpClient() *http.Client {
	return &http.Client{Timeout: 15 * time.Second}
}

// ProcessTask implements asynq.Handler, dispatching index_source to the
// per-Source listing pass and the index_media family to the per-item
// metadata/thumbnail fetches it enqueues.
func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	switch t.Type() {
	case jobs.TaskIndexSource:
		var payload jobs.IndexSourcePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("index_source: decode payload: %w", err)
		}
		return h.indexSource(ctx, payload.SourceID)

	case jobs.TaskIndexMedia, jobs.TaskIndexMedia + ":refresh_formats":
		var payload struct {
			MediaID string `json:"media_id"`
		}
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("index_media: decode payload: %w", err)
		}
		return h.FetchMediaMetadata(ctx, payload.MediaID)

	case jobs.TaskIndexMedia + ":thumbnail":
		var payload struct {
			MediaID   string `json:"media_id"`
			RemoteKey string `json:"remote_key"`
			Quality   string `json:"quality"`
		}
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("thumbnail: decode payload: %w", err)
		}
		return h.FetchThumbnail(ctx, payload.MediaID, payload.RemoteKey, payload.Quality)

	default:
		return fmt.Errorf("indexer: unknown task type %q", t.Type())
	}
}

func (h *Handler) indexSource(ctx context.Context, sourceID string) error {
	id, err := uuid.Parse(sourceID)
	if err != nil {
		return fmt.Errorf("index_source: %w", taskerr.NotFound)
	}
	src, err := h.Sources.GetByID(id)
	if err != nil {
		return fmt.Errorf("index_source: %w", taskerr.NotFound)
	}

	lock, err := h.Locks.TryAcquire(ctx, store.SourceScope(sourceID))
	if err != nil {
		return fmt.Errorf("index_source: %w", err)
	}
	if !lock.Held() {
		// Another indexer run is in flight for this Source; return
		// immediately (spec.md §4.6).
		return nil
	}
	defer lock.Release(ctx)

	now := time.Now()
	nextAnchor := now.Add(src.IndexCadence)
	if err := h.Sources.AdvanceSchedule(src.ID, nextAnchor, now); err != nil {
		return fmt.Errorf("index_source: advance schedule: %w", err)
	}
	if err := h.Sources.SetHasFailed(src.ID, false); err != nil {
		return fmt.Errorf("index_source: clear has_failed: %w", err)
	}

	var since *time.Time
	if src.DownloadCap > 0 {
		cutoff := now.Add(-src.DownloadCap)
		since = &cutoff
	}

	items, err := h.Gateway.ListItems(ctx, src.Key, since, src.IndexStreams && !src.IndexVideos)
	if err != nil {
		if errors.Is(err, taskerr.NoMedia) {
			_ = h.Sources.SetHasFailed(src.ID, true)
			return fmt.Errorf("index_source: %w", taskerr.NoMedia)
		}
		return err
	}

	observed := make([]string, 0, len(items))
	var mediaBatch []*models.Media
	flushMedia := func() error {
		if len(mediaBatch) == 0 {
			return nil
		}
		err := h.Media.BulkUpdateTitleDuration(mediaBatch)
		mediaBatch = mediaBatch[:0]
		return err
	}

	for i, item := range items {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		observed = append(observed, item.RemoteKey)

		var publishedAt *time.Time
		if item.Timestamp != nil {
			publishedAt = item.Timestamp
		}
		media, created, err := h.Media.GetOrCreateMedia(src.ID, item.RemoteKey, &models.Media{
			Title:       item.Title,
			Duration:    time.Duration(item.Duration) * time.Second,
			PublishedAt: publishedAt,
		})
		if err != nil {
			h.Logger.Warn().Err(err).Str("remote_key", item.RemoteKey).Msg("index_source: get_or_create_media failed")
			continue
		}
		telemetry.IndexedMedia.WithLabelValues(src.Key).Inc()

		if !created {
			media.Title = item.Title
			media.Duration = time.Duration(item.Duration) * time.Second
			media.PublishedAt = publishedAt
			mediaBatch = append(mediaBatch, media)
			if len(mediaBatch) >= mediaBatchSize {
				if err := flushMedia(); err != nil {
					return fmt.Errorf("index_source: flush media batch: %w", err)
				}
			}
		}

		if _, err := h.Metadata.IngestSourceMetadata(src.ID, "youtube", item.RemoteKey, models.MetadataValue{
			Title:        item.Title,
			DurationSecs: int(item.Duration),
			ExtractorKey: item.ExtractorKey,
		}); err != nil {
			h.Logger.Warn().Err(err).Str("remote_key", item.RemoteKey).Msg("index_source: ingest shallow metadata failed")
		}

		// Sources with downloading enabled get their metadata tasks routed
		// to the net queue; passive (metadata-only) Sources use the fs
		// queue instead, which has a lower asynq priority weight. Those
		// queue weights stand in for the "priority derived from
		// download_media" ordering (spec.md §4.6).
		queueName := jobs.QueueFS
		if src.DownloadEnabled {
			queueName = jobs.QueueNet
		}
		if _, err := h.Queue.EnqueueUnique(jobs.TaskIndexMedia,
			map[string]string{"media_id": media.ID.String()},
			"index_media:"+media.ID.String(),
			asynq.Queue(queueName), asynq.MaxRetry(5), asynq.Timeout(2*time.Minute),
		); err != nil {
			h.Logger.Warn().Err(err).Str("media_id", media.ID.String()).Msg("index_source: enqueue index_media failed")
		}

		if created {
			for _, quality := range []string{"maxresdefault", "sddefault", "hqdefault"} {
				_, _ = h.Queue.EnqueueUnique(jobs.TaskIndexMedia+":thumbnail",
					map[string]string{"media_id": media.ID.String(), "remote_key": item.RemoteKey, "quality": quality},
					fmt.Sprintf("thumbnail:%s:%s", media.ID.String(), quality),
					asynq.Queue(jobs.QueueFS))
			}
		}

		h.Logger.Debug().Int("n", i+1).Int("total", len(items)).Str("source_id", sourceID).Msg("index_source: progress")
	}

	if err := flushMedia(); err != nil {
		return fmt.Errorf("index_source: flush final media batch: %w", err)
	}

	if err := h.Retention.ReconcileRemoved(src, observed); err != nil {
		h.Logger.Warn().Err(err).Str("source_id", sourceID).Msg("index_source: reconcile_removed failed")
	}

	_, err = h.Queue.EnqueueUnique(jobs.TaskSaveAllMediaForSource,
		map[string]string{"source_id": sourceID}, "save_all_media_for_source:"+sourceID,
		asynq.Queue(jobs.QueueDB))
	return err
}

