// Package downloader implements the Downloader (spec.md §4.7) as an
// asynq task handler, grounded on the same handler-struct + ProcessTask
// idiom as internal/indexer.
package downloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/tubevault/tubevault/internal/extractor"
	"github.com/tubevault/tubevault/internal/jobs"
	"github.com/tubevault/tubevault/internal/matcher"
	"github.com/tubevault/tubevault/internal/mediaserver"
	"github.com/tubevault/tubevault/internal/models"
	"github.com/tubevault/tubevault/internal/pathname"
	"github.com/tubevault/tubevault/internal/store"
	"github.com/tubevault/tubevault/internal/taskerr"
	"github.com/tubevault/tubevault/internal/telemetry"
)

// Handler processes download_media tasks.
type Handler struct {
	Sources      *store.SourceRepository
	Media        *store.MediaRepository
	Metadata     *store.MetadataRepository
	MediaServers *store.MediaServerRepository
	Locks        *store.Locks
	Queue        *jobs.Queue
	Gateway      extractor.Gateway
	Notifier     *mediaserver.Notifier
	DownloadRoot string

	// UpgradeOnHigherResolution re-enqueues a download as a low-priority
	// override whenever a fallback selection leaves a taller format on the
	// table (spec.md §4.7 step 4).
	UpgradeOnHigherResolution bool

	Logger zerolog.Logger
}

// ProcessTask implements asynq.Handler for TaskDownloadMedia.
func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload jobs.DownloadMediaPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("download_media: decode payload: %w", err)
	}
	var opts struct {
		Override bool `json:"override"`
	}
	_ = json.Unmarshal(t.Payload(), &opts)
	return h.downloadMedia(ctx, payload.MediaID, opts.Override)
}

func (h *Handler) downloadMedia(ctx context.Context, mediaID string, override bool) error {
	id, err := uuid.Parse(mediaID)
	if err != nil {
		return fmt.Errorf("download_media: %w", taskerr.NotFound)
	}
	media, err := h.Media.GetByID(id)
	if err != nil {
		return fmt.Errorf("download_media: %w", taskerr.NotFound)
	}
	src, err := h.Sources.GetByID(media.SourceID)
	if err != nil {
		return fmt.Errorf("download_media: %w", taskerr.NotFound)
	}

	// Preconditions (spec.md §4.7): each violation is a distinct
	// non-retryable result.
	if !src.DownloadEnabled {
		return fmt.Errorf("download_media: source download disabled: %w", taskerr.Permanent)
	}
	if media.ManualSkip {
		return fmt.Errorf("download_media: media manually skipped: %w", taskerr.Permanent)
	}
	metaValue, err := h.Metadata.GetMetadataValue(media.ID)
	if err != nil {
		return fmt.Errorf("download_media: media has no metadata: %w", taskerr.Permanent)
	}
	if media.Downloaded && !override {
		return nil
	}
	if src.DownloadCap > 0 && media.PublishedAt != nil && time.Since(*media.PublishedAt) > src.DownloadCap {
		return fmt.Errorf("download_media: media older than download cap: %w", taskerr.Permanent)
	}

	lock, err := h.Locks.TryAcquire(ctx, store.MediaScope(mediaID))
	if err != nil {
		return fmt.Errorf("download_media: %w", err)
	}
	if !lock.Held() {
		return fmt.Errorf("download_media: %w", taskerr.Locked)
	}
	defer lock.Release(ctx)

	formats, err := h.Metadata.GetFormatsForMedia(media.ID)
	if err != nil {
		return fmt.Errorf("download_media: list formats: %w", err)
	}
	formatValues := make([]models.FormatValue, 0, len(formats))
	for _, f := range formats {
		formatValues = append(formatValues, f.Value)
	}

	selection, ok := matcher.Select(src.QualityPolicy, formatValues)
	if !ok {
		_, _ = h.Queue.EnqueueUnique(jobs.TaskIndexMedia+":refresh_formats",
			map[string]string{"media_id": mediaID}, "refresh_formats:"+mediaID, asynq.Queue(jobs.QueueNet))
		return fmt.Errorf("download_media: %w", taskerr.NoFormat)
	}

	ext := "mkv"
	if src.QualityPolicy.IsAudioOnly() {
		ext = "opus"
	}
	siblings, err := h.Media.ListBySource(src.ID)
	if err != nil {
		return fmt.Errorf("download_media: list siblings for video_order: %w", err)
	}
	orderable := make([]pathname.OrderableMedia, 0, len(siblings))
	for _, s := range siblings {
		orderable = append(orderable, pathname.OrderableMedia{ID: s.ID, RemoteKey: s.RemoteKey, PublishedAt: s.PublishedAt, CreatedAt: s.CreatedAt})
	}
	vars := pathname.BuildVars(src, media, metaValue, ext, orderable)
	relPath, err := pathname.Render(src.MediaTemplate, vars)
	if err != nil {
		return fmt.Errorf("download_media: render template: %w", err)
	}
	outputPath, err := pathname.ResolveWithinRoot(h.DownloadRoot, src.Directory, relPath)
	if err != nil {
		return fmt.Errorf("download_media: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("download_media: create parent dir: %w", err)
	}

	progress := func(percent float64, stage string) {
		h.Logger.Debug().Float64("percent", percent).Str("stage", stage).Str("media_id", mediaID).Msg("download_media: progress")
	}

	formatUsed, containerUsed, err := h.Gateway.Download(ctx, mediaSourceURL(src, media), selection.Selector, ext, outputPath, extractor.DownloadOptions{
		Sidecars: extractor.SidecarRequest{
			Thumbnail: src.Sidecars.CopyThumbnails,
			Subtitles: src.Sidecars.WriteSubtitles,
			Metadata:  src.Sidecars.WriteJSON,
		},
		SponsorBlock: src.SponsorblockCategories,
		SubLangs:     src.Sidecars.SubLangs,
	}, progress)
	if err != nil {
		return h.routeDownloadError(mediaID, selection.Selector, err)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return fmt.Errorf("download_media: %w", taskerr.DownloadIncomplete)
	}

	media.MediaFile = outputPath
	media.DownloadedFormat = formatUsed
	media.DownloadedContainer = containerUsed
	media.DownloadedFilesize = info.Size()
	populateDownloadedDimensions(media, formatValues, selection)

	if err := h.Media.MarkDownloaded(media); err != nil {
		return fmt.Errorf("download_media: mark downloaded: %w", err)
	}
	telemetry.DownloadsCompleted.WithLabelValues(src.Key, strconv.Itoa(media.DownloadedHeight)).Inc()
	telemetry.DownloadedBytes.WithLabelValues(src.Key).Add(float64(media.DownloadedFilesize))

	if h.UpgradeOnHigherResolution && !selection.Exact {
		if best := bestAvailableHeight(formatValues); best > media.DownloadedHeight {
			_, err := h.Queue.EnqueueUnique(jobs.TaskDownloadMedia,
				map[string]interface{}{"media_id": mediaID, "override": true},
				"download_media_upgrade:"+mediaID,
				asynq.Queue(jobs.QueueLimit), asynq.ProcessIn(time.Minute), asynq.MaxRetry(3))
			if err != nil && !errors.Is(err, asynq.ErrDuplicateTask) && !errors.Is(err, asynq.ErrTaskIDConflict) {
				h.Logger.Warn().Err(err).Str("media_id", mediaID).Msg("download_media: enqueue resolution upgrade failed")
			}
		}
	}

	h.writeSidecars(src, media, metaValue, formatValues, outputPath)

	if err := h.Notifier.NotifyAll(ctx); err != nil {
		h.Logger.Warn().Err(err).Msg("download_media: notify media servers failed")
	}

	return nil
}

// writeSidecars writes the NFO/JSON sidecars a Source requests alongside
// outputPath, using the upload-year-as-season / year-local-ordinal-as-
// episode convention for non-playlist Sources (spec.md §9 Open Question,
// preserved as-is).
func (h *Handler) writeSidecars(src *models.Source, media *models.Media, meta models.MetadataValue, formats []models.FormatValue, outputPath string) {
	stem := outputPath[:len(outputPath)-len(filepath.Ext(outputPath))]

	if src.Sidecars.WriteJSON {
		if err := pathname.WriteJSONSidecar(stem+".info.json", map[string]interface{}{
			"id": media.RemoteKey, "title": media.Title, "metadata": meta, "formats": formats,
		}); err != nil {
			h.Logger.Warn().Err(err).Msg("download_media: write json sidecar failed")
		}
	}

	if src.Sidecars.CopyThumbnails && media.ThumbnailPath != "" {
		if err := pathname.CopyThumbnail(media.ThumbnailPath, stem+".jpg"); err != nil {
			h.Logger.Warn().Err(err).Msg("download_media: copy thumbnail failed")
		}
	}

	if src.Sidecars.WriteNFO {
		published := media.CreatedAt
		if media.PublishedAt != nil {
			published = *media.PublishedAt
		}
		season := published.Year()
		episode := 1
		if src.Kind != models.KindPlaylist {
			siblingsSameYear, _ := h.Media.ListBySource(src.ID)
			ordinal := 1
			for _, s := range siblingsSameYear {
				py := s.CreatedAt
				if s.PublishedAt != nil {
					py = *s.PublishedAt
				}
				if py.Year() != season {
					continue
				}
				if s.ID == media.ID {
					episode = ordinal
					break
				}
				ordinal++
			}
		}
		nfo := pathname.NFO{
			Title:     media.Title,
			ShowTitle: src.DisplayName,
			Season:    season,
			Episode:   episode,
			Plot:      meta.Description,
			Thumb:     filepath.Base(stem) + ".jpg",
			Runtime:   int(media.Duration.Minutes()),
			ID:        media.RemoteKey,
			UniqueID:  media.RemoteKey,
			Studio:    meta.Uploader,
			Aired:     published.Format("2006-01-02"),
			DateAdded: time.Now().Format("2006-01-02 15:04:05"),
			Genre:     meta.Categories,
		}
		if err := pathname.WriteNFO(stem+".nfo", nfo); err != nil {
			h.Logger.Warn().Err(err).Msg("download_media: write nfo failed")
		}
	}
}

func (h *Handler) routeDownloadError(mediaID, formatSelector string, err error) error {
	var fu *taskerr.FormatUnavailableError
	switch {
	case errors.As(err, &fu):
		_ = h.Metadata.RecordFailedFormat(uuid.MustParse(mediaID), formatSelector, fu.Error())
		return fmt.Errorf("download_media: %w", taskerr.FormatUnavailable)
	case errors.Is(err, taskerr.NoFormat):
		_, _ = h.Queue.EnqueueUnique(jobs.TaskIndexMedia+":refresh_formats",
			map[string]string{"media_id": mediaID}, "refresh_formats:"+mediaID, asynq.Queue(jobs.QueueNet))
		return err
	case errors.Is(err, taskerr.RateLimited):
		return err
	case errors.Is(err, taskerr.DownloadIncomplete):
		_, _ = h.Queue.EnqueueUnique(jobs.TaskIndexMedia+":refresh_formats",
			map[string]string{"media_id": mediaID}, "refresh_formats:"+mediaID, asynq.Queue(jobs.QueueNet))
		return err
	default:
		var premiere *extractor.PremiereSignal
		if errors.As(err, &premiere) {
			title := taskerr.PremiereTitle((&taskerr.PremiereError{ETA: premiere.ETA}).HoursUntil(time.Now()))
			_ = h.Media.SetPremiere(uuid.MustParse(mediaID), premiere.ETA, title)
			return fmt.Errorf("download_media: %w", taskerr.Premiere)
		}
		return err
	}
}
