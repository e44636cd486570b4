package indexer

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/tubevault/tubevault/internal/extractor"
	"github.com/tubevault/tubevault/internal/jobs"
	"github.com/tubevault/tubevault/internal/models"
	"github.com/tubevault/tubevault/internal/store"
	"github.com/tubevault/tubevault/internal/taskerr"
)

// FetchMediaMetadata implements the per-item half of the Indexer (spec.md
// §4.6 step 5, "enqueue a download_media_metadata task"): it rewrites one
// Media's Metadata/Format rows from the Extractor Gateway's full detail
// fetch and, once normalized, decides whether the Media is eligible for
// download. Held under the index_media:<id> advisory lock (spec.md §5)
// since it is the operation that lock exists to serialize.
func (h *Handler) FetchMediaMetadata(ctx context.Context, mediaID string) error {
	id, err := uuid.Parse(mediaID)
	if err != nil {
		return fmt.Errorf("index_media: %w", taskerr.NotFound)
	}

	lock, err := h.Locks.TryAcquire(ctx, store.IndexMediaScope(mediaID))
	if err != nil {
		return fmt.Errorf("index_media: %w", err)
	}
	if !lock.Held() {
		return fmt.Errorf("index_media: %w", taskerr.Locked)
	}
	defer lock.Release(ctx)

	media, err := h.Media.GetByID(id)
	if err != nil {
		return fmt.Errorf("index_media: %w", taskerr.NotFound)
	}
	src, err := h.Sources.GetByID(media.SourceID)
	if err != nil {
		return fmt.Errorf("index_media: %w", taskerr.NotFound)
	}

	details, err := h.Gateway.FetchMediaDetails(ctx, extractor.MediaURL(media.RemoteKey))

	var premiere *extractor.PremiereSignal
	if errors.As(err, &premiere) {
		title := taskerr.PremiereTitle((&taskerr.PremiereError{ETA: premiere.ETA}).HoursUntil(time.Now()))
		return h.Media.SetPremiere(id, premiere.ETA, title)
	}
	if err != nil {
		if errors.Is(err, taskerr.Permanent) || errors.Is(err, taskerr.NoMedia) {
			_ = h.Media.SetSkip(id, true, true, "metadata fetch failed: "+err.Error())
			return nil
		}
		// NoFormat, RateLimited, Transient: worth retrying (spec.md §4.2).
		return fmt.Errorf("index_media: %w", err)
	}

	if pass, reason := passesFilters(src, details); !pass {
		return h.Media.SetSkip(id, true, false, reason)
	}

	value := models.MetadataValue{
		Title:        details.Title,
		FullTitle:    details.Title,
		Description:  details.Description,
		DurationSecs: int(details.Duration),
		Thumbnail:    details.Thumbnail,
		Categories:   details.Categories,
		AgeLimit:     details.AgeLimit,
		Uploader:     details.Uploader,
		LikeCount:    details.LikeCount,
		DislikeCount: details.DislikeCount,
		Availability: details.Availability,
		ExtractorKey: "youtube",
	}
	formats := extractor.NormalizeFormats(details.Formats)
	if _, err := h.Metadata.IngestMetadata(id, "youtube", media.RemoteKey, value, formats); err != nil {
		return fmt.Errorf("index_media: ingest metadata: %w", err)
	}

	// Clear a previously computed (non-manual) skip now that metadata has
	// refreshed; an explicit manual_skip from the user or a pending
	// premiere is left untouched.
	reason := ""
	if media.ManualSkip {
		reason = media.SkipReason
	}
	if err := h.Media.SetSkip(id, media.ManualSkip, media.ManualSkip, reason); err != nil {
		return fmt.Errorf("index_media: clear skip: %w", err)
	}

	if !src.DownloadEnabled || media.ManualSkip {
		return nil
	}
	_, err = h.Queue.EnqueueUnique(jobs.TaskDownloadMedia,
		map[string]string{"media_id": mediaID}, "download_media:"+mediaID,
		asynq.Queue(jobs.QueueNet), asynq.MaxRetry(5))
	return err
}

// passesFilters applies a Source's title-regex and duration filters
// (spec.md §3's DurationFilter/filter_regex invariants) to a freshly
// fetched detail record, before it is allowed to become downloadable.
func passesFilters(src *models.Source, details *extractor.RawMetadata) (bool, string) {
	if src.FilterRegex != "" {
		re, err := regexp.Compile("(?i)" + src.FilterRegex)
		if err == nil {
			matched := re.MatchString(details.Title)
			if matched != src.FilterInvert {
				return false, "title excluded by filter_regex"
			}
		}
	}
	if src.DurationFilter.Seconds > 0 {
		d := int(details.Duration)
		if src.DurationFilter.Min && d < src.DurationFilter.Seconds {
			return false, "duration below minimum"
		}
		if src.DurationFilter.Max && d > src.DurationFilter.Seconds {
			return false, "duration above maximum"
		}
	}
	return true, ""
}

// FetchThumbnail implements the per-quality thumbnail fetch the Indexer
// enqueues for every newly observed Media (spec.md §4.6): it downloads one
// candidate resolution and records it only if no thumbnail has been saved
// yet, since the maxresdefault/sddefault/hqdefault candidates race and the
// first to land is accepted.
func (h *Handler) FetchThumbnail(ctx context.Context, mediaID, remoteKey, quality string) error {
	id, err := uuid.Parse(mediaID)
	if err != nil {
		return fmt.Errorf("thumbnail: %w", taskerr.NotFound)
	}
	media, err := h.Media.GetByID(id)
	if err != nil {
		return fmt.Errorf("thumbnail: %w", taskerr.NotFound)
	}
	if media.ThumbnailPath != "" {
		return nil
	}

	url := fmt.Sprintf("https://i.ytimg.com/vi/%s/%s.jpg", remoteKey, quality)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("thumbnail: build request: %w", err)
	}
	resp, err := h.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("thumbnail: %w", taskerr.Transient)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("thumbnail: %w: status %d", taskerr.Transient, resp.StatusCode)
	}

	dir := filepath.Join(h.DownloadRoot, ".thumbnails")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("thumbnail: create cache dir: %w", err)
	}
	dest := filepath.Join(dir, mediaID+".jpg")
	tmp := dest + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("thumbnail: create file: %w", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("thumbnail: write file: %w", err)
	}
	out.Close()
	if current, err := h.Media.GetByID(id); err == nil && current.ThumbnailPath != "" {
		// Lost the race to a concurrent quality fetch; keep its file.
		os.Remove(tmp)
		return nil
	}
	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("thumbnail: finalize file: %w", err)
	}

	width, height := decodeJPEGDimensions(dest)
	return h.Media.SetThumbnail(id, dest, width, height)
}

func decodeJPEGDimensions(path string) (int, int) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}
