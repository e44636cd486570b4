// Package retention implements Retention & Notifier's file-cleanup half
// (spec.md §4.8): age-out of old downloads, the Media side of
// reconcile_removed, and the two-phase Source deletion contract (spec.md
// §9 Open Question, resolved "adopt it"). Grounded on the cascading-delete
// suffix list in original_source/tubesync/sync/signals.py's
// media_post_delete handler, and on the Source purge/`.to_be_removed`
// sentinel check in original_source/tubesync/sync/tasks.py's
// delete_all_media_for_source.
package retention

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/tubevault/tubevault/internal/jobs"
	"github.com/tubevault/tubevault/internal/mediaserver"
	"github.com/tubevault/tubevault/internal/models"
	"github.com/tubevault/tubevault/internal/pathname"
	"github.com/tubevault/tubevault/internal/store"
	"github.com/tubevault/tubevault/internal/telemetry"
)

// sidecarSuffixes are the by-prefix sidecar matches deleted alongside a
// Media's primary file (spec.md §4.8): plain suffixes checked against the
// file's stem, plus the Jellyfin trickplay directory and poster variants
// which hang off the stem with their own leading dash/dot.
var sidecarSuffixes = []string{".nfo", ".jpg", ".webp", ".info.json"}
var sidecarExtras = []string{"-poster.jpg", "-poster.webp", ".trickplay"}

// Handler processes the retention task family against a download root.
type Handler struct {
	Sources      *store.SourceRepository
	Media        *store.MediaRepository
	Queue        *jobs.Queue
	Notifier     *mediaserver.Notifier
	DownloadRoot string
	Logger       zerolog.Logger
}

// ProcessTask implements asynq.Handler, dispatching by task type since all
// four retention operations share one lightweight payload shape.
func (h *Handler) ProcessTask(_ context.Context, t *asynq.Task) error {
	switch t.Type() {
	case jobs.TaskCleanupOldMedia:
		var payload struct {
			SourceID string `json:"source_id"`
		}
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("cleanup_old_media: decode payload: %w", err)
		}
		return h.CleanupOldMedia(payload.SourceID)
	case jobs.TaskPurgeDetachedSource:
		return h.PurgeDetachedSources()
	case jobs.TaskNotifyMediaServers:
		return h.Notifier.NotifyAll(context.Background())
	default:
		return fmt.Errorf("retention: unknown task type %q", t.Type())
	}
}

// CleanupOldMedia implements `cleanup_old_media()` for one Source: delete
// every Media downloaded before now−days_to_keep, cascading file removal
// (spec.md §4.8).
func (h *Handler) CleanupOldMedia(sourceID string) error {
	id, err := uuid.Parse(sourceID)
	if err != nil {
		return fmt.Errorf("cleanup_old_media: %w", err)
	}
	src, err := h.Sources.GetByID(id)
	if err != nil {
		return fmt.Errorf("cleanup_old_media: %w", err)
	}
	if !src.DeleteOld || src.DaysToKeep <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -src.DaysToKeep)
	stale, err := h.Media.ListDownloadedOlderThan(src.ID, cutoff)
	if err != nil {
		return fmt.Errorf("cleanup_old_media: list stale: %w", err)
	}
	for _, m := range stale {
		if m.MediaFile != "" {
			deleteMediaFiles(h.DownloadRoot, m.MediaFile, "cleanup_old_media", h.Logger)
		}
		if err := h.Media.Delete(m.ID); err != nil {
			h.Logger.Warn().Err(err).Str("media_id", m.ID.String()).Msg("cleanup_old_media: delete row failed")
		}
	}
	return nil
}

// ReconcileRemoved deletes Media rows whose remote_key was absent from the
// most recent indexing pass, when the Source opts in (spec.md §4.8); their
// files are deleted too only when the Source also sets
// delete_removed_on_disk. The Indexer passes the keys it observed and the
// not-observed set is computed here, so other callers (e.g. a manual
// re-sync) can reuse the same cascade.
func (h *Handler) ReconcileRemoved(src *models.Source, observedKeys []string) error {
	if !src.DeleteRemovedFromSource {
		return nil
	}
	removed, err := h.Media.ListRemoteKeysNotIn(src.ID, observedKeys)
	if err != nil {
		return fmt.Errorf("reconcile_removed: list removed: %w", err)
	}
	for _, m := range removed {
		if src.DeleteRemovedOnDisk && m.MediaFile != "" {
			deleteMediaFiles(h.DownloadRoot, m.MediaFile, "reconcile_removed", h.Logger)
		}
		if err := h.Media.Delete(m.ID); err != nil {
			h.Logger.Warn().Err(err).Str("media_id", m.ID.String()).Msg("reconcile_removed: delete row failed")
		}
	}
	return nil
}

// DetachSource performs phase one of the two-phase deletion contract: the
// Source is renamed off its unique key/display_name/directory and marked
// detached so a replacement Source can reuse those values immediately, and
// a `.to_be_removed` sentinel is written into its (now-orphaned) directory
// so the async purge knows it is safe to recursively remove (spec.md §9).
func (h *Handler) DetachSource(sourceID string) error {
	id, err := uuid.Parse(sourceID)
	if err != nil {
		return fmt.Errorf("detach_source: %w", err)
	}
	src, err := h.Sources.GetByID(id)
	if err != nil {
		return fmt.Errorf("detach_source: %w", err)
	}
	sentinelDir := filepath.Join(h.DownloadRoot, src.Directory)
	if err := os.MkdirAll(sentinelDir, 0o755); err != nil {
		return fmt.Errorf("detach_source: create directory for sentinel: %w", err)
	}
	if err := os.WriteFile(filepath.Join(sentinelDir, ".to_be_removed"), nil, 0o644); err != nil {
		return fmt.Errorf("detach_source: write sentinel: %w", err)
	}
	if err := h.Sources.Detach(src.ID); err != nil {
		return fmt.Errorf("detach_source: %w", err)
	}
	_, err = h.Queue.EnqueueUnique(jobs.TaskPurgeDetachedSource, map[string]string{},
		"purge_detached_source", asynq.Queue(jobs.QueueFS), asynq.ProcessIn(90*time.Second))
	return err
}

// PurgeDetachedSources is phase two: every detached Source's Media rows
// and directory (when `.to_be_removed` authorizes it) are permanently
// removed, then the Source row itself is deleted (spec.md §9).
func (h *Handler) PurgeDetachedSources() error {
	detached, err := h.Sources.ListDetached()
	if err != nil {
		return fmt.Errorf("purge_detached_source: list detached: %w", err)
	}
	for _, src := range detached {
		dirPath := filepath.Join(h.DownloadRoot, src.Directory)
		authorized := sentinelPresent(dirPath)

		media, err := h.Media.ListBySource(src.ID)
		if err != nil {
			h.Logger.Warn().Err(err).Str("source_id", src.ID.String()).Msg("purge_detached_source: list media failed")
			continue
		}
		for _, m := range media {
			if authorized && m.MediaFile != "" {
				deleteMediaFiles(h.DownloadRoot, m.MediaFile, "purge_detached_source", h.Logger)
			}
			if err := h.Media.Delete(m.ID); err != nil {
				h.Logger.Warn().Err(err).Str("media_id", m.ID.String()).Msg("purge_detached_source: delete media failed")
			}
		}

		if authorized {
			if err := os.RemoveAll(dirPath); err != nil {
				h.Logger.Warn().Err(err).Str("path", dirPath).Msg("purge_detached_source: rmdir failed")
			}
		}

		if err := h.Sources.Delete(src.ID); err != nil {
			h.Logger.Warn().Err(err).Str("source_id", src.ID.String()).Msg("purge_detached_source: delete source row failed")
		}
	}
	return nil
}

func sentinelPresent(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ".to_be_removed"))
	return err == nil && !info.IsDir()
}

// deleteMediaFiles removes a Media's primary file plus every sidecar
// sharing its stem, then prunes directories left empty up to root (spec.md
// §4.8's cascading-delete suffix list).
func deleteMediaFiles(root, mediaFile, reason string, logger zerolog.Logger) {
	stem := strings.TrimSuffix(mediaFile, filepath.Ext(mediaFile))

	if err := os.Remove(mediaFile); err != nil && !os.IsNotExist(err) {
		logger.Warn().Err(err).Str("path", mediaFile).Msg("retention: delete primary file failed")
	} else if err == nil {
		telemetry.RetentionFilesDeleted.WithLabelValues(reason).Inc()
	}
	for _, suffix := range sidecarSuffixes {
		path := stem + suffix
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn().Err(err).Str("path", path).Msg("retention: delete sidecar failed")
		}
	}
	for _, suffix := range sidecarExtras {
		path := stem + suffix
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.IsDir() {
			if err := os.RemoveAll(path); err != nil {
				logger.Warn().Err(err).Str("path", path).Msg("retention: delete trickplay dir failed")
			}
			continue
		}
		if err := os.Remove(path); err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("retention: delete poster failed")
		}
	}

	pathname.PruneEmptyDirs(root, filepath.Dir(mediaFile))
}
