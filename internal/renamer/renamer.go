// Package renamer implements the Path/Name Engine's relocate-on-
// template-change half (spec.md §4.4 "Rename/relocate", §4.6 step 7's
// `save_all_media_for_source` follow-up), as an asynq task handler using
// the same handler-struct + task-type-switch idiom as internal/retention.
package renamer

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/tubevault/tubevault/internal/jobs"
	"github.com/tubevault/tubevault/internal/models"
	"github.com/tubevault/tubevault/internal/pathname"
	"github.com/tubevault/tubevault/internal/store"
	"github.com/tubevault/tubevault/internal/taskerr"
)

// Handler processes rename_media and save_all_media_for_source tasks.
type Handler struct {
	Sources      *store.SourceRepository
	Media        *store.MediaRepository
	Metadata     *store.MetadataRepository
	Locks        *store.Locks
	Queue        *jobs.Queue
	DownloadRoot string

	// RenameAllSources and RenameDirectoryAllowlist gate which Sources
	// save_all_media_for_source actually reconciles paths for when a
	// deployment has opted out of renaming every Source (spec.md §6).
	RenameAllSources         bool
	RenameDirectoryAllowlist []string

	Logger zerolog.Logger
}

// ProcessTask implements asynq.Handler, dispatching by task type.
func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	switch t.Type() {
	case jobs.TaskSaveAllMediaForSource:
		var payload struct {
			SourceID string `json:"source_id"`
		}
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("save_all_media_for_source: decode payload: %w", err)
		}
		return h.saveAllMediaForSource(payload.SourceID)

	case jobs.TaskRenameMedia:
		var payload struct {
			MediaID string `json:"media_id"`
		}
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("rename_media: decode payload: %w", err)
		}
		return h.renameMedia(ctx, payload.MediaID)

	default:
		return fmt.Errorf("renamer: unknown task type %q", t.Type())
	}
}

// saveAllMediaForSource recomputes every downloaded Media's templated
// path for src and enqueues rename_media for any that drifted, gated by
// the rename-all-sources toggle/allow-list (spec.md §6, §4.6 step 7).
func (h *Handler) saveAllMediaForSource(sourceID string) error {
	id, err := uuid.Parse(sourceID)
	if err != nil {
		return fmt.Errorf("save_all_media_for_source: %w", taskerr.NotFound)
	}
	src, err := h.Sources.GetByID(id)
	if err != nil {
		return fmt.Errorf("save_all_media_for_source: %w", taskerr.NotFound)
	}
	if !h.sourceEligibleForRename(src) {
		return nil
	}

	media, err := h.Media.ListBySource(src.ID)
	if err != nil {
		return fmt.Errorf("save_all_media_for_source: list media: %w", err)
	}
	for _, m := range media {
		if !m.Downloaded || m.MediaFile == "" {
			continue
		}
		if _, err := h.Queue.EnqueueUnique(jobs.TaskRenameMedia,
			map[string]string{"media_id": m.ID.String()}, "rename_media:"+m.ID.String(),
			asynq.Queue(jobs.QueueFS)); err != nil {
			h.Logger.Warn().Err(err).Str("media_id", m.ID.String()).Msg("save_all_media_for_source: enqueue rename failed")
		}
	}
	return nil
}

func (h *Handler) sourceEligibleForRename(src *models.Source) bool {
	if h.RenameAllSources {
		return true
	}
	for _, dir := range h.RenameDirectoryAllowlist {
		if dir == src.Directory {
			return true
		}
	}
	return false
}

// renameMedia implements spec.md §4.4's rename/relocate procedure for one
// already-downloaded Media under the media:<uuid> advisory lock: it
// re-renders the Source's current template and, if the result differs
// from media_file, relocates the video plus sidecars and rewrites the
// Store row (scenario S6).
func (h *Handler) renameMedia(ctx context.Context, mediaID string) error {
	id, err := uuid.Parse(mediaID)
	if err != nil {
		return fmt.Errorf("rename_media: %w", taskerr.NotFound)
	}

	lock, err := h.Locks.TryAcquire(ctx, store.MediaScope(mediaID))
	if err != nil {
		return fmt.Errorf("rename_media: %w", err)
	}
	if !lock.Held() {
		return fmt.Errorf("rename_media: %w", taskerr.Locked)
	}
	defer lock.Release(ctx)

	media, err := h.Media.GetByID(id)
	if err != nil {
		return fmt.Errorf("rename_media: %w", taskerr.NotFound)
	}
	if !media.Downloaded || media.MediaFile == "" {
		return nil
	}
	src, err := h.Sources.GetByID(media.SourceID)
	if err != nil {
		return fmt.Errorf("rename_media: %w", taskerr.NotFound)
	}

	meta, err := h.Metadata.GetMetadataValue(media.ID)
	if err != nil {
		return fmt.Errorf("rename_media: load metadata: %w", err)
	}
	siblings, err := h.Media.ListBySource(src.ID)
	if err != nil {
		return fmt.Errorf("rename_media: list siblings: %w", err)
	}
	orderable := make([]pathname.OrderableMedia, 0, len(siblings))
	for _, s := range siblings {
		orderable = append(orderable, pathname.OrderableMedia{ID: s.ID, RemoteKey: s.RemoteKey, PublishedAt: s.PublishedAt, CreatedAt: s.CreatedAt})
	}

	ext := extOf(media.MediaFile)
	vars := pathname.BuildVars(src, media, meta, ext, orderable)
	relPath, err := pathname.Render(src.MediaTemplate, vars)
	if err != nil {
		return fmt.Errorf("rename_media: render template: %w", err)
	}
	newPath, err := pathname.ResolveWithinRoot(h.DownloadRoot, src.Directory, relPath)
	if err != nil {
		return fmt.Errorf("rename_media: %w", err)
	}
	if newPath == media.MediaFile {
		return nil
	}

	usesKey := strings.Contains(src.MediaTemplate, "{key}")
	sourceDir := filepath.Join(h.DownloadRoot, src.Directory)
	if err := pathname.Relocate(sourceDir, media.MediaFile, newPath, usesKey, media.RemoteKey); err != nil {
		return fmt.Errorf("rename_media: relocate: %w", err)
	}
	return h.Media.SetMediaFile(id, newPath)
}

func extOf(path string) string {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return ""
	}
	return path[i+1:]
}
