package jobs

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/tubevault/tubevault/internal/store"
)

// IndexSourcePayload is index_source's task argument (spec.md §4.5, §4.6).
type IndexSourcePayload struct {
	SourceID string `json:"source_id"`
}

// DownloadMediaPayload is download_media's task argument (spec.md §4.7).
type DownloadMediaPayload struct {
	MediaID string `json:"media_id"`
}

// CleanupOldMediaPayload is cleanup_old_media's task argument (spec.md §4.8).
type CleanupOldMediaPayload struct {
	SourceID string `json:"source_id"`
}

// PeriodicJobs schedules the four cron-like jobs from spec.md §4.5/§4.8
// against a Queue, a Locks table, and a DB handle. TaskHistoryRetention
// defaults to 30 days when zero.
type PeriodicJobs struct {
	Queue   *Queue
	Locks   *store.Locks
	Sources *store.SourceRepository
	Media   *store.MediaRepository
	History *store.TaskHistoryRepository

	TaskHistoryRetention time.Duration
	Logger               zerolog.Logger
}

// Register wires the four periodic jobs onto c using the teacher's
// "hourly at :59 / :40, daily" cadences (spec.md §4.5). cleanup_old_media
// runs at 2:30am, ahead of cleanup_task_history at 3am.
func (p *PeriodicJobs) Register(c *cron.Cron) error {
	if _, err := c.AddFunc("59 * * * *", p.scheduleIndexing); err != nil {
		return err
	}
	if _, err := c.AddFunc("40 * * * *", p.promoteUpcomingPremieres); err != nil {
		return err
	}
	if _, err := c.AddFunc("30 2 * * *", p.cleanupOldMedia); err != nil {
		return err
	}
	if _, err := c.AddFunc("0 3 * * *", p.cleanupTaskHistory); err != nil {
		return err
	}
	return nil
}

// scheduleIndexing enumerates active, due Sources and enqueues an
// index_source task for each (spec.md §4.5). It probes each Source's
// advisory lock and releases it at once, skipping the Source only when the
// probe itself errors; it enqueues whether or not the lock was free, and it
// does not clear any per-Media advisory locks.
func (p *PeriodicJobs) scheduleIndexing() {
	ctx := context.Background()
	due, err := p.Sources.ListActiveDue(time.Now())
	if err != nil {
		p.Logger.Error().Err(err).Msg("schedule_indexing: list active due sources")
		return
	}
	for _, src := range due {
		lock, err := p.Locks.TryAcquire(ctx, store.SourceScope(src.ID.String()))
		if err != nil {
			p.Logger.Warn().Err(err).Str("source_id", src.ID.String()).Msg("schedule_indexing: lock unavailable, skipping this cycle")
			continue
		}
		_ = lock.Release(ctx)

		_, err = p.Queue.EnqueueUnique(TaskIndexSource, IndexSourcePayload{SourceID: src.ID.String()},
			"index_source:"+src.ID.String(),
			asynq.Queue(QueueNet), asynq.ProcessIn(5*time.Second), asynq.Deadline(time.Now().Add(time.Hour)))
		if err != nil {
			p.Logger.Error().Err(err).Str("source_id", src.ID.String()).Msg("schedule_indexing: enqueue index_source")
		}
	}
}

// promoteUpcomingPremieres recomputes the remaining time for every Media
// still skipped for a premiere; once the broadcast time has passed it
// clears skip/manual_skip and re-enqueues a download task (spec.md §4.5).
func (p *PeriodicJobs) promoteUpcomingPremieres() {
	pending, err := p.Media.ListPendingPremieres()
	if err != nil {
		p.Logger.Error().Err(err).Msg("promote_upcoming_premieres: list pending premieres")
		return
	}
	now := time.Now()
	for _, m := range pending {
		if m.PremiereAt == nil || m.PremiereAt.After(now) {
			continue
		}
		if err := p.Media.PromotePremiere(m.ID); err != nil {
			p.Logger.Error().Err(err).Str("media_id", m.ID.String()).Msg("promote_upcoming_premieres: clear skip")
			continue
		}
		_, err := p.Queue.EnqueueUnique(TaskDownloadMedia, DownloadMediaPayload{MediaID: m.ID.String()},
			"download_media:"+m.ID.String(), asynq.Queue(QueueLimit))
		if err != nil {
			p.Logger.Error().Err(err).Str("media_id", m.ID.String()).Msg("promote_upcoming_premieres: re-enqueue download")
		}
	}
}

// cleanupOldMedia enumerates Sources with delete_old enabled and enqueues a
// cleanup_old_media task for each; this daily job is what triggers
// Retention & Notifier's age-out (spec.md §4.8).
func (p *PeriodicJobs) cleanupOldMedia() {
	sources, err := p.Sources.ListDeleteOld()
	if err != nil {
		p.Logger.Error().Err(err).Msg("cleanup_old_media: list delete_old sources")
		return
	}
	for _, src := range sources {
		_, err := p.Queue.EnqueueUnique(TaskCleanupOldMedia, CleanupOldMediaPayload{SourceID: src.ID.String()},
			"cleanup_old_media:"+src.ID.String(), asynq.Queue(QueueFS))
		if err != nil {
			p.Logger.Error().Err(err).Str("source_id", src.ID.String()).Msg("cleanup_old_media: enqueue")
		}
	}
}

// cleanupTaskHistory deletes task_history rows older than the configured
// retention (default 30 days, spec.md §4.5).
func (p *PeriodicJobs) cleanupTaskHistory() {
	retention := p.TaskHistoryRetention
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	n, err := p.History.DeleteOlderThan(time.Now().Add(-retention))
	if err != nil {
		p.Logger.Error().Err(err).Msg("cleanup_task_history: delete")
		return
	}
	p.Logger.Info().Int64("deleted", n).Msg("cleanup_task_history: done")
}
