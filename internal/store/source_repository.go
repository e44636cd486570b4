package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tubevault/tubevault/internal/models"
)

// SourceRepository is the Store's entry point for Source rows, grounded
// on the teacher's MediaRepository shape (raw parameterized SQL,
// RETURNING clauses, sql.ErrNoRows -> ErrNotFound).
type SourceRepository struct {
	db *sql.DB
}

// NewSourceRepository constructs a SourceRepository over db.
func NewSourceRepository(db *sql.DB) *SourceRepository {
	return &SourceRepository{db: db}
}

func (r *SourceRepository) Create(s *models.Source) error {
	policy, err := json.Marshal(s.QualityPolicy)
	if err != nil {
		return fmt.Errorf("marshal quality_policy: %w", err)
	}
	sidecars, err := json.Marshal(s.Sidecars)
	if err != nil {
		return fmt.Errorf("marshal sidecars: %w", err)
	}
	durFilter, err := json.Marshal(s.DurationFilter)
	if err != nil {
		return fmt.Errorf("marshal duration_filter: %w", err)
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	query := `
		INSERT INTO sources (id, kind, key, display_name, directory, media_template,
			quality_policy, index_cadence_seconds, target_schedule,
			download_enabled, index_videos, index_streams, download_cap_seconds,
			delete_old, days_to_keep, filter_regex, filter_invert, duration_filter,
			delete_removed_on_disk, delete_removed_from_source, sidecars,
			sponsorblock_enabled, sponsorblock_categories, has_failed, detached)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)
		RETURNING created_at`
	return r.db.QueryRow(query,
		s.ID, s.Kind, s.Key, s.DisplayName, s.Directory, s.MediaTemplate,
		policy, int64(s.IndexCadence.Seconds()), s.TargetSchedule,
		s.DownloadEnabled, s.IndexVideos, s.IndexStreams, int64(s.DownloadCap.Seconds()),
		s.DeleteOld, s.DaysToKeep, s.FilterRegex, s.FilterInvert, durFilter,
		s.DeleteRemovedOnDisk, s.DeleteRemovedFromSource, sidecars,
		s.SponsorblockEnabled, s.SponsorblockCategories, s.HasFailed, s.Detached,
	).Scan(&s.CreatedAt)
}

func (r *SourceRepository) scanRow(row *sql.Row) (*models.Source, error) {
	s := &models.Source{}
	var policy, sidecars, durFilter []byte
	var cadenceSecs, capSecs int64
	err := row.Scan(
		&s.ID, &s.Kind, &s.Key, &s.DisplayName, &s.Directory, &s.MediaTemplate,
		&policy, &cadenceSecs, &s.TargetSchedule,
		&s.DownloadEnabled, &s.IndexVideos, &s.IndexStreams, &capSecs,
		&s.DeleteOld, &s.DaysToKeep, &s.FilterRegex, &s.FilterInvert, &durFilter,
		&s.DeleteRemovedOnDisk, &s.DeleteRemovedFromSource, &sidecars,
		&s.SponsorblockEnabled, &s.SponsorblockCategories, &s.HasFailed, &s.LastCrawlAt,
		&s.CreatedAt, &s.Detached,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.IndexCadence = time.Duration(cadenceSecs) * time.Second
	s.DownloadCap = time.Duration(capSecs) * time.Second
	if err := json.Unmarshal(policy, &s.QualityPolicy); err != nil {
		return nil, fmt.Errorf("unmarshal quality_policy: %w", err)
	}
	if err := json.Unmarshal(sidecars, &s.Sidecars); err != nil {
		return nil, fmt.Errorf("unmarshal sidecars: %w", err)
	}
	if err := json.Unmarshal(durFilter, &s.DurationFilter); err != nil {
		return nil, fmt.Errorf("unmarshal duration_filter: %w", err)
	}
	return s, nil
}

const sourceColumns = `id, kind, key, display_name, directory, media_template,
	quality_policy, index_cadence_seconds, target_schedule,
	download_enabled, index_videos, index_streams, download_cap_seconds,
	delete_old, days_to_keep, filter_regex, filter_invert, duration_filter,
	delete_removed_on_disk, delete_removed_from_source, sidecars,
	sponsorblock_enabled, sponsorblock_categories, has_failed, last_crawl_at,
	created_at, detached`

func (r *SourceRepository) GetByID(id uuid.UUID) (*models.Source, error) {
	row := r.db.QueryRow(`SELECT `+sourceColumns+` FROM sources WHERE id = $1`, id)
	return r.scanRow(row)
}

// ListActiveDue returns non-detached Sources whose target_schedule has
// passed, for the hourly schedule_indexing cron job (spec.md §4.5).
func (r *SourceRepository) ListActiveDue(now time.Time) ([]*models.Source, error) {
	rows, err := r.db.Query(`SELECT `+sourceColumns+` FROM sources
		WHERE detached = false AND target_schedule <= $1
		ORDER BY target_schedule ASC`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Source
	for rows.Next() {
		s := &models.Source{}
		var policy, sidecars, durFilter []byte
		var cadenceSecs, capSecs int64
		if err := rows.Scan(
			&s.ID, &s.Kind, &s.Key, &s.DisplayName, &s.Directory, &s.MediaTemplate,
			&policy, &cadenceSecs, &s.TargetSchedule,
			&s.DownloadEnabled, &s.IndexVideos, &s.IndexStreams, &capSecs,
			&s.DeleteOld, &s.DaysToKeep, &s.FilterRegex, &s.FilterInvert, &durFilter,
			&s.DeleteRemovedOnDisk, &s.DeleteRemovedFromSource, &sidecars,
			&s.SponsorblockEnabled, &s.SponsorblockCategories, &s.HasFailed, &s.LastCrawlAt,
			&s.CreatedAt, &s.Detached,
		); err != nil {
			return nil, err
		}
		s.IndexCadence = time.Duration(cadenceSecs) * time.Second
		s.DownloadCap = time.Duration(capSecs) * time.Second
		_ = json.Unmarshal(policy, &s.QualityPolicy)
		_ = json.Unmarshal(sidecars, &s.Sidecars)
		_ = json.Unmarshal(durFilter, &s.DurationFilter)
		out = append(out, s)
	}
	return out, rows.Err()
}

// AdvanceSchedule sets target_schedule to the next anchor (now + cadence)
// and records last_crawl_at, matching Indexer step 1/4 (spec.md §4.6).
func (r *SourceRepository) AdvanceSchedule(id uuid.UUID, nextAnchor, lastCrawlAt time.Time) error {
	_, err := r.db.Exec(`UPDATE sources SET target_schedule = $1, last_crawl_at = $2 WHERE id = $3`,
		nextAnchor, lastCrawlAt, id)
	return err
}

// SetHasFailed toggles the Source.has_failed flag.
func (r *SourceRepository) SetHasFailed(id uuid.UUID, failed bool) error {
	_, err := r.db.Exec(`UPDATE sources SET has_failed = $1 WHERE id = $2`, failed, id)
	return err
}

// Detach implements the first phase of the two-phase source deletion
// contract (spec.md §9 Open Question, resolved "adopt it"): rename the
// Source off its unique key/display_name/directory and mark it detached
// so a new Source can reuse those values immediately. Its Media rows stay
// attached to this same Source row until the asynchronous purge; none are
// reparented.
func (r *SourceRepository) Detach(id uuid.UUID) error {
	suffix := id.String()[:8]
	_, err := r.db.Exec(`UPDATE sources SET
			key = key || '::deleted::' || $2,
			display_name = display_name || ' (deleted ' || $2 || ')',
			directory = directory || '.deleted.' || $2,
			detached = true
		WHERE id = $1`, id, suffix)
	return err
}

// ListDetached returns Sources pending asynchronous purge.
func (r *SourceRepository) ListDetached() ([]*models.Source, error) {
	rows, err := r.db.Query(`SELECT ` + sourceColumns + ` FROM sources WHERE detached = true`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Source
	for rows.Next() {
		s := &models.Source{}
		var policy, sidecars, durFilter []byte
		var cadenceSecs, capSecs int64
		if err := rows.Scan(
			&s.ID, &s.Kind, &s.Key, &s.DisplayName, &s.Directory, &s.MediaTemplate,
			&policy, &cadenceSecs, &s.TargetSchedule,
			&s.DownloadEnabled, &s.IndexVideos, &s.IndexStreams, &capSecs,
			&s.DeleteOld, &s.DaysToKeep, &s.FilterRegex, &s.FilterInvert, &durFilter,
			&s.DeleteRemovedOnDisk, &s.DeleteRemovedFromSource, &sidecars,
			&s.SponsorblockEnabled, &s.SponsorblockCategories, &s.HasFailed, &s.LastCrawlAt,
			&s.CreatedAt, &s.Detached,
		); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListDeleteOld returns non-detached Sources with delete_old enabled, for the
// daily cleanup_old_media cron job (spec.md §4.5, §4.8).
func (r *SourceRepository) ListDeleteOld() ([]*models.Source, error) {
	rows, err := r.db.Query(`SELECT ` + sourceColumns + ` FROM sources WHERE detached = false AND delete_old = true`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Source
	for rows.Next() {
		s := &models.Source{}
		var policy, sidecars, durFilter []byte
		var cadenceSecs, capSecs int64
		if err := rows.Scan(
			&s.ID, &s.Kind, &s.Key, &s.DisplayName, &s.Directory, &s.MediaTemplate,
			&policy, &cadenceSecs, &s.TargetSchedule,
			&s.DownloadEnabled, &s.IndexVideos, &s.IndexStreams, &capSecs,
			&s.DeleteOld, &s.DaysToKeep, &s.FilterRegex, &s.FilterInvert, &durFilter,
			&s.DeleteRemovedOnDisk, &s.DeleteRemovedFromSource, &sidecars,
			&s.SponsorblockEnabled, &s.SponsorblockCategories, &s.HasFailed, &s.LastCrawlAt,
			&s.CreatedAt, &s.Detached,
		); err != nil {
			return nil, err
		}
		s.IndexCadence = time.Duration(cadenceSecs) * time.Second
		s.DownloadCap = time.Duration(capSecs) * time.Second
		_ = json.Unmarshal(policy, &s.QualityPolicy)
		_ = json.Unmarshal(sidecars, &s.Sidecars)
		_ = json.Unmarshal(durFilter, &s.DurationFilter)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Delete permanently removes a Source row (cascades to Media via FK).
func (r *SourceRepository) Delete(id uuid.UUID) error {
	res, err := r.db.Exec(`DELETE FROM sources WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
