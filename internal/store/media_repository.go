package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/tubevault/tubevault/internal/models"
)

// MediaRepository is the Store's entry point for Media rows, grounded on
// the teacher's MediaRepository (internal/repository/media_repository.go).
type MediaRepository struct {
	db *sql.DB
}

// NewMediaRepository constructs a MediaRepository over db.
func NewMediaRepository(db *sql.DB) *MediaRepository {
	return &MediaRepository{db: db}
}

const mediaColumns = `id, source_id, remote_key, published_at, created_at, title, duration_seconds,
	thumbnail_path, thumbnail_width, thumbnail_height, can_download, skip, manual_skip, skip_reason,
	premiere_at, downloaded, download_date, downloaded_format, downloaded_height, downloaded_width,
	downloaded_vcodec, downloaded_acodec, downloaded_container, downloaded_fps, downloaded_hdr,
	downloaded_filesize, media_file`

func scanMedia(scanner interface{ Scan(...interface{}) error }) (*models.Media, error) {
	m := &models.Media{}
	var durationSecs int64
	err := scanner.Scan(
		&m.ID, &m.SourceID, &m.RemoteKey, &m.PublishedAt, &m.CreatedAt, &m.Title, &durationSecs,
		&m.ThumbnailPath, &m.ThumbnailW, &m.ThumbnailH, &m.CanDownload, &m.Skip, &m.ManualSkip, &m.SkipReason,
		&m.PremiereAt, &m.Downloaded, &m.DownloadDate, &m.DownloadedFormat, &m.DownloadedHeight, &m.DownloadedWidth,
		&m.DownloadedVCodec, &m.DownloadedACodec, &m.DownloadedContainer, &m.DownloadedFPS, &m.DownloadedHDR,
		&m.DownloadedFilesize, &m.MediaFile,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.Duration = time.Duration(durationSecs) * time.Second
	return m, nil
}

// GetOrCreateMedia implements Store's `get_or_create_media(source_id,
// remote_key, defaults)` (spec.md §4.1): a single transaction that looks
// up (source_id, remote_key) and, if absent, inserts defaults. Returns the
// Media and whether it was newly created.
func (r *MediaRepository) GetOrCreateMedia(sourceID uuid.UUID, remoteKey string, defaults *models.Media) (*models.Media, bool, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(`SELECT `+mediaColumns+` FROM media WHERE source_id = $1 AND remote_key = $2`, sourceID, remoteKey)
	existing, err := scanMedia(row)
	if err == nil {
		return existing, false, tx.Commit()
	}
	if err != ErrNotFound {
		return nil, false, err
	}

	if defaults.ID == uuid.Nil {
		defaults.ID = uuid.New()
	}
	defaults.SourceID = sourceID
	defaults.RemoteKey = remoteKey
	err = tx.QueryRow(`
		INSERT INTO media (id, source_id, remote_key, published_at, title, duration_seconds, can_download, skip, manual_skip)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at`,
		defaults.ID, defaults.SourceID, defaults.RemoteKey, defaults.PublishedAt, defaults.Title,
		int64(defaults.Duration.Seconds()), defaults.CanDownload, defaults.Skip, defaults.ManualSkip,
	).Scan(&defaults.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("insert media: %w", err)
	}
	return defaults, true, tx.Commit()
}

func (r *MediaRepository) GetByID(id uuid.UUID) (*models.Media, error) {
	row := r.db.QueryRow(`SELECT `+mediaColumns+` FROM media WHERE id = $1`, id)
	return scanMedia(row)
}

// GetByMediaFile looks up the Media owning a downloaded file path, used by
// the download-root watcher to resolve a filesystem removal event back to
// a row (spec.md §8's "downloaded=false on file disappearance" invariant).
func (r *MediaRepository) GetByMediaFile(path string) (*models.Media, error) {
	row := r.db.QueryRow(`SELECT `+mediaColumns+` FROM media WHERE media_file = $1`, path)
	return scanMedia(row)
}

// ListBySource returns all Media for a Source ordered by (published_at,
// created_at, remote_key) — the ordering video_order numbering is
// computed against (spec.md §4.4).
func (r *MediaRepository) ListBySource(sourceID uuid.UUID) ([]*models.Media, error) {
	rows, err := r.db.Query(`SELECT `+mediaColumns+` FROM media WHERE source_id = $1
		ORDER BY published_at ASC NULLS LAST, created_at ASC, remote_key ASC`, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Media
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// BulkUpdateTitleDuration implements the Indexer's batch-flush write path
// (spec.md §4.1 `bulk_update`, §4.6 step 5): up to N rows per transaction
// (N=10 for Media by default, enforced by the caller via batch size).
func (r *MediaRepository) BulkUpdateTitleDuration(batch []*models.Media) error {
	if len(batch) == 0 {
		return nil
	}
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`UPDATE media SET title = $1, duration_seconds = $2, published_at = $3 WHERE id = $4`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, m := range batch {
		if _, err := stmt.Exec(m.Title, int64(m.Duration.Seconds()), m.PublishedAt, m.ID); err != nil {
			return fmt.Errorf("update media %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

// MarkDownloaded records the outcome of a successful Downloader run
// (spec.md §4.7 step 4).
func (r *MediaRepository) MarkDownloaded(m *models.Media) error {
	now := time.Now()
	m.DownloadDate = &now
	m.Downloaded = true
	_, err := r.db.Exec(`UPDATE media SET downloaded = true, download_date = $1,
			downloaded_format = $2, downloaded_height = $3, downloaded_width = $4,
			downloaded_vcodec = $5, downloaded_acodec = $6, downloaded_container = $7,
			downloaded_fps = $8, downloaded_hdr = $9, downloaded_filesize = $10, media_file = $11
		WHERE id = $12`,
		now, m.DownloadedFormat, m.DownloadedHeight, m.DownloadedWidth,
		m.DownloadedVCodec, m.DownloadedACodec, m.DownloadedContainer,
		m.DownloadedFPS, m.DownloadedHDR, m.DownloadedFilesize, m.MediaFile, m.ID)
	return err
}

// ReconcileMissingFile implements the universal invariant in spec.md §8:
// if the on-disk file has disappeared or changed size, downloaded is
// cleared and manual_skip is asserted on the next save.
func (r *MediaRepository) ReconcileMissingFile(id uuid.UUID) error {
	_, err := r.db.Exec(`UPDATE media SET downloaded = false, manual_skip = true, skip = true,
		skip_reason = 'file missing on disk' WHERE id = $1`, id)
	return err
}

// SetSkip updates the cached skip conjunction and optional manual_skip
// flag/reason (spec.md §3 Media invariants).
func (r *MediaRepository) SetSkip(id uuid.UUID, skip, manualSkip bool, reason string) error {
	_, err := r.db.Exec(`UPDATE media SET skip = $1, manual_skip = $2, skip_reason = $3 WHERE id = $4`,
		skip, manualSkip, reason, id)
	return err
}

// SetMediaFile updates media_file after a rename/relocate and clears skip,
// per Path/Name Engine step 5 (spec.md §4.4).
func (r *MediaRepository) SetMediaFile(id uuid.UUID, path string) error {
	_, err := r.db.Exec(`UPDATE media SET media_file = $1, skip = false WHERE id = $2`, path, id)
	return err
}

// SetThumbnail records the locally-cached path and dimensions of a Media's
// thumbnail (spec.md §4.6's per-item thumbnail fetch). The indexer fetches
// the maxresdefault/sddefault/hqdefault candidates as separate tasks and
// records whichever lands first, not necessarily the largest.
func (r *MediaRepository) SetThumbnail(id uuid.UUID, path string, width, height int) error {
	_, err := r.db.Exec(`UPDATE media SET thumbnail_path = $1, thumbnail_width = $2, thumbnail_height = $3 WHERE id = $4`,
		path, width, height, id)
	return err
}

// Delete permanently removes a Media row (used by Retention after file
// cleanup has completed).
func (r *MediaRepository) Delete(id uuid.UUID) error {
	res, err := r.db.Exec(`DELETE FROM media WHERE id = $1`, id)
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

// ListDownloadedOlderThan returns Media downloaded before cutoff for a
// Source, for `cleanup_old_media` (spec.md §4.8).
func (r *MediaRepository) ListDownloadedOlderThan(sourceID uuid.UUID, cutoff time.Time) ([]*models.Media, error) {
	rows, err := r.db.Query(`SELECT `+mediaColumns+` FROM media
		WHERE source_id = $1 AND downloaded = true AND download_date < $2`, sourceID, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Media
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListRemoteKeysNotIn returns Media rows for a Source whose remote_key is
// absent from observed, for `reconcile_removed` (spec.md §4.8).
func (r *MediaRepository) ListRemoteKeysNotIn(sourceID uuid.UUID, observed []string) ([]*models.Media, error) {
	rows, err := r.db.Query(`SELECT `+mediaColumns+` FROM media
		WHERE source_id = $1 AND NOT (remote_key = ANY($2))`, sourceID, pq.Array(observed))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Media
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SetPremiere marks m as a future broadcast (taskerr.Premiere), recording
// eta so the hourly promoter can recompute the remaining time (spec.md
// §4.5 `promote_upcoming_premieres`).
func (r *MediaRepository) SetPremiere(id uuid.UUID, eta time.Time, title string) error {
	_, err := r.db.Exec(`UPDATE media SET skip = true, manual_skip = true, skip_reason = $1, premiere_at = $2 WHERE id = $3`,
		title, eta, id)
	return err
}

// ListPendingPremieres returns Media still marked manual_skip for a
// premiere, for the hourly `promote_upcoming_premieres` job.
func (r *MediaRepository) ListPendingPremieres() ([]*models.Media, error) {
	rows, err := r.db.Query(`SELECT ` + mediaColumns + ` FROM media WHERE manual_skip = true AND premiere_at IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Media
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// PromotePremiere clears skip/manual_skip/premiere_at once the broadcast
// time has passed, making the Media eligible for download again.
func (r *MediaRepository) PromotePremiere(id uuid.UUID) error {
	_, err := r.db.Exec(`UPDATE media SET skip = false, manual_skip = false, skip_reason = '', premiere_at = NULL WHERE id = $1`, id)
	return err
}

// ReparentAll moves every Media row from one Source to another, used by
// the two-phase source deletion contract's Detach step (spec.md §9).
func (r *MediaRepository) ReparentAll(fromSourceID, toSourceID uuid.UUID) error {
	_, err := r.db.Exec(`UPDATE media SET source_id = $1 WHERE source_id = $2`, toSourceID, fromSourceID)
	return err
}
