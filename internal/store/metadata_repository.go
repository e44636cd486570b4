package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tubevault/tubevault/internal/models"
)

// MetadataRepository is the Store's entry point for Metadata and Format
// rows, centered on `ingest_metadata` (spec.md §4.1).
type MetadataRepository struct {
	db *sql.DB
}

// NewMetadataRepository constructs a MetadataRepository over db.
func NewMetadataRepository(db *sql.DB) *MetadataRepository {
	return &MetadataRepository{db: db}
}

// IngestMetadata is a single transaction that (a) upserts the Metadata row
// for (media_id, site, key), (b) replaces its Format children so numbering
// is contiguous 1..k in the order provided, (c) deletes any trailing
// Format rows with number > k (spec.md §4.1).
func (r *MetadataRepository) IngestMetadata(mediaID uuid.UUID, site, key string, value models.MetadataValue, formats []models.FormatValue) (uuid.UUID, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	valueJSON, err := json.Marshal(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal metadata value: %w", err)
	}

	var metadataID uuid.UUID
	err = tx.QueryRow(`
		INSERT INTO metadata (id, media_id, site, key, retrieved_at, value)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (media_id, site, key) WHERE media_id IS NOT NULL DO UPDATE SET retrieved_at = EXCLUDED.retrieved_at, value = EXCLUDED.value
		RETURNING id`,
		uuid.New(), mediaID, site, key, time.Now(), valueJSON,
	).Scan(&metadataID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upsert metadata: %w", err)
	}

	for i, fv := range formats {
		number := i + 1
		fvJSON, err := json.Marshal(fv)
		if err != nil {
			return uuid.Nil, fmt.Errorf("marshal format value: %w", err)
		}
		_, err = tx.Exec(`
			INSERT INTO formats (id, metadata_id, site, key, number, value)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (metadata_id, site, key, number) DO UPDATE SET value = EXCLUDED.value`,
			uuid.New(), metadataID, site, key, number, fvJSON)
		if err != nil {
			return uuid.Nil, fmt.Errorf("upsert format %d: %w", number, err)
		}
	}

	if _, err := tx.Exec(`DELETE FROM formats WHERE metadata_id = $1 AND number > $2`, metadataID, len(formats)); err != nil {
		return uuid.Nil, fmt.Errorf("prune trailing formats: %w", err)
	}

	return metadataID, tx.Commit()
}

// IngestSourceMetadata upserts a "detached" Metadata row during indexing,
// before a Media row exists for it (source_id set, media_id nil; spec.md
// §3/§9's "detached state" design note).
func (r *MetadataRepository) IngestSourceMetadata(sourceID uuid.UUID, site, key string, value models.MetadataValue) (uuid.UUID, error) {
	valueJSON, err := json.Marshal(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal metadata value: %w", err)
	}
	var id uuid.UUID
	err = r.db.QueryRow(`
		INSERT INTO metadata (id, source_id, site, key, retrieved_at, value)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (source_id, site, key) DO UPDATE SET retrieved_at = EXCLUDED.retrieved_at, value = EXCLUDED.value
		RETURNING id`,
		uuid.New(), sourceID, site, key, time.Now(), valueJSON,
	).Scan(&id)
	return id, err
}

// GetFormatsForMedia returns the Format rows attached to a Media's latest
// Metadata row, ordered by (site, key, number) as spec.md §3 requires.
func (r *MetadataRepository) GetFormatsForMedia(mediaID uuid.UUID) ([]models.Format, error) {
	rows, err := r.db.Query(`
		SELECT f.id, f.metadata_id, f.site, f.key, f.number, f.value
		FROM formats f
		JOIN metadata m ON m.id = f.metadata_id
		WHERE m.media_id = $1
		ORDER BY f.site, f.key, f.number`, mediaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Format
	for rows.Next() {
		var f models.Format
		var valueJSON []byte
		if err := rows.Scan(&f.ID, &f.MetadataID, &f.Site, &f.Key, &f.Number, &valueJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(valueJSON, &f.Value); err != nil {
			return nil, fmt.Errorf("unmarshal format value: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// GetMetadataValue returns the normalized metadata blob for a Media, or
// ErrNotFound if no Metadata row exists yet.
func (r *MetadataRepository) GetMetadataValue(mediaID uuid.UUID) (models.MetadataValue, error) {
	var valueJSON []byte
	err := r.db.QueryRow(`SELECT value FROM metadata WHERE media_id = $1 ORDER BY retrieved_at DESC LIMIT 1`, mediaID).Scan(&valueJSON)
	if err == sql.ErrNoRows {
		return models.MetadataValue{}, ErrNotFound
	}
	if err != nil {
		return models.MetadataValue{}, err
	}
	var v models.MetadataValue
	if err := json.Unmarshal(valueJSON, &v); err != nil {
		return models.MetadataValue{}, fmt.Errorf("unmarshal metadata value: %w", err)
	}
	return v, nil
}

// RecordFailedFormat appends a failed format id to a Media's metadata
// (spec.md §4.7 step 3). The Downloader's format selection does not read
// this list back.
func (r *MetadataRepository) RecordFailedFormat(mediaID uuid.UUID, formatID, cause string) error {
	_, err := r.db.Exec(`
		UPDATE metadata SET value = jsonb_set(
			COALESCE(value, '{}'::jsonb), '{failed_formats}',
			COALESCE(value->'failed_formats', '[]'::jsonb) || to_jsonb($2::text || ':' || $3::text)
		) WHERE media_id = $1`, mediaID, formatID, cause)
	return err
}
