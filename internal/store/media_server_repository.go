package store

import (
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/tubevault/tubevault/internal/models"
)

// MediaServerRepository persists configured media-server notification
// targets (spec.md §4.8/§6).
type MediaServerRepository struct {
	db *sql.DB
}

// NewMediaServerRepository constructs a MediaServerRepository over db.
func NewMediaServerRepository(db *sql.DB) *MediaServerRepository {
	return &MediaServerRepository{db: db}
}

func (r *MediaServerRepository) ListAll() ([]*models.MediaServer, error) {
	rows, err := r.db.Query(`SELECT id, kind, url, token, verify_https, library_ids FROM media_servers`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.MediaServer
	for rows.Next() {
		s := &models.MediaServer{}
		if err := rows.Scan(&s.ID, &s.Kind, &s.URL, &s.Token, &s.VerifyHTTPS, &s.LibraryIDs); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *MediaServerRepository) Create(s *models.MediaServer) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	_, err := r.db.Exec(`INSERT INTO media_servers (id, kind, url, token, verify_https, library_ids)
		VALUES ($1,$2,$3,$4,$5,$6)`, s.ID, s.Kind, s.URL, s.Token, s.VerifyHTTPS, pq.StringArray(s.LibraryIDs))
	return err
}
