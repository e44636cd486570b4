package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/tubevault/tubevault/internal/models"
)

// TaskHistoryRepository persists the Scheduler's task lifecycle history
// (spec.md §4.5/§7), grounded on the teacher's JobRepository shape.
type TaskHistoryRepository struct {
	db *sql.DB
}

// NewTaskHistoryRepository constructs a TaskHistoryRepository over db.
func NewTaskHistoryRepository(db *sql.DB) *TaskHistoryRepository {
	return &TaskHistoryRepository{db: db}
}

// Record upserts a task history row keyed by TaskID.
func (r *TaskHistoryRepository) Record(h *models.TaskHistory) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	_, err := r.db.Exec(`
		INSERT INTO task_history (id, task_id, task_type, verbose_name, status, attempts, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (task_id) DO UPDATE SET
			verbose_name = EXCLUDED.verbose_name,
			status = EXCLUDED.status,
			attempts = EXCLUDED.attempts,
			last_error = EXCLUDED.last_error,
			updated_at = CURRENT_TIMESTAMP`,
		h.ID, h.TaskID, h.TaskType, h.VerboseName, h.Status, h.Attempts, h.LastError)
	return err
}

// DeleteOlderThan removes history rows older than cutoff, for the daily
// cleanup cron job (spec.md §4.5, default retention 30 days).
func (r *TaskHistoryRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM task_history WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListRecent returns the most recently updated task history rows.
func (r *TaskHistoryRepository) ListRecent(limit int) ([]*models.TaskHistory, error) {
	rows, err := r.db.Query(`SELECT id, task_id, task_type, verbose_name, status, attempts, last_error, created_at, updated_at
		FROM task_history ORDER BY updated_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.TaskHistory
	for rows.Next() {
		h := &models.TaskHistory{}
		if err := rows.Scan(&h.ID, &h.TaskID, &h.TaskType, &h.VerboseName, &h.Status, &h.Attempts, &h.LastError, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
