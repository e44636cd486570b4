// Package jobs implements the Scheduler (spec.md §4.5): named queues, a
// deterministic-ID dedup wrapper around asynq, and the four periodic
// (cron-like) jobs that drive indexing, premiere promotion, old-media
// cleanup and task-history cleanup.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/tubevault/tubevault/internal/telemetry"
)

// Task names (spec.md §4.5, §4.6, §4.7, §4.8).
const (
	TaskIndexSource              = "index_source"
	TaskIndexMedia               = "index_media"
	TaskDownloadMedia            = "download_media"
	TaskRenameMedia              = "rename_media"
	TaskSaveAllMediaForSource    = "save_all_media_for_source"
	TaskCleanupOldMedia          = "cleanup_old_media"
	TaskReconcileRemoved         = "reconcile_removed"
	TaskPurgeDetachedSource      = "purge_detached_source"
	TaskNotifyMediaServers       = "notify_media_servers"
	TaskScheduleIndexing         = "schedule_indexing"
	TaskPromoteUpcomingPremieres = "promote_upcoming_premieres"
	TaskCleanupTaskHistory       = "cleanup_task_history"
)

// Named queues (spec.md §4.5): db for short Store transactions, fs for
// filesystem-heavy work, net for network calls to the site/CDN, limit for
// rate-limit-sensitive operations that call the extractor.
const (
	QueueDB    = "db"
	QueueFS    = "fs"
	QueueNet   = "net"
	QueueLimit = "limit"
)

type Queue struct {
	client    *asynq.Client
	server    *asynq.Server
	mux       *asynq.ServeMux
	inspector *asynq.Inspector
	logger    zerolog.Logger
}

// Config sets asynq's total worker count (Concurrency) and the priority
// weight of each named queue (QueuePriority). All queues share that one
// worker pool; no queue has a concurrency cap of its own.
type Config struct {
	RedisAddr   string
	Concurrency int
	QueuePriority map[string]int
}

func DefaultConfig(redisAddr string) Config {
	return Config{
		RedisAddr:   redisAddr,
		Concurrency: 8,
		QueuePriority: map[string]int{
			QueueNet:   6,
			QueueDB:    4,
			QueueFS:    3,
			QueueLimit: 1,
		},
	}
}

func NewQueue(cfg Config, logger zerolog.Logger) *Queue {
	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	client := asynq.NewClient(redisOpt)
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      cfg.QueuePriority,
		},
	)
	mux := asynq.NewServeMux()
	mux.Use(metricsMiddleware)
	inspector := asynq.NewInspector(redisOpt)
	return &Queue{client: client, server: server, mux: mux, inspector: inspector, logger: logger}
}

// metricsMiddleware records every task's outcome and duration to the
// telemetry package, regardless of which handler processes it.
func metricsMiddleware(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		started := time.Now()
		err := next.ProcessTask(ctx, t)
		queue, _ := asynq.GetQueueName(ctx)
		telemetry.ObserveTask(queue, t.Type(), started, err)
		return err
	})
}

// isTaskConflict checks whether the error indicates a task ID conflict,
// using errors.Is for unwrapped sentinel values and a string fallback.
func isTaskConflict(err error) bool {
	if errors.Is(err, asynq.ErrDuplicateTask) || errors.Is(err, asynq.ErrTaskIDConflict) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "task ID conflicts") || strings.Contains(msg, "duplicate task")
}

// EnqueueUnique enqueues a task with a deterministic TaskID so that a
// `remove_duplicates` name+args pair never double-queues (spec.md §4.5).
// On an ID conflict, an existing task with the same ID that is not active
// (pending, scheduled, retry, archived or completed) is deleted and the new
// task is enqueued in its place; only an active duplicate makes the call a
// silent no-op.
func (q *Queue) EnqueueUnique(taskType string, payload interface{}, uniqueID string, opts ...asynq.Option) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	opts = append(opts, asynq.TaskID(uniqueID))
	task := asynq.NewTask(taskType, data, opts...)
	info, err := q.client.Enqueue(task)
	if err == nil {
		return info.ID, nil
	}

	if !isTaskConflict(err) {
		return "", fmt.Errorf("enqueue: %w", err)
	}

	cleared := false
	for _, queueName := range []string{QueueDB, QueueFS, QueueNet, QueueLimit} {
		if delErr := q.inspector.DeleteTask(queueName, uniqueID); delErr == nil {
			q.logger.Debug().Str("task_id", uniqueID).Str("queue", queueName).Msg("cleared stale completed task")
			cleared = true
			break
		}
	}

	if cleared {
		info, err = q.client.Enqueue(task)
		if err == nil {
			return info.ID, nil
		}
	}

	if isTaskConflict(err) {
		q.logger.Debug().Str("task_type", taskType).Str("task_id", uniqueID).Msg("task already active, skipping")
		return uniqueID, nil
	}
	return "", fmt.Errorf("enqueue: %w", err)
}

func (q *Queue) RegisterHandler(taskType string, handler asynq.Handler) {
	q.mux.Handle(taskType, handler)
}

func (q *Queue) Enqueue(taskType string, payload interface{}, opts ...asynq.Option) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskType, data, opts...)
	info, err := q.client.Enqueue(task)
	if err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}
	return info.ID, nil
}

// RevokeByID honors spec.md §4.5's "cancellation via revoke-by-id, honored
// at task pickup": it deletes a not-yet-started task so it never runs.
func (q *Queue) RevokeByID(queue, taskID string) error {
	return q.inspector.DeleteTask(queue, taskID)
}

// PauseQueue and ResumeQueue pause and unpause a named queue through the
// asynq Inspector. No code path in this module calls them (or
// RateLimitBackoff) when a task fails with a rate-limit error.
func (q *Queue) PauseQueue(queue string) error {
	return q.inspector.PauseQueue(queue)
}

func (q *Queue) ResumeQueue(queue string) error {
	return q.inspector.UnpauseQueue(queue)
}

func (q *Queue) Start(ctx context.Context) error {
	q.logger.Info().Msg("job queue worker starting")
	return q.server.Start(q.mux)
}

func (q *Queue) Stop() {
	q.server.Shutdown()
	q.client.Close()
	q.inspector.Close()
}

func (q *Queue) Client() *asynq.Client {
	return q.client
}

// RateLimitBackoff computes spec.md §4.5's pause duration: 10 seconds
// times the number of currently queued 429-tagged results.
func RateLimitBackoff(queued429Count int) time.Duration {
	return 10 * time.Second * time.Duration(queued429Count)
}
