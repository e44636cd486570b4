package jobs

import (
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
)

func TestIsTaskConflictRecognizesSentinels(t *testing.T) {
	assert.True(t, isTaskConflict(asynq.ErrDuplicateTask))
	assert.True(t, isTaskConflict(asynq.ErrTaskIDConflict))
	assert.True(t, isTaskConflict(errors.New("task ID conflicts with another task")))
	assert.False(t, isTaskConflict(errors.New("connection refused")))
}

func TestRateLimitBackoffScalesWithQueuedCount(t *testing.T) {
	assert.Equal(t, 0*time.Second, RateLimitBackoff(0))
	assert.Equal(t, 10*time.Second, RateLimitBackoff(1))
	assert.Equal(t, 50*time.Second, RateLimitBackoff(5))
}
