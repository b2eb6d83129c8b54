package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-gateway/pkg/jobs"
)

// ProfileInvalidationQueue evicts cached profiles off the request path and retries
// evictions that fail while the cache is unreachable.
type ProfileInvalidationQueue struct {
	target profileInvalidator
	queue  *jobs.Queue[string]
	logger *zap.Logger
}

// NewProfileInvalidationQueue wraps target. Start must be called before use.
func NewProfileInvalidationQueue(target profileInvalidator, retryDelay time.Duration, logger *zap.Logger) *ProfileInvalidationQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &ProfileInvalidationQueue{target: target, logger: logger}
	q.queue = jobs.NewQueue[string]("profile-invalidation", func(ctx context.Context, studentID string) error {
		return target.Invalidate(ctx, studentID)
	}, jobs.QueueConfig{Workers: 2, MaxRetries: 5, RetryDelay: retryDelay, Logger: logger})
	return q
}

// Start launches the workers.
func (q *ProfileInvalidationQueue) Start(ctx context.Context) {
	q.queue.Start(ctx)
}

// Stop stops the workers.
func (q *ProfileInvalidationQueue) Stop() {
	q.queue.Stop()
}

// Invalidate schedules an eviction, evicting inline when the queue cannot take it.
func (q *ProfileInvalidationQueue) Invalidate(ctx context.Context, studentID string) error {
	if err := q.queue.Enqueue(ProfileCacheKey(studentID), studentID); err != nil {
		q.logger.Debug("invalidation queue unavailable, evicting inline", zap.String("student_id", studentID), zap.Error(err))
		return q.target.Invalidate(ctx, studentID)
	}
	return nil
}
