package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/arbor-billing/arbor/internal/jobs"
	"github.com/arbor-billing/arbor/internal/shared"
)

// idempotencyRetention keeps keys long enough for any reasonable client
// retry horizon before pruning.
const idempotencyRetention = 7 * 24 * time.Hour

// CleanupIdempotencyJob prunes idempotency keys past the retention
// window so the table stays bounded.
type CleanupIdempotencyJob struct {
	Store   *shared.IdempotencyStore
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewCleanupIdempotencyJob wires dependencies for the cleanup handler.
func NewCleanupIdempotencyJob(store *shared.IdempotencyStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *CleanupIdempotencyJob {
	return &CleanupIdempotencyJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle processes idempotency cleanup tasks.
func (j *CleanupIdempotencyJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("cleanup idempotency: handler not configured")
	}

	tracker := j.metrics().Track(TaskSharedCleanupIdempotency)
	err := j.Store.Cleanup(ctx, idempotencyRetention)
	err = tracker.End(err)
	if err != nil {
		j.logger().Error("cleanup idempotency keys", slog.Any("error", err))
		return err
	}
	j.logger().Info("cleaned up idempotency keys", slog.Duration("retention", idempotencyRetention))
	return nil
}

func (j *CleanupIdempotencyJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *CleanupIdempotencyJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
