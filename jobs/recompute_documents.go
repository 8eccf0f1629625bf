package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/arbor-billing/arbor/internal/billing"
	jobmetrics "github.com/arbor-billing/arbor/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// recomputeConcurrency bounds parallel per-record transactions so a
// backfill does not exhaust the pool.
const recomputeConcurrency = 4

// RecomputeDocumentsJob rewrites stored document totals from their
// rows and allocations. Each document recomputes in its own
// transaction, so one bad record does not abort the rest.
type RecomputeDocumentsJob struct {
	Billing *billing.Service
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewRecomputeDocumentsJob wires dependencies for the backfill handler.
func NewRecomputeDocumentsJob(billingSvc *billing.Service, pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *RecomputeDocumentsJob {
	return &RecomputeDocumentsJob{Billing: billingSvc, Pool: pool, Logger: logger, Metrics: metrics}
}

// Handle processes document recompute tasks.
func (j *RecomputeDocumentsJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Billing == nil || j.Pool == nil {
		return errors.New("recompute documents: handler not configured")
	}
	var payload RecomputeDocumentsPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskBillingRecomputeDocuments)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := time.Now()
	ids, err := fetchIDs(ctx, j.Pool, "documents", payload.CustomerID)
	if err != nil {
		resultErr = err
		j.logger().Error("load document ids", slog.Any("error", err))
		return resultErr
	}

	var recomputed atomic.Int64
	var g errgroup.Group
	g.SetLimit(recomputeConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			if _, err := j.Billing.RecomputeTotals(ctx, id); err != nil {
				j.logger().Error("recompute document", slog.Int64("document_id", id), slog.Any("error", err))
				return err
			}
			recomputed.Add(1)
			return nil
		})
	}
	resultErr = g.Wait()

	n := int(recomputed.Load())
	j.metrics().AddRecomputed("documents", n)
	j.logger().Info("recomputed documents",
		slog.Int("count", n),
		slog.Int("total", len(ids)),
		slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *RecomputeDocumentsJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *RecomputeDocumentsJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func fetchIDs(ctx context.Context, pool *pgxpool.Pool, table string, customerID int64) ([]int64, error) {
	query := `SELECT id FROM ` + table + ` ORDER BY id`
	args := []any{}
	if customerID != 0 {
		query = `SELECT id FROM ` + table + ` WHERE customer_id = $1 ORDER BY id`
		args = append(args, customerID)
	}
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
