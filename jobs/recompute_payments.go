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

	jobmetrics "github.com/arbor-billing/arbor/internal/jobs"
	"github.com/arbor-billing/arbor/internal/ledger"
)

// RecomputePaymentsJob rewrites stored payment balances from their
// allocation rows, one transaction per payment.
type RecomputePaymentsJob struct {
	Ledger  *ledger.Service
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewRecomputePaymentsJob wires dependencies for the backfill handler.
func NewRecomputePaymentsJob(ledgerSvc *ledger.Service, pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *RecomputePaymentsJob {
	return &RecomputePaymentsJob{Ledger: ledgerSvc, Pool: pool, Logger: logger, Metrics: metrics}
}

// Handle processes payment recompute tasks.
func (j *RecomputePaymentsJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Ledger == nil || j.Pool == nil {
		return errors.New("recompute payments: handler not configured")
	}
	var payload RecomputePaymentsPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskLedgerRecomputePayments)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := time.Now()
	ids, err := fetchIDs(ctx, j.Pool, "payments", payload.CustomerID)
	if err != nil {
		resultErr = err
		j.logger().Error("load payment ids", slog.Any("error", err))
		return resultErr
	}

	var recomputed atomic.Int64
	var g errgroup.Group
	g.SetLimit(recomputeConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			if _, err := j.Ledger.RecomputePaymentBalances(ctx, id); err != nil {
				j.logger().Error("recompute payment", slog.Int64("payment_id", id), slog.Any("error", err))
				return err
			}
			recomputed.Add(1)
			return nil
		})
	}
	resultErr = g.Wait()

	n := int(recomputed.Load())
	j.metrics().AddRecomputed("payments", n)
	j.logger().Info("recomputed payments",
		slog.Int("count", n),
		slog.Int("total", len(ids)),
		slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *RecomputePaymentsJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *RecomputePaymentsJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
