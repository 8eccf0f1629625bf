// Package jobs hosts the background task definitions and the Asynq
// worker plumbing around them.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskBillingRecomputeDocuments rewrites the stored totals of
	// billing documents from their rows and allocations.
	TaskBillingRecomputeDocuments = "billing:recompute_documents"
	// TaskLedgerRecomputePayments rewrites the stored balances of
	// payments from their allocation rows.
	TaskLedgerRecomputePayments = "ledger:recompute_payments"
	// TaskSharedCleanupIdempotency prunes expired idempotency keys.
	TaskSharedCleanupIdempotency = "shared:cleanup_idempotency"
)

// RecomputeDocumentsPayload narrows a document backfill. A zero
// CustomerID recomputes every document.
type RecomputeDocumentsPayload struct {
	CustomerID int64 `json:"customer_id"`
}

// NewRecomputeDocumentsTask constructs the Asynq task.
func NewRecomputeDocumentsTask(payload RecomputeDocumentsPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBillingRecomputeDocuments, data), nil
}

// RecomputePaymentsPayload narrows a payment backfill. A zero
// CustomerID recomputes every payment.
type RecomputePaymentsPayload struct {
	CustomerID int64 `json:"customer_id"`
}

// NewRecomputePaymentsTask constructs the Asynq task.
func NewRecomputePaymentsTask(payload RecomputePaymentsPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerRecomputePayments, data), nil
}

// NewCleanupIdempotencyTask constructs the Asynq task. The retention
// window is fixed by the handler.
func NewCleanupIdempotencyTask() *asynq.Task {
	return asynq.NewTask(TaskSharedCleanupIdempotency, nil)
}
