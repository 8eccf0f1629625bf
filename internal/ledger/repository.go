package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/arbor-billing/arbor/internal/billing"
	"github.com/arbor-billing/arbor/internal/platform/db"
)

// Repository is the PostgreSQL implementation of RepositoryPort.
type Repository struct {
	pool *pgxpool.Pool
	q    db.Querier
}

// NewRepository constructs a pool-scoped repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, q: pool}
}

// WithTx runs the callback against a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(RepositoryPort) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&Repository{pool: r.pool, q: tx})
	})
}

// Documents returns a billing port bound to this repository's querier,
// so document cache refreshes join the ledger transaction.
func (r *Repository) Documents() billing.RepositoryPort {
	return billing.NewTxRepository(r.pool, r.q)
}

const paymentColumns = `
	id, date, payment_account_id, customer_id, currency_code, amount, received,
	reversal_role, reversal_counterpart_id, allocated, residual, created_at`

func (r *Repository) InsertPayment(ctx context.Context, p *Payment) error {
	query := `
		INSERT INTO payments (date, payment_account_id, customer_id, currency_code,
			amount, received, reversal_role, reversal_counterpart_id,
			allocated, residual, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`
	return r.q.QueryRow(ctx, query,
		p.Date, p.PaymentAccountID, p.CustomerID, p.CurrencyCode,
		p.Amount, p.Received, p.ReversalRole, p.ReversalCounterpartID,
		p.Allocated, p.Residual, p.CreatedAt,
	).Scan(&p.ID)
}

func (r *Repository) UpdatePayment(ctx context.Context, p *Payment) error {
	query := `
		UPDATE payments
		SET date = $2, reversal_role = $3, reversal_counterpart_id = $4,
			allocated = $5, residual = $6
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query,
		p.ID, p.Date, p.ReversalRole, p.ReversalCounterpartID,
		p.Allocated, p.Residual,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) GetPayment(ctx context.Context, id int64) (*Payment, error) {
	row := r.q.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *Repository) ListPayments(ctx context.Context, filter PaymentFilter) ([]Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE 1=1`
	args := []any{}
	i := 0
	if filter.CustomerID != 0 {
		i++
		query += fmt.Sprintf(" AND customer_id = $%d", i)
		args = append(args, filter.CustomerID)
	}
	i++
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d", i)
	args = append(args, filter.Limit)

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *Repository) InsertAllocation(ctx context.Context, a *Allocation) error {
	query := `
		INSERT INTO allocations (payment_id, document_id, date, amount,
			reversal_role, reversal_counterpart_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	return r.q.QueryRow(ctx, query,
		a.PaymentID, a.DocumentID, a.Date, a.Amount,
		a.ReversalRole, a.ReversalCounterpartID,
	).Scan(&a.ID)
}

func (r *Repository) UpdateAllocation(ctx context.Context, a *Allocation) error {
	query := `
		UPDATE allocations
		SET reversal_role = $2, reversal_counterpart_id = $3
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query, a.ID, a.ReversalRole, a.ReversalCounterpartID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) GetAllocation(ctx context.Context, id int64) (*Allocation, error) {
	row := r.q.QueryRow(ctx,
		`SELECT id, payment_id, document_id, date, amount, reversal_role, reversal_counterpart_id
		FROM allocations WHERE id = $1`, id)
	a, err := scanAllocation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

func (r *Repository) ListAllocationsByPayment(ctx context.Context, paymentID int64) ([]Allocation, error) {
	rows, err := r.q.Query(ctx,
		`SELECT id, payment_id, document_id, date, amount, reversal_role, reversal_counterpart_id
		FROM allocations WHERE payment_id = $1 ORDER BY id`, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Allocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// AllocationSum returns the raw sum of a payment's allocation amounts,
// reversal twins included; they carry negated amounts and net out.
func (r *Repository) AllocationSum(ctx context.Context, paymentID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.q.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM allocations WHERE payment_id = $1`,
		paymentID,
	).Scan(&sum)
	if err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	var counterpart pgtype.Int8
	err := row.Scan(
		&p.ID, &p.Date, &p.PaymentAccountID, &p.CustomerID, &p.CurrencyCode,
		&p.Amount, &p.Received, &p.ReversalRole, &counterpart,
		&p.Allocated, &p.Residual, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.ReversalCounterpartID = int8Ptr(counterpart)
	return &p, nil
}

func scanAllocation(row pgx.Row) (*Allocation, error) {
	var a Allocation
	var counterpart pgtype.Int8
	err := row.Scan(
		&a.ID, &a.PaymentID, &a.DocumentID, &a.Date, &a.Amount,
		&a.ReversalRole, &counterpart,
	)
	if err != nil {
		return nil, err
	}
	a.ReversalCounterpartID = int8Ptr(counterpart)
	return &a, nil
}

func int8Ptr(v pgtype.Int8) *int64 {
	if !v.Valid {
		return nil
	}
	val := v.Int64
	return &val
}
