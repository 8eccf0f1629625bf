// Package ledger records incoming payments and their allocation to
// billing documents. Stored balances are caches over the allocation
// rows and are recomputed inside every mutating transaction.
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arbor-billing/arbor/internal/billing"
)

// Payment is money entering the system. Amount is the figure used
// internally; Received is what actually landed on the account after
// fees and withholding.
type Payment struct {
	ID               int64           `json:"id"`
	Date             time.Time       `json:"date"`
	PaymentAccountID int64           `json:"payment_account_id"`
	CustomerID       int64           `json:"customer_id"`
	CurrencyCode     string          `json:"currency_code"`
	Amount           decimal.Decimal `json:"amount"`
	Received         decimal.Decimal `json:"received"`

	ReversalRole          billing.ReversalRole `json:"reversal_role,omitempty"`
	ReversalCounterpartID *int64               `json:"reversal_counterpart_id,omitempty"`

	// Stored balances, recomputed from allocation rows.
	Allocated decimal.Decimal `json:"allocated"`
	Residual  decimal.Decimal `json:"residual"`

	CreatedAt time.Time `json:"created_at"`
}

// Identifier renders the display id of a payment.
func (p *Payment) Identifier() string {
	return fmt.Sprintf("PAY-%d", p.ID)
}

// IsReversed reports whether a correcting payment points at this one.
func (p *Payment) IsReversed() bool {
	return p.ReversalRole == billing.ReversalReversedBy
}

// Allocation attaches part of a payment to a document.
type Allocation struct {
	ID         int64           `json:"id"`
	PaymentID  int64           `json:"payment_id"`
	DocumentID int64           `json:"document_id"`
	Date       time.Time       `json:"date"`
	Amount     decimal.Decimal `json:"amount"`

	ReversalRole          billing.ReversalRole `json:"reversal_role,omitempty"`
	ReversalCounterpartID *int64               `json:"reversal_counterpart_id,omitempty"`
}

// Identifier renders the display id of an allocation.
func (a *Allocation) Identifier() string {
	return fmt.Sprintf("ALC-%d", a.ID)
}

// RecomputeBalances rewrites the payment's stored balances. Allocated
// is the allocation sum minus the amount of the payment's reversal
// counterpart; a payment has at most one. A payment with no counterpart
// passes zero, the neutral default.
func RecomputeBalances(p *Payment, allocationSum, counterpartAmount decimal.Decimal) {
	p.Allocated = allocationSum.Sub(counterpartAmount)
	p.Residual = p.Amount.Sub(p.Allocated)
}
