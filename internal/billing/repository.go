package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/arbor-billing/arbor/internal/masterdata"
	"github.com/arbor-billing/arbor/internal/platform/db"
	"github.com/arbor-billing/arbor/internal/snapshot"
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

// NewTxRepository binds a repository to an existing transaction so
// other domains can refresh document caches inside their own unit of
// work.
func NewTxRepository(pool *pgxpool.Pool, q db.Querier) *Repository {
	return &Repository{pool: pool, q: q}
}

// WithTx runs the callback against a repeatable-read transaction so the
// stage transition, the sequence assignment and the total recompute
// commit atomically.
func (r *Repository) WithTx(ctx context.Context, fn func(RepositoryPort) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&Repository{pool: r.pool, q: tx})
	})
}

// TxFreezer binds the snapshot engine and the billing repository to one
// repeatable-read transaction per freeze-and-create unit of work. Every
// master read, every frozen row and the draft insert commit or roll
// back together, so a concurrent master edit cannot tear a snapshot and
// a failed step leaves no frozen rows behind.
type TxFreezer struct {
	pool *pgxpool.Pool
}

// NewTxFreezer constructs the freezer over the shared pool.
func NewTxFreezer(pool *pgxpool.Pool) *TxFreezer {
	return &TxFreezer{pool: pool}
}

// WithTx opens the transaction and yields a snapshot scope and a
// repository bound to it.
func (t *TxFreezer) WithTx(ctx context.Context, fn func(scope FreezeScope, repo RepositoryPort) error) error {
	return db.WithTx(ctx, t.pool, func(tx pgx.Tx) error {
		engine := snapshot.NewEngine(masterdata.NewRepository(tx), snapshot.NewPGRepository(tx))
		return fn(engine, &Repository{pool: t.pool, q: tx})
	})
}

// NextQuoteNumber claims the next quote sequence id. The dedicated
// counter table makes the claim atomic under concurrent promotions.
func (r *Repository) NextQuoteNumber(ctx context.Context) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `INSERT INTO quote_sequence DEFAULT VALUES RETURNING id`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("billing: next quote number: %w", err)
	}
	return id, nil
}

// NextInvoiceNumber claims the next invoice sequence id.
func (r *Repository) NextInvoiceNumber(ctx context.Context) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `INSERT INTO invoice_sequence DEFAULT VALUES RETURNING id`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("billing: next invoice number: %w", err)
	}
	return id, nil
}

const documentColumns = `
	id, stage, quote_number, invoice_number, quote_date, quote_expiry, invoice_date,
	customer_id, end_customer_id, contact_id, currency_code,
	customer_address_id, billing_address_id, shipping_address_id,
	credit_terms_id, payment_account_id, seller_id, sold_by_label, disabled,
	reversal_role, reversal_counterpart_id,
	subtotal, vat, total, allocated, due_amount, due_date,
	significant_id, significant_date, created_at, updated_at`

func (r *Repository) InsertDocument(ctx context.Context, d *Document) error {
	query := `
		INSERT INTO documents (stage, quote_number, invoice_number, quote_date, quote_expiry,
			invoice_date, customer_id, end_customer_id, contact_id, currency_code,
			customer_address_id, billing_address_id, shipping_address_id,
			credit_terms_id, payment_account_id, seller_id, sold_by_label, disabled,
			reversal_role, reversal_counterpart_id,
			subtotal, vat, total, allocated, due_amount, due_date,
			significant_id, significant_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30)
		RETURNING id`
	return r.q.QueryRow(ctx, query,
		d.Stage, d.QuoteNumber, d.InvoiceNumber, d.QuoteDate, d.QuoteExpiry,
		d.InvoiceDate, d.CustomerID, d.EndCustomerID, d.ContactID, d.CurrencyCode,
		d.CustomerAddressID, d.BillingAddressID, d.ShippingAddressID,
		d.CreditTermsID, d.PaymentAccountID, d.SellerID, d.SoldByLabel, d.Disabled,
		d.ReversalRole, d.ReversalCounterpartID,
		d.Subtotal, d.Vat, d.Total, d.Allocated, d.DueAmount, d.DueDate,
		d.SignificantID, d.SignificantDate, d.CreatedAt, d.UpdatedAt,
	).Scan(&d.ID)
}

func (r *Repository) UpdateDocument(ctx context.Context, d *Document) error {
	query := `
		UPDATE documents
		SET stage = $2, quote_number = $3, invoice_number = $4, quote_date = $5,
			quote_expiry = $6, invoice_date = $7, disabled = $8,
			reversal_role = $9, reversal_counterpart_id = $10,
			subtotal = $11, vat = $12, total = $13, allocated = $14,
			due_amount = $15, due_date = $16, significant_id = $17,
			significant_date = $18, updated_at = $19
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query,
		d.ID, d.Stage, d.QuoteNumber, d.InvoiceNumber, d.QuoteDate,
		d.QuoteExpiry, d.InvoiceDate, d.Disabled,
		d.ReversalRole, d.ReversalCounterpartID,
		d.Subtotal, d.Vat, d.Total, d.Allocated,
		d.DueAmount, d.DueDate, d.SignificantID,
		d.SignificantDate, d.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) GetDocument(ctx context.Context, id int64) (*Document, error) {
	row := r.q.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	d, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

func (r *Repository) ListDocuments(ctx context.Context, filter DocumentFilter) ([]Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE 1=1`
	args := []any{}
	i := 0
	if filter.Stage != "" {
		i++
		query += fmt.Sprintf(" AND stage = $%d", i)
		args = append(args, filter.Stage)
	}
	if filter.CustomerID != 0 {
		i++
		query += fmt.Sprintf(" AND customer_id = $%d", i)
		args = append(args, filter.CustomerID)
	}
	if filter.Due {
		query += " AND due_amount <> 0"
	}
	if filter.Overdue {
		query += " AND due_date < CURRENT_DATE AND due_amount <> 0"
	}
	i++
	query += fmt.Sprintf(" ORDER BY significant_date DESC, significant_id DESC, id DESC LIMIT $%d", i)
	args = append(args, filter.Limit)

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (r *Repository) DeleteDraft(ctx context.Context, id int64) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM documents WHERE id = $1 AND stage = 'draft'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) InsertLicenseLine(ctx context.Context, l *LicenseLine) error {
	query := `
		INSERT INTO license_lines (document_id, product_id, description, price, discount,
			vat_rate, vat_message, disabled, subtotal, total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`
	return r.q.QueryRow(ctx, query,
		l.DocumentID, l.ProductID, l.Description, l.Price, l.Discount,
		l.VatRate, l.VatMessage, l.Disabled, l.Subtotal, l.Total,
	).Scan(&l.ID)
}

func (r *Repository) ListLicenseLines(ctx context.Context, documentID int64) ([]LicenseLine, error) {
	query := `
		SELECT id, document_id, product_id, description, price, discount,
			vat_rate, vat_message, disabled, subtotal, total
		FROM license_lines WHERE document_id = $1 ORDER BY id`
	rows, err := r.q.Query(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LicenseLine
	for rows.Next() {
		var l LicenseLine
		if err := rows.Scan(
			&l.ID, &l.DocumentID, &l.ProductID, &l.Description, &l.Price, &l.Discount,
			&l.VatRate, &l.VatMessage, &l.Disabled, &l.Subtotal, &l.Total,
		); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *Repository) InsertMaintenanceLine(ctx context.Context, m *MaintenanceLine) error {
	query := `
		INSERT INTO maintenance_lines (document_id, product_id, license_line_id, back,
			start_date, end_date, price, discount, vat_rate, vat_message, description,
			disabled, reversal_role, reversal_counterpart_id,
			days, quantity, subtotal, subtotal_by_quantity, total, total_by_quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20)
		RETURNING id`
	return r.q.QueryRow(ctx, query,
		m.DocumentID, m.ProductID, m.LicenseLineID, m.Back,
		m.Start, m.End, m.Price, m.Discount, m.VatRate, m.VatMessage, m.Description,
		m.Disabled, m.ReversalRole, m.ReversalCounterpartID,
		m.Days, m.Quantity, m.Subtotal, m.SubtotalByQuantity, m.Total, m.TotalByQuantity,
	).Scan(&m.ID)
}

func (r *Repository) ListMaintenanceLines(ctx context.Context, documentID int64) ([]MaintenanceLine, error) {
	query := `
		SELECT id, document_id, product_id, license_line_id, back, start_date, end_date,
			price, discount, vat_rate, vat_message, description, disabled,
			reversal_role, reversal_counterpart_id,
			days, quantity, subtotal, subtotal_by_quantity, total, total_by_quantity
		FROM maintenance_lines WHERE document_id = $1 ORDER BY id`
	rows, err := r.q.Query(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MaintenanceLine
	for rows.Next() {
		var m MaintenanceLine
		var licenseLine, counterpart pgtype.Int8
		if err := rows.Scan(
			&m.ID, &m.DocumentID, &m.ProductID, &licenseLine, &m.Back, &m.Start, &m.End,
			&m.Price, &m.Discount, &m.VatRate, &m.VatMessage, &m.Description, &m.Disabled,
			&m.ReversalRole, &counterpart,
			&m.Days, &m.Quantity, &m.Subtotal, &m.SubtotalByQuantity, &m.Total, &m.TotalByQuantity,
		); err != nil {
			return nil, err
		}
		m.LicenseLineID = int8Ptr(licenseLine)
		m.ReversalCounterpartID = int8Ptr(counterpart)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *Repository) InsertCustomLine(ctx context.Context, c *CustomLine) error {
	query := `
		INSERT INTO custom_lines (document_id, name, vat_rate, vat_message, disabled)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	if err := r.q.QueryRow(ctx, query,
		c.DocumentID, c.Name, c.VatRate, c.VatMessage, c.Disabled,
	).Scan(&c.ID); err != nil {
		return err
	}
	for i := range c.Associations {
		a := &c.Associations[i]
		a.CustomLineID = c.ID
		err := r.q.QueryRow(ctx,
			`INSERT INTO custom_associations (custom_line_id, product_id, price, count)
			VALUES ($1, $2, $3, $4) RETURNING id`,
			a.CustomLineID, a.ProductID, a.Price, a.Count,
		).Scan(&a.ID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) ListCustomLines(ctx context.Context, documentID int64) ([]CustomLine, error) {
	query := `
		SELECT id, document_id, name, vat_rate, vat_message, disabled
		FROM custom_lines WHERE document_id = $1 ORDER BY id`
	rows, err := r.q.Query(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CustomLine
	for rows.Next() {
		var c CustomLine
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Name, &c.VatRate, &c.VatMessage, &c.Disabled); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		assocs, err := r.listAssociations(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Associations = assocs
	}
	return out, nil
}

func (r *Repository) listAssociations(ctx context.Context, customLineID int64) ([]CustomAssociation, error) {
	rows, err := r.q.Query(ctx,
		`SELECT id, custom_line_id, product_id, price, count
		FROM custom_associations WHERE custom_line_id = $1 ORDER BY id`, customLineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CustomAssociation
	for rows.Next() {
		var a CustomAssociation
		if err := rows.Scan(&a.ID, &a.CustomLineID, &a.ProductID, &a.Price, &a.Count); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AllocatedSum returns the sum of allocation amounts against a document.
func (r *Repository) AllocatedSum(ctx context.Context, documentID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.q.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM allocations WHERE document_id = $1`,
		documentID,
	).Scan(&sum)
	if err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

// CreditTermsDays reads the day offset off the document's frozen terms.
func (r *Repository) CreditTermsDays(ctx context.Context, frozenTermsID int64) (int, error) {
	var days int
	err := r.q.QueryRow(ctx,
		`SELECT days FROM frozen_credit_terms WHERE id = $1`, frozenTermsID,
	).Scan(&days)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return days, nil
}

func scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	var quoteNum, invoiceNum, endCustomer, custAddr, billAddr, shipAddr, seller, counterpart pgtype.Int8
	var invoiceDate, sigDate pgtype.Timestamptz
	var dueDate pgtype.Date
	err := row.Scan(
		&d.ID, &d.Stage, &quoteNum, &invoiceNum, &d.QuoteDate, &d.QuoteExpiry, &invoiceDate,
		&d.CustomerID, &endCustomer, &d.ContactID, &d.CurrencyCode,
		&custAddr, &billAddr, &shipAddr,
		&d.CreditTermsID, &d.PaymentAccountID, &seller, &d.SoldByLabel, &d.Disabled,
		&d.ReversalRole, &counterpart,
		&d.Subtotal, &d.Vat, &d.Total, &d.Allocated, &d.DueAmount, &dueDate,
		&d.SignificantID, &sigDate, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.QuoteNumber = int8Ptr(quoteNum)
	d.InvoiceNumber = int8Ptr(invoiceNum)
	d.EndCustomerID = int8Ptr(endCustomer)
	d.CustomerAddressID = int8Ptr(custAddr)
	d.BillingAddressID = int8Ptr(billAddr)
	d.ShippingAddressID = int8Ptr(shipAddr)
	d.SellerID = int8Ptr(seller)
	d.ReversalCounterpartID = int8Ptr(counterpart)
	if invoiceDate.Valid {
		t := invoiceDate.Time
		d.InvoiceDate = &t
	}
	if dueDate.Valid {
		t := dueDate.Time
		d.DueDate = &t
	}
	if sigDate.Valid {
		t := sigDate.Time
		d.SignificantDate = &t
	}
	return &d, nil
}

func int8Ptr(v pgtype.Int8) *int64 {
	if !v.Valid {
		return nil
	}
	val := v.Int64
	return &val
}
