package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerline/ledgerline/internal/platform/db"
)

const invoiceColumns = `id, number, customer_id, issue_date, due_at,
	subtotal, gst_amount, total, paid_amount, status, created_at, updated_at`

const paymentColumns = `id, number, customer_id, kind, amount,
	unallocated_amount, paid_at, method, reason, created_at, updated_at`

// dbtx abstracts pgxpool.Pool and pgx.Tx so the repository can run inside or
// outside a transaction.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides PostgreSQL backed persistence for billing.
type Repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool, pool: pool}
}

// WithTx runs fn against a repository bound to a RepeatableRead transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, RepositoryPort) error) error {
	if r.pool == nil {
		// Already inside a transaction; reuse the bound connection.
		return fn(ctx, r)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &Repository{db: tx})
	})
}

// --- Invoice operations ---

// CreateInvoice inserts an invoice row.
func (r *Repository) CreateInvoice(ctx context.Context, inv Invoice) (int64, error) {
	query := `
		INSERT INTO invoices (
			number, customer_id, issue_date, due_at,
			subtotal, gst_amount, total, paid_amount, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING id`

	var id int64
	err := r.db.QueryRow(ctx, query,
		inv.Number,
		inv.CustomerID,
		inv.IssueDate,
		inv.DueAt,
		inv.Subtotal,
		inv.GSTAmount,
		inv.Total,
		inv.PaidAmount,
		inv.Status,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// CreateInvoiceLine inserts a line item for an invoice.
func (r *Repository) CreateInvoiceLine(ctx context.Context, invoiceID int64, line InvoiceLine) (int64, error) {
	query := `
		INSERT INTO invoice_lines (invoice_id, description, quantity, unit_price, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id`

	var id int64
	err := r.db.QueryRow(ctx, query,
		invoiceID,
		line.Description,
		line.Quantity,
		line.UnitPrice,
		line.Amount,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetInvoice retrieves an invoice by ID.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	return r.getInvoice(ctx, id, false)
}

// GetInvoiceForUpdate retrieves an invoice and locks its row for the duration
// of the surrounding transaction.
func (r *Repository) GetInvoiceForUpdate(ctx context.Context, id int64) (*Invoice, error) {
	return r.getInvoice(ctx, id, true)
}

func (r *Repository) getInvoice(ctx context.Context, id int64, forUpdate bool) (*Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var inv Invoice
	err := r.db.QueryRow(ctx, query, id).Scan(
		&inv.ID, &inv.Number, &inv.CustomerID, &inv.IssueDate, &inv.DueAt,
		&inv.Subtotal, &inv.GSTAmount, &inv.Total, &inv.PaidAmount, &inv.Status,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// ListInvoices returns invoices with optional filtering.
func (r *Repository) ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE 1=1`
	args := []any{}
	argNum := 1

	if req.CustomerID > 0 {
		query += fmt.Sprintf(" AND customer_id = $%d", argNum)
		args = append(args, req.CustomerID)
		argNum++
	}
	if req.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, string(req.Status))
		argNum++
	}

	query += " ORDER BY issue_date DESC, id DESC"

	if req.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, req.Limit)
		argNum++
	}
	if req.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, req.Offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		var inv Invoice
		if err := rows.Scan(
			&inv.ID, &inv.Number, &inv.CustomerID, &inv.IssueDate, &inv.DueAt,
			&inv.Subtotal, &inv.GSTAmount, &inv.Total, &inv.PaidAmount, &inv.Status,
			&inv.CreatedAt, &inv.UpdatedAt,
		); err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// ListInvoiceLines returns line items for an invoice.
func (r *Repository) ListInvoiceLines(ctx context.Context, invoiceID int64) ([]InvoiceLine, error) {
	query := `
		SELECT id, invoice_id, description, quantity, unit_price, amount, created_at
		FROM invoice_lines
		WHERE invoice_id = $1
		ORDER BY id`

	rows, err := r.db.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []InvoiceLine
	for rows.Next() {
		var line InvoiceLine
		if err := rows.Scan(
			&line.ID, &line.InvoiceID, &line.Description,
			&line.Quantity, &line.UnitPrice, &line.Amount, &line.CreatedAt,
		); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// UpdateInvoicePaid persists a recomputed paid amount and status.
func (r *Repository) UpdateInvoicePaid(ctx context.Context, id int64, paid float64, status InvoiceStatus) error {
	query := `
		UPDATE invoices
		SET paid_amount = $2, status = $3, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, paid, status)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

// DeleteInvoice removes an invoice and its lines.
func (r *Repository) DeleteInvoice(ctx context.Context, id int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM invoice_lines WHERE invoice_id = $1`, id); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	return err
}

// --- Payment operations ---

// CreatePayment inserts a payment row.
func (r *Repository) CreatePayment(ctx context.Context, p Payment) (int64, error) {
	query := `
		INSERT INTO payments (
			number, customer_id, kind, amount, unallocated_amount,
			paid_at, method, reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING id`

	var id int64
	err := r.db.QueryRow(ctx, query,
		p.Number,
		p.CustomerID,
		p.Kind,
		p.Amount,
		p.UnallocatedAmount,
		p.PaidAt,
		p.Method,
		p.Reason,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetPayment retrieves a payment by ID.
func (r *Repository) GetPayment(ctx context.Context, id int64) (*Payment, error) {
	return r.getPayment(ctx, id, false)
}

// GetPaymentForUpdate retrieves a payment and locks its row.
func (r *Repository) GetPaymentForUpdate(ctx context.Context, id int64) (*Payment, error) {
	return r.getPayment(ctx, id, true)
}

func (r *Repository) getPayment(ctx context.Context, id int64, forUpdate bool) (*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var p Payment
	err := r.db.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Number, &p.CustomerID, &p.Kind, &p.Amount,
		&p.UnallocatedAmount, &p.PaidAt, &p.Method, &p.Reason,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPayments returns payments with optional filtering.
func (r *Repository) ListPayments(ctx context.Context, req ListPaymentsRequest) ([]Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE 1=1`
	args := []any{}
	argNum := 1

	if req.CustomerID > 0 {
		query += fmt.Sprintf(" AND customer_id = $%d", argNum)
		args = append(args, req.CustomerID)
		argNum++
	}

	query += " ORDER BY paid_at DESC, id DESC"

	if req.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, req.Limit)
		argNum++
	}
	if req.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, req.Offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(
			&p.ID, &p.Number, &p.CustomerID, &p.Kind, &p.Amount,
			&p.UnallocatedAmount, &p.PaidAt, &p.Method, &p.Reason,
			&p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// UpdatePaymentUnallocated persists a recomputed unallocated amount.
func (r *Repository) UpdatePaymentUnallocated(ctx context.Context, id int64, unallocated float64) error {
	query := `
		UPDATE payments
		SET unallocated_amount = $2, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, unallocated)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// DeletePayment removes a payment row.
func (r *Repository) DeletePayment(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM payments WHERE id = $1`, id)
	return err
}

// --- Allocation operations ---

// CreateAllocation inserts an allocation linking payment to invoice. The
// request_id column is unique so retried requests do not double-apply.
func (r *Repository) CreateAllocation(ctx context.Context, a Allocation) (int64, error) {
	query := `
		INSERT INTO payment_allocations (request_id, payment_id, invoice_id, amount, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	var id int64
	err := r.db.QueryRow(ctx, query, a.RequestID, a.PaymentID, a.InvoiceID, a.Amount, a.CreatedAt).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, fmt.Errorf("billing: allocation %s already applied: %w", a.RequestID, err)
		}
		return 0, err
	}
	return id, nil
}

// ListAllocationsByPayment returns allocations belonging to a payment.
func (r *Repository) ListAllocationsByPayment(ctx context.Context, paymentID int64) ([]Allocation, error) {
	return r.listAllocations(ctx, "payment_id", paymentID)
}

// ListAllocationsByInvoice returns allocations applied to an invoice.
func (r *Repository) ListAllocationsByInvoice(ctx context.Context, invoiceID int64) ([]Allocation, error) {
	return r.listAllocations(ctx, "invoice_id", invoiceID)
}

func (r *Repository) listAllocations(ctx context.Context, column string, id int64) ([]Allocation, error) {
	query := `
		SELECT id, request_id, payment_id, invoice_id, amount, created_at
		FROM payment_allocations
		WHERE ` + column + ` = $1
		ORDER BY id`

	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var allocs []Allocation
	for rows.Next() {
		var a Allocation
		if err := rows.Scan(&a.ID, &a.RequestID, &a.PaymentID, &a.InvoiceID, &a.Amount, &a.CreatedAt); err != nil {
			return nil, err
		}
		allocs = append(allocs, a)
	}
	return allocs, rows.Err()
}

// DeleteAllocationsByPayment removes every allocation of a payment.
func (r *Repository) DeleteAllocationsByPayment(ctx context.Context, paymentID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM payment_allocations WHERE payment_id = $1`, paymentID)
	return err
}

// --- Document numbering ---

// NextInvoiceNumber reserves the next invoice number.
func (r *Repository) NextInvoiceNumber(ctx context.Context) (string, error) {
	return r.nextNumber(ctx, "invoice_number_seq", "INV")
}

// NextPaymentNumber reserves the next payment number.
func (r *Repository) NextPaymentNumber(ctx context.Context) (string, error) {
	return r.nextNumber(ctx, "payment_number_seq", "PAY")
}

// NextCreditMemoNumber reserves the next credit memo number.
func (r *Repository) NextCreditMemoNumber(ctx context.Context) (string, error) {
	return r.nextNumber(ctx, "credit_memo_number_seq", "CR")
}

func (r *Repository) nextNumber(ctx context.Context, sequence, prefix string) (string, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT nextval($1)`, sequence).Scan(&n); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%06d", prefix, n), nil
}
