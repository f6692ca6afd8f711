package statement

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed reads for the statement builder.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CustomerSummary returns the statement header fields for a customer.
func (r *Repository) CustomerSummary(ctx context.Context, customerID int64) (*CustomerSummary, error) {
	query := `SELECT id, name, COALESCE(email, '') FROM customers WHERE id = $1`

	var c CustomerSummary
	err := r.pool.QueryRow(ctx, query, customerID).Scan(&c.ID, &c.Name, &c.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCustomerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// InvoiceTotalBefore sums invoice totals dated strictly before the cutoff.
func (r *Repository) InvoiceTotalBefore(ctx context.Context, customerID int64, before time.Time) (float64, error) {
	query := `
		SELECT COALESCE(SUM(total), 0)
		FROM invoices
		WHERE customer_id = $1 AND issue_date < $2`

	var total float64
	err := r.pool.QueryRow(ctx, query, customerID, before).Scan(&total)
	return total, err
}

// PaymentTotalBefore sums payment amounts dated strictly before the cutoff.
func (r *Repository) PaymentTotalBefore(ctx context.Context, customerID int64, before time.Time) (float64, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM payments
		WHERE customer_id = $1 AND paid_at < $2`

	var total float64
	err := r.pool.QueryRow(ctx, query, customerID, before).Scan(&total)
	return total, err
}

// InvoicesInWindow returns invoice entries dated within [from, to].
func (r *Repository) InvoicesInWindow(ctx context.Context, customerID int64, from, to time.Time) ([]InvoiceEntry, error) {
	query := `
		SELECT number, issue_date, due_at, total, paid_amount, status
		FROM invoices
		WHERE customer_id = $1 AND issue_date >= $2 AND issue_date <= $3
		ORDER BY issue_date, id`

	rows, err := r.pool.Query(ctx, query, customerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []InvoiceEntry
	for rows.Next() {
		var e InvoiceEntry
		if err := rows.Scan(&e.Number, &e.IssueDate, &e.DueAt, &e.Total, &e.Paid, &e.Status); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PaymentsInWindow returns payment entries dated within [from, to].
func (r *Repository) PaymentsInWindow(ctx context.Context, customerID int64, from, to time.Time) ([]PaymentEntry, error) {
	query := `
		SELECT number, paid_at, amount
		FROM payments
		WHERE customer_id = $1 AND paid_at >= $2 AND paid_at <= $3
		ORDER BY paid_at, id`

	rows, err := r.pool.Query(ctx, query, customerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []PaymentEntry
	for rows.Next() {
		var e PaymentEntry
		if err := rows.Scan(&e.Number, &e.PaidAt, &e.Amount); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// OverdueOutstanding sums the unpaid remainder of every invoice past due as
// of the given date, regardless of the statement window.
func (r *Repository) OverdueOutstanding(ctx context.Context, customerID int64, asOf time.Time) (float64, error) {
	query := `
		SELECT COALESCE(SUM(total - paid_amount), 0)
		FROM invoices
		WHERE customer_id = $1 AND status <> 'PAID' AND due_at < $2`

	var total float64
	err := r.pool.QueryRow(ctx, query, customerID, asOf).Scan(&total)
	return total, err
}
