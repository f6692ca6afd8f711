package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GSTRate is the goods-and-services tax rate applied to invoice subtotals.
const GSTRate = 0.10

// Sentinel errors surfaced to callers.
var (
	ErrInvoiceNotFound     = errors.New("billing: invoice not found")
	ErrPaymentNotFound     = errors.New("billing: payment not found")
	ErrExceedsUnallocated  = errors.New("billing: allocation exceeds payment's unallocated amount")
	ErrExceedsOutstanding  = errors.New("billing: allocation exceeds invoice's outstanding balance")
	ErrNonPositiveAmount   = errors.New("billing: amount must be positive")
	ErrCustomerRequired    = errors.New("billing: customer ID required")
	ErrNoLines             = errors.New("billing: at least one line item required")
	ErrCreditMemoImmutable = errors.New("billing: credit memo allocations cannot be changed")
)

// RepositoryPort defines data access methods for billing. Implementations
// must honour ForUpdate semantics inside WithTx so concurrent allocations
// against the same rows serialise instead of clobbering each other.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, RepositoryPort) error) error

	CreateInvoice(ctx context.Context, inv Invoice) (int64, error)
	CreateInvoiceLine(ctx context.Context, invoiceID int64, line InvoiceLine) (int64, error)
	GetInvoice(ctx context.Context, id int64) (*Invoice, error)
	GetInvoiceForUpdate(ctx context.Context, id int64) (*Invoice, error)
	ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, error)
	ListInvoiceLines(ctx context.Context, invoiceID int64) ([]InvoiceLine, error)
	UpdateInvoicePaid(ctx context.Context, id int64, paid float64, status InvoiceStatus) error
	DeleteInvoice(ctx context.Context, id int64) error

	CreatePayment(ctx context.Context, p Payment) (int64, error)
	GetPayment(ctx context.Context, id int64) (*Payment, error)
	GetPaymentForUpdate(ctx context.Context, id int64) (*Payment, error)
	ListPayments(ctx context.Context, req ListPaymentsRequest) ([]Payment, error)
	UpdatePaymentUnallocated(ctx context.Context, id int64, unallocated float64) error
	DeletePayment(ctx context.Context, id int64) error

	CreateAllocation(ctx context.Context, a Allocation) (int64, error)
	ListAllocationsByPayment(ctx context.Context, paymentID int64) ([]Allocation, error)
	ListAllocationsByInvoice(ctx context.Context, invoiceID int64) ([]Allocation, error)
	DeleteAllocationsByPayment(ctx context.Context, paymentID int64) error

	NextInvoiceNumber(ctx context.Context) (string, error)
	NextPaymentNumber(ctx context.Context) (string, error)
	NextCreditMemoNumber(ctx context.Context) (string, error)
}

// ListInvoicesRequest filters invoice listings.
type ListInvoicesRequest struct {
	CustomerID int64
	Status     InvoiceStatus
	Limit      int
	Offset     int
}

// ListPaymentsRequest filters payment listings.
type ListPaymentsRequest struct {
	CustomerID int64
	Limit      int
	Offset     int
}

// Service handles billing business logic: invoice creation, payment entry,
// allocation and reversal.
type Service struct {
	repo          RepositoryPort
	now           func() time.Time
	ledgerChanged func(context.Context, int64)
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// WithLedgerChangedHook registers a callback fired after any mutation that
// changes a customer's ledger. Used to drop cached statements.
func (s *Service) WithLedgerChangedHook(fn func(context.Context, int64)) {
	s.ledgerChanged = fn
}

func (s *Service) notifyLedgerChanged(ctx context.Context, customerID int64) {
	if s.ledgerChanged != nil {
		s.ledgerChanged(ctx, customerID)
	}
}

// CreateInvoiceInput describes a new invoice.
type CreateInvoiceInput struct {
	CustomerID int64
	IssueDate  time.Time
	DueAt      time.Time
	Lines      []CreateInvoiceLineInput
}

// CreateInvoiceLineInput describes one invoice line.
type CreateInvoiceLineInput struct {
	Description string
	Quantity    float64
	UnitPrice   float64
}

// CreateInvoice validates input, derives line amounts and GST and persists
// the invoice with its lines in one transaction.
func (s *Service) CreateInvoice(ctx context.Context, input CreateInvoiceInput) (*InvoiceWithDetails, error) {
	if input.CustomerID == 0 {
		return nil, ErrCustomerRequired
	}
	if len(input.Lines) == 0 {
		return nil, ErrNoLines
	}
	for _, l := range input.Lines {
		if l.Quantity <= 0 || l.UnitPrice < 0 {
			return nil, ErrNonPositiveAmount
		}
	}

	now := s.now()
	issue := input.IssueDate
	if issue.IsZero() {
		issue = now
	}
	due := input.DueAt
	if due.IsZero() {
		due = issue.AddDate(0, 0, 30)
	}

	var subtotal float64
	lines := make([]InvoiceLine, 0, len(input.Lines))
	for _, l := range input.Lines {
		amount := Round2(l.Quantity * l.UnitPrice)
		subtotal += amount
		lines = append(lines, InvoiceLine{
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			Amount:      amount,
		})
	}
	subtotal = Round2(subtotal)
	gst := Round2(subtotal * GSTRate)
	total := Round2(subtotal + gst)

	inv := Invoice{
		CustomerID: input.CustomerID,
		IssueDate:  issue,
		DueAt:      due,
		Subtotal:   subtotal,
		GSTAmount:  gst,
		Total:      total,
		PaidAmount: 0,
		Status:     DeriveStatus(total, 0),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, repo RepositoryPort) error {
		number, err := repo.NextInvoiceNumber(ctx)
		if err != nil {
			return fmt.Errorf("next invoice number: %w", err)
		}
		inv.Number = number

		id, err := repo.CreateInvoice(ctx, inv)
		if err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}
		inv.ID = id

		for i := range lines {
			lines[i].InvoiceID = id
			lineID, err := repo.CreateInvoiceLine(ctx, id, lines[i])
			if err != nil {
				return fmt.Errorf("create invoice line: %w", err)
			}
			lines[i].ID = lineID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyLedgerChanged(ctx, inv.CustomerID)
	return &InvoiceWithDetails{Invoice: inv, Lines: lines}, nil
}

// GetInvoice returns an invoice with its lines and applied allocations.
func (s *Service) GetInvoice(ctx context.Context, id int64) (*InvoiceWithDetails, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	lines, err := s.repo.ListInvoiceLines(ctx, id)
	if err != nil {
		return nil, err
	}
	allocs, err := s.repo.ListAllocationsByInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	return &InvoiceWithDetails{Invoice: *inv, Lines: lines, Allocations: allocs}, nil
}

// ListInvoices returns invoices matching the request filters.
func (s *Service) ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, error) {
	return s.repo.ListInvoices(ctx, req)
}

// ListOutstanding returns a customer's invoices that are not fully paid.
func (s *Service) ListOutstanding(ctx context.Context, customerID int64) ([]Invoice, error) {
	invoices, err := s.repo.ListInvoices(ctx, ListInvoicesRequest{CustomerID: customerID})
	if err != nil {
		return nil, err
	}
	out := invoices[:0]
	for _, inv := range invoices {
		if inv.Status != StatusPaid {
			out = append(out, inv)
		}
	}
	return out, nil
}

// AllocationTarget names one invoice and the amount to apply to it.
type AllocationTarget struct {
	InvoiceID int64
	Amount    float64
	RequestID string
}

// RecordPaymentInput describes a new payment, optionally with immediate
// allocations applied in the same transaction.
type RecordPaymentInput struct {
	CustomerID  int64
	Amount      float64
	PaidAt      time.Time
	Method      string
	Reason      string
	Allocations []AllocationTarget
}

// RecordPayment persists a payment and applies any requested allocations as
// one unit of work. The leftover stays on the payment as unallocated credit.
func (s *Service) RecordPayment(ctx context.Context, input RecordPaymentInput) (*Payment, error) {
	if input.CustomerID == 0 {
		return nil, ErrCustomerRequired
	}
	if input.Amount <= 0 {
		return nil, ErrNonPositiveAmount
	}
	for _, t := range input.Allocations {
		if t.Amount <= 0 {
			return nil, ErrNonPositiveAmount
		}
	}

	now := s.now()
	paidAt := input.PaidAt
	if paidAt.IsZero() {
		paidAt = now
	}

	payment := Payment{
		CustomerID:        input.CustomerID,
		Kind:              KindNormal,
		Amount:            Round2(input.Amount),
		UnallocatedAmount: Round2(input.Amount),
		PaidAt:            paidAt,
		Method:            input.Method,
		Reason:            input.Reason,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, repo RepositoryPort) error {
		number, err := repo.NextPaymentNumber(ctx)
		if err != nil {
			return fmt.Errorf("next payment number: %w", err)
		}
		payment.Number = number

		id, err := repo.CreatePayment(ctx, payment)
		if err != nil {
			return fmt.Errorf("create payment: %w", err)
		}
		payment.ID = id

		for _, target := range input.Allocations {
			if err := s.allocateLocked(ctx, repo, &payment, target); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyLedgerChanged(ctx, payment.CustomerID)
	return &payment, nil
}

// Allocate applies part of an existing payment's unallocated credit to an
// invoice. The whole sequence runs under row locks in a single transaction.
func (s *Service) Allocate(ctx context.Context, paymentID int64, target AllocationTarget) (*Payment, error) {
	if target.Amount <= 0 {
		return nil, ErrNonPositiveAmount
	}

	var payment *Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo RepositoryPort) error {
		var err error
		payment, err = repo.GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if payment.Kind == KindCreditMemo {
			return ErrCreditMemoImmutable
		}
		return s.allocateLocked(ctx, repo, payment, target)
	})
	if err != nil {
		return nil, err
	}
	s.notifyLedgerChanged(ctx, payment.CustomerID)
	return payment, nil
}

// allocateLocked performs one allocation step against an already-locked
// payment. Over-allocation is rejected outright rather than clamped.
func (s *Service) allocateLocked(ctx context.Context, repo RepositoryPort, payment *Payment, target AllocationTarget) error {
	amount := Round2(target.Amount)
	if amount-payment.UnallocatedAmount > paidTolerance {
		return ErrExceedsUnallocated
	}

	inv, err := repo.GetInvoiceForUpdate(ctx, target.InvoiceID)
	if err != nil {
		return err
	}
	if amount-inv.Outstanding() > paidTolerance {
		return ErrExceedsOutstanding
	}

	requestID := target.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	if _, err := repo.CreateAllocation(ctx, Allocation{
		RequestID: requestID,
		PaymentID: payment.ID,
		InvoiceID: inv.ID,
		Amount:    amount,
		CreatedAt: s.now(),
	}); err != nil {
		return fmt.Errorf("create allocation: %w", err)
	}

	newPaid := Round2(inv.PaidAmount + amount)
	if newPaid > inv.Total {
		newPaid = inv.Total
	}
	if err := repo.UpdateInvoicePaid(ctx, inv.ID, newPaid, DeriveStatus(inv.Total, newPaid)); err != nil {
		return fmt.Errorf("update invoice paid: %w", err)
	}

	payment.UnallocatedAmount = Round2(payment.UnallocatedAmount - amount)
	if payment.UnallocatedAmount < 0 {
		payment.UnallocatedAmount = 0
	}
	if err := repo.UpdatePaymentUnallocated(ctx, payment.ID, payment.UnallocatedAmount); err != nil {
		return fmt.Errorf("update payment unallocated: %w", err)
	}
	return nil
}

// DeletePayment reverses every allocation of the payment, restoring each
// touched invoice, then removes the allocation rows and the payment itself.
// Deleting an absent payment is a no-op. Credit memos additionally delete
// their synthetic invoice and its lines.
func (s *Service) DeletePayment(ctx context.Context, paymentID int64) error {
	var customerID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo RepositoryPort) error {
		payment, err := repo.GetPaymentForUpdate(ctx, paymentID)
		if errors.Is(err, ErrPaymentNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		customerID = payment.CustomerID

		allocs, err := repo.ListAllocationsByPayment(ctx, paymentID)
		if err != nil {
			return fmt.Errorf("list allocations: %w", err)
		}

		for _, alloc := range allocs {
			inv, err := repo.GetInvoiceForUpdate(ctx, alloc.InvoiceID)
			if err != nil {
				return err
			}
			newPaid := Round2(inv.PaidAmount - alloc.Amount)
			if newPaid < 0 {
				newPaid = 0
			}
			if err := repo.UpdateInvoicePaid(ctx, inv.ID, newPaid, DeriveStatus(inv.Total, newPaid)); err != nil {
				return fmt.Errorf("revert invoice paid: %w", err)
			}
			if payment.Kind == KindCreditMemo {
				// The credit memo's invoice is a synthetic placeholder,
				// not a real sale; remove it and its lines entirely.
				if err := repo.DeleteInvoice(ctx, inv.ID); err != nil {
					return fmt.Errorf("delete credit memo invoice: %w", err)
				}
			}
		}

		if err := repo.DeleteAllocationsByPayment(ctx, paymentID); err != nil {
			return fmt.Errorf("delete allocations: %w", err)
		}
		if err := repo.DeletePayment(ctx, paymentID); err != nil {
			return fmt.Errorf("delete payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if customerID != 0 {
		s.notifyLedgerChanged(ctx, customerID)
	}
	return nil
}

// GetPayment returns a single payment.
func (s *Service) GetPayment(ctx context.Context, id int64) (*Payment, error) {
	return s.repo.GetPayment(ctx, id)
}

// ListPayments returns payments matching the request filters.
func (s *Service) ListPayments(ctx context.Context, req ListPaymentsRequest) ([]Payment, error) {
	return s.repo.ListPayments(ctx, req)
}

// CreateCreditMemoInput describes a refund or adjustment in the customer's
// favour.
type CreateCreditMemoInput struct {
	CustomerID int64
	Amount     float64
	Date       time.Time
	Reason     string
}

// CreateCreditMemo records a credit-memo payment alongside a fully-allocated
// synthetic invoice so the customer's ledger carries both sides of the
// adjustment. Deleting the payment later removes the placeholder too.
func (s *Service) CreateCreditMemo(ctx context.Context, input CreateCreditMemoInput) (*Payment, error) {
	if input.CustomerID == 0 {
		return nil, ErrCustomerRequired
	}
	if input.Amount <= 0 {
		return nil, ErrNonPositiveAmount
	}

	now := s.now()
	date := input.Date
	if date.IsZero() {
		date = now
	}
	amount := Round2(input.Amount)

	payment := Payment{
		CustomerID:        input.CustomerID,
		Kind:              KindCreditMemo,
		Amount:            amount,
		UnallocatedAmount: 0,
		PaidAt:            date,
		Method:            "credit",
		Reason:            input.Reason,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, repo RepositoryPort) error {
		number, err := repo.NextCreditMemoNumber(ctx)
		if err != nil {
			return fmt.Errorf("next credit memo number: %w", err)
		}
		if !strings.HasPrefix(number, "CR-") {
			number = "CR-" + number
		}
		payment.Number = number

		invID, err := repo.CreateInvoice(ctx, Invoice{
			Number:     number,
			CustomerID: input.CustomerID,
			IssueDate:  date,
			DueAt:      date,
			Subtotal:   amount,
			GSTAmount:  0,
			Total:      amount,
			PaidAmount: amount,
			Status:     StatusPaid,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		if err != nil {
			return fmt.Errorf("create credit memo invoice: %w", err)
		}
		if _, err := repo.CreateInvoiceLine(ctx, invID, InvoiceLine{
			InvoiceID:   invID,
			Description: input.Reason,
			Quantity:    1,
			UnitPrice:   amount,
			Amount:      amount,
		}); err != nil {
			return fmt.Errorf("create credit memo line: %w", err)
		}

		payID, err := repo.CreatePayment(ctx, payment)
		if err != nil {
			return fmt.Errorf("create credit memo payment: %w", err)
		}
		payment.ID = payID

		if _, err := repo.CreateAllocation(ctx, Allocation{
			RequestID: uuid.NewString(),
			PaymentID: payID,
			InvoiceID: invID,
			Amount:    amount,
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("create credit memo allocation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyLedgerChanged(ctx, payment.CustomerID)
	return &payment, nil
}
