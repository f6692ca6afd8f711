package billing

import (
	"time"
)

// InvoiceStatus enumerates invoice payment statuses.
type InvoiceStatus string

const (
	StatusUnpaid  InvoiceStatus = "UNPAID"
	StatusPartial InvoiceStatus = "PARTIAL"
	StatusPaid    InvoiceStatus = "PAID"
)

// PaymentKind distinguishes cash receipts from credit memos. Behaviour keys on
// this field; the CR- number prefix is kept only as a numbering convention.
type PaymentKind string

const (
	KindNormal     PaymentKind = "NORMAL"
	KindCreditMemo PaymentKind = "CREDIT_MEMO"
)

// Invoice model. PaidAmount is mutated only by the allocator and the payment
// reversal path; Status is always DeriveStatus(Total, PaidAmount).
type Invoice struct {
	ID         int64
	Number     string
	CustomerID int64
	IssueDate  time.Time
	DueAt      time.Time
	Subtotal   float64
	GSTAmount  float64
	Total      float64
	PaidAmount float64
	Status     InvoiceStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Outstanding returns the unpaid remainder, rounded to the cent.
func (i Invoice) Outstanding() float64 {
	return Round2(i.Total - i.PaidAmount)
}

// InvoiceLine model.
type InvoiceLine struct {
	ID          int64
	InvoiceID   int64
	Description string
	Quantity    float64
	UnitPrice   float64
	Amount      float64
	CreatedAt   time.Time
}

// Payment model. UnallocatedAmount is the portion not yet applied to any
// invoice, always equal to Amount minus the sum of its allocations.
type Payment struct {
	ID                int64
	Number            string
	CustomerID        int64
	Kind              PaymentKind
	Amount            float64
	UnallocatedAmount float64
	PaidAt            time.Time
	Method            string
	Reason            string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Allocation links part of a payment to a specific invoice.
type Allocation struct {
	ID        int64
	RequestID string
	PaymentID int64
	InvoiceID int64
	Amount    float64
	CreatedAt time.Time
}

// InvoiceWithDetails bundles an invoice with its lines and applied payments.
type InvoiceWithDetails struct {
	Invoice
	Lines       []InvoiceLine
	Allocations []Allocation
}
