package statement

import (
	"time"

	"github.com/ledgerline/ledgerline/internal/billing"
)

// LineStatus labels an invoice line on a statement. Overdue is evaluated
// against the clock at generation time, so regenerating the same window later
// can legitimately produce different labels.
type LineStatus string

const (
	LinePaid    LineStatus = "Paid"
	LineOpen    LineStatus = "Open"
	LineOverdue LineStatus = "Overdue"
)

// LineKind marks whether a statement line is a debit or a credit.
type LineKind string

const (
	KindInvoice LineKind = "INVOICE"
	KindPayment LineKind = "PAYMENT"
)

// Line is one row of a customer statement with its running balance.
type Line struct {
	Date      time.Time  `json:"date"`
	Kind      LineKind   `json:"kind"`
	Reference string     `json:"reference"`
	Debit     float64    `json:"debit"`
	Credit    float64    `json:"credit"`
	Status    LineStatus `json:"status,omitempty"`
	Balance   float64    `json:"balance"`
}

// Overdue reports whether the line should be highlighted as past due.
func (l Line) Overdue() bool {
	return l.Status == LineOverdue
}

// Remittance carries the company's payment details printed on statements.
type Remittance struct {
	BankName      string `json:"bank_name"`
	BSB           string `json:"bsb"`
	AccountNumber string `json:"account_number"`
	PayID         string `json:"pay_id"`
}

// Statement is the customer-facing ledger over a date range.
type Statement struct {
	CustomerID     int64      `json:"customer_id"`
	CustomerName   string     `json:"customer_name"`
	CustomerEmail  string     `json:"customer_email,omitempty"`
	From           time.Time  `json:"from"`
	To             time.Time  `json:"to"`
	GeneratedAt    time.Time  `json:"generated_at"`
	OpeningBalance float64    `json:"opening_balance"`
	Lines          []Line     `json:"lines"`
	ClosingBalance float64    `json:"closing_balance"`
	OverdueTotal   float64    `json:"overdue_total"`
	Remittance     Remittance `json:"remittance"`
	FooterNote     string     `json:"footer_note,omitempty"`
}

// InvoiceEntry is the invoice projection the builder consumes.
type InvoiceEntry struct {
	Number    string
	IssueDate time.Time
	DueAt     time.Time
	Total     float64
	Paid      float64
	Status    billing.InvoiceStatus
}

// PaymentEntry is the payment projection the builder consumes.
type PaymentEntry struct {
	Number string
	PaidAt time.Time
	Amount float64
}

// CustomerSummary is the customer header block on a statement.
type CustomerSummary struct {
	ID    int64
	Name  string
	Email string
}
