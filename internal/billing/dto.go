package billing

import "time"

// CreateInvoiceRequest is the JSON payload for creating an invoice.
type CreateInvoiceRequest struct {
	CustomerID int64                      `json:"customer_id" validate:"required,gt=0"`
	IssueDate  string                     `json:"issue_date,omitempty"`
	DueDate    string                     `json:"due_date,omitempty"`
	Lines      []CreateInvoiceLineRequest `json:"lines" validate:"required,min=1,dive"`
}

// CreateInvoiceLineRequest is one line of a CreateInvoiceRequest.
type CreateInvoiceLineRequest struct {
	Description string  `json:"description" validate:"required"`
	Quantity    float64 `json:"quantity" validate:"required,gt=0"`
	UnitPrice   float64 `json:"unit_price" validate:"gte=0"`
}

// RecordPaymentRequest is the JSON payload for recording a payment.
type RecordPaymentRequest struct {
	CustomerID  int64               `json:"customer_id" validate:"required,gt=0"`
	Amount      float64             `json:"amount" validate:"required,gt=0"`
	PaidAt      string              `json:"paid_at,omitempty"`
	Method      string              `json:"method,omitempty"`
	Reason      string              `json:"reason,omitempty"`
	Allocations []AllocationRequest `json:"allocations,omitempty" validate:"dive"`
}

// AllocationRequest names one invoice target and amount.
type AllocationRequest struct {
	InvoiceID int64   `json:"invoice_id" validate:"required,gt=0"`
	Amount    float64 `json:"amount" validate:"required,gt=0"`
	RequestID string  `json:"request_id,omitempty" validate:"omitempty,uuid4"`
}

// CreateCreditMemoRequest is the JSON payload for recording a credit memo.
type CreateCreditMemoRequest struct {
	CustomerID int64   `json:"customer_id" validate:"required,gt=0"`
	Amount     float64 `json:"amount" validate:"required,gt=0"`
	Date       string  `json:"date,omitempty"`
	Reason     string  `json:"reason" validate:"required"`
}

// InvoiceResponse is the JSON shape of an invoice.
type InvoiceResponse struct {
	ID         int64     `json:"id"`
	Number     string    `json:"number"`
	CustomerID int64     `json:"customer_id"`
	IssueDate  time.Time `json:"issue_date"`
	DueAt      time.Time `json:"due_at"`
	Subtotal   float64   `json:"subtotal"`
	GSTAmount  float64   `json:"gst_amount"`
	Total      float64   `json:"total"`
	PaidAmount float64   `json:"paid_amount"`
	Balance    float64   `json:"balance"`
	Status     string    `json:"status"`
}

// PaymentResponse is the JSON shape of a payment.
type PaymentResponse struct {
	ID                int64     `json:"id"`
	Number            string    `json:"number"`
	CustomerID        int64     `json:"customer_id"`
	Kind              string    `json:"kind"`
	Amount            float64   `json:"amount"`
	UnallocatedAmount float64   `json:"unallocated_amount"`
	PaidAt            time.Time `json:"paid_at"`
	Method            string    `json:"method,omitempty"`
	Reason            string    `json:"reason,omitempty"`
}

func toInvoiceResponse(inv Invoice) InvoiceResponse {
	return InvoiceResponse{
		ID:         inv.ID,
		Number:     inv.Number,
		CustomerID: inv.CustomerID,
		IssueDate:  inv.IssueDate,
		DueAt:      inv.DueAt,
		Subtotal:   inv.Subtotal,
		GSTAmount:  inv.GSTAmount,
		Total:      inv.Total,
		PaidAmount: inv.PaidAmount,
		Balance:    inv.Outstanding(),
		Status:     string(inv.Status),
	}
}

func toPaymentResponse(p Payment) PaymentResponse {
	return PaymentResponse{
		ID:                p.ID,
		Number:            p.Number,
		CustomerID:        p.CustomerID,
		Kind:              string(p.Kind),
		Amount:            p.Amount,
		UnallocatedAmount: p.UnallocatedAmount,
		PaidAt:            p.PaidAt,
		Method:            p.Method,
		Reason:            p.Reason,
	}
}
