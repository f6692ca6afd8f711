package company

import "time"

// Settings is the single-row company profile printed on invoices and
// statements.
type Settings struct {
	TradingName   string    `json:"trading_name"`
	ABN           string    `json:"abn,omitempty"`
	Email         string    `json:"email,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	AddressLine1  string    `json:"address_line1,omitempty"`
	AddressLine2  string    `json:"address_line2,omitempty"`
	City          string    `json:"city,omitempty"`
	State         string    `json:"state,omitempty"`
	PostalCode    string    `json:"postal_code,omitempty"`
	BankName      string    `json:"bank_name,omitempty"`
	BSB           string    `json:"bsb,omitempty"`
	AccountNumber string    `json:"account_number,omitempty"`
	PayID         string    `json:"pay_id,omitempty"`
	StatementNote string    `json:"statement_note,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}
