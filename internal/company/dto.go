package company

// UpdateSettingsRequest replaces the full settings row.
type UpdateSettingsRequest struct {
	TradingName   string `json:"trading_name" validate:"required,max=255"`
	ABN           string `json:"abn" validate:"omitempty,len=11,numeric"`
	Email         string `json:"email" validate:"omitempty,email"`
	Phone         string `json:"phone" validate:"omitempty,max=32"`
	AddressLine1  string `json:"address_line1"`
	AddressLine2  string `json:"address_line2"`
	City          string `json:"city"`
	State         string `json:"state"`
	PostalCode    string `json:"postal_code"`
	BankName      string `json:"bank_name"`
	BSB           string `json:"bsb" validate:"omitempty,len=7"`
	AccountNumber string `json:"account_number" validate:"omitempty,max=20,numeric"`
	PayID         string `json:"pay_id"`
	StatementNote string `json:"statement_note" validate:"omitempty,max=500"`
}
