package customers

import "time"

// Customer is a billable party. Nullable columns map to pointer fields.
type Customer struct {
	ID               int64     `json:"id"`
	Code             string    `json:"code"`
	Name             string    `json:"name"`
	Email            *string   `json:"email,omitempty"`
	Phone            *string   `json:"phone,omitempty"`
	ABN              *string   `json:"abn,omitempty"`
	PaymentTermsDays int       `json:"payment_terms_days"`
	AddressLine1     *string   `json:"address_line1,omitempty"`
	AddressLine2     *string   `json:"address_line2,omitempty"`
	City             *string   `json:"city,omitempty"`
	State            *string   `json:"state,omitempty"`
	PostalCode       *string   `json:"postal_code,omitempty"`
	IsActive         bool      `json:"is_active"`
	Notes            *string   `json:"notes,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
