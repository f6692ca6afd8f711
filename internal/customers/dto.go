package customers

// CreateCustomerRequest is the payload for POST /customers.
type CreateCustomerRequest struct {
	Code             string  `json:"code" validate:"required,max=32"`
	Name             string  `json:"name" validate:"required,max=255"`
	Email            *string `json:"email" validate:"omitempty,email"`
	Phone            *string `json:"phone" validate:"omitempty,max=32"`
	ABN              *string `json:"abn" validate:"omitempty,len=11,numeric"`
	PaymentTermsDays int     `json:"payment_terms_days" validate:"omitempty,min=0,max=365"`
	AddressLine1     *string `json:"address_line1"`
	AddressLine2     *string `json:"address_line2"`
	City             *string `json:"city"`
	State            *string `json:"state"`
	PostalCode       *string `json:"postal_code"`
	Notes            *string `json:"notes"`
}

// UpdateCustomerRequest is the payload for PATCH /customers/{id}. Nil fields
// are left unchanged.
type UpdateCustomerRequest struct {
	Name             *string `json:"name" validate:"omitempty,max=255"`
	Email            *string `json:"email" validate:"omitempty,email"`
	Phone            *string `json:"phone" validate:"omitempty,max=32"`
	ABN              *string `json:"abn" validate:"omitempty,len=11,numeric"`
	PaymentTermsDays *int    `json:"payment_terms_days" validate:"omitempty,min=0,max=365"`
	AddressLine1     *string `json:"address_line1"`
	AddressLine2     *string `json:"address_line2"`
	City             *string `json:"city"`
	State            *string `json:"state"`
	PostalCode       *string `json:"postal_code"`
	IsActive         *bool   `json:"is_active"`
	Notes            *string `json:"notes"`
}

// ListCustomersRequest carries list filters.
type ListCustomersRequest struct {
	Search   string
	IsActive *bool
	Limit    int
	Offset   int
}

// ListCustomersResponse is the paginated list envelope.
type ListCustomersResponse struct {
	Customers []Customer `json:"customers"`
	Total     int        `json:"total"`
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
}
