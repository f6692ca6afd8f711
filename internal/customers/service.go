package customers

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrNotFound      = errors.New("customers: not found")
	ErrDuplicateCode = errors.New("customers: code already exists")
)

// RepositoryPort defines the storage access the service needs.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (*Customer, error)
	GetByCode(ctx context.Context, code string) (*Customer, error)
	List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error)
	Create(ctx context.Context, c Customer) (int64, error)
	Update(ctx context.Context, id int64, updates map[string]interface{}) error
	NextCode(ctx context.Context) (string, error)
}

// Service holds customer business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, req CreateCustomerRequest) (*Customer, error) {
	existing, err := s.repo.GetByCode(ctx, req.Code)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("check existing customer: %w", err)
	}
	if existing != nil {
		return nil, ErrDuplicateCode
	}

	c := Customer{
		Code:             req.Code,
		Name:             req.Name,
		Email:            req.Email,
		Phone:            req.Phone,
		ABN:              req.ABN,
		PaymentTermsDays: req.PaymentTermsDays,
		AddressLine1:     req.AddressLine1,
		AddressLine2:     req.AddressLine2,
		City:             req.City,
		State:            req.State,
		PostalCode:       req.PostalCode,
		IsActive:         true,
		Notes:            req.Notes,
	}
	if c.PaymentTermsDays == 0 {
		c.PaymentTermsDays = 30
	}

	id, err := s.repo.Create(ctx, c)
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Update(ctx context.Context, id int64, req UpdateCustomerRequest) (*Customer, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Email != nil {
		updates["email"] = *req.Email
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if req.ABN != nil {
		updates["abn"] = *req.ABN
	}
	if req.PaymentTermsDays != nil {
		updates["payment_terms_days"] = *req.PaymentTermsDays
	}
	if req.AddressLine1 != nil {
		updates["address_line1"] = *req.AddressLine1
	}
	if req.AddressLine2 != nil {
		updates["address_line2"] = *req.AddressLine2
	}
	if req.City != nil {
		updates["city"] = *req.City
	}
	if req.State != nil {
		updates["state"] = *req.State
	}
	if req.PostalCode != nil {
		updates["postal_code"] = *req.PostalCode
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.Notes != nil {
		updates["notes"] = *req.Notes
	}

	if len(updates) > 0 {
		if err := s.repo.Update(ctx, id, updates); err != nil {
			return nil, err
		}
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Get(ctx context.Context, id int64) (*Customer, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error) {
	if req.Limit <= 0 || req.Limit > 200 {
		req.Limit = 50
	}
	if req.Offset < 0 {
		req.Offset = 0
	}
	return s.repo.List(ctx, req)
}

func (s *Service) NextCode(ctx context.Context) (string, error) {
	return s.repo.NextCode(ctx)
}
