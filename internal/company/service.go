package company

import (
	"context"
	"errors"

	"github.com/ledgerline/ledgerline/internal/statement"
)

// ErrNotConfigured is returned before the settings row has been saved.
var ErrNotConfigured = errors.New("company: settings not configured")

// RepositoryPort defines the storage access the service needs.
type RepositoryPort interface {
	Get(ctx context.Context) (*Settings, error)
	Save(ctx context.Context, s Settings) error
}

// Service holds company settings logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Get returns the saved settings, or zero-value defaults when none exist yet.
func (s *Service) Get(ctx context.Context) (*Settings, error) {
	settings, err := s.repo.Get(ctx)
	if errors.Is(err, ErrNotConfigured) {
		return &Settings{}, nil
	}
	if err != nil {
		return nil, err
	}
	return settings, nil
}

func (s *Service) Update(ctx context.Context, req UpdateSettingsRequest) (*Settings, error) {
	settings := Settings{
		TradingName:   req.TradingName,
		ABN:           req.ABN,
		Email:         req.Email,
		Phone:         req.Phone,
		AddressLine1:  req.AddressLine1,
		AddressLine2:  req.AddressLine2,
		City:          req.City,
		State:         req.State,
		PostalCode:    req.PostalCode,
		BankName:      req.BankName,
		BSB:           req.BSB,
		AccountNumber: req.AccountNumber,
		PayID:         req.PayID,
		StatementNote: req.StatementNote,
	}
	if err := s.repo.Save(ctx, settings); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx)
}

// Remittance supplies the payment details block for statements. A missing
// settings row yields an empty block rather than an error.
func (s *Service) Remittance(ctx context.Context) (statement.Remittance, string, error) {
	settings, err := s.Get(ctx)
	if err != nil {
		return statement.Remittance{}, "", err
	}
	return statement.Remittance{
		BankName:      settings.BankName,
		BSB:           settings.BSB,
		AccountNumber: settings.AccountNumber,
		PayID:         settings.PayID,
	}, settings.StatementNote, nil
}
