package company

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository stores company settings. The table holds exactly one row with
// id = 1; Save upserts it.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Get(ctx context.Context) (*Settings, error) {
	query := `
		SELECT trading_name, abn, email, phone,
		       address_line1, address_line2, city, state, postal_code,
		       bank_name, bsb, account_number, pay_id, statement_note, updated_at
		FROM company_settings WHERE id = 1`

	var s Settings
	var updatedAt pgtype.Timestamptz
	err := r.pool.QueryRow(ctx, query).Scan(
		&s.TradingName, &s.ABN, &s.Email, &s.Phone,
		&s.AddressLine1, &s.AddressLine2, &s.City, &s.State, &s.PostalCode,
		&s.BankName, &s.BSB, &s.AccountNumber, &s.PayID, &s.StatementNote, &updatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotConfigured
	}
	if err != nil {
		return nil, err
	}
	if updatedAt.Valid {
		s.UpdatedAt = updatedAt.Time
	}
	return &s, nil
}

func (r *Repository) Save(ctx context.Context, s Settings) error {
	query := `
		INSERT INTO company_settings (
			id, trading_name, abn, email, phone,
			address_line1, address_line2, city, state, postal_code,
			bank_name, bsb, account_number, pay_id, statement_note, updated_at
		) VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
		ON CONFLICT (id) DO UPDATE SET
			trading_name = EXCLUDED.trading_name,
			abn = EXCLUDED.abn,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			address_line1 = EXCLUDED.address_line1,
			address_line2 = EXCLUDED.address_line2,
			city = EXCLUDED.city,
			state = EXCLUDED.state,
			postal_code = EXCLUDED.postal_code,
			bank_name = EXCLUDED.bank_name,
			bsb = EXCLUDED.bsb,
			account_number = EXCLUDED.account_number,
			pay_id = EXCLUDED.pay_id,
			statement_note = EXCLUDED.statement_note,
			updated_at = NOW()`

	_, err := r.pool.Exec(ctx, query,
		s.TradingName, s.ABN, s.Email, s.Phone,
		s.AddressLine1, s.AddressLine2, s.City, s.State, s.PostalCode,
		s.BankName, s.BSB, s.AccountNumber, s.PayID, s.StatementNote,
	)
	return err
}
