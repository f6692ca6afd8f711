package customers

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const customerColumns = `id, code, name, email, phone, abn, payment_terms_days,
	address_line1, address_line2, city, state, postal_code, is_active, notes,
	created_at, updated_at`

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository provides PostgreSQL backed customer storage.
type Repository struct {
	db dbtx
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

func (r *Repository) Get(ctx context.Context, id int64) (*Customer, error) {
	query := fmt.Sprintf("SELECT %s FROM customers WHERE id = $1", customerColumns)
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

func (r *Repository) GetByCode(ctx context.Context, code string) (*Customer, error) {
	query := fmt.Sprintf("SELECT %s FROM customers WHERE code = $1", customerColumns)
	return r.scanOne(r.db.QueryRow(ctx, query, code))
}

func (r *Repository) List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	argNum := 1

	if req.IsActive != nil {
		where += fmt.Sprintf(" AND is_active = $%d", argNum)
		args = append(args, *req.IsActive)
		argNum++
	}
	if req.Search != "" {
		pattern := "%" + req.Search + "%"
		where += fmt.Sprintf(" AND (code ILIKE $%d OR name ILIKE $%d OR email ILIKE $%d)", argNum, argNum, argNum)
		args = append(args, pattern)
		argNum++
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM customers "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf("SELECT %s FROM customers %s ORDER BY code LIMIT $%d OFFSET $%d",
		customerColumns, where, argNum, argNum+1)
	args = append(args, req.Limit, req.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *c)
	}
	return list, total, rows.Err()
}

func (r *Repository) Create(ctx context.Context, c Customer) (int64, error) {
	query := `
		INSERT INTO customers (code, name, email, phone, abn, payment_terms_days,
			address_line1, address_line2, city, state, postal_code, is_active, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`

	var id int64
	err := r.db.QueryRow(ctx, query,
		c.Code, c.Name, c.Email, c.Phone, c.ABN, c.PaymentTermsDays,
		c.AddressLine1, c.AddressLine2, c.City, c.State, c.PostalCode, c.IsActive, c.Notes,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateCode
		}
		return 0, err
	}
	return id, nil
}

func (r *Repository) Update(ctx context.Context, id int64, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}

	query := "UPDATE customers SET updated_at = NOW()"
	args := []interface{}{}
	argNum := 1
	for _, col := range []string{
		"name", "email", "phone", "abn", "payment_terms_days",
		"address_line1", "address_line2", "city", "state", "postal_code",
		"is_active", "notes",
	} {
		if v, ok := updates[col]; ok {
			query += fmt.Sprintf(", %s = $%d", col, argNum)
			args = append(args, v)
			argNum++
		}
	}
	query += fmt.Sprintf(" WHERE id = $%d", argNum)
	args = append(args, id)

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// NextCode suggests the next customer code for form pre-fill. Not reserved;
// the unique constraint on code is the real guard.
func (r *Repository) NextCode(ctx context.Context) (string, error) {
	var count int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM customers").Scan(&count); err != nil {
		return "", err
	}
	return fmt.Sprintf("CUST-%05d", count+1), nil
}

func (r *Repository) scanOne(row pgx.Row) (*Customer, error) {
	c, err := scanCustomer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func scanCustomer(row pgx.Row) (*Customer, error) {
	var c Customer
	var email, phone, abn, addr1, addr2, city, state, postal, notes pgtype.Text
	var createdAt, updatedAt pgtype.Timestamptz

	err := row.Scan(
		&c.ID, &c.Code, &c.Name, &email, &phone, &abn, &c.PaymentTermsDays,
		&addr1, &addr2, &city, &state, &postal, &c.IsActive, &notes,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Email = textPtr(email)
	c.Phone = textPtr(phone)
	c.ABN = textPtr(abn)
	c.AddressLine1 = textPtr(addr1)
	c.AddressLine2 = textPtr(addr2)
	c.City = textPtr(city)
	c.State = textPtr(state)
	c.PostalCode = textPtr(postal)
	c.Notes = textPtr(notes)
	if createdAt.Valid {
		c.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		c.UpdatedAt = updatedAt.Time
	}
	return &c, nil
}

func textPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	v := t.String
	return &v
}
