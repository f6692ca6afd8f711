package statement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/ledgerline/ledgerline/internal/billing"
)

// cacheTTL bounds how stale a served statement can be. Statements embed
// clock-relative overdue labels, so the key also carries the generation day.
const cacheTTL = 5 * time.Minute

// Sentinel errors.
var (
	ErrCustomerNotFound = errors.New("statement: customer not found")
	ErrInvalidRange     = errors.New("statement: end date before start date")
)

// RepositoryPort defines the read-only data access the builder needs.
type RepositoryPort interface {
	CustomerSummary(ctx context.Context, customerID int64) (*CustomerSummary, error)
	InvoiceTotalBefore(ctx context.Context, customerID int64, before time.Time) (float64, error)
	PaymentTotalBefore(ctx context.Context, customerID int64, before time.Time) (float64, error)
	InvoicesInWindow(ctx context.Context, customerID int64, from, to time.Time) ([]InvoiceEntry, error)
	PaymentsInWindow(ctx context.Context, customerID int64, from, to time.Time) ([]PaymentEntry, error)
	OverdueOutstanding(ctx context.Context, customerID int64, asOf time.Time) (float64, error)
}

// SettingsPort supplies the remittance block and footer note.
type SettingsPort interface {
	Remittance(ctx context.Context) (Remittance, string, error)
}

// Service builds customer statements.
type Service struct {
	repo     RepositoryPort
	settings SettingsPort
	cache    *redis.Client
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds a Service instance. cache may be nil to disable caching.
func NewService(repo RepositoryPort, settings SettingsPort, cache *redis.Client, logger *slog.Logger) *Service {
	return &Service{repo: repo, settings: settings, cache: cache, logger: logger, now: time.Now}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// Build produces the statement for a customer over [from, to]. Deterministic
// for fixed underlying data and a fixed clock; the overdue figures are a
// current snapshot, not a historical one.
func (s *Service) Build(ctx context.Context, customerID int64, from, to time.Time) (*Statement, error) {
	if to.Before(from) {
		return nil, ErrInvalidRange
	}

	today := s.now()
	if cached := s.fromCache(ctx, customerID, from, to, today); cached != nil {
		return cached, nil
	}

	customer, err := s.repo.CustomerSummary(ctx, customerID)
	if err != nil {
		return nil, err
	}

	var (
		invoicedBefore, paidBefore, overdue float64
		invoices                            []InvoiceEntry
		payments                            []PaymentEntry
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		invoicedBefore, err = s.repo.InvoiceTotalBefore(gctx, customerID, from)
		return err
	})
	g.Go(func() error {
		var err error
		paidBefore, err = s.repo.PaymentTotalBefore(gctx, customerID, from)
		return err
	})
	g.Go(func() error {
		var err error
		invoices, err = s.repo.InvoicesInWindow(gctx, customerID, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		payments, err = s.repo.PaymentsInWindow(gctx, customerID, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		overdue, err = s.repo.OverdueOutstanding(gctx, customerID, today)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("statement: fetch ledger: %w", err)
	}

	opening := billing.Round2(invoicedBefore - paidBefore)

	lines := make([]Line, 0, len(invoices)+len(payments))
	for _, inv := range invoices {
		lines = append(lines, Line{
			Date:      inv.IssueDate,
			Kind:      KindInvoice,
			Reference: inv.Number,
			Debit:     inv.Total,
			Status:    invoiceLineStatus(inv, today),
		})
	}
	for _, p := range payments {
		lines = append(lines, Line{
			Date:      p.PaidAt,
			Kind:      KindPayment,
			Reference: p.Number,
			Credit:    p.Amount,
		})
	}

	// Chronological, invoices before payments on the same date.
	sort.SliceStable(lines, func(i, j int) bool {
		if !lines[i].Date.Equal(lines[j].Date) {
			return lines[i].Date.Before(lines[j].Date)
		}
		return lines[i].Kind == KindInvoice && lines[j].Kind == KindPayment
	})

	balance := opening
	for i := range lines {
		balance = billing.Round2(balance + lines[i].Debit - lines[i].Credit)
		lines[i].Balance = balance
	}

	remittance, footer, err := s.settings.Remittance(ctx)
	if err != nil {
		return nil, fmt.Errorf("statement: load settings: %w", err)
	}

	stmt := &Statement{
		CustomerID:     customer.ID,
		CustomerName:   customer.Name,
		CustomerEmail:  customer.Email,
		From:           from,
		To:             to,
		GeneratedAt:    today,
		OpeningBalance: opening,
		Lines:          lines,
		ClosingBalance: balance,
		OverdueTotal:   billing.Round2(overdue),
		Remittance:     remittance,
		FooterNote:     footer,
	}

	s.toCache(ctx, stmt, today)
	return stmt, nil
}

// invoiceLineStatus labels an invoice for statement display: paid invoices
// stay Paid, everything else is Overdue once past due, otherwise Open.
func invoiceLineStatus(inv InvoiceEntry, today time.Time) LineStatus {
	switch {
	case inv.Status == billing.StatusPaid:
		return LinePaid
	case inv.DueAt.Before(today):
		return LineOverdue
	default:
		return LineOpen
	}
}

func cacheKey(customerID int64, from, to, today time.Time) string {
	return fmt.Sprintf("statement:%d:%s:%s:%s",
		customerID,
		from.Format("2006-01-02"),
		to.Format("2006-01-02"),
		today.Format("2006-01-02"),
	)
}

func (s *Service) fromCache(ctx context.Context, customerID int64, from, to, today time.Time) *Statement {
	if s.cache == nil {
		return nil
	}
	data, err := s.cache.Get(ctx, cacheKey(customerID, from, to, today)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) && s.logger != nil {
			s.logger.Warn("statement cache get", slog.Any("error", err))
		}
		return nil
	}
	var stmt Statement
	if err := json.Unmarshal(data, &stmt); err != nil {
		return nil
	}
	return &stmt
}

func (s *Service) toCache(ctx context.Context, stmt *Statement, today time.Time) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(stmt)
	if err != nil {
		return
	}
	key := cacheKey(stmt.CustomerID, stmt.From, stmt.To, today)
	if err := s.cache.Set(ctx, key, data, cacheTTL).Err(); err != nil && s.logger != nil {
		s.logger.Warn("statement cache set", slog.Any("error", err))
	}
}

// Invalidate drops any cached statements for a customer. Called after
// allocations or payment deletions change the underlying ledger.
func (s *Service) Invalidate(ctx context.Context, customerID int64) {
	if s.cache == nil {
		return
	}
	pattern := fmt.Sprintf("statement:%d:*", customerID)
	iter := s.cache.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := s.cache.Del(ctx, iter.Val()).Err(); err != nil && s.logger != nil {
			s.logger.Warn("statement cache invalidate", slog.Any("error", err))
		}
	}
}
