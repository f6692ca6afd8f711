package statement

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/billing"
)

type memoryLedger struct {
	customer       *CustomerSummary
	invoicedBefore float64
	paidBefore     float64
	invoices       []InvoiceEntry
	payments       []PaymentEntry
	overdue        float64
	calls          int
}

func (m *memoryLedger) CustomerSummary(ctx context.Context, customerID int64) (*CustomerSummary, error) {
	if m.customer == nil {
		return nil, ErrCustomerNotFound
	}
	m.calls++
	return m.customer, nil
}

func (m *memoryLedger) InvoiceTotalBefore(ctx context.Context, customerID int64, before time.Time) (float64, error) {
	return m.invoicedBefore, nil
}

func (m *memoryLedger) PaymentTotalBefore(ctx context.Context, customerID int64, before time.Time) (float64, error) {
	return m.paidBefore, nil
}

func (m *memoryLedger) InvoicesInWindow(ctx context.Context, customerID int64, from, to time.Time) ([]InvoiceEntry, error) {
	return m.invoices, nil
}

func (m *memoryLedger) PaymentsInWindow(ctx context.Context, customerID int64, from, to time.Time) ([]PaymentEntry, error) {
	return m.payments, nil
}

func (m *memoryLedger) OverdueOutstanding(ctx context.Context, customerID int64, asOf time.Time) (float64, error) {
	return m.overdue, nil
}

type staticSettings struct{}

func (staticSettings) Remittance(ctx context.Context) (Remittance, string, error) {
	return Remittance{
		BankName:      "Westpac",
		BSB:           "032-000",
		AccountNumber: "123456",
		PayID:         "billing@example.com",
	}, "Please quote your invoice number with payment.", nil
}

var testToday = time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

func newTestService(ledger *memoryLedger, cache *redis.Client) *Service {
	svc := NewService(ledger, staticSettings{}, cache, slog.Default())
	svc.WithNow(func() time.Time { return testToday })
	return svc
}

func day(d int) time.Time {
	return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC)
}

func TestBuildOpeningBalanceCarryForward(t *testing.T) {
	ledger := &memoryLedger{
		customer:       &CustomerSummary{ID: 7, Name: "Acme Pty Ltd"},
		invoicedBefore: 500,
		paidBefore:     200,
		invoices: []InvoiceEntry{
			{Number: "INV-000010", IssueDate: day(5), DueAt: day(20), Total: 100, Status: billing.StatusUnpaid},
		},
	}
	svc := newTestService(ledger, nil)

	stmt, err := svc.Build(context.Background(), 7, day(1), day(31))
	require.NoError(t, err)
	require.Equal(t, 300.0, stmt.OpeningBalance)
	require.Equal(t, 400.0, stmt.ClosingBalance)
	require.Len(t, stmt.Lines, 1)
	require.Equal(t, 400.0, stmt.Lines[0].Balance)
}

func TestBuildBalanceContinuity(t *testing.T) {
	ledger := &memoryLedger{
		customer:       &CustomerSummary{ID: 7, Name: "Acme Pty Ltd"},
		invoicedBefore: 1000,
		paidBefore:     400,
		invoices: []InvoiceEntry{
			{Number: "INV-000020", IssueDate: day(3), DueAt: day(17), Total: 150.25, Status: billing.StatusUnpaid},
			{Number: "INV-000021", IssueDate: day(10), DueAt: day(24), Total: 99.75, Status: billing.StatusPaid},
		},
		payments: []PaymentEntry{
			{Number: "PAY-000030", PaidAt: day(10), Amount: 99.75},
			{Number: "PAY-000031", PaidAt: day(12), Amount: 50},
		},
	}
	svc := newTestService(ledger, nil)

	stmt, err := svc.Build(context.Background(), 7, day(1), day(31))
	require.NoError(t, err)

	want := billing.Round2(stmt.OpeningBalance + 150.25 + 99.75 - 99.75 - 50)
	require.Equal(t, want, stmt.ClosingBalance)
	require.Equal(t, want, stmt.Lines[len(stmt.Lines)-1].Balance)
}

func TestBuildSortsInvoicesBeforePaymentsOnSameDate(t *testing.T) {
	ledger := &memoryLedger{
		customer: &CustomerSummary{ID: 7, Name: "Acme Pty Ltd"},
		invoices: []InvoiceEntry{
			{Number: "INV-B", IssueDate: day(10), DueAt: day(24), Total: 80, Status: billing.StatusUnpaid},
		},
		payments: []PaymentEntry{
			{Number: "PAY-A", PaidAt: day(10), Amount: 80},
			{Number: "PAY-EARLY", PaidAt: day(2), Amount: 10},
		},
	}
	svc := newTestService(ledger, nil)

	stmt, err := svc.Build(context.Background(), 7, day(1), day(31))
	require.NoError(t, err)
	require.Len(t, stmt.Lines, 3)
	require.Equal(t, "PAY-EARLY", stmt.Lines[0].Reference)
	require.Equal(t, "INV-B", stmt.Lines[1].Reference)
	require.Equal(t, "PAY-A", stmt.Lines[2].Reference)
}

func TestBuildStatusLabels(t *testing.T) {
	ledger := &memoryLedger{
		customer: &CustomerSummary{ID: 7, Name: "Acme Pty Ltd"},
		invoices: []InvoiceEntry{
			{Number: "INV-PAID", IssueDate: day(2), DueAt: day(5), Total: 10, Paid: 10, Status: billing.StatusPaid},
			{Number: "INV-OVERDUE", IssueDate: day(3), DueAt: day(10), Total: 20, Status: billing.StatusUnpaid},
			{Number: "INV-OPEN", IssueDate: day(4), DueAt: day(28), Total: 30, Status: billing.StatusPartial},
		},
	}
	svc := newTestService(ledger, nil)

	stmt, err := svc.Build(context.Background(), 7, day(1), day(31))
	require.NoError(t, err)
	require.Equal(t, LinePaid, stmt.Lines[0].Status)
	require.Equal(t, LineOverdue, stmt.Lines[1].Status)
	require.Equal(t, LineOpen, stmt.Lines[2].Status)
	require.Equal(t, KindInvoice, stmt.Lines[1].Kind)
}

func TestBuildDeterministicForFixedClock(t *testing.T) {
	ledger := &memoryLedger{
		customer:       &CustomerSummary{ID: 7, Name: "Acme Pty Ltd"},
		invoicedBefore: 120,
		invoices: []InvoiceEntry{
			{Number: "INV-1", IssueDate: day(8), DueAt: day(22), Total: 55.55, Status: billing.StatusUnpaid},
		},
		payments: []PaymentEntry{
			{Number: "PAY-1", PaidAt: day(9), Amount: 20},
		},
		overdue: 77.70,
	}
	svc := newTestService(ledger, nil)

	first, err := svc.Build(context.Background(), 7, day(1), day(31))
	require.NoError(t, err)
	second, err := svc.Build(context.Background(), 7, day(1), day(31))
	require.NoError(t, err)

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	require.Equal(t, string(a), string(b))
}

func TestBuildRejectsInvertedRange(t *testing.T) {
	svc := newTestService(&memoryLedger{customer: &CustomerSummary{ID: 7, Name: "Acme"}}, nil)
	_, err := svc.Build(context.Background(), 7, day(10), day(1))
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestBuildUnknownCustomer(t *testing.T) {
	svc := newTestService(&memoryLedger{}, nil)
	_, err := svc.Build(context.Background(), 99, day(1), day(31))
	require.ErrorIs(t, err, ErrCustomerNotFound)
}

func TestBuildOverdueTotalIsSnapshot(t *testing.T) {
	ledger := &memoryLedger{
		customer: &CustomerSummary{ID: 7, Name: "Acme Pty Ltd"},
		overdue:  345.67,
	}
	svc := newTestService(ledger, nil)

	stmt, err := svc.Build(context.Background(), 7, day(1), day(31))
	require.NoError(t, err)
	require.Equal(t, 345.67, stmt.OverdueTotal)
}

func TestBuildUsesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	ledger := &memoryLedger{
		customer:       &CustomerSummary{ID: 7, Name: "Acme Pty Ltd"},
		invoicedBefore: 50,
	}
	svc := newTestService(ledger, client)

	first, err := svc.Build(context.Background(), 7, day(1), day(31))
	require.NoError(t, err)
	require.Equal(t, 1, ledger.calls)

	second, err := svc.Build(context.Background(), 7, day(1), day(31))
	require.NoError(t, err)
	require.Equal(t, 1, ledger.calls, "second build should come from cache")
	require.Equal(t, first.OpeningBalance, second.OpeningBalance)
}

func TestInvalidateDropsCachedStatements(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	ledger := &memoryLedger{customer: &CustomerSummary{ID: 7, Name: "Acme Pty Ltd"}}
	svc := newTestService(ledger, client)

	_, err := svc.Build(context.Background(), 7, day(1), day(31))
	require.NoError(t, err)
	require.Equal(t, 1, ledger.calls)

	svc.Invalidate(context.Background(), 7)

	_, err = svc.Build(context.Background(), 7, day(1), day(31))
	require.NoError(t, err)
	require.Equal(t, 2, ledger.calls)
}

func TestRenderHTML(t *testing.T) {
	ledger := &memoryLedger{
		customer: &CustomerSummary{ID: 7, Name: "Acme Pty Ltd"},
		invoices: []InvoiceEntry{
			{Number: "INV-000042", IssueDate: day(5), DueAt: day(6), Total: 1234.56, Status: billing.StatusUnpaid},
		},
		overdue: 1234.56,
	}
	svc := newTestService(ledger, nil)

	stmt, err := svc.Build(context.Background(), 7, day(1), day(31))
	require.NoError(t, err)

	html, err := RenderHTML(stmt)
	require.NoError(t, err)
	require.Contains(t, html, "Acme Pty Ltd")
	require.Contains(t, html, "INV-000042")
	require.Contains(t, html, "1,234.56")
	require.Contains(t, html, "Westpac")
	require.Contains(t, html, "Balance brought forward")
}
