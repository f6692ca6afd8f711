package billing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	invoices      map[int64]*Invoice
	invoiceLines  map[int64][]InvoiceLine
	payments      map[int64]*Payment
	allocations   map[int64]*Allocation
	requestIDs    map[string]bool
	nextInvoiceID int64
	nextLineID    int64
	nextPaymentID int64
	nextAllocID   int64
	seq           map[string]int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		invoices:     make(map[int64]*Invoice),
		invoiceLines: make(map[int64][]InvoiceLine),
		payments:     make(map[int64]*Payment),
		allocations:  make(map[int64]*Allocation),
		requestIDs:   make(map[string]bool),
		seq:          make(map[string]int64),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, RepositoryPort) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) CreateInvoice(ctx context.Context, inv Invoice) (int64, error) {
	r.nextInvoiceID++
	inv.ID = r.nextInvoiceID
	r.invoices[inv.ID] = &inv
	return inv.ID, nil
}

func (r *memoryRepo) CreateInvoiceLine(ctx context.Context, invoiceID int64, line InvoiceLine) (int64, error) {
	r.nextLineID++
	line.ID = r.nextLineID
	line.InvoiceID = invoiceID
	r.invoiceLines[invoiceID] = append(r.invoiceLines[invoiceID], line)
	return line.ID, nil
}

func (r *memoryRepo) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	inv, ok := r.invoices[id]
	if !ok {
		return nil, ErrInvoiceNotFound
	}
	cp := *inv
	return &cp, nil
}

func (r *memoryRepo) GetInvoiceForUpdate(ctx context.Context, id int64) (*Invoice, error) {
	return r.GetInvoice(ctx, id)
}

func (r *memoryRepo) ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, error) {
	var out []Invoice
	for id := int64(1); id <= r.nextInvoiceID; id++ {
		inv, ok := r.invoices[id]
		if !ok {
			continue
		}
		if req.CustomerID != 0 && inv.CustomerID != req.CustomerID {
			continue
		}
		if req.Status != "" && inv.Status != req.Status {
			continue
		}
		out = append(out, *inv)
	}
	return out, nil
}

func (r *memoryRepo) ListInvoiceLines(ctx context.Context, invoiceID int64) ([]InvoiceLine, error) {
	return r.invoiceLines[invoiceID], nil
}

func (r *memoryRepo) UpdateInvoicePaid(ctx context.Context, id int64, paid float64, status InvoiceStatus) error {
	inv, ok := r.invoices[id]
	if !ok {
		return ErrInvoiceNotFound
	}
	inv.PaidAmount = paid
	inv.Status = status
	return nil
}

func (r *memoryRepo) DeleteInvoice(ctx context.Context, id int64) error {
	delete(r.invoices, id)
	delete(r.invoiceLines, id)
	return nil
}

func (r *memoryRepo) CreatePayment(ctx context.Context, p Payment) (int64, error) {
	r.nextPaymentID++
	p.ID = r.nextPaymentID
	r.payments[p.ID] = &p
	return p.ID, nil
}

func (r *memoryRepo) GetPayment(ctx context.Context, id int64) (*Payment, error) {
	p, ok := r.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memoryRepo) GetPaymentForUpdate(ctx context.Context, id int64) (*Payment, error) {
	return r.GetPayment(ctx, id)
}

func (r *memoryRepo) ListPayments(ctx context.Context, req ListPaymentsRequest) ([]Payment, error) {
	var out []Payment
	for id := int64(1); id <= r.nextPaymentID; id++ {
		p, ok := r.payments[id]
		if !ok {
			continue
		}
		if req.CustomerID != 0 && p.CustomerID != req.CustomerID {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (r *memoryRepo) UpdatePaymentUnallocated(ctx context.Context, id int64, unallocated float64) error {
	p, ok := r.payments[id]
	if !ok {
		return ErrPaymentNotFound
	}
	p.UnallocatedAmount = unallocated
	return nil
}

func (r *memoryRepo) DeletePayment(ctx context.Context, id int64) error {
	delete(r.payments, id)
	return nil
}

func (r *memoryRepo) CreateAllocation(ctx context.Context, a Allocation) (int64, error) {
	if r.requestIDs[a.RequestID] {
		return 0, fmt.Errorf("billing: allocation %s already applied", a.RequestID)
	}
	r.requestIDs[a.RequestID] = true
	r.nextAllocID++
	a.ID = r.nextAllocID
	r.allocations[a.ID] = &a
	return a.ID, nil
}

func (r *memoryRepo) ListAllocationsByPayment(ctx context.Context, paymentID int64) ([]Allocation, error) {
	var out []Allocation
	for id := int64(1); id <= r.nextAllocID; id++ {
		a, ok := r.allocations[id]
		if ok && a.PaymentID == paymentID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListAllocationsByInvoice(ctx context.Context, invoiceID int64) ([]Allocation, error) {
	var out []Allocation
	for id := int64(1); id <= r.nextAllocID; id++ {
		a, ok := r.allocations[id]
		if ok && a.InvoiceID == invoiceID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *memoryRepo) DeleteAllocationsByPayment(ctx context.Context, paymentID int64) error {
	for id, a := range r.allocations {
		if a.PaymentID == paymentID {
			delete(r.allocations, id)
		}
	}
	return nil
}

func (r *memoryRepo) NextInvoiceNumber(ctx context.Context) (string, error) {
	r.seq["INV"]++
	return fmt.Sprintf("INV-%06d", r.seq["INV"]), nil
}

func (r *memoryRepo) NextPaymentNumber(ctx context.Context) (string, error) {
	r.seq["PAY"]++
	return fmt.Sprintf("PAY-%06d", r.seq["PAY"]), nil
}

func (r *memoryRepo) NextCreditMemoNumber(ctx context.Context) (string, error) {
	r.seq["CR"]++
	return fmt.Sprintf("CR-%06d", r.seq["CR"]), nil
}

func newTestService(repo *memoryRepo) *Service {
	svc := NewService(repo)
	svc.WithNow(func() time.Time {
		return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	})
	return svc
}

// mustInvoice creates a posted invoice with one line whose GST-inclusive
// total equals the given amount.
func mustInvoice(t *testing.T, svc *Service, customerID int64, total float64) *InvoiceWithDetails {
	t.Helper()
	inv, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{
		CustomerID: customerID,
		Lines: []CreateInvoiceLineInput{
			{Description: "Goods", Quantity: 1, UnitPrice: Round2(total / (1 + GSTRate))},
		},
	})
	require.NoError(t, err)
	return inv
}

func TestCreateInvoiceComputesTotals(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := newTestService(repo)

	inv, err := svc.CreateInvoice(ctx, CreateInvoiceInput{
		CustomerID: 7,
		Lines: []CreateInvoiceLineInput{
			{Description: "Widgets CTN", Quantity: 3, UnitPrice: 25.50},
			{Description: "Gadgets PACK", Quantity: 2, UnitPrice: 9.99},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "INV-000001", inv.Number)
	require.Equal(t, 96.48, inv.Subtotal)
	require.Equal(t, 9.65, inv.GSTAmount)
	require.Equal(t, 106.13, inv.Total)
	require.Equal(t, StatusUnpaid, inv.Status)
	require.Len(t, inv.Lines, 2)
	require.Equal(t, 76.50, inv.Lines[0].Amount)
}

func TestCreateInvoiceValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newMemoryRepo())

	_, err := svc.CreateInvoice(ctx, CreateInvoiceInput{Lines: []CreateInvoiceLineInput{{Quantity: 1}}})
	require.ErrorIs(t, err, ErrCustomerRequired)

	_, err = svc.CreateInvoice(ctx, CreateInvoiceInput{CustomerID: 1})
	require.ErrorIs(t, err, ErrNoLines)

	_, err = svc.CreateInvoice(ctx, CreateInvoiceInput{
		CustomerID: 1,
		Lines:      []CreateInvoiceLineInput{{Quantity: 0, UnitPrice: 10}},
	})
	require.ErrorIs(t, err, ErrNonPositiveAmount)
}

func TestRecordPaymentSplitAcrossInvoices(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := newTestService(repo)

	invA := mustInvoice(t, svc, 7, 100)
	invB := mustInvoice(t, svc, 7, 100)

	pay, err := svc.RecordPayment(ctx, RecordPaymentInput{
		CustomerID: 7,
		Amount:     150,
		Method:     "eft",
		Allocations: []AllocationTarget{
			{InvoiceID: invA.ID, Amount: invA.Total},
			{InvoiceID: invB.ID, Amount: Round2(150 - invA.Total)},
		},
	})
	require.NoError(t, err)
	require.Equal(t, 0.0, pay.UnallocatedAmount)

	a, _ := repo.GetInvoice(ctx, invA.ID)
	require.Equal(t, StatusPaid, a.Status)
	require.Equal(t, a.Total, a.PaidAmount)

	b, _ := repo.GetInvoice(ctx, invB.ID)
	require.Equal(t, StatusPartial, b.Status)
	require.Equal(t, Round2(150-a.Total), b.PaidAmount)
}

func TestRecordPaymentKeepsUnallocatedCredit(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := newTestService(repo)

	inv := mustInvoice(t, svc, 7, 100)

	pay, err := svc.RecordPayment(ctx, RecordPaymentInput{
		CustomerID: 7,
		Amount:     250,
		Allocations: []AllocationTarget{
			{InvoiceID: inv.ID, Amount: inv.Total},
		},
	})
	require.NoError(t, err)
	require.InDelta(t, Round2(250-inv.Total), pay.UnallocatedAmount, 1e-9)

	stored, _ := repo.GetPayment(ctx, pay.ID)
	require.Equal(t, pay.UnallocatedAmount, stored.UnallocatedAmount)
}

func TestAllocateConservation(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := newTestService(repo)

	inv := mustInvoice(t, svc, 7, 200)
	pay, err := svc.RecordPayment(ctx, RecordPaymentInput{CustomerID: 7, Amount: 80})
	require.NoError(t, err)

	before, _ := repo.GetInvoice(ctx, inv.ID)
	updated, err := svc.Allocate(ctx, pay.ID, AllocationTarget{InvoiceID: inv.ID, Amount: 30})
	require.NoError(t, err)

	after, _ := repo.GetInvoice(ctx, inv.ID)
	require.Equal(t, Round2(before.PaidAmount+30), after.PaidAmount)
	require.Equal(t, 50.0, updated.UnallocatedAmount)

	allocs, _ := repo.ListAllocationsByPayment(ctx, pay.ID)
	require.Len(t, allocs, 1)
	require.Equal(t, 30.0, allocs[0].Amount)
}

func TestAllocateRejectsOverUnallocated(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := newTestService(repo)

	inv := mustInvoice(t, svc, 7, 500)
	pay, err := svc.RecordPayment(ctx, RecordPaymentInput{CustomerID: 7, Amount: 50})
	require.NoError(t, err)

	_, err = svc.Allocate(ctx, pay.ID, AllocationTarget{InvoiceID: inv.ID, Amount: 60})
	require.ErrorIs(t, err, ErrExceedsUnallocated)

	// Nothing changed on the invoice.
	after, _ := repo.GetInvoice(ctx, inv.ID)
	require.Equal(t, 0.0, after.PaidAmount)
}

func TestAllocateRejectsOverOutstanding(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := newTestService(repo)

	inv := mustInvoice(t, svc, 7, 40)
	pay, err := svc.RecordPayment(ctx, RecordPaymentInput{CustomerID: 7, Amount: 100})
	require.NoError(t, err)

	_, err = svc.Allocate(ctx, pay.ID, AllocationTarget{InvoiceID: inv.ID, Amount: Round2(inv.Total + 10)})
	require.ErrorIs(t, err, ErrExceedsOutstanding)
}

func TestAllocateRejectsNonPositive(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newMemoryRepo())

	_, err := svc.Allocate(ctx, 1, AllocationTarget{InvoiceID: 1, Amount: 0})
	require.ErrorIs(t, err, ErrNonPositiveAmount)
}

func TestAllocateDuplicateRequestID(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := newTestService(repo)

	inv := mustInvoice(t, svc, 7, 200)
	pay, err := svc.RecordPayment(ctx, RecordPaymentInput{CustomerID: 7, Amount: 100})
	require.NoError(t, err)

	target := AllocationTarget{InvoiceID: inv.ID, Amount: 20, RequestID: "4fa85f64-5717-4562-b3fc-2c963f66afa6"}
	_, err = svc.Allocate(ctx, pay.ID, target)
	require.NoError(t, err)

	_, err = svc.Allocate(ctx, pay.ID, target)
	require.Error(t, err)

	// The retry must not double-apply.
	after, _ := repo.GetInvoice(ctx, inv.ID)
	require.Equal(t, 20.0, after.PaidAmount)
}

func TestDeletePaymentReversesAllocation(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := newTestService(repo)

	invA := mustInvoice(t, svc, 7, 100)
	invB := mustInvoice(t, svc, 7, 100)

	pay, err := svc.RecordPayment(ctx, RecordPaymentInput{
		CustomerID: 7,
		Amount:     150,
		Allocations: []AllocationTarget{
			{InvoiceID: invA.ID, Amount: invA.Total},
			{InvoiceID: invB.ID, Amount: Round2(150 - invA.Total)},
		},
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeletePayment(ctx, pay.ID))

	a, _ := repo.GetInvoice(ctx, invA.ID)
	require.Equal(t, StatusUnpaid, a.Status)
	require.Equal(t, 0.0, a.PaidAmount)

	b, _ := repo.GetInvoice(ctx, invB.ID)
	require.Equal(t, StatusUnpaid, b.Status)
	require.Equal(t, 0.0, b.PaidAmount)

	allocs, _ := repo.ListAllocationsByPayment(ctx, pay.ID)
	require.Empty(t, allocs)

	_, err = repo.GetPayment(ctx, pay.ID)
	require.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestDeletePaymentIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newMemoryRepo())
	require.NoError(t, svc.DeletePayment(ctx, 999))
}

func TestDeletePaymentRestoresPartialStatus(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := newTestService(repo)

	inv := mustInvoice(t, svc, 7, 100)

	_, err := svc.RecordPayment(ctx, RecordPaymentInput{
		CustomerID:  7,
		Amount:      30,
		Allocations: []AllocationTarget{{InvoiceID: inv.ID, Amount: 30}},
	})
	require.NoError(t, err)

	second, err := svc.RecordPayment(ctx, RecordPaymentInput{
		CustomerID:  7,
		Amount:      40,
		Allocations: []AllocationTarget{{InvoiceID: inv.ID, Amount: 40}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeletePayment(ctx, second.ID))

	after, _ := repo.GetInvoice(ctx, inv.ID)
	require.Equal(t, StatusPartial, after.Status)
	require.Equal(t, 30.0, after.PaidAmount)
}

func TestCreditMemoCascadeDelete(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := newTestService(repo)

	memo, err := svc.CreateCreditMemo(ctx, CreateCreditMemoInput{
		CustomerID: 7,
		Amount:     45.50,
		Reason:     "Damaged goods return",
	})
	require.NoError(t, err)
	require.Equal(t, KindCreditMemo, memo.Kind)
	require.Equal(t, "CR-000001", memo.Number)
	require.Equal(t, 0.0, memo.UnallocatedAmount)

	allocs, _ := repo.ListAllocationsByPayment(ctx, memo.ID)
	require.Len(t, allocs, 1)
	syntheticID := allocs[0].InvoiceID

	synthetic, err := repo.GetInvoice(ctx, syntheticID)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, synthetic.Status)
	require.Equal(t, 0.0, synthetic.GSTAmount)

	require.NoError(t, svc.DeletePayment(ctx, memo.ID))

	_, err = repo.GetInvoice(ctx, syntheticID)
	require.ErrorIs(t, err, ErrInvoiceNotFound)
	require.Empty(t, repo.invoiceLines[syntheticID])

	remaining, _ := repo.ListAllocationsByPayment(ctx, memo.ID)
	require.Empty(t, remaining)
}

func TestDeleteNormalPaymentNeverDeletesInvoices(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := newTestService(repo)

	inv := mustInvoice(t, svc, 7, 100)
	pay, err := svc.RecordPayment(ctx, RecordPaymentInput{
		CustomerID:  7,
		Amount:      100,
		Allocations: []AllocationTarget{{InvoiceID: inv.ID, Amount: inv.Total}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeletePayment(ctx, pay.ID))

	_, err = repo.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
}

func TestAllocateAgainstCreditMemoRejected(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := newTestService(repo)

	mustInvoice(t, svc, 7, 100)
	memo, err := svc.CreateCreditMemo(ctx, CreateCreditMemoInput{CustomerID: 7, Amount: 10, Reason: "adj"})
	require.NoError(t, err)

	_, err = svc.Allocate(ctx, memo.ID, AllocationTarget{InvoiceID: 1, Amount: 5})
	require.ErrorIs(t, err, ErrCreditMemoImmutable)
}

func TestListOutstanding(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := newTestService(repo)

	open := mustInvoice(t, svc, 7, 100)
	paid := mustInvoice(t, svc, 7, 50)
	mustInvoice(t, svc, 8, 75)

	_, err := svc.RecordPayment(ctx, RecordPaymentInput{
		CustomerID:  7,
		Amount:      paid.Total,
		Allocations: []AllocationTarget{{InvoiceID: paid.ID, Amount: paid.Total}},
	})
	require.NoError(t, err)

	outstanding, err := svc.ListOutstanding(ctx, 7)
	require.NoError(t, err)
	require.Len(t, outstanding, 1)
	require.Equal(t, open.ID, outstanding[0].ID)
}
