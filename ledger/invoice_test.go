package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShahFaisal5714/agro-crm-nexus/ledger"
	"github.com/ShahFaisal5714/agro-crm-nexus/ledger/store"
	"github.com/ShahFaisal5714/agro-crm-nexus/store/sqlite"
)

// =============================================================================
// PURE DERIVATION
// =============================================================================

func TestDeriveStatus(t *testing.T) {
	total := amt("100")
	assert.Equal(t, ledger.StatusUnpaid, ledger.DeriveStatus(amt("0"), total))
	assert.Equal(t, ledger.StatusPartial, ledger.DeriveStatus(amt("0.01"), total))
	assert.Equal(t, ledger.StatusPartial, ledger.DeriveStatus(amt("99.99"), total))
	assert.Equal(t, ledger.StatusPaid, ledger.DeriveStatus(amt("100"), total))
	assert.Equal(t, ledger.StatusPaid, ledger.DeriveStatus(amt("120"), total))
}

func TestDisplayStatus_OverdueOnlyWhenUnpaid(t *testing.T) {
	today := ledger.MustDate("2024-03-15")
	inv := ledger.Invoice{TotalAmount: amt("100"), DueDate: ledger.MustDate("2024-03-14"), Status: ledger.StatusUnpaid}

	assert.Equal(t, ledger.StatusOverdue, ledger.DisplayStatus(inv, amt("0"), today))
	assert.Equal(t, ledger.StatusPartial, ledger.DisplayStatus(inv, amt("10"), today), "partial stays partial past due")
	assert.Equal(t, ledger.StatusPaid, ledger.DisplayStatus(inv, amt("100"), today))

	inv.DueDate = today
	assert.Equal(t, ledger.StatusUnpaid, ledger.DisplayStatus(inv, amt("0"), today), "due today is not overdue")

	inv.Status = ledger.StatusCancelled
	inv.DueDate = ledger.MustDate("2024-01-01")
	assert.Equal(t, ledger.StatusCancelled, ledger.DisplayStatus(inv, amt("0"), today))
}

func TestComputeTotals_RoundsTax(t *testing.T) {
	items := []ledger.InvoiceItemInput{
		{ProductID: "p-1", Quantity: amt("2"), UnitPrice: amt("150.50")},
		{ProductID: "p-2", Quantity: amt("3"), UnitPrice: amt("99.99")},
	}

	subtotal, tax, total := ledger.ComputeTotals(items, amt("18"))

	assertAmount(t, "600.97", subtotal)
	assertAmount(t, "108.17", tax)
	assertAmount(t, "709.14", total)
}

// =============================================================================
// CREATE
// =============================================================================

func TestInvoiceLedger_CreateInvoice(t *testing.T) {
	f := newFixture(t)
	f.dealer(t, "d-1")

	inv, items, err := f.invoices.CreateInvoice(f.ctx, ledger.InvoiceInput{
		DealerID:      "d-1",
		InvoiceNumber: "INV-100",
		DueDate:       ledger.MustDate("2024-04-15"),
		TaxRate:       amt("10"),
		Items: []ledger.InvoiceItemInput{
			{ProductID: "seed", Quantity: amt("4"), UnitPrice: amt("25")},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, ledger.StatusUnpaid, inv.Status)
	assert.Equal(t, ledger.SourceManual, inv.Source)
	assert.Equal(t, "2024-03-15", inv.InvoiceDate.String(), "invoice date defaults to today")
	assertAmount(t, "110", inv.TotalAmount)
	assertAmount(t, "0", inv.PaidAmount)
	require.Len(t, items, 1)
	assert.Equal(t, inv.ID, items[0].InvoiceID)
	assertAmount(t, "100", items[0].Total)
}

func TestInvoiceLedger_CreateInvoice_Rejections(t *testing.T) {
	f := newFixture(t)
	f.dealer(t, "d-1")
	f.invoice(t, "INV-1", "d-1", "100", ledger.SourceManual)

	base := ledger.InvoiceInput{
		DealerID:      "d-1",
		InvoiceNumber: "INV-2",
		InvoiceDate:   ledger.MustDate("2024-03-01"),
		DueDate:       ledger.MustDate("2024-03-31"),
		Items:         []ledger.InvoiceItemInput{{ProductID: "p", Quantity: amt("1"), UnitPrice: amt("1")}},
	}

	dup := base
	dup.InvoiceNumber = "INV-1"
	_, _, err := f.invoices.CreateInvoice(f.ctx, dup)
	assert.ErrorIs(t, err, ledger.ErrDuplicate)

	unknown := base
	unknown.DealerID = "d-404"
	_, _, err = f.invoices.CreateInvoice(f.ctx, unknown)
	assert.ErrorIs(t, err, ledger.ErrValidation)

	early := base
	early.DueDate = ledger.MustDate("2024-02-01")
	_, _, err = f.invoices.CreateInvoice(f.ctx, early)
	assert.ErrorIs(t, err, ledger.ErrValidation)

	noQty := base
	noQty.Items = []ledger.InvoiceItemInput{{ProductID: "p", Quantity: amt("0"), UnitPrice: amt("1")}}
	_, _, err = f.invoices.CreateInvoice(f.ctx, noQty)
	assert.ErrorIs(t, err, ledger.ErrValidation)

	invs, err := f.invoices.Invoices(f.ctx, ledger.InvoiceFilter{})
	require.NoError(t, err)
	assert.Len(t, invs, 1)
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestInvoiceLedger_ScenarioB(t *testing.T) {
	// GIVEN: INV-1 for 10000, unpaid
	f := newFixture(t)
	f.dealer(t, "d-1")
	inv := f.invoice(t, "INV-1", "d-1", "10000", ledger.SourceManual)

	// WHEN: paid in full
	p, err := f.invoices.AddPayment(f.ctx, ledger.InvoicePaymentInput{InvoiceID: inv.ID, Amount: amt("10000")})
	require.NoError(t, err)

	got, err := f.invoices.Invoice(f.ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPaid, got.Status)
	assertAmount(t, "10000", got.PaidAmount)

	// AND: the payment is deleted
	require.NoError(t, f.invoices.DeletePayment(f.ctx, inv.ID, p.ID))

	// THEN: back to unpaid
	got, err = f.invoices.Invoice(f.ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusUnpaid, got.Status)
	assertAmount(t, "0", got.PaidAmount)
}

func TestInvoiceLedger_PartialThenOverpaymentRejected(t *testing.T) {
	f := newFixture(t)
	f.dealer(t, "d-1")
	inv := f.invoice(t, "INV-1", "d-1", "1000", ledger.SourceManual)

	_, err := f.invoices.AddPayment(f.ctx, ledger.InvoicePaymentInput{InvoiceID: inv.ID, Amount: amt("600")})
	require.NoError(t, err)
	got, err := f.invoices.Invoice(f.ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPartial, got.Status)

	_, err = f.invoices.AddPayment(f.ctx, ledger.InvoicePaymentInput{InvoiceID: inv.ID, Amount: amt("400.01")})
	var over *ledger.OverpaymentError
	require.ErrorAs(t, err, &over)
	assertAmount(t, "400", over.Remaining)

	payments, err := f.invoices.Payments(f.ctx, inv.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

// concurrentStores lists the store backends the payment race runs against.
func concurrentStores(t *testing.T) map[string]func() ledger.Store {
	return map[string]func() ledger.Store{
		"memory": func() ledger.Store { return store.NewMemory() },
		"sqlite": func() ledger.Store {
			s, err := sqlite.New(context.Background(), ":memory:")
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func TestInvoiceLedger_ConcurrentOverpayment_Regression(t *testing.T) {
	for name, open := range concurrentStores(t) {
		t.Run(name, func(t *testing.T) {
			// GIVEN: an invoice for 10000 with nothing paid
			f := newFixtureWithStore(t, open())
			f.dealer(t, "d-1")
			inv := f.invoice(t, "INV-1", "d-1", "10000", ledger.SourceManual)

			// WHEN: two payments of 6000 race
			succeeded, errs := racePayments(f, inv.ID, "6000", 2)

			// THEN: exactly one lands; the legacy outcome of 12000 paid must not recur
			assert.Equal(t, 1, succeeded)
			require.Len(t, errs, 1)
			assertRejectedRacer(t, errs[0])
			assertPaidMatchesRows(t, f, inv.ID, "6000")
		})
	}
}

func TestInvoiceLedger_ConcurrentPayments_ManyRacers(t *testing.T) {
	for name, open := range concurrentStores(t) {
		t.Run(name, func(t *testing.T) {
			// GIVEN: an invoice for 10000
			f := newFixtureWithStore(t, open())
			f.dealer(t, "d-1")
			inv := f.invoice(t, "INV-1", "d-1", "10000", ledger.SourceManual)

			// WHEN: eight payments of 3000 race
			succeeded, errs := racePayments(f, inv.ID, "3000", 8)

			// THEN: only three fit under the total
			assert.Equal(t, 3, succeeded)
			for _, err := range errs {
				assertRejectedRacer(t, err)
			}
			assertPaidMatchesRows(t, f, inv.ID, "9000")
		})
	}
}

func racePayments(f *fixture, invoiceID, amount string, n int) (int, []error) {
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		errs      []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.invoices.AddPayment(f.ctx, ledger.InvoicePaymentInput{InvoiceID: invoiceID, Amount: amt(amount)})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else {
				errs = append(errs, err)
			}
		}()
	}
	wg.Wait()
	return succeeded, errs
}

// assertRejectedRacer accepts an overpayment rejection or a version conflict
// that outlasted the retries.
func assertRejectedRacer(t *testing.T, err error) {
	t.Helper()
	var over *ledger.OverpaymentError
	if errors.As(err, &over) {
		return
	}
	assert.ErrorIs(t, err, ledger.ErrConcurrentModification)
}

// assertPaidMatchesRows checks the cached amount, the payment rows and the
// stored status all agree.
func assertPaidMatchesRows(t *testing.T, f *fixture, invoiceID, want string) {
	t.Helper()
	payments, err := f.invoices.Payments(f.ctx, invoiceID)
	require.NoError(t, err)
	sum := decimal.Zero
	for _, p := range payments {
		sum = sum.Add(p.Amount)
	}
	assertAmount(t, want, sum)

	got, err := f.invoices.Invoice(f.ctx, invoiceID)
	require.NoError(t, err)
	assertAmount(t, want, got.PaidAmount)
	assert.Equal(t, ledger.DeriveStatus(sum, got.TotalAmount), got.Status)
	assert.True(t, got.PaidAmount.LessThanOrEqual(got.TotalAmount))
}

func TestInvoiceLedger_CancelledRejectsPayments(t *testing.T) {
	f := newFixture(t)
	f.dealer(t, "d-1")
	inv := f.invoice(t, "INV-1", "d-1", "500", ledger.SourceManual)

	cancelled, err := f.invoices.Cancel(f.ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCancelled, cancelled.Status)

	_, err = f.invoices.AddPayment(f.ctx, ledger.InvoicePaymentInput{InvoiceID: inv.ID, Amount: amt("1")})
	var stateErr *ledger.InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, ledger.StatusCancelled, stateErr.Status)

	_, err = f.invoices.Cancel(f.ctx, inv.ID)
	assert.ErrorIs(t, err, ledger.ErrInvalidState)
}

func TestInvoiceLedger_DeletePayment_ClampsAtZero(t *testing.T) {
	// GIVEN: cached paid amount lagging the payment rows
	f := newFixture(t)
	f.dealer(t, "d-1")
	inv := f.invoice(t, "INV-1", "d-1", "5000", ledger.SourceManual)
	p, err := f.invoices.AddPayment(f.ctx, ledger.InvoicePaymentInput{InvoiceID: inv.ID, Amount: amt("3000")})
	require.NoError(t, err)
	current, err := f.invoices.Invoice(f.ctx, inv.ID)
	require.NoError(t, err)
	require.NoError(t, f.store.UpdateInvoiceState(f.ctx, inv.ID, current.Version, amt("1000"), ledger.StatusPartial))

	// WHEN
	require.NoError(t, f.invoices.DeletePayment(f.ctx, inv.ID, p.ID))

	// THEN: never negative
	got, err := f.invoices.Invoice(f.ctx, inv.ID)
	require.NoError(t, err)
	assertAmount(t, "0", got.PaidAmount)
	assert.Equal(t, ledger.StatusUnpaid, got.Status)
}

func TestInvoiceLedger_DeletePayment_WrongInvoice(t *testing.T) {
	f := newFixture(t)
	f.dealer(t, "d-1")
	a := f.invoice(t, "INV-A", "d-1", "100", ledger.SourceManual)
	b := f.invoice(t, "INV-B", "d-1", "100", ledger.SourceManual)
	p, err := f.invoices.AddPayment(f.ctx, ledger.InvoicePaymentInput{InvoiceID: a.ID, Amount: amt("50")})
	require.NoError(t, err)

	err = f.invoices.DeletePayment(f.ctx, b.ID, p.ID)

	assert.True(t, ledger.IsNotFound(err))
}

func TestInvoiceLedger_DeletePayment_UsesEffectivePaid(t *testing.T) {
	// GIVEN: two payments that settle the invoice, and a cache reset to zero
	f := newFixture(t)
	f.dealer(t, "d-1")
	inv := f.invoice(t, "INV-1", "d-1", "10000", ledger.SourceManual)
	first, err := f.invoices.AddPayment(f.ctx, ledger.InvoicePaymentInput{InvoiceID: inv.ID, Amount: amt("4000")})
	require.NoError(t, err)
	_, err = f.invoices.AddPayment(f.ctx, ledger.InvoicePaymentInput{InvoiceID: inv.ID, Amount: amt("6000")})
	require.NoError(t, err)
	current, err := f.invoices.Invoice(f.ctx, inv.ID)
	require.NoError(t, err)
	require.NoError(t, f.store.UpdateInvoiceState(f.ctx, inv.ID, current.Version, decimal.Zero, ledger.StatusUnpaid))

	// WHEN: the first payment is deleted
	require.NoError(t, f.invoices.DeletePayment(f.ctx, inv.ID, first.ID))

	// THEN: the stored row follows the remaining payment, not the stale cache
	got, err := f.invoices.Invoice(f.ctx, inv.ID)
	require.NoError(t, err)
	assertAmount(t, "6000", got.PaidAmount)
	assert.Equal(t, ledger.StatusPartial, got.Status)

	paid, err := f.invoices.PaidAmount(f.ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.DeriveStatus(paid, got.TotalAmount), got.Status)

	partial, err := f.invoices.Invoices(f.ctx, ledger.InvoiceFilter{Status: ledger.StatusPartial})
	require.NoError(t, err)
	require.Len(t, partial, 1)
	assert.Equal(t, inv.ID, partial[0].ID)
}

func TestInvoiceLedger_PaidAmount_IsMaxOfCacheAndSum(t *testing.T) {
	f := newFixture(t)
	f.dealer(t, "d-1")
	inv := f.invoice(t, "INV-1", "d-1", "10000", ledger.SourceManual)
	_, err := f.invoices.AddPayment(f.ctx, ledger.InvoicePaymentInput{InvoiceID: inv.ID, Amount: amt("3000")})
	require.NoError(t, err)

	setCache := func(v string) {
		current, err := f.invoices.Invoice(f.ctx, inv.ID)
		require.NoError(t, err)
		require.NoError(t, f.store.UpdateInvoiceState(f.ctx, inv.ID, current.Version, amt(v), current.Status))
	}

	// Cache below the sum: the sum wins
	setCache("1000")
	paid, err := f.invoices.PaidAmount(f.ctx, inv.ID)
	require.NoError(t, err)
	assertAmount(t, "3000", paid)

	// Cache above the sum: the cache wins
	setCache("5000")
	paid, err = f.invoices.PaidAmount(f.ctx, inv.ID)
	require.NoError(t, err)
	assertAmount(t, "5000", paid)
}

func TestInvoiceLedger_ReconcilePaidCache(t *testing.T) {
	// GIVEN: one invoice with a drifted cache and one that is consistent
	f := newFixture(t)
	f.dealer(t, "d-1")
	drifted := f.invoice(t, "INV-1", "d-1", "10000", ledger.SourceManual)
	clean := f.invoice(t, "INV-2", "d-1", "100", ledger.SourceManual)
	_, err := f.invoices.AddPayment(f.ctx, ledger.InvoicePaymentInput{InvoiceID: drifted.ID, Amount: amt("3000")})
	require.NoError(t, err)
	_, err = f.invoices.AddPayment(f.ctx, ledger.InvoicePaymentInput{InvoiceID: clean.ID, Amount: amt("100")})
	require.NoError(t, err)
	current, err := f.invoices.Invoice(f.ctx, drifted.ID)
	require.NoError(t, err)
	require.NoError(t, f.store.UpdateInvoiceState(f.ctx, drifted.ID, current.Version, amt("5000"), ledger.StatusPartial))

	// WHEN
	repairs, err := f.invoices.ReconcilePaidCache(f.ctx)
	require.NoError(t, err)

	// THEN: only the drifted invoice is rewritten, to the payment sum
	require.Len(t, repairs, 1)
	assert.Equal(t, drifted.ID, repairs[0].InvoiceID)
	assertAmount(t, "5000", repairs[0].CachedBefore)
	assertAmount(t, "3000", repairs[0].PaidAfter)

	paid, err := f.invoices.PaidAmount(f.ctx, drifted.ID)
	require.NoError(t, err)
	assertAmount(t, "3000", paid)

	again, err := f.invoices.ReconcilePaidCache(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, again, "second run finds nothing")
}

// =============================================================================
// CASH MIRROR AND SNAPSHOTS
// =============================================================================

func TestInvoiceLedger_SalesPaymentMirrorsCash(t *testing.T) {
	f := newFixture(t)
	f.dealer(t, "d-1")
	sales := f.invoice(t, "INV-S", "d-1", "800", ledger.SourceSales)
	manual := f.invoice(t, "INV-M", "d-1", "800", ledger.SourceManual)

	p, err := f.invoices.AddPayment(f.ctx, ledger.InvoicePaymentInput{InvoiceID: sales.ID, Amount: amt("300")})
	require.NoError(t, err)
	_, err = f.invoices.AddPayment(f.ctx, ledger.InvoicePaymentInput{InvoiceID: manual.ID, Amount: amt("200")})
	require.NoError(t, err)

	txs, err := f.cash.History(f.ctx, ledger.CashFilter{})
	require.NoError(t, err)
	require.Len(t, txs, 1, "only sales invoices touch cash")
	assert.Equal(t, ledger.CashSalesPayment, txs[0].Type)
	assert.Equal(t, p.ID, txs[0].ReferenceID)
	assertAmount(t, "300", f.cashInHand(t))
}

func TestInvoiceLedger_Snapshot(t *testing.T) {
	f := newFixture(t)
	f.dealer(t, "d-1")
	inv, _, err := f.invoices.CreateInvoice(f.ctx, ledger.InvoiceInput{
		DealerID:      "d-1",
		InvoiceNumber: "INV-OLD",
		InvoiceDate:   ledger.MustDate("2024-01-01"),
		DueDate:       ledger.MustDate("2024-02-01"),
		Items: []ledger.InvoiceItemInput{
			{ProductID: "p-1", Quantity: amt("1"), UnitPrice: amt("400")},
			{ProductID: "p-2", Quantity: amt("2"), UnitPrice: amt("50")},
		},
	})
	require.NoError(t, err)

	snap, err := f.invoices.Snapshot(f.ctx, inv.ID)
	require.NoError(t, err)
	assert.Len(t, snap.Items, 2)
	assert.Empty(t, snap.Payments)
	assertAmount(t, "500", snap.Remaining)
	assert.Equal(t, ledger.StatusOverdue, snap.DisplayStatus)
	assert.Equal(t, ledger.StatusUnpaid, snap.Invoice.Status, "overdue is never stored")

	_, err = f.invoices.AddPayment(f.ctx, ledger.InvoicePaymentInput{InvoiceID: inv.ID, Amount: amt("100")})
	require.NoError(t, err)
	snap, err = f.invoices.Snapshot(f.ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPartial, snap.DisplayStatus)
	assertAmount(t, "400", snap.Remaining)
}

// =============================================================================
// VERSION CONFLICTS
// =============================================================================

// conflicting fails the first n invoice state writes as if another writer
// got there first.
type conflicting struct {
	*store.Memory
	mu sync.Mutex
	n  *int
}

func (c *conflicting) UpdateInvoiceState(ctx context.Context, id string, v int64, paid decimal.Decimal, status ledger.InvoiceStatus) error {
	c.mu.Lock()
	if *c.n > 0 {
		*c.n--
		c.mu.Unlock()
		return ledger.ErrConcurrentModification
	}
	c.mu.Unlock()
	return c.Memory.UpdateInvoiceState(ctx, id, v, paid, status)
}

func (c *conflicting) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	return c.Memory.WithTx(ctx, func(s ledger.Store) error {
		return fn(&conflicting{Memory: s.(*store.Memory), n: c.n})
	})
}

func TestInvoiceLedger_RetriesOnVersionConflict(t *testing.T) {
	conflicts := 2
	f := newFixtureWithStore(t, &conflicting{Memory: store.NewMemory(), n: &conflicts})
	f.dealer(t, "d-1")
	inv := f.invoice(t, "INV-1", "d-1", "100", ledger.SourceManual)

	_, err := f.invoices.AddPayment(f.ctx, ledger.InvoicePaymentInput{InvoiceID: inv.ID, Amount: amt("40")})

	require.NoError(t, err)
	payments, err := f.invoices.Payments(f.ctx, inv.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 1, "failed attempts leave no rows behind")
}

func TestInvoiceLedger_GivesUpAfterPersistentConflicts(t *testing.T) {
	conflicts := 100
	f := newFixtureWithStore(t, &conflicting{Memory: store.NewMemory(), n: &conflicts})
	f.dealer(t, "d-1")
	inv := f.invoice(t, "INV-1", "d-1", "100", ledger.SourceManual)

	_, err := f.invoices.AddPayment(f.ctx, ledger.InvoicePaymentInput{InvoiceID: inv.ID, Amount: amt("40")})

	assert.True(t, ledger.IsRetryable(err))
	payments, err := f.invoices.Payments(f.ctx, inv.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)
}
