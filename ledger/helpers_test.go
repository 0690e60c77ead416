package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShahFaisal5714/agro-crm-nexus/ledger"
	"github.com/ShahFaisal5714/agro-crm-nexus/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// testNow is the fixed "today" for every ledger test.
var testNow = time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)

type fixture struct {
	ctx       context.Context
	store     ledger.Store
	cash      *ledger.CashLedger
	dealers   *ledger.PartyLedger
	suppliers *ledger.PartyLedger
	invoices  *ledger.InvoiceLedger
	reporter  *ledger.Reporter
}

func testOptions(mutate ...func(*ledger.Options)) ledger.Options {
	opts := ledger.DefaultOptions()
	opts.Logger = zerolog.Nop()
	opts.Clock = func() time.Time { return testNow }
	for _, m := range mutate {
		m(&opts)
	}
	return opts
}

func newFixture(t *testing.T, mutate ...func(*ledger.Options)) *fixture {
	return newFixtureWithStore(t, store.NewMemory(), mutate...)
}

func newFixtureWithStore(t *testing.T, s ledger.Store, mutate ...func(*ledger.Options)) *fixture {
	t.Helper()
	opts := testOptions(mutate...)
	cash := ledger.NewCashLedger(s, opts)
	f := &fixture{
		ctx:       ledger.WithActor(context.Background(), "user-1"),
		store:     s,
		cash:      cash,
		dealers:   ledger.NewDealerLedger(s, cash, opts),
		suppliers: ledger.NewSupplierLedger(s, cash, opts),
		invoices:  ledger.NewInvoiceLedger(s, cash, opts),
	}
	f.reporter = ledger.NewReporter(f.cash, f.dealers, f.suppliers, f.invoices, opts)
	return f
}

func (f *fixture) dealer(t *testing.T, id string) ledger.Party {
	t.Helper()
	p, err := f.dealers.RegisterParty(f.ctx, ledger.Party{ID: id, Name: "Dealer " + id})
	require.NoError(t, err)
	return p
}

func (f *fixture) supplier(t *testing.T, id string) ledger.Party {
	t.Helper()
	p, err := f.suppliers.RegisterParty(f.ctx, ledger.Party{ID: id, Name: "Supplier " + id})
	require.NoError(t, err)
	return p
}

// invoice creates a single-line invoice whose total equals total (no tax).
func (f *fixture) invoice(t *testing.T, number, dealerID, total string, source ledger.InvoiceSource) ledger.Invoice {
	t.Helper()
	inv, _, err := f.invoices.CreateInvoice(f.ctx, ledger.InvoiceInput{
		DealerID:      dealerID,
		InvoiceNumber: number,
		InvoiceDate:   ledger.MustDate("2024-03-01"),
		DueDate:       ledger.MustDate("2024-03-31"),
		Source:        source,
		Items: []ledger.InvoiceItemInput{
			{ProductID: "prod-1", Quantity: amt("1"), UnitPrice: amt(total)},
		},
	})
	require.NoError(t, err)
	return inv
}

func (f *fixture) cashInHand(t *testing.T) decimal.Decimal {
	t.Helper()
	v, err := f.cash.CashInHand(f.ctx)
	require.NoError(t, err)
	return v
}

func amt(s string) decimal.Decimal { return ledger.MustAmount(s) }

func assertAmount(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.Truef(t, amt(want).Equal(got), "want %s, got %s %v", want, got.String(), msgAndArgs)
}

// =============================================================================
// FAILING STORE - Cash table unavailable
// =============================================================================

var errCashDown = errors.New("cash table unavailable")

// failingCash rejects every cash journal write, inside and outside
// transactions.
type failingCash struct {
	*store.Memory
}

func (failingCash) InsertCashTransaction(context.Context, ledger.CashTransaction) (ledger.CashTransaction, error) {
	return ledger.CashTransaction{}, errCashDown
}

func (f failingCash) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	return f.Memory.WithTx(ctx, func(s ledger.Store) error {
		return fn(failingCash{Memory: s.(*store.Memory)})
	})
}
