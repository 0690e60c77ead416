package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// Reporter assembles read-only views across all ledgers.
type Reporter struct {
	cash      *CashLedger
	dealers   *PartyLedger
	suppliers *PartyLedger
	invoices  *InvoiceLedger
	opts      Options
}

func NewReporter(cash *CashLedger, dealers, suppliers *PartyLedger, invoices *InvoiceLedger, opts Options) *Reporter {
	return &Reporter{cash: cash, dealers: dealers, suppliers: suppliers, invoices: invoices, opts: opts}
}

type Dashboard struct {
	AsOf           Date
	CashInHand     decimal.Decimal
	CashBreakdown  []CashTypeTotal
	DealerMarket   MarketSummary
	SupplierMarket MarketSummary
	InvoiceStatus  map[InvoiceStatus]int
}

func (r *Reporter) Dashboard(ctx context.Context) (Dashboard, error) {
	txs, err := r.cash.History(ctx, CashFilter{})
	if err != nil {
		return Dashboard{}, err
	}
	dealers, err := r.dealers.MarketSummary(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	suppliers, err := r.suppliers.MarketSummary(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	counts, err := r.invoices.StatusCounts(ctx)
	if err != nil {
		return Dashboard{}, err
	}

	return Dashboard{
		AsOf:           r.opts.today(),
		CashInHand:     ComputeCashInHand(txs),
		CashBreakdown:  Breakdown(txs),
		DealerMarket:   dealers,
		SupplierMarket: suppliers,
		InvoiceStatus:  counts,
	}, nil
}

// CashDrift reports credit and payment rows whose cash mirror is missing,
// has a different amount, or outlived the row.
func (r *Reporter) CashDrift(ctx context.Context) ([]CashDrift, error) {
	var (
		credits  []Credit
		payments []Payment
	)
	for _, l := range []*PartyLedger{r.dealers, r.suppliers} {
		cs, err := l.Credits(ctx, "")
		if err != nil {
			return nil, err
		}
		ps, err := l.Payments(ctx, "")
		if err != nil {
			return nil, err
		}
		credits = append(credits, cs...)
		payments = append(payments, ps...)
	}
	txs, err := r.cash.History(ctx, CashFilter{})
	if err != nil {
		return nil, err
	}
	return DetectCashDrift(credits, payments, txs, DriftOptions{
		SkipSupplierCredits: !r.opts.EmitSupplierCreditCash,
	}), nil
}
