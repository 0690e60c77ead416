/*
cash.go - Cash in hand

PURPOSE:
  The cash journal is the single source for "cash in hand". Every money
  movement (manual deposits, dealer and supplier credits and payments,
  expenses, sales receipts) appends one CashTransaction, and the balance is
  always recomputed from the full journal. Nothing is cached.

DIRECTION:
  manual_add, dealer_payment, sales_payment      -> in
  dealer_credit, supplier_payment,
  supplier_credit, expense                       -> out

  Any type outside the inflow set counts as outflow.

MIRRORING:
  Party and invoice ledgers write their own row first and then mirror it
  here. By default the mirror is best effort: a failed cash write is logged
  at error level and the primary operation still succeeds, leaving drift for
  DetectCashDrift to report. With Options.AtomicCashMirror the primary row and
  its mirror commit together or not at all.

  Edits and deletes of credits and payments never touch the journal.

SEE ALSO:
  - party.go, invoice.go: mirror callers
  - reconcile.go: DetectCashDrift, Breakdown
*/
package ledger

import (
	"context"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// =============================================================================
// DIRECTION
// =============================================================================

type CashDirection string

const (
	Inflow  CashDirection = "in"
	Outflow CashDirection = "out"
)

// Direction classifies a cash transaction type.
func Direction(t CashTransactionType) CashDirection {
	switch t {
	case CashManualAdd, CashDealerPayment, CashSalesPayment:
		return Inflow
	default:
		return Outflow
	}
}

// ComputeCashInHand returns Σ inflow − Σ outflow over txs. Pure; the result
// does not depend on order.
func ComputeCashInHand(txs []CashTransaction) decimal.Decimal {
	balance := decimal.Zero
	for _, tx := range txs {
		if Direction(tx.Type) == Inflow {
			balance = balance.Add(tx.Amount)
		} else {
			balance = balance.Sub(tx.Amount)
		}
	}
	return balance
}

// CashTypeTotal is one line of the cash breakdown.
type CashTypeTotal struct {
	Type      CashTransactionType
	Direction CashDirection
	Count     int
	Total     decimal.Decimal
}

// Breakdown totals txs per transaction type, ordered by type name.
func Breakdown(txs []CashTransaction) []CashTypeTotal {
	byType := make(map[CashTransactionType]*CashTypeTotal)
	for _, tx := range txs {
		t, ok := byType[tx.Type]
		if !ok {
			t = &CashTypeTotal{Type: tx.Type, Direction: Direction(tx.Type), Total: decimal.Zero}
			byType[tx.Type] = t
		}
		t.Count++
		t.Total = t.Total.Add(tx.Amount)
	}

	out := make([]CashTypeTotal, 0, len(byType))
	for _, t := range byType {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// =============================================================================
// CASH LEDGER
// =============================================================================

// CashEntry is the input for a new cash journal row. A zero TransactionDate
// defaults to today.
type CashEntry struct {
	Type            CashTransactionType
	Amount          decimal.Decimal
	ReferenceID     string
	ReferenceType   string
	Description     string
	TransactionDate Date
}

type CashLedger struct {
	store Store
	opts  Options
	log   zerolog.Logger
}

func NewCashLedger(store Store, opts Options) *CashLedger {
	return &CashLedger{store: store, opts: opts, log: opts.component("cash")}
}

// Record appends one cash transaction.
func (c *CashLedger) Record(ctx context.Context, e CashEntry) (CashTransaction, error) {
	actor, err := requireActor(ctx, "record cash transaction")
	if err != nil {
		return CashTransaction{}, err
	}
	return c.record(ctx, c.store, actor, e)
}

func (c *CashLedger) record(ctx context.Context, s Store, actor string, e CashEntry) (CashTransaction, error) {
	if !e.Type.Valid() {
		return CashTransaction{}, invalid("transaction_type", "unknown cash transaction type %q", e.Type)
	}
	if !e.Amount.IsPositive() {
		return CashTransaction{}, invalid("amount", "must be greater than zero")
	}
	date := e.TransactionDate
	if date.IsZero() {
		date = c.opts.today()
	}

	tx, err := s.InsertCashTransaction(ctx, CashTransaction{
		Type:            e.Type,
		Amount:          e.Amount,
		ReferenceID:     e.ReferenceID,
		ReferenceType:   e.ReferenceType,
		Description:     e.Description,
		TransactionDate: date,
		CreatedBy:       actor,
	})
	if err != nil {
		return CashTransaction{}, storeErr("insert cash transaction", err)
	}
	return tx, nil
}

// mirror is the best-effort write used after a committed primary row.
func (c *CashLedger) mirror(ctx context.Context, actor string, e CashEntry) {
	if _, err := c.record(ctx, c.store, actor, e); err != nil {
		c.log.Error().Err(err).
			Str("type", string(e.Type)).
			Str("reference_id", e.ReferenceID).
			Str("amount", e.Amount.String()).
			Msg("cash mirror write failed; primary row kept")
	}
}

// AddManualCash records a manual_add deposit.
func (c *CashLedger) AddManualCash(ctx context.Context, amount decimal.Decimal, description string, date Date) (CashTransaction, error) {
	return c.Record(ctx, CashEntry{
		Type:            CashManualAdd,
		Amount:          amount,
		Description:     description,
		TransactionDate: date,
	})
}

// AddExpense records an expense outflow. referenceID may name the expense row.
func (c *CashLedger) AddExpense(ctx context.Context, amount decimal.Decimal, referenceID, description string, date Date) (CashTransaction, error) {
	entry := CashEntry{
		Type:            CashExpense,
		Amount:          amount,
		ReferenceID:     referenceID,
		Description:     description,
		TransactionDate: date,
	}
	if referenceID != "" {
		entry.ReferenceType = string(CashExpense)
	}
	return c.Record(ctx, entry)
}

// CashInHand recomputes the balance from the full journal.
func (c *CashLedger) CashInHand(ctx context.Context) (decimal.Decimal, error) {
	txs, err := c.store.ListCashTransactions(ctx, CashFilter{})
	if err != nil {
		return decimal.Zero, storeErr("list cash transactions", err)
	}
	return ComputeCashInHand(txs), nil
}

func (c *CashLedger) History(ctx context.Context, filter CashFilter) ([]CashTransaction, error) {
	txs, err := c.store.ListCashTransactions(ctx, filter)
	if err != nil {
		return nil, storeErr("list cash transactions", err)
	}
	return txs, nil
}

// =============================================================================
// MIRRORED WRITES
// =============================================================================

// postMirrored writes a primary row and then its cash mirror. entry returns
// false when the row has no mirror. In atomic mode both writes share one
// store transaction; otherwise the mirror is best effort.
func postMirrored[T any](
	ctx context.Context,
	store Store,
	cash *CashLedger,
	atomic bool,
	actor string,
	primary func(Store) (T, error),
	entry func(T) (CashEntry, bool),
) (T, error) {
	if cash != nil && atomic {
		if ts, ok := store.(TxStore); ok {
			var out T
			err := ts.WithTx(ctx, func(s Store) error {
				saved, err := primary(s)
				if err != nil {
					return err
				}
				if e, ok := entry(saved); ok {
					if _, err := cash.record(ctx, s, actor, e); err != nil {
						return err
					}
				}
				out = saved
				return nil
			})
			return out, err
		}
	}

	saved, err := primary(store)
	if err != nil {
		var zero T
		return zero, err
	}
	if cash != nil {
		if e, ok := entry(saved); ok {
			cash.mirror(ctx, actor, e)
		}
	}
	return saved, nil
}
