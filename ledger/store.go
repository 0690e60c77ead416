/*
store.go - Persistence interface for ledger rows

PURPOSE:
  Defines the boundary between ledger rules and the database. A Store is a
  thin table gateway: insert, update by id, delete by id, and select with
  equality filters. It holds no business rules; balances, statuses and cash
  in hand are derived by the ledgers from what the Store returns.

KEY INTERFACES:
  Store:    every table the ledgers touch
  TxStore:  Store plus all-or-nothing WithTx
  RunStore: reconciliation run history for the background reconciler

ORDERING:
  List methods return rows ordered by their business date, then CreatedAt.
  Cash history therefore reads like a journal.

INVOICE VERSIONS:
  Invoice rows carry a Version. UpdateInvoiceState only succeeds when the
  stored version equals expectedVersion, then bumps it. Two writers that read
  the same invoice cannot both win; the loser gets ErrConcurrentModification
  and re-runs its read-validate-write cycle.

ERRORS:
  Implementations return ErrNotFound for a missing id and ErrDuplicate for a
  uniqueness violation. Anything else is a driver error; the ledgers wrap it
  in *StoreError.

IMPLEMENTATIONS:
  - ledger/store/memory.go: in-memory for tests and dev
  - store/sqlstore: database/sql over SQLite or PostgreSQL

SEE ALSO:
  - cash.go, party.go, invoice.go: the ledgers using Store
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FILTERS
// =============================================================================

// PartyFilter narrows credit and payment listings. Zero values match all.
type PartyFilter struct {
	Kind    PartyKind
	PartyID string
}

type InvoiceFilter struct {
	DealerID string
	Status   InvoiceStatus
}

// CashFilter narrows cash history. From and To are inclusive.
type CashFilter struct {
	Type          CashTransactionType
	ReferenceID   string
	ReferenceType string
	From          Date
	To            Date
}

// Matches reports whether tx passes the filter.
func (f CashFilter) Matches(tx CashTransaction) bool {
	if f.Type != "" && tx.Type != f.Type {
		return false
	}
	if f.ReferenceID != "" && tx.ReferenceID != f.ReferenceID {
		return false
	}
	if f.ReferenceType != "" && tx.ReferenceType != f.ReferenceType {
		return false
	}
	if !f.From.IsZero() && tx.TransactionDate.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && tx.TransactionDate.After(f.To) {
		return false
	}
	return true
}

// =============================================================================
// STORE - Table gateway for every ledger table
// =============================================================================

type PartyStore interface {
	SaveParty(ctx context.Context, p Party) (Party, error)
	GetParty(ctx context.Context, id string) (Party, error)
	ListParties(ctx context.Context, kind PartyKind) ([]Party, error)
}

type CreditStore interface {
	InsertCredit(ctx context.Context, c Credit) (Credit, error)
	GetCredit(ctx context.Context, kind PartyKind, id string) (Credit, error)
	UpdateCredit(ctx context.Context, c Credit) error
	DeleteCredit(ctx context.Context, kind PartyKind, id string) error
	ListCredits(ctx context.Context, filter PartyFilter) ([]Credit, error)

	InsertPayment(ctx context.Context, p Payment) (Payment, error)
	GetPayment(ctx context.Context, kind PartyKind, id string) (Payment, error)
	UpdatePayment(ctx context.Context, p Payment) error
	DeletePayment(ctx context.Context, kind PartyKind, id string) error
	ListPayments(ctx context.Context, filter PartyFilter) ([]Payment, error)
}

type InvoiceStore interface {
	// InsertInvoice writes the invoice and its items atomically.
	InsertInvoice(ctx context.Context, inv Invoice, items []InvoiceItem) (Invoice, []InvoiceItem, error)
	GetInvoice(ctx context.Context, id string) (Invoice, error)
	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error)
	ListInvoiceItems(ctx context.Context, invoiceID string) ([]InvoiceItem, error)

	// UpdateInvoiceState is a compare-and-swap on Version.
	UpdateInvoiceState(ctx context.Context, id string, expectedVersion int64, paid decimal.Decimal, status InvoiceStatus) error

	InsertInvoicePayment(ctx context.Context, p InvoicePayment) (InvoicePayment, error)
	GetInvoicePayment(ctx context.Context, id string) (InvoicePayment, error)
	DeleteInvoicePayment(ctx context.Context, id string) error
	ListInvoicePayments(ctx context.Context, invoiceID string) ([]InvoicePayment, error)
}

// CashStore is append-only: no update, no delete.
type CashStore interface {
	InsertCashTransaction(ctx context.Context, tx CashTransaction) (CashTransaction, error)
	ListCashTransactions(ctx context.Context, filter CashFilter) ([]CashTransaction, error)
}

// Store is the full table gateway.
type Store interface {
	PartyStore
	CreditStore
	InvoiceStore
	CashStore
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// withTx runs fn in a transaction when the store supports one, and directly
// against the store otherwise.
func withTx(ctx context.Context, s Store, fn func(Store) error) error {
	if ts, ok := s.(TxStore); ok {
		return ts.WithTx(ctx, fn)
	}
	return fn(s)
}

// =============================================================================
// RECONCILIATION RUNS
// =============================================================================

type RunStore interface {
	SaveReconciliationRun(ctx context.Context, run ReconciliationRun) (ReconciliationRun, error)
	ListReconciliationRuns(ctx context.Context, limit int) ([]ReconciliationRun, error)
}
