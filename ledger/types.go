/*
Package ledger provides the credit, payment, invoice and cash reconciliation core
of the distribution back office.

PURPOSE:
  Every money-moving action in the back office lands in one of three ledgers:
  the party credit ledger (dealers and suppliers), the invoice payment ledger,
  and the cash transaction ledger. This package owns the rules that keep
  "amount owed", "amount paid" and "cash in hand" consistent as rows are
  created, edited and deleted.

KEY CONCEPTS IN THIS FILE (types.go):
  - Party: a dealer or supplier the company extends or receives credit with
  - Credit / Payment: value extended on credit and the cash that settles it
  - Invoice / InvoiceItem / InvoicePayment: billed sales and their settlement
  - CashTransaction: the append-only journal behind cash in hand

DESIGN PRINCIPLES:
  1. Derived, not stored: balances and cash in hand are recomputed from rows
  2. Precision: all money is decimal.Decimal, never float64 at rest
  3. Primary first: a ledger row is the source of truth, its cash mirror is
     secondary (see cash.go for the failure semantics)

SEE ALSO:
  - store.go: persistence interfaces
  - cash.go: cash in hand
  - party.go: dealer and supplier credit ledgers
  - invoice.go: invoice payments and status derivation
  - reconcile.go: pure aggregation used by reports
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ENUMERATIONS
// =============================================================================

// PartyKind distinguishes the two counterparty ledgers.
type PartyKind string

const (
	PartyDealer   PartyKind = "dealer"
	PartySupplier PartyKind = "supplier"
)

func (k PartyKind) Valid() bool { return k == PartyDealer || k == PartySupplier }

type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodCheque       PaymentMethod = "cheque"
	MethodUPI          PaymentMethod = "upi"
	MethodOther        PaymentMethod = "other"
	MethodCreditCard   PaymentMethod = "credit_card"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodBankTransfer, MethodCheque, MethodUPI, MethodOther, MethodCreditCard:
		return true
	}
	return false
}

type InvoiceStatus string

const (
	StatusUnpaid    InvoiceStatus = "unpaid"
	StatusPartial   InvoiceStatus = "partial"
	StatusPaid      InvoiceStatus = "paid"
	StatusOverdue   InvoiceStatus = "overdue"
	StatusCancelled InvoiceStatus = "cancelled"
)

// InvoiceSource records which part of the back office raised the invoice.
type InvoiceSource string

const (
	SourceManual    InvoiceSource = "manual"
	SourceDealers   InvoiceSource = "dealers"
	SourceSales     InvoiceSource = "sales"
	SourcePurchases InvoiceSource = "purchases"
	SourceExpenses  InvoiceSource = "expenses"
)

func (s InvoiceSource) Valid() bool {
	switch s {
	case SourceManual, SourceDealers, SourceSales, SourcePurchases, SourceExpenses:
		return true
	}
	return false
}

// CashTransactionType classifies a cash journal row. Direction() in cash.go
// decides whether the type adds to or deducts from cash in hand.
type CashTransactionType string

const (
	CashManualAdd       CashTransactionType = "manual_add"
	CashDealerPayment   CashTransactionType = "dealer_payment"
	CashDealerCredit    CashTransactionType = "dealer_credit"
	CashSupplierPayment CashTransactionType = "supplier_payment"
	CashSupplierCredit  CashTransactionType = "supplier_credit"
	CashExpense         CashTransactionType = "expense"
	CashSalesPayment    CashTransactionType = "sales_payment"
)

func (t CashTransactionType) Valid() bool {
	switch t {
	case CashManualAdd, CashDealerPayment, CashDealerCredit, CashSupplierPayment,
		CashSupplierCredit, CashExpense, CashSalesPayment:
		return true
	}
	return false
}

// =============================================================================
// PARTY LEDGER ROWS
// =============================================================================

// Party is a dealer or supplier. Territory and OfficerID feed the rollups.
type Party struct {
	ID        string
	Kind      PartyKind
	Name      string
	Territory string
	OfficerID string
	CreatedAt time.Time
}

// Credit is value extended to a dealer, or received from a supplier, without
// immediate full payment.
type Credit struct {
	ID          string
	Kind        PartyKind
	PartyID     string
	ProductID   string
	Amount      decimal.Decimal
	CreditDate  Date
	Description string
	Notes       string
	CreatedBy   string
	CreatedAt   time.Time
}

// Payment settles outstanding credit with a counterparty.
type Payment struct {
	ID              string
	Kind            PartyKind
	PartyID         string
	Amount          decimal.Decimal
	PaymentDate     Date
	PaymentMethod   PaymentMethod
	ReferenceNumber string
	Notes           string
	CreatedBy       string
	CreatedAt       time.Time
}

// =============================================================================
// INVOICES
// =============================================================================

// Invoice is a bill raised against a dealer.
//
// PaidAmount is a denormalized cache of the payment sum. Readers must go
// through InvoiceLedger.PaidAmount, which takes the larger of the cache and
// the summed InvoicePayment rows. Version increments on every paid/status
// write and guards those writes against lost updates.
type Invoice struct {
	ID            string
	DealerID      string
	InvoiceNumber string
	InvoiceDate   Date
	DueDate       Date
	Status        InvoiceStatus
	Subtotal      decimal.Decimal
	TaxRate       decimal.Decimal
	TaxAmount     decimal.Decimal
	TotalAmount   decimal.Decimal
	PaidAmount    decimal.Decimal
	SalesOrderID  string
	Source        InvoiceSource
	Notes         string
	Version       int64
	CreatedBy     string
	CreatedAt     time.Time
}

type InvoiceItem struct {
	ID          string
	InvoiceID   string
	ProductID   string
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Total       decimal.Decimal
}

type InvoicePayment struct {
	ID              string
	InvoiceID       string
	Amount          decimal.Decimal
	PaymentDate     Date
	PaymentMethod   PaymentMethod
	ReferenceNumber string
	Notes           string
	CreatedBy       string
	CreatedAt       time.Time
}

// =============================================================================
// CASH JOURNAL
// =============================================================================

// CashTransaction is one row of the append-only cash journal.
type CashTransaction struct {
	ID              string
	Type            CashTransactionType
	Amount          decimal.Decimal
	ReferenceID     string
	ReferenceType   string
	Description     string
	TransactionDate Date
	CreatedBy       string
	CreatedAt       time.Time
}

// =============================================================================
// RECONCILIATION RUNS
// =============================================================================

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// ReconciliationRun records one pass of the background reconciler.
type ReconciliationRun struct {
	ID               string
	Status           RunStatus
	InvoicesRepaired int
	CashDrifts       int
	Error            string
	StartedAt        time.Time
	CompletedAt      *time.Time
}

// =============================================================================
// MONEY HELPERS
// =============================================================================

// Sum adds the given amounts.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// ParseAmount parses a decimal string such as "1500.50".
func ParseAmount(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

// MustAmount parses s and panics on malformed input. Intended for tests and
// literals.
func MustAmount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
