/*
invoice.go - Invoice payments and status derivation

PURPOSE:
  Records payments against invoices and keeps the invoice's cached paid
  amount and stored status in step with them.

PAID AMOUNT:
  The invoice row caches PaidAmount for list views. The payment rows are
  authoritative, so every reader goes through effectivePaid:

    paid = max(cached, Σ payment.amount)

  ReconcilePaidCache rewrites caches that drifted from the payment sum.

STATUS:
  Stored status is derived from paid vs total on every payment write:
    paid ≥ total      -> paid
    0 < paid < total  -> partial
    otherwise         -> unpaid
  "overdue" is display-only (DisplayStatus) and never stored. "cancelled" is
  terminal; payments against a cancelled invoice are rejected.

CONCURRENCY:
  Each payment write is a read-validate-write cycle guarded by the invoice
  Version. If another writer moved the version first, the cycle re-runs from
  a fresh read, up to maxCASAttempts times. Two concurrent payments that
  together exceed the total can therefore never both succeed.

SEE ALSO:
  - store.go: UpdateInvoiceState compare-and-swap
  - cash.go: sales_payment mirror
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const maxCASAttempts = 5

// =============================================================================
// STATUS DERIVATION (pure)
// =============================================================================

// DeriveStatus maps paid vs total to the stored status.
func DeriveStatus(paid, total decimal.Decimal) InvoiceStatus {
	switch {
	case paid.GreaterThanOrEqual(total):
		return StatusPaid
	case paid.IsPositive():
		return StatusPartial
	default:
		return StatusUnpaid
	}
}

// DisplayStatus is the status shown to users on the given day. An unpaid
// invoice past its due date shows as overdue; a partial one stays partial.
func DisplayStatus(inv Invoice, paid decimal.Decimal, today Date) InvoiceStatus {
	if inv.Status == StatusCancelled {
		return StatusCancelled
	}
	status := DeriveStatus(paid, inv.TotalAmount)
	if status == StatusUnpaid && !inv.DueDate.IsZero() && inv.DueDate.Before(today) {
		return StatusOverdue
	}
	return status
}

// ComputeTotals returns subtotal, tax and total for the given lines. Tax is
// subtotal × taxRate / 100 rounded to 2 places.
func ComputeTotals(items []InvoiceItemInput, taxRate decimal.Decimal) (subtotal, tax, total decimal.Decimal) {
	subtotal = decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.Quantity.Mul(it.UnitPrice))
	}
	tax = subtotal.Mul(taxRate).Div(hundred).Round(2)
	return subtotal, tax, subtotal.Add(tax)
}

// effectivePaid is max(cached, Σ payments).
func effectivePaid(cached decimal.Decimal, payments []InvoicePayment) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range payments {
		sum = sum.Add(p.Amount)
	}
	return decimal.Max(cached, sum)
}

// =============================================================================
// INVOICE LEDGER
// =============================================================================

type InvoiceLedger struct {
	store Store
	cash  *CashLedger
	opts  Options
	log   zerolog.Logger
}

// NewInvoiceLedger builds the invoice ledger. cash may be nil, in which case
// sales payments are not mirrored.
func NewInvoiceLedger(store Store, cash *CashLedger, opts Options) *InvoiceLedger {
	return &InvoiceLedger{store: store, cash: cash, opts: opts, log: opts.component("invoice_ledger")}
}

type InvoiceItemInput struct {
	ProductID   string
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
}

type InvoiceInput struct {
	DealerID      string
	InvoiceNumber string
	InvoiceDate   Date
	DueDate       Date
	TaxRate       decimal.Decimal
	SalesOrderID  string
	Source        InvoiceSource
	Notes         string
	Items         []InvoiceItemInput
}

// CreateInvoice validates the lines, computes totals and writes the invoice
// with its items in one transaction.
func (l *InvoiceLedger) CreateInvoice(ctx context.Context, in InvoiceInput) (Invoice, []InvoiceItem, error) {
	actor, err := requireActor(ctx, "create invoice")
	if err != nil {
		return Invoice{}, nil, err
	}

	in.InvoiceNumber = strings.TrimSpace(in.InvoiceNumber)
	if in.InvoiceNumber == "" {
		return Invoice{}, nil, invalid("invoice_number", "is required")
	}
	if len(in.Items) == 0 {
		return Invoice{}, nil, invalid("items", "at least one item is required")
	}
	for i, it := range in.Items {
		field := fmt.Sprintf("items[%d]", i)
		if it.ProductID == "" {
			return Invoice{}, nil, invalid(field+".product_id", "is required")
		}
		if !it.Quantity.IsPositive() {
			return Invoice{}, nil, invalid(field+".quantity", "must be greater than zero")
		}
		if it.UnitPrice.IsNegative() {
			return Invoice{}, nil, invalid(field+".unit_price", "must not be negative")
		}
	}
	if in.TaxRate.IsNegative() {
		return Invoice{}, nil, invalid("tax_rate", "must not be negative")
	}
	if in.Source == "" {
		in.Source = SourceManual
	}
	if !in.Source.Valid() {
		return Invoice{}, nil, invalid("source", "unknown invoice source %q", in.Source)
	}
	if in.InvoiceDate.IsZero() {
		in.InvoiceDate = l.opts.today()
	}
	if in.DueDate.IsZero() {
		return Invoice{}, nil, invalid("due_date", "is required")
	}
	if in.DueDate.Before(in.InvoiceDate) {
		return Invoice{}, nil, invalid("due_date", "must not be before the invoice date")
	}

	subtotal, tax, total := ComputeTotals(in.Items, in.TaxRate)
	inv := Invoice{
		DealerID:      in.DealerID,
		InvoiceNumber: in.InvoiceNumber,
		InvoiceDate:   in.InvoiceDate,
		DueDate:       in.DueDate,
		Status:        StatusUnpaid,
		Subtotal:      subtotal,
		TaxRate:       in.TaxRate,
		TaxAmount:     tax,
		TotalAmount:   total,
		PaidAmount:    decimal.Zero,
		SalesOrderID:  in.SalesOrderID,
		Source:        in.Source,
		Notes:         in.Notes,
		CreatedBy:     actor,
	}
	items := make([]InvoiceItem, len(in.Items))
	for i, it := range in.Items {
		items[i] = InvoiceItem{
			ProductID:   it.ProductID,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Total:       it.Quantity.Mul(it.UnitPrice),
		}
	}

	var (
		savedInv   Invoice
		savedItems []InvoiceItem
	)
	err = withTx(ctx, l.store, func(s Store) error {
		if err := requireParty(ctx, s, PartyDealer, "dealer_id", inv.DealerID); err != nil {
			return err
		}
		var err error
		savedInv, savedItems, err = s.InsertInvoice(ctx, inv, items)
		if errors.Is(err, ErrDuplicate) {
			return fmt.Errorf("invoice number %q: %w", inv.InvoiceNumber, ErrDuplicate)
		}
		return storeErr("insert invoice", err)
	})
	if err != nil {
		return Invoice{}, nil, err
	}

	l.log.Info().Str("invoice_id", savedInv.ID).Str("invoice_number", savedInv.InvoiceNumber).
		Str("total", savedInv.TotalAmount.String()).Msg("invoice created")
	return savedInv, savedItems, nil
}

func (l *InvoiceLedger) Invoice(ctx context.Context, id string) (Invoice, error) {
	inv, err := l.store.GetInvoice(ctx, id)
	if err != nil {
		return Invoice{}, storeErr("get invoice", err)
	}
	return inv, nil
}

func (l *InvoiceLedger) Invoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error) {
	invs, err := l.store.ListInvoices(ctx, filter)
	if err != nil {
		return nil, storeErr("list invoices", err)
	}
	return invs, nil
}

func (l *InvoiceLedger) Payments(ctx context.Context, invoiceID string) ([]InvoicePayment, error) {
	ps, err := l.store.ListInvoicePayments(ctx, invoiceID)
	if err != nil {
		return nil, storeErr("list invoice payments", err)
	}
	return ps, nil
}

// PaidAmount returns max(cached, Σ payments) for the invoice.
func (l *InvoiceLedger) PaidAmount(ctx context.Context, invoiceID string) (decimal.Decimal, error) {
	inv, err := l.Invoice(ctx, invoiceID)
	if err != nil {
		return decimal.Zero, err
	}
	return paidAmount(ctx, l.store, inv)
}

func paidAmount(ctx context.Context, s Store, inv Invoice) (decimal.Decimal, error) {
	payments, err := s.ListInvoicePayments(ctx, inv.ID)
	if err != nil {
		return decimal.Zero, storeErr("list invoice payments", err)
	}
	return effectivePaid(inv.PaidAmount, payments), nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

type InvoicePaymentInput struct {
	InvoiceID       string
	Amount          decimal.Decimal
	PaymentDate     Date
	PaymentMethod   PaymentMethod
	ReferenceNumber string
	Notes           string
}

// AddPayment records a payment against an invoice, updates the cached paid
// amount and status, and mirrors sales invoices to cash.
func (l *InvoiceLedger) AddPayment(ctx context.Context, in InvoicePaymentInput) (InvoicePayment, error) {
	actor, err := requireActor(ctx, "add invoice payment")
	if err != nil {
		return InvoicePayment{}, err
	}
	if !in.Amount.IsPositive() {
		return InvoicePayment{}, invalid("amount", "must be greater than zero")
	}
	if in.PaymentMethod == "" {
		in.PaymentMethod = MethodCash
	}
	if !in.PaymentMethod.Valid() {
		return InvoicePayment{}, invalid("payment_method", "unknown payment method %q", in.PaymentMethod)
	}
	if in.PaymentDate.IsZero() {
		in.PaymentDate = l.opts.today()
	}

	atomic := l.cash != nil && l.opts.AtomicCashMirror
	var (
		saved InvoicePayment
		inv   Invoice
	)
	err = l.casRetry(ctx, "add invoice payment", func(s Store) error {
		var err error
		inv, err = s.GetInvoice(ctx, in.InvoiceID)
		if err != nil {
			return storeErr("get invoice", err)
		}
		if inv.Status == StatusCancelled {
			return &InvalidStateError{InvoiceID: inv.ID, Status: inv.Status, Op: "add payment"}
		}

		paid, err := paidAmount(ctx, s, inv)
		if err != nil {
			return err
		}
		remaining := inv.TotalAmount.Sub(paid)
		if !l.opts.AllowOverpayment && in.Amount.GreaterThan(remaining) {
			return &OverpaymentError{Requested: in.Amount, Remaining: remaining}
		}

		// Version check first: without a transaction a lost race must not
		// leave a stray payment row behind.
		newPaid := paid.Add(in.Amount)
		if err := s.UpdateInvoiceState(ctx, inv.ID, inv.Version, newPaid, DeriveStatus(newPaid, inv.TotalAmount)); err != nil {
			return casErr("update invoice", err)
		}
		saved, err = s.InsertInvoicePayment(ctx, InvoicePayment{
			InvoiceID:       inv.ID,
			Amount:          in.Amount,
			PaymentDate:     in.PaymentDate,
			PaymentMethod:   in.PaymentMethod,
			ReferenceNumber: in.ReferenceNumber,
			Notes:           in.Notes,
			CreatedBy:       actor,
		})
		if err != nil {
			return storeErr("insert invoice payment", err)
		}

		if atomic && inv.Source == SourceSales {
			if _, err := l.cash.record(ctx, s, actor, salesEntry(inv, saved)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return InvoicePayment{}, err
	}

	if !atomic && l.cash != nil && inv.Source == SourceSales {
		l.cash.mirror(ctx, actor, salesEntry(inv, saved))
	}

	l.log.Info().Str("invoice_id", inv.ID).Str("payment_id", saved.ID).
		Str("amount", saved.Amount.String()).Msg("invoice payment recorded")
	return saved, nil
}

func salesEntry(inv Invoice, p InvoicePayment) CashEntry {
	return CashEntry{
		Type:            CashSalesPayment,
		Amount:          p.Amount,
		ReferenceID:     p.ID,
		ReferenceType:   "invoice_payment",
		Description:     "Payment for invoice " + inv.InvoiceNumber,
		TransactionDate: p.PaymentDate,
	}
}

// DeletePayment removes a payment and lowers the cached paid amount, never
// below zero. The sales cash mirror, if any, is left in place.
func (l *InvoiceLedger) DeletePayment(ctx context.Context, invoiceID, paymentID string) error {
	if _, err := requireActor(ctx, "delete invoice payment"); err != nil {
		return err
	}

	return l.casRetry(ctx, "delete invoice payment", func(s Store) error {
		inv, err := s.GetInvoice(ctx, invoiceID)
		if err != nil {
			return storeErr("get invoice", err)
		}
		if inv.Status == StatusCancelled {
			return &InvalidStateError{InvoiceID: inv.ID, Status: inv.Status, Op: "delete payment"}
		}
		p, err := s.GetInvoicePayment(ctx, paymentID)
		if err != nil {
			return storeErr("get invoice payment", err)
		}
		if p.InvoiceID != inv.ID {
			return storeErr("get invoice payment", ErrNotFound)
		}

		paid, err := paidAmount(ctx, s, inv)
		if err != nil {
			return err
		}
		newPaid := paid.Sub(p.Amount)
		if newPaid.IsNegative() {
			newPaid = decimal.Zero
		}
		if err := s.UpdateInvoiceState(ctx, inv.ID, inv.Version, newPaid, DeriveStatus(newPaid, inv.TotalAmount)); err != nil {
			return casErr("update invoice", err)
		}
		return storeErr("delete invoice payment", s.DeleteInvoicePayment(ctx, p.ID))
	})
}

// Cancel moves the invoice to the terminal cancelled status.
func (l *InvoiceLedger) Cancel(ctx context.Context, invoiceID string) (Invoice, error) {
	if _, err := requireActor(ctx, "cancel invoice"); err != nil {
		return Invoice{}, err
	}
	var inv Invoice
	err := l.casRetry(ctx, "cancel invoice", func(s Store) error {
		var err error
		inv, err = s.GetInvoice(ctx, invoiceID)
		if err != nil {
			return storeErr("get invoice", err)
		}
		if inv.Status == StatusCancelled {
			return &InvalidStateError{InvoiceID: inv.ID, Status: inv.Status, Op: "cancel"}
		}
		if err := s.UpdateInvoiceState(ctx, inv.ID, inv.Version, inv.PaidAmount, StatusCancelled); err != nil {
			return casErr("update invoice", err)
		}
		inv.Status = StatusCancelled
		inv.Version++
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	l.log.Info().Str("invoice_id", inv.ID).Msg("invoice cancelled")
	return inv, nil
}

// casRetry runs fn in a transaction, re-running it from scratch while the
// invoice version keeps moving.
func (l *InvoiceLedger) casRetry(ctx context.Context, op string, fn func(Store) error) error {
	for attempt := 1; attempt <= maxCASAttempts; attempt++ {
		err := withTx(ctx, l.store, fn)
		if !errors.Is(err, ErrConcurrentModification) {
			return err
		}
		l.log.Debug().Str("op", op).Int("attempt", attempt).Msg("invoice version moved, retrying")
	}
	return fmt.Errorf("%s: gave up after %d attempts: %w", op, maxCASAttempts, ErrConcurrentModification)
}

// casErr keeps version conflicts unwrapped so casRetry can see them.
func casErr(op string, err error) error {
	if err == nil || errors.Is(err, ErrConcurrentModification) {
		return err
	}
	return storeErr(op, err)
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

// InvoiceSnapshot is everything needed to render an invoice document.
type InvoiceSnapshot struct {
	Invoice       Invoice
	Items         []InvoiceItem
	Payments      []InvoicePayment
	PaidAmount    decimal.Decimal
	Remaining     decimal.Decimal
	DisplayStatus InvoiceStatus
}

func (l *InvoiceLedger) Snapshot(ctx context.Context, invoiceID string) (InvoiceSnapshot, error) {
	inv, err := l.Invoice(ctx, invoiceID)
	if err != nil {
		return InvoiceSnapshot{}, err
	}
	items, err := l.store.ListInvoiceItems(ctx, inv.ID)
	if err != nil {
		return InvoiceSnapshot{}, storeErr("list invoice items", err)
	}
	payments, err := l.Payments(ctx, inv.ID)
	if err != nil {
		return InvoiceSnapshot{}, err
	}

	paid := effectivePaid(inv.PaidAmount, payments)
	return InvoiceSnapshot{
		Invoice:       inv,
		Items:         items,
		Payments:      payments,
		PaidAmount:    paid,
		Remaining:     inv.TotalAmount.Sub(paid),
		DisplayStatus: DisplayStatus(inv, paid, l.opts.today()),
	}, nil
}

// StatusCounts counts invoices by display status as of today.
func (l *InvoiceLedger) StatusCounts(ctx context.Context) (map[InvoiceStatus]int, error) {
	invs, err := l.Invoices(ctx, InvoiceFilter{})
	if err != nil {
		return nil, err
	}
	today := l.opts.today()
	counts := make(map[InvoiceStatus]int)
	for _, inv := range invs {
		paid, err := paidAmount(ctx, l.store, inv)
		if err != nil {
			return nil, err
		}
		counts[DisplayStatus(inv, paid, today)]++
	}
	return counts, nil
}

// =============================================================================
// CACHE REPAIR
// =============================================================================

// InvoiceRepair describes one rewritten invoice cache.
type InvoiceRepair struct {
	InvoiceID    string
	CachedBefore decimal.Decimal
	PaidAfter    decimal.Decimal
	StatusBefore InvoiceStatus
	StatusAfter  InvoiceStatus
}

// ReconcilePaidCache rewrites every non-cancelled invoice whose cached paid
// amount or stored status disagrees with its payment rows. Invoices whose
// version moves mid-repair are skipped; the next run picks them up.
func (l *InvoiceLedger) ReconcilePaidCache(ctx context.Context) ([]InvoiceRepair, error) {
	invs, err := l.Invoices(ctx, InvoiceFilter{})
	if err != nil {
		return nil, err
	}

	var repairs []InvoiceRepair
	for _, inv := range invs {
		if inv.Status == StatusCancelled {
			continue
		}
		payments, err := l.Payments(ctx, inv.ID)
		if err != nil {
			return repairs, err
		}
		sum := Sum(paymentAmounts(payments)...)
		status := DeriveStatus(sum, inv.TotalAmount)
		if inv.PaidAmount.Equal(sum) && inv.Status == status {
			continue
		}

		err = l.store.UpdateInvoiceState(ctx, inv.ID, inv.Version, sum, status)
		if errors.Is(err, ErrConcurrentModification) {
			l.log.Warn().Str("invoice_id", inv.ID).Msg("invoice changed during repair, skipped")
			continue
		}
		if err != nil {
			return repairs, storeErr("update invoice", err)
		}
		repairs = append(repairs, InvoiceRepair{
			InvoiceID:    inv.ID,
			CachedBefore: inv.PaidAmount,
			PaidAfter:    sum,
			StatusBefore: inv.Status,
			StatusAfter:  status,
		})
		l.log.Info().Str("invoice_id", inv.ID).Str("cached", inv.PaidAmount.String()).
			Str("paid", sum.String()).Msg("invoice paid cache repaired")
	}
	return repairs, nil
}

func paymentAmounts(ps []InvoicePayment) []decimal.Decimal {
	out := make([]decimal.Decimal, len(ps))
	for i, p := range ps {
		out[i] = p.Amount
	}
	return out
}
