/*
party.go - Dealer and supplier credit ledgers

PURPOSE:
  Tracks value extended on credit to dealers, or received on credit from
  suppliers, and the payments that settle it. Both ledgers share this one
  implementation; they differ only in the kind tag on their rows, the cash
  types they mirror to, and whether payments are checked against the
  outstanding balance.

CASH MAPPING:
  kind      credit            payment
  dealer    dealer_credit     dealer_payment
  supplier  supplier_credit   supplier_payment

  supplier_credit is only posted when Options.EmitSupplierCreditCash is set.

EDITS AND DELETES:
  Field overwrite, last write wins. The cash journal is NOT adjusted, so an
  edit or delete after posting leaves drift that DetectCashDrift reports.

OVERPAYMENT:
  Dealer payments larger than the remaining balance are rejected with an
  OverpaymentError unless Options.AllowOverpayment is set. The check and the
  insert run in one store transaction when atomic mirroring is on; otherwise
  two concurrent payments can both pass the check.

SEE ALSO:
  - reconcile.go: SummarizeParty, SummarizeMarket, Rollup
  - importer.go: bulk payment import through AddPayment
*/
package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type PartyLedger struct {
	kind  PartyKind
	store Store
	cash  *CashLedger
	opts  Options
	log   zerolog.Logger
}

// NewDealerLedger builds the dealer ledger. cash may be nil to disable
// mirroring.
func NewDealerLedger(store Store, cash *CashLedger, opts Options) *PartyLedger {
	return newPartyLedger(PartyDealer, store, cash, opts)
}

func NewSupplierLedger(store Store, cash *CashLedger, opts Options) *PartyLedger {
	return newPartyLedger(PartySupplier, store, cash, opts)
}

func newPartyLedger(kind PartyKind, store Store, cash *CashLedger, opts Options) *PartyLedger {
	return &PartyLedger{
		kind:  kind,
		store: store,
		cash:  cash,
		opts:  opts,
		log:   opts.component(string(kind) + "_ledger"),
	}
}

func (l *PartyLedger) Kind() PartyKind { return l.kind }

func creditCashType(kind PartyKind) CashTransactionType {
	if kind == PartySupplier {
		return CashSupplierCredit
	}
	return CashDealerCredit
}

func paymentCashType(kind PartyKind) CashTransactionType {
	if kind == PartySupplier {
		return CashSupplierPayment
	}
	return CashDealerPayment
}

// =============================================================================
// PARTIES
// =============================================================================

// RegisterParty creates or updates a party of this ledger's kind.
func (l *PartyLedger) RegisterParty(ctx context.Context, p Party) (Party, error) {
	if _, err := requireActor(ctx, "register party"); err != nil {
		return Party{}, err
	}
	p.Kind = l.kind
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return Party{}, invalid("name", "is required")
	}
	if p.ID != "" {
		existing, err := l.store.GetParty(ctx, p.ID)
		if err == nil && existing.Kind != l.kind {
			return Party{}, fmt.Errorf("party %q is a %s: %w", p.ID, existing.Kind, ErrDuplicate)
		}
		if err != nil && !IsNotFound(err) {
			return Party{}, storeErr("get party", err)
		}
	}
	saved, err := l.store.SaveParty(ctx, p)
	if err != nil {
		return Party{}, storeErr("save party", err)
	}
	return saved, nil
}

func (l *PartyLedger) GetParty(ctx context.Context, id string) (Party, error) {
	p, err := l.store.GetParty(ctx, id)
	if err != nil {
		return Party{}, storeErr("get party", err)
	}
	if p.Kind != l.kind {
		return Party{}, storeErr("get party", ErrNotFound)
	}
	return p, nil
}

func (l *PartyLedger) ListParties(ctx context.Context) ([]Party, error) {
	ps, err := l.store.ListParties(ctx, l.kind)
	if err != nil {
		return nil, storeErr("list parties", err)
	}
	return ps, nil
}

// requireParty checks that id names a registered party of the given kind.
func requireParty(ctx context.Context, s Store, kind PartyKind, field, id string) error {
	if id == "" {
		return invalid(field, "is required")
	}
	p, err := s.GetParty(ctx, id)
	if IsNotFound(err) || (err == nil && p.Kind != kind) {
		return invalid(field, "unknown %s %q", kind, id)
	}
	return storeErr("get party", err)
}

// =============================================================================
// CREDITS
// =============================================================================

type CreditInput struct {
	PartyID     string
	ProductID   string
	Amount      decimal.Decimal
	CreditDate  Date
	Description string
	Notes       string
}

// AddCredit records a credit and mirrors it to cash.
func (l *PartyLedger) AddCredit(ctx context.Context, in CreditInput) (Credit, error) {
	actor, err := requireActor(ctx, "add credit")
	if err != nil {
		return Credit{}, err
	}
	if !in.Amount.IsPositive() {
		return Credit{}, invalid("amount", "must be greater than zero")
	}
	if in.CreditDate.IsZero() {
		in.CreditDate = l.opts.today()
	}

	row := Credit{
		Kind:        l.kind,
		PartyID:     in.PartyID,
		ProductID:   in.ProductID,
		Amount:      in.Amount,
		CreditDate:  in.CreditDate,
		Description: in.Description,
		Notes:       in.Notes,
		CreatedBy:   actor,
	}

	saved, err := postMirrored(ctx, l.store, l.cash, l.opts.AtomicCashMirror, actor,
		func(s Store) (Credit, error) {
			if err := requireParty(ctx, s, l.kind, "party_id", row.PartyID); err != nil {
				return Credit{}, err
			}
			c, err := s.InsertCredit(ctx, row)
			return c, storeErr("insert credit", err)
		},
		func(c Credit) (CashEntry, bool) {
			if l.kind == PartySupplier && !l.opts.EmitSupplierCreditCash {
				return CashEntry{}, false
			}
			t := creditCashType(l.kind)
			return CashEntry{
				Type:            t,
				Amount:          c.Amount,
				ReferenceID:     c.ID,
				ReferenceType:   string(t),
				Description:     c.Description,
				TransactionDate: c.CreditDate,
			}, true
		})
	if err != nil {
		return Credit{}, err
	}

	l.log.Info().Str("credit_id", saved.ID).Str("party_id", saved.PartyID).
		Str("amount", saved.Amount.String()).Msg("credit recorded")
	return saved, nil
}

// CreditPatch overwrites the non-nil fields.
type CreditPatch struct {
	ProductID   *string
	Amount      *decimal.Decimal
	CreditDate  *Date
	Description *string
	Notes       *string
}

// EditCredit overwrites fields of an existing credit. Cash is not adjusted.
func (l *PartyLedger) EditCredit(ctx context.Context, id string, patch CreditPatch) (Credit, error) {
	if _, err := requireActor(ctx, "edit credit"); err != nil {
		return Credit{}, err
	}
	c, err := l.store.GetCredit(ctx, l.kind, id)
	if err != nil {
		return Credit{}, storeErr("get credit", err)
	}

	if patch.Amount != nil {
		if !patch.Amount.IsPositive() {
			return Credit{}, invalid("amount", "must be greater than zero")
		}
		c.Amount = *patch.Amount
	}
	if patch.CreditDate != nil && !patch.CreditDate.IsZero() {
		c.CreditDate = *patch.CreditDate
	}
	if patch.ProductID != nil {
		c.ProductID = *patch.ProductID
	}
	if patch.Description != nil {
		c.Description = *patch.Description
	}
	if patch.Notes != nil {
		c.Notes = *patch.Notes
	}

	if err := l.store.UpdateCredit(ctx, c); err != nil {
		return Credit{}, storeErr("update credit", err)
	}
	return c, nil
}

// DeleteCredit removes the credit row. Its cash mirror stays in the journal.
func (l *PartyLedger) DeleteCredit(ctx context.Context, id string) error {
	if _, err := requireActor(ctx, "delete credit"); err != nil {
		return err
	}
	return storeErr("delete credit", l.store.DeleteCredit(ctx, l.kind, id))
}

// Credits lists a party's credits chronologically. An empty partyID lists
// every credit of this kind.
func (l *PartyLedger) Credits(ctx context.Context, partyID string) ([]Credit, error) {
	cs, err := l.store.ListCredits(ctx, PartyFilter{Kind: l.kind, PartyID: partyID})
	if err != nil {
		return nil, storeErr("list credits", err)
	}
	return cs, nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

type PaymentInput struct {
	PartyID         string
	Amount          decimal.Decimal
	PaymentDate     Date
	PaymentMethod   PaymentMethod
	ReferenceNumber string
	Notes           string
}

// AddPayment records a payment and mirrors it to cash.
func (l *PartyLedger) AddPayment(ctx context.Context, in PaymentInput) (Payment, error) {
	actor, err := requireActor(ctx, "add payment")
	if err != nil {
		return Payment{}, err
	}
	if !in.Amount.IsPositive() {
		return Payment{}, invalid("amount", "must be greater than zero")
	}
	if in.PaymentMethod == "" {
		in.PaymentMethod = MethodCash
	}
	if !in.PaymentMethod.Valid() {
		return Payment{}, invalid("payment_method", "unknown payment method %q", in.PaymentMethod)
	}
	if in.PaymentDate.IsZero() {
		in.PaymentDate = l.opts.today()
	}

	row := Payment{
		Kind:            l.kind,
		PartyID:         in.PartyID,
		Amount:          in.Amount,
		PaymentDate:     in.PaymentDate,
		PaymentMethod:   in.PaymentMethod,
		ReferenceNumber: in.ReferenceNumber,
		Notes:           in.Notes,
		CreatedBy:       actor,
	}

	saved, err := postMirrored(ctx, l.store, l.cash, l.opts.AtomicCashMirror, actor,
		func(s Store) (Payment, error) {
			if err := requireParty(ctx, s, l.kind, "party_id", row.PartyID); err != nil {
				return Payment{}, err
			}
			if l.kind == PartyDealer && !l.opts.AllowOverpayment {
				summary, err := l.summarize(ctx, s, row.PartyID)
				if err != nil {
					return Payment{}, err
				}
				if row.Amount.GreaterThan(summary.Remaining) {
					return Payment{}, &OverpaymentError{Requested: row.Amount, Remaining: summary.Remaining}
				}
			}
			p, err := s.InsertPayment(ctx, row)
			return p, storeErr("insert payment", err)
		},
		func(p Payment) (CashEntry, bool) {
			t := paymentCashType(l.kind)
			return CashEntry{
				Type:            t,
				Amount:          p.Amount,
				ReferenceID:     p.ID,
				ReferenceType:   string(t),
				Description:     p.Notes,
				TransactionDate: p.PaymentDate,
			}, true
		})
	if err != nil {
		return Payment{}, err
	}

	l.log.Info().Str("payment_id", saved.ID).Str("party_id", saved.PartyID).
		Str("amount", saved.Amount.String()).Msg("payment recorded")
	return saved, nil
}

type PaymentPatch struct {
	Amount          *decimal.Decimal
	PaymentDate     *Date
	PaymentMethod   *PaymentMethod
	ReferenceNumber *string
	Notes           *string
}

// EditPayment overwrites fields of an existing payment. Cash is not adjusted
// and the overpayment check is not re-run.
func (l *PartyLedger) EditPayment(ctx context.Context, id string, patch PaymentPatch) (Payment, error) {
	if _, err := requireActor(ctx, "edit payment"); err != nil {
		return Payment{}, err
	}
	p, err := l.store.GetPayment(ctx, l.kind, id)
	if err != nil {
		return Payment{}, storeErr("get payment", err)
	}

	if patch.Amount != nil {
		if !patch.Amount.IsPositive() {
			return Payment{}, invalid("amount", "must be greater than zero")
		}
		p.Amount = *patch.Amount
	}
	if patch.PaymentMethod != nil {
		if !patch.PaymentMethod.Valid() {
			return Payment{}, invalid("payment_method", "unknown payment method %q", *patch.PaymentMethod)
		}
		p.PaymentMethod = *patch.PaymentMethod
	}
	if patch.PaymentDate != nil && !patch.PaymentDate.IsZero() {
		p.PaymentDate = *patch.PaymentDate
	}
	if patch.ReferenceNumber != nil {
		p.ReferenceNumber = *patch.ReferenceNumber
	}
	if patch.Notes != nil {
		p.Notes = *patch.Notes
	}

	if err := l.store.UpdatePayment(ctx, p); err != nil {
		return Payment{}, storeErr("update payment", err)
	}
	return p, nil
}

// DeletePayment removes the payment row. Its cash mirror stays.
func (l *PartyLedger) DeletePayment(ctx context.Context, id string) error {
	if _, err := requireActor(ctx, "delete payment"); err != nil {
		return err
	}
	return storeErr("delete payment", l.store.DeletePayment(ctx, l.kind, id))
}

func (l *PartyLedger) Payments(ctx context.Context, partyID string) ([]Payment, error) {
	ps, err := l.store.ListPayments(ctx, PartyFilter{Kind: l.kind, PartyID: partyID})
	if err != nil {
		return nil, storeErr("list payments", err)
	}
	return ps, nil
}

// =============================================================================
// SUMMARIES
// =============================================================================

// Summary returns the party's totals and remaining balance.
func (l *PartyLedger) Summary(ctx context.Context, partyID string) (PartySummary, error) {
	return l.summarize(ctx, l.store, partyID)
}

func (l *PartyLedger) summarize(ctx context.Context, s Store, partyID string) (PartySummary, error) {
	filter := PartyFilter{Kind: l.kind, PartyID: partyID}
	credits, err := s.ListCredits(ctx, filter)
	if err != nil {
		return PartySummary{}, storeErr("list credits", err)
	}
	payments, err := s.ListPayments(ctx, filter)
	if err != nil {
		return PartySummary{}, storeErr("list payments", err)
	}
	return SummarizeParty(partyID, credits, payments), nil
}

// Summaries returns one summary per party with rows, ordered by party id.
func (l *PartyLedger) Summaries(ctx context.Context) ([]PartySummary, error) {
	credits, err := l.Credits(ctx, "")
	if err != nil {
		return nil, err
	}
	payments, err := l.Payments(ctx, "")
	if err != nil {
		return nil, err
	}
	return SummarizeParties(credits, payments), nil
}

// MarketSummary totals every active party of this kind.
func (l *PartyLedger) MarketSummary(ctx context.Context) (MarketSummary, error) {
	summaries, err := l.Summaries(ctx)
	if err != nil {
		return MarketSummary{}, err
	}
	return SummarizeMarket(summaries), nil
}

// Rollup groups party totals by territory or recovery officer.
func (l *PartyLedger) Rollup(ctx context.Context, key GroupKey) ([]GroupTotal, error) {
	if !key.Valid() {
		return nil, invalid("by", "unknown grouping %q", key)
	}
	summaries, err := l.Summaries(ctx)
	if err != nil {
		return nil, err
	}
	parties, err := l.ListParties(ctx)
	if err != nil {
		return nil, err
	}
	return Rollup(summaries, parties, key), nil
}
