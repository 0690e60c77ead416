// Package store provides an in-memory ledger.Store.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ShahFaisal5714/agro-crm-nexus/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements ledger.TxStore and ledger.RunStore. Inside WithTx the
// callback receives a view sharing the same state; the view skips locking
// because WithTx already holds the write lock.
type Memory struct {
	mu   *sync.RWMutex
	st   *memState
	inTx bool
}

type memState struct {
	parties     map[string]ledger.Party
	credits     map[string]ledger.Credit
	payments    map[string]ledger.Payment
	invoices    map[string]ledger.Invoice
	items       map[string][]ledger.InvoiceItem
	invPayments map[string]ledger.InvoicePayment
	cash        []ledger.CashTransaction
	runs        []ledger.ReconciliationRun
	order       map[string]int64
	seq         int64
}

func NewMemory() *Memory {
	return &Memory{mu: &sync.RWMutex{}, st: newMemState()}
}

func newMemState() *memState {
	return &memState{
		parties:     make(map[string]ledger.Party),
		credits:     make(map[string]ledger.Credit),
		payments:    make(map[string]ledger.Payment),
		invoices:    make(map[string]ledger.Invoice),
		items:       make(map[string][]ledger.InvoiceItem),
		invPayments: make(map[string]ledger.InvoicePayment),
		order:       make(map[string]int64),
	}
}

func (m *Memory) lock() func() {
	if m.inTx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *Memory) rlock() func() {
	if m.inTx {
		return func() {}
	}
	m.mu.RLock()
	return m.mu.RUnlock
}

// stamp assigns an id when missing and records insertion order.
func (st *memState) stamp(id string) string {
	if id == "" {
		id = uuid.NewString()
	}
	st.seq++
	st.order[id] = st.seq
	return id
}

// before orders rows by business date, then creation time, then insertion.
func (st *memState) before(d1 ledger.Date, c1 time.Time, id1 string, d2 ledger.Date, c2 time.Time, id2 string) bool {
	if !d1.Equal(d2) {
		return d1.Before(d2)
	}
	if !c1.Equal(c2) {
		return c1.Before(c2)
	}
	return st.order[id1] < st.order[id2]
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction, simulated with a snapshot and
// restore on error.
func (m *Memory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	if m.inTx {
		return fn(m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	view := &Memory{mu: m.mu, st: m.st, inTx: true}
	if err := fn(view); err != nil {
		*m.st = *snapshot
		return err
	}
	return nil
}

func (st *memState) clone() *memState {
	c := newMemState()
	for k, v := range st.parties {
		c.parties[k] = v
	}
	for k, v := range st.credits {
		c.credits[k] = v
	}
	for k, v := range st.payments {
		c.payments[k] = v
	}
	for k, v := range st.invoices {
		c.invoices[k] = v
	}
	for k, v := range st.items {
		c.items[k] = append([]ledger.InvoiceItem{}, v...)
	}
	for k, v := range st.invPayments {
		c.invPayments[k] = v
	}
	for k, v := range st.order {
		c.order[k] = v
	}
	c.cash = append([]ledger.CashTransaction{}, st.cash...)
	c.runs = append([]ledger.ReconciliationRun{}, st.runs...)
	c.seq = st.seq
	return c
}

// =============================================================================
// PARTIES
// =============================================================================

func (m *Memory) SaveParty(_ context.Context, p ledger.Party) (ledger.Party, error) {
	defer m.lock()()
	if existing, ok := m.st.parties[p.ID]; ok {
		p.CreatedAt = existing.CreatedAt
	} else {
		p.ID = m.st.stamp(p.ID)
		p.CreatedAt = time.Now().UTC()
	}
	m.st.parties[p.ID] = p
	return p, nil
}

func (m *Memory) GetParty(_ context.Context, id string) (ledger.Party, error) {
	defer m.rlock()()
	p, ok := m.st.parties[id]
	if !ok {
		return ledger.Party{}, ledger.ErrNotFound
	}
	return p, nil
}

func (m *Memory) ListParties(_ context.Context, kind ledger.PartyKind) ([]ledger.Party, error) {
	defer m.rlock()()
	var out []ledger.Party
	for _, p := range m.st.parties {
		if kind == "" || p.Kind == kind {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// =============================================================================
// CREDITS AND PAYMENTS
// =============================================================================

func (m *Memory) InsertCredit(_ context.Context, c ledger.Credit) (ledger.Credit, error) {
	defer m.lock()()
	if _, ok := m.st.credits[c.ID]; ok && c.ID != "" {
		return ledger.Credit{}, ledger.ErrDuplicate
	}
	c.ID = m.st.stamp(c.ID)
	c.CreatedAt = time.Now().UTC()
	m.st.credits[c.ID] = c
	return c, nil
}

func (m *Memory) GetCredit(_ context.Context, kind ledger.PartyKind, id string) (ledger.Credit, error) {
	defer m.rlock()()
	c, ok := m.st.credits[id]
	if !ok || c.Kind != kind {
		return ledger.Credit{}, ledger.ErrNotFound
	}
	return c, nil
}

func (m *Memory) UpdateCredit(_ context.Context, c ledger.Credit) error {
	defer m.lock()()
	existing, ok := m.st.credits[c.ID]
	if !ok || existing.Kind != c.Kind {
		return ledger.ErrNotFound
	}
	c.CreatedAt = existing.CreatedAt
	c.CreatedBy = existing.CreatedBy
	m.st.credits[c.ID] = c
	return nil
}

func (m *Memory) DeleteCredit(_ context.Context, kind ledger.PartyKind, id string) error {
	defer m.lock()()
	c, ok := m.st.credits[id]
	if !ok || c.Kind != kind {
		return ledger.ErrNotFound
	}
	delete(m.st.credits, id)
	return nil
}

func (m *Memory) ListCredits(_ context.Context, f ledger.PartyFilter) ([]ledger.Credit, error) {
	defer m.rlock()()
	var out []ledger.Credit
	for _, c := range m.st.credits {
		if (f.Kind == "" || c.Kind == f.Kind) && (f.PartyID == "" || c.PartyID == f.PartyID) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return m.st.before(out[i].CreditDate, out[i].CreatedAt, out[i].ID, out[j].CreditDate, out[j].CreatedAt, out[j].ID)
	})
	return out, nil
}

func (m *Memory) InsertPayment(_ context.Context, p ledger.Payment) (ledger.Payment, error) {
	defer m.lock()()
	if _, ok := m.st.payments[p.ID]; ok && p.ID != "" {
		return ledger.Payment{}, ledger.ErrDuplicate
	}
	p.ID = m.st.stamp(p.ID)
	p.CreatedAt = time.Now().UTC()
	m.st.payments[p.ID] = p
	return p, nil
}

func (m *Memory) GetPayment(_ context.Context, kind ledger.PartyKind, id string) (ledger.Payment, error) {
	defer m.rlock()()
	p, ok := m.st.payments[id]
	if !ok || p.Kind != kind {
		return ledger.Payment{}, ledger.ErrNotFound
	}
	return p, nil
}

func (m *Memory) UpdatePayment(_ context.Context, p ledger.Payment) error {
	defer m.lock()()
	existing, ok := m.st.payments[p.ID]
	if !ok || existing.Kind != p.Kind {
		return ledger.ErrNotFound
	}
	p.CreatedAt = existing.CreatedAt
	p.CreatedBy = existing.CreatedBy
	m.st.payments[p.ID] = p
	return nil
}

func (m *Memory) DeletePayment(_ context.Context, kind ledger.PartyKind, id string) error {
	defer m.lock()()
	p, ok := m.st.payments[id]
	if !ok || p.Kind != kind {
		return ledger.ErrNotFound
	}
	delete(m.st.payments, id)
	return nil
}

func (m *Memory) ListPayments(_ context.Context, f ledger.PartyFilter) ([]ledger.Payment, error) {
	defer m.rlock()()
	var out []ledger.Payment
	for _, p := range m.st.payments {
		if (f.Kind == "" || p.Kind == f.Kind) && (f.PartyID == "" || p.PartyID == f.PartyID) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return m.st.before(out[i].PaymentDate, out[i].CreatedAt, out[i].ID, out[j].PaymentDate, out[j].CreatedAt, out[j].ID)
	})
	return out, nil
}

// =============================================================================
// INVOICES
// =============================================================================

func (m *Memory) InsertInvoice(_ context.Context, inv ledger.Invoice, items []ledger.InvoiceItem) (ledger.Invoice, []ledger.InvoiceItem, error) {
	defer m.lock()()
	for _, existing := range m.st.invoices {
		if existing.InvoiceNumber == inv.InvoiceNumber || existing.ID == inv.ID {
			return ledger.Invoice{}, nil, ledger.ErrDuplicate
		}
	}
	inv.ID = m.st.stamp(inv.ID)
	inv.CreatedAt = time.Now().UTC()
	inv.Version = 1
	m.st.invoices[inv.ID] = inv

	saved := make([]ledger.InvoiceItem, len(items))
	for i, it := range items {
		it.ID = m.st.stamp(it.ID)
		it.InvoiceID = inv.ID
		saved[i] = it
	}
	m.st.items[inv.ID] = saved
	return inv, append([]ledger.InvoiceItem{}, saved...), nil
}

func (m *Memory) GetInvoice(_ context.Context, id string) (ledger.Invoice, error) {
	defer m.rlock()()
	inv, ok := m.st.invoices[id]
	if !ok {
		return ledger.Invoice{}, ledger.ErrNotFound
	}
	return inv, nil
}

func (m *Memory) ListInvoices(_ context.Context, f ledger.InvoiceFilter) ([]ledger.Invoice, error) {
	defer m.rlock()()
	var out []ledger.Invoice
	for _, inv := range m.st.invoices {
		if (f.DealerID == "" || inv.DealerID == f.DealerID) && (f.Status == "" || inv.Status == f.Status) {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return m.st.before(out[i].InvoiceDate, out[i].CreatedAt, out[i].ID, out[j].InvoiceDate, out[j].CreatedAt, out[j].ID)
	})
	return out, nil
}

func (m *Memory) ListInvoiceItems(_ context.Context, invoiceID string) ([]ledger.InvoiceItem, error) {
	defer m.rlock()()
	return append([]ledger.InvoiceItem{}, m.st.items[invoiceID]...), nil
}

// UpdateInvoiceState is a compare-and-swap on Version.
func (m *Memory) UpdateInvoiceState(_ context.Context, id string, expectedVersion int64, paid decimal.Decimal, status ledger.InvoiceStatus) error {
	defer m.lock()()
	inv, ok := m.st.invoices[id]
	if !ok {
		return ledger.ErrNotFound
	}
	if inv.Version != expectedVersion {
		return ledger.ErrConcurrentModification
	}
	inv.PaidAmount = paid
	inv.Status = status
	inv.Version++
	m.st.invoices[id] = inv
	return nil
}

func (m *Memory) InsertInvoicePayment(_ context.Context, p ledger.InvoicePayment) (ledger.InvoicePayment, error) {
	defer m.lock()()
	if _, ok := m.st.invoices[p.InvoiceID]; !ok {
		return ledger.InvoicePayment{}, ledger.ErrNotFound
	}
	if _, ok := m.st.invPayments[p.ID]; ok && p.ID != "" {
		return ledger.InvoicePayment{}, ledger.ErrDuplicate
	}
	p.ID = m.st.stamp(p.ID)
	p.CreatedAt = time.Now().UTC()
	m.st.invPayments[p.ID] = p
	return p, nil
}

func (m *Memory) GetInvoicePayment(_ context.Context, id string) (ledger.InvoicePayment, error) {
	defer m.rlock()()
	p, ok := m.st.invPayments[id]
	if !ok {
		return ledger.InvoicePayment{}, ledger.ErrNotFound
	}
	return p, nil
}

func (m *Memory) DeleteInvoicePayment(_ context.Context, id string) error {
	defer m.lock()()
	if _, ok := m.st.invPayments[id]; !ok {
		return ledger.ErrNotFound
	}
	delete(m.st.invPayments, id)
	return nil
}

func (m *Memory) ListInvoicePayments(_ context.Context, invoiceID string) ([]ledger.InvoicePayment, error) {
	defer m.rlock()()
	var out []ledger.InvoicePayment
	for _, p := range m.st.invPayments {
		if p.InvoiceID == invoiceID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return m.st.before(out[i].PaymentDate, out[i].CreatedAt, out[i].ID, out[j].PaymentDate, out[j].CreatedAt, out[j].ID)
	})
	return out, nil
}

// =============================================================================
// CASH JOURNAL (append-only)
// =============================================================================

func (m *Memory) InsertCashTransaction(_ context.Context, tx ledger.CashTransaction) (ledger.CashTransaction, error) {
	defer m.lock()()
	tx.ID = m.st.stamp(tx.ID)
	tx.CreatedAt = time.Now().UTC()

	// Insert in journal order so reads need no sort.
	i := sort.Search(len(m.st.cash), func(i int) bool {
		return m.st.cash[i].TransactionDate.After(tx.TransactionDate)
	})
	m.st.cash = append(m.st.cash, ledger.CashTransaction{})
	copy(m.st.cash[i+1:], m.st.cash[i:])
	m.st.cash[i] = tx
	return tx, nil
}

func (m *Memory) ListCashTransactions(_ context.Context, f ledger.CashFilter) ([]ledger.CashTransaction, error) {
	defer m.rlock()()
	var out []ledger.CashTransaction
	for _, tx := range m.st.cash {
		if f.Matches(tx) {
			out = append(out, tx)
		}
	}
	return out, nil
}

// =============================================================================
// RECONCILIATION RUNS
// =============================================================================

func (m *Memory) SaveReconciliationRun(_ context.Context, run ledger.ReconciliationRun) (ledger.ReconciliationRun, error) {
	defer m.lock()()
	for i, r := range m.st.runs {
		if r.ID == run.ID && run.ID != "" {
			m.st.runs[i] = run
			return run, nil
		}
	}
	run.ID = m.st.stamp(run.ID)
	m.st.runs = append(m.st.runs, run)
	return run, nil
}

// ListReconciliationRuns returns the newest runs first.
func (m *Memory) ListReconciliationRuns(_ context.Context, limit int) ([]ledger.ReconciliationRun, error) {
	defer m.rlock()()
	out := make([]ledger.ReconciliationRun, 0, len(m.st.runs))
	for i := len(m.st.runs) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, m.st.runs[i])
	}
	return out, nil
}
