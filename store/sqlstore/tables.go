package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ShahFaisal5714/agro-crm-nexus/ledger"
)

type scanner interface {
	Scan(dest ...any) error
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.ErrNotFound
	}
	return err
}

func newID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

// =============================================================================
// PARTIES
// =============================================================================

const partyColumns = `id, kind, name, territory, officer_id, created_at`

func scanParty(row scanner) (ledger.Party, error) {
	var (
		p                    ledger.Party
		kind, createdAt      string
		territory, officerID sql.NullString
	)
	if err := row.Scan(&p.ID, &kind, &p.Name, &territory, &officerID, &createdAt); err != nil {
		return ledger.Party{}, notFound(err)
	}
	var d decoder
	p.Kind = ledger.PartyKind(kind)
	p.Territory = territory.String
	p.OfficerID = officerID.String
	p.CreatedAt = d.time(createdAt)
	return p, d.err
}

func (s *Store) SaveParty(ctx context.Context, p ledger.Party) (ledger.Party, error) {
	defer s.lock()()
	err := s.atomically(ctx, func(q querier) error {
		var createdAt string
		err := q.QueryRowContext(ctx, s.rebind(`SELECT created_at FROM parties WHERE id = ?`), p.ID).Scan(&createdAt)
		switch {
		case err == nil:
			var d decoder
			p.CreatedAt = d.time(createdAt)
			if d.err != nil {
				return d.err
			}
			_, err = s.exec(ctx, q, `
				UPDATE parties SET kind = ?, name = ?, territory = ?, officer_id = ?
				WHERE id = ?`,
				string(p.Kind), p.Name, nullString(p.Territory), nullString(p.OfficerID), p.ID)
			return err
		case errors.Is(err, sql.ErrNoRows):
			p.ID = newID(p.ID)
			p.CreatedAt = now()
			_, err = s.exec(ctx, q, `
				INSERT INTO parties (`+partyColumns+`)
				VALUES (?, ?, ?, ?, ?, ?)`,
				p.ID, string(p.Kind), p.Name, nullString(p.Territory), nullString(p.OfficerID), formatTime(p.CreatedAt))
			return err
		default:
			return err
		}
	})
	if err != nil {
		return ledger.Party{}, err
	}
	return p, nil
}

func (s *Store) GetParty(ctx context.Context, id string) (ledger.Party, error) {
	defer s.rlock()()
	return scanParty(s.queryRow(ctx, `SELECT `+partyColumns+` FROM parties WHERE id = ?`, id))
}

func (s *Store) ListParties(ctx context.Context, kind ledger.PartyKind) ([]ledger.Party, error) {
	defer s.rlock()()
	var w where
	w.eq("kind", string(kind))
	rows, err := s.query(ctx, `SELECT `+partyColumns+` FROM parties`+w.String()+` ORDER BY name, id`, w.args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanParty)
}

// =============================================================================
// CREDITS
// =============================================================================

const creditColumns = `id, party_kind, party_id, product_id, amount, credit_date,
	description, notes, created_by, created_at`

func scanCredit(row scanner) (ledger.Credit, error) {
	var (
		c                             ledger.Credit
		kind, amount, date, createdAt string
		productID, description, notes sql.NullString
	)
	if err := row.Scan(&c.ID, &kind, &c.PartyID, &productID, &amount, &date,
		&description, &notes, &c.CreatedBy, &createdAt); err != nil {
		return ledger.Credit{}, notFound(err)
	}
	var d decoder
	c.Kind = ledger.PartyKind(kind)
	c.ProductID = productID.String
	c.Amount = d.amount(amount)
	c.CreditDate = d.date(date)
	c.Description = description.String
	c.Notes = notes.String
	c.CreatedAt = d.time(createdAt)
	return c, d.err
}

func (s *Store) InsertCredit(ctx context.Context, c ledger.Credit) (ledger.Credit, error) {
	defer s.lock()()
	c.ID = newID(c.ID)
	c.CreatedAt = now()
	_, err := s.exec(ctx, s.q, `
		INSERT INTO credits (`+creditColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, string(c.Kind), c.PartyID, nullString(c.ProductID), c.Amount.String(), c.CreditDate.String(),
		nullString(c.Description), nullString(c.Notes), c.CreatedBy, formatTime(c.CreatedAt))
	if err != nil {
		return ledger.Credit{}, err
	}
	return c, nil
}

func (s *Store) GetCredit(ctx context.Context, kind ledger.PartyKind, id string) (ledger.Credit, error) {
	defer s.rlock()()
	return scanCredit(s.queryRow(ctx,
		`SELECT `+creditColumns+` FROM credits WHERE id = ? AND party_kind = ?`, id, string(kind)))
}

// UpdateCredit rewrites the editable columns. Author and creation time are
// immutable.
func (s *Store) UpdateCredit(ctx context.Context, c ledger.Credit) error {
	defer s.lock()()
	res, err := s.exec(ctx, s.q, `
		UPDATE credits SET party_id = ?, product_id = ?, amount = ?, credit_date = ?, description = ?, notes = ?
		WHERE id = ? AND party_kind = ?`,
		c.PartyID, nullString(c.ProductID), c.Amount.String(), c.CreditDate.String(),
		nullString(c.Description), nullString(c.Notes), c.ID, string(c.Kind))
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (s *Store) DeleteCredit(ctx context.Context, kind ledger.PartyKind, id string) error {
	defer s.lock()()
	res, err := s.exec(ctx, s.q, `DELETE FROM credits WHERE id = ? AND party_kind = ?`, id, string(kind))
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (s *Store) ListCredits(ctx context.Context, f ledger.PartyFilter) ([]ledger.Credit, error) {
	defer s.rlock()()
	var w where
	w.eq("party_kind", string(f.Kind))
	w.eq("party_id", f.PartyID)
	rows, err := s.query(ctx, `SELECT `+creditColumns+` FROM credits`+w.String()+
		` ORDER BY credit_date, created_at, id`, w.args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanCredit)
}

// =============================================================================
// PAYMENTS
// =============================================================================

const paymentColumns = `id, party_kind, party_id, amount, payment_date, payment_method,
	reference_number, notes, created_by, created_at`

func scanPayment(row scanner) (ledger.Payment, error) {
	var (
		p                                     ledger.Payment
		kind, amount, date, method, createdAt string
		reference, notes                      sql.NullString
	)
	if err := row.Scan(&p.ID, &kind, &p.PartyID, &amount, &date, &method,
		&reference, &notes, &p.CreatedBy, &createdAt); err != nil {
		return ledger.Payment{}, notFound(err)
	}
	var d decoder
	p.Kind = ledger.PartyKind(kind)
	p.Amount = d.amount(amount)
	p.PaymentDate = d.date(date)
	p.PaymentMethod = ledger.PaymentMethod(method)
	p.ReferenceNumber = reference.String
	p.Notes = notes.String
	p.CreatedAt = d.time(createdAt)
	return p, d.err
}

func (s *Store) InsertPayment(ctx context.Context, p ledger.Payment) (ledger.Payment, error) {
	defer s.lock()()
	p.ID = newID(p.ID)
	p.CreatedAt = now()
	_, err := s.exec(ctx, s.q, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, string(p.Kind), p.PartyID, p.Amount.String(), p.PaymentDate.String(), string(p.PaymentMethod),
		nullString(p.ReferenceNumber), nullString(p.Notes), p.CreatedBy, formatTime(p.CreatedAt))
	if err != nil {
		return ledger.Payment{}, err
	}
	return p, nil
}

func (s *Store) GetPayment(ctx context.Context, kind ledger.PartyKind, id string) (ledger.Payment, error) {
	defer s.rlock()()
	return scanPayment(s.queryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = ? AND party_kind = ?`, id, string(kind)))
}

func (s *Store) UpdatePayment(ctx context.Context, p ledger.Payment) error {
	defer s.lock()()
	res, err := s.exec(ctx, s.q, `
		UPDATE payments SET party_id = ?, amount = ?, payment_date = ?, payment_method = ?,
			reference_number = ?, notes = ?
		WHERE id = ? AND party_kind = ?`,
		p.PartyID, p.Amount.String(), p.PaymentDate.String(), string(p.PaymentMethod),
		nullString(p.ReferenceNumber), nullString(p.Notes), p.ID, string(p.Kind))
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (s *Store) DeletePayment(ctx context.Context, kind ledger.PartyKind, id string) error {
	defer s.lock()()
	res, err := s.exec(ctx, s.q, `DELETE FROM payments WHERE id = ? AND party_kind = ?`, id, string(kind))
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (s *Store) ListPayments(ctx context.Context, f ledger.PartyFilter) ([]ledger.Payment, error) {
	defer s.rlock()()
	var w where
	w.eq("party_kind", string(f.Kind))
	w.eq("party_id", f.PartyID)
	rows, err := s.query(ctx, `SELECT `+paymentColumns+` FROM payments`+w.String()+
		` ORDER BY payment_date, created_at, id`, w.args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPayment)
}

// =============================================================================
// INVOICES
// =============================================================================

const invoiceColumns = `id, dealer_id, invoice_number, invoice_date, due_date, status,
	subtotal, tax_rate, tax_amount, total_amount, paid_amount, sales_order_id, source,
	notes, version, created_by, created_at`

func scanInvoice(row scanner) (ledger.Invoice, error) {
	var (
		inv                                             ledger.Invoice
		invoiceDate, dueDate, status, source, createdAt string
		subtotal, taxRate, taxAmount, total, paid       string
		salesOrderID, notes                             sql.NullString
	)
	if err := row.Scan(&inv.ID, &inv.DealerID, &inv.InvoiceNumber, &invoiceDate, &dueDate, &status,
		&subtotal, &taxRate, &taxAmount, &total, &paid, &salesOrderID, &source,
		&notes, &inv.Version, &inv.CreatedBy, &createdAt); err != nil {
		return ledger.Invoice{}, notFound(err)
	}
	var d decoder
	inv.InvoiceDate = d.date(invoiceDate)
	inv.DueDate = d.date(dueDate)
	inv.Status = ledger.InvoiceStatus(status)
	inv.Subtotal = d.amount(subtotal)
	inv.TaxRate = d.amount(taxRate)
	inv.TaxAmount = d.amount(taxAmount)
	inv.TotalAmount = d.amount(total)
	inv.PaidAmount = d.amount(paid)
	inv.SalesOrderID = salesOrderID.String
	inv.Source = ledger.InvoiceSource(source)
	inv.Notes = notes.String
	inv.CreatedAt = d.time(createdAt)
	return inv, d.err
}

// InsertInvoice writes the invoice and its items in one transaction.
func (s *Store) InsertInvoice(ctx context.Context, inv ledger.Invoice, items []ledger.InvoiceItem) (ledger.Invoice, []ledger.InvoiceItem, error) {
	defer s.lock()()
	inv.ID = newID(inv.ID)
	inv.CreatedAt = now()
	inv.Version = 1
	saved := make([]ledger.InvoiceItem, len(items))

	err := s.atomically(ctx, func(q querier) error {
		_, err := s.exec(ctx, q, `
			INSERT INTO invoices (`+invoiceColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			inv.ID, inv.DealerID, inv.InvoiceNumber, inv.InvoiceDate.String(), inv.DueDate.String(), string(inv.Status),
			inv.Subtotal.String(), inv.TaxRate.String(), inv.TaxAmount.String(), inv.TotalAmount.String(),
			inv.PaidAmount.String(), nullString(inv.SalesOrderID), string(inv.Source),
			nullString(inv.Notes), inv.Version, inv.CreatedBy, formatTime(inv.CreatedAt))
		if err != nil {
			return err
		}
		for i, it := range items {
			it.ID = newID(it.ID)
			it.InvoiceID = inv.ID
			_, err := s.exec(ctx, q, `
				INSERT INTO invoice_items (id, invoice_id, product_id, description, quantity, unit_price, total, position)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				it.ID, it.InvoiceID, it.ProductID, nullString(it.Description),
				it.Quantity.String(), it.UnitPrice.String(), it.Total.String(), i)
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			saved[i] = it
		}
		return nil
	})
	if err != nil {
		return ledger.Invoice{}, nil, err
	}
	return inv, saved, nil
}

func (s *Store) GetInvoice(ctx context.Context, id string) (ledger.Invoice, error) {
	defer s.rlock()()
	return scanInvoice(s.queryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id))
}

func (s *Store) ListInvoices(ctx context.Context, f ledger.InvoiceFilter) ([]ledger.Invoice, error) {
	defer s.rlock()()
	var w where
	w.eq("dealer_id", f.DealerID)
	w.eq("status", string(f.Status))
	rows, err := s.query(ctx, `SELECT `+invoiceColumns+` FROM invoices`+w.String()+
		` ORDER BY invoice_date, created_at, id`, w.args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanInvoice)
}

func (s *Store) ListInvoiceItems(ctx context.Context, invoiceID string) ([]ledger.InvoiceItem, error) {
	defer s.rlock()()
	rows, err := s.query(ctx, `
		SELECT id, invoice_id, product_id, description, quantity, unit_price, total
		FROM invoice_items WHERE invoice_id = ? ORDER BY position`, invoiceID)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row scanner) (ledger.InvoiceItem, error) {
		var (
			it                     ledger.InvoiceItem
			description            sql.NullString
			quantity, price, total string
		)
		if err := row.Scan(&it.ID, &it.InvoiceID, &it.ProductID, &description, &quantity, &price, &total); err != nil {
			return ledger.InvoiceItem{}, err
		}
		var d decoder
		it.Description = description.String
		it.Quantity = d.amount(quantity)
		it.UnitPrice = d.amount(price)
		it.Total = d.amount(total)
		return it, d.err
	})
}

// UpdateInvoiceState writes paid and status only if the stored version still
// equals expectedVersion.
func (s *Store) UpdateInvoiceState(ctx context.Context, id string, expectedVersion int64, paid decimal.Decimal, status ledger.InvoiceStatus) error {
	defer s.lock()()
	res, err := s.exec(ctx, s.q, `
		UPDATE invoices SET paid_amount = ?, status = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		paid.String(), string(status), id, expectedVersion)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var exists int
	err = s.q.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM invoices WHERE id = ?`), id).Scan(&exists)
	if err != nil {
		return notFound(err)
	}
	return ledger.ErrConcurrentModification
}

// =============================================================================
// INVOICE PAYMENTS
// =============================================================================

const invoicePaymentColumns = `id, invoice_id, amount, payment_date, payment_method,
	reference_number, notes, created_by, created_at`

func scanInvoicePayment(row scanner) (ledger.InvoicePayment, error) {
	var (
		p                               ledger.InvoicePayment
		amount, date, method, createdAt string
		reference, notes                sql.NullString
	)
	if err := row.Scan(&p.ID, &p.InvoiceID, &amount, &date, &method,
		&reference, &notes, &p.CreatedBy, &createdAt); err != nil {
		return ledger.InvoicePayment{}, notFound(err)
	}
	var d decoder
	p.Amount = d.amount(amount)
	p.PaymentDate = d.date(date)
	p.PaymentMethod = ledger.PaymentMethod(method)
	p.ReferenceNumber = reference.String
	p.Notes = notes.String
	p.CreatedAt = d.time(createdAt)
	return p, d.err
}

func (s *Store) InsertInvoicePayment(ctx context.Context, p ledger.InvoicePayment) (ledger.InvoicePayment, error) {
	defer s.lock()()
	p.ID = newID(p.ID)
	p.CreatedAt = now()
	err := s.atomically(ctx, func(q querier) error {
		var exists int
		err := q.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM invoices WHERE id = ?`), p.InvoiceID).Scan(&exists)
		if err != nil {
			return notFound(err)
		}
		_, err = s.exec(ctx, q, `
			INSERT INTO invoice_payments (`+invoicePaymentColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.InvoiceID, p.Amount.String(), p.PaymentDate.String(), string(p.PaymentMethod),
			nullString(p.ReferenceNumber), nullString(p.Notes), p.CreatedBy, formatTime(p.CreatedAt))
		return err
	})
	if err != nil {
		return ledger.InvoicePayment{}, err
	}
	return p, nil
}

func (s *Store) GetInvoicePayment(ctx context.Context, id string) (ledger.InvoicePayment, error) {
	defer s.rlock()()
	return scanInvoicePayment(s.queryRow(ctx,
		`SELECT `+invoicePaymentColumns+` FROM invoice_payments WHERE id = ?`, id))
}

func (s *Store) DeleteInvoicePayment(ctx context.Context, id string) error {
	defer s.lock()()
	res, err := s.exec(ctx, s.q, `DELETE FROM invoice_payments WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (s *Store) ListInvoicePayments(ctx context.Context, invoiceID string) ([]ledger.InvoicePayment, error) {
	defer s.rlock()()
	rows, err := s.query(ctx, `SELECT `+invoicePaymentColumns+` FROM invoice_payments
		WHERE invoice_id = ? ORDER BY payment_date, created_at, id`, invoiceID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanInvoicePayment)
}

// =============================================================================
// CASH JOURNAL (append-only)
// =============================================================================

const cashColumns = `id, transaction_type, amount, reference_id, reference_type,
	description, transaction_date, created_by, created_at`

func scanCash(row scanner) (ledger.CashTransaction, error) {
	var (
		tx                           ledger.CashTransaction
		typ, amount, date, createdAt string
		refID, refType, description  sql.NullString
	)
	if err := row.Scan(&tx.ID, &typ, &amount, &refID, &refType,
		&description, &date, &tx.CreatedBy, &createdAt); err != nil {
		return ledger.CashTransaction{}, notFound(err)
	}
	var d decoder
	tx.Type = ledger.CashTransactionType(typ)
	tx.Amount = d.amount(amount)
	tx.ReferenceID = refID.String
	tx.ReferenceType = refType.String
	tx.Description = description.String
	tx.TransactionDate = d.date(date)
	tx.CreatedAt = d.time(createdAt)
	return tx, d.err
}

func (s *Store) InsertCashTransaction(ctx context.Context, tx ledger.CashTransaction) (ledger.CashTransaction, error) {
	defer s.lock()()
	tx.ID = newID(tx.ID)
	tx.CreatedAt = now()
	_, err := s.exec(ctx, s.q, `
		INSERT INTO cash_transactions (`+cashColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, string(tx.Type), tx.Amount.String(), nullString(tx.ReferenceID), nullString(tx.ReferenceType),
		nullString(tx.Description), tx.TransactionDate.String(), tx.CreatedBy, formatTime(tx.CreatedAt))
	if err != nil {
		return ledger.CashTransaction{}, err
	}
	return tx, nil
}

func (s *Store) ListCashTransactions(ctx context.Context, f ledger.CashFilter) ([]ledger.CashTransaction, error) {
	defer s.rlock()()
	var w where
	w.eq("transaction_type", string(f.Type))
	w.eq("reference_id", f.ReferenceID)
	w.eq("reference_type", f.ReferenceType)
	w.cmp("transaction_date", ">=", f.From.String())
	w.cmp("transaction_date", "<=", f.To.String())
	rows, err := s.query(ctx, `SELECT `+cashColumns+` FROM cash_transactions`+w.String()+
		` ORDER BY transaction_date, created_at, id`, w.args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanCash)
}

// =============================================================================
// RECONCILIATION RUNS (ledger.RunStore)
// =============================================================================

func (s *Store) SaveReconciliationRun(ctx context.Context, run ledger.ReconciliationRun) (ledger.ReconciliationRun, error) {
	defer s.lock()()
	run.ID = newID(run.ID)
	var completedAt sql.NullString
	if run.CompletedAt != nil {
		completedAt = nullString(formatTime(*run.CompletedAt))
	}
	_, err := s.exec(ctx, s.q, `
		INSERT INTO reconciliation_runs (id, status, invoices_repaired, cash_drifts, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			invoices_repaired = excluded.invoices_repaired,
			cash_drifts = excluded.cash_drifts,
			error = excluded.error,
			completed_at = excluded.completed_at`,
		run.ID, string(run.Status), run.InvoicesRepaired, run.CashDrifts, nullString(run.Error),
		formatTime(run.StartedAt), completedAt)
	if err != nil {
		return ledger.ReconciliationRun{}, err
	}
	return run, nil
}

// ListReconciliationRuns returns the newest runs first. A non-positive limit
// returns every run.
func (s *Store) ListReconciliationRuns(ctx context.Context, limit int) ([]ledger.ReconciliationRun, error) {
	defer s.rlock()()
	query := `SELECT id, status, invoices_repaired, cash_drifts, error, started_at, completed_at
		FROM reconciliation_runs ORDER BY started_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ` + strconv.Itoa(limit)
	}
	rows, err := s.query(ctx, query)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row scanner) (ledger.ReconciliationRun, error) {
		var (
			run               ledger.ReconciliationRun
			status, startedAt string
			runErr, completed sql.NullString
		)
		if err := row.Scan(&run.ID, &status, &run.InvoicesRepaired, &run.CashDrifts,
			&runErr, &startedAt, &completed); err != nil {
			return ledger.ReconciliationRun{}, err
		}
		var d decoder
		run.Status = ledger.RunStatus(status)
		run.Error = runErr.String
		run.StartedAt = d.time(startedAt)
		if completed.Valid {
			t := d.time(completed.String)
			run.CompletedAt = &t
		}
		return run, d.err
	})
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

func collect[T any](rows *sql.Rows, scan func(scanner) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
