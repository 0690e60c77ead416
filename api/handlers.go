/*
handlers.go - HTTP API handlers for the ledger back office

PURPOSE:
  Exposes the dealer, supplier, invoice and cash ledgers via REST API.
  Handles HTTP request/response and JSON serialization, and delegates every
  rule to the ledger package.

ENDPOINTS:
  Parties:
    GET    /api/parties?kind=              List dealers and/or suppliers
    POST   /api/parties                    Register a party
    GET    /api/parties/{id}/summary       Credit, paid and remaining

  Dealer and supplier ledgers ({kind} is dealers or suppliers):
    GET    /api/{kind}/{id}/credits        Credits for one party
    POST   /api/{kind}/{id}/credits        Add credit (mirrors to cash)
    GET    /api/{kind}/{id}/payments       Payments for one party
    POST   /api/{kind}/{id}/payments       Add payment (mirrors to cash)
    POST   /api/dealers/payments/import    CSV bulk payment import

  Row edits ({kind} is dealer or supplier):
    PUT    /api/credits/{kind}/{id}        Edit credit (cash not adjusted)
    DELETE /api/credits/{kind}/{id}
    PUT    /api/payments/{kind}/{id}       Edit payment (cash not adjusted)
    DELETE /api/payments/{kind}/{id}

  Aggregates:
    GET    /api/market/{kind}              Market summary
    GET    /api/rollups/{kind}?by=         Territory or officer rollup

  Invoices:
    GET    /api/invoices                   List (dealer_id, status filters)
    POST   /api/invoices                   Create with items
    GET    /api/invoices/{id}              Snapshot with items and payments
    POST   /api/invoices/{id}/cancel
    GET    /api/invoices/{id}/payments
    POST   /api/invoices/{id}/payments     Record payment
    DELETE /api/invoices/{id}/payments/{paymentId}

  Cash:
    GET    /api/cash                       Cash in hand with breakdown
    GET    /api/cash/transactions          Journal (type, reference, from, to)
    POST   /api/cash/manual                Manual cash
    POST   /api/cash/expenses              Expense outflow

  Reports and admin:
    GET    /api/reports/dashboard
    GET    /api/reports/drift
    POST   /api/admin/reconcile            Run a reconciliation pass now
    GET    /api/admin/reconciliation-runs

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, overpayment, malformed body
  - 401: Missing or invalid token
  - 404: Row not found
  - 409: Duplicate invoice number, cancelled invoice, lost update
  - 500: Store failures

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - auth.go: Bearer token middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ShahFaisal5714/agro-crm-nexus/ledger"
	"github.com/ShahFaisal5714/agro-crm-nexus/logger"
)

const (
	// maxBodyBytes caps JSON request bodies.
	maxBodyBytes = 1 << 20

	// maxImportBytes caps CSV import bodies.
	maxImportBytes = 10 << 20
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Cash      *ledger.CashLedger
	Dealers   *ledger.PartyLedger
	Suppliers *ledger.PartyLedger
	Invoices  *ledger.InvoiceLedger
	Reporter  *ledger.Reporter
	Runs      ledger.RunStore
	Scheduler *ReconciliationScheduler

	log zerolog.Logger
}

// NewHandler wires the ledgers over store. The scheduler is created but not
// started.
func NewHandler(store ledger.Store, opts ledger.Options) *Handler {
	cash := ledger.NewCashLedger(store, opts)
	h := &Handler{
		Cash:      cash,
		Dealers:   ledger.NewDealerLedger(store, cash, opts),
		Suppliers: ledger.NewSupplierLedger(store, cash, opts),
		Invoices:  ledger.NewInvoiceLedger(store, cash, opts),
		log:       logger.WithComponent("api"),
	}
	h.Reporter = ledger.NewReporter(h.Cash, h.Dealers, h.Suppliers, h.Invoices, opts)
	if runs, ok := store.(ledger.RunStore); ok {
		h.Runs = runs
	}
	h.Scheduler = NewReconciliationScheduler(h.Invoices, h.Reporter, h.Runs)
	return h
}

// ledgerFor resolves "dealer"/"dealers" and "supplier"/"suppliers".
func (h *Handler) ledgerFor(kind string) (*ledger.PartyLedger, bool) {
	switch kind {
	case "dealer", "dealers":
		return h.Dealers, true
	case "supplier", "suppliers":
		return h.Suppliers, true
	}
	return nil, false
}

func (h *Handler) ledgerParam(w http.ResponseWriter, r *http.Request) (*ledger.PartyLedger, bool) {
	kind := chi.URLParam(r, "kind")
	l, ok := h.ledgerFor(kind)
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown party kind", fmt.Errorf("%q", kind))
	}
	return l, ok
}

// =============================================================================
// PARTY HANDLERS
// =============================================================================

func (h *Handler) ListParties(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	ledgers := []*ledger.PartyLedger{h.Dealers, h.Suppliers}
	if kind != "" {
		l, ok := h.ledgerFor(kind)
		if !ok {
			writeError(w, http.StatusBadRequest, "Unknown party kind", fmt.Errorf("%q", kind))
			return
		}
		ledgers = []*ledger.PartyLedger{l}
	}

	dtos := []PartyDTO{}
	for _, l := range ledgers {
		parties, err := l.ListParties(r.Context())
		if err != nil {
			h.writeLedgerError(w, err)
			return
		}
		for _, p := range parties {
			dtos = append(dtos, toPartyDTO(p))
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateParty(w http.ResponseWriter, r *http.Request) {
	var req CreatePartyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	l, ok := h.ledgerFor(req.Kind)
	if !ok {
		writeError(w, http.StatusBadRequest, "kind must be dealer or supplier", nil)
		return
	}
	p, err := l.RegisterParty(r.Context(), ledger.Party{
		ID:        req.ID,
		Name:      req.Name,
		Territory: req.Territory,
		OfficerID: req.OfficerID,
	})
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPartyDTO(p))
}

// GetPartySummary finds the party in either ledger.
func (h *Handler) GetPartySummary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	for _, l := range []*ledger.PartyLedger{h.Dealers, h.Suppliers} {
		if _, err := l.GetParty(r.Context(), id); err != nil {
			if ledger.IsNotFound(err) {
				continue
			}
			h.writeLedgerError(w, err)
			return
		}
		s, err := l.Summary(r.Context(), id)
		if err != nil {
			h.writeLedgerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSummaryDTO(s))
		return
	}
	writeError(w, http.StatusNotFound, "Party not found", nil)
}

// =============================================================================
// CREDIT AND PAYMENT HANDLERS
// =============================================================================

func (h *Handler) ListCredits(w http.ResponseWriter, r *http.Request) {
	l, ok := h.ledgerParam(w, r)
	if !ok {
		return
	}
	credits, err := l.Credits(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	dtos := make([]CreditDTO, len(credits))
	for i, c := range credits {
		dtos[i] = toCreditDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) AddCredit(w http.ResponseWriter, r *http.Request) {
	l, ok := h.ledgerParam(w, r)
	if !ok {
		return
	}
	var req CreditRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := l.AddCredit(r.Context(), ledger.CreditInput{
		PartyID:     chi.URLParam(r, "id"),
		ProductID:   req.ProductID,
		Amount:      req.Amount,
		CreditDate:  req.CreditDate,
		Description: req.Description,
		Notes:       req.Notes,
	})
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCreditDTO(c))
}

func (h *Handler) EditCredit(w http.ResponseWriter, r *http.Request) {
	l, ok := h.ledgerParam(w, r)
	if !ok {
		return
	}
	var req CreditPatchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := l.EditCredit(r.Context(), chi.URLParam(r, "id"), ledger.CreditPatch{
		ProductID:   req.ProductID,
		Amount:      req.Amount,
		CreditDate:  req.CreditDate,
		Description: req.Description,
		Notes:       req.Notes,
	})
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCreditDTO(c))
}

func (h *Handler) DeleteCredit(w http.ResponseWriter, r *http.Request) {
	l, ok := h.ledgerParam(w, r)
	if !ok {
		return
	}
	if err := l.DeleteCredit(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	l, ok := h.ledgerParam(w, r)
	if !ok {
		return
	}
	payments, err := l.Payments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) AddPayment(w http.ResponseWriter, r *http.Request) {
	l, ok := h.ledgerParam(w, r)
	if !ok {
		return
	}
	var req PaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := l.AddPayment(r.Context(), ledger.PaymentInput{
		PartyID:         chi.URLParam(r, "id"),
		Amount:          req.Amount,
		PaymentDate:     req.PaymentDate,
		PaymentMethod:   ledger.PaymentMethod(req.PaymentMethod),
		ReferenceNumber: req.ReferenceNumber,
		Notes:           req.Notes,
	})
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentDTO(p))
}

func (h *Handler) EditPayment(w http.ResponseWriter, r *http.Request) {
	l, ok := h.ledgerParam(w, r)
	if !ok {
		return
	}
	var req PaymentPatchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	patch := ledger.PaymentPatch{
		Amount:          req.Amount,
		PaymentDate:     req.PaymentDate,
		ReferenceNumber: req.ReferenceNumber,
		Notes:           req.Notes,
	}
	if req.PaymentMethod != nil {
		m := ledger.PaymentMethod(*req.PaymentMethod)
		patch.PaymentMethod = &m
	}
	p, err := l.EditPayment(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(p))
}

func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	l, ok := h.ledgerParam(w, r)
	if !ok {
		return
	}
	if err := l.DeletePayment(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ImportDealerPayments accepts a CSV body. Row failures come back in the
// result with status 200; only an unreadable file fails the request.
func (h *Handler) ImportDealerPayments(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxImportBytes)
	res, err := h.Dealers.ImportPayments(r.Context(), body)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	dto := ImportResultDTO{
		Imported: make([]PaymentDTO, len(res.Imported)),
		Failed:   make([]ImportRowErrorDTO, len(res.Failed)),
	}
	for i, p := range res.Imported {
		dto.Imported[i] = toPaymentDTO(p)
	}
	for i, f := range res.Failed {
		dto.Failed[i] = ImportRowErrorDTO{Row: f.Row, PartyID: f.PartyID, Error: f.Err.Error()}
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// AGGREGATE HANDLERS
// =============================================================================

func (h *Handler) GetMarketSummary(w http.ResponseWriter, r *http.Request) {
	l, ok := h.ledgerParam(w, r)
	if !ok {
		return
	}
	m, err := l.MarketSummary(r.Context())
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMarketDTO(m))
}

func (h *Handler) GetRollup(w http.ResponseWriter, r *http.Request) {
	l, ok := h.ledgerParam(w, r)
	if !ok {
		return
	}
	key := ledger.GroupKey(r.URL.Query().Get("by"))
	if key == "" {
		key = ledger.GroupByTerritory
	}
	groups, err := l.Rollup(r.Context(), key)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	dtos := make([]GroupTotalDTO, len(groups))
	for i, g := range groups {
		dtos[i] = GroupTotalDTO{
			Key:         g.Key,
			PartyCount:  g.PartyCount,
			TotalCredit: g.TotalCredit,
			TotalPaid:   g.TotalPaid,
			Remaining:   g.Remaining,
			Recovery:    toRateDTO(g.Recovery),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// INVOICE HANDLERS
// =============================================================================

func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	invs, err := h.Invoices.Invoices(r.Context(), ledger.InvoiceFilter{
		DealerID: q.Get("dealer_id"),
		Status:   ledger.InvoiceStatus(q.Get("status")),
	})
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	dtos := make([]InvoiceDTO, len(invs))
	for i, inv := range invs {
		dtos[i] = toInvoiceDTO(inv)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req InvoiceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	in := ledger.InvoiceInput{
		DealerID:      req.DealerID,
		InvoiceNumber: req.InvoiceNumber,
		InvoiceDate:   req.InvoiceDate,
		DueDate:       req.DueDate,
		TaxRate:       req.TaxRate,
		SalesOrderID:  req.SalesOrderID,
		Source:        ledger.InvoiceSource(req.Source),
		Notes:         req.Notes,
		Items:         make([]ledger.InvoiceItemInput, len(req.Items)),
	}
	for i, it := range req.Items {
		in.Items[i] = ledger.InvoiceItemInput{
			ProductID:   it.ProductID,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		}
	}
	inv, _, err := h.Invoices.CreateInvoice(r.Context(), in)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	snap, err := h.Invoices.Snapshot(r.Context(), inv.ID)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSnapshotDTO(snap))
}

func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Invoices.Snapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotDTO(snap))
}

func (h *Handler) CancelInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.Invoices.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(inv))
}

func (h *Handler) ListInvoicePayments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.Invoices.Invoice(r.Context(), id); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	payments, err := h.Invoices.Payments(r.Context(), id)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	dtos := make([]InvoicePaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toInvoicePaymentDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) AddInvoicePayment(w http.ResponseWriter, r *http.Request) {
	var req InvoicePaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := h.Invoices.AddPayment(r.Context(), ledger.InvoicePaymentInput{
		InvoiceID:       chi.URLParam(r, "id"),
		Amount:          req.Amount,
		PaymentDate:     req.PaymentDate,
		PaymentMethod:   ledger.PaymentMethod(req.PaymentMethod),
		ReferenceNumber: req.ReferenceNumber,
		Notes:           req.Notes,
	})
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toInvoicePaymentDTO(p))
}

func (h *Handler) DeleteInvoicePayment(w http.ResponseWriter, r *http.Request) {
	err := h.Invoices.DeletePayment(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "paymentId"))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// CASH HANDLERS
// =============================================================================

func (h *Handler) GetCashBalance(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Cash.History(r.Context(), ledger.CashFilter{})
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CashBalanceDTO{
		CashInHand: ledger.ComputeCashInHand(txs),
		Breakdown:  toBreakdownDTO(ledger.Breakdown(txs)),
	})
}

func (h *Handler) ListCashTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ledger.CashFilter{
		Type:          ledger.CashTransactionType(q.Get("type")),
		ReferenceID:   q.Get("reference_id"),
		ReferenceType: q.Get("reference_type"),
	}
	for name, dst := range map[string]*ledger.Date{"from": &filter.From, "to": &filter.To} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		d, err := ledger.ParseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid "+name+" date", err)
			return
		}
		*dst = d
	}

	txs, err := h.Cash.History(r.Context(), filter)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	dtos := make([]CashTransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toCashDTO(tx)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) AddManualCash(w http.ResponseWriter, r *http.Request) {
	var req CashRequest
	if !decodeBody(w, r, &req) {
		return
	}
	tx, err := h.Cash.AddManualCash(r.Context(), req.Amount, req.Description, req.TransactionDate)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCashDTO(tx))
}

func (h *Handler) AddExpense(w http.ResponseWriter, r *http.Request) {
	var req CashRequest
	if !decodeBody(w, r, &req) {
		return
	}
	tx, err := h.Cash.AddExpense(r.Context(), req.Amount, req.ReferenceID, req.Description, req.TransactionDate)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCashDTO(tx))
}

// =============================================================================
// REPORT AND ADMIN HANDLERS
// =============================================================================

func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.Reporter.Dashboard(r.Context())
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	status := make(map[string]int, len(d.InvoiceStatus))
	for k, v := range d.InvoiceStatus {
		status[string(k)] = v
	}
	writeJSON(w, http.StatusOK, DashboardDTO{
		AsOf:           d.AsOf,
		CashInHand:     d.CashInHand,
		CashBreakdown:  toBreakdownDTO(d.CashBreakdown),
		DealerMarket:   toMarketDTO(d.DealerMarket),
		SupplierMarket: toMarketDTO(d.SupplierMarket),
		InvoiceStatus:  status,
	})
}

func (h *Handler) GetCashDrift(w http.ResponseWriter, r *http.Request) {
	drift, err := h.Reporter.CashDrift(r.Context())
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	dtos := make([]CashDriftDTO, len(drift))
	for i, d := range drift {
		dtos[i] = CashDriftDTO{
			Kind:          string(d.Kind),
			ReferenceType: d.ReferenceType,
			ReferenceID:   d.ReferenceID,
			PartyID:       d.PartyID,
			Expected:      d.Expected,
			Mirrored:      d.Mirrored,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) TriggerReconcile(w http.ResponseWriter, r *http.Request) {
	run, err := h.Scheduler.RunNow(r.Context())
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRunDTO(run))
}

func (h *Handler) ListReconciliationRuns(w http.ResponseWriter, r *http.Request) {
	if h.Runs == nil {
		writeJSON(w, http.StatusOK, []ReconciliationRunDTO{})
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", err)
			return
		}
		limit = n
	}
	runs, err := h.Runs.ListReconciliationRuns(r.Context(), limit)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	dtos := make([]ReconciliationRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// statusFor maps ledger errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ledger.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrDuplicate),
		errors.Is(err, ledger.ErrInvalidState),
		errors.Is(err, ledger.ErrConcurrentModification):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeLedgerError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("request failed")
		writeError(w, status, "Internal error", nil)
		return
	}
	writeError(w, status, err.Error(), nil)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
