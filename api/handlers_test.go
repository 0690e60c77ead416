/*
handlers_test.go - HTTP tests for the ledger API

Tests for:
- Token middleware
- Party, credit and payment round trip through the router
- Error status mapping (400, 404, 409)
- Invoice payments and cancellation
- Cash endpoints and the dashboard
- Manual reconciliation and run history
- CORS, body limits and internal error bodies
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShahFaisal5714/agro-crm-nexus/ledger"
	"github.com/ShahFaisal5714/agro-crm-nexus/ledger/store"
)

var testSecret = []byte("test-secret")

var testNow = time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)

type testServer struct {
	t       *testing.T
	store   *store.Memory
	handler *Handler
	router  http.Handler
	token   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	opts := ledger.DefaultOptions()
	opts.Logger = zerolog.Nop()
	opts.Clock = func() time.Time { return testNow }
	opts.AtomicCashMirror = true

	mem := store.NewMemory()
	h := NewHandler(mem, opts)
	h.Scheduler.Clock = opts.Clock

	token, err := IssueToken(testSecret, "user-1", time.Hour)
	require.NoError(t, err)

	return &testServer{
		t:       t,
		store:   mem,
		handler: h,
		router:  NewRouter(h, Authenticator{Secret: testSecret}, nil),
		token:   token,
	}
}

// do sends body (JSON-encoded unless it is a string) with the test token.
func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(s.t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+s.token)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func (s *testServer) createDealer(id string) {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/parties", CreatePartyRequest{ID: id, Kind: "dealer", Name: "Dealer " + id, Territory: "north"})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (s *testServer) createInvoice(number, dealerID, price string) InvoiceDTO {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/invoices", map[string]any{
		"dealer_id":      dealerID,
		"invoice_number": number,
		"invoice_date":   "2024-03-01",
		"due_date":       "2024-03-31",
		"items": []map[string]any{
			{"product_id": "seed-1", "quantity": "1", "unit_price": price},
		},
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[InvoiceDTO](s.t, rec)
}

// =============================================================================
// AUTH
// =============================================================================

func TestRouter_RequiresBearerToken(t *testing.T) {
	s := newTestServer(t)

	// WHEN: No token is sent
	req := httptest.NewRequest(http.MethodGet, "/api/parties", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	// THEN: 401
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Missing bearer token", decode[ErrorResponse](t, rec).Error)
}

func TestRouter_RejectsTokenWithWrongSecret(t *testing.T) {
	s := newTestServer(t)
	token, err := IssueToken([]byte("other"), "user-1", time.Hour)
	require.NoError(t, err)
	s.token = token

	rec := s.do(http.MethodGet, "/api/parties", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_RejectsExpiredToken(t *testing.T) {
	s := newTestServer(t)
	token, err := IssueToken(testSecret, "user-1", -time.Minute)
	require.NoError(t, err)
	s.token = token

	rec := s.do(http.MethodGet, "/api/parties", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_HealthIsPublic(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_DevUserSkipsToken(t *testing.T) {
	s := newTestServer(t)
	router := NewRouter(s.handler, Authenticator{DevUser: "dev"}, nil)

	body := strings.NewReader(`{"id":"d1","kind":"dealer","name":"Acme"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/parties", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = s.do(http.MethodPost, "/api/dealers/d1/credits", map[string]any{"amount": "10"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "user-1", decode[CreditDTO](t, rec).CreatedBy)
}

func preflight(router http.Handler, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodOptions, "/api/parties", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRouter_CORSWildcardNeverAllowsCredentials(t *testing.T) {
	s := newTestServer(t)

	// GIVEN: A router configured with the "*" origin
	router := NewRouter(s.handler, Authenticator{Secret: testSecret}, []string{"*"})

	// WHEN: A browser preflights from an arbitrary origin
	rec := preflight(router, "https://evil.example")

	// THEN: The origin is allowed but credentials are not
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestRouter_CORSDefaultsToLocalOrigins(t *testing.T) {
	s := newTestServer(t)

	rec := preflight(s.router, "http://localhost:5173")
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	rec = preflight(s.router, "https://evil.example")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_RejectsOversizedBody(t *testing.T) {
	s := newTestServer(t)

	// GIVEN: A party whose name alone exceeds the body cap
	body := `{"id":"d1","kind":"dealer","name":"` + strings.Repeat("a", maxBodyBytes) + `"}`

	// WHEN: It is posted
	rec := s.do(http.MethodPost, "/api/parties", body)

	// THEN: 400 and nothing is stored
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	parties, err := s.store.ListParties(context.Background(), ledger.PartyDealer)
	require.NoError(t, err)
	assert.Empty(t, parties)
}

// brokenPartyStore fails party listing with a driver-style error.
type brokenPartyStore struct {
	*store.Memory
}

func (brokenPartyStore) ListParties(context.Context, ledger.PartyKind) ([]ledger.Party, error) {
	return nil, errors.New(`driver: connect to 10.0.0.7:5432 user "ledger_admin" failed`)
}

func TestRouter_InternalErrorHidesCause(t *testing.T) {
	s := newTestServer(t)
	opts := ledger.DefaultOptions()
	opts.Logger = zerolog.Nop()
	h := NewHandler(brokenPartyStore{store.NewMemory()}, opts)
	s.router = NewRouter(h, Authenticator{Secret: testSecret}, nil)

	// WHEN: The store fails with an unclassified error
	rec := s.do(http.MethodGet, "/api/parties", nil)

	// THEN: 500 with a generic message and no driver detail
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "Internal error", resp.Error)
	assert.Empty(t, resp.Details)
	assert.NotContains(t, rec.Body.String(), "ledger_admin")
	assert.NotContains(t, rec.Body.String(), "10.0.0.7")
}

// =============================================================================
// PARTY LEDGERS
// =============================================================================

func TestDealerLedger_CreditPaymentSummary(t *testing.T) {
	// GIVEN: A dealer with one credit
	s := newTestServer(t)
	s.createDealer("d1")

	rec := s.do(http.MethodPost, "/api/dealers/d1/credits", map[string]any{
		"amount":      "1000.00",
		"credit_date": "2024-03-01",
		"description": "seed stock",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	credit := decode[CreditDTO](t, rec)
	assert.Equal(t, "user-1", credit.CreatedBy)
	assert.Equal(t, "2024-03-01", credit.CreditDate.String())

	// WHEN: A partial payment is recorded
	rec = s.do(http.MethodPost, "/api/dealers/d1/payments", map[string]any{
		"amount":         "400",
		"payment_date":   "2024-03-10",
		"payment_method": "bank_transfer",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// THEN: The summary reflects both rows
	rec = s.do(http.MethodGet, "/api/parties/d1/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sum := decode[PartySummaryDTO](t, rec)
	assertAmount(t, "1000", sum.TotalCredit)
	assertAmount(t, "400", sum.TotalPaid)
	assertAmount(t, "600", sum.Remaining)
	assert.Equal(t, "2024-03-10", sum.LastPaymentDate.String())

	// AND: Both rows are listed
	rec = s.do(http.MethodGet, "/api/dealers/d1/credits", nil)
	assert.Len(t, decode[[]CreditDTO](t, rec), 1)
	rec = s.do(http.MethodGet, "/api/dealers/d1/payments", nil)
	assert.Len(t, decode[[]PaymentDTO](t, rec), 1)
}

func TestDealerLedger_OverpaymentIsBadRequest(t *testing.T) {
	s := newTestServer(t)
	s.createDealer("d1")
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/dealers/d1/credits", map[string]any{"amount": "1000"}).Code)

	rec := s.do(http.MethodPost, "/api/dealers/d1/payments", map[string]any{"amount": "1200"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(http.MethodGet, "/api/dealers/d1/payments", nil)
	assert.Empty(t, decode[[]PaymentDTO](t, rec))
}

func TestPartyLedger_UnknownPartyIsBadRequest(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/suppliers/nobody/credits", map[string]any{"amount": "10"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPartyLedger_RegisterDealerIDAsSupplierConflicts(t *testing.T) {
	s := newTestServer(t)
	s.createDealer("p1")

	rec := s.do(http.MethodPost, "/api/parties", CreatePartyRequest{ID: "p1", Kind: "supplier", Name: "Other"})

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPartyLedger_EditAndDeleteLeaveDrift(t *testing.T) {
	// GIVEN: A dealer with a credit and a payment, both mirrored to cash
	s := newTestServer(t)
	s.createDealer("d1")
	credit := decode[CreditDTO](t, s.do(http.MethodPost, "/api/dealers/d1/credits", map[string]any{"amount": "500"}))
	payment := decode[PaymentDTO](t, s.do(http.MethodPost, "/api/dealers/d1/payments", map[string]any{"amount": "100"}))

	// WHEN: The credit is edited and the payment deleted
	rec := s.do(http.MethodPut, "/api/credits/dealer/"+credit.ID, map[string]any{"amount": "450"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assertAmount(t, "450", decode[CreditDTO](t, rec).Amount)

	rec = s.do(http.MethodDelete, "/api/payments/dealer/"+payment.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// THEN: The summary follows the rows
	sum := decode[PartySummaryDTO](t, s.do(http.MethodGet, "/api/parties/d1/summary", nil))
	assertAmount(t, "450", sum.Remaining)

	// AND: The cash journal was not adjusted, so both rows drift
	rec = s.do(http.MethodGet, "/api/reports/drift", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]CashDriftDTO](t, rec), 2)

	// AND: Deleting again is a 404
	rec = s.do(http.MethodDelete, "/api/payments/dealer/"+payment.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPartyLedger_RowEditScopedByKind(t *testing.T) {
	s := newTestServer(t)
	s.createDealer("d1")
	credit := decode[CreditDTO](t, s.do(http.MethodPost, "/api/dealers/d1/credits", map[string]any{"amount": "500"}))

	rec := s.do(http.MethodDelete, "/api/credits/supplier/"+credit.ID, nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDealerLedger_ImportPayments(t *testing.T) {
	s := newTestServer(t)
	s.createDealer("d1")
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/dealers/d1/credits", map[string]any{"amount": "1000"}).Code)

	csv := "party_id,amount,payment_date,payment_method\n" +
		"d1,100,2024-03-02,cash\n" +
		"d1,-5,2024-03-02,cash\n" +
		"ghost,10,2024-03-02,cash\n"
	rec := s.do(http.MethodPost, "/api/dealers/payments/import", csv)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[ImportResultDTO](t, rec)
	assert.Len(t, res.Imported, 1)
	require.Len(t, res.Failed, 2)
	assert.Equal(t, 3, res.Failed[0].Row)
	assert.Equal(t, "ghost", res.Failed[1].PartyID)
}

func TestAggregates_MarketAndRollup(t *testing.T) {
	s := newTestServer(t)
	s.createDealer("d1")
	s.createDealer("d2")
	s.do(http.MethodPost, "/api/dealers/d1/credits", map[string]any{"amount": "1000"})
	s.do(http.MethodPost, "/api/dealers/d2/credits", map[string]any{"amount": "500"})
	s.do(http.MethodPost, "/api/dealers/d1/payments", map[string]any{"amount": "750"})

	rec := s.do(http.MethodGet, "/api/market/dealers", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	m := decode[MarketSummaryDTO](t, rec)
	assertAmount(t, "1500", m.TotalCredit)
	assertAmount(t, "750", m.Outstanding)
	assertAmount(t, "50", m.Recovery.Percent)
	assert.Equal(t, 2, m.PartyCount)

	rec = s.do(http.MethodGet, "/api/rollups/dealers?by=territory", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	groups := decode[[]GroupTotalDTO](t, rec)
	require.Len(t, groups, 1)
	assert.Equal(t, "north", groups[0].Key)

	rec = s.do(http.MethodGet, "/api/market/customers", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// INVOICES
// =============================================================================

func TestInvoices_PaymentsDriveStatus(t *testing.T) {
	s := newTestServer(t)
	s.createDealer("d1")
	inv := s.createInvoice("INV-1", "d1", "1000")
	assert.Equal(t, "unpaid", inv.Status)
	assertAmount(t, "1000", inv.TotalAmount)

	rec := s.do(http.MethodPost, "/api/invoices/"+inv.ID+"/payments", map[string]any{"amount": "400"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[InvoicePaymentDTO](t, rec)

	got := decode[InvoiceDTO](t, s.do(http.MethodGet, "/api/invoices/"+inv.ID, nil))
	assert.Equal(t, "partial", got.Status)
	assertAmount(t, "400", got.PaidAmount)
	assert.Len(t, got.Payments, 1)

	rec = s.do(http.MethodPost, "/api/invoices/"+inv.ID+"/payments", map[string]any{"amount": "700"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/invoices/"+inv.ID+"/payments", map[string]any{"amount": "600"})
	require.Equal(t, http.StatusCreated, rec.Code)
	got = decode[InvoiceDTO](t, s.do(http.MethodGet, "/api/invoices/"+inv.ID, nil))
	assert.Equal(t, "paid", got.Status)

	rec = s.do(http.MethodDelete, "/api/invoices/"+inv.ID+"/payments/"+first.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(http.MethodGet, "/api/invoices/"+inv.ID+"/payments", nil)
	assert.Len(t, decode[[]InvoicePaymentDTO](t, rec), 1)
}

func TestInvoices_DuplicateNumberConflicts(t *testing.T) {
	s := newTestServer(t)
	s.createDealer("d1")
	s.createInvoice("INV-1", "d1", "100")

	rec := s.do(http.MethodPost, "/api/invoices", map[string]any{
		"dealer_id":      "d1",
		"invoice_number": "INV-1",
		"due_date":       "2024-04-30",
		"items":          []map[string]any{{"product_id": "p", "quantity": "1", "unit_price": "5"}},
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestInvoices_CancelledRejectsPayments(t *testing.T) {
	s := newTestServer(t)
	s.createDealer("d1")
	inv := s.createInvoice("INV-1", "d1", "100")

	rec := s.do(http.MethodPost, "/api/invoices/"+inv.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "cancelled", decode[InvoiceDTO](t, rec).Status)

	rec = s.do(http.MethodPost, "/api/invoices/"+inv.ID+"/payments", map[string]any{"amount": "10"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestInvoices_ListFiltersByStatus(t *testing.T) {
	s := newTestServer(t)
	s.createDealer("d1")
	a := s.createInvoice("INV-1", "d1", "100")
	s.createInvoice("INV-2", "d1", "100")
	s.do(http.MethodPost, "/api/invoices/"+a.ID+"/payments", map[string]any{"amount": "100"})

	rec := s.do(http.MethodGet, "/api/invoices?status=paid", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	invs := decode[[]InvoiceDTO](t, rec)
	require.Len(t, invs, 1)
	assert.Equal(t, "INV-1", invs[0].InvoiceNumber)
}

func TestInvoices_UnknownIsNotFound(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/api/invoices/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// CASH AND REPORTS
// =============================================================================

func TestCash_BalanceFollowsJournal(t *testing.T) {
	// GIVEN: Manual cash, an expense and a dealer credit/payment pair
	s := newTestServer(t)
	s.createDealer("d1")
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/cash/manual", map[string]any{"amount": "1000", "transaction_date": "2024-03-01"}).Code)
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/cash/expenses", map[string]any{"amount": "150", "reference_id": "exp-1", "transaction_date": "2024-03-05"}).Code)
	s.do(http.MethodPost, "/api/dealers/d1/credits", map[string]any{"amount": "300", "credit_date": "2024-03-06"})
	s.do(http.MethodPost, "/api/dealers/d1/payments", map[string]any{"amount": "200", "payment_date": "2024-03-07"})

	// WHEN: The balance is read
	rec := s.do(http.MethodGet, "/api/cash", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: 1000 − 150 − 300 + 200
	bal := decode[CashBalanceDTO](t, rec)
	assertAmount(t, "750", bal.CashInHand)
	assert.Len(t, bal.Breakdown, 4)

	// AND: The journal can be narrowed by date
	rec = s.do(http.MethodGet, "/api/cash/transactions?from=2024-03-05&to=2024-03-06", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	txs := decode[[]CashTransactionDTO](t, rec)
	require.Len(t, txs, 2)
	assert.Equal(t, "out", txs[0].Direction)

	rec = s.do(http.MethodGet, "/api/cash/transactions?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCash_RejectsNonPositiveAmount(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodPost, "/api/cash/manual", map[string]any{"amount": "0"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/cash/manual", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReports_Dashboard(t *testing.T) {
	s := newTestServer(t)
	s.createDealer("d1")
	s.createInvoice("INV-1", "d1", "100")
	s.do(http.MethodPost, "/api/cash/manual", map[string]any{"amount": "50"})

	rec := s.do(http.MethodGet, "/api/reports/dashboard", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	d := decode[DashboardDTO](t, rec)
	assertAmount(t, "50", d.CashInHand)
	assert.Equal(t, 1, d.InvoiceStatus["unpaid"])
	assert.Equal(t, "2024-03-15", d.AsOf.String())
}

// =============================================================================
// RECONCILIATION
// =============================================================================

func TestReconcile_RepairsCacheAndRecordsRun(t *testing.T) {
	// GIVEN: An invoice whose cached paid amount has no payment rows behind it
	s := newTestServer(t)
	s.createDealer("d1")
	inv := s.createInvoice("INV-1", "d1", "100")
	ctx := context.Background()
	stored, err := s.store.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.NoError(t, s.store.UpdateInvoiceState(ctx, inv.ID, stored.Version, decimal.NewFromInt(60), ledger.StatusPartial))

	// WHEN: A manual pass runs
	rec := s.do(http.MethodPost, "/api/admin/reconcile", nil)

	// THEN: The invoice is repaired and the run recorded
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	run := decode[ReconciliationRunDTO](t, rec)
	assert.Equal(t, "completed", run.Status)
	assert.Equal(t, 1, run.InvoicesRepaired)
	assert.NotNil(t, run.CompletedAt)

	repaired, err := s.store.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, repaired.PaidAmount.IsZero())
	assert.Equal(t, ledger.StatusUnpaid, repaired.Status)

	// AND: A second pass finds nothing to do
	run = decode[ReconciliationRunDTO](t, s.do(http.MethodPost, "/api/admin/reconcile", nil))
	assert.Equal(t, 0, run.InvoicesRepaired)

	rec = s.do(http.MethodGet, "/api/admin/reconciliation-runs?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decode[[]ReconciliationRunDTO](t, rec)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)

	rec = s.do(http.MethodGet, "/api/admin/reconciliation-runs?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScheduler_StartStop(t *testing.T) {
	s := newTestServer(t)
	sched := s.handler.Scheduler
	sched.CheckInterval = time.Hour

	// Start runs one pass immediately; Stop waits for it.
	sched.Start(context.Background())
	sched.Start(context.Background())
	sched.Stop()
	sched.Stop()

	runs, err := s.store.ListReconciliationRuns(context.Background(), 0)
	require.NoError(t, err)
	require.NotEmpty(t, runs)
	assert.Equal(t, ledger.RunCompleted, runs[0].Status)
}

func TestScheduler_DisabledDoesNotStart(t *testing.T) {
	s := newTestServer(t)
	sched := s.handler.Scheduler
	sched.Enabled = false

	sched.Start(context.Background())
	sched.Stop()

	runs, err := s.store.ListReconciliationRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

// blockingRuns holds every save until the pass context is done.
type blockingRuns struct {
	entered chan struct{}
}

func (b *blockingRuns) SaveReconciliationRun(ctx context.Context, run ledger.ReconciliationRun) (ledger.ReconciliationRun, error) {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return run, ctx.Err()
}

func (b *blockingRuns) ListReconciliationRuns(context.Context, int) ([]ledger.ReconciliationRun, error) {
	return nil, nil
}

func TestScheduler_CancelledContextEndsPass(t *testing.T) {
	s := newTestServer(t)
	sched := s.handler.Scheduler
	runs := &blockingRuns{entered: make(chan struct{}, 1)}
	sched.Runs = runs

	// GIVEN: A scheduler whose first pass is blocked in the store
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)
	select {
	case <-runs.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first pass did not start")
	}

	// WHEN: The owning context is cancelled
	cancel()

	// THEN: The pass unblocks and Stop returns
	stopped := make(chan struct{})
	go func() {
		sched.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after cancel")
	}
}
