/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address from proxy headers
  3. Logger:     zerolog request logging
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the frontend
  6. Auth:       Bearer token on everything under /api

ROUTE GROUPS:
  /api/parties/*          Party registration and summaries
  /api/{dealers|suppliers}/{id}/*  Per-party credits and payments
  /api/credits, /api/payments      Row edits and deletes
  /api/market, /api/rollups        Aggregates
  /api/invoices/*         Invoices and invoice payments
  /api/cash/*             Cash journal
  /api/reports/*          Dashboard and drift
  /api/admin/*            Reconciliation
  /healthz                Liveness, unauthenticated

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Token middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ShahFaisal5714/agro-crm-nexus/logger"
)

// DefaultCORSOrigins is used when no origins are configured. Credentials are
// only allowed for explicit origins, never with "*".
var DefaultCORSOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, auth Authenticator, corsOrigins []string) *chi.Mux {
	if len(corsOrigins) == 0 {
		corsOrigins = DefaultCORSOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: !slices.Contains(corsOrigins, "*"),
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware)

		// Party routes
		r.Route("/parties", func(r chi.Router) {
			r.Get("/", h.ListParties)
			r.Post("/", h.CreateParty)
			r.Get("/{id}/summary", h.GetPartySummary)
		})

		// Dealer and supplier ledgers. The import route is dealer only and
		// must sit beside the {kind} pattern as a static path.
		r.Post("/dealers/payments/import", h.ImportDealerPayments)
		r.Get("/{kind:dealers|suppliers}/{id}/credits", h.ListCredits)
		r.Post("/{kind:dealers|suppliers}/{id}/credits", h.AddCredit)
		r.Get("/{kind:dealers|suppliers}/{id}/payments", h.ListPayments)
		r.Post("/{kind:dealers|suppliers}/{id}/payments", h.AddPayment)

		// Row edits
		r.Route("/credits/{kind:dealer|supplier}/{id}", func(r chi.Router) {
			r.Put("/", h.EditCredit)
			r.Delete("/", h.DeleteCredit)
		})
		r.Route("/payments/{kind:dealer|supplier}/{id}", func(r chi.Router) {
			r.Put("/", h.EditPayment)
			r.Delete("/", h.DeletePayment)
		})

		// Aggregates
		r.Get("/market/{kind}", h.GetMarketSummary)
		r.Get("/rollups/{kind}", h.GetRollup)

		// Invoice routes
		r.Route("/invoices", func(r chi.Router) {
			r.Get("/", h.ListInvoices)
			r.Post("/", h.CreateInvoice)
			r.Get("/{id}", h.GetInvoice)
			r.Post("/{id}/cancel", h.CancelInvoice)
			r.Get("/{id}/payments", h.ListInvoicePayments)
			r.Post("/{id}/payments", h.AddInvoicePayment)
			r.Delete("/{id}/payments/{paymentId}", h.DeleteInvoicePayment)
		})

		// Cash routes
		r.Route("/cash", func(r chi.Router) {
			r.Get("/", h.GetCashBalance)
			r.Get("/transactions", h.ListCashTransactions)
			r.Post("/manual", h.AddManualCash)
			r.Post("/expenses", h.AddExpense)
		})

		// Report routes
		r.Route("/reports", func(r chi.Router) {
			r.Get("/dashboard", h.GetDashboard)
			r.Get("/drift", h.GetCashDrift)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/reconcile", h.TriggerReconcile)
			r.Get("/reconciliation-runs", h.ListReconciliationRuns)
		})
	})

	return r
}

// requestLogger logs one line per request through the "http" component
// logger.
func requestLogger(next http.Handler) http.Handler {
	log := logger.WithComponent("http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			ev := log.Info()
			if ww.Status() >= http.StatusInternalServerError {
				ev = log.Error()
			}
			ev.Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("request")
		}()
		next.ServeHTTP(ww, r)
	})
}
