/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY AND DATES:
  Amounts are decimal.Decimal and serialize as JSON strings ("1500.50");
  requests accept a string or a number. Business dates are "YYYY-MM-DD".

VALIDATION:
  Validation is done by the ledgers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ShahFaisal5714/agro-crm-nexus/ledger"
)

// =============================================================================
// PARTIES
// =============================================================================

type PartyDTO struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Name      string    `json:"name"`
	Territory string    `json:"territory,omitempty"`
	OfficerID string    `json:"officer_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type CreatePartyRequest struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	Territory string `json:"territory"`
	OfficerID string `json:"officer_id"`
}

type PartySummaryDTO struct {
	PartyID         string          `json:"party_id"`
	TotalCredit     decimal.Decimal `json:"total_credit"`
	TotalPaid       decimal.Decimal `json:"total_paid"`
	Remaining       decimal.Decimal `json:"remaining"`
	LastPaymentDate ledger.Date     `json:"last_payment_date"`
	CreditCount     int             `json:"credit_count"`
	PaymentCount    int             `json:"payment_count"`
}

// =============================================================================
// CREDITS AND PAYMENTS
// =============================================================================

type CreditDTO struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	PartyID     string          `json:"party_id"`
	ProductID   string          `json:"product_id,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	CreditDate  ledger.Date     `json:"credit_date"`
	Description string          `json:"description,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	CreatedBy   string          `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
}

type CreditRequest struct {
	ProductID   string          `json:"product_id"`
	Amount      decimal.Decimal `json:"amount"`
	CreditDate  ledger.Date     `json:"credit_date"`
	Description string          `json:"description"`
	Notes       string          `json:"notes"`
}

// CreditPatchRequest changes only the fields present in the body.
type CreditPatchRequest struct {
	ProductID   *string          `json:"product_id"`
	Amount      *decimal.Decimal `json:"amount"`
	CreditDate  *ledger.Date     `json:"credit_date"`
	Description *string          `json:"description"`
	Notes       *string          `json:"notes"`
}

type PaymentDTO struct {
	ID              string          `json:"id"`
	Kind            string          `json:"kind"`
	PartyID         string          `json:"party_id"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentDate     ledger.Date     `json:"payment_date"`
	PaymentMethod   string          `json:"payment_method"`
	ReferenceNumber string          `json:"reference_number,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	CreatedBy       string          `json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
}

type PaymentRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	PaymentDate     ledger.Date     `json:"payment_date"`
	PaymentMethod   string          `json:"payment_method"`
	ReferenceNumber string          `json:"reference_number"`
	Notes           string          `json:"notes"`
}

type PaymentPatchRequest struct {
	Amount          *decimal.Decimal `json:"amount"`
	PaymentDate     *ledger.Date     `json:"payment_date"`
	PaymentMethod   *string          `json:"payment_method"`
	ReferenceNumber *string          `json:"reference_number"`
	Notes           *string          `json:"notes"`
}

type ImportRowErrorDTO struct {
	Row     int    `json:"row"`
	PartyID string `json:"party_id,omitempty"`
	Error   string `json:"error"`
}

type ImportResultDTO struct {
	Imported []PaymentDTO        `json:"imported"`
	Failed   []ImportRowErrorDTO `json:"failed"`
}

// =============================================================================
// AGGREGATES
// =============================================================================

type RateDTO struct {
	Ratio          decimal.Decimal `json:"ratio"`
	Percent        decimal.Decimal `json:"percent"`
	DisplayPercent decimal.Decimal `json:"display_percent"`
}

type MarketSummaryDTO struct {
	TotalCredit         decimal.Decimal `json:"total_credit"`
	TotalPaid           decimal.Decimal `json:"total_paid"`
	Outstanding         decimal.Decimal `json:"outstanding"`
	OutstandingPositive decimal.Decimal `json:"outstanding_positive"`
	PartyCount          int             `json:"party_count"`
	Recovery            RateDTO         `json:"recovery"`
}

type GroupTotalDTO struct {
	Key         string          `json:"key"`
	PartyCount  int             `json:"party_count"`
	TotalCredit decimal.Decimal `json:"total_credit"`
	TotalPaid   decimal.Decimal `json:"total_paid"`
	Remaining   decimal.Decimal `json:"remaining"`
	Recovery    RateDTO         `json:"recovery"`
}

// =============================================================================
// INVOICES
// =============================================================================

type InvoiceItemRequest struct {
	ProductID   string          `json:"product_id"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type InvoiceRequest struct {
	DealerID      string               `json:"dealer_id"`
	InvoiceNumber string               `json:"invoice_number"`
	InvoiceDate   ledger.Date          `json:"invoice_date"`
	DueDate       ledger.Date          `json:"due_date"`
	TaxRate       decimal.Decimal      `json:"tax_rate"`
	SalesOrderID  string               `json:"sales_order_id"`
	Source        string               `json:"source"`
	Notes         string               `json:"notes"`
	Items         []InvoiceItemRequest `json:"items"`
}

type InvoiceItemDTO struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"product_id"`
	Description string          `json:"description,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
}

// InvoiceDTO carries the stored row plus the derived paid amount and display
// status. PaidAmount is what clients should show; the stored cache is not
// exposed.
type InvoiceDTO struct {
	ID            string              `json:"id"`
	DealerID      string              `json:"dealer_id"`
	InvoiceNumber string              `json:"invoice_number"`
	InvoiceDate   ledger.Date         `json:"invoice_date"`
	DueDate       ledger.Date         `json:"due_date"`
	Status        string              `json:"status"`
	DisplayStatus string              `json:"display_status,omitempty"`
	Subtotal      decimal.Decimal     `json:"subtotal"`
	TaxRate       decimal.Decimal     `json:"tax_rate"`
	TaxAmount     decimal.Decimal     `json:"tax_amount"`
	TotalAmount   decimal.Decimal     `json:"total_amount"`
	PaidAmount    decimal.Decimal     `json:"paid_amount"`
	Remaining     *decimal.Decimal    `json:"remaining,omitempty"`
	SalesOrderID  string              `json:"sales_order_id,omitempty"`
	Source        string              `json:"source"`
	Notes         string              `json:"notes,omitempty"`
	CreatedBy     string              `json:"created_by"`
	CreatedAt     time.Time           `json:"created_at"`
	Items         []InvoiceItemDTO    `json:"items,omitempty"`
	Payments      []InvoicePaymentDTO `json:"payments,omitempty"`
}

type InvoicePaymentRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	PaymentDate     ledger.Date     `json:"payment_date"`
	PaymentMethod   string          `json:"payment_method"`
	ReferenceNumber string          `json:"reference_number"`
	Notes           string          `json:"notes"`
}

type InvoicePaymentDTO struct {
	ID              string          `json:"id"`
	InvoiceID       string          `json:"invoice_id"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentDate     ledger.Date     `json:"payment_date"`
	PaymentMethod   string          `json:"payment_method"`
	ReferenceNumber string          `json:"reference_number,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	CreatedBy       string          `json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
}

// =============================================================================
// CASH
// =============================================================================

type CashTransactionDTO struct {
	ID              string          `json:"id"`
	Type            string          `json:"transaction_type"`
	Direction       string          `json:"direction"`
	Amount          decimal.Decimal `json:"amount"`
	ReferenceID     string          `json:"reference_id,omitempty"`
	ReferenceType   string          `json:"reference_type,omitempty"`
	Description     string          `json:"description,omitempty"`
	TransactionDate ledger.Date     `json:"transaction_date"`
	CreatedBy       string          `json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
}

type CashTypeTotalDTO struct {
	Type      string          `json:"transaction_type"`
	Direction string          `json:"direction"`
	Count     int             `json:"count"`
	Total     decimal.Decimal `json:"total"`
}

type CashBalanceDTO struct {
	CashInHand decimal.Decimal    `json:"cash_in_hand"`
	Breakdown  []CashTypeTotalDTO `json:"breakdown"`
}

// CashRequest records manual cash or an expense. ReferenceID is only read
// for expenses.
type CashRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description"`
	ReferenceID     string          `json:"reference_id"`
	TransactionDate ledger.Date     `json:"transaction_date"`
}

// =============================================================================
// REPORTS AND RECONCILIATION
// =============================================================================

type DashboardDTO struct {
	AsOf           ledger.Date        `json:"as_of"`
	CashInHand     decimal.Decimal    `json:"cash_in_hand"`
	CashBreakdown  []CashTypeTotalDTO `json:"cash_breakdown"`
	DealerMarket   MarketSummaryDTO   `json:"dealer_market"`
	SupplierMarket MarketSummaryDTO   `json:"supplier_market"`
	InvoiceStatus  map[string]int     `json:"invoice_status"`
}

type CashDriftDTO struct {
	Kind          string          `json:"kind"`
	ReferenceType string          `json:"reference_type"`
	ReferenceID   string          `json:"reference_id"`
	PartyID       string          `json:"party_id,omitempty"`
	Expected      decimal.Decimal `json:"expected"`
	Mirrored      decimal.Decimal `json:"mirrored"`
}

type ReconciliationRunDTO struct {
	ID               string     `json:"id"`
	Status           string     `json:"status"`
	InvoicesRepaired int        `json:"invoices_repaired"`
	CashDrifts       int        `json:"cash_drifts"`
	Error            string     `json:"error,omitempty"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toPartyDTO(p ledger.Party) PartyDTO {
	return PartyDTO{
		ID:        p.ID,
		Kind:      string(p.Kind),
		Name:      p.Name,
		Territory: p.Territory,
		OfficerID: p.OfficerID,
		CreatedAt: p.CreatedAt,
	}
}

func toSummaryDTO(s ledger.PartySummary) PartySummaryDTO {
	return PartySummaryDTO{
		PartyID:         s.PartyID,
		TotalCredit:     s.TotalCredit,
		TotalPaid:       s.TotalPaid,
		Remaining:       s.Remaining,
		LastPaymentDate: s.LastPaymentDate,
		CreditCount:     s.CreditCount,
		PaymentCount:    s.PaymentCount,
	}
}

func toCreditDTO(c ledger.Credit) CreditDTO {
	return CreditDTO{
		ID:          c.ID,
		Kind:        string(c.Kind),
		PartyID:     c.PartyID,
		ProductID:   c.ProductID,
		Amount:      c.Amount,
		CreditDate:  c.CreditDate,
		Description: c.Description,
		Notes:       c.Notes,
		CreatedBy:   c.CreatedBy,
		CreatedAt:   c.CreatedAt,
	}
}

func toPaymentDTO(p ledger.Payment) PaymentDTO {
	return PaymentDTO{
		ID:              p.ID,
		Kind:            string(p.Kind),
		PartyID:         p.PartyID,
		Amount:          p.Amount,
		PaymentDate:     p.PaymentDate,
		PaymentMethod:   string(p.PaymentMethod),
		ReferenceNumber: p.ReferenceNumber,
		Notes:           p.Notes,
		CreatedBy:       p.CreatedBy,
		CreatedAt:       p.CreatedAt,
	}
}

func toRateDTO(r ledger.Rate) RateDTO {
	return RateDTO{Ratio: r.Ratio, Percent: r.Percent, DisplayPercent: r.DisplayPercent}
}

func toMarketDTO(m ledger.MarketSummary) MarketSummaryDTO {
	return MarketSummaryDTO{
		TotalCredit:         m.TotalCredit,
		TotalPaid:           m.TotalPaid,
		Outstanding:         m.Outstanding,
		OutstandingPositive: m.OutstandingPositive,
		PartyCount:          m.PartyCount,
		Recovery:            toRateDTO(m.Recovery),
	}
}

func toInvoiceDTO(inv ledger.Invoice) InvoiceDTO {
	return InvoiceDTO{
		ID:            inv.ID,
		DealerID:      inv.DealerID,
		InvoiceNumber: inv.InvoiceNumber,
		InvoiceDate:   inv.InvoiceDate,
		DueDate:       inv.DueDate,
		Status:        string(inv.Status),
		Subtotal:      inv.Subtotal,
		TaxRate:       inv.TaxRate,
		TaxAmount:     inv.TaxAmount,
		TotalAmount:   inv.TotalAmount,
		PaidAmount:    inv.PaidAmount,
		SalesOrderID:  inv.SalesOrderID,
		Source:        string(inv.Source),
		Notes:         inv.Notes,
		CreatedBy:     inv.CreatedBy,
		CreatedAt:     inv.CreatedAt,
	}
}

func toSnapshotDTO(s ledger.InvoiceSnapshot) InvoiceDTO {
	dto := toInvoiceDTO(s.Invoice)
	dto.PaidAmount = s.PaidAmount
	dto.DisplayStatus = string(s.DisplayStatus)
	remaining := s.Remaining
	dto.Remaining = &remaining
	dto.Items = make([]InvoiceItemDTO, len(s.Items))
	for i, it := range s.Items {
		dto.Items[i] = InvoiceItemDTO{
			ID:          it.ID,
			ProductID:   it.ProductID,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Total:       it.Total,
		}
	}
	dto.Payments = make([]InvoicePaymentDTO, len(s.Payments))
	for i, p := range s.Payments {
		dto.Payments[i] = toInvoicePaymentDTO(p)
	}
	return dto
}

func toInvoicePaymentDTO(p ledger.InvoicePayment) InvoicePaymentDTO {
	return InvoicePaymentDTO{
		ID:              p.ID,
		InvoiceID:       p.InvoiceID,
		Amount:          p.Amount,
		PaymentDate:     p.PaymentDate,
		PaymentMethod:   string(p.PaymentMethod),
		ReferenceNumber: p.ReferenceNumber,
		Notes:           p.Notes,
		CreatedBy:       p.CreatedBy,
		CreatedAt:       p.CreatedAt,
	}
}

func toCashDTO(tx ledger.CashTransaction) CashTransactionDTO {
	return CashTransactionDTO{
		ID:              tx.ID,
		Type:            string(tx.Type),
		Direction:       string(ledger.Direction(tx.Type)),
		Amount:          tx.Amount,
		ReferenceID:     tx.ReferenceID,
		ReferenceType:   tx.ReferenceType,
		Description:     tx.Description,
		TransactionDate: tx.TransactionDate,
		CreatedBy:       tx.CreatedBy,
		CreatedAt:       tx.CreatedAt,
	}
}

func toBreakdownDTO(lines []ledger.CashTypeTotal) []CashTypeTotalDTO {
	out := make([]CashTypeTotalDTO, len(lines))
	for i, l := range lines {
		out[i] = CashTypeTotalDTO{Type: string(l.Type), Direction: string(l.Direction), Count: l.Count, Total: l.Total}
	}
	return out
}

func toRunDTO(r ledger.ReconciliationRun) ReconciliationRunDTO {
	return ReconciliationRunDTO{
		ID:               r.ID,
		Status:           string(r.Status),
		InvoicesRepaired: r.InvoicesRepaired,
		CashDrifts:       r.CashDrifts,
		Error:            r.Error,
		StartedAt:        r.StartedAt,
		CompletedAt:      r.CompletedAt,
	}
}
