/*
reconcile.go - Derived views over ledger rows

PURPOSE:
  Pure aggregation used by summaries, dashboards and the background
  reconciler. Nothing here reads a store or mutates anything; callers load
  rows and pass them in, which keeps every figure reproducible from the rows
  alone.

PER-PARTY IDENTITY:
  remaining = Σ credit.amount − Σ payment.amount

  Remaining may be negative when overpayment was allowed. Market totals sum
  the signed values; OutstandingPositive sums only the positive remainders.

CASH DRIFT:
  Credits and payments may be edited or deleted after their cash mirror was
  posted, and a best-effort mirror may never have been written. Drift is
  reported here and never corrected automatically.

SEE ALSO:
  - party.go: Summary / MarketSummary use these functions
  - report.go: Dashboard
*/
package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PARTY SUMMARIES
// =============================================================================

type PartySummary struct {
	PartyID         string
	TotalCredit     decimal.Decimal
	TotalPaid       decimal.Decimal
	Remaining       decimal.Decimal
	LastPaymentDate Date
	CreditCount     int
	PaymentCount    int
}

// Active reports whether the party has any credit or payment rows.
func (s PartySummary) Active() bool { return s.CreditCount+s.PaymentCount > 0 }

// SummarizeParty totals the rows belonging to partyID. Rows for other
// parties are ignored.
func SummarizeParty(partyID string, credits []Credit, payments []Payment) PartySummary {
	s := PartySummary{PartyID: partyID, TotalCredit: decimal.Zero, TotalPaid: decimal.Zero}
	for _, c := range credits {
		if c.PartyID != partyID {
			continue
		}
		s.TotalCredit = s.TotalCredit.Add(c.Amount)
		s.CreditCount++
	}
	for _, p := range payments {
		if p.PartyID != partyID {
			continue
		}
		s.TotalPaid = s.TotalPaid.Add(p.Amount)
		s.PaymentCount++
		s.LastPaymentDate = MaxDate(s.LastPaymentDate, p.PaymentDate)
	}
	s.Remaining = s.TotalCredit.Sub(s.TotalPaid)
	return s
}

// SummarizeParties returns one summary per party that has rows, ordered by
// party id.
func SummarizeParties(credits []Credit, payments []Payment) []PartySummary {
	ids := make(map[string]struct{})
	for _, c := range credits {
		ids[c.PartyID] = struct{}{}
	}
	for _, p := range payments {
		ids[p.PartyID] = struct{}{}
	}

	byParty := make(map[string]*partyRows, len(ids))
	for id := range ids {
		byParty[id] = &partyRows{}
	}
	for _, c := range credits {
		byParty[c.PartyID].credits = append(byParty[c.PartyID].credits, c)
	}
	for _, p := range payments {
		byParty[p.PartyID].payments = append(byParty[p.PartyID].payments, p)
	}

	out := make([]PartySummary, 0, len(byParty))
	for id, rows := range byParty {
		out = append(out, SummarizeParty(id, rows.credits, rows.payments))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PartyID < out[j].PartyID })
	return out
}

type partyRows struct {
	credits  []Credit
	payments []Payment
}

// =============================================================================
// MARKET SUMMARY
// =============================================================================

type MarketSummary struct {
	TotalCredit decimal.Decimal
	TotalPaid   decimal.Decimal
	// Outstanding is Σ remaining over active parties, signed.
	Outstanding decimal.Decimal
	// OutstandingPositive ignores parties that were overpaid.
	OutstandingPositive decimal.Decimal
	PartyCount          int
	Recovery            Rate
}

// SummarizeMarket aggregates party summaries. Parties with no rows are
// excluded from both the totals and the count.
func SummarizeMarket(summaries []PartySummary) MarketSummary {
	m := MarketSummary{
		TotalCredit:         decimal.Zero,
		TotalPaid:           decimal.Zero,
		Outstanding:         decimal.Zero,
		OutstandingPositive: decimal.Zero,
	}
	for _, s := range summaries {
		if !s.Active() {
			continue
		}
		m.PartyCount++
		m.TotalCredit = m.TotalCredit.Add(s.TotalCredit)
		m.TotalPaid = m.TotalPaid.Add(s.TotalPaid)
		m.Outstanding = m.Outstanding.Add(s.Remaining)
		if s.Remaining.IsPositive() {
			m.OutstandingPositive = m.OutstandingPositive.Add(s.Remaining)
		}
	}
	m.Recovery = RecoveryRate(m.TotalPaid, m.TotalCredit)
	return m
}

// =============================================================================
// RECOVERY RATE
// =============================================================================

var hundred = decimal.NewFromInt(100)

// Rate is a recovery ratio. Ratio and Percent are unclamped and may exceed 1
// (100%) when parties were overpaid. DisplayPercent is clamped to [0, 100].
type Rate struct {
	Ratio          decimal.Decimal
	Percent        decimal.Decimal
	DisplayPercent decimal.Decimal
}

// RecoveryRate returns recovered / totalCredit. Zero credit yields a zero
// rate.
func RecoveryRate(recovered, totalCredit decimal.Decimal) Rate {
	if !totalCredit.IsPositive() {
		return Rate{Ratio: decimal.Zero, Percent: decimal.Zero, DisplayPercent: decimal.Zero}
	}
	ratio := recovered.DivRound(totalCredit, 6)
	percent := ratio.Mul(hundred).Round(2)

	display := percent
	if display.IsNegative() {
		display = decimal.Zero
	}
	if display.GreaterThan(hundred) {
		display = hundred
	}
	return Rate{Ratio: ratio, Percent: percent, DisplayPercent: display}
}

// =============================================================================
// ROLLUPS
// =============================================================================

type GroupKey string

const (
	GroupByTerritory GroupKey = "territory"
	GroupByOfficer   GroupKey = "officer"
)

func (k GroupKey) Valid() bool { return k == GroupByTerritory || k == GroupByOfficer }

// Unassigned labels parties with no territory or officer.
const Unassigned = "unassigned"

type GroupTotal struct {
	Key         string
	PartyCount  int
	TotalCredit decimal.Decimal
	TotalPaid   decimal.Decimal
	Remaining   decimal.Decimal
	Recovery    Rate
}

// Rollup groups active party summaries by territory or recovery officer.
// Parties missing from parties, or with an empty key, fall under Unassigned.
func Rollup(summaries []PartySummary, parties []Party, key GroupKey) []GroupTotal {
	index := make(map[string]Party, len(parties))
	for _, p := range parties {
		index[p.ID] = p
	}

	groups := make(map[string]*GroupTotal)
	for _, s := range summaries {
		if !s.Active() {
			continue
		}
		label := groupLabel(index[s.PartyID], key)
		g, ok := groups[label]
		if !ok {
			g = &GroupTotal{Key: label, TotalCredit: decimal.Zero, TotalPaid: decimal.Zero, Remaining: decimal.Zero}
			groups[label] = g
		}
		g.PartyCount++
		g.TotalCredit = g.TotalCredit.Add(s.TotalCredit)
		g.TotalPaid = g.TotalPaid.Add(s.TotalPaid)
		g.Remaining = g.Remaining.Add(s.Remaining)
	}

	out := make([]GroupTotal, 0, len(groups))
	for _, g := range groups {
		g.Recovery = RecoveryRate(g.TotalPaid, g.TotalCredit)
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func groupLabel(p Party, key GroupKey) string {
	var label string
	switch key {
	case GroupByTerritory:
		label = p.Territory
	case GroupByOfficer:
		label = p.OfficerID
	}
	if label == "" {
		return Unassigned
	}
	return label
}

// =============================================================================
// CASH DRIFT
// =============================================================================

type DriftKind string

const (
	DriftMissing        DriftKind = "missing"
	DriftAmountMismatch DriftKind = "amount_mismatch"
	DriftOrphaned       DriftKind = "orphaned"
)

// CashDrift is one disagreement between a credit or payment row and the
// cash journal. Expected is the row amount (zero for orphans); Mirrored is
// the sum of cash rows referencing it.
type CashDrift struct {
	Kind          DriftKind
	ReferenceType string
	ReferenceID   string
	PartyID       string
	Expected      decimal.Decimal
	Mirrored      decimal.Decimal
}

type DriftOptions struct {
	// SkipSupplierCredits ignores supplier credits, for journals written
	// while supplier credits did not post cash.
	SkipSupplierCredits bool
}

type mirrorKey struct {
	refType string
	refID   string
}

// DetectCashDrift compares credit and payment rows with the cash rows that
// mirror them. Results list credits, then payments, then orphans.
func DetectCashDrift(credits []Credit, payments []Payment, cash []CashTransaction, opts DriftOptions) []CashDrift {
	tracked := map[string]bool{
		string(CashDealerCredit):    true,
		string(CashDealerPayment):   true,
		string(CashSupplierPayment): true,
		string(CashSupplierCredit):  !opts.SkipSupplierCredits,
	}

	mirrored := make(map[mirrorKey]decimal.Decimal)
	for _, tx := range cash {
		if !tracked[tx.ReferenceType] || tx.ReferenceID == "" {
			continue
		}
		k := mirrorKey{tx.ReferenceType, tx.ReferenceID}
		mirrored[k] = mirrored[k].Add(tx.Amount)
	}

	var drifts []CashDrift
	seen := make(map[mirrorKey]bool)
	check := func(refType, refID, partyID string, amount decimal.Decimal) {
		if !tracked[refType] {
			return
		}
		k := mirrorKey{refType, refID}
		seen[k] = true
		got, ok := mirrored[k]
		switch {
		case !ok:
			drifts = append(drifts, CashDrift{Kind: DriftMissing, ReferenceType: refType, ReferenceID: refID,
				PartyID: partyID, Expected: amount, Mirrored: decimal.Zero})
		case !got.Equal(amount):
			drifts = append(drifts, CashDrift{Kind: DriftAmountMismatch, ReferenceType: refType, ReferenceID: refID,
				PartyID: partyID, Expected: amount, Mirrored: got})
		}
	}

	for _, c := range credits {
		check(string(creditCashType(c.Kind)), c.ID, c.PartyID, c.Amount)
	}
	for _, p := range payments {
		check(string(paymentCashType(p.Kind)), p.ID, p.PartyID, p.Amount)
	}

	var orphans []CashDrift
	for k, amount := range mirrored {
		if seen[k] {
			continue
		}
		orphans = append(orphans, CashDrift{Kind: DriftOrphaned, ReferenceType: k.refType, ReferenceID: k.refID,
			Expected: decimal.Zero, Mirrored: amount})
	}
	sort.Slice(orphans, func(i, j int) bool {
		if orphans[i].ReferenceType != orphans[j].ReferenceType {
			return orphans[i].ReferenceType < orphans[j].ReferenceType
		}
		return orphans[i].ReferenceID < orphans[j].ReferenceID
	})
	return append(drifts, orphans...)
}
