package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShahFaisal5714/agro-crm-nexus/ledger"
)

// =============================================================================
// SUMMARIES
// =============================================================================

func TestSummarizeParty_IgnoresOtherParties(t *testing.T) {
	credits := []ledger.Credit{
		{PartyID: "a", Amount: amt("100")},
		{PartyID: "b", Amount: amt("999")},
	}
	payments := []ledger.Payment{
		{PartyID: "a", Amount: amt("30"), PaymentDate: ledger.MustDate("2024-02-01")},
		{PartyID: "a", Amount: amt("20"), PaymentDate: ledger.MustDate("2024-01-01")},
	}

	s := ledger.SummarizeParty("a", credits, payments)

	assertAmount(t, "100", s.TotalCredit)
	assertAmount(t, "50", s.TotalPaid)
	assertAmount(t, "50", s.Remaining)
	assert.Equal(t, "2024-02-01", s.LastPaymentDate.String())
}

func TestSummarizeMarket_SkipsZeroActivity(t *testing.T) {
	summaries := []ledger.PartySummary{
		ledger.SummarizeParty("a", []ledger.Credit{{PartyID: "a", Amount: amt("100")}}, nil),
		ledger.SummarizeParty("idle", nil, nil),
		ledger.SummarizeParty("over", nil, []ledger.Payment{{PartyID: "over", Amount: amt("40")}}),
	}

	m := ledger.SummarizeMarket(summaries)

	assert.Equal(t, 2, m.PartyCount)
	assertAmount(t, "60", m.Outstanding)
	assertAmount(t, "100", m.OutstandingPositive)
}

func TestSummarizeParties_OnePerParty(t *testing.T) {
	credits := []ledger.Credit{{PartyID: "b", Amount: amt("1")}, {PartyID: "a", Amount: amt("2")}}
	payments := []ledger.Payment{{PartyID: "c", Amount: amt("3")}}

	out := ledger.SummarizeParties(credits, payments)

	require.Len(t, out, 3)
	assert.Equal(t, "a", out[0].PartyID)
	assert.Equal(t, "b", out[1].PartyID)
	assertAmount(t, "-3", out[2].Remaining)
}

// =============================================================================
// RECOVERY RATE
// =============================================================================

func TestRecoveryRate(t *testing.T) {
	r := ledger.RecoveryRate(amt("250"), amt("1000"))
	assertAmount(t, "0.25", r.Ratio)
	assertAmount(t, "25", r.Percent)
	assertAmount(t, "25", r.DisplayPercent)

	over := ledger.RecoveryRate(amt("1500"), amt("1000"))
	assertAmount(t, "150", over.Percent, "raw ratio is not clamped")
	assertAmount(t, "100", over.DisplayPercent)

	none := ledger.RecoveryRate(amt("500"), amt("0"))
	assertAmount(t, "0", none.Percent)
	assertAmount(t, "0", none.DisplayPercent)
}

// =============================================================================
// ROLLUPS
// =============================================================================

func TestRollup_ByOfficer(t *testing.T) {
	parties := []ledger.Party{
		{ID: "a", OfficerID: "off-1"},
		{ID: "b", OfficerID: "off-1"},
		{ID: "c", OfficerID: "off-2"},
	}
	summaries := []ledger.PartySummary{
		ledger.SummarizeParty("a", []ledger.Credit{{PartyID: "a", Amount: amt("100")}}, nil),
		ledger.SummarizeParty("b", []ledger.Credit{{PartyID: "b", Amount: amt("100")}},
			[]ledger.Payment{{PartyID: "b", Amount: amt("100")}}),
		ledger.SummarizeParty("c", []ledger.Credit{{PartyID: "c", Amount: amt("10")}}, nil),
		ledger.SummarizeParty("ghost", []ledger.Credit{{PartyID: "ghost", Amount: amt("5")}}, nil),
	}

	groups := ledger.Rollup(summaries, parties, ledger.GroupByOfficer)

	require.Len(t, groups, 3)
	assert.Equal(t, "off-1", groups[0].Key)
	assertAmount(t, "100", groups[0].Remaining)
	assertAmount(t, "50", groups[0].Recovery.Percent)
	assert.Equal(t, "off-2", groups[1].Key)
	assert.Equal(t, ledger.Unassigned, groups[2].Key, "unknown parties are unassigned")
}

// =============================================================================
// CASH DRIFT
// =============================================================================

func TestDetectCashDrift(t *testing.T) {
	credits := []ledger.Credit{
		{ID: "c-ok", Kind: ledger.PartyDealer, PartyID: "d", Amount: amt("100")},
		{ID: "c-missing", Kind: ledger.PartyDealer, PartyID: "d", Amount: amt("50")},
		{ID: "c-supplier", Kind: ledger.PartySupplier, PartyID: "s", Amount: amt("70")},
	}
	payments := []ledger.Payment{
		{ID: "p-edited", Kind: ledger.PartyDealer, PartyID: "d", Amount: amt("80")},
	}
	cash := []ledger.CashTransaction{
		{Type: ledger.CashDealerCredit, Amount: amt("100"), ReferenceID: "c-ok", ReferenceType: "dealer_credit"},
		{Type: ledger.CashDealerPayment, Amount: amt("60"), ReferenceID: "p-edited", ReferenceType: "dealer_payment"},
		{Type: ledger.CashDealerCredit, Amount: amt("30"), ReferenceID: "c-gone", ReferenceType: "dealer_credit"},
		{Type: ledger.CashManualAdd, Amount: amt("1000")},
	}

	drift := ledger.DetectCashDrift(credits, payments, cash, ledger.DriftOptions{})

	require.Len(t, drift, 4)
	assert.Equal(t, ledger.DriftMissing, drift[0].Kind)
	assert.Equal(t, "c-missing", drift[0].ReferenceID)
	assert.Equal(t, ledger.DriftMissing, drift[1].Kind)
	assert.Equal(t, "c-supplier", drift[1].ReferenceID)
	assert.Equal(t, ledger.DriftAmountMismatch, drift[2].Kind)
	assertAmount(t, "60", drift[2].Mirrored)
	assert.Equal(t, ledger.DriftOrphaned, drift[3].Kind)
	assert.Equal(t, "c-gone", drift[3].ReferenceID)

	legacy := ledger.DetectCashDrift(credits, payments, cash, ledger.DriftOptions{SkipSupplierCredits: true})
	assert.Len(t, legacy, 3)
}
