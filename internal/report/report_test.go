package report

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaj441/InfinitySoul-sub005/internal/correlation"
	"github.com/aaj441/InfinitySoul-sub005/internal/domain"
)

func reportFixture() Params {
	tokens := []domain.Token{
		{ID: "T1", Industry: "energy", Geography: "emea", RiskElements: []string{"grid"},
			CorrelationTier: domain.TierHigh, LiquidityTier: domain.LiquidityHigh,
			NotionalValue: 1000, ExpectedLoss: 100, PremiumRate: 0.1},
		{ID: "T2", Industry: "energy", Geography: "emea", RiskElements: []string{"grid"},
			CorrelationTier: domain.TierHigh, LiquidityTier: domain.LiquidityMedium,
			NotionalValue: 500, ExpectedLoss: 50, PremiumRate: 0.1},
		{ID: "T3", Industry: "marine", Geography: "apac", RiskElements: []string{"piracy", "war"},
			CorrelationTier: domain.TierLow, LiquidityTier: domain.LiquidityLow,
			NotionalValue: 250, ExpectedLoss: 25, PremiumRate: 0.2},
	}
	holders := []domain.Holder{
		{ID: "H1", Type: "reinsurer", AvailableCapacity: 1200, RiskAppetite: 0.1},
		{ID: "H2", Type: "fund", AvailableCapacity: 600, RiskAppetite: 0.1,
			ExcludedRiskElements: []string{"piracy"}},
		{ID: "H3", Type: "bank", AvailableCapacity: 400, RiskAppetite: 0.05},
	}
	best := &domain.Chromosome{
		ID: "best",
		Genes: []domain.Gene{
			{TokenID: "T1", HolderID: "H1", AllocationWeight: 0.8},
			{TokenID: "T2", HolderID: "H1", AllocationWeight: 0.8},
			{TokenID: "T3", HolderID: "H2", AllocationWeight: 0.8},
		},
		Fitness: domain.Fitness{Overall: 55.5, Violations: 3, Feasible: false, Evaluated: true},
	}
	return Params{
		Tokens:           tokens,
		Holders:          holders,
		Best:             best,
		Matrix:           correlation.Build(tokens),
		Seed:             42,
		Generations:      100,
		MaxConcentration: 0.5,
		CorrelationLimit: 0.7,
	}
}

func TestBuildTotalsAndHolders(t *testing.T) {
	rep := Build(reportFixture())

	assert.True(t, rep.Totals.TotalNotional.Equal(decimal.RequireFromString("1750")),
		"got %s", rep.Totals.TotalNotional)
	assert.True(t, rep.Totals.TotalExpectedLoss.Equal(decimal.RequireFromString("175")),
		"got %s", rep.Totals.TotalExpectedLoss)
	assert.True(t, rep.Totals.TotalPremium.Equal(decimal.RequireFromString("200")),
		"got %s", rep.Totals.TotalPremium)
	assert.Equal(t, 3, rep.Totals.TokenCount)
	assert.Equal(t, 3, rep.Totals.HolderCount)
	assert.Equal(t, 2, rep.Totals.AssignedHolderCount)

	require.Len(t, rep.Holders, 2)
	// sorted by notional descending
	assert.Equal(t, "H1", rep.Holders[0].HolderID)
	assert.Equal(t, "H2", rep.Holders[1].HolderID)

	h1 := rep.Holders[0]
	assert.Equal(t, []string{"T1", "T2"}, h1.TokenIDs)
	assert.Equal(t, 2, h1.TokenCount)
	assert.InDelta(t, 1.25, h1.CapacityUtilization, 1e-9, "1500 notional on 1200 capacity")
	assert.InDelta(t, 0.1, h1.ActualRiskRatio, 1e-9)
	assert.Equal(t, 2, h1.ByCorrelationTier["high"])
	assert.True(t, h1.ByIndustry["energy"].Equal(decimal.RequireFromString("1500")))
	assert.True(t, h1.ByRiskElement["grid"].Equal(decimal.RequireFromString("1500")),
		"got %s", h1.ByRiskElement["grid"])
	assert.Empty(t, h1.ExclusionBreaches)

	h2 := rep.Holders[1]
	assert.Equal(t, []string{"T3"}, h2.TokenIDs)
	// T3 carries two risk elements; its notional counts under both
	assert.True(t, h2.ByRiskElement["piracy"].Equal(decimal.RequireFromString("250")))
	assert.True(t, h2.ByRiskElement["war"].Equal(decimal.RequireFromString("250")))
	assert.Equal(t, []string{"T3"}, h2.ExclusionBreaches, "piracy is excluded by H2 but assigned anyway")
}

func TestBuildSystemRisk(t *testing.T) {
	p := reportFixture()
	rep := Build(p)

	// T1/T2 are twins: corr 0.95 > 0.7, co-held by H1
	assert.Equal(t, 1, rep.SystemRisk.CorrelatedPairs)
	// H1 holds 1500/1750 > 0.5 cap
	assert.Equal(t, 1, rep.SystemRisk.OverConcentratedHolders)
	// H1 carries 1500 against 1200 capacity
	assert.Equal(t, 1, rep.SystemRisk.OverCapacityHolders)
	assert.InDelta(t, 1500.0/1750.0, rep.SystemRisk.MaxHolderShare, 1e-9)
	assert.Equal(t, []string{"H3"}, rep.SystemRisk.UnassignedHolders)
	assert.InDelta(t, p.Matrix.AveragePairwise(), rep.SystemRisk.AvgPairwiseCorrelation, 1e-12)

	// the three families sum to the fitness violation count
	total := rep.SystemRisk.OverConcentratedHolders +
		rep.SystemRisk.OverCapacityHolders +
		rep.SystemRisk.CorrelatedPairs
	assert.Equal(t, rep.Fitness.Violations, total)
}

func TestWriteJSONRoundTrips(t *testing.T) {
	rep := Build(reportFixture())

	var buf bytes.Buffer
	require.NoError(t, rep.WriteJSON(&buf))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Contains(t, decoded, "fitness")
	assert.Contains(t, decoded, "totals")
	assert.Contains(t, decoded, "holders")
	assert.Contains(t, decoded, "system_risk")

	fitness, ok := decoded["fitness"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 55.5, fitness["overall"], 1e-9)
}
