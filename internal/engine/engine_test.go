package engine

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaj441/InfinitySoul-sub005/internal/domain"
	"github.com/aaj441/InfinitySoul-sub005/internal/telemetry"
)

func engineUniverse() ([]domain.Token, []domain.Holder) {
	tokens := []domain.Token{
		{ID: "T1", Industry: "energy", Geography: "emea", RiskElements: []string{"grid"},
			CorrelationTier: domain.TierHigh, LiquidityTier: domain.LiquidityHigh,
			NotionalValue: 100, ExpectedLoss: 10, PremiumRate: 0.12},
		{ID: "T2", Industry: "energy", Geography: "amer", RiskElements: []string{"wildfire"},
			CorrelationTier: domain.TierMedium, LiquidityTier: domain.LiquidityMedium,
			NotionalValue: 150, ExpectedLoss: 12, PremiumRate: 0.10},
		{ID: "T3", Industry: "marine", Geography: "apac", RiskElements: []string{"piracy"},
			CorrelationTier: domain.TierLow, LiquidityTier: domain.LiquidityLow,
			NotionalValue: 80, ExpectedLoss: 6, PremiumRate: 0.09},
		{ID: "T4", Industry: "cyber", Geography: "amer", RiskElements: []string{"ransomware", "outage"},
			CorrelationTier: domain.TierSystemic, LiquidityTier: domain.LiquidityIlliquid,
			NotionalValue: 120, ExpectedLoss: 30, PremiumRate: 0.25},
		{ID: "T5", Industry: "agri", Geography: "emea", RiskElements: []string{"drought"},
			CorrelationTier: domain.TierLow, LiquidityTier: domain.LiquidityHigh,
			NotionalValue: 90, ExpectedLoss: 8, PremiumRate: 0.08},
		{ID: "T6", Industry: "aviation", Geography: "apac", RiskElements: []string{"grounding"},
			CorrelationTier: domain.TierMedium, LiquidityTier: domain.LiquidityMedium,
			NotionalValue: 110, ExpectedLoss: 9, PremiumRate: 0.11},
		{ID: "T7", Industry: "energy", Geography: "emea", RiskElements: []string{"grid", "storm"},
			CorrelationTier: domain.TierHigh, LiquidityTier: domain.LiquidityMedium,
			NotionalValue: 70, ExpectedLoss: 7, PremiumRate: 0.13},
		{ID: "T8", Industry: "property", Geography: "amer", RiskElements: []string{"quake"},
			CorrelationTier: domain.TierUncorrelated, LiquidityTier: domain.LiquidityHigh,
			NotionalValue: 60, ExpectedLoss: 4, PremiumRate: 0.07},
	}
	holders := []domain.Holder{
		{ID: "H1", Type: "reinsurer", AvailableCapacity: 400, RiskAppetite: 0.10},
		{ID: "H2", Type: "fund", AvailableCapacity: 350, RiskAppetite: 0.08},
		{ID: "H3", Type: "bank", AvailableCapacity: 300, RiskAppetite: 0.12,
			ExcludedRiskElements: []string{"ransomware"}},
		{ID: "H4", Type: "insurer", AvailableCapacity: 250, RiskAppetite: 0.09},
	}
	return tokens, holders
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PopulationSize = 20
	cfg.EliteCount = 3
	cfg.MaxGenerations = 15
	cfg.StagnationLimit = 5
	cfg.Seed = 1234
	cfg.MaxConcentrationPerHolder = 0.5
	return cfg
}

func newTestEngine(t *testing.T, mutate func(*Config)) *Engine {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	eng, err := New(cfg)
	require.NoError(t, err)
	return eng
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PopulationSize = 0
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestInitializeRejectsBadUniverse(t *testing.T) {
	eng := newTestEngine(t, nil)
	tokens, holders := engineUniverse()

	assert.Error(t, eng.Initialize(nil, holders), "no tokens")
	assert.Error(t, eng.Initialize(tokens, nil), "no holders")

	dup := append([]domain.Token{}, tokens...)
	dup[1].ID = dup[0].ID
	assert.Error(t, eng.Initialize(dup, holders), "duplicate token ids")
}

func TestEvolveRequiresInitialize(t *testing.T) {
	eng := newTestEngine(t, nil)
	_, err := eng.Evolve(context.Background())
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestAccessorsRequireEvolve(t *testing.T) {
	eng := newTestEngine(t, nil)
	tokens, holders := engineUniverse()
	require.NoError(t, eng.Initialize(tokens, holders))

	_, err := eng.OptimalAllocation()
	assert.ErrorIs(t, err, ErrNoEvolutionRun)
	_, err = eng.GenerateReport()
	assert.ErrorIs(t, err, ErrNoEvolutionRun)
}

func TestEvolveRunsFullGenerationBudget(t *testing.T) {
	eng := newTestEngine(t, func(c *Config) { c.ConvergenceThreshold = 0 })
	tokens, holders := engineUniverse()
	require.NoError(t, eng.Initialize(tokens, holders))

	res, err := eng.Evolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 15, res.GenerationsRun, "the generation budget is fixed, never cut short")
	require.Len(t, res.History, 15)
	for i, st := range res.History {
		assert.Equal(t, i+1, st.Generation)
		assert.False(t, st.Restarted, "zero threshold never stagnates")
	}
	assert.Len(t, res.FinalPopulation, 20, "population size stays constant")
	assert.Equal(t, int64(1234), res.Seed)
	assert.Greater(t, res.Elapsed, time.Duration(0))
}

func TestEvolveHistoryIsMonotone(t *testing.T) {
	eng := newTestEngine(t, nil)
	tokens, holders := engineUniverse()
	require.NoError(t, eng.Initialize(tokens, holders))

	res, err := eng.Evolve(context.Background())
	require.NoError(t, err)

	prev := 0.0
	for _, st := range res.History {
		assert.GreaterOrEqual(t, st.BestFitness, prev,
			"recorded best fitness must never decrease (generation %d)", st.Generation)
		prev = st.BestFitness
	}
	assert.Equal(t, prev, res.Best.Fitness.Overall,
		"final history entry matches the returned best")
}

func TestEvolveDeterministicAcrossRunsAndWorkers(t *testing.T) {
	tokens, holders := engineUniverse()

	run := func(workers int) *Result {
		eng := newTestEngine(t, func(c *Config) { c.EvalWorkers = workers })
		require.NoError(t, eng.Initialize(tokens, holders))
		res, err := eng.Evolve(context.Background())
		require.NoError(t, err)
		return res
	}

	serial := run(1)
	again := run(1)
	parallel := run(4)

	assert.Equal(t, serial.Best.Genes, again.Best.Genes, "same seed must reproduce the best genes")
	assert.Equal(t, serial.History, again.History, "same seed must reproduce the history")
	assert.Equal(t, serial.Best.Genes, parallel.Best.Genes, "worker count must not change results")
	assert.Equal(t, serial.History, parallel.History)
}

func TestReinitializeResetsRunState(t *testing.T) {
	eng := newTestEngine(t, nil)
	tokens, holders := engineUniverse()

	require.NoError(t, eng.Initialize(tokens, holders))
	first, err := eng.Evolve(context.Background())
	require.NoError(t, err)

	require.NoError(t, eng.Initialize(tokens, holders))
	_, err = eng.OptimalAllocation()
	assert.ErrorIs(t, err, ErrNoEvolutionRun, "re-initialization clears the last result")

	second, err := eng.Evolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.Best.Genes, second.Best.Genes,
		"re-initialization restarts the RNG stream, reproducing the run")
	assert.Equal(t, first.History, second.History)
}

func TestEvolveZeroGenerations(t *testing.T) {
	eng := newTestEngine(t, func(c *Config) { c.MaxGenerations = 0 })
	tokens, holders := engineUniverse()
	require.NoError(t, eng.Initialize(tokens, holders))

	res, err := eng.Evolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, res.GenerationsRun)
	assert.Empty(t, res.History)
	require.NotNil(t, res.Best)
	assert.True(t, res.Best.Fitness.Evaluated, "initial population best is returned as-is")
	assert.Len(t, res.FinalPopulation, 20)
}

func TestEvolveHonorsContextCancellation(t *testing.T) {
	eng := newTestEngine(t, nil)
	tokens, holders := engineUniverse()
	require.NoError(t, eng.Initialize(tokens, holders))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := eng.Evolve(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvolveFeasibleOnRoomyBook(t *testing.T) {
	// either holder can carry the whole book, and no pair correlates above
	// the limit, so every allocation is violation-free
	tokens := []domain.Token{
		{ID: "A", Industry: "energy", Geography: "emea", CorrelationTier: domain.TierLow,
			LiquidityTier: domain.LiquidityHigh, NotionalValue: 100, ExpectedLoss: 8, PremiumRate: 0.1},
		{ID: "B", Industry: "energy", Geography: "amer", CorrelationTier: domain.TierLow,
			LiquidityTier: domain.LiquidityHigh, NotionalValue: 100, ExpectedLoss: 8, PremiumRate: 0.1},
		{ID: "C", Industry: "marine", Geography: "apac", CorrelationTier: domain.TierUncorrelated,
			LiquidityTier: domain.LiquidityHigh, NotionalValue: 100, ExpectedLoss: 8, PremiumRate: 0.1},
	}
	holders := []domain.Holder{
		{ID: "H1", AvailableCapacity: 300, RiskAppetite: 0.08},
		{ID: "H2", AvailableCapacity: 300, RiskAppetite: 0.08},
	}
	eng := newTestEngine(t, func(c *Config) {
		c.PopulationSize = 10
		c.EliteCount = 1
		c.MaxGenerations = 5
		c.MaxConcentrationPerHolder = 1.0
	})
	require.NoError(t, eng.Initialize(tokens, holders))

	res, err := eng.Evolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, res.GenerationsRun)
	assert.True(t, res.BestFeasible)
	assert.Zero(t, res.Best.Fitness.Violations)

	covered := make(map[string]bool, len(tokens))
	for _, g := range res.Best.Genes {
		covered[g.TokenID] = true
	}
	assert.Equal(t, map[string]bool{"A": true, "B": true, "C": true}, covered)

	for _, st := range res.History {
		assert.Equal(t, 10, st.FeasibleCount, "generation %d", st.Generation)
	}
}

func TestStagnationRestartKeepsBestAndFlagsHistory(t *testing.T) {
	reg := prometheus.NewRegistry()
	eng := newTestEngine(t, func(c *Config) {
		c.ConvergenceThreshold = 1000 // every generation counts as stagnant
		c.StagnationLimit = 2
		c.MaxGenerations = 6
	})
	eng.SetMetrics(telemetry.NewMetrics(reg))

	tokens, holders := engineUniverse()
	require.NoError(t, eng.Initialize(tokens, holders))

	res, err := eng.Evolve(context.Background())
	require.NoError(t, err)

	var restarts []int
	for _, st := range res.History {
		if st.Restarted {
			restarts = append(restarts, st.Generation)
		}
	}
	assert.Equal(t, []int{2, 4, 6}, restarts, "restart every stagnationLimit generations")

	prev := 0.0
	for _, st := range res.History {
		assert.GreaterOrEqual(t, st.BestFitness, prev, "restarts never lose the best-ever")
		prev = st.BestFitness
	}

	restartCount, err := telemetry.GatherValue(reg, "riskalloc_stagnation_restarts_total")
	require.NoError(t, err)
	assert.Equal(t, 3.0, restartCount)
}

func TestEvolveFeedsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	eng := newTestEngine(t, func(c *Config) { c.ConvergenceThreshold = 0 })
	eng.SetMetrics(telemetry.NewMetrics(reg))

	tokens, holders := engineUniverse()
	require.NoError(t, eng.Initialize(tokens, holders))
	_, err := eng.Evolve(context.Background())
	require.NoError(t, err)

	runs, err := telemetry.GatherValue(reg, "riskalloc_evolution_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1.0, runs)

	gens, err := telemetry.GatherValue(reg, "riskalloc_generations_total")
	require.NoError(t, err)
	assert.Equal(t, 15.0, gens)

	// initial population plus the bred remainder of every generation
	evals, err := telemetry.GatherValue(reg, "riskalloc_evaluations_total")
	require.NoError(t, err)
	assert.Equal(t, float64(20+15*(20-3)), evals)
}

func TestGenerationHookSeesEveryGeneration(t *testing.T) {
	eng := newTestEngine(t, nil)
	var seen []int
	eng.SetGenerationHook(func(st GenerationStats) {
		seen = append(seen, st.Generation)
	})

	tokens, holders := engineUniverse()
	require.NoError(t, eng.Initialize(tokens, holders))
	_, err := eng.Evolve(context.Background())
	require.NoError(t, err)

	require.Len(t, seen, 15)
	assert.Equal(t, 1, seen[0])
	assert.Equal(t, 15, seen[14])
}

func TestChromosomesStayWellFormed(t *testing.T) {
	eng := newTestEngine(t, nil)
	tokens, holders := engineUniverse()
	require.NoError(t, eng.Initialize(tokens, holders))

	res, err := eng.Evolve(context.Background())
	require.NoError(t, err)

	holderIDs := make(map[string]bool, len(holders))
	for _, h := range holders {
		holderIDs[h.ID] = true
	}
	for _, ch := range append(res.FinalPopulation, res.Best) {
		require.Len(t, ch.Genes, len(tokens), "one gene per token")
		assert.True(t, ch.Fitness.Evaluated)
		for i, g := range ch.Genes {
			assert.Equal(t, tokens[i].ID, g.TokenID, "gene order matches the universe")
			assert.True(t, holderIDs[g.HolderID])
			assert.GreaterOrEqual(t, g.AllocationWeight, 0.5)
			assert.Less(t, g.AllocationWeight, 1.0)
		}
	}
}

func TestOptimalAllocationMatchesBestChromosome(t *testing.T) {
	eng := newTestEngine(t, nil)
	tokens, holders := engineUniverse()
	require.NoError(t, eng.Initialize(tokens, holders))

	res, err := eng.Evolve(context.Background())
	require.NoError(t, err)

	alloc, err := eng.OptimalAllocation()
	require.NoError(t, err)

	seen := make(map[string]string)
	for holderID, toks := range alloc {
		for _, tok := range toks {
			seen[tok.ID] = holderID
		}
	}
	require.Len(t, seen, len(tokens), "every token appears exactly once")
	for _, g := range res.Best.Genes {
		assert.Equal(t, g.HolderID, seen[g.TokenID])
	}
}

func TestGenerateReportAfterEvolve(t *testing.T) {
	eng := newTestEngine(t, nil)
	tokens, holders := engineUniverse()
	require.NoError(t, eng.Initialize(tokens, holders))

	res, err := eng.Evolve(context.Background())
	require.NoError(t, err)

	rep, err := eng.GenerateReport()
	require.NoError(t, err)

	assert.Equal(t, int64(1234), rep.Seed)
	assert.Equal(t, 15, rep.Generations)
	assert.Equal(t, len(tokens), rep.Totals.TokenCount)
	assert.Equal(t, len(holders), rep.Totals.HolderCount)
	assert.Equal(t, res.Best.Fitness.Overall, rep.Fitness.Overall)
	assert.Equal(t, res.Best.Fitness.Violations, rep.Fitness.Violations)

	// the report's violation families must agree with the fitness count
	total := rep.SystemRisk.OverConcentratedHolders +
		rep.SystemRisk.OverCapacityHolders +
		rep.SystemRisk.CorrelatedPairs
	assert.Equal(t, rep.Fitness.Violations, total)
}
