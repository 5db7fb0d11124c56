package engine

import (
	"math"

	"github.com/aaj441/InfinitySoul-sub005/internal/correlation"
	"github.com/aaj441/InfinitySoul-sub005/internal/domain"
)

// violationPenalty is subtracted from the overall score per constraint
// violation, after the component sum is scaled to [0,100].
const violationPenalty = 10.0

// Evaluator scores chromosomes against a fixed universe. Evaluation is pure:
// no randomness, no shared mutable state, so it is safe to fan out across
// workers and results are identical for any worker count.
type Evaluator struct {
	tokens  []domain.Token
	holders []domain.Holder
	matrix  *correlation.Matrix
	weights FitnessWeights

	maxConcentration float64
	correlationLimit float64

	holderIndex   map[string]int
	totalNotional float64
	totalCapacity float64
	// liquidity is scored over the whole universe, so it is the same for
	// every chromosome of a scenario
	universeLiquidity float64
}

func newEvaluator(tokens []domain.Token, holders []domain.Holder, matrix *correlation.Matrix, cfg Config) *Evaluator {
	e := &Evaluator{
		tokens:           tokens,
		holders:          holders,
		matrix:           matrix,
		weights:          cfg.Weights,
		maxConcentration: cfg.MaxConcentrationPerHolder,
		correlationLimit: cfg.CorrelationLimit,
		holderIndex:      make(map[string]int, len(holders)),
	}
	for i, h := range holders {
		e.holderIndex[h.ID] = i
		e.totalCapacity += h.AvailableCapacity
	}
	var liq float64
	for _, t := range tokens {
		e.totalNotional += t.NotionalValue
		liq += t.LiquidityTier.Score()
	}
	if len(tokens) > 0 {
		e.universeLiquidity = liq / float64(len(tokens))
	}
	return e
}

// holderLoad aggregates one holder's slice of the book.
type holderLoad struct {
	tokenIdx []int
	notional float64
	el       float64
	premium  float64
	risky    int
}

// Evaluate scores the chromosome, writes the fitness onto it, and returns it.
func (e *Evaluator) Evaluate(ch *domain.Chromosome) domain.Fitness {
	loads := make([]holderLoad, len(e.holders))
	for gi, g := range ch.Genes {
		hi, ok := e.holderIndex[g.HolderID]
		if !ok {
			continue
		}
		tok := e.tokens[gi]
		loads[hi].tokenIdx = append(loads[hi].tokenIdx, gi)
		loads[hi].notional += tok.NotionalValue
		loads[hi].el += tok.ExpectedLoss
		loads[hi].premium += tok.Premium()
		if tok.CorrelationTier.Risky() {
			loads[hi].risky++
		}
	}

	corrScore, correlatedPairs := e.scoreCorrelation(loads)

	sub := domain.SubScores{
		Diversification:          e.scoreDiversification(loads),
		CorrelationMinimization:  corrScore,
		CapacityUtilization:      e.scoreCapacityUtilization(),
		RiskReturnBalance:        e.scoreRiskReturn(loads),
		ConcentrationPenalty:     e.scoreConcentration(loads),
		TailRiskControl:          e.scoreTailRisk(loads),
		Liquidity:                e.universeLiquidity,
	}

	violations := correlatedPairs
	for hi := range loads {
		if e.totalNotional > 0 && loads[hi].notional/e.totalNotional > e.maxConcentration {
			violations++
		}
		if loads[hi].notional > e.holders[hi].AvailableCapacity {
			violations++
		}
	}

	w := e.weights
	weighted := w.Diversification*sub.Diversification +
		w.CorrelationMinimization*sub.CorrelationMinimization +
		w.CapacityUtilization*sub.CapacityUtilization +
		w.RiskReturnBalance*sub.RiskReturnBalance +
		w.ConcentrationPenalty*sub.ConcentrationPenalty +
		w.TailRiskControl*sub.TailRiskControl +
		w.Liquidity*sub.Liquidity

	fit := domain.Fitness{
		Overall:    math.Max(0, 100*weighted-violationPenalty*float64(violations)),
		SubScores:  sub,
		Violations: violations,
		Feasible:   violations == 0,
		Evaluated:  true,
	}
	ch.Fitness = fit
	return fit
}

// scoreDiversification is 1 minus the normalized Herfindahl-Hirschman index
// of holder notional shares. A single-holder universe cannot diversify and
// scores 0.
func (e *Evaluator) scoreDiversification(loads []holderLoad) float64 {
	if len(e.holders) <= 1 || e.totalNotional <= 0 {
		return 0
	}
	var hhi float64
	for hi := range loads {
		share := loads[hi].notional / e.totalNotional
		hhi += share * share
	}
	minHHI := 1.0 / float64(len(e.holders))
	normalized := (hhi - minHHI) / (1 - minHHI)
	return clamp01(1 - normalized)
}

// scoreCorrelation returns 1 minus the mean pairwise correlation across all
// co-held pairs, plus the count of pairs breaching the correlation limit.
// A book with no co-held pairs scores a perfect 1.
func (e *Evaluator) scoreCorrelation(loads []holderLoad) (float64, int) {
	var sum float64
	var pairs, breaches int
	for hi := range loads {
		idx := loads[hi].tokenIdx
		for i := 0; i < len(idx); i++ {
			for j := i + 1; j < len(idx); j++ {
				c := e.matrix.At(e.tokens[idx[i]].ID, e.tokens[idx[j]].ID)
				sum += c
				pairs++
				if c > e.correlationLimit {
					breaches++
				}
			}
		}
	}
	if pairs == 0 {
		return 1, 0
	}
	return clamp01(1 - sum/float64(pairs)), breaches
}

// scoreCapacityUtilization is total allocated notional over total capacity,
// capped at 1. Every token is always assigned, so the numerator is the whole
// universe notional.
func (e *Evaluator) scoreCapacityUtilization() float64 {
	return math.Min(1, e.totalNotional/math.Max(1, e.totalCapacity))
}

// scoreRiskReturn averages, over holders that carry tokens, an equal blend of
// premium adequacy (premium vs expected loss) and appetite match (how close
// the realized EL/notional ratio sits to the holder's target).
func (e *Evaluator) scoreRiskReturn(loads []holderLoad) float64 {
	var sum float64
	var count int
	for hi := range loads {
		if len(loads[hi].tokenIdx) == 0 {
			continue
		}
		count++
		income := math.Min(1, loads[hi].premium/math.Max(1, loads[hi].el))
		match := math.Max(0, 1-math.Abs(e.holders[hi].RiskAppetite-loads[hi].el/loads[hi].notional))
		sum += 0.5*income + 0.5*match
	}
	if count == 0 {
		return 0
	}
	return clamp01(sum / float64(count))
}

// scoreConcentration penalizes notional share above the per-holder cap at
// twice the excess, floored at zero.
func (e *Evaluator) scoreConcentration(loads []holderLoad) float64 {
	if e.totalNotional <= 0 {
		return 1
	}
	var excess float64
	for hi := range loads {
		share := loads[hi].notional / e.totalNotional
		if share > e.maxConcentration {
			excess += share - e.maxConcentration
		}
	}
	return math.Max(0, 1-2*excess)
}

// scoreTailRisk averages, over every holder, the fraction of the holder's
// book that is NOT in a risky correlation tier. An empty book scores a
// full 1.
func (e *Evaluator) scoreTailRisk(loads []holderLoad) float64 {
	if len(loads) == 0 {
		return 0
	}
	var sum float64
	for hi := range loads {
		n := len(loads[hi].tokenIdx)
		sum += 1 - float64(loads[hi].risky)/math.Max(1, float64(n))
	}
	return clamp01(sum / float64(len(loads)))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
