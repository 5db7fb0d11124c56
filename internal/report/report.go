// Package report renders the final allocation into an auditable document:
// per-holder books with money totals, and system-level risk metrics.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aaj441/InfinitySoul-sub005/internal/correlation"
	"github.com/aaj441/InfinitySoul-sub005/internal/domain"
)

// Params carries everything Build needs. Violation thresholds come along so
// the report can attribute breaches to their constraint family.
type Params struct {
	Tokens           []domain.Token
	Holders          []domain.Holder
	Best             *domain.Chromosome
	Matrix           *correlation.Matrix
	Seed             int64
	Generations      int
	MaxConcentration float64
	CorrelationLimit float64
}

// Totals are book-level money aggregates, rounded to cents.
type Totals struct {
	TotalNotional       decimal.Decimal `json:"total_notional"`
	TotalExpectedLoss   decimal.Decimal `json:"total_expected_loss"`
	TotalPremium        decimal.Decimal `json:"total_premium"`
	TokenCount          int             `json:"token_count"`
	HolderCount         int             `json:"holder_count"`
	AssignedHolderCount int             `json:"assigned_holder_count"`
}

// HolderSummary describes one holder's assigned book. Only holders that
// carry tokens appear; the rest are listed in SystemRisk.UnassignedHolders.
type HolderSummary struct {
	HolderID            string                     `json:"holder_id"`
	HolderType          string                     `json:"holder_type,omitempty"`
	TokenCount          int                        `json:"token_count"`
	TokenIDs            []string                   `json:"token_ids"`
	Notional            decimal.Decimal            `json:"notional"`
	ExpectedLoss        decimal.Decimal            `json:"expected_loss"`
	Premium             decimal.Decimal            `json:"premium"`
	CapacityUtilization float64                    `json:"capacity_utilization"`
	RiskAppetite        float64                    `json:"risk_appetite"`
	ActualRiskRatio     float64                    `json:"actual_risk_ratio"`
	ByRiskElement       map[string]decimal.Decimal `json:"by_risk_element,omitempty"`
	ByIndustry          map[string]decimal.Decimal `json:"by_industry,omitempty"`
	ByCorrelationTier   map[string]int             `json:"by_correlation_tier,omitempty"`
	ExclusionBreaches   []string                   `json:"exclusion_breaches,omitempty"`
}

// SystemRisk aggregates portfolio-wide risk signals, including the three
// violation families behind the fitness penalty.
type SystemRisk struct {
	AvgPairwiseCorrelation  float64  `json:"avg_pairwise_correlation"`
	MaxHolderShare          float64  `json:"max_holder_share"`
	OverConcentratedHolders int      `json:"over_concentrated_holders"`
	OverCapacityHolders     int      `json:"over_capacity_holders"`
	CorrelatedPairs         int      `json:"correlated_pairs"`
	UnassignedHolders       []string `json:"unassigned_holders,omitempty"`
}

// FitnessBlock mirrors the winning chromosome's scores.
type FitnessBlock struct {
	Overall    float64          `json:"overall"`
	SubScores  domain.SubScores `json:"sub_scores"`
	Violations int              `json:"violations"`
	Feasible   bool             `json:"feasible"`
}

// AllocationReport is the full document handed to operators.
type AllocationReport struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Seed        int64           `json:"seed"`
	Generations int             `json:"generations"`
	Fitness     FitnessBlock    `json:"fitness"`
	Totals      Totals          `json:"totals"`
	Holders     []HolderSummary `json:"holders"`
	SystemRisk  SystemRisk      `json:"system_risk"`
}

func money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

// Build assembles the report from the winning chromosome.
func Build(p Params) *AllocationReport {
	books := p.Best.HolderTokens(p.Tokens)

	var totalNotional, totalEL, totalPremium float64
	for _, t := range p.Tokens {
		totalNotional += t.NotionalValue
		totalEL += t.ExpectedLoss
		totalPremium += t.Premium()
	}

	summaries := make([]HolderSummary, 0, len(books))
	var unassigned []string
	var maxShare float64
	overConcentrated, overCapacity := 0, 0

	for _, h := range p.Holders {
		book, ok := books[h.ID]
		if !ok {
			unassigned = append(unassigned, h.ID)
			continue
		}

		var notional, el, premium float64
		byElement := make(map[string]float64)
		byIndustry := make(map[string]float64)
		byTier := make(map[string]int)
		var breaches []string
		for _, t := range book {
			notional += t.NotionalValue
			el += t.ExpectedLoss
			premium += t.Premium()
			// a token counts fully under each of its risk elements
			for _, e := range t.RiskElements {
				byElement[e] += t.NotionalValue
			}
			byIndustry[t.Industry] += t.NotionalValue
			byTier[string(t.CorrelationTier)]++
			if h.Excludes(t) {
				breaches = append(breaches, t.ID)
			}
		}

		share := 0.0
		if totalNotional > 0 {
			share = notional / totalNotional
		}
		if share > maxShare {
			maxShare = share
		}
		if share > p.MaxConcentration {
			overConcentrated++
		}
		if notional > h.AvailableCapacity {
			overCapacity++
		}

		utilization := 0.0
		if h.AvailableCapacity > 0 {
			utilization = notional / h.AvailableCapacity
		}
		riskRatio := 0.0
		if notional > 0 {
			riskRatio = el / notional
		}

		tokenIDs := make([]string, len(book))
		for i, t := range book {
			tokenIDs[i] = t.ID
		}
		sort.Strings(tokenIDs)
		sort.Strings(breaches)

		elementMoney := make(map[string]decimal.Decimal, len(byElement))
		for k, v := range byElement {
			elementMoney[k] = money(v)
		}
		industryMoney := make(map[string]decimal.Decimal, len(byIndustry))
		for k, v := range byIndustry {
			industryMoney[k] = money(v)
		}

		summaries = append(summaries, HolderSummary{
			HolderID:            h.ID,
			HolderType:          h.Type,
			TokenCount:          len(book),
			TokenIDs:            tokenIDs,
			Notional:            money(notional),
			ExpectedLoss:        money(el),
			Premium:             money(premium),
			CapacityUtilization: utilization,
			RiskAppetite:        h.RiskAppetite,
			ActualRiskRatio:     riskRatio,
			ByRiskElement:       elementMoney,
			ByIndustry:          industryMoney,
			ByCorrelationTier:   byTier,
			ExclusionBreaches:   breaches,
		})
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		if !summaries[i].Notional.Equal(summaries[j].Notional) {
			return summaries[i].Notional.GreaterThan(summaries[j].Notional)
		}
		return summaries[i].HolderID < summaries[j].HolderID
	})
	sort.Strings(unassigned)

	return &AllocationReport{
		GeneratedAt: time.Now().UTC(),
		Seed:        p.Seed,
		Generations: p.Generations,
		Fitness: FitnessBlock{
			Overall:    p.Best.Fitness.Overall,
			SubScores:  p.Best.Fitness.SubScores,
			Violations: p.Best.Fitness.Violations,
			Feasible:   p.Best.Fitness.Feasible,
		},
		Totals: Totals{
			TotalNotional:       money(totalNotional),
			TotalExpectedLoss:   money(totalEL),
			TotalPremium:        money(totalPremium),
			TokenCount:          len(p.Tokens),
			HolderCount:         len(p.Holders),
			AssignedHolderCount: len(summaries),
		},
		Holders: summaries,
		SystemRisk: SystemRisk{
			AvgPairwiseCorrelation:  p.Matrix.AveragePairwise(),
			MaxHolderShare:          maxShare,
			OverConcentratedHolders: overConcentrated,
			OverCapacityHolders:     overCapacity,
			CorrelatedPairs:         correlatedPairs(p, books),
			UnassignedHolders:       unassigned,
		},
	}
}

// correlatedPairs counts co-held pairs above the correlation limit, the same
// family the fitness penalty charges.
func correlatedPairs(p Params, books map[string][]domain.Token) int {
	breaches := 0
	for _, h := range p.Holders {
		book := books[h.ID]
		for i := 0; i < len(book); i++ {
			for j := i + 1; j < len(book); j++ {
				if p.Matrix.At(book[i].ID, book[j].ID) > p.CorrelationLimit {
					breaches++
				}
			}
		}
	}
	return breaches
}

// WriteJSON renders the report as indented JSON.
func (r *AllocationReport) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}
