// Package correlation builds and validates the pairwise correlation matrix
// for a token universe. The model is deterministic: correlation is derived
// from shared industry, geography, risk-element overlap, and tier scores.
package correlation

import (
	"fmt"
	"math"

	"github.com/aaj441/InfinitySoul-sub005/internal/domain"
)

const (
	industryWeight  = 0.3
	geographyWeight = 0.2
	overlapWeight   = 0.4
	maxPairwise     = 0.95
)

// Matrix is a symmetric token-by-token correlation lookup with a unit
// diagonal. Built once per universe and read-only afterwards.
type Matrix struct {
	TokenIDs []string                      `json:"token_ids" yaml:"token_ids"`
	Values   map[string]map[string]float64 `json:"values" yaml:"values"`
}

// Build computes the full matrix for the universe.
func Build(tokens []domain.Token) *Matrix {
	m := &Matrix{
		TokenIDs: make([]string, len(tokens)),
		Values:   make(map[string]map[string]float64, len(tokens)),
	}
	for i, t := range tokens {
		m.TokenIDs[i] = t.ID
		m.Values[t.ID] = make(map[string]float64, len(tokens))
	}
	for i, a := range tokens {
		m.Values[a.ID][a.ID] = 1.0
		for j := i + 1; j < len(tokens); j++ {
			b := tokens[j]
			c := Pairwise(a, b)
			m.Values[a.ID][b.ID] = c
			m.Values[b.ID][a.ID] = c
		}
	}
	return m
}

// Pairwise computes the modeled correlation between two distinct tokens.
func Pairwise(a, b domain.Token) float64 {
	var c float64
	if a.Industry == b.Industry {
		c += industryWeight
	}
	if a.Geography == b.Geography {
		c += geographyWeight
	}
	c += overlapWeight * elementOverlap(a.RiskElements, b.RiskElements)
	c += (a.CorrelationTier.CorrelationScore() + b.CorrelationTier.CorrelationScore()) / 2
	return math.Min(maxPairwise, c)
}

// elementOverlap is the fraction of shared risk elements, measured against
// the larger of the two sets. Two empty sets share nothing.
func elementOverlap(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(a))
	for _, e := range a {
		setA[e] = true
	}
	setB := make(map[string]bool, len(b))
	for _, e := range b {
		setB[e] = true
	}
	shared := 0
	for e := range setB {
		if setA[e] {
			shared++
		}
	}
	larger := len(setA)
	if len(setB) > larger {
		larger = len(setB)
	}
	return float64(shared) / math.Max(1, float64(larger))
}

// At returns the correlation between two token IDs. Unknown IDs return 0.
func (m *Matrix) At(a, b string) float64 {
	row, ok := m.Values[a]
	if !ok {
		return 0
	}
	return row[b]
}

// Validate checks the structural invariants: every listed token has a full
// row, the diagonal is exactly 1, values sit in [0,1], and the matrix is
// symmetric within tolerance.
func (m *Matrix) Validate() error {
	const tol = 1e-9
	if len(m.TokenIDs) == 0 {
		return fmt.Errorf("correlation matrix has no tokens")
	}
	for _, id := range m.TokenIDs {
		row, ok := m.Values[id]
		if !ok {
			return fmt.Errorf("missing correlation row for %s", id)
		}
		if d := row[id]; d != 1.0 {
			return fmt.Errorf("diagonal for %s must be 1.0, got %f", id, d)
		}
		for _, other := range m.TokenIDs {
			v, ok := row[other]
			if !ok {
				return fmt.Errorf("missing correlation %s->%s", id, other)
			}
			if v < 0 || v > 1 {
				return fmt.Errorf("correlation %s->%s out of range: %f", id, other, v)
			}
			if math.Abs(v-m.Values[other][id]) > tol {
				return fmt.Errorf("asymmetric correlation %s<->%s: %f vs %f", id, other, v, m.Values[other][id])
			}
		}
	}
	return nil
}

// AveragePairwise is the mean correlation over all unordered distinct pairs.
// Fewer than two tokens yields 0.
func (m *Matrix) AveragePairwise() float64 {
	n := len(m.TokenIDs)
	if n < 2 {
		return 0
	}
	var sum float64
	var pairs int
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sum += m.Values[m.TokenIDs[i]][m.TokenIDs[j]]
			pairs++
		}
	}
	return sum / float64(pairs)
}
