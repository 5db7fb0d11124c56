package domain

import (
	"fmt"
	"strings"
)

// CorrelationTier buckets a token's contribution to systemic co-movement.
type CorrelationTier string

const (
	TierSystemic     CorrelationTier = "systemic"
	TierHigh         CorrelationTier = "high"
	TierMedium       CorrelationTier = "medium"
	TierLow          CorrelationTier = "low"
	TierUncorrelated CorrelationTier = "uncorrelated"
)

// tierCorrelation is the per-tier contribution to pairwise correlation.
var tierCorrelation = map[CorrelationTier]float64{
	TierSystemic:     0.3,
	TierHigh:         0.2,
	TierMedium:       0.1,
	TierLow:          0.05,
	TierUncorrelated: 0.0,
}

// CorrelationScore returns the tier's correlation contribution. Unknown tiers
// contribute nothing; Validate rejects them upstream.
func (t CorrelationTier) CorrelationScore() float64 {
	return tierCorrelation[t]
}

// Risky reports whether the tier counts toward tail-risk concentration.
func (t CorrelationTier) Risky() bool {
	return t == TierSystemic || t == TierHigh
}

// Valid reports whether the tier is a known bucket.
func (t CorrelationTier) Valid() bool {
	_, ok := tierCorrelation[t]
	return ok
}

// LiquidityTier buckets how quickly a token position can be unwound.
type LiquidityTier string

const (
	LiquidityHigh     LiquidityTier = "high"
	LiquidityMedium   LiquidityTier = "medium"
	LiquidityLow      LiquidityTier = "low"
	LiquidityIlliquid LiquidityTier = "illiquid"
)

var liquidityScores = map[LiquidityTier]float64{
	LiquidityHigh:     1.0,
	LiquidityMedium:   0.7,
	LiquidityLow:      0.4,
	LiquidityIlliquid: 0.1,
}

// Score maps the tier to [0,1]. Unknown tiers fall back to a neutral 0.5 so a
// half-validated universe still evaluates; the scenario loader rejects them.
func (t LiquidityTier) Score() float64 {
	if s, ok := liquidityScores[t]; ok {
		return s
	}
	return 0.5
}

// Valid reports whether the tier is a known bucket.
func (t LiquidityTier) Valid() bool {
	_, ok := liquidityScores[t]
	return ok
}

// Token is one risk-bearing instrument in the allocation universe.
type Token struct {
	ID              string          `json:"id" yaml:"id"`
	Industry        string          `json:"industry" yaml:"industry"`
	Geography       string          `json:"geography" yaml:"geography"`
	RiskElements    []string        `json:"risk_elements" yaml:"risk_elements"`
	CorrelationTier CorrelationTier `json:"correlation_tier" yaml:"correlation_tier"`
	LiquidityTier   LiquidityTier   `json:"liquidity_tier" yaml:"liquidity_tier"`
	NotionalValue   float64         `json:"notional_value" yaml:"notional_value"`   // exposure carried by whoever holds it
	ExpectedLoss    float64         `json:"expected_loss" yaml:"expected_loss"`     // modeled EL over the horizon
	PremiumRate     float64         `json:"premium_rate" yaml:"premium_rate"`       // premium income = notional * rate
}

// Premium returns the premium income the token generates for its holder.
func (t Token) Premium() float64 {
	return t.NotionalValue * t.PremiumRate
}

// Validate checks a single token's fields.
func (t Token) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("token id is empty")
	}
	if !t.CorrelationTier.Valid() {
		return fmt.Errorf("token %s: unknown correlation tier %q", t.ID, t.CorrelationTier)
	}
	if !t.LiquidityTier.Valid() {
		return fmt.Errorf("token %s: unknown liquidity tier %q", t.ID, t.LiquidityTier)
	}
	if t.NotionalValue <= 0 {
		return fmt.Errorf("token %s: notional_value must be positive, got %f", t.ID, t.NotionalValue)
	}
	if t.ExpectedLoss < 0 {
		return fmt.Errorf("token %s: expected_loss must be non-negative, got %f", t.ID, t.ExpectedLoss)
	}
	if t.PremiumRate < 0 {
		return fmt.Errorf("token %s: premium_rate must be non-negative, got %f", t.ID, t.PremiumRate)
	}
	return nil
}

// ValidateTokens checks every token and ID uniqueness across the universe.
func ValidateTokens(tokens []Token) error {
	if len(tokens) == 0 {
		return fmt.Errorf("universe has no tokens")
	}
	seen := make(map[string]bool, len(tokens))
	for i, tok := range tokens {
		if err := tok.Validate(); err != nil {
			return fmt.Errorf("token[%d]: %w", i, err)
		}
		if seen[tok.ID] {
			return fmt.Errorf("duplicate token id %s", tok.ID)
		}
		seen[tok.ID] = true
	}
	return nil
}
