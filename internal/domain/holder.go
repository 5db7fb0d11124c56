package domain

import (
	"fmt"
	"strings"
)

// Holder is a capacity-constrained counterparty that can carry token risk.
type Holder struct {
	ID                   string   `json:"id" yaml:"id"`
	Type                 string   `json:"type" yaml:"type"` // free-form label: reinsurer, fund, bank, ...
	AvailableCapacity    float64  `json:"available_capacity" yaml:"available_capacity"`
	RiskAppetite         float64  `json:"risk_appetite" yaml:"risk_appetite"` // target EL/notional ratio in [0,1]
	ExcludedRiskElements []string `json:"excluded_risk_elements" yaml:"excluded_risk_elements"`
}

// Excludes reports whether the token carries any risk element the holder has
// excluded. Exclusions steer initial assignment; they are not scored as
// violations.
func (h Holder) Excludes(t Token) bool {
	if len(h.ExcludedRiskElements) == 0 {
		return false
	}
	for _, excl := range h.ExcludedRiskElements {
		for _, elem := range t.RiskElements {
			if elem == excl {
				return true
			}
		}
	}
	return false
}

// Validate checks a single holder's fields.
func (h Holder) Validate() error {
	if strings.TrimSpace(h.ID) == "" {
		return fmt.Errorf("holder id is empty")
	}
	if h.AvailableCapacity < 0 {
		return fmt.Errorf("holder %s: available_capacity must be non-negative, got %f", h.ID, h.AvailableCapacity)
	}
	if h.RiskAppetite < 0 || h.RiskAppetite > 1 {
		return fmt.Errorf("holder %s: risk_appetite must be in [0,1], got %f", h.ID, h.RiskAppetite)
	}
	return nil
}

// ValidateHolders checks every holder and ID uniqueness.
func ValidateHolders(holders []Holder) error {
	if len(holders) == 0 {
		return fmt.Errorf("universe has no holders")
	}
	seen := make(map[string]bool, len(holders))
	for i, h := range holders {
		if err := h.Validate(); err != nil {
			return fmt.Errorf("holder[%d]: %w", i, err)
		}
		if seen[h.ID] {
			return fmt.Errorf("duplicate holder id %s", h.ID)
		}
		seen[h.ID] = true
	}
	return nil
}
