// Package scenario loads the optimizer's input universe (tokens and holders)
// from YAML documents.
package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/aaj441/InfinitySoul-sub005/internal/domain"
)

// Scenario is one self-contained allocation problem.
type Scenario struct {
	Name        string          `yaml:"name" json:"name"`
	Description string          `yaml:"description,omitempty" json:"description,omitempty"`
	Tokens      []domain.Token  `yaml:"tokens" json:"tokens"`
	Holders     []domain.Holder `yaml:"holders" json:"holders"`
}

// Load reads and validates a scenario file. Unknown YAML fields are rejected
// so typos in hand-written scenarios surface immediately.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var s Scenario
	if err := yaml.UnmarshalStrict(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &s, nil
}

// Validate applies the domain rules to the whole universe.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario name is required")
	}
	if err := domain.ValidateTokens(s.Tokens); err != nil {
		return err
	}
	return domain.ValidateHolders(s.Holders)
}
