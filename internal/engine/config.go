// Package engine implements the genetic optimizer: population factory,
// fitness evaluation, selection/crossover/mutation operators, and the
// fixed-horizon evolution loop with stagnation restarts.
package engine

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v2"
)

// WeightSumTolerance is how far the fitness weights may drift from 1.0 before
// the engine logs a warning. The overall score scales with the sum, so a
// drifted sum is suspicious but not invalid.
const WeightSumTolerance = 0.01

// FitnessWeights weight the seven fitness components. They conventionally sum
// to 1.0 so the overall score lands on a 0-100 scale.
type FitnessWeights struct {
	Diversification          float64 `yaml:"diversification" json:"diversification"`
	CorrelationMinimization  float64 `yaml:"correlation_minimization" json:"correlation_minimization"`
	CapacityUtilization      float64 `yaml:"capacity_utilization" json:"capacity_utilization"`
	RiskReturnBalance        float64 `yaml:"risk_return_balance" json:"risk_return_balance"`
	ConcentrationPenalty     float64 `yaml:"concentration_penalty" json:"concentration_penalty"`
	TailRiskControl          float64 `yaml:"tail_risk_control" json:"tail_risk_control"`
	Liquidity                float64 `yaml:"liquidity" json:"liquidity"`
}

// Sum returns the total weight mass.
func (w FitnessWeights) Sum() float64 {
	return w.Diversification + w.CorrelationMinimization + w.CapacityUtilization +
		w.RiskReturnBalance + w.ConcentrationPenalty + w.TailRiskControl + w.Liquidity
}

// Validate rejects negative weights.
func (w FitnessWeights) Validate() error {
	for name, v := range map[string]float64{
		"diversification":          w.Diversification,
		"correlation_minimization": w.CorrelationMinimization,
		"capacity_utilization":     w.CapacityUtilization,
		"risk_return_balance":      w.RiskReturnBalance,
		"concentration_penalty":    w.ConcentrationPenalty,
		"tail_risk_control":        w.TailRiskControl,
		"liquidity":                w.Liquidity,
	} {
		if v < 0 {
			return fmt.Errorf("fitness weight %s must be non-negative, got %f", name, v)
		}
	}
	return nil
}

// Config holds every engine knob. All fields have defaults; loading a YAML
// file overlays only the fields the file sets.
type Config struct {
	PopulationSize       int     `yaml:"population_size" json:"population_size"`
	EliteCount           int     `yaml:"elite_count" json:"elite_count"`
	MutationRate         float64 `yaml:"mutation_rate" json:"mutation_rate"`
	CrossoverRate        float64 `yaml:"crossover_rate" json:"crossover_rate"`
	MaxGenerations       int     `yaml:"max_generations" json:"max_generations"`
	ConvergenceThreshold float64 `yaml:"convergence_threshold" json:"convergence_threshold"`
	StagnationLimit      int     `yaml:"stagnation_limit" json:"stagnation_limit"`

	MaxConcentrationPerHolder float64 `yaml:"max_concentration_per_holder" json:"max_concentration_per_holder"`
	// MinHoldersPerToken is accepted for config compatibility but no scoring
	// or operator consults it: a token always maps to exactly one holder.
	MinHoldersPerToken int     `yaml:"min_holders_per_token" json:"min_holders_per_token"`
	CorrelationLimit   float64 `yaml:"correlation_limit" json:"correlation_limit"`

	// Seed drives all stochastic behavior. Zero means derive from the clock
	// at engine construction; the effective seed is reported in the result.
	Seed int64 `yaml:"seed" json:"seed"`
	// EvalWorkers fans out fitness evaluation. Evaluation is pure, so any
	// worker count yields seed-identical results.
	EvalWorkers int `yaml:"eval_workers" json:"eval_workers"`

	Weights FitnessWeights `yaml:"fitness_weights" json:"fitness_weights"`
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return Config{
		PopulationSize:       60,
		EliteCount:           5,
		MutationRate:         0.10,
		CrossoverRate:        0.80,
		MaxGenerations:       100,
		ConvergenceThreshold: 0.01,
		StagnationLimit:      10,

		MaxConcentrationPerHolder: 0.25,
		MinHoldersPerToken:        1,
		CorrelationLimit:          0.70,

		Seed:        0,
		EvalWorkers: 1,

		Weights: FitnessWeights{
			Diversification:          0.20,
			CorrelationMinimization:  0.20,
			CapacityUtilization:      0.15,
			RiskReturnBalance:        0.15,
			ConcentrationPenalty:     0.10,
			TailRiskControl:          0.10,
			Liquidity:                0.10,
		},
	}
}

// DefaultConfigPath is where LoadDefault looks for an engine config file.
func DefaultConfigPath() string {
	return "config/engine.yaml"
}

// LoadConfig reads a YAML config file overlaid on the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validate config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDefault loads DefaultConfigPath when it exists, otherwise returns the
// built-in defaults.
func LoadDefault() (Config, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	return LoadConfig(path)
}

// Validate checks every knob's range.
func (c Config) Validate() error {
	if c.PopulationSize < 2 {
		return fmt.Errorf("population_size must be at least 2, got %d", c.PopulationSize)
	}
	if c.EliteCount < 0 || c.EliteCount > c.PopulationSize {
		return fmt.Errorf("elite_count must be in [0, population_size], got %d", c.EliteCount)
	}
	if c.MutationRate < 0 || c.MutationRate > 1 {
		return fmt.Errorf("mutation_rate must be in [0,1], got %f", c.MutationRate)
	}
	if c.CrossoverRate < 0 || c.CrossoverRate > 1 {
		return fmt.Errorf("crossover_rate must be in [0,1], got %f", c.CrossoverRate)
	}
	if c.MaxGenerations < 0 {
		return fmt.Errorf("max_generations must be non-negative, got %d", c.MaxGenerations)
	}
	if c.ConvergenceThreshold < 0 {
		return fmt.Errorf("convergence_threshold must be non-negative, got %f", c.ConvergenceThreshold)
	}
	if c.StagnationLimit < 1 {
		return fmt.Errorf("stagnation_limit must be at least 1, got %d", c.StagnationLimit)
	}
	if c.MaxConcentrationPerHolder <= 0 || c.MaxConcentrationPerHolder > 1 {
		return fmt.Errorf("max_concentration_per_holder must be in (0,1], got %f", c.MaxConcentrationPerHolder)
	}
	if c.MinHoldersPerToken < 0 {
		return fmt.Errorf("min_holders_per_token must be non-negative, got %d", c.MinHoldersPerToken)
	}
	if c.CorrelationLimit < 0 || c.CorrelationLimit > 1 {
		return fmt.Errorf("correlation_limit must be in [0,1], got %f", c.CorrelationLimit)
	}
	if c.EvalWorkers < 1 {
		return fmt.Errorf("eval_workers must be at least 1, got %d", c.EvalWorkers)
	}
	return c.Weights.Validate()
}

// WeightSumDrift returns how far the weight mass sits from 1.0.
func (c Config) WeightSumDrift() float64 {
	return math.Abs(c.Weights.Sum() - 1.0)
}
