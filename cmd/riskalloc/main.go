package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	appName = "riskalloc"
	version = "v1.0.0"
)

func main() {
	// Setup logging: pretty console on a terminal, raw JSON when piped.
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	var logLevel string

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Genetic allocation of risk tokens across counterparties",
		Version: version,
		Long: `RiskAlloc assigns a fixed universe of risk-bearing tokens to
capacity-constrained holders using a genetic algorithm, balancing
diversification, correlation, capacity utilization, and tail risk
against hard concentration and capacity limits.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := zerolog.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("invalid log level %q: %w", logLevel, err)
			}
			zerolog.SetGlobalLevel(lvl)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")

	optimizeCmd := &cobra.Command{
		Use:   "optimize",
		Short: "Run the genetic search and emit an allocation report",
		Long: `Load a scenario and engine config, evolve allocations for the configured
generation budget, and write the JSON allocation report to stdout or --out.
SIGINT stops the run at the next generation boundary.`,
		RunE: runOptimize,
	}
	optimizeCmd.Flags().String("scenario", "", "Scenario YAML with tokens and holders (required)")
	optimizeCmd.Flags().String("config", "", "Engine config YAML (defaults to config/engine.yaml when present)")
	optimizeCmd.Flags().Int64("seed", 0, "Override the RNG seed (0 keeps the configured seed)")
	optimizeCmd.Flags().Int("generations", 0, "Override the generation budget (0 keeps the configured budget)")
	optimizeCmd.Flags().String("out", "", "Write the JSON report to this file instead of stdout")
	optimizeCmd.Flags().Var(optimizeProgress, "progress", "Progress rendering: auto, plain, or off")
	optimizeCmd.MarkFlagRequired("scenario")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a scenario file and its correlation matrix",
		Long:  "Parse a scenario, run the domain validation rules, build the correlation matrix, and print universe totals.",
		RunE:  runValidate,
	}
	validateCmd.Flags().String("scenario", "", "Scenario YAML to validate (required)")
	validateCmd.MarkFlagRequired("scenario")

	matrixCmd := &cobra.Command{
		Use:   "matrix",
		Short: "Emit the pairwise correlation matrix for a scenario",
		Long:  "Build the token correlation matrix from a scenario and write it as YAML to stdout or --out.",
		RunE:  runMatrix,
	}
	matrixCmd.Flags().String("scenario", "", "Scenario YAML with the token universe (required)")
	matrixCmd.Flags().String("out", "", "Write the YAML matrix to this file instead of stdout")
	matrixCmd.MarkFlagRequired("scenario")

	rootCmd.AddCommand(optimizeCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(matrixCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
