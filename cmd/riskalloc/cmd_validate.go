package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/aaj441/InfinitySoul-sub005/internal/correlation"
	"github.com/aaj441/InfinitySoul-sub005/internal/scenario"
)

// runValidate checks a scenario file without running the search.
func runValidate(cmd *cobra.Command, args []string) error {
	scenarioPath, _ := cmd.Flags().GetString("scenario")

	scn, err := scenario.Load(scenarioPath)
	if err != nil {
		return err
	}
	matrix := correlation.Build(scn.Tokens)
	if err := matrix.Validate(); err != nil {
		return fmt.Errorf("correlation matrix: %w", err)
	}

	var totalNotional, totalCapacity float64
	for _, t := range scn.Tokens {
		totalNotional += t.NotionalValue
	}
	for _, h := range scn.Holders {
		totalCapacity += h.AvailableCapacity
	}

	fmt.Printf("Scenario: %s\n", scn.Name)
	if scn.Description != "" {
		fmt.Printf("Description: %s\n", scn.Description)
	}
	fmt.Printf("Tokens: %d (total notional %.2f)\n", len(scn.Tokens), totalNotional)
	fmt.Printf("Holders: %d (total capacity %.2f)\n", len(scn.Holders), totalCapacity)
	fmt.Printf("Average pairwise correlation: %.4f\n", matrix.AveragePairwise())

	if totalNotional > totalCapacity {
		log.Warn().
			Float64("notional", totalNotional).
			Float64("capacity", totalCapacity).
			Msg("book notional exceeds total capacity; capacity violations are unavoidable")
	}

	fmt.Println("✅ Scenario is valid")
	return nil
}
