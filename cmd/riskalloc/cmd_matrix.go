package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aaj441/InfinitySoul-sub005/internal/correlation"
	"github.com/aaj441/InfinitySoul-sub005/internal/scenario"
)

// runMatrix builds the correlation matrix for a scenario and emits it as
// YAML, either to stdout or to --out.
func runMatrix(cmd *cobra.Command, args []string) error {
	scenarioPath, _ := cmd.Flags().GetString("scenario")
	outPath, _ := cmd.Flags().GetString("out")

	scn, err := scenario.Load(scenarioPath)
	if err != nil {
		return err
	}
	matrix := correlation.Build(scn.Tokens)
	if err := matrix.Validate(); err != nil {
		return fmt.Errorf("correlation matrix: %w", err)
	}

	data, err := yaml.Marshal(matrix)
	if err != nil {
		return fmt.Errorf("encode matrix: %w", err)
	}
	if outPath == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return fmt.Errorf("write matrix: %w", err)
	}
	log.Info().Str("path", outPath).Int("tokens", len(matrix.TokenIDs)).Msg("correlation matrix written")
	return nil
}
