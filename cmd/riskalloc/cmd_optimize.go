package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/aaj441/InfinitySoul-sub005/internal/engine"
	"github.com/aaj441/InfinitySoul-sub005/internal/progress"
	"github.com/aaj441/InfinitySoul-sub005/internal/scenario"
	"github.com/aaj441/InfinitySoul-sub005/internal/telemetry"
)

// progressFlag exposes progress.Mode as a flag value so an unknown mode
// fails at parse time instead of mid-run.
type progressFlag struct {
	mode progress.Mode
}

var _ pflag.Value = (*progressFlag)(nil)

func (f *progressFlag) String() string { return string(f.mode) }

func (f *progressFlag) Set(v string) error {
	mode, err := progress.ParseMode(v)
	if err != nil {
		return err
	}
	f.mode = mode
	return nil
}

func (f *progressFlag) Type() string { return "mode" }

var optimizeProgress = &progressFlag{mode: progress.ModeAuto}

// runOptimize runs the full search pipeline: scenario + config, evolve,
// report.
func runOptimize(cmd *cobra.Command, args []string) error {
	scenarioPath, _ := cmd.Flags().GetString("scenario")
	configPath, _ := cmd.Flags().GetString("config")
	seed, _ := cmd.Flags().GetInt64("seed")
	generations, _ := cmd.Flags().GetInt("generations")
	outPath, _ := cmd.Flags().GetString("out")

	scn, err := scenario.Load(scenarioPath)
	if err != nil {
		return err
	}

	var cfg engine.Config
	if configPath != "" {
		cfg, err = engine.LoadConfig(configPath)
	} else {
		cfg, err = engine.LoadDefault()
	}
	if err != nil {
		return err
	}
	if seed != 0 {
		cfg.Seed = seed
	}
	if generations > 0 {
		cfg.MaxGenerations = generations
	}

	eng, err := engine.New(cfg)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	eng.SetMetrics(telemetry.NewMetrics(registry))

	if err := eng.Initialize(scn.Tokens, scn.Holders); err != nil {
		return err
	}

	tracker := progress.NewTracker(os.Stderr, cfg.MaxGenerations, optimizeProgress.mode)
	eng.SetGenerationHook(func(st engine.GenerationStats) {
		tracker.Generation(st.Generation, st.BestFitness, st.FeasibleCount)
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("scenario", scn.Name).
		Int("tokens", len(scn.Tokens)).
		Int("holders", len(scn.Holders)).
		Int64("seed", eng.Seed()).
		Msg("starting allocation search")

	res, err := eng.Evolve(ctx)
	if err != nil {
		return err
	}
	tracker.Done(res.Best.Fitness.Overall, res.BestFeasible)

	evaluations, _ := telemetry.GatherValue(registry, "riskalloc_evaluations_total")
	restarts, _ := telemetry.GatherValue(registry, "riskalloc_stagnation_restarts_total")
	log.Info().
		Float64("evaluations", evaluations).
		Float64("restarts", restarts).
		Msg("search totals")

	rep, err := eng.GenerateReport()
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create report file: %w", err)
		}
		defer f.Close()
		w = f
	}
	if err := rep.WriteJSON(w); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if outPath != "" {
		log.Info().Str("path", outPath).Msg("report written")
	}
	return nil
}
