package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/aaj441/InfinitySoul-sub005/internal/correlation"
	"github.com/aaj441/InfinitySoul-sub005/internal/domain"
	"github.com/aaj441/InfinitySoul-sub005/internal/report"
	"github.com/aaj441/InfinitySoul-sub005/internal/telemetry"
)

var (
	// ErrNotInitialized guards operations that need a universe.
	ErrNotInitialized = errors.New("engine not initialized")
	// ErrNoEvolutionRun guards result accessors called before Evolve.
	ErrNoEvolutionRun = errors.New("no evolution run")
)

// GenerationStats is one recorded history entry. BestFitness tracks the
// best-ever chromosome and therefore never decreases within one Evolve call.
type GenerationStats struct {
	Generation     int     `json:"generation"`
	BestFitness    float64 `json:"best_fitness"`
	PopulationBest float64 `json:"population_best"`
	AvgFitness     float64 `json:"avg_fitness"`
	FeasibleCount  int     `json:"feasible_count"`
	Diversity      float64 `json:"diversity"`
	Restarted      bool    `json:"restarted,omitempty"`
}

// Result is the outcome of one Evolve call. BestFeasible reports whether the
// best chromosome satisfies every constraint; the run itself always executes
// the full generation budget.
type Result struct {
	Best            *domain.Chromosome   `json:"best"`
	BestFeasible    bool                 `json:"best_feasible"`
	GenerationsRun  int                  `json:"generations_run"`
	History         []GenerationStats    `json:"history"`
	FinalPopulation []*domain.Chromosome `json:"-"`
	Seed            int64                `json:"seed"`
	Elapsed         time.Duration        `json:"elapsed"`
}

// Engine runs the allocation search. A single mutex serializes Initialize,
// Evolve, and the result accessors; the engine is not meant for concurrent
// Evolve calls.
type Engine struct {
	mu  sync.Mutex
	cfg Config

	metrics      *telemetry.Metrics
	onGeneration func(GenerationStats)

	seed        int64
	rng         *rand.Rand
	tokens      []domain.Token
	holders     []domain.Holder
	holderIndex map[string]int
	matrix      *correlation.Matrix
	factory     *factory
	eval        *Evaluator
	ops         *operators

	pop      population
	bestEver *domain.Chromosome
	result   *Result
}

// New validates the configuration and builds an engine. A zero seed is
// replaced with the wall clock so unconfigured runs still vary; the effective
// seed is carried into every result.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	if drift := cfg.WeightSumDrift(); drift > WeightSumTolerance {
		log.Warn().
			Float64("weight_sum", cfg.Weights.Sum()).
			Float64("drift", drift).
			Msg("fitness weights do not sum to 1.0; overall score will scale accordingly")
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Engine{cfg: cfg, seed: seed}, nil
}

// SetMetrics attaches a telemetry registry. Safe to leave unset.
func (e *Engine) SetMetrics(m *telemetry.Metrics) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics = m
}

// SetGenerationHook registers a callback invoked after every recorded
// generation. The hook runs with the engine lock held and must not call back
// into the engine.
func (e *Engine) SetGenerationHook(fn func(GenerationStats)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onGeneration = fn
}

// Seed returns the effective seed for this engine instance.
func (e *Engine) Seed() int64 {
	return e.seed
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Initialize validates the universe, builds the correlation matrix, and
// generates the evaluated initial population. Calling it again resets all
// evolution state, including the RNG stream, so re-initialized runs
// reproduce exactly.
func (e *Engine) Initialize(tokens []domain.Token, holders []domain.Holder) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := domain.ValidateTokens(tokens); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	if err := domain.ValidateHolders(holders); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	e.tokens = make([]domain.Token, len(tokens))
	copy(e.tokens, tokens)
	e.holders = make([]domain.Holder, len(holders))
	copy(e.holders, holders)

	e.holderIndex = make(map[string]int, len(e.holders))
	for i, h := range e.holders {
		e.holderIndex[h.ID] = i
	}

	e.matrix = correlation.Build(e.tokens)
	if err := e.matrix.Validate(); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	e.rng = rand.New(rand.NewSource(e.seed))
	e.factory = newFactory(e.tokens, e.holders, e.rng)
	e.eval = newEvaluator(e.tokens, e.holders, e.matrix, e.cfg)
	e.ops = newOperators(e.holders, e.cfg, e.rng)

	e.pop = make(population, 0, e.cfg.PopulationSize)
	for len(e.pop) < e.cfg.PopulationSize {
		e.pop = append(e.pop, e.factory.newChromosome(0))
	}
	e.evaluatePopulation(e.pop)
	e.pop.sortByFitness()
	e.bestEver = e.pop.best().Clone()
	e.result = nil

	log.Info().
		Int("tokens", len(e.tokens)).
		Int("holders", len(e.holders)).
		Int("population", e.cfg.PopulationSize).
		Int64("seed", e.seed).
		Float64("initial_best", e.bestEver.Fitness.Overall).
		Msg("engine initialized")
	return nil
}

// Evolve runs the configured number of generations and returns the outcome.
// The generation budget is fixed: convergenceThreshold feeds the stagnation
// counter, never an early stop. Context cancellation is honored at
// generation boundaries.
func (e *Engine) Evolve(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pop == nil {
		return nil, ErrNotInitialized
	}

	start := time.Now()
	e.metrics.RecordEvolutionRun()
	log.Info().
		Int("max_generations", e.cfg.MaxGenerations).
		Float64("initial_best", e.bestEver.Fitness.Overall).
		Msg("evolution started")

	prevBest := e.bestEver.Fitness.Overall
	stagnation := 0
	history := make([]GenerationStats, 0, e.cfg.MaxGenerations)

	for gen := 1; gen <= e.cfg.MaxGenerations; gen++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("evolution aborted at generation %d: %w", gen, err)
		}
		genStart := time.Now()

		e.pop = e.nextGeneration(gen)
		if e.pop.best().Fitness.Overall > e.bestEver.Fitness.Overall {
			e.bestEver = e.pop.best().Clone()
		}

		improvement := e.bestEver.Fitness.Overall - prevBest
		if improvement < e.cfg.ConvergenceThreshold {
			stagnation++
		} else {
			stagnation = 0
		}
		restarted := stagnation >= e.cfg.StagnationLimit

		st := GenerationStats{
			Generation:     gen,
			BestFitness:    e.bestEver.Fitness.Overall,
			PopulationBest: e.pop.best().Fitness.Overall,
			AvgFitness:     e.pop.avgFitness(),
			FeasibleCount:  e.pop.feasibleCount(),
			Diversity:      assignmentDiversity(e.pop, len(e.tokens), e.holderIndex),
			Restarted:      restarted,
		}
		history = append(history, st)
		e.observeGeneration(st, time.Since(genStart))

		if restarted {
			log.Warn().
				Int("generation", gen).
				Int("stagnation_limit", e.cfg.StagnationLimit).
				Float64("best", e.bestEver.Fitness.Overall).
				Msg("stagnation restart")
			e.pop = e.restartPopulation(gen)
			stagnation = 0
			e.metrics.RecordRestart()
		}

		prevBest = e.bestEver.Fitness.Overall
	}

	result := &Result{
		Best:            e.bestEver.Clone(),
		BestFeasible:    e.bestEver.Fitness.Feasible,
		GenerationsRun:  len(history),
		History:         history,
		FinalPopulation: e.pop.snapshot(),
		Seed:            e.seed,
		Elapsed:         time.Since(start),
	}
	e.result = result

	log.Info().
		Int("generations", result.GenerationsRun).
		Float64("best_fitness", result.Best.Fitness.Overall).
		Int("violations", result.Best.Fitness.Violations).
		Bool("best_feasible", result.BestFeasible).
		Dur("elapsed", result.Elapsed).
		Msg("evolution complete")
	return result, nil
}

// OptimalAllocation maps holder IDs to their assigned tokens from the best
// chromosome of the last Evolve call. Holders without tokens are absent.
func (e *Engine) OptimalAllocation() (map[string][]domain.Token, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.result == nil {
		return nil, ErrNoEvolutionRun
	}
	return e.result.Best.HolderTokens(e.tokens), nil
}

// GenerateReport builds the allocation report for the last Evolve call.
func (e *Engine) GenerateReport() (*report.AllocationReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.result == nil {
		return nil, ErrNoEvolutionRun
	}
	return report.Build(report.Params{
		Tokens:           e.tokens,
		Holders:          e.holders,
		Best:             e.result.Best,
		Matrix:           e.matrix,
		Seed:             e.seed,
		Generations:      e.result.GenerationsRun,
		MaxConcentration: e.cfg.MaxConcentrationPerHolder,
		CorrelationLimit: e.cfg.CorrelationLimit,
	}), nil
}

// nextGeneration carries the elites forward and breeds the remainder through
// tournament selection, crossover, and mutation, then evaluates and sorts.
func (e *Engine) nextGeneration(gen int) population {
	next := make(population, 0, e.cfg.PopulationSize)
	for i := 0; i < e.cfg.EliteCount && i < len(e.pop); i++ {
		next = append(next, relabelElite(e.pop[i], gen))
	}
	for len(next) < e.cfg.PopulationSize {
		a := e.ops.selectParent(e.pop)
		b := e.ops.selectParent(e.pop)
		child := e.ops.crossover(a, b, gen)
		e.ops.mutate(child, gen)
		next = append(next, child)
	}
	e.evaluatePopulation(next)
	next.sortByFitness()
	return next
}

// restartPopulation keeps a clone of the best-ever chromosome and regenerates
// everything else from the factory.
func (e *Engine) restartPopulation(gen int) population {
	next := make(population, 0, e.cfg.PopulationSize)
	keeper := e.bestEver.Clone()
	keeper.Generation = gen
	next = append(next, keeper)
	for len(next) < e.cfg.PopulationSize {
		next = append(next, e.factory.newChromosome(gen))
	}
	e.evaluatePopulation(next)
	next.sortByFitness()
	return next
}

// evaluatePopulation scores every unevaluated member. Evaluation is pure, so
// with EvalWorkers > 1 chromosomes are scored concurrently without affecting
// determinism.
func (e *Engine) evaluatePopulation(pop population) {
	pending := make([]*domain.Chromosome, 0, len(pop))
	for _, ch := range pop {
		if !ch.Fitness.Evaluated {
			pending = append(pending, ch)
		}
	}
	if len(pending) == 0 {
		return
	}

	workers := e.cfg.EvalWorkers
	if workers <= 1 || len(pending) == 1 {
		for _, ch := range pending {
			e.eval.Evaluate(ch)
		}
	} else {
		if workers > len(pending) {
			workers = len(pending)
		}
		jobs := make(chan *domain.Chromosome)
		var wg sync.WaitGroup
		wg.Add(workers)
		for w := 0; w < workers; w++ {
			go func() {
				defer wg.Done()
				for ch := range jobs {
					e.eval.Evaluate(ch)
				}
			}()
		}
		for _, ch := range pending {
			jobs <- ch
		}
		close(jobs)
		wg.Wait()
	}
	e.metrics.AddEvaluations(len(pending))
}

func (e *Engine) observeGeneration(st GenerationStats, elapsed time.Duration) {
	e.metrics.ObserveGeneration(elapsed.Seconds())
	e.metrics.SetBestFitness(st.BestFitness)
	e.metrics.SetDiversity(st.Diversity)
	e.metrics.SetFeasibleCount(st.FeasibleCount)
	if e.onGeneration != nil {
		e.onGeneration(st)
	}
	log.Debug().
		Int("generation", st.Generation).
		Float64("best", st.BestFitness).
		Float64("avg", st.AvgFitness).
		Int("feasible", st.FeasibleCount).
		Float64("diversity", st.Diversity).
		Msg("generation complete")
}
