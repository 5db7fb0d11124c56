// Package telemetry exposes prometheus instrumentation for the optimizer.
// All helper methods are nil-receiver safe so an unmetered engine costs
// nothing.
package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Metrics bundles every collector the engine feeds.
type Metrics struct {
	EvolutionRuns      prometheus.Counter
	Generations        prometheus.Counter
	Evaluations        prometheus.Counter
	StagnationRestarts prometheus.Counter
	BestFitness        prometheus.Gauge
	Diversity          prometheus.Gauge
	FeasibleCount      prometheus.Gauge
	GenerationDuration prometheus.Histogram
}

// NewMetrics builds the collector set and registers it when reg is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EvolutionRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riskalloc_evolution_runs_total",
			Help: "Number of Evolve calls started",
		}),
		Generations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riskalloc_generations_total",
			Help: "Number of generations processed",
		}),
		Evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riskalloc_evaluations_total",
			Help: "Number of chromosome fitness evaluations",
		}),
		StagnationRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riskalloc_stagnation_restarts_total",
			Help: "Number of stagnation-triggered population restarts",
		}),
		BestFitness: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "riskalloc_best_fitness",
			Help: "Best-ever overall fitness of the current run",
		}),
		Diversity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "riskalloc_population_diversity",
			Help: "Normalized assignment entropy of the current population",
		}),
		FeasibleCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "riskalloc_feasible_count",
			Help: "Chromosomes with zero violations in the current population",
		}),
		GenerationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "riskalloc_generation_duration_seconds",
			Help:    "Wall time per generation",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.EvolutionRuns,
			m.Generations,
			m.Evaluations,
			m.StagnationRestarts,
			m.BestFitness,
			m.Diversity,
			m.FeasibleCount,
			m.GenerationDuration,
		)
	}
	return m
}

// RecordEvolutionRun counts one Evolve call.
func (m *Metrics) RecordEvolutionRun() {
	if m == nil {
		return
	}
	m.EvolutionRuns.Inc()
}

// ObserveGeneration counts one generation and records its wall time.
func (m *Metrics) ObserveGeneration(seconds float64) {
	if m == nil {
		return
	}
	m.Generations.Inc()
	m.GenerationDuration.Observe(seconds)
}

// AddEvaluations counts completed fitness evaluations.
func (m *Metrics) AddEvaluations(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Evaluations.Add(float64(n))
}

// RecordRestart counts one stagnation restart.
func (m *Metrics) RecordRestart() {
	if m == nil {
		return
	}
	m.StagnationRestarts.Inc()
}

// SetBestFitness publishes the best-ever fitness.
func (m *Metrics) SetBestFitness(v float64) {
	if m == nil {
		return
	}
	m.BestFitness.Set(v)
}

// SetDiversity publishes the population diversity.
func (m *Metrics) SetDiversity(v float64) {
	if m == nil {
		return
	}
	m.Diversity.Set(v)
}

// SetFeasibleCount publishes the feasible-member count.
func (m *Metrics) SetFeasibleCount(n int) {
	if m == nil {
		return
	}
	m.FeasibleCount.Set(float64(n))
}

// GatherValue reads a single metric back from a gatherer, summing across
// label sets. Counters, gauges, and untyped metrics are supported.
func GatherValue(g prometheus.Gatherer, name string) (float64, error) {
	fams, err := g.Gather()
	if err != nil {
		return 0, fmt.Errorf("gather metrics: %w", err)
	}
	for _, fam := range fams {
		if fam.GetName() != name {
			continue
		}
		var sum float64
		for _, metric := range fam.GetMetric() {
			switch fam.GetType() {
			case dto.MetricType_COUNTER:
				sum += metric.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				sum += metric.GetGauge().GetValue()
			case dto.MetricType_UNTYPED:
				sum += metric.GetUntyped().GetValue()
			default:
				return 0, fmt.Errorf("metric %s has unsupported type %s", name, fam.GetType())
			}
		}
		return sum, nil
	}
	return 0, fmt.Errorf("metric %s not found", name)
}
