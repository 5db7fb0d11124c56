package engine

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"github.com/aaj441/InfinitySoul-sub005/internal/domain"
)

const (
	// tournamentSize is the number of uniform draws (with replacement) per
	// parent selection.
	tournamentSize = 3
	// crossoverMixProbability is the per-gene chance of inheriting from the
	// first parent during uniform crossover.
	crossoverMixProbability = 0.5
)

// operators bundles selection, crossover, and mutation over one shared RNG so
// call order stays reproducible for a given seed.
type operators struct {
	holders []domain.Holder
	cfg     Config
	rng     *rand.Rand
}

func newOperators(holders []domain.Holder, cfg Config, rng *rand.Rand) *operators {
	return &operators{holders: holders, cfg: cfg, rng: rng}
}

// selectParent runs one tournament: the fittest of tournamentSize uniform
// draws wins. Draws are with replacement, so a chromosome can compete against
// itself.
func (o *operators) selectParent(pop population) *domain.Chromosome {
	best := pop[o.rng.Intn(len(pop))]
	for i := 1; i < tournamentSize; i++ {
		cand := pop[o.rng.Intn(len(pop))]
		if cand.Fitness.Overall > best.Fitness.Overall {
			best = cand
		}
	}
	return best
}

// crossover breeds one child. With probability CrossoverRate the child mixes
// genes 50/50 per position; otherwise it clones the fitter parent. Either way
// the child gets a fresh identity, both parent IDs, an empty mutation log,
// and unevaluated fitness.
func (o *operators) crossover(a, b *domain.Chromosome, generation int) *domain.Chromosome {
	var child *domain.Chromosome
	if o.rng.Float64() < o.cfg.CrossoverRate {
		genes := make([]domain.Gene, len(a.Genes))
		for i := range genes {
			if o.rng.Float64() < crossoverMixProbability {
				genes[i] = a.Genes[i]
			} else {
				genes[i] = b.Genes[i]
			}
		}
		child = &domain.Chromosome{Genes: genes}
	} else {
		fitter := a
		if b.Fitness.Overall > a.Fitness.Overall {
			fitter = b
		}
		child = fitter.Clone()
	}
	child.ID = uuid.NewString()
	child.Generation = generation
	child.ParentIDs = []string{a.ID, b.ID}
	child.MutationLog = nil
	child.Fitness = domain.Fitness{}
	return child
}

// mutate reassigns each gene with probability MutationRate to a uniformly
// random holder, with no capacity or exclusion checks, and re-rolls the
// allocation weight. Every hit is recorded in the chromosome's mutation log.
func (o *operators) mutate(ch *domain.Chromosome, generation int) {
	for i := range ch.Genes {
		if o.rng.Float64() >= o.cfg.MutationRate {
			continue
		}
		prev := ch.Genes[i].HolderID
		next := o.holders[o.rng.Intn(len(o.holders))].ID
		ch.Genes[i].HolderID = next
		ch.Genes[i].AllocationWeight = 0.5 + 0.5*o.rng.Float64()
		ch.MutationLog = append(ch.MutationLog,
			fmt.Sprintf("gen %d: %s reassigned %s -> %s", generation, ch.Genes[i].TokenID, prev, next))
		ch.Fitness = domain.Fitness{}
	}
}

// relabelElite clones a surviving chromosome into the next generation with
// its identity and evaluated fitness intact.
func relabelElite(ch *domain.Chromosome, generation int) *domain.Chromosome {
	elite := ch.Clone()
	elite.Generation = generation
	return elite
}
