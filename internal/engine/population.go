package engine

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/aaj441/InfinitySoul-sub005/internal/domain"
)

// population is a fitness-sortable set of chromosomes. The engine keeps it
// sorted descending by overall fitness after every evaluation round.
type population []*domain.Chromosome

// sortByFitness orders best-first. The sort is stable so equal-fitness
// chromosomes keep their relative order and runs stay reproducible.
func (p population) sortByFitness() {
	sort.SliceStable(p, func(i, j int) bool {
		return p[i].Fitness.Overall > p[j].Fitness.Overall
	})
}

// best returns the top chromosome of a sorted population.
func (p population) best() *domain.Chromosome {
	if len(p) == 0 {
		return nil
	}
	return p[0]
}

// feasibleCount counts members with zero constraint violations.
func (p population) feasibleCount() int {
	n := 0
	for _, ch := range p {
		if ch.Fitness.Feasible {
			n++
		}
	}
	return n
}

// avgFitness is the mean overall fitness across the population.
func (p population) avgFitness() float64 {
	if len(p) == 0 {
		return 0
	}
	overalls := make([]float64, len(p))
	for i, ch := range p {
		overalls[i] = ch.Fitness.Overall
	}
	mean, err := stats.Mean(overalls)
	if err != nil {
		return 0
	}
	return mean
}

// snapshot deep-copies the population for handing out in results.
func (p population) snapshot() []*domain.Chromosome {
	out := make([]*domain.Chromosome, len(p))
	for i, ch := range p {
		out[i] = ch.Clone()
	}
	return out
}

// assignmentDiversity measures how spread out the population's holder
// choices are: per token position, the Shannon entropy of holder frequencies
// normalized by ln(holderCount), averaged across positions. 0 means every
// member allocates identically; 1 means every holder is equally represented
// at every position.
func assignmentDiversity(p population, tokenCount int, holderIndex map[string]int) float64 {
	if len(p) == 0 || tokenCount == 0 || len(holderIndex) < 2 {
		return 0
	}
	maxEntropy := math.Log(float64(len(holderIndex)))
	counts := make([]int, len(holderIndex))
	var sum float64
	for gi := 0; gi < tokenCount; gi++ {
		for i := range counts {
			counts[i] = 0
		}
		total := 0
		for _, ch := range p {
			if gi >= len(ch.Genes) {
				continue
			}
			hi, ok := holderIndex[ch.Genes[gi].HolderID]
			if !ok {
				continue
			}
			counts[hi]++
			total++
		}
		if total == 0 {
			continue
		}
		var entropy float64
		for _, c := range counts {
			if c == 0 {
				continue
			}
			pr := float64(c) / float64(total)
			entropy -= pr * math.Log(pr)
		}
		sum += entropy / maxEntropy
	}
	return clamp01(sum / float64(tokenCount))
}
