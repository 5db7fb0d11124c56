package engine

import (
	"math/rand"

	"github.com/google/uuid"

	"github.com/aaj441/InfinitySoul-sub005/internal/domain"
)

// factory builds random chromosomes. Each pass keeps a simulated capacity
// ledger so assignment probability shifts toward holders with room left; the
// ledger is advisory only and real capacity is enforced by fitness scoring.
type factory struct {
	tokens  []domain.Token
	holders []domain.Holder
	rng     *rand.Rand
}

func newFactory(tokens []domain.Token, holders []domain.Holder, rng *rand.Rand) *factory {
	return &factory{tokens: tokens, holders: holders, rng: rng}
}

// newChromosome assigns every token in universe order. Gene order is
// index-aligned with the token universe.
func (f *factory) newChromosome(generation int) *domain.Chromosome {
	sim := make(map[string]float64, len(f.holders))
	for _, h := range f.holders {
		sim[h.ID] = h.AvailableCapacity
	}
	genes := make([]domain.Gene, len(f.tokens))
	for i, tok := range f.tokens {
		h := f.pickHolder(tok, sim)
		// decrement even on fallback; the ledger may go negative
		sim[h.ID] -= tok.NotionalValue
		genes[i] = domain.Gene{
			TokenID:          tok.ID,
			HolderID:         h.ID,
			AllocationWeight: 0.5 + 0.5*f.rng.Float64(),
		}
	}
	return &domain.Chromosome{
		ID:         uuid.NewString(),
		Genes:      genes,
		Generation: generation,
	}
}

// pickHolder draws an eligible holder with probability proportional to its
// remaining simulated capacity. Eligible means the ledger still covers the
// token's notional and the holder does not exclude any of its risk elements.
// With no eligible holder the first holder takes the token regardless.
func (f *factory) pickHolder(tok domain.Token, sim map[string]float64) domain.Holder {
	eligible := make([]int, 0, len(f.holders))
	for i, h := range f.holders {
		if sim[h.ID] >= tok.NotionalValue && !h.Excludes(tok) {
			eligible = append(eligible, i)
		}
	}
	if len(eligible) == 0 {
		return f.holders[0]
	}
	var total float64
	for _, i := range eligible {
		total += sim[f.holders[i].ID]
	}
	if total <= 0 {
		return f.holders[eligible[0]]
	}
	r := f.rng.Float64() * total
	for _, i := range eligible {
		r -= sim[f.holders[i].ID]
		if r < 0 {
			return f.holders[i]
		}
	}
	return f.holders[eligible[len(eligible)-1]]
}
