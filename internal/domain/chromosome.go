package domain

// Gene assigns one token to one holder. AllocationWeight is carried through
// crossover and re-rolled on mutation as a lineage diagnostic; it never scales
// notionals, capacity, or any fitness input.
type Gene struct {
	TokenID          string  `json:"token_id"`
	HolderID         string  `json:"holder_id"`
	AllocationWeight float64 `json:"allocation_weight"` // diagnostic, [0.5, 1.0)
}

// SubScores are the seven fitness components, each in [0,1].
type SubScores struct {
	Diversification         float64 `json:"diversification"`
	CorrelationMinimization float64 `json:"correlation_minimization"`
	CapacityUtilization     float64 `json:"capacity_utilization"`
	RiskReturnBalance       float64 `json:"risk_return_balance"`
	ConcentrationPenalty    float64 `json:"concentration_penalty"`
	TailRiskControl         float64 `json:"tail_risk_control"`
	Liquidity               float64 `json:"liquidity"`
}

// Fitness is the scored quality of a chromosome. Overall is the weighted
// component sum scaled to [0,100] minus 10 per violation, floored at zero.
type Fitness struct {
	Overall    float64   `json:"overall"`
	SubScores  SubScores `json:"sub_scores"`
	Violations int       `json:"violations"`
	Feasible   bool      `json:"feasible"` // violations == 0
	Evaluated  bool      `json:"evaluated"`
}

// Chromosome is one complete candidate allocation: exactly one gene per token,
// index-aligned with the token universe.
type Chromosome struct {
	ID          string   `json:"id"`
	Genes       []Gene   `json:"genes"`
	Fitness     Fitness  `json:"fitness"`
	Generation  int      `json:"generation"`
	ParentIDs   []string `json:"parent_ids,omitempty"`
	MutationLog []string `json:"mutation_log,omitempty"`
}

// Clone deep-copies the chromosome, including lineage and audit fields.
func (c *Chromosome) Clone() *Chromosome {
	out := &Chromosome{
		ID:         c.ID,
		Genes:      make([]Gene, len(c.Genes)),
		Fitness:    c.Fitness,
		Generation: c.Generation,
	}
	copy(out.Genes, c.Genes)
	if len(c.ParentIDs) > 0 {
		out.ParentIDs = make([]string, len(c.ParentIDs))
		copy(out.ParentIDs, c.ParentIDs)
	}
	if len(c.MutationLog) > 0 {
		out.MutationLog = make([]string, len(c.MutationLog))
		copy(out.MutationLog, c.MutationLog)
	}
	return out
}

// HolderTokens groups gene assignments by holder, resolving token IDs against
// the universe slice the genes were built from.
func (c *Chromosome) HolderTokens(tokens []Token) map[string][]Token {
	byID := make(map[string]Token, len(tokens))
	for _, t := range tokens {
		byID[t.ID] = t
	}
	out := make(map[string][]Token)
	for _, g := range c.Genes {
		tok, ok := byID[g.TokenID]
		if !ok {
			continue
		}
		out[g.HolderID] = append(out[g.HolderID], tok)
	}
	return out
}
