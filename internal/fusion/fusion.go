// Package fusion combines the candidates of independent matching strategies
// into one ranked list of entities with a confidence score.
package fusion

import (
	"sort"
	"strings"

	"github.com/sells-group/counselling-resolver/internal/match"
	"github.com/sells-group/counselling-resolver/internal/refstore"
)

// Score bounds and bonuses.
const (
	MinScore = 30.0
	MaxScore = 100.0

	abbreviationBoost = 1.5
	emptyPenalty      = 0.1

	corroborationBonus = 10.0
	exactBonus         = 20.0
	derivedBonus       = 15.0 // abbreviation or phonetic kinds
	additiveShare      = 0.3
)

// Contribution records one strategy's part in a fused result.
type Contribution struct {
	Strategy string  `json:"strategy"`
	RawScore float64 `json:"raw_score"`
	Weight   float64 `json:"weight"`
	Kind     string  `json:"kind"`
	Additive bool    `json:"additive,omitempty"`
}

// Result is one entity after fusion.
type Result struct {
	Entity        *refstore.CanonicalEntity `json:"entity"`
	FinalScore    float64                   `json:"score"`
	Contributions []Contribution            `json:"contributions"`
	MatchKinds    []string                  `json:"match_kinds"`
}

// Strategies returns the distinct contributing strategy names.
func (r Result) Strategies() []string {
	seen := make(map[string]bool, len(r.Contributions))
	var out []string
	for _, c := range r.Contributions {
		if !seen[c.Strategy] {
			seen[c.Strategy] = true
			out = append(out, c.Strategy)
		}
	}
	return out
}

// Scorer fuses strategy results. It is immutable and safe for concurrent use.
type Scorer struct {
	priors Priors
}

// NewScorer creates a Scorer. A nil Priors uses DefaultPriors.
func NewScorer(p Priors) *Scorer {
	if p == nil {
		p = DefaultPriors()
	}
	return &Scorer{priors: p}
}

// abbreviationAware strategies get boosted on abbreviation-shaped queries.
func abbreviationAware(strategy string) bool {
	return strategy == match.NameAbbreviation || strategy == match.NameExact
}

// Weights returns the reliability weight of every reported strategy for q.
func (s *Scorer) Weights(q match.Query, results []match.StrategyResult) map[string]float64 {
	abbr := match.LooksLikeAbbreviation(q.Text)
	w := make(map[string]float64, len(results))
	for _, r := range results {
		v := s.priors.Prior(r.Strategy)
		if abbr && abbreviationAware(r.Strategy) {
			v *= abbreviationBoost
		}
		if len(r.Candidates) == 0 {
			v *= emptyPenalty
		}
		w[r.Strategy] = v
	}
	return w
}

type slot struct {
	strategy string
	additive bool
}

type group struct {
	entity *refstore.CanonicalEntity
	best   map[slot]match.Candidate
	order  []slot
}

// Fuse groups candidates by entity and scores each group. Groups supported
// only by additive candidates are dropped. The result is sorted by score,
// then by shorter canonical name, then by name and ID.
func (s *Scorer) Fuse(q match.Query, results []match.StrategyResult) []Result {
	weights := s.Weights(q, results)

	var groups []*group
	byEntity := make(map[*refstore.CanonicalEntity]*group)
	for _, r := range results {
		for _, c := range r.Candidates {
			if c.Entity == nil {
				continue
			}
			g, ok := byEntity[c.Entity]
			if !ok {
				g = &group{entity: c.Entity, best: make(map[slot]match.Candidate)}
				byEntity[c.Entity] = g
				groups = append(groups, g)
			}
			k := slot{strategy: r.Strategy, additive: c.Additive}
			prev, seen := g.best[k]
			if !seen {
				g.order = append(g.order, k)
			}
			if !seen || c.Score > prev.Score {
				g.best[k] = c
			}
		}
	}

	out := make([]Result, 0, len(groups))
	for _, g := range groups {
		if res, ok := score(g, weights); ok {
			out = append(out, res)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func score(g *group, weights map[string]float64) (Result, bool) {
	res := Result{Entity: g.entity}
	var base, boost float64
	direct := false
	strategies := make(map[string]bool)
	kinds := make(map[string]bool)
	exact, derived := false, false

	for _, k := range g.order {
		c := g.best[k]
		w := weights[k.strategy]
		res.Contributions = append(res.Contributions, Contribution{
			Strategy: k.strategy,
			RawScore: c.Score,
			Weight:   w,
			Kind:     c.Kind,
			Additive: k.additive,
		})
		strategies[k.strategy] = true
		kinds[c.Kind] = true

		if k.additive {
			boost = max(boost, c.Score)
		} else {
			direct = true
			base = max(base, c.Score*w)
		}
		if match.IsExactKind(c.Kind) {
			exact = true
		}
		if strings.HasPrefix(c.Kind, match.NameAbbreviation) || strings.HasPrefix(c.Kind, match.NamePhonetic) {
			derived = true
		}
	}
	if !direct {
		return Result{}, false
	}

	final := base + additiveShare*boost + corroborationBonus*float64(len(strategies)-1)
	if exact {
		final += exactBonus
	}
	if derived {
		final += derivedBonus
	}
	res.FinalScore = min(MaxScore, max(MinScore, final))

	for k := range kinds {
		res.MatchKinds = append(res.MatchKinds, k)
	}
	sort.Strings(res.MatchKinds)
	sort.SliceStable(res.Contributions, func(i, j int) bool {
		a, b := res.Contributions[i], res.Contributions[j]
		if wa, wb := a.RawScore*a.Weight, b.RawScore*b.Weight; wa != wb {
			return wa > wb
		}
		return a.Strategy < b.Strategy
	})
	return res, true
}

func less(a, b Result) bool {
	if a.FinalScore != b.FinalScore {
		return a.FinalScore > b.FinalScore
	}
	an, bn := a.Entity.CanonicalName, b.Entity.CanonicalName
	if len(an) != len(bn) {
		return len(an) < len(bn)
	}
	if an != bn {
		return an < bn
	}
	return a.Entity.ID < b.Entity.ID
}
