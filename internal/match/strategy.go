// Package match implements the independent matching strategies that each
// score a query against a candidate set of canonical entities.
//
// Strategies are stateless after construction and safe for concurrent use.
// Every strategy treats empty or too-short input as "no match" and returns an
// empty result rather than an error; errors are reserved for cancellation and
// internal faults.
package match

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/counselling-resolver/internal/refstore"
	"github.com/sells-group/counselling-resolver/internal/tables"
	"github.com/sells-group/counselling-resolver/internal/variation"
)

// Strategy names.
const (
	NameExact        = "exact"
	NameSubstring    = "substring"
	NameTokenPrefix  = "token_prefix"
	NameFuzzy        = "fuzzy"
	NamePhonetic     = "phonetic"
	NameWildcard     = "wildcard"
	NameRegex        = "regex"
	NameSynonym      = "synonym"
	NameLocation     = "location"
	NameCosine       = "cosine"
	NameAbbreviation = "abbreviation"
)

// Query is the immutable input passed to every strategy.
type Query struct {
	Raw      string              // caller text, untouched
	Text     string              // normalized text
	Forms    []string            // Text followed by its query variations
	Type     refstore.EntityType // entity type being resolved
	Location *refstore.Location  // normalized location hint, may be nil
	Pattern  bool                // caller marked Raw as a regular expression
}

// Empty reports whether the query has no usable text.
func (q Query) Empty() bool {
	return q.Text == ""
}

// Candidate is one strategy's opinion about one entity.
type Candidate struct {
	Entity   *refstore.CanonicalEntity
	Score    float64 // strategy-local, 0-100
	Kind     string  // rule that fired, e.g. "fuzzy:distance=2"
	Strategy string
	// Additive candidates only boost entities another strategy surfaced.
	Additive bool
}

// StrategyResult is the settled outcome of one strategy dispatch.
type StrategyResult struct {
	Strategy   string
	Candidates []Candidate
	Err        error
	TimedOut   bool
	Elapsed    time.Duration
}

// Strategy scores a query against candidate entities.
type Strategy interface {
	Name() string
	Applies(q Query) bool
	Match(ctx context.Context, q Query, entities []*refstore.CanonicalEntity) ([]Candidate, error)
}

// Options tunes the configurable strategies.
type Options struct {
	FuzzyThreshold  int
	CosineThreshold float64
	RegexTimeout    time.Duration
}

// DefaultOptions returns the standard strategy tuning.
func DefaultOptions() Options {
	return Options{
		FuzzyThreshold:  3,
		CosineThreshold: 0.3,
		RegexTimeout:    50 * time.Millisecond,
	}
}

// Default builds every strategy over the given tables.
func Default(t *tables.Tables, gen *variation.Generator, opts Options) []Strategy {
	idx := tables.NewIndex(t)
	return []Strategy{
		Exact{},
		Abbreviation{},
		Substring{},
		TokenPrefix{},
		Fuzzy{Threshold: opts.FuzzyThreshold},
		NewPhonetic(gen),
		NewCosine(gen, opts.CosineThreshold),
		NewSynonym(idx, gen),
		NewLocation(idx),
		Wildcard{},
		Regex{Timeout: opts.RegexTimeout},
	}
}

// collector keeps the best candidate per entity for one strategy.
type collector struct {
	strategy string
	pos      map[*refstore.CanonicalEntity]int
	out      []Candidate
}

func newCollector(strategy string) *collector {
	return &collector{strategy: strategy, pos: make(map[*refstore.CanonicalEntity]int)}
}

func (c *collector) add(e *refstore.CanonicalEntity, score float64, kind string) {
	c.put(Candidate{Entity: e, Score: clampScore(score), Kind: kind, Strategy: c.strategy})
}

func (c *collector) put(cand Candidate) {
	if i, ok := c.pos[cand.Entity]; ok {
		if cand.Score > c.out[i].Score {
			c.out[i] = cand
		}
		return
	}
	c.pos[cand.Entity] = len(c.out)
	c.out = append(c.out, cand)
}

func (c *collector) result() []Candidate {
	return c.out
}

func clampScore(s float64) float64 {
	switch {
	case s < 0:
		return 0
	case s > 100:
		return 100
	}
	return s
}

// checkCtx polls for cancellation every 64 iterations.
func checkCtx(ctx context.Context, i int) error {
	if i&63 != 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "match: cancelled")
	}
	return nil
}
