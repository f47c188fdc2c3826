package match

import (
	"context"

	"github.com/sells-group/counselling-resolver/internal/refstore"
	"github.com/sells-group/counselling-resolver/internal/tables"
	"github.com/sells-group/counselling-resolver/internal/variation"
)

// Synonym rewrites synonym phrases to their group and then requires every
// content term of the query to appear in the candidate. Only queries that
// contain at least one synonym phrase are considered, so plain token overlap
// is left to Cosine.
type Synonym struct {
	idx *tables.Index
	gen *variation.Generator
}

// NewSynonym creates a Synonym strategy over idx.
func NewSynonym(idx *tables.Index, gen *variation.Generator) Synonym {
	return Synonym{idx: idx, gen: gen}
}

// Name implements Strategy.
func (Synonym) Name() string { return NameSynonym }

// Applies implements Strategy.
func (Synonym) Applies(q Query) bool { return !q.Empty() }

// Match implements Strategy.
func (s Synonym) Match(ctx context.Context, q Query, entities []*refstore.CanonicalEntity) ([]Candidate, error) {
	c := newCollector(NameSynonym)
	for _, f := range q.Forms {
		terms, hit := s.canonical(f)
		if !hit || len(terms) == 0 {
			continue
		}
		for i, e := range entities {
			if err := checkCtx(ctx, i); err != nil {
				return nil, err
			}
			for _, sp := range e.Spellings() {
				if containsAll(s.termSet(sp), terms) {
					c.add(e, 30, "synonym")
					break
				}
			}
		}
	}
	return c.result(), nil
}

func (s Synonym) canonical(text string) ([]string, bool) {
	toks, hit := s.idx.Canonical(tables.Tokens(text))
	out := toks[:0]
	for _, t := range toks {
		if !s.gen.IsStopword(t) {
			out = append(out, t)
		}
	}
	return out, hit
}

func (s Synonym) termSet(text string) map[string]bool {
	terms, _ := s.canonical(text)
	set := make(map[string]bool, len(terms))
	for _, t := range terms {
		set[t] = true
	}
	return set
}

func containsAll(set map[string]bool, terms []string) bool {
	for _, t := range terms {
		if !set[t] {
			return false
		}
	}
	return true
}
