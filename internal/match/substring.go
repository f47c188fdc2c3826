package match

import (
	"context"
	"strings"

	"github.com/sells-group/counselling-resolver/internal/refstore"
	"github.com/sells-group/counselling-resolver/internal/tables"
)

const (
	substringBase       = 80.0
	substringPenalty    = 0.5 // per character of length difference
	substringMaxPenalty = 30.0
	substringMinLen     = 3
)

// Substring matches when a candidate spelling contains the query, or when the
// query contains a candidate spelling on token boundaries. Tighter
// containment scores higher.
type Substring struct{}

// Name implements Strategy.
func (Substring) Name() string { return NameSubstring }

// Applies implements Strategy.
func (Substring) Applies(q Query) bool { return !q.Empty() }

// Match implements Strategy.
func (Substring) Match(ctx context.Context, q Query, entities []*refstore.CanonicalEntity) ([]Candidate, error) {
	c := newCollector(NameSubstring)
	for _, f := range q.Forms {
		if len(f) < substringMinLen {
			continue
		}
		for i, e := range entities {
			if err := checkCtx(ctx, i); err != nil {
				return nil, err
			}
			for _, s := range e.Spellings() {
				switch {
				case strings.Contains(s, f):
					c.add(e, substringScore(len(s)-len(f)), "substring:contains")
				case len(s) >= substringMinLen && tables.IndexBounded(f, s, 0) >= 0:
					c.add(e, substringScore(len(f)-len(s)), "substring:within")
				}
			}
		}
	}
	return c.result(), nil
}

func substringScore(diff int) float64 {
	return substringBase - min(substringMaxPenalty, substringPenalty*float64(diff))
}
