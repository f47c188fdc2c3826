package match

import (
	"context"

	"github.com/sells-group/counselling-resolver/internal/refstore"
)

// Exact scores 100 when the normalized query equals the canonical name or one
// of its variations. A derived query form (comma reduction, abbreviation
// swap) that hits exactly scores 90.
type Exact struct{}

// Name implements Strategy.
func (Exact) Name() string { return NameExact }

// Applies implements Strategy.
func (Exact) Applies(q Query) bool { return !q.Empty() }

// Match implements Strategy.
func (Exact) Match(ctx context.Context, q Query, entities []*refstore.CanonicalEntity) ([]Candidate, error) {
	if q.Empty() {
		return nil, nil
	}
	c := newCollector(NameExact)
	for i, e := range entities {
		if err := checkCtx(ctx, i); err != nil {
			return nil, err
		}
		switch {
		case e.CanonicalName == q.Text:
			c.add(e, 100, "exact")
		case e.HasVariation(q.Text):
			c.add(e, 100, "exact:variation")
		default:
			for _, f := range q.Forms {
				if f != q.Text && (e.CanonicalName == f || e.HasVariation(f)) {
					c.add(e, 90, "exact:variant")
					break
				}
			}
		}
	}
	return c.result(), nil
}

// IsExactKind reports whether kind came from a full exact hit.
func IsExactKind(kind string) bool {
	return kind == "exact" || kind == "exact:variation"
}
