package match

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/sells-group/counselling-resolver/internal/refstore"
	"github.com/sells-group/counselling-resolver/internal/variation"
)

// Cosine compares term-frequency vectors of content tokens. Candidates with
// similarity above Threshold score similarity*100.
type Cosine struct {
	Threshold float64
	gen       *variation.Generator
}

// NewCosine creates a Cosine strategy.
func NewCosine(gen *variation.Generator, threshold float64) Cosine {
	return Cosine{Threshold: threshold, gen: gen}
}

// Name implements Strategy.
func (Cosine) Name() string { return NameCosine }

// Applies implements Strategy.
func (Cosine) Applies(q Query) bool { return !q.Empty() }

// Match implements Strategy.
func (cs Cosine) Match(ctx context.Context, q Query, entities []*refstore.CanonicalEntity) ([]Candidate, error) {
	qv := cs.gen.TermVector(q.Text)
	if len(qv) == 0 {
		return nil, nil
	}
	c := newCollector(NameCosine)
	for i, e := range entities {
		if err := checkCtx(ctx, i); err != nil {
			return nil, err
		}
		sim := Similarity(qv, e.TermVector)
		if sim > cs.Threshold {
			c.add(e, sim*100, fmt.Sprintf("cosine:%.2f", sim))
		}
	}
	return c.result(), nil
}

// Similarity returns the cosine similarity of two sparse term vectors.
func Similarity(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	terms := make([]string, 0, len(a)+len(b))
	for t := range a {
		terms = append(terms, t)
	}
	for t := range b {
		if _, ok := a[t]; !ok {
			terms = append(terms, t)
		}
	}
	x := make([]float64, len(terms))
	y := make([]float64, len(terms))
	for i, t := range terms {
		x[i], y[i] = a[t], b[t]
	}
	nx, ny := floats.Norm(x, 2), floats.Norm(y, 2)
	if nx == 0 || ny == 0 {
		return 0
	}
	return min(1, floats.Dot(x, y)/(nx*ny))
}
