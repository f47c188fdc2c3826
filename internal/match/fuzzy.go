package match

import (
	"context"
	"fmt"

	"github.com/hbollon/go-edlib"

	"github.com/sells-group/counselling-resolver/internal/refstore"
)

// shortQueryLen is the length below which the fuzzy threshold shrinks.
const shortQueryLen = 5

// Fuzzy accepts candidates within a Levenshtein distance threshold of the
// query. Score is 60 - 10*distance.
type Fuzzy struct {
	Threshold int
}

// Name implements Strategy.
func (Fuzzy) Name() string { return NameFuzzy }

// Applies implements Strategy.
func (Fuzzy) Applies(q Query) bool { return !q.Empty() }

// Match implements Strategy.
func (f Fuzzy) Match(ctx context.Context, q Query, entities []*refstore.CanonicalEntity) ([]Candidate, error) {
	c := newCollector(NameFuzzy)
	for _, form := range q.Forms {
		th := f.threshold(len(form))
		if th <= 0 {
			continue
		}
		for i, e := range entities {
			if err := checkCtx(ctx, i); err != nil {
				return nil, err
			}
			best := -1
			for _, s := range e.Spellings() {
				if abs(len(s)-len(form)) > th {
					continue
				}
				d := edlib.LevenshteinDistance(form, s)
				if d <= th && (best < 0 || d < best) {
					best = d
				}
			}
			if best >= 0 {
				c.add(e, max(0, 60-10*float64(best)), fmt.Sprintf("fuzzy:distance=%d", best))
			}
		}
	}
	return c.result(), nil
}

// threshold scales the configured threshold down for queries shorter than
// five characters: length 4 allows 2 edits, length 3 one, shorter none.
func (f Fuzzy) threshold(n int) int {
	if n >= shortQueryLen {
		return f.Threshold
	}
	return max(0, f.Threshold-(shortQueryLen-n))
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
