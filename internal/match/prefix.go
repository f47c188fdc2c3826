package match

import (
	"context"
	"strings"

	"github.com/sells-group/counselling-resolver/internal/refstore"
	"github.com/sells-group/counselling-resolver/internal/tables"
)

const prefixMinLetters = 3

// TokenPrefix matches when consecutive candidate tokens start with the query
// tokens in order. A single-token query matches any candidate token it
// prefixes.
type TokenPrefix struct{}

// Name implements Strategy.
func (TokenPrefix) Name() string { return NameTokenPrefix }

// Applies implements Strategy.
func (TokenPrefix) Applies(q Query) bool { return !q.Empty() }

// Match implements Strategy.
func (TokenPrefix) Match(ctx context.Context, q Query, entities []*refstore.CanonicalEntity) ([]Candidate, error) {
	c := newCollector(NameTokenPrefix)
	for _, f := range q.Forms {
		qt := tables.Tokens(f)
		if len(strings.Join(qt, "")) < prefixMinLetters {
			continue
		}
		for i, e := range entities {
			if err := checkCtx(ctx, i); err != nil {
				return nil, err
			}
			for _, s := range e.Spellings() {
				if prefixRun(tables.Tokens(s), qt) {
					c.add(e, 70, "token_prefix")
					break
				}
			}
		}
	}
	return c.result(), nil
}

func prefixRun(candidate, query []string) bool {
	for i := 0; i+len(query) <= len(candidate); i++ {
		ok := true
		for j, qt := range query {
			if !strings.HasPrefix(candidate[i+j], qt) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}
