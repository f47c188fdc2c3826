package match

import (
	"context"
	"strings"

	"github.com/gobwas/glob"
	"github.com/rotisserie/eris"

	"github.com/sells-group/counselling-resolver/internal/refstore"
	"github.com/sells-group/counselling-resolver/internal/tables"
)

const wildcardMinLiterals = 2

// Wildcard treats '*' and '?' in the raw query as glob metacharacters and
// matches the pattern against every variation of each entity.
type Wildcard struct{}

// Name implements Strategy.
func (Wildcard) Name() string { return NameWildcard }

// Applies implements Strategy.
func (Wildcard) Applies(q Query) bool {
	if _, re := RegexSource(q); re {
		return false
	}
	return strings.ContainsAny(q.Raw, "*?")
}

// Match implements Strategy.
func (Wildcard) Match(ctx context.Context, q Query, entities []*refstore.CanonicalEntity) ([]Candidate, error) {
	pattern, literals := GlobPattern(q.Raw)
	if literals < wildcardMinLiterals {
		return nil, nil
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, eris.Wrapf(err, "match: compile wildcard %q", q.Raw)
	}

	c := newCollector(NameWildcard)
	for i, e := range entities {
		if err := checkCtx(ctx, i); err != nil {
			return nil, err
		}
		for _, v := range e.Variations {
			if g.Match(v) {
				c.add(e, 40, "wildcard")
				break
			}
		}
	}
	return c.result(), nil
}

// GlobPattern converts a raw wildcard query into a glob pattern over
// normalized text. Everything but '*' and '?' is quoted. It also returns the
// number of literal letters and digits.
func GlobPattern(raw string) (string, int) {
	var b strings.Builder
	literals := 0
	for _, r := range strings.Join(strings.Fields(strings.ToUpper(raw)), " ") {
		switch {
		case r == '*' || r == '?':
			b.WriteRune(r)
		case r < 0x80 && tables.IsAlnum(byte(r)):
			literals++
			b.WriteRune(r)
		case strings.ContainsRune(" .-&(),", r):
			b.WriteString(glob.QuoteMeta(string(r)))
		}
	}
	return b.String(), literals
}
