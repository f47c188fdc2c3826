package match

import (
	"context"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/sells-group/counselling-resolver/internal/refstore"
	"github.com/sells-group/counselling-resolver/internal/variation"
)

const phoneticMinLetters = 3

// Phonetic matches names whose content tokens sound alike pairwise. Tokens
// are compared by Soundex and by Double Metaphone; agreement under both
// codes scores 50, under one scores 45.
type Phonetic struct {
	gen *variation.Generator
}

// NewPhonetic creates a Phonetic strategy that drops gen's stopwords before
// encoding.
func NewPhonetic(gen *variation.Generator) Phonetic {
	return Phonetic{gen: gen}
}

// Name implements Strategy.
func (Phonetic) Name() string { return NamePhonetic }

// Applies implements Strategy.
func (Phonetic) Applies(q Query) bool { return !q.Empty() }

// Match implements Strategy.
func (p Phonetic) Match(ctx context.Context, q Query, entities []*refstore.CanonicalEntity) ([]Candidate, error) {
	c := newCollector(NamePhonetic)
	for _, f := range q.Forms {
		qt := p.encode(f)
		if qt == nil {
			continue
		}
		for i, e := range entities {
			if err := checkCtx(ctx, i); err != nil {
				return nil, err
			}
			for _, s := range e.Spellings() {
				if sx, mp, ok := sameSound(qt, p.encode(s)); ok {
					switch {
					case sx && mp:
						c.add(e, 50, "phonetic:soundex+metaphone")
					case sx:
						c.add(e, 45, "phonetic:soundex")
					default:
						c.add(e, 45, "phonetic:metaphone")
					}
				}
			}
		}
	}
	return c.result(), nil
}

type soundToken struct {
	text      string
	literal   bool // compared by text only
	soundex   string
	primary   string
	secondary string
}

func (p Phonetic) encode(s string) []soundToken {
	toks := p.gen.ContentTokens(s)
	letters := 0
	out := make([]soundToken, 0, len(toks))
	for _, t := range toks {
		st := soundToken{text: t}
		if len(t) == 1 || strings.ContainsAny(t, "0123456789") {
			st.literal = true
		} else {
			st.soundex = matchr.Soundex(t)
			st.primary, st.secondary = matchr.DoubleMetaphone(t)
			letters += len(t)
		}
		out = append(out, st)
	}
	if letters < phoneticMinLetters {
		return nil
	}
	return out
}

// sameSound reports whether a and b agree token by token, and which codes
// agreed for every token that was not literally equal.
func sameSound(a, b []soundToken) (soundex, metaphone, ok bool) {
	if len(a) == 0 || len(a) != len(b) {
		return false, false, false
	}
	soundex, metaphone = true, true
	for i := range a {
		x, y := a[i], b[i]
		if x.text == y.text {
			continue
		}
		if x.literal || y.literal {
			return false, false, false
		}
		sx := x.soundex != "" && x.soundex == y.soundex
		mp := metaphoneEqual(x, y)
		if !sx && !mp {
			return false, false, false
		}
		soundex = soundex && sx
		metaphone = metaphone && mp
	}
	return soundex, metaphone, true
}

func metaphoneEqual(x, y soundToken) bool {
	for _, a := range []string{x.primary, x.secondary} {
		if a == "" {
			continue
		}
		if a == y.primary || a == y.secondary {
			return true
		}
	}
	return false
}
