package match

import (
	"context"
	"strings"

	"github.com/sells-group/counselling-resolver/internal/refstore"
	"github.com/sells-group/counselling-resolver/internal/tables"
	"github.com/sells-group/counselling-resolver/internal/variation"
)

// Abbreviation recognizes short initialisms ("SKS", "A.J.", "PGIMER") and
// looks for them as whole tokens inside canonical names. Variations are not
// searched: initials forms would let any name with the same initials match.
type Abbreviation struct{}

// Name implements Strategy.
func (Abbreviation) Name() string { return NameAbbreviation }

// Applies implements Strategy.
func (Abbreviation) Applies(q Query) bool {
	return LooksLikeAbbreviation(q.Text)
}

// Match implements Strategy.
func (Abbreviation) Match(ctx context.Context, q Query, entities []*refstore.CanonicalEntity) ([]Candidate, error) {
	patterns := AbbreviationPatterns(q.Text)
	if len(patterns) == 0 {
		return nil, nil
	}
	literal := variation.DotStrip(q.Text)

	c := newCollector(NameAbbreviation)
	for i, e := range entities {
		if err := checkCtx(ctx, i); err != nil {
			return nil, err
		}
		name := variation.DotStrip(e.CanonicalName)
		for _, p := range patterns {
			idx := tables.IndexBounded(name, p, 0)
			if idx < 0 {
				continue
			}
			score := 50.0
			if idx == 0 {
				score += 30
			} else {
				score += 20 * (1 - float64(idx)/float64(len(name)))
			}
			kind := "abbreviation"
			if p == literal {
				score += 20
				kind = "abbreviation:literal"
			}
			c.add(e, score, kind)
		}
	}
	return c.result(), nil
}

// AbbreviationUnits splits an abbreviation-shaped text into its units: the
// single letters of "A.J." or "S K S", the letters of "SKS", or the whole
// token for a 4-6 character dotted or vowel-less token such as "PGIMR".
// It returns nil for text that does not look like an abbreviation.
func AbbreviationUnits(text string) []string {
	toks := strings.Fields(variation.DotStrip(text))
	switch len(toks) {
	case 1:
		tok := toks[0]
		switch {
		case len(tok) >= 2 && len(tok) <= 3 && isLetters(tok):
			return strings.Split(tok, "")
		case len(tok) >= 4 && len(tok) <= 6 && isLetters(tok) &&
			(strings.Contains(text, ".") || !hasVowel(tok)):
			return []string{tok}
		}
	case 2, 3:
		for _, t := range toks {
			if len(t) != 1 || !isLetters(t) {
				return nil
			}
		}
		return toks
	}
	return nil
}

// LooksLikeAbbreviation reports whether text is shaped like an initialism.
func LooksLikeAbbreviation(text string) bool {
	return AbbreviationUnits(text) != nil
}

// AbbreviationPatterns returns the spellings an abbreviation may take inside
// a dot-stripped name: spaced and joined, plus the mixed groupings of three
// units.
func AbbreviationPatterns(text string) []string {
	u := AbbreviationUnits(text)
	set := variation.NewSet()
	switch len(u) {
	case 1:
		set.Add(u[0])
	case 2, 3:
		set.Add(strings.Join(u, " "))
		set.Add(strings.Join(u, ""))
		if len(u) == 3 {
			set.Add(u[0] + u[1] + " " + u[2])
			set.Add(u[0] + " " + u[1] + u[2])
		}
	}
	return set.Forms()
}

func isLetters(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return s != ""
}

func hasVowel(s string) bool {
	return strings.ContainsAny(s, "AEIOU")
}
