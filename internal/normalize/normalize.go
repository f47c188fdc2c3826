// Package normalize canonicalizes raw record fields and queries before
// matching: case, whitespace, the allowed character set, and literal OCR
// corrections.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/counselling-resolver/internal/tables"
)

// MaxCorrectionPasses bounds how many times the correction table is
// re-applied to a single string.
const MaxCorrectionPasses = 10

// Normalizer applies an ordered OCR-correction table on top of the fixed
// canonicalization steps. It is safe for concurrent use.
type Normalizer struct {
	rules []tables.Correction
}

// New creates a Normalizer over the given correction rules. Rules are applied
// in order; the slice is copied.
func New(rules []tables.Correction) *Normalizer {
	return &Normalizer{rules: append([]tables.Correction(nil), rules...)}
}

// Normalize canonicalizes raw. It never fails and is idempotent.
//
//  1. Fold accented letters to ASCII and uppercase
//  2. Collapse whitespace runs
//  3. Strip characters outside [A-Z0-9 .-&(),]
//  4. Apply the correction table to a fix-point (at most MaxCorrectionPasses)
//  5. Trim
func (n *Normalizer) Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	s := strings.ToUpper(fold(raw))
	s = collapse(s)
	s = strip(s)
	s = collapse(s)
	if s == "" {
		return ""
	}
	s = n.correct(s)
	return collapse(s)
}

func (n *Normalizer) correct(s string) string {
	for pass := 0; pass < MaxCorrectionPasses; pass++ {
		changed := false
		for _, r := range n.rules {
			var out string
			if r.WholeToken {
				out = replaceBounded(s, r.Pattern, r.Replacement)
			} else {
				out = strings.ReplaceAll(s, r.Pattern, r.Replacement)
			}
			if out != s {
				s = out
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return s
}

func replaceBounded(s, pattern, replacement string) string {
	if pattern == "" {
		return s
	}
	var b strings.Builder
	from := 0
	for {
		i := tables.IndexBounded(s, pattern, from)
		if i < 0 {
			break
		}
		b.WriteString(s[from:i])
		b.WriteString(replacement)
		from = i + len(pattern)
	}
	if from == 0 {
		return s
	}
	b.WriteString(s[from:])
	return b.String()
}

// fold decomposes s and drops combining marks so "É" becomes "E".
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func strip(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		switch r {
		case ' ', '.', '-', '&', '(', ')', ',':
			return r
		}
		return -1
	}, s)
}
