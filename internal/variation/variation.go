// Package variation derives the alternate surface forms under which a
// normalized name may legitimately appear.
package variation

import (
	"strings"

	"github.com/sells-group/counselling-resolver/internal/tables"
)

// Initials forms are only synthesized for names with at most this many
// content tokens.
const maxInitialsTokens = 5

// Generator expands names and queries into their variation sets. It is
// immutable and safe for concurrent use.
type Generator struct {
	toShort map[string][]string
	toLong  map[string]string
	idx     *tables.Index
}

// NewGenerator builds a Generator from the abbreviation pairs and stopwords
// in t.
func NewGenerator(t *tables.Tables) *Generator {
	g := &Generator{
		toShort: make(map[string][]string),
		toLong:  make(map[string]string),
		idx:     tables.NewIndex(t),
	}
	for _, p := range t.Abbreviations {
		g.toShort[p.Long] = append(g.toShort[p.Long], p.Short...)
		for _, s := range p.Short {
			if _, ok := g.toLong[s]; !ok {
				g.toLong[s] = p.Long
			}
		}
	}
	return g
}

// Set is an ordered, duplicate-free collection of forms.
type Set struct {
	forms []string
	seen  map[string]bool
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{seen: make(map[string]bool)}
}

// Add appends s unless it is empty or already present.
func (v *Set) Add(s string) {
	s = strings.TrimSpace(s)
	if s == "" || v.seen[s] {
		return
	}
	v.seen[s] = true
	v.forms = append(v.forms, s)
}

// Forms returns the collected forms in insertion order.
func (v *Set) Forms() []string {
	return v.forms
}

// Of returns every form of a normalized canonical name: the identity, the
// comma-head reduction, abbreviation contractions and expansions, and the
// initials forms. The identity form is always first.
func (g *Generator) Of(name string) []string {
	set := NewSet()
	g.expand(set, name)
	for _, base := range append([]string(nil), set.Forms()...) {
		for _, in := range g.Initials(base) {
			set.Add(in)
		}
	}
	return set.Forms()
}

// QueryForms expands a normalized query the same way as Of, minus the
// initials forms. The identity form is always first.
func (g *Generator) QueryForms(query string) []string {
	set := NewSet()
	g.expand(set, query)
	return set.Forms()
}

func (g *Generator) expand(set *Set, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	set.Add(name)
	bases := []string{name}
	if head := CommaHead(name); head != "" && head != name {
		set.Add(head)
		bases = append(bases, head)
	}
	for _, base := range bases {
		for _, form := range g.abbreviationForms(base) {
			set.Add(form)
		}
	}
}

// abbreviationForms returns single-word substitutions in both directions plus
// the fully contracted and fully expanded forms.
func (g *Generator) abbreviationForms(name string) []string {
	words := strings.Fields(name)
	var out []string
	contracted := make([]string, len(words))
	expanded := make([]string, len(words))
	copy(contracted, words)
	copy(expanded, words)

	for i, w := range words {
		direct := false
		if shorts, ok := g.toShort[w]; ok {
			for _, s := range shorts {
				out = append(out, replaceWord(words, i, s))
			}
			contracted[i] = shorts[0]
			direct = true
		}
		if long, ok := g.toLong[w]; ok {
			out = append(out, replaceWord(words, i, long))
			expanded[i] = long
			direct = true
		}
		if direct {
			continue
		}
		// Retry without trailing punctuation ("INST." -> "INSTITUTE.").
		core, tail := splitTrailing(w)
		if core == w || core == "" {
			continue
		}
		if shorts, ok := g.toShort[core]; ok {
			for _, s := range shorts {
				out = append(out, replaceWord(words, i, s+tail))
			}
			contracted[i] = shorts[0] + tail
		}
		if long, ok := g.toLong[core]; ok {
			out = append(out, replaceWord(words, i, long+tail))
			expanded[i] = long + tail
		}
	}
	out = append(out, strings.Join(contracted, " "), strings.Join(expanded, " "))
	return out
}

// Initials returns the dot-joined, space-joined, and concatenated initials
// of name's content tokens. Names with fewer than two or more than five
// content tokens have no initials forms.
func (g *Generator) Initials(name string) []string {
	var letters []string
	for _, tok := range tables.Tokens(name) {
		if g.idx.IsStopword(tok) {
			continue
		}
		letters = append(letters, tok[:1])
	}
	if len(letters) < 2 || len(letters) > maxInitialsTokens {
		return nil
	}
	return []string{
		strings.Join(letters, ".") + ".",
		strings.Join(letters, " "),
		strings.Join(letters, ""),
	}
}

// IsStopword reports whether tok is a configured stopword.
func (g *Generator) IsStopword(tok string) bool {
	return g.idx.IsStopword(tok)
}

// ContentTokens returns the alphanumeric tokens of s minus stopwords.
func (g *Generator) ContentTokens(s string) []string {
	toks := tables.Tokens(s)
	out := toks[:0:0]
	for _, t := range toks {
		if !g.idx.IsStopword(t) {
			out = append(out, t)
		}
	}
	return out
}

// TermVector returns the term-frequency vector of s's content tokens.
func (g *Generator) TermVector(s string) map[string]float64 {
	toks := g.ContentTokens(s)
	if len(toks) == 0 {
		return nil
	}
	vec := make(map[string]float64, len(toks))
	for _, t := range toks {
		vec[t]++
	}
	return vec
}

// CommaHead returns the text before the first comma, ignoring empty leading
// segments, with trailing punctuation removed.
func CommaHead(s string) string {
	for _, seg := range strings.Split(s, ",") {
		if seg = trimSegment(seg); seg != "" {
			return seg
		}
	}
	return ""
}

// CommaTail returns the last non-empty comma segment when s has at least two
// non-empty segments, otherwise "".
func CommaTail(s string) string {
	segs := strings.Split(s, ",")
	var nonEmpty []string
	for _, seg := range segs {
		if seg = trimSegment(seg); seg != "" {
			nonEmpty = append(nonEmpty, seg)
		}
	}
	if len(nonEmpty) < 2 {
		return ""
	}
	return nonEmpty[len(nonEmpty)-1]
}

// DotStrip replaces dots with spaces and collapses whitespace, so "A.J." and
// "A J" compare equal.
func DotStrip(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, ".", " ")), " ")
}

func trimSegment(seg string) string {
	return strings.Trim(seg, " -&(")
}

func splitTrailing(w string) (string, string) {
	core := strings.TrimRight(w, ".,)")
	return core, w[len(core):]
}

func replaceWord(words []string, i int, w string) string {
	out := make([]string, len(words))
	copy(out, words)
	out[i] = w
	return strings.Join(out, " ")
}
