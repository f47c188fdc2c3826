// Package tables holds the curated lookup data (OCR corrections, abbreviation
// pairs, synonym groups, location regions) that drives normalization and
// matching. Tables are loaded once and never mutated afterwards.
package tables

import (
	_ "embed"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Correction is a literal OCR-correction rule. WholeToken rules only fire
// when the pattern is bounded by non-alphanumeric characters.
type Correction struct {
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
	WholeToken  bool   `yaml:"whole_token"`
}

// Pair maps a long word form to its accepted short forms.
type Pair struct {
	Long  string   `yaml:"long"`
	Short []string `yaml:"short"`
}

// Tables is the full set of domain lookup data.
type Tables struct {
	Corrections   []Correction      `yaml:"corrections"`
	Abbreviations []Pair            `yaml:"abbreviations"`
	Synonyms      [][]string        `yaml:"synonyms"`
	Regions       map[string]string `yaml:"regions"`
	Stopwords     []string          `yaml:"stopwords"`
}

var (
	defaultOnce   sync.Once
	defaultTables *Tables
)

// Default returns the embedded curated tables. The result is shared and must
// not be modified.
func Default() *Tables {
	defaultOnce.Do(func() {
		t, err := Parse(defaultYAML)
		if err != nil {
			panic(eris.Wrap(err, "tables: embedded defaults"))
		}
		defaultTables = t
	})
	return defaultTables
}

// Load reads a YAML table file from disk.
func Load(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "tables: read %s", path)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, eris.Wrapf(err, "tables: parse %s", path)
	}
	return t, nil
}

// Parse decodes YAML table data, canonicalizes it to uppercase, and
// validates it.
func Parse(data []byte) (*Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrap(err, "tables: unmarshal")
	}
	t.canonicalize()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Merge returns a new Tables holding t's entries followed by other's.
// Regions from other override t's.
func (t *Tables) Merge(other *Tables) *Tables {
	if other == nil {
		return t
	}
	out := &Tables{
		Corrections:   append(append([]Correction{}, t.Corrections...), other.Corrections...),
		Abbreviations: append(append([]Pair{}, t.Abbreviations...), other.Abbreviations...),
		Synonyms:      append(append([][]string{}, t.Synonyms...), other.Synonyms...),
		Stopwords:     append(append([]string{}, t.Stopwords...), other.Stopwords...),
		Regions:       make(map[string]string, len(t.Regions)+len(other.Regions)),
	}
	for k, v := range t.Regions {
		out.Regions[k] = v
	}
	for k, v := range other.Regions {
		out.Regions[k] = v
	}
	return out
}

func (t *Tables) canonicalize() {
	for i := range t.Corrections {
		t.Corrections[i].Pattern = upper(t.Corrections[i].Pattern)
		t.Corrections[i].Replacement = upper(t.Corrections[i].Replacement)
	}
	for i := range t.Abbreviations {
		t.Abbreviations[i].Long = upper(t.Abbreviations[i].Long)
		for j := range t.Abbreviations[i].Short {
			t.Abbreviations[i].Short[j] = upper(t.Abbreviations[i].Short[j])
		}
	}
	for i := range t.Synonyms {
		for j := range t.Synonyms[i] {
			t.Synonyms[i][j] = upper(t.Synonyms[i][j])
		}
	}
	regions := make(map[string]string, len(t.Regions))
	for k, v := range t.Regions {
		regions[upper(k)] = upper(v)
	}
	t.Regions = regions
	for i := range t.Stopwords {
		t.Stopwords[i] = upper(t.Stopwords[i])
	}
}

// Validate rejects tables that could not reach a correction fix-point or that
// carry empty entries.
func (t *Tables) Validate() error {
	for i, c := range t.Corrections {
		if c.Pattern == "" {
			return eris.Errorf("tables: correction %d has empty pattern", i)
		}
		if !inCharset(c.Pattern) || !inCharset(c.Replacement) {
			return eris.Errorf("tables: correction %q uses characters outside the normalized set", c.Pattern)
		}
	}
	// A rule must not be able to re-trigger itself or another rule.
	for _, c := range t.Corrections {
		for _, other := range t.Corrections {
			if triggers(c.Replacement, other) {
				return eris.Errorf("tables: correction %q -> %q re-triggers %q", c.Pattern, c.Replacement, other.Pattern)
			}
		}
	}
	for i, p := range t.Abbreviations {
		if p.Long == "" || len(p.Short) == 0 {
			return eris.Errorf("tables: abbreviation %d is incomplete", i)
		}
		for _, s := range p.Short {
			if s == "" || s == p.Long {
				return eris.Errorf("tables: abbreviation %q has invalid short form %q", p.Long, s)
			}
		}
	}
	for i, g := range t.Synonyms {
		if len(g) < 2 {
			return eris.Errorf("tables: synonym group %d needs at least two members", i)
		}
		for _, m := range g {
			if m == "" {
				return eris.Errorf("tables: synonym group %d has an empty member", i)
			}
		}
	}
	for k, v := range t.Regions {
		if k == "" || v == "" {
			return eris.New("tables: region entries must be non-empty")
		}
	}
	return nil
}

func triggers(text string, rule Correction) bool {
	if !rule.WholeToken {
		return strings.Contains(text, rule.Pattern)
	}
	return IndexBounded(text, rule.Pattern, 0) >= 0
}

// IndexBounded finds pattern in s at or after from where it is not flanked by
// letters or digits. It returns -1 when there is no such occurrence.
func IndexBounded(s, pattern string, from int) int {
	if pattern == "" {
		return -1
	}
	for from <= len(s)-len(pattern) {
		i := strings.Index(s[from:], pattern)
		if i < 0 {
			return -1
		}
		i += from
		end := i + len(pattern)
		if (i == 0 || !IsAlnum(s[i-1])) && (end == len(s) || !IsAlnum(s[end])) {
			return i
		}
		from = i + 1
	}
	return -1
}

// IsAlnum reports whether b is an ASCII uppercase letter, lowercase letter,
// or digit.
func IsAlnum(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}

func inCharset(s string) bool {
	for i := 0; i < len(s); i++ {
		b := s[i]
		if IsAlnum(b) && !(b >= 'a' && b <= 'z') {
			continue
		}
		switch b {
		case ' ', '.', '-', '&', '(', ')', ',':
			continue
		}
		return false
	}
	return true
}

func upper(s string) string {
	return strings.Join(strings.Fields(strings.ToUpper(s)), " ")
}

// Index is the immutable lookup view of Tables used by matching.
type Index struct {
	phrases   map[string]int // space-joined member -> group id
	maxPhrase int
	groups    [][]string
	regions   map[string]string
	stopwords map[string]bool
}

// NewIndex builds lookup indices from t.
func NewIndex(t *Tables) *Index {
	idx := &Index{
		phrases:   make(map[string]int),
		groups:    t.Synonyms,
		regions:   t.Regions,
		stopwords: make(map[string]bool, len(t.Stopwords)),
	}
	for gid, g := range t.Synonyms {
		for _, m := range g {
			key := strings.Join(Tokens(m), " ")
			if key == "" {
				continue
			}
			if _, dup := idx.phrases[key]; !dup {
				idx.phrases[key] = gid
			}
			if n := len(strings.Fields(key)); n > idx.maxPhrase {
				idx.maxPhrase = n
			}
		}
	}
	for _, w := range t.Stopwords {
		idx.stopwords[w] = true
	}
	return idx
}

// IsStopword reports whether tok is a configured stopword.
func (x *Index) IsStopword(tok string) bool {
	return x.stopwords[tok]
}

// Region returns the region for a state or city term.
func (x *Index) Region(term string) (string, bool) {
	r, ok := x.regions[term]
	return r, ok
}

// IsRegion reports whether term names a region value.
func (x *Index) IsRegion(term string) bool {
	for _, r := range x.regions {
		if r == term {
			return true
		}
	}
	return false
}

// Canonical rewrites tokens so that every synonym phrase is replaced by a
// single group marker, matching the longest phrase first. The second result
// reports whether any synonym phrase was found.
func (x *Index) Canonical(tokens []string) ([]string, bool) {
	out := make([]string, 0, len(tokens))
	hit := false
	for i := 0; i < len(tokens); {
		matched := 0
		for n := min(x.maxPhrase, len(tokens)-i); n > 0; n-- {
			if gid, ok := x.phrases[strings.Join(tokens[i:i+n], " ")]; ok {
				out = append(out, groupMarker(gid))
				matched = n
				break
			}
		}
		if matched > 0 {
			hit = true
			i += matched
			continue
		}
		out = append(out, tokens[i])
		i++
	}
	return out, hit
}

// SynonymsOf returns the other members of the group term belongs to, sorted.
func (x *Index) SynonymsOf(term string) []string {
	gid, ok := x.phrases[strings.Join(Tokens(term), " ")]
	if !ok {
		return nil
	}
	var out []string
	for _, m := range x.groups[gid] {
		if m != term {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}

func groupMarker(gid int) string {
	return "~SYN" + strconv.Itoa(gid)
}

// Tokens splits s into runs of ASCII letters and digits.
func Tokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r > 0x7f || !IsAlnum(byte(r))
	})
}
