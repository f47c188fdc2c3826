package fusion

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/counselling-resolver/internal/match"
)

// DefaultPrior is used for strategies without a configured prior.
const DefaultPrior = 0.5

// Priors maps a strategy name to its expected accuracy in (0, 1].
type Priors map[string]float64

// DefaultPriors returns the standard reliability priors.
func DefaultPriors() Priors {
	return Priors{
		match.NameExact:        1.0,
		match.NameAbbreviation: 0.95,
		match.NameSubstring:    0.85,
		match.NameTokenPrefix:  0.85,
		match.NameLocation:     0.7,
		match.NameFuzzy:        0.6,
		match.NamePhonetic:     0.6,
		match.NameCosine:       0.6,
		match.NameRegex:        0.55,
		match.NameWildcard:     0.5,
		match.NameSynonym:      0.45,
	}
}

// Prior returns the prior for a strategy, or DefaultPrior.
func (p Priors) Prior(strategy string) float64 {
	if v, ok := p[strategy]; ok {
		return v
	}
	return DefaultPrior
}

// Merge returns p overlaid with other.
func (p Priors) Merge(other map[string]float64) Priors {
	out := make(Priors, len(p)+len(other))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range other {
		out[strings.ToLower(k)] = v
	}
	return out
}

// ValidatePriors checks that every prior is in (0, 1].
func ValidatePriors(p Priors) error {
	var errs []string
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if v := p[name]; v <= 0 || v > 1 {
			errs = append(errs, fmt.Sprintf("%s must be in (0, 1], got %.2f", name, v))
		}
	}
	if len(errs) > 0 {
		return eris.Errorf("fusion: priors validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
