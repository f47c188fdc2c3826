package match

import (
	"context"
	"strings"

	"github.com/sells-group/counselling-resolver/internal/refstore"
	"github.com/sells-group/counselling-resolver/internal/tables"
	"github.com/sells-group/counselling-resolver/internal/variation"
)

// Location boosts colleges whose city, state, or region agrees with the
// caller's hint or with a trailing ", CITY" in the query. Those candidates
// are additive: they only strengthen colleges another strategy found. A
// query that is nothing but a location name yields low stand-alone scores.
type Location struct {
	idx *tables.Index
}

// NewLocation creates a Location strategy over idx.
func NewLocation(idx *tables.Index) Location {
	return Location{idx: idx}
}

// Name implements Strategy.
func (Location) Name() string { return NameLocation }

// Applies implements Strategy.
func (Location) Applies(q Query) bool {
	return !q.Empty() && q.Type == refstore.College
}

type locationTerms struct {
	cities, states, regions map[string]bool
}

// Match implements Strategy.
func (l Location) Match(ctx context.Context, q Query, entities []*refstore.CanonicalEntity) ([]Candidate, error) {
	inferred := l.infer(q)
	bare := l.term(variation.CommaHead(q.Text))

	boost, standalone := newCollector(NameLocation), newCollector(NameLocation)
	for i, e := range entities {
		if err := checkCtx(ctx, i); err != nil {
			return nil, err
		}
		if e.Location.IsZero() {
			continue
		}
		city, state, region := l.term(e.Location.City), l.term(e.Location.State), l.term(e.Location.Region)

		switch {
		case city != "" && inferred.cities[city]:
			boost.put(Candidate{Entity: e, Score: 100, Kind: "location:city", Strategy: NameLocation, Additive: true})
		case state != "" && inferred.states[state]:
			boost.put(Candidate{Entity: e, Score: 80, Kind: "location:state", Strategy: NameLocation, Additive: true})
		case region != "" && inferred.regions[region]:
			boost.put(Candidate{Entity: e, Score: 50, Kind: "location:region", Strategy: NameLocation, Additive: true})
		}

		switch bare {
		case "":
		case city:
			standalone.add(e, 25, "location:bare-city")
		case state:
			standalone.add(e, 20, "location:bare-state")
		case region:
			standalone.add(e, 15, "location:bare-region")
		}
	}
	return append(boost.result(), standalone.result()...), nil
}

func (l Location) infer(q Query) locationTerms {
	t := locationTerms{
		cities:  make(map[string]bool),
		states:  make(map[string]bool),
		regions: make(map[string]bool),
	}
	addPlace := func(place string, set map[string]bool) {
		if p := l.term(place); p != "" {
			set[p] = true
			if reg, ok := l.idx.Region(place); ok {
				t.regions[l.term(reg)] = true
			}
		}
	}
	if h := q.Location; !h.IsZero() {
		addPlace(h.City, t.cities)
		addPlace(h.State, t.states)
		if r := l.term(h.Region); r != "" {
			t.regions[r] = true
		}
	}
	if tail := variation.CommaTail(q.Text); tail != "" {
		// A trailing segment may name either a city or a state.
		addPlace(tail, t.cities)
		addPlace(tail, t.states)
	}
	return t
}

// term canonicalizes a place name so that synonyms compare equal.
func (l Location) term(s string) string {
	toks, _ := l.idx.Canonical(tables.Tokens(s))
	return strings.Join(toks, " ")
}
