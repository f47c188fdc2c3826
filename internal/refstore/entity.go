// Package refstore holds the canonical reference entities that noisy
// counselling fields are reconciled against. A Store is built once per load
// and is read-only afterwards; reloads swap a whole new Store in.
package refstore

import (
	"strings"

	"github.com/rotisserie/eris"
)

// EntityType identifies a kind of canonical entity.
type EntityType string

// Entity types.
const (
	College  EntityType = "college"
	Program  EntityType = "program"
	Quota    EntityType = "quota"
	Category EntityType = "category"
	State    EntityType = "state"
)

// EntityTypes lists every supported entity type in display order.
var EntityTypes = []EntityType{College, Program, Quota, Category, State}

// ErrUnknownEntityType is returned when a type name is not recognized.
var ErrUnknownEntityType = eris.New("refstore: unknown entity type")

// ParseEntityType parses a case-insensitive type name. Plural forms are
// accepted ("colleges").
func ParseEntityType(s string) (EntityType, error) {
	t := strings.ToLower(strings.TrimSpace(s))
	t = strings.TrimSuffix(t, "s")
	if t == "categorie" {
		t = "category"
	}
	for _, et := range EntityTypes {
		if string(et) == t {
			return et, nil
		}
	}
	return "", eris.Wrapf(ErrUnknownEntityType, "type %q", s)
}

// Location places a college geographically. All fields are normalized.
type Location struct {
	State  string `json:"state,omitempty" yaml:"state"`
	City   string `json:"city,omitempty" yaml:"city"`
	Region string `json:"region,omitempty" yaml:"region"`
}

// IsZero reports whether l carries no location data.
func (l *Location) IsZero() bool {
	return l == nil || (l.State == "" && l.City == "" && l.Region == "")
}

// CanonicalEntity is an authoritative record noisy input is reconciled
// against. It must not be modified after Build returns.
type CanonicalEntity struct {
	ID            string             `json:"id"`
	Type          EntityType         `json:"type"`
	CanonicalName string             `json:"name"`
	Variations    []string           `json:"variations,omitempty"`
	Location      *Location          `json:"location,omitempty"`
	TermVector    map[string]float64 `json:"-"`

	variationSet map[string]bool
	spellings    []string
}

// HasVariation reports whether v is one of the entity's surface forms.
func (e *CanonicalEntity) HasVariation(v string) bool {
	return e.variationSet[v]
}

// Spellings returns the canonical name followed by every variation that is
// not a synthesized initials form. Strategies that compare letter by letter
// use these so that "SKSN" never stands in for "SUPER KIDS SCHOOL OF NURSING".
func (e *CanonicalEntity) Spellings() []string {
	return e.spellings
}
