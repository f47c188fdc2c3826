package refstore

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/counselling-resolver/internal/normalize"
	"github.com/sells-group/counselling-resolver/internal/tables"
	"github.com/sells-group/counselling-resolver/internal/variation"
)

// ErrInvalidEntity marks a reference record that cannot be loaded.
var ErrInvalidEntity = eris.New("refstore: invalid entity")

// Record is a raw reference row as supplied by a Loader.
type Record struct {
	ID      string   `yaml:"id"`
	Type    string   `yaml:"type"`
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
	State   string   `yaml:"state"`
	City    string   `yaml:"city"`
	Region  string   `yaml:"region"`
}

// Builder turns raw records into canonical entities.
type Builder struct {
	norm *normalize.Normalizer
	gen  *variation.Generator
	idx  *tables.Index
}

// NewBuilder creates a Builder sharing the engine's normalizer, variation
// generator, and table index.
func NewBuilder(norm *normalize.Normalizer, gen *variation.Generator, idx *tables.Index) *Builder {
	return &Builder{norm: norm, gen: gen, idx: idx}
}

// Build validates records and constructs a new immutable Store. Any invalid
// record rejects the whole build.
func (b *Builder) Build(records []Record) (*Store, error) {
	s := &Store{
		version:  uuid.NewString(),
		loadedAt: time.Now().UTC(),
		byType:   make(map[EntityType][]*CanonicalEntity),
		byID:     make(map[entityKey]*CanonicalEntity, len(records)),
	}

	for i, r := range records {
		e, err := b.entity(r)
		if err != nil {
			return nil, eris.Wrapf(err, "refstore: record %d", i)
		}
		key := entityKey{typ: e.Type, id: e.ID}
		if _, dup := s.byID[key]; dup {
			return nil, eris.Wrapf(ErrInvalidEntity, "record %d: duplicate %s id %q", i, e.Type, e.ID)
		}
		s.byID[key] = e
		s.byType[e.Type] = append(s.byType[e.Type], e)
	}

	for _, list := range s.byType {
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	}
	return s, nil
}

func (b *Builder) entity(r Record) (*CanonicalEntity, error) {
	if r.ID == "" {
		return nil, eris.Wrap(ErrInvalidEntity, "empty id")
	}
	typ, err := ParseEntityType(r.Type)
	if err != nil {
		return nil, eris.Wrapf(ErrInvalidEntity, "id %q: %v", r.ID, err)
	}
	name := b.norm.Normalize(r.Name)
	if name == "" {
		return nil, eris.Wrapf(ErrInvalidEntity, "id %q: empty name", r.ID)
	}

	e := &CanonicalEntity{
		ID:            r.ID,
		Type:          typ,
		CanonicalName: name,
		TermVector:    b.gen.TermVector(name),
		variationSet:  make(map[string]bool),
	}

	spelled := make(map[string]bool)
	sources := append([]string{name}, r.Aliases...)
	for i, src := range sources {
		if i > 0 {
			src = b.norm.Normalize(src)
		}
		for _, v := range b.gen.Of(src) {
			if e.variationSet[v] {
				continue
			}
			e.variationSet[v] = true
			e.Variations = append(e.Variations, v)
		}
		for _, v := range b.gen.QueryForms(src) {
			if !spelled[v] {
				spelled[v] = true
				e.spellings = append(e.spellings, v)
			}
		}
	}

	if loc := b.location(r); !loc.IsZero() {
		e.Location = loc
	}
	return e, nil
}

func (b *Builder) location(r Record) *Location {
	loc := &Location{
		State:  b.norm.Normalize(r.State),
		City:   b.norm.Normalize(r.City),
		Region: b.norm.Normalize(r.Region),
	}
	if loc.Region == "" && b.idx != nil {
		if reg, ok := b.idx.Region(loc.City); ok {
			loc.Region = reg
		} else if reg, ok := b.idx.Region(loc.State); ok {
			loc.Region = reg
		}
	}
	return loc
}

type entityKey struct {
	typ EntityType
	id  string
}

// Store is an immutable snapshot of the reference data.
type Store struct {
	version  string
	loadedAt time.Time
	byType   map[EntityType][]*CanonicalEntity
	byID     map[entityKey]*CanonicalEntity
}

// Version identifies this snapshot; every Build produces a new one.
func (s *Store) Version() string {
	return s.version
}

// LoadedAt returns when the snapshot was built.
func (s *Store) LoadedAt() time.Time {
	return s.loadedAt
}

// Entities returns the entities of type t ordered by ID. The slice is shared
// and must not be modified.
func (s *Store) Entities(t EntityType) []*CanonicalEntity {
	return s.byType[t]
}

// Get looks up an entity by type and ID.
func (s *Store) Get(t EntityType, id string) (*CanonicalEntity, bool) {
	e, ok := s.byID[entityKey{typ: t, id: id}]
	return e, ok
}

// Counts returns the number of entities per type.
func (s *Store) Counts() map[EntityType]int {
	out := make(map[EntityType]int, len(s.byType))
	for t, list := range s.byType {
		out[t] = len(list)
	}
	return out
}

// Len returns the total number of entities.
func (s *Store) Len() int {
	return len(s.byID)
}

// Holder publishes the active Store. Readers get a consistent snapshot;
// Swap replaces it atomically.
type Holder struct {
	p atomic.Pointer[Store]
}

// Current returns the active snapshot, or nil before the first load.
func (h *Holder) Current() *Store {
	return h.p.Load()
}

// Swap installs s and returns the previous snapshot.
func (h *Holder) Swap(s *Store) *Store {
	return h.p.Swap(s)
}
