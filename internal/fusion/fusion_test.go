package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/counselling-resolver/internal/match"
	"github.com/sells-group/counselling-resolver/internal/refstore"
)

func entity(id, name string) *refstore.CanonicalEntity {
	return &refstore.CanonicalEntity{ID: id, Type: refstore.College, CanonicalName: name}
}

func cand(e *refstore.CanonicalEntity, strategy string, score float64, kind string) match.Candidate {
	return match.Candidate{Entity: e, Score: score, Kind: kind, Strategy: strategy}
}

func TestPriors(t *testing.T) {
	p := DefaultPriors()
	assert.Equal(t, 1.0, p.Prior(match.NameExact))
	assert.Equal(t, DefaultPrior, p.Prior("unknown"))
	require.NoError(t, ValidatePriors(p))

	merged := p.Merge(map[string]float64{"FUZZY": 0.7})
	assert.Equal(t, 0.7, merged.Prior(match.NameFuzzy))
	assert.Equal(t, 0.6, p.Prior(match.NameFuzzy), "merge does not mutate")

	err := ValidatePriors(Priors{"exact": 0, "fuzzy": 1.2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exact must be in (0, 1]")
	assert.Contains(t, err.Error(), "fuzzy must be in (0, 1]")
}

func TestWeights(t *testing.T) {
	s := NewScorer(nil)
	e := entity("c1", "S.K.S. COLLEGE")
	results := []match.StrategyResult{
		{Strategy: match.NameAbbreviation, Candidates: []match.Candidate{cand(e, match.NameAbbreviation, 80, "abbreviation")}},
		{Strategy: match.NameFuzzy},
		{Strategy: match.NameSubstring, Candidates: []match.Candidate{cand(e, match.NameSubstring, 60, "substring:contains")}},
	}

	w := s.Weights(match.Query{Text: "SKS"}, results)
	assert.InDelta(t, 0.95*1.5, w[match.NameAbbreviation], 1e-9)
	assert.InDelta(t, 0.06, w[match.NameFuzzy], 1e-9)
	assert.InDelta(t, 0.85, w[match.NameSubstring], 1e-9)

	w = s.Weights(match.Query{Text: "SUPER KIDS SCHOOL"}, results)
	assert.InDelta(t, 0.95, w[match.NameAbbreviation], 1e-9)
}

func TestFuse_ScoreComposition(t *testing.T) {
	e := entity("c1", "KASTURBA MEDICAL COLLEGE")
	results := []match.StrategyResult{
		{Strategy: match.NameSubstring, Candidates: []match.Candidate{cand(e, match.NameSubstring, 70, "substring:contains")}},
		{Strategy: match.NameTokenPrefix, Candidates: []match.Candidate{cand(e, match.NameTokenPrefix, 70, "token_prefix")}},
	}
	got := NewScorer(nil).Fuse(match.Query{Text: "KASTURBA MED"}, results)
	require.Len(t, got, 1)
	// 70*0.85 + 10 for the second strategy.
	assert.InDelta(t, 69.5, got[0].FinalScore, 1e-9)
	assert.Equal(t, []string{"substring:contains", "token_prefix"}, got[0].MatchKinds)
	assert.ElementsMatch(t, []string{match.NameSubstring, match.NameTokenPrefix}, got[0].Strategies())
}

func TestFuse_ExactBonusAndClamp(t *testing.T) {
	e := entity("c1", "PGIMER CHANDIGARH")
	results := []match.StrategyResult{
		{Strategy: match.NameExact, Candidates: []match.Candidate{cand(e, match.NameExact, 100, "exact")}},
	}
	got := NewScorer(nil).Fuse(match.Query{Text: "PGIMER CHANDIGARH"}, results)
	require.Len(t, got, 1)
	assert.Equal(t, MaxScore, got[0].FinalScore)
}

func TestFuse_FloorAt30(t *testing.T) {
	e := entity("c1", "BENGALURU MEDICAL COLLEGE")
	results := []match.StrategyResult{
		{Strategy: match.NameSynonym, Candidates: []match.Candidate{cand(e, match.NameSynonym, 30, "synonym")}},
	}
	got := NewScorer(nil).Fuse(match.Query{Text: "BANGALORE MEDICAL COLLEGE"}, results)
	require.Len(t, got, 1)
	assert.Equal(t, MinScore, got[0].FinalScore)
}

func TestFuse_AdditiveOnlyDropped(t *testing.T) {
	a := entity("c1", "PGIMER CHANDIGARH")
	b := entity("c2", "GOVERNMENT MEDICAL COLLEGE CHANDIGARH")
	boost := match.Candidate{Entity: b, Score: 100, Kind: "location:city", Strategy: match.NameLocation, Additive: true}
	results := []match.StrategyResult{
		{Strategy: match.NameSubstring, Candidates: []match.Candidate{cand(a, match.NameSubstring, 60, "substring:contains")}},
		{Strategy: match.NameLocation, Candidates: []match.Candidate{
			boost,
			{Entity: a, Score: 100, Kind: "location:city", Strategy: match.NameLocation, Additive: true},
		}},
	}
	got := NewScorer(nil).Fuse(match.Query{Text: "PGIMER"}, results)
	require.Len(t, got, 1)
	assert.Equal(t, "c1", got[0].Entity.ID)
	// 60*0.85 + 0.3*100 + 10.
	assert.InDelta(t, 91.0, got[0].FinalScore, 1e-9)
}

func TestFuse_AdditiveAndDirectFromSameStrategy(t *testing.T) {
	e := entity("c1", "PGIMER CHANDIGARH")
	results := []match.StrategyResult{
		{Strategy: match.NameLocation, Candidates: []match.Candidate{
			{Entity: e, Score: 100, Kind: "location:city", Strategy: match.NameLocation, Additive: true},
			{Entity: e, Score: 25, Kind: "location:bare-city", Strategy: match.NameLocation},
		}},
	}
	got := NewScorer(nil).Fuse(match.Query{Text: "CHANDIGARH"}, results)
	require.Len(t, got, 1)
	// 25*0.7 + 0.3*100, one distinct strategy.
	assert.InDelta(t, 47.5, got[0].FinalScore, 1e-9)
	assert.Len(t, got[0].Contributions, 2)
}

func TestFuse_MonotonicCorroboration(t *testing.T) {
	e := entity("c1", "KASTURBA MEDICAL COLLEGE")
	s := NewScorer(nil)
	q := match.Query{Text: "KASTERBA MEDICAL COLLEGE"}

	base := []match.StrategyResult{
		{Strategy: match.NameFuzzy, Candidates: []match.Candidate{cand(e, match.NameFuzzy, 50, "fuzzy:distance=1")}},
		{Strategy: match.NamePhonetic},
	}
	before := s.Fuse(q, base)
	require.Len(t, before, 1)

	more := []match.StrategyResult{
		base[0],
		{Strategy: match.NamePhonetic, Candidates: []match.Candidate{cand(e, match.NamePhonetic, 50, "phonetic:soundex+metaphone")}},
	}
	after := s.Fuse(q, more)
	require.Len(t, after, 1)
	assert.GreaterOrEqual(t, after[0].FinalScore, before[0].FinalScore)
}

func TestFuse_BestCandidatePerStrategy(t *testing.T) {
	e := entity("c1", "KASTURBA MEDICAL COLLEGE")
	results := []match.StrategyResult{
		{Strategy: match.NameFuzzy, Candidates: []match.Candidate{
			cand(e, match.NameFuzzy, 30, "fuzzy:distance=3"),
			cand(e, match.NameFuzzy, 50, "fuzzy:distance=1"),
		}},
	}
	got := NewScorer(nil).Fuse(match.Query{Text: "X"}, results)
	require.Len(t, got, 1)
	require.Len(t, got[0].Contributions, 1)
	assert.Equal(t, 50.0, got[0].Contributions[0].RawScore)
	assert.Equal(t, []string{"fuzzy:distance=1"}, got[0].MatchKinds)
}

func TestFuse_TieBreak(t *testing.T) {
	long := entity("c1", "AIIMS NEW DELHI")
	short := entity("c2", "AIIMS DELHI")
	alpha := entity("c0", "AIIMS PATNA")
	var cands []match.Candidate
	for _, e := range []*refstore.CanonicalEntity{long, short, alpha} {
		cands = append(cands, cand(e, match.NameSubstring, 60, "substring:contains"))
	}
	got := NewScorer(nil).Fuse(match.Query{Text: "AIIMS"}, []match.StrategyResult{
		{Strategy: match.NameSubstring, Candidates: cands},
	})
	require.Len(t, got, 3)
	assert.Equal(t, "c2", got[0].Entity.ID)
	assert.Equal(t, "c0", got[1].Entity.ID)
	assert.Equal(t, "c1", got[2].Entity.ID)
}

func TestFuse_FailedStrategiesIgnored(t *testing.T) {
	e := entity("c1", "PGIMER CHANDIGARH")
	results := []match.StrategyResult{
		{Strategy: match.NameRegex, TimedOut: true},
		{Strategy: match.NamePhonetic, Err: assert.AnError},
		{Strategy: match.NameExact, Candidates: []match.Candidate{cand(e, match.NameExact, 100, "exact")}},
	}
	got := NewScorer(nil).Fuse(match.Query{Text: "PGIMER CHANDIGARH"}, results)
	require.Len(t, got, 1)
	assert.Equal(t, []string{match.NameExact}, got[0].Strategies())
}

func TestFuse_Empty(t *testing.T) {
	assert.Empty(t, NewScorer(nil).Fuse(match.Query{}, nil))
}
