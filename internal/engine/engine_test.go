package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/counselling-resolver/internal/fusion"
	"github.com/sells-group/counselling-resolver/internal/match"
	"github.com/sells-group/counselling-resolver/internal/refstore"
	"github.com/sells-group/counselling-resolver/internal/tables"
	"github.com/sells-group/counselling-resolver/internal/variation"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var reference = refstore.StaticLoader{
	{ID: "c1", Type: "college", Name: "All India Institute of Medical Sciences, New Delhi", Aliases: []string{"AIIMS Delhi"}, City: "New Delhi", State: "Delhi"},
	{ID: "c2", Type: "college", Name: "PGIMER Chandigarh", City: "Chandigarh", State: "Chandigarh"},
	{ID: "c3", Type: "college", Name: "Kasturba Medical College", City: "Manipal", State: "Karnataka"},
	{ID: "c4", Type: "college", Name: "S.K.S. College of Nursing", City: "Pune", State: "Maharashtra"},
	{ID: "c5", Type: "college", Name: "Super Kids School of Nursing", City: "Pune", State: "Maharashtra"},
	{ID: "c6", Type: "college", Name: "A.J. Institute of Medical Sciences", City: "Mangalore", State: "Karnataka"},
	{ID: "p1", Type: "program", Name: "MBBS"},
	{ID: "p2", Type: "program", Name: "BDS"},
	{ID: "q1", Type: "quota", Name: "All India Quota"},
}

func newEngine(t *testing.T, loader refstore.Loader) *Engine {
	t.Helper()
	opts := DefaultOptions()
	opts.CacheTTL = time.Minute
	e, err := New(tables.Default(), opts)
	require.NoError(t, err)
	_, err = e.Reload(context.Background(), loader)
	require.NoError(t, err)
	return e
}

func ids(results []fusion.Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Entity.ID
	}
	return out
}

func TestResolve_PGIMERWithLocationHint(t *testing.T) {
	e := newEngine(t, reference)
	res, err := e.ResolveEntity(context.Background(), "PGIMER,,", refstore.College, &refstore.Location{City: "chandigarh"})
	require.NoError(t, err)
	require.NotEmpty(t, res)

	top := res[0]
	assert.Equal(t, "c2", top.Entity.ID)
	assert.GreaterOrEqual(t, top.FinalScore, 80.0)
	assert.Contains(t, top.Strategies(), match.NameSubstring)
	assert.Contains(t, top.Strategies(), match.NameLocation)
}

func TestResolve_SKSAbbreviation(t *testing.T) {
	e := newEngine(t, reference)
	res, err := e.ResolveEntity(context.Background(), "SKS", refstore.College, nil)
	require.NoError(t, err)
	require.NotEmpty(t, res)

	assert.Equal(t, "c4", res[0].Entity.ID)
	assert.GreaterOrEqual(t, res[0].FinalScore, 60.0)
	assert.Contains(t, res[0].Strategies(), match.NameAbbreviation)
	assert.NotContains(t, ids(res), "c5")
}

func TestResolve_AbbreviationRoundTrip(t *testing.T) {
	e := newEngine(t, reference)
	for _, q := range []string{"A J", "AJ", "A.J."} {
		res, err := e.ResolveEntity(context.Background(), q, refstore.College, nil)
		require.NoError(t, err, q)
		require.NotEmpty(t, res, q)
		assert.Equal(t, "c6", res[0].Entity.ID, q)
		assert.GreaterOrEqual(t, res[0].FinalScore, 70.0, q)
	}
}

func TestResolve_ExactSymmetry(t *testing.T) {
	e := newEngine(t, refstore.StaticLoader{
		{ID: "c1", Type: "college", Name: "All India Institute of Medical Sciences, New Delhi", Aliases: []string{"AIIMS Delhi"}},
		{ID: "c2", Type: "college", Name: "PGIMER Chandigarh"},
		{ID: "c3", Type: "college", Name: "Kasturba Medical College"},
	})
	for _, ent := range e.Store().Entities(refstore.College) {
		for _, v := range ent.Variations {
			res, err := e.ResolveEntity(context.Background(), v, refstore.College, nil)
			require.NoError(t, err, v)
			require.NotEmpty(t, res, v)
			assert.Equal(t, ent.ID, res[0].Entity.ID, v)
			assert.Equal(t, 100.0, res[0].FinalScore, v)
		}
	}
}

func TestResolve_EmptyQuery(t *testing.T) {
	e := newEngine(t, reference)
	for _, q := range []string{"", "   ", "\t"} {
		res, err := e.ResolveEntity(context.Background(), q, refstore.College, nil)
		require.NoError(t, err)
		assert.Empty(t, res)
	}
	res, err := e.ResolveEntity(context.Background(), "@@@", refstore.College, nil)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestResolve_NoMatch(t *testing.T) {
	e := newEngine(t, reference)
	res, err := e.ResolveEntity(context.Background(), "ZZZZZZZZ QQQQQQQ", refstore.College, nil)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestResolve_ScopedToType(t *testing.T) {
	e := newEngine(t, reference)
	res, err := e.ResolveEntity(context.Background(), "MBBS", refstore.Program, nil)
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.Equal(t, "p1", res[0].Entity.ID)
	for _, r := range res {
		assert.Equal(t, refstore.Program, r.Entity.Type)
	}
}

func TestResolve_Errors(t *testing.T) {
	e, err := New(nil, DefaultOptions())
	require.NoError(t, err)

	_, err = e.ResolveEntity(context.Background(), "AIIMS", refstore.College, nil)
	assert.True(t, eris.Is(err, ErrNotLoaded))

	_, err = e.Reload(context.Background(), reference)
	require.NoError(t, err)
	_, err = e.Search(context.Background(), "AIIMS", refstore.EntityType("hospital"), 5)
	assert.True(t, eris.Is(err, refstore.ErrUnknownEntityType))
}

func TestNew_InvalidPriors(t *testing.T) {
	opts := DefaultOptions()
	opts.Priors = fusion.Priors{match.NameExact: 2}
	_, err := New(nil, opts)
	assert.Error(t, err)
}

func TestSearch_Limit(t *testing.T) {
	e := newEngine(t, reference)
	all, err := e.Search(context.Background(), "Medical", refstore.College, 100)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(all), 2)

	one, err := e.Search(context.Background(), "Medical", refstore.College, 1)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, all[0].Entity.ID, one[0].Entity.ID)
}

func TestSearch_Wildcard(t *testing.T) {
	e := newEngine(t, reference)
	res, err := e.Search(context.Background(), "kast*", refstore.College, 10)
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.Equal(t, "c3", res[0].Entity.ID)
}

func TestSearchPattern(t *testing.T) {
	e := newEngine(t, reference)
	res, err := e.SearchPattern(context.Background(), "nursing$", refstore.College, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c4", "c5"}, ids(res))

	res, err = e.SearchPattern(context.Background(), "([", refstore.College, 10)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestDisabledStrategies(t *testing.T) {
	opts := DefaultOptions()
	opts.Disabled = []string{"Regex", " wildcard "}
	e, err := New(nil, opts)
	require.NoError(t, err)
	assert.NotContains(t, e.Strategies(), match.NameRegex)
	assert.NotContains(t, e.Strategies(), match.NameWildcard)
	assert.Contains(t, e.Strategies(), match.NameExact)
}

func TestReload_RejectsBadDataAtomically(t *testing.T) {
	e := newEngine(t, reference)
	before := e.Store()

	_, err := e.Reload(context.Background(), refstore.StaticLoader{
		{ID: "x1", Type: "college", Name: "New College"},
		{ID: "x1", Type: "college", Name: "Duplicate College"},
	})
	require.Error(t, err)
	assert.Same(t, before, e.Store())

	_, err = e.Reload(context.Background(), refstore.StaticLoader{})
	require.Error(t, err)
	assert.Same(t, before, e.Store())

	res, err := e.ResolveEntity(context.Background(), "PGIMER Chandigarh", refstore.College, nil)
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.Equal(t, "c2", res[0].Entity.ID)
}

func TestReload_NewDataVisible(t *testing.T) {
	e := newEngine(t, reference)
	v1 := e.Store().Version()

	_, err := e.Reload(context.Background(), refstore.StaticLoader{
		{ID: "c9", Type: "college", Name: "Grant Medical College", City: "Mumbai", State: "Maharashtra"},
	})
	require.NoError(t, err)
	assert.NotEqual(t, v1, e.Store().Version())

	res, err := e.ResolveEntity(context.Background(), "Grant Medical College", refstore.College, nil)
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.Equal(t, "c9", res[0].Entity.ID)
}

func TestCache_HitAndPurgeOnReload(t *testing.T) {
	stub := &stubStrategy{name: match.NameExact, applies: true, fn: returning(100)}
	opts := DefaultOptions()
	e := NewWithStrategies(nil, opts, []match.Strategy{stub})
	_, err := e.Reload(context.Background(), reference)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = e.ResolveEntity(ctx, "pgimer", refstore.College, nil)
	require.NoError(t, err)
	_, err = e.ResolveEntity(ctx, "PGIMER", refstore.College, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), stub.calls.Load(), "normalized duplicate served from cache")

	_, err = e.ResolveEntity(ctx, "PGIMER", refstore.College, &refstore.Location{City: "Chandigarh"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), stub.calls.Load(), "hint is part of the key")

	_, err = e.Reload(ctx, reference)
	require.NoError(t, err)
	_, err = e.ResolveEntity(ctx, "PGIMER", refstore.College, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(3), stub.calls.Load())
}

func TestCache_ResultsAreCopies(t *testing.T) {
	e := newEngine(t, reference)
	a, err := e.ResolveEntity(context.Background(), "AIIMS Delhi", refstore.College, nil)
	require.NoError(t, err)
	require.NotEmpty(t, a)
	a[0] = fusion.Result{}

	b, err := e.ResolveEntity(context.Background(), "AIIMS Delhi", refstore.College, nil)
	require.NoError(t, err)
	require.NotEmpty(t, b)
	assert.NotNil(t, b[0].Entity)
}

func TestPartialFailure_EndToEnd(t *testing.T) {
	tb := tables.Default()
	opts := DefaultOptions()
	opts.StrategyTimeout = 30 * time.Millisecond
	opts.OverallTimeout = 500 * time.Millisecond
	opts.CacheSize = 0

	gen := variation.NewGenerator(tb)
	strategies := append(match.Default(tb, gen, opts.Match),
		&stubStrategy{name: "broken", applies: true, fn: panicking},
		&stubStrategy{name: "stuck", applies: true, fn: hanging},
	)
	e := NewWithStrategies(tb, opts, strategies)
	_, err := e.Reload(context.Background(), reference)
	require.NoError(t, err)

	start := time.Now()
	res, err := e.ResolveEntity(context.Background(), "Kasturba Medical College", refstore.College, nil)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), opts.OverallTimeout+200*time.Millisecond)
	require.NotEmpty(t, res)
	assert.Equal(t, "c3", res[0].Entity.ID)
	assert.Equal(t, 100.0, res[0].FinalScore)
}

func TestConcurrentResolveDuringReload(t *testing.T) {
	e := newEngine(t, reference)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				res, err := e.ResolveEntity(ctx, "Kasturba Medical College", refstore.College, nil)
				assert.NoError(t, err)
				if assert.NotEmpty(t, res) {
					assert.Equal(t, "c3", res[0].Entity.ID)
				}
			}
		}()
	}
	for i := 0; i < 5; i++ {
		_, err := e.Reload(ctx, reference)
		require.NoError(t, err)
	}
	wg.Wait()
}
