// Package engine resolves noisy text against the canonical reference store.
// It runs the matching strategies in parallel, fuses their candidates, and
// caches the ranked results until the next reload.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/counselling-resolver/internal/fusion"
	"github.com/sells-group/counselling-resolver/internal/match"
	"github.com/sells-group/counselling-resolver/internal/normalize"
	"github.com/sells-group/counselling-resolver/internal/refstore"
	"github.com/sells-group/counselling-resolver/internal/tables"
	"github.com/sells-group/counselling-resolver/internal/variation"
)

// ErrNotLoaded is returned by queries issued before the first successful
// Reload.
var ErrNotLoaded = eris.New("engine: reference store not loaded")

// Options configures an Engine.
type Options struct {
	StrategyTimeout time.Duration
	OverallTimeout  time.Duration
	SearchLimit     int
	CacheSize       int // 0 disables the result cache
	CacheTTL        time.Duration
	Disabled        []string // strategy names to skip
	Match           match.Options
	Priors          fusion.Priors
}

// DefaultOptions returns the standard engine configuration.
func DefaultOptions() Options {
	return Options{
		StrategyTimeout: DefaultStrategyTimeout,
		OverallTimeout:  time.Second,
		SearchLimit:     20,
		CacheSize:       2048,
		CacheTTL:        5 * time.Minute,
		Match:           match.DefaultOptions(),
		Priors:          fusion.DefaultPriors(),
	}
}

// Request is a single resolution request.
type Request struct {
	Text    string
	Type    refstore.EntityType
	Hint    *refstore.Location
	Pattern bool // Text is a regular expression
}

// Engine is the resolution facade. It is safe for concurrent use; reloads
// never block queries.
type Engine struct {
	opts    Options
	norm    *normalize.Normalizer
	gen     *variation.Generator
	builder *refstore.Builder
	orch    *Orchestrator
	scorer  *fusion.Scorer
	holder  refstore.Holder
	cache   *expirable.LRU[string, []fusion.Result]
}

// New creates an Engine over the given tables. The engine holds no
// reference data until Reload succeeds.
func New(t *tables.Tables, opts Options) (*Engine, error) {
	if t == nil {
		t = tables.Default()
	}
	if opts.Priors == nil {
		opts.Priors = fusion.DefaultPriors()
	}
	if err := fusion.ValidatePriors(opts.Priors); err != nil {
		return nil, eris.Wrap(err, "engine: invalid priors")
	}
	if opts.Match == (match.Options{}) {
		opts.Match = match.DefaultOptions()
	}
	gen := variation.NewGenerator(t)

	disabled := make(map[string]bool, len(opts.Disabled))
	for _, name := range opts.Disabled {
		disabled[strings.ToLower(strings.TrimSpace(name))] = true
	}
	var strategies []match.Strategy
	for _, s := range match.Default(t, gen, opts.Match) {
		if !disabled[s.Name()] {
			strategies = append(strategies, s)
		}
	}
	return NewWithStrategies(t, opts, strategies), nil
}

// NewWithStrategies creates an Engine with an explicit strategy set.
func NewWithStrategies(t *tables.Tables, opts Options, strategies []match.Strategy) *Engine {
	if t == nil {
		t = tables.Default()
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = DefaultOptions().SearchLimit
	}
	norm := normalize.New(t.Corrections)
	gen := variation.NewGenerator(t)
	e := &Engine{
		opts:    opts,
		norm:    norm,
		gen:     gen,
		builder: refstore.NewBuilder(norm, gen, tables.NewIndex(t)),
		orch:    NewOrchestrator(strategies, opts.StrategyTimeout),
		scorer:  fusion.NewScorer(opts.Priors),
	}
	if opts.CacheSize > 0 {
		e.cache = expirable.NewLRU[string, []fusion.Result](opts.CacheSize, nil, opts.CacheTTL)
	}
	return e
}

// Store returns the active reference snapshot, or nil before the first load.
func (e *Engine) Store() *refstore.Store {
	return e.holder.Current()
}

// Strategies returns the enabled strategy names.
func (e *Engine) Strategies() []string {
	return e.orch.Strategies()
}

// Normalize exposes the engine's normalizer.
func (e *Engine) Normalize(s string) string {
	return e.norm.Normalize(s)
}

// Reload builds a new store from loader and swaps it in. On any error the
// previously active store stays in place.
func (e *Engine) Reload(ctx context.Context, loader refstore.Loader) (*refstore.Store, error) {
	start := time.Now()
	records, err := loader.Load(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "engine: load reference records")
	}
	if len(records) == 0 {
		return nil, eris.Wrap(refstore.ErrInvalidEntity, "engine: reference source is empty")
	}
	s, err := e.builder.Build(records)
	if err != nil {
		return nil, eris.Wrap(err, "engine: build reference store")
	}

	prev := e.holder.Swap(s)
	if e.cache != nil {
		e.cache.Purge()
	}

	fields := []zap.Field{
		zap.String("version", s.Version()),
		zap.Int("entities", s.Len()),
		zap.Duration("elapsed", time.Since(start)),
	}
	if prev != nil {
		fields = append(fields, zap.String("previous", prev.Version()))
	}
	for t, n := range s.Counts() {
		fields = append(fields, zap.Int(string(t), n))
	}
	zap.L().Info("engine: reference store loaded", fields...)
	return s, nil
}

// ResolveEntity maps a noisy field onto ranked canonical candidates. An
// empty list means no match; deciding what to do about that is up to the
// caller.
func (e *Engine) ResolveEntity(ctx context.Context, raw string, t refstore.EntityType, hint *refstore.Location) ([]fusion.Result, error) {
	return e.Resolve(ctx, Request{Text: raw, Type: t, Hint: hint})
}

// Search returns at most limit ranked results for a free-text query. A
// non-positive limit uses the configured default.
func (e *Engine) Search(ctx context.Context, query string, t refstore.EntityType, limit int) ([]fusion.Result, error) {
	res, err := e.Resolve(ctx, Request{Text: query, Type: t})
	if err != nil {
		return nil, err
	}
	return e.truncate(res, limit), nil
}

// SearchPattern treats pattern as a case-insensitive regular expression.
func (e *Engine) SearchPattern(ctx context.Context, pattern string, t refstore.EntityType, limit int) ([]fusion.Result, error) {
	res, err := e.Resolve(ctx, Request{Text: pattern, Type: t, Pattern: true})
	if err != nil {
		return nil, err
	}
	return e.truncate(res, limit), nil
}

// Resolve runs one request through the strategies and fusion. The returned
// slice is owned by the caller.
func (e *Engine) Resolve(ctx context.Context, req Request) ([]fusion.Result, error) {
	store := e.holder.Current()
	if store == nil {
		return nil, ErrNotLoaded
	}
	if !validType(req.Type) {
		return nil, eris.Wrapf(refstore.ErrUnknownEntityType, "type %q", req.Type)
	}
	if strings.TrimSpace(req.Text) == "" {
		return []fusion.Result{}, nil
	}

	q := e.query(req)
	key := cacheKey(store.Version(), q)
	if e.cache != nil {
		if hit, ok := e.cache.Get(key); ok {
			return append([]fusion.Result(nil), hit...), nil
		}
	}

	if e.opts.OverallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.OverallTimeout)
		defer cancel()
	}

	results := e.orch.Run(ctx, q, store.Entities(q.Type))
	fused := e.scorer.Fuse(q, results)
	if fused == nil {
		fused = []fusion.Result{}
	}

	zap.L().Debug("engine: resolved",
		zap.String("query", q.Text),
		zap.String("type", string(q.Type)),
		zap.Int("results", len(fused)),
	)

	// Results computed under an expired deadline are partial and not cached.
	if e.cache != nil && ctx.Err() == nil {
		e.cache.Add(key, fused)
	}
	return append([]fusion.Result(nil), fused...), nil
}

func (e *Engine) query(req Request) match.Query {
	text := e.norm.Normalize(req.Text)
	q := match.Query{
		Raw:     req.Text,
		Text:    text,
		Forms:   e.gen.QueryForms(text),
		Type:    req.Type,
		Pattern: req.Pattern,
	}
	if !req.Hint.IsZero() {
		hint := &refstore.Location{
			State:  e.norm.Normalize(req.Hint.State),
			City:   e.norm.Normalize(req.Hint.City),
			Region: e.norm.Normalize(req.Hint.Region),
		}
		if !hint.IsZero() {
			q.Location = hint
		}
	}
	return q
}

func (e *Engine) truncate(res []fusion.Result, limit int) []fusion.Result {
	if limit <= 0 {
		limit = e.opts.SearchLimit
	}
	if len(res) > limit {
		res = res[:limit]
	}
	return res
}

func cacheKey(version string, q match.Query) string {
	var loc string
	if q.Location != nil {
		loc = q.Location.State + "/" + q.Location.City + "/" + q.Location.Region
	}
	// Wildcard and regex strategies read the raw text.
	text := q.Text
	if q.Pattern || text == "" || strings.ContainsAny(q.Raw, "*?/") {
		text = q.Raw
	}
	return fmt.Sprintf("%s|%s|%t|%s|%s", version, q.Type, q.Pattern, loc, text)
}

func validType(t refstore.EntityType) bool {
	for _, et := range refstore.EntityTypes {
		if et == t {
			return true
		}
	}
	return false
}
