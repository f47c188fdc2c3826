package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/counselling-resolver/internal/config"
	"github.com/sells-group/counselling-resolver/internal/engine"
	"github.com/sells-group/counselling-resolver/internal/fusion"
	"github.com/sells-group/counselling-resolver/internal/match"
	"github.com/sells-group/counselling-resolver/internal/refstore"
	"github.com/sells-group/counselling-resolver/internal/tables"
)

// resolverEnv holds the loaded engine and the loader it reloads from.
type resolverEnv struct {
	Engine *engine.Engine
	Loader refstore.Loader
	pool   *pgxpool.Pool
}

// Close releases resources held by the environment.
func (re *resolverEnv) Close() {
	if re.pool != nil {
		re.pool.Close()
	}
}

// Reload rebuilds the reference store from the configured source.
func (re *resolverEnv) Reload(ctx context.Context) (*refstore.Store, error) {
	return re.Engine.Reload(ctx, re.Loader)
}

// initResolver validates config for command, builds the engine, and performs
// the initial load. Callers should defer env.Close().
func initResolver(ctx context.Context, command string) (*resolverEnv, error) {
	if err := cfg.Validate(command); err != nil {
		return nil, err
	}

	t, err := loadTables(cfg.Tables)
	if err != nil {
		return nil, err
	}

	eng, err := engine.New(t, engineOptions(cfg))
	if err != nil {
		return nil, eris.Wrap(err, "build engine")
	}

	env := &resolverEnv{Engine: eng}
	switch cfg.Reference.Source {
	case config.SourcePostgres:
		pool, err := pgxpool.New(ctx, cfg.Reference.DatabaseURL)
		if err != nil {
			return nil, eris.Wrap(err, "connect reference database")
		}
		env.pool = pool
		env.Loader = refstore.RetryLoader{
			Loader:      refstore.NewPostgresLoader(pool),
			MaxAttempts: cfg.Reference.RetryAttempts,
		}
	case config.SourceSQLite:
		env.Loader = refstore.RetryLoader{
			Loader:      refstore.SQLiteLoader{DSN: cfg.Reference.SQLitePath},
			MaxAttempts: cfg.Reference.RetryAttempts,
		}
	default:
		env.Loader = refstore.FileLoader{Path: cfg.Reference.Path}
	}

	store, err := env.Reload(ctx)
	if err != nil {
		env.Close()
		return nil, eris.Wrap(err, "load reference data")
	}
	zap.L().Info("reference data ready",
		zap.String("source", cfg.Reference.Source),
		zap.String("version", store.Version()),
		zap.Int("entities", store.Len()),
	)
	return env, nil
}

// loadTables returns the built-in tables, merged with the configured file
// when one is set.
func loadTables(tc config.TablesConfig) (*tables.Tables, error) {
	t := tables.Default()
	if tc.Path == "" {
		return t, nil
	}
	extra, err := tables.Load(tc.Path)
	if err != nil {
		return nil, err
	}
	merged := t.Merge(extra)
	if err := merged.Validate(); err != nil {
		return nil, eris.Wrapf(err, "tables: merge %s", tc.Path)
	}
	return merged, nil
}

func engineOptions(c *config.Config) engine.Options {
	opts := engine.DefaultOptions()
	opts.StrategyTimeout = c.Engine.StrategyTimeout
	opts.OverallTimeout = c.Engine.OverallTimeout
	opts.SearchLimit = c.Engine.SearchLimit
	opts.CacheSize = c.Cache.Size
	opts.CacheTTL = c.Cache.TTL
	opts.Disabled = c.Engine.DisabledStrategies
	opts.Match = match.Options{
		FuzzyThreshold:  c.Engine.FuzzyThreshold,
		CosineThreshold: c.Engine.CosineThreshold,
		RegexTimeout:    c.Engine.RegexTimeout,
	}
	opts.Priors = fusion.DefaultPriors().Merge(c.Priors)
	return opts
}
