package engine

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/counselling-resolver/internal/match"
	"github.com/sells-group/counselling-resolver/internal/refstore"
)

// DefaultStrategyTimeout bounds a single strategy invocation.
const DefaultStrategyTimeout = 200 * time.Millisecond

// Orchestrator fans a query out to every applicable strategy and collects
// their settled results. A strategy that fails, panics, or times out yields
// an empty result; it never fails the whole run.
type Orchestrator struct {
	strategies []match.Strategy
	timeout    time.Duration
}

// NewOrchestrator creates an Orchestrator. A non-positive timeout uses
// DefaultStrategyTimeout.
func NewOrchestrator(strategies []match.Strategy, timeout time.Duration) *Orchestrator {
	if timeout <= 0 {
		timeout = DefaultStrategyTimeout
	}
	return &Orchestrator{strategies: strategies, timeout: timeout}
}

// Strategies returns the registered strategy names in dispatch order.
func (o *Orchestrator) Strategies() []string {
	out := make([]string, len(o.strategies))
	for i, s := range o.strategies {
		out[i] = s.Name()
	}
	return out
}

type settled struct {
	idx int
	res match.StrategyResult
}

// Run dispatches q to every applicable strategy concurrently and waits for
// all of them to settle. When ctx expires first, the strategies that have
// not reported are marked timed out and the completed results are returned.
// Results are in registration order.
func (o *Orchestrator) Run(ctx context.Context, q match.Query, entities []*refstore.CanonicalEntity) []match.StrategyResult {
	var applicable []match.Strategy
	for _, s := range o.strategies {
		if s.Applies(q) {
			applicable = append(applicable, s)
		}
	}
	if len(applicable) == 0 {
		return nil
	}

	results := make([]match.StrategyResult, len(applicable))
	reported := make([]bool, len(applicable))
	ch := make(chan settled, len(applicable))

	var g errgroup.Group
	for i, s := range applicable {
		g.Go(func() error {
			ch <- settled{idx: i, res: o.dispatch(ctx, s, q, entities)}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(ch)
	}()

collect:
	for {
		select {
		case st, ok := <-ch:
			if !ok {
				break collect
			}
			results[st.idx] = st.res
			reported[st.idx] = true
		case <-ctx.Done():
			break collect
		}
	}

	for i, s := range applicable {
		if reported[i] {
			continue
		}
		results[i] = match.StrategyResult{Strategy: s.Name(), TimedOut: true}
		zap.L().Warn("engine: strategy did not settle before deadline",
			zap.String("strategy", s.Name()),
			zap.String("query", q.Text),
		)
	}
	return results
}

type outcome struct {
	cands []match.Candidate
	err   error
}

func (o *Orchestrator) dispatch(ctx context.Context, s match.Strategy, q match.Query, entities []*refstore.CanonicalEntity) match.StrategyResult {
	start := time.Now()
	sctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: eris.Errorf("engine: strategy %s panicked: %v", s.Name(), r)}
			}
		}()
		cands, err := s.Match(sctx, q, entities)
		done <- outcome{cands: cands, err: err}
	}()

	res := match.StrategyResult{Strategy: s.Name()}
	select {
	case out := <-done:
		res.Candidates, res.Err = out.cands, out.err
		if res.Err != nil && sctx.Err() != nil {
			res.TimedOut = true
		}
	case <-sctx.Done():
		res.TimedOut = true
	}
	res.Elapsed = time.Since(start)

	log := zap.L().With(zap.String("strategy", res.Strategy), zap.String("query", q.Text))
	switch {
	case res.TimedOut:
		res.Candidates = nil
		log.Warn("engine: strategy timed out", zap.Duration("elapsed", res.Elapsed))
	case res.Err != nil:
		res.Candidates = nil
		log.Warn("engine: strategy failed", zap.Error(res.Err))
	default:
		log.Debug("engine: strategy settled",
			zap.Int("candidates", len(res.Candidates)),
			zap.Duration("elapsed", res.Elapsed),
		)
	}
	return res
}
