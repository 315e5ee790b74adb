// Package coordinator mediates between the service boundary, the cache
// store and the evaluator. It guarantees at most one in-flight evaluation
// per fingerprint: concurrent resolves for the same fingerprint share one
// evaluation's outcome instead of racing the evaluator.
package coordinator

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"calculator-service/internal/cache"
	"calculator-service/internal/calc"
	"calculator-service/internal/metrics"
	"calculator-service/pkg/logging"
)

// Evaluator computes a request. Injectable so tests can count invocations;
// production wires calc.Evaluate.
type Evaluator func(req calc.Request) (float64, error)

// Outcome is a resolved calculation.
type Outcome struct {
	Result float64
	// Cached is true when the result came from the store without invoking
	// the evaluator.
	Cached bool
	// Shared is true when this resolve joined another caller's in-flight
	// evaluation.
	Shared bool
}

type Coordinator struct {
	store cache.Store
	eval  Evaluator
	ttl   time.Duration
	sf    singleflight.Group
}

func New(store cache.Store, eval Evaluator, ttl time.Duration) *Coordinator {
	if eval == nil {
		eval = calc.Evaluate
	}
	return &Coordinator{store: store, eval: eval, ttl: ttl}
}

// Resolve returns the result for req, from the cache when a fresh entry
// exists, otherwise from exactly one evaluation shared by all concurrent
// callers of the same fingerprint.
//
// Cancellation policy: an in-flight evaluation always runs to completion and
// commits its entry, even when the initiating caller's context is cancelled.
// The evaluator is pure and cheap, so finishing is strictly better than
// reverting the fingerprint to absent; a fingerprint can never be left
// permanently pending.
//
// Deterministic evaluation failures (parse, arity, division by zero, invalid
// operand) are cached as error entries: the evaluator is pure, so the
// failure is as reproducible as a success.
func (c *Coordinator) Resolve(ctx context.Context, req calc.Request) (Outcome, error) {
	canonical, err := req.Canonical()
	if err != nil {
		// Structurally invalid requests never reach the store.
		return Outcome{}, err
	}
	fp := cache.Fingerprint(canonical)

	entry, ok, err := c.store.Get(ctx, fp)
	if err != nil {
		// Storage failures surface; they are not silently treated as misses.
		return Outcome{}, err
	}
	if ok {
		return outcomeFromEntry(entry, false)
	}

	v, evalErr, shared := c.sf.Do(fp, func() (any, error) {
		return c.evaluateAndCommit(ctx, fp, req)
	})
	if shared {
		metrics.SharedResolvesTotal.Inc()
	}
	if evalErr != nil {
		return Outcome{Shared: shared}, evalErr
	}
	entry = v.(cache.Entry)

	out, err := outcomeFromEntry(entry, shared)
	out.Cached = false
	return out, err
}

// evaluateAndCommit runs the single evaluation for fp and writes the entry.
// The commit uses a context detached from the caller's cancellation so a
// completed evaluation is never thrown away; request-scoped log fields are
// preserved.
func (c *Coordinator) evaluateAndCommit(ctx context.Context, fp string, req calc.Request) (cache.Entry, error) {
	result, evalErr := c.eval(req)

	entry := cache.Entry{
		Fingerprint: fp,
		CreatedAt:   time.Now().UTC(),
		TTL:         c.ttl,
	}

	if evalErr != nil {
		kind, deterministic := calc.KindOf(evalErr)
		metrics.EvaluationsTotal.WithLabelValues(outcomeLabel(kind, deterministic)).Inc()
		if !deterministic {
			return cache.Entry{}, evalErr
		}
		entry.ErrKind = string(kind)
		c.commit(ctx, fp, entry)
		return cache.Entry{}, evalErr
	}

	metrics.EvaluationsTotal.WithLabelValues("ok").Inc()
	entry.Result = result
	c.commit(ctx, fp, entry)
	return entry, nil
}

func (c *Coordinator) commit(ctx context.Context, fp string, entry cache.Entry) {
	commitCtx := context.WithoutCancel(ctx)
	if err := c.store.Put(commitCtx, fp, entry); err != nil {
		// The computed result still goes back to the caller. Nothing was
		// committed, so there is no false ready state: the next resolve
		// simply evaluates again.
		logging.L(ctx).Warn("cache commit failed",
			zap.String("fingerprint", fp),
			zap.Error(err),
		)
	}
}

func outcomeFromEntry(entry cache.Entry, shared bool) (Outcome, error) {
	if entry.ErrKind != "" {
		return Outcome{Cached: true, Shared: shared}, calc.ErrorFromKind(calc.Kind(entry.ErrKind))
	}
	return Outcome{Result: entry.Result, Cached: true, Shared: shared}, nil
}

func outcomeLabel(kind calc.Kind, deterministic bool) string {
	if deterministic {
		return string(kind)
	}
	return "internal"
}
