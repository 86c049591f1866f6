package regen

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/maslennikov-ig/MC-2-sub003/internal/pool"
	"github.com/maslennikov-ig/MC-2-sub003/llm/retry"
	"github.com/maslennikov-ig/MC-2-sub003/schema"
)

// Unit is one independent piece of generated content, e.g. one section of a
// course.
type Unit struct {
	ID        string
	RawOutput string
	Contract  *schema.Contract
	Prompt    string
	Config    Config
}

// UnitResult pairs a unit with its outcome. Exactly one of Result and Err is
// set.
type UnitResult struct {
	ID     string
	Result *Result
	Err    error
}

// RunOptions configures RunUnits.
type RunOptions struct {
	// Pool runs the units. When nil a pool sized by Workers and QueueSize is
	// created for the call and closed before RunUnits returns.
	Pool      *pool.Pool
	Workers   int
	QueueSize int

	// Retry wraps each whole Regenerate call. Nil disables retries.
	Retry *retry.RetryPolicy

	Logger *zap.Logger
}

// RunUnits regenerates every unit with bounded concurrency. A failing unit
// never affects the others; results are returned in input order.
func RunUnits(ctx context.Context, r *Regenerator, units []Unit, opts RunOptions) []UnitResult {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "regen_units"))

	p := opts.Pool
	if p == nil {
		cfg := pool.DefaultConfig()
		if opts.Workers > 0 {
			cfg.Workers = opts.Workers
		}
		if opts.QueueSize > 0 {
			cfg.QueueSize = opts.QueueSize
		}
		p = pool.New(cfg, logger)
		defer p.Close()
	}

	var retryer retry.Retryer
	if opts.Retry != nil {
		policy := *opts.Retry
		if policy.RetryIf == nil && len(policy.RetryableErrors) == 0 {
			policy.RetryIf = retryableUnitError
		}
		retryer = retry.NewBackoffRetryer(&policy, logger)
	}

	results := make([]UnitResult, len(units))
	pending := make([]<-chan error, len(units))
	for i, u := range units {
		i, u := i, u
		results[i].ID = u.ID
		done, err := p.Submit(ctx, func(ctx context.Context) error {
			res, err := runUnit(ctx, r, retryer, u)
			results[i].Result, results[i].Err = res, err
			return err
		})
		if err != nil {
			results[i].Err = err
			continue
		}
		pending[i] = done
	}

	failed := 0
	for i, done := range pending {
		if done == nil {
			failed++
			continue
		}
		// Queued tasks skipped after ctx ended report the ctx error here.
		if err := <-done; err != nil {
			if results[i].Err == nil {
				results[i].Err = err
			}
			failed++
		}
	}

	logger.Info("units finished",
		zap.Int("units", len(units)),
		zap.Int("failed", failed),
	)
	return results
}

func runUnit(ctx context.Context, r *Regenerator, retryer retry.Retryer, u Unit) (*Result, error) {
	call := func() (*Result, error) {
		return r.Regenerate(ctx, u.RawOutput, u.Contract, u.Prompt, u.Config)
	}
	if retryer == nil {
		return call()
	}
	return retry.DoWithResultTyped(retryer, ctx, call)
}

// retryableUnitError retries pipeline failures but not cancellation.
func retryableUnitError(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
