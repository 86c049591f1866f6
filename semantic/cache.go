package semantic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Embedder turns one string into a vector. llm/embedding providers satisfy it.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float64, error)
}

// VectorStore is an optional second-level store shared across processes.
// internal/cache.Manager satisfies it.
type VectorStore interface {
	LoadVector(ctx context.Context, text string) ([]float64, bool, error)
	StoreVector(ctx context.Context, text string, vec []float64) error
}

// ErrEmptyVector is returned when the embedder yields a zero-length vector.
var ErrEmptyVector = errors.New("embedder returned an empty vector")

// CacheStats is a point-in-time snapshot of cache counters.
type CacheStats struct {
	Entries int64
	Hits    int64
	Misses  int64
}

// Cache is a process-wide, append-only embedding cache. Returned vectors are
// shared and must not be modified.
type Cache struct {
	embedder Embedder
	store    VectorStore
	limiter  *rate.Limiter
	logger   *zap.Logger

	callTimeout       time.Duration
	warmupConcurrency int

	vectors sync.Map
	group   singleflight.Group

	mu      sync.Mutex
	flights map[string]*flight

	entries atomic.Int64
	hits    atomic.Int64
	misses  atomic.Int64
}

// flight is one in-progress fetch shared by every concurrent miss of a key.
// It is canceled as soon as its last waiter leaves.
type flight struct {
	fn      func() (any, error)
	cancel  context.CancelFunc
	waiters int
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithVectorStore adds a shared second-level store.
func WithVectorStore(store VectorStore) CacheOption {
	return func(c *Cache) { c.store = store }
}

// WithCallTimeout bounds every embedding call.
func WithCallTimeout(d time.Duration) CacheOption {
	return func(c *Cache) { c.callTimeout = d }
}

// WithRateLimiter shares a limiter with other callers of the embedding service.
func WithRateLimiter(l *rate.Limiter) CacheOption {
	return func(c *Cache) { c.limiter = l }
}

// WithWarmupConcurrency sets how many values Warmup embeds in parallel.
func WithWarmupConcurrency(n int) CacheOption {
	return func(c *Cache) {
		if n > 0 {
			c.warmupConcurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) CacheOption {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCache creates an empty cache backed by embedder.
func NewCache(embedder Embedder, opts ...CacheOption) *Cache {
	c := &Cache{
		embedder:          embedder,
		logger:            zap.NewNop(),
		callTimeout:       10 * time.Second,
		warmupConcurrency: 8,
		flights:           make(map[string]*flight),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("component", "embedding_cache"))
	return c
}

// Vector returns the embedding of text, computing it at most once per process.
// Concurrent misses of the same key share one fetch, which runs until the
// last waiting caller returns or gives up.
func (c *Cache) Vector(ctx context.Context, text string) ([]float64, error) {
	if v, ok := c.vectors.Load(text); ok {
		c.hits.Add(1)
		return v.([]float64), nil
	}
	c.misses.Add(1)

	f, ch := c.join(ctx, text)
	select {
	case res := <-ch:
		c.leave(text, f)
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]float64), nil
	case <-ctx.Done():
		c.leave(text, f)
		return nil, ctx.Err()
	}
}

func (c *Cache) join(ctx context.Context, text string) (*flight, <-chan singleflight.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.flights[text]
	if !ok {
		// Detached from the first caller only; leave cancels it once nobody waits.
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{cancel: cancel}
		f.fn = func() (any, error) {
			defer c.finish(text, f)
			return c.fetch(fctx, text)
		}
		c.flights[text] = f
		// An abandoned fetch may still be unwinding under this key.
		c.group.Forget(text)
	}
	f.waiters++
	return f, c.group.DoChan(text, f.fn)
}

func (c *Cache) finish(text string, f *flight) {
	c.mu.Lock()
	if c.flights[text] == f {
		delete(c.flights, text)
	}
	c.mu.Unlock()
	f.cancel()
}

func (c *Cache) leave(text string, f *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if c.flights[text] == f {
		delete(c.flights, text)
		c.group.Forget(text)
	}
}

func (c *Cache) fetch(ctx context.Context, text string) ([]float64, error) {
	if v, ok := c.vectors.Load(text); ok {
		return v.([]float64), nil
	}

	if c.store != nil {
		vec, found, err := c.store.LoadVector(ctx, text)
		switch {
		case err != nil:
			c.logger.Warn("vector store load failed", zap.String("value", text), zap.Error(err))
		case found && len(vec) > 0:
			return c.remember(text, vec), nil
		}
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(callCtx); err != nil {
			return nil, fmt.Errorf("embedding rate limit: %w", err)
		}
	}

	vec, err := c.embedder.EmbedQuery(callCtx, text)
	if err != nil {
		return nil, fmt.Errorf("embed %q: %w", text, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("embed %q: %w", text, ErrEmptyVector)
	}
	vec = c.remember(text, vec)

	if c.store != nil {
		if err := c.store.StoreVector(ctx, text, vec); err != nil {
			c.logger.Warn("vector store write failed", zap.String("value", text), zap.Error(err))
		}
	}
	return vec, nil
}

// remember stores vec unless another goroutine got there first, and returns
// the stored vector either way.
func (c *Cache) remember(text string, vec []float64) []float64 {
	actual, loaded := c.vectors.LoadOrStore(text, vec)
	if !loaded {
		c.entries.Add(1)
	}
	return actual.([]float64)
}

func (c *Cache) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout > 0 {
		return context.WithTimeout(ctx, c.callTimeout)
	}
	return context.WithCancel(ctx)
}

// Warmup embeds every value not yet cached. Individual failures do not stop
// the others; they are joined into the returned error. Caller cancellation
// aborts the warm-up.
func (c *Cache) Warmup(ctx context.Context, values []string) error {
	seen := make(map[string]struct{}, len(values))
	pending := make([]string, 0, len(values))
	for _, v := range values {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		if _, ok := c.vectors.Load(v); !ok {
			pending = append(pending, v)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	start := time.Now()
	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.warmupConcurrency)
	for _, v := range pending {
		g.Go(func() error {
			if _, err := c.Vector(gctx, v); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	c.logger.Info("embedding cache warmed",
		zap.Int("requested", len(values)),
		zap.Int("embedded", len(pending)-len(errs)),
		zap.Int("failed", len(errs)),
		zap.Duration("elapsed", time.Since(start)),
	)
	if len(errs) > 0 {
		return fmt.Errorf("warmup: %d of %d values failed: %w", len(errs), len(pending), errors.Join(errs...))
	}
	return nil
}

// Stats returns the current counters.
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Entries: c.entries.Load(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}
