package regen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/maslennikov-ig/MC-2-sub003/config"
	"github.com/maslennikov-ig/MC-2-sub003/internal/audit"
	"github.com/maslennikov-ig/MC-2-sub003/internal/cache"
	"github.com/maslennikov-ig/MC-2-sub003/internal/database"
	"github.com/maslennikov-ig/MC-2-sub003/internal/metrics"
	"github.com/maslennikov-ig/MC-2-sub003/internal/pool"
	"github.com/maslennikov-ig/MC-2-sub003/internal/telemetry"
	"github.com/maslennikov-ig/MC-2-sub003/llm"
	"github.com/maslennikov-ig/MC-2-sub003/llm/embedding"
	"github.com/maslennikov-ig/MC-2-sub003/llm/providers"
	"github.com/maslennikov-ig/MC-2-sub003/llm/providers/anthropic"
	"github.com/maslennikov-ig/MC-2-sub003/llm/providers/openaicompat"
	"github.com/maslennikov-ig/MC-2-sub003/llm/retry"
	"github.com/maslennikov-ig/MC-2-sub003/semantic"
)

const defaultOpenAIBaseURL = "https://api.openai.com"

// Runtime is a fully wired pipeline for one process.
type Runtime struct {
	Regenerator *Regenerator
	// Defaults is the per-call config derived from the pipeline section.
	Defaults  Config
	Generator *llm.Generator
	Cache     *semantic.Cache
	Pool      *pool.Pool
	Retry     *retry.RetryPolicy
	Audit     *audit.Store
	// Registry holds the pipeline metrics; nil when metrics are disabled.
	Registry *prometheus.Registry

	logger  *zap.Logger
	closers []func(context.Context) error
}

// Build wires providers, the embedding cache, metrics, tracing and the audit
// store from cfg, then warms the embedding cache with the configured enum
// sets. Warm-up failures are logged; the semantic layer degrades per call.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *Runtime, err error) {
	if cfg == nil {
		return nil, errors.New("regen: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	rt := &Runtime{logger: logger.With(zap.String("component", "regen_runtime"))}
	defer func() {
		if err != nil {
			_ = rt.Close(context.Background())
		}
	}()

	// ===== telemetry =====
	tel, err := telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, tel.Shutdown)

	// ===== metrics =====
	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		rt.Registry = prometheus.NewRegistry()
		collector = metrics.NewCollector(cfg.Metrics.Namespace, rt.Registry, logger)
	}

	// ===== llm =====
	primary, err := newProvider(cfg.LLM.Provider, providers.BaseProviderConfig{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	}, cfg.LLM.JSONMode, logger)
	if err != nil {
		return nil, err
	}
	rt.Generator = llm.NewGenerator(primary, llm.GeneratorConfig{
		DefaultModel:      cfg.LLM.Model,
		CallTimeout:       cfg.LLM.Timeout,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		Burst:             cfg.LLM.Burst,
		Temperature:       float32(cfg.LLM.Temperature),
	}, logger)

	if esc := cfg.LLM.Escalation; esc.Model != "" && esc.Provider != "" {
		apiKey, baseURL := esc.APIKey, esc.BaseURL
		if esc.Provider == cfg.LLM.Provider {
			if apiKey == "" {
				apiKey = cfg.LLM.APIKey
			}
			if baseURL == "" {
				baseURL = cfg.LLM.BaseURL
			}
		}
		p, err := newProvider(esc.Provider, providers.BaseProviderConfig{
			APIKey:  apiKey,
			BaseURL: baseURL,
			Model:   esc.Model,
			Timeout: cfg.LLM.Timeout,
		}, cfg.LLM.JSONMode, logger)
		if err != nil {
			return nil, fmt.Errorf("escalation provider: %w", err)
		}
		// 两条路由都注册，避免主模型名以升级模型名为前缀时被误路由
		rt.Generator.Route(esc.Model, p)
		if cfg.LLM.Model != "" && cfg.LLM.Model != esc.Model {
			rt.Generator.Route(cfg.LLM.Model, primary)
		}
	}

	opts := []Option{
		WithLogger(logger),
		WithMetrics(collector),
		WithTracer(tel.Tracer()),
	}

	// ===== embeddings =====
	if cfg.Embedding.Enabled {
		c, err := rt.buildCache(cfg, collector, logger)
		if err != nil {
			return nil, err
		}
		rt.Cache = c
		opts = append(opts, WithMatcher(semantic.NewMatcher(c, logger)))
	}

	// ===== audit =====
	if cfg.Audit.Enabled {
		db, err := database.Open(cfg.Audit, logger)
		if err != nil {
			return nil, fmt.Errorf("open audit database: %w", err)
		}
		rt.closers = append(rt.closers, func(context.Context) error { return db.Close() })
		rt.Audit = audit.NewStore(db, logger)
		if err := rt.Audit.Migrate(ctx); err != nil {
			return nil, err
		}
		opts = append(opts, WithRecorder(rt.Audit))
	}

	// ===== defaults, pool, retry =====
	synonyms, err := config.LoadSynonyms(cfg.Pipeline.SynonymsFile)
	if err != nil {
		return nil, err
	}
	rt.Defaults = Config{
		MaxAttemptsPerLayer:    cfg.Pipeline.MaxAttemptsPerLayer,
		MaxTotalTokenCost:      cfg.Pipeline.MaxTotalTokenCost,
		AllowWarningFallback:   cfg.Pipeline.AllowWarningFallback,
		EnumSynonyms:           synonyms,
		SemanticMatchThreshold: cfg.Pipeline.SemanticMatchThreshold,
		EscalationModel:        cfg.LLM.Escalation.Model,
		Model:                  cfg.LLM.Model,
		MaxOutputTokens:        cfg.Pipeline.MaxOutputTokens,
		CallTimeout:            cfg.Pipeline.CallTimeout,
	}

	rt.Pool = pool.New(pool.Config{Workers: cfg.Pool.Workers, QueueSize: cfg.Pool.QueueSize}, logger)
	rt.closers = append(rt.closers, func(context.Context) error { rt.Pool.Close(); return nil })
	if collector != nil {
		registerPoolGauges(collector, rt.Pool, rt.logger)
	}
	if cfg.Pool.MaxRetries > 0 {
		rt.Retry = &retry.RetryPolicy{
			MaxRetries:   cfg.Pool.MaxRetries,
			InitialDelay: cfg.Pool.RetryInitialDelay,
			MaxDelay:     cfg.Pool.RetryMaxDelay,
			Multiplier:   2.0,
			Jitter:       true,
		}
	}

	rt.Regenerator = New(rt.Generator, opts...)

	if rt.Cache != nil {
		rt.warmup(ctx, cfg.Pipeline.EnumSets, cfg.Embedding.WarmupTimeout)
	}

	rt.logger.Info("pipeline ready",
		zap.String("provider", primary.Name()),
		zap.String("model", cfg.LLM.Model),
		zap.String("escalation_model", cfg.LLM.Escalation.Model),
		zap.Bool("semantic_matching", rt.Cache != nil),
		zap.Bool("audit", rt.Audit != nil),
		zap.Bool("metrics", rt.Registry != nil),
	)
	return rt, nil
}

// registerPoolGauges exposes pool occupancy. A failed registration only
// loses the gauge, so it is logged and Build carries on.
func registerPoolGauges(collector *metrics.Collector, p *pool.Pool, logger *zap.Logger) {
	gauges := []struct {
		name, help string
		fn         func() float64
	}{
		{"pool_active_workers", "Units currently being regenerated.", func() float64 { return float64(p.Stats().Active) }},
		{"pool_queued_units", "Units waiting for a worker.", func() float64 { return float64(p.Stats().Queued) }},
	}
	for _, g := range gauges {
		if err := collector.GaugeFunc(g.name, g.help, g.fn); err != nil {
			logger.Warn("failed to register pool gauge", zap.String("gauge", g.name), zap.Error(err))
		}
	}
}

func (rt *Runtime) buildCache(cfg *config.Config, collector *metrics.Collector, logger *zap.Logger) (*semantic.Cache, error) {
	embedder := embedding.NewOpenAIProvider(embedding.OpenAIConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    cfg.Embedding.Timeout,
	})
	cacheOpts := []semantic.CacheOption{
		semantic.WithLogger(logger),
		semantic.WithCallTimeout(cfg.Pipeline.CallTimeout),
		semantic.WithWarmupConcurrency(cfg.Embedding.WarmupConcurrency),
	}
	if rps := cfg.Embedding.RequestsPerSecond; rps > 0 {
		burst := cfg.Embedding.Burst
		if burst <= 0 {
			burst = 1
		}
		cacheOpts = append(cacheOpts, semantic.WithRateLimiter(rate.NewLimiter(rate.Limit(rps), burst)))
	}

	if cfg.Redis.Enabled {
		cc := cache.DefaultConfig()
		cc.Addr = cfg.Redis.Addr
		cc.Password = cfg.Redis.Password
		cc.DB = cfg.Redis.DB
		cc.TLS = cfg.Redis.TLS
		if cfg.Redis.KeyPrefix != "" {
			cc.KeyPrefix = cfg.Redis.KeyPrefix
		}
		cc.VectorTTL = cfg.Redis.VectorTTL
		if cfg.Redis.PoolSize > 0 {
			cc.PoolSize = cfg.Redis.PoolSize
		}
		if cfg.Redis.MinIdleConns > 0 {
			cc.MinIdleConns = cfg.Redis.MinIdleConns
		}
		store, err := cache.NewManager(cc, logger)
		if err != nil {
			return nil, fmt.Errorf("open vector store: %w", err)
		}
		rt.closers = append(rt.closers, func(context.Context) error { return store.Close() })
		cacheOpts = append(cacheOpts, semantic.WithVectorStore(store))
	}

	c := semantic.NewCache(embedder, cacheOpts...)
	if collector != nil {
		err := collector.RegisterCacheStats("embedding", func() (int64, int64, int64) {
			s := c.Stats()
			return s.Entries, s.Hits, s.Misses
		})
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

// warmup embeds every configured enum value once.
func (rt *Runtime) warmup(ctx context.Context, sets map[string][]string, timeout time.Duration) {
	var values []string
	for _, allowed := range sets {
		values = append(values, allowed...)
	}
	if len(values) == 0 {
		return
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	if err := rt.Cache.Warmup(ctx, values); err != nil {
		rt.logger.Warn("embedding warmup incomplete", zap.Error(err))
		return
	}
	rt.logger.Info("embedding cache warmed",
		zap.Int("values", len(values)),
		zap.Duration("duration", time.Since(start)),
	)
}

// RunUnits runs units on the runtime's pool with its retry policy.
func (rt *Runtime) RunUnits(ctx context.Context, units []Unit) []UnitResult {
	return RunUnits(ctx, rt.Regenerator, units, RunOptions{
		Pool:   rt.Pool,
		Retry:  rt.Retry,
		Logger: rt.logger,
	})
}

// Close releases everything Build opened, in reverse order.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

func newProvider(kind string, base providers.BaseProviderConfig, jsonMode bool, logger *zap.Logger) (llm.Provider, error) {
	switch kind {
	case "", "openai":
		if base.BaseURL == "" {
			base.BaseURL = defaultOpenAIBaseURL
		}
		return openaicompat.New(openaicompat.Config{
			ProviderName:       "openai",
			BaseProviderConfig: base,
			JSONMode:           jsonMode,
		}, logger), nil
	case "anthropic":
		return anthropic.New(anthropic.Config{BaseProviderConfig: base}, logger), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %q (supported: openai, anthropic)", kind)
	}
}
