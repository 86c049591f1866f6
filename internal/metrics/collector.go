// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。所有记录方法对 nil 接收者安全，未启用指标时可直接传 nil。
type Collector struct {
	// 运行指标
	runsTotal    *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	runTokenCost prometheus.Histogram

	// 分层尝试指标
	attemptsTotal   *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	tokensUsed      *prometheus.CounterVec

	// 违规路径指标（数组下标折叠为 [*]，用于发现反复出错的字段）
	violationsTotal *prometheus.CounterVec

	namespace string
	registry  prometheus.Registerer
	logger    *zap.Logger
}

// NewCollector 创建指标收集器。registry 为 nil 时注册到默认 Registerer。
func NewCollector(namespace string, registry prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	c := &Collector{
		namespace: namespace,
		registry:  registry,
		logger:    logger.With(zap.String("component", "metrics")),
	}

	c.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of regeneration runs",
		},
		[]string{"outcome", "layer"},
	)

	c.runDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Regeneration run duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"outcome"},
	)

	c.runTokenCost = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_token_cost",
			Help:      "Total token cost of one regeneration run",
			Buckets:   prometheus.ExponentialBuckets(100, 2, 12),
		},
	)

	c.attemptsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Total number of repair attempts per layer",
		},
		[]string{"layer", "status"}, // status: succeeded, failed
	)

	c.attemptDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attempt_duration_seconds",
			Help:      "Repair attempt duration in seconds",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"layer"},
	)

	c.tokensUsed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_used_total",
			Help:      "Total number of tokens spent by recovery layers",
		},
		[]string{"layer", "model"},
	)

	c.violationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "violations_total",
			Help:      "Schema violations observed on first validation, by path pattern and kind",
		},
		[]string{"path", "kind"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 🔁 运行与尝试指标
// =============================================================================

// RecordRun 记录一次完整运行
func (c *Collector) RecordRun(outcome, layer string, duration time.Duration, tokenCost int) {
	if c == nil {
		return
	}
	c.runsTotal.WithLabelValues(outcome, layer).Inc()
	c.runDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	c.runTokenCost.Observe(float64(tokenCost))
}

// RecordAttempt 记录一次分层修复尝试
func (c *Collector) RecordAttempt(layer, model string, succeeded bool, duration time.Duration, tokenCost int) {
	if c == nil {
		return
	}
	status := "failed"
	if succeeded {
		status = "succeeded"
	}
	c.attemptsTotal.WithLabelValues(layer, status).Inc()
	c.attemptDuration.WithLabelValues(layer).Observe(duration.Seconds())
	if tokenCost > 0 {
		c.tokensUsed.WithLabelValues(layer, model).Add(float64(tokenCost))
	}
}

// RecordViolation 记录一条违规。pathPattern 应已折叠数组下标。
func (c *Collector) RecordViolation(pathPattern, kind string) {
	if c == nil {
		return
	}
	c.violationsTotal.WithLabelValues(pathPattern, kind).Inc()
}

// =============================================================================
// 📡 外部组件统计（按采集时读取）
// =============================================================================

// CacheStatsFunc 返回缓存的条目数、命中数、未命中数
type CacheStatsFunc func() (entries, hits, misses int64)

// RegisterCacheStats 以 GaugeFunc/CounterFunc 暴露缓存统计，采集时调用 fn
func (c *Collector) RegisterCacheStats(cacheType string, fn CacheStatsFunc) error {
	if c == nil {
		return nil
	}
	labels := prometheus.Labels{"cache_type": cacheType}
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   c.namespace,
			Name:        "cache_entries",
			Help:        "Number of cached entries",
			ConstLabels: labels,
		}, func() float64 { e, _, _ := fn(); return float64(e) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   c.namespace,
			Name:        "cache_hits_total",
			Help:        "Total number of cache hits",
			ConstLabels: labels,
		}, func() float64 { _, h, _ := fn(); return float64(h) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   c.namespace,
			Name:        "cache_misses_total",
			Help:        "Total number of cache misses",
			ConstLabels: labels,
		}, func() float64 { _, _, m := fn(); return float64(m) }),
	}
	return c.register(collectors...)
}

// GaugeFunc 以 GaugeFunc 暴露任意按需读取的数值（如队列长度、连接数）
func (c *Collector) GaugeFunc(name, help string, fn func() float64) error {
	if c == nil {
		return nil
	}
	return c.register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: c.namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

func (c *Collector) register(collectors ...prometheus.Collector) error {
	for _, col := range collectors {
		if err := c.registry.Register(col); err != nil {
			c.logger.Warn("failed to register collector", zap.Error(err))
			return err
		}
	}
	return nil
}
