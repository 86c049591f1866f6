// =============================================================================
// 📦 再生成流水线默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		LLM:       DefaultLLMConfig(),
		Embedding: DefaultEmbeddingConfig(),
		Pipeline:  DefaultPipelineConfig(),
		Pool:      DefaultPoolConfig(),
		Redis:     DefaultRedisConfig(),
		Audit:     DefaultDatabaseConfig(),
		Metrics:   DefaultMetricsConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:    "openai",
		BaseURL:     "https://api.openai.com",
		Model:       "gpt-4o-mini",
		Timeout:     60 * time.Second,
		Burst:       1,
		Temperature: 0.2,
		JSONMode:    true,
	}
}

// DefaultEmbeddingConfig 返回默认嵌入配置
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Enabled:           false,
		BaseURL:           "https://api.openai.com",
		Model:             "text-embedding-3-small",
		Timeout:           10 * time.Second,
		Burst:             1,
		WarmupConcurrency: 8,
		WarmupTimeout:     2 * time.Minute,
	}
}

// DefaultPipelineConfig 返回默认流水线参数（strict 模式）
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MaxAttemptsPerLayer:    2,
		MaxTotalTokenCost:      20000,
		AllowWarningFallback:   false,
		SemanticMatchThreshold: 0.85,
		MaxOutputTokens:        4096,
		CallTimeout:            60 * time.Second,
	}
}

// DefaultPoolConfig 返回默认批量执行配置
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Workers:           4,
		QueueSize:         64,
		MaxRetries:        0,
		RetryInitialDelay: time.Second,
		RetryMaxDelay:     30 * time.Second,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:      false,
		Addr:         "localhost:6379",
		DB:           0,
		KeyPrefix:    "regen:emb:",
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Enabled:         false,
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "regen",
		Name:            "regen",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "regen",
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "regen",
		SampleRate:   0.1,
	}
}
