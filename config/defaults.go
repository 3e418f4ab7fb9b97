// =============================================================================
// 📦 BiasLens 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/biaslens/llm"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Analysis:  DefaultAnalysisConfig(),
		Providers: DefaultProviders(),
		Cache:     DefaultCacheConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    10,
		RateLimitBurst:  20,
	}
}

// DefaultAnalysisConfig 返回默认分析链配置
func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		Primary:                   "local",
		Fallbacks:                 []string{},
		FailoverEnabled:           true,
		HealthCheckInterval:       time.Minute,
		HealthTTL:                 5 * time.Minute,
		ProbeTimeout:              10 * time.Second,
		BreakerThreshold:          3,
		BreakerCooldown:           5 * time.Minute,
		DegradedConfidencePenalty: 20,
	}
}

// DefaultProviders 返回默认提供者（本地模型服务）
func DefaultProviders() map[string]llm.ProviderConfig {
	return map[string]llm.ProviderConfig{
		"local": {
			Name:           "local",
			Kind:           llm.KindOllama,
			Endpoint:       "http://localhost:11434",
			Model:          "llama3.1",
			Timeout:        60 * time.Second,
			MaxRetries:     1,
			RateLimitRPM:   60,
			MaxInputTokens: 6000,
		},
	}
}

// DefaultCacheConfig 返回默认缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:        true,
		Backend:        "memory",
		TTL:            7 * 24 * time.Hour,
		LastSuccessTTL: time.Hour,
		LocalSize:      10000,
		LocalTTL:       10 * time.Minute,
		PurgeInterval:  time.Hour,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "biaslens",
		Password:        "",
		Name:            "biaslens.db",
		SSLMode:         "disable",
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
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
		ServiceName:  "biaslens",
		SampleRate:   0.1,
	}
}
