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

// Collector 指标收集器。nil *Collector 的所有记录方法均为空操作。
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 分析指标
	analysisAttemptsTotal   *prometheus.CounterVec
	analysisAttemptDuration *prometheus.HistogramVec
	analysisResultsTotal    *prometheus.CounterVec
	analysisConfidence      *prometheus.HistogramVec

	// 熔断器指标
	breakerTransitions *prometheus.CounterVec
	breakerOpen        *prometheus.GaugeVec

	// 提供者健康指标
	providerHealthy       *prometheus.GaugeVec
	providerCheckDuration *prometheus.HistogramVec
	providerCheckFailures *prometheus.CounterVec
	providersHealthy      prometheus.Gauge
	providersTotal        prometheus.Gauge

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器。reg 为 nil 时注册到默认 Registry。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 分析指标
	c.analysisAttemptsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_attempts_total",
			Help:      "Provider attempts made while analyzing articles",
		},
		[]string{"provider", "outcome"}, // outcome: success 或错误类别
	)

	c.analysisAttemptDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_attempt_duration_seconds",
			Help:      "Provider attempt duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)

	c.analysisResultsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_results_total",
			Help:      "Analysis results returned to callers by origin",
		},
		[]string{"origin"}, // origin: provider, cache, neutral
	)

	c.analysisConfidence = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_confidence",
			Help:      "Confidence of returned analysis results",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		},
		[]string{"origin"},
	)

	// 熔断器指标
	c.breakerTransitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_transitions_total",
			Help:      "Circuit breaker state transitions",
		},
		[]string{"provider", "from_state", "to_state"},
	)

	c.breakerOpen = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_open",
			Help:      "Whether the provider's circuit breaker is open (1) or not (0)",
		},
		[]string{"provider"},
	)

	// 提供者健康指标
	c.providerHealthy = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "provider_healthy",
			Help:      "Whether the analysis provider passed its last health check (1) or not (0)",
		},
		[]string{"provider", "kind", "role"},
	)

	c.providerCheckDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_health_check_duration_seconds",
			Help:      "Analysis provider health check duration in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "kind"},
	)

	c.providerCheckFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_health_check_failures_total",
			Help:      "Total number of failed provider health checks by error kind",
		},
		[]string{"provider", "kind", "error_kind"},
	)

	c.providersHealthy = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chain_providers_healthy",
			Help:      "Number of providers in the analysis chain that passed their last health check",
		},
	)

	c.providersTotal = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chain_providers_total",
			Help:      "Number of providers in the analysis chain",
		},
	)

	// 缓存指标
	c.cacheHits = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// 数据库指标
	c.dbConnectionsOpen = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, responseSize int64) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🔎 分析指标记录
// =============================================================================

// RecordAttempt 记录一次提供者调用
func (c *Collector) RecordAttempt(provider, outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.analysisAttemptsTotal.WithLabelValues(provider, outcome).Inc()
	c.analysisAttemptDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordResult 记录返回给调用方的结果来源与置信度
func (c *Collector) RecordResult(origin string, confidence int) {
	if c == nil {
		return
	}
	c.analysisResultsTotal.WithLabelValues(origin).Inc()
	c.analysisConfidence.WithLabelValues(origin).Observe(float64(confidence))
}

// =============================================================================
// ⚡ 熔断器指标记录
// =============================================================================

// RecordBreakerTransition 记录熔断器状态变更
func (c *Collector) RecordBreakerTransition(provider, from, to string) {
	if c == nil {
		return
	}
	c.breakerTransitions.WithLabelValues(provider, from, to).Inc()
	open := 0.0
	if to == "open" {
		open = 1
	}
	c.breakerOpen.WithLabelValues(provider).Set(open)
}

// =============================================================================
// 🏥 提供者健康指标记录
// =============================================================================

// RecordProviderHealth 记录一次提供者健康检查
func (c *Collector) RecordProviderHealth(provider, kind, role string, healthy bool, latency time.Duration, errorKind string) {
	if c == nil {
		return
	}
	v := 0.0
	if healthy {
		v = 1
	}
	c.providerHealthy.WithLabelValues(provider, kind, role).Set(v)
	c.providerCheckDuration.WithLabelValues(provider, kind).Observe(latency.Seconds())
	if !healthy {
		c.providerCheckFailures.WithLabelValues(provider, kind, errorKind).Inc()
	}
}

// RecordChainHealth 记录一轮检查后链中健康的提供者数量
func (c *Collector) RecordChainHealth(healthy, total int) {
	if c == nil {
		return
	}
	c.providersHealthy.Set(float64(healthy))
	c.providersTotal.Set(float64(total))
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	if c == nil {
		return
	}
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	if c == nil {
		return
	}
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	if c == nil {
		return
	}
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
