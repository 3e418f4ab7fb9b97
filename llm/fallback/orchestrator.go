package fallback

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/biaslens/internal/ctxkeys"
	"github.com/BaSui01/biaslens/internal/metrics"
	"github.com/BaSui01/biaslens/llm"
	"github.com/BaSui01/biaslens/llm/cache"
	"github.com/BaSui01/biaslens/llm/circuitbreaker"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/BaSui01/biaslens/llm/fallback"

// ProviderSource is the registry the orchestrator draws candidates from.
type ProviderSource interface {
	llm.ProviderSource
	Provider(name string) (llm.Provider, bool)
	Primary() string
	FailoverEnabled() bool
}

// Config 编排器配置
type Config struct {
	// BreakerThreshold 连续失败次数阈值
	BreakerThreshold int
	// BreakerCooldown 熔断持续时间
	BreakerCooldown time.Duration
	// DegradedConfidencePenalty 缓存兜底结果的置信度扣减
	DegradedConfidencePenalty int
	// DefaultTimeout 提供者未配置超时时的单次尝试超时
	DefaultTimeout time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		BreakerThreshold:          3,
		BreakerCooldown:           5 * time.Minute,
		DegradedConfidencePenalty: 20,
		DefaultTimeout:            30 * time.Second,
	}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithCache enables result caching. Without it every request goes to the
// providers and exhaustion always yields the neutral result.
func WithCache(c *cache.ResultCache) Option {
	return func(o *Orchestrator) { o.cache = c }
}

// WithMetrics records attempts, results and breaker transitions.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *Orchestrator) { o.metrics = c }
}

// WithTracer replaces the global otel tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithClock replaces the time source of the orchestrator and its breakers.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator runs analysis requests across the provider chain.
type Orchestrator struct {
	source   ProviderSource
	monitor  *llm.HealthMonitor
	cache    *cache.ResultCache
	breakers *circuitbreaker.Set
	metrics  *metrics.Collector
	tracer   trace.Tracer
	config   Config
	logger   *zap.Logger
	now      func() time.Time
}

// New creates an orchestrator. monitor supplies health and performance data
// and receives a sample for every attempt.
func New(source ProviderSource, monitor *llm.HealthMonitor, config Config, opts ...Option) *Orchestrator {
	d := DefaultConfig()
	if config.DegradedConfidencePenalty < 0 {
		config.DegradedConfidencePenalty = d.DegradedConfidencePenalty
	}
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = d.DefaultTimeout
	}

	o := &Orchestrator{
		source:  source,
		monitor: monitor,
		config:  config,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	base := o.logger
	o.logger = base.With(zap.String("component", "fallback"))
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}

	o.breakers = circuitbreaker.NewSet(circuitbreaker.Config{
		Threshold:     config.BreakerThreshold,
		Cooldown:      config.BreakerCooldown,
		OnStateChange: o.onBreakerChange,
	}, base)
	o.breakers.SetClock(o.now)
	return o
}

// AnalyzeWithFallback analyzes req with the best available provider.
// preferred, when it names a registered provider whose breaker is closed,
// is tried first. The only error returned is a validation error for req;
// provider failures degrade to a cached or neutral result.
func (o *Orchestrator) AnalyzeWithFallback(ctx context.Context, req *llm.AnalysisRequest, preferred string) (*llm.AnalysisResult, error) {
	if err := llm.ValidateRequest(req); err != nil {
		return nil, err
	}

	requestID, ok := ctxkeys.RequestID(ctx)
	if !ok {
		requestID = uuid.NewString()
		ctx = ctxkeys.WithRequestID(ctx, requestID)
	}
	logger := o.logger.With(zap.String("request_id", requestID))
	if client, ok := ctxkeys.Client(ctx); ok {
		logger = logger.With(zap.String("client", client))
	}
	ctx, span := o.tracer.Start(ctx, "fallback.AnalyzeWithFallback", trace.WithAttributes(
		attribute.String("biaslens.request_id", requestID),
		attribute.String("biaslens.preferred", preferred),
	))
	defer span.End()

	if o.cache != nil {
		if cached, ok := o.cache.Get(ctx, req, preferred); ok {
			cached.Origin = llm.OriginCache
			o.metrics.RecordCacheHit("normal")
			logger.Debug("served from cache", zap.String("provider", cached.Provider))
			return o.finish(span, cached), nil
		}
		o.metrics.RecordCacheMiss("normal")
	}

	chain := o.chain(ctx, preferred)
	span.SetAttributes(attribute.StringSlice("biaslens.chain", names(chain)))
	logger.Debug("candidate chain built", zap.Strings("chain", names(chain)))

	for _, c := range chain {
		if ctx.Err() != nil {
			logger.Info("caller cancelled, abandoning chain", zap.Error(ctx.Err()))
			break
		}
		p, ok := o.source.Provider(c.Name)
		if !ok {
			continue
		}
		result, err := o.attempt(ctx, p, req, logger)
		if err != nil {
			continue
		}
		if o.cache != nil {
			o.cache.Set(context.WithoutCancel(ctx), req, result, c.Name, preferred)
		}
		return o.finish(span, result), nil
	}

	return o.finish(span, o.degrade(ctx, req, logger)), nil
}

type outcome struct {
	result *llm.AnalysisResult
	err    error
}

// attempt 在提供者超时内调用一次；超时后的迟到结果被丢弃
func (o *Orchestrator) attempt(ctx context.Context, p llm.Provider, req *llm.AnalysisRequest, logger *zap.Logger) (*llm.AnalysisResult, error) {
	cfg := p.Config()
	name := cfg.Name
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = o.config.DefaultTimeout
	}

	ctx, span := o.tracer.Start(ctx, "fallback.attempt", trace.WithAttributes(
		attribute.String("biaslens.provider", name),
		attribute.String("biaslens.provider_kind", string(cfg.Kind)),
	))
	defer span.End()

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: llm.NewError(llm.KindUnknown, name, fmt.Sprintf("provider panicked: %v", r), nil)}
			}
		}()
		r, err := p.Analyze(attemptCtx, req)
		done <- outcome{result: r, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-attemptCtx.Done():
		out.err = llm.NewError(llm.KindTimeout, name, fmt.Sprintf("attempt exceeded %s", timeout), attemptCtx.Err())
	}
	elapsed := time.Since(start)

	if out.err == nil && out.result == nil {
		out.err = llm.NewError(llm.KindInvalidResponse, name, "provider returned no result", nil)
	}
	if out.err != nil {
		out.err = llm.Wrap(out.err, name)
		span.RecordError(out.err)
		span.SetStatus(codes.Error, string(llm.KindOf(out.err)))
		if ctx.Err() != nil {
			// 调用方自身取消，不计入提供者失败
			logger.Debug("attempt aborted by caller", zap.String("provider", name), zap.Error(out.err))
			return nil, out.err
		}
		o.recordFailure(name, elapsed, out.err, logger)
		return nil, out.err
	}

	o.breakers.RecordSuccess(name)
	o.monitor.RecordMetrics(name, elapsed, true)
	o.metrics.RecordAttempt(name, "success", elapsed)

	result := out.result.Clone()
	result.Origin = llm.OriginLive
	result.Degraded = false
	if result.Provider == "" {
		result.Provider = name
	}
	if result.ProcessingTimeMs == 0 {
		result.ProcessingTimeMs = elapsed.Milliseconds()
	}
	if result.AnalyzedAt.IsZero() {
		result.AnalyzedAt = o.now()
	}
	span.SetStatus(codes.Ok, "")
	logger.Debug("attempt succeeded", zap.String("provider", name), zap.Duration("elapsed", elapsed))
	return result, nil
}

func (o *Orchestrator) recordFailure(name string, elapsed time.Duration, err error, logger *zap.Logger) {
	opened := o.breakers.RecordFailure(name)
	o.monitor.RecordMetrics(name, elapsed, false)
	kind := llm.KindOf(err)
	o.metrics.RecordAttempt(name, string(kind), elapsed)
	logger.Warn("provider attempt failed",
		zap.String("provider", name),
		zap.String("kind", string(kind)),
		zap.Duration("elapsed", elapsed),
		zap.Bool("breaker_opened", opened),
		zap.Error(err))
}

// degrade 链路耗尽：优先返回最近成功缓存（扣减置信度），否则返回中性结果
func (o *Orchestrator) degrade(ctx context.Context, req *llm.AnalysisRequest, logger *zap.Logger) *llm.AnalysisResult {
	if o.cache != nil {
		if entry, ok := o.cache.GetLastSuccess(context.WithoutCancel(ctx), req); ok {
			r := entry.Result
			source := entry.Provider
			if source == "" {
				source = r.Provider
			}
			r.Confidence = max(0, r.Confidence-o.config.DegradedConfidencePenalty)
			r.Provider = llm.CachedProviderPrefix + source
			r.Origin = llm.OriginCachedFallback
			r.Degraded = true
			logger.Warn("all providers failed, serving last successful result",
				zap.String("provider", source),
				zap.Time("cached_at", entry.CachedAt))
			return &r
		}
	}
	logger.Error("all providers failed and nothing cached, serving neutral result")
	return llm.NeutralResult(o.now())
}

func (o *Orchestrator) finish(span trace.Span, r *llm.AnalysisResult) *llm.AnalysisResult {
	span.SetAttributes(
		attribute.String("biaslens.result.provider", r.Provider),
		attribute.String("biaslens.result.origin", string(r.Origin)),
		attribute.Int("biaslens.result.confidence", r.Confidence),
	)
	o.metrics.RecordResult(string(r.Origin), r.Confidence)
	return r
}

// chain 构建本次请求的候选链
func (o *Orchestrator) chain(ctx context.Context, preferred string) []Candidate {
	order, hinted := candidateOrder(o.source.Order(), preferred)
	if !o.source.FailoverEnabled() && len(order) > 1 {
		order = order[:1]
	}

	health := o.monitor.HealthStatus(ctx)
	cands := make([]Candidate, 0, len(order))
	for _, name := range order {
		if o.breakers.IsOpen(name) {
			o.logger.Debug("skipping provider with open breaker", zap.String("provider", name))
			continue
		}
		h, ok := health[name]
		cands = append(cands, Candidate{
			Name:         name,
			Healthy:      ok && h.Available,
			ResponseTime: h.ResponseTime(),
			Metrics:      o.monitor.ProviderMetrics(name),
		})
	}

	if hinted && len(cands) > 0 && cands[0].Name == preferred {
		return append([]Candidate{cands[0]}, Rank(cands[1:])...)
	}
	return Rank(cands)
}

func (o *Orchestrator) onBreakerChange(provider string, from, to circuitbreaker.State) {
	o.metrics.RecordBreakerTransition(provider, from.String(), to.String())
	o.logger.Info("circuit breaker state changed",
		zap.String("provider", provider),
		zap.String("from", from.String()),
		zap.String("to", to.String()))
}
