// =============================================================================
// BiasLens HTTP Provider Base
// =============================================================================
// Shared implementation for every HTTP analysis backend. Backend packages
// supply a Codec (request shape, reply extraction, health endpoint) and
// inherit validation, truncation, rate limiting, retry and error mapping.
// =============================================================================

package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BaSui01/biaslens/internal/tlsutil"
	"github.com/BaSui01/biaslens/llm"
	"github.com/BaSui01/biaslens/llm/retry"
	"github.com/BaSui01/biaslens/llm/tokenizer"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxResponseBytes caps how much of a reply body is read.
const maxResponseBytes = 4 << 20

// tokenizerLoadTimeout bounds the encoding load in Initialize.
const tokenizerLoadTimeout = 5 * time.Second

// Codec adapts one backend protocol.
type Codec interface {
	// AnalyzeRequest builds the analysis call.
	AnalyzeRequest(ctx context.Context, cfg llm.ProviderConfig, prompt Prompt) (*http.Request, error)

	// AnalyzeText extracts the model's reply text from a 2xx response body.
	AnalyzeText(body []byte) (string, error)

	// HealthRequest builds the lightweight probe call.
	HealthRequest(ctx context.Context, cfg llm.ProviderConfig) (*http.Request, error)
}

// Option customizes an HTTPProvider.
type Option func(*HTTPProvider)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *HTTPProvider) { p.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *HTTPProvider) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithRetryPolicy replaces the retry policy. MaxRetries still comes from the
// provider config.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(p *HTTPProvider) { p.policy = policy }
}

// WithTokenizer replaces the tokenizer used for body truncation.
func WithTokenizer(t tokenizer.Tokenizer) Option {
	return func(p *HTTPProvider) { p.tok = t }
}

// HTTPProvider implements llm.Provider on top of a Codec.
type HTTPProvider struct {
	cfg     llm.ProviderConfig
	codec   Codec
	client  *http.Client
	limiter *rate.Limiter
	policy  retry.Policy
	retryer *retry.Retryer
	tok     tokenizer.Tokenizer
	logger  *zap.Logger
	now     func() time.Time

	healthMu sync.RWMutex
	health   llm.ProviderHealth

	stateMu     sync.Mutex
	initialized bool
	closed      atomic.Bool
}

// NewHTTPProvider validates cfg and builds the provider.
func NewHTTPProvider(cfg llm.ProviderConfig, codec Codec, opts ...Option) (*HTTPProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &HTTPProvider{
		cfg:    cfg,
		codec:  codec,
		policy: retry.DefaultPolicy(),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.client == nil {
		if cfg.Kind == llm.KindOllama {
			p.client = tlsutil.LocalHTTPClient(cfg.Timeout)
		} else {
			p.client = tlsutil.SecureHTTPClient(cfg.Timeout)
		}
	}
	if p.tok == nil {
		p.tok = defaultTokenizer(cfg)
	}

	burst := cfg.RateLimitRPM / 6
	if burst < 1 {
		burst = 1
	}
	p.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RateLimitRPM)/60.0), burst)

	p.logger = p.logger.With(
		zap.String("provider", cfg.Name),
		zap.String("kind", string(cfg.Kind)),
	)
	p.policy.MaxRetries = cfg.MaxRetries
	p.retryer = retry.New(p.policy, p.logger)
	p.health = llm.ProviderHealth{Error: "not checked"}

	return p, nil
}

// defaultTokenizer uses tiktoken for OpenAI models and the estimator elsewhere.
func defaultTokenizer(cfg llm.ProviderConfig) tokenizer.Tokenizer {
	if cfg.Kind == llm.KindOpenAI {
		return tokenizer.ForModel(cfg.Model)
	}
	return tokenizer.NewEstimatorTokenizer()
}

// Identity returns the provider identity.
func (p *HTTPProvider) Identity() llm.ProviderIdentity { return p.cfg.Identity() }

// Config returns the provider configuration.
func (p *HTTPProvider) Config() llm.ProviderConfig { return p.cfg }

// Analyze runs one analysis. The request is validated before any I/O.
func (p *HTTPProvider) Analyze(ctx context.Context, req *llm.AnalysisRequest) (*llm.AnalysisResult, error) {
	if err := llm.ValidateRequest(req); err != nil {
		return nil, err
	}
	if p.isClosed() {
		return nil, llm.NewError(llm.KindConfiguration, p.cfg.Name, "provider has been cleaned up", nil)
	}

	prompt, err := BuildPrompt(req, p.tok, p.cfg.MaxInputTokens)
	if err != nil {
		return nil, llm.NewError(llm.KindUnknown, p.cfg.Name, "build prompt", err)
	}

	start := time.Now()
	result, err := retry.Do(ctx, p.retryer, func(ctx context.Context) (*llm.AnalysisResult, error) {
		if err := p.wait(ctx); err != nil {
			return nil, err
		}
		return p.analyzeOnce(ctx, prompt)
	})
	elapsed := time.Since(start)
	if err != nil {
		p.logger.Debug("analysis failed", zap.Duration("elapsed", elapsed), zap.Error(err))
		return nil, llm.Wrap(err, p.cfg.Name)
	}

	result.Provider = p.cfg.Name
	result.ProcessingTimeMs = elapsed.Milliseconds()
	result.AnalyzedAt = p.now()
	return result, nil
}

func (p *HTTPProvider) wait(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return llm.NewError(llm.KindTimeout, p.cfg.Name, "waiting for rate limiter", ctx.Err())
		}
		return llm.NewError(llm.KindRateLimit, p.cfg.Name, "local rate limit exceeded", err)
	}
	return nil
}

func (p *HTTPProvider) analyzeOnce(ctx context.Context, prompt Prompt) (*llm.AnalysisResult, error) {
	httpReq, err := p.codec.AnalyzeRequest(ctx, p.cfg, prompt)
	if err != nil {
		return nil, llm.NewError(llm.KindConfiguration, p.cfg.Name, "build request", err)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, mapTransportError(ctx, err, p.cfg.Name)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, MapHTTPError(resp.StatusCode, ReadErrorMessage(resp.Body), p.cfg.Name, resp.Header)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, mapTransportError(ctx, err, p.cfg.Name)
	}

	text, err := p.codec.AnalyzeText(body)
	if err != nil {
		return nil, llm.NewError(llm.KindInvalidResponse, p.cfg.Name, "decode response", err)
	}
	return ParseAnalysis(text, p.cfg.Name)
}

// CheckHealth probes the backend. It does not consume rate-limit tokens.
func (p *HTTPProvider) CheckHealth(ctx context.Context) llm.ProviderHealth {
	h, _ := p.probe(ctx)
	return h
}

func (p *HTTPProvider) probe(ctx context.Context) (llm.ProviderHealth, error) {
	start := time.Now()
	err := p.probeOnce(ctx)
	latency := time.Since(start)

	var h llm.ProviderHealth
	if err != nil {
		h = llm.Unhealthy(err, p.now())
		p.logger.Debug("health probe failed", zap.Error(err))
	} else {
		h = llm.Healthy(latency, p.now())
	}

	p.healthMu.Lock()
	p.health = h
	p.healthMu.Unlock()
	return h, err
}

func (p *HTTPProvider) probeOnce(ctx context.Context) error {
	httpReq, err := p.codec.HealthRequest(ctx, p.cfg)
	if err != nil {
		return llm.NewError(llm.KindConfiguration, p.cfg.Name, "build health request", err)
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return mapTransportError(ctx, err, p.cfg.Name)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return MapHTTPError(resp.StatusCode, ReadErrorMessage(resp.Body), p.cfg.Name, resp.Header)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	return nil
}

// LastHealth returns the most recent probe result.
func (p *HTTPProvider) LastHealth() llm.ProviderHealth {
	p.healthMu.RLock()
	defer p.healthMu.RUnlock()
	return p.health
}

// Initialize loads tokenizer data and probes the backend once. Repeated calls
// after a success are no-ops.
func (p *HTTPProvider) Initialize(ctx context.Context) error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	if p.initialized {
		return nil
	}
	if p.closed.Load() {
		return llm.NewError(llm.KindConfiguration, p.cfg.Name, "provider has been cleaned up", nil)
	}
	_, err := p.probe(ctx)
	p.preloadTokenizer(ctx)
	if err != nil {
		return fmt.Errorf("initialize %s: %w", p.cfg.Name, llm.Wrap(err, p.cfg.Name))
	}
	p.initialized = true
	p.logger.Info("provider initialized")
	return nil
}

// preloadTokenizer 加载失败时保留估算器
func (p *HTTPProvider) preloadTokenizer(ctx context.Context) {
	loadCtx, cancel := context.WithTimeout(ctx, tokenizerLoadTimeout)
	defer cancel()
	if err := tokenizer.Preload(loadCtx, p.tok); err != nil {
		p.logger.Warn("tokenizer data unavailable, using estimator",
			zap.String("tokenizer", p.tok.Name()), zap.Error(err))
	}
}

// Cleanup releases idle connections. It is safe to call more than once.
func (p *HTTPProvider) Cleanup(ctx context.Context) error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	if p.closed.Swap(true) {
		return nil
	}
	p.initialized = false
	p.client.CloseIdleConnections()
	p.logger.Debug("provider cleaned up")
	return nil
}

func (p *HTTPProvider) isClosed() bool {
	return p.closed.Load()
}

var _ llm.Provider = (*HTTPProvider)(nil)
