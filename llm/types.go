package llm

import (
	"fmt"
	"strings"
	"time"
)

// ProviderKind 分析后端类型（封闭枚举）
type ProviderKind string

const (
	// KindOpenAI 云端后端 A（Chat Completions 协议）
	KindOpenAI ProviderKind = "openai"
	// KindAnthropic 云端后端 B（Messages 协议）
	KindAnthropic ProviderKind = "anthropic"
	// KindOllama 本地模型服务，无需凭证
	KindOllama ProviderKind = "ollama"
)

// Kinds returns every supported provider kind in declaration order.
func Kinds() []ProviderKind {
	return []ProviderKind{KindOpenAI, KindAnthropic, KindOllama}
}

// Valid reports whether k is one of the known kinds.
func (k ProviderKind) Valid() bool {
	switch k {
	case KindOpenAI, KindAnthropic, KindOllama:
		return true
	default:
		return false
	}
}

// RequiresCredential reports whether providers of this kind need an API key.
func (k ProviderKind) RequiresCredential() bool {
	return k != KindOllama
}

// ProviderIdentity 提供者身份，创建后不可变
type ProviderIdentity struct {
	Name string       `json:"name"`
	Kind ProviderKind `json:"kind"`
}

func (id ProviderIdentity) String() string {
	return fmt.Sprintf("%s(%s)", id.Name, id.Kind)
}

// ProviderConfig 单个提供者的配置
type ProviderConfig struct {
	Name           string        `json:"name" yaml:"name"`
	Kind           ProviderKind  `json:"kind" yaml:"kind"`
	Endpoint       string        `json:"endpoint" yaml:"endpoint"`
	APIKey         string        `json:"-" yaml:"api_key"`
	Model          string        `json:"model" yaml:"model"`
	Timeout        time.Duration `json:"timeout" yaml:"timeout"`
	MaxRetries     int           `json:"max_retries" yaml:"max_retries"`
	RateLimitRPM   int           `json:"rate_limit_rpm" yaml:"rate_limit_rpm"`
	MaxInputTokens int           `json:"max_input_tokens" yaml:"max_input_tokens"`
}

// Identity returns the identity described by the config.
func (c ProviderConfig) Identity() ProviderIdentity {
	return ProviderIdentity{Name: c.Name, Kind: c.Kind}
}

// Validate checks the config. The same rules apply at startup and on runtime updates.
func (c ProviderConfig) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Name) == "" {
		problems = append(problems, "name is required")
	}
	if !c.Kind.Valid() {
		problems = append(problems, fmt.Sprintf("unknown kind %q", c.Kind))
	}
	if strings.TrimSpace(c.Endpoint) == "" {
		problems = append(problems, "endpoint is required")
	}
	if strings.TrimSpace(c.Model) == "" {
		problems = append(problems, "model is required")
	}
	if c.Kind.Valid() && c.Kind.RequiresCredential() && strings.TrimSpace(c.APIKey) == "" {
		problems = append(problems, "api key is required")
	}
	if c.Timeout <= 0 {
		problems = append(problems, "timeout must be positive")
	}
	if c.MaxRetries < 0 {
		problems = append(problems, "max_retries must not be negative")
	}
	if c.RateLimitRPM <= 0 {
		problems = append(problems, "rate_limit_rpm must be positive")
	}
	if c.MaxInputTokens < 0 {
		problems = append(problems, "max_input_tokens must not be negative")
	}
	if len(problems) == 0 {
		return nil
	}
	return &Error{
		Kind:     KindConfiguration,
		Provider: c.Name,
		Message:  strings.Join(problems, "; "),
	}
}

// ProviderHealth 健康快照
type ProviderHealth struct {
	Available      bool      `json:"available"`
	ResponseTimeMs *int64    `json:"response_time_ms,omitempty"`
	Error          string    `json:"error,omitempty"`
	ErrorKind      ErrorKind `json:"error_kind,omitempty"`
	LastChecked    time.Time `json:"last_checked"`
}

// Healthy builds an available snapshot with the measured latency.
func Healthy(latency time.Duration, at time.Time) ProviderHealth {
	ms := latency.Milliseconds()
	return ProviderHealth{Available: true, ResponseTimeMs: &ms, LastChecked: at}
}

// Unhealthy builds an unavailable snapshot carrying the probe error.
func Unhealthy(err error, at time.Time) ProviderHealth {
	h := ProviderHealth{LastChecked: at}
	if err != nil {
		h.Error = err.Error()
		h.ErrorKind = KindOf(err)
	}
	return h
}

// ResponseTime returns the probe latency, or 0 when unknown.
func (h ProviderHealth) ResponseTime() time.Duration {
	if h.ResponseTimeMs == nil {
		return 0
	}
	return time.Duration(*h.ResponseTimeMs) * time.Millisecond
}

// Lean 政治倾向
type Lean string

const (
	LeanLeft        Lean = "left"
	LeanCenterLeft  Lean = "center-left"
	LeanCenter      Lean = "center"
	LeanCenterRight Lean = "center-right"
	LeanRight       Lean = "right"
)

// Valid reports whether l is a known lean label.
func (l Lean) Valid() bool {
	switch l {
	case LeanLeft, LeanCenterLeft, LeanCenter, LeanCenterRight, LeanRight:
		return true
	default:
		return false
	}
}

// ResultOrigin 结果来源
type ResultOrigin string

const (
	OriginLive            ResultOrigin = "live"
	OriginCache           ResultOrigin = "cache"
	OriginCachedFallback  ResultOrigin = "cached-fallback"
	OriginNeutralFallback ResultOrigin = "neutral-fallback"
)

// NeutralFallbackProvider labels results produced when no provider and no cache could answer.
const NeutralFallbackProvider = "neutral-fallback"

// CachedProviderPrefix prefixes the provider label of degraded cache results.
const CachedProviderPrefix = "cached:"

// AnalysisRequest 待分析的内容
type AnalysisRequest struct {
	Title   string `json:"title"`
	Body    string `json:"body"`
	Summary string `json:"summary,omitempty"`
	Source  string `json:"source,omitempty"`
}

// AnalysisResult 分析结果
type AnalysisResult struct {
	Score            int          `json:"score"`
	Lean             Lean         `json:"lean"`
	FactualAccuracy  int          `json:"factual_accuracy"`
	EmotionalTone    int          `json:"emotional_tone"`
	Confidence       int          `json:"confidence"`
	Provider         string       `json:"provider"`
	ProcessingTimeMs int64        `json:"processing_time_ms"`
	Origin           ResultOrigin `json:"origin,omitempty"`
	Degraded         bool         `json:"degraded,omitempty"`
	AnalyzedAt       time.Time    `json:"analyzed_at"`
}

// Clone returns an independent copy.
func (r *AnalysisResult) Clone() *AnalysisResult {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

// NeutralResult is the result returned when every provider and the cache failed.
func NeutralResult(now time.Time) *AnalysisResult {
	return &AnalysisResult{
		Score:            50,
		Lean:             LeanCenter,
		FactualAccuracy:  50,
		EmotionalTone:    50,
		Confidence:       0,
		Provider:         NeutralFallbackProvider,
		ProcessingTimeMs: 0,
		Origin:           OriginNeutralFallback,
		Degraded:         true,
		AnalyzedAt:       now,
	}
}

// PerformanceSample 单次请求的性能样本
type PerformanceSample struct {
	LatencyMs int64     `json:"latency_ms"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

// ProviderMetrics 聚合后的性能指标
type ProviderMetrics struct {
	AvgLatencyMs     float64 `json:"avg_latency_ms"`
	SuccessRate      float64 `json:"success_rate"`
	TotalRequests    int     `json:"total_requests"`
	RecentErrorCount int     `json:"recent_error_count"`
}
