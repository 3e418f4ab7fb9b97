// MockProvider 是分析后端的测试模拟实现。
//
// 支持固定结果、错误注入、延迟与健康状态切换。
package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BaSui01/biaslens/llm"
)

// --- MockProvider 结构 ---

// MockProvider 是 llm.Provider 的模拟实现
type MockProvider struct {
	mu sync.RWMutex

	config llm.ProviderConfig

	// 响应配置
	result    llm.AnalysisResult
	err       error
	analyzeFn func(ctx context.Context, req *llm.AnalysisRequest) (*llm.AnalysisResult, error)

	// 健康配置
	healthy     bool
	healthErr   error
	healthDelay time.Duration
	healthPanic bool
	initErr     error
	last        llm.ProviderHealth

	// 行为控制
	delay     time.Duration
	failAfter int

	// 调用记录
	calls        []*llm.AnalysisRequest
	healthCalls  int
	initCalls    int
	cleanupCalls int
}

// --- 构造函数和 Builder 方法 ---

// NewMockProvider 创建健康、返回中性偏右结果的 MockProvider
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		config: llm.ProviderConfig{
			Name:         name,
			Kind:         llm.KindOllama,
			Endpoint:     "http://mock-provider",
			Model:        "mock-model",
			Timeout:      5 * time.Second,
			RateLimitRPM: 600,
		},
		result: llm.AnalysisResult{
			Score:           60,
			Lean:            llm.LeanCenterRight,
			FactualAccuracy: 80,
			EmotionalTone:   30,
			Confidence:      70,
		},
		healthy: true,
		last:    llm.ProviderHealth{Error: "not checked"},
	}
}

// WithConfig 设置配置（名称保持不变）
func (m *MockProvider) WithConfig(cfg llm.ProviderConfig) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg.Name = m.config.Name
	m.config = cfg
	return m
}

// WithTimeout 设置配置中的单次调用超时
func (m *MockProvider) WithTimeout(d time.Duration) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.Timeout = d
	return m
}

// WithResult 设置固定分析结果
func (m *MockProvider) WithResult(r llm.AnalysisResult) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = r
	return m
}

// WithError 设置返回错误
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithAnalyzeFunc 设置自定义 Analyze 函数
func (m *MockProvider) WithAnalyzeFunc(fn func(ctx context.Context, req *llm.AnalysisRequest) (*llm.AnalysisResult, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyzeFn = fn
	return m
}

// WithDelay 设置 Analyze 延迟，期间响应 ctx 取消
func (m *MockProvider) WithDelay(d time.Duration) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithFailAfter 在第 N 次调用后失败
func (m *MockProvider) WithFailAfter(n int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	return m
}

// WithHealthy 设置健康探测结果
func (m *MockProvider) WithHealthy(healthy bool) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthy = healthy
	m.healthErr = nil
	if !healthy {
		m.healthErr = errors.New("mock provider unhealthy")
	}
	return m
}

// WithHealthDelay 设置健康探测延迟（模拟响应时间）
func (m *MockProvider) WithHealthDelay(d time.Duration) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthDelay = d
	return m
}

// WithHealthPanic 让健康探测 panic
func (m *MockProvider) WithHealthPanic() *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthPanic = true
	return m
}

// WithInitError 设置 Initialize 返回的错误
func (m *MockProvider) WithInitError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initErr = err
	return m
}

// WithLastHealth 直接设置最近健康快照
func (m *MockProvider) WithLastHealth(h llm.ProviderHealth) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = h
	return m
}

// --- Provider 接口实现 ---

// Identity 返回身份
func (m *MockProvider) Identity() llm.ProviderIdentity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Identity()
}

// Config 返回配置
func (m *MockProvider) Config() llm.ProviderConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Analyze 返回预设结果或错误
func (m *MockProvider) Analyze(ctx context.Context, req *llm.AnalysisRequest) (*llm.AnalysisResult, error) {
	if err := llm.ValidateRequest(req); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.calls = append(m.calls, req)
	n := len(m.calls)
	delay, fn, err := m.delay, m.analyzeFn, m.err
	failAfter := m.failAfter
	result := m.result
	name := m.config.Name
	m.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, llm.NewError(llm.KindTimeout, name, "mock analyze cancelled", ctx.Err())
		case <-timer.C:
		}
	}

	if failAfter > 0 && n > failAfter {
		return nil, llm.NewError(llm.KindNetwork, name, "mock provider: configured to fail after N calls", nil)
	}
	if err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(ctx, req)
	}

	result.Provider = name
	result.Origin = llm.OriginLive
	result.ProcessingTimeMs = delay.Milliseconds()
	result.AnalyzedAt = time.Now()
	return &result, nil
}

// CheckHealth 返回预设健康状态
func (m *MockProvider) CheckHealth(ctx context.Context) llm.ProviderHealth {
	m.mu.Lock()
	m.healthCalls++
	healthy, healthErr, delay, panics := m.healthy, m.healthErr, m.healthDelay, m.healthPanic
	m.mu.Unlock()

	if panics {
		panic("mock health probe panic")
	}
	if delay > 0 {
		select {
		case <-ctx.Done():
			healthy, healthErr = false, ctx.Err()
		case <-time.After(delay):
		}
	}

	var h llm.ProviderHealth
	if healthy {
		h = llm.Healthy(delay, time.Now())
	} else {
		h = llm.Unhealthy(healthErr, time.Now())
	}

	m.mu.Lock()
	m.last = h
	m.mu.Unlock()
	return h
}

// LastHealth 返回最近一次探测结果
func (m *MockProvider) LastHealth() llm.ProviderHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// Initialize 记录调用并返回预设错误
func (m *MockProvider) Initialize(ctx context.Context) error {
	m.mu.Lock()
	m.initCalls++
	err := m.initErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.CheckHealth(ctx)
	return nil
}

// Cleanup 记录调用
func (m *MockProvider) Cleanup(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanupCalls++
	return nil
}

// --- 调用记录查询 ---

// CallCount 返回 Analyze 调用次数（含失败）
func (m *MockProvider) CallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.calls)
}

// Calls 返回 Analyze 收到的请求
func (m *MockProvider) Calls() []*llm.AnalysisRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*llm.AnalysisRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

// HealthCallCount 返回 CheckHealth 调用次数
func (m *MockProvider) HealthCallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.healthCalls
}

// InitCallCount 返回 Initialize 调用次数
func (m *MockProvider) InitCallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initCalls
}

// CleanupCallCount 返回 Cleanup 调用次数
func (m *MockProvider) CleanupCallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cleanupCalls
}

// Reset 清空调用记录
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.healthCalls = 0
	m.initCalls = 0
	m.cleanupCalls = 0
}

var _ llm.Provider = (*MockProvider)(nil)
