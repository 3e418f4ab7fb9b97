package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ProviderSource exposes the registered providers in configured order.
type ProviderSource interface {
	Providers() map[string]Provider
	Order() []string
}

// HealthMonitorConfig 健康监控配置
type HealthMonitorConfig struct {
	// Interval 后台探测间隔
	Interval time.Duration
	// TTL 健康快照有效期
	TTL time.Duration
	// ProbeTimeout 单次探测超时
	ProbeTimeout time.Duration
	// WindowSize 性能窗口样本上限
	WindowSize int
	// WindowTTL 性能窗口整体过期时间
	WindowTTL time.Duration
	// RecentErrorWindow 近期错误统计区间
	RecentErrorWindow time.Duration
	// Observer 接收每次探测结果，nil 时不记录
	Observer HealthObserver
}

// DefaultHealthMonitorConfig 返回默认配置
func DefaultHealthMonitorConfig() HealthMonitorConfig {
	return HealthMonitorConfig{
		Interval:          time.Minute,
		TTL:               5 * time.Minute,
		ProbeTimeout:      10 * time.Second,
		WindowSize:        DefaultWindowSize,
		WindowTTL:         DefaultWindowTTL,
		RecentErrorWindow: DefaultRecentErrorWindow,
	}
}

// HealthSummary 系统健康概览
type HealthSummary struct {
	HealthyProviders    int                       `json:"healthy_providers"`
	TotalProviders      int                       `json:"total_providers"`
	RecommendedProvider string                    `json:"recommended_provider,omitempty"`
	Providers           map[string]ProviderHealth `json:"providers"`
	CheckedAt           time.Time                 `json:"checked_at"`
}

// HealthMonitor probes providers in the background and keeps a TTL-bound
// health snapshot plus a rolling performance window per provider.
type HealthMonitor struct {
	source ProviderSource
	config HealthMonitorConfig
	logger *zap.Logger

	clockMu sync.RWMutex
	now     func() time.Time

	mu         sync.RWMutex
	snapshot   map[string]ProviderHealth
	snapshotAt time.Time

	windowsMu sync.RWMutex
	windows   map[string]*PerformanceWindow

	probes singleflight.Group

	lifecycleMu sync.Mutex
	scheduler   *cron.Cron
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewHealthMonitor creates a monitor. Monitoring does not start until Start is called.
func NewHealthMonitor(source ProviderSource, config HealthMonitorConfig, logger *zap.Logger) *HealthMonitor {
	defaults := DefaultHealthMonitorConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.TTL <= 0 {
		config.TTL = defaults.TTL
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = defaults.ProbeTimeout
	}
	if config.WindowSize <= 0 {
		config.WindowSize = defaults.WindowSize
	}
	if config.WindowTTL <= 0 {
		config.WindowTTL = defaults.WindowTTL
	}
	if config.RecentErrorWindow <= 0 {
		config.RecentErrorWindow = defaults.RecentErrorWindow
	}
	if config.Observer == nil {
		config.Observer = nopHealthObserver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthMonitor{
		source:   source,
		config:   config,
		logger:   logger.With(zap.String("component", "health_monitor")),
		now:      time.Now,
		snapshot: make(map[string]ProviderHealth),
		windows:  make(map[string]*PerformanceWindow),
	}
}

// SetClock replaces the time source. Intended for tests.
func (m *HealthMonitor) SetClock(now func() time.Time) {
	m.clockMu.Lock()
	defer m.clockMu.Unlock()
	m.now = now
}

func (m *HealthMonitor) clock() time.Time {
	m.clockMu.RLock()
	now := m.now
	m.clockMu.RUnlock()
	return now()
}

// Start runs one probe immediately and then schedules recurring probes.
// A cycle still running when the next one is due is skipped.
func (m *HealthMonitor) Start(ctx context.Context) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if m.scheduler != nil {
		return fmt.Errorf("health monitor already started")
	}

	m.ctx, m.cancel = context.WithCancel(context.WithoutCancel(ctx))

	// 首次探测立即执行
	m.ProbeAll(ctx)

	logger := cronLogger{m.logger.Sugar()}
	m.scheduler = cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	m.scheduler.Schedule(cron.Every(m.config.Interval), cron.FuncJob(func() {
		m.ProbeAll(m.ctx)
	}))
	m.scheduler.Schedule(cron.Every(time.Minute), cron.FuncJob(m.sweepWindows))
	m.scheduler.Start()

	m.logger.Info("health monitoring started",
		zap.Duration("interval", m.config.Interval),
		zap.Duration("ttl", m.config.TTL))
	return nil
}

// Stop halts background probing and waits for a running cycle to finish.
func (m *HealthMonitor) Stop() {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if m.scheduler == nil {
		return
	}
	m.cancel()
	<-m.scheduler.Stop().Done()
	m.scheduler = nil
	m.logger.Info("health monitoring stopped")
}

// ProbeAll probes every registered provider concurrently and stores the snapshot.
// A failing or panicking probe marks only that provider unhealthy.
func (m *HealthMonitor) ProbeAll(ctx context.Context) map[string]ProviderHealth {
	providers := m.source.Providers()
	role := roles(m.source.Order())
	results := make(map[string]ProviderHealth, len(providers))
	var resultsMu sync.Mutex

	var g errgroup.Group
	for name, p := range providers {
		g.Go(func() error {
			h := m.probe(ctx, name, role[name], p)
			resultsMu.Lock()
			results[name] = h
			resultsMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	m.mu.Lock()
	m.snapshot = results
	m.snapshotAt = m.clock()
	m.mu.Unlock()

	healthy := 0
	for _, h := range results {
		if h.Available {
			healthy++
		}
	}
	m.config.Observer.RecordChainHealth(healthy, len(results))

	return copyHealth(results)
}

func (m *HealthMonitor) probe(ctx context.Context, name, role string, p Provider) (h ProviderHealth) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			h = Unhealthy(fmt.Errorf("health probe panicked: %v", r), m.clock())
			m.logger.Error("health probe panicked",
				zap.String("provider", name),
				zap.Any("panic", r))
		}
		errKind := h.ErrorKind
		if !h.Available && errKind == "" {
			errKind = KindUnknown
		}
		m.config.Observer.RecordProviderHealth(name, string(p.Identity().Kind), role,
			h.Available, time.Since(start), string(errKind))
	}()

	probeCtx, cancel := context.WithTimeout(ctx, m.config.ProbeTimeout)
	defer cancel()

	h = p.CheckHealth(probeCtx)
	if h.LastChecked.IsZero() {
		h.LastChecked = m.clock()
	}
	if !h.Available {
		m.logger.Warn("provider unhealthy",
			zap.String("provider", name),
			zap.String("error", h.Error))
	}
	return h
}

// HealthStatus returns the cached snapshot if it is younger than the TTL.
// Otherwise a single synchronous probe is shared by all concurrent callers.
func (m *HealthMonitor) HealthStatus(ctx context.Context) map[string]ProviderHealth {
	m.mu.RLock()
	fresh := !m.snapshotAt.IsZero() && m.clock().Sub(m.snapshotAt) < m.config.TTL
	if fresh {
		out := copyHealth(m.snapshot)
		m.mu.RUnlock()
		return out
	}
	m.mu.RUnlock()

	v, _, _ := m.probes.Do("probe", func() (any, error) {
		return m.ProbeAll(context.WithoutCancel(ctx)), nil
	})
	return copyHealth(v.(map[string]ProviderHealth))
}

// RecordMetrics appends a request outcome to the provider's window. The
// sample is added while holding windowsMu, so sweepWindows cannot drop the
// window between lookup and append.
func (m *HealthMonitor) RecordMetrics(name string, latency time.Duration, success bool) {
	sample := PerformanceSample{
		LatencyMs: latency.Milliseconds(),
		Success:   success,
		Timestamp: m.clock(),
	}

	m.windowsMu.RLock()
	w, ok := m.windows[name]
	if ok {
		w.Add(sample)
	}
	m.windowsMu.RUnlock()
	if ok {
		return
	}

	m.windowsMu.Lock()
	defer m.windowsMu.Unlock()
	if w, ok = m.windows[name]; !ok {
		w = NewPerformanceWindow(m.config.WindowSize)
		m.windows[name] = w
	}
	w.Add(sample)
}

// ProviderMetrics aggregates the provider's window.
func (m *HealthMonitor) ProviderMetrics(name string) ProviderMetrics {
	m.windowsMu.RLock()
	w, ok := m.windows[name]
	m.windowsMu.RUnlock()
	if !ok {
		return ProviderMetrics{SuccessRate: 1.0}
	}
	return w.Metrics(m.clock(), m.config.RecentErrorWindow)
}

// AllProviderMetrics aggregates every known window.
func (m *HealthMonitor) AllProviderMetrics() map[string]ProviderMetrics {
	m.windowsMu.RLock()
	names := make([]string, 0, len(m.windows))
	for name := range m.windows {
		names = append(names, name)
	}
	m.windowsMu.RUnlock()

	out := make(map[string]ProviderMetrics, len(names))
	for _, name := range names {
		out[name] = m.ProviderMetrics(name)
	}
	return out
}

// SystemHealthSummary counts healthy providers and recommends the first healthy
// one in configured order.
func (m *HealthMonitor) SystemHealthSummary(ctx context.Context) HealthSummary {
	status := m.HealthStatus(ctx)
	summary := HealthSummary{
		TotalProviders: len(status),
		Providers:      status,
		CheckedAt:      m.clock(),
	}
	for _, h := range status {
		if h.Available {
			summary.HealthyProviders++
		}
	}
	for _, name := range m.source.Order() {
		if h, ok := status[name]; ok && h.Available {
			summary.RecommendedProvider = name
			break
		}
	}
	return summary
}

// sweepWindows 清理过期的性能窗口
func (m *HealthMonitor) sweepWindows() {
	now := m.clock()
	m.windowsMu.Lock()
	defer m.windowsMu.Unlock()
	var expired []string
	for name, w := range m.windows {
		if w.Expired(now, m.config.WindowTTL) {
			delete(m.windows, name)
			expired = append(expired, name)
		}
	}
	if len(expired) > 0 {
		sort.Strings(expired)
		m.logger.Debug("performance windows expired", zap.Strings("providers", expired))
	}
}

func copyHealth(in map[string]ProviderHealth) map[string]ProviderHealth {
	out := make(map[string]ProviderHealth, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
