package fallback

import (
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/biaslens/llm"
	"github.com/BaSui01/biaslens/llm/cache"
	"github.com/BaSui01/biaslens/testutil/mocks"
	"github.com/stretchr/testify/require"
)

// staticSource 是测试用的固定提供者注册表
type staticSource struct {
	mu        sync.RWMutex
	providers map[string]llm.Provider
	order     []string
	failover  bool
}

func newSource(ps ...*mocks.MockProvider) *staticSource {
	s := &staticSource{providers: make(map[string]llm.Provider), failover: true}
	for _, p := range ps {
		name := p.Identity().Name
		s.providers[name] = p
		s.order = append(s.order, name)
	}
	return s
}

func (s *staticSource) Providers() map[string]llm.Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]llm.Provider, len(s.providers))
	for k, v := range s.providers {
		out[k] = v
	}
	return out
}

func (s *staticSource) Order() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

func (s *staticSource) Provider(name string) (llm.Provider, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[name]
	return p, ok
}

func (s *staticSource) Primary() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.order) == 0 {
		return ""
	}
	return s.order[0]
}

func (s *staticSource) FailoverEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failover
}

// fakeClock 可手动推进的时钟
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	orch    *Orchestrator
	monitor *llm.HealthMonitor
	cache   *cache.ResultCache
	clock   *fakeClock
	source  *staticSource
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	config  Config
	noCache bool
	opts    []Option
}

func withoutCache() harnessOption {
	return func(c *harnessConfig) { c.noCache = true }
}

func withConfig(cfg Config) harnessOption {
	return func(c *harnessConfig) { c.config = cfg }
}

func withOptions(opts ...Option) harnessOption {
	return func(c *harnessConfig) { c.opts = append(c.opts, opts...) }
}

func newHarness(t *testing.T, src *staticSource, hopts ...harnessOption) *harness {
	t.Helper()
	hc := harnessConfig{config: DefaultConfig()}
	for _, o := range hopts {
		o(&hc)
	}

	clock := newFakeClock()
	monitor := llm.NewHealthMonitor(src, llm.HealthMonitorConfig{TTL: time.Hour}, nil)
	monitor.SetClock(clock.Now)

	h := &harness{monitor: monitor, clock: clock, source: src}
	opts := []Option{WithClock(clock.Now)}
	if !hc.noCache {
		store, err := cache.NewMemoryStore(256)
		require.NoError(t, err)
		h.cache = cache.NewResultCache(store, cache.DefaultConfig(), nil)
		opts = append(opts, WithCache(h.cache))
	}
	opts = append(opts, hc.opts...)
	h.orch = New(src, monitor, hc.config, opts...)
	return h
}

func failing(name string) *mocks.MockProvider {
	return mocks.NewMockProvider(name).WithError(llm.NewError(llm.KindNetwork, name, "connection refused", nil))
}
