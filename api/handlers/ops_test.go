package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BaSui01/biaslens/llm"
	"github.com/BaSui01/biaslens/llm/cache"
	"github.com/BaSui01/biaslens/llm/fallback"
	"github.com/BaSui01/biaslens/testutil/fixtures"
	"github.com/BaSui01/biaslens/testutil/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chainSource 固定顺序的提供者注册表
type chainSource struct {
	providers map[string]llm.Provider
	order     []string
}

func newChainSource(ps ...*mocks.MockProvider) *chainSource {
	s := &chainSource{providers: make(map[string]llm.Provider)}
	for _, p := range ps {
		s.providers[p.Identity().Name] = p
		s.order = append(s.order, p.Identity().Name)
	}
	return s
}

func (s *chainSource) Providers() map[string]llm.Provider { return s.providers }
func (s *chainSource) Order() []string                    { return s.order }
func (s *chainSource) Primary() string                    { return s.order[0] }
func (s *chainSource) FailoverEnabled() bool              { return true }
func (s *chainSource) Provider(name string) (llm.Provider, bool) {
	p, ok := s.providers[name]
	return p, ok
}

func newOrchestrator(t *testing.T, ps ...*mocks.MockProvider) *fallback.Orchestrator {
	t.Helper()
	src := newChainSource(ps...)
	monitor := llm.NewHealthMonitor(src, llm.HealthMonitorConfig{TTL: time.Hour}, nil)
	store, err := cache.NewMemoryStore(64)
	require.NoError(t, err)
	rc := cache.NewResultCache(store, cache.DefaultConfig(), nil)
	return fallback.New(src, monitor, fallback.DefaultConfig(), fallback.WithCache(rc))
}

func failingMock(name string) *mocks.MockProvider {
	return mocks.NewMockProvider(name).WithError(llm.NewError(llm.KindNetwork, name, "refused", nil))
}

func TestOpsHandler_Providers(t *testing.T) {
	orch := newOrchestrator(t, failingMock("openai"), mocks.NewMockProvider("local"))
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := orch.AnalyzeWithFallback(ctx, fixtures.ArticleWithTitle(string(rune('a'+i))), "openai")
		require.NoError(t, err)
	}

	h := NewOpsHandler(orch, nil)
	w := httptest.NewRecorder()
	h.HandleProviders(w, httptest.NewRequest(http.MethodGet, "/ops/providers", nil))

	require.Equal(t, http.StatusOK, w.Code)
	env := decode[fallback.ChainHealth](t, w)
	assert.Equal(t, "openai", env.Data.Primary)
	assert.Equal(t, []string{"local"}, env.Data.Chain)
	require.Len(t, env.Data.Providers, 2)
	assert.Equal(t, "open", env.Data.Providers[0].Breaker.State)
	assert.Equal(t, "primary", env.Data.Providers[0].Role)
}

func TestOpsHandler_Performance(t *testing.T) {
	orch := newOrchestrator(t, mocks.NewMockProvider("local"))
	_, err := orch.AnalyzeWithFallback(context.Background(), fixtures.Article(), "")
	require.NoError(t, err)

	h := NewOpsHandler(orch, nil)
	w := httptest.NewRecorder()
	h.HandlePerformance(w, httptest.NewRequest(http.MethodGet, "/ops/performance", nil))

	require.Equal(t, http.StatusOK, w.Code)
	env := decode[fallback.PerformanceSummary](t, w)
	require.Contains(t, env.Data.Providers, "local")
	assert.Equal(t, 1, env.Data.Providers["local"].TotalRequests)
	assert.Equal(t, "closed", env.Data.Providers["local"].BreakerState)
}

func TestOpsHandler_Cache(t *testing.T) {
	orch := newOrchestrator(t, mocks.NewMockProvider("local"))
	ctx := context.Background()
	_, _ = orch.AnalyzeWithFallback(ctx, fixtures.Article(), "")
	_, _ = orch.AnalyzeWithFallback(ctx, fixtures.Article(), "")

	h := NewOpsHandler(orch, nil)
	w := httptest.NewRecorder()
	h.HandleCache(w, httptest.NewRequest(http.MethodGet, "/ops/cache", nil))

	require.Equal(t, http.StatusOK, w.Code)
	env := decode[cache.Stats](t, w)
	assert.Equal(t, "memory", env.Data.Backend)
	assert.Equal(t, int64(1), env.Data.Totals.Hits)
}

func TestOpsHandler_ResetBreakers(t *testing.T) {
	orch := newOrchestrator(t, failingMock("openai"), mocks.NewMockProvider("local"))
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _ = orch.AnalyzeWithFallback(ctx, fixtures.ArticleWithTitle(string(rune('a'+i))), "openai")
	}
	require.True(t, orch.BreakerOpen("openai"))

	h := NewOpsHandler(orch, nil)

	w := httptest.NewRecorder()
	h.HandleResetBreakers(w, httptest.NewRequest(http.MethodGet, "/ops/breakers/reset", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.True(t, orch.BreakerOpen("openai"))

	w = httptest.NewRecorder()
	h.HandleResetBreakers(w, httptest.NewRequest(http.MethodPost, "/ops/breakers/reset", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, orch.BreakerOpen("openai"))
}

func TestOpsHandler_RejectsWrongMethod(t *testing.T) {
	h := NewOpsHandler(newOrchestrator(t, mocks.NewMockProvider("local")), nil)
	for path, fn := range map[string]http.HandlerFunc{
		"/ops/providers":   h.HandleProviders,
		"/ops/performance": h.HandlePerformance,
		"/ops/cache":       h.HandleCache,
	} {
		w := httptest.NewRecorder()
		fn(w, httptest.NewRequest(http.MethodDelete, path, nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, path)
	}
}

func TestProviderCheck(t *testing.T) {
	healthy := NewProviderCheck(newOrchestrator(t, mocks.NewMockProvider("local")))
	assert.Equal(t, "providers", healthy.Name())
	assert.NoError(t, healthy.Check(context.Background()))

	down := NewProviderCheck(newOrchestrator(t, mocks.NewMockProvider("local").WithHealthy(false)))
	assert.ErrorIs(t, down.Check(context.Background()), ErrNoHealthyProviders)
}
