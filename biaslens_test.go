package biaslens

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/biaslens/config"
	"github.com/BaSui01/biaslens/llm"
	"github.com/BaSui01/biaslens/llm/factory"
	"github.com/BaSui01/biaslens/testutil"
	"github.com/BaSui01/biaslens/testutil/fixtures"
	"github.com/BaSui01/biaslens/testutil/mocks"
	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// mockRegistry 按名称记录工厂构建出的 MockProvider
type mockRegistry struct {
	mu      sync.Mutex
	built   map[string][]*mocks.MockProvider
	healthy map[string]bool
	failing map[string]bool
}

func (r *mockRegistry) latest(name string) *mocks.MockProvider {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.built[name]
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

// useMockProviders 将 ollama 构造函数替换为 MockProvider
func useMockProviders(t *testing.T) *mockRegistry {
	t.Helper()
	reg := &mockRegistry{
		built:   make(map[string][]*mocks.MockProvider),
		healthy: make(map[string]bool),
		failing: make(map[string]bool),
	}
	prev := factory.Register(llm.KindOllama, func(cfg llm.ProviderConfig, _ *zap.Logger) (llm.Provider, error) {
		reg.mu.Lock()
		defer reg.mu.Unlock()
		m := mocks.NewMockProvider(cfg.Name).WithConfig(cfg)
		if h, ok := reg.healthy[cfg.Name]; ok {
			m.WithHealthy(h)
		}
		if reg.failing[cfg.Name] {
			m.WithError(llm.NewError(llm.KindNetwork, cfg.Name, "connection refused", nil))
		}
		reg.built[cfg.Name] = append(reg.built[cfg.Name], m)
		return m, nil
	})
	t.Cleanup(func() { factory.Register(llm.KindOllama, prev) })
	return reg
}

func testConfig(backend string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Providers["backup"] = llm.ProviderConfig{
		Name:         "backup",
		Kind:         llm.KindOllama,
		Endpoint:     "http://localhost:11435",
		Model:        "mistral",
		Timeout:      5 * time.Second,
		RateLimitRPM: 60,
	}
	cfg.Analysis.Fallbacks = []string{"backup"}
	cfg.Cache.Backend = backend
	return cfg
}

func newApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	app, err := New(testutil.TestContext(t), cfg,
		WithLogger(zaptest.NewLogger(t)),
		WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })
	return app
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := New(context.Background(), nil)
	require.Error(t, err)

	cfg := testConfig("memory")
	cfg.Analysis.Primary = "missing"
	_, err = New(context.Background(), cfg, WithRegisterer(prometheus.NewRegistry()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestApp_AnalyzeMemoryBackend(t *testing.T) {
	useMockProviders(t)
	app := newApp(t, testConfig("memory"))
	ctx := testutil.TestContext(t)

	result, err := app.Analyze(ctx, fixtures.Article(), "")
	require.NoError(t, err)
	assert.Equal(t, "local", result.Provider)
	assert.Equal(t, llm.OriginLive, result.Origin)

	again, err := app.Analyze(ctx, fixtures.Article(), "")
	require.NoError(t, err)
	assert.Equal(t, llm.OriginCache, again.Origin)
	assert.Equal(t, result.Score, again.Score)

	stats := app.Orchestrator().CacheStats(ctx)
	assert.Equal(t, "memory", stats.Backend)
	assert.Empty(t, app.Pingers())
}

func TestApp_AnalyzeRejectsInvalidRequest(t *testing.T) {
	useMockProviders(t)
	app := newApp(t, testConfig("memory"))

	_, err := app.Analyze(testutil.TestContext(t), &llm.AnalysisRequest{Title: "t"}, "")
	testutil.AssertKind(t, err, llm.KindValidation)
}

func TestApp_FallsBackToSecondProvider(t *testing.T) {
	reg := useMockProviders(t)
	reg.failing["local"] = true
	app := newApp(t, testConfig("memory"))

	result, err := app.Analyze(testutil.TestContext(t), fixtures.Article(), "")
	require.NoError(t, err)
	assert.Equal(t, "backup", result.Provider)
	assert.Equal(t, 1, reg.latest("local").CallCount())
}

func TestApp_CacheDisabled(t *testing.T) {
	reg := useMockProviders(t)
	reg.failing["local"] = true
	reg.failing["backup"] = true
	cfg := testConfig("memory")
	cfg.Cache.Enabled = false
	app := newApp(t, cfg)

	result, err := app.Analyze(testutil.TestContext(t), fixtures.Article(), "")
	require.NoError(t, err)
	assert.Equal(t, llm.OriginNeutralFallback, result.Origin)
	assert.Equal(t, "disabled", app.Orchestrator().CacheStats(testutil.TestContext(t)).Backend)
}

func TestApp_RedisBackend(t *testing.T) {
	useMockProviders(t)
	mr := miniredis.RunT(t)
	cfg := testConfig("redis")
	cfg.Redis.Addr = mr.Addr()
	app := newApp(t, cfg)
	ctx := testutil.TestContext(t)

	_, err := app.Analyze(ctx, fixtures.Article(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, mr.Keys())

	pingers := app.Pingers()
	require.Contains(t, pingers, "redis")
	assert.NoError(t, pingers["redis"](ctx))
}

func TestApp_RedisUnavailable(t *testing.T) {
	useMockProviders(t)
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig("redis")
	cfg.Redis.Addr = addr
	_, err := New(testutil.TestContext(t), cfg, WithRegisterer(prometheus.NewRegistry()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")
}

func TestApp_TieredBackend(t *testing.T) {
	useMockProviders(t)
	mr := miniredis.RunT(t)
	cfg := testConfig("tiered")
	cfg.Redis.Addr = mr.Addr()
	app := newApp(t, cfg)
	ctx := testutil.TestContext(t)

	_, err := app.Analyze(ctx, fixtures.Article(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, mr.Keys())

	again, err := app.Analyze(ctx, fixtures.Article(), "")
	require.NoError(t, err)
	assert.Equal(t, llm.OriginCache, again.Origin)
}

func TestApp_SQLBackend(t *testing.T) {
	useMockProviders(t)
	cfg := testConfig("sql")
	cfg.Database.Driver = "sqlite"
	cfg.Database.Name = filepath.Join(t.TempDir(), "cache.db")
	cfg.Cache.PurgeInterval = time.Hour
	app := newApp(t, cfg)
	ctx := testutil.TestContext(t)

	require.NoError(t, app.Start(ctx))

	_, err := app.Analyze(ctx, fixtures.Article(), "")
	require.NoError(t, err)

	stats := app.Orchestrator().CacheStats(ctx)
	assert.Equal(t, "sql", stats.Backend)
	require.Contains(t, stats.Providers, "local")
	require.NotNil(t, stats.Providers["local"].Entries)
	assert.GreaterOrEqual(t, *stats.Providers["local"].Entries, int64(1))

	pingers := app.Pingers()
	require.Contains(t, pingers, "database")
	assert.NoError(t, pingers["database"](ctx))

	// 维护任务可直接调用
	app.maintainSQL(ctx)
}

func TestApp_StartProbesProviders(t *testing.T) {
	reg := useMockProviders(t)
	reg.healthy["backup"] = false
	app := newApp(t, testConfig("memory"))
	ctx := testutil.TestContext(t)

	require.NoError(t, app.Start(ctx))

	health := app.Orchestrator().ProviderChainHealth(ctx)
	require.Len(t, health.Providers, 2)
	assert.Equal(t, 1, health.HealthyProviders)
	byName := make(map[string]bool, len(health.Providers))
	for _, p := range health.Providers {
		byName[p.Name] = p.Health.Available
	}
	assert.True(t, byName["local"])
	assert.False(t, byName["backup"])
	assert.GreaterOrEqual(t, reg.latest("local").HealthCallCount(), 1)
}

func TestApp_ApplyProviderChanges(t *testing.T) {
	reg := useMockProviders(t)
	cfg := testConfig("memory")
	app := newApp(t, cfg)
	ctx := testutil.TestContext(t)

	first := reg.latest("local")
	updated := cfg.Providers["local"]
	updated.Model = "llama3.2"

	err := app.ApplyProviderChanges(ctx, []llm.ProviderConfig{
		updated,
		{Name: "stranger", Kind: llm.KindOllama, Endpoint: "http://x", Model: "m", Timeout: time.Second, RateLimitRPM: 1},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stranger")

	second := reg.latest("local")
	require.NotSame(t, first, second)
	assert.Equal(t, "llama3.2", second.Config().Model)
	assert.Equal(t, 1, first.CleanupCallCount())

	require.NoError(t, app.ApplyProviderChanges(ctx, nil))

	// 已生效的配置不会再次重建
	require.NoError(t, app.ApplyProviderChanges(ctx, []llm.ProviderConfig{updated}))
	assert.Same(t, second, reg.latest("local"))
	assert.Zero(t, second.CleanupCallCount())
}

func TestApp_CloseIsIdempotent(t *testing.T) {
	reg := useMockProviders(t)
	app, err := New(testutil.TestContext(t), testConfig("memory"), WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	require.NoError(t, app.Start(testutil.TestContext(t)))

	require.NoError(t, app.Close(context.Background()))
	require.NoError(t, app.Close(context.Background()))
	assert.Equal(t, 1, reg.latest("local").CleanupCallCount())
	assert.Equal(t, 1, reg.latest("backup").CleanupCallCount())
}
