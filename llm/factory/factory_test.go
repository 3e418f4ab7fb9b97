package factory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/biaslens/llm"
	"github.com/BaSui01/biaslens/testutil/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// Helpers
// =============================================================================

func localConfig(name string) llm.ProviderConfig {
	return llm.ProviderConfig{
		Name:         name,
		Kind:         llm.KindOllama,
		Endpoint:     "http://localhost:11434",
		Model:        "llama3.1",
		Timeout:      time.Second,
		RateLimitRPM: 60,
	}
}

func chainConfig(primary string, fallbacks ...string) Config {
	cfg := Config{
		Primary:         primary,
		Fallbacks:       fallbacks,
		FailoverEnabled: true,
		Providers:       map[string]llm.ProviderConfig{},
	}
	for _, n := range append([]string{primary}, fallbacks...) {
		c := localConfig(n)
		c.Name = ""
		cfg.Providers[n] = c
	}
	return cfg
}

// useMocks routes the local kind to queued mock providers, one per construction.
func useMocks(t *testing.T, queued map[string][]*mocks.MockProvider) {
	t.Helper()
	var mu sync.Mutex
	prev := Register(llm.KindOllama, func(cfg llm.ProviderConfig, _ *zap.Logger) (llm.Provider, error) {
		mu.Lock()
		defer mu.Unlock()
		q := queued[cfg.Name]
		if len(q) == 0 {
			return nil, fmt.Errorf("no mock queued for %s", cfg.Name)
		}
		queued[cfg.Name] = q[1:]
		return q[0].WithConfig(cfg), nil
	})
	t.Cleanup(func() { Register(llm.KindOllama, prev) })
}

// =============================================================================
// Registry Tests
// =============================================================================

func TestNewProvider_BuiltinKinds(t *testing.T) {
	for _, kind := range llm.Kinds() {
		t.Run(string(kind), func(t *testing.T) {
			cfg := localConfig("p-" + string(kind))
			cfg.Kind = kind
			cfg.APIKey = "key"

			p, err := NewProvider(cfg, nil)
			require.NoError(t, err)
			assert.Equal(t, llm.ProviderIdentity{Name: cfg.Name, Kind: kind}, p.Identity())
			require.NoError(t, p.Cleanup(context.Background()))
		})
	}
	assert.Equal(t, llm.Kinds(), SupportedKinds())
}

func TestNewProvider_UnregisteredKindListsSupported(t *testing.T) {
	prev := Register(llm.KindAnthropic, nil)
	t.Cleanup(func() { Register(llm.KindAnthropic, prev) })

	cfg := localConfig("claude")
	cfg.Kind = llm.KindAnthropic
	cfg.APIKey = "sk-test"
	_, err := NewProvider(cfg, nil)
	require.Error(t, err)
	assert.Equal(t, llm.KindConfiguration, llm.KindOf(err))
	assert.Contains(t, err.Error(), "supported: [openai ollama]")
	assert.Equal(t, []llm.ProviderKind{llm.KindOpenAI, llm.KindOllama}, SupportedKinds())
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	cfg := localConfig("bad")
	cfg.Kind = "gemini"
	_, err := NewProvider(cfg, nil)
	require.Error(t, err)
	assert.Equal(t, llm.KindConfiguration, llm.KindOf(err))

	cfg = localConfig("nokey")
	cfg.Kind = llm.KindAnthropic
	_, err = NewProvider(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key")
}

func TestConfig_Validate(t *testing.T) {
	_, err := New(Config{}, nil)
	require.Error(t, err)
	assert.Equal(t, llm.KindConfiguration, llm.KindOf(err))

	cfg := chainConfig("a", "b")
	delete(cfg.Providers, "b")
	_, err = New(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestConfig_NamesDeduplicates(t *testing.T) {
	cfg := Config{Primary: "a", Fallbacks: []string{"b", "a", "", "c", "b"}}
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Names())
}

// =============================================================================
// Factory Tests
// =============================================================================

func TestFactory_InitializeSkipsFailedProviders(t *testing.T) {
	a := mocks.NewMockProvider("a").WithInitError(llm.NewError(llm.KindNetwork, "a", "unreachable", nil))
	b := mocks.NewMockProvider("b")
	c := mocks.NewMockProvider("c")
	useMocks(t, map[string][]*mocks.MockProvider{"a": {a}, "b": {b}, "c": {c}})

	f, err := New(chainConfig("a", "b", "c"), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, f.Initialize(context.Background()))

	assert.Equal(t, []string{"b", "c"}, f.Order())
	_, ok := f.Provider("a")
	assert.False(t, ok)
	assert.Equal(t, "a", f.Primary())
	assert.True(t, f.FailoverEnabled())
	assert.Equal(t, 1, a.CleanupCallCount())
	assert.Len(t, f.Providers(), 2)
}

func TestFactory_BestProvider(t *testing.T) {
	a := mocks.NewMockProvider("a")
	b := mocks.NewMockProvider("b")
	useMocks(t, map[string][]*mocks.MockProvider{"a": {a}, "b": {b}})

	f, err := New(chainConfig("a", "b"), nil)
	require.NoError(t, err)
	require.NoError(t, f.Initialize(context.Background()))

	best, err := f.BestProvider(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", best.Identity().Name)

	a.WithHealthy(false).CheckHealth(context.Background())
	best, err = f.BestProvider(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "b", best.Identity().Name)

	b.WithHealthy(false).CheckHealth(context.Background())
	_, err = f.BestProvider(context.Background())
	assert.ErrorIs(t, err, ErrNoHealthyProviders)
}

func TestFactory_UpdateProviderConfig(t *testing.T) {
	old := mocks.NewMockProvider("a")
	replacement := mocks.NewMockProvider("a")
	useMocks(t, map[string][]*mocks.MockProvider{"a": {old, replacement}})

	f, err := New(chainConfig("a"), nil)
	require.NoError(t, err)
	require.NoError(t, f.Initialize(context.Background()))

	cfg := localConfig("a")
	cfg.Model = "qwen2.5"
	require.NoError(t, f.UpdateProviderConfig(context.Background(), cfg))

	current, ok := f.Provider("a")
	require.True(t, ok)
	assert.Same(t, replacement, current)
	assert.Equal(t, 1, old.CleanupCallCount())
	stored, _ := f.ProviderConfig("a")
	assert.Equal(t, "qwen2.5", stored.Model)
}

func TestFactory_UpdateProviderConfigRejected(t *testing.T) {
	a := mocks.NewMockProvider("a")
	failing := mocks.NewMockProvider("a").WithInitError(errors.New("boom"))
	useMocks(t, map[string][]*mocks.MockProvider{"a": {a, failing}})

	f, err := New(chainConfig("a"), nil)
	require.NoError(t, err)
	require.NoError(t, f.Initialize(context.Background()))

	invalid := localConfig("a")
	invalid.Timeout = 0
	err = f.UpdateProviderConfig(context.Background(), invalid)
	assert.Equal(t, llm.KindConfiguration, llm.KindOf(err))

	err = f.UpdateProviderConfig(context.Background(), localConfig("unknown"))
	assert.Equal(t, llm.KindConfiguration, llm.KindOf(err))

	err = f.UpdateProviderConfig(context.Background(), localConfig("a"))
	require.Error(t, err)

	current, _ := f.Provider("a")
	assert.Same(t, a, current)
	assert.Equal(t, 0, a.CleanupCallCount())
}

func TestFactory_Cleanup(t *testing.T) {
	a := mocks.NewMockProvider("a")
	b := mocks.NewMockProvider("b")
	useMocks(t, map[string][]*mocks.MockProvider{"a": {a}, "b": {b}})

	f, err := New(chainConfig("a", "b"), nil)
	require.NoError(t, err)
	require.NoError(t, f.Initialize(context.Background()))

	require.NoError(t, f.Cleanup(context.Background()))
	assert.Empty(t, f.Providers())
	assert.Empty(t, f.Order())
	assert.Equal(t, 1, a.CleanupCallCount())
	assert.Equal(t, 1, b.CleanupCallCount())
}
