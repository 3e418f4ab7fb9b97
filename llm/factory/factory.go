package factory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/BaSui01/biaslens/llm"
	"github.com/BaSui01/biaslens/llm/providers"
	"github.com/BaSui01/biaslens/llm/providers/anthropic"
	"github.com/BaSui01/biaslens/llm/providers/ollama"
	"github.com/BaSui01/biaslens/llm/providers/openai"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrNoHealthyProviders is returned by BestProvider when no registered
// provider reported itself available.
var ErrNoHealthyProviders = errors.New("no healthy providers available")

// Constructor builds a provider from a validated config.
type Constructor func(cfg llm.ProviderConfig, logger *zap.Logger) (llm.Provider, error)

var (
	registryMu sync.RWMutex
	registry   = map[llm.ProviderKind]Constructor{
		llm.KindOpenAI: func(cfg llm.ProviderConfig, logger *zap.Logger) (llm.Provider, error) {
			return openai.New(cfg, providers.WithLogger(logger))
		},
		llm.KindAnthropic: func(cfg llm.ProviderConfig, logger *zap.Logger) (llm.Provider, error) {
			return anthropic.New(cfg, providers.WithLogger(logger))
		},
		llm.KindOllama: func(cfg llm.ProviderConfig, logger *zap.Logger) (llm.Provider, error) {
			return ollama.New(cfg, providers.WithLogger(logger))
		},
	}
)

// Register installs ctor for kind and returns the previous constructor.
// Intended for tests and custom builds.
func Register(kind llm.ProviderKind, ctor Constructor) Constructor {
	registryMu.Lock()
	defer registryMu.Unlock()
	prev := registry[kind]
	registry[kind] = ctor
	return prev
}

// SupportedKinds returns the kinds with a registered constructor.
func SupportedKinds() []llm.ProviderKind {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]llm.ProviderKind, 0, len(registry))
	for _, k := range llm.Kinds() {
		if ctor := registry[k]; ctor != nil {
			out = append(out, k)
		}
	}
	return out
}

// NewProvider validates cfg and builds a provider with the registered constructor.
func NewProvider(cfg llm.ProviderConfig, logger *zap.Logger) (llm.Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	registryMu.RLock()
	ctor, ok := registry[cfg.Kind]
	registryMu.RUnlock()
	if !ok || ctor == nil {
		return nil, llm.NewError(llm.KindConfiguration, cfg.Name,
			fmt.Sprintf("no constructor registered for kind %q (supported: %v)", cfg.Kind, SupportedKinds()), nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return ctor(cfg, logger)
}

// Config describes the provider chain.
type Config struct {
	// Primary 主提供者名称（必填）
	Primary string `json:"primary" yaml:"primary"`
	// Fallbacks 备用提供者名称，按顺序尝试
	Fallbacks []string `json:"fallbacks" yaml:"fallbacks"`
	// FailoverEnabled 关闭时只尝试链首
	FailoverEnabled bool `json:"failover_enabled" yaml:"failover_enabled"`
	// Providers 名称到配置的映射
	Providers map[string]llm.ProviderConfig `json:"providers" yaml:"providers"`
}

// Names returns primary followed by fallbacks, without duplicates.
func (c Config) Names() []string {
	seen := make(map[string]struct{}, len(c.Fallbacks)+1)
	out := make([]string, 0, len(c.Fallbacks)+1)
	for _, n := range append([]string{c.Primary}, c.Fallbacks...) {
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Validate checks the chain. Only an empty primary or a chain entry without a
// provider config is fatal; per-provider problems surface in Initialize.
func (c Config) Validate() error {
	if c.Primary == "" {
		return llm.NewError(llm.KindConfiguration, "", "primary provider is required", nil)
	}
	for _, n := range c.Names() {
		if _, ok := c.Providers[n]; !ok {
			return llm.NewError(llm.KindConfiguration, n, "provider is referenced in the chain but not configured", nil)
		}
	}
	return nil
}

// Factory owns the provider instances and their configs.
type Factory struct {
	config Config
	logger *zap.Logger

	mu        sync.RWMutex
	providers map[string]llm.Provider
}

// New creates a factory. Providers are built by Initialize.
func New(cfg Config, logger *zap.Logger) (*Factory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	provCfgs := make(map[string]llm.ProviderConfig, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		if pc.Name == "" {
			pc.Name = name
		}
		provCfgs[name] = pc
	}
	cfg.Providers = provCfgs
	cfg.Fallbacks = append([]string(nil), cfg.Fallbacks...)

	return &Factory{
		config:    cfg,
		logger:    logger.With(zap.String("component", "provider_factory")),
		providers: make(map[string]llm.Provider),
	}, nil
}

// Initialize constructs and initializes every provider in the chain
// concurrently. A provider that fails is logged and left out.
func (f *Factory) Initialize(ctx context.Context) error {
	names := f.config.Names()

	var (
		mu    sync.Mutex
		built = make(map[string]llm.Provider, len(names))
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		cfg := f.config.Providers[name]
		g.Go(func() error {
			p, err := f.build(gctx, cfg)
			if err != nil {
				f.logger.Warn("skipping provider: initialization failed",
					zap.String("provider", name),
					zap.String("kind", string(cfg.Kind)),
					zap.String("error_kind", string(llm.KindOf(err))),
					zap.Error(err))
				return nil
			}
			mu.Lock()
			built[name] = p
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		for _, p := range built {
			_ = p.Cleanup(context.WithoutCancel(ctx))
		}
		return fmt.Errorf("initialize providers: %w", ctx.Err())
	}

	f.mu.Lock()
	f.providers = built
	f.mu.Unlock()

	f.logger.Info("providers initialized",
		zap.Int("registered", len(built)),
		zap.Int("configured", len(names)),
		zap.Strings("order", f.Order()))
	return nil
}

func (f *Factory) build(ctx context.Context, cfg llm.ProviderConfig) (llm.Provider, error) {
	p, err := NewProvider(cfg, f.logger)
	if err != nil {
		return nil, err
	}
	if err := p.Initialize(ctx); err != nil {
		_ = p.Cleanup(ctx)
		return nil, err
	}
	return p, nil
}

// Provider returns the registered provider called name.
func (f *Factory) Provider(name string) (llm.Provider, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.providers[name]
	return p, ok
}

// Providers returns a copy of the registered providers.
func (f *Factory) Providers() map[string]llm.Provider {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]llm.Provider, len(f.providers))
	for k, v := range f.providers {
		out[k] = v
	}
	return out
}

// Order returns the registered providers in configured order.
func (f *Factory) Order() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.providers))
	for _, n := range f.config.Names() {
		if _, ok := f.providers[n]; ok {
			out = append(out, n)
		}
	}
	return out
}

// Primary returns the configured primary name.
func (f *Factory) Primary() string { return f.config.Primary }

// FailoverEnabled reports whether fallbacks may be tried.
func (f *Factory) FailoverEnabled() bool { return f.config.FailoverEnabled }

// ProviderConfig returns the current config for name.
func (f *Factory) ProviderConfig(name string) (llm.ProviderConfig, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	c, ok := f.config.Providers[name]
	return c, ok
}

// BestProvider returns the first provider in configured order whose last
// health snapshot is available.
func (f *Factory) BestProvider(ctx context.Context) (llm.Provider, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, name := range f.Order() {
		p, ok := f.Provider(name)
		if ok && p.LastHealth().Available {
			return p, nil
		}
	}
	return nil, ErrNoHealthyProviders
}

// UpdateProviderConfig validates cfg, builds and initializes a replacement,
// swaps it in and cleans up the old instance. On failure the current
// provider stays in place.
func (f *Factory) UpdateProviderConfig(ctx context.Context, cfg llm.ProviderConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	known := false
	for _, n := range f.config.Names() {
		if n == cfg.Name {
			known = true
			break
		}
	}
	if !known {
		return llm.NewError(llm.KindConfiguration, cfg.Name, "provider is not part of the configured chain", nil)
	}

	replacement, err := f.build(ctx, cfg)
	if err != nil {
		return fmt.Errorf("update provider %s: %w", cfg.Name, err)
	}

	f.mu.Lock()
	old := f.providers[cfg.Name]
	f.providers[cfg.Name] = replacement
	f.config.Providers[cfg.Name] = cfg
	f.mu.Unlock()

	if old != nil {
		if err := old.Cleanup(ctx); err != nil {
			f.logger.Warn("cleanup of replaced provider failed", zap.String("provider", cfg.Name), zap.Error(err))
		}
	}
	f.logger.Info("provider config updated",
		zap.String("provider", cfg.Name),
		zap.String("model", cfg.Model),
		zap.String("endpoint", cfg.Endpoint))
	return nil
}

// Cleanup tears down every provider.
func (f *Factory) Cleanup(ctx context.Context) error {
	f.mu.Lock()
	current := f.providers
	f.providers = make(map[string]llm.Provider)
	f.mu.Unlock()

	var errs []error
	for name, p := range current {
		if err := p.Cleanup(ctx); err != nil {
			errs = append(errs, fmt.Errorf("cleanup %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

var _ llm.ProviderSource = (*Factory)(nil)
