package cache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BaSui01/biaslens/llm"
	"go.uber.org/zap"
)

// Config 结果缓存配置
type Config struct {
	// TTL 常规条目有效期
	TTL time.Duration
	// LastSuccessTTL 最近成功条目有效期
	LastSuccessTTL time.Duration
	// Backend 存储后端名称，仅用于统计展示
	Backend string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		TTL:            7 * 24 * time.Hour,
		LastSuccessTTL: time.Hour,
		Backend:        "memory",
	}
}

// ProviderStats 单个提供者的缓存统计
type ProviderStats struct {
	Hits         int64  `json:"hits"`
	Misses       int64  `json:"misses"`
	Writes       int64  `json:"writes"`
	FallbackHits int64  `json:"fallback_hits"`
	Entries      *int64 `json:"entries,omitempty"`
}

// Stats 缓存统计
type Stats struct {
	Backend   string                   `json:"backend"`
	Providers map[string]ProviderStats `json:"providers"`
	Totals    ProviderStats            `json:"totals"`
	HitRate   float64                  `json:"hit_rate"`
}

type providerCounters struct {
	hits, misses, writes, fallbackHits atomic.Int64
}

// entryCounter is implemented by stores that can count live owned entries per
// provider.
type entryCounter interface {
	CountByProvider(ctx context.Context) (map[string]int64, error)
}

// ResultCache stores analysis results under content fingerprints.
type ResultCache struct {
	store  Store
	config Config
	logger *zap.Logger
	now    func() time.Time

	mu       sync.RWMutex
	counters map[string]*providerCounters
}

// NewResultCache creates a cache over store.
func NewResultCache(store Store, config Config, logger *zap.Logger) *ResultCache {
	d := DefaultConfig()
	if config.TTL <= 0 {
		config.TTL = d.TTL
	}
	if config.LastSuccessTTL <= 0 {
		config.LastSuccessTTL = d.LastSuccessTTL
	}
	if config.Backend == "" {
		config.Backend = d.Backend
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultCache{
		store:    store,
		config:   config,
		logger:   logger.With(zap.String("component", "result_cache")),
		now:      time.Now,
		counters: make(map[string]*providerCounters),
	}
}

// Get looks up the normal entry for req under provider ("" means default).
func (c *ResultCache) Get(ctx context.Context, req *llm.AnalysisRequest, provider string) (*llm.AnalysisResult, bool) {
	label := providerLabel(provider)
	entry, ok := c.lookup(ctx, Fingerprint(req, provider))
	if !ok {
		c.counter(label).misses.Add(1)
		return nil, false
	}
	c.counter(label).hits.Add(1)
	result := entry.Result
	return &result, true
}

// Set writes the normal entry under every label in providers and refreshes
// the last-success entry.
func (c *ResultCache) Set(ctx context.Context, req *llm.AnalysisRequest, result *llm.AnalysisResult, providers ...string) {
	now := c.now()
	entry := &Entry{
		Result:    *result,
		Provider:  result.Provider,
		CachedAt:  now,
		ExpiresAt: now.Add(c.config.TTL),
	}

	seen := make(map[string]struct{}, len(providers))
	for _, p := range providers {
		key := Fingerprint(req, p)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		labelled := *entry
		labelled.Label = providerLabel(p)
		if err := c.store.Set(ctx, key, &labelled, c.config.TTL); err != nil {
			c.logger.Warn("cache write failed", zap.String("provider", providerLabel(p)), zap.Error(err))
			continue
		}
	}
	c.counter(result.Provider).writes.Add(1)

	last := *entry
	last.ExpiresAt = now.Add(c.config.LastSuccessTTL)
	if err := c.store.Set(ctx, LastSuccessFingerprint(req), &last, c.config.LastSuccessTTL); err != nil {
		c.logger.Warn("last-success cache write failed", zap.Error(err))
	}
}

// GetLastSuccess returns the most recent successful result for the content,
// regardless of provider.
func (c *ResultCache) GetLastSuccess(ctx context.Context, req *llm.AnalysisRequest) (*Entry, bool) {
	entry, ok := c.lookup(ctx, LastSuccessFingerprint(req))
	if !ok {
		return nil, false
	}
	c.counter(entry.Provider).fallbackHits.Add(1)
	return entry, true
}

func (c *ResultCache) lookup(ctx context.Context, key string) (*Entry, bool) {
	entry, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if entry.Expired(c.now()) {
		return nil, false
	}
	return entry, true
}

// Stats returns counters grouped by provider.
func (c *ResultCache) Stats(ctx context.Context) Stats {
	c.mu.RLock()
	names := make([]string, 0, len(c.counters))
	for name := range c.counters {
		names = append(names, name)
	}
	c.mu.RUnlock()
	sort.Strings(names)

	var entries map[string]int64
	if ec, ok := c.store.(entryCounter); ok {
		var err error
		if entries, err = ec.CountByProvider(ctx); err != nil {
			c.logger.Debug("cache entry count failed", zap.Error(err))
		}
	}

	s := Stats{Backend: c.config.Backend, Providers: make(map[string]ProviderStats, len(names))}
	for _, name := range names {
		pc := c.counter(name)
		ps := ProviderStats{
			Hits:         pc.hits.Load(),
			Misses:       pc.misses.Load(),
			Writes:       pc.writes.Load(),
			FallbackHits: pc.fallbackHits.Load(),
		}
		if n, ok := entries[name]; ok {
			ps.Entries = &n
		}
		s.Providers[name] = ps
		s.Totals.Hits += ps.Hits
		s.Totals.Misses += ps.Misses
		s.Totals.Writes += ps.Writes
		s.Totals.FallbackHits += ps.FallbackHits
	}
	if lookups := s.Totals.Hits + s.Totals.Misses; lookups > 0 {
		s.HitRate = float64(s.Totals.Hits) / float64(lookups)
	}
	return s
}

// Close releases the underlying store.
func (c *ResultCache) Close() error {
	return c.store.Close()
}

func (c *ResultCache) counter(provider string) *providerCounters {
	c.mu.RLock()
	pc, ok := c.counters[provider]
	c.mu.RUnlock()
	if ok {
		return pc
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if pc, ok = c.counters[provider]; ok {
		return pc
	}
	pc = &providerCounters{}
	c.counters[provider] = pc
	return pc
}

func providerLabel(provider string) string {
	if provider == "" {
		return DefaultProviderKey
	}
	return provider
}
