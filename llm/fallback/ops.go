package fallback

import (
	"context"
	"sort"
	"time"

	"github.com/BaSui01/biaslens/llm"
	"github.com/BaSui01/biaslens/llm/cache"
	"github.com/BaSui01/biaslens/llm/circuitbreaker"
)

// ProviderStatus 单个提供者的运维视图
type ProviderStatus struct {
	Name    string                  `json:"name"`
	Kind    llm.ProviderKind        `json:"kind"`
	Role    string                  `json:"role"` // primary 或 fallback
	Health  llm.ProviderHealth      `json:"health"`
	Score   float64                 `json:"score"`
	Breaker circuitbreaker.Snapshot `json:"circuit_breaker"`
}

// ChainHealth 候选链运维视图
type ChainHealth struct {
	Primary          string           `json:"primary"`
	FailoverEnabled  bool             `json:"failover_enabled"`
	Chain            []string         `json:"chain"`
	Providers        []ProviderStatus `json:"providers"`
	HealthyProviders int              `json:"healthy_providers"`
	TotalProviders   int              `json:"total_providers"`
	Recommended      string           `json:"recommended,omitempty"`
	CheckedAt        time.Time        `json:"checked_at"`
}

// ProviderPerformance 单个提供者的性能视图
type ProviderPerformance struct {
	llm.ProviderMetrics
	ConsecutiveErrors int    `json:"consecutive_errors"`
	BreakerState      string `json:"breaker_state"`
}

// PerformanceSummary 性能汇总
type PerformanceSummary struct {
	Providers   map[string]ProviderPerformance `json:"providers"`
	GeneratedAt time.Time                      `json:"generated_at"`
}

// ProviderChainHealth reports every registered provider in configured order
// together with the chain a request without a hint would use right now.
func (o *Orchestrator) ProviderChainHealth(ctx context.Context) ChainHealth {
	summary := o.monitor.SystemHealthSummary(ctx)
	primary := o.source.Primary()
	providers := o.source.Providers()

	out := ChainHealth{
		Primary:          primary,
		FailoverEnabled:  o.source.FailoverEnabled(),
		Chain:            names(o.chain(ctx, "")),
		HealthyProviders: summary.HealthyProviders,
		TotalProviders:   summary.TotalProviders,
		Recommended:      summary.RecommendedProvider,
		CheckedAt:        summary.CheckedAt,
	}
	for _, name := range o.source.Order() {
		p, ok := providers[name]
		if !ok {
			continue
		}
		h := summary.Providers[name]
		role := "fallback"
		if name == primary {
			role = "primary"
		}
		out.Providers = append(out.Providers, ProviderStatus{
			Name:   name,
			Kind:   p.Identity().Kind,
			Role:   role,
			Health: h,
			Score: Score(Candidate{
				Name:         name,
				Healthy:      h.Available,
				ResponseTime: h.ResponseTime(),
				Metrics:      o.monitor.ProviderMetrics(name),
			}),
			Breaker: o.breakers.Get(name).Snapshot(),
		})
	}
	return out
}

// PerformanceSummary aggregates the performance window and breaker state of
// every registered provider.
func (o *Orchestrator) PerformanceSummary() PerformanceSummary {
	order := o.source.Order()
	all := o.monitor.AllProviderMetrics()

	seen := make(map[string]struct{}, len(order)+len(all))
	list := make([]string, 0, len(order)+len(all))
	for _, name := range order {
		seen[name] = struct{}{}
		list = append(list, name)
	}
	extra := make([]string, 0)
	for name := range all {
		if _, ok := seen[name]; !ok {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	list = append(list, extra...)

	out := PerformanceSummary{
		Providers:   make(map[string]ProviderPerformance, len(list)),
		GeneratedAt: o.now(),
	}
	for _, name := range list {
		snap := o.breakers.Get(name).Snapshot()
		out.Providers[name] = ProviderPerformance{
			ProviderMetrics:   o.monitor.ProviderMetrics(name),
			ConsecutiveErrors: snap.ConsecutiveErrors,
			BreakerState:      snap.State,
		}
	}
	return out
}

// CacheStats returns result cache statistics grouped by provider.
func (o *Orchestrator) CacheStats(ctx context.Context) cache.Stats {
	if o.cache == nil {
		return cache.Stats{Backend: "disabled", Providers: map[string]cache.ProviderStats{}}
	}
	return o.cache.Stats(ctx)
}

// ResetCircuitBreakers closes every breaker and clears its error count.
func (o *Orchestrator) ResetCircuitBreakers() {
	o.breakers.ResetAll()
	o.logger.Info("all circuit breakers reset by operator")
}

// BreakerOpen reports whether provider is currently skipped.
func (o *Orchestrator) BreakerOpen(provider string) bool {
	return o.breakers.IsOpen(provider)
}

// Chain returns the attempt order a request with the given hint would use.
func (o *Orchestrator) Chain(ctx context.Context, preferred string) []string {
	return names(o.chain(ctx, preferred))
}
