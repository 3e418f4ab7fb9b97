package llm

import "time"

// 提供者在链中的角色，用作健康指标标签
const (
	RolePrimary  = "primary"
	RoleFallback = "fallback"
)

// HealthObserver receives the outcome of every provider health check and a
// chain-wide summary after each full round. internal/metrics.Collector
// implements it.
type HealthObserver interface {
	// RecordProviderHealth is called once per checked provider. errorKind is
	// empty for healthy providers.
	RecordProviderHealth(provider, kind, role string, healthy bool, latency time.Duration, errorKind string)
	// RecordChainHealth is called after each full health round with the healthy and total
	// provider counts.
	RecordChainHealth(healthy, total int)
}

type nopHealthObserver struct{}

func (nopHealthObserver) RecordProviderHealth(string, string, string, bool, time.Duration, string) {}
func (nopHealthObserver) RecordChainHealth(int, int)                                               {}

// roles maps each provider to its role in the configured order.
func roles(order []string) map[string]string {
	out := make(map[string]string, len(order))
	for i, name := range order {
		if i == 0 {
			out[name] = RolePrimary
		} else {
			out[name] = RoleFallback
		}
	}
	return out
}
