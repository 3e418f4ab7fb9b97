package llm

import (
	"sync"
	"time"
)

const (
	// DefaultWindowSize 性能窗口最大样本数
	DefaultWindowSize = 100
	// DefaultRecentErrorWindow 近期错误统计区间
	DefaultRecentErrorWindow = 15 * time.Minute
	// DefaultWindowTTL 窗口整体过期时间（自最后一次写入起）
	DefaultWindowTTL = time.Hour
)

// PerformanceWindow keeps the most recent samples for one provider.
// Oldest samples are evicted once the window is full.
type PerformanceWindow struct {
	mu         sync.Mutex
	samples    []PerformanceSample
	next       int
	full       bool
	lastUpdate time.Time
}

// NewPerformanceWindow creates a window holding at most size samples.
func NewPerformanceWindow(size int) *PerformanceWindow {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &PerformanceWindow{samples: make([]PerformanceSample, 0, size)}
}

// Add appends a sample, evicting the oldest when the window is full.
func (w *PerformanceWindow) Add(s PerformanceSample) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.full && len(w.samples) < cap(w.samples) {
		w.samples = append(w.samples, s)
		if len(w.samples) == cap(w.samples) {
			w.full = true
		}
	} else {
		w.samples[w.next] = s
		w.next = (w.next + 1) % len(w.samples)
	}
	if s.Timestamp.After(w.lastUpdate) {
		w.lastUpdate = s.Timestamp
	}
}

// Len returns the number of samples held.
func (w *PerformanceWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.samples)
}

// Expired reports whether nothing was written within ttl.
func (w *PerformanceWindow) Expired(now time.Time, ttl time.Duration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return ttl > 0 && !w.lastUpdate.IsZero() && now.Sub(w.lastUpdate) > ttl
}

// Metrics aggregates the window. With no samples the provider is reported as
// fully successful so that new providers are not penalized.
func (w *PerformanceWindow) Metrics(now time.Time, recentHorizon time.Duration) ProviderMetrics {
	w.mu.Lock()
	defer w.mu.Unlock()

	m := ProviderMetrics{SuccessRate: 1.0, TotalRequests: len(w.samples)}
	if len(w.samples) == 0 {
		return m
	}

	var latencySum int64
	successes := 0
	cutoff := now.Add(-recentHorizon)
	for _, s := range w.samples {
		latencySum += s.LatencyMs
		if s.Success {
			successes++
			continue
		}
		if !s.Timestamp.Before(cutoff) {
			m.RecentErrorCount++
		}
	}
	m.AvgLatencyMs = float64(latencySum) / float64(len(w.samples))
	m.SuccessRate = float64(successes) / float64(len(w.samples))
	return m
}
