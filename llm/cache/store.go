package cache

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/biaslens/llm"
)

// ErrCacheMiss is returned by stores when a key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// Entry 缓存条目
type Entry struct {
	Result   llm.AnalysisResult `json:"result"`
	Provider string             `json:"provider"`
	// Label 写入时使用的提供者标签（"default" 表示未指定）
	Label     string    `json:"label,omitempty"`
	CachedAt  time.Time `json:"cached_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Owned reports whether the entry was written under its producer's own label.
// One analysis may be cached under several labels, but only one copy is owned,
// so entry counts count owned entries.
func (e *Entry) Owned() bool {
	return e.Label != "" && e.Label == e.Provider
}

// Expired reports whether the entry is past its expiry.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Store is a key-value backend for cache entries. Implementations must be
// safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}
