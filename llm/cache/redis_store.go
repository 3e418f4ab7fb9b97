package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	rediscache "github.com/BaSui01/biaslens/internal/cache"
)

// RedisStore keeps entries in Redis as JSON.
type RedisStore struct {
	manager *rediscache.Manager
}

// NewRedisStore wraps a connected manager.
func NewRedisStore(manager *rediscache.Manager) *RedisStore {
	return &RedisStore{manager: manager}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	var entry Entry
	if err := s.manager.GetJSON(ctx, key, &entry); err != nil {
		if rediscache.IsCacheMiss(err) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	return &entry, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("redis store: ttl must be positive")
	}
	return s.manager.SetJSON(ctx, key, entry, ttl)
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.manager.Delete(ctx, key)
}

// CountByProvider scans the normal entries and counts owned ones per provider.
// Expired keys are already gone, so every decoded entry is live.
func (s *RedisStore) CountByProvider(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64)
	err := s.manager.ScanValues(ctx, KeyPrefix+"*", func(key, value string) error {
		var entry Entry
		if err := json.Unmarshal([]byte(value), &entry); err != nil {
			return nil // 非本服务写入的值
		}
		if entry.Owned() {
			out[entry.Provider]++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis store count: %w", err)
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.manager.Close()
}
