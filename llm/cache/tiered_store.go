package cache

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// TieredStore reads the local store first and falls back to the remote one,
// backfilling local on a remote hit.
type TieredStore struct {
	local    Store
	remote   Store
	localTTL time.Duration
	logger   *zap.Logger
}

// NewTieredStore combines a local L1 and a remote L2. Local entries live at
// most localTTL.
func NewTieredStore(local, remote Store, localTTL time.Duration, logger *zap.Logger) *TieredStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if localTTL <= 0 {
		localTTL = 5 * time.Minute
	}
	return &TieredStore{local: local, remote: remote, localTTL: localTTL, logger: logger}
}

func (s *TieredStore) Get(ctx context.Context, key string) (*Entry, error) {
	// 1. 查本地缓存
	if e, err := s.local.Get(ctx, key); err == nil {
		return e, nil
	}

	// 2. 查远端缓存
	e, err := s.remote.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	// 回填本地，不超过远端剩余有效期
	ttl := s.localTTL
	if !e.ExpiresAt.IsZero() {
		if remaining := time.Until(e.ExpiresAt); remaining < ttl {
			ttl = remaining
		}
	}
	if ttl > 0 {
		if err := s.local.Set(ctx, key, e, ttl); err != nil {
			s.logger.Debug("local cache backfill failed", zap.String("key", key), zap.Error(err))
		}
	}
	return e, nil
}

func (s *TieredStore) Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error {
	localTTL := s.localTTL
	if ttl < localTTL {
		localTTL = ttl
	}
	_ = s.local.Set(ctx, key, entry, localTTL)
	return s.remote.Set(ctx, key, entry, ttl)
}

func (s *TieredStore) Delete(ctx context.Context, key string) error {
	_ = s.local.Delete(ctx, key)
	return s.remote.Delete(ctx, key)
}

// CountByProvider counts the remote tier, which holds every entry.
func (s *TieredStore) CountByProvider(ctx context.Context) (map[string]int64, error) {
	ec, ok := s.remote.(entryCounter)
	if !ok {
		return nil, nil
	}
	return ec.CountByProvider(ctx)
}

func (s *TieredStore) Close() error {
	return errors.Join(s.local.Close(), s.remote.Close())
}
