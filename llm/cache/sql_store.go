package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/biaslens/internal/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// cachedAnalysis 持久化的缓存行
type cachedAnalysis struct {
	CacheKey  string    `gorm:"column:cache_key;primaryKey;size:64"`
	Provider  string    `gorm:"size:128;index"`
	Label     string    `gorm:"size:128"`
	Payload   string    `gorm:"type:text;not null"`
	CachedAt  time.Time `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

func (cachedAnalysis) TableName() string { return "analysis_cache" }

// SQLStore keeps entries in a relational database through GORM.
type SQLStore struct {
	pool *database.PoolManager
	now  func() time.Time
}

// NewSQLStore migrates the cache table and returns the store.
func NewSQLStore(ctx context.Context, pool *database.PoolManager) (*SQLStore, error) {
	if err := pool.DB().WithContext(ctx).AutoMigrate(&cachedAnalysis{}); err != nil {
		return nil, fmt.Errorf("migrate analysis_cache: %w", err)
	}
	return &SQLStore{pool: pool, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *SQLStore) Get(ctx context.Context, key string) (*Entry, error) {
	var row cachedAnalysis
	err := s.pool.DB().WithContext(ctx).
		Where("cache_key = ? AND expires_at > ?", key, s.now()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("sql store get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(row.Payload), &entry); err != nil {
		return nil, fmt.Errorf("sql store decode: %w", err)
	}
	return &entry, nil
}

func (s *SQLStore) Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("sql store: ttl must be positive")
	}
	now := s.now()
	e := *entry
	e.ExpiresAt = now.Add(ttl)
	payload, err := json.Marshal(&e)
	if err != nil {
		return fmt.Errorf("sql store encode: %w", err)
	}

	row := cachedAnalysis{
		CacheKey:  key,
		Provider:  e.Provider,
		Label:     e.Label,
		Payload:   string(payload),
		CachedAt:  e.CachedAt,
		ExpiresAt: e.ExpiresAt,
	}
	return s.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cache_key"}},
			UpdateAll: true,
		}).Create(&row).Error
	})
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	return s.pool.DB().WithContext(ctx).Where("cache_key = ?", key).Delete(&cachedAnalysis{}).Error
}

// PurgeExpired removes expired rows and returns how many were deleted.
func (s *SQLStore) PurgeExpired(ctx context.Context) (int64, error) {
	res := s.pool.DB().WithContext(ctx).Where("expires_at <= ?", s.now()).Delete(&cachedAnalysis{})
	return res.RowsAffected, res.Error
}

// CountByProvider returns live owned normal-entry counts grouped by provider.
func (s *SQLStore) CountByProvider(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Provider string
		N        int64
	}
	err := s.pool.DB().WithContext(ctx).Model(&cachedAnalysis{}).
		Select("provider, COUNT(*) AS n").
		Where("expires_at > ? AND cache_key LIKE ? AND label = provider", s.now(), KeyPrefix+"%").
		Group("provider").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Provider] = r.N
	}
	return out, nil
}

func (s *SQLStore) Close() error {
	return s.pool.Close()
}
