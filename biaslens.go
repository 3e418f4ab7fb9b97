// Copyright 2026 BiasLens Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package biaslens 组装偏见分析核心：提供者工厂、健康监控、结果缓存与
故障转移编排器。

# 概述

[New] 按 config.Config 构建全部组件并显式传递依赖，不使用全局单例。
调用方通过 [App.Analyze] 发起分析；提供者失败只会降级为缓存或中性
结果，唯一返回的错误是请求校验错误。

	cfg, _ := config.NewLoader().WithConfigPath("biaslens.yaml").Load()
	app, err := biaslens.New(ctx, cfg, biaslens.WithLogger(logger))
	if err != nil { ... }
	defer app.Close(context.Background())
	_ = app.Start(ctx)
	result, _ := app.Analyze(ctx, &llm.AnalysisRequest{Title: t, Body: b}, "")
*/
package biaslens

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/biaslens/config"
	rediscache "github.com/BaSui01/biaslens/internal/cache"
	"github.com/BaSui01/biaslens/internal/database"
	"github.com/BaSui01/biaslens/internal/metrics"
	"github.com/BaSui01/biaslens/internal/telemetry"
	"github.com/BaSui01/biaslens/llm"
	"github.com/BaSui01/biaslens/llm/cache"
	"github.com/BaSui01/biaslens/llm/factory"
	"github.com/BaSui01/biaslens/llm/fallback"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// MetricsNamespace Prometheus 指标前缀
const MetricsNamespace = "biaslens"

// Option configures New.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	registerer prometheus.Registerer
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRegisterer sets the Prometheus registerer. Defaults to the global one.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// App owns one instance of every analysis component.
type App struct {
	config    *config.Config
	logger    *zap.Logger
	factory   *factory.Factory
	monitor   *llm.HealthMonitor
	cache     *cache.ResultCache
	orch      *fallback.Orchestrator
	metrics   *metrics.Collector
	telemetry *telemetry.Providers

	// 后端句柄，仅用于就绪检查与维护任务
	redis    *rediscache.Manager
	pool     *database.PoolManager
	sqlStore *cache.SQLStore

	mu        sync.Mutex
	scheduler *cron.Cron
	closed    bool
}

// New validates cfg and builds the application. Providers that fail to
// initialize are left out of the chain; an unreachable cache backend is fatal.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	a := &App{config: cfg, logger: o.logger}

	tp, err := telemetry.Init(cfg.Telemetry, o.logger)
	if err != nil {
		// 追踪不可用不影响分析
		o.logger.Warn("telemetry disabled", zap.Error(err))
	}
	a.telemetry = tp
	a.metrics = metrics.NewCollector(MetricsNamespace, o.registerer, o.logger)

	a.factory, err = factory.New(factory.Config{
		Primary:         cfg.Analysis.Primary,
		Fallbacks:       cfg.Analysis.Fallbacks,
		FailoverEnabled: cfg.Analysis.FailoverEnabled,
		Providers:       cfg.Providers,
	}, o.logger)
	if err != nil {
		return nil, a.abort(err)
	}
	if err := a.factory.Initialize(ctx); err != nil {
		return nil, a.abort(err)
	}

	a.monitor = llm.NewHealthMonitor(a.factory, llm.HealthMonitorConfig{
		Interval:     cfg.Analysis.HealthCheckInterval,
		TTL:          cfg.Analysis.HealthTTL,
		ProbeTimeout: cfg.Analysis.ProbeTimeout,
		Observer:     a.metrics,
	}, o.logger)

	if cfg.Cache.Enabled {
		store, err := a.buildStore(ctx)
		if err != nil {
			return nil, a.abort(fmt.Errorf("build %s cache: %w", cfg.Cache.Backend, err))
		}
		a.cache = cache.NewResultCache(store, cache.Config{
			TTL:            cfg.Cache.TTL,
			LastSuccessTTL: cfg.Cache.LastSuccessTTL,
			Backend:        cfg.Cache.Backend,
		}, o.logger)
	}

	a.orch = fallback.New(a.factory, a.monitor, fallback.Config{
		BreakerThreshold:          cfg.Analysis.BreakerThreshold,
		BreakerCooldown:           cfg.Analysis.BreakerCooldown,
		DegradedConfidencePenalty: cfg.Analysis.DegradedConfidencePenalty,
	},
		fallback.WithLogger(o.logger),
		fallback.WithCache(a.cache),
		fallback.WithMetrics(a.metrics),
	)

	o.logger.Info("analysis core ready",
		zap.String("primary", cfg.Analysis.Primary),
		zap.Strings("chain", a.factory.Order()),
		zap.Bool("cache", cfg.Cache.Enabled),
		zap.String("cache_backend", cfg.Cache.Backend))
	return a, nil
}

func (a *App) buildStore(ctx context.Context) (cache.Store, error) {
	cc := a.config.Cache
	switch cc.Backend {
	case "memory":
		return cache.NewMemoryStore(cc.LocalSize)
	case "redis":
		return a.redisStore()
	case "tiered":
		local, err := cache.NewMemoryStore(cc.LocalSize)
		if err != nil {
			return nil, err
		}
		remote, err := a.redisStore()
		if err != nil {
			return nil, err
		}
		return cache.NewTieredStore(local, remote, cc.LocalTTL, a.logger), nil
	case "sql":
		db := a.config.Database
		pool, err := database.Open(db.Driver, db.DSN(), database.PoolConfig{
			MaxOpenConns:        db.MaxOpenConns,
			MaxIdleConns:        db.MaxIdleConns,
			ConnMaxLifetime:     db.ConnMaxLifetime,
			ConnMaxIdleTime:     10 * time.Minute,
			HealthCheckInterval: time.Minute,
		}, a.logger)
		if err != nil {
			return nil, err
		}
		store, err := cache.NewSQLStore(ctx, pool)
		if err != nil {
			_ = pool.Close()
			return nil, err
		}
		a.pool, a.sqlStore = pool, store
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported cache backend %q", cc.Backend)
	}
}

func (a *App) redisStore() (*cache.RedisStore, error) {
	rc := a.config.Redis
	defaults := rediscache.DefaultConfig()
	manager, err := rediscache.NewManager(rediscache.Config{
		Addr:                rc.Addr,
		Password:            rc.Password,
		DB:                  rc.DB,
		DefaultTTL:          a.config.Cache.TTL,
		MaxRetries:          defaults.MaxRetries,
		PoolSize:            rc.PoolSize,
		MinIdleConns:        rc.MinIdleConns,
		HealthCheckInterval: defaults.HealthCheckInterval,
	}, a.logger)
	if err != nil {
		return nil, err
	}
	a.redis = manager
	return cache.NewRedisStore(manager), nil
}

// Start begins background health probing and, for the SQL cache, the
// periodic purge of expired rows.
func (a *App) Start(ctx context.Context) error {
	if err := a.monitor.Start(ctx); err != nil {
		return err
	}
	if a.sqlStore == nil {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.scheduler != nil {
		return nil
	}
	interval := a.config.Cache.PurgeInterval
	if interval <= 0 {
		interval = time.Hour
	}
	a.scheduler = cron.New()
	a.scheduler.Schedule(cron.Every(interval), cron.FuncJob(func() {
		a.maintainSQL(context.WithoutCancel(ctx))
	}))
	a.scheduler.Start()
	return nil
}

// maintainSQL 清理过期缓存行并上报连接池指标
func (a *App) maintainSQL(ctx context.Context) {
	n, err := a.sqlStore.PurgeExpired(ctx)
	if err != nil {
		a.logger.Warn("purge expired cache rows failed", zap.Error(err))
	} else if n > 0 {
		a.logger.Info("purged expired cache rows", zap.Int64("rows", n))
	}
	stats := a.pool.GetStats()
	a.metrics.RecordDBConnections(a.config.Database.Driver, stats.OpenConnections, stats.Idle)
	if stats.WaitCount > 0 {
		a.logger.Debug("database pool contention",
			zap.Int("in_use", stats.InUse),
			zap.Int("max_open", stats.MaxOpenConnections),
			zap.Int64("wait_count", stats.WaitCount),
			zap.Duration("wait_duration", stats.WaitDuration))
	}
}

// Analyze runs req through the fallback chain. preferred may name a provider
// to try first.
func (a *App) Analyze(ctx context.Context, req *llm.AnalysisRequest, preferred string) (*llm.AnalysisResult, error) {
	return a.orch.AnalyzeWithFallback(ctx, req, preferred)
}

// Orchestrator exposes the orchestrator for the ops surface.
func (a *App) Orchestrator() *fallback.Orchestrator { return a.orch }

// Metrics returns the metrics collector.
func (a *App) Metrics() *metrics.Collector { return a.metrics }

// Pingers returns a ping function per external backend in use.
func (a *App) Pingers() map[string]func(context.Context) error {
	out := make(map[string]func(context.Context) error, 2)
	if a.redis != nil {
		out["redis"] = a.redis.Ping
	}
	if a.pool != nil {
		out["database"] = a.pool.Ping
	}
	return out
}

// ApplyProviderChanges hot-swaps providers whose config changed. Every change
// is attempted; failures keep the previous provider and are joined.
func (a *App) ApplyProviderChanges(ctx context.Context, changes []llm.ProviderConfig) error {
	var errs []error
	for _, pc := range changes {
		// 上次部分失败后重试时，已生效的提供者不再重建
		if cur, ok := a.factory.ProviderConfig(pc.Name); ok && cur == pc {
			continue
		}
		if err := a.factory.UpdateProviderConfig(ctx, pc); err != nil {
			errs = append(errs, fmt.Errorf("update %s: %w", pc.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Close stops background work and releases every resource. It is safe to
// call more than once.
func (a *App) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	scheduler := a.scheduler
	a.mu.Unlock()

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	a.monitor.Stop()

	var errs []error
	if err := a.factory.Cleanup(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}
	if err := a.telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
	}
	return errors.Join(errs...)
}

// abort 构建失败时释放已创建的资源
func (a *App) abort(err error) error {
	if a.factory != nil {
		_ = a.factory.Cleanup(context.Background())
	}
	if a.telemetry != nil {
		_ = a.telemetry.Shutdown(context.Background())
	}
	return err
}
