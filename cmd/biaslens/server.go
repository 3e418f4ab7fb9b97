package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/BaSui01/biaslens"
	"github.com/BaSui01/biaslens/api/handlers"
	"github.com/BaSui01/biaslens/config"
	"github.com/BaSui01/biaslens/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 组装 App、路由与配置热重载
type Server struct {
	cfg    *config.Config
	loader *config.Loader
	logger *zap.Logger

	app      *biaslens.App
	gatherer prometheus.Gatherer

	httpManager *server.Manager
	reloader    *config.Reloader

	healthHandler  *handlers.HealthHandler
	analyzeHandler *handlers.AnalyzeHandler
	opsHandler     *handlers.OpsHandler
}

// ServerOption configures NewServer.
type ServerOption func(*serverOptions)

type serverOptions struct {
	registry *prometheus.Registry
}

// WithRegistry isolates metrics in reg instead of the default registry.
func WithRegistry(reg *prometheus.Registry) ServerOption {
	return func(o *serverOptions) { o.registry = reg }
}

// NewServer builds the App and the HTTP handlers. loader may be nil or have
// no config path, in which case hot reload is disabled.
func NewServer(ctx context.Context, cfg *config.Config, loader *config.Loader, logger *zap.Logger, opts ...ServerOption) (*Server, error) {
	o := serverOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	appOpts := []biaslens.Option{biaslens.WithLogger(logger)}
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if o.registry != nil {
		appOpts = append(appOpts, biaslens.WithRegisterer(o.registry))
		gatherer = o.registry
	}

	app, err := biaslens.New(ctx, cfg, appOpts...)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		loader:   loader,
		logger:   logger,
		app:      app,
		gatherer: gatherer,
	}
	s.initHandlers()
	return s, nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

func (s *Server) initHandlers() {
	orch := s.app.Orchestrator()

	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewProviderCheck(orch))
	for name, ping := range s.app.Pingers() {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck(name, ping))
	}
	s.healthHandler.RegisterCheck(handlers.NewPingCheck("http_server", s.checkServing))

	s.analyzeHandler = handlers.NewAnalyzeHandler(orch, s.logger)
	s.opsHandler = handlers.NewOpsHandler(orch, s.logger)
}

// checkServing 优雅关闭开始后就绪检查失败
func (s *Server) checkServing(context.Context) error {
	if s.httpManager != nil && !s.httpManager.IsRunning() {
		return errors.New("http server is shutting down")
	}
	return nil
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// 健康检查
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// 分析
	mux.HandleFunc("/v1/analyze", s.analyzeHandler.HandleAnalyze)

	// 运维
	mux.HandleFunc("/ops/providers", s.opsHandler.HandleProviders)
	mux.HandleFunc("/ops/performance", s.opsHandler.HandlePerformance)
	mux.HandleFunc("/ops/cache", s.opsHandler.HandleCache)
	mux.HandleFunc("/ops/breakers/reset", s.opsHandler.HandleResetBreakers)

	// 指标
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	skipLimit := []string{"/healthz", "/readyz", "/version", "/metrics"}
	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		ClientIdentity(),
		SecurityHeaders(),
		OTelTracing(),
		MetricsMiddleware(s.app.Metrics()),
		RequestLogger(s.logger),
		RateLimiter(s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, skipLimit, s.logger),
	)
}

// =============================================================================
// 🚀 启动与关闭
// =============================================================================

// Start begins health monitoring, config hot reload and the HTTP listener.
func (s *Server) Start(ctx context.Context) error {
	if err := s.app.Start(ctx); err != nil {
		return fmt.Errorf("start app: %w", err)
	}

	if err := s.startReloader(ctx); err != nil {
		// 热重载失败不阻止服务启动
		s.logger.Warn("config hot reload disabled", zap.Error(err))
	}

	s.httpManager = server.NewManager(s.Handler(), server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return fmt.Errorf("start HTTP server: %w", err)
	}

	s.logger.Info("BiasLens serving",
		zap.String("addr", s.httpManager.Addr()),
		zap.Bool("hot_reload", s.reloader != nil))
	return nil
}

func (s *Server) startReloader(ctx context.Context) error {
	if s.loader == nil || s.loader.ConfigPath() == "" {
		return nil
	}
	r, err := config.NewReloader(s.loader, s.cfg, s.onReload, s.logger)
	if err != nil {
		return err
	}
	if err := r.Start(ctx); err != nil {
		return err
	}
	s.reloader = r
	return nil
}

// onReload 只替换配置发生变化的提供者，其他字段需要重启生效。
// 返回错误时 Reloader 保留旧配置，下次变更会重新尝试失败的提供者。
func (s *Server) onReload(prev, next *config.Config) error {
	changed := config.ChangedProviders(prev, next)
	if len(changed) == 0 {
		s.logger.Info("config reloaded, no provider changes")
		return nil
	}
	if err := s.app.ApplyProviderChanges(context.Background(), changed); err != nil {
		s.logger.Error("provider hot reload partially failed", zap.Error(err))
		return err
	}
	s.logger.Info("providers reloaded", zap.Int("count", len(changed)))
	return nil
}

// Wait blocks until a shutdown signal or ctx ends, then shuts everything down.
func (s *Server) Wait(ctx context.Context) error {
	var errs []error
	if s.httpManager != nil {
		if err := s.httpManager.Wait(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.Shutdown(context.WithoutCancel(ctx)); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Shutdown stops the reloader, the HTTP server and the App in that order.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Starting graceful shutdown...")

	var errs []error
	if s.reloader != nil {
		if err := s.reloader.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop reloader: %w", err))
		}
	}
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown HTTP server: %w", err))
		}
	}
	if err := s.app.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close app: %w", err))
	}

	s.logger.Info("Graceful shutdown completed")
	return errors.Join(errs...)
}
