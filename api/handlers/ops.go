package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/BaSui01/biaslens/llm/cache"
	"github.com/BaSui01/biaslens/llm/fallback"
	"go.uber.org/zap"
)

// Ops 运维视图数据源，由 fallback.Orchestrator 实现
type Ops interface {
	ProviderChainHealth(ctx context.Context) fallback.ChainHealth
	PerformanceSummary() fallback.PerformanceSummary
	CacheStats(ctx context.Context) cache.Stats
	ResetCircuitBreakers()
}

var _ Ops = (*fallback.Orchestrator)(nil)

// OpsHandler 运维端点处理器
type OpsHandler struct {
	ops    Ops
	logger *zap.Logger
}

// NewOpsHandler 创建运维处理器
func NewOpsHandler(ops Ops, logger *zap.Logger) *OpsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpsHandler{ops: ops, logger: logger.With(zap.String("component", "ops_handler"))}
}

// HandleProviders GET /ops/providers
func (h *OpsHandler) HandleProviders(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, h.logger) {
		return
	}
	WriteSuccess(w, r, h.ops.ProviderChainHealth(r.Context()))
}

// HandlePerformance GET /ops/performance
func (h *OpsHandler) HandlePerformance(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, h.logger) {
		return
	}
	WriteSuccess(w, r, h.ops.PerformanceSummary())
}

// HandleCache GET /ops/cache
func (h *OpsHandler) HandleCache(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, h.logger) {
		return
	}
	WriteSuccess(w, r, h.ops.CacheStats(r.Context()))
}

// HandleResetBreakers POST /ops/breakers/reset
func (h *OpsHandler) HandleResetBreakers(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost, h.logger) {
		return
	}
	h.ops.ResetCircuitBreakers()
	h.logger.Info("circuit breakers reset", zap.String("remote_addr", r.RemoteAddr))
	WriteSuccess(w, r, map[string]string{"status": "reset"})
}

// ErrNoHealthyProviders 就绪检查：没有健康的提供者
var ErrNoHealthyProviders = errors.New("no healthy analysis provider")

// ProviderCheck 要求至少一个提供者健康的就绪检查
type ProviderCheck struct {
	ops Ops
}

// NewProviderCheck 创建提供者就绪检查
func NewProviderCheck(ops Ops) *ProviderCheck {
	return &ProviderCheck{ops: ops}
}

func (c *ProviderCheck) Name() string { return "providers" }

func (c *ProviderCheck) Check(ctx context.Context) error {
	if c.ops.ProviderChainHealth(ctx).HealthyProviders == 0 {
		return ErrNoHealthyProviders
	}
	return nil
}
