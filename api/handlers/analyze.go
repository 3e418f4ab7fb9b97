package handlers

import (
	"context"
	"net/http"

	"github.com/BaSui01/biaslens/api"
	"github.com/BaSui01/biaslens/llm"
	"go.uber.org/zap"
)

// Analyzer 分析入口，由 fallback.Orchestrator 实现
type Analyzer interface {
	AnalyzeWithFallback(ctx context.Context, req *llm.AnalysisRequest, preferred string) (*llm.AnalysisResult, error)
}

// =============================================================================
// 📰 分析接口 Handler
// =============================================================================

// AnalyzeHandler 分析接口处理器
type AnalyzeHandler struct {
	analyzer Analyzer
	logger   *zap.Logger
}

// NewAnalyzeHandler 创建分析处理器
func NewAnalyzeHandler(analyzer Analyzer, logger *zap.Logger) *AnalyzeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyzeHandler{analyzer: analyzer, logger: logger.With(zap.String("component", "analyze_handler"))}
}

// HandleAnalyze POST /v1/analyze
//
// 提供者失败时仍返回 200，结果的 origin / degraded 字段标明降级来源。
func (h *AnalyzeHandler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost, h.logger) {
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.AnalyzeRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	result, err := h.analyzer.AnalyzeWithFallback(r.Context(), req.ToAnalysisRequest(), req.Provider)
	if err != nil {
		WriteError(w, r, errorInfoFrom(err), h.logger)
		return
	}

	WriteSuccess(w, r, api.AnalyzeResponse{
		AnalysisResult: *result,
		RequestID:      requestID(r),
	})
}
