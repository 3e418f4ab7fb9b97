package api

import (
	"github.com/BaSui01/biaslens/llm"
)

// =============================================================================
// 分析请求类型
// =============================================================================

// AnalyzeRequest 是 POST /v1/analyze 的请求体。
type AnalyzeRequest struct {
	// 标题（必填）
	Title string `json:"title" example:"Senate passes budget bill"`
	// 正文（必填）
	Body string `json:"body" example:"The Senate voted 51-49 ..."`
	// 摘要
	Summary string `json:"summary,omitempty"`
	// 来源媒体
	Source string `json:"source,omitempty" example:"example-news"`
	// 首选提供者，为空时按健康度排序
	Provider string `json:"provider,omitempty" example:"claude"`
}

// ToAnalysisRequest converts the wire request to the domain request.
func (r AnalyzeRequest) ToAnalysisRequest() *llm.AnalysisRequest {
	return &llm.AnalysisRequest{
		Title:   r.Title,
		Body:    r.Body,
		Summary: r.Summary,
		Source:  r.Source,
	}
}

// AnalyzeResponse 是 POST /v1/analyze 的响应数据。
type AnalyzeResponse struct {
	llm.AnalysisResult
	RequestID string `json:"request_id,omitempty"`
}
