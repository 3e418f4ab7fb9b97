// Package fixtures 提供测试用的文章请求与分析结果样例。
package fixtures

import (
	"time"

	"github.com/BaSui01/biaslens/llm"
)

// Article 返回一篇完整的示例文章
func Article() *llm.AnalysisRequest {
	return &llm.AnalysisRequest{
		Title:   "City council approves new transit budget",
		Body:    "The city council voted 7-2 on Tuesday to approve a transit budget that expands bus service to outlying districts.",
		Summary: "Transit budget approved.",
		Source:  "metro-daily",
	}
}

// ArticleWithTitle 返回指定标题的示例文章，用于生成不同指纹
func ArticleWithTitle(title string) *llm.AnalysisRequest {
	a := Article()
	a.Title = title
	return a
}

// InvalidArticles 返回应被校验拒绝的请求
func InvalidArticles() map[string]*llm.AnalysisRequest {
	return map[string]*llm.AnalysisRequest{
		"nil":         nil,
		"empty title": {Title: "", Body: "body"},
		"blank body":  {Title: "title", Body: " \n\t"},
	}
}

// Result 返回一个实时分析结果
func Result(provider string, confidence int) llm.AnalysisResult {
	return llm.AnalysisResult{
		Score:            42,
		Lean:             llm.LeanCenterLeft,
		FactualAccuracy:  77,
		EmotionalTone:    35,
		Confidence:       confidence,
		Provider:         provider,
		ProcessingTimeMs: 120,
		Origin:           llm.OriginLive,
		AnalyzedAt:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}
