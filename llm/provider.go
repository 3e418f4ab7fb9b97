package llm

import "context"

// Provider is the contract every analysis backend implements.
//
// Implementations must be safe for concurrent use. Analyze validates its input
// before any network I/O and returns *Error on failure. CheckHealth never
// returns an error; failures are reported in the snapshot and must not consume
// the analysis rate-limit budget.
type Provider interface {
	// Identity 提供者身份
	Identity() ProviderIdentity

	// Config 当前配置
	Config() ProviderConfig

	// Analyze 执行偏见分析
	Analyze(ctx context.Context, req *AnalysisRequest) (*AnalysisResult, error)

	// CheckHealth 执行一次健康探测并更新快照
	CheckHealth(ctx context.Context) ProviderHealth

	// LastHealth 返回最近一次探测结果
	LastHealth() ProviderHealth

	// Initialize 初始化（幂等），后端不可达时返回错误
	Initialize(ctx context.Context) error

	// Cleanup 释放资源（幂等）
	Cleanup(ctx context.Context) error
}
