// Copyright 2026 BiasLens Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
包 llm 定义偏见分析后端的统一契约与共享基础设施。

# 概述

分析后端（OpenAI、Anthropic、本地 Ollama 等）在鉴权、请求格式与错误
语义上各不相同。本包对上层暴露一致的请求与结果模型，并提供健康监控与
性能窗口，供 fallback 包做候选排序。

# 核心接口

  - [Provider]：分析后端契约，提供 Analyze / CheckHealth / Initialize /
    Cleanup，实现必须可并发调用。
  - [ProviderSource]：按配置顺序暴露已注册的提供者。

# 错误模型

所有提供者与工厂错误均为 [*Error]，通过 [ErrorKind] 分类。
[KindOf] 可对任意错误分类，[Wrap] 为未标记的错误补充类别与提供者名称。
网络、限流与超时错误视为可重试。

# 健康监控

[HealthMonitor] 以固定间隔并发探测所有提供者，快照在 TTL 内直接复用，
过期后由 singleflight 合并为一次同步探测。每次分析尝试的结果写入
[PerformanceWindow]，聚合为 [ProviderMetrics]。

# 结果模型

[AnalysisResult] 的所有分数为 0-100 的整数。[RawScores.Normalize]
负责四舍五入与范围校验；[NeutralResult] 是全部降级失败时的中性结果。
*/
package llm
