// Copyright 2026 BiasLens Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package handlers 提供 BiasLens HTTP API 的请求处理器实现。

# 概述

handlers 包实现分析入口、运维视图与健康检查端点，以及统一的
响应/错误封装。处理器只依赖小接口（Analyzer、Ops、HealthCheck），
生产环境由 fallback.Orchestrator 满足。

# 核心类型

  - AnalyzeHandler：POST /v1/analyze，不会因提供者失败返回 5xx。
  - OpsHandler：提供者链健康、性能汇总、缓存统计与熔断器重置。
  - HealthHandler：/healthz 存活探针与 /readyz 就绪检查。
  - Response / ErrorInfo：统一响应结构。
*/
package handlers
