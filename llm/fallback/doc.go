// Copyright 2026 BiasLens Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
包 fallback 实现多提供者的故障转移编排。

# 概述

Orchestrator 是分析请求的唯一入口。AnalyzeWithFallback 按健康度与
性能对候选链排序，依次尝试，每次尝试受提供者自身超时约束；全部失败时
依次降级到最近成功缓存与中性结果，对调用方从不返回提供者错误。

# 核心结构体

  - Orchestrator：持有熔断器集合、健康监控、结果缓存与指标收集器。
  - Candidate：参与排序的提供者快照（健康、响应时间、性能指标）。
  - ChainHealth / PerformanceSummary：只读运维视图。

# 排序规则

健康的候选得分为 100 + 响应时间加分（小于 10s 时最多 50）
+ 50 × 成功率 − 10 × 近期错误数，按得分降序稳定排序；不健康的候选
按原有相对顺序排在其后。指定的首选提供者（熔断器未打开）总是第一个。
*/
package fallback
