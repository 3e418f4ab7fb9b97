// Copyright 2026 BiasLens Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 providers 提供分析后端的公共 HTTP 实现。各后端子包（openai、
anthropic、ollama）只实现 Codec：请求构造、响应正文提取与健康探测
请求，其余能力由 HTTPProvider 统一提供。

# 核心结构体

  - HTTPProvider — 实现 llm.Provider：请求校验、正文 token 截断、
    按 RPM 限流、瞬时错误指数退避重试、HTTP 错误分类、健康快照与
    幂等的生命周期钩子
  - Codec — 后端协议适配接口
  - Prompt — 系统指令与用户消息

# 响应解析

ParseAnalysis 同时接受 JSON（含 ```json 代码块）与 "key: value"
结构化文本，字段名与倾向标签做宽松归一化，数值四舍五入后必须落在
0-100 区间，否则返回 invalid_response 错误。

# 错误映射

MapHTTPError 将状态码映射为 llm.ErrorKind：401/403 → authentication，
429 → rate_limit（解析 Retry-After），408/504 → timeout，其余 5xx →
network，404 → configuration，其他 → unknown。
*/
package providers
