// Copyright 2026 BiasLens Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package main 提供 BiasLens 服务端程序入口。

# 概述

cmd/biaslens 是偏见分析核心的可执行入口，提供 HTTP 分析接口、运维
只读接口、一次性命令行分析、健康检查和版本查询等子命令。程序支持
YAML 配置文件加载、结构化日志（zap）、Prometheus 指标采集以及
提供者配置热重载。

# 核心类型

  - Server      — 组装 App、HTTP 路由、中间件链与配置热重载
  - Middleware  — HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve（启动服务）、analyze（单篇分析）、health、version
  - 中间件链：Recovery、RequestID、ClientIdentity、SecurityHeaders、
    OTelTracing、MetricsMiddleware、RequestLogger、RateLimiter（按客户端）
  - 配置热重载：文件变更后仅替换配置发生变化的提供者
  - 优雅关闭：信号监听 → 停止热重载 → 关闭 HTTP → 关闭 App
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
