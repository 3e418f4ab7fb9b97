// Copyright 2026 BiasLens Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
包 server 提供运维 HTTP 服务器的生命周期管理，支持非阻塞启动、
优雅关闭与系统信号监听。

# 概述

Manager 封装 net/http.Server，统一管理监听、服务、关闭与错误传播。
运维服务器承载健康检查、提供者状态与 Prometheus 指标端点。

# 核心类型

  - Manager：持有 http.Server、net.Listener 与异步错误通道，
    提供 Start/Shutdown/Wait 等生命周期方法。
  - Config：监听地址、读写超时、空闲超时与优雅关闭超时。

# 主要能力

  - 非阻塞启动：Start 在后台 goroutine 中运行服务。
  - 优雅关闭：Shutdown 在配置的超时内排空请求。
  - 信号监听：Wait 监听 ctx、SIGINT/SIGTERM 与服务异常，随后优雅关闭。
*/
package server
