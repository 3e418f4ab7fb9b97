// Copyright 2026 BiasLens Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 ollama 提供本地模型服务的分析适配。请求发送到 {endpoint}/api/chat，
关闭流式输出并要求 format=json；健康探测为 GET {endpoint}/api/tags。
本地服务不需要凭证，配置了 APIKey 时以 Bearer 头发送（用于反向代理）。

# 核心结构体

  - Codec — 实现 providers.Codec
  - New — 构造基于 providers.HTTPProvider 的 Provider
*/
package ollama
