// Copyright 2026 BiasLens Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 anthropic 提供 Messages 协议后端的分析适配。请求发送到
{endpoint}/v1/messages，携带 x-api-key 与 anthropic-version 头，
系统指令放在顶层 system 字段；健康探测为 GET {endpoint}/v1/models。

# 核心结构体

  - Codec — 实现 providers.Codec，拼接所有 text 类型内容块
  - New — 构造基于 providers.HTTPProvider 的 Provider
*/
package anthropic
