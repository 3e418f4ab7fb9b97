// Copyright 2026 BiasLens Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 openai 提供 Chat Completions 协议后端的分析适配。请求发送到
{endpoint}/v1/chat/completions，使用 Bearer 认证并要求
response_format=json_object；健康探测为 GET {endpoint}/v1/models。

# 核心结构体

  - Codec — 实现 providers.Codec
  - New — 构造基于 providers.HTTPProvider 的 Provider
*/
package openai
