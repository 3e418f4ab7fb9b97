// Copyright 2026 BiasLens Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖运维 HTTP、
分析调用、熔断器、缓存与数据库五个维度。

# 概述

Collector 通过 promauto.With 注册到调用方提供的 Registerer，
测试可以使用独立的 Registry。所有指标按 namespace 隔离。
nil *Collector 的记录方法为空操作，组件可以选择性接入指标。

# 核心类型

  - Collector：指标收集器，按业务域分组持有 Counter、Histogram、Gauge。

# 主要能力

  - HTTP 指标：请求总数、耗时、响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 分析指标：按提供者与结果类别统计调用次数与耗时，
    按来源（provider/cache/neutral）统计返回结果与置信度分布。
  - 熔断器指标：状态转换计数与当前是否打开。
  - 缓存指标：按缓存层统计命中与未命中。
  - 数据库指标：打开与空闲连接数。
*/
package metrics
