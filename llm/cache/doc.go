// 版权所有 2024 BiasLens Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供分析结果缓存，避免对相同内容重复调用后端。

# 概述

每条结果写入两类条目：常规条目（键包含提供者，默认 7 天）与
最近成功条目（键不含提供者，默认 1 小时）。所有提供者失败时，
编排器使用最近成功条目降级返回。

# 核心类型

  - Store：存储接口，Get/Set/Delete/Close。
  - RedisStore：基于 internal/cache.Manager 的远端存储，JSON 序列化。
  - MemoryStore：基于 golang-lru 的进程内存储，逐条过期。
  - SQLStore：基于 GORM 的持久化存储（sqlite、postgres、mysql）。
  - TieredStore：本地 L1 + 远端 L2，未命中时回填 L1。
  - ResultCache：结果缓存门面，负责指纹生成与按提供者统计。

同一结果可能写在多个提供者标签下，只有以生产者自身标签写入的
条目计入 entries 统计（Entry.Owned）。Redis、SQL 与分层存储支持
条目计数，内存存储不支持。

存储错误一律按未命中处理并记录日志，不影响分析流程。
*/
package cache
