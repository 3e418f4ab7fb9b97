// 版权所有 2024 BiasLens Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的连接管理，是分析结果缓存的远端存储层。

# 核心类型

  - Manager：持有 go-redis 客户端与连接池配置，提供 Get/Set/Delete/TTL
    等基础操作、GetJSON/SetJSON 便捷序列化方法，以及基于 SCAN 的
    ScanValues 批量遍历。
  - Config：地址、密码、连接池大小、默认 TTL 与健康检查间隔。

# 错误语义

ErrCacheMiss 表示键不存在，ErrClosed 表示管理器已关闭。
*/
package cache
