// 版权所有 2024 BiasLens Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库连接池管理，是 SQL 结果缓存的存储层。

# 核心类型

  - PoolManager：持有 GORM DB 实例与底层 sql.DB，提供 DB()、Ping()、
    Stats()、WithTransaction()、Close() 等生命周期方法，后台定时探活。
  - PoolConfig：最大空闲连接数、最大打开连接数、连接生命周期与健康检查间隔。

Open 根据驱动名（postgres、mysql、sqlite）选择方言并建立连接。
*/
package database
