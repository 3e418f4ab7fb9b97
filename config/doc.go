// Package config 提供 BiasLens 的配置管理功能。
//
// 包含配置加载、校验与文件变更监听。配置优先级为
// 默认值 → YAML 文件 → 环境变量，提供者配置变更可在
// 运行时通过 FileWatcher 与 ChangedProviders 热应用。
package config
