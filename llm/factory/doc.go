// Package factory 提供分析后端的集中式工厂与注册表。
// 通过 ProviderKind 到构造函数的静态映射创建 Provider 实例，
// 打破 llm 包与各 provider 子包之间的循环依赖。
package factory
