// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 BiasLens 的故障转移与提供者调用 span 配置 OTLP 导出。
// 遥测禁用时保留 noop 全局实现，不连接任何外部服务。
package telemetry
