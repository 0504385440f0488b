// Package telemetry 封装 OpenTelemetry 追踪初始化。
// 启用时安装带 OTLP gRPC 导出器的 TracerProvider，关闭时保持全局 noop 实现，
// 不连接任何外部服务。
package telemetry
