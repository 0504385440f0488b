// Package api 包含 finagent HTTP API 的处理器（见子包 handlers）。
//
// 端点：
//
//	POST /api/v1/query          {"query","thread_id","session_id"}
//	GET  /api/v1/agents
//	GET  /api/v1/usage?session_id=
//	GET  /api/v1/usage/global
//	GET  /health /healthz /ready /version /metrics
//
// 配置了 server.api_keys 时，/api/ 下的端点需要 X-API-Key 请求头。
package api
