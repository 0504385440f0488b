// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集，覆盖查询、护栏、路由、
智能体执行、综合、HTTP、LLM、缓存与数据库。

# 概述

Collector 通过 promauto.With 注册到给定的 Registerer（nil 时使用默认
Registry），所有指标按 namespace 隔离。

Collector 同时满足以下接口，可直接注入对应组件：

  - guardrails.Recorder：护栏拒绝与输出软化计数
  - router.Recorder：按智能体与决策来源统计路由结果
  - orchestrator.Recorder：智能体执行次数、耗时与综合结果
  - llm.MetricsCollector：LLM 请求次数、耗时与 token 用量

# 主要指标

  - queries_total / query_duration_seconds：按 answered/rejected 分组
  - guardrail_rejections_total：按 direction/reason 分组
  - routing_decisions_total：按 agent/source 分组
  - agent_executions_total：按 agent_id/status 分组
  - synthesis_total：按 synthesized/fallback 分组
  - http_requests_total：状态码归类为 2xx/3xx/4xx/5xx
*/
package metrics
