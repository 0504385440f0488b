// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 orchestrator 执行路由选中的智能体并综合多份回答。

# 执行

[Orchestrator.ExecuteSingle] 直接调用一个智能体。
[Orchestrator.ExecuteMultiple] 在并行模式下为每个智能体启动一个 errgroup 任务，
任务通过有界协程池（默认 5）执行；顺序模式按给定顺序逐个调用。
每次调用有独立超时（默认 45s），失败记录在各自的 [Result] 中，不取消其他智能体。
结果始终按请求顺序排列。

# 综合

多于一个结果时，[Orchestrator.Synthesize] 把原始问题和各智能体输出交给 LLM 合并。
模型失败或返回空文本时回退为 [Concatenate] 的拼接结果，整个调用不会失败。
*/
package orchestrator
