// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 agent 定义五类金融专业智能体及其调度表。

# 概述

[ID] 是封闭枚举：FinanceQA、PortfolioAnalyzer、MarketAnalyst、GoalPlanner、
TaxEducator。每个取值对应一套系统提示词、工具集和展示名称。
[Registry] 在构造时校验五类智能体齐全，调度时不存在"找不到智能体"的分支。

# 调用

[FinanceAgent.Invoke] 依次拼接系统提示词、该 (agent, thread) 的历史轮次和用户问题，
通过 llm/tools 的 ReAct 循环执行工具调用，成功后写回记忆。失败以 error 返回，
由 orchestrator 转换为文本。

# 构建

	reg, err := agent.NewBuilder(provider).
		WithMarketData(client).
		WithMemory(store).
		WithLogger(logger).
		Build()

子包 memory 提供对话记忆，子包 guardrails 提供输入输出校验，
子包 router 与 orchestrator 负责路由和多智能体执行。
*/
package agent
