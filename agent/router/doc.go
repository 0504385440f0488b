// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 router 用 LLM 意图分类把查询分派到一个或多个专业智能体。

模型被要求输出两行：

	AGENTS: portfolio_analyzer,market_analyst
	REASONING: Portfolio analysis that benefits from current market data.

[Parse] 把输出视为不可信文本，结果的 [Source] 说明来源：
parsed、first_line、default_unparseable、default_error。
后两种情况都回退到 finance_qa，[Router.RouteQuery] 不返回错误。
*/
package router
