// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 market 提供基于 Alpha Vantage REST API 的行情与组合分析工具。

Client 使用 resty 发起请求，带重试与按 TTL 的本地缓存；Toolset 将
DataSource 包装为 get_stock_quote、get_company_information、
get_market_indices、analyze_portfolio_allocation、
check_portfolio_diversification 等文本工具。上游错误一律格式化为文本返回。
*/
package market
