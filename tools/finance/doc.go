// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 finance 提供无需外部数据源的金融教育工具。

# 工具分组

  - 教育：search_financial_term、explain_financial_calculator
  - 规划：calculate_retirement_savings、calculate_savings_goal
  - 税务：compare_retirement_accounts、explain_capital_gains_tax、
    explain_tax_loss_harvesting

所有工具都以文本作答，参数错误之外的失败也以文本形式返回。
*/
package finance
