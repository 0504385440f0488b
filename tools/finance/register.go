package finance

import (
	"encoding/json"
	"fmt"

	"github.com/BaSui01/finagent/llm"
	"github.com/BaSui01/finagent/llm/tools"
)

type definition struct {
	name        string
	description string
	parameters  string
	fn          tools.TextFunc
}

var educationTools = []definition{
	{
		name:        "search_financial_term",
		description: "Search for the definition and explanation of a financial term.",
		parameters:  `{"type":"object","properties":{"term":{"type":"string","description":"Financial term, e.g. 'etf'"}},"required":["term"]}`,
		fn:          searchFinancialTerm,
	},
	{
		name:        "explain_financial_calculator",
		description: "Get information about financial calculators (compound_interest, retirement, mortgage).",
		parameters:  `{"type":"object","properties":{"calculator_type":{"type":"string","enum":["compound_interest","retirement","mortgage"]}},"required":["calculator_type"]}`,
		fn:          explainFinancialCalculator,
	},
}

var planningTools = []definition{
	{
		name:        "calculate_retirement_savings",
		description: "Calculate projected retirement savings based on contributions and returns.",
		parameters: `{"type":"object","properties":{
			"current_age":{"type":"integer"},
			"retirement_age":{"type":"integer"},
			"monthly_contribution":{"type":"number"},
			"expected_return":{"type":"number","description":"Expected annual return in percent"},
			"current_savings":{"type":"number","default":0}
		},"required":["current_age","retirement_age","monthly_contribution","expected_return"]}`,
		fn: calculateRetirementSavings,
	},
	{
		name:        "calculate_savings_goal",
		description: "Calculate required monthly savings to reach a financial goal.",
		parameters: `{"type":"object","properties":{
			"goal_amount":{"type":"number"},
			"timeframe_years":{"type":"integer"},
			"current_savings":{"type":"number","default":0},
			"expected_return":{"type":"number","default":7.0}
		},"required":["goal_amount","timeframe_years"]}`,
		fn: calculateSavingsGoal,
	},
}

var taxTools = []definition{
	{
		name:        "compare_retirement_accounts",
		description: "Compare different retirement account types. Options: traditional_ira, roth_ira, 401k, 403b, hsa",
		parameters:  `{"type":"object","properties":{"account_types":{"type":"string","default":"traditional_ira,roth_ira,401k"}}}`,
		fn:          compareRetirementAccounts,
	},
	{
		name:        "explain_capital_gains_tax",
		description: "Explain capital gains tax. Options: short_term, long_term, both",
		parameters:  `{"type":"object","properties":{"holding_period":{"type":"string","enum":["short_term","long_term","both"]}}}`,
		fn:          explainCapitalGainsTax,
	},
	{
		name:        "explain_tax_loss_harvesting",
		description: "Explain the concept and benefits of tax-loss harvesting.",
		parameters:  `{"type":"object","properties":{}}`,
		fn:          explainTaxLossHarvesting,
	},
}

// RegisterEducationTools 注册术语与计算器说明工具
func RegisterEducationTools(reg tools.ToolRegistry) error { return register(reg, educationTools) }

// RegisterPlanningTools 注册退休与储蓄目标计算工具
func RegisterPlanningTools(reg tools.ToolRegistry) error { return register(reg, planningTools) }

// RegisterTaxTools 注册税务教育工具
func RegisterTaxTools(reg tools.ToolRegistry) error { return register(reg, taxTools) }

func register(reg tools.ToolRegistry, defs []definition) error {
	for _, d := range defs {
		meta := tools.ToolMetadata{Schema: llm.ToolSchema{
			Name:        d.name,
			Description: d.description,
			Parameters:  json.RawMessage(d.parameters),
		}}
		if err := reg.Register(d.name, tools.FromText(d.fn), meta); err != nil {
			return fmt.Errorf("register %s: %w", d.name, err)
		}
	}
	return nil
}
