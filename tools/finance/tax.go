package finance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// RetirementAccount 描述一种税收优惠账户
type RetirementAccount struct {
	Name              string
	TaxTreatment      string
	ContributionLimit string
	RMD               string
	BestFor           string
}

// retirementAccounts 为 2024 税年的账户规则
var retirementAccounts = map[string]RetirementAccount{
	"traditional_ira": {
		Name:              "Traditional IRA",
		TaxTreatment:      "Tax-deductible contributions, taxed at withdrawal",
		ContributionLimit: "$7,000 ($8,000 if 50+)",
		RMD:               "Required at age 73",
		BestFor:           "Those expecting lower tax bracket in retirement",
	},
	"roth_ira": {
		Name:              "Roth IRA",
		TaxTreatment:      "After-tax contributions, tax-free withdrawals",
		ContributionLimit: "$7,000 ($8,000 if 50+)",
		RMD:               "No RMDs during owner's lifetime",
		BestFor:           "Those expecting higher tax bracket in retirement",
	},
	"401k": {
		Name:              "401(k)",
		TaxTreatment:      "Pre-tax contributions, taxed at withdrawal",
		ContributionLimit: "$23,000 ($30,500 if 50+)",
		RMD:               "Required at age 73",
		BestFor:           "Maximizing tax-deferred savings with employer match",
	},
	"403b": {
		Name:              "403(b)",
		TaxTreatment:      "Pre-tax contributions, taxed at withdrawal",
		ContributionLimit: "$23,000 ($30,500 if 50+)",
		RMD:               "Required at age 73",
		BestFor:           "Non-profit and public sector employees",
	},
	"hsa": {
		Name:              "Health Savings Account",
		TaxTreatment:      "Triple tax advantage: deductible, grows tax-free, tax-free for medical",
		ContributionLimit: "$4,150 individual, $8,300 family (+$1,000 if 55+)",
		RMD:               "None",
		BestFor:           "High-deductible health plan holders planning for medical expenses",
	},
}

func compareRetirementAccounts(_ context.Context, args json.RawMessage) (string, error) {
	in := struct {
		AccountTypes string `json:"account_types"`
	}{AccountTypes: "traditional_ira,roth_ira,401k"}
	if err := decodeArgs(args, &in); err != nil {
		return "", err
	}
	if strings.TrimSpace(in.AccountTypes) == "" {
		in.AccountTypes = "traditional_ira,roth_ira,401k"
	}

	var b strings.Builder
	b.WriteString("**Retirement Account Comparison:**\n\n")
	for _, key := range strings.Split(in.AccountTypes, ",") {
		acct, ok := retirementAccounts[strings.ToLower(strings.TrimSpace(key))]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "**%s**\n", acct.Name)
		fmt.Fprintf(&b, "  Tax Treatment: %s\n", acct.TaxTreatment)
		fmt.Fprintf(&b, "  2024 Contribution Limit: %s\n", acct.ContributionLimit)
		fmt.Fprintf(&b, "  RMDs: %s\n", acct.RMD)
		fmt.Fprintf(&b, "  Best For: %s\n\n", acct.BestFor)
	}
	b.WriteString("Note: Consult with a tax professional for your specific situation.")
	return b.String(), nil
}

func explainCapitalGainsTax(_ context.Context, args json.RawMessage) (string, error) {
	in := struct {
		HoldingPeriod string `json:"holding_period"`
	}{HoldingPeriod: "both"}
	if err := decodeArgs(args, &in); err != nil {
		return "", err
	}
	period := strings.ToLower(strings.TrimSpace(in.HoldingPeriod))
	if period == "" {
		period = "both"
	}

	var b strings.Builder
	b.WriteString("**Capital Gains Tax Education:**\n\n")
	if period == "short_term" || period == "both" {
		b.WriteString("**Short-Term Capital Gains (held ≤ 1 year)**\n")
		b.WriteString("- Taxed as ordinary income at your marginal tax rate\n")
		b.WriteString("- Rates range from 10% to 37% (2024)\n")
		b.WriteString("- No preferential treatment\n\n")
	}
	if period == "long_term" || period == "both" {
		b.WriteString("**Long-Term Capital Gains (held > 1 year)**\n")
		b.WriteString("- Preferential tax rates: 0%, 15%, or 20%\n")
		b.WriteString("- 0% rate: Income up to ~$44,625 (single) / ~$89,250 (married)\n")
		b.WriteString("- 15% rate: Income up to ~$492,300 (single) / ~$553,850 (married)\n")
		b.WriteString("- 20% rate: Income above those thresholds\n\n")
	}
	b.WriteString("**Key Takeaways:**\n")
	b.WriteString("- Holding investments longer than 1 year can significantly reduce taxes\n")
	b.WriteString("- Tax rates depend on total taxable income\n")
	b.WriteString("- These are federal rates; state taxes may also apply\n\n")
	b.WriteString("Always consult a tax professional for your specific situation.")
	return b.String(), nil
}

const taxLossHarvesting = `**Tax-Loss Harvesting Explained:**

**What is it?**
A strategy of selling investments at a loss to offset capital gains and reduce taxes.

**How it works:**
1. Sell investments that have decreased in value
2. Realize the loss for tax purposes
3. Use losses to offset capital gains
4. Up to $3,000 of excess losses can offset ordinary income
5. Remaining losses carry forward to future years

**Important Rules:**
- **Wash Sale Rule**: Can't buy the same/substantially identical security within 30 days before or after the sale
- Applies to losses, not gains
- Must be done in taxable accounts (not IRAs/401ks)

**Benefits:**
- Reduces current year tax liability
- Maintains market exposure (by buying similar securities)
- Can improve after-tax returns

**Example:**
You have $10,000 in capital gains and $4,000 in losses.
Net capital gain: $6,000 (taxed instead of $10,000)

Note: This is complex. Work with a tax professional to implement properly.`

func explainTaxLossHarvesting(context.Context, json.RawMessage) (string, error) {
	return taxLossHarvesting, nil
}
