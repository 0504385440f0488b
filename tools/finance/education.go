package finance

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Calculator 描述一个常用金融计算器的公式
type Calculator struct {
	Name        string
	Formula     string
	Parameters  []string
	Description string
}

var calculators = map[string]Calculator{
	"compound_interest": {
		Name:        "Compound Interest Calculator",
		Formula:     "A = P(1 + r/n)^(nt)",
		Parameters:  []string{"Principal (P)", "Rate (r)", "Time (t)", "Frequency (n)"},
		Description: "Calculate future value of investments with compound interest",
	},
	"retirement": {
		Name:        "Retirement Savings Calculator",
		Formula:     "FV = PMT × [(1 + r)^n - 1] / r",
		Parameters:  []string{"Monthly contribution", "Years to retirement", "Expected return", "Current savings"},
		Description: "Estimate retirement savings based on contributions and returns",
	},
	"mortgage": {
		Name:        "Mortgage Payment Calculator",
		Formula:     "M = P[r(1+r)^n]/[(1+r)^n-1]",
		Parameters:  []string{"Loan amount", "Interest rate", "Loan term", "Down payment"},
		Description: "Calculate monthly mortgage payments",
	},
}

func explainFinancialCalculator(_ context.Context, args json.RawMessage) (string, error) {
	var in struct {
		CalculatorType string `json:"calculator_type"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return "", err
	}
	key := strings.ToLower(strings.TrimSpace(in.CalculatorType))
	calc, ok := calculators[key]
	if !ok {
		return fmt.Sprintf("Calculator type '%s' not found.", in.CalculatorType), nil
	}
	return fmt.Sprintf("**%s**\n\nDescription: %s\n\nFormula: %s\n\nParameters: %s",
		calc.Name, calc.Description, calc.Formula, strings.Join(calc.Parameters, ", ")), nil
}

// glossary 是内置的基础金融术语表
var glossary = map[string]string{
	"stock":                 "A share of ownership in a company. Stockholders may benefit from price appreciation and dividends, and bear the risk of losses if the company performs poorly.",
	"bond":                  "A loan made by an investor to a borrower such as a government or corporation. The borrower pays interest (the coupon) and returns the principal at maturity.",
	"etf":                   "An exchange-traded fund: a basket of securities that trades on an exchange like a single stock, usually tracking an index at low cost.",
	"mutual fund":           "A pooled investment vehicle managed by professionals that buys a portfolio of securities. Shares are priced once per day at net asset value (NAV).",
	"index fund":            "A mutual fund or ETF designed to track the performance of a market index such as the S&P 500, typically with low fees.",
	"dividend":              "A distribution of part of a company's earnings to its shareholders, usually paid in cash on a regular schedule.",
	"diversification":       "Spreading investments across asset classes, sectors, and regions to reduce the impact of any single holding on overall portfolio risk.",
	"asset allocation":      "The mix of asset classes (stocks, bonds, cash) in a portfolio, chosen according to goals, time horizon, and risk tolerance.",
	"compound interest":     "Interest earned on both the original principal and on previously accumulated interest, causing growth to accelerate over time.",
	"expense ratio":         "The annual fee a fund charges, expressed as a percentage of assets. A 0.10% expense ratio costs $10 per year on a $10,000 investment.",
	"p/e ratio":             "Price-to-earnings ratio: a company's share price divided by its earnings per share, a common gauge of how the market values its profits.",
	"market cap":            "Market capitalization: the total market value of a company's outstanding shares, calculated as share price times shares outstanding.",
	"roth ira":              "An individual retirement account funded with after-tax dollars. Qualified withdrawals in retirement, including growth, are tax-free.",
	"401k":                  "An employer-sponsored retirement plan that lets employees contribute pre-tax (or Roth) salary, often with an employer match.",
	"capital gain":          "The profit from selling an asset for more than its purchase price. Gains on assets held over one year are taxed at lower long-term rates.",
	"inflation":             "The rate at which the general level of prices rises, reducing the purchasing power of money over time.",
	"emergency fund":        "Cash savings set aside for unexpected expenses, commonly three to six months of essential living costs.",
	"dollar-cost averaging": "Investing a fixed amount at regular intervals regardless of price, which buys more shares when prices are low and fewer when they are high.",
	"bear market":           "A market decline of 20% or more from recent highs, typically accompanied by widespread pessimism.",
	"bull market":           "A sustained period of rising prices, commonly defined as a 20% rise from recent lows.",
}

func searchFinancialTerm(_ context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Term string `json:"term"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return "", err
	}
	term := strings.ToLower(strings.TrimSpace(in.Term))
	if term == "" {
		return "Please provide a financial term to look up.", nil
	}

	if def, ok := glossary[term]; ok {
		return fmt.Sprintf("**%s**\n\n%s", titleCase(term), def), nil
	}
	if def, ok := glossary[strings.TrimSuffix(term, "s")]; ok {
		return fmt.Sprintf("**%s**\n\n%s", titleCase(strings.TrimSuffix(term, "s")), def), nil
	}

	var related []string
	for k := range glossary {
		if strings.Contains(k, term) || strings.Contains(term, k) {
			related = append(related, k)
		}
	}
	if len(related) == 0 {
		return fmt.Sprintf("Could not find definition for '%s'. Try a different term or rephrasing.", in.Term), nil
	}
	sort.Strings(related)
	var b strings.Builder
	fmt.Fprintf(&b, "No exact entry for '%s'. Related terms:\n\n", in.Term)
	for _, k := range related {
		fmt.Fprintf(&b, "**%s**: %s\n\n", titleCase(k), glossary[k])
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		switch w {
		case "etf", "ira", "p/e":
			words[i] = strings.ToUpper(w)
		default:
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
