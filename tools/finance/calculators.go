package finance

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// money 以 "$1,234.56" 格式输出金额
func money(v float64) string {
	if v < 0 {
		return printer.Sprintf("-$%.2f", -v)
	}
	return printer.Sprintf("$%.2f", v)
}

// RetirementInput 是 calculate_retirement_savings 的参数
type RetirementInput struct {
	CurrentAge          int     `json:"current_age"`
	RetirementAge       int     `json:"retirement_age"`
	MonthlyContribution float64 `json:"monthly_contribution"`
	ExpectedReturn      float64 `json:"expected_return"` // 年化百分比，如 7 表示 7%
	CurrentSavings      float64 `json:"current_savings"`
}

// RetirementProjection 是退休储蓄预测结果
type RetirementProjection struct {
	Years              int
	TotalContributions float64
	Growth             float64
	FutureValue        float64
}

// ProjectRetirement 按月复利计算退休时的预计余额
func ProjectRetirement(in RetirementInput) (RetirementProjection, error) {
	years := in.RetirementAge - in.CurrentAge
	if years <= 0 {
		return RetirementProjection{}, fmt.Errorf("retirement age must be greater than current age")
	}

	months := float64(years * 12)
	rate := in.ExpectedReturn / 12 / 100

	growth := math.Pow(1+rate, months)
	fvCurrent := in.CurrentSavings * growth
	fvContrib := in.MonthlyContribution * months
	if rate > 0 && growth > 1 {
		fvContrib = in.MonthlyContribution * ((growth - 1) / rate)
	}

	total := fvCurrent + fvContrib
	contributions := in.MonthlyContribution*months + in.CurrentSavings
	return RetirementProjection{
		Years:              years,
		TotalContributions: contributions,
		Growth:             total - contributions,
		FutureValue:        total,
	}, nil
}

func calculateRetirementSavings(_ context.Context, args json.RawMessage) (string, error) {
	var in RetirementInput
	if err := decodeArgs(args, &in); err != nil {
		return "", err
	}
	p, err := ProjectRetirement(in)
	if err != nil {
		return "Retirement age must be greater than current age.", nil
	}

	var b strings.Builder
	b.WriteString("**Retirement Savings Projection**\n\n")
	fmt.Fprintf(&b, "Current Age: %d | Retirement Age: %d | Years: %d\n", in.CurrentAge, in.RetirementAge, p.Years)
	fmt.Fprintf(&b, "Monthly Contribution: %s\n", money(in.MonthlyContribution))
	fmt.Fprintf(&b, "Expected Annual Return: %g%%\n", in.ExpectedReturn)
	fmt.Fprintf(&b, "Current Savings: %s\n\n", money(in.CurrentSavings))
	b.WriteString("**Projected Results:**\n")
	fmt.Fprintf(&b, "Total Contributions: %s\n", money(p.TotalContributions))
	fmt.Fprintf(&b, "Investment Growth: %s\n", money(p.Growth))
	fmt.Fprintf(&b, "**Projected Balance at %d: %s**\n\n", in.RetirementAge, money(p.FutureValue))
	b.WriteString("Note: This is an educational calculation. Actual results will vary based on market performance.")
	return b.String(), nil
}

// SavingsGoalInput 是 calculate_savings_goal 的参数
type SavingsGoalInput struct {
	GoalAmount     float64  `json:"goal_amount"`
	TimeframeYears int      `json:"timeframe_years"`
	CurrentSavings float64  `json:"current_savings"`
	ExpectedReturn *float64 `json:"expected_return,omitempty"` // 默认 7%
}

// SavingsPlan 是储蓄目标的计算结果
type SavingsPlan struct {
	Months             int
	FutureCurrent      float64
	RequiredMonthly    float64
	TotalContributions float64
	Reached            bool // 现有储蓄已足够
}

// PlanSavingsGoal 计算达到目标所需的每月储蓄额
func PlanSavingsGoal(goal float64, years int, current, annualReturn float64) (SavingsPlan, error) {
	if years <= 0 {
		return SavingsPlan{}, fmt.Errorf("timeframe must be greater than 0 years")
	}

	months := years * 12
	rate := annualReturn / 12 / 100
	growth := math.Pow(1+rate, float64(months))

	plan := SavingsPlan{Months: months, FutureCurrent: current * growth}
	needed := goal - plan.FutureCurrent
	if needed <= 0 {
		plan.Reached = true
		return plan, nil
	}

	if rate > 0 && growth > 1 {
		plan.RequiredMonthly = needed / ((growth - 1) / rate)
	} else {
		plan.RequiredMonthly = needed / float64(months)
	}
	plan.TotalContributions = plan.RequiredMonthly * float64(months)
	return plan, nil
}

func calculateSavingsGoal(_ context.Context, args json.RawMessage) (string, error) {
	var in SavingsGoalInput
	if err := decodeArgs(args, &in); err != nil {
		return "", err
	}
	annual := 7.0
	if in.ExpectedReturn != nil {
		annual = *in.ExpectedReturn
	}

	plan, err := PlanSavingsGoal(in.GoalAmount, in.TimeframeYears, in.CurrentSavings, annual)
	if err != nil {
		return "Timeframe must be greater than 0 years.", nil
	}
	if plan.Reached {
		return fmt.Sprintf("Your current savings of %s will grow to %s in %d years, which exceeds your goal of %s!",
			money(in.CurrentSavings), money(plan.FutureCurrent), in.TimeframeYears, money(in.GoalAmount)), nil
	}

	var b strings.Builder
	b.WriteString("**Savings Goal Calculation**\n\n")
	fmt.Fprintf(&b, "Goal Amount: %s\n", money(in.GoalAmount))
	fmt.Fprintf(&b, "Timeframe: %d years (%d months)\n", in.TimeframeYears, plan.Months)
	fmt.Fprintf(&b, "Current Savings: %s\n", money(in.CurrentSavings))
	fmt.Fprintf(&b, "Expected Annual Return: %g%%\n\n", annual)
	fmt.Fprintf(&b, "**Required Monthly Savings: %s**\n\n", money(plan.RequiredMonthly))
	fmt.Fprintf(&b, "Total Contributions: %s\n", money(plan.TotalContributions))
	fmt.Fprintf(&b, "Investment Growth: %s\n\n", money(in.GoalAmount-plan.TotalContributions-in.CurrentSavings))
	b.WriteString("Tip: Even small increases in your monthly savings can significantly impact your goal!")
	return b.String(), nil
}

func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
