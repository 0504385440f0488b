package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/BaSui01/finagent/llm"
	"github.com/BaSui01/finagent/llm/tools"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// indexProxies 以追踪主要指数的 ETF 近似指数行情
var indexProxies = []struct {
	Name   string
	Symbol string
}{
	{"S&P 500", "SPY"},
	{"Dow Jones", "DIA"},
	{"NASDAQ", "QQQ"},
	{"Russell 2000", "IWM"},
}

// Toolset 以文本形式暴露行情数据
type Toolset struct {
	source DataSource
}

// NewToolset 创建行情工具集
func NewToolset(source DataSource) *Toolset {
	return &Toolset{source: source}
}

func (t *Toolset) stockQuote(ctx context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Symbol string `json:"symbol"`
	}
	if err := json.Unmarshal(args, &in); err != nil || strings.TrimSpace(in.Symbol) == "" {
		return "Please provide a ticker symbol, e.g. AAPL.", nil
	}

	q, err := t.source.Quote(ctx, in.Symbol)
	if err != nil {
		return describeError("fetching stock quote", in.Symbol, err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n\n", q.Symbol)
	b.WriteString(printer.Sprintf("Price: $%.2f\n", q.Price))
	b.WriteString(printer.Sprintf("Change: $%.2f (%.2f%%)\n", q.Change, q.ChangePercent))
	b.WriteString(printer.Sprintf("Open: $%.2f | High: $%.2f | Low: $%.2f\n", q.Open, q.High, q.Low))
	b.WriteString(printer.Sprintf("Volume: %d\n", q.Volume))
	if q.LatestDay != "" {
		fmt.Fprintf(&b, "\nLatest trading day: %s", q.LatestDay)
	}
	return b.String(), nil
}

func (t *Toolset) companyInformation(ctx context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Symbol string `json:"symbol"`
	}
	if err := json.Unmarshal(args, &in); err != nil || strings.TrimSpace(in.Symbol) == "" {
		return "Please provide a ticker symbol, e.g. MSFT.", nil
	}

	c, err := t.source.Company(ctx, in.Symbol)
	if err != nil {
		return describeError("fetching company information", in.Symbol, err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**%s (%s)**\n\n", c.Name, c.Symbol)
	fmt.Fprintf(&b, "Sector: %s\n", c.Sector)
	fmt.Fprintf(&b, "Industry: %s\n\n", c.Industry)
	if c.Description != "" {
		desc := []rune(c.Description)
		if len(desc) > 300 {
			desc = append(desc[:300], []rune("...")...)
		}
		fmt.Fprintf(&b, "Description: %s\n\n", string(desc))
	}
	if c.MarketCap > 0 {
		b.WriteString(printer.Sprintf("Market Cap: $%d\n", c.MarketCap))
	}
	if c.PERatio != "" && c.PERatio != "None" {
		fmt.Fprintf(&b, "P/E Ratio: %s\n", c.PERatio)
	}
	if c.DividendYield != "" && c.DividendYield != "None" {
		fmt.Fprintf(&b, "Dividend Yield: %s\n", c.DividendYield)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (t *Toolset) marketIndices(ctx context.Context, _ json.RawMessage) (string, error) {
	var b strings.Builder
	b.WriteString("**Major Market Indices (ETF proxies):**\n\n")
	found := 0
	for _, idx := range indexProxies {
		q, err := t.source.Quote(ctx, idx.Symbol)
		if err != nil {
			continue
		}
		found++
		fmt.Fprintf(&b, "**%s** (%s)\n", idx.Name, idx.Symbol)
		b.WriteString(printer.Sprintf("  Price: %.2f\n", q.Price))
		b.WriteString(printer.Sprintf("  Change: %.2f (%.2f%%)\n\n", q.Change, q.ChangePercent))
	}
	if found == 0 {
		return "Could not fetch market indices data.", nil
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

type holding struct {
	Symbol string  `json:"symbol"`
	Shares float64 `json:"shares"`
}

func (t *Toolset) analyzePortfolioAllocation(ctx context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Holdings []holding `json:"holdings"`
	}
	if err := json.Unmarshal(args, &in); err != nil || len(in.Holdings) == 0 {
		return `Please provide holdings as [{"symbol": "AAPL", "shares": 10}, ...].`, nil
	}

	type valued struct {
		holding
		price float64
		value float64
	}
	var (
		rows  []valued
		total float64
	)
	for _, h := range in.Holdings {
		q, err := t.source.Quote(ctx, h.Symbol)
		if err != nil {
			continue
		}
		v := valued{holding: h, price: q.Price, value: q.Price * h.Shares}
		v.Symbol = q.Symbol
		rows = append(rows, v)
		total += v.value
	}
	if total == 0 {
		return "Could not calculate portfolio value.", nil
	}

	var b strings.Builder
	b.WriteString(printer.Sprintf("**Portfolio Analysis**\n\nTotal Value: $%.2f\n\n**Holdings:**\n", total))
	for _, r := range rows {
		b.WriteString(printer.Sprintf("- %s: %g shares @ $%.2f = $%.2f (%.1f%%)\n",
			r.Symbol, r.Shares, r.price, r.value, r.value/total*100))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (t *Toolset) checkPortfolioDiversification(ctx context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Symbols string `json:"symbols"`
	}
	if err := json.Unmarshal(args, &in); err != nil || strings.TrimSpace(in.Symbols) == "" {
		return "Please provide comma-separated symbols, e.g. 'AAPL,MSFT,JPM'.", nil
	}

	var symbols []string
	for _, s := range strings.Split(in.Symbols, ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			symbols = append(symbols, s)
		}
	}

	sectors := make(map[string]int)
	for _, s := range symbols {
		c, err := t.source.Company(ctx, s)
		if err != nil || c.Sector == "" {
			continue
		}
		sectors[c.Sector]++
	}
	if len(sectors) == 0 {
		return "Could not determine sector diversification.", nil
	}

	names := make([]string, 0, len(sectors))
	for name := range sectors {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if sectors[names[i]] != sectors[names[j]] {
			return sectors[names[i]] > sectors[names[j]]
		}
		return names[i] < names[j]
	})

	var b strings.Builder
	b.WriteString("**Sector Diversification:**\n\n")
	for _, name := range names {
		fmt.Fprintf(&b, "- %s: %d stocks (%.1f%%)\n", name, sectors[name], float64(sectors[name])/float64(len(symbols))*100)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func describeError(action, symbol string, err error) string {
	switch {
	case errors.Is(err, ErrNoAPIKey):
		return "Real-time market data is not configured. Please set ALPHA_VANTAGE_API_KEY to enable live quotes."
	case errors.Is(err, ErrThrottled):
		return "Real-time data temporarily unavailable. The data provider may be rate-limiting requests. Please try again in a moment."
	case errors.Is(err, ErrSymbolNotFound):
		return fmt.Sprintf("Could not find market data for %s.", strings.ToUpper(symbol))
	default:
		return fmt.Sprintf("Error %s: %v", action, err)
	}
}

const symbolSchema = `{"type":"object","properties":{"symbol":{"type":"string","description":"Ticker symbol, e.g. AAPL"}},"required":["symbol"]}`

// 上游免费额度约每分钟 5 次
var upstreamLimit = &tools.RateLimitConfig{MaxCalls: 5, Window: time.Minute}

// RegisterMarketTools 注册行情分析工具
func (t *Toolset) RegisterMarketTools(reg tools.ToolRegistry) error {
	return t.register(reg, []toolDef{
		{"get_stock_quote", "Get real-time stock quote for a ticker symbol.", symbolSchema, t.stockQuote},
		{"get_company_information", "Get detailed company information including sector, industry, and description.", symbolSchema, t.companyInformation},
		{"get_market_indices", "Get current values for major market indices (S&P 500, Dow Jones, NASDAQ, Russell 2000).", `{"type":"object","properties":{}}`, t.marketIndices},
	})
}

// RegisterPortfolioTools 注册组合分析工具
func (t *Toolset) RegisterPortfolioTools(reg tools.ToolRegistry) error {
	return t.register(reg, []toolDef{
		{
			"analyze_portfolio_allocation",
			"Analyze asset allocation of a portfolio given holdings with share counts.",
			`{"type":"object","properties":{"holdings":{"type":"array","items":{"type":"object","properties":{"symbol":{"type":"string"},"shares":{"type":"number"}},"required":["symbol","shares"]}}},"required":["holdings"]}`,
			t.analyzePortfolioAllocation,
		},
		{
			"check_portfolio_diversification",
			"Check diversification across sectors. Expects comma-separated symbols (e.g., 'AAPL,MSFT,JPM').",
			`{"type":"object","properties":{"symbols":{"type":"string"}},"required":["symbols"]}`,
			t.checkPortfolioDiversification,
		},
	})
}

type toolDef struct {
	name, description, parameters string
	fn                            tools.TextFunc
}

func (t *Toolset) register(reg tools.ToolRegistry, defs []toolDef) error {
	for _, d := range defs {
		meta := tools.ToolMetadata{
			Schema:    llm.ToolSchema{Name: d.name, Description: d.description, Parameters: json.RawMessage(d.parameters)},
			RateLimit: upstreamLimit,
			Timeout:   20 * time.Second,
		}
		if err := reg.Register(d.name, tools.FromText(d.fn), meta); err != nil {
			return fmt.Errorf("register %s: %w", d.name, err)
		}
	}
	return nil
}
