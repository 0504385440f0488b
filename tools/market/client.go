package market

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/finagent/internal/tlsutil"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	// ErrNoAPIKey 表示未配置 Alpha Vantage 密钥
	ErrNoAPIKey = errors.New("market data api key not configured")
	// ErrSymbolNotFound 表示上游未返回该代码的数据
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrThrottled 表示上游返回了频率限制提示
	ErrThrottled = errors.New("market data provider is rate limiting requests")
)

// Config 配置行情客户端
type Config struct {
	APIKey   string        `yaml:"api_key" json:"-"`
	BaseURL  string        `yaml:"base_url" json:"base_url"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
	Retries  int           `yaml:"retries" json:"retries"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		BaseURL:  "https://www.alphavantage.co",
		Timeout:  10 * time.Second,
		CacheTTL: 5 * time.Minute,
		Retries:  2,
	}
}

// Quote 是单个证券的实时报价
type Quote struct {
	Symbol        string
	Price         float64
	Open          float64
	High          float64
	Low           float64
	Volume        int64
	PreviousClose float64
	Change        float64
	ChangePercent float64
	LatestDay     string
}

// Company 是公司概况
type Company struct {
	Symbol        string
	Name          string
	Sector        string
	Industry      string
	Description   string
	MarketCap     int64
	PERatio       string
	DividendYield string
}

// DataSource 是行情工具依赖的数据源
type DataSource interface {
	Quote(ctx context.Context, symbol string) (*Quote, error)
	Company(ctx context.Context, symbol string) (*Company, error)
}

// Client 通过 Alpha Vantage REST API 获取行情
type Client struct {
	cfg    Config
	http   *resty.Client
	logger *zap.Logger

	mu       sync.Mutex
	cache    map[string]cacheEntry
	now      func() time.Time
	observer CacheObserver
	shared   SharedCache
}

// SharedCache 是跨实例共享的二级缓存，例如 Redis
type SharedCache interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// CacheObserver 接收报价缓存的命中情况
type CacheObserver interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

// Option 配置 Client
type Option func(*Client)

// WithCacheObserver 设置缓存观察者
func WithCacheObserver(o CacheObserver) Option {
	return func(c *Client) { c.observer = o }
}

// WithSharedCache 设置二级缓存
func WithSharedCache(sc SharedCache) Option {
	return func(c *Client) { c.shared = sc }
}

const cacheType = "market_data"

type cacheEntry struct {
	value     any
	expiresAt time.Time
}

// NewClient 创建行情客户端
func NewClient(cfg Config, logger *zap.Logger, opts ...Option) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "market_data"))

	httpClient := resty.New().
		SetTransport(tlsutil.SecureTransport()).
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if r == nil {
				return err != nil
			}
			return r.StatusCode() >= 500 || r.StatusCode() == 429
		}).
		SetHeader("Accept", "application/json")

	httpClient.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		logger.Debug("market data response",
			zap.Int("status", resp.StatusCode()),
			zap.Duration("duration", resp.Time()))
		return nil
	})

	c := &Client{
		cfg:    cfg,
		http:   httpClient,
		logger: logger,
		cache:  make(map[string]cacheEntry),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type globalQuoteResponse struct {
	GlobalQuote map[string]string `json:"Global Quote"`
	Note        string            `json:"Note"`
	Information string            `json:"Information"`
	Error       string            `json:"Error Message"`
}

// Quote 获取 GLOBAL_QUOTE，结果按 CacheTTL 缓存
func (c *Client) Quote(ctx context.Context, symbol string) (*Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	key := "quote:" + symbol
	if v, ok := c.cached(key); ok {
		return v.(*Quote), nil
	}
	var shared Quote
	if c.loadShared(ctx, key, &shared) {
		c.store(key, &shared)
		return &shared, nil
	}

	var body globalQuoteResponse
	if err := c.get(ctx, "GLOBAL_QUOTE", symbol, &body); err != nil {
		return nil, err
	}
	if err := upstreamError(body.Note, body.Information, body.Error); err != nil {
		return nil, err
	}
	if len(body.GlobalQuote) == 0 || body.GlobalQuote["05. price"] == "" {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}

	q := body.GlobalQuote
	quote := &Quote{
		Symbol:        symbol,
		Price:         parseFloat(q["05. price"]),
		Open:          parseFloat(q["02. open"]),
		High:          parseFloat(q["03. high"]),
		Low:           parseFloat(q["04. low"]),
		Volume:        parseInt(q["06. volume"]),
		LatestDay:     q["07. latest trading day"],
		PreviousClose: parseFloat(q["08. previous close"]),
		Change:        parseFloat(q["09. change"]),
		ChangePercent: parseFloat(strings.TrimSuffix(q["10. change percent"], "%")),
	}
	c.store(key, quote)
	c.saveShared(ctx, key, quote)
	return quote, nil
}

type overviewResponse struct {
	Symbol        string `json:"Symbol"`
	Name          string `json:"Name"`
	Sector        string `json:"Sector"`
	Industry      string `json:"Industry"`
	Description   string `json:"Description"`
	MarketCap     string `json:"MarketCapitalization"`
	PERatio       string `json:"PERatio"`
	DividendYield string `json:"DividendYield"`
	Note          string `json:"Note"`
	Information   string `json:"Information"`
	Error         string `json:"Error Message"`
}

// Company 获取 OVERVIEW 公司概况
func (c *Client) Company(ctx context.Context, symbol string) (*Company, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	key := "company:" + symbol
	if v, ok := c.cached(key); ok {
		return v.(*Company), nil
	}
	var shared Company
	if c.loadShared(ctx, key, &shared) {
		c.store(key, &shared)
		return &shared, nil
	}

	var body overviewResponse
	if err := c.get(ctx, "OVERVIEW", symbol, &body); err != nil {
		return nil, err
	}
	if err := upstreamError(body.Note, body.Information, body.Error); err != nil {
		return nil, err
	}
	if body.Symbol == "" {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}

	company := &Company{
		Symbol:        body.Symbol,
		Name:          body.Name,
		Sector:        titleWords(body.Sector),
		Industry:      titleWords(body.Industry),
		Description:   body.Description,
		MarketCap:     parseInt(body.MarketCap),
		PERatio:       body.PERatio,
		DividendYield: body.DividendYield,
	}
	c.store(key, company)
	c.saveShared(ctx, key, company)
	return company, nil
}

func (c *Client) get(ctx context.Context, function, symbol string, out any) error {
	if c.cfg.APIKey == "" {
		return ErrNoAPIKey
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"function": function,
			"symbol":   symbol,
			"apikey":   c.cfg.APIKey,
		}).
		SetResult(out).
		Get("/query")
	if err != nil {
		c.logger.Warn("market data request failed", zap.String("function", function), zap.String("symbol", symbol), zap.Error(err))
		return fmt.Errorf("%s %s: %w", function, symbol, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%s %s: unexpected status %d", function, symbol, resp.StatusCode())
	}
	return nil
}

func (c *Client) cached(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.cache[key]
	if !ok || c.now().After(e.expiresAt) {
		delete(c.cache, key)
		if c.observer != nil {
			c.observer.RecordCacheMiss(cacheType)
		}
		return nil, false
	}
	if c.observer != nil {
		c.observer.RecordCacheHit(cacheType)
	}
	return e.value, true
}

func (c *Client) store(key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = cacheEntry{value: v, expiresAt: c.now().Add(c.cfg.CacheTTL)}
}

func (c *Client) loadShared(ctx context.Context, key string, dest any) bool {
	if c.shared == nil {
		return false
	}
	return c.shared.GetJSON(ctx, "market:"+key, dest) == nil
}

func (c *Client) saveShared(ctx context.Context, key string, v any) {
	if c.shared == nil {
		return
	}
	if err := c.shared.SetJSON(ctx, "market:"+key, v, c.cfg.CacheTTL); err != nil {
		c.logger.Debug("shared cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func upstreamError(note, info, msg string) error {
	switch {
	case msg != "":
		return fmt.Errorf("%w: %s", ErrSymbolNotFound, msg)
	case note != "" || info != "":
		return ErrThrottled
	}
	return nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}

func parseInt(s string) int64 {
	n, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n
}

// titleWords 把 "TECHNOLOGY" 规整为 "Technology"
func titleWords(s string) string {
	return cases.Title(language.English).String(strings.Join(strings.Fields(s), " "))
}
