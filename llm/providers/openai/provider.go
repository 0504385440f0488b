package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/finagent/internal/tlsutil"
	"github.com/BaSui01/finagent/llm"
	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://api.openai.com"
	defaultModel   = "gpt-4o-mini"
)

// Config 配置 OpenAI 兼容的 Chat Completions Provider。
type Config struct {
	// ProviderName 是 Provider 的唯一标识，默认 "openai"。
	ProviderName string `yaml:"provider_name" json:"provider_name"`

	// APIKey 认证密钥
	APIKey string `yaml:"api_key" json:"-"`

	// BaseURL API 基础地址
	BaseURL string `yaml:"base_url" json:"base_url"`

	// Model 请求未指定模型时使用
	Model string `yaml:"model" json:"model"`

	// Temperature 请求未指定温度时使用
	Temperature float32 `yaml:"temperature" json:"temperature"`

	// Timeout HTTP 客户端超时，默认 60s
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// EndpointPath 默认 "/v1/chat/completions"
	EndpointPath string `yaml:"endpoint_path" json:"endpoint_path"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		ProviderName: "openai",
		BaseURL:      defaultBaseURL,
		Model:        defaultModel,
		Temperature:  0.3,
		Timeout:      60 * time.Second,
		EndpointPath: "/v1/chat/completions",
	}
}

// Provider 通过 HTTP 调用 OpenAI 兼容的 /v1/chat/completions。
type Provider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New 创建 Provider，未设置的字段回落到 DefaultConfig。
func New(cfg Config, logger *zap.Logger) *Provider {
	def := DefaultConfig()
	if cfg.ProviderName == "" {
		cfg.ProviderName = def.ProviderName
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = def.EndpointPath
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
		logger: logger.With(zap.String("component", "llm_provider"), zap.String("provider", cfg.ProviderName)),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.cfg.ProviderName }

// Model 返回默认模型名
func (p *Provider) Model() string { return p.cfg.Model }

func (p *Provider) endpoint() string {
	return strings.TrimRight(p.cfg.BaseURL, "/") + p.cfg.EndpointPath
}

// Completion performs a non-streaming chat completion.
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if req == nil {
		return nil, &llm.Error{Code: llm.ErrInvalidRequest, Message: "nil chat request", HTTPStatus: http.StatusBadRequest, Provider: p.Name()}
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	body := p.buildRequest(req)
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &llm.Error{Code: llm.ErrUpstreamTimeout, Message: err.Error(), HTTPStatus: http.StatusGatewayTimeout, Retryable: true, Provider: p.Name()}
		}
		return nil, &llm.Error{Code: llm.ErrUpstreamError, Message: err.Error(), HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.Name()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := readErrorMessage(resp.Body)
		p.logger.Warn("completion failed", zap.Int("status", resp.StatusCode), zap.String("error", msg))
		return nil, mapHTTPError(resp.StatusCode, msg, p.Name())
	}

	var oaResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaResp); err != nil {
		return nil, &llm.Error{Code: llm.ErrUpstreamError, Message: err.Error(), HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.Name()}
	}

	result := toChatResponse(oaResp, p.Name())
	p.logger.Debug("completion done",
		zap.String("model", result.Model),
		zap.Int("total_tokens", result.Usage.TotalTokens),
		zap.Duration("latency", time.Since(start)))
	return result, nil
}

func (p *Provider) buildRequest(req *llm.ChatRequest) chatRequest {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}
	temperature := p.cfg.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	body := chatRequest{
		Model:       model,
		Messages:    toWireMessages(req.Messages),
		Tools:       toWireTools(req.Tools),
		MaxTokens:   req.MaxTokens,
		Temperature: &temperature,
	}
	if req.ToolChoice != "" && len(body.Tools) > 0 {
		body.ToolChoice = req.ToolChoice
	}
	return body
}
