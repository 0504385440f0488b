// =============================================================================
// 📦 finagent 配置加载器
// =============================================================================
// 统一配置加载，支持 .env + YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("FINAGENT").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 finagent 的完整配置结构
type Config struct {
	Server       ServerConfig       `yaml:"server" env:"SERVER"`
	LLM          LLMConfig          `yaml:"llm" env:"LLM"`
	Agent        AgentConfig        `yaml:"agent" env:"AGENT"`
	Router       RouterConfig       `yaml:"router" env:"ROUTER"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator" env:"ORCHESTRATOR"`
	Guardrails   GuardrailsConfig   `yaml:"guardrails" env:"GUARDRAILS"`
	Memory       MemoryConfig       `yaml:"memory" env:"MEMORY"`
	MarketData   MarketDataConfig   `yaml:"market_data" env:"MARKET_DATA"`
	Redis        RedisConfig        `yaml:"redis" env:"REDIS"`
	Database     DatabaseConfig     `yaml:"database" env:"DATABASE"`
	Log          LogConfig          `yaml:"log" env:"LOG"`
	Telemetry    TelemetryConfig    `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每个客户端 IP 的请求速率
	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// 为空时不校验 X-API-Key
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// CORS 允许的来源
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
}

// LLMConfig 语言模型配置
type LLMConfig struct {
	// Provider 目前只支持 openai（含兼容接口）
	Provider    string        `yaml:"provider" env:"PROVIDER"`
	APIKey      string        `yaml:"api_key" env:"API_KEY"`
	BaseURL     string        `yaml:"base_url" env:"BASE_URL"`
	Model       string        `yaml:"model" env:"MODEL"`
	Temperature float64       `yaml:"temperature" env:"TEMPERATURE"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxRetries  int           `yaml:"max_retries" env:"MAX_RETRIES"`
	// 连续失败多少次后熔断，0 表示不启用熔断
	BreakerThreshold    int           `yaml:"breaker_threshold" env:"BREAKER_THRESHOLD"`
	BreakerResetTimeout time.Duration `yaml:"breaker_reset_timeout" env:"BREAKER_RESET_TIMEOUT"`
}

// AgentConfig 专业智能体配置
type AgentConfig struct {
	MaxIterations int           `yaml:"max_iterations" env:"MAX_ITERATIONS"`
	MaxTokens     int           `yaml:"max_tokens" env:"MAX_TOKENS"`
	Timeout       time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// RouterConfig 路由配置
type RouterConfig struct {
	// 为空时使用 llm.model
	Model     string        `yaml:"model" env:"MODEL"`
	MaxTokens int           `yaml:"max_tokens" env:"MAX_TOKENS"`
	Timeout   time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// OrchestratorConfig 编排配置
type OrchestratorConfig struct {
	MaxWorkers         int           `yaml:"max_workers" env:"MAX_WORKERS"`
	AgentTimeout       time.Duration `yaml:"agent_timeout" env:"AGENT_TIMEOUT"`
	Parallel           bool          `yaml:"parallel" env:"PARALLEL"`
	SynthesisMaxTokens int           `yaml:"synthesis_max_tokens" env:"SYNTHESIS_MAX_TOKENS"`
	SynthesisTimeout   time.Duration `yaml:"synthesis_timeout" env:"SYNTHESIS_TIMEOUT"`
}

// GuardrailsConfig 护栏配置
type GuardrailsConfig struct {
	MaxInputLength       int           `yaml:"max_input_length" env:"MAX_INPUT_LENGTH"`
	MaxQueriesPerMinute  int           `yaml:"max_queries_per_minute" env:"MAX_QUERIES_PER_MINUTE"`
	MaxQueriesPerHour    int           `yaml:"max_queries_per_hour" env:"MAX_QUERIES_PER_HOUR"`
	SpecialCharThreshold float64       `yaml:"special_char_threshold" env:"SPECIAL_CHAR_THRESHOLD"`
	ActiveWindow         time.Duration `yaml:"active_window" env:"ACTIVE_WINDOW"`
	// 是否在路由前调用模型做意图分析
	IntentCheck bool `yaml:"intent_check" env:"INTENT_CHECK"`
	// 会话存储: memory, redis
	Store       string        `yaml:"store" env:"STORE"`
	Retention   time.Duration `yaml:"retention" env:"RETENTION"`
	MaxSessions int           `yaml:"max_sessions" env:"MAX_SESSIONS"`
	// 审计日志: none, memory, database
	Audit string `yaml:"audit" env:"AUDIT"`
	// 为空时使用内置列表
	ProhibitedTopics []string `yaml:"prohibited_topics" env:"PROHIBITED_TOPICS"`
	SensitiveTopics  []string `yaml:"sensitive_topics" env:"SENSITIVE_TOPICS"`
}

// MemoryConfig 对话记忆配置
type MemoryConfig struct {
	// 存储类型: memory, redis
	Backend    string        `yaml:"backend" env:"BACKEND"`
	MaxTurns   int           `yaml:"max_turns" env:"MAX_TURNS"`
	MaxThreads int           `yaml:"max_threads" env:"MAX_THREADS"`
	ThreadTTL  time.Duration `yaml:"thread_ttl" env:"THREAD_TTL"`
}

// MarketDataConfig Alpha Vantage 行情配置
type MarketDataConfig struct {
	APIKey   string        `yaml:"api_key" env:"API_KEY"`
	BaseURL  string        `yaml:"base_url" env:"BASE_URL"`
	Timeout  time.Duration `yaml:"timeout" env:"TIMEOUT"`
	CacheTTL time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
	Retries  int           `yaml:"retries" env:"RETRIES"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// DatabaseConfig 审计数据库配置
type DatabaseConfig struct {
	// 驱动类型: sqlite, postgres
	Driver string `yaml:"driver" env:"DRIVER"`
	// 以下连接参数只对 postgres 生效
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	SSLMode  string `yaml:"ssl_mode" env:"SSL_MODE"`
	// sqlite 为文件路径，postgres 为库名
	Name            string        `yaml:"name" env:"NAME"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	dotenv     []string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "FINAGENT",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithDotenv 在读取环境变量前加载 .env 文件，已存在的环境变量不会被覆盖
func (l *Loader) WithDotenv(paths ...string) *Loader {
	l.dotenv = append(l.dotenv, paths...)
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := l.loadDotenv(); err != nil {
		return nil, fmt.Errorf("failed to load dotenv: %w", err)
	}

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	applyLegacyEnv(cfg)

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadDotenv 加载 .env，文件不存在时忽略
func (l *Loader) loadDotenv() error {
	for _, p := range l.dotenv {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// applyLegacyEnv 兼容不带前缀的常用变量，带前缀的变量仍然优先
func applyLegacyEnv(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("LLM_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.LLM.Temperature = f
		}
	}
	if v := os.Getenv("ALPHA_VANTAGE_API_KEY"); v != "" {
		cfg.MarketData.APIKey = v
	}
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// time.Duration 特殊处理
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			out := parts[:0]
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			field.Set(reflect.ValueOf(out))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.RateLimitRPS < 0 || c.Server.RateLimitBurst < 0 {
		errs = append(errs, "rate limit must not be negative")
	}
	if c.LLM.Provider != "openai" {
		errs = append(errs, fmt.Sprintf("unsupported llm provider %q", c.LLM.Provider))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, "temperature must be between 0 and 2")
	}
	if c.Agent.MaxIterations <= 0 {
		errs = append(errs, "max_iterations must be positive")
	}
	if c.Orchestrator.MaxWorkers <= 0 {
		errs = append(errs, "max_workers must be positive")
	}
	if c.Guardrails.MaxInputLength <= 0 {
		errs = append(errs, "max_input_length must be positive")
	}
	if c.Guardrails.MaxQueriesPerMinute <= 0 || c.Guardrails.MaxQueriesPerHour <= 0 {
		errs = append(errs, "guardrail rate limits must be positive")
	}
	if !oneOf(c.Guardrails.Store, "memory", "redis") {
		errs = append(errs, fmt.Sprintf("unknown guardrails store %q", c.Guardrails.Store))
	}
	if !oneOf(c.Guardrails.Audit, "none", "memory", "database") {
		errs = append(errs, fmt.Sprintf("unknown guardrails audit %q", c.Guardrails.Audit))
	}
	if !oneOf(c.Memory.Backend, "memory", "redis") {
		errs = append(errs, fmt.Sprintf("unknown memory backend %q", c.Memory.Backend))
	}
	if c.Guardrails.Audit == "database" && !oneOf(c.Database.Driver, "sqlite", "postgres") {
		errs = append(errs, fmt.Sprintf("unsupported database driver %q", c.Database.Driver))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// UsesRedis 是否有组件需要 Redis
func (c *Config) UsesRedis() bool {
	return c.Guardrails.Store == "redis" || c.Memory.Backend == "redis"
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		sslMode := d.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, sslMode,
		)
	case "sqlite":
		if d.Name == "" {
			return "file::memory:?cache=shared"
		}
		return d.Name
	default:
		return ""
	}
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
