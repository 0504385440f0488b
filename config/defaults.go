// =============================================================================
// 📦 finagent 默认配置
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:       DefaultServerConfig(),
		LLM:          DefaultLLMConfig(),
		Agent:        DefaultAgentConfig(),
		Router:       DefaultRouterConfig(),
		Orchestrator: DefaultOrchestratorConfig(),
		Guardrails:   DefaultGuardrailsConfig(),
		Memory:       DefaultMemoryConfig(),
		MarketData:   DefaultMarketDataConfig(),
		Redis:        DefaultRedisConfig(),
		Database:     DefaultDatabaseConfig(),
		Log:          DefaultLogConfig(),
		Telemetry:    DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    3 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    5,
		RateLimitBurst:  10,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:    "openai",
		Model:       "gpt-4o-mini",
		Temperature: 0.3,
		Timeout:     60 * time.Second,
		MaxRetries:  2,

		BreakerThreshold:    5,
		BreakerResetTimeout: 30 * time.Second,
	}
}

// DefaultAgentConfig 返回默认智能体配置
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		MaxIterations: 6,
		MaxTokens:     2000,
	}
}

// DefaultRouterConfig 返回默认路由配置
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		MaxTokens: 200,
		Timeout:   20 * time.Second,
	}
}

// DefaultOrchestratorConfig 返回默认编排配置
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		MaxWorkers:         5,
		AgentTimeout:       45 * time.Second,
		Parallel:           true,
		SynthesisMaxTokens: 2500,
		SynthesisTimeout:   60 * time.Second,
	}
}

// DefaultGuardrailsConfig 返回默认护栏配置
func DefaultGuardrailsConfig() GuardrailsConfig {
	return GuardrailsConfig{
		MaxInputLength:       2000,
		MaxQueriesPerMinute:  10,
		MaxQueriesPerHour:    100,
		SpecialCharThreshold: 0.3,
		ActiveWindow:         5 * time.Minute,
		Store:                "memory",
		Retention:            time.Hour,
		Audit:                "memory",
	}
}

// DefaultMemoryConfig 返回默认记忆配置
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		Backend:   "memory",
		MaxTurns:  20,
		ThreadTTL: 24 * time.Hour,
	}
}

// DefaultMarketDataConfig 返回默认行情配置
func DefaultMarketDataConfig() MarketDataConfig {
	return MarketDataConfig{
		BaseURL:  "https://www.alphavantage.co",
		Timeout:  10 * time.Second,
		CacheTTL: 5 * time.Minute,
		Retries:  2,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Name:            "finagent_audit.db",
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "finagent",
		SampleRate:   0.1,
	}
}
