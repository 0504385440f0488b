// 配置加载器与默认配置测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearLegacyEnv 屏蔽运行环境中可能存在的无前缀变量
func clearLegacyEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"OPENAI_API_KEY", "OPENAI_BASE_URL", "LLM_MODEL", "LLM_TEMPERATURE", "ALPHA_VANTAGE_API_KEY"} {
		t.Setenv(k, "")
	}
}

// --- 默认配置测试 ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 5.0, cfg.Server.RateLimitRPS)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 0.3, cfg.LLM.Temperature)

	assert.Equal(t, 6, cfg.Agent.MaxIterations)
	assert.Equal(t, 200, cfg.Router.MaxTokens)

	assert.Equal(t, 5, cfg.Orchestrator.MaxWorkers)
	assert.Equal(t, 45*time.Second, cfg.Orchestrator.AgentTimeout)
	assert.True(t, cfg.Orchestrator.Parallel)

	assert.Equal(t, 2000, cfg.Guardrails.MaxInputLength)
	assert.Equal(t, 10, cfg.Guardrails.MaxQueriesPerMinute)
	assert.Equal(t, 100, cfg.Guardrails.MaxQueriesPerHour)
	assert.Equal(t, "memory", cfg.Guardrails.Store)

	assert.Equal(t, "memory", cfg.Memory.Backend)
	assert.Equal(t, 20, cfg.Memory.MaxTurns)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Telemetry.Enabled)

	require.NoError(t, cfg.Validate())
	assert.False(t, cfg.UsesRedis())
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	clearLegacyEnv(t)

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	clearLegacyEnv(t)
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	yamlContent := `
server:
  http_port: 8888
  read_timeout: 60s
  api_keys: ["k1", "k2"]

llm:
  model: "gpt-4o"
  temperature: 0.5

orchestrator:
  max_workers: 3
  parallel: false

guardrails:
  store: redis
  max_queries_per_minute: 4

redis:
  addr: "redis:6379"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Server.APIKeys)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 0.5, cfg.LLM.Temperature)
	assert.Equal(t, 3, cfg.Orchestrator.MaxWorkers)
	assert.False(t, cfg.Orchestrator.Parallel)
	assert.Equal(t, 4, cfg.Guardrails.MaxQueriesPerMinute)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.True(t, cfg.UsesRedis())

	// 未出现的字段保持默认值
	assert.Equal(t, 100, cfg.Guardrails.MaxQueriesPerHour)
	assert.Equal(t, 45*time.Second, cfg.Orchestrator.AgentTimeout)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	clearLegacyEnv(t)
	t.Setenv("FINAGENT_SERVER_HTTP_PORT", "9000")
	t.Setenv("FINAGENT_LLM_MODEL", "gpt-4.1")
	t.Setenv("FINAGENT_ORCHESTRATOR_AGENT_TIMEOUT", "30s")
	t.Setenv("FINAGENT_ORCHESTRATOR_PARALLEL", "false")
	t.Setenv("FINAGENT_GUARDRAILS_PROHIBITED_TOPICS", "insider trading, , wash sales")
	t.Setenv("FINAGENT_SERVER_RATE_LIMIT_RPS", "2.5")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.Equal(t, "gpt-4.1", cfg.LLM.Model)
	assert.Equal(t, 30*time.Second, cfg.Orchestrator.AgentTimeout)
	assert.False(t, cfg.Orchestrator.Parallel)
	assert.Equal(t, []string{"insider trading", "wash sales"}, cfg.Guardrails.ProhibitedTopics)
	assert.Equal(t, 2.5, cfg.Server.RateLimitRPS)
}

func TestLoader_LegacyEnv(t *testing.T) {
	clearLegacyEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("LLM_MODEL", "gpt-4o")
	t.Setenv("LLM_TEMPERATURE", "0.7")
	t.Setenv("ALPHA_VANTAGE_API_KEY", "av-key")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 0.7, cfg.LLM.Temperature)
	assert.Equal(t, "av-key", cfg.MarketData.APIKey)

	// 带前缀的变量优先
	t.Setenv("FINAGENT_LLM_MODEL", "gpt-4.1-mini")
	cfg, err = NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1-mini", cfg.LLM.Model)
}

func TestLoader_Dotenv(t *testing.T) {
	clearLegacyEnv(t)
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("FINAGENT_LOG_LEVEL=debug\nFINAGENT_MEMORY_MAX_TURNS=7\n"), 0o644))

	// 已存在的环境变量不会被 .env 覆盖
	t.Setenv("FINAGENT_LOG_LEVEL", "warn")
	require.NoError(t, os.Unsetenv("FINAGENT_MEMORY_MAX_TURNS"))
	t.Cleanup(func() { os.Unsetenv("FINAGENT_MEMORY_MAX_TURNS") })

	cfg, err := NewLoader().WithDotenv(envPath, filepath.Join(dir, "missing.env")).Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 7, cfg.Memory.MaxTurns)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	clearLegacyEnv(t)
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  http_port: 8888\n"), 0o644))
	t.Setenv("FINAGENT_SERVER_HTTP_PORT", "7777")

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.HTTPPort)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	clearLegacyEnv(t)
	t.Setenv("MYAPP_SERVER_HTTP_PORT", "6666")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, 6666, cfg.Server.HTTPPort)
}

func TestLoader_WithValidator(t *testing.T) {
	clearLegacyEnv(t)

	_, err := NewLoader().WithValidator(func(c *Config) error {
		if c.LLM.APIKey == "" {
			return assert.AnError
		}
		return nil
	}).Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestLoader_BadEnvValue(t *testing.T) {
	clearLegacyEnv(t)
	t.Setenv("FINAGENT_ORCHESTRATOR_AGENT_TIMEOUT", "soon")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FINAGENT_ORCHESTRATOR_AGENT_TIMEOUT")
}

func TestLoader_NonExistentFile(t *testing.T) {
	clearLegacyEnv(t)

	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  http_port: [not a port\n"), 0o644))

	_, err := NewLoader().WithConfigPath(configPath).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.HTTPPort = 70000 }, "invalid HTTP port"},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "bard" }, "unsupported llm provider"},
		{"temperature", func(c *Config) { c.LLM.Temperature = 3 }, "temperature"},
		{"iterations", func(c *Config) { c.Agent.MaxIterations = 0 }, "max_iterations"},
		{"workers", func(c *Config) { c.Orchestrator.MaxWorkers = 0 }, "max_workers"},
		{"rate limits", func(c *Config) { c.Guardrails.MaxQueriesPerHour = 0 }, "guardrail rate limits"},
		{"store", func(c *Config) { c.Guardrails.Store = "etcd" }, "unknown guardrails store"},
		{"audit", func(c *Config) { c.Guardrails.Audit = "file" }, "unknown guardrails audit"},
		{"memory backend", func(c *Config) { c.Memory.Backend = "disk" }, "unknown memory backend"},
		{"audit driver", func(c *Config) {
			c.Guardrails.Audit = "database"
			c.Database.Driver = "mysql"
		}, "unsupported database driver"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	assert.Equal(t, "audit.db", (&DatabaseConfig{Driver: "sqlite", Name: "audit.db"}).DSN())
	assert.Equal(t, "file::memory:?cache=shared", (&DatabaseConfig{Driver: "sqlite"}).DSN())
	assert.Equal(t,
		"host=db port=5432 user=fin password=secret dbname=audit sslmode=disable",
		(&DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "fin", Password: "secret", Name: "audit"}).DSN())
	assert.Contains(t, (&DatabaseConfig{Driver: "postgres", SSLMode: "require"}).DSN(), "sslmode=require")
	assert.Empty(t, (&DatabaseConfig{Driver: "mysql"}).DSN())
}

func TestMustLoad_InvalidFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("{{{{"), 0o644))

	assert.Panics(t, func() { MustLoad(configPath) })
}
