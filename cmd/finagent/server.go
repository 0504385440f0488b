package main

import (
	"context"
	"net/http"

	"github.com/BaSui01/finagent/api/handlers"
	"github.com/BaSui01/finagent/internal/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 把 App 暴露为 HTTP API
type Server struct {
	app    *App
	logger *zap.Logger

	httpManager *server.Manager

	queryHandler  *handlers.QueryHandler
	usageHandler  *handlers.UsageHandler
	healthHandler *handlers.HealthHandler

	// 限流器后台清理的生命周期
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建服务器
func NewServer(app *App, logger *zap.Logger) *Server {
	return &Server{app: app, logger: logger}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 初始化处理器并启动 HTTP 服务（非阻塞）
func (s *Server) Start() error {
	s.initHandlers()

	s.httpManager = server.NewManager(s.Handler(), server.ConfigFrom(s.app.cfg.Server), s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.String("addr", s.httpManager.Addr()))
	return nil
}

func (s *Server) initHandlers() {
	s.queryHandler = handlers.NewQueryHandler(s.app.assistant, s.logger)
	s.usageHandler = handlers.NewUsageHandler(s.app.engine, s.logger)
	s.healthHandler = handlers.NewHealthHandler(handlers.BuildInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}, s.logger)

	if s.app.cache != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("redis", s.app.cache.Ping))
	}
	if s.app.pool != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("database", s.app.pool.Ping))
	}
}

// Handler 构建路由并套上中间件链
func (s *Server) Handler() http.Handler {
	if s.queryHandler == nil {
		s.initHandlers()
	}

	mux := http.NewServeMux()

	// 健康检查
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion)
	mux.Handle("/metrics", promhttp.Handler())

	// API
	mux.HandleFunc("/api/v1/query", s.queryHandler.HandleQuery)
	mux.HandleFunc("/api/v1/agents", s.queryHandler.HandleAgents)
	mux.HandleFunc("/api/v1/usage", s.usageHandler.HandleSession)
	mux.HandleFunc("/api/v1/usage/global", s.usageHandler.HandleGlobal)

	cfg := s.app.cfg.Server
	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/version", "/metrics"}

	ctx, cancel := context.WithCancel(context.Background())
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}
	s.rateLimiterCancel = cancel

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		OTelTracing(),
		SecurityHeaders(),
		MetricsMiddleware(s.app.collector),
		RequestLogger(s.logger),
		CORS(cfg.CORSAllowedOrigins),
	}
	if cfg.RateLimitRPS > 0 {
		middlewares = append(middlewares, RateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst, s.logger))
	}
	if len(cfg.APIKeys) > 0 {
		middlewares = append(middlewares, APIKeyAuth(cfg.APIKeys, skipAuthPaths, s.logger))
	} else {
		s.logger.Warn("server.api_keys is empty, API endpoints are unauthenticated")
	}

	return Chain(mux, middlewares...)
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 阻塞到收到信号或服务异常退出，然后依次关闭 HTTP 与 App
func (s *Server) WaitForShutdown(ctx context.Context) error {
	err := s.httpManager.WaitForShutdown(ctx)
	s.Shutdown(context.Background())
	return err
}

// Shutdown 关闭 HTTP 服务、限流器与 App 资源
func (s *Server) Shutdown(ctx context.Context) {
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}
	if err := s.app.Close(ctx); err != nil {
		s.logger.Error("resource cleanup error", zap.Error(err))
	}
	s.logger.Info("shutdown complete")
}
