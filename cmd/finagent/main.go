// =============================================================================
// finagent 主入口
// =============================================================================
// 多智能体金融助手的服务入口，包含 HTTP API、健康检查、Prometheus 指标
//
// 使用方法:
//
//	finagent serve                          # 启动服务
//	finagent serve --config config.yaml     # 指定配置文件
//	finagent ask "What is a Roth IRA?"      # 单次提问
//	finagent version                        # 显示版本信息
//	finagent health                         # 健康检查
// =============================================================================

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/BaSui01/finagent/config"
	"github.com/BaSui01/finagent/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "ask":
		runAsk(os.Args[2:])
	case "version":
		printVersion(os.Stdout)
	case "health":
		runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage(os.Stderr)
		os.Exit(1)
	}
}

// loadConfig 加载 .env、YAML 与环境变量配置
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader().WithDotenv(".env")
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	return loader.Load()
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting finagent",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	app, err := NewApp(cfg, nil, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}

	srv := NewServer(app, logger)
	if err := srv.Start(); err != nil {
		app.Close(context.Background())
		logger.Fatal("Failed to start server", zap.Error(err))
	}

	if err := srv.WaitForShutdown(context.Background()); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
	}
	logger.Info("finagent stopped")
}

// =============================================================================
// 💬 ask 命令
// =============================================================================

func runAsk(args []string) {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	threadID := fs.String("thread", "", "Conversation thread id (default: new thread)")
	_ = fs.Parse(args)

	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		fmt.Fprintln(os.Stderr, `Usage: finagent ask [--config path] [--thread id] "<question>"`)
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	// 单次提问时日志只写 stderr，stdout 留给回答
	cfg.Log.OutputPaths = []string{"stderr"}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	app, err := NewApp(cfg, nil, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer app.Close(context.Background())

	if *threadID == "" {
		*threadID = uuid.NewString()
	}
	ctx := types.WithSessionID(context.Background(), "cli")
	ctx = types.WithRequestID(ctx, "cli-"+uuid.NewString())

	reply := app.assistant.ProcessQuery(ctx, query, *threadID)
	printReply(os.Stdout, reply.Response, reply.Routing)
	if reply.Rejected {
		app.Close(context.Background())
		os.Exit(2)
	}
}

func printReply(w io.Writer, response, routing string) {
	fmt.Fprintln(w, response)
	if routing != "" {
		fmt.Fprintf(w, "\n[%s]\n", routing)
	}
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	_ = fs.Parse(args)

	if err := checkHealth(&http.Client{Timeout: 5 * time.Second}, *addr); err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("OK")
}

func checkHealth(client *http.Client, addr string) error {
	resp, err := client.Get(strings.TrimRight(addr, "/") + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "finagent %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `finagent - multi-agent financial education assistant

Usage:
  finagent <command> [options]

Commands:
  serve     Start the HTTP API server
  ask       Answer a single question and exit
  version   Show version information
  health    Check server health
  help      Show this help message

Options for 'serve':
  --config <path>   Path to configuration file (YAML)

Options for 'ask':
  --config <path>   Path to configuration file (YAML)
  --thread <id>     Continue an existing conversation thread

Environment:
  FINAGENT_* variables override the config file, e.g. FINAGENT_LLM_API_KEY.
  A .env file in the working directory is loaded first when present.

Examples:
  finagent serve --config /etc/finagent/config.yaml
  finagent ask "How does dollar-cost averaging work?"
  finagent health --addr http://localhost:8080
  finagent version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
