// =============================================================================
// regen 命令行入口
// =============================================================================
// 对一份模型输出执行校验与恢复流水线，或查询审计库中的高频违规路径
//
// 使用方法:
//
//	regen run --schema contract.json --input output.txt            # 严格模式
//	regen run --schema contract.json --input - --advisory          # 从 stdin 读取，允许告警兜底
//	regen run --config config.yaml --schema c.json --prompt p.txt  # 指定配置与原始提示词
//	regen report --config config.yaml --since 168h                 # 高频违规路径
//	regen version                                                  # 显示版本信息
// =============================================================================

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/maslennikov-ig/MC-2-sub003/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// 退出码
const (
	exitOK       = 0
	exitFailure  = 1
	exitUsage    = 2
	exitRejected = 3 // 输出未通过校验（RegenerationExhausted / BudgetExceeded）
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitUsage)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var code int
	switch os.Args[1] {
	case "run":
		code = runRegenerate(ctx, os.Args[2:], os.Stdin, os.Stdout)
	case "report":
		code = runReport(ctx, os.Args[2:], os.Stdout)
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		code = exitUsage
	}
	os.Exit(code)
}

// loadConfig 按 默认值 → YAML → 环境变量 的顺序加载并校验配置
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func syncLogger(logger *zap.Logger) {
	_ = logger.Sync()
}

func printVersion() {
	fmt.Printf("regen %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`regen - structured output validation and recovery

Usage:
  regen <command> [options]

Commands:
  run       Validate and repair one model output against a JSON Schema
  report    Show recurring violation paths from the audit store
  version   Show version information
  help      Show this help message

Run Options:
  --config <path>     Path to config file
  --schema <path>     JSON Schema describing the expected output (required)
  --input <path>      Raw model output, "-" for stdin (default "-")
  --prompt <path>     Original prompt, enables the LLM recovery layers
  --advisory          Allow the warning fallback and use the advisory budget
  --tag <name>        Label for logs and the audit store

Report Options:
  --config <path>     Path to config file (audit section must be enabled)
  --since <duration>  Look-back window (default 168h)
  --limit <n>         Maximum number of paths (default 20)

Exit codes:
  0  conformant output written to stdout (or fallback in advisory mode)
  1  configuration or infrastructure failure
  2  usage error
  3  output could not be made conformant

Environment Variables:
  REGEN_LLM_API_KEY        LLM API key
  REGEN_EMBEDDING_API_KEY  Embedding API key
  REGEN_REDIS_ADDR         Shared vector cache address
  REGEN_LOG_LEVEL          Log level (debug, info, warn, error)`)
}
