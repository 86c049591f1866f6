package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/maslennikov-ig/MC-2-sub003/config"
	"github.com/maslennikov-ig/MC-2-sub003/regen"
	"github.com/maslennikov-ig/MC-2-sub003/schema"
)

// =============================================================================
// 🛠️ run 命令
// =============================================================================

type runFlags struct {
	configPath string
	schemaPath string
	inputPath  string
	promptPath string
	advisory   bool
	tag        string
}

func parseRunFlags(args []string) (runFlags, error) {
	var f runFlags
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "", "Path to config file")
	fs.StringVar(&f.schemaPath, "schema", "", "JSON Schema of the expected output")
	fs.StringVar(&f.inputPath, "input", "-", "Raw model output, - for stdin")
	fs.StringVar(&f.promptPath, "prompt", "", "Original prompt")
	fs.BoolVar(&f.advisory, "advisory", false, "Allow the warning fallback")
	fs.StringVar(&f.tag, "tag", "", "Run label")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if f.schemaPath == "" {
		return f, errors.New("--schema is required")
	}
	return f, nil
}

func runRegenerate(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) int {
	f, err := parseRunFlags(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitUsage
	}

	cfg, err := loadConfig(f.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitFailure
	}
	logger := newCLILogger(cfg.Log)
	defer syncLogger(logger)

	contract, raw, prompt, err := readRunInputs(f, stdin)
	if err != nil {
		logger.Error("failed to read inputs", zap.Error(err))
		return exitFailure
	}

	rt, err := regen.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build pipeline", zap.Error(err))
		return exitFailure
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := rt.Close(closeCtx); err != nil {
			logger.Warn("shutdown incomplete", zap.Error(err))
		}
	}()

	callCfg := runConfig(rt.Defaults, f)
	res, err := rt.Regenerator.Regenerate(ctx, raw, contract, prompt, callCfg)
	if err != nil {
		var rerr *regen.Error
		if errors.As(err, &rerr) {
			logger.Error("output rejected",
				zap.String("kind", string(rerr.Kind)),
				zap.Int("violations", len(rerr.Violations)),
				zap.Int("total_cost", rerr.TotalCost),
			)
			return exitRejected
		}
		logger.Error("regeneration failed", zap.Error(err))
		return exitFailure
	}

	out, err := schema.Marshal(res.Data)
	if err != nil {
		logger.Error("failed to encode result", zap.Error(err))
		return exitFailure
	}
	if !res.Validated {
		logger.Warn("returning unvalidated output", zap.String("run_id", res.RunID))
	}
	fmt.Fprintln(stdout, out)
	return exitOK
}

// runConfig 以配置文件中的流水线默认值为基础，叠加命令行选项
func runConfig(defaults regen.Config, f runFlags) regen.Config {
	cfg := defaults
	if f.advisory {
		adv := regen.AdvisoryConfig()
		cfg.AllowWarningFallback = true
		cfg.MaxAttemptsPerLayer = adv.MaxAttemptsPerLayer
		if cfg.MaxTotalTokenCost > adv.MaxTotalTokenCost {
			cfg.MaxTotalTokenCost = adv.MaxTotalTokenCost
		}
	}
	if f.tag != "" {
		cfg.Tag = f.tag
	}
	return cfg
}

func readRunInputs(f runFlags, stdin io.Reader) (*schema.Contract, string, string, error) {
	schemaDoc, err := os.ReadFile(f.schemaPath)
	if err != nil {
		return nil, "", "", fmt.Errorf("read schema: %w", err)
	}
	contract, err := schema.FromJSONSchema(schemaDoc)
	if err != nil {
		return nil, "", "", fmt.Errorf("parse schema %s: %w", f.schemaPath, err)
	}

	var raw []byte
	if f.inputPath == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(f.inputPath)
	}
	if err != nil {
		return nil, "", "", fmt.Errorf("read input: %w", err)
	}

	var prompt []byte
	if f.promptPath != "" {
		if prompt, err = os.ReadFile(f.promptPath); err != nil {
			return nil, "", "", fmt.Errorf("read prompt: %w", err)
		}
	}
	return contract, string(raw), string(prompt), nil
}

// newCLILogger 把默认的 stdout 日志改到 stderr，stdout 只输出结果
func newCLILogger(cfg config.LogConfig) *zap.Logger {
	paths := make([]string, 0, len(cfg.OutputPaths))
	for _, p := range cfg.OutputPaths {
		if p == "stdout" {
			p = "stderr"
		}
		paths = append(paths, p)
	}
	if len(paths) == 0 {
		paths = []string{"stderr"}
	}
	cfg.OutputPaths = paths
	return config.NewLogger(cfg)
}
