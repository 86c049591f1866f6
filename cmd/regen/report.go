package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/maslennikov-ig/MC-2-sub003/internal/audit"
	"github.com/maslennikov-ig/MC-2-sub003/internal/database"
)

// =============================================================================
// 📊 report 命令
// =============================================================================

type report struct {
	Since    time.Time         `json:"since"`
	Outcomes map[string]int64  `json:"outcomes"`
	Paths    []audit.PathCount `json:"recurring_paths"`
}

func runReport(ctx context.Context, args []string, stdout io.Writer) int {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	since := fs.Duration("since", 7*24*time.Hour, "Look-back window")
	limit := fs.Int("limit", 20, "Maximum number of paths")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitFailure
	}
	if !cfg.Audit.Enabled {
		fmt.Fprintln(os.Stderr, "audit store is disabled (set audit.enabled)")
		return exitUsage
	}
	logger := newCLILogger(cfg.Log)
	defer syncLogger(logger)

	db, err := database.Open(cfg.Audit, logger)
	if err != nil {
		logger.Error("failed to open audit store", zap.Error(err))
		return exitFailure
	}
	defer db.Close()
	store := audit.NewStore(db, logger)

	r := report{Since: time.Now().Add(-*since).UTC()}
	if r.Outcomes, err = store.OutcomeCounts(ctx, r.Since); err != nil {
		logger.Error("failed to count outcomes", zap.Error(err))
		return exitFailure
	}
	if r.Paths, err = store.RecurringViolationPaths(ctx, r.Since, *limit); err != nil {
		logger.Error("failed to query violation paths", zap.Error(err))
		return exitFailure
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		logger.Error("failed to write report", zap.Error(err))
		return exitFailure
	}
	return exitOK
}
