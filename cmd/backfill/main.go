package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/batch"
	"github.com/spec-kit/ticket-sync/internal/config"
	"github.com/spec-kit/ticket-sync/internal/observability"
	"github.com/spec-kit/ticket-sync/internal/persistence"
	"github.com/spec-kit/ticket-sync/internal/repository"
)

// backfill applies correction scripts produced by export tooling against the
// ticket store, or splits oversized seed scripts into loadable parts.
func main() {
	var (
		scriptPath = flag.String("file", "", "path to the script file")
		splitOut   = flag.String("split", "", "split the script into parts under this directory instead of applying it")
		dryRun     = flag.Bool("dry-run", false, "parse and report without writing")
	)
	flag.Parse()

	if *scriptPath == "" {
		log.Fatal("usage: backfill -file <script.sql> [-split <dir>] [-dry-run]")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	content, err := os.ReadFile(*scriptPath)
	if err != nil {
		logger.Fatal("read script", zap.Error(err))
	}
	script := string(content)

	if *splitOut != "" {
		if err := splitScript(script, *scriptPath, *splitOut, cfg.Batch.MaxScriptBytes, logger); err != nil {
			logger.Fatal("split script", zap.Error(err))
		}
		return
	}

	intents, err := batch.ParseScript(script)
	if err != nil {
		logger.Fatal("parse script", zap.Error(err))
	}
	logger.Info("script parsed", zap.Int("intents", len(intents)))
	if *dryRun {
		return
	}

	ctx := context.Background()
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	executor := batch.NewExecutor(repository.NewTicketRepository(pg.PoolHandle()), cfg.Batch, logger)
	report, err := executor.Apply(ctx, intents)
	if err != nil {
		logger.Fatal("batch run aborted", zap.Error(err))
	}
	if report.Failed > 0 {
		for _, failure := range report.Failures {
			logger.Warn("intent failed",
				zap.String("jira_issue_key", failure.ExternalKey),
				zap.Int("statement", failure.Statement),
				zap.String("error", failure.Error))
		}
		os.Exit(1)
	}
}

func splitScript(script, sourcePath, outDir string, maxBytes int, logger *zap.Logger) error {
	parts, err := batch.SplitScript(script, maxBytes)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	base := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	for i, part := range parts {
		name := fmt.Sprintf("%s_part%02d.sql", base, i+1)
		path := filepath.Join(outDir, name)
		if err := os.WriteFile(path, []byte(part), 0o644); err != nil {
			return err
		}
		logger.Info("wrote part", zap.String("file", path), zap.Int("bytes", len(part)))
	}
	logger.Info("split complete", zap.Int("parts", len(parts)))
	return nil
}
