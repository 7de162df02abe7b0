package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Zeeeepa/gobby/internal/actions"
	"github.com/Zeeeepa/gobby/internal/catalog"
	"github.com/Zeeeepa/gobby/internal/conditions"
	"github.com/Zeeeepa/gobby/internal/engine"
	"github.com/Zeeeepa/gobby/internal/loader"
	"github.com/Zeeeepa/gobby/internal/logging"
	"github.com/Zeeeepa/gobby/internal/maintenance"
	"github.com/Zeeeepa/gobby/internal/store"
	"github.com/Zeeeepa/gobby/internal/validation"
	"github.com/Zeeeepa/gobby/pkg/mcp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "gobby:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)

	if err := os.MkdirAll(gobbyDir(), 0o755); err != nil {
		return fmt.Errorf("create gobby dir: %w", err)
	}
	if err := os.MkdirAll(dbDir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("create db dir: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewLibSQLStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	conds, err := conditions.NewEvaluator(logger)
	if err != nil {
		return fmt.Errorf("build condition evaluator: %w", err)
	}
	registry := actions.NewRegistry()
	audit := store.NewAuditRecorder(st)

	steps := engine.NewStepEngine(conds, registry, audit, logger, engine.Config{
		StuckStepThreshold: cfg.stuckThreshold(),
		RecoveryStep:       cfg.RecoveryStep,
		MaxTransitionChain: cfg.MaxTransitionChain,
	})
	unified := engine.NewUnifiedEvaluator(steps, logger)

	validator, err := validation.NewWorkflowValidator()
	if err != nil {
		return fmt.Errorf("build validator: %w", err)
	}

	janitor, err := maintenance.NewJanitor(st, cfg.MaintenanceCron, cfg.retention(), logger)
	if err != nil {
		return err
	}
	if err := janitor.Start(ctx); err != nil {
		return err
	}
	defer janitor.Stop()

	srv := mcp.NewGobbyServer(mcp.GobbyServerDeps{
		Evaluator: unified,
		Validator: validator,
		Loader:    loader.NewFileLoader(cfg.WorkflowDir, logger),
		Store:     st,
		Catalog:   catalog.NewStatic(nil),
		Logger:    logger,
	})

	logger.Info("gobby started",
		slog.String("db", cfg.DBPath),
		slog.String("workflows", cfg.WorkflowDir))

	return srv.Serve(ctx)
}

func newLogger(level string) *slog.Logger {
	var lv slog.Level
	switch level {
	case "debug":
		lv = slog.LevelDebug
	case "warn":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}
	// Logs go to stderr; stdout carries the MCP stdio transport.
	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv})
	logger := slog.New(logging.NewCorrelationHandler(inner))
	slog.SetDefault(logger)
	return logger
}

// dbDir extracts the directory component of a "file:" DSN.
func dbDir(dsn string) string {
	path := dsn
	if len(path) > 5 && path[:5] == "file:" {
		path = path[5:]
	}
	return filepath.Dir(path)
}
