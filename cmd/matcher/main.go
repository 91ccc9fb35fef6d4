// Package main is the entry point for the batch matcher. It performs one matching run,
// writes the result files, publishes to the configured sinks and exits.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/onnwee/foundermatch/internal/auth"
	"github.com/onnwee/foundermatch/internal/config"
	"github.com/onnwee/foundermatch/internal/export"
	"github.com/onnwee/foundermatch/internal/middleware"
	"github.com/onnwee/foundermatch/internal/pipeline"
	"github.com/onnwee/foundermatch/internal/tracing"
)

const serviceName = "foundermatch-matcher"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var errNoOperatorSecret = errors.New("OPERATOR_SECRET is required to issue tokens")

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to a YAML config file")
	envFile := flag.String("env-file", ".env", "path to a .env file (ignored when missing)")
	issueToken := flag.String("issue-token", "", "print an operator token for `subject` and exit")
	tokenTTL := flag.Duration("token-ttl", auth.DefaultTokenTTL, "lifetime of a token printed by -issue-token")
	flag.Parse()

	if *help {
		fmt.Println("Foundermatch Batch Matcher")
		fmt.Println()
		fmt.Println("Usage: matcher [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config error:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	if *issueToken != "" {
		token, err := issueOperatorToken(cfg, *issueToken, *tokenTTL)
		if err != nil {
			logger.Error("failed to issue operator token", "error", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	os.Exit(run(cfg, logger))
}

func issueOperatorToken(cfg *config.Config, subject string, ttl time.Duration) (string, error) {
	if cfg.OperatorSecret == "" {
		return "", errNoOperatorSecret
	}
	return auth.NewOperatorTokens(cfg.OperatorSecret, "").Issue(subject, ttl, auth.ScopeRunsWrite)
}

func run(cfg *config.Config, logger *slog.Logger) int {
	logger.Info("starting matcher", "version", version, "config", cfg.LogSummary())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.NewProvider(cfg.Tracing(serviceName, version))
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to flush traces", "error", err)
		}
	}()

	p, err := pipeline.New(ctx, cfg, pipeline.Deps{Logger: logger})
	if err != nil {
		logger.Error("failed to build matching pipeline", "error", err)
		return 1
	}
	defer func() {
		if err := p.Close(); err != nil {
			logger.Error("failed to close connections", "error", err)
		}
	}()

	result, err := p.Runner.RunOnce(ctx)
	switch {
	case result == nil:
		logger.Error("matching run failed", "error", err)
		return 1
	case errors.Is(err, export.ErrWriteFiles):
		logger.Error("failed to write result files", "run_id", result.ID, "output_dir", cfg.OutputDir, "error", err)
		return 1
	case err != nil:
		logger.Warn("some result sinks failed", "run_id", result.ID, "error", err)
	}

	logger.Info("matcher finished",
		"run_id", result.ID,
		"founders", len(result.Founders),
		"providers", len(result.Providers),
		"skipped", len(result.Skipped),
		"outputs", p.Files.Paths())
	return 0
}
