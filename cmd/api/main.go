// Package main is the entry point for the match explorer API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/foundermatch/internal/api"
	"github.com/onnwee/foundermatch/internal/auth"
	"github.com/onnwee/foundermatch/internal/config"
	"github.com/onnwee/foundermatch/internal/health"
	"github.com/onnwee/foundermatch/internal/jobs"
	"github.com/onnwee/foundermatch/internal/match"
	"github.com/onnwee/foundermatch/internal/middleware"
	"github.com/onnwee/foundermatch/internal/pipeline"
	"github.com/onnwee/foundermatch/internal/tracing"
)

const serviceName = "foundermatch-api"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// shutdownTimeout bounds graceful shutdown of the HTTP server.
const shutdownTimeout = 10 * time.Second

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to a YAML config file")
	envFile := flag.String("env-file", ".env", "path to a .env file (ignored when missing)")
	flag.Parse()

	if *help {
		fmt.Println("Foundermatch API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
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

	os.Exit(run(cfg, logger))
}

func run(cfg *config.Config, logger *slog.Logger) int {
	logger.Info("starting api", "version", version, "config", cfg.LogSummary())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.NewProvider(cfg.Tracing(serviceName, version))
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to flush traces", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	matchMetrics := match.NewMetrics()
	jobMetrics := jobs.NewMetrics()
	for _, m := range []interface{ Register(prometheus.Registerer) error }{matchMetrics, jobMetrics} {
		if err := m.Register(reg); err != nil {
			logger.Error("failed to register metrics", "error", err)
			return 1
		}
	}

	p, err := pipeline.New(ctx, cfg, pipeline.Deps{
		Logger:       logger,
		MatchMetrics: matchMetrics,
		JobMetrics:   jobMetrics,
	})
	if err != nil {
		logger.Error("failed to build matching pipeline", "error", err)
		return 1
	}
	defer func() {
		if err := p.Close(); err != nil {
			logger.Error("failed to close connections", "error", err)
		}
	}()

	// On failure the API serves the published cache, or 503 until a recompute succeeds.
	if run, err := p.Runner.RunOnce(ctx); run == nil {
		logger.Warn("initial matching run failed", "error", err)
	} else if err != nil {
		logger.Warn("initial matching run published partially", "run_id", run.ID, "error", err)
	}

	if cfg.RefreshInterval > 0 {
		job := match.NewRefreshJob(match.RefreshJobConfig{
			Interval:   cfg.RefreshInterval,
			Logger:     logger,
			JobMetrics: jobMetrics,
		}, p.Runner)
		if err := job.Start(ctx); err != nil {
			logger.Error("failed to start refresh job", "error", err)
			return 1
		}
		defer job.Stop()
	}

	handler, err := newHandler(cfg, p, reg, logger)
	if err != nil {
		logger.Error("failed to build handler", "error", err)
		return 1
	}

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: match.DefaultRefreshTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		logger.Error("failed to listen", "addr", server.Addr, "error", err)
		return 1
	}
	if err := serve(ctx, server, ln, logger); err != nil {
		logger.Error("server error", "error", err)
		return 1
	}
	return 0
}

// newHandler wires the API routes and the middleware chain
// RequestID -> Tracing -> Logging -> HTTPMetrics.
func newHandler(cfg *config.Config, p *pipeline.Pipeline, reg *prometheus.Registry, logger *slog.Logger) (http.Handler, error) {
	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(reg); err != nil {
		return nil, fmt.Errorf("register http metrics: %w", err)
	}

	healthCfg := api.HealthHandlersConfig{
		ResultsChecker: health.NewRunChecker(func() error {
			_, err := p.Runner.Latest()
			return err
		}),
	}
	matchCfg := api.MatchHandlersConfig{
		Runs:        p.Runner,
		HeatmapPath: cfg.HeatmapPath,
		Logger:      logger,
	}
	runCfg := api.RunHandlersConfig{
		Runs:       p.Runner,
		Recomputer: p.Runner,
		Logger:     logger,
	}

	// Interfaces must stay nil for absent dependencies.
	if p.DB != nil {
		healthCfg.DBChecker = health.NewDBChecker(p.DB)
	}
	if p.Store != nil {
		matchCfg.History = p.Store
		runCfg.History = p.Store
	}
	if p.Redis != nil {
		healthCfg.RedisChecker = health.NewRedisChecker(p.Redis)
	}
	if p.Cache != nil {
		matchCfg.Cache = p.Cache
	}
	if p.Uploader != nil {
		runCfg.Links = p.Uploader
		if bh, ok := p.Uploader.Client().(health.BucketHeader); ok {
			healthCfg.S3Checker = health.NewS3Checker(bh, p.Uploader.Bucket())
		}
	}

	var validator api.TokenValidator
	if cfg.OperatorSecret != "" {
		validator = auth.NewOperatorTokens(cfg.OperatorSecret, "")
	} else {
		logger.Info("operator secret not set, POST /api/v1/runs is disabled")
	}

	mux := api.NewRouter(api.RouterConfig{
		Health:          api.NewHealthHandlers(healthCfg),
		Matches:         api.NewMatchHandlers(matchCfg),
		Runs:            api.NewRunHandlers(runCfg),
		RequireOperator: api.RequireOperator(validator, auth.ScopeRunsWrite, httpMetrics),
		Metrics:         promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Service:         serviceName,
		Version:         version,
	})

	var handler http.Handler = mux
	handler = middleware.HTTPMetrics(httpMetrics)(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Tracing(serviceName)(handler)
	handler = middleware.RequestID(handler)
	return handler, nil
}

// serve runs server on ln until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, server *http.Server, ln net.Listener, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
