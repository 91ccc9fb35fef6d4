// Package pipeline assembles the matching engine, its profile loader and the configured
// result sinks from configuration. Both binaries build their runner through it.
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/onnwee/foundermatch/internal/artifact"
	"github.com/onnwee/foundermatch/internal/cache"
	"github.com/onnwee/foundermatch/internal/config"
	"github.com/onnwee/foundermatch/internal/db"
	"github.com/onnwee/foundermatch/internal/export"
	"github.com/onnwee/foundermatch/internal/match"
	"github.com/onnwee/foundermatch/internal/ranking"
	"github.com/onnwee/foundermatch/internal/store"
	"github.com/onnwee/foundermatch/migrations"
)

// Deps are the process-wide collaborators shared with the pipeline.
type Deps struct {
	Logger       *slog.Logger
	MatchMetrics *match.Metrics
	JobMetrics   match.JobMetrics
}

// Pipeline owns the runner and every connection opened for its sinks.
// Optional components are nil when not configured.
type Pipeline struct {
	Engine   *match.Engine
	Runner   *match.Runner
	Files    *export.FileSink
	DB       *sql.DB
	Store    *store.Store
	Redis    *redis.Client
	Cache    *cache.Cache
	Uploader *artifact.Uploader
}

// New builds a pipeline from cfg. Database migrations are applied when a database is
// configured. On error every connection opened so far is closed.
func New(ctx context.Context, cfg *config.Config, deps Deps) (_ *Pipeline, err error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	p := &Pipeline{}
	defer func() {
		if err != nil {
			_ = p.Close()
		}
	}()

	weights, calErr := ranking.LoadCalibration(cfg.CalibrationPath)
	if calErr != nil {
		// The defaults are returned alongside the error.
		deps.Logger.Warn("using default match weights", "path", cfg.CalibrationPath, "error", calErr)
	}

	p.Engine = match.NewEngine(match.EngineConfig{
		TopK:     cfg.TopK,
		Workers:  cfg.Workers,
		Prefixes: cfg.Prefixes(),
		Logger:   deps.Logger,
		Metrics:  deps.MatchMetrics,
	}, ranking.NewScorer(weights, nil))

	p.Files = export.NewFileSink(cfg.OutputDir)
	sinks := []match.Sink{p.Files}

	if cfg.DatabaseURL != "" {
		p.DB, err = db.Open(ctx, cfg.DatabaseURL, db.DefaultPoolConfig())
		if err != nil {
			return nil, err
		}
		if err = migrations.Apply(ctx, p.DB); err != nil {
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		p.Store = store.New(p.DB, deps.Logger).WithRetention(cfg.RunRetention)
		sinks = append(sinks, p.Store)
	}

	if cfg.RedisURL != "" {
		p.Redis, err = cache.NewClient(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		p.Cache = cache.New(p.Redis, cache.Config{Logger: deps.Logger})
		sinks = append(sinks, p.Cache)
	}

	if cfg.S3Enabled() {
		p.Uploader, err = artifact.NewUploader(artifact.Config{
			Bucket:          cfg.S3Bucket,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			Prefix:          cfg.S3Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("create artifact uploader: %w", err)
		}
		sinks = append(sinks, p.Uploader)
	}

	p.Runner = match.NewRunner(p.Engine, match.RunnerConfig{
		Loader:     match.CSVLoader(cfg.ProfilesPath),
		Sinks:      sinks,
		Logger:     deps.Logger,
		JobMetrics: deps.JobMetrics,
	})

	names := make([]string, len(sinks))
	for i, s := range sinks {
		names[i] = s.Name()
	}
	deps.Logger.Info("matching pipeline ready", "sinks", names, "profiles_path", cfg.ProfilesPath)

	return p, nil
}

// Close releases the database and Redis connections.
func (p *Pipeline) Close() error {
	var errs []error
	if p.Redis != nil {
		if err := p.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if p.DB != nil {
		if err := p.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
