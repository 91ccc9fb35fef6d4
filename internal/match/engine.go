package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/foundermatch/internal/profile"
	"github.com/onnwee/foundermatch/internal/ranking"
	"github.com/onnwee/foundermatch/internal/tracing"
)

// Direction names one side of the match tables.
type Direction string

const (
	// FounderToProvider ranks providers for each founder.
	FounderToProvider Direction = "founder"
	// ProviderToFounder ranks founders for each provider.
	ProviderToFounder Direction = "provider"
)

// EngineConfig configures a matching engine.
type EngineConfig struct {
	// TopK is the number of counterparts kept per subject.
	TopK int
	// Workers is the number of goroutines used to build the matrix.
	Workers int
	// Prefixes assigns roles from identifiers.
	Prefixes profile.Prefixes
	// Logger for run activity.
	Logger *slog.Logger
	// Metrics for run tracking.
	Metrics *Metrics
}

// Engine runs complete matching passes over a profile collection.
type Engine struct {
	config EngineConfig
	scorer PairScorer
}

// NewEngine creates a matching engine. Zero config values fall back to defaults.
func NewEngine(config EngineConfig, scorer PairScorer) *Engine {
	if config.TopK <= 0 {
		config.TopK = ranking.DefaultTopK
	}
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.Prefixes == (profile.Prefixes{}) {
		config.Prefixes = profile.DefaultPrefixes()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if scorer == nil {
		scorer = ranking.NewScorer(nil, nil)
	}
	return &Engine{config: config, scorer: scorer}
}

// Run is the complete, immutable output of one matching pass.
type Run struct {
	ID           string
	StartedAt    time.Time
	Duration     time.Duration
	Founders     []profile.Profile
	Providers    []profile.Profile
	Skipped      []string
	Duplicates   []string
	Directory    *profile.Directory
	Matrix       *Matrix
	FounderTopK  *ranking.TopKTable
	ProviderTopK *ranking.TopKTable
}

// Table returns the top-K table for a direction, or nil for an unknown direction.
func (r *Run) Table(d Direction) *ranking.TopKTable {
	switch d {
	case FounderToProvider:
		return r.FounderTopK
	case ProviderToFounder:
		return r.ProviderTopK
	default:
		return nil
	}
}

// Run partitions profiles by role, scores every founder/provider pair and selects the
// top-K table for each direction from the one matrix.
// An empty founder or provider population produces empty tables, not an error.
func (e *Engine) Run(ctx context.Context, profiles []profile.Profile) (run *Run, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "match_run")
	defer func() { endSpan(err) }()

	start := time.Now()
	run = &Run{
		ID:        uuid.New().String(),
		StartedAt: start.UTC(),
	}

	part := profile.Split(profiles, e.config.Prefixes)
	run.Founders = part.Founders
	run.Providers = part.Providers
	run.Skipped = part.Skipped
	run.Duplicates = part.Duplicates
	run.Directory = profile.NewDirectory(part.All)

	if len(part.Skipped) > 0 {
		e.config.Logger.Warn("skipping profiles with unknown role prefix",
			"run_id", run.ID,
			"count", len(part.Skipped),
			"founder_prefix", e.config.Prefixes.Founder,
			"provider_prefix", e.config.Prefixes.Provider)
	}
	if len(part.Duplicates) > 0 {
		e.config.Logger.Warn("ignoring profiles with repeated ids",
			"run_id", run.ID,
			"count", len(part.Duplicates),
			"ids", part.Duplicates)
	}

	tracing.SetAttributes(ctx,
		attribute.String("match.run_id", run.ID),
		attribute.Int("match.founders", len(part.Founders)),
		attribute.Int("match.providers", len(part.Providers)),
	)

	run.Matrix, err = e.buildMatrix(ctx, run)
	if err != nil {
		if e.config.Metrics != nil {
			e.config.Metrics.IncRunErrors()
		}
		e.config.Logger.Error("matching run failed",
			"run_id", run.ID,
			"error", err)
		return nil, fmt.Errorf("build match matrix: %w", err)
	}

	run.FounderTopK = ranking.SelectTopK(run.Matrix.FounderRows(), e.config.TopK)
	run.ProviderTopK = ranking.SelectTopK(run.Matrix.ProviderRows(), e.config.TopK)
	run.Duration = time.Since(start)

	if e.config.Metrics != nil {
		e.config.Metrics.IncRunsTotal()
		e.config.Metrics.ObserveRunDuration(run.Duration.Seconds())
		e.config.Metrics.AddPairsScored(len(part.Founders) * len(part.Providers))
		e.config.Metrics.SetLastRun(float64(time.Now().Unix()), len(part.Founders), len(part.Providers), len(part.Skipped))
	}

	e.config.Logger.Info("matching run completed",
		"run_id", run.ID,
		"founders", len(part.Founders),
		"providers", len(part.Providers),
		"top_k", e.config.TopK,
		"workers", e.config.Workers,
		"duration_seconds", run.Duration.Seconds())

	return run, nil
}

func (e *Engine) buildMatrix(ctx context.Context, run *Run) (m *Matrix, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "match_build_matrix")
	defer func() { endSpan(err) }()

	return BuildMatrix(ctx, run.Founders, run.Providers, e.scorer, BuildOptions{
		Workers:   e.config.Workers,
		Directory: run.Directory,
	})
}

// Sink receives completed runs. Implementations write results to files, databases,
// caches or object storage.
type Sink interface {
	Name() string
	Publish(ctx context.Context, run *Run) error
}

// ErrPublish wraps the failures of one or more sinks.
var ErrPublish = errors.New("publish match results")

// Publish hands run to every sink in order. A failing sink is logged and counted but
// does not stop the remaining sinks. The returned error wraps ErrPublish and joins
// every sink failure, so callers can test for a particular sink's error with errors.Is.
func (e *Engine) Publish(ctx context.Context, run *Run, sinks ...Sink) error {
	var errs []error
	for _, sink := range sinks {
		if err := e.publishOne(ctx, run, sink); err != nil {
			if e.config.Metrics != nil {
				e.config.Metrics.IncSinkErrors(sink.Name())
			}
			e.config.Logger.Error("failed to publish match results",
				"run_id", run.ID,
				"sink", sink.Name(),
				"error", err)
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			continue
		}
		e.config.Logger.Debug("published match results",
			"run_id", run.ID,
			"sink", sink.Name())
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPublish, errors.Join(errs...))
}

func (e *Engine) publishOne(ctx context.Context, run *Run, sink Sink) (err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "match_publish_"+sink.Name())
	defer func() { endSpan(err) }()
	return sink.Publish(ctx, run)
}
