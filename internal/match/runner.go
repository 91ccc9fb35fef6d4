package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/foundermatch/internal/jobs"
	"github.com/onnwee/foundermatch/internal/profile"
)

// ErrNoRun is returned when results are requested before any run has completed.
var ErrNoRun = errors.New("no matching run has completed")

// Loader supplies the profile collection for a run.
type Loader func(ctx context.Context) ([]profile.Profile, error)

// CSVLoader returns a Loader reading the profile dataset at path on every call.
func CSVLoader(path string) Loader {
	return func(ctx context.Context) ([]profile.Profile, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return profile.LoadCSV(path)
	}
}

// JobMetrics provides centralized background job metrics tracking.
type JobMetrics interface {
	IncJobsTotal(jobType, status string)
	ObserveJobDuration(jobType string, seconds float64)
	IncJobErrors(jobType, errorType string)
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Loader     Loader
	Sinks      []Sink
	Logger     *slog.Logger
	JobMetrics JobMetrics
}

// Runner loads profiles, runs the engine, publishes results and keeps the latest run.
// Runs are serialized; concurrent callers wait for the run in progress to finish.
type Runner struct {
	engine *Engine
	config RunnerConfig

	runMu  sync.Mutex
	mu     sync.RWMutex
	latest *Run
}

// NewRunner creates a runner around engine.
func NewRunner(engine *Engine, config RunnerConfig) *Runner {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Runner{engine: engine, config: config}
}

// RunOnce performs one complete pass. Load and build failures return a nil run.
// When only sinks fail, the run is still kept as the latest result and is returned
// together with an error wrapping ErrPublish.
func (r *Runner) RunOnce(ctx context.Context) (*Run, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	start := time.Now()
	run, err := r.runOnce(ctx)
	duration := time.Since(start).Seconds()

	if r.config.JobMetrics != nil {
		status := jobs.StatusSuccess
		if run == nil {
			status = jobs.StatusFailure
		}
		r.config.JobMetrics.IncJobsTotal(jobs.JobTypeMatchRun, status)
		r.config.JobMetrics.ObserveJobDuration(jobs.JobTypeMatchRun, duration)
	}
	return run, err
}

func (r *Runner) runOnce(ctx context.Context) (*Run, error) {
	if r.config.Loader == nil {
		return nil, errors.New("runner has no profile loader")
	}

	profiles, err := r.config.Loader(ctx)
	if err != nil {
		r.jobError("load_error")
		return nil, fmt.Errorf("load profiles: %w", err)
	}

	run, err := r.engine.Run(ctx, profiles)
	if err != nil {
		r.jobError("build_error")
		return nil, err
	}

	publishErr := r.engine.Publish(ctx, run, r.config.Sinks...)
	if publishErr != nil {
		r.jobError("publish_error")
	}

	r.mu.Lock()
	r.latest = run
	r.mu.Unlock()

	return run, publishErr
}

func (r *Runner) jobError(errorType string) {
	if r.config.JobMetrics != nil {
		r.config.JobMetrics.IncJobErrors(jobs.JobTypeMatchRun, errorType)
	}
}

// Latest returns the most recent completed run.
func (r *Runner) Latest() (*Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.latest == nil {
		return nil, ErrNoRun
	}
	return r.latest, nil
}

// DefaultRefreshTimeout bounds a single scheduled run.
const DefaultRefreshTimeout = 5 * time.Minute

// RefreshJobConfig configures periodic recomputation.
type RefreshJobConfig struct {
	// Interval is the duration between runs.
	Interval time.Duration
	// Timeout for each run.
	Timeout time.Duration
	// Logger for job activity.
	Logger *slog.Logger
	// JobMetrics records each scheduled tick.
	JobMetrics JobMetrics
}

// RefreshJob periodically re-runs matching so results follow changes to the dataset.
type RefreshJob struct {
	config RefreshJobConfig
	runner *Runner

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewRefreshJob creates a refresh job. The interval must be positive.
func NewRefreshJob(config RefreshJobConfig, runner *Runner) *RefreshJob {
	if config.Timeout == 0 {
		config.Timeout = DefaultRefreshTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &RefreshJob{config: config, runner: runner}
}

// Start begins the periodic job.
// Returns immediately; the job runs in a background goroutine.
func (j *RefreshJob) Start(ctx context.Context) error {
	if j.config.Interval <= 0 {
		return fmt.Errorf("refresh interval must be positive, got %s", j.config.Interval)
	}

	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})
	j.mu.Unlock()

	go j.run(ctx)
	return nil
}

// Stop signals the job to stop and waits for it to finish.
func (j *RefreshJob) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	stopCh := j.stopCh
	doneCh := j.doneCh
	j.mu.Unlock()

	close(stopCh)
	<-doneCh

	j.mu.Lock()
	j.running = false
	j.mu.Unlock()
}

// IsRunning returns whether the job is currently running.
func (j *RefreshJob) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

func (j *RefreshJob) run(ctx context.Context) {
	defer close(j.doneCh)

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.config.Logger.Info("match refresh job stopping due to context cancellation")
			return
		case <-j.stopCh:
			j.config.Logger.Info("match refresh job stopping due to stop signal")
			return
		case <-ticker.C:
			j.refresh(ctx)
		}
	}
}

func (j *RefreshJob) refresh(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, j.config.Timeout)
	defer cancel()

	status := jobs.StatusSuccess
	run, err := j.runner.RunOnce(ctx)
	switch {
	case run == nil:
		status = jobs.StatusFailure
		j.config.Logger.Error("scheduled matching run failed", "error", err)
	case err != nil:
		j.config.Logger.Warn("scheduled matching run published partially", "run_id", run.ID, "error", err)
	}
	if j.config.JobMetrics != nil {
		j.config.JobMetrics.IncJobsTotal(jobs.JobTypeMatchRefresh, status)
	}
}
