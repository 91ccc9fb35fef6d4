package match

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/onnwee/foundermatch/internal/profile"
)

type fakeJobMetrics struct {
	mu     sync.Mutex
	totals map[string]int
	errors map[string]int
}

func newFakeJobMetrics() *fakeJobMetrics {
	return &fakeJobMetrics{totals: map[string]int{}, errors: map[string]int{}}
}

func (f *fakeJobMetrics) IncJobsTotal(jobType, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.totals[jobType+"/"+status]++
}

func (f *fakeJobMetrics) ObserveJobDuration(string, float64) {}

func (f *fakeJobMetrics) IncJobErrors(jobType, errorType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors[jobType+"/"+errorType]++
}

func staticLoader(profiles []profile.Profile) Loader {
	return func(context.Context) ([]profile.Profile, error) { return profiles, nil }
}

func TestRunner_RunOnceStoresLatest(t *testing.T) {
	jm := newFakeJobMetrics()
	sink := &recordingSink{name: "files"}
	runner := NewRunner(NewEngine(EngineConfig{Logger: quietLogger()}, nil), RunnerConfig{
		Loader:     staticLoader(collection()),
		Sinks:      []Sink{sink},
		Logger:     quietLogger(),
		JobMetrics: jm,
	})

	_, err := runner.Latest()
	require.ErrorIs(t, err, ErrNoRun)

	run, err := runner.RunOnce(context.Background())
	require.NoError(t, err)

	latest, err := runner.Latest()
	require.NoError(t, err)
	require.Same(t, run, latest)
	require.Equal(t, []string{run.ID}, sink.runs)
	require.Equal(t, 1, jm.totals["match_run/success"])
}

func TestRunner_SinkFailureKeepsRun(t *testing.T) {
	jm := newFakeJobMetrics()
	unavailable := errors.New("unavailable")
	files := &recordingSink{name: "files"}
	runner := NewRunner(NewEngine(EngineConfig{Logger: quietLogger()}, nil), RunnerConfig{
		Loader:     staticLoader(collection()),
		Sinks:      []Sink{files, &recordingSink{name: "s3", err: unavailable}},
		Logger:     quietLogger(),
		JobMetrics: jm,
	})

	run, err := runner.RunOnce(context.Background())
	require.NotNil(t, run)
	require.ErrorIs(t, err, ErrPublish)
	require.ErrorIs(t, err, unavailable)
	require.ErrorContains(t, err, "s3")
	require.Equal(t, []string{run.ID}, files.runs)

	latest, err := runner.Latest()
	require.NoError(t, err)
	require.Same(t, run, latest)
	require.Equal(t, 1, jm.totals["match_run/success"])
	require.Equal(t, 1, jm.errors["match_run/publish_error"])
}

func TestRunner_LoadFailure(t *testing.T) {
	jm := newFakeJobMetrics()
	runner := NewRunner(NewEngine(EngineConfig{Logger: quietLogger()}, nil), RunnerConfig{
		Loader: func(context.Context) ([]profile.Profile, error) {
			return nil, errors.New("disk gone")
		},
		Logger:     quietLogger(),
		JobMetrics: jm,
	})

	_, err := runner.RunOnce(context.Background())
	require.ErrorContains(t, err, "load profiles")
	require.Equal(t, 1, jm.totals["match_run/failure"])
	require.Equal(t, 1, jm.errors["match_run/load_error"])

	_, err = runner.Latest()
	require.ErrorIs(t, err, ErrNoRun)
}

func TestRunner_NoLoader(t *testing.T) {
	runner := NewRunner(NewEngine(EngineConfig{Logger: quietLogger()}, nil), RunnerConfig{})
	_, err := runner.RunOnce(context.Background())
	require.Error(t, err)
}

func TestCSVLoader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.csv")
	data := "user_id,name,startup_industry,industry_preference\nF001,Ada,Fintech,\nS001,Grace,,Fintech\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	profiles, err := CSVLoader(path)(context.Background())
	require.NoError(t, err)
	require.Len(t, profiles, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = CSVLoader(path)(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRefreshJob_StartStop(t *testing.T) {
	runner := NewRunner(NewEngine(EngineConfig{Logger: quietLogger()}, nil), RunnerConfig{
		Loader: staticLoader(collection()),
		Logger: quietLogger(),
	})
	jm := newFakeJobMetrics()
	job := NewRefreshJob(RefreshJobConfig{Interval: 20 * time.Millisecond, Logger: quietLogger(), JobMetrics: jm}, runner)

	require.False(t, job.IsRunning())
	require.NoError(t, job.Start(context.Background()))
	require.True(t, job.IsRunning())
	require.NoError(t, job.Start(context.Background()))

	require.Eventually(t, func() bool {
		_, err := runner.Latest()
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	job.Stop()
	require.False(t, job.IsRunning())
	job.Stop()

	jm.mu.Lock()
	defer jm.mu.Unlock()
	require.GreaterOrEqual(t, jm.totals["match_refresh/success"], 1)
}

func TestRefreshJob_RejectsNonPositiveInterval(t *testing.T) {
	job := NewRefreshJob(RefreshJobConfig{Logger: quietLogger()}, nil)
	require.Error(t, job.Start(context.Background()))
	require.False(t, job.IsRunning())
}
