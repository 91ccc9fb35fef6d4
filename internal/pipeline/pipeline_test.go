package pipeline

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/foundermatch/internal/artifact"
	"github.com/onnwee/foundermatch/internal/config"
	"github.com/onnwee/foundermatch/internal/export"
	"github.com/onnwee/foundermatch/internal/jobs"
	"github.com/onnwee/foundermatch/internal/match"
)

const dataset = `user_id,name,startup_industry,tech_requirement,project_need,project_deadline,startup_stage,industry_preference,core_skill,preferred_project_type,availability,expertise_area
F001,Ada,Fintech,Python,MVP,3 months,Seed,,,,,
F002,Lin,Health,Go,Audit,1 month,Series A,,,,,
S001,Grace,,,,,,Fintech,Python,MVP,3 months,Seed
S002,,,,,,,Health,Rust,MVP,6 months,Growth
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.csv")
	require.NoError(t, os.WriteFile(path, []byte(dataset), 0o600))
	return &config.Config{
		ProfilesPath:   path,
		OutputDir:      filepath.Join(dir, "out"),
		TopK:           5,
		Workers:        2,
		FounderPrefix:  "F",
		ProviderPrefix: "S",
	}
}

func testDeps() Deps {
	return Deps{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestNew_FilesOnly(t *testing.T) {
	cfg := testConfig(t)
	reg := prometheus.NewRegistry()
	jobMetrics := jobs.NewMetrics()
	require.NoError(t, jobMetrics.Register(reg))
	matchMetrics := match.NewMetrics()
	require.NoError(t, matchMetrics.Register(reg))

	deps := testDeps()
	deps.JobMetrics = jobMetrics
	deps.MatchMetrics = matchMetrics

	p, err := New(context.Background(), cfg, deps)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, p.Close()) })

	require.Nil(t, p.DB)
	require.Nil(t, p.Store)
	require.Nil(t, p.Cache)
	require.Nil(t, p.Uploader)

	run, err := p.Runner.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, run.Founders, 2)
	require.Len(t, run.Providers, 2)

	for _, path := range p.Files.Paths() {
		require.FileExists(t, path)
	}

	f, err := os.Open(filepath.Join(cfg.OutputDir, export.MatrixFile))
	require.NoError(t, err)
	defer f.Close()
	runID, m, err := export.DecodeMatrix(f)
	require.NoError(t, err)
	require.Equal(t, run.ID, runID)
	require.Equal(t, []string{"Ada", "Lin"}, m.FounderLabels)
	require.Equal(t, 100.0, m.Scores[0][0])

	latest, err := p.Runner.Latest()
	require.NoError(t, err)
	require.Equal(t, run.ID, latest.ID)
}

func TestNew_MissingProfiles(t *testing.T) {
	cfg := testConfig(t)
	cfg.ProfilesPath = filepath.Join(t.TempDir(), "missing.csv")

	p, err := New(context.Background(), cfg, testDeps())
	require.NoError(t, err)

	_, err = p.Runner.RunOnce(context.Background())
	require.Error(t, err)
	_, err = p.Runner.Latest()
	require.ErrorIs(t, err, match.ErrNoRun)
}

func TestNew_BadCalibrationFallsBack(t *testing.T) {
	cfg := testConfig(t)
	cfg.CalibrationPath = filepath.Join(t.TempDir(), "weights.json")
	require.NoError(t, os.WriteFile(cfg.CalibrationPath, []byte("{not json"), 0o600))

	p, err := New(context.Background(), cfg, testDeps())
	require.NoError(t, err)

	run, err := p.Runner.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 100.0, run.Matrix.Scores[0][0])
}

func TestNew_OptionalSinks(t *testing.T) {
	cfg := testConfig(t)
	cfg.RedisURL = "redis://localhost:6379/0"
	cfg.S3Bucket = "results"
	cfg.S3AccessKeyID = "key"
	cfg.S3SecretAccessKey = "secret"
	cfg.S3Endpoint = "http://localhost:9000"
	cfg.S3Prefix = "foundermatch"

	p, err := New(context.Background(), cfg, testDeps())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	require.NotNil(t, p.Redis)
	require.NotNil(t, p.Cache)
	require.NotNil(t, p.Uploader)
	require.Equal(t, "results", p.Uploader.Bucket())

	key, err := p.Uploader.ObjectKey("run-1", artifact.ManifestFile)
	require.NoError(t, err)
	require.Equal(t, "foundermatch/runs/run-1/run.json", key)
}

func TestNew_InvalidRedisURL(t *testing.T) {
	cfg := testConfig(t)
	cfg.RedisURL = "http://not-redis"

	_, err := New(context.Background(), cfg, testDeps())
	require.Error(t, err)
}
