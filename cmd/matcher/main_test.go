package main

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/foundermatch/internal/auth"
	"github.com/onnwee/foundermatch/internal/config"
	"github.com/onnwee/foundermatch/internal/export"
)

func TestIssueOperatorToken(t *testing.T) {
	if _, err := issueOperatorToken(&config.Config{}, "ops", time.Minute); !errors.Is(err, errNoOperatorSecret) {
		t.Errorf("error = %v, want errNoOperatorSecret", err)
	}

	secret := "an-operator-secret-of-at-least-32-chars"
	token, err := issueOperatorToken(&config.Config{OperatorSecret: secret}, "ops@foundermatch", time.Minute)
	if err != nil {
		t.Fatalf("issueOperatorToken() error = %v", err)
	}
	claims, err := auth.NewOperatorTokens(secret, "").Validate(token, auth.ScopeRunsWrite)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if claims.Subject != "ops@foundermatch" {
		t.Errorf("subject = %q", claims.Subject)
	}
}

const dataset = `user_id,name,startup_industry,tech_requirement,project_need,project_deadline,startup_stage,industry_preference,core_skill,preferred_project_type,availability,expertise_area
F001,Ada,Fintech,Python,MVP,3 months,Seed,,,,,
S001,Grace,,,,,,Fintech,Python,MVP,3 months,Seed
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.csv")
	if err := os.WriteFile(path, []byte(dataset), 0o600); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
	return &config.Config{
		ProfilesPath:   path,
		OutputDir:      filepath.Join(dir, "out"),
		TopK:           5,
		Workers:        1,
		FounderPrefix:  "F",
		ProviderPrefix: "S",
	}
}

func TestRun(t *testing.T) {
	cfg := testConfig(t)
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	if code := run(cfg, logger); code != 0 {
		t.Fatalf("run() = %d, want 0; logs:\n%s", code, logs.String())
	}
	for _, name := range []string{export.FounderMatchesFile, export.ProviderMatchesFile, export.MatrixFile} {
		if _, err := os.Stat(filepath.Join(cfg.OutputDir, name)); err != nil {
			t.Errorf("expected output %s: %v", name, err)
		}
	}
	if !strings.Contains(logs.String(), "matcher finished") {
		t.Errorf("missing completion log:\n%s", logs.String())
	}
}

func TestRun_OutputDirNotWritable(t *testing.T) {
	cfg := testConfig(t)
	if err := os.WriteFile(cfg.OutputDir, []byte("a file, not a directory"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	if code := run(cfg, logger); code != 1 {
		t.Fatalf("run() = %d, want 1", code)
	}
	if !strings.Contains(logs.String(), "failed to write result files") {
		t.Errorf("missing write failure log:\n%s", logs.String())
	}
	if strings.Contains(logs.String(), "matcher finished") {
		t.Errorf("run reported success:\n%s", logs.String())
	}
}

func TestRun_MissingProfiles(t *testing.T) {
	cfg := testConfig(t)
	cfg.ProfilesPath = filepath.Join(t.TempDir(), "missing.csv")
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	if code := run(cfg, logger); code != 1 {
		t.Errorf("run() = %d, want 1", code)
	}
}
