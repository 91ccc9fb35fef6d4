package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"

	"github.com/onnwee/foundermatch/internal/match"
	"github.com/onnwee/foundermatch/internal/profile"
)

func testRun(t *testing.T) *match.Run {
	t.Helper()
	engine := match.NewEngine(match.EngineConfig{TopK: 2}, nil)
	run, err := engine.Run(context.Background(), []profile.Profile{
		{ID: "F001", Name: "Ada", Industry: "Fintech", TechRequirement: "Python backend", ProjectNeed: "MVP", ProjectDeadline: "3 months", StartupStage: "Seed"},
		{ID: "F002", Industry: "Edtech", TechRequirement: "React", ProjectNeed: "Audit", ProjectDeadline: "1 month", StartupStage: "Series A"},
		{ID: "S001", Name: "Grace", IndustryPreference: "Fintech", CoreSkill: "Python backend", PreferredProjectType: "MVP", Availability: "3 months", ExpertiseArea: "Seed"},
		{ID: "S002", IndustryPreference: "Edtech", CoreSkill: "React and Vue", PreferredProjectType: "MVP", Availability: "2 months", ExpertiseArea: "Growth"},
		{ID: "S003", IndustryPreference: "Healthtech", CoreSkill: "", PreferredProjectType: "", Availability: "", ExpertiseArea: ""},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return run
}

func TestWriteMatchesCSV(t *testing.T) {
	run := testRun(t)

	var buf bytes.Buffer
	if err := WriteMatchesCSV(&buf, match.FounderToProvider, run.FounderTopK); err != nil {
		t.Fatalf("WriteMatchesCSV() error = %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if got := strings.Join(records[0], ","); got != "founder_id,provider_id,match_score,reason" {
		t.Errorf("unexpected header %q", got)
	}
	if len(records) != 5 {
		t.Fatalf("expected header plus 4 rows, got %d records", len(records))
	}

	first := records[1]
	if first[0] != "F001" || first[1] != "S001" || first[2] != "100.00" {
		t.Errorf("unexpected first row %v", first)
	}
	if first[3] != "Industry aligned; Skill match: 100%; Project type fits; Timeline fit: 100%; Stage match: 100%" {
		t.Errorf("unexpected reason %q", first[3])
	}
	if records[3][0] != "F002" {
		t.Errorf("expected subject-major order, got %v", records[3])
	}
}

func TestWriteMatchesCSV_ProviderHeaderAndEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMatchesCSV(&buf, match.ProviderToFounder, nil); err != nil {
		t.Fatalf("WriteMatchesCSV() error = %v", err)
	}
	if got := buf.String(); got != "provider_id,founder_id,match_score,reason\n" {
		t.Errorf("unexpected output %q", got)
	}

	if err := WriteMatchesCSV(&buf, match.Direction("diagonal"), nil); err == nil {
		t.Error("expected error for unknown direction")
	}
}

func TestFormatScore(t *testing.T) {
	tests := map[float64]string{
		100:   "100.00",
		91.35: "91.35",
		18:    "18.00",
		0:     "0.00",
	}
	for in, want := range tests {
		if got := FormatScore(in); got != want {
			t.Errorf("FormatScore(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestMatrixArtifact(t *testing.T) {
	run := testRun(t)

	var buf bytes.Buffer
	if err := EncodeMatrix(&buf, run.ID, run.Matrix); err != nil {
		t.Fatalf("EncodeMatrix() error = %v", err)
	}

	runID, m, err := DecodeMatrix(&buf)
	if err != nil {
		t.Fatalf("DecodeMatrix() error = %v", err)
	}
	if runID != run.ID {
		t.Errorf("run id = %q, want %q", runID, run.ID)
	}
	if strings.Join(m.FounderLabels, ",") != "Ada,F002" {
		t.Errorf("unexpected founder labels %v", m.FounderLabels)
	}
	if strings.Join(m.ProviderLabels, ",") != "Grace,S002,S003" {
		t.Errorf("unexpected provider labels %v", m.ProviderLabels)
	}
	for i := range run.Matrix.Scores {
		for j := range run.Matrix.Scores[i] {
			if m.At(i, j) != run.Matrix.At(i, j) {
				t.Errorf("score[%d][%d] = %v, want %v", i, j, m.At(i, j), run.Matrix.At(i, j))
			}
		}
	}
}

func TestDecodeMatrix_Invalid(t *testing.T) {
	ragged, err := cbor.Marshal(matrixArtifact{
		Version: matrixVersion,
		Matrix: &match.Matrix{
			FounderIDs:     []string{"F001"},
			ProviderIDs:    []string{"S001", "S002"},
			FounderLabels:  []string{"F001"},
			ProviderLabels: []string{"S001", "S002"},
			Scores:         [][]float64{{1}},
		},
	})
	if err != nil {
		t.Fatalf("failed to marshal fixture: %v", err)
	}
	future, err := cbor.Marshal(matrixArtifact{Version: 99, Matrix: &match.Matrix{}})
	if err != nil {
		t.Fatalf("failed to marshal fixture: %v", err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"garbage", []byte{0xff, 0x00}},
		{"ragged row", ragged},
		{"unknown version", future},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeMatrix(bytes.NewReader(tt.data))
			if !errors.Is(err, ErrInvalidMatrix) {
				t.Errorf("expected ErrInvalidMatrix, got %v", err)
			}
		})
	}

	if err := EncodeMatrix(&bytes.Buffer{}, "run", nil); !errors.Is(err, ErrInvalidMatrix) {
		t.Errorf("expected ErrInvalidMatrix for nil matrix, got %v", err)
	}
}

func TestFileSink(t *testing.T) {
	run := testRun(t)
	dir := filepath.Join(t.TempDir(), "out")
	sink := NewFileSink(dir)

	if sink.Name() != "files" {
		t.Errorf("unexpected sink name %q", sink.Name())
	}
	if err := sink.Publish(context.Background(), run); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	for _, path := range sink.Paths() {
		info, err := os.Stat(path)
		if err != nil {
			t.Errorf("expected %s to exist: %v", path, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("expected %s to be non-empty", path)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("expected exactly 3 files with no temporaries left behind, got %d", len(entries))
	}

	data, err := os.ReadFile(filepath.Join(dir, ProviderMatchesFile))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.HasPrefix(string(data), "provider_id,founder_id,match_score,reason\n") {
		t.Errorf("unexpected provider file header: %q", string(data))
	}
}

func TestFileSink_OutputDirIsAFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	if err := os.WriteFile(dir, []byte("not a directory"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	err := NewFileSink(dir).Publish(context.Background(), testRun(t))
	if !errors.Is(err, ErrWriteFiles) {
		t.Fatalf("expected ErrWriteFiles, got %v", err)
	}
}
