package profile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleDataset = `user_id,name,startup_industry,tech_requirement,project_need,project_deadline,startup_stage,industry_preference,core_skill,preferred_project_type,availability,expertise_area
F001,Ada Labs,Fintech,Python backend,MVP,3 months,Seed,,,,,
F002,,Healthtech,nan,Scaling,6 months,Series A,,,,,
S001,Grace Consulting,,,,,,Fintech,Python backend,MVP,3 months,Seed
,Orphan,Fintech,,,,,,,,,
`

func TestReadCSV(t *testing.T) {
	profiles, err := ReadCSV(strings.NewReader(sampleDataset))
	if err != nil {
		t.Fatalf("ReadCSV returned error: %v", err)
	}

	if len(profiles) != 3 {
		t.Fatalf("expected 3 profiles (row without user_id skipped), got %d", len(profiles))
	}

	f := profiles[0]
	if f.ID != "F001" || f.Name != "Ada Labs" || f.Industry != "Fintech" ||
		f.TechRequirement != "Python backend" || f.ProjectNeed != "MVP" ||
		f.ProjectDeadline != "3 months" || f.StartupStage != "Seed" {
		t.Errorf("unexpected founder: %+v", f)
	}

	if profiles[1].TechRequirement != "" {
		t.Errorf("expected nan to be read as empty, got %q", profiles[1].TechRequirement)
	}

	s := profiles[2]
	if s.IndustryPreference != "Fintech" || s.CoreSkill != "Python backend" ||
		s.PreferredProjectType != "MVP" || s.Availability != "3 months" || s.ExpertiseArea != "Seed" {
		t.Errorf("unexpected provider: %+v", s)
	}
}

func TestReadCSV_MissingOptionalColumns(t *testing.T) {
	data := "User_ID , Industry\nF1,Edtech\nS1\n"

	profiles, err := ReadCSV(strings.NewReader(data))
	if err != nil {
		t.Fatalf("ReadCSV returned error: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(profiles))
	}
	if profiles[0].Industry != "Edtech" {
		t.Errorf("expected industry alias to be read, got %q", profiles[0].Industry)
	}
	if profiles[1].CoreSkill != "" || profiles[1].Industry != "" {
		t.Errorf("expected short row to yield empty attributes, got %+v", profiles[1])
	}
}

func TestReadCSV_Errors(t *testing.T) {
	if _, err := ReadCSV(strings.NewReader("")); !errors.Is(err, ErrEmptyDataset) {
		t.Errorf("expected ErrEmptyDataset, got %v", err)
	}
	if _, err := ReadCSV(strings.NewReader("name,industry\nAda,Fintech\n")); !errors.Is(err, ErrMissingColumn) {
		t.Errorf("expected ErrMissingColumn, got %v", err)
	}
}

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.csv")
	if err := os.WriteFile(path, []byte(sampleDataset), 0o600); err != nil {
		t.Fatalf("failed to write dataset: %v", err)
	}

	profiles, err := LoadCSV(path)
	if err != nil {
		t.Fatalf("LoadCSV returned error: %v", err)
	}
	if len(profiles) != 3 {
		t.Errorf("expected 3 profiles, got %d", len(profiles))
	}

	if _, err := LoadCSV(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Error("expected error for missing file")
	}
}
