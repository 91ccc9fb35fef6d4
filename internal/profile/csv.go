package profile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Profile dataset errors.
var (
	ErrMissingColumn = errors.New("missing required column")
	ErrEmptyDataset  = errors.New("dataset has no header row")
)

// Column names of the profile dataset.
const (
	ColumnUserID               = "user_id"
	ColumnName                 = "name"
	ColumnStartupIndustry      = "startup_industry"
	ColumnIndustry             = "industry"
	ColumnTechRequirement      = "tech_requirement"
	ColumnProjectNeed          = "project_need"
	ColumnProjectDeadline      = "project_deadline"
	ColumnStartupStage         = "startup_stage"
	ColumnIndustryPreference   = "industry_preference"
	ColumnCoreSkill            = "core_skill"
	ColumnPreferredProjectType = "preferred_project_type"
	ColumnAvailability         = "availability"
	ColumnExpertiseArea        = "expertise_area"
)

// LoadCSV reads a profile dataset from a file.
func LoadCSV(path string) ([]Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open profile dataset: %w", err)
	}
	defer f.Close()

	profiles, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile dataset %s: %w", path, err)
	}
	return profiles, nil
}

// ReadCSV parses a profile dataset. Only user_id is required; any other absent column
// or blank cell becomes an empty attribute. Rows without a user_id are skipped.
func ReadCSV(r io.Reader) ([]Profile, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrEmptyDataset
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, exists := index[key]; !exists {
			index[key] = i
		}
	}
	if _, ok := index[ColumnUserID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, ColumnUserID)
	}

	var profiles []Profile
	skipped := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}

		cell := func(column string) string {
			i, ok := index[column]
			if !ok || i >= len(record) {
				return ""
			}
			return normalizeCell(record[i])
		}

		id := cell(ColumnUserID)
		if id == "" {
			skipped++
			continue
		}

		industry := cell(ColumnStartupIndustry)
		if industry == "" {
			industry = cell(ColumnIndustry)
		}

		profiles = append(profiles, Profile{
			ID:                   id,
			Name:                 cell(ColumnName),
			Industry:             industry,
			TechRequirement:      cell(ColumnTechRequirement),
			ProjectNeed:          cell(ColumnProjectNeed),
			ProjectDeadline:      cell(ColumnProjectDeadline),
			StartupStage:         cell(ColumnStartupStage),
			IndustryPreference:   cell(ColumnIndustryPreference),
			CoreSkill:            cell(ColumnCoreSkill),
			PreferredProjectType: cell(ColumnPreferredProjectType),
			Availability:         cell(ColumnAvailability),
			ExpertiseArea:        cell(ColumnExpertiseArea),
		})
	}

	if skipped > 0 {
		slog.Warn("skipped profile rows without user_id", "count", skipped)
	}

	return profiles, nil
}

// normalizeCell trims whitespace and maps spreadsheet null markers to the empty string.
func normalizeCell(s string) string {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "nan", "null":
		return ""
	}
	return s
}
