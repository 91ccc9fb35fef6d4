package ranking

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// ErrInvalidWeights is returned when a weight configuration cannot produce scores in [0, 100].
var ErrInvalidWeights = errors.New("invalid match weights")

// Weights holds the points each dimension contributes to a match score.
// Exact-match dimensions award the full weight on a match and the partial weight otherwise.
type Weights struct {
	Industry           float64 `json:"industry"`             // Full industry match (default: 25)
	IndustryPartial    float64 `json:"industry_partial"`     // Industry mismatch (default: 10)
	Skill              float64 `json:"skill"`                // Skill similarity at 100% (default: 25)
	ProjectType        float64 `json:"project_type"`         // Full project type match (default: 20)
	ProjectTypePartial float64 `json:"project_type_partial"` // Project type mismatch (default: 8)
	Timeline           float64 `json:"timeline"`             // Timeline similarity at 100% (default: 20)
	Stage              float64 `json:"stage"`                // Stage similarity at 100% (default: 10)
}

// CalibrationConfig represents the JSON structure of the weights file.
type CalibrationConfig struct {
	Version string          `json:"version"` // Config version for future compatibility
	Weights WeightOverrides `json:"weights"` // Weight configuration
}

// WeightOverrides is the weights section of a calibration file. A nil field keeps the
// default; an explicit 0 disables that contribution.
type WeightOverrides struct {
	Industry           *float64 `json:"industry"`
	IndustryPartial    *float64 `json:"industry_partial"`
	Skill              *float64 `json:"skill"`
	ProjectType        *float64 `json:"project_type"`
	ProjectTypePartial *float64 `json:"project_type_partial"`
	Timeline           *float64 `json:"timeline"`
	Stage              *float64 `json:"stage"`
}

// DefaultWeights returns the default match weight configuration.
//
// Formula: score = industry(25 | 10) + skill%*25 + project_type(20 | 8) + timeline%*20 + stage%*10
//   - Maximum score: 100
//   - Minimum score: 18 (both exact dimensions mismatch, all fuzzy dimensions at 0%)
func DefaultWeights() *Weights {
	return &Weights{
		Industry:           25,
		IndustryPartial:    10,
		Skill:              25,
		ProjectType:        20,
		ProjectTypePartial: 8,
		Timeline:           20,
		Stage:              10,
	}
}

// Max returns the highest score the weights can produce.
func (w *Weights) Max() float64 {
	return w.Industry + w.Skill + w.ProjectType + w.Timeline + w.Stage
}

// Min returns the lowest score the weights can produce.
func (w *Weights) Min() float64 {
	return w.IndustryPartial + w.ProjectTypePartial
}

// Validate checks that every weight is non-negative, that partial credit never exceeds
// full credit, and that the maximum score stays within 100.
func (w *Weights) Validate() error {
	values := map[string]float64{
		"industry":             w.Industry,
		"industry_partial":     w.IndustryPartial,
		"skill":                w.Skill,
		"project_type":         w.ProjectType,
		"project_type_partial": w.ProjectTypePartial,
		"timeline":             w.Timeline,
		"stage":                w.Stage,
	}
	for name, v := range values {
		if v < 0 {
			return fmt.Errorf("%w: %s must not be negative (got %.2f)", ErrInvalidWeights, name, v)
		}
	}
	if w.IndustryPartial > w.Industry {
		return fmt.Errorf("%w: industry_partial %.2f exceeds industry %.2f", ErrInvalidWeights, w.IndustryPartial, w.Industry)
	}
	if w.ProjectTypePartial > w.ProjectType {
		return fmt.Errorf("%w: project_type_partial %.2f exceeds project_type %.2f", ErrInvalidWeights, w.ProjectTypePartial, w.ProjectType)
	}
	if top := w.Max(); top > 100 {
		return fmt.Errorf("%w: maximum score %.2f exceeds 100", ErrInvalidWeights, top)
	}
	return nil
}

// LoadCalibration loads match weights from a JSON file.
// An empty path yields the defaults. If the file can't be read, parsed, or validated,
// the defaults are returned together with the error so callers can choose to continue.
// Partial configurations are merged with defaults.
func LoadCalibration(filePath string) (*Weights, error) {
	if filePath == "" {
		return DefaultWeights(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		slog.Warn("failed to read weights file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), fmt.Errorf("failed to read weights file: %w", err)
	}

	var config CalibrationConfig
	if err := json.Unmarshal(data, &config); err != nil {
		slog.Warn("failed to parse weights file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), fmt.Errorf("failed to parse weights file: %w", err)
	}

	defaults := DefaultWeights()
	merged := MergeCalibration(defaults, &config.Weights)
	if err := merged.Validate(); err != nil {
		slog.Warn("weights file rejected, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), err
	}
	logCalibrationOverrides(defaults, merged)

	return merged, nil
}

// MergeCalibration merges override weights into base weights.
// Only fields present in override are applied, so a file may set just the weights it changes.
func MergeCalibration(base *Weights, override *WeightOverrides) *Weights {
	if base == nil {
		return DefaultWeights()
	}

	result := *base
	if override == nil {
		return &result
	}

	apply := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	apply(&result.Industry, override.Industry)
	apply(&result.IndustryPartial, override.IndustryPartial)
	apply(&result.Skill, override.Skill)
	apply(&result.ProjectType, override.ProjectType)
	apply(&result.ProjectTypePartial, override.ProjectTypePartial)
	apply(&result.Timeline, override.Timeline)
	apply(&result.Stage, override.Stage)

	return &result
}

// logCalibrationOverrides logs which weights differ from the defaults.
func logCalibrationOverrides(defaults *Weights, loaded *Weights) {
	var overrides []string

	check := func(name string, from, to float64) {
		if from != to {
			overrides = append(overrides, fmt.Sprintf("%s: %.2f -> %.2f", name, from, to))
		}
	}
	check("industry", defaults.Industry, loaded.Industry)
	check("industry_partial", defaults.IndustryPartial, loaded.IndustryPartial)
	check("skill", defaults.Skill, loaded.Skill)
	check("project_type", defaults.ProjectType, loaded.ProjectType)
	check("project_type_partial", defaults.ProjectTypePartial, loaded.ProjectTypePartial)
	check("timeline", defaults.Timeline, loaded.Timeline)
	check("stage", defaults.Stage, loaded.Stage)

	if len(overrides) > 0 {
		slog.Info("loaded match weights with overrides",
			"overrides", overrides)
	} else {
		slog.Info("loaded match weights (using all defaults)")
	}
}
