package insights

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/onnwee/foundermatch/internal/match"
)

// Notice is a user-visible message about a missing or unreadable artifact.
type Notice struct {
	Artifact string `json:"artifact"`
	Message  string `json:"message"`
}

// CheckArtifact returns a notice when the file at path cannot be used, or nil when it
// is a readable regular file. An empty path means the artifact is not configured.
func CheckArtifact(name, path string) *Notice {
	if path == "" {
		return &Notice{Artifact: name, Message: fmt.Sprintf("%s is not configured", name)}
	}
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return &Notice{Artifact: name, Message: fmt.Sprintf("%s not found at %s", name, path)}
	case err != nil:
		return &Notice{Artifact: name, Message: fmt.Sprintf("%s failed to load: %v", name, err)}
	case info.IsDir():
		return &Notice{Artifact: name, Message: fmt.Sprintf("%s at %s is a directory", name, path)}
	}
	return nil
}

// HeatmapArtifact names the rendered score matrix image.
const HeatmapArtifact = "heatmap"

// Report summarizes a run for the insights view.
type Report struct {
	RunID               string         `json:"run_id"`
	ComputedAt          time.Time      `json:"computed_at"`
	Founders            int            `json:"founders"`
	Providers           int            `json:"providers"`
	FounderHistogram    []Bin          `json:"founder_histogram"`
	ProviderHistogram   []Bin          `json:"provider_histogram"`
	IndustryAlignment   []GroupRate    `json:"industry_alignment"`
	AverageScoreByStage []GroupAverage `json:"average_score_by_stage"`
	Notices             []Notice       `json:"notices,omitempty"`
}

// BuildReport computes the insights for a run from its top-K tables.
// heatmapPath is checked for presence only; a missing image adds a notice.
func BuildReport(run *match.Run, heatmapPath string) Report {
	founderRows := run.FounderTopK.Rows()
	providerRows := run.ProviderTopK.Rows()

	r := Report{
		RunID:               run.ID,
		ComputedAt:          run.StartedAt,
		Founders:            len(run.Founders),
		Providers:           len(run.Providers),
		FounderHistogram:    Histogram(founderRows, DefaultHistogramBins),
		ProviderHistogram:   Histogram(providerRows, DefaultHistogramBins),
		IndustryAlignment:   IndustryAlignmentRate(founderRows, run.Directory),
		AverageScoreByStage: AverageScoreByStage(founderRows, run.Directory),
	}
	if n := CheckArtifact(HeatmapArtifact, heatmapPath); n != nil {
		r.Notices = append(r.Notices, *n)
	}
	return r
}
