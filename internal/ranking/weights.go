package ranking

import (
	"fmt"
	"math"
	"strings"

	"github.com/onnwee/foundermatch/internal/profile"
	"github.com/onnwee/foundermatch/internal/similarity"
)

// ReasonSeparator joins reason clauses. Downstream filters search the joined text.
const ReasonSeparator = "; "

// Reason clause text. Filters and insights match on these literals.
const (
	ClauseIndustryAligned    = "Industry aligned"
	ClauseIndustryDifferent  = "Different industry"
	ClauseProjectTypeFits    = "Project type fits"
	ClauseProjectTypePartial = "Partial project type fit"
	clauseSkillMatchFormat   = "Skill match: %d%%"
	clauseTimelineFitFormat  = "Timeline fit: %d%%"
	clauseStageMatchFormat   = "Stage match: %d%%"
	numClauses               = 5
)

// Result is the score and explanation for one founder/provider pair.
type Result struct {
	Score   float64
	Clauses []string
}

// Reason joins the clauses in evaluation order.
func (r Result) Reason() string {
	return strings.Join(r.Clauses, ReasonSeparator)
}

// Scorer computes pair scores from a fixed weight configuration.
// It holds no mutable state and is safe for concurrent use.
type Scorer struct {
	weights    Weights
	similarity similarity.Func
}

// NewScorer creates a scorer. Nil weights use DefaultWeights and a nil similarity
// function uses similarity.PartialRatio.
func NewScorer(weights *Weights, sim similarity.Func) *Scorer {
	if weights == nil {
		weights = DefaultWeights()
	}
	if sim == nil {
		sim = similarity.PartialRatio
	}
	return &Scorer{
		weights:    *weights,
		similarity: sim,
	}
}

// Weights returns a copy of the scorer's weights.
func (s *Scorer) Weights() Weights {
	return s.weights
}

// Score rates how well a provider fits a founder.
//
// Dimensions are evaluated in a fixed order: industry, skill, project type, timeline, stage.
// Exact-match dimensions compare strings verbatim, so two empty values count as a match.
// Fuzzy dimensions score 0 when either side is empty.
// The total is rounded to two decimals.
func (s *Scorer) Score(founder, provider profile.Profile) Result {
	w := s.weights
	score := 0.0
	clauses := make([]string, 0, numClauses)

	if founder.Industry == provider.IndustryPreference {
		score += w.Industry
		clauses = append(clauses, ClauseIndustryAligned)
	} else {
		score += w.IndustryPartial
		clauses = append(clauses, ClauseIndustryDifferent)
	}

	skill := s.similarity(founder.TechRequirement, provider.CoreSkill)
	score += scaled(skill, w.Skill)
	clauses = append(clauses, fmt.Sprintf(clauseSkillMatchFormat, skill))

	if founder.ProjectNeed == provider.PreferredProjectType {
		score += w.ProjectType
		clauses = append(clauses, ClauseProjectTypeFits)
	} else {
		score += w.ProjectTypePartial
		clauses = append(clauses, ClauseProjectTypePartial)
	}

	timeline := s.similarity(founder.ProjectDeadline, provider.Availability)
	score += scaled(timeline, w.Timeline)
	clauses = append(clauses, fmt.Sprintf(clauseTimelineFitFormat, timeline))

	stage := s.similarity(founder.StartupStage, provider.ExpertiseArea)
	score += scaled(stage, w.Stage)
	clauses = append(clauses, fmt.Sprintf(clauseStageMatchFormat, stage))

	return Result{
		Score:   Round2(score),
		Clauses: clauses,
	}
}

// scaled converts a 0..100 similarity into its share of weight.
func scaled(ratio int, weight float64) float64 {
	return float64(ratio) / 100 * weight
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
