package insights

import (
	"slices"
	"strings"

	"github.com/onnwee/foundermatch/internal/profile"
	"github.com/onnwee/foundermatch/internal/ranking"
)

// DefaultHistogramBins is the number of equal-width bins over [0, 100].
const DefaultHistogramBins = 20

// Bin is one histogram bucket. Lower is inclusive; Upper is exclusive except for the last bin.
type Bin struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

// Histogram counts scores into bins equal-width buckets over [0, 100].
// Scores outside the range are clamped into the first or last bucket.
// bins <= 0 uses DefaultHistogramBins.
func Histogram(rows []ranking.Match, bins int) []Bin {
	if bins <= 0 {
		bins = DefaultHistogramBins
	}
	width := 100.0 / float64(bins)

	out := make([]Bin, bins)
	for i := range out {
		out[i].Lower = float64(i) * width
		out[i].Upper = float64(i+1) * width
	}
	for _, row := range rows {
		i := int(row.Score / width)
		if i < 0 {
			i = 0
		}
		if i >= bins {
			i = bins - 1
		}
		out[i].Count++
	}
	return out
}

// GroupRate is the share of rows in a group that satisfy a condition.
type GroupRate struct {
	Group string  `json:"group"`
	Hits  int     `json:"hits"`
	Total int     `json:"total"`
	Rate  float64 `json:"rate"`
}

// GroupAverage is the mean score of rows in a group.
type GroupAverage struct {
	Group   string  `json:"group"`
	Count   int     `json:"count"`
	Average float64 `json:"average"`
}

// IndustryAlignmentRate groups founder→provider rows by the founder's industry and
// reports the fraction whose reason marks the industry as aligned.
// Founders missing from dir or without an industry are left out. Groups are sorted by name.
func IndustryAlignmentRate(rows []ranking.Match, dir *profile.Directory) []GroupRate {
	type acc struct{ hits, total int }
	groups := make(map[string]*acc)

	for _, row := range rows {
		founder, ok := dir.Get(row.SubjectID)
		if !ok || founder.Industry == "" {
			continue
		}
		a := groups[founder.Industry]
		if a == nil {
			a = &acc{}
			groups[founder.Industry] = a
		}
		a.total++
		if strings.Contains(row.Reason(), ranking.ClauseIndustryAligned) {
			a.hits++
		}
	}

	out := make([]GroupRate, 0, len(groups))
	for _, name := range sortedKeys(groups) {
		a := groups[name]
		out = append(out, GroupRate{
			Group: name,
			Hits:  a.hits,
			Total: a.total,
			Rate:  float64(a.hits) / float64(a.total),
		})
	}
	return out
}

// AverageScoreByStage groups founder→provider rows by the founder's startup stage and
// averages their scores. Founders missing from dir or without a stage are left out.
// Groups are sorted by name.
func AverageScoreByStage(rows []ranking.Match, dir *profile.Directory) []GroupAverage {
	type acc struct {
		sum   float64
		count int
	}
	groups := make(map[string]*acc)

	for _, row := range rows {
		founder, ok := dir.Get(row.SubjectID)
		if !ok || founder.StartupStage == "" {
			continue
		}
		a := groups[founder.StartupStage]
		if a == nil {
			a = &acc{}
			groups[founder.StartupStage] = a
		}
		a.sum += row.Score
		a.count++
	}

	out := make([]GroupAverage, 0, len(groups))
	for _, name := range sortedKeys(groups) {
		a := groups[name]
		out = append(out, GroupAverage{
			Group:   name,
			Count:   a.count,
			Average: ranking.Round2(a.sum / float64(a.count)),
		})
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
