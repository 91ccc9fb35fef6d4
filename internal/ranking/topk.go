package ranking

import (
	"slices"
	"strings"
)

// DefaultTopK is the number of counterparts kept per subject.
const DefaultTopK = 5

// Match is one scored pairing seen from the subject's side.
// Clauses are shared between both directions of a pair and must not be modified.
type Match struct {
	SubjectID     string   `json:"subject_id"`
	CounterpartID string   `json:"counterpart_id"`
	Score         float64  `json:"match_score"`
	Clauses       []string `json:"-"`
}

// Reason joins the clauses in evaluation order.
func (m Match) Reason() string {
	return strings.Join(m.Clauses, ReasonSeparator)
}

// NewMatch builds a Match from a scorer result.
func NewMatch(subjectID, counterpartID string, r Result) Match {
	return Match{
		SubjectID:     subjectID,
		CounterpartID: counterpartID,
		Score:         r.Score,
		Clauses:       r.Clauses,
	}
}

// TopKTable holds each subject's best matches, highest score first.
// Subjects are kept in the order they first appeared in the input rows.
type TopKTable struct {
	K        int
	subjects []string
	matches  map[string][]Match
}

// SelectTopK groups rows by subject and keeps the k highest-scoring rows of each group.
// Sorting is stable: rows with equal scores keep their input order, so the first
// encountered pair ranks higher. k <= 0 falls back to DefaultTopK.
func SelectTopK(rows []Match, k int) *TopKTable {
	if k <= 0 {
		k = DefaultTopK
	}

	table := &TopKTable{
		K:       k,
		matches: make(map[string][]Match),
	}

	groups := make(map[string][]Match)
	for _, row := range rows {
		if _, seen := groups[row.SubjectID]; !seen {
			table.subjects = append(table.subjects, row.SubjectID)
		}
		groups[row.SubjectID] = append(groups[row.SubjectID], row)
	}

	for _, subject := range table.subjects {
		group := groups[subject]
		slices.SortStableFunc(group, func(a, b Match) int {
			switch {
			case a.Score > b.Score:
				return -1
			case a.Score < b.Score:
				return 1
			default:
				return 0
			}
		})
		if len(group) > k {
			group = group[:k:k]
		}
		table.matches[subject] = group
	}

	return table
}

// Subjects returns subject IDs in first-appearance order.
func (t *TopKTable) Subjects() []string {
	return slices.Clone(t.subjects)
}

// For returns a copy of the ranked matches for a subject, or nil if it has none.
func (t *TopKTable) For(subject string) []Match {
	m, ok := t.matches[subject]
	if !ok {
		return nil
	}
	return slices.Clone(m)
}

// Len returns the number of subjects in the table.
func (t *TopKTable) Len() int {
	return len(t.subjects)
}

// Rows flattens the table subject-major, each subject's matches in rank order.
func (t *TopKTable) Rows() []Match {
	var rows []Match
	for _, subject := range t.subjects {
		rows = append(rows, t.matches[subject]...)
	}
	return rows
}
