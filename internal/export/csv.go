// Package export writes match results as CSV tables and a CBOR matrix artifact.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/onnwee/foundermatch/internal/match"
	"github.com/onnwee/foundermatch/internal/ranking"
)

// Output file names inside the export directory.
const (
	FounderMatchesFile  = "founder_top_matches.csv"
	ProviderMatchesFile = "provider_top_matches.csv"
	MatrixFile          = "match_matrix.cbor"
)

// Header returns the CSV header for a direction.
func Header(d match.Direction) ([]string, error) {
	switch d {
	case match.FounderToProvider:
		return []string{"founder_id", "provider_id", "match_score", "reason"}, nil
	case match.ProviderToFounder:
		return []string{"provider_id", "founder_id", "match_score", "reason"}, nil
	default:
		return nil, fmt.Errorf("unknown match direction %q", d)
	}
}

// WriteMatchesCSV writes a top-K table subject-major, each subject's rows in rank order.
// Scores are written with two decimals.
func WriteMatchesCSV(w io.Writer, d match.Direction, table *ranking.TopKTable) error {
	header, err := Header(d)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if table != nil {
		for _, m := range table.Rows() {
			record := []string{
				m.SubjectID,
				m.CounterpartID,
				FormatScore(m.Score),
				m.Reason(),
			}
			if err := cw.Write(record); err != nil {
				return fmt.Errorf("failed to write row for %s: %w", m.SubjectID, err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// FormatScore renders a score with exactly two decimals.
func FormatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', 2, 64)
}
