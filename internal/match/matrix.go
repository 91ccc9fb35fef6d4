// Package match builds the founder/provider score matrix and runs complete matching passes.
package match

import (
	"context"
	"sync"

	"github.com/onnwee/foundermatch/internal/profile"
	"github.com/onnwee/foundermatch/internal/ranking"
)

// PairScorer scores one founder against one provider.
// *ranking.Scorer satisfies it.
type PairScorer interface {
	Score(founder, provider profile.Profile) ranking.Result
}

// Matrix is the dense founders × providers score grid.
// Rows follow founder input order and columns follow provider input order.
type Matrix struct {
	FounderIDs     []string    `cbor:"founder_ids" json:"founder_ids"`
	ProviderIDs    []string    `cbor:"provider_ids" json:"provider_ids"`
	FounderLabels  []string    `cbor:"founder_labels" json:"founder_labels"`
	ProviderLabels []string    `cbor:"provider_labels" json:"provider_labels"`
	Scores         [][]float64 `cbor:"scores" json:"scores"`

	clauses [][][]string
}

// BuildOptions tunes matrix construction.
type BuildOptions struct {
	// Workers is the number of goroutines scoring rows. Values below 1 mean 1.
	Workers int
	// Directory resolves display labels. Nil labels every entity by its id.
	Directory *profile.Directory
}

// BuildMatrix scores every (founder, provider) pair exactly once.
//
// Work is sharded by founder row across opts.Workers goroutines. Each worker writes only
// the rows it owns, so the result is identical to a sequential build. An empty side
// yields an empty matrix. If ctx is cancelled, no further rows are scheduled and the
// context error is returned.
func BuildMatrix(ctx context.Context, founders, providers []profile.Profile, scorer PairScorer, opts BuildOptions) (*Matrix, error) {
	founderIDs, providerIDs := ids(founders), ids(providers)
	m := &Matrix{
		FounderIDs:     founderIDs,
		ProviderIDs:    providerIDs,
		FounderLabels:  opts.Directory.ResolveAll(founderIDs),
		ProviderLabels: opts.Directory.ResolveAll(providerIDs),
		Scores:         make([][]float64, len(founders)),
		clauses:        make([][][]string, len(founders)),
	}
	if len(founders) == 0 || len(providers) == 0 {
		for i := range m.Scores {
			m.Scores[i] = []float64{}
			m.clauses[i] = [][]string{}
		}
		return m, nil
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(founders) {
		workers = len(founders)
	}

	scoreRow := func(i int) {
		scores := make([]float64, len(providers))
		clauses := make([][]string, len(providers))
		for j := range providers {
			r := scorer.Score(founders[i], providers[j])
			scores[j] = r.Score
			clauses[j] = r.Clauses
		}
		m.Scores[i] = scores
		m.clauses[i] = clauses
	}

	rows := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range rows {
				scoreRow(i)
			}
		}()
	}

	var err error
schedule:
	for i := range founders {
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break schedule
		case rows <- i:
		}
	}
	close(rows)
	wg.Wait()

	if err != nil {
		return nil, err
	}
	return m, nil
}

// NumFounders returns the number of rows.
func (m *Matrix) NumFounders() int { return len(m.FounderIDs) }

// NumProviders returns the number of columns.
func (m *Matrix) NumProviders() int { return len(m.ProviderIDs) }

// Empty reports whether the matrix has no cells.
func (m *Matrix) Empty() bool { return m.NumFounders() == 0 || m.NumProviders() == 0 }

// At returns the score of founder row i against provider column j.
func (m *Matrix) At(i, j int) float64 { return m.Scores[i][j] }

// FounderRows returns founder→provider matches in row-major order.
func (m *Matrix) FounderRows() []ranking.Match {
	rows := make([]ranking.Match, 0, m.NumFounders()*m.NumProviders())
	for i, fid := range m.FounderIDs {
		for j, pid := range m.ProviderIDs {
			rows = append(rows, m.match(fid, pid, i, j))
		}
	}
	return rows
}

// ProviderRows returns provider→founder matches in column-major order:
// for each provider, founders in input order.
func (m *Matrix) ProviderRows() []ranking.Match {
	rows := make([]ranking.Match, 0, m.NumFounders()*m.NumProviders())
	for j, pid := range m.ProviderIDs {
		for i, fid := range m.FounderIDs {
			rows = append(rows, m.match(pid, fid, i, j))
		}
	}
	return rows
}

func (m *Matrix) match(subject, counterpart string, i, j int) ranking.Match {
	var clauses []string
	if i < len(m.clauses) && j < len(m.clauses[i]) {
		clauses = m.clauses[i][j]
	}
	return ranking.Match{
		SubjectID:     subject,
		CounterpartID: counterpart,
		Score:         m.Scores[i][j],
		Clauses:       clauses,
	}
}

func ids(ps []profile.Profile) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}
