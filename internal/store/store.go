// Package store persists match runs and their ranked results in Postgres.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/onnwee/foundermatch/internal/match"
	"github.com/onnwee/foundermatch/internal/ranking"
	"github.com/onnwee/foundermatch/internal/tracing"
)

// SinkName identifies the Postgres sink in logs and metrics.
const SinkName = "postgres"

// DefaultListLimit caps ListRuns when no limit is given.
const DefaultListLimit = 20

// ErrRunNotFound is returned when a run does not exist.
var ErrRunNotFound = errors.New("run not found")

// RunSummary describes a stored run without its results.
type RunSummary struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Founders   int       `json:"founders"`
	Providers  int       `json:"providers"`
	TopK       int       `json:"top_k"`
	SkippedIDs []string  `json:"skipped_ids"`
}

// Store writes runs to match_runs and match_results.
type Store struct {
	db        *sql.DB
	logger    *slog.Logger
	retention time.Duration
}

// New creates a Store. The schema in migrations/ must already be applied.
func New(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// WithRetention makes Publish delete runs that started more than d before the run
// being published. d <= 0 keeps every run.
func (s *Store) WithRetention(d time.Duration) *Store {
	s.retention = d
	return s
}

// Name implements match.Sink.
func (s *Store) Name() string { return SinkName }

// Publish implements match.Sink by saving the run and pruning expired runs.
// A failed prune is logged; the saved run is not rolled back.
func (s *Store) Publish(ctx context.Context, run *match.Run) error {
	if err := s.SaveRun(ctx, run); err != nil {
		return err
	}
	if s.retention > 0 {
		if _, err := s.DeleteRunsBefore(ctx, run.StartedAt.Add(-s.retention)); err != nil {
			s.logger.Warn("failed to prune old match runs", "run_id", run.ID, "error", err)
		}
	}
	return nil
}

// resultRow is one ranked match as stored.
type resultRow struct {
	direction match.Direction
	rank      int
	m         ranking.Match
}

// resultRows flattens both top-K tables, subject-major, ranks starting at 1.
func resultRows(run *match.Run) []resultRow {
	var rows []resultRow
	for _, d := range []match.Direction{match.FounderToProvider, match.ProviderToFounder} {
		table := run.Table(d)
		if table == nil {
			continue
		}
		for _, subject := range table.Subjects() {
			for i, m := range table.For(subject) {
				rows = append(rows, resultRow{direction: d, rank: i + 1, m: m})
			}
		}
	}
	return rows
}

// SaveRun inserts the run header and bulk-loads its ranked results in one transaction.
func (s *Store) SaveRun(ctx context.Context, run *match.Run) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "match_results", tracing.DBOperationCopy)
	defer func() { endSpan(err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	skipped := run.Skipped
	if skipped == nil {
		skipped = []string{}
	}
	topK := ranking.DefaultTopK
	if run.FounderTopK != nil {
		topK = run.FounderTopK.K
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO match_runs (id, started_at, duration_ms, founders, providers, top_k, skipped_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.StartedAt, run.Duration.Milliseconds(),
		len(run.Founders), len(run.Providers), topK, pq.Array(skipped))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("match_results",
		"run_id", "direction", "subject_id", "rank", "counterpart_id", "score", "reason"))
	if err != nil {
		return fmt.Errorf("prepare copy: %w", err)
	}

	rows := resultRows(run)
	for _, r := range rows {
		if _, err = stmt.ExecContext(ctx, run.ID, string(r.direction), r.m.SubjectID, r.rank,
			r.m.CounterpartID, r.m.Score, r.m.Reason()); err != nil {
			_ = stmt.Close()
			return fmt.Errorf("copy result row: %w", err)
		}
	}
	if _, err = stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return fmt.Errorf("flush copy: %w", err)
	}
	if err = stmt.Close(); err != nil {
		return fmt.Errorf("close copy: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}

	s.logger.Debug("stored match run",
		"run_id", run.ID,
		"rows", len(rows))
	return nil
}

const runColumns = `id, started_at, duration_ms, founders, providers, top_k, skipped_ids`

func scanRun(row interface{ Scan(...any) error }) (*RunSummary, error) {
	var r RunSummary
	if err := row.Scan(&r.ID, &r.StartedAt, &r.DurationMS, &r.Founders, &r.Providers,
		&r.TopK, pq.Array(&r.SkippedIDs)); err != nil {
		return nil, err
	}
	r.StartedAt = r.StartedAt.UTC()
	return &r, nil
}

// GetRun returns the summary of the run with id.
func (s *Store) GetRun(ctx context.Context, id string) (run *RunSummary, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "match_runs", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	run, err = scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM match_runs WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		// Malformed UUIDs fail the cast rather than matching nothing.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "22P02" {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// LatestRun returns the most recently started run.
func (s *Store) LatestRun(ctx context.Context) (run *RunSummary, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "match_runs", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	run, err = scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM match_runs ORDER BY started_at DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest run: %w", err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) (runs []RunSummary, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "match_runs", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM match_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Matches returns the ranked matches stored for subject in direction d of run runID,
// best first. A subject with no stored matches yields an empty slice; an unknown
// run yields ErrRunNotFound.
func (s *Store) Matches(ctx context.Context, runID string, d match.Direction, subject string) (matches []ranking.Match, err error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "match_results", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := s.db.QueryContext(ctx, `
		SELECT counterpart_id, score, reason
		FROM match_results
		WHERE run_id = $1 AND direction = $2 AND subject_id = $3
		ORDER BY rank`,
		runID, string(d), subject)
	if err != nil {
		return nil, fmt.Errorf("query matches: %w", err)
	}
	defer rows.Close()

	matches = []ranking.Match{}
	for rows.Next() {
		var (
			m      ranking.Match
			reason string
		)
		if err := rows.Scan(&m.CounterpartID, &m.Score, &reason); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		m.SubjectID = subject
		m.Clauses = splitReason(reason)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	return matches, nil
}

// DeleteRunsBefore removes runs started before cutoff along with their results.
func (s *Store) DeleteRunsBefore(ctx context.Context, cutoff time.Time) (n int64, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "match_runs", tracing.DBOperationDelete)
	defer func() { endSpan(err) }()

	res, err := s.db.ExecContext(ctx, `DELETE FROM match_runs WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete runs: %w", err)
	}
	n, err = res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		s.logger.Info("deleted old match runs", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

func splitReason(reason string) []string {
	if reason == "" {
		return nil
	}
	return strings.Split(reason, ranking.ReasonSeparator)
}
