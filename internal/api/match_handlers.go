package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/onnwee/foundermatch/internal/artifact"
	"github.com/onnwee/foundermatch/internal/cache"
	"github.com/onnwee/foundermatch/internal/export"
	"github.com/onnwee/foundermatch/internal/insights"
	"github.com/onnwee/foundermatch/internal/match"
	"github.com/onnwee/foundermatch/internal/profile"
	"github.com/onnwee/foundermatch/internal/ranking"
	"github.com/onnwee/foundermatch/internal/store"
)

// Sources a match response can be served from.
const (
	SourceMemory = "memory"
	SourceStore  = "store"
	SourceCache  = "cache"
)

// RunSource returns the newest completed run held in memory.
type RunSource interface {
	Latest() (*match.Run, error)
}

// RunHistory reads runs persisted by earlier processes.
type RunHistory interface {
	GetRun(ctx context.Context, id string) (*store.RunSummary, error)
	LatestRun(ctx context.Context) (*store.RunSummary, error)
	ListRuns(ctx context.Context, limit int) ([]store.RunSummary, error)
	Matches(ctx context.Context, runID string, d match.Direction, subject string) ([]ranking.Match, error)
}

// MatchCache reads the top-K tables published by the batch matcher.
type MatchCache interface {
	Matches(ctx context.Context, d match.Direction, subject string) ([]cache.Entry, string, error)
	Label(ctx context.Context, id string) (string, error)
}

// MatchHandlersConfig configures MatchHandlers. Only Runs is required.
type MatchHandlersConfig struct {
	Runs    RunSource
	History RunHistory
	Cache   MatchCache
	// HeatmapPath is the rendered score matrix image checked by the insights view.
	HeatmapPath string
	Logger      *slog.Logger
}

// MatchHandlers serves ranked matches, labels, the score matrix and insights.
type MatchHandlers struct {
	runs        RunSource
	history     RunHistory
	cache       MatchCache
	heatmapPath string
	logger      *slog.Logger
}

// NewMatchHandlers creates the read handlers.
func NewMatchHandlers(config MatchHandlersConfig) *MatchHandlers {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &MatchHandlers{
		runs:        config.Runs,
		history:     config.History,
		cache:       config.Cache,
		heatmapPath: config.HeatmapPath,
		logger:      config.Logger,
	}
}

// MatchView is one ranked counterpart of a subject.
type MatchView struct {
	Rank             int     `json:"rank"`
	CounterpartID    string  `json:"counterpart_id"`
	CounterpartLabel string  `json:"counterpart_label"`
	Score            float64 `json:"match_score"`
	Reason           string  `json:"reason"`
}

// MatchesResponse is the body of GET /api/v1/{founders|providers}/{id}/matches.
type MatchesResponse struct {
	RunID        string          `json:"run_id"`
	Source       string          `json:"source"`
	Direction    match.Direction `json:"direction"`
	SubjectID    string          `json:"subject_id"`
	SubjectLabel string          `json:"subject_label"`
	// Total counts the subject's ranked matches before filtering.
	Total   int               `json:"total"`
	Matches []MatchView       `json:"matches"`
	Notices []insights.Notice `json:"notices,omitempty"`
}

// SubjectView is one entry of a subject listing.
type SubjectView struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Matches int    `json:"matches"`
}

// SubjectsResponse is the body of GET /api/v1/founders and /api/v1/providers.
type SubjectsResponse struct {
	RunID     string          `json:"run_id"`
	Direction match.Direction `json:"direction"`
	Subjects  []SubjectView   `json:"subjects"`
}

// LabelResponse is the body of GET /api/v1/labels/{id}.
type LabelResponse struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// subjectRole is the role a subject of direction d must have.
func subjectRole(d match.Direction) profile.Role {
	if d == match.ProviderToFounder {
		return profile.RoleProvider
	}
	return profile.RoleFounder
}

// latest returns the in-memory run or writes a no_results error.
func (h *MatchHandlers) latest(w http.ResponseWriter, r *http.Request) (*match.Run, bool) {
	run, err := h.runs.Latest()
	if err != nil {
		writeErrorCode(w, r, ErrCodeNoResults, "No matching run has completed yet")
		return nil, false
	}
	return run, true
}

// Subjects handles GET /api/v1/founders and GET /api/v1/providers.
func (h *MatchHandlers) Subjects(d match.Direction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, ok := h.latest(w, r)
		if !ok {
			return
		}

		population := run.Founders
		if d == match.ProviderToFounder {
			population = run.Providers
		}
		table := run.Table(d)

		subjects := make([]SubjectView, 0, len(population))
		for _, p := range population {
			subjects = append(subjects, SubjectView{
				ID:      p.ID,
				Label:   run.Directory.Resolve(p.ID),
				Matches: len(table.For(p.ID)),
			})
		}
		writeJSON(w, r, http.StatusOK, SubjectsResponse{RunID: run.ID, Direction: d, Subjects: subjects})
	}
}

// Matches handles GET /api/v1/{founders|providers}/{id}/matches.
//
// Query parameters: industry (repeatable or comma-separated) keeps counterparts in
// those industries, q keeps rows whose reason contains it, and run_id reads a stored
// run instead of the latest one. Without an in-memory run the published cache is used.
func (h *MatchHandlers) Matches(d match.Direction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject := strings.TrimSpace(r.PathValue("id"))
		if subject == "" {
			writeErrorCode(w, r, ErrCodeValidation, "Subject id is required")
			return
		}
		query := r.URL.Query()
		filter := insights.Filter{
			Industries: queryList(query["industry"]),
			Query:      query.Get("q"),
		}

		latest, latestErr := h.runs.Latest()
		runID := query.Get("run_id")

		switch {
		case runID != "" && (latestErr != nil || runID != latest.ID):
			h.storedMatches(w, r, d, runID, subject, filter, latest)
		case latestErr == nil:
			h.memoryMatches(w, r, d, latest, subject, filter)
		case h.cache != nil:
			h.cachedMatches(w, r, d, subject, filter)
		default:
			writeErrorCode(w, r, ErrCodeNoResults, "No matching run has completed yet")
		}
	}
}

func (h *MatchHandlers) memoryMatches(w http.ResponseWriter, r *http.Request, d match.Direction, run *match.Run, subject string, filter insights.Filter) {
	p, ok := run.Directory.Get(subject)
	if !ok || p.Role != subjectRole(d) {
		writeErrorCode(w, r, ErrCodeNotFound, fmt.Sprintf("No %s with id %s", subjectRole(d), subject))
		return
	}

	rows := run.Table(d).For(subject)
	writeJSON(w, r, http.StatusOK, MatchesResponse{
		RunID:        run.ID,
		Source:       SourceMemory,
		Direction:    d,
		SubjectID:    subject,
		SubjectLabel: run.Directory.Resolve(subject),
		Total:        len(rows),
		Matches:      views(rows, filter.Apply(rows, run.Directory), run.Directory),
	})
}

// storedMatches serves a historical run. Labels and industries come from the latest
// in-memory run when there is one; otherwise ids are shown as-is.
func (h *MatchHandlers) storedMatches(w http.ResponseWriter, r *http.Request, d match.Direction, runID, subject string, filter insights.Filter, latest *match.Run) {
	if h.history == nil {
		writeErrorCode(w, r, ErrCodeNotFound, "Run history is not configured")
		return
	}

	rows, err := h.history.Matches(r.Context(), runID, d, subject)
	if errors.Is(err, store.ErrRunNotFound) {
		writeErrorCode(w, r, ErrCodeNotFound, fmt.Sprintf("Run %s not found", runID))
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to read stored matches",
			"run_id", runID, "subject_id", subject, "error", err)
		writeErrorCode(w, r, ErrCodeInternal, "Failed to read stored matches")
		return
	}

	var dir *profile.Directory
	if latest != nil {
		dir = latest.Directory
	}
	resp := MatchesResponse{
		RunID:        runID,
		Source:       SourceStore,
		Direction:    d,
		SubjectID:    subject,
		SubjectLabel: dir.Resolve(subject),
		Total:        len(rows),
	}
	if len(filter.Industries) > 0 && dir == nil {
		resp.Notices = append(resp.Notices, industryNotice())
		filter.Industries = nil
	}
	resp.Matches = views(rows, filter.Apply(rows, dir), dir)
	writeJSON(w, r, http.StatusOK, resp)
}

// cachedMatches serves the run published by the batch matcher. Industry filtering
// needs profile attributes the cache does not hold, so it is skipped with a notice.
func (h *MatchHandlers) cachedMatches(w http.ResponseWriter, r *http.Request, d match.Direction, subject string, filter insights.Filter) {
	entries, runID, err := h.cache.Matches(r.Context(), d, subject)
	switch {
	case errors.Is(err, cache.ErrMiss) && runID == "":
		writeErrorCode(w, r, ErrCodeNoResults, "No matching run has completed yet")
		return
	case errors.Is(err, cache.ErrMiss):
		writeErrorCode(w, r, ErrCodeNotFound, fmt.Sprintf("No %s with id %s", subjectRole(d), subject))
		return
	case err != nil:
		h.logger.ErrorContext(r.Context(), "failed to read cached matches",
			"subject_id", subject, "error", err)
		writeErrorCode(w, r, ErrCodeInternal, "Failed to read cached matches")
		return
	}

	label, err := h.cache.Label(r.Context(), subject)
	if err != nil {
		label = subject
	}

	resp := MatchesResponse{
		RunID:        runID,
		Source:       SourceCache,
		Direction:    d,
		SubjectID:    subject,
		SubjectLabel: label,
		Total:        len(entries),
		Matches:      make([]MatchView, 0, len(entries)),
	}
	if len(filter.Industries) > 0 {
		resp.Notices = append(resp.Notices, industryNotice())
	}
	q := strings.ToLower(strings.TrimSpace(filter.Query))
	for i, e := range entries {
		if q != "" && !strings.Contains(strings.ToLower(e.Reason), q) {
			continue
		}
		resp.Matches = append(resp.Matches, MatchView{
			Rank:             i + 1,
			CounterpartID:    e.CounterpartID,
			CounterpartLabel: e.CounterpartLabel,
			Score:            e.Score,
			Reason:           e.Reason,
		})
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func industryNotice() insights.Notice {
	return insights.Notice{
		Artifact: "industry_filter",
		Message:  "industry filter ignored: profile attributes are unavailable until a run completes in this process",
	}
}

// views renders kept rows with their rank among all rows of the subject.
func views(all, kept []ranking.Match, dir *profile.Directory) []MatchView {
	rank := make(map[string]int, len(all))
	for i, m := range all {
		rank[m.CounterpartID] = i + 1
	}
	out := make([]MatchView, 0, len(kept))
	for _, m := range kept {
		out = append(out, MatchView{
			Rank:             rank[m.CounterpartID],
			CounterpartID:    m.CounterpartID,
			CounterpartLabel: dir.Resolve(m.CounterpartID),
			Score:            m.Score,
			Reason:           m.Reason(),
		})
	}
	return out
}

// queryList flattens repeated and comma-separated values, dropping blanks.
func queryList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Label handles GET /api/v1/labels/{id}. It never fails: an unknown id is its own label.
func (h *MatchHandlers) Label(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	label := id

	if run, err := h.runs.Latest(); err == nil {
		label = run.Directory.Resolve(id)
	} else if h.cache != nil {
		if cached, err := h.cache.Label(r.Context(), id); err == nil {
			label = cached
		}
	}
	writeJSON(w, r, http.StatusOK, LabelResponse{ID: id, Label: label})
}

// Insights handles GET /api/v1/insights.
func (h *MatchHandlers) Insights(w http.ResponseWriter, r *http.Request) {
	run, ok := h.latest(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, insights.BuildReport(run, h.heatmapPath))
}

// MatrixResponse is the JSON body of GET /api/v1/matrix.
type MatrixResponse struct {
	RunID string `json:"run_id"`
	*match.Matrix
}

// Matrix handles GET /api/v1/matrix. The full score grid is returned as JSON, or as the
// CBOR artifact when format=cbor is given or the client accepts application/cbor.
func (h *MatchHandlers) Matrix(w http.ResponseWriter, r *http.Request) {
	run, ok := h.latest(w, r)
	if !ok {
		return
	}

	if r.URL.Query().Get("format") == "cbor" || strings.Contains(r.Header.Get("Accept"), artifact.ContentTypeCBOR) {
		w.Header().Set("Content-Type", artifact.ContentTypeCBOR)
		w.Header().Set("Content-Disposition", `attachment; filename="`+export.MatrixFile+`"`)
		if err := export.EncodeMatrix(w, run.ID, run.Matrix); err != nil {
			h.logger.ErrorContext(r.Context(), "failed to encode matrix", "run_id", run.ID, "error", err)
		}
		return
	}
	writeJSON(w, r, http.StatusOK, MatrixResponse{RunID: run.ID, Matrix: run.Matrix})
}
