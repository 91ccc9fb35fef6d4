package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/onnwee/foundermatch/internal/artifact"
	"github.com/onnwee/foundermatch/internal/insights"
	"github.com/onnwee/foundermatch/internal/match"
	"github.com/onnwee/foundermatch/internal/store"
)

// maxListLimit bounds GET /api/v1/runs?limit=.
const maxListLimit = 100

// Recomputer performs a complete matching run.
type Recomputer interface {
	RunOnce(ctx context.Context) (*match.Run, error)
}

// LinkSource presigns download links for uploaded run artifacts.
type LinkSource interface {
	DownloadLinks(ctx context.Context, runID string) ([]artifact.DownloadLink, error)
}

// RunHandlersConfig configures RunHandlers. Runs and Recomputer are required.
type RunHandlersConfig struct {
	Runs       RunSource
	Recomputer Recomputer
	History    RunHistory
	Links      LinkSource
	// Timeout bounds a recompute started over HTTP; it outlives the request.
	Timeout time.Duration
	Logger  *slog.Logger
}

// RunHandlers lists runs and triggers recomputation.
type RunHandlers struct {
	runs       RunSource
	recomputer Recomputer
	history    RunHistory
	links      LinkSource
	timeout    time.Duration
	logger     *slog.Logger

	inFlight atomic.Bool
}

// NewRunHandlers creates the run handlers.
func NewRunHandlers(config RunHandlersConfig) *RunHandlers {
	if config.Timeout <= 0 {
		config.Timeout = match.DefaultRefreshTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &RunHandlers{
		runs:       config.Runs,
		recomputer: config.Recomputer,
		history:    config.History,
		links:      config.Links,
		timeout:    config.Timeout,
		logger:     config.Logger,
	}
}

// RunsResponse is the body of GET /api/v1/runs.
type RunsResponse struct {
	Source string             `json:"source"`
	Runs   []store.RunSummary `json:"runs"`
}

// LatestRunResponse is the body of GET /api/v1/runs/latest and POST /api/v1/runs.
type LatestRunResponse struct {
	Run       store.RunSummary        `json:"run"`
	Downloads []artifact.DownloadLink `json:"downloads,omitempty"`
	Notices   []insights.Notice       `json:"notices,omitempty"`
}

// Summarize describes an in-memory run the way the store does.
func Summarize(run *match.Run) store.RunSummary {
	skipped := run.Skipped
	if skipped == nil {
		skipped = []string{}
	}
	return store.RunSummary{
		ID:         run.ID,
		StartedAt:  run.StartedAt,
		DurationMS: run.Duration.Milliseconds(),
		Founders:   len(run.Founders),
		Providers:  len(run.Providers),
		TopK:       run.FounderTopK.K,
		SkippedIDs: skipped,
	}
}

// List handles GET /api/v1/runs. Stored runs are listed newest first; without a
// store the in-memory run is the only entry.
func (h *RunHandlers) List(w http.ResponseWriter, r *http.Request) {
	limit := store.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxListLimit {
			writeErrorCode(w, r, ErrCodeValidation, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	if h.history != nil {
		runs, err := h.history.ListRuns(r.Context(), limit)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "failed to list runs", "error", err)
			writeErrorCode(w, r, ErrCodeInternal, "Failed to list runs")
			return
		}
		if runs == nil {
			runs = []store.RunSummary{}
		}
		writeJSON(w, r, http.StatusOK, RunsResponse{Source: SourceStore, Runs: runs})
		return
	}

	runs := []store.RunSummary{}
	if run, err := h.runs.Latest(); err == nil {
		runs = append(runs, Summarize(run))
	}
	writeJSON(w, r, http.StatusOK, RunsResponse{Source: SourceMemory, Runs: runs})
}

// Latest handles GET /api/v1/runs/latest. When artifacts are uploaded, presigned
// download links are included; a presign failure becomes a notice.
func (h *RunHandlers) Latest(w http.ResponseWriter, r *http.Request) {
	var summary store.RunSummary
	if run, err := h.runs.Latest(); err == nil {
		summary = Summarize(run)
	} else if h.history != nil {
		stored, err := h.history.LatestRun(r.Context())
		switch {
		case errors.Is(err, store.ErrRunNotFound):
			writeErrorCode(w, r, ErrCodeNoResults, "No matching run has completed yet")
			return
		case err != nil:
			h.logger.ErrorContext(r.Context(), "failed to read latest run", "error", err)
			writeErrorCode(w, r, ErrCodeInternal, "Failed to read latest run")
			return
		}
		summary = *stored
	} else {
		writeErrorCode(w, r, ErrCodeNoResults, "No matching run has completed yet")
		return
	}

	writeJSON(w, r, http.StatusOK, h.withDownloads(r.Context(), summary))
}

func (h *RunHandlers) withDownloads(ctx context.Context, summary store.RunSummary) LatestRunResponse {
	resp := LatestRunResponse{Run: summary}
	if h.links == nil {
		return resp
	}
	links, err := h.links.DownloadLinks(ctx, summary.ID)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to presign run artifacts", "run_id", summary.ID, "error", err)
		resp.Notices = append(resp.Notices, insights.Notice{
			Artifact: "downloads",
			Message:  "download links are unavailable: " + err.Error(),
		})
		return resp
	}
	resp.Downloads = links
	return resp
}

// Recompute handles POST /api/v1/runs. Only one recompute runs at a time; a second
// request while one is in flight gets 409. The run continues if the client goes away.
func (h *RunHandlers) Recompute(w http.ResponseWriter, r *http.Request) {
	if !h.inFlight.CompareAndSwap(false, true) {
		writeErrorCode(w, r, ErrCodeRunInProgress, "A matching run is already in progress")
		return
	}
	defer h.inFlight.Store(false)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.timeout)
	defer cancel()

	run, err := h.recomputer.RunOnce(ctx)
	if run == nil {
		h.logger.ErrorContext(r.Context(), "recompute failed", "error", err)
		writeErrorCode(w, r, ErrCodeInternal, "Matching run failed")
		return
	}

	h.logger.InfoContext(r.Context(), "recompute completed",
		"run_id", run.ID,
		"founders", len(run.Founders),
		"providers", len(run.Providers))

	resp := h.withDownloads(r.Context(), Summarize(run))
	if err != nil {
		h.logger.WarnContext(r.Context(), "recompute published partially", "run_id", run.ID, "error", err)
		resp.Notices = append(resp.Notices, insights.Notice{
			Artifact: "sinks",
			Message:  "some result sinks failed: " + err.Error(),
		})
	}

	w.Header().Set("Location", "/api/v1/runs/latest")
	writeJSON(w, r, http.StatusCreated, resp)
}
