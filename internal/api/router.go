package api

import (
	"net/http"

	"github.com/onnwee/foundermatch/internal/match"
)

// RouterConfig wires handlers into the API routes.
type RouterConfig struct {
	Health  *HealthHandlers
	Matches *MatchHandlers
	Runs    *RunHandlers
	// RequireOperator guards POST /api/v1/runs. Nil disables the endpoint.
	RequireOperator func(http.Handler) http.Handler
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// Service and Version are reported by GET /.
	Service string
	Version string
}

// NewRouter registers every route on a new ServeMux. Unknown paths get a JSON 404.
func NewRouter(cfg RouterConfig) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", cfg.Health.Health)
	mux.HandleFunc("GET /ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	mux.HandleFunc("GET /api/v1/founders", cfg.Matches.Subjects(match.FounderToProvider))
	mux.HandleFunc("GET /api/v1/providers", cfg.Matches.Subjects(match.ProviderToFounder))
	mux.HandleFunc("GET /api/v1/founders/{id}/matches", cfg.Matches.Matches(match.FounderToProvider))
	mux.HandleFunc("GET /api/v1/providers/{id}/matches", cfg.Matches.Matches(match.ProviderToFounder))
	mux.HandleFunc("GET /api/v1/labels/{id}", cfg.Matches.Label)
	mux.HandleFunc("GET /api/v1/matrix", cfg.Matches.Matrix)
	mux.HandleFunc("GET /api/v1/insights", cfg.Matches.Insights)

	mux.HandleFunc("GET /api/v1/runs", cfg.Runs.List)
	mux.HandleFunc("GET /api/v1/runs/latest", cfg.Runs.Latest)
	guard := cfg.RequireOperator
	if guard == nil {
		guard = RequireOperator(nil, "", nil)
	}
	mux.Handle("POST /api/v1/runs", guard(http.HandlerFunc(cfg.Runs.Recompute)))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			writeErrorCode(w, r, ErrCodeNotFound, "The requested resource was not found")
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]string{
			"service": cfg.Service,
			"version": cfg.Version,
		})
	})

	return mux
}
