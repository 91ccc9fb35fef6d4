package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onnwee/foundermatch/internal/health"
	"github.com/onnwee/foundermatch/internal/match"
)

// mockHealthChecker is a mock implementation of HealthChecker for testing.
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) HealthCheck(ctx context.Context) error {
	return m.err
}

func decodeHealth(t *testing.T, w *httptest.ResponseRecorder) HealthResponse {
	t.Helper()
	var response HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return response
}

func TestHealth(t *testing.T) {
	w := httptest.NewRecorder()
	NewHealthHandlers(HealthHandlersConfig{}).Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	response := decodeHealth(t, w)
	if response.Status != "healthy" || response.Checks["runtime"] != "ok" || response.Timestamp == "" {
		t.Errorf("response = %+v", response)
	}
}

func TestReady(t *testing.T) {
	failing := &mockHealthChecker{err: errors.New("connection refused")}
	ok := &mockHealthChecker{}

	tests := []struct {
		name       string
		config     HealthHandlersConfig
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "nothing configured",
			config:     HealthHandlersConfig{},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"database": "not_configured", "redis": "not_configured", "s3": "not_configured", "results": "not_configured"},
		},
		{
			name:       "all healthy",
			config:     HealthHandlersConfig{DBChecker: ok, RedisChecker: ok, S3Checker: ok, ResultsChecker: ok},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"database": "ok", "redis": "ok", "s3": "ok", "results": "ok"},
		},
		{
			name:       "redis down",
			config:     HealthHandlersConfig{DBChecker: ok, RedisChecker: failing, ResultsChecker: ok},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"database": "ok", "redis": "error", "s3": "not_configured"},
		},
		{
			name: "no run yet",
			config: HealthHandlersConfig{
				ResultsChecker: health.NewRunChecker(func() error { return match.ErrNoRun }),
			},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"results": "error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			NewHealthHandlers(tt.config).Ready(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			response := decodeHealth(t, w)
			for name, want := range tt.wantChecks {
				if response.Checks[name] != want {
					t.Errorf("checks[%s] = %q, want %q", name, response.Checks[name], want)
				}
			}
			wantStatus := "healthy"
			if tt.wantStatus != http.StatusOK {
				wantStatus = "unhealthy"
			}
			if response.Status != wantStatus {
				t.Errorf("status field = %q, want %q", response.Status, wantStatus)
			}
		})
	}
}
