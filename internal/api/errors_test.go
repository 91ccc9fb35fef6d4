package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/onnwee/foundermatch/internal/middleware"
)

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, context.Background(), http.StatusNotFound, ErrCodeNotFound, "Founder not found")

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Errorf("Content-Type = %s", ct)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response body: %v, body: %s", err, w.Body.String())
	}
	if resp.Error.Code != ErrCodeNotFound || resp.Error.Message != "Founder not found" {
		t.Errorf("error = %+v", resp.Error)
	}
}

func TestStatusCodeMapping(t *testing.T) {
	tests := map[string]int{
		ErrCodeValidation:    http.StatusBadRequest,
		ErrCodeBadRequest:    http.StatusBadRequest,
		ErrCodeAuthFailed:    http.StatusUnauthorized,
		ErrCodeForbidden:     http.StatusForbidden,
		ErrCodeNotFound:      http.StatusNotFound,
		ErrCodeRunInProgress: http.StatusConflict,
		ErrCodeNoResults:     http.StatusServiceUnavailable,
		ErrCodeInternal:      http.StatusInternalServerError,
		"something_else":     http.StatusInternalServerError,
	}
	for code, want := range tests {
		if got := StatusCodeMapping(code); got != want {
			t.Errorf("StatusCodeMapping(%q) = %d, want %d", code, got, want)
		}
	}
}

func TestWriteErrorCode_LoggedByMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := middleware.Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeErrorCode(w, r, ErrCodeNoResults, "No matching run has completed yet")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/matrix", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}
	if entry["error_code"] != ErrCodeNoResults {
		t.Errorf("error_code = %v, want %s", entry["error_code"], ErrCodeNoResults)
	}
}
