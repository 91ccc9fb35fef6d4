package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/onnwee/foundermatch/internal/auth"
	"github.com/onnwee/foundermatch/internal/middleware"
)

// Reasons recorded in operator_auth_failures_total.
const (
	authFailureMissing  = "missing"
	authFailureInvalid  = "invalid"
	authFailureDisabled = "disabled"
)

// TokenValidator validates operator bearer tokens for a scope.
type TokenValidator interface {
	Validate(token, scope string) (*auth.Claims, error)
}

// RequireOperator rejects requests without a valid operator token carrying scope.
// A nil validator disables the wrapped endpoint: every request gets 403.
// metrics may be nil.
func RequireOperator(validator TokenValidator, scope string, metrics *middleware.Metrics) func(http.Handler) http.Handler {
	fail := func(w http.ResponseWriter, r *http.Request, reason, code, message string) {
		if metrics != nil {
			metrics.IncAuthFailures(reason)
		}
		writeErrorCode(w, r, code, message)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if validator == nil {
				fail(w, r, authFailureDisabled, ErrCodeForbidden, "Operator endpoints are disabled")
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="foundermatch"`)
				fail(w, r, authFailureMissing, ErrCodeAuthFailed, "Missing bearer token")
				return
			}

			claims, err := validator.Validate(token, scope)
			switch {
			case errors.Is(err, auth.ErrMissingScope):
				fail(w, r, authFailureInvalid, ErrCodeForbidden, "Token lacks the "+scope+" scope")
				return
			case err != nil:
				slog.WarnContext(r.Context(), "operator token rejected", "error", err)
				w.Header().Set("WWW-Authenticate", `Bearer realm="foundermatch", error="invalid_token"`)
				fail(w, r, authFailureInvalid, ErrCodeAuthFailed, "Invalid or expired token")
				return
			}

			ctx := middleware.SetOperator(r.Context(), claims.Subject)
			middleware.UpdateResponseContext(w, ctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
