// Package auth issues and validates the operator tokens that guard run recomputation.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTypeOperator is the typ claim of operator tokens.
const TokenTypeOperator = "operator"

// ScopeRunsWrite allows triggering a matching run.
const ScopeRunsWrite = "runs:write"

// DefaultTokenTTL is used when Issue is called with a non-positive ttl.
const DefaultTokenTTL = time.Hour

// DefaultLeeway for expiry and not-before checks.
const DefaultLeeway = 30 * time.Second

var (
	// ErrInvalidToken is returned when token validation fails.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")
	// ErrEmptySubject is returned when issuing a token without a subject.
	ErrEmptySubject = errors.New("subject cannot be empty")
	// ErrMissingScope is returned when a valid token lacks the required scope.
	ErrMissingScope = errors.New("token lacks required scope")
)

// Claims are the JWT claims carried by operator tokens.
type Claims struct {
	jwt.RegisteredClaims
	Type   string   `json:"typ"`
	Scopes []string `json:"scopes,omitempty"`
}

// HasScope reports whether the claims grant scope.
func (c *Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// OperatorTokens signs and validates HS256 operator tokens.
// Tokens are signed with the current secret and accepted under either the current
// or the previous secret, so the secret can be rotated without downtime.
type OperatorTokens struct {
	currentSecret  []byte
	previousSecret []byte
	leeway         time.Duration
	now            func() time.Time
}

// NewOperatorTokens creates a token service. previousSecret may be empty.
func NewOperatorTokens(currentSecret, previousSecret string) *OperatorTokens {
	t := &OperatorTokens{
		currentSecret: []byte(currentSecret),
		leeway:        DefaultLeeway,
		now:           time.Now,
	}
	if previousSecret != "" {
		t.previousSecret = []byte(previousSecret)
	}
	return t
}

// Issue creates an operator token for subject granting scopes
// (ScopeRunsWrite when none are given).
func (t *OperatorTokens) Issue(subject string, ttl time.Duration, scopes ...string) (string, error) {
	if subject == "" {
		return "", ErrEmptySubject
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if len(scopes) == 0 {
		scopes = []string{ScopeRunsWrite}
	}

	now := t.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Type:   TokenTypeOperator,
		Scopes: scopes,
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.currentSecret)
}

// Validate parses tokenString and checks signature, expiry, type and scope.
func (t *OperatorTokens) Validate(tokenString, scope string) (*Claims, error) {
	claims, err := t.parse(tokenString, t.currentSecret)
	if err != nil && t.previousSecret != nil && !errors.Is(err, jwt.ErrTokenExpired) {
		claims, err = t.parse(tokenString, t.previousSecret)
	}
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims.Type != TokenTypeOperator || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	if scope != "" && !claims.HasScope(scope) {
		return nil, ErrMissingScope
	}
	return claims, nil
}

func (t *OperatorTokens) parse(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(t.leeway),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
