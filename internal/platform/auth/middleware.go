package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/saffron-market/api/internal/platform/requestctx"
)

// Verifier validates a bearer credential and extracts the caller identity.
type Verifier interface {
	Verify(credential string) (Identity, error)
}

// Middleware wires credential verification into HTTP middleware with two strategies:
// Required rejects unauthenticated requests, Optional degrades to anonymous.
type Middleware struct {
	verifier Verifier
}

// NewMiddleware constructs authentication middleware over the given verifier.
func NewMiddleware(verifier Verifier) *Middleware {
	return &Middleware{verifier: verifier}
}

// Required enforces a valid bearer credential and attaches the identity to the context.
func (m *Middleware) Required() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondAuthError(w, "unauthenticated", "authorization header missing or invalid")
				return
			}
			if m == nil || m.verifier == nil {
				respondAuthError(w, "unauthenticated", "authorization service unavailable")
				return
			}

			identity, err := m.verifier.Verify(credential)
			if err != nil {
				respondVerificationError(w, err)
				return
			}

			ctx := WithIdentity(r.Context(), &identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Optional attaches the identity when a valid credential is present and otherwise
// lets the request proceed anonymously. Invalid credentials are logged, not rejected.
func (m *Middleware) Optional() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok || m == nil || m.verifier == nil {
				next.ServeHTTP(w, r)
				return
			}

			identity, err := m.verifier.Verify(credential)
			if err != nil {
				requestctx.Logger(r.Context()).Debug("ignoring invalid bearer credential", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			ctx := WithIdentity(r.Context(), &identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", false
	}

	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}

	return token, true
}

func respondAuthError(w http.ResponseWriter, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":   code,
		"message": message,
		"status":  http.StatusUnauthorized,
	})
}

func respondVerificationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrTokenExpired):
		respondAuthError(w, "token_expired", "credential expired")
	default:
		respondAuthError(w, "invalid_token", "credential invalid")
	}
}
