package auth

import (
	"context"
	"strings"
)

// Identity captures the authenticated principal extracted from a signed credential.
type Identity struct {
	UserID   string
	Username string
	Email    string
}

// Valid reports whether the identity carries a usable user identifier.
func (i *Identity) Valid() bool {
	return i != nil && strings.TrimSpace(i.UserID) != ""
}

type identityContextKey struct{}

// WithIdentity stores the identity on the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext retrieves the identity previously attached by middleware.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	if ctx == nil {
		return nil, false
	}
	identity, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}
