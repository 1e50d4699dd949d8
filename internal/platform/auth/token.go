package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenExpired signals that the provided credential has expired.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid signals that the provided credential is malformed or has a bad signature.
	ErrTokenInvalid = errors.New("auth: token invalid")
)

// Claims is the JWT payload carried by issued credentials.
type Claims struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenCodec issues and verifies HS256 signed credentials under a server-held secret.
type TokenCodec struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// TokenCodecOption customises TokenCodec construction.
type TokenCodecOption func(*TokenCodec)

// WithClock overrides the time source, primarily for tests.
func WithClock(now func() time.Time) TokenCodecOption {
	return func(c *TokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewTokenCodec constructs a TokenCodec for the given secret, issuer and lifetime.
func NewTokenCodec(secret, issuer string, ttl time.Duration, opts ...TokenCodecOption) (*TokenCodec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: token ttl must be positive")
	}
	codec := &TokenCodec{
		secret: []byte(secret),
		issuer: strings.TrimSpace(issuer),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(codec)
		}
	}
	return codec, nil
}

// Issue signs a credential for the given identity.
func (c *TokenCodec) Issue(identity Identity) (string, error) {
	if c == nil {
		return "", errors.New("auth: codec not initialised")
	}
	if strings.TrimSpace(identity.UserID) == "" {
		return "", errors.New("auth: user id is required")
	}

	now := c.now().UTC()
	claims := Claims{
		Username: identity.Username,
		Email:    identity.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a credential, returning the embedded identity.
func (c *TokenCodec) Verify(credential string) (Identity, error) {
	if c == nil {
		return Identity{}, errors.New("auth: codec not initialised")
	}
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return Identity{}, ErrTokenInvalid
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return c.now().UTC() }),
	)

	claims := &Claims{}
	_, err := parser.ParseWithClaims(credential, claims, func(token *jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrTokenExpired
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if c.issuer != "" && claims.Issuer != c.issuer {
		return Identity{}, fmt.Errorf("%w: unexpected issuer", ErrTokenInvalid)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	return Identity{
		UserID:   claims.Subject,
		Username: claims.Username,
		Email:    claims.Email,
	}, nil
}
