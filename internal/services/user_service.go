package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/saffron-market/api/internal/domain"
	"github.com/saffron-market/api/internal/platform/auth"
	"github.com/saffron-market/api/internal/repositories"
)

const minPasswordLength = 8

var (
	// ErrUserInvalidInput signals malformed registration or login data.
	ErrUserInvalidInput = errors.New("user: invalid input")
	// ErrUserExists signals a username or email collision on registration.
	ErrUserExists = errors.New("user: already exists")
	// ErrUserNotFound indicates no account matches the given identifier.
	ErrUserNotFound = errors.New("user: not found")
	// ErrBadCredentials indicates the password does not match the account.
	ErrBadCredentials = errors.New("user: bad credentials")
)

// TokenIssuer signs credentials for authenticated identities.
type TokenIssuer interface {
	Issue(identity auth.Identity) (string, error)
}

// UserServiceDeps bundles collaborators required to construct the user service.
type UserServiceDeps struct {
	Users  repositories.UserRepository
	Tokens TokenIssuer
	Clock  func() time.Time
}

type userService struct {
	users  repositories.UserRepository
	tokens TokenIssuer
	clock  func() time.Time
}

// NewUserService wires dependencies into a concrete UserService implementation.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errors.New("user service: user repository is required")
	}
	if deps.Tokens == nil {
		return nil, errors.New("user service: token issuer is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &userService{
		users:  deps.Users,
		tokens: deps.Tokens,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

// Register creates a new account after checking username and email uniqueness.
// The password is stored only as a bcrypt hash.
func (s *userService) Register(ctx context.Context, cmd RegisterCommand) (domain.UserSummary, error) {
	username := strings.ToLower(strings.TrimSpace(cmd.Username))
	email := strings.ToLower(strings.TrimSpace(cmd.Email))

	if username == "" {
		return domain.UserSummary{}, fmt.Errorf("%w: username is required", ErrUserInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return domain.UserSummary{}, fmt.Errorf("%w: invalid email address", ErrUserInvalidInput)
	}
	if len(cmd.Password) < minPasswordLength {
		return domain.UserSummary{}, fmt.Errorf("%w: password must be at least %d characters",
			ErrUserInvalidInput, minPasswordLength)
	}

	if err := s.ensureAvailable(ctx, username, email); err != nil {
		return domain.UserSummary{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cmd.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.UserSummary{}, fmt.Errorf("user: hash password: %w", err)
	}

	user := domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.clock(),
	}

	created, err := s.users.Create(ctx, user)
	if err != nil {
		if repositories.IsConflict(err) {
			return domain.UserSummary{}, ErrUserExists
		}
		return domain.UserSummary{}, fmt.Errorf("user: persist: %w", err)
	}

	return created.Summary(), nil
}

// Login authenticates by email or username and issues a signed credential.
func (s *userService) Login(ctx context.Context, cmd LoginCommand) (LoginResult, error) {
	identifier := strings.ToLower(strings.TrimSpace(cmd.EmailOrUsername))
	if identifier == "" || cmd.Password == "" {
		return LoginResult{}, fmt.Errorf("%w: identifier and password are required", ErrUserInvalidInput)
	}

	user, err := s.lookup(ctx, identifier)
	if err != nil {
		return LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(cmd.Password)); err != nil {
		return LoginResult{}, ErrBadCredentials
	}

	token, err := s.tokens.Issue(auth.Identity{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
	})
	if err != nil {
		return LoginResult{}, fmt.Errorf("user: issue token: %w", err)
	}

	return LoginResult{Token: token, User: user.Summary()}, nil
}

// lookup resolves an account by email first, then by username.
func (s *userService) lookup(ctx context.Context, identifier string) (domain.User, error) {
	user, err := s.users.FindByEmail(ctx, identifier)
	if err == nil {
		return user, nil
	}
	if !repositories.IsNotFound(err) {
		return domain.User{}, fmt.Errorf("user: lookup by email: %w", err)
	}

	user, err = s.users.FindByUsername(ctx, identifier)
	if err == nil {
		return user, nil
	}
	if repositories.IsNotFound(err) {
		return domain.User{}, ErrUserNotFound
	}
	return domain.User{}, fmt.Errorf("user: lookup by username: %w", err)
}

func (s *userService) ensureAvailable(ctx context.Context, username, email string) error {
	if _, err := s.users.FindByUsername(ctx, username); err == nil {
		return fmt.Errorf("%w: username is taken", ErrUserExists)
	} else if !repositories.IsNotFound(err) {
		return fmt.Errorf("user: check username: %w", err)
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return fmt.Errorf("%w: email is taken", ErrUserExists)
	} else if !repositories.IsNotFound(err) {
		return fmt.Errorf("user: check email: %w", err)
	}

	return nil
}
