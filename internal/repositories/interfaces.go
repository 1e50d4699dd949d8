package repositories

import (
	"context"
	"errors"

	"github.com/saffron-market/api/internal/domain"
)

// Error is implemented by storage backends to classify failures without
// leaking driver types into callers.
type Error interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// IsNotFound reports whether err represents a missing record.
func IsNotFound(err error) bool {
	var repoErr Error
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err represents a conflicting concurrent update.
func IsConflict(err error) bool {
	var repoErr Error
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// IsUnavailable reports whether err represents a transient backend outage.
func IsUnavailable(err error) bool {
	var repoErr Error
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}

// OrderRepository persists orders keyed by internal id with a secondary lookup
// on the external order code. All operations are single-record atomic.
type OrderRepository interface {
	// Create persists a new order and assigns its internal id.
	Create(ctx context.Context, order domain.Order) (domain.Order, error)
	FindByID(ctx context.Context, id string) (domain.Order, error)
	FindByCode(ctx context.Context, code string) (domain.Order, error)
	// FindByCodeAndAuthority requires both the external code and the payment
	// authority to match, guarding verification against mismatched authorities.
	FindByCodeAndAuthority(ctx context.Context, code, authority string) (domain.Order, error)
	// Update persists mutations to an existing order. When the order carries a
	// LastSyncTime the write is preconditioned on it, failing with a conflict
	// when the stored record changed underneath.
	Update(ctx context.Context, order domain.Order) (domain.Order, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Order, error)
	List(ctx context.Context) ([]domain.Order, error)
}

// UserRepository persists user accounts.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) (domain.User, error)
	FindByID(ctx context.Context, id string) (domain.User, error)
	FindByEmail(ctx context.Context, email string) (domain.User, error)
	FindByUsername(ctx context.Context, username string) (domain.User, error)
}
