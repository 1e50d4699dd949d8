package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/oklog/ulid/v2"

	"github.com/saffron-market/api/internal/domain"
	pfirestore "github.com/saffron-market/api/internal/platform/firestore"
)

const userCollection = "users"

// UserRepository persists user accounts in Firestore. Email and username are
// stored lower-cased so lookups are case-insensitive.
type UserRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[domain.User]
	newID    func() string
	clock    func() time.Time
}

// UserRepositoryOption customises repository construction.
type UserRepositoryOption func(*UserRepository)

// WithUserIDGenerator overrides internal id generation, primarily for tests.
func WithUserIDGenerator(gen func() string) UserRepositoryOption {
	return func(r *UserRepository) {
		if gen != nil {
			r.newID = gen
		}
	}
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider, opts ...UserRepositoryOption) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}

	repo := &UserRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[domain.User](provider, userCollection, nil),
		newID: func() string {
			return ulid.Make().String()
		},
		clock: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo, nil
}

// Create persists a new user, assigning its internal id. Username and email
// uniqueness is enforced inside a transaction so concurrent registrations with
// the same identifier surface as a conflict rather than a duplicate account.
func (r *UserRepository) Create(ctx context.Context, user domain.User) (domain.User, error) {
	if r == nil || r.base == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}

	user.ID = r.newID()
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.CreatedAt.IsZero() {
		user.CreatedAt = r.clock().UTC()
	}

	docRef, err := r.base.DocumentRef(ctx, user.ID)
	if err != nil {
		return domain.User{}, err
	}
	collection := docRef.Parent

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		uniqueFields := []struct {
			name  string
			value string
		}{
			{name: "username", value: user.Username},
			{name: "email", value: user.Email},
		}
		for _, field := range uniqueFields {
			if field.value == "" {
				continue
			}
			existing, err := tx.Documents(collection.Where(field.name, "==", field.value).Limit(1)).GetAll()
			if err != nil {
				return err
			}
			if len(existing) > 0 {
				return pfirestore.ConflictError("users.create",
					fmt.Errorf("%s %q is already registered", field.name, field.value))
			}
		}
		return tx.Create(docRef, user)
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// FindByID loads the user by internal id.
func (r *UserRepository) FindByID(ctx context.Context, id string) (domain.User, error) {
	if r == nil || r.base == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	if strings.TrimSpace(id) == "" {
		return domain.User{}, errors.New("user id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	return hydrateUser(doc), nil
}

// FindByEmail loads the user by email, case-insensitively.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.findByField(ctx, "email", strings.ToLower(strings.TrimSpace(email)))
}

// FindByUsername loads the user by username, case-insensitively.
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (domain.User, error) {
	return r.findByField(ctx, "username", strings.ToLower(strings.TrimSpace(username)))
}

func (r *UserRepository) findByField(ctx context.Context, field, value string) (domain.User, error) {
	if r == nil || r.base == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	if value == "" {
		return domain.User{}, errors.New(field + " is required")
	}

	doc, err := r.base.QueryOne(ctx, func(query firestore.Query) firestore.Query {
		return query.Where(field, "==", value)
	})
	if err != nil {
		return domain.User{}, err
	}
	return hydrateUser(doc), nil
}

func hydrateUser(doc pfirestore.Document[domain.User]) domain.User {
	user := doc.Data
	user.ID = doc.ID
	user.LastSyncTime = doc.UpdateTime
	if user.CreatedAt.IsZero() {
		user.CreatedAt = doc.CreateTime
	}
	return user
}
