package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/oklog/ulid/v2"

	"github.com/saffron-market/api/internal/domain"
	pfirestore "github.com/saffron-market/api/internal/platform/firestore"
)

const orderCollection = "orders"

// OrderRepository persists orders in Firestore. Documents are keyed by the
// internal ULID; the external order code is indexed as a document field.
type OrderRepository struct {
	base  *pfirestore.BaseRepository[domain.Order]
	newID func() string
	clock func() time.Time
}

// OrderRepositoryOption customises repository construction.
type OrderRepositoryOption func(*OrderRepository)

// WithOrderIDGenerator overrides internal id generation, primarily for tests.
func WithOrderIDGenerator(gen func() string) OrderRepositoryOption {
	return func(r *OrderRepository) {
		if gen != nil {
			r.newID = gen
		}
	}
}

// WithOrderClock overrides the time source, primarily for tests.
func WithOrderClock(clock func() time.Time) OrderRepositoryOption {
	return func(r *OrderRepository) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider, opts ...OrderRepositoryOption) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}

	repo := &OrderRepository{
		base: pfirestore.NewBaseRepository[domain.Order](provider, orderCollection, nil),
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

// Create persists a new order, assigning its internal id.
func (r *OrderRepository) Create(ctx context.Context, order domain.Order) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}

	now := r.clock().UTC()
	order.ID = r.newID()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	result, err := r.base.Set(ctx, order.ID, order)
	if err != nil {
		return domain.Order{}, err
	}
	order.LastSyncTime = result.UpdateTime
	return order, nil
}

// FindByID loads the order by its internal id.
func (r *OrderRepository) FindByID(ctx context.Context, id string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(id) == "" {
		return domain.Order{}, errors.New("order id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return hydrateOrder(doc), nil
}

// FindByCode loads the order by its external, gateway-routable code.
func (r *OrderRepository) FindByCode(ctx context.Context, code string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Order{}, errors.New("order code is required")
	}

	doc, err := r.base.QueryOne(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("code", "==", code)
	})
	if err != nil {
		return domain.Order{}, err
	}
	return hydrateOrder(doc), nil
}

// FindByCodeAndAuthority loads the order matching both the external code and a
// previously issued payment authority.
func (r *OrderRepository) FindByCodeAndAuthority(ctx context.Context, code, authority string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	code = strings.TrimSpace(code)
	authority = strings.TrimSpace(authority)
	if code == "" || authority == "" {
		return domain.Order{}, errors.New("order code and authority are required")
	}

	doc, err := r.base.QueryOne(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("code", "==", code).Where("paymentAuthority", "==", authority)
	})
	if err != nil {
		return domain.Order{}, err
	}
	return hydrateOrder(doc), nil
}

// Update persists mutations to an existing order. When LastSyncTime is set the
// write is preconditioned on the stored update time for optimistic locking.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return domain.Order{}, errors.New("order id is required")
	}

	order.UpdatedAt = r.clock().UTC()

	updates := []firestore.Update{
		{Path: "paymentAuthority", Value: order.PaymentAuthority},
		{Path: "paymentStatus", Value: order.PaymentStatus},
		{Path: "paymentRefId", Value: order.PaymentRefID},
		{Path: "updatedAt", Value: order.UpdatedAt},
	}

	var preconditions []firestore.Precondition
	if !order.LastSyncTime.IsZero() {
		preconditions = append(preconditions, firestore.LastUpdateTime(order.LastSyncTime))
	}

	result, err := r.base.Update(ctx, order.ID, updates, preconditions...)
	if err != nil {
		return domain.Order{}, err
	}
	order.LastSyncTime = result.UpdateTime
	return order, nil
}

// ListByUser returns all orders owned by the given user, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("order repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("userId", "==", userID).OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	return hydrateOrders(docs), nil
}

// List returns all orders, newest first.
func (r *OrderRepository) List(ctx context.Context) ([]domain.Order, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("order repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	return hydrateOrders(docs), nil
}

func hydrateOrder(doc pfirestore.Document[domain.Order]) domain.Order {
	order := doc.Data
	order.ID = doc.ID
	order.LastSyncTime = doc.UpdateTime
	if order.CreatedAt.IsZero() {
		order.CreatedAt = doc.CreateTime
	}
	return order
}

func hydrateOrders(docs []pfirestore.Document[domain.Order]) []domain.Order {
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, hydrateOrder(doc))
	}
	return orders
}
