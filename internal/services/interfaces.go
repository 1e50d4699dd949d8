package services

import (
	"context"
	"time"

	"github.com/saffron-market/api/internal/domain"
)

// OrderService orchestrates order creation and the payment reconciliation flow.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error)
	RequestPayment(ctx context.Context, cmd RequestPaymentCommand) (PaymentRequestResult, error)
	VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (VerifyPaymentResult, error)
	GetByCode(ctx context.Context, code string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Order, error)
	ListAll(ctx context.Context) ([]AdminOrderRow, error)
}

// CreateOrderCommand carries the inputs for order creation. UserID is empty
// for anonymous checkout. DeclaredAmount is the advisory client total, checked
// against the server-computed value and never trusted directly.
type CreateOrderCommand struct {
	UserID         string
	Shipping       map[string]string
	Items          []domain.OrderLine
	DeclaredAmount *int64
}

// RequestPaymentCommand identifies the order to obtain a payment authority for.
// CallbackFallback is the request-derived callback base used when no callback
// URL is configured.
type RequestPaymentCommand struct {
	OrderCode        string
	CallbackFallback string
}

// PaymentRequestResult carries the gateway redirect for the customer.
type PaymentRequestResult struct {
	Order      domain.Order
	PaymentURL string
}

// VerifyPaymentCommand identifies the payment attempt to finalize.
type VerifyPaymentCommand struct {
	OrderCode string
	Authority string
}

// VerifyPaymentResult reports the finalized order state after verification.
type VerifyPaymentResult struct {
	Order     domain.Order
	Succeeded bool
	RefID     string
	Detail    string
}

// AdminOrderRow is an order joined with its owning username for the admin listing.
type AdminOrderRow struct {
	Order    domain.Order
	Username string
}

// UserService handles registration and credential-based login.
type UserService interface {
	Register(ctx context.Context, cmd RegisterCommand) (domain.UserSummary, error)
	Login(ctx context.Context, cmd LoginCommand) (LoginResult, error)
}

// RegisterCommand carries the registration inputs.
type RegisterCommand struct {
	Username string
	Email    string
	Password string
}

// LoginCommand carries the login inputs. EmailOrUsername matches either field.
type LoginCommand struct {
	EmailOrUsername string
	Password        string
}

// LoginResult carries the signed credential and the user summary.
type LoginResult struct {
	Token string
	User  domain.UserSummary
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type          string    `json:"type"`
	OrderID       string    `json:"orderId"`
	OrderCode     string    `json:"orderCode"`
	UserID        string    `json:"userId,omitempty"`
	PaymentStatus string    `json:"paymentStatus,omitempty"`
	Amount        int64     `json:"amount,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}
