package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/saffron-market/api/internal/domain"
	"github.com/saffron-market/api/internal/payments"
	"github.com/saffron-market/api/internal/repositories"
)

const (
	orderEventCreated         = "order.created"
	orderEventPaymentVerified = "order.payment.verified"

	callbackOrderParam = "order"
)

var (
	// ErrOrderInvalidInput signals the caller provided incomplete or malformed data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrAmountMismatch signals the client-declared total disagrees with the
	// server-computed amount beyond the allowed tolerance.
	ErrAmountMismatch = errors.New("order: declared amount does not match computed total")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderAlreadyPaid indicates a payment request against a settled order.
	ErrOrderAlreadyPaid = errors.New("order: already paid")
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Users       repositories.UserRepository
	Gateway     payments.Provider
	Pricing     PricingCalculator
	CallbackURL string
	Clock       func() time.Time
	CodeGen     func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders      repositories.OrderRepository
	users       repositories.UserRepository
	gateway     payments.Provider
	pricing     PricingCalculator
	callbackURL string
	clock       func() time.Time
	newCode     func() string
	events      OrderEventPublisher
	logger      func(context.Context, string, map[string]any)
	sanitizer   *bluemonday.Policy
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("order service: payment gateway is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	codeGen := deps.CodeGen
	if codeGen == nil {
		codeGen = uuid.NewString
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:      deps.Orders,
		users:       deps.Users,
		gateway:     deps.Gateway,
		pricing:     deps.Pricing,
		callbackURL: strings.TrimSpace(deps.CallbackURL),
		clock: func() time.Time {
			return clock().UTC()
		},
		newCode:   codeGen,
		events:    deps.Events,
		logger:    logger,
		sanitizer: bluemonday.StrictPolicy(),
	}, nil
}

// Create validates the submission, recomputes the authoritative total and
// persists a new unpaid order.
func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error) {
	if len(cmd.Items) == 0 {
		return domain.Order{}, fmt.Errorf("%w: order must contain at least one item", ErrOrderInvalidInput)
	}
	if len(cmd.Shipping) == 0 {
		return domain.Order{}, fmt.Errorf("%w: shipping info is required", ErrOrderInvalidInput)
	}
	if cmd.DeclaredAmount == nil {
		return domain.Order{}, fmt.Errorf("%w: amount is required", ErrOrderInvalidInput)
	}
	for i, item := range cmd.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return domain.Order{}, fmt.Errorf("%w: item %d has no product reference", ErrOrderInvalidInput, i)
		}
		if item.Quantity < 1 {
			return domain.Order{}, fmt.Errorf("%w: item %d quantity must be at least 1", ErrOrderInvalidInput, i)
		}
		if item.UnitPrice < 0 {
			return domain.Order{}, fmt.Errorf("%w: item %d price must not be negative", ErrOrderInvalidInput, i)
		}
	}

	breakdown := s.pricing.Price(cmd.Items)
	if !WithinTolerance(breakdown.Total, *cmd.DeclaredAmount) {
		return domain.Order{}, fmt.Errorf("%w: declared %d, computed %d",
			ErrAmountMismatch, *cmd.DeclaredAmount, breakdown.Total)
	}

	order := domain.Order{
		Code:          s.newCode(),
		UserID:        strings.TrimSpace(cmd.UserID),
		Shipping:      s.sanitizeShipping(cmd.Shipping),
		Items:         cmd.Items,
		Subtotal:      breakdown.Subtotal,
		ShippingFee:   breakdown.Shipping,
		Total:         breakdown.Total,
		PaymentStatus: domain.PaymentStatusUnpaid,
		CreatedAt:     s.clock(),
	}

	created, err := s.orders.Create(ctx, order)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order: persist: %w", err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:      orderEventCreated,
		OrderID:   created.ID,
		OrderCode: created.Code,
		UserID:    created.UserID,
		Amount:    created.Total,
	})

	return created, nil
}

// RequestPayment obtains a gateway authority for the order's server-computed
// total and persists it. The order is left untouched on gateway rejection.
func (s *orderService) RequestPayment(ctx context.Context, cmd RequestPaymentCommand) (PaymentRequestResult, error) {
	order, err := s.findByCode(ctx, cmd.OrderCode)
	if err != nil {
		return PaymentRequestResult{}, err
	}
	if order.Paid() {
		return PaymentRequestResult{}, ErrOrderAlreadyPaid
	}

	callback, err := s.buildCallbackURL(order.Code, cmd.CallbackFallback)
	if err != nil {
		return PaymentRequestResult{}, fmt.Errorf("order: build callback url: %w", err)
	}

	authority, err := s.gateway.RequestPayment(ctx, payments.RequestPaymentParams{
		Amount:      order.Total,
		Description: fmt.Sprintf("order %s", order.Code),
		CallbackURL: callback,
	})
	if err != nil {
		return PaymentRequestResult{}, err
	}

	order.PaymentAuthority = authority.Authority
	order.PaymentStatus = domain.PaymentStatusUnpaid
	order.PaymentRefID = ""

	updated, err := s.orders.Update(ctx, order)
	if err != nil {
		return PaymentRequestResult{}, fmt.Errorf("order: persist authority: %w", err)
	}

	s.logger(ctx, "order.payment.requested", map[string]any{
		"order":     updated.Code,
		"authority": authority.Authority,
		"amount":    updated.Total,
	})

	return PaymentRequestResult{Order: updated, PaymentURL: authority.RedirectURL}, nil
}

// VerifyPayment confirms a payment attempt with the gateway and finalizes the
// order to exactly one of paid or failed. Verification of an already-paid
// order is an idempotent no-op so a stale duplicate callback can never
// downgrade a settled order.
func (s *orderService) VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (VerifyPaymentResult, error) {
	code := strings.TrimSpace(cmd.OrderCode)
	authority := strings.TrimSpace(cmd.Authority)
	if code == "" || authority == "" {
		return VerifyPaymentResult{}, fmt.Errorf("%w: order id and authority are required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByCodeAndAuthority(ctx, code, authority)
	if err != nil {
		if repositories.IsNotFound(err) {
			return VerifyPaymentResult{}, ErrOrderNotFound
		}
		return VerifyPaymentResult{}, fmt.Errorf("order: lookup: %w", err)
	}

	if order.Paid() {
		return VerifyPaymentResult{Order: order, Succeeded: true, RefID: order.PaymentRefID}, nil
	}

	verification, err := s.gateway.VerifyPayment(ctx, payments.VerifyPaymentParams{
		Amount:    order.Total,
		Authority: authority,
	})
	if err != nil {
		return VerifyPaymentResult{}, err
	}

	if verification.OK {
		order.PaymentStatus = domain.PaymentStatusPaid
		order.PaymentRefID = verification.RefID
	} else {
		order.PaymentStatus = domain.PaymentStatusFailed
	}

	updated, err := s.orders.Update(ctx, order)
	if err != nil {
		return VerifyPaymentResult{}, fmt.Errorf("order: persist verification: %w", err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventPaymentVerified,
		OrderID:       updated.ID,
		OrderCode:     updated.Code,
		UserID:        updated.UserID,
		PaymentStatus: string(updated.PaymentStatus),
		Amount:        updated.Total,
	})

	return VerifyPaymentResult{
		Order:     updated,
		Succeeded: verification.OK,
		RefID:     verification.RefID,
		Detail:    verification.Detail,
	}, nil
}

// GetByCode returns the order identified by its external code.
func (s *orderService) GetByCode(ctx context.Context, code string) (domain.Order, error) {
	return s.findByCode(ctx, code)
}

// ListByUser returns the orders owned by the given user.
func (s *orderService) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("order: list by user: %w", err)
	}
	return orders, nil
}

// ListAll returns every order joined with its owning username for the admin listing.
func (s *orderService) ListAll(ctx context.Context) ([]AdminOrderRow, error) {
	orders, err := s.orders.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("order: list: %w", err)
	}

	usernames := make(map[string]string)
	rows := make([]AdminOrderRow, 0, len(orders))
	for _, order := range orders {
		row := AdminOrderRow{Order: order}
		if !order.Anonymous() && s.users != nil {
			name, ok := usernames[order.UserID]
			if !ok {
				name = s.lookupUsername(ctx, order.UserID)
				usernames[order.UserID] = name
			}
			row.Username = name
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *orderService) findByCode(ctx context.Context, code string) (domain.Order, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByCode(ctx, code)
	if err != nil {
		if repositories.IsNotFound(err) {
			return domain.Order{}, ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("order: lookup: %w", err)
	}
	return order, nil
}

func (s *orderService) lookupUsername(ctx context.Context, userID string) string {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if !repositories.IsNotFound(err) {
			s.logger(ctx, "order.owner.lookup.failed", map[string]any{"user": userID, "error": err.Error()})
		}
		return ""
	}
	return user.Username
}

// buildCallbackURL appends the external order code as a query parameter to the
// configured callback base, or to the request-derived fallback when unconfigured.
func (s *orderService) buildCallbackURL(code, fallback string) (string, error) {
	base := s.callbackURL
	if base == "" {
		base = strings.TrimSpace(fallback)
	}
	if base == "" {
		return "", errors.New("no callback url configured")
	}

	parsed, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	query := parsed.Query()
	query.Set(callbackOrderParam, code)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func (s *orderService) sanitizeShipping(shipping map[string]string) map[string]string {
	cleaned := make(map[string]string, len(shipping))
	for key, value := range shipping {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		cleaned[key] = strings.TrimSpace(s.sanitizer.Sanitize(value))
	}
	return cleaned
}

// publishEvent is best-effort: event delivery failures are logged, never
// surfaced to the request path.
func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	event.OccurredAt = s.clock()
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":  event.Type,
			"order": event.OrderCode,
			"error": err.Error(),
		})
	}
}
