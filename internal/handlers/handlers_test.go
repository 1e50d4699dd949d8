package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/saffron-market/api/internal/domain"
	"github.com/saffron-market/api/internal/platform/auth"
	"github.com/saffron-market/api/internal/services"
)

type stubOrderService struct {
	createFn         func(ctx context.Context, cmd services.CreateOrderCommand) (domain.Order, error)
	requestPaymentFn func(ctx context.Context, cmd services.RequestPaymentCommand) (services.PaymentRequestResult, error)
	verifyPaymentFn  func(ctx context.Context, cmd services.VerifyPaymentCommand) (services.VerifyPaymentResult, error)
	getByCodeFn      func(ctx context.Context, code string) (domain.Order, error)
	listByUserFn     func(ctx context.Context, userID string) ([]domain.Order, error)
	listAllFn        func(ctx context.Context) ([]services.AdminOrderRow, error)
}

func (s *stubOrderService) Create(ctx context.Context, cmd services.CreateOrderCommand) (domain.Order, error) {
	if s.createFn == nil {
		return domain.Order{}, errors.New("unexpected Create call")
	}
	return s.createFn(ctx, cmd)
}

func (s *stubOrderService) RequestPayment(ctx context.Context, cmd services.RequestPaymentCommand) (services.PaymentRequestResult, error) {
	if s.requestPaymentFn == nil {
		return services.PaymentRequestResult{}, errors.New("unexpected RequestPayment call")
	}
	return s.requestPaymentFn(ctx, cmd)
}

func (s *stubOrderService) VerifyPayment(ctx context.Context, cmd services.VerifyPaymentCommand) (services.VerifyPaymentResult, error) {
	if s.verifyPaymentFn == nil {
		return services.VerifyPaymentResult{}, errors.New("unexpected VerifyPayment call")
	}
	return s.verifyPaymentFn(ctx, cmd)
}

func (s *stubOrderService) GetByCode(ctx context.Context, code string) (domain.Order, error) {
	if s.getByCodeFn == nil {
		return domain.Order{}, errors.New("unexpected GetByCode call")
	}
	return s.getByCodeFn(ctx, code)
}

func (s *stubOrderService) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	if s.listByUserFn == nil {
		return nil, errors.New("unexpected ListByUser call")
	}
	return s.listByUserFn(ctx, userID)
}

func (s *stubOrderService) ListAll(ctx context.Context) ([]services.AdminOrderRow, error) {
	if s.listAllFn == nil {
		return nil, errors.New("unexpected ListAll call")
	}
	return s.listAllFn(ctx)
}

type stubUserService struct {
	registerFn func(ctx context.Context, cmd services.RegisterCommand) (domain.UserSummary, error)
	loginFn    func(ctx context.Context, cmd services.LoginCommand) (services.LoginResult, error)
}

func (s *stubUserService) Register(ctx context.Context, cmd services.RegisterCommand) (domain.UserSummary, error) {
	if s.registerFn == nil {
		return domain.UserSummary{}, errors.New("unexpected Register call")
	}
	return s.registerFn(ctx, cmd)
}

func (s *stubUserService) Login(ctx context.Context, cmd services.LoginCommand) (services.LoginResult, error) {
	if s.loginFn == nil {
		return services.LoginResult{}, errors.New("unexpected Login call")
	}
	return s.loginFn(ctx, cmd)
}

type stubVerifier struct {
	verifyFn func(credential string) (auth.Identity, error)
}

func (s *stubVerifier) Verify(credential string) (auth.Identity, error) {
	if s.verifyFn == nil {
		return auth.Identity{}, errors.New("invalid credential")
	}
	return s.verifyFn(credential)
}

func allowTokenVerifier(token string, identity auth.Identity) *stubVerifier {
	return &stubVerifier{verifyFn: func(credential string) (auth.Identity, error) {
		if credential != token {
			return auth.Identity{}, errors.New("invalid credential")
		}
		return identity, nil
	}}
}

func sampleOrder() domain.Order {
	return domain.Order{
		ID:     "order-1",
		Code:   "c0ffee",
		UserID: "user-1",
		Shipping: map[string]string{
			"address": "12 Azadi St",
		},
		Items: []domain.OrderLine{
			{ProductID: "p-1", Name: "Saffron Tin", UnitPrice: 100000, Quantity: 2},
		},
		Subtotal:      200000,
		ShippingFee:   50000,
		Total:         250000,
		PaymentStatus: domain.PaymentStatusUnpaid,
		CreatedAt:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func serveRequest(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}
