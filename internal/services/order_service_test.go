package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/saffron-market/api/internal/domain"
	"github.com/saffron-market/api/internal/payments"
)

type repoError struct {
	msg      string
	notFound bool
	conflict bool
}

func (e *repoError) Error() string       { return e.msg }
func (e *repoError) IsNotFound() bool    { return e.notFound }
func (e *repoError) IsConflict() bool    { return e.conflict }
func (e *repoError) IsUnavailable() bool { return false }

func notFoundErr(what string) error {
	return &repoError{msg: what + " not found", notFound: true}
}

type memOrderRepo struct {
	orders    map[string]domain.Order
	createErr error
	updateErr error
	seq       int
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{orders: make(map[string]domain.Order)}
}

func (r *memOrderRepo) Create(_ context.Context, order domain.Order) (domain.Order, error) {
	if r.createErr != nil {
		return domain.Order{}, r.createErr
	}
	r.seq++
	order.ID = fmt.Sprintf("order-%d", r.seq)
	r.orders[order.ID] = order
	return order, nil
}

func (r *memOrderRepo) FindByID(_ context.Context, id string) (domain.Order, error) {
	order, ok := r.orders[id]
	if !ok {
		return domain.Order{}, notFoundErr("order")
	}
	return order, nil
}

func (r *memOrderRepo) FindByCode(_ context.Context, code string) (domain.Order, error) {
	for _, order := range r.orders {
		if order.Code == code {
			return order, nil
		}
	}
	return domain.Order{}, notFoundErr("order")
}

func (r *memOrderRepo) FindByCodeAndAuthority(_ context.Context, code, authority string) (domain.Order, error) {
	for _, order := range r.orders {
		if order.Code == code && order.PaymentAuthority == authority {
			return order, nil
		}
	}
	return domain.Order{}, notFoundErr("order")
}

func (r *memOrderRepo) Update(_ context.Context, order domain.Order) (domain.Order, error) {
	if r.updateErr != nil {
		return domain.Order{}, r.updateErr
	}
	if _, ok := r.orders[order.ID]; !ok {
		return domain.Order{}, notFoundErr("order")
	}
	r.orders[order.ID] = order
	return order, nil
}

func (r *memOrderRepo) ListByUser(_ context.Context, userID string) ([]domain.Order, error) {
	var out []domain.Order
	for _, order := range r.orders {
		if order.UserID == userID {
			out = append(out, order)
		}
	}
	return out, nil
}

func (r *memOrderRepo) List(_ context.Context) ([]domain.Order, error) {
	out := make([]domain.Order, 0, len(r.orders))
	for _, order := range r.orders {
		out = append(out, order)
	}
	return out, nil
}

type memUserRepo struct {
	users map[string]domain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]domain.User)}
}

func (r *memUserRepo) Create(_ context.Context, user domain.User) (domain.User, error) {
	user.ID = fmt.Sprintf("user-%d", len(r.users)+1)
	r.users[user.ID] = user
	return user, nil
}

func (r *memUserRepo) FindByID(_ context.Context, id string) (domain.User, error) {
	user, ok := r.users[id]
	if !ok {
		return domain.User{}, notFoundErr("user")
	}
	return user, nil
}

func (r *memUserRepo) FindByEmail(_ context.Context, email string) (domain.User, error) {
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return domain.User{}, notFoundErr("user")
}

func (r *memUserRepo) FindByUsername(_ context.Context, username string) (domain.User, error) {
	for _, user := range r.users {
		if user.Username == username {
			return user, nil
		}
	}
	return domain.User{}, notFoundErr("user")
}

type stubProvider struct {
	requestFn func(ctx context.Context, params payments.RequestPaymentParams) (payments.PaymentAuthority, error)
	verifyFn  func(ctx context.Context, params payments.VerifyPaymentParams) (payments.Verification, error)

	requestCalls int
	verifyCalls  int
}

func (p *stubProvider) RequestPayment(ctx context.Context, params payments.RequestPaymentParams) (payments.PaymentAuthority, error) {
	p.requestCalls++
	if p.requestFn == nil {
		return payments.PaymentAuthority{}, errors.New("unexpected RequestPayment call")
	}
	return p.requestFn(ctx, params)
}

func (p *stubProvider) VerifyPayment(ctx context.Context, params payments.VerifyPaymentParams) (payments.Verification, error) {
	p.verifyCalls++
	if p.verifyFn == nil {
		return payments.Verification{}, errors.New("unexpected VerifyPayment call")
	}
	return p.verifyFn(ctx, params)
}

type recordingPublisher struct {
	events []OrderEvent
	err    error
}

func (p *recordingPublisher) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	p.events = append(p.events, event)
	return p.err
}

type orderServiceFixture struct {
	orders  *memOrderRepo
	users   *memUserRepo
	gateway *stubProvider
	events  *recordingPublisher
	service OrderService
}

func newOrderServiceFixture(t *testing.T, mutate func(*OrderServiceDeps)) *orderServiceFixture {
	t.Helper()

	fx := &orderServiceFixture{
		orders:  newMemOrderRepo(),
		users:   newMemUserRepo(),
		gateway: &stubProvider{},
		events:  &recordingPublisher{},
	}

	codes := 0
	deps := OrderServiceDeps{
		Orders:      fx.orders,
		Users:       fx.users,
		Gateway:     fx.gateway,
		Pricing:     NewPricingCalculator(DefaultShippingFee),
		CallbackURL: "https://shop.example.com/payment/callback",
		Clock:       func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
		CodeGen: func() string {
			codes++
			return fmt.Sprintf("code-%d", codes)
		},
		Events: fx.events,
	}
	if mutate != nil {
		mutate(&deps)
	}

	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	fx.service = svc
	return fx
}

func int64Ptr(v int64) *int64 { return &v }

func twoSaffronTins() []domain.OrderLine {
	return []domain.OrderLine{
		{ProductID: "p-1", Name: "Saffron Tin", UnitPrice: 100000, Quantity: 2},
	}
}

func TestOrderServiceCreateRecomputesTotals(t *testing.T) {
	fx := newOrderServiceFixture(t, nil)

	order, err := fx.service.Create(context.Background(), CreateOrderCommand{
		UserID:         "user-1",
		Shipping:       map[string]string{"address": "12 Azadi St", "city": "Tehran"},
		Items:          twoSaffronTins(),
		DeclaredAmount: int64Ptr(250000),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if order.Subtotal != 200000 {
		t.Errorf("subtotal = %d, want 200000", order.Subtotal)
	}
	if order.ShippingFee != 50000 {
		t.Errorf("shipping = %d, want 50000", order.ShippingFee)
	}
	if order.Total != 250000 {
		t.Errorf("total = %d, want 250000", order.Total)
	}
	if order.PaymentStatus != domain.PaymentStatusUnpaid {
		t.Errorf("payment status = %q, want %q", order.PaymentStatus, domain.PaymentStatusUnpaid)
	}
	if order.Code != "code-1" {
		t.Errorf("code = %q, want code-1", order.Code)
	}
	if order.PaymentAuthority != "" {
		t.Errorf("new order must not carry an authority, got %q", order.PaymentAuthority)
	}

	if len(fx.events.events) != 1 || fx.events.events[0].Type != "order.created" {
		t.Errorf("expected a single order.created event, got %+v", fx.events.events)
	}
}

func TestOrderServiceCreateAmountTolerance(t *testing.T) {
	cases := []struct {
		name     string
		declared int64
		wantErr  error
	}{
		{name: "exact", declared: 250000},
		{name: "one below", declared: 249999},
		{name: "one above", declared: 250001},
		{name: "two below", declared: 249998, wantErr: ErrAmountMismatch},
		{name: "two above", declared: 250002, wantErr: ErrAmountMismatch},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newOrderServiceFixture(t, nil)
			_, err := fx.service.Create(context.Background(), CreateOrderCommand{
				Shipping:       map[string]string{"address": "12 Azadi St"},
				Items:          twoSaffronTins(),
				DeclaredAmount: int64Ptr(tc.declared),
			})
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("Create: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Create error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestOrderServiceCreateValidation(t *testing.T) {
	cases := []struct {
		name string
		cmd  CreateOrderCommand
	}{
		{
			name: "empty items",
			cmd: CreateOrderCommand{
				Shipping:       map[string]string{"address": "x"},
				DeclaredAmount: int64Ptr(50000),
			},
		},
		{
			name: "missing shipping",
			cmd: CreateOrderCommand{
				Items:          twoSaffronTins(),
				DeclaredAmount: int64Ptr(250000),
			},
		},
		{
			name: "missing amount",
			cmd: CreateOrderCommand{
				Shipping: map[string]string{"address": "x"},
				Items:    twoSaffronTins(),
			},
		},
		{
			name: "zero quantity",
			cmd: CreateOrderCommand{
				Shipping:       map[string]string{"address": "x"},
				Items:          []domain.OrderLine{{ProductID: "p-1", UnitPrice: 1000, Quantity: 0}},
				DeclaredAmount: int64Ptr(50000),
			},
		},
		{
			name: "negative price",
			cmd: CreateOrderCommand{
				Shipping:       map[string]string{"address": "x"},
				Items:          []domain.OrderLine{{ProductID: "p-1", UnitPrice: -5, Quantity: 1}},
				DeclaredAmount: int64Ptr(50000),
			},
		},
		{
			name: "blank product id",
			cmd: CreateOrderCommand{
				Shipping:       map[string]string{"address": "x"},
				Items:          []domain.OrderLine{{ProductID: "  ", UnitPrice: 1000, Quantity: 1}},
				DeclaredAmount: int64Ptr(51000),
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newOrderServiceFixture(t, nil)
			if _, err := fx.service.Create(context.Background(), tc.cmd); !errors.Is(err, ErrOrderInvalidInput) {
				t.Fatalf("Create error = %v, want ErrOrderInvalidInput", err)
			}
		})
	}
}

func TestOrderServiceCreateAnonymous(t *testing.T) {
	fx := newOrderServiceFixture(t, nil)

	order, err := fx.service.Create(context.Background(), CreateOrderCommand{
		Shipping:       map[string]string{"address": "12 Azadi St"},
		Items:          twoSaffronTins(),
		DeclaredAmount: int64Ptr(250000),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !order.Anonymous() {
		t.Errorf("order with no user should be anonymous, got user %q", order.UserID)
	}
}

func TestOrderServiceCreateSanitizesShipping(t *testing.T) {
	fx := newOrderServiceFixture(t, nil)

	order, err := fx.service.Create(context.Background(), CreateOrderCommand{
		Shipping: map[string]string{
			"address": `<script>alert(1)</script>12 Azadi St`,
			"note":    "  leave at door  ",
		},
		Items:          twoSaffronTins(),
		DeclaredAmount: int64Ptr(250000),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got := order.Shipping["address"]; strings.Contains(got, "<script>") {
		t.Errorf("address not sanitized: %q", got)
	}
	if got := order.Shipping["note"]; got != "leave at door" {
		t.Errorf("note = %q, want trimmed value", got)
	}
}

func TestOrderServiceRequestPayment(t *testing.T) {
	fx := newOrderServiceFixture(t, nil)
	fx.gateway.requestFn = func(_ context.Context, params payments.RequestPaymentParams) (payments.PaymentAuthority, error) {
		if params.Amount != 250000 {
			t.Errorf("gateway amount = %d, want 250000", params.Amount)
		}
		if !strings.Contains(params.CallbackURL, "order=code-1") {
			t.Errorf("callback %q does not carry the order code", params.CallbackURL)
		}
		return payments.PaymentAuthority{
			Authority:   "A1",
			RedirectURL: "https://gateway.example.com/startpay/A1",
		}, nil
	}

	created, err := fx.service.Create(context.Background(), CreateOrderCommand{
		Shipping:       map[string]string{"address": "x"},
		Items:          twoSaffronTins(),
		DeclaredAmount: int64Ptr(250000),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	result, err := fx.service.RequestPayment(context.Background(), RequestPaymentCommand{OrderCode: created.Code})
	if err != nil {
		t.Fatalf("RequestPayment: %v", err)
	}

	if result.PaymentURL != "https://gateway.example.com/startpay/A1" {
		t.Errorf("payment url = %q", result.PaymentURL)
	}
	if result.Order.PaymentAuthority != "A1" {
		t.Errorf("authority = %q, want A1", result.Order.PaymentAuthority)
	}

	stored, _ := fx.orders.FindByCode(context.Background(), created.Code)
	if stored.PaymentAuthority != "A1" {
		t.Errorf("stored authority = %q, want A1", stored.PaymentAuthority)
	}
}

func TestOrderServiceRequestPaymentReissueAfterFailure(t *testing.T) {
	fx := newOrderServiceFixture(t, nil)
	authorities := []string{"A1", "A2"}
	fx.gateway.requestFn = func(context.Context, payments.RequestPaymentParams) (payments.PaymentAuthority, error) {
		a := authorities[fx.gateway.requestCalls-1]
		return payments.PaymentAuthority{Authority: a, RedirectURL: "https://gw.example.com/startpay/" + a}, nil
	}

	created, err := fx.service.Create(context.Background(), CreateOrderCommand{
		Shipping:       map[string]string{"address": "x"},
		Items:          twoSaffronTins(),
		DeclaredAmount: int64Ptr(250000),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := fx.service.RequestPayment(context.Background(), RequestPaymentCommand{OrderCode: created.Code}); err != nil {
		t.Fatalf("first RequestPayment: %v", err)
	}

	// Simulate a failed verification so the order carries a stale authority.
	stored, _ := fx.orders.FindByCode(context.Background(), created.Code)
	stored.PaymentStatus = domain.PaymentStatusFailed
	if _, err := fx.orders.Update(context.Background(), stored); err != nil {
		t.Fatalf("seed failed order: %v", err)
	}

	result, err := fx.service.RequestPayment(context.Background(), RequestPaymentCommand{OrderCode: created.Code})
	if err != nil {
		t.Fatalf("second RequestPayment: %v", err)
	}
	if result.Order.PaymentAuthority != "A2" {
		t.Errorf("authority = %q, want A2", result.Order.PaymentAuthority)
	}
	if result.Order.PaymentStatus != domain.PaymentStatusUnpaid {
		t.Errorf("status = %q, want unpaid after re-issue", result.Order.PaymentStatus)
	}
}

func TestOrderServiceRequestPaymentPaidOrder(t *testing.T) {
	fx := newOrderServiceFixture(t, nil)

	created, err := fx.service.Create(context.Background(), CreateOrderCommand{
		Shipping:       map[string]string{"address": "x"},
		Items:          twoSaffronTins(),
		DeclaredAmount: int64Ptr(250000),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	created.PaymentStatus = domain.PaymentStatusPaid
	if _, err := fx.orders.Update(context.Background(), created); err != nil {
		t.Fatalf("seed paid order: %v", err)
	}

	if _, err := fx.service.RequestPayment(context.Background(), RequestPaymentCommand{OrderCode: created.Code}); !errors.Is(err, ErrOrderAlreadyPaid) {
		t.Fatalf("RequestPayment error = %v, want ErrOrderAlreadyPaid", err)
	}
	if fx.gateway.requestCalls != 0 {
		t.Errorf("gateway called %d times for a paid order, want 0", fx.gateway.requestCalls)
	}
}

func TestOrderServiceRequestPaymentMissingOrder(t *testing.T) {
	fx := newOrderServiceFixture(t, nil)

	if _, err := fx.service.RequestPayment(context.Background(), RequestPaymentCommand{OrderCode: "ghost"}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("RequestPayment error = %v, want ErrOrderNotFound", err)
	}
	if fx.gateway.requestCalls != 0 {
		t.Errorf("gateway called %d times for a missing order, want 0", fx.gateway.requestCalls)
	}
}

func TestOrderServiceRequestPaymentGatewayRejection(t *testing.T) {
	fx := newOrderServiceFixture(t, nil)
	fx.gateway.requestFn = func(context.Context, payments.RequestPaymentParams) (payments.PaymentAuthority, error) {
		return payments.PaymentAuthority{}, &payments.GatewayError{Code: -9, Detail: "invalid merchant"}
	}

	created, err := fx.service.Create(context.Background(), CreateOrderCommand{
		Shipping:       map[string]string{"address": "x"},
		Items:          twoSaffronTins(),
		DeclaredAmount: int64Ptr(250000),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = fx.service.RequestPayment(context.Background(), RequestPaymentCommand{OrderCode: created.Code})
	if !payments.IsGatewayRejection(err) {
		t.Fatalf("RequestPayment error = %v, want gateway rejection", err)
	}

	stored, _ := fx.orders.FindByCode(context.Background(), created.Code)
	if stored.PaymentAuthority != "" {
		t.Errorf("rejected request must not persist an authority, got %q", stored.PaymentAuthority)
	}
}

func seedOrderAwaitingVerification(t *testing.T, fx *orderServiceFixture) domain.Order {
	t.Helper()

	fx.gateway.requestFn = func(context.Context, payments.RequestPaymentParams) (payments.PaymentAuthority, error) {
		return payments.PaymentAuthority{Authority: "A1", RedirectURL: "https://gw.example.com/startpay/A1"}, nil
	}

	created, err := fx.service.Create(context.Background(), CreateOrderCommand{
		UserID:         "user-1",
		Shipping:       map[string]string{"address": "x"},
		Items:          twoSaffronTins(),
		DeclaredAmount: int64Ptr(250000),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	result, err := fx.service.RequestPayment(context.Background(), RequestPaymentCommand{OrderCode: created.Code})
	if err != nil {
		t.Fatalf("RequestPayment: %v", err)
	}
	return result.Order
}

func TestOrderServiceVerifyPaymentSuccess(t *testing.T) {
	fx := newOrderServiceFixture(t, nil)
	order := seedOrderAwaitingVerification(t, fx)

	fx.gateway.verifyFn = func(_ context.Context, params payments.VerifyPaymentParams) (payments.Verification, error) {
		if params.Amount != 250000 {
			t.Errorf("verify amount = %d, want 250000", params.Amount)
		}
		if params.Authority != "A1" {
			t.Errorf("verify authority = %q, want A1", params.Authority)
		}
		return payments.Verification{OK: true, RefID: "R9", Code: payments.OKCode}, nil
	}

	result, err := fx.service.VerifyPayment(context.Background(), VerifyPaymentCommand{
		OrderCode: order.Code,
		Authority: "A1",
	})
	if err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}
	if !result.Succeeded {
		t.Fatal("verification should have succeeded")
	}
	if result.RefID != "R9" {
		t.Errorf("ref id = %q, want R9", result.RefID)
	}
	if result.Order.PaymentStatus != domain.PaymentStatusPaid {
		t.Errorf("status = %q, want paid", result.Order.PaymentStatus)
	}

	stored, _ := fx.orders.FindByCode(context.Background(), order.Code)
	if stored.PaymentRefID != "R9" || stored.PaymentStatus != domain.PaymentStatusPaid {
		t.Errorf("stored order = %+v, want paid with ref R9", stored)
	}
}

func TestOrderServiceVerifyPaymentRejected(t *testing.T) {
	fx := newOrderServiceFixture(t, nil)
	order := seedOrderAwaitingVerification(t, fx)

	fx.gateway.verifyFn = func(context.Context, payments.VerifyPaymentParams) (payments.Verification, error) {
		return payments.Verification{OK: false, Code: -51, Detail: "payment cancelled"}, nil
	}

	result, err := fx.service.VerifyPayment(context.Background(), VerifyPaymentCommand{
		OrderCode: order.Code,
		Authority: "A1",
	})
	if err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}
	if result.Succeeded {
		t.Fatal("verification should have failed")
	}
	if result.Order.PaymentStatus != domain.PaymentStatusFailed {
		t.Errorf("status = %q, want failed", result.Order.PaymentStatus)
	}
	if result.Detail != "payment cancelled" {
		t.Errorf("detail = %q", result.Detail)
	}
}

func TestOrderServiceVerifyPaymentIdempotentOnPaid(t *testing.T) {
	fx := newOrderServiceFixture(t, nil)
	order := seedOrderAwaitingVerification(t, fx)

	fx.gateway.verifyFn = func(context.Context, payments.VerifyPaymentParams) (payments.Verification, error) {
		return payments.Verification{OK: true, RefID: "R9", Code: payments.OKCode}, nil
	}
	if _, err := fx.service.VerifyPayment(context.Background(), VerifyPaymentCommand{OrderCode: order.Code, Authority: "A1"}); err != nil {
		t.Fatalf("first VerifyPayment: %v", err)
	}

	// A duplicate callback must not reach the gateway or change the order.
	fx.gateway.verifyFn = func(context.Context, payments.VerifyPaymentParams) (payments.Verification, error) {
		return payments.Verification{OK: false, Code: -51}, nil
	}
	callsBefore := fx.gateway.verifyCalls

	result, err := fx.service.VerifyPayment(context.Background(), VerifyPaymentCommand{OrderCode: order.Code, Authority: "A1"})
	if err != nil {
		t.Fatalf("second VerifyPayment: %v", err)
	}
	if !result.Succeeded {
		t.Fatal("re-verification of a paid order must report success")
	}
	if result.RefID != "R9" {
		t.Errorf("ref id = %q, want original R9", result.RefID)
	}
	if fx.gateway.verifyCalls != callsBefore {
		t.Errorf("gateway verify called again for a paid order")
	}
	stored, _ := fx.orders.FindByCode(context.Background(), order.Code)
	if stored.PaymentStatus != domain.PaymentStatusPaid {
		t.Errorf("stored status = %q, want paid", stored.PaymentStatus)
	}
}

func TestOrderServiceVerifyPaymentMissingOrder(t *testing.T) {
	fx := newOrderServiceFixture(t, nil)

	if _, err := fx.service.VerifyPayment(context.Background(), VerifyPaymentCommand{OrderCode: "ghost", Authority: "A1"}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("VerifyPayment error = %v, want ErrOrderNotFound", err)
	}
	if fx.gateway.verifyCalls != 0 {
		t.Errorf("gateway called %d times for a missing order, want 0", fx.gateway.verifyCalls)
	}
}

func TestOrderServiceVerifyPaymentAuthorityMismatch(t *testing.T) {
	fx := newOrderServiceFixture(t, nil)
	order := seedOrderAwaitingVerification(t, fx)

	if _, err := fx.service.VerifyPayment(context.Background(), VerifyPaymentCommand{OrderCode: order.Code, Authority: "A2"}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("VerifyPayment error = %v, want ErrOrderNotFound for mismatched authority", err)
	}
	if fx.gateway.verifyCalls != 0 {
		t.Errorf("gateway called for a mismatched authority")
	}
}

func TestOrderServiceVerifyPaymentTransportFailure(t *testing.T) {
	fx := newOrderServiceFixture(t, nil)
	order := seedOrderAwaitingVerification(t, fx)

	fx.gateway.verifyFn = func(context.Context, payments.VerifyPaymentParams) (payments.Verification, error) {
		return payments.Verification{}, &payments.TransportError{Op: "verify", Err: errors.New("connection refused")}
	}

	_, err := fx.service.VerifyPayment(context.Background(), VerifyPaymentCommand{OrderCode: order.Code, Authority: "A1"})
	if !payments.IsTransportFailure(err) {
		t.Fatalf("VerifyPayment error = %v, want transport failure", err)
	}

	// The order must remain unresolved so verification can be retried.
	stored, _ := fx.orders.FindByCode(context.Background(), order.Code)
	if stored.PaymentStatus != domain.PaymentStatusUnpaid {
		t.Errorf("stored status = %q, want unpaid after transport failure", stored.PaymentStatus)
	}
}

func TestOrderServiceListAllJoinsUsernames(t *testing.T) {
	fx := newOrderServiceFixture(t, nil)

	owner, err := fx.users.Create(context.Background(), domain.User{Username: "maryam", Email: "maryam@example.com"})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	if _, err := fx.service.Create(context.Background(), CreateOrderCommand{
		UserID:         owner.ID,
		Shipping:       map[string]string{"address": "x"},
		Items:          twoSaffronTins(),
		DeclaredAmount: int64Ptr(250000),
	}); err != nil {
		t.Fatalf("Create owned: %v", err)
	}
	if _, err := fx.service.Create(context.Background(), CreateOrderCommand{
		Shipping:       map[string]string{"address": "y"},
		Items:          twoSaffronTins(),
		DeclaredAmount: int64Ptr(250000),
	}); err != nil {
		t.Fatalf("Create anonymous: %v", err)
	}

	rows, err := fx.service.ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}

	byCode := make(map[string]AdminOrderRow, len(rows))
	for _, row := range rows {
		byCode[row.Order.Code] = row
	}
	if got := byCode["code-1"].Username; got != "maryam" {
		t.Errorf("owned order username = %q, want maryam", got)
	}
	if got := byCode["code-2"].Username; got != "" {
		t.Errorf("anonymous order username = %q, want empty", got)
	}
}

func TestOrderServiceEventPublishFailureDoesNotFailRequest(t *testing.T) {
	fx := newOrderServiceFixture(t, func(deps *OrderServiceDeps) {
		deps.Events = &recordingPublisher{err: errors.New("topic unavailable")}
	})

	if _, err := fx.service.Create(context.Background(), CreateOrderCommand{
		Shipping:       map[string]string{"address": "x"},
		Items:          twoSaffronTins(),
		DeclaredAmount: int64Ptr(250000),
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}
}
