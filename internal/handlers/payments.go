package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/saffron-market/api/internal/payments"
	"github.com/saffron-market/api/internal/platform/httpx"
	"github.com/saffron-market/api/internal/platform/requestctx"
	"github.com/saffron-market/api/internal/repositories"
	"github.com/saffron-market/api/internal/services"
)

// Payment bodies carry only an order code and authority.
const maxPaymentRequestBody = 8 * 1024

// PaymentHandlers exposes the payment request and verification endpoints.
type PaymentHandlers struct {
	orders services.OrderService
}

// NewPaymentHandlers constructs the payment endpoints over the order service.
func NewPaymentHandlers(orders services.OrderService) *PaymentHandlers {
	return &PaymentHandlers{orders: orders}
}

// Routes registers the payment endpoints under the provided router. Both are
// unauthenticated: the order code plus authority pair is the capability.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/request-payment", h.requestPayment)
	r.Post("/verify-payment", h.verifyPayment)
}

type requestPaymentRequest struct {
	OrderID string `json:"orderId"`
}

type verifyPaymentRequest struct {
	OrderID   string `json:"orderId"`
	Authority string `json:"authority"`
}

func (h *PaymentHandlers) requestPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payments_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req requestPaymentRequest
	if !decodeRequest(w, r, &req, maxPaymentRequestBody) {
		return
	}

	result, err := h.orders.RequestPayment(ctx, services.RequestPaymentCommand{
		OrderCode:        req.OrderID,
		CallbackFallback: callbackFallback(r),
	})
	if err != nil {
		h.writeRequestPaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"payment_url": result.PaymentURL,
		"order":       toOrderResponse(result.Order),
	})
}

func (h *PaymentHandlers) writeRequestPaymentError(ctx context.Context, w http.ResponseWriter, err error) {
	var gatewayErr *payments.GatewayError
	switch {
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "no order matches the given identifier", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderAlreadyPaid):
		httpx.WriteError(ctx, w, httpx.NewError("order_already_paid", "order has already been paid", http.StatusBadRequest))
	case repositories.IsConflict(err):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order was modified concurrently; retry", http.StatusConflict))
	case errors.As(err, &gatewayErr):
		httpx.WriteError(ctx, w, httpx.NewError("gateway_rejected", "payment gateway rejected the request", http.StatusInternalServerError).
			WithDetails(map[string]any{"code": gatewayErr.Code, "detail": gatewayErr.Detail}))
	case payments.IsTransportFailure(err):
		requestctx.Logger(ctx).Error("payment gateway unreachable", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("gateway_unavailable", "payment gateway is unreachable", http.StatusInternalServerError))
	default:
		requestctx.Logger(ctx).Error("request payment failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "could not request payment", http.StatusInternalServerError))
	}
}

func (h *PaymentHandlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payments_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req verifyPaymentRequest
	if !decodeRequest(w, r, &req, maxPaymentRequestBody) {
		return
	}

	result, err := h.orders.VerifyPayment(ctx, services.VerifyPaymentCommand{
		OrderCode: req.OrderID,
		Authority: req.Authority,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrOrderNotFound):
			httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "no order matches the given identifier and authority", http.StatusNotFound))
		case errors.Is(err, services.ErrOrderInvalidInput):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		case payments.IsTransportFailure(err):
			requestctx.Logger(ctx).Error("payment gateway unreachable", zap.Error(err))
			httpx.WriteError(ctx, w, httpx.NewError("gateway_unavailable", "payment gateway is unreachable", http.StatusInternalServerError))
		default:
			requestctx.Logger(ctx).Error("verify payment failed", zap.Error(err))
			httpx.WriteError(ctx, w, httpx.NewError("internal_error", "could not verify payment", http.StatusInternalServerError))
		}
		return
	}

	payload := map[string]any{
		"success": result.Succeeded,
		"order":   toOrderResponse(result.Order),
	}
	if result.Succeeded {
		payload["ref_id"] = result.RefID
		writeJSONResponse(w, http.StatusOK, payload)
		return
	}
	payload["detail"] = result.Detail
	writeJSONResponse(w, http.StatusBadRequest, payload)
}

// callbackFallback derives a callback base from the incoming request for
// deployments without a configured callback URL.
func callbackFallback(r *http.Request) string {
	scheme := "https"
	if r.TLS == nil {
		if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
			scheme = forwarded
		} else {
			scheme = "http"
		}
	}
	u := url.URL{Scheme: scheme, Host: r.Host, Path: "/api/verify-payment"}
	return u.String()
}
