package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/saffron-market/api/internal/domain"
	"github.com/saffron-market/api/internal/platform/auth"
	"github.com/saffron-market/api/internal/platform/httpx"
	"github.com/saffron-market/api/internal/platform/requestctx"
	"github.com/saffron-market/api/internal/services"
)

const maxOrderRequestBody = 64 * 1024

// OrderHandlers exposes order creation and retrieval endpoints.
type OrderHandlers struct {
	orders services.OrderService
	authn  *auth.Middleware
}

// NewOrderHandlers constructs the order endpoints over the order service.
func NewOrderHandlers(orders services.OrderService, authn *auth.Middleware) *OrderHandlers {
	return &OrderHandlers{orders: orders, authn: authn}
}

// Routes registers the order endpoints under the provided router. Creation
// accepts an optional credential so guests can check out; the personal listing
// requires one.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}

	create := r
	listing := r
	if h.authn != nil {
		create = create.With(h.authn.Optional())
		listing = listing.With(h.authn.Required())
	}
	create.Post("/create-order", h.createOrder)
	listing.Get("/my-orders", h.myOrders)
	r.Get("/orders/{orderID}", h.getOrder)
}

type createOrderRequest struct {
	ShippingInfo map[string]string  `json:"shippingInfo"`
	Products     []orderLineRequest `json:"products"`
	Amount       *int64             `json:"amount"`
}

type orderLineRequest struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req createOrderRequest
	if !decodeRequest(w, r, &req, maxOrderRequestBody) {
		return
	}

	items := make([]domain.OrderLine, 0, len(req.Products))
	for _, line := range req.Products {
		items = append(items, domain.OrderLine{
			ProductID: line.ProductID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
		})
	}

	cmd := services.CreateOrderCommand{
		Shipping:       req.ShippingInfo,
		Items:          items,
		DeclaredAmount: req.Amount,
	}
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity.Valid() {
		cmd.UserID = identity.UserID
	}

	order, err := h.orders.Create(ctx, cmd)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAmountMismatch):
			httpx.WriteError(ctx, w, httpx.NewError("amount_mismatch", "declared amount does not match the computed total", http.StatusBadRequest))
		case errors.Is(err, services.ErrOrderInvalidInput):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		default:
			requestctx.Logger(ctx).Error("create order failed", zap.Error(err))
			httpx.WriteError(ctx, w, httpx.NewError("internal_error", "could not create order", http.StatusInternalServerError))
		}
		return
	}

	writeJSONResponse(w, http.StatusCreated, map[string]any{"order": toOrderResponse(order)})
}

func (h *OrderHandlers) myOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || !identity.Valid() {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	orders, err := h.orders.ListByUser(ctx, identity.UserID)
	if err != nil {
		requestctx.Logger(ctx).Error("list user orders failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "could not list orders", http.StatusInternalServerError))
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"orders": toOrderResponses(orders)})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	code := strings.TrimSpace(chi.URLParam(r, "orderID"))
	order, err := h.orders.GetByCode(ctx, code)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrOrderNotFound), errors.Is(err, services.ErrOrderInvalidInput):
			httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "no order matches the given identifier", http.StatusNotFound))
		default:
			requestctx.Logger(ctx).Error("get order failed", zap.Error(err))
			httpx.WriteError(ctx, w, httpx.NewError("internal_error", "could not load order", http.StatusInternalServerError))
		}
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"order": toOrderResponse(order)})
}
