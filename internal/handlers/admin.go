package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/saffron-market/api/internal/platform/auth"
	"github.com/saffron-market/api/internal/platform/httpx"
	"github.com/saffron-market/api/internal/platform/requestctx"
	"github.com/saffron-market/api/internal/services"
)

// AdminHandlers exposes the back-office order listing.
type AdminHandlers struct {
	orders services.OrderService
	authn  *auth.Middleware
}

// NewAdminHandlers constructs the admin endpoints guarded by bearer authentication.
func NewAdminHandlers(orders services.OrderService, authn *auth.Middleware) *AdminHandlers {
	return &AdminHandlers{orders: orders, authn: authn}
}

// Routes registers the admin endpoints under the provided router.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.Required())
	}
	group.Get("/orders-data", h.ordersData)
}

type adminOrderResponse struct {
	orderResponse
	Username string `json:"username,omitempty"`
}

func (h *AdminHandlers) ordersData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	rows, err := h.orders.ListAll(ctx)
	if err != nil {
		requestctx.Logger(ctx).Error("admin order listing failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "could not list orders", http.StatusInternalServerError))
		return
	}

	out := make([]adminOrderResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, adminOrderResponse{
			orderResponse: toOrderResponse(row.Order),
			Username:      row.Username,
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"orders": out})
}
