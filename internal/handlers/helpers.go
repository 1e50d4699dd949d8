package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/saffron-market/api/internal/domain"
	"github.com/saffron-market/api/internal/platform/httpx"
)

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body exceeds the allowed size")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeRequest reads a JSON body bounded by limit into dst, writing the error
// response itself when the body is unusable.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any, limit int64) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, limit)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

type orderLineResponse struct {
	ProductID string `json:"productId"`
	Name      string `json:"name,omitempty"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
}

type orderResponse struct {
	ID               string              `json:"id"`
	UserID           string              `json:"userId,omitempty"`
	ShippingInfo     map[string]string   `json:"shippingInfo"`
	Products         []orderLineResponse `json:"products"`
	Subtotal         int64               `json:"subtotal"`
	ShippingFee      int64               `json:"shippingFee"`
	Amount           int64               `json:"amount"`
	PaymentAuthority string              `json:"paymentAuthority,omitempty"`
	PaymentStatus    string              `json:"paymentStatus"`
	PaymentRefID     string              `json:"paymentRefId,omitempty"`
	CreatedAt        string              `json:"createdAt,omitempty"`
	UpdatedAt        string              `json:"updatedAt,omitempty"`
}

func toOrderResponse(order domain.Order) orderResponse {
	products := make([]orderLineResponse, 0, len(order.Items))
	for _, item := range order.Items {
		products = append(products, orderLineResponse{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}
	return orderResponse{
		ID:               order.Code,
		UserID:           order.UserID,
		ShippingInfo:     order.Shipping,
		Products:         products,
		Subtotal:         order.Subtotal,
		ShippingFee:      order.ShippingFee,
		Amount:           order.Total,
		PaymentAuthority: order.PaymentAuthority,
		PaymentStatus:    string(order.PaymentStatus),
		PaymentRefID:     order.PaymentRefID,
		CreatedAt:        formatTime(order.CreatedAt),
		UpdatedAt:        formatTime(order.UpdatedAt),
	}
}

func toOrderResponses(orders []domain.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		out = append(out, toOrderResponse(order))
	}
	return out
}
