package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultRequestTimeout = 10 * time.Second
	maxResponseBody       = 64 * 1024
)

// GatewayLogger defines the logging contract for gateway operations.
type GatewayLogger func(ctx context.Context, event string, fields map[string]any)

// GatewayProviderConfig configures the HTTP gateway provider.
type GatewayProviderConfig struct {
	MerchantID  string
	RequestURL  string
	VerifyURL   string
	StartPayURL string
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      GatewayLogger
}

// GatewayProvider talks to the payment gateway's JSON API. The gateway signals
// success on both operations with response code 100; any other code is a
// rejection carrying diagnostic detail.
type GatewayProvider struct {
	merchantID  string
	requestURL  string
	verifyURL   string
	startPayURL string
	client      *http.Client
	logger      GatewayLogger
}

// NewGatewayProvider constructs the default gateway provider.
func NewGatewayProvider(cfg GatewayProviderConfig) (*GatewayProvider, error) {
	merchantID := strings.TrimSpace(cfg.MerchantID)
	if merchantID == "" {
		return nil, errors.New("gateway: merchant id is required")
	}
	if strings.TrimSpace(cfg.RequestURL) == "" || strings.TrimSpace(cfg.VerifyURL) == "" {
		return nil, errors.New("gateway: request and verify endpoints are required")
	}
	if strings.TrimSpace(cfg.StartPayURL) == "" {
		return nil, errors.New("gateway: startpay base url is required")
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultRequestTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &GatewayProvider{
		merchantID:  merchantID,
		requestURL:  strings.TrimSpace(cfg.RequestURL),
		verifyURL:   strings.TrimSpace(cfg.VerifyURL),
		startPayURL: strings.TrimRight(strings.TrimSpace(cfg.StartPayURL), "/"),
		client:      client,
		logger:      logger,
	}, nil
}

type gatewayRequestBody struct {
	MerchantID  string `json:"merchant_id"`
	Amount      int64  `json:"amount"`
	Description string `json:"description,omitempty"`
	CallbackURL string `json:"callback_url,omitempty"`
	Authority   string `json:"authority,omitempty"`
}

type gatewayResponse struct {
	Data struct {
		Code      int         `json:"code"`
		Message   string      `json:"message"`
		Authority string      `json:"authority"`
		RefID     json.Number `json:"ref_id"`
	} `json:"data"`
	Errors json.RawMessage `json:"errors"`
}

// RequestPayment issues a payment-request call and returns the authority on
// gateway code 100.
func (p *GatewayProvider) RequestPayment(ctx context.Context, params RequestPaymentParams) (PaymentAuthority, error) {
	if p == nil {
		return PaymentAuthority{}, errors.New("gateway: provider is nil")
	}

	body := gatewayRequestBody{
		MerchantID:  p.merchantID,
		Amount:      params.Amount,
		Description: params.Description,
		CallbackURL: params.CallbackURL,
	}

	resp, err := p.post(ctx, "request", p.requestURL, body)
	if err != nil {
		return PaymentAuthority{}, err
	}

	if resp.Data.Code != OKCode {
		p.logger(ctx, "gateway.request.rejected", map[string]any{
			"code":   resp.Data.Code,
			"detail": resp.Data.Message,
		})
		return PaymentAuthority{}, &GatewayError{Code: resp.Data.Code, Detail: rejectionDetail(resp)}
	}

	authority := strings.TrimSpace(resp.Data.Authority)
	if authority == "" {
		return PaymentAuthority{}, &TransportError{Op: "request", Err: errors.New("gateway returned success without an authority")}
	}

	p.logger(ctx, "gateway.request.accepted", map[string]any{"authority": authority})
	return PaymentAuthority{
		Authority:   authority,
		RedirectURL: p.startPayURL + "/" + authority,
	}, nil
}

// VerifyPayment issues a payment-verify call. A non-100 code is reported as a
// rejected Verification, not as an error.
func (p *GatewayProvider) VerifyPayment(ctx context.Context, params VerifyPaymentParams) (Verification, error) {
	if p == nil {
		return Verification{}, errors.New("gateway: provider is nil")
	}

	body := gatewayRequestBody{
		MerchantID: p.merchantID,
		Amount:     params.Amount,
		Authority:  params.Authority,
	}

	resp, err := p.post(ctx, "verify", p.verifyURL, body)
	if err != nil {
		return Verification{}, err
	}

	if resp.Data.Code != OKCode {
		p.logger(ctx, "gateway.verify.rejected", map[string]any{
			"code":   resp.Data.Code,
			"detail": resp.Data.Message,
		})
		return Verification{Code: resp.Data.Code, Detail: rejectionDetail(resp)}, nil
	}

	refID := strings.TrimSpace(resp.Data.RefID.String())
	p.logger(ctx, "gateway.verify.confirmed", map[string]any{"ref_id": refID})
	return Verification{OK: true, Code: resp.Data.Code, RefID: refID}, nil
}

func (p *GatewayProvider) post(ctx context.Context, op, url string, body gatewayRequestBody) (gatewayResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return gatewayResponse{}, fmt.Errorf("gateway: encode %s payload: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return gatewayResponse{}, fmt.Errorf("gateway: build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	httpResp, err := p.client.Do(req)
	if err != nil {
		return gatewayResponse{}, &TransportError{Op: op, Err: err}
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return gatewayResponse{}, &TransportError{Op: op, Err: err}
	}

	if httpResp.StatusCode >= http.StatusInternalServerError {
		return gatewayResponse{}, &TransportError{Op: op, Err: fmt.Errorf("gateway returned status %d", httpResp.StatusCode)}
	}

	var resp gatewayResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return gatewayResponse{}, &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return resp, nil
}

func rejectionDetail(resp gatewayResponse) string {
	detail := strings.TrimSpace(resp.Data.Message)
	if detail == "" && len(resp.Errors) > 0 && string(resp.Errors) != "[]" && string(resp.Errors) != "null" {
		detail = string(resp.Errors)
	}
	if detail == "" {
		detail = fmt.Sprintf("gateway code %d", resp.Data.Code)
	}
	return detail
}
