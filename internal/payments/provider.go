package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// OKCode is the gateway response code signalling success for both the
// payment-request and payment-verify operations.
const OKCode = 100

// ErrUnsupportedProvider is returned when the registry cannot locate a provider.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// RequestPaymentParams carries the payload for initiating a payment attempt.
type RequestPaymentParams struct {
	Amount      int64
	Description string
	CallbackURL string
}

// PaymentAuthority is the gateway token identifying one payment attempt,
// together with the URL the customer must be redirected to.
type PaymentAuthority struct {
	Authority   string
	RedirectURL string
}

// VerifyPaymentParams carries the payload for confirming a payment outcome.
type VerifyPaymentParams struct {
	Amount    int64
	Authority string
}

// Verification is the normalised verify outcome. A rejected payment is a
// legitimate terminal result (OK=false), not an error.
type Verification struct {
	OK     bool
	RefID  string
	Code   int
	Detail string
}

// Provider is the contract payment gateway adapters implement.
type Provider interface {
	// RequestPayment obtains an authority for the given amount. A gateway
	// rejection surfaces as *GatewayError; network failures as *TransportError.
	RequestPayment(ctx context.Context, params RequestPaymentParams) (PaymentAuthority, error)
	// VerifyPayment confirms the outcome of a payment attempt. Rejection is
	// reported through Verification.OK, never as an error; only transport or
	// protocol failures return a non-nil error.
	VerifyPayment(ctx context.Context, params VerifyPaymentParams) (Verification, error)
}

// GatewayError is a gateway-side rejection of a payment request, carrying the
// raw response code and detail for diagnostics.
type GatewayError struct {
	Code   int
	Detail string
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	if e == nil {
		return ""
	}
	if e.Detail != "" {
		return fmt.Sprintf("payments: gateway rejected request (code %d): %s", e.Code, e.Detail)
	}
	return fmt.Sprintf("payments: gateway rejected request (code %d)", e.Code)
}

// TransportError is a network or timeout failure reaching the gateway, distinct
// from a gateway-level rejection; callers may retry.
type TransportError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("payments: %s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying error.
func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsGatewayRejection reports whether err is a gateway-side rejection.
func IsGatewayRejection(err error) bool {
	var gw *GatewayError
	return errors.As(err, &gw)
}

// IsTransportFailure reports whether err is a network/timeout failure.
func IsTransportFailure(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// Registry selects a Provider by configured name.
type Registry struct {
	providers map[string]Provider
	fallback  string
}

// NewRegistry constructs a Registry over the supplied providers. The first
// registered name becomes the fallback unless overridden by SetDefault.
func NewRegistry(providers map[string]Provider) (*Registry, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	registry := &Registry{providers: make(map[string]Provider, len(providers))}
	for name, provider := range providers {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" || provider == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", name)
		}
		registry.providers[key] = provider
		if registry.fallback == "" {
			registry.fallback = key
		}
	}
	return registry, nil
}

// SetDefault overrides the fallback provider name.
func (r *Registry) SetDefault(name string) error {
	key := strings.ToLower(strings.TrimSpace(name))
	if _, ok := r.providers[key]; !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedProvider, name)
	}
	r.fallback = key
	return nil
}

// Resolve returns the provider registered under name, or the fallback when
// name is empty.
func (r *Registry) Resolve(name string) (Provider, error) {
	if r == nil || len(r.providers) == 0 {
		return nil, errors.New("payments: no providers registered")
	}
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = r.fallback
	}
	provider, ok := r.providers[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, name)
	}
	return provider, nil
}
