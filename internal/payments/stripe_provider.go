package payments

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey   string
	Currency string
	Logger   GatewayLogger
	Sessions stripeSessionAPI
}

// StripeProvider adapts Stripe Checkout to the Provider contract: the checkout
// session id stands in for the gateway authority, the hosted session URL is the
// redirect target, and the payment intent id becomes the settlement reference.
type StripeProvider struct {
	sessions stripeSessionAPI
	currency string
	logger   GatewayLogger
}

// NewStripeProvider constructs a Stripe-backed Provider.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Sessions == nil {
		return nil, errors.New("stripe: api key is required")
	}

	sessions := cfg.Sessions
	if sessions == nil {
		sc := client.New(apiKey, nil)
		sessions = sc.CheckoutSessions
	}

	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "usd"
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		sessions: sessions,
		currency: currency,
		logger:   logger,
	}, nil
}

// RequestPayment creates a Stripe Checkout session for the amount.
func (p *StripeProvider) RequestPayment(ctx context.Context, params RequestPaymentParams) (PaymentAuthority, error) {
	if p == nil || p.sessions == nil {
		return PaymentAuthority{}, errors.New("stripe: provider not initialised")
	}

	sessionParams := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(params.CallbackURL),
		CancelURL:  stripe.String(params.CallbackURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(p.currency),
					UnitAmount: stripe.Int64(params.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(orDefault(params.Description, "order payment")),
					},
				},
			},
		},
	}
	sessionParams.Context = ctx

	session, err := p.sessions.New(sessionParams)
	if err != nil {
		return PaymentAuthority{}, wrapStripeErr("request", err)
	}

	p.logger(ctx, "stripe.session.created", map[string]any{"session": session.ID})
	return PaymentAuthority{
		Authority:   session.ID,
		RedirectURL: session.URL,
	}, nil
}

// VerifyPayment looks up the Checkout session and reports whether Stripe
// considers it paid.
func (p *StripeProvider) VerifyPayment(ctx context.Context, params VerifyPaymentParams) (Verification, error) {
	if p == nil || p.sessions == nil {
		return Verification{}, errors.New("stripe: provider not initialised")
	}

	getParams := &stripe.CheckoutSessionParams{}
	getParams.Context = ctx

	session, err := p.sessions.Get(params.Authority, getParams)
	if err != nil {
		return Verification{}, wrapStripeErr("verify", err)
	}

	if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return Verification{
			Detail: "stripe session not paid: " + string(session.PaymentStatus),
		}, nil
	}

	refID := session.ID
	if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
		refID = session.PaymentIntent.ID
	}

	p.logger(ctx, "stripe.session.paid", map[string]any{"session": session.ID, "ref_id": refID})
	return Verification{OK: true, Code: OKCode, RefID: refID}, nil
}

func wrapStripeErr(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return &GatewayError{
			Code:   stripeErr.HTTPStatusCode,
			Detail: stripeErr.Msg,
		}
	}
	return &TransportError{Op: op, Err: err}
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
