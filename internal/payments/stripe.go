package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/jara-commerce/api/internal/domain"
)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeConfig configures the card gateway.
type StripeConfig struct {
	APIKey    string
	AccountID string
	Currency  string
	Backends  *stripe.Backends
	Logger    GatewayLogger

	intents stripePaymentIntentAPI
}

// StripeGateway settles card payments through Stripe PaymentIntents.
type StripeGateway struct {
	intents  stripePaymentIntentAPI
	account  string
	currency string
	logger   GatewayLogger
}

var _ Gateway = (*StripeGateway)(nil)

// NewStripeGateway constructs the card gateway.
func NewStripeGateway(cfg StripeConfig) (*StripeGateway, error) {
	intents := cfg.intents
	if intents == nil {
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		intents = client.New(apiKey, cfg.Backends).PaymentIntents
	}
	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "npr"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &StripeGateway{
		intents:  intents,
		account:  strings.TrimSpace(cfg.AccountID),
		currency: currency,
		logger:   logger,
	}, nil
}

func (g *StripeGateway) Method() domain.PaymentMethod { return domain.PaymentMethodCard }

// Initiate creates a PaymentIntent for the order total. Amounts are already minor units.
func (g *StripeGateway) Initiate(ctx context.Context, req InitiateRequest) (Handle, error) {
	if req.Amount <= 0 {
		return Handle{}, fmt.Errorf("stripe: amount must be positive, got %d", req.Amount)
	}
	currency := g.currency
	if c := strings.TrimSpace(req.Currency); c != "" {
		currency = strings.ToLower(c)
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(currency),
		Metadata: map[string]string{
			"order_id": req.OrderID,
			"user_id":  req.UserID,
		},
	}
	if req.OrderNumber != "" {
		params.Metadata["order_number"] = req.OrderNumber
	}
	if req.Email != "" {
		params.ReceiptEmail = stripe.String(req.Email)
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if g.account != "" {
		params.SetStripeAccount(g.account)
	}

	intent, err := g.intents.New(params)
	if err != nil {
		return Handle{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}
	g.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"orderId":       req.OrderID,
	})
	return Handle{
		Reference:    intent.ID,
		ClientSecret: intent.ClientSecret,
	}, nil
}

// Verify retrieves the intent and settles only when Stripe reports it succeeded.
func (g *StripeGateway) Verify(ctx context.Context, req VerifyRequest) (Verification, error) {
	id := strings.TrimSpace(req.Reference)
	if id == "" {
		return Verification{}, errors.New("stripe: payment intent id is required")
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	if g.account != "" {
		params.SetStripeAccount(g.account)
	}

	intent, err := g.intents.Get(id, params)
	if err != nil {
		return Verification{}, fmt.Errorf("stripe: retrieve payment intent: %w", err)
	}
	if orderID := intent.Metadata["order_id"]; orderID != "" && req.OrderID != "" && orderID != req.OrderID {
		return Verification{Reason: "intent belongs to another order"}, nil
	}
	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		return Verification{TransactionID: intent.ID, Reason: "intent status " + string(intent.Status)}, nil
	}
	return Verification{Settled: true, TransactionID: intent.ID}, nil
}
