package payments

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jara-commerce/api/internal/domain"
)

var (
	// ErrUnsupportedMethod is returned when no gateway is registered for a payment method.
	ErrUnsupportedMethod = errors.New("payments: unsupported payment method")
	// ErrInitiationFailed wraps any gateway failure while starting a payment.
	ErrInitiationFailed = errors.New("payments: initiation failed")
	// ErrVerificationFailed wraps any gateway failure while verifying a payment.
	ErrVerificationFailed = errors.New("payments: verification failed")
)

// InitiateRequest carries the order data a gateway needs to start a payment. Amount is in minor
// units. PaymentID is the attempt's record id, from which merchant references are derived.
type InitiateRequest struct {
	OrderID        string
	OrderNumber    string
	UserID         string
	Email          string
	Amount         int64
	Currency       string
	PaymentID      string
	IdempotencyKey string
}

// Handle is what a gateway hands back after initiation. Raw holds the wallet gateway's response
// verbatim; ClientSecret is only set for card payments.
type Handle struct {
	Method       domain.PaymentMethod
	Reference    string
	ClientSecret string
	Raw          json.RawMessage
}

// VerifyRequest carries the data a gateway needs to confirm settlement. Reference is the card
// intent id; Callback holds wallet redirect parameters (PRN, BID, AMT, UID).
type VerifyRequest struct {
	OrderID   string
	Amount    int64
	Reference string
	Callback  map[string]string
}

// Verification reports whether the gateway considers the payment settled.
type Verification struct {
	Settled       bool
	TransactionID string
	Reason        string
}

// Gateway is one payment rail.
type Gateway interface {
	Method() domain.PaymentMethod
	Initiate(ctx context.Context, req InitiateRequest) (Handle, error)
	Verify(ctx context.Context, req VerifyRequest) (Verification, error)
}

// GatewayLogger receives structured gateway events.
type GatewayLogger func(ctx context.Context, event string, fields map[string]any)
