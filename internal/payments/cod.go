package payments

import (
	"context"

	"github.com/jara-commerce/api/internal/domain"
)

// CODGateway settles cash on delivery. Nothing leaves the process; settlement is trusted to the
// courier collecting cash.
type CODGateway struct{}

var _ Gateway = CODGateway{}

func (CODGateway) Method() domain.PaymentMethod { return domain.PaymentMethodCOD }

func (CODGateway) Initiate(_ context.Context, req InitiateRequest) (Handle, error) {
	return Handle{Reference: "cod_" + req.OrderID}, nil
}

func (CODGateway) Verify(context.Context, VerifyRequest) (Verification, error) {
	return Verification{Settled: true}, nil
}
