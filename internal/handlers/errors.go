package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/jara-commerce/api/internal/platform/httpx"
	"github.com/jara-commerce/api/internal/repositories"
	"github.com/jara-commerce/api/internal/services"
)

type errorMapping struct {
	target error
	code   string
	status int
}

// serviceErrorMappings is checked in order; the first match wins.
var serviceErrorMappings = []errorMapping{
	{services.ErrNotAuthorized, "forbidden", http.StatusForbidden},

	{services.ErrOrderNotFound, "order_not_found", http.StatusNotFound},
	{services.ErrProductNotFound, "product_not_found", http.StatusNotFound},
	{services.ErrPaymentNotFound, "payment_not_found", http.StatusNotFound},
	{services.ErrPromotionNotFound, "promotion_not_found", http.StatusNotFound},
	{services.ErrReturnNotFound, "return_not_found", http.StatusNotFound},
	{services.ErrShippingZoneNotFound, "shipping_zone_not_found", http.StatusNotFound},

	{services.ErrProductConflict, "product_conflict", http.StatusConflict},
	{services.ErrPromotionConflict, "promotion_conflict", http.StatusConflict},
	{services.ErrShippingZoneConflict, "shipping_zone_conflict", http.StatusConflict},
	{services.ErrOrderConflict, "order_conflict", http.StatusConflict},

	{services.ErrInsufficientStock, "insufficient_stock", http.StatusBadRequest},
	{services.ErrProductUnavailable, "product_unavailable", http.StatusBadRequest},
	{services.ErrInventoryInvalidInput, "invalid_request", http.StatusBadRequest},
	{services.ErrProductInvalidInput, "invalid_request", http.StatusBadRequest},
	{services.ErrShippingUnavailable, "shipping_unavailable", http.StatusBadRequest},
	{services.ErrShippingZoneInvalid, "invalid_shipping_zone", http.StatusBadRequest},
	{services.ErrMinimumOrderNotMet, "minimum_order_not_met", http.StatusBadRequest},
	{services.ErrInvalidPromoCode, "invalid_promo_code", http.StatusBadRequest},
	{services.ErrInvalidStatusTransition, "invalid_status_transition", http.StatusBadRequest},
	{services.ErrCannotCancel, "cannot_cancel", http.StatusBadRequest},
	{services.ErrPaymentRequired, "payment_required", http.StatusBadRequest},
	{services.ErrAlreadyPaid, "already_paid", http.StatusBadRequest},
	{services.ErrUnsupportedPaymentMethod, "unsupported_payment_method", http.StatusBadRequest},
	{services.ErrPaymentInitiationFailed, "payment_initiation_failed", http.StatusBadRequest},
	{services.ErrPaymentVerificationFailed, "payment_verification_failed", http.StatusBadRequest},
	{services.ErrPaymentInvalidInput, "invalid_request", http.StatusBadRequest},
	{services.ErrReturnNotAllowed, "return_not_allowed", http.StatusBadRequest},
	{services.ErrReturnWindowExpired, "return_window_expired", http.StatusBadRequest},
	{services.ErrItemNotInOrder, "item_not_in_order", http.StatusBadRequest},
	{services.ErrReturnInvalidState, "invalid_return_transition", http.StatusBadRequest},
	{services.ErrReturnInvalidInput, "invalid_request", http.StatusBadRequest},
	{services.ErrOrderInvalidInput, "invalid_request", http.StatusBadRequest},
}

// writeServiceError maps a service error onto the JSON error envelope. Client errors carry the
// wrapped message so callers can see the offending product or transition.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	for _, m := range serviceErrorMappings {
		if errors.Is(err, m.target) {
			message := err.Error()
			if m.status == http.StatusForbidden {
				message = "not permitted to perform this action"
			}
			httpx.WriteError(ctx, w, httpx.NewError(m.code, message, m.status))
			return
		}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		httpx.WriteError(ctx, w, httpx.NewError("backend_unavailable", "a backing service is unavailable", http.StatusServiceUnavailable))
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		httpx.WriteError(ctx, w, httpx.NewError("timeout", "request timed out", http.StatusGatewayTimeout))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process request", http.StatusInternalServerError))
}
