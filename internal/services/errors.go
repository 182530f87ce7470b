package services

import (
	"errors"
	"fmt"

	"github.com/jara-commerce/api/internal/repositories"
)

var (
	// ErrNotAuthorized indicates the actor is authenticated but may not touch the resource.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrOrderInvalidInput signals the caller provided invalid order data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderConflict indicates a duplicate order write.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrInvalidStatusTransition is returned for any transition missing from the table.
	ErrInvalidStatusTransition = errors.New("order: invalid status transition")
	// ErrCannotCancel is returned when a customer cancels outside pending or confirmed.
	ErrCannotCancel = errors.New("order: cannot cancel in current state")
	// ErrPaymentRequired blocks confirming an unpaid card or wallet order.
	ErrPaymentRequired = errors.New("order: payment required before confirmation")

	// ErrInsufficientStock indicates a reservation exceeded the available stock.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrProductNotFound indicates a referenced product does not exist.
	ErrProductNotFound = errors.New("inventory: product not found")
	// ErrProductUnavailable indicates the product is delisted.
	ErrProductUnavailable = errors.New("inventory: product unavailable")
	// ErrInventoryInvalidInput indicates a non-positive quantity or empty product id.
	ErrInventoryInvalidInput = errors.New("inventory: invalid input")
	// ErrProductInvalidInput indicates catalog input failed validation.
	ErrProductInvalidInput = errors.New("catalog: invalid input")
	// ErrProductConflict indicates a product with the same id already exists.
	ErrProductConflict = errors.New("catalog: product already exists")

	// ErrShippingUnavailable indicates no zone serves the destination province.
	ErrShippingUnavailable = errors.New("shipping: no zone serves destination")
	// ErrShippingZoneInvalid signals invalid zone input.
	ErrShippingZoneInvalid = errors.New("shipping: invalid zone")
	// ErrShippingZoneNotFound indicates the zone does not exist.
	ErrShippingZoneNotFound = errors.New("shipping: zone not found")
	// ErrShippingZoneConflict indicates a duplicate region.
	ErrShippingZoneConflict = errors.New("shipping: region already configured")

	// ErrMinimumOrderNotMet indicates the subtotal is below the promotion minimum.
	ErrMinimumOrderNotMet = errors.New("promotion: minimum order amount not met")
	// ErrInvalidPromoCode signals malformed promotion input.
	ErrInvalidPromoCode = errors.New("promotion: invalid input")
	// ErrPromotionNotFound indicates the code is unknown, inactive or outside its window.
	ErrPromotionNotFound = errors.New("promotion: not found")
	// ErrPromotionConflict indicates a duplicate code.
	ErrPromotionConflict = errors.New("promotion: code already exists")

	// ErrPaymentNotFound indicates the payment record does not exist.
	ErrPaymentNotFound = errors.New("payment: not found")
	// ErrPaymentInvalidInput signals invalid payment input.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrAlreadyPaid rejects a second initiation or verification for a settled order.
	ErrAlreadyPaid = errors.New("payment: order already paid")
	// ErrPaymentInitiationFailed surfaces a gateway failure while starting a payment.
	ErrPaymentInitiationFailed = errors.New("payment: initiation failed")
	// ErrPaymentVerificationFailed surfaces a failed or unverifiable settlement.
	ErrPaymentVerificationFailed = errors.New("payment: verification failed")
	// ErrUnsupportedPaymentMethod indicates the method is unknown or disabled.
	ErrUnsupportedPaymentMethod = errors.New("payment: unsupported method")

	// ErrReturnInvalidInput signals invalid return input.
	ErrReturnInvalidInput = errors.New("return: invalid input")
	// ErrReturnNotFound indicates the return does not exist.
	ErrReturnNotFound = errors.New("return: not found")
	// ErrReturnNotAllowed indicates the order is not delivered.
	ErrReturnNotAllowed = errors.New("return: order not eligible")
	// ErrReturnWindowExpired indicates the request arrived after the return window.
	ErrReturnWindowExpired = errors.New("return: window expired")
	// ErrItemNotInOrder indicates a returned product id is not part of the order.
	ErrItemNotInOrder = errors.New("return: item not in order")
	// ErrReturnInvalidState indicates an unsupported return status change.
	ErrReturnInvalidState = errors.New("return: invalid status transition")
)

// mapRepositoryError folds repository categories into the caller's sentinels.
func mapRepositoryError(err error, notFound error, conflict error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound() && notFound != nil:
			return fmt.Errorf("%w: %v", notFound, err)
		case repoErr.IsConflict() && conflict != nil:
			return fmt.Errorf("%w: %v", conflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("repository unavailable: %w", err)
		}
	}
	return err
}
