package repositories

import "fmt"

// StockErrorCode enumerates repository error causes for stock operations.
type StockErrorCode string

const (
	// StockErrorInsufficient indicates requested quantity exceeds availability.
	StockErrorInsufficient StockErrorCode = "stock_insufficient"
	// StockErrorProductNotFound indicates the product document is missing.
	StockErrorProductNotFound StockErrorCode = "stock_product_not_found"
	// StockErrorInvalidQuantity indicates a non-positive quantity.
	StockErrorInvalidQuantity StockErrorCode = "stock_invalid_quantity"
)

// StockError describes a rejected stock mutation. Requested and Available name the shortfall.
type StockError struct {
	Code      StockErrorCode
	ProductID string
	Requested int64
	Available int64
	Err       error
}

// Error implements the error interface.
func (e *StockError) Error() string {
	if e == nil {
		return ""
	}
	switch e.Code {
	case StockErrorInsufficient:
		return fmt.Sprintf("product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
	case StockErrorProductNotFound:
		return fmt.Sprintf("product %s not found", e.ProductID)
	case StockErrorInvalidQuantity:
		return fmt.Sprintf("product %s: invalid quantity %d", e.ProductID, e.Requested)
	}
	return fmt.Sprintf("product %s: %s", e.ProductID, e.Code)
}

// Unwrap exposes the underlying error, if any.
func (e *StockError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewStockError constructs a typed stock error.
func NewStockError(code StockErrorCode, productID string, requested, available int64) *StockError {
	return &StockError{
		Code:      code,
		ProductID: productID,
		Requested: requested,
		Available: available,
	}
}
