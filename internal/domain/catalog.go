package domain

import (
	"strings"
	"time"
)

// DefaultReturnPolicyDays applies when a product does not configure its own window.
const DefaultReturnPolicyDays = 7

// ProductType distinguishes house products from vendor (factory) products.
type ProductType string

const (
	ProductTypeStandard ProductType = "standard"
	ProductTypeFactory  ProductType = "factory"
)

// Valid reports whether t is a known product type.
func (t ProductType) Valid() bool {
	return t == ProductTypeStandard || t == ProductTypeFactory
}

// Product is a catalog entry. StockQty is only ever changed through the inventory ledger.
type Product struct {
	ID               string
	Name             string
	Slug             string
	Brand            string
	Description      string
	SKU              string
	ProductType      ProductType
	VendorID         string
	Categories       []string
	BasePrice        int64
	DiscountPrice    *int64
	StockQty         int64
	WeightGrams      int64
	ReturnPolicyDays *int
	IsAvailable      bool
	IsFeatured       bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PricingValid reports whether the discount, when present, is below the base price.
func (p Product) PricingValid() bool {
	if p.BasePrice < 0 {
		return false
	}
	return p.DiscountPrice == nil || (*p.DiscountPrice >= 0 && *p.DiscountPrice < p.BasePrice)
}

// OwnedBy reports whether vendorID supplies the product.
func (p Product) OwnedBy(vendorID string) bool {
	return vendorID != "" && p.VendorID == vendorID
}

// UnitPrice returns the discount price when present, otherwise the base price.
func (p Product) UnitPrice() int64 {
	if p.DiscountPrice != nil {
		return *p.DiscountPrice
	}
	return p.BasePrice
}

// ReturnWindowDays resolves the product's return window. Products without one use fallback,
// or DefaultReturnPolicyDays when fallback is not positive.
func (p Product) ReturnWindowDays(fallback int) int {
	if p.ReturnPolicyDays == nil || *p.ReturnPolicyDays < 0 {
		if fallback <= 0 {
			return DefaultReturnPolicyDays
		}
		return fallback
	}
	return *p.ReturnPolicyDays
}

// ShippingZone is reference data matched against a destination province.
type ShippingZone struct {
	ID                string
	RegionName        string
	ShippingRate      int64
	EstimatedDays     int
	IsRemote          bool
	SupportedCouriers []string
	UpdatedAt         time.Time
}

// RegionKey normalises a province or region name for case-insensitive lookups.
func RegionKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// DiscountType enumerates promotion calculation strategies.
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

// Promotion is a time-windowed promo code. DiscountValue is a whole percent for
// percentage promotions and minor units for fixed ones.
type Promotion struct {
	ID             string
	Code           string
	DiscountType   DiscountType
	DiscountValue  int64
	MinOrderAmount int64
	ValidFrom      time.Time
	ValidUntil     time.Time
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ActiveAt reports whether the promotion is enabled and inside its validity window.
func (p Promotion) ActiveAt(now time.Time) bool {
	if !p.IsActive {
		return false
	}
	if !p.ValidFrom.IsZero() && now.Before(p.ValidFrom) {
		return false
	}
	if !p.ValidUntil.IsZero() && now.After(p.ValidUntil) {
		return false
	}
	return true
}

// NormalizePromoCode upper-cases and trims a user supplied code.
func NormalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// PaymentRecordStatus is the outcome of a single payment attempt.
type PaymentRecordStatus string

const (
	PaymentRecordInitiated PaymentRecordStatus = "initiated"
	PaymentRecordSuccess   PaymentRecordStatus = "success"
	PaymentRecordFailed    PaymentRecordStatus = "failed"
)

// Payment is an append-only record of one payment attempt or outcome.
type Payment struct {
	ID                   string
	OrderID              string
	UserID               string
	Method               PaymentMethod
	Amount               int64
	Currency             string
	Status               PaymentRecordStatus
	GatewayReference     string
	GatewayTransactionID string
	FailureReason        string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// ReturnStatus enumerates the admin-managed lifecycle of a return.
type ReturnStatus string

const (
	ReturnStatusRequested ReturnStatus = "requested"
	ReturnStatusApproved  ReturnStatus = "approved"
	ReturnStatusRejected  ReturnStatus = "rejected"
	ReturnStatusRefunded  ReturnStatus = "refunded"
)

// Return records a customer's request to send back delivered items.
type Return struct {
	ID            string
	OrderID       string
	UserID        string
	Reason        string
	ItemsReturned []string
	Status        ReturnStatus
	ReviewedBy    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
