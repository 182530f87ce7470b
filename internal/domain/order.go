package domain

import "time"

// OrderStatus enumerates fulfillment states for an order.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusConfirmed       OrderStatus = "confirmed"
	OrderStatusShipped         OrderStatus = "shipped"
	OrderStatusDelivered       OrderStatus = "delivered"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRefunded        OrderStatus = "refunded"
	OrderStatusReturnRequested OrderStatus = "return_requested"
)

// PaymentStatus tracks settlement of an order independently of its fulfillment status.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusInitiated PaymentStatus = "initiated"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// PaymentMethod identifies the payment rail chosen at checkout.
type PaymentMethod string

const (
	// PaymentMethodCOD settles in cash on delivery.
	PaymentMethodCOD PaymentMethod = "cod"
	// PaymentMethodCard settles through the card gateway (Stripe).
	PaymentMethodCard PaymentMethod = "stripe"
	// PaymentMethodWallet settles through the local wallet gateway (Fonepay).
	PaymentMethodWallet PaymentMethod = "fonepay"
)

// Valid reports whether the method is one of the supported rails.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCOD, PaymentMethodCard, PaymentMethodWallet:
		return true
	}
	return false
}

// AddressType labels a postal address.
type AddressType string

const (
	AddressTypeHome  AddressType = "home"
	AddressTypeWork  AddressType = "work"
	AddressTypeOther AddressType = "other"
)

// Address is a shipping or billing destination.
type Address struct {
	Type      AddressType
	FirstName string
	LastName  string
	Street    string
	City      string
	Province  string
	Phone     string
}

// OrderItem is an immutable priced line of an order.
type OrderItem struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   int64
	Total       int64
	WeightGrams int64
}

// Order is the aggregate root for the order flow. Monetary fields are minor currency units.
type Order struct {
	ID                 string
	OrderNumber        string
	UserID             string
	UserEmail          string
	Status             OrderStatus
	Items              []OrderItem
	ShippingAddress    Address
	BillingAddress     Address
	Currency           string
	PaymentMethod      PaymentMethod
	PaymentStatus      PaymentStatus
	PaymentID          string
	ShippingProvider   string
	ShippingTrackingID string
	EstimatedDays      int
	PromoCode          string
	ShippingCost       int64
	DiscountApplied    int64
	TaxAmount          int64
	OrderTotal         int64
	ReturnPolicyDays   int
	Notes              string
	CancelReason       string
	HoldExpiresAt      *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
	ConfirmedAt        *time.Time
	ShippedAt          *time.Time
	DeliveredAt        *time.Time
	CancelledAt        *time.Time
}

// ItemsSubtotal sums the line totals.
func (o Order) ItemsSubtotal() int64 {
	var sum int64
	for _, item := range o.Items {
		sum += item.Total
	}
	return sum
}

// ComputedTotal derives subtotal + shipping - discount + tax from the order's own fields.
func (o Order) ComputedTotal() int64 {
	return o.ItemsSubtotal() + o.ShippingCost - o.DiscountApplied + o.TaxAmount
}

// RecomputeTotal re-derives every line total and the order total in place.
func (o *Order) RecomputeTotal() {
	for i := range o.Items {
		o.Items[i].Total = o.Items[i].UnitPrice * int64(o.Items[i].Quantity)
	}
	o.OrderTotal = o.ComputedTotal()
}

// TotalConsistent reports whether the stored total matches the recomputed sum.
func (o Order) TotalConsistent() bool {
	for _, item := range o.Items {
		if item.Total != item.UnitPrice*int64(item.Quantity) {
			return false
		}
	}
	return o.OrderTotal == o.ComputedTotal()
}

// OwnedBy reports whether the order belongs to the given user.
func (o Order) OwnedBy(userID string) bool {
	return userID != "" && o.UserID == userID
}

// HasProduct reports whether any line references productID.
func (o Order) HasProduct(productID string) bool {
	for _, item := range o.Items {
		if item.ProductID == productID {
			return true
		}
	}
	return false
}

// TotalWeightGrams returns the cumulative shipping weight of every line.
func (o Order) TotalWeightGrams() int64 {
	var sum int64
	for _, item := range o.Items {
		sum += item.WeightGrams * int64(item.Quantity)
	}
	return sum
}
