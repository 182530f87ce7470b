package handlers

import (
	"encoding/json"
	"strings"

	domain "github.com/jara-commerce/api/internal/domain"
	"github.com/jara-commerce/api/internal/services"
)

type addressPayload struct {
	Type      string `json:"type,omitempty"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Street    string `json:"street"`
	City      string `json:"city"`
	Province  string `json:"province"`
	Phone     string `json:"phone"`
}

func (p addressPayload) toDomain() domain.Address {
	return domain.Address{
		Type:      domain.AddressType(p.Type),
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Street:    p.Street,
		City:      p.City,
		Province:  p.Province,
		Phone:     p.Phone,
	}
}

func buildAddressPayload(addr domain.Address) addressPayload {
	return addressPayload{
		Type:      string(addr.Type),
		FirstName: addr.FirstName,
		LastName:  addr.LastName,
		Street:    addr.Street,
		City:      addr.City,
		Province:  addr.Province,
		Phone:     addr.Phone,
	}
}

type orderItemPayload struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name,omitempty"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	Total       int64  `json:"total"`
}

type orderTotalsPayload struct {
	Subtotal int64 `json:"subtotal"`
	Shipping int64 `json:"shipping"`
	Discount int64 `json:"discount"`
	Tax      int64 `json:"tax"`
	Total    int64 `json:"total"`
}

type orderPayload struct {
	ID                 string             `json:"id"`
	OrderNumber        string             `json:"order_number"`
	UserID             string             `json:"user_id"`
	Status             string             `json:"status"`
	PaymentMethod      string             `json:"payment_method"`
	PaymentStatus      string             `json:"payment_status"`
	PaymentID          string             `json:"payment_id,omitempty"`
	Currency           string             `json:"currency"`
	Items              []orderItemPayload `json:"items"`
	Totals             orderTotalsPayload `json:"totals"`
	PromoCode          string             `json:"promo_code,omitempty"`
	ShippingAddress    addressPayload     `json:"shipping_address"`
	BillingAddress     addressPayload     `json:"billing_address"`
	ShippingProvider   string             `json:"shipping_provider,omitempty"`
	ShippingTrackingID string             `json:"shipping_tracking_id,omitempty"`
	EstimatedDays      int                `json:"estimated_days"`
	ReturnPolicyDays   int                `json:"return_policy_days"`
	Notes              string             `json:"notes,omitempty"`
	CancelReason       string             `json:"cancel_reason,omitempty"`
	HoldExpiresAt      string             `json:"hold_expires_at,omitempty"`
	CreatedAt          string             `json:"created_at"`
	UpdatedAt          string             `json:"updated_at,omitempty"`
	ConfirmedAt        string             `json:"confirmed_at,omitempty"`
	ShippedAt          string             `json:"shipped_at,omitempty"`
	DeliveredAt        string             `json:"delivered_at,omitempty"`
	CancelledAt        string             `json:"cancelled_at,omitempty"`
}

type orderSummaryPayload struct {
	ID            string `json:"id"`
	OrderNumber   string `json:"order_number"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	Currency      string `json:"currency"`
	Total         int64  `json:"total"`
	CreatedAt     string `json:"created_at"`
}

func buildOrderPayload(order domain.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Total:       item.Total,
		})
	}
	return orderPayload{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		Status:        string(order.Status),
		PaymentMethod: string(order.PaymentMethod),
		PaymentStatus: string(order.PaymentStatus),
		PaymentID:     order.PaymentID,
		Currency:      strings.ToUpper(order.Currency),
		Items:         items,
		Totals: orderTotalsPayload{
			Subtotal: order.ItemsSubtotal(),
			Shipping: order.ShippingCost,
			Discount: order.DiscountApplied,
			Tax:      order.TaxAmount,
			Total:    order.OrderTotal,
		},
		PromoCode:          order.PromoCode,
		ShippingAddress:    buildAddressPayload(order.ShippingAddress),
		BillingAddress:     buildAddressPayload(order.BillingAddress),
		ShippingProvider:   order.ShippingProvider,
		ShippingTrackingID: order.ShippingTrackingID,
		EstimatedDays:      order.EstimatedDays,
		ReturnPolicyDays:   order.ReturnPolicyDays,
		Notes:              order.Notes,
		CancelReason:       order.CancelReason,
		HoldExpiresAt:      formatTime(pointerTime(order.HoldExpiresAt)),
		CreatedAt:          formatTime(order.CreatedAt),
		UpdatedAt:          formatTime(order.UpdatedAt),
		ConfirmedAt:        formatTime(pointerTime(order.ConfirmedAt)),
		ShippedAt:          formatTime(pointerTime(order.ShippedAt)),
		DeliveredAt:        formatTime(pointerTime(order.DeliveredAt)),
		CancelledAt:        formatTime(pointerTime(order.CancelledAt)),
	}
}

func buildOrderSummary(order domain.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		Currency:      strings.ToUpper(order.Currency),
		Total:         order.OrderTotal,
		CreatedAt:     formatTime(order.CreatedAt),
	}
}

type paymentHandlePayload struct {
	PaymentID    string          `json:"payment_id"`
	OrderID      string          `json:"order_id"`
	Method       string          `json:"method"`
	Amount       int64           `json:"amount"`
	Currency     string          `json:"currency"`
	Reference    string          `json:"reference,omitempty"`
	ClientSecret string          `json:"client_secret,omitempty"`
	Gateway      json.RawMessage `json:"gateway,omitempty"`
}

func buildPaymentHandlePayload(handle services.PaymentHandle) paymentHandlePayload {
	return paymentHandlePayload{
		PaymentID:    handle.PaymentID,
		OrderID:      handle.OrderID,
		Method:       string(handle.Method),
		Amount:       handle.Amount,
		Currency:     strings.ToUpper(handle.Currency),
		Reference:    handle.Reference,
		ClientSecret: handle.ClientSecret,
		Gateway:      handle.Gateway,
	}
}

type paymentPayload struct {
	ID                   string `json:"id"`
	OrderID              string `json:"order_id"`
	Method               string `json:"method"`
	Amount               int64  `json:"amount"`
	Currency             string `json:"currency"`
	Status               string `json:"status"`
	GatewayReference     string `json:"gateway_reference,omitempty"`
	GatewayTransactionID string `json:"gateway_transaction_id,omitempty"`
	FailureReason        string `json:"failure_reason,omitempty"`
	CreatedAt            string `json:"created_at"`
}

func buildPaymentPayload(payment domain.Payment) paymentPayload {
	return paymentPayload{
		ID:                   payment.ID,
		OrderID:              payment.OrderID,
		Method:               string(payment.Method),
		Amount:               payment.Amount,
		Currency:             strings.ToUpper(payment.Currency),
		Status:               string(payment.Status),
		GatewayReference:     payment.GatewayReference,
		GatewayTransactionID: payment.GatewayTransactionID,
		FailureReason:        payment.FailureReason,
		CreatedAt:            formatTime(payment.CreatedAt),
	}
}

type returnPayload struct {
	ID            string   `json:"id"`
	OrderID       string   `json:"order_id"`
	UserID        string   `json:"user_id"`
	Reason        string   `json:"reason"`
	ItemsReturned []string `json:"items_returned"`
	Status        string   `json:"status"`
	ReviewedBy    string   `json:"reviewed_by,omitempty"`
	CreatedAt     string   `json:"created_at"`
	UpdatedAt     string   `json:"updated_at,omitempty"`
}

func buildReturnPayload(ret domain.Return) returnPayload {
	items := ret.ItemsReturned
	if items == nil {
		items = []string{}
	}
	return returnPayload{
		ID:            ret.ID,
		OrderID:       ret.OrderID,
		UserID:        ret.UserID,
		Reason:        ret.Reason,
		ItemsReturned: items,
		Status:        string(ret.Status),
		ReviewedBy:    ret.ReviewedBy,
		CreatedAt:     formatTime(ret.CreatedAt),
		UpdatedAt:     formatTime(ret.UpdatedAt),
	}
}

type productPayload struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Slug             string   `json:"slug"`
	Brand            string   `json:"brand,omitempty"`
	Description      string   `json:"description,omitempty"`
	SKU              string   `json:"sku,omitempty"`
	ProductType      string   `json:"product_type"`
	VendorID         string   `json:"vendor_id,omitempty"`
	Categories       []string `json:"categories"`
	BasePrice        int64    `json:"base_price"`
	DiscountPrice    *int64   `json:"discount_price,omitempty"`
	Price            int64    `json:"price"`
	InStock          bool     `json:"in_stock"`
	StockQty         *int64   `json:"stock_qty,omitempty"`
	WeightGrams      int64    `json:"weight_grams"`
	ReturnPolicyDays *int     `json:"return_policy_days,omitempty"`
	IsAvailable      bool     `json:"is_available"`
	IsFeatured       bool     `json:"is_featured"`
	CreatedAt        string   `json:"created_at,omitempty"`
	UpdatedAt        string   `json:"updated_at,omitempty"`
}

// buildProductPayload renders a product. The exact stock count is only shown to managers.
func buildProductPayload(product domain.Product, showStock bool) productPayload {
	categories := product.Categories
	if categories == nil {
		categories = []string{}
	}
	payload := productPayload{
		ID:               product.ID,
		Name:             product.Name,
		Slug:             product.Slug,
		Brand:            product.Brand,
		Description:      product.Description,
		SKU:              product.SKU,
		ProductType:      string(product.ProductType),
		VendorID:         product.VendorID,
		Categories:       categories,
		BasePrice:        product.BasePrice,
		DiscountPrice:    product.DiscountPrice,
		Price:            product.UnitPrice(),
		InStock:          product.StockQty > 0,
		WeightGrams:      product.WeightGrams,
		ReturnPolicyDays: product.ReturnPolicyDays,
		IsAvailable:      product.IsAvailable,
		IsFeatured:       product.IsFeatured,
		CreatedAt:        formatTime(product.CreatedAt),
		UpdatedAt:        formatTime(product.UpdatedAt),
	}
	if showStock {
		stock := product.StockQty
		payload.StockQty = &stock
	}
	return payload
}

type promotionPayload struct {
	ID             string `json:"id"`
	Code           string `json:"code"`
	DiscountType   string `json:"discount_type"`
	DiscountValue  int64  `json:"discount_value"`
	MinOrderAmount int64  `json:"min_order_amount"`
	ValidFrom      string `json:"valid_from"`
	ValidUntil     string `json:"valid_until"`
	IsActive       bool   `json:"is_active"`
	CreatedAt      string `json:"created_at,omitempty"`
	UpdatedAt      string `json:"updated_at,omitempty"`
}

func buildPromotionPayload(promo domain.Promotion) promotionPayload {
	return promotionPayload{
		ID:             promo.ID,
		Code:           promo.Code,
		DiscountType:   string(promo.DiscountType),
		DiscountValue:  promo.DiscountValue,
		MinOrderAmount: promo.MinOrderAmount,
		ValidFrom:      formatTime(promo.ValidFrom),
		ValidUntil:     formatTime(promo.ValidUntil),
		IsActive:       promo.IsActive,
		CreatedAt:      formatTime(promo.CreatedAt),
		UpdatedAt:      formatTime(promo.UpdatedAt),
	}
}

type shippingZonePayload struct {
	ID                string   `json:"id"`
	RegionName        string   `json:"region_name"`
	ShippingRate      int64    `json:"shipping_rate"`
	EstimatedDays     int      `json:"estimated_days"`
	IsRemote          bool     `json:"is_remote"`
	SupportedCouriers []string `json:"supported_couriers"`
	UpdatedAt         string   `json:"updated_at,omitempty"`
}

func buildShippingZonePayload(zone domain.ShippingZone) shippingZonePayload {
	couriers := zone.SupportedCouriers
	if couriers == nil {
		couriers = []string{}
	}
	return shippingZonePayload{
		ID:                zone.ID,
		RegionName:        zone.RegionName,
		ShippingRate:      zone.ShippingRate,
		EstimatedDays:     zone.EstimatedDays,
		IsRemote:          zone.IsRemote,
		SupportedCouriers: couriers,
		UpdatedAt:         formatTime(zone.UpdatedAt),
	}
}
