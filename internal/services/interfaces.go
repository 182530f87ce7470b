package services

import (
	"context"
	"encoding/json"
	"time"

	domain "github.com/jara-commerce/api/internal/domain"
	"github.com/jara-commerce/api/internal/payments"
	"github.com/jara-commerce/api/internal/repositories"
)

// Actor identifies who is calling a service operation. Handlers build it from the authenticated
// identity; background callers use SystemActor.
type Actor struct {
	ID     string
	Email  string
	Name   string
	Locale string
	Roles  []domain.Role
}

// Can reports whether the actor holds capability.
func (a Actor) Can(capability domain.Capability) bool {
	return domain.HasCapability(a.Roles, capability)
}

// SystemActor is used for scheduler-driven operations.
var SystemActor = Actor{ID: "system", Roles: []domain.Role{domain.RoleSuperAdmin}}

// InventoryLedger owns product stock. Every change is an atomic conditional decrement or an
// increment; callers never read-modify-write stock_qty.
type InventoryLedger interface {
	Reserve(ctx context.Context, productID string, qty int64) error
	Release(ctx context.Context, productID string, qty int64) error
	ReserveAll(ctx context.Context, lines []StockLine) error
	ReleaseAll(ctx context.Context, lines []StockLine) error
}

// StockLine is one product quantity handled by the ledger.
type StockLine struct {
	ProductID string
	Quantity  int64
}

// CatalogService serves the public product catalog and its admin and vendor maintenance.
type CatalogService interface {
	ListProducts(ctx context.Context, actor Actor, filter ProductFilter) (domain.CursorPage[domain.Product], error)
	GetProduct(ctx context.Context, actor Actor, productID string) (domain.Product, error)
	CreateProduct(ctx context.Context, actor Actor, cmd UpsertProductCommand) (domain.Product, error)
	UpdateProduct(ctx context.Context, actor Actor, productID string, cmd UpsertProductCommand) (domain.Product, error)
	DeleteProduct(ctx context.Context, actor Actor, productID string) error
	AdjustStock(ctx context.Context, actor Actor, cmd AdjustStockCommand) (domain.Product, error)
}

// ProductFilter narrows a catalog listing. Only one of Category and Keyword may be set.
type ProductFilter struct {
	Category           string
	Keyword            string
	VendorID           string
	IncludeUnavailable bool
	Pagination         domain.Pagination
}

// UpsertProductCommand carries product input. StockQty is only read on create; later changes go
// through AdjustStock.
type UpsertProductCommand struct {
	Name             string
	Brand            string
	Description      string
	SKU              string
	ProductType      domain.ProductType
	VendorID         string
	Categories       []string
	BasePrice        int64
	DiscountPrice    *int64
	StockQty         int64
	WeightGrams      int64
	ReturnPolicyDays *int
	IsAvailable      bool
	IsFeatured       bool
}

// AdjustStockCommand restocks (positive Delta) or writes off (negative Delta) units.
type AdjustStockCommand struct {
	ProductID string
	Delta     int64
	Reason    string
}

// PricingEngine derives every monetary field of an order. Its output is authoritative.
type PricingEngine interface {
	Quote(ctx context.Context, input PricingInput) (Quote, error)
}

// PricingInput carries validated lines and the destination used to price an order.
type PricingInput struct {
	Lines     []PricingLine
	Address   domain.Address
	PromoCode string
	Now       time.Time
}

// PricingLine pairs a loaded product with the requested quantity.
type PricingLine struct {
	Product  domain.Product
	Quantity int
}

// Quote is the priced breakdown of an order.
type Quote struct {
	Lines     []domain.OrderItem
	Subtotal  int64
	Shipping  ShippingEstimate
	Discount  int64
	Tax       int64
	Total     int64
	Promotion *domain.Promotion
}

// ShippingEstimator prices delivery to a province.
type ShippingEstimator interface {
	Estimate(ctx context.Context, province string, weightGrams int64) (ShippingEstimate, error)
}

// ShippingEstimate is the resolved zone and its cost for a given weight.
type ShippingEstimate struct {
	Zone          domain.ShippingZone
	BaseRate      int64
	Surcharge     int64
	Cost          int64
	EstimatedDays int
}

// ShippingZoneService manages shipping reference data.
type ShippingZoneService interface {
	ListZones(ctx context.Context, actor Actor) ([]domain.ShippingZone, error)
	UpsertZone(ctx context.Context, actor Actor, cmd UpsertShippingZoneCommand) (domain.ShippingZone, error)
	DeleteZone(ctx context.Context, actor Actor, zoneID string) error
}

// UpsertShippingZoneCommand creates or replaces a zone.
type UpsertShippingZoneCommand struct {
	ID                string
	RegionName        string
	ShippingRate      int64
	EstimatedDays     int
	IsRemote          bool
	SupportedCouriers []string
}

// PromotionService exposes admin CRUD on promo codes plus the public validation check.
type PromotionService interface {
	Validate(ctx context.Context, code string, orderAmount int64) (PromotionValidation, error)
	ListPromotions(ctx context.Context, actor Actor, pager domain.Pagination) (domain.CursorPage[domain.Promotion], error)
	GetPromotion(ctx context.Context, actor Actor, promotionID string) (domain.Promotion, error)
	CreatePromotion(ctx context.Context, actor Actor, cmd UpsertPromotionCommand) (domain.Promotion, error)
	UpdatePromotion(ctx context.Context, actor Actor, promotionID string, cmd UpsertPromotionCommand) (domain.Promotion, error)
	DeletePromotion(ctx context.Context, actor Actor, promotionID string) error
}

// UpsertPromotionCommand carries admin input for a promotion.
type UpsertPromotionCommand struct {
	Code           string
	DiscountType   domain.DiscountType
	DiscountValue  int64
	MinOrderAmount int64
	ValidFrom      time.Time
	ValidUntil     time.Time
	IsActive       bool
}

// PromotionValidation is the outcome of checking a code against an order amount.
type PromotionValidation struct {
	Promotion domain.Promotion
	Discount  int64
}

// OrderService is the order state machine.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (OrderCreation, error)
	Get(ctx context.Context, actor Actor, orderID string) (domain.Order, error)
	ListForUser(ctx context.Context, actor Actor, pager domain.Pagination) (domain.CursorPage[domain.Order], error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (domain.Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (domain.Order, error)
	ReleaseExpiredHolds(ctx context.Context, limit int) (ReleaseHoldsResult, error)
}

// CreateOrderCommand is a direct (cart-less) order placement.
type CreateOrderCommand struct {
	Actor           Actor
	Items           []OrderLineInput
	ShippingAddress domain.Address
	BillingAddress  *domain.Address
	PaymentMethod   domain.PaymentMethod
	PromoCode       string
	Notes           string
	IdempotencyKey  string
}

// OrderLineInput is a requested product quantity.
type OrderLineInput struct {
	ProductID string
	Quantity  int
}

// UpdateOrderStatusCommand moves an order through the transition table.
type UpdateOrderStatusCommand struct {
	Actor              Actor
	OrderID            string
	Status             domain.OrderStatus
	ShippingProvider   string
	ShippingTrackingID string
	Reason             string
}

// CancelOrderCommand is a customer initiated cancellation.
type CancelOrderCommand struct {
	Actor   Actor
	OrderID string
	Reason  string
}

// ReleaseHoldsResult summarises an expired-hold sweep.
type ReleaseHoldsResult struct {
	Released []string
	Failed   []string
}

// OrderCreation is returned alongside the order when a payment was initiated at checkout.
type OrderCreation struct {
	Order   domain.Order
	Payment *PaymentHandle
}

// PaymentService initiates and verifies payments for existing orders.
type PaymentService interface {
	Methods() []domain.PaymentMethod
	Initiate(ctx context.Context, cmd InitiatePaymentCommand) (PaymentHandle, error)
	Verify(ctx context.Context, cmd VerifyPaymentCommand) (domain.Order, error)
	Get(ctx context.Context, actor Actor, paymentID string) (domain.Payment, error)
}

// InitiatePaymentCommand retries payment initiation for an unpaid order.
type InitiatePaymentCommand struct {
	Actor          Actor
	OrderID        string
	IdempotencyKey string
}

// VerifyPaymentCommand confirms settlement with the gateway.
type VerifyPaymentCommand struct {
	Actor     Actor
	OrderID   string
	Reference string
	Callback  map[string]string
}

// PaymentHandle is the client-facing result of payment initiation.
type PaymentHandle struct {
	PaymentID    string
	OrderID      string
	Method       domain.PaymentMethod
	Amount       int64
	Currency     string
	Reference    string
	ClientSecret string
	Gateway      json.RawMessage
}

// ReturnService validates and manages post-delivery returns.
type ReturnService interface {
	Request(ctx context.Context, cmd RequestReturnCommand) (domain.Return, error)
	List(ctx context.Context, actor Actor, filter repositories.ReturnListFilter) (domain.CursorPage[domain.Return], error)
	Get(ctx context.Context, actor Actor, returnID string) (domain.Return, error)
	UpdateStatus(ctx context.Context, cmd UpdateReturnStatusCommand) (domain.Return, error)
}

// RequestReturnCommand is a customer return request.
type RequestReturnCommand struct {
	Actor          Actor
	OrderID        string
	Reason         string
	ItemProductIDs []string
}

// UpdateReturnStatusCommand advances a return through admin review.
type UpdateReturnStatusCommand struct {
	Actor    Actor
	ReturnID string
	Status   domain.ReturnStatus
}

// SystemService exposes health information.
type SystemService interface {
	HealthReport(ctx context.Context) (domain.SystemHealthReport, error)
}

// PaymentDispatcher is satisfied by *payments.Dispatcher.
type PaymentDispatcher interface {
	Methods() []domain.PaymentMethod
	Supports(method domain.PaymentMethod) bool
	Initiate(ctx context.Context, method domain.PaymentMethod, req payments.InitiateRequest) (payments.Handle, error)
	Verify(ctx context.Context, method domain.PaymentMethod, req payments.VerifyRequest) (payments.Verification, error)
}

// Recipient addresses an order notification.
type Recipient struct {
	Email  string
	Name   string
	Locale string
}

// OrderNotifier delivers customer notifications. Delivery is best effort.
type OrderNotifier interface {
	SendOrderConfirmation(ctx context.Context, to Recipient, order domain.Order) error
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

const (
	OrderEventCreated         = "order.created"
	OrderEventStatusChanged   = "order.status.changed"
	OrderEventPaymentSettled  = "order.payment.settled"
	OrderEventReturnRequested = "order.return.requested"
)

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string             `json:"type"`
	OrderID        string             `json:"orderId"`
	OrderNumber    string             `json:"orderNumber,omitempty"`
	UserID         string             `json:"userId,omitempty"`
	Status         domain.OrderStatus `json:"status,omitempty"`
	PreviousStatus domain.OrderStatus `json:"previousStatus,omitempty"`
	PaymentID      string             `json:"paymentId,omitempty"`
	ReturnID       string             `json:"returnId,omitempty"`
	ActorID        string             `json:"actorId,omitempty"`
	Reason         string             `json:"reason,omitempty"`
	OccurredAt     time.Time          `json:"occurredAt"`
}
