package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/jara-commerce/api/internal/domain"
	pfirestore "github.com/jara-commerce/api/internal/platform/firestore"
	"github.com/jara-commerce/api/internal/platform/pagination"
	"github.com/jara-commerce/api/internal/repositories"
)

const ordersCollection = "orders"

type orderItemDocument struct {
	ProductID   string `firestore:"productId"`
	ProductName string `firestore:"productName"`
	Quantity    int    `firestore:"quantity"`
	UnitPrice   int64  `firestore:"unitPrice"`
	Total       int64  `firestore:"total"`
	WeightGrams int64  `firestore:"weightGrams"`
}

type orderDocument struct {
	ID                 string              `firestore:"id"`
	OrderNumber        string              `firestore:"orderNumber"`
	UserID             string              `firestore:"userId"`
	UserEmail          string              `firestore:"userEmail,omitempty"`
	Status             string              `firestore:"status"`
	Items              []orderItemDocument `firestore:"items"`
	ShippingAddress    addressDocument     `firestore:"shippingAddress"`
	BillingAddress     addressDocument     `firestore:"billingAddress"`
	Currency           string              `firestore:"currency"`
	PaymentMethod      string              `firestore:"paymentMethod"`
	PaymentStatus      string              `firestore:"paymentStatus"`
	PaymentID          string              `firestore:"paymentId,omitempty"`
	ShippingProvider   string              `firestore:"shippingProvider,omitempty"`
	ShippingTrackingID string              `firestore:"shippingTrackingId,omitempty"`
	EstimatedDays      int                 `firestore:"estimatedDays"`
	PromoCode          string              `firestore:"promoCode,omitempty"`
	ShippingCost       int64               `firestore:"shippingCost"`
	DiscountApplied    int64               `firestore:"discountApplied"`
	TaxAmount          int64               `firestore:"taxAmount"`
	OrderTotal         int64               `firestore:"orderTotal"`
	ReturnPolicyDays   int                 `firestore:"returnPolicyDays"`
	Notes              string              `firestore:"notes,omitempty"`
	CancelReason       string              `firestore:"cancelReason,omitempty"`
	HoldExpiresAt      *time.Time          `firestore:"holdExpiresAt,omitempty"`
	CreatedAt          time.Time           `firestore:"createdAt"`
	UpdatedAt          time.Time           `firestore:"updatedAt"`
	ConfirmedAt        *time.Time          `firestore:"confirmedAt,omitempty"`
	ShippedAt          *time.Time          `firestore:"shippedAt,omitempty"`
	DeliveredAt        *time.Time          `firestore:"deliveredAt,omitempty"`
	CancelledAt        *time.Time          `firestore:"cancelledAt,omitempty"`
}

func newOrderDocument(o domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemDocument{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Total:       item.Total,
			WeightGrams: item.WeightGrams,
		})
	}
	return orderDocument{
		ID:                 o.ID,
		OrderNumber:        o.OrderNumber,
		UserID:             o.UserID,
		UserEmail:          o.UserEmail,
		Status:             string(o.Status),
		Items:              items,
		ShippingAddress:    newAddressDocument(o.ShippingAddress),
		BillingAddress:     newAddressDocument(o.BillingAddress),
		Currency:           o.Currency,
		PaymentMethod:      string(o.PaymentMethod),
		PaymentStatus:      string(o.PaymentStatus),
		PaymentID:          o.PaymentID,
		ShippingProvider:   o.ShippingProvider,
		ShippingTrackingID: o.ShippingTrackingID,
		EstimatedDays:      o.EstimatedDays,
		PromoCode:          o.PromoCode,
		ShippingCost:       o.ShippingCost,
		DiscountApplied:    o.DiscountApplied,
		TaxAmount:          o.TaxAmount,
		OrderTotal:         o.OrderTotal,
		ReturnPolicyDays:   o.ReturnPolicyDays,
		Notes:              o.Notes,
		CancelReason:       o.CancelReason,
		HoldExpiresAt:      utcPtr(o.HoldExpiresAt),
		CreatedAt:          o.CreatedAt.UTC(),
		UpdatedAt:          o.UpdatedAt.UTC(),
		ConfirmedAt:        utcPtr(o.ConfirmedAt),
		ShippedAt:          utcPtr(o.ShippedAt),
		DeliveredAt:        utcPtr(o.DeliveredAt),
		CancelledAt:        utcPtr(o.CancelledAt),
	}
}

func (d orderDocument) toDomain() domain.Order {
	items := make([]domain.OrderItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Total:       item.Total,
			WeightGrams: item.WeightGrams,
		})
	}
	return domain.Order{
		ID:                 d.ID,
		OrderNumber:        d.OrderNumber,
		UserID:             d.UserID,
		UserEmail:          d.UserEmail,
		Status:             domain.OrderStatus(d.Status),
		Items:              items,
		ShippingAddress:    d.ShippingAddress.toDomain(),
		BillingAddress:     d.BillingAddress.toDomain(),
		Currency:           d.Currency,
		PaymentMethod:      domain.PaymentMethod(d.PaymentMethod),
		PaymentStatus:      domain.PaymentStatus(d.PaymentStatus),
		PaymentID:          d.PaymentID,
		ShippingProvider:   d.ShippingProvider,
		ShippingTrackingID: d.ShippingTrackingID,
		EstimatedDays:      d.EstimatedDays,
		PromoCode:          d.PromoCode,
		ShippingCost:       d.ShippingCost,
		DiscountApplied:    d.DiscountApplied,
		TaxAmount:          d.TaxAmount,
		OrderTotal:         d.OrderTotal,
		ReturnPolicyDays:   d.ReturnPolicyDays,
		Notes:              d.Notes,
		CancelReason:       d.CancelReason,
		HoldExpiresAt:      utcPtr(d.HoldExpiresAt),
		CreatedAt:          d.CreatedAt.UTC(),
		UpdatedAt:          d.UpdatedAt.UTC(),
		ConfirmedAt:        utcPtr(d.ConfirmedAt),
		ShippedAt:          utcPtr(d.ShippedAt),
		DeliveredAt:        utcPtr(d.DeliveredAt),
		CancelledAt:        utcPtr(d.CancelledAt),
	}
}

// OrderRepository persists orders as single documents with embedded items.
type OrderRepository struct {
	orders *pfirestore.BaseRepository[orderDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{orders: pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection)}, nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order insert: id is required")
	}
	return r.orders.Create(ctx, order.ID, newOrderDocument(order))
}

// Update overwrites the order document. Items are immutable, so callers pass the loaded aggregate back.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order update: id is required")
	}
	if !isTxContext(ctx) {
		if _, err := r.orders.Get(ctx, order.ID); err != nil {
			return err
		}
	}
	return r.orders.Set(ctx, order.ID, newOrderDocument(order))
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	order := doc.toDomain()
	if order.ID == "" {
		order.ID = orderID
	}
	return order, nil
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.CursorPage[domain.Order]{}, errors.New("order list: user id is required")
	}
	return listPage(ctx, r.orders, pager,
		func(q firestore.Query) firestore.Query { return q.Where("userId", "==", uid) },
		orderDocument.toDomain,
		func(d orderDocument) pagination.Cursor { return pagination.Cursor{CreatedAt: d.CreatedAt, ID: d.ID} },
	)
}

// ListExpiredHolds returns pending orders whose hold expired before the given instant and that are
// still unpaid, oldest hold first.
func (r *OrderRepository) ListExpiredHolds(ctx context.Context, before time.Time, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("order expired holds: invalid limit %d", limit)
	}
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("status", "==", string(domain.OrderStatusPending)).
			Where("holdExpiresAt", "<", before.UTC()).
			OrderBy("holdExpiresAt", firestore.Asc).
			Limit(limit)
	})
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		if doc.PaymentStatus == string(domain.PaymentStatusPaid) {
			continue
		}
		orders = append(orders, doc.toDomain())
	}
	return orders, nil
}

func isTxContext(ctx context.Context) bool {
	_, ok := pfirestore.TxFromContext(ctx)
	return ok
}
