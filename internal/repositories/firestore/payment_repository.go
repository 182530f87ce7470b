package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/jara-commerce/api/internal/domain"
	pfirestore "github.com/jara-commerce/api/internal/platform/firestore"
	"github.com/jara-commerce/api/internal/repositories"
)

const paymentsCollection = "payments"

type paymentDocument struct {
	ID                   string    `firestore:"id"`
	OrderID              string    `firestore:"orderId"`
	UserID               string    `firestore:"userId"`
	Method               string    `firestore:"method"`
	Amount               int64     `firestore:"amount"`
	Currency             string    `firestore:"currency"`
	Status               string    `firestore:"status"`
	GatewayReference     string    `firestore:"gatewayReference,omitempty"`
	GatewayTransactionID string    `firestore:"gatewayTransactionId,omitempty"`
	FailureReason        string    `firestore:"failureReason,omitempty"`
	CreatedAt            time.Time `firestore:"createdAt"`
	UpdatedAt            time.Time `firestore:"updatedAt"`
}

func newPaymentDocument(p domain.Payment) paymentDocument {
	return paymentDocument{
		ID:                   p.ID,
		OrderID:              p.OrderID,
		UserID:               p.UserID,
		Method:               string(p.Method),
		Amount:               p.Amount,
		Currency:             p.Currency,
		Status:               string(p.Status),
		GatewayReference:     p.GatewayReference,
		GatewayTransactionID: p.GatewayTransactionID,
		FailureReason:        p.FailureReason,
		CreatedAt:            p.CreatedAt.UTC(),
		UpdatedAt:            p.UpdatedAt.UTC(),
	}
}

func (d paymentDocument) toDomain() domain.Payment {
	return domain.Payment{
		ID:                   d.ID,
		OrderID:              d.OrderID,
		UserID:               d.UserID,
		Method:               domain.PaymentMethod(d.Method),
		Amount:               d.Amount,
		Currency:             d.Currency,
		Status:               domain.PaymentRecordStatus(d.Status),
		GatewayReference:     d.GatewayReference,
		GatewayTransactionID: d.GatewayTransactionID,
		FailureReason:        d.FailureReason,
		CreatedAt:            d.CreatedAt.UTC(),
		UpdatedAt:            d.UpdatedAt.UTC(),
	}
}

// PaymentRepository stores payment attempts in a top-level collection indexed by order.
type PaymentRepository struct {
	payments *pfirestore.BaseRepository[paymentDocument]
}

var _ repositories.PaymentRepository = (*PaymentRepository)(nil)

// NewPaymentRepository constructs a Firestore-backed payment repository.
func NewPaymentRepository(provider *pfirestore.Provider) (*PaymentRepository, error) {
	if provider == nil {
		return nil, errors.New("payment repository requires firestore provider")
	}
	return &PaymentRepository{payments: pfirestore.NewBaseRepository[paymentDocument](provider, paymentsCollection)}, nil
}

func (r *PaymentRepository) Insert(ctx context.Context, payment domain.Payment) error {
	if strings.TrimSpace(payment.ID) == "" {
		return errors.New("payment insert: id is required")
	}
	return r.payments.Create(ctx, payment.ID, newPaymentDocument(payment))
}

func (r *PaymentRepository) Update(ctx context.Context, payment domain.Payment) error {
	if strings.TrimSpace(payment.ID) == "" {
		return errors.New("payment update: id is required")
	}
	return r.payments.Set(ctx, payment.ID, newPaymentDocument(payment))
}

func (r *PaymentRepository) FindByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	doc, err := r.payments.Get(ctx, strings.TrimSpace(paymentID))
	if err != nil {
		return domain.Payment{}, err
	}
	return doc.toDomain(), nil
}

// ListByOrder returns every attempt for the order, oldest first.
func (r *PaymentRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	id := strings.TrimSpace(orderID)
	docs, err := r.payments.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", id).OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	payments := make([]domain.Payment, 0, len(docs))
	for _, doc := range docs {
		payments = append(payments, doc.toDomain())
	}
	return payments, nil
}
