package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/jara-commerce/api/internal/domain"
	pfirestore "github.com/jara-commerce/api/internal/platform/firestore"
	"github.com/jara-commerce/api/internal/platform/pagination"
	"github.com/jara-commerce/api/internal/repositories"
)

const returnsCollection = "returns"

type returnDocument struct {
	ID            string    `firestore:"id"`
	OrderID       string    `firestore:"orderId"`
	UserID        string    `firestore:"userId"`
	Reason        string    `firestore:"reason"`
	ItemsReturned []string  `firestore:"itemsReturned"`
	Status        string    `firestore:"status"`
	ReviewedBy    string    `firestore:"reviewedBy,omitempty"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

func newReturnDocument(r domain.Return) returnDocument {
	return returnDocument{
		ID:            r.ID,
		OrderID:       r.OrderID,
		UserID:        r.UserID,
		Reason:        r.Reason,
		ItemsReturned: append([]string(nil), r.ItemsReturned...),
		Status:        string(r.Status),
		ReviewedBy:    r.ReviewedBy,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

func (d returnDocument) toDomain() domain.Return {
	return domain.Return{
		ID:            d.ID,
		OrderID:       d.OrderID,
		UserID:        d.UserID,
		Reason:        d.Reason,
		ItemsReturned: append([]string(nil), d.ItemsReturned...),
		Status:        domain.ReturnStatus(d.Status),
		ReviewedBy:    d.ReviewedBy,
		CreatedAt:     d.CreatedAt.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
	}
}

// ReturnRepository persists return requests.
type ReturnRepository struct {
	returns *pfirestore.BaseRepository[returnDocument]
}

var _ repositories.ReturnRepository = (*ReturnRepository)(nil)

// NewReturnRepository constructs a Firestore-backed return repository.
func NewReturnRepository(provider *pfirestore.Provider) (*ReturnRepository, error) {
	if provider == nil {
		return nil, errors.New("return repository requires firestore provider")
	}
	return &ReturnRepository{returns: pfirestore.NewBaseRepository[returnDocument](provider, returnsCollection)}, nil
}

func (r *ReturnRepository) Insert(ctx context.Context, ret domain.Return) error {
	if strings.TrimSpace(ret.ID) == "" {
		return errors.New("return insert: id is required")
	}
	return r.returns.Create(ctx, ret.ID, newReturnDocument(ret))
}

func (r *ReturnRepository) Update(ctx context.Context, ret domain.Return) error {
	if strings.TrimSpace(ret.ID) == "" {
		return errors.New("return update: id is required")
	}
	return r.returns.Set(ctx, ret.ID, newReturnDocument(ret))
}

func (r *ReturnRepository) FindByID(ctx context.Context, returnID string) (domain.Return, error) {
	doc, err := r.returns.Get(ctx, strings.TrimSpace(returnID))
	if err != nil {
		return domain.Return{}, err
	}
	return doc.toDomain(), nil
}

func (r *ReturnRepository) List(ctx context.Context, filter repositories.ReturnListFilter) (domain.CursorPage[domain.Return], error) {
	statuses := make([]string, 0, len(filter.Status))
	for _, status := range filter.Status {
		statuses = append(statuses, string(status))
	}
	orderID := strings.TrimSpace(filter.OrderID)

	return listPage(ctx, r.returns, filter.Pagination,
		func(q firestore.Query) firestore.Query {
			if orderID != "" {
				q = q.Where("orderId", "==", orderID)
			}
			switch len(statuses) {
			case 0:
			case 1:
				q = q.Where("status", "==", statuses[0])
			default:
				q = q.Where("status", "in", statuses)
			}
			return q
		},
		returnDocument.toDomain,
		func(d returnDocument) pagination.Cursor { return pagination.Cursor{CreatedAt: d.CreatedAt, ID: d.ID} },
	)
}
