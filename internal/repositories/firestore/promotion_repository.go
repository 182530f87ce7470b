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

const promotionsCollection = "promotions"

type promotionDocument struct {
	ID             string    `firestore:"id"`
	Code           string    `firestore:"code"`
	DiscountType   string    `firestore:"discountType"`
	DiscountValue  int64     `firestore:"discountValue"`
	MinOrderAmount int64     `firestore:"minOrderAmount"`
	ValidFrom      time.Time `firestore:"validFrom"`
	ValidUntil     time.Time `firestore:"validUntil"`
	IsActive       bool      `firestore:"isActive"`
	CreatedAt      time.Time `firestore:"createdAt"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

func newPromotionDocument(p domain.Promotion) promotionDocument {
	return promotionDocument{
		ID:             p.ID,
		Code:           domain.NormalizePromoCode(p.Code),
		DiscountType:   string(p.DiscountType),
		DiscountValue:  p.DiscountValue,
		MinOrderAmount: p.MinOrderAmount,
		ValidFrom:      p.ValidFrom.UTC(),
		ValidUntil:     p.ValidUntil.UTC(),
		IsActive:       p.IsActive,
		CreatedAt:      p.CreatedAt.UTC(),
		UpdatedAt:      p.UpdatedAt.UTC(),
	}
}

func (d promotionDocument) toDomain() domain.Promotion {
	return domain.Promotion{
		ID:             d.ID,
		Code:           d.Code,
		DiscountType:   domain.DiscountType(d.DiscountType),
		DiscountValue:  d.DiscountValue,
		MinOrderAmount: d.MinOrderAmount,
		ValidFrom:      d.ValidFrom.UTC(),
		ValidUntil:     d.ValidUntil.UTC(),
		IsActive:       d.IsActive,
		CreatedAt:      d.CreatedAt.UTC(),
		UpdatedAt:      d.UpdatedAt.UTC(),
	}
}

// PromotionRepository stores promo codes keyed by id with a unique code field.
type PromotionRepository struct {
	provider   *pfirestore.Provider
	promotions *pfirestore.BaseRepository[promotionDocument]
}

var _ repositories.PromotionRepository = (*PromotionRepository)(nil)

// NewPromotionRepository constructs a Firestore-backed promotion repository.
func NewPromotionRepository(provider *pfirestore.Provider) (*PromotionRepository, error) {
	if provider == nil {
		return nil, errors.New("promotion repository requires firestore provider")
	}
	return &PromotionRepository{
		provider:   provider,
		promotions: pfirestore.NewBaseRepository[promotionDocument](provider, promotionsCollection),
	}, nil
}

// Insert creates the promotion, failing with a conflict when the code is taken.
func (r *PromotionRepository) Insert(ctx context.Context, promotion domain.Promotion) error {
	if strings.TrimSpace(promotion.ID) == "" {
		return errors.New("promotion insert: id is required")
	}
	doc := newPromotionDocument(promotion)
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		if err := r.ensureCodeFree(ctx, doc.Code, doc.ID); err != nil {
			return err
		}
		return r.promotions.Create(ctx, doc.ID, doc)
	})
}

// Update overwrites the promotion. Changing the code re-checks uniqueness.
func (r *PromotionRepository) Update(ctx context.Context, promotion domain.Promotion) error {
	doc := newPromotionDocument(promotion)
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		if _, err := r.promotions.Get(ctx, doc.ID); err != nil {
			return err
		}
		if err := r.ensureCodeFree(ctx, doc.Code, doc.ID); err != nil {
			return err
		}
		return r.promotions.Set(ctx, doc.ID, doc)
	})
}

func (r *PromotionRepository) Delete(ctx context.Context, promotionID string) error {
	id := strings.TrimSpace(promotionID)
	if _, err := r.promotions.Get(ctx, id); err != nil {
		return err
	}
	return r.promotions.Delete(ctx, id)
}

func (r *PromotionRepository) FindByID(ctx context.Context, promotionID string) (domain.Promotion, error) {
	doc, err := r.promotions.Get(ctx, strings.TrimSpace(promotionID))
	if err != nil {
		return domain.Promotion{}, err
	}
	return doc.toDomain(), nil
}

func (r *PromotionRepository) FindByCode(ctx context.Context, code string) (domain.Promotion, error) {
	normalized := domain.NormalizePromoCode(code)
	docs, err := r.promotions.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("code", "==", normalized).Limit(1)
	})
	if err != nil {
		return domain.Promotion{}, err
	}
	if len(docs) == 0 {
		return domain.Promotion{}, pfirestore.NotFound("promotions.findByCode", "promotion "+normalized)
	}
	return docs[0].toDomain(), nil
}

func (r *PromotionRepository) List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Promotion], error) {
	return listPage(ctx, r.promotions, pager, nil,
		promotionDocument.toDomain,
		func(d promotionDocument) pagination.Cursor { return pagination.Cursor{CreatedAt: d.CreatedAt, ID: d.ID} },
	)
}

func (r *PromotionRepository) ensureCodeFree(ctx context.Context, code, selfID string) error {
	docs, err := r.promotions.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("code", "==", code).Limit(2)
	})
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if doc.ID != selfID {
			return pfirestore.Conflict("promotions.code", "promotion code "+code)
		}
	}
	return nil
}
