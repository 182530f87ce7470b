package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/jara-commerce/api/internal/domain"
	"github.com/jara-commerce/api/internal/repositories"
)

const promotionIDPrefix = "promo_"

var promoCodePattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9_-]{2,31}$`)

// PromotionServiceDeps bundles collaborators required to construct the promotion service.
type PromotionServiceDeps struct {
	Promotions  repositories.PromotionRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type promotionService struct {
	promotions repositories.PromotionRepository
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

var _ PromotionService = (*promotionService)(nil)

// NewPromotionService constructs the promotion service.
func NewPromotionService(deps PromotionServiceDeps) (PromotionService, error) {
	if deps.Promotions == nil {
		return nil, errors.New("promotion service: promotion repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &promotionService{
		promotions: deps.Promotions,
		clock:      func() time.Time { return clock().UTC() },
		newID:      idGen,
		logger:     logger,
	}, nil
}

// Validate is the strict counterpart of the order path: unknown or out of window codes are
// reported as not found instead of being ignored.
func (s *promotionService) Validate(ctx context.Context, code string, orderAmount int64) (PromotionValidation, error) {
	code = domain.NormalizePromoCode(code)
	if code == "" {
		return PromotionValidation{}, fmt.Errorf("%w: code is required", ErrInvalidPromoCode)
	}
	if orderAmount < 0 {
		return PromotionValidation{}, fmt.Errorf("%w: order amount must not be negative", ErrInvalidPromoCode)
	}
	promo, err := s.promotions.FindByCode(ctx, code)
	if err != nil {
		return PromotionValidation{}, mapRepositoryError(err, ErrPromotionNotFound, nil)
	}
	if !promo.ActiveAt(s.clock()) {
		return PromotionValidation{}, fmt.Errorf("%w: %s is not active", ErrPromotionNotFound, code)
	}
	if orderAmount < promo.MinOrderAmount {
		return PromotionValidation{}, fmt.Errorf("%w: %s requires %d", ErrMinimumOrderNotMet, code, promo.MinOrderAmount)
	}
	return PromotionValidation{Promotion: promo, Discount: promotionDiscount(promo, orderAmount)}, nil
}

func (s *promotionService) ListPromotions(ctx context.Context, actor Actor, pager domain.Pagination) (domain.CursorPage[domain.Promotion], error) {
	if !actor.Can(domain.CapPromotionsManage) {
		return domain.CursorPage[domain.Promotion]{}, ErrNotAuthorized
	}
	page, err := s.promotions.List(ctx, pager)
	if err != nil {
		return domain.CursorPage[domain.Promotion]{}, mapRepositoryError(err, ErrPromotionNotFound, nil)
	}
	return page, nil
}

func (s *promotionService) GetPromotion(ctx context.Context, actor Actor, promotionID string) (domain.Promotion, error) {
	if !actor.Can(domain.CapPromotionsManage) {
		return domain.Promotion{}, ErrNotAuthorized
	}
	promotionID = strings.TrimSpace(promotionID)
	if promotionID == "" {
		return domain.Promotion{}, fmt.Errorf("%w: promotion id is required", ErrInvalidPromoCode)
	}
	promo, err := s.promotions.FindByID(ctx, promotionID)
	if err != nil {
		return domain.Promotion{}, mapRepositoryError(err, ErrPromotionNotFound, nil)
	}
	return promo, nil
}

func (s *promotionService) CreatePromotion(ctx context.Context, actor Actor, cmd UpsertPromotionCommand) (domain.Promotion, error) {
	if !actor.Can(domain.CapPromotionsManage) {
		return domain.Promotion{}, ErrNotAuthorized
	}
	promo, err := buildPromotion(cmd)
	if err != nil {
		return domain.Promotion{}, err
	}
	now := s.clock()
	promo.ID = promotionIDPrefix + s.newID()
	promo.CreatedAt = now
	promo.UpdatedAt = now

	if err := s.promotions.Insert(ctx, promo); err != nil {
		return domain.Promotion{}, mapRepositoryError(err, nil, ErrPromotionConflict)
	}
	s.logger(ctx, "promotion.created", map[string]any{"promotionId": promo.ID, "code": promo.Code, "actorId": actor.ID})
	return promo, nil
}

func (s *promotionService) UpdatePromotion(ctx context.Context, actor Actor, promotionID string, cmd UpsertPromotionCommand) (domain.Promotion, error) {
	existing, err := s.GetPromotion(ctx, actor, promotionID)
	if err != nil {
		return domain.Promotion{}, err
	}
	promo, err := buildPromotion(cmd)
	if err != nil {
		return domain.Promotion{}, err
	}
	promo.ID = existing.ID
	promo.CreatedAt = existing.CreatedAt
	promo.UpdatedAt = s.clock()

	if err := s.promotions.Update(ctx, promo); err != nil {
		return domain.Promotion{}, mapRepositoryError(err, ErrPromotionNotFound, ErrPromotionConflict)
	}
	s.logger(ctx, "promotion.updated", map[string]any{"promotionId": promo.ID, "code": promo.Code, "actorId": actor.ID})
	return promo, nil
}

func (s *promotionService) DeletePromotion(ctx context.Context, actor Actor, promotionID string) error {
	if !actor.Can(domain.CapPromotionsManage) {
		return ErrNotAuthorized
	}
	promotionID = strings.TrimSpace(promotionID)
	if promotionID == "" {
		return fmt.Errorf("%w: promotion id is required", ErrInvalidPromoCode)
	}
	if err := s.promotions.Delete(ctx, promotionID); err != nil {
		return mapRepositoryError(err, ErrPromotionNotFound, nil)
	}
	s.logger(ctx, "promotion.deleted", map[string]any{"promotionId": promotionID, "actorId": actor.ID})
	return nil
}

func buildPromotion(cmd UpsertPromotionCommand) (domain.Promotion, error) {
	code := domain.NormalizePromoCode(cmd.Code)
	if !promoCodePattern.MatchString(code) {
		return domain.Promotion{}, fmt.Errorf("%w: code must be 3-32 letters, digits, '-' or '_'", ErrInvalidPromoCode)
	}
	switch cmd.DiscountType {
	case domain.DiscountTypePercentage:
		if cmd.DiscountValue <= 0 || cmd.DiscountValue > 100 {
			return domain.Promotion{}, fmt.Errorf("%w: percentage must be between 1 and 100", ErrInvalidPromoCode)
		}
	case domain.DiscountTypeFixed:
		if cmd.DiscountValue <= 0 {
			return domain.Promotion{}, fmt.Errorf("%w: fixed discount must be positive", ErrInvalidPromoCode)
		}
	default:
		return domain.Promotion{}, fmt.Errorf("%w: unknown discount type %q", ErrInvalidPromoCode, cmd.DiscountType)
	}
	if cmd.MinOrderAmount < 0 {
		return domain.Promotion{}, fmt.Errorf("%w: minimum order amount must not be negative", ErrInvalidPromoCode)
	}
	if cmd.ValidFrom.IsZero() || cmd.ValidUntil.IsZero() || !cmd.ValidFrom.Before(cmd.ValidUntil) {
		return domain.Promotion{}, fmt.Errorf("%w: valid_from must be before valid_until", ErrInvalidPromoCode)
	}
	return domain.Promotion{
		Code:           code,
		DiscountType:   cmd.DiscountType,
		DiscountValue:  cmd.DiscountValue,
		MinOrderAmount: cmd.MinOrderAmount,
		ValidFrom:      cmd.ValidFrom.UTC(),
		ValidUntil:     cmd.ValidUntil.UTC(),
		IsActive:       cmd.IsActive,
	}, nil
}
