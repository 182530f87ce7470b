package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/jara-commerce/api/internal/domain"
	"github.com/jara-commerce/api/internal/repositories"
)

// PricingPolicy parameterises tax and shipping math. Rates are basis points, amounts minor units.
type PricingPolicy struct {
	Currency            string
	VATBasisPoints      int64
	RemoteMultiplierBps int64
	FreeWeightGrams     int64
	SurchargePerKg      int64
}

// DefaultPricingPolicy is 13% VAT, remote zones at 150%, and 50.00 per kg above 5 kg.
var DefaultPricingPolicy = PricingPolicy{
	Currency:            "NPR",
	VATBasisPoints:      1300,
	RemoteMultiplierBps: 15000,
	FreeWeightGrams:     5000,
	SurchargePerKg:      5000,
}

// PricingEngineDeps bundles collaborators required to construct the pricing engine.
type PricingEngineDeps struct {
	Shipping   ShippingEstimator
	Promotions repositories.PromotionRepository
	Policy     PricingPolicy
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type pricingEngine struct {
	shipping   ShippingEstimator
	promotions repositories.PromotionRepository
	policy     PricingPolicy
	clock      func() time.Time
	logger     func(context.Context, string, map[string]any)
}

var _ PricingEngine = (*pricingEngine)(nil)

// NewPricingEngine constructs the order pricing engine.
func NewPricingEngine(deps PricingEngineDeps) (PricingEngine, error) {
	if deps.Shipping == nil {
		return nil, errors.New("pricing engine: shipping estimator is required")
	}
	policy := deps.Policy
	if policy == (PricingPolicy{}) {
		policy = DefaultPricingPolicy
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &pricingEngine{
		shipping:   deps.Shipping,
		promotions: deps.Promotions,
		policy:     policy,
		clock:      clock,
		logger:     logger,
	}, nil
}

// Quote prices lines, shipping, promotion and tax in that order. Nothing is mutated.
func (e *pricingEngine) Quote(ctx context.Context, input PricingInput) (Quote, error) {
	if len(input.Lines) == 0 {
		return Quote{}, fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}
	now := input.Now
	if now.IsZero() {
		now = e.clock()
	}

	quote := Quote{Lines: make([]domain.OrderItem, 0, len(input.Lines))}
	for _, line := range input.Lines {
		product := line.Product
		if line.Quantity < 1 {
			return Quote{}, fmt.Errorf("%w: quantity for product %s must be at least 1", ErrOrderInvalidInput, product.ID)
		}
		if !product.IsAvailable {
			return Quote{}, fmt.Errorf("%w: product %s", ErrProductUnavailable, product.ID)
		}
		if product.StockQty < int64(line.Quantity) {
			return Quote{}, fmt.Errorf("%w: product %s: requested %d, available %d", ErrInsufficientStock, product.ID, line.Quantity, product.StockQty)
		}
		unit := product.UnitPrice()
		item := domain.OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			UnitPrice:   unit,
			Total:       unit * int64(line.Quantity),
			WeightGrams: product.WeightGrams,
		}
		quote.Lines = append(quote.Lines, item)
		quote.Subtotal += item.Total
	}

	weight := domain.Order{Items: quote.Lines}.TotalWeightGrams()
	shipping, err := e.shipping.Estimate(ctx, input.Address.Province, weight)
	if err != nil {
		return Quote{}, err
	}
	quote.Shipping = shipping

	if code := domain.NormalizePromoCode(input.PromoCode); code != "" {
		promo, ok, err := e.lookupPromotion(ctx, code, now)
		if err != nil {
			return Quote{}, err
		}
		if ok {
			if quote.Subtotal < promo.MinOrderAmount {
				return Quote{}, fmt.Errorf("%w: %s requires %d, subtotal %d", ErrMinimumOrderNotMet, promo.Code, promo.MinOrderAmount, quote.Subtotal)
			}
			quote.Discount = promotionDiscount(promo, quote.Subtotal)
			quote.Promotion = &promo
		}
	}

	quote.Tax = domain.ApplyBasisPoints(quote.Subtotal, e.policy.VATBasisPoints)
	quote.Total = quote.Subtotal + quote.Shipping.Cost - quote.Discount + quote.Tax
	return quote, nil
}

// lookupPromotion treats unknown, inactive and expired codes as absent.
func (e *pricingEngine) lookupPromotion(ctx context.Context, code string, now time.Time) (domain.Promotion, bool, error) {
	if e.promotions == nil {
		return domain.Promotion{}, false, nil
	}
	promo, err := e.promotions.FindByCode(ctx, code)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			e.logger(ctx, "pricing.promotion.ignored", map[string]any{"code": code, "reason": "unknown"})
			return domain.Promotion{}, false, nil
		}
		return domain.Promotion{}, false, mapRepositoryError(err, nil, nil)
	}
	if !promo.ActiveAt(now) {
		e.logger(ctx, "pricing.promotion.ignored", map[string]any{"code": code, "reason": "inactive"})
		return domain.Promotion{}, false, nil
	}
	return promo, true, nil
}

// promotionDiscount never exceeds the subtotal.
func promotionDiscount(promo domain.Promotion, subtotal int64) int64 {
	var discount int64
	switch promo.DiscountType {
	case domain.DiscountTypePercentage:
		discount = domain.ApplyBasisPoints(subtotal, promo.DiscountValue*100)
	case domain.DiscountTypeFixed:
		discount = promo.DiscountValue
	}
	return max(0, min(discount, subtotal))
}

// ShippingEstimatorDeps bundles collaborators required to construct the shipping estimator.
type ShippingEstimatorDeps struct {
	Zones  repositories.ShippingZoneRepository
	Policy PricingPolicy
}

type shippingEstimator struct {
	zones  repositories.ShippingZoneRepository
	policy PricingPolicy
}

var _ ShippingEstimator = (*shippingEstimator)(nil)

// NewShippingEstimator constructs the zone based shipping estimator.
func NewShippingEstimator(deps ShippingEstimatorDeps) (ShippingEstimator, error) {
	if deps.Zones == nil {
		return nil, errors.New("shipping estimator: zone repository is required")
	}
	policy := deps.Policy
	if policy == (PricingPolicy{}) {
		policy = DefaultPricingPolicy
	}
	return &shippingEstimator{zones: deps.Zones, policy: policy}, nil
}

// Estimate resolves the province's zone, applies the remote multiplier, then adds a per-gram
// prorated surcharge for weight above the free threshold.
func (s *shippingEstimator) Estimate(ctx context.Context, province string, weightGrams int64) (ShippingEstimate, error) {
	region := strings.TrimSpace(province)
	if region == "" {
		return ShippingEstimate{}, fmt.Errorf("%w: destination province is required", ErrShippingUnavailable)
	}
	if weightGrams < 0 {
		return ShippingEstimate{}, fmt.Errorf("%w: weight must not be negative", ErrOrderInvalidInput)
	}
	zone, err := s.zones.FindByRegion(ctx, region)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return ShippingEstimate{}, fmt.Errorf("%w: %s", ErrShippingUnavailable, region)
		}
		return ShippingEstimate{}, mapRepositoryError(err, nil, nil)
	}

	base := zone.ShippingRate
	if zone.IsRemote {
		base = domain.ApplyBasisPoints(base, s.policy.RemoteMultiplierBps)
	}
	var surcharge int64
	if excess := weightGrams - s.policy.FreeWeightGrams; excess > 0 {
		surcharge = domain.Prorate(s.policy.SurchargePerKg, excess, 1000)
	}
	return ShippingEstimate{
		Zone:          zone,
		BaseRate:      base,
		Surcharge:     surcharge,
		Cost:          base + surcharge,
		EstimatedDays: zone.EstimatedDays,
	}, nil
}
