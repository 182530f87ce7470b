package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/jara-commerce/api/internal/domain"
)

var pricingNow = time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

func newTestPricing(t *testing.T, zones *memZones, promos *memPromotions) PricingEngine {
	t.Helper()
	estimator, err := NewShippingEstimator(ShippingEstimatorDeps{Zones: zones})
	if err != nil {
		t.Fatalf("NewShippingEstimator: %v", err)
	}
	engine, err := NewPricingEngine(PricingEngineDeps{
		Shipping:   estimator,
		Promotions: promos,
		Clock:      func() time.Time { return pricingNow },
	})
	if err != nil {
		t.Fatalf("NewPricingEngine: %v", err)
	}
	return engine
}

func bagmati() domain.ShippingZone {
	return domain.ShippingZone{ID: "z1", RegionName: "Bagmati", ShippingRate: 100, EstimatedDays: 2}
}

func TestPricingEngineExampleOrder(t *testing.T) {
	engine := newTestPricing(t, newMemZones(bagmati()), newMemPromotions())

	quote, err := engine.Quote(context.Background(), PricingInput{
		Lines: []PricingLine{{
			Product:  domain.Product{ID: "p1", Name: "Kettle", BasePrice: 1000, StockQty: 5, IsAvailable: true},
			Quantity: 2,
		}},
		Address: domain.Address{Province: "bagmati"},
	})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if quote.Subtotal != 2000 || quote.Shipping.Cost != 100 || quote.Discount != 0 || quote.Tax != 260 {
		t.Fatalf("unexpected breakdown %+v", quote)
	}
	if quote.Total != 2360 {
		t.Fatalf("expected total 2360, got %d", quote.Total)
	}
	if quote.Lines[0].Total != 2000 || quote.Lines[0].UnitPrice != 1000 {
		t.Fatalf("unexpected line %+v", quote.Lines[0])
	}
}

func TestPricingEngineUsesDiscountPrice(t *testing.T) {
	engine := newTestPricing(t, newMemZones(bagmati()), newMemPromotions())
	quote, err := engine.Quote(context.Background(), PricingInput{
		Lines: []PricingLine{{
			Product:  domain.Product{ID: "p1", BasePrice: 1000, DiscountPrice: int64Ptr(800), StockQty: 5, IsAvailable: true},
			Quantity: 1,
		}},
		Address: domain.Address{Province: "Bagmati"},
	})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if quote.Subtotal != 800 {
		t.Fatalf("expected discount price to apply, got %d", quote.Subtotal)
	}
}

func TestShippingEstimatorRemoteAndWeightSurcharge(t *testing.T) {
	remote := domain.ShippingZone{ID: "z2", RegionName: "Karnali", ShippingRate: 200, IsRemote: true, EstimatedDays: 6}
	estimator, err := NewShippingEstimator(ShippingEstimatorDeps{Zones: newMemZones(remote)})
	if err != nil {
		t.Fatalf("NewShippingEstimator: %v", err)
	}

	tests := []struct {
		name      string
		weight    int64
		surcharge int64
	}{
		{name: "under threshold", weight: 4000, surcharge: 0},
		{name: "at threshold", weight: 5000, surcharge: 0},
		{name: "two kg over", weight: 7000, surcharge: 10000},
		{name: "prorated grams", weight: 5250, surcharge: 1250},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			est, err := estimator.Estimate(context.Background(), "  karnali ", tc.weight)
			if err != nil {
				t.Fatalf("Estimate: %v", err)
			}
			if est.BaseRate != 300 {
				t.Fatalf("expected remote base 300, got %d", est.BaseRate)
			}
			if est.Surcharge != tc.surcharge || est.Cost != 300+tc.surcharge {
				t.Fatalf("unexpected estimate %+v", est)
			}
		})
	}
}

func TestShippingEstimatorUnknownProvince(t *testing.T) {
	estimator, _ := NewShippingEstimator(ShippingEstimatorDeps{Zones: newMemZones(bagmati())})
	if _, err := estimator.Estimate(context.Background(), "Atlantis", 100); !errors.Is(err, ErrShippingUnavailable) {
		t.Fatalf("expected ErrShippingUnavailable, got %v", err)
	}
}

func TestPricingEnginePromotions(t *testing.T) {
	window := func(p domain.Promotion) domain.Promotion {
		p.ValidFrom = pricingNow.Add(-24 * time.Hour)
		p.ValidUntil = pricingNow.Add(24 * time.Hour)
		p.IsActive = true
		return p
	}
	promos := newMemPromotions(
		window(domain.Promotion{ID: "1", Code: "TEN", DiscountType: domain.DiscountTypePercentage, DiscountValue: 10}),
		window(domain.Promotion{ID: "2", Code: "BIGFIXED", DiscountType: domain.DiscountTypeFixed, DiscountValue: 999999}),
		window(domain.Promotion{ID: "3", Code: "MIN5K", DiscountType: domain.DiscountTypeFixed, DiscountValue: 100, MinOrderAmount: 5000}),
		domain.Promotion{ID: "4", Code: "OLD", DiscountType: domain.DiscountTypePercentage, DiscountValue: 50, IsActive: true,
			ValidFrom: pricingNow.Add(-72 * time.Hour), ValidUntil: pricingNow.Add(-time.Hour)},
		domain.Promotion{ID: "5", Code: "OFF", DiscountType: domain.DiscountTypeFixed, DiscountValue: 100,
			ValidFrom: pricingNow.Add(-time.Hour), ValidUntil: pricingNow.Add(time.Hour)},
	)
	engine := newTestPricing(t, newMemZones(bagmati()), promos)

	tests := []struct {
		name     string
		code     string
		discount int64
		wantErr  error
	}{
		{name: "percentage", code: "ten", discount: 200},
		{name: "fixed clamped to subtotal", code: "BIGFIXED", discount: 2000},
		{name: "minimum not met", code: "MIN5K", wantErr: ErrMinimumOrderNotMet},
		{name: "expired ignored", code: "OLD", discount: 0},
		{name: "inactive ignored", code: "OFF", discount: 0},
		{name: "unknown ignored", code: "NOPE", discount: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			quote, err := engine.Quote(context.Background(), PricingInput{
				Lines: []PricingLine{{
					Product:  domain.Product{ID: "p1", BasePrice: 1000, StockQty: 5, IsAvailable: true},
					Quantity: 2,
				}},
				Address:   domain.Address{Province: "Bagmati"},
				PromoCode: tc.code,
			})
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Quote: %v", err)
			}
			if quote.Discount != tc.discount {
				t.Fatalf("expected discount %d, got %d", tc.discount, quote.Discount)
			}
			if quote.Tax != 260 {
				t.Fatalf("tax is on the pre-discount subtotal, got %d", quote.Tax)
			}
			if quote.Total != 2000+100-tc.discount+260 {
				t.Fatalf("unexpected total %d", quote.Total)
			}
			if tc.discount == 0 && quote.Promotion != nil {
				t.Fatalf("expected no promotion to be applied")
			}
		})
	}
}

func TestPricingEngineRejectsBeforeAnyMutation(t *testing.T) {
	engine := newTestPricing(t, newMemZones(bagmati()), newMemPromotions())
	_, err := engine.Quote(context.Background(), PricingInput{
		Lines:   []PricingLine{{Product: domain.Product{ID: "p1", BasePrice: 10, StockQty: 1, IsAvailable: true}, Quantity: 2}},
		Address: domain.Address{Province: "Bagmati"},
	})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	_, err = engine.Quote(context.Background(), PricingInput{
		Lines:   []PricingLine{{Product: domain.Product{ID: "p1", BasePrice: 10, StockQty: 1}, Quantity: 1}},
		Address: domain.Address{Province: "Bagmati"},
	})
	if !errors.Is(err, ErrProductUnavailable) {
		t.Fatalf("expected ErrProductUnavailable, got %v", err)
	}
}
