package services

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	domain "github.com/jara-commerce/api/internal/domain"
)

var catalogNow = time.Date(2026, time.July, 3, 8, 30, 0, 0, time.UTC)

var (
	catalogManager = Actor{ID: "staff-7", Roles: []domain.Role{domain.RoleProductManager}}
	vendorActor    = Actor{ID: "vendor_1", Roles: []domain.Role{domain.RoleVendor}}
	shopper        = Actor{ID: "user_1", Roles: []domain.Role{domain.RoleCustomer}}
)

func newTestCatalogService(t *testing.T, products *memProducts, logs *captureLogs) CatalogService {
	t.Helper()
	deps := CatalogServiceDeps{
		Products:    products,
		Inventory:   newTestLedger(t, products, nil),
		Clock:       func() time.Time { return catalogNow },
		IDGenerator: sequentialIDs(),
	}
	if logs != nil {
		deps.Logger = logs.log
	}
	svc, err := NewCatalogService(deps)
	if err != nil {
		t.Fatalf("NewCatalogService: %v", err)
	}
	return svc
}

func validProductCommand() UpsertProductCommand {
	return UpsertProductCommand{
		Name:        "  Copper Water Jug  ",
		Brand:       "Patan Metalworks",
		Description: "<b>Hand beaten</b> copper jug",
		SKU:         "cj-15",
		Categories:  []string{"Kitchen", " kitchen ", "Gifts"},
		BasePrice:   250000,
		StockQty:    6,
		WeightGrams: 900,
		IsAvailable: true,
	}
}

func TestCatalogServiceCreateProduct(t *testing.T) {
	products := newMemProducts()
	logs := &captureLogs{}
	svc := newTestCatalogService(t, products, logs)

	product, err := svc.CreateProduct(context.Background(), catalogManager, validProductCommand())
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	if product.ID != "prod_001" || product.Slug != "copper-water-jug" || product.SKU != "CJ-15" {
		t.Fatalf("unexpected identifiers %+v", product)
	}
	if product.Description != "Hand beaten copper jug" {
		t.Fatalf("expected markup stripped, got %q", product.Description)
	}
	if !slices.Equal(product.Categories, []string{"kitchen", "gifts"}) {
		t.Fatalf("expected normalised categories, got %v", product.Categories)
	}
	if product.ProductType != domain.ProductTypeStandard || product.StockQty != 6 || !product.CreatedAt.Equal(catalogNow) {
		t.Fatalf("unexpected product %+v", product)
	}
	if products.stock("prod_001") != 6 {
		t.Fatalf("expected product stored with stock 6")
	}
	if !logs.has("product.created") {
		t.Fatalf("expected product.created log, got %v", logs.events)
	}
}

func TestCatalogServiceCreateProductValidation(t *testing.T) {
	svc := newTestCatalogService(t, newMemProducts(), nil)

	tests := []struct {
		name   string
		mutate func(*UpsertProductCommand)
	}{
		{name: "missing name", mutate: func(c *UpsertProductCommand) { c.Name = "<p></p>" }},
		{name: "long name", mutate: func(c *UpsertProductCommand) { c.Name = strings.Repeat("ā", 101) }},
		{name: "discount equals base", mutate: func(c *UpsertProductCommand) { c.DiscountPrice = int64Ptr(250000) }},
		{name: "discount above base", mutate: func(c *UpsertProductCommand) { c.DiscountPrice = int64Ptr(260000) }},
		{name: "negative discount", mutate: func(c *UpsertProductCommand) { c.DiscountPrice = int64Ptr(-1) }},
		{name: "negative base", mutate: func(c *UpsertProductCommand) { c.BasePrice = -1 }},
		{name: "factory without vendor", mutate: func(c *UpsertProductCommand) { c.ProductType = domain.ProductTypeFactory }},
		{name: "unknown type", mutate: func(c *UpsertProductCommand) { c.ProductType = "bundle" }},
		{name: "no categories", mutate: func(c *UpsertProductCommand) { c.Categories = []string{" "} }},
		{name: "negative stock", mutate: func(c *UpsertProductCommand) { c.StockQty = -1 }},
		{name: "negative weight", mutate: func(c *UpsertProductCommand) { c.WeightGrams = -5 }},
		{name: "negative return window", mutate: func(c *UpsertProductCommand) { c.ReturnPolicyDays = intPtr(-1) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cmd := validProductCommand()
			tc.mutate(&cmd)
			if _, err := svc.CreateProduct(context.Background(), catalogManager, cmd); !errors.Is(err, ErrProductInvalidInput) {
				t.Fatalf("expected ErrProductInvalidInput, got %v", err)
			}
		})
	}

	cmd := validProductCommand()
	cmd.ProductType = domain.ProductTypeFactory
	cmd.VendorID = "vendor_9"
	cmd.DiscountPrice = int64Ptr(249999)
	product, err := svc.CreateProduct(context.Background(), catalogManager, cmd)
	if err != nil || product.VendorID != "vendor_9" || product.UnitPrice() != 249999 {
		t.Fatalf("expected factory product for vendor_9, got %+v %v", product, err)
	}
}

func TestCatalogServiceVendorScope(t *testing.T) {
	products := newMemProducts(
		domain.Product{ID: "prod_other", Name: "Singing Bowl", ProductType: domain.ProductTypeFactory, VendorID: "vendor_2", Categories: []string{"decor"}, BasePrice: 5000, StockQty: 2, IsAvailable: true},
	)
	svc := newTestCatalogService(t, products, nil)
	ctx := context.Background()

	cmd := validProductCommand()
	cmd.ProductType = domain.ProductTypeStandard
	cmd.VendorID = "vendor_2"
	product, err := svc.CreateProduct(ctx, vendorActor, cmd)
	if err != nil {
		t.Fatalf("vendor create: %v", err)
	}
	if product.ProductType != domain.ProductTypeFactory || product.VendorID != "vendor_1" {
		t.Fatalf("expected vendor product pinned to vendor_1, got %+v", product)
	}

	if _, err := svc.UpdateProduct(ctx, vendorActor, "prod_other", validProductCommand()); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected vendor blocked from another vendor's product, got %v", err)
	}
	if err := svc.DeleteProduct(ctx, vendorActor, "prod_other"); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected vendor blocked from deleting another vendor's product, got %v", err)
	}
	if _, err := svc.CreateProduct(ctx, shopper, validProductCommand()); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected customer blocked, got %v", err)
	}

	cmd.Name = "Copper Jug Large"
	updated, err := svc.UpdateProduct(ctx, vendorActor, product.ID, cmd)
	if err != nil || updated.Slug != "copper-jug-large" || updated.VendorID != "vendor_1" {
		t.Fatalf("expected vendor to edit its own product, got %+v %v", updated, err)
	}

	if _, err := svc.ListProducts(ctx, vendorActor, ProductFilter{IncludeUnavailable: true, VendorID: "vendor_2"}); err != nil {
		t.Fatalf("vendor list: %v", err)
	}
	if products.lastFilter.VendorID != "vendor_1" || !products.lastFilter.IncludeUnavailable {
		t.Fatalf("expected vendor listing scoped to vendor_1, got %+v", products.lastFilter)
	}
	if _, err := svc.ListProducts(ctx, shopper, ProductFilter{IncludeUnavailable: true}); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected customer blocked from delisted products, got %v", err)
	}
}

func TestCatalogServiceUpdateKeepsStock(t *testing.T) {
	products := newMemProducts(domain.Product{ID: "prod_1", Name: "Topi", Categories: []string{"apparel"}, BasePrice: 1500, StockQty: 9, IsAvailable: true, CreatedAt: catalogNow.Add(-time.Hour)})
	svc := newTestCatalogService(t, products, nil)

	cmd := validProductCommand()
	cmd.StockQty = 0
	updated, err := svc.UpdateProduct(context.Background(), catalogManager, "prod_1", cmd)
	if err != nil {
		t.Fatalf("UpdateProduct: %v", err)
	}
	if updated.StockQty != 9 || products.stock("prod_1") != 9 {
		t.Fatalf("expected stock untouched, got %d/%d", updated.StockQty, products.stock("prod_1"))
	}
	if !updated.CreatedAt.Equal(catalogNow.Add(-time.Hour)) || !updated.UpdatedAt.Equal(catalogNow) {
		t.Fatalf("unexpected timestamps %+v", updated)
	}
	if _, err := svc.UpdateProduct(context.Background(), catalogManager, "missing", cmd); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestCatalogServiceGetHidesDelisted(t *testing.T) {
	products := newMemProducts(
		domain.Product{ID: "prod_live", Name: "Shawl", IsAvailable: true},
		domain.Product{ID: "prod_hidden", Name: "Scarf", VendorID: "vendor_1", IsAvailable: false},
	)
	svc := newTestCatalogService(t, products, nil)
	ctx := context.Background()

	if _, err := svc.GetProduct(ctx, Actor{}, "prod_live"); err != nil {
		t.Fatalf("anonymous get: %v", err)
	}
	if _, err := svc.GetProduct(ctx, Actor{}, "prod_hidden"); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected delisted product hidden, got %v", err)
	}
	if _, err := svc.GetProduct(ctx, vendorActor, "prod_hidden"); err != nil {
		t.Fatalf("expected owning vendor to see delisted product, got %v", err)
	}
	if _, err := svc.GetProduct(ctx, catalogManager, "prod_hidden"); err != nil {
		t.Fatalf("expected manager to see delisted product, got %v", err)
	}
}

func TestCatalogServiceListFilters(t *testing.T) {
	products := newMemProducts(
		domain.Product{ID: "prod_1", Name: "Pashmina Shawl", Categories: []string{"apparel"}, IsAvailable: true, CreatedAt: catalogNow.Add(-2 * time.Hour)},
		domain.Product{ID: "prod_2", Name: "Pashmina Scarf", Categories: []string{"apparel"}, IsAvailable: true, CreatedAt: catalogNow.Add(-time.Hour)},
		domain.Product{ID: "prod_3", Name: "Copper Jug", Categories: []string{"kitchen"}, IsAvailable: true, CreatedAt: catalogNow},
		domain.Product{ID: "prod_4", Name: "Pashmina Wrap", Categories: []string{"apparel"}, IsAvailable: false, CreatedAt: catalogNow},
	)
	svc := newTestCatalogService(t, products, nil)
	ctx := context.Background()

	page, err := svc.ListProducts(ctx, Actor{}, ProductFilter{Category: " Apparel "})
	if err != nil {
		t.Fatalf("list by category: %v", err)
	}
	if len(page.Items) != 2 || page.Items[0].ID != "prod_2" || page.Items[1].ID != "prod_1" {
		t.Fatalf("expected available apparel newest first, got %+v", page.Items)
	}

	page, err = svc.ListProducts(ctx, Actor{}, ProductFilter{Keyword: "JUG"})
	if err != nil || len(page.Items) != 1 || page.Items[0].ID != "prod_3" {
		t.Fatalf("expected keyword match on jug, got %+v %v", page.Items, err)
	}

	page, err = svc.ListProducts(ctx, catalogManager, ProductFilter{Keyword: "pashmina", IncludeUnavailable: true})
	if err != nil || len(page.Items) != 3 {
		t.Fatalf("expected manager to see delisted match, got %+v %v", page.Items, err)
	}

	if _, err := svc.ListProducts(ctx, Actor{}, ProductFilter{Category: "apparel", Keyword: "shawl"}); !errors.Is(err, ErrProductInvalidInput) {
		t.Fatalf("expected category and keyword rejected together, got %v", err)
	}
}

func TestCatalogServiceAdjustStock(t *testing.T) {
	products := newMemProducts(domain.Product{ID: "prod_1", Name: "Topi", VendorID: "vendor_1", StockQty: 3})
	logs := &captureLogs{}
	svc := newTestCatalogService(t, products, logs)
	ctx := context.Background()

	product, err := svc.AdjustStock(ctx, catalogManager, AdjustStockCommand{ProductID: "prod_1", Delta: 5, Reason: "restock"})
	if err != nil || product.StockQty != 8 {
		t.Fatalf("expected restock to 8, got %+v %v", product, err)
	}
	product, err = svc.AdjustStock(ctx, vendorActor, AdjustStockCommand{ProductID: "prod_1", Delta: -2, Reason: "damaged"})
	if err != nil || product.StockQty != 6 {
		t.Fatalf("expected write-off to 6, got %+v %v", product, err)
	}
	if _, err := svc.AdjustStock(ctx, catalogManager, AdjustStockCommand{ProductID: "prod_1", Delta: -7}); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if _, err := svc.AdjustStock(ctx, catalogManager, AdjustStockCommand{ProductID: "prod_1"}); !errors.Is(err, ErrProductInvalidInput) {
		t.Fatalf("expected zero delta rejected, got %v", err)
	}
	if _, err := svc.AdjustStock(ctx, shopper, AdjustStockCommand{ProductID: "prod_1", Delta: 1}); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected customer blocked, got %v", err)
	}
	if products.stock("prod_1") != 6 || !logs.has("product.stock.adjusted") {
		t.Fatalf("expected stock 6 and an adjustment log, got %d %v", products.stock("prod_1"), logs.events)
	}
}

func TestCatalogServiceDeleteProduct(t *testing.T) {
	products := newMemProducts(domain.Product{ID: "prod_1", Name: "Topi"})
	svc := newTestCatalogService(t, products, nil)

	if err := svc.DeleteProduct(context.Background(), catalogManager, "prod_1"); err != nil {
		t.Fatalf("DeleteProduct: %v", err)
	}
	if err := svc.DeleteProduct(context.Background(), catalogManager, "prod_1"); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}
