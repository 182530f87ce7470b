package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	domain "github.com/jara-commerce/api/internal/domain"
	"github.com/jara-commerce/api/internal/repositories"
)

const (
	productIDPrefix         = "prod_"
	maxProductNameRunes     = 100
	maxProductDescription   = 1000
	maxProductSKURunes      = 64
	maxProductCategoryRunes = 50
)

// CatalogServiceDeps bundles collaborators required to construct the catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Inventory   InventoryLedger
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	products  repositories.ProductRepository
	inventory InventoryLedger
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

var _ CatalogService = (*catalogService)(nil)

// NewCatalogService constructs the product catalog service.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("catalog service: inventory ledger is required")
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
	return &catalogService{
		products:  deps.Products,
		inventory: deps.Inventory,
		clock:     func() time.Time { return clock().UTC() },
		newID:     idGen,
		logger:    logger,
	}, nil
}

// ListProducts returns available products to everyone. Delisted products are only listed for
// catalog managers, or for a vendor scoped to its own products.
func (s *catalogService) ListProducts(ctx context.Context, actor Actor, filter ProductFilter) (domain.CursorPage[domain.Product], error) {
	repoFilter := repositories.ProductListFilter{
		Category:   normalizeCategory(filter.Category),
		Keyword:    domain.SearchKey(filter.Keyword),
		VendorID:   strings.TrimSpace(filter.VendorID),
		Pagination: domain.Pagination{PageSize: filter.Pagination.PageSize, PageToken: strings.TrimSpace(filter.Pagination.PageToken)},
	}
	if repoFilter.Category != "" && repoFilter.Keyword != "" {
		return domain.CursorPage[domain.Product]{}, fmt.Errorf("%w: category and q cannot be combined", ErrProductInvalidInput)
	}
	if filter.IncludeUnavailable {
		switch {
		case actor.Can(domain.CapProductsManage):
		case actor.Can(domain.CapProductsManageOwn) && actor.ID != "":
			repoFilter.VendorID = actor.ID
		default:
			return domain.CursorPage[domain.Product]{}, ErrNotAuthorized
		}
		repoFilter.IncludeUnavailable = true
	}
	page, err := s.products.List(ctx, repoFilter)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, mapRepositoryError(err, ErrProductNotFound, nil)
	}
	return page, nil
}

// GetProduct hides delisted products from callers who cannot manage them.
func (s *catalogService) GetProduct(ctx context.Context, actor Actor, productID string) (domain.Product, error) {
	product, err := s.findProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	if !product.IsAvailable && !canManageProduct(actor, product) {
		return domain.Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, product.ID)
	}
	return product, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, actor Actor, cmd UpsertProductCommand) (domain.Product, error) {
	if !actor.Can(domain.CapProductsManage) && !actor.Can(domain.CapProductsManageOwn) {
		return domain.Product{}, ErrNotAuthorized
	}
	cmd = scopeToVendor(actor, cmd)
	product, err := buildProduct(cmd)
	if err != nil {
		return domain.Product{}, err
	}
	if cmd.StockQty < 0 {
		return domain.Product{}, fmt.Errorf("%w: stock_qty must not be negative", ErrProductInvalidInput)
	}
	now := s.clock()
	product.ID = productIDPrefix + s.newID()
	product.Slug = firstNonEmpty(product.Slug, strings.ToLower(product.ID))
	product.StockQty = cmd.StockQty
	product.CreatedAt = now
	product.UpdatedAt = now

	if err := s.products.Insert(ctx, product); err != nil {
		return domain.Product{}, mapRepositoryError(err, nil, ErrProductConflict)
	}
	s.logger(ctx, "product.created", map[string]any{"productId": product.ID, "vendorId": product.VendorID, "actorId": actor.ID})
	return product, nil
}

// UpdateProduct replaces catalog fields. Stock is carried over; use AdjustStock to change it.
func (s *catalogService) UpdateProduct(ctx context.Context, actor Actor, productID string, cmd UpsertProductCommand) (domain.Product, error) {
	existing, err := s.findProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	if !canManageProduct(actor, existing) {
		return domain.Product{}, ErrNotAuthorized
	}
	cmd = scopeToVendor(actor, cmd)
	product, err := buildProduct(cmd)
	if err != nil {
		return domain.Product{}, err
	}
	product.ID = existing.ID
	product.Slug = firstNonEmpty(product.Slug, strings.ToLower(existing.ID))
	product.StockQty = existing.StockQty
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = s.clock()

	if err := s.products.Update(ctx, product); err != nil {
		return domain.Product{}, mapRepositoryError(err, ErrProductNotFound, nil)
	}
	s.logger(ctx, "product.updated", map[string]any{"productId": product.ID, "actorId": actor.ID})
	return product, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, actor Actor, productID string) error {
	existing, err := s.findProduct(ctx, productID)
	if err != nil {
		return err
	}
	if !canManageProduct(actor, existing) {
		return ErrNotAuthorized
	}
	if err := s.products.Delete(ctx, existing.ID); err != nil {
		return mapRepositoryError(err, ErrProductNotFound, nil)
	}
	s.logger(ctx, "product.deleted", map[string]any{"productId": existing.ID, "actorId": actor.ID})
	return nil
}

// AdjustStock moves stock through the inventory ledger so restocks and write-offs never race
// with checkout reservations.
func (s *catalogService) AdjustStock(ctx context.Context, actor Actor, cmd AdjustStockCommand) (domain.Product, error) {
	existing, err := s.findProduct(ctx, cmd.ProductID)
	if err != nil {
		return domain.Product{}, err
	}
	if !canManageProduct(actor, existing) {
		return domain.Product{}, ErrNotAuthorized
	}
	switch {
	case cmd.Delta > 0:
		err = s.inventory.Release(ctx, existing.ID, cmd.Delta)
	case cmd.Delta < 0:
		err = s.inventory.Reserve(ctx, existing.ID, -cmd.Delta)
	default:
		return domain.Product{}, fmt.Errorf("%w: delta must not be zero", ErrProductInvalidInput)
	}
	if err != nil {
		return domain.Product{}, err
	}
	s.logger(ctx, "product.stock.adjusted", map[string]any{
		"productId": existing.ID,
		"delta":     cmd.Delta,
		"reason":    sanitizeText(cmd.Reason),
		"actorId":   actor.ID,
	})
	return s.findProduct(ctx, existing.ID)
}

func (s *catalogService) findProduct(ctx context.Context, productID string) (domain.Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, fmt.Errorf("%w: product id is required", ErrProductInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return domain.Product{}, mapRepositoryError(err, ErrProductNotFound, nil)
	}
	return product, nil
}

func canManageProduct(actor Actor, product domain.Product) bool {
	if actor.Can(domain.CapProductsManage) {
		return true
	}
	return actor.Can(domain.CapProductsManageOwn) && product.OwnedBy(actor.ID)
}

// scopeToVendor pins a vendor's products to factory type under the vendor's own id.
func scopeToVendor(actor Actor, cmd UpsertProductCommand) UpsertProductCommand {
	if actor.Can(domain.CapProductsManage) {
		return cmd
	}
	cmd.ProductType = domain.ProductTypeFactory
	cmd.VendorID = actor.ID
	return cmd
}

func buildProduct(cmd UpsertProductCommand) (domain.Product, error) {
	name := sanitizeText(cmd.Name)
	if name == "" || utf8.RuneCountInString(name) > maxProductNameRunes {
		return domain.Product{}, fmt.Errorf("%w: name is required and must be at most %d characters", ErrProductInvalidInput, maxProductNameRunes)
	}
	description := sanitizeText(cmd.Description)
	if utf8.RuneCountInString(description) > maxProductDescription {
		return domain.Product{}, fmt.Errorf("%w: description must be at most %d characters", ErrProductInvalidInput, maxProductDescription)
	}
	sku := strings.ToUpper(strings.TrimSpace(cmd.SKU))
	if utf8.RuneCountInString(sku) > maxProductSKURunes {
		return domain.Product{}, fmt.Errorf("%w: sku must be at most %d characters", ErrProductInvalidInput, maxProductSKURunes)
	}

	productType := cmd.ProductType
	if productType == "" {
		productType = domain.ProductTypeStandard
	}
	if !productType.Valid() {
		return domain.Product{}, fmt.Errorf("%w: unknown product type %q", ErrProductInvalidInput, cmd.ProductType)
	}
	vendorID := strings.TrimSpace(cmd.VendorID)
	if productType == domain.ProductTypeFactory && vendorID == "" {
		return domain.Product{}, fmt.Errorf("%w: vendor_id is required for factory products", ErrProductInvalidInput)
	}

	categories := normalizeCategories(cmd.Categories)
	if len(categories) == 0 {
		return domain.Product{}, fmt.Errorf("%w: at least one category is required", ErrProductInvalidInput)
	}
	for _, category := range categories {
		if utf8.RuneCountInString(category) > maxProductCategoryRunes {
			return domain.Product{}, fmt.Errorf("%w: category %q is too long", ErrProductInvalidInput, category)
		}
	}

	if cmd.WeightGrams < 0 {
		return domain.Product{}, fmt.Errorf("%w: weight_grams must not be negative", ErrProductInvalidInput)
	}
	if cmd.ReturnPolicyDays != nil && *cmd.ReturnPolicyDays < 0 {
		return domain.Product{}, fmt.Errorf("%w: return_policy_days must not be negative", ErrProductInvalidInput)
	}

	product := domain.Product{
		Name:             name,
		Slug:             domain.Slugify(name),
		Brand:            sanitizeText(cmd.Brand),
		Description:      description,
		SKU:              sku,
		ProductType:      productType,
		VendorID:         vendorID,
		Categories:       categories,
		BasePrice:        cmd.BasePrice,
		DiscountPrice:    cmd.DiscountPrice,
		WeightGrams:      cmd.WeightGrams,
		ReturnPolicyDays: cmd.ReturnPolicyDays,
		IsAvailable:      cmd.IsAvailable,
		IsFeatured:       cmd.IsFeatured,
	}
	if !product.PricingValid() {
		return domain.Product{}, fmt.Errorf("%w: base_price must not be negative and discount_price must be below base_price", ErrProductInvalidInput)
	}
	return product, nil
}

func normalizeCategory(value string) string {
	return strings.ToLower(strings.Join(strings.Fields(value), " "))
}

func normalizeCategories(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var result []string
	for _, value := range values {
		category := normalizeCategory(sanitizeText(value))
		if category == "" {
			continue
		}
		if _, ok := seen[category]; ok {
			continue
		}
		seen[category] = struct{}{}
		result = append(result, category)
	}
	return result
}
