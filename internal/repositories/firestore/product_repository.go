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

const productsCollection = "products"

type productDocument struct {
	ID               string    `firestore:"id"`
	Name             string    `firestore:"name"`
	Slug             string    `firestore:"slug"`
	Brand            string    `firestore:"brand,omitempty"`
	Description      string    `firestore:"description,omitempty"`
	SKU              string    `firestore:"sku"`
	ProductType      string    `firestore:"productType"`
	VendorID         string    `firestore:"vendorId,omitempty"`
	Categories       []string  `firestore:"categories"`
	Keywords         []string  `firestore:"keywords"`
	BasePrice        int64     `firestore:"basePrice"`
	DiscountPrice    *int64    `firestore:"discountPrice,omitempty"`
	StockQty         int64     `firestore:"stockQty"`
	WeightGrams      int64     `firestore:"weightGrams"`
	ReturnPolicyDays *int      `firestore:"returnPolicyDays,omitempty"`
	IsAvailable      bool      `firestore:"isAvailable"`
	IsFeatured       bool      `firestore:"isFeatured"`
	CreatedAt        time.Time `firestore:"createdAt"`
	UpdatedAt        time.Time `firestore:"updatedAt"`
}

func newProductDocument(p domain.Product) productDocument {
	return productDocument{
		ID:               p.ID,
		Name:             p.Name,
		Slug:             p.Slug,
		Brand:            p.Brand,
		Description:      p.Description,
		SKU:              p.SKU,
		ProductType:      string(p.ProductType),
		VendorID:         p.VendorID,
		Categories:       append([]string(nil), p.Categories...),
		Keywords:         productKeywords(p),
		BasePrice:        p.BasePrice,
		DiscountPrice:    p.DiscountPrice,
		StockQty:         p.StockQty,
		WeightGrams:      p.WeightGrams,
		ReturnPolicyDays: p.ReturnPolicyDays,
		IsAvailable:      p.IsAvailable,
		IsFeatured:       p.IsFeatured,
		CreatedAt:        p.CreatedAt.UTC(),
		UpdatedAt:        p.UpdatedAt.UTC(),
	}
}

func productKeywords(p domain.Product) []string {
	keywords := domain.SearchTokens(p.Name, p.Brand, p.SKU)
	if keywords == nil {
		return []string{}
	}
	return keywords
}

func (d productDocument) toDomain(id string) domain.Product {
	if d.ID != "" {
		id = d.ID
	}
	return domain.Product{
		ID:               id,
		Name:             d.Name,
		Slug:             d.Slug,
		Brand:            d.Brand,
		Description:      d.Description,
		SKU:              d.SKU,
		ProductType:      domain.ProductType(d.ProductType),
		VendorID:         d.VendorID,
		Categories:       d.Categories,
		BasePrice:        d.BasePrice,
		DiscountPrice:    d.DiscountPrice,
		StockQty:         d.StockQty,
		WeightGrams:      d.WeightGrams,
		ReturnPolicyDays: d.ReturnPolicyDays,
		IsAvailable:      d.IsAvailable,
		IsFeatured:       d.IsFeatured,
		CreatedAt:        d.CreatedAt.UTC(),
		UpdatedAt:        d.UpdatedAt.UTC(),
	}
}

// ProductRepository reads products and guards stock_qty. Every stock change is either a
// transactional check-and-decrement or a server-side increment, never a plain read-modify-write.
type ProductRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[productDocument]
	now      func() time.Time
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		provider: provider,
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Insert creates the product document. An existing id is a conflict.
func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if strings.TrimSpace(product.ID) == "" {
		return errors.New("product insert: id is required")
	}
	doc := newProductDocument(product)
	return r.products.Create(ctx, doc.ID, doc)
}

// Update rewrites catalog fields by path and leaves stockQty to the ledger operations.
func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	id := strings.TrimSpace(product.ID)
	doc := newProductDocument(product)
	var discount any = firestore.Delete
	if doc.DiscountPrice != nil {
		discount = *doc.DiscountPrice
	}
	var returnDays any = firestore.Delete
	if doc.ReturnPolicyDays != nil {
		returnDays = *doc.ReturnPolicyDays
	}
	return r.products.Update(ctx, id, []firestore.Update{
		{Path: "name", Value: doc.Name},
		{Path: "slug", Value: doc.Slug},
		{Path: "brand", Value: doc.Brand},
		{Path: "description", Value: doc.Description},
		{Path: "sku", Value: doc.SKU},
		{Path: "productType", Value: doc.ProductType},
		{Path: "vendorId", Value: doc.VendorID},
		{Path: "categories", Value: doc.Categories},
		{Path: "keywords", Value: doc.Keywords},
		{Path: "basePrice", Value: doc.BasePrice},
		{Path: "discountPrice", Value: discount},
		{Path: "weightGrams", Value: doc.WeightGrams},
		{Path: "returnPolicyDays", Value: returnDays},
		{Path: "isAvailable", Value: doc.IsAvailable},
		{Path: "isFeatured", Value: doc.IsFeatured},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	})
}

func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	id := strings.TrimSpace(productID)
	if _, err := r.products.Get(ctx, id); err != nil {
		return err
	}
	return r.products.Delete(ctx, id)
}

// List pages through the catalog newest first. Firestore accepts one array-contains clause per
// query, so category and keyword filters cannot be combined.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	category := strings.TrimSpace(filter.Category)
	keyword := domain.SearchKey(filter.Keyword)
	if category != "" && keyword != "" {
		return domain.CursorPage[domain.Product]{}, errors.New("product list: category and keyword filters are exclusive")
	}
	return listPage(ctx, r.products, filter.Pagination,
		func(q firestore.Query) firestore.Query {
			if !filter.IncludeUnavailable {
				q = q.Where("isAvailable", "==", true)
			}
			if vendor := strings.TrimSpace(filter.VendorID); vendor != "" {
				q = q.Where("vendorId", "==", vendor)
			}
			switch {
			case category != "":
				q = q.Where("categories", "array-contains", category)
			case keyword != "":
				q = q.Where("keywords", "array-contains", keyword)
			}
			return q
		},
		func(d productDocument) domain.Product { return d.toDomain(d.ID) },
		func(d productDocument) pagination.Cursor { return pagination.Cursor{CreatedAt: d.CreatedAt, ID: d.ID} },
	)
}

func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	id := strings.TrimSpace(productID)
	doc, err := r.products.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.toDomain(id), nil
}

// DecrementStock reads and conditionally updates the product inside its own transaction, so two
// concurrent buyers of the last unit cannot both succeed.
func (r *ProductRepository) DecrementStock(ctx context.Context, productID string, qty int64) (domain.Product, error) {
	id := strings.TrimSpace(productID)
	if qty <= 0 {
		return domain.Product{}, repositories.NewStockError(repositories.StockErrorInvalidQuantity, id, qty, 0)
	}

	var updated domain.Product
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		doc, err := r.products.Get(ctx, id)
		if err != nil {
			if isNotFound(err) {
				stockErr := repositories.NewStockError(repositories.StockErrorProductNotFound, id, qty, 0)
				stockErr.Err = err
				return stockErr
			}
			return err
		}
		if doc.StockQty < qty {
			return repositories.NewStockError(repositories.StockErrorInsufficient, id, qty, doc.StockQty)
		}

		now := r.now()
		doc.StockQty -= qty
		doc.UpdatedAt = now
		if err := r.products.Update(ctx, id, []firestore.Update{
			{Path: "stockQty", Value: doc.StockQty},
			{Path: "updatedAt", Value: now},
		}); err != nil {
			return err
		}
		updated = doc.toDomain(id)
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}
	return updated, nil
}

// IncrementStock adds qty with a server-side increment. There is no upper bound.
func (r *ProductRepository) IncrementStock(ctx context.Context, productID string, qty int64) error {
	id := strings.TrimSpace(productID)
	if qty <= 0 {
		return repositories.NewStockError(repositories.StockErrorInvalidQuantity, id, qty, 0)
	}
	err := r.products.Update(ctx, id, []firestore.Update{
		{Path: "stockQty", Value: firestore.Increment(qty)},
		{Path: "updatedAt", Value: r.now()},
	})
	if isNotFound(err) {
		stockErr := repositories.NewStockError(repositories.StockErrorProductNotFound, id, qty, 0)
		stockErr.Err = err
		return stockErr
	}
	return err
}
