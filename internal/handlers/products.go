package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/jara-commerce/api/internal/domain"
	"github.com/jara-commerce/api/internal/platform/auth"
	"github.com/jara-commerce/api/internal/services"
)

const maxProductRequestBody = 32 * 1024

// ProductHandlers serves the public catalog and its admin and vendor maintenance endpoints.
type ProductHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
}

// NewProductHandlers constructs product handlers.
func NewProductHandlers(authn *auth.Authenticator, catalog services.CatalogService) *ProductHandlers {
	return &ProductHandlers{authn: authn, catalog: catalog}
}

// Routes registers the public /products endpoints.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listPublicProducts)
	r.Get("/{productID}", h.getPublicProduct)
}

// AdminRoutes registers /products under the admin group. Vendors pass the capability gate and
// are limited to their own products by the catalog service.
func (h *ProductHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Route("/products", func(rt chi.Router) {
		if h.authn != nil {
			rt.Use(h.authn.RequireFirebaseAuth())
		}
		rt.Use(auth.RequireAnyCapability(domain.CapProductsManage, domain.CapProductsManageOwn))
		rt.Get("/", h.listManagedProducts)
		rt.Post("/", h.createProduct)
		rt.Get("/{productID}", h.getManagedProduct)
		rt.Put("/{productID}", h.updateProduct)
		rt.Delete("/{productID}", h.deleteProduct)
		rt.Post("/{productID}/stock", h.adjustStock)
	})
}

type upsertProductRequest struct {
	Name             string   `json:"name"`
	Brand            string   `json:"brand"`
	Description      string   `json:"description"`
	SKU              string   `json:"sku"`
	ProductType      string   `json:"product_type"`
	VendorID         string   `json:"vendor_id"`
	Categories       []string `json:"categories"`
	BasePrice        int64    `json:"base_price"`
	DiscountPrice    *int64   `json:"discount_price"`
	StockQty         int64    `json:"stock_qty"`
	WeightGrams      int64    `json:"weight_grams"`
	ReturnPolicyDays *int     `json:"return_policy_days"`
	IsAvailable      *bool    `json:"is_available"`
	IsFeatured       bool     `json:"is_featured"`
}

type adjustStockRequest struct {
	Delta  int64  `json:"delta"`
	Reason string `json:"reason"`
}

type productResponse struct {
	Product productPayload `json:"product"`
}

func (h *ProductHandlers) listPublicProducts(w http.ResponseWriter, r *http.Request) {
	h.listProducts(w, r, services.Actor{}, false)
}

func (h *ProductHandlers) listManagedProducts(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	h.listProducts(w, r, actor, true)
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request, actor services.Actor, managed bool) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	pager, ok := readPagination(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	filter := services.ProductFilter{
		Category:           strings.TrimSpace(query.Get("category")),
		Keyword:            strings.TrimSpace(query.Get("q")),
		VendorID:           strings.TrimSpace(query.Get("vendor_id")),
		IncludeUnavailable: managed,
		Pagination:         pager,
	}

	page, err := h.catalog.ListProducts(ctx, actor, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	items := make([]productPayload, 0, len(page.Items))
	for _, product := range page.Items {
		items = append(items, buildProductPayload(product, managed))
	}
	writeJSONResponse(w, http.StatusOK, listResponse[productPayload]{Items: items, NextPageToken: page.NextPageToken})
}

func (h *ProductHandlers) getPublicProduct(w http.ResponseWriter, r *http.Request) {
	h.getProduct(w, r, services.Actor{}, false)
}

func (h *ProductHandlers) getManagedProduct(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	h.getProduct(w, r, actor, true)
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request, actor services.Actor, managed bool) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	productID, ok := pathParam(w, r, "productID", "product id")
	if !ok {
		return
	}

	product, err := h.catalog.GetProduct(ctx, actor, productID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product, managed)})
}

func (h *ProductHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	cmd, ok := decodeProductCommand(w, r)
	if !ok {
		return
	}

	product, err := h.catalog.CreateProduct(ctx, actor, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, productResponse{Product: buildProductPayload(product, true)})
}

func (h *ProductHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	productID, ok := pathParam(w, r, "productID", "product id")
	if !ok {
		return
	}
	cmd, ok := decodeProductCommand(w, r)
	if !ok {
		return
	}

	product, err := h.catalog.UpdateProduct(ctx, actor, productID, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product, true)})
}

func (h *ProductHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	productID, ok := pathParam(w, r, "productID", "product id")
	if !ok {
		return
	}

	if err := h.catalog.DeleteProduct(ctx, actor, productID); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProductHandlers) adjustStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	productID, ok := pathParam(w, r, "productID", "product id")
	if !ok {
		return
	}
	var req adjustStockRequest
	if !decodeRequestBody(w, r, maxProductRequestBody, &req) {
		return
	}

	product, err := h.catalog.AdjustStock(ctx, actor, services.AdjustStockCommand{
		ProductID: productID,
		Delta:     req.Delta,
		Reason:    req.Reason,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product, true)})
}

func decodeProductCommand(w http.ResponseWriter, r *http.Request) (services.UpsertProductCommand, bool) {
	var req upsertProductRequest
	if !decodeRequestBody(w, r, maxProductRequestBody, &req) {
		return services.UpsertProductCommand{}, false
	}
	available := true
	if req.IsAvailable != nil {
		available = *req.IsAvailable
	}
	return services.UpsertProductCommand{
		Name:             req.Name,
		Brand:            req.Brand,
		Description:      req.Description,
		SKU:              req.SKU,
		ProductType:      domain.ProductType(strings.ToLower(strings.TrimSpace(req.ProductType))),
		VendorID:         req.VendorID,
		Categories:       req.Categories,
		BasePrice:        req.BasePrice,
		DiscountPrice:    req.DiscountPrice,
		StockQty:         req.StockQty,
		WeightGrams:      req.WeightGrams,
		ReturnPolicyDays: req.ReturnPolicyDays,
		IsAvailable:      available,
		IsFeatured:       req.IsFeatured,
	}, true
}
