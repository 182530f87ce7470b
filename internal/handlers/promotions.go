package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/jara-commerce/api/internal/domain"
	"github.com/jara-commerce/api/internal/platform/auth"
	"github.com/jara-commerce/api/internal/platform/httpx"
	"github.com/jara-commerce/api/internal/services"
)

const maxPromotionRequestBody = 8 * 1024

// PromotionHandlers serves the public promo code check and the admin promotion catalogue.
type PromotionHandlers struct {
	authn      *auth.Authenticator
	promotions services.PromotionService
	limiter    RateLimiter
}

// PromotionHandlerOption customises PromotionHandlers.
type PromotionHandlerOption func(*PromotionHandlers)

// WithPromotionRateLimiter throttles public validation per client address.
func WithPromotionRateLimiter(limiter RateLimiter) PromotionHandlerOption {
	return func(h *PromotionHandlers) {
		h.limiter = limiter
	}
}

// NewPromotionHandlers constructs promotion handlers.
func NewPromotionHandlers(authn *auth.Authenticator, promotions services.PromotionService, opts ...PromotionHandlerOption) *PromotionHandlers {
	h := &PromotionHandlers{authn: authn, promotions: promotions}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the public /promotions endpoints.
func (h *PromotionHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/validate", h.validatePromotion)
}

// AdminRoutes registers /promotions under the admin group.
func (h *PromotionHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Route("/promotions", func(rt chi.Router) {
		if h.authn != nil {
			rt.Use(h.authn.RequireFirebaseAuth())
		}
		rt.Use(auth.RequireCapability(domain.CapPromotionsManage))
		rt.Get("/", h.listPromotions)
		rt.Post("/", h.createPromotion)
		rt.Get("/{promotionID}", h.getPromotion)
		rt.Put("/{promotionID}", h.updatePromotion)
		rt.Delete("/{promotionID}", h.deletePromotion)
	})
}

type validatePromotionRequest struct {
	Code        string `json:"code"`
	OrderAmount int64  `json:"order_amount"`
}

type validatePromotionResponse struct {
	Valid     bool             `json:"valid"`
	Discount  int64            `json:"discount"`
	Promotion promotionPayload `json:"promotion"`
}

type upsertPromotionRequest struct {
	Code           string `json:"code"`
	DiscountType   string `json:"discount_type"`
	DiscountValue  int64  `json:"discount_value"`
	MinOrderAmount int64  `json:"min_order_amount"`
	ValidFrom      string `json:"valid_from"`
	ValidUntil     string `json:"valid_until"`
	IsActive       *bool  `json:"is_active"`
}

type promotionResponse struct {
	Promotion promotionPayload `json:"promotion"`
}

func (h *PromotionHandlers) validatePromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.promotions == nil {
		serviceUnavailable(ctx, w, "promotion")
		return
	}
	if h.limiter != nil && !h.limiter.Allow(ctx, "promo:"+clientKey(r)) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many promotion checks; retry later", http.StatusTooManyRequests))
		return
	}

	var req validatePromotionRequest
	if !decodeRequestBody(w, r, maxPromotionRequestBody, &req) {
		return
	}

	result, err := h.promotions.Validate(ctx, req.Code, req.OrderAmount)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, validatePromotionResponse{
		Valid:     true,
		Discount:  result.Discount,
		Promotion: buildPromotionPayload(result.Promotion),
	})
}

func (h *PromotionHandlers) listPromotions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.promotions == nil {
		serviceUnavailable(ctx, w, "promotion")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	pager, ok := readPagination(w, r)
	if !ok {
		return
	}

	page, err := h.promotions.ListPromotions(ctx, actor, pager)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	items := make([]promotionPayload, 0, len(page.Items))
	for _, promo := range page.Items {
		items = append(items, buildPromotionPayload(promo))
	}
	writeJSONResponse(w, http.StatusOK, listResponse[promotionPayload]{Items: items, NextPageToken: page.NextPageToken})
}

func (h *PromotionHandlers) getPromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.promotions == nil {
		serviceUnavailable(ctx, w, "promotion")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	promotionID, ok := pathParam(w, r, "promotionID", "promotion id")
	if !ok {
		return
	}

	promo, err := h.promotions.GetPromotion(ctx, actor, promotionID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, promotionResponse{Promotion: buildPromotionPayload(promo)})
}

func (h *PromotionHandlers) createPromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.promotions == nil {
		serviceUnavailable(ctx, w, "promotion")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	cmd, ok := decodePromotionCommand(w, r)
	if !ok {
		return
	}

	promo, err := h.promotions.CreatePromotion(ctx, actor, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, promotionResponse{Promotion: buildPromotionPayload(promo)})
}

func (h *PromotionHandlers) updatePromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.promotions == nil {
		serviceUnavailable(ctx, w, "promotion")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	promotionID, ok := pathParam(w, r, "promotionID", "promotion id")
	if !ok {
		return
	}
	cmd, ok := decodePromotionCommand(w, r)
	if !ok {
		return
	}

	promo, err := h.promotions.UpdatePromotion(ctx, actor, promotionID, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, promotionResponse{Promotion: buildPromotionPayload(promo)})
}

func (h *PromotionHandlers) deletePromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.promotions == nil {
		serviceUnavailable(ctx, w, "promotion")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	promotionID, ok := pathParam(w, r, "promotionID", "promotion id")
	if !ok {
		return
	}

	if err := h.promotions.DeletePromotion(ctx, actor, promotionID); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodePromotionCommand(w http.ResponseWriter, r *http.Request) (services.UpsertPromotionCommand, bool) {
	ctx := r.Context()
	var req upsertPromotionRequest
	if !decodeRequestBody(w, r, maxPromotionRequestBody, &req) {
		return services.UpsertPromotionCommand{}, false
	}

	var validFrom, validUntil time.Time
	if raw := strings.TrimSpace(req.ValidFrom); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "valid_from must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return services.UpsertPromotionCommand{}, false
		}
		validFrom = ts
	}
	if raw := strings.TrimSpace(req.ValidUntil); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "valid_until must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return services.UpsertPromotionCommand{}, false
		}
		validUntil = ts
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return services.UpsertPromotionCommand{
		Code:           req.Code,
		DiscountType:   domain.DiscountType(strings.ToLower(strings.TrimSpace(req.DiscountType))),
		DiscountValue:  req.DiscountValue,
		MinOrderAmount: req.MinOrderAmount,
		ValidFrom:      validFrom,
		ValidUntil:     validUntil,
		IsActive:       active,
	}, true
}
