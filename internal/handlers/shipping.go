package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/jara-commerce/api/internal/domain"
	"github.com/jara-commerce/api/internal/platform/auth"
	"github.com/jara-commerce/api/internal/services"
)

const maxShippingRequestBody = 8 * 1024

// ShippingHandlers serves delivery estimates and zone administration.
type ShippingHandlers struct {
	authn     *auth.Authenticator
	estimator services.ShippingEstimator
	zones     services.ShippingZoneService
}

// NewShippingHandlers constructs shipping handlers. Either dependency may be nil, in which case
// its endpoints answer 503.
func NewShippingHandlers(authn *auth.Authenticator, estimator services.ShippingEstimator, zones services.ShippingZoneService) *ShippingHandlers {
	return &ShippingHandlers{
		authn:     authn,
		estimator: estimator,
		zones:     zones,
	}
}

// Routes registers the public /shipping endpoints.
func (h *ShippingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/estimate", h.estimate)
}

// AdminRoutes registers /shipping-zones under the admin group.
func (h *ShippingHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Route("/shipping-zones", func(rt chi.Router) {
		if h.authn != nil {
			rt.Use(h.authn.RequireFirebaseAuth())
		}
		rt.Use(auth.RequireCapability(domain.CapShippingManage))
		rt.Get("/", h.listZones)
		rt.Post("/", h.upsertZone)
		rt.Delete("/{zoneID}", h.deleteZone)
	})
}

type shippingEstimateRequest struct {
	Province    string `json:"province"`
	WeightGrams int64  `json:"weight_grams"`
}

type shippingEstimateResponse struct {
	Region        string `json:"region"`
	IsRemote      bool   `json:"is_remote"`
	BaseRate      int64  `json:"base_rate"`
	Surcharge     int64  `json:"surcharge"`
	Cost          int64  `json:"cost"`
	EstimatedDays int    `json:"estimated_days"`
}

type upsertShippingZoneRequest struct {
	ID                string   `json:"id"`
	RegionName        string   `json:"region_name"`
	ShippingRate      int64    `json:"shipping_rate"`
	EstimatedDays     int      `json:"estimated_days"`
	IsRemote          bool     `json:"is_remote"`
	SupportedCouriers []string `json:"supported_couriers"`
}

type shippingZoneResponse struct {
	Zone shippingZonePayload `json:"zone"`
}

func (h *ShippingHandlers) estimate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.estimator == nil {
		serviceUnavailable(ctx, w, "shipping")
		return
	}

	var req shippingEstimateRequest
	if !decodeRequestBody(w, r, maxShippingRequestBody, &req) {
		return
	}
	if strings.TrimSpace(req.Province) == "" || req.WeightGrams < 0 {
		writeServiceError(ctx, w, services.ErrShippingZoneInvalid)
		return
	}

	estimate, err := h.estimator.Estimate(ctx, req.Province, req.WeightGrams)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, shippingEstimateResponse{
		Region:        estimate.Zone.RegionName,
		IsRemote:      estimate.Zone.IsRemote,
		BaseRate:      estimate.BaseRate,
		Surcharge:     estimate.Surcharge,
		Cost:          estimate.Cost,
		EstimatedDays: estimate.EstimatedDays,
	})
}

func (h *ShippingHandlers) listZones(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.zones == nil {
		serviceUnavailable(ctx, w, "shipping")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	zones, err := h.zones.ListZones(ctx, actor)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	items := make([]shippingZonePayload, 0, len(zones))
	for _, zone := range zones {
		items = append(items, buildShippingZonePayload(zone))
	}
	writeJSONResponse(w, http.StatusOK, listResponse[shippingZonePayload]{Items: items})
}

func (h *ShippingHandlers) upsertZone(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.zones == nil {
		serviceUnavailable(ctx, w, "shipping")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req upsertShippingZoneRequest
	if !decodeRequestBody(w, r, maxShippingRequestBody, &req) {
		return
	}

	zone, err := h.zones.UpsertZone(ctx, actor, services.UpsertShippingZoneCommand{
		ID:                strings.TrimSpace(req.ID),
		RegionName:        req.RegionName,
		ShippingRate:      req.ShippingRate,
		EstimatedDays:     req.EstimatedDays,
		IsRemote:          req.IsRemote,
		SupportedCouriers: req.SupportedCouriers,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	status := http.StatusOK
	if strings.TrimSpace(req.ID) == "" {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, shippingZoneResponse{Zone: buildShippingZonePayload(zone)})
}

func (h *ShippingHandlers) deleteZone(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.zones == nil {
		serviceUnavailable(ctx, w, "shipping")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	zoneID, ok := pathParam(w, r, "zoneID", "zone id")
	if !ok {
		return
	}

	if err := h.zones.DeleteZone(ctx, actor, zoneID); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
