package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jara-commerce/api/internal/platform/observability"
	"github.com/jara-commerce/api/internal/services"
	"go.uber.org/zap"
)

const (
	defaultHoldSweepLimit = 100
	maxHoldSweepLimit     = 500
)

// InternalJobHandlers exposes scheduler-triggered maintenance endpoints. Authentication is
// applied by the /internal group middleware.
type InternalJobHandlers struct {
	orders services.OrderService
}

// NewInternalJobHandlers constructs internal job handlers.
func NewInternalJobHandlers(orders services.OrderService) *InternalJobHandlers {
	return &InternalJobHandlers{orders: orders}
}

// Routes registers the /internal endpoints.
func (h *InternalJobHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/orders:release-expired-holds", h.releaseExpiredHolds)
}

type releaseHoldsRequest struct {
	Limit int `json:"limit"`
}

type releaseHoldsResponse struct {
	Released []string `json:"released"`
	Failed   []string `json:"failed"`
}

func (h *InternalJobHandlers) releaseExpiredHolds(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}

	var req releaseHoldsRequest
	if !decodeOptionalRequestBody(w, r, maxOrderCancelBodySize, &req) {
		return
	}
	limit := req.Limit
	switch {
	case limit <= 0:
		limit = defaultHoldSweepLimit
	case limit > maxHoldSweepLimit:
		limit = maxHoldSweepLimit
	}

	result, err := h.orders.ReleaseExpiredHolds(ctx, limit)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	resp := releaseHoldsResponse{Released: result.Released, Failed: result.Failed}
	if resp.Released == nil {
		resp.Released = []string{}
	}
	if resp.Failed == nil {
		resp.Failed = []string{}
	}
	observability.FromContext(ctx).Info("expired payment holds released",
		zap.Int("released", len(resp.Released)),
		zap.Int("failed", len(resp.Failed)),
	)
	writeJSONResponse(w, http.StatusOK, resp)
}
