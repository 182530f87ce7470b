package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/jara-commerce/api/internal/domain"
	"github.com/jara-commerce/api/internal/platform/auth"
	"github.com/jara-commerce/api/internal/repositories"
	"github.com/jara-commerce/api/internal/services"
)

// AdminReturnHandlers lets staff review customer return requests.
type AdminReturnHandlers struct {
	authn   *auth.Authenticator
	returns services.ReturnService
}

// NewAdminReturnHandlers constructs the admin return handlers.
func NewAdminReturnHandlers(authn *auth.Authenticator, returns services.ReturnService) *AdminReturnHandlers {
	return &AdminReturnHandlers{authn: authn, returns: returns}
}

// AdminRoutes registers /returns under the admin group.
func (h *AdminReturnHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Route("/returns", func(rt chi.Router) {
		if h.authn != nil {
			rt.Use(h.authn.RequireFirebaseAuth())
		}
		rt.Use(auth.RequireCapability(domain.CapReturnsManage))
		rt.Get("/", h.listReturns)
		rt.Get("/{returnID}", h.getReturn)
		rt.Put("/{returnID}/status", h.updateReturnStatus)
	})
}

type updateReturnStatusRequest struct {
	Status string `json:"status"`
}

func (h *AdminReturnHandlers) listReturns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.returns == nil {
		serviceUnavailable(ctx, w, "return")
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

	query := r.URL.Query()
	filter := repositories.ReturnListFilter{
		OrderID:    strings.TrimSpace(query.Get("order_id")),
		Pagination: pager,
	}
	for _, status := range parseFilterValues(query["status"]) {
		filter.Status = append(filter.Status, domain.ReturnStatus(status))
	}

	page, err := h.returns.List(ctx, actor, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	items := make([]returnPayload, 0, len(page.Items))
	for _, ret := range page.Items {
		items = append(items, buildReturnPayload(ret))
	}
	writeJSONResponse(w, http.StatusOK, listResponse[returnPayload]{Items: items, NextPageToken: page.NextPageToken})
}

func (h *AdminReturnHandlers) getReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.returns == nil {
		serviceUnavailable(ctx, w, "return")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	returnID, ok := pathParam(w, r, "returnID", "return id")
	if !ok {
		return
	}

	ret, err := h.returns.Get(ctx, actor, returnID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, returnResponse{Return: buildReturnPayload(ret)})
}

func (h *AdminReturnHandlers) updateReturnStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.returns == nil {
		serviceUnavailable(ctx, w, "return")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	returnID, ok := pathParam(w, r, "returnID", "return id")
	if !ok {
		return
	}

	var req updateReturnStatusRequest
	if !decodeRequestBody(w, r, maxReturnRequestBody, &req) {
		return
	}

	ret, err := h.returns.UpdateStatus(ctx, services.UpdateReturnStatusCommand{
		Actor:    actor,
		ReturnID: returnID,
		Status:   domain.ReturnStatus(req.Status),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, returnResponse{Return: buildReturnPayload(ret)})
}

// parseFilterValues accepts repeated and comma separated query values.
func parseFilterValues(values []string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			value := strings.ToLower(strings.TrimSpace(part))
			if value == "" {
				continue
			}
			if _, ok := seen[value]; ok {
				continue
			}
			seen[value] = struct{}{}
			out = append(out, value)
		}
	}
	return out
}
