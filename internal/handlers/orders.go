package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/jara-commerce/api/internal/domain"
	"github.com/jara-commerce/api/internal/platform/auth"
	"github.com/jara-commerce/api/internal/services"
)

const (
	maxOrderRequestBody    = 32 * 1024
	maxOrderCancelBodySize = 4 * 1024
	maxReturnRequestBody   = 8 * 1024
)

// OrderHandlers exposes the customer order flow and the staff status endpoint.
type OrderHandlers struct {
	authn       *auth.Authenticator
	orders      services.OrderService
	returns     services.ReturnService
	idempotency func(http.Handler) http.Handler
}

// OrderHandlerOption customises OrderHandlers.
type OrderHandlerOption func(*OrderHandlers)

// WithOrderReturns enables POST /orders/{orderID}/return.
func WithOrderReturns(returns services.ReturnService) OrderHandlerOption {
	return func(h *OrderHandlers) {
		h.returns = returns
	}
}

// WithOrderIdempotency guards order placement with the provided middleware.
func WithOrderIdempotency(mw func(http.Handler) http.Handler) OrderHandlerOption {
	return func(h *OrderHandlers) {
		h.idempotency = mw
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderHandlerOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	if h.idempotency != nil {
		r.With(h.idempotency).Post("/", h.createOrder)
	} else {
		r.Post("/", h.createOrder)
	}
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.With(auth.RequireCapability(domain.CapOrdersUpdateStatus)).Put("/{orderID}/status", h.updateStatus)
	r.Put("/{orderID}/cancel", h.cancelOrder)
	r.Post("/{orderID}/return", h.requestReturn)
}

type createOrderItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type createOrderRequest struct {
	Items           []createOrderItemRequest `json:"items"`
	ShippingAddress addressPayload           `json:"shipping_address"`
	BillingAddress  *addressPayload          `json:"billing_address"`
	PaymentMethod   string                   `json:"payment_method"`
	PromoCode       string                   `json:"promo_code"`
	Notes           string                   `json:"notes"`
}

type updateOrderStatusRequest struct {
	Status             string `json:"status"`
	ShippingProvider   string `json:"shipping_provider"`
	ShippingTrackingID string `json:"shipping_tracking_id"`
	Reason             string `json:"reason"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type requestReturnRequest struct {
	Reason string   `json:"reason"`
	Items  []string `json:"items"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type createOrderResponse struct {
	Order   orderPayload          `json:"order"`
	Payment *paymentHandlePayload `json:"payment,omitempty"`
}

type returnResponse struct {
	Return returnPayload `json:"return"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req createOrderRequest
	if !decodeRequestBody(w, r, maxOrderRequestBody, &req) {
		return
	}

	items := make([]services.OrderLineInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.OrderLineInput{
			ProductID: strings.TrimSpace(item.ProductID),
			Quantity:  item.Quantity,
		})
	}
	cmd := services.CreateOrderCommand{
		Actor:           actor,
		Items:           items,
		ShippingAddress: req.ShippingAddress.toDomain(),
		PaymentMethod:   domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		PromoCode:       req.PromoCode,
		Notes:           req.Notes,
		IdempotencyKey:  strings.TrimSpace(r.Header.Get(idempotencyKeyHeader)),
	}
	if req.BillingAddress != nil {
		billing := req.BillingAddress.toDomain()
		cmd.BillingAddress = &billing
	}

	created, err := h.orders.Create(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	resp := createOrderResponse{Order: buildOrderPayload(created.Order)}
	if created.Payment != nil {
		handle := buildPaymentHandlePayload(*created.Payment)
		resp.Payment = &handle
	}
	writeJSONResponse(w, http.StatusCreated, resp)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
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

	page, err := h.orders.ListForUser(ctx, actor, pager)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummary(order))
	}
	writeJSONResponse(w, http.StatusOK, listResponse[orderSummaryPayload]{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, "orderID", "order id")
	if !ok {
		return
	}

	order, err := h.orders.Get(ctx, actor, orderID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, "orderID", "order id")
	if !ok {
		return
	}

	var req updateOrderStatusRequest
	if !decodeRequestBody(w, r, maxOrderCancelBodySize, &req) {
		return
	}

	order, err := h.orders.UpdateStatus(ctx, services.UpdateOrderStatusCommand{
		Actor:              actor,
		OrderID:            orderID,
		Status:             domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status))),
		ShippingProvider:   strings.TrimSpace(req.ShippingProvider),
		ShippingTrackingID: strings.TrimSpace(req.ShippingTrackingID),
		Reason:             req.Reason,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, "orderID", "order id")
	if !ok {
		return
	}

	var req cancelOrderRequest
	if !decodeOptionalRequestBody(w, r, maxOrderCancelBodySize, &req) {
		return
	}

	cancelled, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		Actor:   actor,
		OrderID: orderID,
		Reason:  req.Reason,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(cancelled)})
}

func (h *OrderHandlers) requestReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.returns == nil {
		serviceUnavailable(ctx, w, "return")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, "orderID", "order id")
	if !ok {
		return
	}

	var req requestReturnRequest
	if !decodeRequestBody(w, r, maxReturnRequestBody, &req) {
		return
	}

	ret, err := h.returns.Request(ctx, services.RequestReturnCommand{
		Actor:          actor,
		OrderID:        orderID,
		Reason:         req.Reason,
		ItemProductIDs: req.Items,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, returnResponse{Return: buildReturnPayload(ret)})
}
