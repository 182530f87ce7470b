package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jara-commerce/api/internal/platform/auth"
	"github.com/jara-commerce/api/internal/platform/textutil"
	"github.com/jara-commerce/api/internal/services"
)

const (
	maxPaymentRequestBody  = 8 * 1024
	idempotencyKeyHeader   = "Idempotency-Key"
	maxVerifyCallbackField = 32
)

// PaymentHandlers exposes payment initiation and verification for existing orders.
type PaymentHandlers struct {
	authn       *auth.Authenticator
	payments    services.PaymentService
	idempotency func(http.Handler) http.Handler
}

// PaymentHandlerOption customises PaymentHandlers.
type PaymentHandlerOption func(*PaymentHandlers)

// WithPaymentIdempotency guards the mutating payment endpoints with the provided middleware.
func WithPaymentIdempotency(mw func(http.Handler) http.Handler) PaymentHandlerOption {
	return func(h *PaymentHandlers) {
		h.idempotency = mw
	}
}

// NewPaymentHandlers constructs payment handlers guarded by Firebase authentication.
func NewPaymentHandlers(authn *auth.Authenticator, payments services.PaymentService, opts ...PaymentHandlerOption) *PaymentHandlers {
	h := &PaymentHandlers{
		authn:    authn,
		payments: payments,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /payments endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/methods", h.listMethods)

	r.Group(func(group chi.Router) {
		if h.authn != nil {
			group.Use(h.authn.RequireFirebaseAuth())
		}
		group.Get("/{paymentID}", h.getPayment)

		mutating := group
		if h.idempotency != nil {
			mutating = group.With(h.idempotency)
		}
		mutating.Post("/initiate", h.initiatePayment)
		mutating.Post("/verify", h.verifyPayment)
	})
}

type paymentMethodsResponse struct {
	Methods []string `json:"methods"`
}

type initiatePaymentRequest struct {
	OrderID string `json:"order_id"`
}

type verifyPaymentRequest struct {
	OrderID   string            `json:"order_id"`
	Reference string            `json:"reference"`
	Callback  map[string]string `json:"callback"`
}

type paymentHandleResponse struct {
	Payment paymentHandlePayload `json:"payment"`
}

type paymentResponse struct {
	Payment paymentPayload `json:"payment"`
}

func (h *PaymentHandlers) listMethods(w http.ResponseWriter, r *http.Request) {
	if h.payments == nil {
		serviceUnavailable(r.Context(), w, "payment")
		return
	}
	methods := h.payments.Methods()
	resp := paymentMethodsResponse{Methods: make([]string, 0, len(methods))}
	for _, method := range methods {
		resp.Methods = append(resp.Methods, string(method))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *PaymentHandlers) initiatePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		serviceUnavailable(ctx, w, "payment")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req initiatePaymentRequest
	if !decodeRequestBody(w, r, maxPaymentRequestBody, &req) {
		return
	}

	handle, err := h.payments.Initiate(ctx, services.InitiatePaymentCommand{
		Actor:          actor,
		OrderID:        strings.TrimSpace(req.OrderID),
		IdempotencyKey: strings.TrimSpace(r.Header.Get(idempotencyKeyHeader)),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, paymentHandleResponse{Payment: buildPaymentHandlePayload(handle)})
}

func (h *PaymentHandlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		serviceUnavailable(ctx, w, "payment")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req verifyPaymentRequest
	if !decodeRequestBody(w, r, maxPaymentRequestBody, &req) {
		return
	}
	callback, err := textutil.NormalizeStringMap(req.Callback, maxVerifyCallbackField)
	if err != nil {
		writeServiceError(ctx, w, services.ErrPaymentInvalidInput)
		return
	}

	order, err := h.payments.Verify(ctx, services.VerifyPaymentCommand{
		Actor:     actor,
		OrderID:   strings.TrimSpace(req.OrderID),
		Reference: strings.TrimSpace(req.Reference),
		Callback:  callback,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *PaymentHandlers) getPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		serviceUnavailable(ctx, w, "payment")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	paymentID, ok := pathParam(w, r, "paymentID", "payment id")
	if !ok {
		return
	}

	payment, err := h.payments.Get(ctx, actor, paymentID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, paymentResponse{Payment: buildPaymentPayload(payment)})
}
