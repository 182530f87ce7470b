package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/jara-commerce/api/internal/domain"
	"github.com/jara-commerce/api/internal/repositories"
)

const (
	orderIDPrefix = "ord_"

	holdExpiredReason          = "payment_hold_expired"
	initiationFailedReason     = "payment_initiation_failed"
	paymentRecordFailedReason  = "payment_record_failed"
	defaultPaymentHoldWindow   = 30 * time.Minute
	defaultReleaseHoldsLimit   = 100
	maxOrderLines              = 50
	maxOrderLineQuantity       = 1000
	orderNumberCounterTemplate = "orders:%04d"
)

var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:   {domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
	domain.OrderStatusConfirmed: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:   {domain.OrderStatusDelivered},
}

var cancellableStatuses = []domain.OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusConfirmed,
}

// errHoldResolved marks a swept order that was paid or cancelled after it was listed.
var errHoldResolved = errors.New("order: hold already resolved")

// CanTransition reports whether the order state machine allows from → to.
func CanTransition(from, to domain.OrderStatus) bool {
	return slices.Contains(orderStateTransitions[from], to)
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders                  repositories.OrderRepository
	Products                repositories.ProductRepository
	Payments                repositories.PaymentRepository
	Counters                repositories.CounterRepository
	Inventory               InventoryLedger
	Pricing                 PricingEngine
	Dispatcher              PaymentDispatcher
	Notifier                OrderNotifier
	Events                  OrderEventPublisher
	UnitOfWork              repositories.UnitOfWork
	Currency                string
	PaymentHoldWindow       time.Duration
	DefaultReturnPolicyDays int
	Clock                   func() time.Time
	IDGenerator             func() string
	Logger                  func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	products   repositories.ProductRepository
	payments   repositories.PaymentRepository
	counters   repositories.CounterRepository
	inventory  InventoryLedger
	pricing    PricingEngine
	initiator  *paymentInitiator
	notifier   OrderNotifier
	events     OrderEventPublisher
	unitOfWork repositories.UnitOfWork
	currency   string
	holdWindow time.Duration
	returnDays int
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

var _ OrderService = (*orderService)(nil)

// NewOrderService wires dependencies into the order state machine.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	switch {
	case deps.Orders == nil:
		return nil, errors.New("order service: order repository is required")
	case deps.Products == nil:
		return nil, errors.New("order service: product repository is required")
	case deps.Payments == nil:
		return nil, errors.New("order service: payment repository is required")
	case deps.Counters == nil:
		return nil, errors.New("order service: counter repository is required")
	case deps.Inventory == nil:
		return nil, errors.New("order service: inventory ledger is required")
	case deps.Pricing == nil:
		return nil, errors.New("order service: pricing engine is required")
	case deps.Dispatcher == nil:
		return nil, errors.New("order service: payment dispatcher is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
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
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = DefaultPricingPolicy.Currency
	}
	hold := deps.PaymentHoldWindow
	if hold <= 0 {
		hold = defaultPaymentHoldWindow
	}
	returnDays := deps.DefaultReturnPolicyDays
	if returnDays <= 0 {
		returnDays = domain.DefaultReturnPolicyDays
	}
	utc := func() time.Time { return clock().UTC() }

	return &orderService{
		orders:     deps.Orders,
		products:   deps.Products,
		payments:   deps.Payments,
		counters:   deps.Counters,
		inventory:  deps.Inventory,
		pricing:    deps.Pricing,
		initiator:  &paymentInitiator{dispatcher: deps.Dispatcher, payments: deps.Payments, clock: utc, newID: idGen, logger: logger},
		notifier:   deps.Notifier,
		events:     deps.Events,
		unitOfWork: unit,
		currency:   currency,
		holdWindow: hold,
		returnDays: returnDays,
		clock:      utc,
		newID:      idGen,
		logger:     logger,
	}, nil
}

// Create validates and prices the order, reserves stock for every line, persists the order and
// starts payment. Any failure after reservation releases the stock again.
func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (OrderCreation, error) {
	userID := strings.TrimSpace(cmd.Actor.ID)
	if userID == "" {
		return OrderCreation{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if err := validateOrderLines(cmd.Items); err != nil {
		return OrderCreation{}, err
	}
	if !cmd.PaymentMethod.Valid() || !s.initiator.dispatcher.Supports(cmd.PaymentMethod) {
		return OrderCreation{}, fmt.Errorf("%w: %q", ErrUnsupportedPaymentMethod, cmd.PaymentMethod)
	}
	shipping := sanitizeAddress(cmd.ShippingAddress)
	billing := shipping
	if cmd.BillingAddress != nil {
		billing = sanitizeAddress(*cmd.BillingAddress)
	}
	missing := validateAddress(shipping, "shipping_address")
	if cmd.BillingAddress != nil {
		missing = append(missing, validateAddress(billing, "billing_address")...)
	}
	if len(missing) > 0 {
		return OrderCreation{}, fmt.Errorf("%w: missing or invalid %s", ErrOrderInvalidInput, strings.Join(missing, ", "))
	}

	now := s.clock()
	lines := stockLines(cmd.Items)
	pricingLines := make([]PricingLine, 0, len(lines))
	returnDays := 0
	for i, line := range lines {
		product, err := s.products.FindByID(ctx, line.ProductID)
		if err != nil {
			return OrderCreation{}, mapRepositoryError(err, ErrProductNotFound, nil)
		}
		product.ID = line.ProductID
		pricingLines = append(pricingLines, PricingLine{Product: product, Quantity: int(line.Quantity)})
		days := product.ReturnWindowDays(s.returnDays)
		if i == 0 || days < returnDays {
			returnDays = days
		}
	}

	quote, err := s.pricing.Quote(ctx, PricingInput{
		Lines:     pricingLines,
		Address:   shipping,
		PromoCode: cmd.PromoCode,
		Now:       now,
	})
	if err != nil {
		return OrderCreation{}, err
	}

	if err := s.inventory.ReserveAll(ctx, lines); err != nil {
		return OrderCreation{}, err
	}
	// From here on, every failure path must release the reservation.
	compensate := func(reason string) {
		if err := s.inventory.ReleaseAll(context.WithoutCancel(ctx), lines); err != nil {
			s.logger(ctx, "inventory.compensation.failed", map[string]any{
				"alarm":  true,
				"reason": reason,
				"error":  err.Error(),
			})
		}
	}

	number, err := s.nextOrderNumber(ctx, now)
	if err != nil {
		compensate("order_number_failed")
		return OrderCreation{}, err
	}

	order := domain.Order{
		ID:               orderIDPrefix + s.newID(),
		OrderNumber:      number,
		UserID:           userID,
		UserEmail:        strings.TrimSpace(cmd.Actor.Email),
		Status:           domain.OrderStatusPending,
		Items:            quote.Lines,
		ShippingAddress:  shipping,
		BillingAddress:   billing,
		Currency:         s.currency,
		PaymentMethod:    cmd.PaymentMethod,
		PaymentStatus:    domain.PaymentStatusPending,
		EstimatedDays:    quote.Shipping.EstimatedDays,
		ShippingCost:     quote.Shipping.Cost,
		DiscountApplied:  quote.Discount,
		TaxAmount:        quote.Tax,
		ReturnPolicyDays: returnDays,
		Notes:            sanitizeText(cmd.Notes),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if quote.Promotion != nil {
		order.PromoCode = quote.Promotion.Code
	}
	// Every order starts under a hold so the sweeper can reclaim stock if the payment record is
	// never written. Cash on delivery drops it once initiation is persisted.
	expires := now.Add(s.holdWindow)
	order.HoldExpiresAt = &expires
	order.RecomputeTotal()
	if order.OrderTotal != quote.Total {
		compensate("total_mismatch")
		return OrderCreation{}, fmt.Errorf("order: computed total %d does not match quote %d", order.OrderTotal, quote.Total)
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		compensate("order_insert_failed")
		return OrderCreation{}, mapRepositoryError(err, nil, ErrOrderConflict)
	}

	handle, record, err := s.initiator.start(ctx, order, cmd.IdempotencyKey)
	if err != nil {
		s.abandon(ctx, order.ID, cmd.Actor.ID, initiationFailedReason)
		return OrderCreation{}, err
	}

	order.PaymentStatus = domain.PaymentStatusInitiated
	order.UpdatedAt = s.clock()
	if order.PaymentMethod == domain.PaymentMethodCOD {
		order.HoldExpiresAt = nil
	}
	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.payments.Insert(txCtx, record); err != nil {
			return err
		}
		return s.orders.Update(txCtx, order)
	})
	if err != nil {
		s.logger(ctx, "order.payment_record.failed", map[string]any{
			"orderId":   order.ID,
			"paymentId": record.ID,
			"error":     err.Error(),
		})
		s.abandon(ctx, order.ID, cmd.Actor.ID, paymentRecordFailedReason)
		return OrderCreation{}, mapRepositoryError(err, ErrOrderNotFound, ErrOrderConflict)
	}

	s.logger(ctx, "order.created", map[string]any{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
		"total":       order.OrderTotal,
		"method":      string(order.PaymentMethod),
	})
	publishOrderEvent(ctx, s.events, s.logger, OrderEvent{
		Type:        OrderEventCreated,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      order.Status,
		PaymentID:   record.ID,
		ActorID:     userID,
		OccurredAt:  now,
	})
	s.notifyConfirmation(ctx, cmd.Actor, order)

	return OrderCreation{Order: order, Payment: &handle}, nil
}

func (s *orderService) Get(ctx context.Context, actor Actor, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, mapRepositoryError(err, ErrOrderNotFound, nil)
	}
	if !order.OwnedBy(actor.ID) && !actor.Can(domain.CapOrdersReadAny) {
		return domain.Order{}, ErrNotAuthorized
	}
	return order, nil
}

func (s *orderService) ListForUser(ctx context.Context, actor Actor, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
	userID := strings.TrimSpace(actor.ID)
	if userID == "" {
		return domain.CursorPage[domain.Order]{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	page, err := s.orders.ListByUser(ctx, userID, pager)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, mapRepositoryError(err, ErrOrderNotFound, nil)
	}
	return page, nil
}

// UpdateStatus applies an admin transition. Cancelling through this path also releases stock.
func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (domain.Order, error) {
	if !cmd.Actor.Can(domain.CapOrdersUpdateStatus) {
		return domain.Order{}, ErrNotAuthorized
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target := domain.OrderStatus(strings.ToLower(strings.TrimSpace(string(cmd.Status))))
	if target == "" {
		return domain.Order{}, fmt.Errorf("%w: status is required", ErrOrderInvalidInput)
	}

	provider := strings.TrimSpace(cmd.ShippingProvider)
	tracking := strings.TrimSpace(cmd.ShippingTrackingID)
	reason := sanitizeText(cmd.Reason)
	if target == domain.OrderStatusShipped && (provider == "" || tracking == "") {
		return domain.Order{}, fmt.Errorf("%w: shipping_provider and shipping_tracking_id are required to ship", ErrOrderInvalidInput)
	}

	order, previous, err := s.transition(ctx, orderID, func(order *domain.Order, now time.Time) error {
		if !CanTransition(order.Status, target) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, order.Status, target)
		}
		switch target {
		case domain.OrderStatusCancelled:
			markCancelled(order, firstNonEmpty(reason, "cancelled_by_admin"), now)
			return nil
		case domain.OrderStatusConfirmed:
			if order.PaymentMethod != domain.PaymentMethodCOD && order.PaymentStatus != domain.PaymentStatusPaid {
				return fmt.Errorf("%w: order %s payment is %s", ErrPaymentRequired, order.ID, order.PaymentStatus)
			}
			order.ConfirmedAt = &now
			order.HoldExpiresAt = nil
		case domain.OrderStatusShipped:
			order.ShippingProvider = provider
			order.ShippingTrackingID = tracking
			order.ShippedAt = &now
		case domain.OrderStatusDelivered:
			order.DeliveredAt = &now
			if order.PaymentMethod == domain.PaymentMethodCOD {
				order.PaymentStatus = domain.PaymentStatusPaid
			}
		}
		order.Status = target
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	s.afterTransition(ctx, order, previous, cmd.Actor.ID, firstNonEmpty(order.CancelReason, reason))
	return order, nil
}

// Cancel is the customer path: owner (or an order manager) and only from pending or confirmed.
func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, mapRepositoryError(err, ErrOrderNotFound, nil)
	}
	if !order.OwnedBy(cmd.Actor.ID) && !cmd.Actor.Can(domain.CapOrdersUpdateStatus) {
		return domain.Order{}, ErrNotAuthorized
	}
	if !slices.Contains(cancellableStatuses, order.Status) {
		return domain.Order{}, fmt.Errorf("%w: order %s is %s", ErrCannotCancel, order.ID, order.Status)
	}
	reason := firstNonEmpty(sanitizeText(cmd.Reason), "cancelled_by_customer")
	cancelled, previous, err := s.transition(ctx, order.ID, func(current *domain.Order, now time.Time) error {
		if !slices.Contains(cancellableStatuses, current.Status) {
			return fmt.Errorf("%w: order %s is %s", ErrCannotCancel, current.ID, current.Status)
		}
		markCancelled(current, reason, now)
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	s.afterTransition(ctx, cancelled, previous, cmd.Actor.ID, reason)
	return cancelled, nil
}

// ReleaseExpiredHolds cancels pending card and wallet orders whose payment never settled.
func (s *orderService) ReleaseExpiredHolds(ctx context.Context, limit int) (ReleaseHoldsResult, error) {
	if limit <= 0 {
		limit = defaultReleaseHoldsLimit
	}
	now := s.clock()
	expired, err := s.orders.ListExpiredHolds(ctx, now, limit)
	if err != nil {
		return ReleaseHoldsResult{}, mapRepositoryError(err, nil, nil)
	}

	result := ReleaseHoldsResult{Released: []string{}, Failed: []string{}}
	for _, listed := range expired {
		cancelled, previous, err := s.transition(ctx, listed.ID, func(order *domain.Order, at time.Time) error {
			if order.Status != domain.OrderStatusPending || order.PaymentStatus == domain.PaymentStatusPaid {
				return errHoldResolved
			}
			if order.HoldExpiresAt == nil || order.HoldExpiresAt.After(now) {
				return errHoldResolved
			}
			markCancelled(order, holdExpiredReason, at)
			return nil
		})
		if errors.Is(err, errHoldResolved) {
			continue
		}
		if err != nil {
			s.logger(ctx, "order.hold.release_failed", map[string]any{"orderId": listed.ID, "error": err.Error()})
			result.Failed = append(result.Failed, listed.ID)
			continue
		}
		s.afterTransition(ctx, cancelled, previous, SystemActor.ID, holdExpiredReason)
		result.Released = append(result.Released, listed.ID)
	}
	s.logger(ctx, "order.holds.released", map[string]any{
		"released": len(result.Released),
		"failed":   len(result.Failed),
	})
	return result, nil
}

// transition re-reads the order inside a unit of work, lets mutate check and change it, and
// writes it back. An order that mutate cancels has its items released in the same unit of work,
// so concurrent cancellations cannot return the same stock twice.
func (s *orderService) transition(ctx context.Context, orderID string, mutate func(order *domain.Order, now time.Time) error) (domain.Order, domain.OrderStatus, error) {
	var (
		updated  domain.Order
		previous domain.OrderStatus
	)
	now := s.clock()
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return mapRepositoryError(err, ErrOrderNotFound, nil)
		}
		previous = order.Status
		if err := mutate(&order, now); err != nil {
			return err
		}
		order.UpdatedAt = now
		if err := s.orders.Update(txCtx, order); err != nil {
			return mapRepositoryError(err, ErrOrderNotFound, ErrOrderConflict)
		}
		if order.Status == domain.OrderStatusCancelled && previous != domain.OrderStatusCancelled {
			if err := s.inventory.ReleaseAll(txCtx, orderStockLines(order)); err != nil {
				return err
			}
		}
		updated = order
		return nil
	})
	if err != nil {
		return domain.Order{}, "", err
	}
	return updated, previous, nil
}

// abandon cancels an order whose checkout failed after it was persisted. It runs detached from
// the request so a disconnected client cannot skip the release; if it fails, the hold set at
// creation leaves the order to the sweeper.
func (s *orderService) abandon(ctx context.Context, orderID, actorID, reason string) {
	ctx = context.WithoutCancel(ctx)
	order, previous, err := s.transition(ctx, orderID, func(order *domain.Order, now time.Time) error {
		if order.Status != domain.OrderStatusPending {
			return fmt.Errorf("%w: order %s is %s", ErrCannotCancel, order.ID, order.Status)
		}
		markCancelled(order, reason, now)
		return nil
	})
	if err != nil {
		s.logger(ctx, "order.cancel.failed", map[string]any{
			"orderId": orderID,
			"reason":  reason,
			"error":   err.Error(),
		})
		return
	}
	s.afterTransition(ctx, order, previous, actorID, reason)
}

func (s *orderService) afterTransition(ctx context.Context, order domain.Order, previous domain.OrderStatus, actorID, reason string) {
	if order.Status == domain.OrderStatusCancelled {
		s.logger(ctx, "order.cancelled", map[string]any{"orderId": order.ID, "reason": order.CancelReason})
	}
	publishOrderEvent(ctx, s.events, s.logger, OrderEvent{
		Type:           OrderEventStatusChanged,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		UserID:         order.UserID,
		Status:         order.Status,
		PreviousStatus: previous,
		ActorID:        actorID,
		Reason:         reason,
		OccurredAt:     order.UpdatedAt,
	})
}

func markCancelled(order *domain.Order, reason string, now time.Time) {
	order.Status = domain.OrderStatusCancelled
	order.CancelReason = reason
	order.CancelledAt = &now
	order.HoldExpiresAt = nil
}

func orderStockLines(order domain.Order) []StockLine {
	lines := make([]StockLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, StockLine{ProductID: item.ProductID, Quantity: int64(item.Quantity)})
	}
	return lines
}

// notifyConfirmation never fails the order.
func (s *orderService) notifyConfirmation(ctx context.Context, actor Actor, order domain.Order) {
	if s.notifier == nil || order.UserEmail == "" {
		return
	}
	to := Recipient{Email: order.UserEmail, Name: actor.Name, Locale: actor.Locale}
	if err := s.notifier.SendOrderConfirmation(ctx, to, order); err != nil {
		s.logger(ctx, "notification.send.failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) nextOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, fmt.Sprintf(orderNumberCounterTemplate, now.Year()), 1)
	if err != nil {
		return "", fmt.Errorf("order: allocate order number: %w", err)
	}
	return fmt.Sprintf("JR-%04d-%06d", now.Year(), seq), nil
}

func validateOrderLines(items []OrderLineInput) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}
	if len(items) > maxOrderLines {
		return fmt.Errorf("%w: at most %d items are allowed", ErrOrderInvalidInput, maxOrderLines)
	}
	for i, item := range items {
		if strings.TrimSpace(item.ProductID) == "" {
			return fmt.Errorf("%w: items[%d].product_id is required", ErrOrderInvalidInput, i)
		}
		if item.Quantity < 1 || item.Quantity > maxOrderLineQuantity {
			return fmt.Errorf("%w: items[%d].quantity must be between 1 and %d", ErrOrderInvalidInput, i, maxOrderLineQuantity)
		}
	}
	return nil
}
