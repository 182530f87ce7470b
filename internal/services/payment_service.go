package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/jara-commerce/api/internal/domain"
	"github.com/jara-commerce/api/internal/payments"
	"github.com/jara-commerce/api/internal/repositories"
)

const paymentIDPrefix = "pay_"

// PaymentServiceDeps bundles collaborators required to construct the payment service.
type PaymentServiceDeps struct {
	Orders      repositories.OrderRepository
	Payments    repositories.PaymentRepository
	Dispatcher  PaymentDispatcher
	UnitOfWork  repositories.UnitOfWork
	Events      OrderEventPublisher
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	orders     repositories.OrderRepository
	payments   repositories.PaymentRepository
	initiator  *paymentInitiator
	dispatcher PaymentDispatcher
	unitOfWork repositories.UnitOfWork
	events     OrderEventPublisher
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

var _ PaymentService = (*paymentService)(nil)

// NewPaymentService constructs the payment service.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("payment service: payment repository is required")
	}
	if deps.Dispatcher == nil {
		return nil, errors.New("payment service: dispatcher is required")
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
	utc := func() time.Time { return clock().UTC() }
	return &paymentService{
		orders:     deps.Orders,
		payments:   deps.Payments,
		initiator:  &paymentInitiator{dispatcher: deps.Dispatcher, payments: deps.Payments, clock: utc, newID: idGen, logger: logger},
		dispatcher: deps.Dispatcher,
		unitOfWork: unit,
		events:     deps.Events,
		clock:      utc,
		newID:      idGen,
		logger:     logger,
	}, nil
}

func (s *paymentService) Methods() []domain.PaymentMethod {
	return s.dispatcher.Methods()
}

// Initiate starts a new attempt for an unpaid pending order, e.g. after an abandoned checkout.
func (s *paymentService) Initiate(ctx context.Context, cmd InitiatePaymentCommand) (PaymentHandle, error) {
	order, err := s.loadOwnedOrder(ctx, cmd.Actor, cmd.OrderID)
	if err != nil {
		return PaymentHandle{}, err
	}
	if order.PaymentStatus == domain.PaymentStatusPaid {
		return PaymentHandle{}, fmt.Errorf("%w: order %s", ErrAlreadyPaid, order.ID)
	}
	if order.Status != domain.OrderStatusPending {
		return PaymentHandle{}, fmt.Errorf("%w: order %s is %s", ErrPaymentInvalidInput, order.ID, order.Status)
	}

	handle, record, err := s.initiator.start(ctx, order, cmd.IdempotencyKey)
	if err != nil {
		return PaymentHandle{}, err
	}
	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, order.ID)
		if err != nil {
			return err
		}
		if err := s.payments.Insert(txCtx, record); err != nil {
			return err
		}
		// Settled or cancelled in the meantime: keep the attempt, leave the order alone.
		if current.Status != domain.OrderStatusPending || current.PaymentStatus == domain.PaymentStatusPaid {
			return nil
		}
		current.PaymentStatus = domain.PaymentStatusInitiated
		current.UpdatedAt = s.clock()
		return s.orders.Update(txCtx, current)
	})
	if err != nil {
		return PaymentHandle{}, mapRepositoryError(err, ErrOrderNotFound, ErrOrderConflict)
	}
	return handle, nil
}

// Verify asks the gateway whether the order's payment settled. A settled payment marks the
// order paid and clears its hold; anything else records a failed attempt.
func (s *paymentService) Verify(ctx context.Context, cmd VerifyPaymentCommand) (domain.Order, error) {
	order, err := s.loadOwnedOrder(ctx, cmd.Actor, cmd.OrderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.PaymentStatus == domain.PaymentStatusPaid {
		return domain.Order{}, fmt.Errorf("%w: order %s", ErrAlreadyPaid, order.ID)
	}
	if order.Status == domain.OrderStatusCancelled {
		return domain.Order{}, fmt.Errorf("%w: order %s is cancelled", ErrPaymentInvalidInput, order.ID)
	}

	reference, err := s.resolveReference(ctx, order.ID, cmd.Reference)
	if err != nil {
		return domain.Order{}, err
	}

	result, err := s.dispatcher.Verify(ctx, order.PaymentMethod, payments.VerifyRequest{
		OrderID:   order.ID,
		Amount:    order.OrderTotal,
		Reference: reference,
		Callback:  cmd.Callback,
	})
	if err != nil {
		s.logger(ctx, "payment.verify.failed", map[string]any{
			"orderId": order.ID,
			"method":  string(order.PaymentMethod),
			"error":   err.Error(),
		})
		if errors.Is(err, payments.ErrUnsupportedMethod) {
			return domain.Order{}, fmt.Errorf("%w: %s", ErrUnsupportedPaymentMethod, order.PaymentMethod)
		}
		return domain.Order{}, fmt.Errorf("%w: %v", ErrPaymentVerificationFailed, err)
	}

	now := s.clock()
	record := domain.Payment{
		ID:                   paymentIDPrefix + s.newID(),
		OrderID:              order.ID,
		UserID:               order.UserID,
		Method:               order.PaymentMethod,
		Amount:               order.OrderTotal,
		Currency:             order.Currency,
		GatewayReference:     reference,
		GatewayTransactionID: result.TransactionID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if result.Settled {
		record.Status = domain.PaymentRecordSuccess
	} else {
		record.Status = domain.PaymentRecordFailed
		record.FailureReason = result.Reason
	}

	// The order is re-read here: the sweeper or a customer may have cancelled it, or another
	// verification may have settled it, while the gateway was being asked.
	var (
		previous      domain.PaymentStatus
		settledOrphan bool
	)
	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, order.ID)
		if err != nil {
			return err
		}
		if current.PaymentStatus == domain.PaymentStatusPaid {
			return fmt.Errorf("%w: order %s", ErrAlreadyPaid, current.ID)
		}
		if err := s.payments.Insert(txCtx, record); err != nil {
			return err
		}
		previous = current.PaymentStatus
		if current.Status == domain.OrderStatusCancelled {
			settledOrphan = result.Settled
			order = current
			return nil
		}
		if result.Settled {
			current.PaymentStatus = domain.PaymentStatusPaid
			current.PaymentID = record.ID
			current.HoldExpiresAt = nil
		} else {
			current.PaymentStatus = domain.PaymentStatusFailed
		}
		current.UpdatedAt = now
		if err := s.orders.Update(txCtx, current); err != nil {
			return err
		}
		order = current
		return nil
	})
	if err != nil {
		return domain.Order{}, mapRepositoryError(err, ErrOrderNotFound, ErrOrderConflict)
	}
	if order.Status == domain.OrderStatusCancelled {
		if settledOrphan {
			s.logger(ctx, "payment.settled_after_cancel", map[string]any{
				"alarm":     true,
				"orderId":   order.ID,
				"paymentId": record.ID,
				"reason":    order.CancelReason,
			})
		}
		return domain.Order{}, fmt.Errorf("%w: order %s was cancelled before payment was verified", ErrOrderConflict, order.ID)
	}

	if !result.Settled {
		s.logger(ctx, "payment.not_settled", map[string]any{
			"orderId":        order.ID,
			"paymentId":      record.ID,
			"previousStatus": string(previous),
			"reason":         result.Reason,
		})
		return order, fmt.Errorf("%w: %s", ErrPaymentVerificationFailed, firstNonEmpty(result.Reason, "payment not settled"))
	}

	s.logger(ctx, "payment.settled", map[string]any{"orderId": order.ID, "paymentId": record.ID})
	publishOrderEvent(ctx, s.events, s.logger, OrderEvent{
		Type:        OrderEventPaymentSettled,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      order.Status,
		PaymentID:   record.ID,
		ActorID:     cmd.Actor.ID,
		OccurredAt:  now,
	})
	return order, nil
}

func (s *paymentService) Get(ctx context.Context, actor Actor, paymentID string) (domain.Payment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return domain.Payment{}, fmt.Errorf("%w: payment id is required", ErrPaymentInvalidInput)
	}
	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, mapRepositoryError(err, ErrPaymentNotFound, nil)
	}
	if payment.UserID != actor.ID && !actor.Can(domain.CapPaymentsReadAny) {
		return domain.Payment{}, ErrNotAuthorized
	}
	return payment, nil
}

// resolveReference returns the gateway reference to verify. A client-supplied reference must
// belong to one of the order's attempts; without one, the latest initiated attempt is used.
func (s *paymentService) resolveReference(ctx context.Context, orderID, supplied string) (string, error) {
	attempts, err := s.payments.ListByOrder(ctx, orderID)
	if err != nil {
		return "", mapRepositoryError(err, ErrPaymentNotFound, nil)
	}
	supplied = strings.TrimSpace(supplied)
	for i := len(attempts) - 1; i >= 0; i-- {
		attempt := attempts[i]
		if supplied != "" {
			if attempt.GatewayReference == supplied {
				return supplied, nil
			}
			continue
		}
		if attempt.Status == domain.PaymentRecordInitiated {
			return attempt.GatewayReference, nil
		}
	}
	if supplied != "" {
		return "", fmt.Errorf("%w: reference %q does not belong to order %s", ErrPaymentInvalidInput, supplied, orderID)
	}
	return "", nil
}

func (s *paymentService) loadOwnedOrder(ctx context.Context, actor Actor, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, mapRepositoryError(err, ErrOrderNotFound, nil)
	}
	if !order.OwnedBy(actor.ID) {
		return domain.Order{}, ErrNotAuthorized
	}
	return order, nil
}

// paymentInitiator is shared by checkout and explicit re-initiation.
type paymentInitiator struct {
	dispatcher PaymentDispatcher
	payments   repositories.PaymentRepository
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// start calls the gateway and returns the handle plus the initiated record to persist. Failed
// attempts are recorded here, since the caller has nothing else to write.
func (p *paymentInitiator) start(ctx context.Context, order domain.Order, idempotencyKey string) (PaymentHandle, domain.Payment, error) {
	if !p.dispatcher.Supports(order.PaymentMethod) {
		return PaymentHandle{}, domain.Payment{}, fmt.Errorf("%w: %s", ErrUnsupportedPaymentMethod, order.PaymentMethod)
	}
	now := p.clock()
	record := domain.Payment{
		ID:        paymentIDPrefix + p.newID(),
		OrderID:   order.ID,
		UserID:    order.UserID,
		Method:    order.PaymentMethod,
		Amount:    order.OrderTotal,
		Currency:  order.Currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	key := strings.TrimSpace(idempotencyKey)
	if key == "" {
		key = record.ID
	}

	handle, err := p.dispatcher.Initiate(ctx, order.PaymentMethod, payments.InitiateRequest{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		UserID:         order.UserID,
		Email:          order.UserEmail,
		Amount:         order.OrderTotal,
		Currency:       order.Currency,
		PaymentID:      record.ID,
		IdempotencyKey: key,
	})
	if err != nil {
		record.Status = domain.PaymentRecordFailed
		record.FailureReason = err.Error()
		if insertErr := p.payments.Insert(ctx, record); insertErr != nil {
			p.logger(ctx, "payment.record.failed", map[string]any{"orderId": order.ID, "error": insertErr.Error()})
		}
		return PaymentHandle{}, domain.Payment{}, fmt.Errorf("%w: %v", ErrPaymentInitiationFailed, err)
	}

	record.Status = domain.PaymentRecordInitiated
	record.GatewayReference = handle.Reference
	p.logger(ctx, "payment.initiated", map[string]any{
		"orderId":   order.ID,
		"paymentId": record.ID,
		"method":    string(order.PaymentMethod),
		"amount":    order.OrderTotal,
	})
	return PaymentHandle{
		PaymentID:    record.ID,
		OrderID:      order.ID,
		Method:       order.PaymentMethod,
		Amount:       order.OrderTotal,
		Currency:     order.Currency,
		Reference:    handle.Reference,
		ClientSecret: handle.ClientSecret,
		Gateway:      handle.Raw,
	}, record, nil
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func publishOrderEvent(ctx context.Context, publisher OrderEventPublisher, logger func(context.Context, string, map[string]any), event OrderEvent) {
	if publisher == nil {
		return
	}
	if err := publisher.PublishOrderEvent(ctx, event); err != nil {
		logger(ctx, "order.event.publish_failed", map[string]any{
			"type":    event.Type,
			"orderId": event.OrderID,
			"error":   err.Error(),
		})
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
