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
	returnIDPrefix     = "ret_"
	maxReturnReasonLen = 1000
)

var returnStatusTransitions = map[domain.ReturnStatus][]domain.ReturnStatus{
	domain.ReturnStatusRequested: {domain.ReturnStatusApproved, domain.ReturnStatusRejected},
	domain.ReturnStatusApproved:  {domain.ReturnStatusRefunded},
}

// ReturnServiceDeps bundles collaborators required to construct the return workflow.
type ReturnServiceDeps struct {
	Orders      repositories.OrderRepository
	Returns     repositories.ReturnRepository
	UnitOfWork  repositories.UnitOfWork
	Events      OrderEventPublisher
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type returnService struct {
	orders     repositories.OrderRepository
	returns    repositories.ReturnRepository
	unitOfWork repositories.UnitOfWork
	events     OrderEventPublisher
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

var _ ReturnService = (*returnService)(nil)

// NewReturnService constructs the return workflow.
func NewReturnService(deps ReturnServiceDeps) (ReturnService, error) {
	if deps.Orders == nil {
		return nil, errors.New("return service: order repository is required")
	}
	if deps.Returns == nil {
		return nil, errors.New("return service: return repository is required")
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
	return &returnService{
		orders:     deps.Orders,
		returns:    deps.Returns,
		unitOfWork: unit,
		events:     deps.Events,
		clock:      func() time.Time { return clock().UTC() },
		newID:      idGen,
		logger:     logger,
	}, nil
}

// Request accepts a return for a delivered order inside its window. The window runs from the
// order's creation for the number of days snapshotted on the order.
func (s *returnService) Request(ctx context.Context, cmd RequestReturnCommand) (domain.Return, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Return{}, fmt.Errorf("%w: order id is required", ErrReturnInvalidInput)
	}
	reason := sanitizeText(cmd.Reason)
	if reason == "" {
		return domain.Return{}, fmt.Errorf("%w: reason is required", ErrReturnInvalidInput)
	}
	if len(reason) > maxReturnReasonLen {
		return domain.Return{}, fmt.Errorf("%w: reason must be at most %d characters", ErrReturnInvalidInput, maxReturnReasonLen)
	}
	if len(cmd.ItemProductIDs) == 0 {
		return domain.Return{}, fmt.Errorf("%w: at least one item is required", ErrReturnInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Return{}, mapRepositoryError(err, ErrOrderNotFound, nil)
	}
	if !order.OwnedBy(cmd.Actor.ID) && !cmd.Actor.Can(domain.CapReturnsManage) {
		return domain.Return{}, ErrNotAuthorized
	}
	if order.Status != domain.OrderStatusDelivered {
		return domain.Return{}, fmt.Errorf("%w: order %s is %s", ErrReturnNotAllowed, order.ID, order.Status)
	}

	now := s.clock()
	days := order.ReturnPolicyDays
	if days < 0 {
		days = domain.DefaultReturnPolicyDays
	}
	deadline := order.CreatedAt.AddDate(0, 0, days)
	if now.After(deadline) {
		return domain.Return{}, fmt.Errorf("%w: window of %d days closed at %s", ErrReturnWindowExpired, days, deadline.Format(time.RFC3339))
	}

	items := make([]string, 0, len(cmd.ItemProductIDs))
	for _, id := range cmd.ItemProductIDs {
		id = strings.TrimSpace(id)
		if !order.HasProduct(id) {
			return domain.Return{}, fmt.Errorf("%w: %q", ErrItemNotInOrder, id)
		}
		if !slices.Contains(items, id) {
			items = append(items, id)
		}
	}

	ret := domain.Return{
		ID:            returnIDPrefix + s.newID(),
		OrderID:       order.ID,
		UserID:        order.UserID,
		Reason:        reason,
		ItemsReturned: items,
		Status:        domain.ReturnStatusRequested,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	previous := order.Status
	order.Status = domain.OrderStatusReturnRequested
	order.UpdatedAt = now

	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.returns.Insert(txCtx, ret); err != nil {
			return err
		}
		return s.orders.Update(txCtx, order)
	})
	if err != nil {
		return domain.Return{}, mapRepositoryError(err, ErrOrderNotFound, ErrOrderConflict)
	}

	s.logger(ctx, "order.return.requested", map[string]any{"orderId": order.ID, "returnId": ret.ID})
	publishOrderEvent(ctx, s.events, s.logger, OrderEvent{
		Type:           OrderEventReturnRequested,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		UserID:         order.UserID,
		Status:         order.Status,
		PreviousStatus: previous,
		ReturnID:       ret.ID,
		ActorID:        cmd.Actor.ID,
		Reason:         reason,
		OccurredAt:     now,
	})
	return ret, nil
}

func (s *returnService) List(ctx context.Context, actor Actor, filter repositories.ReturnListFilter) (domain.CursorPage[domain.Return], error) {
	if !actor.Can(domain.CapReturnsManage) {
		return domain.CursorPage[domain.Return]{}, ErrNotAuthorized
	}
	for _, status := range filter.Status {
		if !validReturnStatus(status) {
			return domain.CursorPage[domain.Return]{}, fmt.Errorf("%w: unknown status %q", ErrReturnInvalidInput, status)
		}
	}
	page, err := s.returns.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[domain.Return]{}, mapRepositoryError(err, ErrReturnNotFound, nil)
	}
	return page, nil
}

func (s *returnService) Get(ctx context.Context, actor Actor, returnID string) (domain.Return, error) {
	if !actor.Can(domain.CapReturnsManage) {
		return domain.Return{}, ErrNotAuthorized
	}
	returnID = strings.TrimSpace(returnID)
	if returnID == "" {
		return domain.Return{}, fmt.Errorf("%w: return id is required", ErrReturnInvalidInput)
	}
	ret, err := s.returns.FindByID(ctx, returnID)
	if err != nil {
		return domain.Return{}, mapRepositoryError(err, ErrReturnNotFound, nil)
	}
	return ret, nil
}

// UpdateStatus records the admin decision. It does not touch the order or stock.
func (s *returnService) UpdateStatus(ctx context.Context, cmd UpdateReturnStatusCommand) (domain.Return, error) {
	ret, err := s.Get(ctx, cmd.Actor, cmd.ReturnID)
	if err != nil {
		return domain.Return{}, err
	}
	target := domain.ReturnStatus(strings.ToLower(strings.TrimSpace(string(cmd.Status))))
	if !slices.Contains(returnStatusTransitions[ret.Status], target) {
		return domain.Return{}, fmt.Errorf("%w: %s -> %s", ErrReturnInvalidState, ret.Status, target)
	}
	ret.Status = target
	ret.ReviewedBy = cmd.Actor.ID
	ret.UpdatedAt = s.clock()
	if err := s.returns.Update(ctx, ret); err != nil {
		return domain.Return{}, mapRepositoryError(err, ErrReturnNotFound, nil)
	}
	s.logger(ctx, "return.status.updated", map[string]any{"returnId": ret.ID, "status": string(target), "actorId": cmd.Actor.ID})
	return ret, nil
}

func validReturnStatus(status domain.ReturnStatus) bool {
	switch status {
	case domain.ReturnStatusRequested, domain.ReturnStatusApproved, domain.ReturnStatusRejected, domain.ReturnStatusRefunded:
		return true
	}
	return false
}
