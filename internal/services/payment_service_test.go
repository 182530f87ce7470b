package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/jara-commerce/api/internal/domain"
	"github.com/jara-commerce/api/internal/payments"
)

func newTestPaymentService(t *testing.T, orders *memOrders, records *memPayments, dispatcher *stubDispatcher, events *captureOrderEvents) PaymentService {
	t.Helper()
	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders:      orders,
		Payments:    records,
		Dispatcher:  dispatcher,
		Events:      events,
		Clock:       func() time.Time { return orderNow },
		IDGenerator: sequentialIDs(),
	})
	if err != nil {
		t.Fatalf("NewPaymentService: %v", err)
	}
	return svc
}

func pendingCardOrder() domain.Order {
	hold := orderNow.Add(20 * time.Minute)
	order := domain.Order{
		ID:            "ord_card",
		OrderNumber:   "JR-2026-000007",
		UserID:        customer.ID,
		Status:        domain.OrderStatusPending,
		PaymentMethod: domain.PaymentMethodCard,
		PaymentStatus: domain.PaymentStatusInitiated,
		Currency:      "NPR",
		Items:         []domain.OrderItem{{ProductID: "p1", Quantity: 1, UnitPrice: 1000}},
		ShippingCost:  100,
		TaxAmount:     130,
		HoldExpiresAt: &hold,
	}
	order.RecomputeTotal()
	return order
}

func TestPaymentServiceVerifySettled(t *testing.T) {
	orders := newMemOrders(pendingCardOrder())
	records := &memPayments{payments: []domain.Payment{
		{ID: "pay_old", OrderID: "ord_card", Status: domain.PaymentRecordFailed, GatewayReference: "pi_old"},
		{ID: "pay_live", OrderID: "ord_card", Status: domain.PaymentRecordInitiated, GatewayReference: "pi_live"},
	}}
	dispatcher := newStubDispatcher()
	events := &captureOrderEvents{}
	svc := newTestPaymentService(t, orders, records, dispatcher, events)

	order, err := svc.Verify(context.Background(), VerifyPaymentCommand{Actor: customer, OrderID: "ord_card"})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if order.PaymentStatus != domain.PaymentStatusPaid || order.HoldExpiresAt != nil || order.PaymentID == "" {
		t.Fatalf("unexpected order %+v", order)
	}
	if dispatcher.verified[0].Reference != "pi_live" || dispatcher.verified[0].Amount != order.OrderTotal {
		t.Fatalf("expected latest initiated reference, got %+v", dispatcher.verified[0])
	}
	last := records.payments[len(records.payments)-1]
	if last.Status != domain.PaymentRecordSuccess || last.GatewayTransactionID != "txn_1" || last.ID != order.PaymentID {
		t.Fatalf("unexpected payment record %+v", last)
	}
	if orders.get("ord_card").PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("order not persisted as paid")
	}
	if got := events.types(); len(got) != 1 || got[0] != OrderEventPaymentSettled {
		t.Fatalf("unexpected events %v", got)
	}

	if _, err := svc.Verify(context.Background(), VerifyPaymentCommand{Actor: customer, OrderID: "ord_card"}); !errors.Is(err, ErrAlreadyPaid) {
		t.Fatalf("expected ErrAlreadyPaid on second verify, got %v", err)
	}
}

func TestPaymentServiceVerifyNotSettled(t *testing.T) {
	orders := newMemOrders(pendingCardOrder())
	records := &memPayments{payments: []domain.Payment{
		{ID: "pay_x", OrderID: "ord_card", Status: domain.PaymentRecordInitiated, GatewayReference: "pi_x"},
	}}
	dispatcher := newStubDispatcher()
	dispatcher.verify = payments.Verification{Settled: false, Reason: "card_declined"}
	svc := newTestPaymentService(t, orders, records, dispatcher, nil)

	order, err := svc.Verify(context.Background(), VerifyPaymentCommand{Actor: customer, OrderID: "ord_card", Reference: "pi_x"})
	if !errors.Is(err, ErrPaymentVerificationFailed) {
		t.Fatalf("expected ErrPaymentVerificationFailed, got %v", err)
	}
	if order.PaymentStatus != domain.PaymentStatusFailed || order.Status != domain.OrderStatusPending {
		t.Fatalf("unexpected order %+v", order)
	}
	if len(records.payments) != 2 || records.payments[1].FailureReason != "card_declined" || records.payments[1].GatewayReference != "pi_x" {
		t.Fatalf("expected failed attempt recorded, got %+v", records.payments)
	}
}

func TestPaymentServiceVerifyRejectsForeignReference(t *testing.T) {
	other := pendingCardOrder()
	other.ID = "ord_other"
	orders := newMemOrders(pendingCardOrder(), other)
	records := &memPayments{payments: []domain.Payment{
		{ID: "pay_live", OrderID: "ord_card", Status: domain.PaymentRecordInitiated, GatewayReference: "pi_live"},
		{ID: "pay_other", OrderID: "ord_other", Status: domain.PaymentRecordInitiated, GatewayReference: "pi_other"},
	}}
	dispatcher := newStubDispatcher()
	svc := newTestPaymentService(t, orders, records, dispatcher, nil)

	_, err := svc.Verify(context.Background(), VerifyPaymentCommand{Actor: customer, OrderID: "ord_card", Reference: "pi_other"})
	if !errors.Is(err, ErrPaymentInvalidInput) {
		t.Fatalf("expected ErrPaymentInvalidInput, got %v", err)
	}
	if len(dispatcher.verified) != 0 {
		t.Fatalf("a reference from another order must not reach the gateway")
	}
	if orders.get("ord_card").PaymentStatus != domain.PaymentStatusInitiated {
		t.Fatalf("order must not change")
	}
}

func TestPaymentServiceVerifyAfterCancellation(t *testing.T) {
	orders := newMemOrders(pendingCardOrder())
	records := &memPayments{payments: []domain.Payment{
		{ID: "pay_live", OrderID: "ord_card", Status: domain.PaymentRecordInitiated, GatewayReference: "pi_live"},
	}}
	dispatcher := newStubDispatcher()
	// The hold sweeper cancels the order while the gateway is being asked.
	dispatcher.onVerify = func() {
		order := orders.get("ord_card")
		order.Status = domain.OrderStatusCancelled
		order.CancelReason = holdExpiredReason
		order.HoldExpiresAt = nil
		orders.put(order)
	}
	logs := &captureLogs{}
	events := &captureOrderEvents{}
	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders:      orders,
		Payments:    records,
		Dispatcher:  dispatcher,
		UnitOfWork:  &serialUnitOfWork{},
		Events:      events,
		Clock:       func() time.Time { return orderNow },
		IDGenerator: sequentialIDs(),
		Logger:      logs.log,
	})
	if err != nil {
		t.Fatalf("NewPaymentService: %v", err)
	}

	if _, err := svc.Verify(context.Background(), VerifyPaymentCommand{Actor: customer, OrderID: "ord_card"}); !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected ErrOrderConflict, got %v", err)
	}
	stored := orders.get("ord_card")
	if stored.Status != domain.OrderStatusCancelled || stored.PaymentStatus == domain.PaymentStatusPaid {
		t.Fatalf("cancelled order must not be marked paid, got %s/%s", stored.Status, stored.PaymentStatus)
	}
	if !logs.has("payment.settled_after_cancel") {
		t.Fatalf("expected settled payment on a cancelled order to raise an alarm")
	}
	last := records.payments[len(records.payments)-1]
	if last.Status != domain.PaymentRecordSuccess || last.GatewayTransactionID != "txn_1" {
		t.Fatalf("expected the settled attempt to be kept for refund, got %+v", last)
	}
	if len(events.types()) != 0 {
		t.Fatalf("no settlement event for a cancelled order, got %v", events.types())
	}
}

func TestPaymentServiceVerifyGuards(t *testing.T) {
	cancelled := pendingCardOrder()
	cancelled.ID = "ord_cancelled"
	cancelled.Status = domain.OrderStatusCancelled
	orders := newMemOrders(pendingCardOrder(), cancelled)
	dispatcher := newStubDispatcher()
	svc := newTestPaymentService(t, orders, &memPayments{}, dispatcher, nil)
	ctx := context.Background()

	if _, err := svc.Verify(ctx, VerifyPaymentCommand{Actor: Actor{ID: "user-2"}, OrderID: "ord_card"}); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if _, err := svc.Verify(ctx, VerifyPaymentCommand{Actor: customer, OrderID: "ord_cancelled"}); !errors.Is(err, ErrPaymentInvalidInput) {
		t.Fatalf("expected cancelled orders to be rejected, got %v", err)
	}
	if _, err := svc.Verify(ctx, VerifyPaymentCommand{Actor: customer, OrderID: "missing"}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}

	dispatcher.verifyErr = errBoom
	if _, err := svc.Verify(ctx, VerifyPaymentCommand{Actor: customer, OrderID: "ord_card"}); !errors.Is(err, ErrPaymentVerificationFailed) {
		t.Fatalf("expected gateway errors to surface as verification failures, got %v", err)
	}
	if orders.get("ord_card").PaymentStatus != domain.PaymentStatusInitiated {
		t.Fatalf("gateway errors must not change the order")
	}
}

func TestPaymentServiceInitiate(t *testing.T) {
	order := pendingCardOrder()
	order.PaymentStatus = domain.PaymentStatusFailed
	paid := pendingCardOrder()
	paid.ID = "ord_paid"
	paid.PaymentStatus = domain.PaymentStatusPaid
	orders := newMemOrders(order, paid)
	records := &memPayments{}
	dispatcher := newStubDispatcher()
	svc := newTestPaymentService(t, orders, records, dispatcher, nil)
	ctx := context.Background()

	handle, err := svc.Initiate(ctx, InitiatePaymentCommand{Actor: customer, OrderID: "ord_card", IdempotencyKey: "retry-1"})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if handle.Amount != order.OrderTotal || handle.Reference != "ref_ord_card" || handle.Currency != "NPR" {
		t.Fatalf("unexpected handle %+v", handle)
	}
	if dispatcher.initiated[0].IdempotencyKey != "retry-1" || dispatcher.initiated[0].PaymentID != handle.PaymentID {
		t.Fatalf("expected idempotency key and payment id to reach the gateway, got %+v", dispatcher.initiated[0])
	}
	if orders.get("ord_card").PaymentStatus != domain.PaymentStatusInitiated || len(records.payments) != 1 {
		t.Fatalf("expected initiated order and one attempt")
	}
	if _, err := svc.Initiate(ctx, InitiatePaymentCommand{Actor: customer, OrderID: "ord_paid"}); !errors.Is(err, ErrAlreadyPaid) {
		t.Fatalf("expected ErrAlreadyPaid, got %v", err)
	}
}

func TestPaymentServiceGet(t *testing.T) {
	records := &memPayments{payments: []domain.Payment{{ID: "pay_1", OrderID: "ord_card", UserID: customer.ID}}}
	svc := newTestPaymentService(t, newMemOrders(), records, newStubDispatcher(), nil)
	ctx := context.Background()

	if _, err := svc.Get(ctx, customer, "pay_1"); err != nil {
		t.Fatalf("owner Get: %v", err)
	}
	if _, err := svc.Get(ctx, orderManager, "pay_1"); err != nil {
		t.Fatalf("manager Get: %v", err)
	}
	if _, err := svc.Get(ctx, Actor{ID: "user-2"}, "pay_1"); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if _, err := svc.Get(ctx, customer, "pay_missing"); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}
}
