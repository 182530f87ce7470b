package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jara-commerce/api/internal/domain"
)

type stubGateway struct {
	method    domain.PaymentMethod
	initiate  func(ctx context.Context, req InitiateRequest) (Handle, error)
	verify    func(ctx context.Context, req VerifyRequest) (Verification, error)
	initiateN  int
}

func (s *stubGateway) Method() domain.PaymentMethod { return s.method }

func (s *stubGateway) Initiate(ctx context.Context, req InitiateRequest) (Handle, error) {
	s.initiateN++
	if s.initiate != nil {
		return s.initiate(ctx, req)
	}
	return Handle{Reference: "ref_" + req.OrderID}, nil
}

func (s *stubGateway) Verify(ctx context.Context, req VerifyRequest) (Verification, error) {
	if s.verify != nil {
		return s.verify(ctx, req)
	}
	return Verification{Settled: true}, nil
}

func TestDispatcherRoutesByMethod(t *testing.T) {
	card := &stubGateway{method: domain.PaymentMethodCard}
	wallet := &stubGateway{method: domain.PaymentMethodWallet}
	d, err := NewDispatcher([]Gateway{CODGateway{}, card, wallet})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	handle, err := d.Initiate(context.Background(), domain.PaymentMethodWallet, InitiateRequest{OrderID: "ord_1", Amount: 100})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if handle.Method != domain.PaymentMethodWallet || handle.Reference != "ref_ord_1" {
		t.Fatalf("unexpected handle %+v", handle)
	}
	if wallet.initiateN != 1 || card.initiateN != 0 {
		t.Fatalf("expected only wallet gateway to be called")
	}

	methods := d.Methods()
	if len(methods) != 3 || methods[0] != domain.PaymentMethodCOD || methods[2] != domain.PaymentMethodWallet {
		t.Fatalf("unexpected method order %v", methods)
	}
}

func TestDispatcherUnsupportedMethod(t *testing.T) {
	d, err := NewDispatcher([]Gateway{CODGateway{}})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	if _, err := d.Initiate(context.Background(), domain.PaymentMethodCard, InitiateRequest{}); !errors.Is(err, ErrUnsupportedMethod) {
		t.Fatalf("expected ErrUnsupportedMethod, got %v", err)
	}
	if _, err := d.Verify(context.Background(), domain.PaymentMethodCard, VerifyRequest{}); !errors.Is(err, ErrUnsupportedMethod) {
		t.Fatalf("expected ErrUnsupportedMethod, got %v", err)
	}
	if d.Supports(domain.PaymentMethodCard) || !d.Supports(domain.PaymentMethodCOD) {
		t.Fatalf("unexpected Supports result")
	}
}

func TestDispatcherWrapsGatewayFailures(t *testing.T) {
	boom := errors.New("connection reset")
	card := &stubGateway{
		method:   domain.PaymentMethodCard,
		initiate: func(context.Context, InitiateRequest) (Handle, error) { return Handle{}, boom },
		verify:   func(context.Context, VerifyRequest) (Verification, error) { return Verification{}, boom },
	}
	var events []string
	d, err := NewDispatcher([]Gateway{card}, WithLogger(func(_ context.Context, event string, _ map[string]any) {
		events = append(events, event)
	}))
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	if _, err := d.Initiate(context.Background(), domain.PaymentMethodCard, InitiateRequest{OrderID: "o"}); !errors.Is(err, ErrInitiationFailed) {
		t.Fatalf("expected ErrInitiationFailed, got %v", err)
	}
	if _, err := d.Verify(context.Background(), domain.PaymentMethodCard, VerifyRequest{OrderID: "o"}); !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("expected ErrVerificationFailed, got %v", err)
	}
	if card.initiateN != 1 {
		t.Fatalf("expected no retry, gateway called %d times", card.initiateN)
	}
	if len(events) != 2 || events[0] != "payment.initiate.failed" || events[1] != "payment.verify.failed" {
		t.Fatalf("unexpected events %v", events)
	}
}

func TestDispatcherBoundsCallsWithTimeout(t *testing.T) {
	slow := &stubGateway{
		method: domain.PaymentMethodWallet,
		initiate: func(ctx context.Context, _ InitiateRequest) (Handle, error) {
			select {
			case <-ctx.Done():
				return Handle{}, ctx.Err()
			case <-time.After(time.Second):
				return Handle{Reference: "late"}, nil
			}
		},
	}
	d, err := NewDispatcher([]Gateway{slow}, WithTimeout(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	_, err = d.Initiate(context.Background(), domain.PaymentMethodWallet, InitiateRequest{})
	if !errors.Is(err, ErrInitiationFailed) {
		t.Fatalf("expected timeout to surface as initiation failure, got %v", err)
	}
}

func TestNewDispatcherRejectsDuplicates(t *testing.T) {
	if _, err := NewDispatcher(nil); err == nil {
		t.Fatalf("expected error without gateways")
	}
	if _, err := NewDispatcher([]Gateway{CODGateway{}, CODGateway{}}); err == nil {
		t.Fatalf("expected duplicate method error")
	}
}

func TestCODGatewayAlwaysSettles(t *testing.T) {
	result, err := CODGateway{}.Verify(context.Background(), VerifyRequest{OrderID: "ord_1"})
	if err != nil || !result.Settled {
		t.Fatalf("expected COD to settle, got %+v %v", result, err)
	}
}
