package payments

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jara-commerce/api/internal/domain"
)

const (
	defaultGatewayTimeout = 20 * time.Second
	metricNamespace       = "github.com/jara-commerce/api/internal/payments"
)

// Dispatcher routes payment calls to the gateway registered for a method. Every call is bounded by
// the configured timeout and never retried.
type Dispatcher struct {
	gateways map[domain.PaymentMethod]Gateway
	order    []domain.PaymentMethod
	timeout  time.Duration
	logger   GatewayLogger
	clock    func() time.Time

	calls   metric.Int64Counter
	latency metric.Float64Histogram
}

// DispatcherOption customises the dispatcher.
type DispatcherOption func(*dispatcherConfig)

type dispatcherConfig struct {
	timeout time.Duration
	logger  GatewayLogger
	meter   metric.Meter
	clock   func() time.Time
}

// WithTimeout bounds each gateway call.
func WithTimeout(timeout time.Duration) DispatcherOption {
	return func(cfg *dispatcherConfig) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

// WithLogger wires structured logging for gateway outcomes.
func WithLogger(logger GatewayLogger) DispatcherOption {
	return func(cfg *dispatcherConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithMeter injects a custom OpenTelemetry meter.
func WithMeter(m metric.Meter) DispatcherOption {
	return func(cfg *dispatcherConfig) { cfg.meter = m }
}

// WithClock overrides the latency clock for tests.
func WithClock(clock func() time.Time) DispatcherOption {
	return func(cfg *dispatcherConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// NewDispatcher registers gateways in the given order. Two gateways for one method is an error.
func NewDispatcher(gateways []Gateway, opts ...DispatcherOption) (*Dispatcher, error) {
	if len(gateways) == 0 {
		return nil, errors.New("payments: at least one gateway is required")
	}
	cfg := dispatcherConfig{
		timeout: defaultGatewayTimeout,
		logger:  func(context.Context, string, map[string]any) {},
		clock:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	d := &Dispatcher{
		gateways: make(map[domain.PaymentMethod]Gateway, len(gateways)),
		timeout:  cfg.timeout,
		logger:   cfg.logger,
		clock:    cfg.clock,
	}
	for _, gw := range gateways {
		if gw == nil {
			return nil, errors.New("payments: nil gateway")
		}
		method := gw.Method()
		if !method.Valid() {
			return nil, fmt.Errorf("payments: gateway for unknown method %q", method)
		}
		if _, dup := d.gateways[method]; dup {
			return nil, fmt.Errorf("payments: duplicate gateway for %s", method)
		}
		d.gateways[method] = gw
		d.order = append(d.order, method)
	}

	meter := cfg.meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(metricNamespace)
	}
	var err error
	if d.calls, err = meter.Int64Counter("payments.gateway.calls",
		metric.WithDescription("Gateway calls by method, operation and outcome"),
	); err != nil {
		return nil, fmt.Errorf("payments: create call counter: %w", err)
	}
	if d.latency, err = meter.Float64Histogram("payments.gateway.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds of gateway calls"),
	); err != nil {
		return nil, fmt.Errorf("payments: create latency histogram: %w", err)
	}
	return d, nil
}

// Methods lists the registered methods in registration order.
func (d *Dispatcher) Methods() []domain.PaymentMethod {
	return slices.Clone(d.order)
}

// Supports reports whether a gateway is registered for method.
func (d *Dispatcher) Supports(method domain.PaymentMethod) bool {
	_, ok := d.gateways[method]
	return ok
}

// Initiate starts a payment on the method's gateway.
func (d *Dispatcher) Initiate(ctx context.Context, method domain.PaymentMethod, req InitiateRequest) (Handle, error) {
	gw, ok := d.gateways[method]
	if !ok {
		return Handle{}, fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := d.clock()
	handle, err := gw.Initiate(callCtx, req)
	d.observe(ctx, method, "initiate", start, err)
	if err != nil {
		d.logger(ctx, "payment.initiate.failed", map[string]any{
			"method":  string(method),
			"orderId": req.OrderID,
			"error":   err.Error(),
		})
		return Handle{}, fmt.Errorf("%w: %s: %v", ErrInitiationFailed, method, err)
	}
	handle.Method = method
	return handle, nil
}

// Verify asks the method's gateway whether the payment settled. A gateway that answers "not
// settled" is not an error; transport failures are.
func (d *Dispatcher) Verify(ctx context.Context, method domain.PaymentMethod, req VerifyRequest) (Verification, error) {
	gw, ok := d.gateways[method]
	if !ok {
		return Verification{}, fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := d.clock()
	result, err := gw.Verify(callCtx, req)
	d.observe(ctx, method, "verify", start, err)
	if err != nil {
		d.logger(ctx, "payment.verify.failed", map[string]any{
			"method":  string(method),
			"orderId": req.OrderID,
			"error":   err.Error(),
		})
		return Verification{}, fmt.Errorf("%w: %s: %v", ErrVerificationFailed, method, err)
	}
	return result, nil
}

func (d *Dispatcher) observe(ctx context.Context, method domain.PaymentMethod, op string, start time.Time, err error) {
	outcome := "ok"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	case err != nil:
		outcome = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("method", string(method)),
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	)
	d.calls.Add(ctx, 1, attrs)
	d.latency.Record(ctx, float64(d.clock().Sub(start))/float64(time.Millisecond), attrs)
}
