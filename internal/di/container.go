package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jara-commerce/api/internal/platform/config"
	"github.com/jara-commerce/api/internal/platform/observability"
	"github.com/jara-commerce/api/internal/repositories"
	"github.com/jara-commerce/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Orders     services.OrderService
	Payments   services.PaymentService
	Returns    services.ReturnService
	Catalog    services.CatalogService
	Promotions services.PromotionService
	Zones      services.ShippingZoneService
	Shipping   services.ShippingEstimator
	Pricing    services.PricingEngine
	Inventory  services.InventoryLedger
	System     services.SystemService
}

// Infrastructure carries the outbound adapters services depend on. Notifier and Events are optional.
type Infrastructure struct {
	Dispatcher services.PaymentDispatcher
	Notifier   services.OrderNotifier
	Events     services.OrderEventPublisher
	Build      services.BuildInfo
	Logger     *zap.Logger
	Clock      func() time.Time
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides Firestore
// repositories, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	if infra.Dispatcher == nil {
		return nil, errors.New("payment dispatcher is required")
	}

	svc, err := buildServices(ctx, reg, cfg, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

// PricingPolicy maps pricing configuration onto the service-layer policy.
func PricingPolicy(cfg config.PricingConfig) services.PricingPolicy {
	policy := services.DefaultPricingPolicy
	if cfg.Currency != "" {
		policy.Currency = cfg.Currency
	}
	if cfg.VATBasisPoints >= 0 {
		policy.VATBasisPoints = cfg.VATBasisPoints
	}
	if cfg.RemoteMultiplierBps > 0 {
		policy.RemoteMultiplierBps = cfg.RemoteMultiplierBps
	}
	if cfg.FreeWeightGrams >= 0 {
		policy.FreeWeightGrams = cfg.FreeWeightGrams
	}
	if cfg.SurchargePerKg >= 0 {
		policy.SurchargePerKg = cfg.SurchargePerKg
	}
	return policy
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, infra Infrastructure) (Services, error) {
	var svc Services

	clock := infra.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := infra.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	events := func(name string) func(context.Context, string, map[string]any) {
		return observability.EventLogger(logger.Named(name))
	}
	policy := PricingPolicy(cfg.Pricing)

	inventory, err := services.NewInventoryLedger(services.InventoryLedgerDeps{
		Products: reg.Products(),
		Logger:   events("inventory"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build inventory ledger: %w", err)
	}
	svc.Inventory = inventory

	catalog, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products:  reg.Products(),
		Inventory: inventory,
		Clock:     clock,
		Logger:    events("catalog"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalog

	estimator, err := services.NewShippingEstimator(services.ShippingEstimatorDeps{
		Zones:  reg.ShippingZones(),
		Policy: policy,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build shipping estimator: %w", err)
	}
	svc.Shipping = estimator

	pricing, err := services.NewPricingEngine(services.PricingEngineDeps{
		Shipping:   estimator,
		Promotions: reg.Promotions(),
		Policy:     policy,
		Clock:      clock,
		Logger:     events("pricing"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing engine: %w", err)
	}
	svc.Pricing = pricing

	promotions, err := services.NewPromotionService(services.PromotionServiceDeps{
		Promotions: reg.Promotions(),
		Clock:      clock,
		Logger:     events("promotions"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build promotion service: %w", err)
	}
	svc.Promotions = promotions

	zones, err := services.NewShippingZoneService(services.ShippingZoneServiceDeps{
		Zones:  reg.ShippingZones(),
		Clock:  clock,
		Logger: events("shipping"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build shipping zone service: %w", err)
	}
	svc.Zones = zones

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:                  reg.Orders(),
		Products:                reg.Products(),
		Payments:                reg.Payments(),
		Counters:                reg.Counters(),
		Inventory:               inventory,
		Pricing:                 pricing,
		Dispatcher:              infra.Dispatcher,
		Notifier:                infra.Notifier,
		Events:                  infra.Events,
		UnitOfWork:              reg,
		Currency:                policy.Currency,
		PaymentHoldWindow:       cfg.Pricing.PaymentHoldWindow,
		DefaultReturnPolicyDays: cfg.Pricing.DefaultReturnPolicyDays,
		Clock:                   clock,
		Logger:                  events("orders"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orders

	payments, err := services.NewPaymentService(services.PaymentServiceDeps{
		Orders:     reg.Orders(),
		Payments:   reg.Payments(),
		Dispatcher: infra.Dispatcher,
		UnitOfWork: reg,
		Events:     infra.Events,
		Clock:      clock,
		Logger:     events("payments"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment service: %w", err)
	}
	svc.Payments = payments

	returns, err := services.NewReturnService(services.ReturnServiceDeps{
		Orders:     reg.Orders(),
		Returns:    reg.Returns(),
		UnitOfWork: reg,
		Events:     infra.Events,
		Clock:      clock,
		Logger:     events("returns"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build return service: %w", err)
	}
	svc.Returns = returns

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            clock,
			Build:            infra.Build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
