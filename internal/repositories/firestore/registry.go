package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/jara-commerce/api/internal/platform/firestore"
	"github.com/jara-commerce/api/internal/repositories"
)

// Registry wires every Firestore repository over one provider.
type Registry struct {
	*UnitOfWork

	provider   *pfirestore.Provider
	products   *ProductRepository
	orders     *OrderRepository
	payments   *PaymentRepository
	promotions *PromotionRepository
	returns    *ReturnRepository
	zones      repositories.ShippingZoneRepository
	counters   *CounterRepository
	health     repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// RegistryOption customises the registry.
type RegistryOption func(*Registry)

// WithHealthRepository sets the readiness probe exposed via Health().
func WithHealthRepository(health repositories.HealthRepository) RegistryOption {
	return func(r *Registry) {
		r.health = health
	}
}

// WithShippingZoneCache wraps the zone repository, e.g. with a Redis read-through cache.
func WithShippingZoneCache(wrap func(repositories.ShippingZoneRepository) repositories.ShippingZoneRepository) RegistryOption {
	return func(r *Registry) {
		if wrap != nil {
			r.zones = wrap(r.zones)
		}
	}
}

// NewRegistry constructs every repository. The registry owns the provider and closes it.
func NewRegistry(provider *pfirestore.Provider, opts ...RegistryOption) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}
	reg := &Registry{provider: provider}

	var err error
	if reg.UnitOfWork, err = NewUnitOfWork(provider); err != nil {
		return nil, err
	}
	if reg.products, err = NewProductRepository(provider); err != nil {
		return nil, err
	}
	if reg.orders, err = NewOrderRepository(provider); err != nil {
		return nil, err
	}
	if reg.payments, err = NewPaymentRepository(provider); err != nil {
		return nil, err
	}
	if reg.promotions, err = NewPromotionRepository(provider); err != nil {
		return nil, err
	}
	if reg.returns, err = NewReturnRepository(provider); err != nil {
		return nil, err
	}
	if reg.zones, err = NewShippingZoneRepository(provider); err != nil {
		return nil, err
	}
	if reg.counters, err = NewCounterRepository(provider); err != nil {
		return nil, err
	}

	for _, opt := range opts {
		if opt != nil {
			opt(reg)
		}
	}
	return reg, nil
}

func (r *Registry) Close(context.Context) error { return r.provider.Close() }

func (r *Registry) Products() repositories.ProductRepository           { return r.products }
func (r *Registry) Orders() repositories.OrderRepository               { return r.orders }
func (r *Registry) Payments() repositories.PaymentRepository           { return r.payments }
func (r *Registry) Promotions() repositories.PromotionRepository       { return r.promotions }
func (r *Registry) Returns() repositories.ReturnRepository             { return r.returns }
func (r *Registry) ShippingZones() repositories.ShippingZoneRepository { return r.zones }
func (r *Registry) Counters() repositories.CounterRepository           { return r.counters }
func (r *Registry) Health() repositories.HealthRepository              { return r.health }
