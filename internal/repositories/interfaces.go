package repositories

import (
	"context"
	"time"

	domain "github.com/jara-commerce/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Orders() OrderRepository
	Payments() PaymentRepository
	Promotions() PromotionRepository
	Returns() ReturnRepository
	ShippingZones() ShippingZoneRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
// Reads inside fn must happen before any write.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProductRepository persists catalog products and owns the contended stock counter. Update
// writes catalog fields only; stock_qty moves through DecrementStock and IncrementStock.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	Delete(ctx context.Context, productID string) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
	// DecrementStock subtracts qty only when stock_qty >= qty, as one atomic step. It returns the
	// product after the decrement, or a *StockError.
	DecrementStock(ctx context.Context, productID string, qty int64) (domain.Product, error)
	IncrementStock(ctx context.Context, productID string, qty int64) error
}

// OrderRepository persists order aggregates.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Order], error)
	ListExpiredHolds(ctx context.Context, before time.Time, limit int) ([]domain.Order, error)
}

// PaymentRepository stores the append-only payment attempt trail.
type PaymentRepository interface {
	Insert(ctx context.Context, payment domain.Payment) error
	Update(ctx context.Context, payment domain.Payment) error
	FindByID(ctx context.Context, paymentID string) (domain.Payment, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error)
}

// PromotionRepository persists promo codes. Codes are stored normalised.
type PromotionRepository interface {
	Insert(ctx context.Context, promotion domain.Promotion) error
	Update(ctx context.Context, promotion domain.Promotion) error
	Delete(ctx context.Context, promotionID string) error
	FindByID(ctx context.Context, promotionID string) (domain.Promotion, error)
	FindByCode(ctx context.Context, code string) (domain.Promotion, error)
	List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Promotion], error)
}

// ReturnRepository persists return requests.
type ReturnRepository interface {
	Insert(ctx context.Context, ret domain.Return) error
	Update(ctx context.Context, ret domain.Return) error
	FindByID(ctx context.Context, returnID string) (domain.Return, error)
	List(ctx context.Context, filter ReturnListFilter) (domain.CursorPage[domain.Return], error)
}

// ShippingZoneRepository serves shipping reference data keyed by region.
type ShippingZoneRepository interface {
	FindByRegion(ctx context.Context, region string) (domain.ShippingZone, error)
	List(ctx context.Context) ([]domain.ShippingZone, error)
	Upsert(ctx context.Context, zone domain.ShippingZone) (domain.ShippingZone, error)
	Delete(ctx context.Context, zoneID string) error
}

// CounterRepository provides atomic sequences, e.g. for order numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// ProductListFilter narrows catalog listings. Category and Keyword are mutually exclusive.
type ProductListFilter struct {
	Category           string
	Keyword            string
	VendorID           string
	IncludeUnavailable bool
	Pagination         domain.Pagination
}

// ReturnListFilter narrows admin return listings.
type ReturnListFilter struct {
	Status     []domain.ReturnStatus
	OrderID    string
	Pagination domain.Pagination
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}
