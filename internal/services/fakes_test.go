package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/jara-commerce/api/internal/domain"
	"github.com/jara-commerce/api/internal/payments"
	"github.com/jara-commerce/api/internal/repositories"
)

type repoErr struct {
	notFound bool
	conflict bool
	msg      string
}

func (e *repoErr) Error() string { return e.msg }
func (e *repoErr) IsNotFound() bool { return e.notFound }
func (e *repoErr) IsConflict() bool { return e.conflict }
func (e *repoErr) IsUnavailable() bool { return false }

func notFound(what string) error { return &repoErr{notFound: true, msg: what + " not found"} }

// memProducts models the conditional decrement with a mutex, like the Firestore transaction.
// stale, when set, is what FindByID reports instead of the live stock.
type memProducts struct {
	mu         sync.Mutex
	products   map[string]domain.Product
	incErr     map[string]error
	stale      map[string]domain.Product
	lastFilter repositories.ProductListFilter
}

func newMemProducts(products ...domain.Product) *memProducts {
	m := &memProducts{products: map[string]domain.Product{}, incErr: map[string]error{}}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func (m *memProducts) FindByID(_ context.Context, id string) (domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.stale[id]; ok {
		return p, nil
	}
	p, ok := m.products[id]
	if !ok {
		return domain.Product{}, notFound("product " + id)
	}
	return p, nil
}

func (m *memProducts) DecrementStock(_ context.Context, id string, qty int64) (domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return domain.Product{}, repositories.NewStockError(repositories.StockErrorProductNotFound, id, qty, 0)
	}
	if p.StockQty < qty {
		return domain.Product{}, repositories.NewStockError(repositories.StockErrorInsufficient, id, qty, p.StockQty)
	}
	p.StockQty -= qty
	m.products[id] = p
	return p, nil
}

func (m *memProducts) IncrementStock(_ context.Context, id string, qty int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.incErr[id]; err != nil {
		return err
	}
	p, ok := m.products[id]
	if !ok {
		return repositories.NewStockError(repositories.StockErrorProductNotFound, id, qty, 0)
	}
	p.StockQty += qty
	m.products[id] = p
	return nil
}

func (m *memProducts) Insert(_ context.Context, product domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[product.ID]; ok {
		return &repoErr{conflict: true, msg: "product exists"}
	}
	m.products[product.ID] = product
	return nil
}

func (m *memProducts) Update(_ context.Context, product domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.products[product.ID]
	if !ok {
		return notFound("product " + product.ID)
	}
	product.StockQty = current.StockQty
	m.products[product.ID] = product
	return nil
}

func (m *memProducts) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return notFound("product " + id)
	}
	delete(m.products, id)
	return nil
}

func (m *memProducts) List(_ context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilter = filter
	var items []domain.Product
	for _, p := range m.products {
		switch {
		case !filter.IncludeUnavailable && !p.IsAvailable:
		case filter.VendorID != "" && p.VendorID != filter.VendorID:
		case filter.Category != "" && !slices.Contains(p.Categories, filter.Category):
		case filter.Keyword != "" && !slices.Contains(domain.SearchTokens(p.Name, p.Brand, p.SKU), filter.Keyword):
		default:
			items = append(items, p)
		}
	}
	slices.SortFunc(items, func(a, b domain.Product) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	return domain.CursorPage[domain.Product]{Items: items}, nil
}

func (m *memProducts) stock(id string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].StockQty
}

// memOrders calls beforeFind, when set, ahead of every FindByID and outside the lock.
type memOrders struct {
	mu         sync.Mutex
	orders     map[string]domain.Order
	insertErr  error
	updateErr  error
	beforeFind func()
}

func newMemOrders(orders ...domain.Order) *memOrders {
	m := &memOrders{orders: map[string]domain.Order{}}
	for _, o := range orders {
		m.orders[o.ID] = o
	}
	return m
}

func (m *memOrders) Insert(_ context.Context, order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	if _, ok := m.orders[order.ID]; ok {
		return &repoErr{conflict: true, msg: "order exists"}
	}
	m.orders[order.ID] = order
	return nil
}

func (m *memOrders) Update(_ context.Context, order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.orders[order.ID]; !ok {
		return notFound("order " + order.ID)
	}
	m.orders[order.ID] = order
	return nil
}

func (m *memOrders) FindByID(_ context.Context, id string) (domain.Order, error) {
	if m.beforeFind != nil {
		m.beforeFind()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return domain.Order{}, notFound("order " + id)
	}
	return o, nil
}

func (m *memOrders) ListByUser(_ context.Context, userID string, _ domain.Pagination) (domain.CursorPage[domain.Order], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []domain.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			items = append(items, o)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return domain.CursorPage[domain.Order]{Items: items}, nil
}

func (m *memOrders) ListExpiredHolds(_ context.Context, before time.Time, limit int) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	for _, o := range m.orders {
		if o.Status == domain.OrderStatusPending && o.HoldExpiresAt != nil && o.HoldExpiresAt.Before(before) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memOrders) get(id string) domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id]
}

func (m *memOrders) put(order domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = order
}

// serialUnitOfWork runs one unit at a time, the way Firestore serializes conflicting
// transactions, and refuses to start on a cancelled context.
type serialUnitOfWork struct {
	mu sync.Mutex
}

func (u *serialUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return fn(ctx)
}

type memPayments struct {
	mu        sync.Mutex
	payments  []domain.Payment
	insertErr error
}

func (m *memPayments) Insert(_ context.Context, payment domain.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.payments = append(m.payments, payment)
	return nil
}

func (m *memPayments) Update(_ context.Context, payment domain.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.payments {
		if m.payments[i].ID == payment.ID {
			m.payments[i] = payment
			return nil
		}
	}
	return notFound("payment " + payment.ID)
}

func (m *memPayments) FindByID(_ context.Context, id string) (domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Payment{}, notFound("payment " + id)
}

func (m *memPayments) ListByOrder(_ context.Context, orderID string) ([]domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Payment
	for _, p := range m.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out, nil
}

type memPromotions struct {
	mu    sync.Mutex
	promo map[string]domain.Promotion
}

func newMemPromotions(promos ...domain.Promotion) *memPromotions {
	m := &memPromotions{promo: map[string]domain.Promotion{}}
	for _, p := range promos {
		m.promo[p.ID] = p
	}
	return m
}

func (m *memPromotions) Insert(_ context.Context, promo domain.Promotion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.promo {
		if existing.Code == promo.Code {
			return &repoErr{conflict: true, msg: "code exists"}
		}
	}
	m.promo[promo.ID] = promo
	return nil
}

func (m *memPromotions) Update(_ context.Context, promo domain.Promotion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.promo[promo.ID]; !ok {
		return notFound("promotion")
	}
	m.promo[promo.ID] = promo
	return nil
}

func (m *memPromotions) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.promo[id]; !ok {
		return notFound("promotion")
	}
	delete(m.promo, id)
	return nil
}

func (m *memPromotions) FindByID(_ context.Context, id string) (domain.Promotion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.promo[id]
	if !ok {
		return domain.Promotion{}, notFound("promotion")
	}
	return p, nil
}

func (m *memPromotions) FindByCode(_ context.Context, code string) (domain.Promotion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	code = domain.NormalizePromoCode(code)
	for _, p := range m.promo {
		if p.Code == code {
			return p, nil
		}
	}
	return domain.Promotion{}, notFound("promotion " + code)
}

func (m *memPromotions) List(context.Context, domain.Pagination) (domain.CursorPage[domain.Promotion], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []domain.Promotion
	for _, p := range m.promo {
		items = append(items, p)
	}
	return domain.CursorPage[domain.Promotion]{Items: items}, nil
}

type memZones struct {
	zones map[string]domain.ShippingZone
}

func newMemZones(zones ...domain.ShippingZone) *memZones {
	m := &memZones{zones: map[string]domain.ShippingZone{}}
	for _, z := range zones {
		m.zones[z.ID] = z
	}
	return m
}

func (m *memZones) FindByRegion(_ context.Context, region string) (domain.ShippingZone, error) {
	key := domain.RegionKey(region)
	for _, z := range m.zones {
		if domain.RegionKey(z.RegionName) == key {
			return z, nil
		}
	}
	return domain.ShippingZone{}, notFound("zone " + region)
}

func (m *memZones) List(context.Context) ([]domain.ShippingZone, error) {
	out := make([]domain.ShippingZone, 0, len(m.zones))
	for _, z := range m.zones {
		out = append(out, z)
	}
	return out, nil
}

func (m *memZones) Upsert(_ context.Context, zone domain.ShippingZone) (domain.ShippingZone, error) {
	for _, z := range m.zones {
		if z.ID != zone.ID && domain.RegionKey(z.RegionName) == domain.RegionKey(zone.RegionName) {
			return domain.ShippingZone{}, &repoErr{conflict: true, msg: "region exists"}
		}
	}
	m.zones[zone.ID] = zone
	return zone, nil
}

func (m *memZones) Delete(_ context.Context, id string) error {
	if _, ok := m.zones[id]; !ok {
		return notFound("zone " + id)
	}
	delete(m.zones, id)
	return nil
}

type memReturns struct {
	mu      sync.Mutex
	returns map[string]domain.Return
}

func newMemReturns(returns ...domain.Return) *memReturns {
	m := &memReturns{returns: map[string]domain.Return{}}
	for _, r := range returns {
		m.returns[r.ID] = r
	}
	return m
}

func (m *memReturns) Insert(_ context.Context, ret domain.Return) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.returns[ret.ID] = ret
	return nil
}

func (m *memReturns) Update(_ context.Context, ret domain.Return) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.returns[ret.ID]; !ok {
		return notFound("return " + ret.ID)
	}
	m.returns[ret.ID] = ret
	return nil
}

func (m *memReturns) FindByID(_ context.Context, id string) (domain.Return, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.returns[id]
	if !ok {
		return domain.Return{}, notFound("return " + id)
	}
	return r, nil
}

func (m *memReturns) List(_ context.Context, filter repositories.ReturnListFilter) (domain.CursorPage[domain.Return], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []domain.Return
	for _, r := range m.returns {
		if filter.OrderID == "" || r.OrderID == filter.OrderID {
			items = append(items, r)
		}
	}
	return domain.CursorPage[domain.Return]{Items: items}, nil
}

type memCounters struct {
	mu     sync.Mutex
	values map[string]int64
}

func (m *memCounters) Next(_ context.Context, id string, step int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = map[string]int64{}
	}
	m.values[id] += step
	return m.values[id], nil
}

func (m *memCounters) Configure(context.Context, string, repositories.CounterConfig) error {
	return nil
}

type stubDispatcher struct {
	mu          sync.Mutex
	methods     []domain.PaymentMethod
	initiateErr error
	verify      payments.Verification
	verifyErr   error
	initiated   []payments.InitiateRequest
	verified    []payments.VerifyRequest
	onInitiate  func()
	onVerify    func()
}

func newStubDispatcher() *stubDispatcher {
	return &stubDispatcher{
		methods: []domain.PaymentMethod{domain.PaymentMethodCOD, domain.PaymentMethodCard, domain.PaymentMethodWallet},
		verify:  payments.Verification{Settled: true, TransactionID: "txn_1"},
	}
}

func (s *stubDispatcher) Methods() []domain.PaymentMethod { return s.methods }

func (s *stubDispatcher) Supports(method domain.PaymentMethod) bool {
	for _, m := range s.methods {
		if m == method {
			return true
		}
	}
	return false
}

func (s *stubDispatcher) Initiate(_ context.Context, method domain.PaymentMethod, req payments.InitiateRequest) (payments.Handle, error) {
	if s.onInitiate != nil {
		s.onInitiate()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initiated = append(s.initiated, req)
	if s.initiateErr != nil && method != domain.PaymentMethodCOD {
		return payments.Handle{}, fmt.Errorf("%w: %v", payments.ErrInitiationFailed, s.initiateErr)
	}
	return payments.Handle{Method: method, Reference: "ref_" + req.OrderID, ClientSecret: "secret"}, nil
}

func (s *stubDispatcher) Verify(_ context.Context, _ domain.PaymentMethod, req payments.VerifyRequest) (payments.Verification, error) {
	if s.onVerify != nil {
		s.onVerify()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verified = append(s.verified, req)
	return s.verify, s.verifyErr
}

type captureOrderEvents struct {
	mu     sync.Mutex
	events []OrderEvent
}

func (c *captureOrderEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureOrderEvents) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Type)
	}
	return out
}

type stubNotifier struct {
	mu   sync.Mutex
	sent []Recipient
	err  error
}

func (s *stubNotifier) SendOrderConfirmation(_ context.Context, to Recipient, _ domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, to)
	return s.err
}

type captureLogs struct {
	mu     sync.Mutex
	events []string
}

func (c *captureLogs) log(_ context.Context, event string, _ map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureLogs) has(event string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.events {
		if e == event {
			return true
		}
	}
	return false
}

var errBoom = errors.New("boom")

func int64Ptr(v int64) *int64 { return &v }

func intPtr(v int) *int { return &v }

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%03d", n)
	}
}
