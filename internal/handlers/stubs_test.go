package handlers

import (
	"context"
	"net/http"
	"strings"

	domain "github.com/jara-commerce/api/internal/domain"
	"github.com/jara-commerce/api/internal/platform/auth"
	"github.com/jara-commerce/api/internal/repositories"
	"github.com/jara-commerce/api/internal/services"
)

type stubOrderService struct {
	createFn       func(context.Context, services.CreateOrderCommand) (services.OrderCreation, error)
	getFn          func(context.Context, services.Actor, string) (domain.Order, error)
	listFn         func(context.Context, services.Actor, domain.Pagination) (domain.CursorPage[domain.Order], error)
	updateStatusFn func(context.Context, services.UpdateOrderStatusCommand) (domain.Order, error)
	cancelFn       func(context.Context, services.CancelOrderCommand) (domain.Order, error)
	releaseFn      func(context.Context, int) (services.ReleaseHoldsResult, error)
}

func (s *stubOrderService) Create(ctx context.Context, cmd services.CreateOrderCommand) (services.OrderCreation, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.OrderCreation{}, nil
}

func (s *stubOrderService) Get(ctx context.Context, actor services.Actor, orderID string) (domain.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, actor, orderID)
	}
	return domain.Order{}, services.ErrOrderNotFound
}

func (s *stubOrderService) ListForUser(ctx context.Context, actor services.Actor, pager domain.Pagination) (domain.CursorPage[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, actor, pager)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.UpdateOrderStatusCommand) (domain.Order, error) {
	if s.updateStatusFn != nil {
		return s.updateStatusFn(ctx, cmd)
	}
	return domain.Order{}, nil
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return domain.Order{}, nil
}

func (s *stubOrderService) ReleaseExpiredHolds(ctx context.Context, limit int) (services.ReleaseHoldsResult, error) {
	if s.releaseFn != nil {
		return s.releaseFn(ctx, limit)
	}
	return services.ReleaseHoldsResult{}, nil
}

type stubPaymentService struct {
	methods    []domain.PaymentMethod
	initiateFn func(context.Context, services.InitiatePaymentCommand) (services.PaymentHandle, error)
	verifyFn   func(context.Context, services.VerifyPaymentCommand) (domain.Order, error)
	getFn      func(context.Context, services.Actor, string) (domain.Payment, error)
}

func (s *stubPaymentService) Methods() []domain.PaymentMethod { return s.methods }

func (s *stubPaymentService) Initiate(ctx context.Context, cmd services.InitiatePaymentCommand) (services.PaymentHandle, error) {
	if s.initiateFn != nil {
		return s.initiateFn(ctx, cmd)
	}
	return services.PaymentHandle{}, nil
}

func (s *stubPaymentService) Verify(ctx context.Context, cmd services.VerifyPaymentCommand) (domain.Order, error) {
	if s.verifyFn != nil {
		return s.verifyFn(ctx, cmd)
	}
	return domain.Order{}, nil
}

func (s *stubPaymentService) Get(ctx context.Context, actor services.Actor, paymentID string) (domain.Payment, error) {
	if s.getFn != nil {
		return s.getFn(ctx, actor, paymentID)
	}
	return domain.Payment{}, services.ErrPaymentNotFound
}

type stubReturnService struct {
	requestFn func(context.Context, services.RequestReturnCommand) (domain.Return, error)
	listFn    func(context.Context, services.Actor, repositories.ReturnListFilter) (domain.CursorPage[domain.Return], error)
	getFn     func(context.Context, services.Actor, string) (domain.Return, error)
	updateFn  func(context.Context, services.UpdateReturnStatusCommand) (domain.Return, error)
}

func (s *stubReturnService) Request(ctx context.Context, cmd services.RequestReturnCommand) (domain.Return, error) {
	if s.requestFn != nil {
		return s.requestFn(ctx, cmd)
	}
	return domain.Return{}, nil
}

func (s *stubReturnService) List(ctx context.Context, actor services.Actor, filter repositories.ReturnListFilter) (domain.CursorPage[domain.Return], error) {
	if s.listFn != nil {
		return s.listFn(ctx, actor, filter)
	}
	return domain.CursorPage[domain.Return]{}, nil
}

func (s *stubReturnService) Get(ctx context.Context, actor services.Actor, returnID string) (domain.Return, error) {
	if s.getFn != nil {
		return s.getFn(ctx, actor, returnID)
	}
	return domain.Return{}, services.ErrReturnNotFound
}

func (s *stubReturnService) UpdateStatus(ctx context.Context, cmd services.UpdateReturnStatusCommand) (domain.Return, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return domain.Return{}, nil
}

type stubPromotionService struct {
	validateFn func(context.Context, string, int64) (services.PromotionValidation, error)
	listFn     func(context.Context, services.Actor, domain.Pagination) (domain.CursorPage[domain.Promotion], error)
	getFn      func(context.Context, services.Actor, string) (domain.Promotion, error)
	createFn   func(context.Context, services.Actor, services.UpsertPromotionCommand) (domain.Promotion, error)
	updateFn   func(context.Context, services.Actor, string, services.UpsertPromotionCommand) (domain.Promotion, error)
	deleteFn   func(context.Context, services.Actor, string) error
}

func (s *stubPromotionService) Validate(ctx context.Context, code string, amount int64) (services.PromotionValidation, error) {
	if s.validateFn != nil {
		return s.validateFn(ctx, code, amount)
	}
	return services.PromotionValidation{}, services.ErrPromotionNotFound
}

func (s *stubPromotionService) ListPromotions(ctx context.Context, actor services.Actor, pager domain.Pagination) (domain.CursorPage[domain.Promotion], error) {
	if s.listFn != nil {
		return s.listFn(ctx, actor, pager)
	}
	return domain.CursorPage[domain.Promotion]{}, nil
}

func (s *stubPromotionService) GetPromotion(ctx context.Context, actor services.Actor, id string) (domain.Promotion, error) {
	if s.getFn != nil {
		return s.getFn(ctx, actor, id)
	}
	return domain.Promotion{}, services.ErrPromotionNotFound
}

func (s *stubPromotionService) CreatePromotion(ctx context.Context, actor services.Actor, cmd services.UpsertPromotionCommand) (domain.Promotion, error) {
	if s.createFn != nil {
		return s.createFn(ctx, actor, cmd)
	}
	return domain.Promotion{}, nil
}

func (s *stubPromotionService) UpdatePromotion(ctx context.Context, actor services.Actor, id string, cmd services.UpsertPromotionCommand) (domain.Promotion, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, actor, id, cmd)
	}
	return domain.Promotion{}, nil
}

func (s *stubPromotionService) DeletePromotion(ctx context.Context, actor services.Actor, id string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, actor, id)
	}
	return nil
}

type stubCatalogService struct {
	listFn   func(context.Context, services.Actor, services.ProductFilter) (domain.CursorPage[domain.Product], error)
	getFn    func(context.Context, services.Actor, string) (domain.Product, error)
	createFn func(context.Context, services.Actor, services.UpsertProductCommand) (domain.Product, error)
	updateFn func(context.Context, services.Actor, string, services.UpsertProductCommand) (domain.Product, error)
	deleteFn func(context.Context, services.Actor, string) error
	adjustFn func(context.Context, services.Actor, services.AdjustStockCommand) (domain.Product, error)
}

func (s *stubCatalogService) ListProducts(ctx context.Context, actor services.Actor, filter services.ProductFilter) (domain.CursorPage[domain.Product], error) {
	if s.listFn != nil {
		return s.listFn(ctx, actor, filter)
	}
	return domain.CursorPage[domain.Product]{}, nil
}

func (s *stubCatalogService) GetProduct(ctx context.Context, actor services.Actor, id string) (domain.Product, error) {
	if s.getFn != nil {
		return s.getFn(ctx, actor, id)
	}
	return domain.Product{}, services.ErrProductNotFound
}

func (s *stubCatalogService) CreateProduct(ctx context.Context, actor services.Actor, cmd services.UpsertProductCommand) (domain.Product, error) {
	if s.createFn != nil {
		return s.createFn(ctx, actor, cmd)
	}
	return domain.Product{}, nil
}

func (s *stubCatalogService) UpdateProduct(ctx context.Context, actor services.Actor, id string, cmd services.UpsertProductCommand) (domain.Product, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, actor, id, cmd)
	}
	return domain.Product{}, nil
}

func (s *stubCatalogService) DeleteProduct(ctx context.Context, actor services.Actor, id string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, actor, id)
	}
	return nil
}

func (s *stubCatalogService) AdjustStock(ctx context.Context, actor services.Actor, cmd services.AdjustStockCommand) (domain.Product, error) {
	if s.adjustFn != nil {
		return s.adjustFn(ctx, actor, cmd)
	}
	return domain.Product{}, nil
}

type stubEstimator struct {
	estimateFn func(context.Context, string, int64) (services.ShippingEstimate, error)
}

func (s *stubEstimator) Estimate(ctx context.Context, province string, weight int64) (services.ShippingEstimate, error) {
	return s.estimateFn(ctx, province, weight)
}

type stubZoneService struct {
	zones    []domain.ShippingZone
	upsertFn func(context.Context, services.Actor, services.UpsertShippingZoneCommand) (domain.ShippingZone, error)
	deleteFn func(context.Context, services.Actor, string) error
}

func (s *stubZoneService) ListZones(context.Context, services.Actor) ([]domain.ShippingZone, error) {
	return s.zones, nil
}

func (s *stubZoneService) UpsertZone(ctx context.Context, actor services.Actor, cmd services.UpsertShippingZoneCommand) (domain.ShippingZone, error) {
	if s.upsertFn != nil {
		return s.upsertFn(ctx, actor, cmd)
	}
	return domain.ShippingZone{}, nil
}

func (s *stubZoneService) DeleteZone(ctx context.Context, actor services.Actor, zoneID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, actor, zoneID)
	}
	return nil
}

var (
	_ services.OrderService        = (*stubOrderService)(nil)
	_ services.PaymentService      = (*stubPaymentService)(nil)
	_ services.ReturnService       = (*stubReturnService)(nil)
	_ services.PromotionService    = (*stubPromotionService)(nil)
	_ services.CatalogService      = (*stubCatalogService)(nil)
	_ services.ShippingEstimator   = (*stubEstimator)(nil)
	_ services.ShippingZoneService = (*stubZoneService)(nil)
)

func withIdentity(req *http.Request, uid string, roles ...domain.Role) *http.Request {
	ctx := auth.WithIdentity(req.Context(), &auth.Identity{UID: uid, Roles: roles})
	return req.WithContext(ctx)
}

func jsonBody(raw string) *strings.Reader {
	return strings.NewReader(raw)
}
