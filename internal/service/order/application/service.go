// internal/service/order/application/service.go
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/domain/port"
)

var ErrSettingsUnavailable = errors.New("checkout settings unavailable")

// OrderCreator 是下单编排器 (saga.Orchestrator) 的入口
type OrderCreator interface {
	CreateOrder(ctx context.Context, req domain.CheckoutRequest, pricing domain.Pricing) (*domain.Order, error)
}

// CheckoutService 是结账用例的应用服务，由接口层调用。
type CheckoutService struct {
	creator           OrderCreator
	orderRepo         domain.OrderRepository
	settings          port.SettingsProvider
	tracer            trace.Tracer
	processingTimeout time.Duration
	now               func() time.Time
}

func NewCheckoutService(creator OrderCreator, orderRepo domain.OrderRepository, settings port.SettingsProvider, tracer trace.Tracer, processingTimeout time.Duration) *CheckoutService {
	return &CheckoutService{
		creator:           creator,
		orderRepo:         orderRepo,
		settings:          settings,
		tracer:            tracer,
		processingTimeout: processingTimeout,
		now:               time.Now,
	}
}

// PlaceOrder 查询当前定价设置，然后同步地创建订单。
// 错误原样返回 (domain.OrderFailedError / CompensationError 等)，由接口层决定如何展示。
func (s *CheckoutService) PlaceOrder(ctx context.Context, req *CreateOrderRequest) (*OrderResponse, error) {
	ctx, span := s.tracer.Start(ctx, "app.PlaceOrder")
	defer span.End()

	if s.processingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.processingTimeout)
		defer cancel()
	}

	pricing, err := s.settings.Pricing(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrSettingsUnavailable, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to load checkout settings")
		return nil, err
	}

	order, err := s.creator.CreateOrder(ctx, req.ToCheckoutRequest(), pricing)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Order creation failed")
		return nil, err
	}

	span.SetAttributes(attribute.String("order.number", order.OrderNumber))
	return ToOrderResponse(order), nil
}

// GetOrder 按订单号查询订单
func (s *CheckoutService) GetOrder(ctx context.Context, orderNumber string) (*OrderResponse, error) {
	ctx, span := s.tracer.Start(ctx, "app.GetOrder", trace.WithAttributes(attribute.String("order.number", orderNumber)))
	defer span.End()

	order, err := s.orderRepo.FindByNumber(ctx, orderNumber)
	if err != nil {
		if !errors.Is(err, domain.ErrOrderNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to load order")
		}
		return nil, err
	}
	return ToOrderResponse(order), nil
}

// UpdateOrderStatus 是后台管理的状态流转入口。
// 流转先在领域实体上校验，再以当前状态为条件写回，并发修改时返回 domain.ErrStatusConflict。
func (s *CheckoutService) UpdateOrderStatus(ctx context.Context, orderNumber, status string) (*OrderResponse, error) {
	ctx, span := s.tracer.Start(ctx, "app.UpdateOrderStatus", trace.WithAttributes(
		attribute.String("order.number", orderNumber),
		attribute.String("order.status.next", status),
	))
	defer span.End()

	next, ok := domain.ParseStatus(status)
	if !ok {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidTransition, status)
	}

	order, err := s.orderRepo.FindByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	from := order.Status
	if err := order.TransitionTo(next, s.now()); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := s.orderRepo.UpdateStatus(ctx, order.ID, from, next); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to update order status")
		return nil, err
	}

	logger.Ctx(ctx).Info().Msgf("[Order: %s] Status changed %s -> %s", orderNumber, from, next)
	return ToOrderResponse(order), nil
}
