package saga

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/domain"
)

const maxOrderNumberAttempts = 3

// RecordBuilder 把订单头和订单行写入订单仓储。两次写入之间没有事务，
// 订单行写入失败时删除已经写入的订单头，保证持久化的订单总有对应的订单行。
type RecordBuilder struct {
	repo           domain.OrderRepository
	tracer         trace.Tracer
	newOrderNumber OrderNumberFunc
	cleanupTimeout time.Duration
}

func NewRecordBuilder(repo domain.OrderRepository, tracer trace.Tracer, newOrderNumber OrderNumberFunc, cleanupTimeout time.Duration) *RecordBuilder {
	if newOrderNumber == nil {
		newOrderNumber = NewOrderNumber
	}
	return &RecordBuilder{repo: repo, tracer: tracer, newOrderNumber: newOrderNumber, cleanupTimeout: cleanupTimeout}
}

// Persist 写入订单头 (pending/pending) 和订单行，成功后 order.ID 被赋值。
// 失败时返回 *domain.PersistenceError，此时库里不会留下这个订单，
// 除非清理本身也失败 (见 PersistenceError.CleanupErr)。
// 订单号冲突时会重新生成订单号，order.OrderNumber 可能因此改变。
func (b *RecordBuilder) Persist(ctx context.Context, order *domain.Order) error {
	ctx, span := b.tracer.Start(ctx, "saga.Persist", trace.WithAttributes(
		attribute.String("order.number", order.OrderNumber),
		attribute.Int("order.items", len(order.Items)),
	))
	defer span.End()

	order.Status = domain.StatusPending
	order.PaymentStatus = domain.PaymentPending

	id, err := b.insertHeader(ctx, order)
	if err != nil {
		perr := &domain.PersistenceError{Stage: domain.StageHeader, Err: err}
		span.RecordError(perr)
		span.SetStatus(codes.Error, "Order header write failed")
		return perr
	}
	span.AddEvent("Order header written", trace.WithAttributes(attribute.String("order.id", id)))

	if err := b.repo.InsertItems(ctx, id, order.Items); err != nil {
		perr := &domain.PersistenceError{Stage: domain.StageItems, Err: err}
		if cerr := b.deleteHeader(ctx, id); cerr != nil {
			perr.CleanupErr = cerr
			logger.Ctx(ctx).Error().Bool("critical", true).Err(cerr).
				Str("order_id", id).Str("order_number", order.OrderNumber).
				Msg("Failed to delete order header after item write failure, orphan header left behind")
		}
		span.RecordError(perr)
		span.SetStatus(codes.Error, "Order items write failed")
		return perr
	}

	order.ID = id
	span.AddEvent("Order items written")
	return nil
}

func (b *RecordBuilder) insertHeader(ctx context.Context, order *domain.Order) (string, error) {
	var err error
	for attempt := 1; attempt <= maxOrderNumberAttempts; attempt++ {
		var id string
		id, err = b.repo.InsertOrder(ctx, order)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, domain.ErrDuplicateOrderNumber) {
			return "", err
		}
		logger.Ctx(ctx).Warn().Str("order_number", order.OrderNumber).Int("attempt", attempt).
			Msg("Order number already taken, generating a new one")
		order.OrderNumber = b.newOrderNumber(order.CreatedAt)
	}
	return "", err
}

// deleteHeader 在脱离调用方取消的 context 上执行清理
func (b *RecordBuilder) deleteHeader(ctx context.Context, orderID string) error {
	cleanupCtx := context.WithoutCancel(ctx)
	if b.cleanupTimeout > 0 {
		var cancel context.CancelFunc
		cleanupCtx, cancel = context.WithTimeout(cleanupCtx, b.cleanupTimeout)
		defer cancel()
	}
	return b.repo.DeleteOrder(cleanupCtx, orderID)
}
