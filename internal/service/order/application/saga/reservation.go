package saga

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/domain/port"
)

// RetryPolicy 控制预占遇到并发冲突时的重试。
// 零值表示不重试: 冲突直接作为失败返回。
type RetryPolicy struct {
	MaxConflictRetries int
	BaseBackoff        time.Duration
}

// backoff 返回第 n 次重试前的等待时间: 指数退避加随机抖动
func (p RetryPolicy) backoff(n int) time.Duration {
	if p.BaseBackoff <= 0 {
		return 0
	}
	exp := p.BaseBackoff * time.Duration(1<<(n-1))
	return exp + time.Duration(rand.Int64N(int64(exp)/2+1))
}

func (p RetryPolicy) wait(ctx context.Context, n int) error {
	d := p.backoff(n)
	if d == 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// StockReserver 是库存预占引擎: 读库存，再用比较并交换写回扣减后的值。
// 条件写是唯一的并发控制手段，不在内存中缓存任何库存状态。
type StockReserver struct {
	store   port.StockStore
	tracer  trace.Tracer
	metrics *Metrics
	retry   RetryPolicy
}

func NewStockReserver(store port.StockStore, tracer trace.Tracer, metrics *Metrics, retry RetryPolicy) *StockReserver {
	return &StockReserver{store: store, tracer: tracer, metrics: metrics, retry: retry}
}

// Reserve 为 productID 预占 quantity 件库存。
// 失败时返回 *domain.ReservationError (库存不足、冲突或商品不存在) 或存储层错误，
// 返回的 Attempt 总是带着最后一次尝试的结果。
func (r *StockReserver) Reserve(ctx context.Context, productID string, quantity int) (Attempt, error) {
	ctx, span := r.tracer.Start(ctx, "saga.Reserve", trace.WithAttributes(
		attribute.String("product.id", productID),
		attribute.Int("item.quantity", quantity),
	))
	defer span.End()

	attempt := Attempt{ProductID: productID, Requested: quantity}
	if quantity <= 0 {
		err := fmt.Errorf("%w: quantity %d for %s", domain.ErrInvalidOrder, quantity, productID)
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid quantity")
		return attempt, err
	}

	for {
		err := r.try(ctx, &attempt)
		r.metrics.observeReservation(attempt.Outcome)

		if attempt.Outcome == OutcomeConflict && attempt.Retries < r.retry.MaxConflictRetries {
			attempt.Retries++
			span.AddEvent("stock conflict, retrying", trace.WithAttributes(attribute.Int("retry", attempt.Retries)))
			logger.Ctx(ctx).Debug().Str("product", productID).Int("retry", attempt.Retries).Msg("Stock conflict, retrying reservation")
			if waitErr := r.retry.wait(ctx, attempt.Retries); waitErr != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "retry aborted")
				return attempt, err
			}
			continue
		}

		span.SetAttributes(
			attribute.String("reservation.outcome", attempt.Outcome.String()),
			attribute.Int("stock.observed", attempt.Observed),
			attribute.Int("reservation.retries", attempt.Retries),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Inventory reservation failed")
			return attempt, err
		}
		span.AddEvent("Stock reserved")
		return attempt, nil
	}
}

// try 执行一次 读 + 条件写。每次调用最多一次读、一次写。
func (r *StockReserver) try(ctx context.Context, a *Attempt) error {
	a.Outcome = 0

	available, err := r.store.ReadStock(ctx, a.ProductID)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			a.Outcome = OutcomeNotFound
			return &domain.ReservationError{ProductID: a.ProductID, Requested: a.Requested, Reason: domain.ErrProductNotFound}
		}
		return fmt.Errorf("read stock of %s: %w", a.ProductID, err)
	}
	a.Observed = available

	if available < a.Requested {
		a.Outcome = OutcomeInsufficientStock
		return &domain.ReservationError{
			ProductID: a.ProductID,
			Requested: a.Requested,
			Available: available,
			Reason:    domain.ErrInsufficientStock,
		}
	}

	swapped, err := r.store.CompareAndSwapStock(ctx, a.ProductID, available, available-a.Requested)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			a.Outcome = OutcomeNotFound
			return &domain.ReservationError{ProductID: a.ProductID, Requested: a.Requested, Reason: domain.ErrProductNotFound}
		}
		// 写入结果未知: 可能已经生效但确认丢失。账本不记录它。
		logger.Ctx(ctx).Error().Err(err).Str("product", a.ProductID).Int("expected", available).
			Msg("Conditional stock write failed with unknown outcome")
		return fmt.Errorf("conditional write stock of %s: %w", a.ProductID, err)
	}
	if !swapped {
		a.Outcome = OutcomeConflict
		return &domain.ReservationError{
			ProductID: a.ProductID,
			Requested: a.Requested,
			Available: available,
			Reason:    domain.ErrStockConflict,
		}
	}

	a.Outcome = OutcomeSuccess
	return nil
}

// Restore 是 Reserve 的补偿操作: 无条件加回之前成功扣减的数量。
// 只能对本进程成功预占过的 Attempt 调用。
func (r *StockReserver) Restore(ctx context.Context, a Attempt) error {
	ctx, span := r.tracer.Start(ctx, "saga.compensation.RestoreStock", trace.WithAttributes(
		attribute.String("product.id", a.ProductID),
		attribute.Int("item.quantity", a.Requested),
	))
	defer span.End()

	if a.Outcome != OutcomeSuccess {
		return fmt.Errorf("refusing to restore %s: reservation outcome was %s", a.ProductID, a.Outcome)
	}
	if err := r.store.RestoreStock(ctx, a.ProductID, a.Requested); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Stock restore failed")
		r.metrics.observeCompensation(false)
		return fmt.Errorf("restore %d of %s: %w", a.Requested, a.ProductID, err)
	}
	r.metrics.observeCompensation(true)
	return nil
}
