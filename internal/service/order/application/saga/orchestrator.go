package saga

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

const (
	defaultCompensationTimeout = 5 * time.Second
	defaultReportTimeout       = 5 * time.Second
)

// Orchestrator 编排一次下单: 逐个预占库存，全部成功后写入订单记录，
// 任何一步失败都按补偿账本恢复已经扣减的库存。
type Orchestrator struct {
	reserver *StockReserver
	builder  *RecordBuilder
	reporter port.ReconciliationReporter
	tracer   trace.Tracer
	metrics  *Metrics

	retry               RetryPolicy
	compensationTimeout time.Duration
	reportTimeout       time.Duration
	now                 func() time.Time
	newOrderNumber      OrderNumberFunc
}

type Option func(*Orchestrator)

// WithRetryPolicy 开启冲突时的有界重试。默认不重试。
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *Orchestrator) { o.retry = p }
}

// WithCompensationTimeout 设置补偿 (恢复库存、删除订单头) 的超时时间。
// 补偿不受调用方取消的影响，只受这个超时限制。
func WithCompensationTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.compensationTimeout = d
		}
	}
}

// WithReportTimeout 设置上报对账事件的超时时间。上报有自己的期限，不与补偿共用。
func WithReportTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.reportTimeout = d
		}
	}
}

func WithReporter(r port.ReconciliationReporter) Option {
	return func(o *Orchestrator) { o.reporter = r }
}

func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithOrderNumbers(f OrderNumberFunc) Option {
	return func(o *Orchestrator) { o.newOrderNumber = f }
}

func NewOrchestrator(stock port.StockStore, orders domain.OrderRepository, tracer trace.Tracer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		tracer:              tracer,
		compensationTimeout: defaultCompensationTimeout,
		reportTimeout:       defaultReportTimeout,
		now:                 time.Now,
		newOrderNumber:      NewOrderNumber,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.reserver = NewStockReserver(stock, tracer, o.metrics, o.retry)
	o.builder = NewRecordBuilder(orders, tracer, o.newOrderNumber, o.compensationTimeout)
	return o
}

// CreateOrder 为请求中的每个订单行依次预占库存，全部成功后持久化订单。
//
// 失败时返回 *domain.OrderFailedError，此时所有已预占的库存都已恢复，库存与调用前一致。
// 如果恢复本身失败，返回 *domain.CompensationError (它包裹着原始的 OrderFailedError)，
// 库存处于少计状态，需要人工对账。请求本身不合法时返回包裹 domain.ErrInvalidOrder 的错误，
// 不会触碰库存。
func (o *Orchestrator) CreateOrder(ctx context.Context, req domain.CheckoutRequest, pricing domain.Pricing) (*domain.Order, error) {
	started := time.Now()
	ctx, span := o.tracer.Start(ctx, "saga.CreateOrder", trace.WithAttributes(
		attribute.Int("order.items", len(req.Items)),
		attribute.Int("order.units", req.Units()),
		attribute.String("order.payment_method", string(req.PaymentMethod)),
	))
	defer span.End()

	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid order")
		o.metrics.observeOrder("invalid", started)
		return nil, err
	}
	// 金额是纯计算，放在预占之前，定价失败时不需要任何补偿
	totals, err := domain.ComputeTotals(req.Items, pricing)
	if err != nil {
		err = fmt.Errorf("compute order totals: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "pricing failed")
		o.metrics.observeOrder("pricing_failed", started)
		return nil, err
	}

	orderNumber := o.newOrderNumber(o.now())
	span.SetAttributes(attribute.String("order.number", orderNumber))
	log := logger.Ctx(ctx)
	log.Info().Msgf("[Order: %s] Reserving stock for %d items", orderNumber, len(req.Items))

	pending := PendingOrder{Items: req.Items}
	for _, item := range pending.Items {
		if err := ctx.Err(); err != nil {
			return nil, o.abort(ctx, orderNumber, pending.Reservations, &domain.OrderFailedError{Cause: err}, started)
		}
		attempt, err := o.reserver.Reserve(ctx, item.ProductID, item.Quantity)
		if err != nil {
			return nil, o.abort(ctx, orderNumber, pending.Reservations, orderFailure(item.ProductID, err), started)
		}
		pending.Reservations = pending.Reservations.Append(attempt)
		log.Debug().Msgf("[Order: %s] Reserved %d of %s (%d -> %d)",
			orderNumber, attempt.Requested, attempt.ProductID, attempt.Observed, attempt.NewStock())
	}

	order := domain.NewOrder(req, orderNumber, totals, o.now())
	if err := o.builder.Persist(ctx, order); err != nil {
		return nil, o.abort(ctx, order.OrderNumber, pending.Reservations, &domain.OrderFailedError{Cause: err}, started)
	}

	span.SetAttributes(attribute.String("order.id", order.ID))
	span.AddEvent("Order created")
	log.Info().Msgf("[Order: %s] Created, total %s", order.OrderNumber, order.Total.StringFixed(2))
	o.metrics.observeOrder("committed", started)
	return order, nil
}

// abort 恢复账本中的全部预占并返回最终错误。
// 补偿在脱离调用方取消的 context 上运行，单个恢复失败不会中断其余的恢复。
func (o *Orchestrator) abort(ctx context.Context, orderNumber string, ledger Ledger, failure *domain.OrderFailedError, started time.Time) error {
	span := trace.SpanFromContext(ctx)
	span.RecordError(failure)

	compCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.compensationTimeout)
	defer cancel()

	failed := o.compensate(compCtx, ledger)
	if len(failed) == 0 {
		span.SetStatus(codes.Error, "order aborted, stock restored")
		logger.Ctx(ctx).Warn().Err(failure).Int("restored", len(ledger)).
			Msgf("[Order: %s] Aborted", orderNumber)
		o.metrics.observeOrder(failureResult(failure), started)
		return failure
	}

	cerr := &domain.CompensationError{OrderNumber: orderNumber, Failed: failed, Cause: failure}
	span.RecordError(cerr)
	span.SetStatus(codes.Error, "compensation failed, inventory inconsistent")
	logger.Ctx(ctx).Error().Bool("critical", true).Err(cerr).
		Msgf("[Order: %s] Stock compensation failed, inventory needs manual reconciliation", orderNumber)
	if o.reporter != nil {
		// 恢复失败往往是因为存储一直挂到补偿超时，此时 compCtx 已经过期
		reportCtx, cancelReport := context.WithTimeout(context.WithoutCancel(ctx), o.reportTimeout)
		defer cancelReport()
		if err := o.reporter.ReportCompensationFailure(reportCtx, cerr); err != nil {
			logger.Ctx(ctx).Error().Bool("critical", true).Err(err).
				Msgf("[Order: %s] Failed to report reconciliation event", orderNumber)
		}
	}
	o.metrics.observeOrder("compensation_failed", started)
	return cerr
}

// compensate 是对账本的一次折叠: 恢复每一条预占，收集失败项。顺序无关。
func (o *Orchestrator) compensate(ctx context.Context, ledger Ledger) []domain.RestoreFailure {
	var failed []domain.RestoreFailure
	for _, a := range ledger {
		if err := o.reserver.Restore(ctx, a); err != nil {
			failed = append(failed, domain.RestoreFailure{ProductID: a.ProductID, Quantity: a.Requested, Err: err})
		}
	}
	return failed
}

func orderFailure(productID string, err error) *domain.OrderFailedError {
	var rerr *domain.ReservationError
	if errors.As(err, &rerr) {
		return &domain.OrderFailedError{ProductID: rerr.ProductID, Available: rerr.Available, Cause: rerr}
	}
	return &domain.OrderFailedError{ProductID: productID, Cause: err}
}

func failureResult(f *domain.OrderFailedError) string {
	var perr *domain.PersistenceError
	switch {
	case errors.Is(f, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(f, domain.ErrStockConflict):
		return "conflict"
	case errors.Is(f, domain.ErrProductNotFound):
		return "not_found"
	case errors.As(f, &perr):
		return "persistence_failed"
	default:
		return "failed"
	}
}
