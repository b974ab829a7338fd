package adapter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
	"storefront/internal/service/order/domain"
)

// MessageReader 是 *kafka.Reader 中被用到的部分
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// ReconciliationHandler 处理一条需要人工对账的事件
type ReconciliationHandler interface {
	HandleReconciliation(ctx context.Context, event domain.ReconciliationRequired) error
}

// ReconciliationConsumer 是一个驱动适配器: 监听对账主题，把事件交给 handler。
// 处理完 (或确认无法处理) 之后才提交 offset，所以同一事件可能被投递多次。
type ReconciliationConsumer struct {
	reader     MessageReader
	handler    ReconciliationHandler
	tracer     trace.Tracer
	retryDelay time.Duration
}

func NewReconciliationConsumer(reader MessageReader, handler ReconciliationHandler, tracer trace.Tracer) *ReconciliationConsumer {
	return &ReconciliationConsumer{reader: reader, handler: handler, tracer: tracer, retryDelay: time.Second}
}

// Run 阻塞消费直到 ctx 被取消
func (c *ReconciliationConsumer) Run(ctx context.Context) error {
	logger.Ctx(ctx).Info().Msg("Reconciliation consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Ctx(ctx).Info().Msg("Reconciliation consumer shutting down")
				return nil
			}
			logger.Ctx(ctx).Error().Err(err).Msg("Could not fetch reconciliation message, retrying")
			if !sleepCtx(ctx, c.retryDelay) {
				return nil
			}
			continue
		}

		if err := c.process(ctx, msg); err != nil {
			// handler 失败时不提交，下一次 Fetch 会重新拿到这条消息
			if !sleepCtx(ctx, c.retryDelay) {
				return nil
			}
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			logger.Ctx(ctx).Error().Err(err).Int64("offset", msg.Offset).Msg("Failed to commit reconciliation message")
		}
	}
}

// process 返回错误表示应该重试; 无法解析的消息记录日志后跳过。
func (c *ReconciliationConsumer) process(parent context.Context, msg kafka.Message) error {
	ctx := mq.ExtractTraceContext(parent, msg.Headers)
	ctx, span := c.tracer.Start(ctx, "reconciliation.Consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
			attribute.Int("messaging.kafka.partition", msg.Partition),
			attribute.Int64("messaging.kafka.message.offset", msg.Offset),
			attribute.String("messaging.kafka.message.key", string(msg.Key)),
		))
	defer span.End()

	var event domain.ReconciliationRequired
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed event")
		logger.Ctx(ctx).Error().Err(err).Str("key", string(msg.Key)).Msg("Skipping malformed reconciliation event")
		return nil
	}

	if err := c.handler.HandleReconciliation(ctx, event); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler failed")
		logger.Ctx(ctx).Error().Err(err).Msgf("[Order: %s] Failed to handle reconciliation event", event.OrderNumber)
		return err
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
