package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/mq"
	"storefront/internal/service/order/domain"
)

// ReconciliationKafkaAdapter 实现了 port.ReconciliationReporter，
// 把补偿失败作为 ReconciliationRequired 事件发到 kafka，消息 key 为订单号。
type ReconciliationKafkaAdapter struct {
	writer mq.Writer
	now    func() time.Time
}

func NewReconciliationKafkaAdapter(writer mq.Writer) *ReconciliationKafkaAdapter {
	return &ReconciliationKafkaAdapter{writer: writer, now: time.Now}
}

func (a *ReconciliationKafkaAdapter) ReportCompensationFailure(ctx context.Context, cerr *domain.CompensationError) error {
	event := domain.NewReconciliationRequired(cerr, a.now())
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		event.TraceID = sc.TraceID().String()
	}
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal reconciliation event: %w", err)
	}
	// mq.ProduceMessage 会把追踪上下文注入消息头
	if err := mq.ProduceMessage(ctx, a.writer, []byte(cerr.OrderNumber), eventBytes); err != nil {
		return fmt.Errorf("failed to publish reconciliation event for order %s: %w", cerr.OrderNumber, err)
	}
	return nil
}
