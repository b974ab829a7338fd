package adapter

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/domain"
)

// ReconciliationLogAdapter 在没有配置 kafka 时使用，只把事件写进日志
type ReconciliationLogAdapter struct{}

func (ReconciliationLogAdapter) ReportCompensationFailure(ctx context.Context, cerr *domain.CompensationError) error {
	event := domain.NewReconciliationRequired(cerr, time.Now())
	items := zerolog.Arr()
	for _, item := range event.Items {
		items.Dict(zerolog.Dict().Str("product", item.ProductID).Int("quantity", item.Quantity).Str("error", item.Error))
	}
	logger.Ctx(ctx).Error().Bool("critical", true).
		Str("order_number", event.OrderNumber).
		Str("reason", event.Reason).
		Array("unrestored", items).
		Msg("Inventory reconciliation required")
	return nil
}
