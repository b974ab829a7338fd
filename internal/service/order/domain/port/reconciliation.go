package port

import (
	"context"

	"storefront/internal/service/order/domain"
)

// ReconciliationReporter 是补偿失败告警的出站端口。
type ReconciliationReporter interface {
	// ReportCompensationFailure 上报一次没能完全恢复的库存补偿，需要人工对账。
	ReportCompensationFailure(ctx context.Context, err *domain.CompensationError) error
}
