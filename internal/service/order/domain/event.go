// internal/service/order/domain/event.go
package domain

import "time"

// ReconciliationRequired 在补偿失败时发布，提示运维人工修正库存。
type ReconciliationRequired struct {
	OrderNumber string            `json:"orderNumber"`
	Reason      string            `json:"reason"`
	Items       []UnrestoredStock `json:"items"`
	OccurredAt  time.Time         `json:"occurredAt"`
	TraceID     string            `json:"traceId,omitempty"`
}

// UnrestoredStock 是一条没能恢复的库存
type UnrestoredStock struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Error     string `json:"error"`
}

// NewReconciliationRequired 从补偿错误构造事件
func NewReconciliationRequired(err *CompensationError, at time.Time) ReconciliationRequired {
	items := make([]UnrestoredStock, 0, len(err.Failed))
	for _, f := range err.Failed {
		items = append(items, UnrestoredStock{ProductID: f.ProductID, Quantity: f.Quantity, Error: f.Err.Error()})
	}
	reason := ""
	if err.Cause != nil {
		reason = err.Cause.Error()
	}
	return ReconciliationRequired{
		OrderNumber: err.OrderNumber,
		Reason:      reason,
		Items:       items,
		OccurredAt:  at,
	}
}
