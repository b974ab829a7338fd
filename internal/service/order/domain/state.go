// internal/service/order/domain/state.go
package domain

import "errors"

var ErrInvalidTransition = errors.New("invalid order status transition")

// Status 定义了订单的生命周期状态
type Status string

const (
	StatusPending    Status = "pending"    // 已创建，库存已预占，等待支付
	StatusPaid       Status = "paid"       // 已支付
	StatusProcessing Status = "processing" // 备货中
	StatusShipped    Status = "shipped"    // 已发货
	StatusDelivered  Status = "delivered"  // 已签收 (终态)
	StatusCancelled  Status = "cancelled"  // 已取消 (终态)
)

var nextStatus = map[Status]Status{
	StatusPending:    StatusPaid,
	StatusPaid:       StatusProcessing,
	StatusProcessing: StatusShipped,
	StatusShipped:    StatusDelivered,
}

// ParseStatus 把外部输入转换为 Status
func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	switch st {
	case StatusPending, StatusPaid, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return st, true
	}
	return "", false
}

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransitionTo 只允许沿主线前进一步，或者从任意非终态取消。
func (s Status) CanTransitionTo(next Status) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusCancelled {
		return true
	}
	return nextStatus[s] == next
}

// PaymentStatus 是订单的支付状态
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)
