// internal/service/order/domain/repository.go
package domain

import "context"

// OrderRepository 定义了订单记录的持久化接口。
// 它位于领域层，但由基础设施层实现。底层存储不提供跨行事务，
// 所以订单头和订单行是两次独立的写入。
type OrderRepository interface {
	// InsertOrder 写入订单头并返回其 ID。订单号重复时返回 ErrDuplicateOrderNumber。
	InsertOrder(ctx context.Context, order *Order) (string, error)

	// InsertItems 写入引用订单头的订单行。
	InsertItems(ctx context.Context, orderID string, items []LineItem) error

	// DeleteOrder 删除订单头 (以及可能已写入的订单行)，用于失败清理。
	DeleteOrder(ctx context.Context, orderID string) error

	// FindByNumber 根据订单号查找订单及其订单行。
	FindByNumber(ctx context.Context, orderNumber string) (*Order, error)

	// UpdateStatus 仅当当前状态仍为 from 时把状态改为 to，否则返回 ErrStatusConflict。
	UpdateStatus(ctx context.Context, orderID string, from, to Status) error
}
