package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrProductNotFound      = errors.New("product not found")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrStockConflict        = errors.New("stock changed concurrently")
	ErrOrderNotFound        = errors.New("order not found")
	ErrDuplicateOrderNumber = errors.New("duplicate order number")
	ErrStatusConflict       = errors.New("order status changed concurrently")
)

// ReservationError 描述单个商品的预占失败。
// Reason 是 ErrInsufficientStock, ErrStockConflict 或 ErrProductNotFound 之一。
type ReservationError struct {
	ProductID string
	Requested int
	Available int
	Reason    error
}

func (e *ReservationError) Error() string {
	return fmt.Sprintf("reserve %d of %s (available %d): %v", e.Requested, e.ProductID, e.Available, e.Reason)
}

func (e *ReservationError) Unwrap() error { return e.Reason }

// Stage 标识订单记录写入失败发生在哪一步
type Stage string

const (
	StageHeader Stage = "order_header"
	StageItems  Stage = "order_items"
)

// PersistenceError 表示订单头或订单行写入失败。
// CleanupErr 非空时说明删除已写入的订单头也失败了，库里留下了孤儿订单头。
type PersistenceError struct {
	Stage      Stage
	Err        error
	CleanupErr error
}

func (e *PersistenceError) Error() string {
	msg := fmt.Sprintf("persist %s: %v", e.Stage, e.Err)
	if e.CleanupErr != nil {
		msg += fmt.Sprintf(" (header cleanup failed: %v)", e.CleanupErr)
	}
	return msg
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// OrderFailedError 是返回给调用方的唯一结构化失败。
// 返回它之前，所有已预占的库存都已经恢复。
// ProductID 为空表示失败与具体商品无关 (例如持久化失败)。
type OrderFailedError struct {
	ProductID string
	Available int
	Cause     error
}

func (e *OrderFailedError) Error() string {
	if e.ProductID == "" {
		return fmt.Sprintf("order failed: %v", e.Cause)
	}
	return fmt.Sprintf("order failed on product %s (available %d): %v", e.ProductID, e.Available, e.Cause)
}

func (e *OrderFailedError) Unwrap() error { return e.Cause }

// RestoreFailure 记录一次失败的库存恢复
type RestoreFailure struct {
	ProductID string
	Quantity  int
	Err       error
}

// CompensationError 表示订单已被拒绝，但部分库存没能恢复。
// 库存处于少计状态，需要人工对账。它比 OrderFailedError 严重，调用方必须能区分两者。
type CompensationError struct {
	OrderNumber string
	Failed      []RestoreFailure
	Cause       *OrderFailedError
}

func (e *CompensationError) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		parts = append(parts, fmt.Sprintf("%s x%d: %v", f.ProductID, f.Quantity, f.Err))
	}
	return fmt.Sprintf("compensation failed for order %s, inventory needs reconciliation [%s]; original failure: %v",
		e.OrderNumber, strings.Join(parts, "; "), e.Cause)
}

func (e *CompensationError) Unwrap() error {
	if e.Cause == nil {
		return nil
	}
	return e.Cause
}
