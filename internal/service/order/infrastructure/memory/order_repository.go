package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"storefront/internal/service/order/domain"
)

// OrderRepository 是进程内的订单仓储。订单头和订单行分开保存，
// 与数据库实现一样是两次独立的写入。
type OrderRepository struct {
	mu       sync.RWMutex
	orders   map[string]*domain.Order // key: order id
	byNumber map[string]string
	items    map[string][]domain.LineItem
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders:   make(map[string]*domain.Order),
		byNumber: make(map[string]string),
		items:    make(map[string][]domain.LineItem),
	}
}

func (r *OrderRepository) InsertOrder(ctx context.Context, order *domain.Order) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.byNumber[order.OrderNumber]; taken {
		return "", domain.ErrDuplicateOrderNumber
	}
	id := uuid.NewString()
	header := *order
	header.ID = id
	header.Items = nil
	r.orders[id] = &header
	r.byNumber[order.OrderNumber] = id
	return id, nil
}

func (r *OrderRepository) InsertItems(ctx context.Context, orderID string, items []domain.LineItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[orderID]; !ok {
		return domain.ErrOrderNotFound
	}
	r.items[orderID] = append(r.items[orderID], items...)
	return nil
}

func (r *OrderRepository) DeleteOrder(ctx context.Context, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return nil
	}
	delete(r.byNumber, order.OrderNumber)
	delete(r.orders, orderID)
	delete(r.items, orderID)
	return nil
}

func (r *OrderRepository) FindByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byNumber[orderNumber]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	order := *r.orders[id]
	order.Items = append([]domain.LineItem(nil), r.items[id]...)
	return &order, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, from, to domain.Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if order.Status != from {
		return domain.ErrStatusConflict
	}
	order.Status = to
	if to == domain.StatusPaid {
		order.PaymentStatus = domain.PaymentPaid
	}
	order.UpdatedAt = time.Now()
	return nil
}

// Count 返回订单头的数量
func (r *OrderRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.orders)
}

// ItemCount 返回所有订单行的数量
func (r *OrderRepository) ItemCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, items := range r.items {
		n += len(items)
	}
	return n
}
