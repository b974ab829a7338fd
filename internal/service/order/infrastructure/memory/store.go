// Package memory 提供进程内的库存和订单存储，用于本地运行和测试。
// 它只暴露与远端存储相同的单行原语，不提供跨行事务。
package memory

import (
	"context"
	"sync"

	"storefront/internal/service/order/domain"
)

// StockStore 是进程内的库存计数器
type StockStore struct {
	mu    sync.Mutex
	stock map[string]int
}

func NewStockStore() *StockStore {
	return &StockStore{stock: make(map[string]int)}
}

func (s *StockStore) ReadStock(ctx context.Context, productID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	qty, ok := s.stock[productID]
	if !ok {
		return 0, domain.ErrProductNotFound
	}
	return qty, nil
}

func (s *StockStore) CompareAndSwapStock(ctx context.Context, productID string, expected, next int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.stock[productID]
	if !ok {
		return false, domain.ErrProductNotFound
	}
	if current != expected || next < 0 {
		return false, nil
	}
	s.stock[productID] = next
	return true, nil
}

func (s *StockStore) RestoreStock(ctx context.Context, productID string, quantity int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stock[productID]; !ok {
		return domain.ErrProductNotFound
	}
	s.stock[productID] += quantity
	return nil
}

func (s *StockStore) SeedStock(ctx context.Context, productID string, quantity int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.stock[productID] = quantity
	s.mu.Unlock()
	return nil
}
