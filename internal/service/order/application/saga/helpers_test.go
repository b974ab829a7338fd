package saga

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/infrastructure/memory"
)

var errInjected = errors.New("injected failure")

var testTracer = noop.NewTracerProvider().Tracer("saga-test")

func seededStore(t *testing.T, stock map[string]int) *memory.StockStore {
	t.Helper()
	s := memory.NewStockStore()
	for id, qty := range stock {
		require.NoError(t, s.SeedStock(context.Background(), id, qty))
	}
	return s
}

func stockOf(t *testing.T, s interface {
	ReadStock(ctx context.Context, productID string) (int, error)
}, productID string) int {
	t.Helper()
	qty, err := s.ReadStock(context.Background(), productID)
	require.NoError(t, err)
	return qty
}

func item(productID string, qty int) domain.LineItem {
	return domain.LineItem{ProductID: productID, Quantity: qty, UnitPrice: decimal.RequireFromString("10.00")}
}

func checkout(items ...domain.LineItem) domain.CheckoutRequest {
	return domain.CheckoutRequest{
		Customer:        domain.Customer{Email: "ada@example.com", Name: "Ada Lovelace", Phone: "+44 20 0000 0000"},
		ShippingAddress: domain.ShippingAddress{Street: "12 Analytical St", City: "London", PostalCode: "N1 9GU", Country: "UK"},
		PaymentMethod:   domain.PaymentCard,
		Items:           items,
	}
}

func noPricing() domain.Pricing {
	return domain.Pricing{TaxRate: decimal.Zero, Shipping: domain.FlatShipping(decimal.Zero)}
}

func fixedClock() time.Time {
	return time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)
}

// faultyStock 包装内存库存，按商品注入读、写和恢复失败，并可以在读或条件写之前执行钩子
type faultyStock struct {
	*memory.StockStore

	mu         sync.Mutex
	readErr    map[string]error
	casErr     map[string]error
	restoreErr map[string]error
	hang       map[string]bool // 恢复时一直阻塞到 ctx 结束
	beforeRead func(productID string)
	beforeCAS  func(ctx context.Context, productID string)
	restores   []string
}

func newFaultyStock(inner *memory.StockStore) *faultyStock {
	return &faultyStock{
		StockStore: inner,
		readErr:    make(map[string]error),
		casErr:     make(map[string]error),
		restoreErr: make(map[string]error),
		hang:       make(map[string]bool),
	}
}

func (f *faultyStock) ReadStock(ctx context.Context, productID string) (int, error) {
	if f.beforeRead != nil {
		f.beforeRead(productID)
	}
	f.mu.Lock()
	err := f.readErr[productID]
	f.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return f.StockStore.ReadStock(ctx, productID)
}

func (f *faultyStock) CompareAndSwapStock(ctx context.Context, productID string, expected, next int) (bool, error) {
	if f.beforeCAS != nil {
		f.beforeCAS(ctx, productID)
	}
	f.mu.Lock()
	err := f.casErr[productID]
	f.mu.Unlock()
	if err != nil {
		return false, err
	}
	return f.StockStore.CompareAndSwapStock(ctx, productID, expected, next)
}

func (f *faultyStock) RestoreStock(ctx context.Context, productID string, quantity int) error {
	f.mu.Lock()
	f.restores = append(f.restores, productID)
	err := f.restoreErr[productID]
	hang := f.hang[productID]
	f.mu.Unlock()
	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	if err != nil {
		return err
	}
	return f.StockStore.RestoreStock(ctx, productID, quantity)
}

// faultyOrders 包装内存订单仓储，注入写入和删除失败
type faultyOrders struct {
	*memory.OrderRepository

	insertErrs []error // 依次用于每次 InsertOrder 调用，用完后正常写入
	itemsErr   error
	deleteErr  error
	inserts    int
}

func (f *faultyOrders) InsertOrder(ctx context.Context, order *domain.Order) (string, error) {
	f.inserts++
	if len(f.insertErrs) > 0 {
		err := f.insertErrs[0]
		f.insertErrs = f.insertErrs[1:]
		return "", err
	}
	return f.OrderRepository.InsertOrder(ctx, order)
}

func (f *faultyOrders) InsertItems(ctx context.Context, orderID string, items []domain.LineItem) error {
	if f.itemsErr != nil {
		return f.itemsErr
	}
	return f.OrderRepository.InsertItems(ctx, orderID, items)
}

func (f *faultyOrders) DeleteOrder(ctx context.Context, orderID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.OrderRepository.DeleteOrder(ctx, orderID)
}

type recordingReporter struct {
	mu      sync.Mutex
	reports []*domain.CompensationError
	ctxErrs []error // 每次上报时 ctx.Err() 的值
}

func (r *recordingReporter) ReportCompensationFailure(ctx context.Context, err *domain.CompensationError) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, err)
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
	return ctx.Err()
}
