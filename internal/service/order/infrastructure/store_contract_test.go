package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/domain/port"
)

type seedableStock interface {
	port.StockStore
	port.StockSeeder
}

func sampleOrder(number string) *domain.Order {
	now := time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)
	return &domain.Order{
		OrderNumber:     number,
		Customer:        domain.Customer{Email: "ada@example.com", Name: "Ada", Phone: "555-0100"},
		ShippingAddress: domain.ShippingAddress{Street: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"},
		PaymentMethod:   domain.PaymentCard,
		Items: []domain.LineItem{
			{ProductID: "A", Quantity: 2, UnitPrice: decimal.RequireFromString("12.99")},
			{ProductID: "B", Quantity: 1, UnitPrice: decimal.RequireFromString("19.50")},
		},
		Subtotal:      decimal.RequireFromString("45.48"),
		Tax:           decimal.RequireFromString("3.75"),
		ShippingCost:  decimal.RequireFromString("4.99"),
		Total:         decimal.RequireFromString("54.22"),
		Status:        domain.StatusPending,
		PaymentStatus: domain.PaymentPending,
		Notes:         "leave at door",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// testStockContract 是所有库存存储实现共同遵守的行为
func testStockContract(t *testing.T, store seedableStock) {
	ctx := context.Background()

	t.Run("conditional write", func(t *testing.T) {
		require.NoError(t, store.SeedStock(ctx, "A", 10))

		ok, err := store.CompareAndSwapStock(ctx, "A", 9, 5)
		require.NoError(t, err)
		assert.False(t, ok, "stale expected value")

		ok, err = store.CompareAndSwapStock(ctx, "A", 10, -1)
		require.NoError(t, err)
		assert.False(t, ok, "negative stock")

		ok, err = store.CompareAndSwapStock(ctx, "A", 10, 7)
		require.NoError(t, err)
		assert.True(t, ok)

		qty, err := store.ReadStock(ctx, "A")
		require.NoError(t, err)
		assert.Equal(t, 7, qty)
	})

	t.Run("restore", func(t *testing.T) {
		require.NoError(t, store.SeedStock(ctx, "R", 0))
		require.NoError(t, store.RestoreStock(ctx, "R", 3))
		require.NoError(t, store.RestoreStock(ctx, "R", 2))

		qty, err := store.ReadStock(ctx, "R")
		require.NoError(t, err)
		assert.Equal(t, 5, qty)
	})

	t.Run("unknown product", func(t *testing.T) {
		_, err := store.ReadStock(ctx, "ghost")
		assert.ErrorIs(t, err, domain.ErrProductNotFound)
		_, err = store.CompareAndSwapStock(ctx, "ghost", 0, 0)
		assert.ErrorIs(t, err, domain.ErrProductNotFound)
		assert.ErrorIs(t, store.RestoreStock(ctx, "ghost", 1), domain.ErrProductNotFound)
	})

	t.Run("seed overwrites", func(t *testing.T) {
		require.NoError(t, store.SeedStock(ctx, "S", 4))
		require.NoError(t, store.SeedStock(ctx, "S", 9))
		qty, err := store.ReadStock(ctx, "S")
		require.NoError(t, err)
		assert.Equal(t, 9, qty)
	})
}

// testOrderContract 是所有订单仓储实现共同遵守的行为
func testOrderContract(t *testing.T, repo domain.OrderRepository) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		order := sampleOrder("ORD-ROUNDTRIP")
		id, err := repo.InsertOrder(ctx, order)
		require.NoError(t, err)
		require.NotEmpty(t, id)
		require.NoError(t, repo.InsertItems(ctx, id, order.Items))

		found, err := repo.FindByNumber(ctx, order.OrderNumber)
		require.NoError(t, err)
		assert.Equal(t, id, found.ID)
		assert.Equal(t, order.Customer, found.Customer)
		assert.Equal(t, order.ShippingAddress, found.ShippingAddress)
		assert.Equal(t, order.Notes, found.Notes)
		assert.Equal(t, domain.StatusPending, found.Status)
		assert.True(t, order.Total.Equal(found.Total), "total %s", found.Total)
		assert.True(t, order.Tax.Equal(found.Tax), "tax %s", found.Tax)
		require.Len(t, found.Items, 2)
		assert.Equal(t, "A", found.Items[0].ProductID)
		assert.Equal(t, 2, found.Items[0].Quantity)
		assert.True(t, found.Items[0].UnitPrice.Equal(decimal.RequireFromString("12.99")))
		assert.Equal(t, "B", found.Items[1].ProductID)
	})

	t.Run("duplicate order number", func(t *testing.T) {
		_, err := repo.InsertOrder(ctx, sampleOrder("ORD-DUP"))
		require.NoError(t, err)
		_, err = repo.InsertOrder(ctx, sampleOrder("ORD-DUP"))
		assert.ErrorIs(t, err, domain.ErrDuplicateOrderNumber)
	})

	t.Run("delete removes header and items", func(t *testing.T) {
		order := sampleOrder("ORD-DELETE")
		id, err := repo.InsertOrder(ctx, order)
		require.NoError(t, err)
		require.NoError(t, repo.InsertItems(ctx, id, order.Items))

		require.NoError(t, repo.DeleteOrder(ctx, id))
		require.NoError(t, repo.DeleteOrder(ctx, id), "delete is idempotent")
		_, err = repo.FindByNumber(ctx, order.OrderNumber)
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)

		_, err = repo.InsertOrder(ctx, order)
		assert.NoError(t, err, "order number is free again after delete")
	})

	t.Run("conditional status update", func(t *testing.T) {
		id, err := repo.InsertOrder(ctx, sampleOrder("ORD-STATUS"))
		require.NoError(t, err)

		require.NoError(t, repo.UpdateStatus(ctx, id, domain.StatusPending, domain.StatusPaid))
		assert.ErrorIs(t, repo.UpdateStatus(ctx, id, domain.StatusPending, domain.StatusCancelled), domain.ErrStatusConflict)
		assert.ErrorIs(t, repo.UpdateStatus(ctx, uuid.NewString(), domain.StatusPending, domain.StatusPaid), domain.ErrOrderNotFound)

		found, err := repo.FindByNumber(ctx, "ORD-STATUS")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPaid, found.Status)
		assert.Equal(t, domain.PaymentPaid, found.PaymentStatus)
	})
}
