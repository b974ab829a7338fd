package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel/trace/noop"

	"storefront/internal/service/order/application"
	"storefront/internal/service/order/application/saga"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/infrastructure/adapter"
	"storefront/internal/service/order/infrastructure/memory"
)

type failingSettings struct{}

func (failingSettings) Pricing(context.Context) (domain.Pricing, error) {
	return domain.Pricing{}, errors.New("nacos unreachable")
}

type CheckoutServiceSuite struct {
	suite.Suite
	stock   *memory.StockStore
	orders  *memory.OrderRepository
	service *application.CheckoutService
}

func (s *CheckoutServiceSuite) SetupTest() {
	ctx := context.Background()
	s.stock = memory.NewStockStore()
	s.Require().NoError(s.stock.SeedStock(ctx, "A", 10))
	s.Require().NoError(s.stock.SeedStock(ctx, "B", 5))
	s.orders = memory.NewOrderRepository()

	settings, err := adapter.NewStaticSettings(adapter.SettingsDocument{
		TaxRate:      "0.0825",
		ShippingExpr: "subtotal >= 100.0 ? 0.0 : 4.99",
	})
	s.Require().NoError(err)

	tracer := noop.NewTracerProvider().Tracer("test")
	orchestrator := saga.NewOrchestrator(s.stock, s.orders, tracer)
	s.service = application.NewCheckoutService(orchestrator, s.orders, settings, tracer, 5*time.Second)
}

func (s *CheckoutServiceSuite) request() *application.CreateOrderRequest {
	return &application.CreateOrderRequest{
		Customer:        domain.Customer{Email: "ada@example.com", Name: "Ada"},
		ShippingAddress: domain.ShippingAddress{Street: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"},
		PaymentMethod:   "card",
		Items: []application.OrderItemRequest{
			{ProductID: "A", Quantity: 2, UnitPrice: decimal.RequireFromString("12.99")},
			{ProductID: "B", Quantity: 1, UnitPrice: decimal.RequireFromString("19.50")},
		},
	}
}

func (s *CheckoutServiceSuite) stockOf(productID string) int {
	qty, err := s.stock.ReadStock(context.Background(), productID)
	s.Require().NoError(err)
	return qty
}

func (s *CheckoutServiceSuite) TestPlaceOrder() {
	resp, err := s.service.PlaceOrder(context.Background(), s.request())
	s.Require().NoError(err)

	s.Equal("45.48", resp.Subtotal)
	s.Equal("3.75", resp.Tax)
	s.Equal("4.99", resp.ShippingCost)
	s.Equal("54.22", resp.Total)
	s.Equal(domain.StatusPending, resp.Status)
	s.Equal("25.98", resp.Items[0].LineTotal)
	s.Equal(8, s.stockOf("A"))
	s.Equal(4, s.stockOf("B"))

	got, err := s.service.GetOrder(context.Background(), resp.OrderNumber)
	s.Require().NoError(err)
	s.Equal(resp.ID, got.ID)
	s.Len(got.Items, 2)
}

func (s *CheckoutServiceSuite) TestPlaceOrderInsufficientStock() {
	req := s.request()
	req.Items[1].Quantity = 6

	_, err := s.service.PlaceOrder(context.Background(), req)
	var failed *domain.OrderFailedError
	s.Require().ErrorAs(err, &failed)
	s.Equal("B", failed.ProductID)
	s.Equal(5, failed.Available)
	s.Equal(10, s.stockOf("A"), "reservation of A is compensated")
	s.Zero(s.orders.Count())
}

func (s *CheckoutServiceSuite) TestPlaceOrderWithoutSettings() {
	tracer := noop.NewTracerProvider().Tracer("test")
	service := application.NewCheckoutService(saga.NewOrchestrator(s.stock, s.orders, tracer), s.orders, failingSettings{}, tracer, 0)

	_, err := service.PlaceOrder(context.Background(), s.request())
	s.ErrorIs(err, application.ErrSettingsUnavailable)
	s.Equal(10, s.stockOf("A"), "no reservation without settings")
}

func (s *CheckoutServiceSuite) TestGetOrderNotFound() {
	_, err := s.service.GetOrder(context.Background(), "ORD-MISSING")
	s.ErrorIs(err, domain.ErrOrderNotFound)
}

func (s *CheckoutServiceSuite) TestUpdateOrderStatus() {
	ctx := context.Background()
	placed, err := s.service.PlaceOrder(ctx, s.request())
	s.Require().NoError(err)

	paid, err := s.service.UpdateOrderStatus(ctx, placed.OrderNumber, "paid")
	s.Require().NoError(err)
	s.Equal(domain.StatusPaid, paid.Status)
	s.Equal(domain.PaymentPaid, paid.PaymentStatus)

	_, err = s.service.UpdateOrderStatus(ctx, placed.OrderNumber, "delivered")
	s.ErrorIs(err, domain.ErrInvalidTransition)

	_, err = s.service.UpdateOrderStatus(ctx, placed.OrderNumber, "refunded")
	s.ErrorIs(err, domain.ErrInvalidTransition)

	_, err = s.service.UpdateOrderStatus(ctx, "ORD-MISSING", "paid")
	s.ErrorIs(err, domain.ErrOrderNotFound)

	stored, err := s.service.GetOrder(ctx, placed.OrderNumber)
	s.Require().NoError(err)
	s.Equal(domain.StatusPaid, stored.Status)
}

func TestCheckoutServiceSuite(t *testing.T) {
	suite.Run(t, new(CheckoutServiceSuite))
}
