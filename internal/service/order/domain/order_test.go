package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() CheckoutRequest {
	return CheckoutRequest{
		Customer:        Customer{Email: "ada@example.com", Name: "Ada"},
		ShippingAddress: ShippingAddress{Street: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"},
		PaymentMethod:   PaymentBank,
		Items: []LineItem{
			{ProductID: "p-1", Quantity: 2, UnitPrice: decimal.RequireFromString("3.50")},
			{ProductID: "p-2", Quantity: 1, UnitPrice: decimal.RequireFromString("10")},
		},
	}
}

func TestCheckoutRequestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *CheckoutRequest)
		ok     bool
	}{
		{name: "valid", mutate: func(*CheckoutRequest) {}, ok: true},
		{name: "no items", mutate: func(r *CheckoutRequest) { r.Items = nil }},
		{name: "missing email", mutate: func(r *CheckoutRequest) { r.Customer.Email = " " }},
		{name: "unknown payment method", mutate: func(r *CheckoutRequest) { r.PaymentMethod = "paypal" }},
		{name: "empty product id", mutate: func(r *CheckoutRequest) { r.Items[0].ProductID = "" }},
		{name: "zero quantity", mutate: func(r *CheckoutRequest) { r.Items[1].Quantity = 0 }},
		{name: "negative price", mutate: func(r *CheckoutRequest) { r.Items[1].UnitPrice = decimal.NewFromInt(-1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			err := req.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidOrder)
		})
	}
}

func TestNewOrderSnapshotsItems(t *testing.T) {
	req := validRequest()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	totals, err := ComputeTotals(req.Items, Pricing{})
	require.NoError(t, err)

	order := NewOrder(req, "ORD-1", totals, now)
	req.Items[0].UnitPrice = decimal.NewFromInt(999)

	assert.Equal(t, StatusPending, order.Status)
	assert.Equal(t, PaymentPending, order.PaymentStatus)
	assert.True(t, order.Items[0].UnitPrice.Equal(decimal.RequireFromString("3.50")), "price snapshot is decoupled from the request")
	assert.Equal(t, now, order.CreatedAt)
	assert.Equal(t, 3, req.Units())
}

func TestComputeTotals(t *testing.T) {
	items := validRequest().Items // 7.00 + 10.00

	totals, err := ComputeTotals(items, Pricing{
		TaxRate:  decimal.RequireFromString("0.075"),
		Shipping: FlatShipping(decimal.RequireFromString("2.5")),
	})
	require.NoError(t, err)
	assert.Equal(t, "17.00", totals.Subtotal.StringFixed(2))
	assert.Equal(t, "1.28", totals.Tax.StringFixed(2))
	assert.Equal(t, "2.50", totals.ShippingCost.StringFixed(2))
	assert.Equal(t, "20.78", totals.Total.StringFixed(2))
}

type quoteFunc func(decimal.Decimal, int) (decimal.Decimal, error)

func (f quoteFunc) Quote(subtotal decimal.Decimal, units int) (decimal.Decimal, error) {
	return f(subtotal, units)
}

func TestComputeTotalsShippingPolicy(t *testing.T) {
	items := validRequest().Items

	var gotUnits int
	_, err := ComputeTotals(items, Pricing{Shipping: quoteFunc(func(_ decimal.Decimal, units int) (decimal.Decimal, error) {
		gotUnits = units
		return decimal.Zero, nil
	})})
	require.NoError(t, err)
	assert.Equal(t, 3, gotUnits)

	_, err = ComputeTotals(items, Pricing{Shipping: FlatShipping(decimal.NewFromInt(-1))})
	assert.Error(t, err)

	boom := errors.New("boom")
	_, err = ComputeTotals(items, Pricing{Shipping: quoteFunc(func(decimal.Decimal, int) (decimal.Decimal, error) {
		return decimal.Zero, boom
	})})
	assert.ErrorIs(t, err, boom)
}

func TestOrderTransitionTo(t *testing.T) {
	now := time.Now()
	order := &Order{Status: StatusPending, PaymentStatus: PaymentPending}

	require.NoError(t, order.TransitionTo(StatusPaid, now))
	assert.Equal(t, PaymentPaid, order.PaymentStatus)
	assert.Equal(t, now, order.UpdatedAt)

	err := order.TransitionTo(StatusDelivered, now)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusPaid, order.Status)
}
