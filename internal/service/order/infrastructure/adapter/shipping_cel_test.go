package adapter

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/service/order/domain"
)

func TestCELShippingQuote(t *testing.T) {
	policy, err := NewCELShipping("subtotal >= 100.0 ? 0.0 : 4.99 + 0.5 * double(units)")
	require.NoError(t, err)

	quote, err := policy.Quote(decimal.RequireFromString("45.48"), 2)
	require.NoError(t, err)
	assert.Equal(t, "5.99", quote.StringFixed(2))

	quote, err = policy.Quote(decimal.NewFromInt(120), 9)
	require.NoError(t, err)
	assert.True(t, quote.IsZero())
}

func TestCELShippingRejectsBadExpressions(t *testing.T) {
	for _, expr := range []string{
		"subtotal >",      // syntax
		"weight * 2.0",    // unknown variable
		"units * 2",       // int result
		"subtotal > 10.0", // bool result
	} {
		_, err := NewCELShipping(expr)
		assert.Error(t, err, expr)
	}
}

func TestCELShippingRejectsNonFiniteQuote(t *testing.T) {
	for _, expr := range []string{
		"10.0 / subtotal", // +Inf
		"0.0 / subtotal",  // NaN
	} {
		policy, err := NewCELShipping(expr)
		require.NoError(t, err)

		assert.NotPanics(t, func() {
			_, err = policy.Quote(decimal.Zero, 1)
		}, expr)
		assert.Error(t, err, expr)
	}
}

func TestCELShippingNonFiniteQuoteFailsPricing(t *testing.T) {
	policy, err := NewCELShipping("10.0 / subtotal")
	require.NoError(t, err)

	items := []domain.LineItem{{ProductID: "FREEBIE", Quantity: 1, UnitPrice: decimal.Zero}}
	_, err = domain.ComputeTotals(items, domain.Pricing{TaxRate: decimal.Zero, Shipping: policy})
	assert.ErrorContains(t, err, "not finite")
}
