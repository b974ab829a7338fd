package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ShippingPolicy 根据小计和件数给出运费报价
type ShippingPolicy interface {
	Quote(subtotal decimal.Decimal, units int) (decimal.Decimal, error)
}

// FlatShipping 是固定运费。零值即免运费。
type FlatShipping decimal.Decimal

func (f FlatShipping) Quote(decimal.Decimal, int) (decimal.Decimal, error) {
	return decimal.Decimal(f), nil
}

// Pricing 是一次结账使用的定价参数，由设置服务提供，显式传入编排器。
type Pricing struct {
	TaxRate  decimal.Decimal
	Shipping ShippingPolicy
}

// Totals 是订单金额汇总
type Totals struct {
	Subtotal     decimal.Decimal
	Tax          decimal.Decimal
	ShippingCost decimal.Decimal
	Total        decimal.Decimal
}

// ComputeTotals 计算 subtotal, tax, shipping 和 total。金额保留两位小数。
func ComputeTotals(items []LineItem, p Pricing) (Totals, error) {
	subtotal := decimal.Zero
	units := 0
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal())
		units += item.Quantity
	}

	tax := subtotal.Mul(p.TaxRate).Round(2)

	shipping := decimal.Zero
	if p.Shipping != nil {
		quote, err := p.Shipping.Quote(subtotal, units)
		if err != nil {
			return Totals{}, fmt.Errorf("shipping quote: %w", err)
		}
		if quote.IsNegative() {
			return Totals{}, fmt.Errorf("shipping quote is negative: %s", quote)
		}
		shipping = quote.Round(2)
	}

	return Totals{
		Subtotal:     subtotal,
		Tax:          tax,
		ShippingCost: shipping,
		Total:        subtotal.Add(tax).Add(shipping),
	}, nil
}
