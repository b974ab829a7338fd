package adapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"storefront/internal/service/order/domain"
)

// SettingsDocument 是店铺设置中与结账相关的部分，本地配置和 Nacos 配置共用这个格式
type SettingsDocument struct {
	TaxRate      string `yaml:"tax_rate"`
	ShippingExpr string `yaml:"shipping_expr"`
}

// BuildPricing 解析税率并编译运费表达式。表达式为空时免运费。
func BuildPricing(doc SettingsDocument) (domain.Pricing, error) {
	taxRate := decimal.Zero
	if s := strings.TrimSpace(doc.TaxRate); s != "" {
		var err error
		if taxRate, err = decimal.NewFromString(s); err != nil {
			return domain.Pricing{}, fmt.Errorf("invalid tax rate %q: %w", doc.TaxRate, err)
		}
	}
	if taxRate.IsNegative() || taxRate.GreaterThan(decimal.NewFromInt(1)) {
		return domain.Pricing{}, fmt.Errorf("tax rate %s out of range [0, 1]", taxRate)
	}

	var shipping domain.ShippingPolicy = domain.FlatShipping(decimal.Zero)
	if expr := strings.TrimSpace(doc.ShippingExpr); expr != "" {
		policy, err := NewCELShipping(expr)
		if err != nil {
			return domain.Pricing{}, err
		}
		shipping = policy
	}
	return domain.Pricing{TaxRate: taxRate, Shipping: shipping}, nil
}

// StaticSettings 是固定的设置，来自启动配置
type StaticSettings struct {
	pricing domain.Pricing
}

func NewStaticSettings(doc SettingsDocument) (*StaticSettings, error) {
	pricing, err := BuildPricing(doc)
	if err != nil {
		return nil, err
	}
	return &StaticSettings{pricing: pricing}, nil
}

func (s *StaticSettings) Pricing(context.Context) (domain.Pricing, error) {
	return s.pricing, nil
}
