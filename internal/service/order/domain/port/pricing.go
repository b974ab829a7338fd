package port

import (
	"context"

	"storefront/internal/service/order/domain"
)

// SettingsProvider 是店铺设置服务的出站端口。
// 结账流程每次调用时查询一次，得到的定价参数显式传给编排器。
type SettingsProvider interface {
	Pricing(ctx context.Context) (domain.Pricing, error)
}
