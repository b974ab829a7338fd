package port

import "context"

// StockStore 是库存计数器的出站端口。
// 底层存储只提供单行的条件更新，没有跨行事务。
type StockStore interface {
	// ReadStock 读取商品当前的可用库存。商品不存在时返回 domain.ErrProductNotFound。
	ReadStock(ctx context.Context, productID string) (int, error)

	// CompareAndSwapStock 仅当存储中的值仍等于 expected 时把库存写成 next。
	// 返回 false 表示被拒绝 (有其他写入者插入)，与商品不存在 (domain.ErrProductNotFound) 区分开。
	CompareAndSwapStock(ctx context.Context, productID string, expected, next int) (bool, error)

	// RestoreStock 是预占的补偿操作，无条件地把 quantity 加回库存。
	RestoreStock(ctx context.Context, productID string, quantity int) error
}

// StockSeeder (测试和管理用) 直接设置商品库存
type StockSeeder interface {
	SeedStock(ctx context.Context, productID string, quantity int) error
}
