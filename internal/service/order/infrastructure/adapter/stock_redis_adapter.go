package adapter

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"storefront/internal/pkg/redis"
	"storefront/internal/service/order/domain"
)

const (
	casStockScriptName     = "stock_cas"
	restoreStockScriptName = "stock_restore"
)

// StockRedisAdapter 是 port.StockStore 的 Redis 实现。
// 每个商品的库存是一个字符串 key，条件写和恢复都用 Lua 脚本保证单 key 原子性。
type StockRedisAdapter struct {
	redisClient *redis.Client
}

// NewStockRedisAdapter 创建适配器并预加载 Lua 脚本
func NewStockRedisAdapter(redisClient *redis.Client) (*StockRedisAdapter, error) {
	if err := redisClient.LoadScriptFromContent(casStockScriptName, casStockScript); err != nil {
		return nil, fmt.Errorf("failed to load stock cas script: %w", err)
	}
	if err := redisClient.LoadScriptFromContent(restoreStockScriptName, restoreStockScript); err != nil {
		return nil, fmt.Errorf("failed to load stock restore script: %w", err)
	}
	return &StockRedisAdapter{redisClient: redisClient}, nil
}

func stockKey(productID string) string {
	return fmt.Sprintf("stock:{%s}", productID)
}

func (a *StockRedisAdapter) ReadStock(ctx context.Context, productID string) (int, error) {
	raw, err := a.redisClient.GetClient().Get(ctx, stockKey(productID)).Result()
	if errors.Is(err, goredis.Nil) {
		return 0, domain.ErrProductNotFound
	}
	if err != nil {
		return 0, errors.Wrapf(err, "redis get stock of %s", productID)
	}
	qty, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Wrapf(err, "corrupt stock value %q for %s", raw, productID)
	}
	return qty, nil
}

func (a *StockRedisAdapter) CompareAndSwapStock(ctx context.Context, productID string, expected, next int) (bool, error) {
	result, err := a.redisClient.RunScript(ctx, casStockScriptName, []string{stockKey(productID)}, expected, next)
	if err != nil {
		return false, errors.Wrapf(err, "stock cas script for %s", productID)
	}
	code, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected result type from Lua script: %T", result)
	}
	switch code {
	case 1:
		return true, nil
	case 0:
		return false, nil
	case -1:
		return false, domain.ErrProductNotFound
	default:
		return false, fmt.Errorf("unknown result code from stock cas script: %d", code)
	}
}

func (a *StockRedisAdapter) RestoreStock(ctx context.Context, productID string, quantity int) error {
	result, err := a.redisClient.RunScript(ctx, restoreStockScriptName, []string{stockKey(productID)}, quantity)
	if err != nil {
		return errors.Wrapf(err, "stock restore script for %s", productID)
	}
	if code, ok := result.(int64); ok && code == -1 {
		return domain.ErrProductNotFound
	}
	return nil
}

// SeedStock (测试和管理用) 直接设置商品库存
func (a *StockRedisAdapter) SeedStock(ctx context.Context, productID string, quantity int) error {
	if err := a.redisClient.GetClient().Set(ctx, stockKey(productID), quantity, 0).Err(); err != nil {
		return errors.Wrapf(err, "seed stock of %s", productID)
	}
	return nil
}

var casStockScript = `
-- KEYS[1]: 库存 key, 例如 stock:{product_123}
-- ARGV[1]: 调用方上次读到的库存
-- ARGV[2]: 要写入的新库存

local current = redis.call('get', KEYS[1])
if not current then
    return -1 -- 商品不存在
end
if tonumber(current) ~= tonumber(ARGV[1]) or tonumber(ARGV[2]) < 0 then
    return 0 -- 已被其他写入者修改
end
redis.call('set', KEYS[1], ARGV[2])
return 1
`

var restoreStockScript = `
-- KEYS[1]: 库存 key
-- ARGV[1]: 要加回的数量

if redis.call('exists', KEYS[1]) == 0 then
    return -1
end
redis.call('incrby', KEYS[1], ARGV[1])
return 1
`
