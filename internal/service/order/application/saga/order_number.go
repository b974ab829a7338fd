package saga

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// OrderNumberFunc 生成一个人类可读的订单号
type OrderNumberFunc func(now time.Time) string

// NewOrderNumber 生成形如 ORD-20250102-150405-1A2B3C4D 的订单号。
// 时间戳加随机后缀，唯一性由订单表的唯一索引兜底。
func NewOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return "ORD-" + now.UTC().Format("20060102-150405") + "-" + suffix
}
