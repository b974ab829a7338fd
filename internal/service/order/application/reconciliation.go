package application

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/domain"
)

var ErrNothingOutstanding = errors.New("no outstanding reconciliation for product")

// defaultSeenLimit 是去重窗口记住的订单号数量。重复投递来自消费组重平衡，
// 只会出现在最近的消息里。
const defaultSeenLimit = 10000

// OutstandingStock 是某个商品尚未人工修正的少计库存
type OutstandingStock struct {
	ProductID string    `json:"productId"`
	Units     int       `json:"units"`
	Orders    []string  `json:"orders"`
	LastSeen  time.Time `json:"lastSeen"`
}

// ReconciliationTracker 汇总补偿失败事件，按商品累计没能恢复的库存，
// 供运维人工修正。事件按订单号去重，重复投递不会重复累计。
type ReconciliationTracker struct {
	mu          sync.Mutex
	seen        map[string]struct{}
	seenOrder   []string // 按到达顺序，超过 seenLimit 时淘汰最早的
	seenLimit   int
	outstanding map[string]*OutstandingStock

	units     *prometheus.GaugeVec
	incidents prometheus.Counter
}

func NewReconciliationTracker(reg prometheus.Registerer) *ReconciliationTracker {
	t := &ReconciliationTracker{
		seen:        make(map[string]struct{}),
		seenLimit:   defaultSeenLimit,
		outstanding: make(map[string]*OutstandingStock),
		units: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "checkout",
			Name:      "unreconciled_units",
			Help:      "Stock units lost by failed compensation and not yet fixed by an operator.",
		}, []string{"product_id"}),
		incidents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "checkout",
			Name:      "reconciliation_incidents_total",
			Help:      "Orders whose compensation left stock under-counted.",
		}),
	}
	reg.MustRegister(t.units, t.incidents)
	return t
}

func (t *ReconciliationTracker) HandleReconciliation(ctx context.Context, event domain.ReconciliationRequired) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, dup := t.seen[event.OrderNumber]; dup {
		logger.Ctx(ctx).Debug().Msgf("[Order: %s] Duplicate reconciliation event ignored", event.OrderNumber)
		return nil
	}
	t.remember(event.OrderNumber)
	t.incidents.Inc()

	items := zerolog.Arr()
	for _, item := range event.Items {
		out, ok := t.outstanding[item.ProductID]
		if !ok {
			out = &OutstandingStock{ProductID: item.ProductID}
			t.outstanding[item.ProductID] = out
		}
		out.Units += item.Quantity
		out.Orders = append(out.Orders, event.OrderNumber)
		out.LastSeen = event.OccurredAt
		t.units.WithLabelValues(item.ProductID).Set(float64(out.Units))
		items.Str(item.ProductID)
	}

	logger.Ctx(ctx).Error().
		Bool("critical", true).
		Str("upstream_trace_id", event.TraceID).
		Array("products", items).
		Str("reason", event.Reason).
		Msgf("[Order: %s] Stock requires manual reconciliation", event.OrderNumber)
	return nil
}

func (t *ReconciliationTracker) remember(orderNumber string) {
	t.seen[orderNumber] = struct{}{}
	t.seenOrder = append(t.seenOrder, orderNumber)
	for len(t.seenOrder) > t.seenLimit {
		delete(t.seen, t.seenOrder[0])
		t.seenOrder = t.seenOrder[1:]
	}
}

// Outstanding 按商品 ID 排序返回当前待修正的库存
func (t *ReconciliationTracker) Outstanding() []OutstandingStock {
	t.mu.Lock()
	defer t.mu.Unlock()
	list := make([]OutstandingStock, 0, len(t.outstanding))
	for _, out := range t.outstanding {
		cp := *out
		cp.Orders = append([]string(nil), out.Orders...)
		list = append(list, cp)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ProductID < list[j].ProductID })
	return list
}

// Resolve 在运维人工修正库存之后清除该商品的记录
func (t *ReconciliationTracker) Resolve(ctx context.Context, productID string) (OutstandingStock, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out, ok := t.outstanding[productID]
	if !ok {
		return OutstandingStock{}, ErrNothingOutstanding
	}
	delete(t.outstanding, productID)
	t.units.DeleteLabelValues(productID)
	logger.Ctx(ctx).Info().Str("product", productID).Int("units", out.Units).Msg("Reconciliation resolved by operator")
	return *out, nil
}
