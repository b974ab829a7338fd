package saga

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 是结账流程的 Prometheus 指标。nil 的 *Metrics 可以安全使用，什么都不记录。
type Metrics struct {
	reservations  *prometheus.CounterVec
	compensations *prometheus.CounterVec
	orders        *prometheus.CounterVec
	duration      prometheus.Histogram
}

// NewMetrics 创建指标并注册到 reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkout",
			Name:      "reservations_total",
			Help:      "Stock reservation attempts by outcome.",
		}, []string{"outcome"}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkout",
			Name:      "compensations_total",
			Help:      "Stock restorations issued while aborting an order, by result.",
		}, []string{"result"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkout",
			Name:      "orders_total",
			Help:      "Order creation calls by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "checkout",
			Name:      "order_duration_seconds",
			Help:      "Latency of order creation including reservation and compensation.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.reservations, m.compensations, m.orders, m.duration)
	return m
}

func (m *Metrics) observeReservation(o Outcome) {
	if m == nil {
		return
	}
	m.reservations.WithLabelValues(o.String()).Inc()
}

func (m *Metrics) observeCompensation(ok bool) {
	if m == nil {
		return
	}
	result := "restored"
	if !ok {
		result = "failed"
	}
	m.compensations.WithLabelValues(result).Inc()
}

func (m *Metrics) observeOrder(result string, started time.Time) {
	if m == nil {
		return
	}
	m.orders.WithLabelValues(result).Inc()
	m.duration.Observe(time.Since(started).Seconds())
}
