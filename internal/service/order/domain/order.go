// internal/service/order/domain/order.go
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInvalidOrder = errors.New("invalid order")

// PaymentMethod 是顾客在结账时选择的支付方式
type PaymentMethod string

const (
	PaymentCard PaymentMethod = "card"
	PaymentBank PaymentMethod = "bank"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentCard || m == PaymentBank
}

// Customer 是下单人的联系信息
type Customer struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// ShippingAddress 是收货地址
type ShippingAddress struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// LineItem 是订单行。UnitPrice 是下单时的价格快照，与实时商品价格解耦。
type LineItem struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// LineTotal 返回 UnitPrice × Quantity
func (i LineItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// CheckoutRequest 是创建订单用例在领域层的输入
type CheckoutRequest struct {
	Customer        Customer
	ShippingAddress ShippingAddress
	PaymentMethod   PaymentMethod
	Items           []LineItem
	Notes           string
}

// Validate 只做结构性校验，不访问库存。
func (r CheckoutRequest) Validate() error {
	if len(r.Items) == 0 {
		return fmt.Errorf("%w: order has no items", ErrInvalidOrder)
	}
	if strings.TrimSpace(r.Customer.Email) == "" || strings.TrimSpace(r.Customer.Name) == "" {
		return fmt.Errorf("%w: customer email and name are required", ErrInvalidOrder)
	}
	if !r.PaymentMethod.Valid() {
		return fmt.Errorf("%w: unsupported payment method %q", ErrInvalidOrder, r.PaymentMethod)
	}
	for i, item := range r.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return fmt.Errorf("%w: item %d has no product id", ErrInvalidOrder, i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %s has non-positive quantity %d", ErrInvalidOrder, item.ProductID, item.Quantity)
		}
		if item.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: item %s has negative unit price", ErrInvalidOrder, item.ProductID)
		}
	}
	return nil
}

// Units 返回所有订单行的件数之和
func (r CheckoutRequest) Units() int {
	n := 0
	for _, item := range r.Items {
		n += item.Quantity
	}
	return n
}

// Order 是订单聚合的根实体
type Order struct {
	ID              string
	OrderNumber     string
	Customer        Customer
	ShippingAddress ShippingAddress
	PaymentMethod   PaymentMethod
	Items           []LineItem
	Subtotal        decimal.Decimal
	Tax             decimal.Decimal
	ShippingCost    decimal.Decimal
	Total           decimal.Decimal
	Status          Status
	PaymentStatus   PaymentStatus
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewOrder 用已经计算好的金额创建一个待持久化的订单。
// 新订单总是处于 pending 状态，支付状态也是 pending。
func NewOrder(req CheckoutRequest, orderNumber string, totals Totals, now time.Time) *Order {
	items := make([]LineItem, len(req.Items))
	copy(items, req.Items)

	return &Order{
		OrderNumber:     orderNumber,
		Customer:        req.Customer,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		Items:           items,
		Subtotal:        totals.Subtotal,
		Tax:             totals.Tax,
		ShippingCost:    totals.ShippingCost,
		Total:           totals.Total,
		Status:          StatusPending,
		PaymentStatus:   PaymentPending,
		Notes:           req.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// TransitionTo 校验并执行一次状态流转
func (o *Order) TransitionTo(next Status, now time.Time) error {
	if !o.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
	}
	o.Status = next
	if next == StatusPaid {
		o.PaymentStatus = PaymentPaid
	}
	o.UpdatedAt = now
	return nil
}
