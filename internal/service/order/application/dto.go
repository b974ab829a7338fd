// internal/service/order/application/dto.go
package application

import (
	"time"

	"github.com/shopspring/decimal"

	"storefront/internal/service/order/domain"
)

// CreateOrderRequest 是创建订单用例的输入数据
type CreateOrderRequest struct {
	Customer        domain.Customer        `json:"customer"`
	ShippingAddress domain.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   string                 `json:"paymentMethod"`
	Items           []OrderItemRequest     `json:"items"`
	Notes           string                 `json:"notes"`
}

type OrderItemRequest struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// ToCheckoutRequest 把应用层 DTO 转换为领域输入
func (req *CreateOrderRequest) ToCheckoutRequest() domain.CheckoutRequest {
	items := make([]domain.LineItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = domain.LineItem{ProductID: item.ProductID, Quantity: item.Quantity, UnitPrice: item.UnitPrice}
	}
	return domain.CheckoutRequest{
		Customer:        req.Customer,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   domain.PaymentMethod(req.PaymentMethod),
		Items:           items,
		Notes:           req.Notes,
	}
}

// OrderResponse 是返回给接口层的订单视图，金额固定两位小数
type OrderResponse struct {
	ID              string                 `json:"id"`
	OrderNumber     string                 `json:"orderNumber"`
	Customer        domain.Customer        `json:"customer"`
	ShippingAddress domain.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   string                 `json:"paymentMethod"`
	Items           []OrderItemResponse    `json:"items"`
	Subtotal        string                 `json:"subtotal"`
	Tax             string                 `json:"tax"`
	ShippingCost    string                 `json:"shippingCost"`
	Total           string                 `json:"total"`
	Status          domain.Status          `json:"status"`
	PaymentStatus   domain.PaymentStatus   `json:"paymentStatus"`
	Notes           string                 `json:"notes,omitempty"`
	CreatedAt       time.Time              `json:"createdAt"`
	UpdatedAt       time.Time              `json:"updatedAt"`
}

type OrderItemResponse struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
	LineTotal string `json:"lineTotal"`
}

// ToOrderResponse 从领域实体转换为响应 DTO
func ToOrderResponse(o *domain.Order) *OrderResponse {
	items := make([]OrderItemResponse, len(o.Items))
	for i, item := range o.Items {
		items[i] = OrderItemResponse{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.StringFixed(2),
			LineTotal: item.LineTotal().StringFixed(2),
		}
	}
	return &OrderResponse{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		Customer:        o.Customer,
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   string(o.PaymentMethod),
		Items:           items,
		Subtotal:        o.Subtotal.StringFixed(2),
		Tax:             o.Tax.StringFixed(2),
		ShippingCost:    o.ShippingCost.StringFixed(2),
		Total:           o.Total.StringFixed(2),
		Status:          o.Status,
		PaymentStatus:   o.PaymentStatus,
		Notes:           o.Notes,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}
