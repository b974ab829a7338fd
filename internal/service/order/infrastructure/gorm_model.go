package infrastructure

import (
	"time"

	"github.com/shopspring/decimal"

	"storefront/internal/service/order/domain"
)

// ProductStockModel 对应 product_stock 表，每个商品一行库存计数器
type ProductStockModel struct {
	ProductID         string `gorm:"primaryKey;size:64"`
	QuantityAvailable int    `gorm:"not null"`
	UpdatedAt         time.Time
}

func (ProductStockModel) TableName() string {
	return "product_stock"
}

// OrderModel 对应 orders 表 (订单头)
type OrderModel struct {
	ID                 string          `gorm:"primaryKey;size:36"`
	OrderNumber        string          `gorm:"uniqueIndex;size:40;not null"`
	CustomerEmail      string          `gorm:"size:255;not null"`
	CustomerName       string          `gorm:"size:255;not null"`
	CustomerPhone      string          `gorm:"size:64"`
	ShippingStreet     string          `gorm:"size:255"`
	ShippingCity       string          `gorm:"size:128"`
	ShippingPostalCode string          `gorm:"size:32"`
	ShippingCountry    string          `gorm:"size:64"`
	PaymentMethod      string          `gorm:"size:16;not null"`
	Subtotal           decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Tax                decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	ShippingCost       decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Total              decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Status             string          `gorm:"size:16;index;not null"`
	PaymentStatus      string          `gorm:"size:16;not null"`
	Notes              string          `gorm:"type:text"`
	CreatedAt          time.Time
	UpdatedAt          time.Time

	Items []OrderItemModel `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

func (OrderModel) TableName() string {
	return "orders"
}

// OrderItemModel 对应 order_items 表
type OrderItemModel struct {
	ID        uint            `gorm:"primaryKey"`
	OrderID   string          `gorm:"size:36;index;not null"`
	ProductID string          `gorm:"size:64;not null"`
	Quantity  int             `gorm:"not null"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(12,2);not null"`
}

func (OrderItemModel) TableName() string {
	return "order_items"
}

// --- 类型转换函数 ---

func fromDomainOrder(o *domain.Order, id string) *OrderModel {
	return &OrderModel{
		ID:                 id,
		OrderNumber:        o.OrderNumber,
		CustomerEmail:      o.Customer.Email,
		CustomerName:       o.Customer.Name,
		CustomerPhone:      o.Customer.Phone,
		ShippingStreet:     o.ShippingAddress.Street,
		ShippingCity:       o.ShippingAddress.City,
		ShippingPostalCode: o.ShippingAddress.PostalCode,
		ShippingCountry:    o.ShippingAddress.Country,
		PaymentMethod:      string(o.PaymentMethod),
		Subtotal:           o.Subtotal,
		Tax:                o.Tax,
		ShippingCost:       o.ShippingCost,
		Total:              o.Total,
		Status:             string(o.Status),
		PaymentStatus:      string(o.PaymentStatus),
		Notes:              o.Notes,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
}

func fromDomainItems(orderID string, items []domain.LineItem) []OrderItemModel {
	models := make([]OrderItemModel, len(items))
	for i, item := range items {
		models[i] = OrderItemModel{
			OrderID:   orderID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}
	return models
}

func toDomainOrder(m *OrderModel) *domain.Order {
	items := make([]domain.LineItem, len(m.Items))
	for i, item := range m.Items {
		items[i] = domain.LineItem{ProductID: item.ProductID, Quantity: item.Quantity, UnitPrice: item.UnitPrice}
	}
	return &domain.Order{
		ID:          m.ID,
		OrderNumber: m.OrderNumber,
		Customer: domain.Customer{
			Email: m.CustomerEmail,
			Name:  m.CustomerName,
			Phone: m.CustomerPhone,
		},
		ShippingAddress: domain.ShippingAddress{
			Street:     m.ShippingStreet,
			City:       m.ShippingCity,
			PostalCode: m.ShippingPostalCode,
			Country:    m.ShippingCountry,
		},
		PaymentMethod: domain.PaymentMethod(m.PaymentMethod),
		Items:         items,
		Subtotal:      m.Subtotal,
		Tax:           m.Tax,
		ShippingCost:  m.ShippingCost,
		Total:         m.Total,
		Status:        domain.Status(m.Status),
		PaymentStatus: domain.PaymentStatus(m.PaymentStatus),
		Notes:         m.Notes,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}
