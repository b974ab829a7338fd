package infrastructure

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"storefront/internal/service/order/domain"
)

// GormStockStore 是 port.StockStore 的 GORM 实现 (MySQL / SQLite)。
// 条件写是一条带 WHERE quantity_available = ? 的 UPDATE，不使用事务。
type GormStockStore struct {
	db *gorm.DB
}

func NewGormStockStore(db *gorm.DB) *GormStockStore {
	return &GormStockStore{db: db}
}

func (s *GormStockStore) ReadStock(ctx context.Context, productID string) (int, error) {
	var model ProductStockModel
	err := s.db.WithContext(ctx).Where("product_id = ?", productID).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, domain.ErrProductNotFound
		}
		return 0, errors.Wrapf(err, "read stock of %s", productID)
	}
	return model.QuantityAvailable, nil
}

func (s *GormStockStore) CompareAndSwapStock(ctx context.Context, productID string, expected, next int) (bool, error) {
	if next < 0 {
		return false, nil
	}
	res := s.db.WithContext(ctx).Model(&ProductStockModel{}).
		Where("product_id = ? AND quantity_available = ?", productID, expected).
		Updates(map[string]interface{}{"quantity_available": next, "updated_at": time.Now()})
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "conditional update stock of %s", productID)
	}
	if res.RowsAffected == 1 {
		return true, nil
	}
	// 没有行被更新: 要么值变了，要么商品不存在。MySQL 不支持 UPDATE ... RETURNING，
	// 只能在被拒绝时再读一次来区分，成功路径仍然是一读一写。
	if _, err := s.ReadStock(ctx, productID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *GormStockStore) RestoreStock(ctx context.Context, productID string, quantity int) error {
	res := s.db.WithContext(ctx).Model(&ProductStockModel{}).
		Where("product_id = ?", productID).
		Updates(map[string]interface{}{
			"quantity_available": gorm.Expr("quantity_available + ?", quantity),
			"updated_at":         time.Now(),
		})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "restore stock of %s", productID)
	}
	if res.RowsAffected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

// SeedStock (测试和管理用) 插入或覆盖商品库存
func (s *GormStockStore) SeedStock(ctx context.Context, productID string, quantity int) error {
	model := ProductStockModel{ProductID: productID, QuantityAvailable: quantity, UpdatedAt: time.Now()}
	if err := s.db.WithContext(ctx).Save(&model).Error; err != nil {
		return errors.Wrapf(err, "seed stock of %s", productID)
	}
	return nil
}

// GormOrderRepository 是 domain.OrderRepository 的 GORM 实现
type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

func (r *GormOrderRepository) InsertOrder(ctx context.Context, order *domain.Order) (string, error) {
	model := fromDomainOrder(order, uuid.NewString())
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isDuplicateKey(err) {
			return "", domain.ErrDuplicateOrderNumber
		}
		return "", errors.Wrapf(err, "insert order %s", order.OrderNumber)
	}
	return model.ID, nil
}

func (r *GormOrderRepository) InsertItems(ctx context.Context, orderID string, items []domain.LineItem) error {
	if len(items) == 0 {
		return nil
	}
	models := fromDomainItems(orderID, items)
	if err := r.db.WithContext(ctx).Create(&models).Error; err != nil {
		return errors.Wrapf(err, "insert items of order %s", orderID)
	}
	return nil
}

// DeleteOrder 先删订单行再删订单头。两条语句之间没有事务，中途失败时重复调用是安全的。
func (r *GormOrderRepository) DeleteOrder(ctx context.Context, orderID string) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("order_id = ?", orderID).Delete(&OrderItemModel{}).Error; err != nil {
		return errors.Wrapf(err, "delete items of order %s", orderID)
	}
	if err := db.Where("id = ?", orderID).Delete(&OrderModel{}).Error; err != nil {
		return errors.Wrapf(err, "delete order %s", orderID)
	}
	return nil
}

func (r *GormOrderRepository) FindByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	var model OrderModel
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("order_number = ?", orderNumber).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, errors.Wrapf(err, "find order %s", orderNumber)
	}
	return toDomainOrder(&model), nil
}

func (r *GormOrderRepository) UpdateStatus(ctx context.Context, orderID string, from, to domain.Status) error {
	updates := map[string]interface{}{"status": string(to), "updated_at": time.Now()}
	if to == domain.StatusPaid {
		updates["payment_status"] = string(domain.PaymentPaid)
	}
	res := r.db.WithContext(ctx).Model(&OrderModel{}).
		Where("id = ? AND status = ?", orderID, string(from)).
		Updates(updates)
	if res.Error != nil {
		return errors.Wrapf(res.Error, "update status of order %s", orderID)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	var count int64
	if err := r.db.WithContext(ctx).Model(&OrderModel{}).Where("id = ?", orderID).Count(&count).Error; err != nil {
		return errors.Wrapf(err, "check order %s", orderID)
	}
	if count == 0 {
		return domain.ErrOrderNotFound
	}
	return domain.ErrStatusConflict
}
