package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"storefront/internal/service/order/domain"
)

const pgUniqueViolation = "23505"

// OpenPostgres 创建连接池、执行一次 PING 并初始化表结构
func OpenPostgres(ctx context.Context, url string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	config.MaxConns = 20
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if err := MigratePostgres(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS product_stock (
	product_id TEXT PRIMARY KEY,
	quantity_available INT NOT NULL CHECK (quantity_available >= 0),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS orders (
	id UUID PRIMARY KEY,
	order_number TEXT UNIQUE NOT NULL,
	customer_email TEXT NOT NULL,
	customer_name TEXT NOT NULL,
	customer_phone TEXT NOT NULL DEFAULT '',
	shipping_street TEXT NOT NULL DEFAULT '',
	shipping_city TEXT NOT NULL DEFAULT '',
	shipping_postal_code TEXT NOT NULL DEFAULT '',
	shipping_country TEXT NOT NULL DEFAULT '',
	payment_method TEXT NOT NULL,
	subtotal NUMERIC(12,2) NOT NULL,
	tax NUMERIC(12,2) NOT NULL,
	shipping_cost NUMERIC(12,2) NOT NULL,
	total NUMERIC(12,2) NOT NULL,
	status TEXT NOT NULL,
	payment_status TEXT NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS order_items (
	id BIGSERIAL PRIMARY KEY,
	order_id UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	product_id TEXT NOT NULL,
	quantity INT NOT NULL CHECK (quantity > 0),
	unit_price NUMERIC(12,2) NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items(order_id);
`

// MigratePostgres 创建库存和订单相关的表
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to initialize postgres schema: %w", err)
	}
	return nil
}

// PostgresStockStore 是 port.StockStore 的 pgx 实现
type PostgresStockStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStockStore(pool *pgxpool.Pool) *PostgresStockStore {
	return &PostgresStockStore{pool: pool}
}

func (s *PostgresStockStore) ReadStock(ctx context.Context, productID string) (int, error) {
	var qty int
	err := s.pool.QueryRow(ctx, `SELECT quantity_available FROM product_stock WHERE product_id = $1`, productID).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrProductNotFound
	}
	if err != nil {
		return 0, errors.Wrapf(err, "read stock of %s", productID)
	}
	return qty, nil
}

func (s *PostgresStockStore) CompareAndSwapStock(ctx context.Context, productID string, expected, next int) (bool, error) {
	if next < 0 {
		return false, nil
	}
	// 一条语句同时完成条件写和存在性判断，CTE 外的查询看到的是更新前的快照
	var swapped, exists bool
	err := s.pool.QueryRow(ctx,
		`WITH upd AS (
			UPDATE product_stock SET quantity_available = $3, updated_at = NOW()
			WHERE product_id = $1 AND quantity_available = $2
			RETURNING 1
		)
		SELECT EXISTS (SELECT 1 FROM upd),
		       EXISTS (SELECT 1 FROM product_stock WHERE product_id = $1)`,
		productID, expected, next).Scan(&swapped, &exists)
	if err != nil {
		return false, errors.Wrapf(err, "conditional update stock of %s", productID)
	}
	if !exists {
		return false, domain.ErrProductNotFound
	}
	return swapped, nil
}

func (s *PostgresStockStore) RestoreStock(ctx context.Context, productID string, quantity int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE product_stock SET quantity_available = quantity_available + $2, updated_at = NOW()
		 WHERE product_id = $1`,
		productID, quantity)
	if err != nil {
		return errors.Wrapf(err, "restore stock of %s", productID)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (s *PostgresStockStore) SeedStock(ctx context.Context, productID string, quantity int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO product_stock (product_id, quantity_available) VALUES ($1, $2)
		 ON CONFLICT (product_id) DO UPDATE SET quantity_available = EXCLUDED.quantity_available, updated_at = NOW()`,
		productID, quantity)
	if err != nil {
		return errors.Wrapf(err, "seed stock of %s", productID)
	}
	return nil
}

// PostgresOrderRepository 是 domain.OrderRepository 的 pgx 实现。
// 金额以文本形式进出数据库，避免 NUMERIC 与 float 之间的精度损失。
type PostgresOrderRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresOrderRepository(pool *pgxpool.Pool) *PostgresOrderRepository {
	return &PostgresOrderRepository{pool: pool}
}

func (r *PostgresOrderRepository) InsertOrder(ctx context.Context, o *domain.Order) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO orders (id, order_number, customer_email, customer_name, customer_phone,
			shipping_street, shipping_city, shipping_postal_code, shipping_country, payment_method,
			subtotal, tax, shipping_cost, total, status, payment_status, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11::numeric, $12::numeric, $13::numeric, $14::numeric, $15, $16, $17, $18, $19)`,
		id, o.OrderNumber, o.Customer.Email, o.Customer.Name, o.Customer.Phone,
		o.ShippingAddress.Street, o.ShippingAddress.City, o.ShippingAddress.PostalCode, o.ShippingAddress.Country,
		string(o.PaymentMethod),
		o.Subtotal.String(), o.Tax.String(), o.ShippingCost.String(), o.Total.String(),
		string(o.Status), string(o.PaymentStatus), o.Notes, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return "", domain.ErrDuplicateOrderNumber
		}
		return "", errors.Wrapf(err, "insert order %s", o.OrderNumber)
	}
	return id, nil
}

func (r *PostgresOrderRepository) InsertItems(ctx context.Context, orderID string, items []domain.LineItem) error {
	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(`INSERT INTO order_items (order_id, product_id, quantity, unit_price) VALUES ($1, $2, $3, $4::numeric)`,
			orderID, item.ProductID, item.Quantity, item.UnitPrice.String())
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Wrapf(err, "insert items of order %s", orderID)
	}
	return nil
}

// DeleteOrder 删除订单头，订单行由外键级联删除
func (r *PostgresOrderRepository) DeleteOrder(ctx context.Context, orderID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, orderID); err != nil {
		return errors.Wrapf(err, "delete order %s", orderID)
	}
	return nil
}

func (r *PostgresOrderRepository) FindByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	var (
		o                                  domain.Order
		subtotal, tax, shipping, total     string
		paymentMethod, status, paymentStat string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id::text, order_number, customer_email, customer_name, customer_phone,
			shipping_street, shipping_city, shipping_postal_code, shipping_country, payment_method,
			subtotal::text, tax::text, shipping_cost::text, total::text,
			status, payment_status, notes, created_at, updated_at
		 FROM orders WHERE order_number = $1`, orderNumber).
		Scan(&o.ID, &o.OrderNumber, &o.Customer.Email, &o.Customer.Name, &o.Customer.Phone,
			&o.ShippingAddress.Street, &o.ShippingAddress.City, &o.ShippingAddress.PostalCode, &o.ShippingAddress.Country,
			&paymentMethod, &subtotal, &tax, &shipping, &total,
			&status, &paymentStat, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find order %s", orderNumber)
	}
	o.PaymentMethod = domain.PaymentMethod(paymentMethod)
	o.Status = domain.Status(status)
	o.PaymentStatus = domain.PaymentStatus(paymentStat)
	if err := parseAmounts(
		[]*decimal.Decimal{&o.Subtotal, &o.Tax, &o.ShippingCost, &o.Total},
		[]string{subtotal, tax, shipping, total},
	); err != nil {
		return nil, errors.Wrapf(err, "parse amount of order %s", orderNumber)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT product_id, quantity, unit_price::text FROM order_items WHERE order_id = $1 ORDER BY id`, o.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "query items of order %s", orderNumber)
	}
	o.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.LineItem, error) {
		var (
			item  domain.LineItem
			price string
		)
		if err := row.Scan(&item.ProductID, &item.Quantity, &price); err != nil {
			return item, err
		}
		unitPrice, perr := decimal.NewFromString(price)
		item.UnitPrice = unitPrice
		return item, perr
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scan items of order %s", orderNumber)
	}
	return &o, nil
}

func parseAmounts(dst []*decimal.Decimal, raw []string) error {
	for i := range dst {
		d, err := decimal.NewFromString(raw[i])
		if err != nil {
			return err
		}
		*dst[i] = d
	}
	return nil
}

func (r *PostgresOrderRepository) UpdateStatus(ctx context.Context, orderID string, from, to domain.Status) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE orders SET status = $3,
			payment_status = CASE WHEN $3::text = 'paid' THEN 'paid' ELSE payment_status END,
			updated_at = $4
		 WHERE id = $1 AND status = $2`,
		orderID, string(from), string(to), time.Now())
	if err != nil {
		return errors.Wrapf(err, "update status of order %s", orderID)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
		return errors.Wrapf(err, "check order %s", orderID)
	}
	if !exists {
		return domain.ErrOrderNotFound
	}
	return domain.ErrStatusConflict
}
