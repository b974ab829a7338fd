package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/gorm"

	"storefront/internal/pkg/bootstrap"
	"storefront/internal/pkg/redis"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/domain/port"
	"storefront/internal/service/order/infrastructure"
	"storefront/internal/service/order/infrastructure/adapter"
	"storefront/internal/service/order/infrastructure/memory"
)

// stores 持有选中的库存和订单存储，以及需要在退出时关闭的连接
type stores struct {
	stock  port.StockStore
	orders domain.OrderRepository

	gormDBs map[string]*gorm.DB
	pgPool  *pgxpool.Pool
	redis   *redis.Client
	closers []func() error
}

func openStores(ctx context.Context, cfg *bootstrap.Config) (*stores, error) {
	s := &stores{gormDBs: make(map[string]*gorm.DB)}

	var err error
	switch cfg.Checkout.StockDriver {
	case "memory":
		s.stock = memory.NewStockStore()
	case "redis":
		s.redis, err = redis.NewClient(ctx, redis.Options{
			Addr:     cfg.Infra.Redis.Addr,
			Password: cfg.Infra.Redis.Password,
			DB:       cfg.Infra.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, s.redis.Close)
		s.stock, err = adapter.NewStockRedisAdapter(s.redis)
	case "mysql", "sqlite":
		var db *gorm.DB
		if db, err = s.gorm(ctx, cfg, cfg.Checkout.StockDriver); err == nil {
			s.stock = infrastructure.NewGormStockStore(db)
		}
	case "postgres":
		var pool *pgxpool.Pool
		if pool, err = s.postgres(ctx, cfg); err == nil {
			s.stock = infrastructure.NewPostgresStockStore(pool)
		}
	default:
		err = fmt.Errorf("unknown stock driver %q", cfg.Checkout.StockDriver)
	}
	if err != nil {
		_ = s.close(ctx)
		return nil, err
	}

	switch cfg.Checkout.OrderDriver {
	case "memory":
		s.orders = memory.NewOrderRepository()
	case "mysql", "sqlite":
		var db *gorm.DB
		if db, err = s.gorm(ctx, cfg, cfg.Checkout.OrderDriver); err == nil {
			s.orders = infrastructure.NewGormOrderRepository(db)
		}
	case "postgres":
		var pool *pgxpool.Pool
		if pool, err = s.postgres(ctx, cfg); err == nil {
			s.orders = infrastructure.NewPostgresOrderRepository(pool)
		}
	default:
		err = fmt.Errorf("unknown order driver %q", cfg.Checkout.OrderDriver)
	}
	if err != nil {
		_ = s.close(ctx)
		return nil, err
	}
	return s, nil
}

// gorm 打开 (或复用) 一个 GORM 连接，库存和订单使用同一种数据库时共享连接
func (s *stores) gorm(ctx context.Context, cfg *bootstrap.Config, driver string) (*gorm.DB, error) {
	if db, ok := s.gormDBs[driver]; ok {
		return db, nil
	}
	var (
		db  *gorm.DB
		err error
	)
	if driver == "mysql" {
		db, err = infrastructure.OpenMySQL(ctx, infrastructure.MySQLOptions{
			Addr:     cfg.Infra.MySQL.Addr,
			User:     cfg.Infra.MySQL.User,
			Password: cfg.Infra.MySQL.Password,
			Database: cfg.Infra.MySQL.Database,
		})
	} else {
		db, err = infrastructure.OpenSQLite(ctx, cfg.Infra.SQLite.Path)
	}
	if err != nil {
		return nil, err
	}
	s.gormDBs[driver] = db
	if sqlDB, err := db.DB(); err == nil {
		s.closers = append(s.closers, sqlDB.Close)
	}
	return db, nil
}

func (s *stores) postgres(ctx context.Context, cfg *bootstrap.Config) (*pgxpool.Pool, error) {
	if s.pgPool != nil {
		return s.pgPool, nil
	}
	pool, err := infrastructure.OpenPostgres(ctx, cfg.Infra.Postgres.URL)
	if err != nil {
		return nil, err
	}
	s.pgPool = pool
	s.closers = append(s.closers, func() error { pool.Close(); return nil })
	return pool, nil
}

func (s *stores) close(context.Context) error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}
