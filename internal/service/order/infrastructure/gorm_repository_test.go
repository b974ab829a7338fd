package infrastructure

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "storefront.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestGormStockStore(t *testing.T) {
	testStockContract(t, NewGormStockStore(openTestSQLite(t)))
}

func TestGormOrderRepository(t *testing.T) {
	testOrderContract(t, NewGormOrderRepository(openTestSQLite(t)))
}

func TestMySQLOptionsDSN(t *testing.T) {
	dsn := MySQLOptions{Addr: "db:3306", User: "shop", Password: "secret", Database: "storefront"}.DSN()
	assert.Contains(t, dsn, "shop:secret@tcp(db:3306)/storefront")
	assert.Contains(t, dsn, "parseTime=true")
}
