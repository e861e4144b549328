package models_test

import (
	"fmt"
	"testing"

	"github.com/0xCarti/invoicemanager/config"
	"github.com/0xCarti/invoicemanager/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB swaps the shared connection for an in-memory sqlite database
// with the full schema migrated. The database is named after the test so
// parallel packages cannot see each other's data; pool size is pinned to one
// connection so every query sees the same in-memory database.
func setupTestDB(t *testing.T) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	config.SetDB(db)
	models.MigrateTable()

	t.Cleanup(func() {
		config.SetDB(nil)
		_ = sqlDB.Close()
	})
}
