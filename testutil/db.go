// Package testutil holds helpers shared by package tests.
package testutil

import (
	"testing"

	"esign-backend/database"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenDB returns an in-memory SQLite database with the public schema
// migrated. A single connection keeps every query on the same memory
// database and serializes transactions the way row locks would.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.MigratePublic(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
