// Package testutil provides shared fixtures for inbox tests.
package testutil

import (
	"testing"
	"time"

	"ridehail/internal/database"
	"ridehail/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewSQLiteDB opens an in-memory database with the inbox schema applied.
// The pool is pinned to one connection so every statement, including those
// inside transactions, sees the same in-memory database.
func NewSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
		NowFunc:                                  func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return db
}

// SeedUsers inserts directory rows for the given ids, named after the id.
func SeedUsers(t *testing.T, db *gorm.DB, ids ...string) {
	t.Helper()
	for _, id := range ids {
		u := models.User{ID: id, Name: "User " + id, Email: id + "@example.com"}
		if err := db.Create(&u).Error; err != nil {
			t.Fatalf("seed user %s: %v", id, err)
		}
	}
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
