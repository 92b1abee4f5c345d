package repository

import (
	"testing"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/viaduct-io/viaduct/gateway/internal/db"
)

// newTestDB opens a fresh in-memory SQLite database with migrations
// applied, exactly the way the Gateway's cmd entrypoints do at startup.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	if err := db.InitEncryption([]byte("01234567890123456789012345678901")); err != nil {
		t.Fatalf("InitEncryption: %v", err)
	}

	database, err := db.New(db.Config{
		Driver: "sqlite",
		DSN:    ":memory:",
		Logger: zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	t.Cleanup(func() {
		sqlDB, err := database.DB()
		if err == nil {
			sqlDB.Close()
		}
	})
	return database
}
