package testutil

import (
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"contest-bot/internal/models"
)

// NewTestDB opens a fresh named in-memory sqlite database and migrates the
// contest schema. cache=shared keeps gorm's pooled connections attached to
// the same database; the name keeps tests isolated from each other.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	if err := db.AutoMigrate(&models.Participant{}, &models.Referral{}); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return db
}
