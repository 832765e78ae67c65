package services

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gary-ai/backend/internal/models"
	"github.com/gary-ai/backend/pkg/database"
)

// newServiceTestDB opens an in-memory database with the full schema for
// service-level tests.
func newServiceTestDB(t *testing.T) *database.DB {
	t.Helper()

	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, gormDB.AutoMigrate(
		&models.DailyPickSet{},
		&models.PickResult{},
		&models.User{},
		&models.WebhookEvent{},
	))
	return &database.DB{DB: gormDB}
}
