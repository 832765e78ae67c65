package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gary-ai/backend/internal/models"
	"github.com/gary-ai/backend/pkg/database"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newHandlerTestDB(t *testing.T) *database.DB {
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

// decodeResponse unmarshals a recorded envelope body.
func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func errorMessage(resp map[string]interface{}) string {
	errObj, _ := resp["error"].(map[string]interface{})
	msg, _ := errObj["message"].(string)
	return msg
}

func responseData(t *testing.T, resp map[string]interface{}) map[string]interface{} {
	t.Helper()
	data, ok := resp["data"].(map[string]interface{})
	require.True(t, ok, "expected a data object in the envelope")
	return data
}
