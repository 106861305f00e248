package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"crm-backend/internal/errorlog/domain"
	"crm-backend/internal/errorlog/repository"
	"crm-backend/internal/errorlog/usecase"
	"crm-backend/pkg/database"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type listResponse struct {
	ErrorLogs []domain.ErrorLog `json:"error_logs"`
	Total     int               `json:"total"`
}

func setupRouter(t *testing.T) (*gin.Engine, usecase.Sink) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := database.NewSQLiteConnection("file::memory:")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.ErrorLog{}))

	sink := usecase.NewSink(repository.NewErrorLogRepository(db))
	h := NewErrorLogHandler(sink)

	r := gin.New()
	r.GET("/api/error-logs", func(c *gin.Context) {
		c.Set("userID", c.GetHeader("X-Test-User"))
		c.Set("isAdmin", c.GetHeader("X-Test-Admin") == "true")
		c.Next()
	}, h.ListErrorLogs)
	return r, sink
}

func list(t *testing.T, r *gin.Engine, target, userID string, admin bool) (int, listResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("X-Test-User", userID)
	if admin {
		req.Header.Set("X-Test-Admin", "true")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp listResponse
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w.Code, resp
}

func TestListErrorLogsIsScopedToCaller(t *testing.T) {
	r, sink := setupRouter(t)
	sink.LogError(context.Background(), "GHL Webhook Handler", "missing contact id", "", map[string]interface{}{
		"user_id": "user-a",
		"body":    map[string]interface{}{"email": "lead@example.com"},
	})
	sink.LogError(context.Background(), "Outbound Webhook", "status 500", "", map[string]interface{}{"user_id": "user-b"})
	sink.LogError(context.Background(), "GHL Webhook Handler", "unattributed", "", nil)

	code, resp := list(t, r, "/api/error-logs", "user-a", false)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, resp.Total)
	require.Equal(t, "missing contact id", resp.ErrorLogs[0].Message)

	code, resp = list(t, r, "/api/error-logs", "user-b", false)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, resp.Total)
	require.Equal(t, "status 500", resp.ErrorLogs[0].Message)

	code, _ = list(t, r, "/api/error-logs?scope=all", "user-b", false)
	require.Equal(t, http.StatusForbidden, code)

	code, resp = list(t, r, "/api/error-logs?scope=all", "admin", true)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 3, resp.Total)
}

func TestListErrorLogsCapsLimit(t *testing.T) {
	r, sink := setupRouter(t)
	for i := 0; i < 3; i++ {
		sink.LogError(context.Background(), "Outbound Webhook", "status 500", "", map[string]interface{}{"user_id": "u1"})
	}

	code, resp := list(t, r, "/api/error-logs?limit=2", "u1", false)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 2, resp.Total)

	code, resp = list(t, r, "/api/error-logs?limit=100000", "u1", false)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 3, resp.Total)
}
