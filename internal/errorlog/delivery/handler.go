package delivery

import (
	"net/http"
	"strconv"

	"crm-backend/internal/errorlog/usecase"

	"github.com/gin-gonic/gin"
)

// ErrorLogHandler exposes the persisted error log
type ErrorLogHandler struct {
	sink usecase.Sink
}

// NewErrorLogHandler creates a new ErrorLogHandler
func NewErrorLogHandler(sink usecase.Sink) *ErrorLogHandler {
	return &ErrorLogHandler{sink: sink}
}

const maxListLimit = 500

// ListErrorLogs returns the caller's latest error log entries. Admins may pass
// scope=all to see entries of every user.
// GET /api/error-logs?limit=100&scope=all
func (h *ErrorLogHandler) ListErrorLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	userID := c.GetString("userID")
	if c.Query("scope") == "all" {
		if !c.GetBool("isAdmin") {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		userID = ""
	} else if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	entries, err := h.sink.Recent(userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"error_logs": entries,
		"total":      len(entries),
	})
}
