package api

import (
	"net/http"
	"sync"

	crmdomain "crm-backend/internal/crm/domain"
	"crm-backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RuntimeConfig holds runtime-configurable settings
type RuntimeConfig struct {
	DeliveryStatusPolicy crmdomain.StatusPolicy `json:"delivery_status_policy"`
}

var (
	runtimeConfig     = RuntimeConfig{DeliveryStatusPolicy: crmdomain.StatusPolicyOverwrite}
	runtimeConfigLock sync.RWMutex
)

// InitRuntimeConfig initializes runtime config from static config. An unknown
// policy name falls back to overwrite.
func InitRuntimeConfig(deliveryStatusPolicy string) {
	policy, err := crmdomain.ParseStatusPolicy(deliveryStatusPolicy)
	if err != nil {
		logger.Logger.Warn().Err(err).Msg("falling back to overwrite delivery status policy")
		policy = crmdomain.StatusPolicyOverwrite
	}

	runtimeConfigLock.Lock()
	defer runtimeConfigLock.Unlock()
	runtimeConfig = RuntimeConfig{DeliveryStatusPolicy: policy}
}

// GetRuntimeDeliveryStatusPolicy returns the current delivery status policy
func GetRuntimeDeliveryStatusPolicy() crmdomain.StatusPolicy {
	runtimeConfigLock.RLock()
	defer runtimeConfigLock.RUnlock()
	return runtimeConfig.DeliveryStatusPolicy
}

// UpdateDeliveryStatusPolicyRequest represents the request body for updating the policy
type UpdateDeliveryStatusPolicyRequest struct {
	DeliveryStatusPolicy string `json:"delivery_status_policy" binding:"required"`
}

// GetDeliveryStatusPolicy returns the current delivery status policy
// GET /api/settings/delivery-status-policy
func GetDeliveryStatusPolicy(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"delivery_status_policy": GetRuntimeDeliveryStatusPolicy(),
	})
}

// UpdateDeliveryStatusPolicy switches the policy at runtime
// PUT /api/settings/delivery-status-policy
func UpdateDeliveryStatusPolicy(c *gin.Context) {
	var req UpdateDeliveryStatusPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	policy, err := crmdomain.ParseStatusPolicy(req.DeliveryStatusPolicy)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	runtimeConfigLock.Lock()
	runtimeConfig.DeliveryStatusPolicy = policy
	runtimeConfigLock.Unlock()

	logger.Logger.Info().Str("policy", string(policy)).Str("user_id", c.GetString("userID")).Msg("delivery status policy updated")
	c.JSON(http.StatusOK, gin.H{
		"message":                "Delivery status policy updated successfully",
		"delivery_status_policy": policy,
	})
}
