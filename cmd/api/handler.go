package api

import (
	authUsecase "crm-backend/internal/auth/usecase"
	errorlogDelivery "crm-backend/internal/errorlog/delivery"
	integrationDelivery "crm-backend/internal/integration/delivery"
	webhookDelivery "crm-backend/internal/webhook/delivery"
	"crm-backend/pkg/config"
	"crm-backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	authUsecase        authUsecase.AuthUsecase
	integrationHandler *integrationDelivery.IntegrationHandler
	webhookHandler     *webhookDelivery.WebhookHandler
	errorLogHandler    *errorlogDelivery.ErrorLogHandler
	config             *config.Config
}

func NewHandler(authUc authUsecase.AuthUsecase, integrationHandler *integrationDelivery.IntegrationHandler, webhookHandler *webhookDelivery.WebhookHandler, errorLogHandler *errorlogDelivery.ErrorLogHandler, cfg *config.Config) *Handler {
	// Initialize runtime config for settings API
	InitRuntimeConfig(cfg.DeliveryStatusPolicy)
	logger.Logger.Info().Str("policy", string(GetRuntimeDeliveryStatusPolicy())).Msg("delivery status policy initialized")

	return &Handler{
		authUsecase:        authUc,
		integrationHandler: integrationHandler,
		webhookHandler:     webhookHandler,
		errorLogHandler:    errorLogHandler,
		config:             cfg,
	}
}

// Engine builds the gin engine with CORS and every route.
func (h *Handler) Engine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Ghl-Signature, X-Webhook-Signature")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Setup routes
	SetupRoutes(r, h.authUsecase, h.integrationHandler, h.webhookHandler, h.errorLogHandler)
	return r
}

func (h *Handler) Start(addr string) error {
	logger.Logger.Info().Str("addr", addr).Msg("http server listening")
	return h.Engine().Run(addr)
}
