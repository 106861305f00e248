package api

import (
	"net/http"

	"crm-backend/internal/auth/delivery"
	authUsecase "crm-backend/internal/auth/usecase"
	errorlogDelivery "crm-backend/internal/errorlog/delivery"
	integrationDelivery "crm-backend/internal/integration/delivery"
	webhookDelivery "crm-backend/internal/webhook/delivery"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, authUsecase authUsecase.AuthUsecase, integrationHandler *integrationDelivery.IntegrationHandler, webhookHandler *webhookDelivery.WebhookHandler, errorLogHandler *errorlogDelivery.ErrorLogHandler) {
	authHandler := delivery.NewAuthHandler(authUsecase)
	requireUser := delivery.AuthMiddleware(authUsecase)
	requireAdmin := delivery.RequireAdmin()

	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.GET("/me", requireUser, authHandler.Me)

			// OAuth: the callback is authenticated by its signed state
			auth.GET("/:provider", requireUser, integrationHandler.Authorize)
			auth.GET("/:provider/callback", integrationHandler.Callback)
		}

		// Integration routes (protected)
		api.GET("/connection-status", requireUser, integrationHandler.ConnectionStatus)
		integrations := api.Group("/integrations")
		integrations.Use(requireUser)
		{
			integrations.DELETE("/:provider", integrationHandler.Disconnect)
			integrations.POST("/:provider/sync-contacts", integrationHandler.SyncContacts)
		}

		// Inbound webhooks (authenticated by signature or token)
		api.POST("/webhooks/incoming/:provider/:token", webhookHandler.IncomingWebhook)
		api.POST("/webhooks/:provider", webhookHandler.ProviderWebhook)

		// Webhook configuration (protected)
		webhooks := api.Group("/webhooks")
		webhooks.Use(requireUser)
		{
			webhooks.POST("", webhookHandler.CreateWebhook)
			webhooks.GET("", webhookHandler.ListWebhooks)
			webhooks.GET("/:id", webhookHandler.GetWebhook)
			webhooks.PUT("/:id", webhookHandler.UpdateWebhook)
			webhooks.DELETE("/:id", webhookHandler.DeleteWebhook)
			webhooks.POST("/test/:id", webhookHandler.TestWebhook)
		}

		// Settings routes (protected) - Runtime configuration, global so writes are admin only
		settings := api.Group("/settings")
		settings.Use(requireUser)
		{
			settings.GET("/delivery-status-policy", GetDeliveryStatusPolicy)
			settings.PUT("/delivery-status-policy", requireAdmin, UpdateDeliveryStatusPolicy)
		}

		api.GET("/error-logs", requireUser, errorLogHandler.ListErrorLogs)
	}
}
