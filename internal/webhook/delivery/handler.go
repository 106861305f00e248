package delivery

import (
	"errors"
	"net/http"
	"strings"

	"crm-backend/internal/webhook/domain"
	"crm-backend/internal/webhook/dto"
	"crm-backend/internal/webhook/usecase"
	"crm-backend/pkg/apperror"
	"crm-backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// WebhookHandler handles inbound webhooks and webhook configuration requests
type WebhookHandler struct {
	inbound        *usecase.InboundService
	webhookUsecase usecase.WebhookUsecase
	publicURL      string
}

// NewWebhookHandler creates a new WebhookHandler. publicURL is the externally
// reachable base of this API, used to build incoming webhook URLs.
func NewWebhookHandler(inbound *usecase.InboundService, webhookUsecase usecase.WebhookUsecase, publicURL string) *WebhookHandler {
	return &WebhookHandler{
		inbound:        inbound,
		webhookUsecase: webhookUsecase,
		publicURL:      strings.TrimRight(publicURL, "/"),
	}
}

// ProviderWebhook receives a webhook signed with the provider's shared secret
// POST /api/webhooks/:provider
func (h *WebhookHandler) ProviderWebhook(c *gin.Context) {
	provider := c.Param("provider")
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	sig := c.GetHeader("x-" + strings.ToLower(provider) + "-signature")
	if err := h.inbound.HandleProviderWebhook(c.Request.Context(), provider, raw, sig); err != nil {
		h.respondInbound(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// IncomingWebhook receives a webhook on a per-user tokenized URL
// POST /api/webhooks/incoming/:provider/:token
func (h *WebhookHandler) IncomingWebhook(c *gin.Context) {
	provider := c.Param("provider")
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	sig := c.GetHeader("x-" + strings.ToLower(provider) + "-signature")
	if sig == "" {
		sig = c.GetHeader("x-webhook-signature")
	}
	if err := h.inbound.HandleIncomingWebhook(c.Request.Context(), provider, c.Param("token"), raw, sig); err != nil {
		h.respondInbound(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *WebhookHandler) respondInbound(c *gin.Context, err error) {
	if errors.Is(err, apperror.ErrUnauthorized) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	logger.Logger.Error().Err(err).Str("path", c.FullPath()).Msg("inbound webhook failed")
	c.JSON(apperror.HTTPStatus(err), gin.H{"error": "Internal server error"})
}

// CreateWebhook creates an INCOMING or OUTGOING webhook
// POST /api/webhooks
func (h *WebhookHandler) CreateWebhook(c *gin.Context) {
	userID := c.GetString("userID")

	var req dto.CreateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	webhook, err := h.webhookUsecase.Create(userID, &req)
	if err != nil {
		c.JSON(apperror.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, h.response(webhook))
}

// ListWebhooks returns the user's webhooks
// GET /api/webhooks
func (h *WebhookHandler) ListWebhooks(c *gin.Context) {
	userID := c.GetString("userID")

	webhooks, err := h.webhookUsecase.List(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	items := make([]dto.WebhookResponse, 0, len(webhooks))
	for _, w := range webhooks {
		items = append(items, h.response(w))
	}
	c.JSON(http.StatusOK, gin.H{
		"webhooks": items,
		"total":    len(items),
	})
}

// GetWebhook returns one webhook
// GET /api/webhooks/:id
func (h *WebhookHandler) GetWebhook(c *gin.Context) {
	webhook, err := h.webhookUsecase.Get(c.GetString("userID"), c.Param("id"))
	if err != nil {
		c.JSON(apperror.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.response(webhook))
}

// UpdateWebhook patches a webhook
// PUT /api/webhooks/:id
func (h *WebhookHandler) UpdateWebhook(c *gin.Context) {
	var req dto.UpdateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	webhook, err := h.webhookUsecase.Update(c.GetString("userID"), c.Param("id"), &req)
	if err != nil {
		c.JSON(apperror.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.response(webhook))
}

// DeleteWebhook deletes a webhook
// DELETE /api/webhooks/:id
func (h *WebhookHandler) DeleteWebhook(c *gin.Context) {
	if err := h.webhookUsecase.Delete(c.GetString("userID"), c.Param("id")); err != nil {
		c.JSON(apperror.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Webhook deleted"})
}

// TestWebhook sends a sample event to an OUTGOING webhook
// POST /api/webhooks/test/:id
func (h *WebhookHandler) TestWebhook(c *gin.Context) {
	result, err := h.webhookUsecase.Test(c.Request.Context(), c.GetString("userID"), c.Param("id"))
	if err != nil {
		if result != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "error": err.Error(), "result": result})
			return
		}
		status := apperror.HTTPStatus(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}

func (h *WebhookHandler) response(w *domain.Webhook) dto.WebhookResponse {
	resp := dto.WebhookResponse{Webhook: w.View()}
	if w.Type == domain.WebhookTypeIncoming && w.EndpointToken != nil {
		resp.IncomingURL = h.publicURL + "/api/webhooks/incoming/" + w.Provider + "/" + *w.EndpointToken
	}
	return resp
}
