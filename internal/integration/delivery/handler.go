package delivery

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"crm-backend/internal/integration/domain"
	"crm-backend/internal/integration/dto"
	"crm-backend/internal/integration/usecase"
	"crm-backend/pkg/apperror"
	"crm-backend/pkg/ghl"
	"crm-backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ContactLister reads contacts from the provider API
type ContactLister interface {
	ListContacts(ctx context.Context, accessToken, locationID string, limit int) ([]ghl.Contact, error)
}

// ContactImporter stores provider contacts locally
type ContactImporter interface {
	ImportContacts(ctx context.Context, userID string, contacts []ghl.Contact) (int, error)
}

// IntegrationHandler handles OAuth and connection HTTP requests
type IntegrationHandler struct {
	integrationUsecase usecase.IntegrationUsecase
	contacts           ContactLister
	importer           ContactImporter
	frontendURL        string
}

// NewIntegrationHandler creates a new IntegrationHandler
func NewIntegrationHandler(integrationUsecase usecase.IntegrationUsecase, contacts ContactLister, importer ContactImporter, frontendURL string) *IntegrationHandler {
	return &IntegrationHandler{
		integrationUsecase: integrationUsecase,
		contacts:           contacts,
		importer:           importer,
		frontendURL:        strings.TrimRight(frontendURL, "/"),
	}
}

// Authorize sends the user to the provider's consent screen
// GET /api/auth/:provider
func (h *IntegrationHandler) Authorize(c *gin.Context) {
	userID := c.GetString("userID")

	authURL, err := h.integrationUsecase.AuthorizationURL(userID, c.Param("provider"))
	if err != nil {
		c.JSON(apperror.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	if strings.Contains(c.GetHeader("Accept"), "application/json") {
		c.JSON(http.StatusOK, dto.AuthURLResponse{URL: authURL})
		return
	}
	c.Redirect(http.StatusFound, authURL)
}

// Callback completes the OAuth flow and redirects back to the settings page
// GET /api/auth/:provider/callback?code=...&state=...&locationId=...
func (h *IntegrationHandler) Callback(c *gin.Context) {
	provider := domain.NormalizeProvider(c.Param("provider"))

	if providerErr := c.Query("error"); providerErr != "" {
		logger.Logger.Warn().Str("provider", provider).Str("error", providerErr).Msg("provider denied authorization")
		h.redirectResult(c, "error", provider+"-auth-failed")
		return
	}

	userID, stateProvider, err := h.integrationUsecase.ParseState(c.Query("state"))
	if err != nil || stateProvider != provider {
		logger.Logger.Warn().Err(err).Str("provider", provider).Msg("rejected oauth callback state")
		h.redirectResult(c, "error", provider+"-auth-failed")
		return
	}

	extra := map[string]interface{}{}
	if locationID := c.Query("locationId"); locationID != "" {
		extra["locationId"] = locationID
	}

	if _, err := h.integrationUsecase.ExchangeAuthorizationCode(c.Request.Context(), userID, provider, c.Query("code"), extra); err != nil {
		logger.Logger.Error().Err(err).Str("user_id", userID).Str("provider", provider).Msg("oauth code exchange failed")
		h.redirectResult(c, "error", provider+"-auth-failed")
		return
	}

	h.redirectResult(c, "success", provider+"-connected")
}

func (h *IntegrationHandler) redirectResult(c *gin.Context, key, value string) {
	q := url.Values{}
	q.Set(key, value)
	c.Redirect(http.StatusFound, h.frontendURL+"/settings/integrations?"+q.Encode())
}

// ConnectionStatus reports whether the user has a usable connection
// GET /api/connection-status?provider=ghl
func (h *IntegrationHandler) ConnectionStatus(c *gin.Context) {
	userID := c.GetString("userID")
	provider := c.DefaultQuery("provider", domain.ProviderGHL)

	status, err := h.integrationUsecase.ConnectionStatus(c.Request.Context(), userID, provider)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

// Disconnect deactivates the user's connection
// DELETE /api/integrations/:provider
func (h *IntegrationHandler) Disconnect(c *gin.Context) {
	userID := c.GetString("userID")

	if err := h.integrationUsecase.Disconnect(userID, c.Param("provider")); err != nil {
		c.JSON(apperror.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Integration disconnected"})
}

// SyncContacts imports the provider's contacts for the connected location
// POST /api/integrations/:provider/sync-contacts?limit=100
func (h *IntegrationHandler) SyncContacts(c *gin.Context) {
	userID := c.GetString("userID")
	provider := domain.NormalizeProvider(c.Param("provider"))
	if provider != domain.ProviderGHL {
		c.JSON(http.StatusBadRequest, gin.H{"error": "contact sync is not supported for " + provider})
		return
	}

	ctx := c.Request.Context()
	token, err := h.integrationUsecase.GetValidAccessToken(ctx, userID, provider)
	if err != nil {
		c.JSON(apperror.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	conn, err := h.integrationUsecase.GetConnection(userID, provider)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	locationID := conn.ConfigString("locationId")
	if locationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "connection has no locationId"})
		return
	}

	contacts, err := h.contacts.ListContacts(ctx, token, locationID, 100)
	if err != nil {
		c.JSON(apperror.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	imported, err := h.importer.ImportContacts(ctx, userID, contacts)
	if err != nil && !errors.Is(err, apperror.ErrMalformedPayload) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.SyncContactsResponse{Imported: imported})
}
