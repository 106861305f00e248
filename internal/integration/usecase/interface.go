package usecase

import (
	"context"
	"time"

	"crm-backend/internal/integration/domain"
	"crm-backend/internal/integration/dto"
	"crm-backend/pkg/ghl"
)

// OAuthProvider is the provider-facing half of the token lifecycle.
// *ghl.Client implements it.
type OAuthProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*ghl.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*ghl.TokenResponse, error)
}

// IntegrationUsecase owns integration connections and their token lifecycle
type IntegrationUsecase interface {
	// AuthorizationURL returns the provider consent URL with a signed state
	// naming the user.
	AuthorizationURL(userID, provider string) (string, error)
	// ParseState verifies a callback state and returns the user and provider it names.
	ParseState(state string) (userID, provider string, err error)

	GetValidAccessToken(ctx context.Context, userID, provider string) (string, error)
	ExchangeAuthorizationCode(ctx context.Context, userID, provider, code string, extraConfig map[string]interface{}) (*domain.IntegrationConnection, error)
	Refresh(ctx context.Context, conn *domain.IntegrationConnection) (*domain.IntegrationConnection, error)

	GetConnection(userID, provider string) (*domain.IntegrationConnection, error)
	ConnectionStatus(ctx context.Context, userID, provider string) (*dto.ConnectionStatusResponse, error)
	Disconnect(userID, provider string) error
	// FindUserIDByLocation resolves the owner of the active connection bound
	// to a provider location. Returns "" when none is bound.
	FindUserIDByLocation(provider, locationID string) (string, error)
	// RefreshExpiring refreshes active connections expiring within leeway and
	// returns how many were renewed.
	RefreshExpiring(ctx context.Context, leeway time.Duration) (int, error)
}
