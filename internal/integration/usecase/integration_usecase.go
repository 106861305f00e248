package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm-backend/internal/integration/domain"
	"crm-backend/internal/integration/dto"
	"crm-backend/internal/integration/repository"
	"crm-backend/pkg/apperror"
	"crm-backend/pkg/logger"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"
)

// integrationUsecase implements IntegrationUsecase interface
type integrationUsecase struct {
	repo      repository.ConnectionRepository
	providers map[string]OAuthProvider
	stateKey  []byte
	now       func() time.Time
	flights   singleflight.Group
	log       zerolog.Logger
}

// Option customizes the usecase
type Option func(*integrationUsecase)

// WithClock replaces the wall clock used for expiry arithmetic
func WithClock(now func() time.Time) Option {
	return func(u *integrationUsecase) { u.now = now }
}

// NewIntegrationUsecase creates a new instance of integrationUsecase.
// providers is keyed by canonical provider name.
func NewIntegrationUsecase(repo repository.ConnectionRepository, providers map[string]OAuthProvider, stateKey string, opts ...Option) IntegrationUsecase {
	u := &integrationUsecase{
		repo:      repo,
		providers: providers,
		stateKey:  []byte(stateKey),
		now:       func() time.Time { return time.Now().UTC() },
		log:       logger.Component("integration"),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func (u *integrationUsecase) provider(name string) (OAuthProvider, error) {
	p, ok := u.providers[name]
	if !ok || p == nil {
		return nil, fmt.Errorf("%w: %s", apperror.ErrUnsupportedProvider, name)
	}
	return p, nil
}

func (u *integrationUsecase) AuthorizationURL(userID, provider string) (string, error) {
	provider = domain.NormalizeProvider(provider)
	p, err := u.provider(provider)
	if err != nil {
		return "", err
	}
	state, err := u.signState(userID, provider)
	if err != nil {
		return "", err
	}
	return p.AuthCodeURL(state), nil
}

func (u *integrationUsecase) GetConnection(userID, provider string) (*domain.IntegrationConnection, error) {
	return u.repo.Get(userID, domain.NormalizeProvider(provider))
}

func (u *integrationUsecase) activeConnection(userID, provider string) (*domain.IntegrationConnection, error) {
	conn, err := u.repo.Get(userID, provider)
	if err != nil {
		return nil, err
	}
	if conn == nil || !conn.IsActive {
		return nil, fmt.Errorf("%w: user %s, provider %s", apperror.ErrNoActiveConnection, userID, provider)
	}
	return conn, nil
}

// GetValidAccessToken returns a token that has not expired, refreshing the
// connection first when needed. A failed refresh never yields the stale token.
func (u *integrationUsecase) GetValidAccessToken(ctx context.Context, userID, provider string) (string, error) {
	provider = domain.NormalizeProvider(provider)
	conn, err := u.activeConnection(userID, provider)
	if err != nil {
		return "", err
	}

	if conn.IsExpired(u.now()) {
		conn, err = u.Refresh(ctx, conn)
		if err != nil {
			return "", err
		}
	}
	return conn.AccessToken, nil
}

func (u *integrationUsecase) ExchangeAuthorizationCode(ctx context.Context, userID, provider, code string, extraConfig map[string]interface{}) (*domain.IntegrationConnection, error) {
	provider = domain.NormalizeProvider(provider)
	p, err := u.provider(provider)
	if err != nil {
		return nil, err
	}
	if code == "" {
		return nil, fmt.Errorf("%w: missing authorization code", apperror.ErrMalformedPayload)
	}

	tok, err := p.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	now := u.now()
	expiresAt := now.Add(time.Duration(tok.ExpiresIn) * time.Second)

	config := datatypes.JSONMap{}
	for k, v := range extraConfig {
		config[k] = v
	}
	setIfMissing(config, "locationId", tok.LocationID)
	setIfMissing(config, "companyId", tok.CompanyID)
	setIfMissing(config, "userType", tok.UserType)

	conn, err := u.repo.Upsert(&domain.IntegrationConnection{
		UserID:          userID,
		Provider:        provider,
		AccessToken:     tok.AccessToken,
		RefreshToken:    tok.RefreshToken,
		TokenType:       tok.TokenType,
		Scope:           tok.Scope,
		TokenExpiresAt:  &expiresAt,
		IsActive:        true,
		Config:          config,
		LastRefreshedAt: &now,
	})
	if err != nil {
		return nil, err
	}

	u.log.Info().Str("user_id", userID).Str("provider", provider).
		Time("expires_at", expiresAt).Msg("connection authorized")
	return conn, nil
}

func setIfMissing(config datatypes.JSONMap, key, value string) {
	if value == "" {
		return
	}
	if existing, ok := config[key]; ok && existing != "" && existing != nil {
		return
	}
	config[key] = value
}

// Refresh renews the connection's tokens. Concurrent refreshes of the same
// (user, provider) share one provider call; a caller arriving after another
// flight already rotated the tokens gets the stored result without a second call.
func (u *integrationUsecase) Refresh(ctx context.Context, conn *domain.IntegrationConnection) (*domain.IntegrationConnection, error) {
	key := conn.UserID + ":" + conn.Provider
	observed := conn.AccessToken

	v, err, shared := u.flights.Do(key, func() (interface{}, error) {
		current, err := u.activeConnection(conn.UserID, conn.Provider)
		if err != nil {
			return nil, err
		}
		if current.AccessToken != observed && !current.IsExpired(u.now()) {
			return current, nil
		}
		// The flight outlives any single caller's cancellation.
		return u.refresh(context.WithoutCancel(ctx), current)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		u.log.Debug().Str("key", key).Msg("joined in-flight refresh")
	}
	return v.(*domain.IntegrationConnection), nil
}

func (u *integrationUsecase) refresh(ctx context.Context, conn *domain.IntegrationConnection) (*domain.IntegrationConnection, error) {
	p, err := u.provider(conn.Provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperror.ErrRefreshFailed, err)
	}

	tok, err := p.Refresh(ctx, conn.RefreshToken)
	now := u.now()
	if err != nil {
		// Tokens stay untouched; only the failure is recorded.
		if uerr := u.repo.Update(conn.ID, map[string]interface{}{
			"refresh_failed_at":  now,
			"last_refresh_error": err.Error(),
		}); uerr != nil {
			u.log.Error().Err(uerr).Str("connection_id", conn.ID).Msg("failed to record refresh failure")
		}
		u.log.Warn().Err(err).Str("user_id", conn.UserID).Str("provider", conn.Provider).Msg("token refresh failed")
		return nil, fmt.Errorf("%w: %w", apperror.ErrRefreshFailed, err)
	}

	expiresAt := now.Add(time.Duration(tok.ExpiresIn) * time.Second)
	patch := map[string]interface{}{
		"access_token":       tok.AccessToken,
		"refresh_token":      tok.RefreshToken,
		"token_type":         tok.TokenType,
		"token_expires_at":   expiresAt,
		"last_refreshed_at":  now,
		"refresh_failed_at":  nil,
		"last_refresh_error": "",
	}
	if tok.Scope != "" {
		patch["scope"] = tok.Scope
	}
	if err := u.repo.Update(conn.ID, patch); err != nil {
		return nil, fmt.Errorf("%w: persist refreshed tokens: %w", apperror.ErrRefreshFailed, err)
	}

	updated, err := u.repo.Get(conn.UserID, conn.Provider)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, fmt.Errorf("%w: connection vanished during refresh", apperror.ErrNoActiveConnection)
	}

	u.log.Info().Str("user_id", conn.UserID).Str("provider", conn.Provider).
		Time("expires_at", expiresAt).Msg("token refreshed")
	return updated, nil
}

func (u *integrationUsecase) ConnectionStatus(ctx context.Context, userID, provider string) (*dto.ConnectionStatusResponse, error) {
	provider = domain.NormalizeProvider(provider)
	status := &dto.ConnectionStatusResponse{Provider: provider}

	conn, err := u.repo.Get(userID, provider)
	if err != nil {
		return nil, err
	}
	if conn == nil || !conn.IsActive {
		status.Reason = "No active connection"
		return status, nil
	}

	if conn.IsExpired(u.now()) {
		conn, err = u.Refresh(ctx, conn)
		if err != nil {
			if errors.Is(err, apperror.ErrNoActiveConnection) {
				status.Reason = "No active connection"
				return status, nil
			}
			status.Reason = "Token expired and refresh failed"
			return status, nil
		}
	}

	status.Connected = true
	status.LocationID = conn.ConfigString("locationId")
	status.TokenExpiresAt = conn.TokenExpiresAt
	return status, nil
}

func (u *integrationUsecase) Disconnect(userID, provider string) error {
	provider = domain.NormalizeProvider(provider)
	conn, err := u.activeConnection(userID, provider)
	if err != nil {
		return err
	}
	if err := u.repo.Update(conn.ID, map[string]interface{}{"is_active": false}); err != nil {
		return err
	}
	u.log.Info().Str("user_id", userID).Str("provider", provider).Msg("connection deactivated")
	return nil
}

func (u *integrationUsecase) FindUserIDByLocation(provider, locationID string) (string, error) {
	if locationID == "" {
		return "", nil
	}
	conn, err := u.repo.FindActiveByConfigValue(domain.NormalizeProvider(provider), "locationId", locationID)
	if err != nil {
		return "", err
	}
	if conn == nil {
		return "", nil
	}
	return conn.UserID, nil
}

func (u *integrationUsecase) RefreshExpiring(ctx context.Context, leeway time.Duration) (int, error) {
	conns, err := u.repo.ListRefreshCandidates(u.now().Add(leeway))
	if err != nil {
		return 0, err
	}

	renewed := 0
	for _, conn := range conns {
		if ctx.Err() != nil {
			return renewed, ctx.Err()
		}
		if _, err := u.Refresh(ctx, conn); err != nil {
			continue
		}
		renewed++
	}
	return renewed, nil
}
