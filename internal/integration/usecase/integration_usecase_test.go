package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"crm-backend/internal/integration/domain"
	"crm-backend/internal/integration/repository"
	"crm-backend/pkg/apperror"
	"crm-backend/pkg/database"
	"crm-backend/pkg/ghl"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

type fakeProvider struct {
	refreshCalls  int32
	exchangeCalls int32
	refreshDelay  time.Duration
	refreshErr    error
	exchange      *ghl.TokenResponse
}

func (f *fakeProvider) AuthCodeURL(state string) string {
	return "https://provider.example/oauth?state=" + state
}

func (f *fakeProvider) Exchange(ctx context.Context, code string) (*ghl.TokenResponse, error) {
	atomic.AddInt32(&f.exchangeCalls, 1)
	return f.exchange, nil
}

func (f *fakeProvider) Refresh(ctx context.Context, refreshToken string) (*ghl.TokenResponse, error) {
	n := atomic.AddInt32(&f.refreshCalls, 1)
	if f.refreshDelay > 0 {
		time.Sleep(f.refreshDelay)
	}
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &ghl.TokenResponse{
		AccessToken:  "access-" + string(rune('0'+n)),
		RefreshToken: "refresh-" + string(rune('0'+n)),
		ExpiresIn:    3600,
		TokenType:    "Bearer",
	}, nil
}

var fixedNow = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T, provider *fakeProvider) (IntegrationUsecase, repository.ConnectionRepository) {
	t.Helper()
	db, err := database.NewSQLiteConnection("file::memory:")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.IntegrationConnection{}))

	repo := repository.NewConnectionRepository(db)
	uc := NewIntegrationUsecase(repo, map[string]OAuthProvider{domain.ProviderGHL: provider}, "state-secret",
		WithClock(func() time.Time { return fixedNow }))
	return uc, repo
}

func seedConnection(t *testing.T, repo repository.ConnectionRepository, expiresAt time.Time) *domain.IntegrationConnection {
	t.Helper()
	conn, err := repo.Upsert(&domain.IntegrationConnection{
		UserID:         "user-1",
		Provider:       domain.ProviderGHL,
		AccessToken:    "old-access",
		RefreshToken:   "old-refresh",
		TokenType:      "Bearer",
		TokenExpiresAt: &expiresAt,
		IsActive:       true,
		Config:         datatypes.JSONMap{"locationId": "loc-1"},
	})
	require.NoError(t, err)
	return conn
}

func TestExchangeAuthorizationCodeComputesExpiry(t *testing.T) {
	provider := &fakeProvider{exchange: &ghl.TokenResponse{
		AccessToken:  "a",
		RefreshToken: "r",
		ExpiresIn:    3600,
		TokenType:    "Bearer",
		LocationID:   "loc-from-token",
	}}
	uc, _ := setup(t, provider)

	conn, err := uc.ExchangeAuthorizationCode(context.Background(), "user-1", "gohighlevel", "code", map[string]interface{}{
		"locationId": "loc-from-callback",
	})
	require.NoError(t, err)
	require.Equal(t, domain.ProviderGHL, conn.Provider)
	require.Equal(t, "a", conn.AccessToken)
	require.Equal(t, "r", conn.RefreshToken)
	require.True(t, conn.IsActive)
	require.NotNil(t, conn.TokenExpiresAt)
	require.True(t, fixedNow.Add(3600*time.Second).Equal(*conn.TokenExpiresAt))
	require.Equal(t, "loc-from-callback", conn.ConfigString("locationId"))
}

func TestExchangeAuthorizationCodeUpdatesInPlace(t *testing.T) {
	provider := &fakeProvider{exchange: &ghl.TokenResponse{AccessToken: "a2", RefreshToken: "r2", ExpiresIn: 60, TokenType: "Bearer"}}
	uc, repo := setup(t, provider)
	existing := seedConnection(t, repo, fixedNow.Add(-time.Hour))
	require.NoError(t, repo.Update(existing.ID, map[string]interface{}{"is_active": false}))

	conn, err := uc.ExchangeAuthorizationCode(context.Background(), "user-1", "ghl", "code", nil)
	require.NoError(t, err)
	require.Equal(t, existing.ID, conn.ID)
	require.Equal(t, "a2", conn.AccessToken)
	require.True(t, conn.IsActive)
}

func TestGetValidAccessTokenNoConnection(t *testing.T) {
	uc, _ := setup(t, &fakeProvider{})

	_, err := uc.GetValidAccessToken(context.Background(), "nobody", "ghl")
	require.ErrorIs(t, err, apperror.ErrNoActiveConnection)
}

func TestGetValidAccessTokenInactiveConnection(t *testing.T) {
	uc, repo := setup(t, &fakeProvider{})
	conn := seedConnection(t, repo, fixedNow.Add(time.Hour))
	require.NoError(t, uc.Disconnect(conn.UserID, "ghl"))

	_, err := uc.GetValidAccessToken(context.Background(), "user-1", "ghl")
	require.ErrorIs(t, err, apperror.ErrNoActiveConnection)
}

func TestGetValidAccessTokenNotExpired(t *testing.T) {
	provider := &fakeProvider{}
	uc, repo := setup(t, provider)
	seedConnection(t, repo, fixedNow.Add(time.Minute))

	token, err := uc.GetValidAccessToken(context.Background(), "user-1", "ghl")
	require.NoError(t, err)
	require.Equal(t, "old-access", token)
	require.Zero(t, atomic.LoadInt32(&provider.refreshCalls))
}

func TestGetValidAccessTokenRefreshesExpired(t *testing.T) {
	provider := &fakeProvider{}
	uc, repo := setup(t, provider)
	seedConnection(t, repo, fixedNow.Add(-time.Second))

	token, err := uc.GetValidAccessToken(context.Background(), "user-1", "ghl")
	require.NoError(t, err)
	require.Equal(t, "access-1", token)

	stored, err := repo.Get("user-1", domain.ProviderGHL)
	require.NoError(t, err)
	require.Equal(t, "refresh-1", stored.RefreshToken)
	require.True(t, fixedNow.Add(time.Hour).Equal(*stored.TokenExpiresAt))
	require.Nil(t, stored.RefreshFailedAt)
}

func TestConcurrentGetValidAccessTokenRefreshesOnce(t *testing.T) {
	provider := &fakeProvider{refreshDelay: 50 * time.Millisecond}
	uc, repo := setup(t, provider)
	seedConnection(t, repo, fixedNow.Add(-time.Minute))

	const callers = 10
	var wg sync.WaitGroup
	tokens := make(chan string, callers)
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := uc.GetValidAccessToken(context.Background(), "user-1", "ghl")
			tokens <- token
			errs <- err
		}()
	}
	wg.Wait()
	close(tokens)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	for token := range tokens {
		require.Equal(t, "access-1", token)
	}
	require.EqualValues(t, 1, atomic.LoadInt32(&provider.refreshCalls))
}

func TestRefreshFailureLeavesTokensUnchanged(t *testing.T) {
	provider := &fakeProvider{refreshErr: errors.New("invalid_grant")}
	uc, repo := setup(t, provider)
	seedConnection(t, repo, fixedNow.Add(-time.Minute))

	_, err := uc.GetValidAccessToken(context.Background(), "user-1", "ghl")
	require.ErrorIs(t, err, apperror.ErrRefreshFailed)

	stored, err := repo.Get("user-1", domain.ProviderGHL)
	require.NoError(t, err)
	require.Equal(t, "old-access", stored.AccessToken)
	require.Equal(t, "old-refresh", stored.RefreshToken)
	require.NotNil(t, stored.RefreshFailedAt)
	require.Contains(t, stored.LastRefreshError, "invalid_grant")
}

func TestConnectionStatus(t *testing.T) {
	t.Run("not connected", func(t *testing.T) {
		uc, _ := setup(t, &fakeProvider{})
		status, err := uc.ConnectionStatus(context.Background(), "user-1", "ghl")
		require.NoError(t, err)
		require.False(t, status.Connected)
	})

	t.Run("connected", func(t *testing.T) {
		uc, repo := setup(t, &fakeProvider{})
		seedConnection(t, repo, fixedNow.Add(time.Hour))
		status, err := uc.ConnectionStatus(context.Background(), "user-1", "ghl")
		require.NoError(t, err)
		require.True(t, status.Connected)
		require.Equal(t, "loc-1", status.LocationID)
	})

	t.Run("expired and refresh fails", func(t *testing.T) {
		uc, repo := setup(t, &fakeProvider{refreshErr: errors.New("boom")})
		seedConnection(t, repo, fixedNow.Add(-time.Hour))
		status, err := uc.ConnectionStatus(context.Background(), "user-1", "ghl")
		require.NoError(t, err)
		require.False(t, status.Connected)
		require.Equal(t, "Token expired and refresh failed", status.Reason)
	})
}

func TestFindUserIDByLocation(t *testing.T) {
	uc, repo := setup(t, &fakeProvider{})
	seedConnection(t, repo, fixedNow.Add(time.Hour))

	userID, err := uc.FindUserIDByLocation("gohighlevel", "loc-1")
	require.NoError(t, err)
	require.Equal(t, "user-1", userID)

	userID, err = uc.FindUserIDByLocation("ghl", "loc-unknown")
	require.NoError(t, err)
	require.Empty(t, userID)
}

func TestRefreshExpiringSkipsFailedConnections(t *testing.T) {
	provider := &fakeProvider{refreshErr: errors.New("invalid_grant")}
	uc, repo := setup(t, provider)
	seedConnection(t, repo, fixedNow.Add(5*time.Minute))

	renewed, err := uc.RefreshExpiring(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	require.Zero(t, renewed)
	require.EqualValues(t, 1, atomic.LoadInt32(&provider.refreshCalls))

	renewed, err = uc.RefreshExpiring(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	require.Zero(t, renewed)
	require.EqualValues(t, 1, atomic.LoadInt32(&provider.refreshCalls))
}

func TestRefreshExpiringRenewsSoonToExpire(t *testing.T) {
	provider := &fakeProvider{}
	uc, repo := setup(t, provider)
	seedConnection(t, repo, fixedNow.Add(5*time.Minute))

	renewed, err := uc.RefreshExpiring(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, renewed)

	stored, err := repo.Get("user-1", domain.ProviderGHL)
	require.NoError(t, err)
	require.Equal(t, "access-1", stored.AccessToken)
}

func TestOAuthStateRoundTrip(t *testing.T) {
	uc, _ := setup(t, &fakeProvider{})

	url, err := uc.AuthorizationURL("user-1", "gohighlevel")
	require.NoError(t, err)
	state := url[len("https://provider.example/oauth?state="):]

	userID, provider, err := uc.ParseState(state)
	require.NoError(t, err)
	require.Equal(t, "user-1", userID)
	require.Equal(t, domain.ProviderGHL, provider)

	_, _, err = uc.ParseState(state + "x")
	require.Error(t, err)
}

func TestAuthorizationURLUnknownProvider(t *testing.T) {
	uc, _ := setup(t, &fakeProvider{})
	_, err := uc.AuthorizationURL("user-1", "salesforce")
	require.ErrorIs(t, err, apperror.ErrUnsupportedProvider)
}
