package repository

import (
	"testing"

	"crm-backend/internal/webhook/domain"
	"crm-backend/pkg/apperror"
	"crm-backend/pkg/database"

	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) WebhookRepository {
	t.Helper()
	db, err := database.NewSQLiteConnection("file::memory:")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Webhook{}))
	return NewWebhookRepository(db)
}

func TestCreateRejectsDuplicateEndpointToken(t *testing.T) {
	repo := newTestRepository(t)
	token := "tok-1"

	first := &domain.Webhook{UserID: "u1", Type: domain.WebhookTypeIncoming, Name: "a", Provider: "ghl", IsActive: true, EndpointToken: &token}
	require.NoError(t, repo.Create(first))

	second := &domain.Webhook{UserID: "u1", Type: domain.WebhookTypeIncoming, Name: "b", Provider: "ghl", IsActive: true, EndpointToken: &token}
	require.ErrorIs(t, repo.Create(second), apperror.ErrConflict)

	// Outgoing webhooks carry no token and never collide.
	for i := 0; i < 2; i++ {
		require.NoError(t, repo.Create(&domain.Webhook{
			UserID: "u1", Type: domain.WebhookTypeOutgoing, Name: "out", TriggerEvent: "contact.created", TargetURL: "https://a.example.com", IsActive: true,
		}))
	}

	require.NoError(t, repo.Delete(first.ID))
	third := &domain.Webhook{UserID: "u1", Type: domain.WebhookTypeIncoming, Name: "c", Provider: "ghl", IsActive: true, EndpointToken: &token}
	require.NoError(t, repo.Create(third))
}
