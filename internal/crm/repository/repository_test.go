package repository

import (
	"sync"
	"testing"
	"time"

	"crm-backend/internal/crm/domain"
	"crm-backend/pkg/database"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.NewSQLiteConnection("file::memory:")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Contact{}, &domain.ContactTag{}, &domain.Email{}, &domain.EmailDelivery{}))
	return db
}

func strPtr(s string) *string { return &s }

func TestUpsertContactByGhlIDIsIdempotent(t *testing.T) {
	repo := NewContactRepository(setupDB(t))
	joined := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	projection := &domain.Contact{
		GhlID:         strPtr("g-1"),
		Email:         "ada@example.com",
		Name:          "Ada Lovelace",
		CustomFields:  datatypes.JSONMap{"plan": "pro"},
		JoinedDate:    &joined,
		ContactSource: domain.ContactSourceWebhook,
	}

	first, err := repo.UpsertContactByGhlID(projection)
	require.NoError(t, err)
	second, err := repo.UpsertContactByGhlID(projection)
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "ada@example.com", second.Email)
	require.Equal(t, "Ada Lovelace", second.Name)
	require.Equal(t, "pro", second.CustomFields["plan"])
	require.True(t, joined.Equal(*second.JoinedDate))

	var count int64
	require.NoError(t, repo.(*contactRepository).db.Model(&domain.Contact{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestUpsertContactKeepsFieldsMissingFromProjection(t *testing.T) {
	repo := NewContactRepository(setupDB(t))

	_, err := repo.UpsertContactByGhlID(&domain.Contact{GhlID: strPtr("g-2"), Email: "old@example.com", Name: "Grace"})
	require.NoError(t, err)

	updated, err := repo.UpsertContactByGhlID(&domain.Contact{GhlID: strPtr("g-2"), Email: "new@example.com"})
	require.NoError(t, err)
	require.Equal(t, "new@example.com", updated.Email)
	require.Equal(t, "Grace", updated.Name)
}

func TestUpsertContactConcurrent(t *testing.T) {
	db := setupDB(t)
	repo := NewContactRepository(db)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.UpsertContactByGhlID(&domain.Contact{GhlID: strPtr("g-3"), Email: "race@example.com"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var count int64
	require.NoError(t, db.Model(&domain.Contact{}).Where("ghl_id = ?", "g-3").Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestUpsertContactRequiresGhlID(t *testing.T) {
	repo := NewContactRepository(setupDB(t))
	_, err := repo.UpsertContactByGhlID(&domain.Contact{Email: "x@example.com"})
	require.Error(t, err)
}

func TestAddTagToContactHasSetSemantics(t *testing.T) {
	repo := NewContactRepository(setupDB(t))
	contact, err := repo.UpsertContactByGhlID(&domain.Contact{GhlID: strPtr("g-4")})
	require.NoError(t, err)

	require.NoError(t, repo.AddTagToContact(contact.ID, domain.TagOpenedEmail))
	require.NoError(t, repo.AddTagToContact(contact.ID, domain.TagOpenedEmail))
	require.NoError(t, repo.AddTagToContact(contact.ID, domain.TagHighIntent))

	got, err := repo.GetContact(contact.ID)
	require.NoError(t, err)
	require.Equal(t, []string{domain.TagHighIntent, domain.TagOpenedEmail}, got.Tags)
}

func TestDeleteContactRemovesTags(t *testing.T) {
	db := setupDB(t)
	repo := NewContactRepository(db)
	contact, err := repo.UpsertContactByGhlID(&domain.Contact{GhlID: strPtr("g-5")})
	require.NoError(t, err)
	require.NoError(t, repo.AddTagToContact(contact.ID, domain.TagClickedEmail))

	require.NoError(t, repo.DeleteContact(contact.ID))

	got, err := repo.GetContactByGhlID("g-5")
	require.NoError(t, err)
	require.Nil(t, got)

	var tags int64
	require.NoError(t, db.Model(&domain.ContactTag{}).Count(&tags).Error)
	require.Zero(t, tags)
}

func seedDelivery(t *testing.T, db *gorm.DB, messageID string, status domain.DeliveryStatus) {
	t.Helper()
	require.NoError(t, db.Create(&domain.EmailDelivery{
		ID:           "d-" + messageID,
		EmailID:      "e-1",
		ContactID:    "c-1",
		GhlMessageID: strPtr(messageID),
		Status:       status,
	}).Error)
}

func TestUpdateEmailDeliveryOverwrite(t *testing.T) {
	db := setupDB(t)
	repo := NewEmailRepository(db)
	seedDelivery(t, db, "m1", domain.DeliveryStatusClicked)

	delivery, applied, err := repo.UpdateEmailDeliveryByMessageID("m1", domain.DeliveryStatusDelivered, domain.StatusPolicyOverwrite)
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, domain.DeliveryStatusDelivered, delivery.Status)
}

func TestUpdateEmailDeliveryMonotonic(t *testing.T) {
	db := setupDB(t)
	repo := NewEmailRepository(db)
	seedDelivery(t, db, "m2", domain.DeliveryStatusClicked)

	delivery, applied, err := repo.UpdateEmailDeliveryByMessageID("m2", domain.DeliveryStatusDelivered, domain.StatusPolicyMonotonic)
	require.NoError(t, err)
	require.False(t, applied)
	require.Equal(t, domain.DeliveryStatusClicked, delivery.Status)

	delivery, applied, err = repo.UpdateEmailDeliveryByMessageID("m2", domain.DeliveryStatusBounced, domain.StatusPolicyMonotonic)
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, domain.DeliveryStatusBounced, delivery.Status)

	_, applied, err = repo.UpdateEmailDeliveryByMessageID("m2", domain.DeliveryStatusComplained, domain.StatusPolicyMonotonic)
	require.NoError(t, err)
	require.True(t, applied)
}

func TestUpdateEmailDeliveryUnknownMessage(t *testing.T) {
	repo := NewEmailRepository(setupDB(t))

	delivery, applied, err := repo.UpdateEmailDeliveryByMessageID("missing", domain.DeliveryStatusOpened, domain.StatusPolicyOverwrite)
	require.NoError(t, err)
	require.False(t, applied)
	require.Nil(t, delivery)
}

func TestParseStatusPolicy(t *testing.T) {
	p, err := domain.ParseStatusPolicy(" Monotonic ")
	require.NoError(t, err)
	require.Equal(t, domain.StatusPolicyMonotonic, p)

	_, err = domain.ParseStatusPolicy("newest-wins")
	require.Error(t, err)
}
