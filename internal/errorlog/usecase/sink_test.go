package usecase

import (
	"context"
	"testing"

	"crm-backend/internal/errorlog/domain"
	"crm-backend/internal/errorlog/repository"
	"crm-backend/pkg/database"

	"github.com/stretchr/testify/require"
)

func TestLogErrorPersistsEntry(t *testing.T) {
	db, err := database.NewSQLiteConnection("file::memory:")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.ErrorLog{}))

	sink := NewSink(repository.NewErrorLogRepository(db))
	sink.LogError(context.Background(), "GHL Webhook Handler", "missing contact id", "", map[string]interface{}{
		"event":   "contact.updated",
		"user_id": "u1",
	})
	sink.LogError(context.Background(), "Outbound Webhook", "status 500", "", nil)

	entries, err := sink.Recent("", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var found *domain.ErrorLog
	for _, e := range entries {
		if e.Context == "GHL Webhook Handler" {
			found = e
		}
	}
	require.NotNil(t, found)
	require.Equal(t, "missing contact id", found.Message)
	require.Equal(t, "contact.updated", found.Extra["event"])
	require.Equal(t, "u1", found.UserID)

	own, err := sink.Recent("u1", 10)
	require.NoError(t, err)
	require.Len(t, own, 1)

	other, err := sink.Recent("u2", 10)
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestLogErrorWithoutRepository(t *testing.T) {
	sink := NewSink(nil)
	require.NotPanics(t, func() {
		sink.LogError(context.Background(), "ctx", "message", "trace", nil)
	})

	entries, err := sink.Recent("u1", 10)
	require.NoError(t, err)
	require.Empty(t, entries)
}
