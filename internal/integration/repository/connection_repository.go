package repository

import (
	"errors"
	"time"

	"crm-backend/internal/integration/domain"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConnectionRepository stores integration connections
type ConnectionRepository interface {
	Get(userID, provider string) (*domain.IntegrationConnection, error)
	Upsert(conn *domain.IntegrationConnection) (*domain.IntegrationConnection, error)
	Update(id string, patch map[string]interface{}) error
	FindActiveByConfigValue(provider, key, value string) (*domain.IntegrationConnection, error)
	ListRefreshCandidates(expiringBefore time.Time) ([]*domain.IntegrationConnection, error)
}

type connectionRepository struct {
	db *gorm.DB
}

// NewConnectionRepository creates a new instance of connectionRepository
func NewConnectionRepository(db *gorm.DB) ConnectionRepository {
	return &connectionRepository{db: db}
}

func (r *connectionRepository) Get(userID, provider string) (*domain.IntegrationConnection, error) {
	var conn domain.IntegrationConnection
	err := r.db.Where("user_id = ? AND provider = ?", userID, provider).First(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

// Upsert creates the connection or replaces the credentials of the existing
// (user_id, provider) row in place.
func (r *connectionRepository) Upsert(conn *domain.IntegrationConnection) (*domain.IntegrationConnection, error) {
	now := time.Now()
	row := *conn
	if row.ID == "" {
		row.ID = uuid.New().String()
	}
	row.CreatedAt = now
	row.UpdatedAt = now

	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"access_token", "refresh_token", "token_type", "scope", "token_expires_at",
			"is_active", "config", "last_refreshed_at", "refresh_failed_at",
			"last_refresh_error", "updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return nil, err
	}

	return r.Get(conn.UserID, conn.Provider)
}

// Update applies a column patch. Map keys are column names; nil clears a column.
func (r *connectionRepository) Update(id string, patch map[string]interface{}) error {
	return r.db.Model(&domain.IntegrationConnection{}).Where("id = ?", id).Updates(patch).Error
}

// FindActiveByConfigValue finds the active connection whose config[key] equals value.
func (r *connectionRepository) FindActiveByConfigValue(provider, key, value string) (*domain.IntegrationConnection, error) {
	var conn domain.IntegrationConnection
	err := r.db.
		Where("provider = ? AND is_active = ?", provider, true).
		Where(datatypes.JSONQuery("config").Equals(value, key)).
		Order("updated_at DESC").
		First(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

// ListRefreshCandidates returns active connections expiring before the given
// instant whose last refresh did not fail.
func (r *connectionRepository) ListRefreshCandidates(expiringBefore time.Time) ([]*domain.IntegrationConnection, error) {
	var conns []*domain.IntegrationConnection
	err := r.db.
		Where("is_active = ?", true).
		Where("token_expires_at IS NOT NULL AND token_expires_at < ?", expiringBefore.UTC()).
		Where("refresh_failed_at IS NULL").
		Order("token_expires_at ASC").
		Find(&conns).Error
	if err != nil {
		return nil, err
	}
	return conns, nil
}
