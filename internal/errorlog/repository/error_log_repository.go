package repository

import (
	"time"

	"crm-backend/internal/errorlog/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrorLogRepository persists error log entries
type ErrorLogRepository interface {
	Create(entry *domain.ErrorLog) error
	// ListRecent returns the newest entries of userID, or of every user when
	// userID is empty.
	ListRecent(userID string, limit int) ([]*domain.ErrorLog, error)
}

type errorLogRepository struct {
	db *gorm.DB
}

// NewErrorLogRepository creates a new instance of errorLogRepository
func NewErrorLogRepository(db *gorm.DB) ErrorLogRepository {
	return &errorLogRepository{db: db}
}

func (r *errorLogRepository) Create(entry *domain.ErrorLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	return r.db.Create(entry).Error
}

func (r *errorLogRepository) ListRecent(userID string, limit int) ([]*domain.ErrorLog, error) {
	if limit <= 0 {
		limit = 100
	}
	query := r.db.Order("created_at DESC").Limit(limit)
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	var entries []*domain.ErrorLog
	err := query.Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
