package repository

import (
	"errors"
	"time"

	"crm-backend/internal/crm/domain"

	"gorm.io/gorm"
)

// EmailRepository is the email side of the CRM store
type EmailRepository interface {
	GetEmail(id string) (*domain.Email, error)
	GetDeliveryByMessageID(messageID string) (*domain.EmailDelivery, error)
	// UpdateEmailDeliveryByMessageID sets the delivery status under policy.
	// It returns the stored row (nil when no delivery has that message id)
	// and whether the status was applied.
	UpdateEmailDeliveryByMessageID(messageID string, status domain.DeliveryStatus, policy domain.StatusPolicy) (*domain.EmailDelivery, bool, error)
}

type emailRepository struct {
	db *gorm.DB
}

// NewEmailRepository creates a new instance of emailRepository
func NewEmailRepository(db *gorm.DB) EmailRepository {
	return &emailRepository{db: db}
}

func (r *emailRepository) GetEmail(id string) (*domain.Email, error) {
	var email domain.Email
	err := r.db.Where("id = ?", id).First(&email).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &email, nil
}

func (r *emailRepository) GetDeliveryByMessageID(messageID string) (*domain.EmailDelivery, error) {
	var delivery domain.EmailDelivery
	err := r.db.Where("ghl_message_id = ?", messageID).First(&delivery).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &delivery, nil
}

func (r *emailRepository) UpdateEmailDeliveryByMessageID(messageID string, status domain.DeliveryStatus, policy domain.StatusPolicy) (*domain.EmailDelivery, bool, error) {
	query := r.db.Model(&domain.EmailDelivery{}).Where("ghl_message_id = ?", messageID)
	if policy == domain.StatusPolicyMonotonic {
		// The rank guard is part of the UPDATE itself.
		allowed := make([]string, 0, 6)
		for _, s := range status.NotAbove() {
			allowed = append(allowed, string(s))
		}
		query = query.Where("status IN ?", allowed)
	}

	result := query.Updates(map[string]interface{}{
		"status":     string(status),
		"updated_at": time.Now(),
	})
	if result.Error != nil {
		return nil, false, result.Error
	}

	delivery, err := r.GetDeliveryByMessageID(messageID)
	if err != nil {
		return nil, false, err
	}
	return delivery, delivery != nil && result.RowsAffected > 0, nil
}
