package repository

import (
	"errors"
	"fmt"
	"time"

	"crm-backend/internal/webhook/domain"
	"crm-backend/pkg/apperror"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WebhookRepository stores webhook configurations
type WebhookRepository interface {
	// Create fails with apperror.ErrConflict when the endpoint token is taken.
	Create(webhook *domain.Webhook) error
	FindByID(id string) (*domain.Webhook, error)
	FindByUserID(userID string) ([]*domain.Webhook, error)
	FindIncoming(userID, provider string) (*domain.Webhook, error)
	FindIncomingByToken(provider, token string) (*domain.Webhook, error)
	FindOutgoingByTrigger(userID, event string) ([]*domain.Webhook, error)
	Update(webhook *domain.Webhook) error
	Delete(id string) error
	RecordTrigger(id string, at time.Time) error
}

type webhookRepository struct {
	db *gorm.DB
}

// NewWebhookRepository creates a new instance of webhookRepository
func NewWebhookRepository(db *gorm.DB) WebhookRepository {
	return &webhookRepository{db: db}
}

func (r *webhookRepository) Create(webhook *domain.Webhook) error {
	if webhook.ID == "" {
		webhook.ID = uuid.New().String()
	}
	webhook.CreatedAt = time.Now()
	webhook.UpdatedAt = time.Now()
	if err := r.db.Create(webhook).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: endpoint token already issued", apperror.ErrConflict)
		}
		return err
	}
	return nil
}

func (r *webhookRepository) first(query *gorm.DB) (*domain.Webhook, error) {
	var webhook domain.Webhook
	err := query.First(&webhook).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &webhook, nil
}

func (r *webhookRepository) FindByID(id string) (*domain.Webhook, error) {
	return r.first(r.db.Where("id = ?", id))
}

func (r *webhookRepository) FindByUserID(userID string) ([]*domain.Webhook, error) {
	var webhooks []*domain.Webhook
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&webhooks).Error
	if err != nil {
		return nil, err
	}
	return webhooks, nil
}

func (r *webhookRepository) FindIncoming(userID, provider string) (*domain.Webhook, error) {
	return r.first(r.db.Where("user_id = ? AND provider = ? AND type = ?", userID, provider, domain.WebhookTypeIncoming))
}

// FindIncomingByToken returns the active INCOMING webhook issued the token.
func (r *webhookRepository) FindIncomingByToken(provider, token string) (*domain.Webhook, error) {
	return r.first(r.db.Where("type = ? AND provider = ? AND endpoint_token = ? AND is_active = ?",
		domain.WebhookTypeIncoming, provider, token, true))
}

func (r *webhookRepository) FindOutgoingByTrigger(userID, event string) ([]*domain.Webhook, error) {
	var webhooks []*domain.Webhook
	err := r.db.
		Where("user_id = ? AND type = ? AND trigger_event = ? AND is_active = ?",
			userID, domain.WebhookTypeOutgoing, event, true).
		Find(&webhooks).Error
	if err != nil {
		return nil, err
	}
	return webhooks, nil
}

func (r *webhookRepository) Update(webhook *domain.Webhook) error {
	webhook.UpdatedAt = time.Now()
	return r.db.Save(webhook).Error
}

func (r *webhookRepository) Delete(id string) error {
	return r.db.Where("id = ?", id).Delete(&domain.Webhook{}).Error
}

// RecordTrigger bumps the use counter atomically.
func (r *webhookRepository) RecordTrigger(id string, at time.Time) error {
	return r.db.Model(&domain.Webhook{}).Where("id = ?", id).UpdateColumns(map[string]interface{}{
		"last_triggered_at": at,
		"trigger_count":     gorm.Expr("trigger_count + 1"),
	}).Error
}
