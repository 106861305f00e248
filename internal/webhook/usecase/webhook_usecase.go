package usecase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"crm-backend/internal/webhook/domain"
	"crm-backend/internal/webhook/dto"
	"crm-backend/internal/webhook/repository"
	"crm-backend/pkg/apperror"
	"crm-backend/pkg/signature"

	"gorm.io/datatypes"
)

// WebhookUsecase manages a user's webhook configurations
type WebhookUsecase interface {
	Create(userID string, req *dto.CreateWebhookRequest) (*domain.Webhook, error)
	List(userID string) ([]*domain.Webhook, error)
	Get(userID, id string) (*domain.Webhook, error)
	Update(userID, id string, req *dto.UpdateWebhookRequest) (*domain.Webhook, error)
	Delete(userID, id string) error
	// Test sends a sample event to an OUTGOING webhook and waits for the result.
	Test(ctx context.Context, userID, id string) (*DeliveryResult, error)
}

// Deliverer sends one event to one webhook synchronously
type Deliverer interface {
	Deliver(ctx context.Context, webhook *domain.Webhook, event domain.TriggerEvent) (*DeliveryResult, error)
}

type webhookUsecase struct {
	repo       repository.WebhookRepository
	deliverer  Deliverer
	signingKey []byte
}

// NewWebhookUsecase creates a new instance of webhookUsecase
func NewWebhookUsecase(repo repository.WebhookRepository, deliverer Deliverer, signingKey string) WebhookUsecase {
	return &webhookUsecase{
		repo:       repo,
		deliverer:  deliverer,
		signingKey: []byte(signingKey),
	}
}

var allowedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

func (u *webhookUsecase) Create(userID string, req *dto.CreateWebhookRequest) (*domain.Webhook, error) {
	webhookType, ok := domain.ParseWebhookType(req.Type)
	if !ok {
		return nil, fmt.Errorf("%w: type must be INCOMING or OUTGOING", apperror.ErrMalformedPayload)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", apperror.ErrMalformedPayload)
	}
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider == "" {
		provider = "custom"
	}

	webhook := &domain.Webhook{
		UserID:      userID,
		Type:        webhookType,
		Name:        name,
		Description: req.Description,
		Provider:    provider,
		IsActive:    true,
	}

	switch webhookType {
	case domain.WebhookTypeIncoming:
		existing, err := u.repo.FindIncoming(userID, provider)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, fmt.Errorf("%w: an incoming webhook for %s already exists", apperror.ErrConflict, provider)
		}
		token := signature.WebhookToken(u.signingKey, userID, provider)
		webhook.EndpointToken = &token
		webhook.SecretKey = req.SecretKey
		webhook.EventHandling = domain.StringArray(req.EventHandling)
		webhook.NotificationEmail = req.NotificationEmail

	case domain.WebhookTypeOutgoing:
		if err := validateOutgoing(req.TriggerEvent, req.TargetURL, req.HTTPMethod); err != nil {
			return nil, err
		}
		webhook.TriggerEvent = strings.TrimSpace(req.TriggerEvent)
		webhook.TargetURL = strings.TrimSpace(req.TargetURL)
		webhook.HTTPMethod = strings.ToUpper(strings.TrimSpace(req.HTTPMethod))
		webhook.Headers = headersToJSON(req.Headers)
		webhook.SelectedFields = domain.StringArray(req.SelectedFields)
		webhook.PayloadTemplate = req.PayloadTemplate
	}

	if err := u.repo.Create(webhook); err != nil {
		return nil, err
	}
	return webhook, nil
}

func validateOutgoing(triggerEvent, targetURL, method string) error {
	if strings.TrimSpace(triggerEvent) == "" {
		return fmt.Errorf("%w: trigger_event is required", apperror.ErrMalformedPayload)
	}
	parsed, err := url.ParseRequestURI(strings.TrimSpace(targetURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("%w: target_url must be an absolute http(s) URL", apperror.ErrMalformedPayload)
	}
	if m := strings.ToUpper(strings.TrimSpace(method)); m != "" && !allowedMethods[m] {
		return fmt.Errorf("%w: unsupported http_method %q", apperror.ErrMalformedPayload, method)
	}
	return nil
}

func headersToJSON(headers map[string]string) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for k, v := range headers {
		out[k] = v
	}
	return out
}

func (u *webhookUsecase) List(userID string) ([]*domain.Webhook, error) {
	return u.repo.FindByUserID(userID)
}

func (u *webhookUsecase) Get(userID, id string) (*domain.Webhook, error) {
	webhook, err := u.repo.FindByID(id)
	if err != nil {
		return nil, err
	}
	if webhook == nil || webhook.UserID != userID {
		return nil, fmt.Errorf("%w: webhook %s", apperror.ErrNotFound, id)
	}
	return webhook, nil
}

func (u *webhookUsecase) Update(userID, id string, req *dto.UpdateWebhookRequest) (*domain.Webhook, error) {
	webhook, err := u.Get(userID, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", apperror.ErrMalformedPayload)
		}
		webhook.Name = name
	}
	if req.Description != nil {
		webhook.Description = *req.Description
	}
	if req.IsActive != nil {
		webhook.IsActive = *req.IsActive
	}

	switch webhook.Type {
	case domain.WebhookTypeIncoming:
		if req.SecretKey != nil {
			webhook.SecretKey = *req.SecretKey
		}
		if req.EventHandling != nil {
			webhook.EventHandling = domain.StringArray(*req.EventHandling)
		}
		if req.NotificationEmail != nil {
			webhook.NotificationEmail = *req.NotificationEmail
		}

	case domain.WebhookTypeOutgoing:
		trigger, target, method := webhook.TriggerEvent, webhook.TargetURL, webhook.HTTPMethod
		if req.TriggerEvent != nil {
			trigger = *req.TriggerEvent
		}
		if req.TargetURL != nil {
			target = *req.TargetURL
		}
		if req.HTTPMethod != nil {
			method = *req.HTTPMethod
		}
		if err := validateOutgoing(trigger, target, method); err != nil {
			return nil, err
		}
		webhook.TriggerEvent = strings.TrimSpace(trigger)
		webhook.TargetURL = strings.TrimSpace(target)
		webhook.HTTPMethod = strings.ToUpper(strings.TrimSpace(method))
		if req.Headers != nil {
			webhook.Headers = headersToJSON(*req.Headers)
		}
		if req.SelectedFields != nil {
			webhook.SelectedFields = domain.StringArray(*req.SelectedFields)
		}
		if req.PayloadTemplate != nil {
			webhook.PayloadTemplate = *req.PayloadTemplate
		}
	}

	if err := u.repo.Update(webhook); err != nil {
		return nil, err
	}
	return webhook, nil
}

func (u *webhookUsecase) Delete(userID, id string) error {
	if _, err := u.Get(userID, id); err != nil {
		return err
	}
	return u.repo.Delete(id)
}

func (u *webhookUsecase) Test(ctx context.Context, userID, id string) (*DeliveryResult, error) {
	webhook, err := u.Get(userID, id)
	if err != nil {
		return nil, err
	}
	if webhook.Type != domain.WebhookTypeOutgoing {
		return nil, fmt.Errorf("%w: only outgoing webhooks can be tested", apperror.ErrMalformedPayload)
	}

	return u.deliverer.Deliver(ctx, webhook, domain.TriggerEvent{
		UserID: userID,
		Name:   webhook.TriggerEvent,
		Data: map[string]interface{}{
			"id":     "sample-contact",
			"ghl_id": "sample-ghl-id",
			"email":  "jane.doe@example.com",
			"name":   "Jane Doe",
			"tags":   []string{"sample"},
			"test":   true,
		},
		OccurredAt: time.Now(),
	})
}
