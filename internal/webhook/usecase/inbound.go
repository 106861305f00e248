package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	integrationdomain "crm-backend/internal/integration/domain"
	"crm-backend/internal/webhook/repository"
	"crm-backend/pkg/apperror"
	"crm-backend/pkg/logger"
	"crm-backend/pkg/signature"

	"github.com/rs/zerolog"
)

// UserResolver maps a provider location to the user whose connection owns it
type UserResolver interface {
	FindUserIDByLocation(provider, locationID string) (string, error)
}

// InboundService authenticates inbound webhooks and hands them to the
// dispatcher. After authentication every failure is recorded in the error
// log and swallowed so the sender always receives a success acknowledgment.
type InboundService struct {
	dispatcher *Dispatcher
	webhooks   repository.WebhookRepository
	users      UserResolver
	errorLog   ErrorLogger
	signingKey []byte
	secretFor  func(provider string) string
	log        zerolog.Logger
}

// NewInboundService creates an InboundService. secretFor returns the shared
// signing secret of a provider, or "" for providers that send unsigned webhooks.
func NewInboundService(dispatcher *Dispatcher, webhooks repository.WebhookRepository, users UserResolver, errorLog ErrorLogger, signingKey string, secretFor func(provider string) string) *InboundService {
	if secretFor == nil {
		secretFor = func(string) string { return "" }
	}
	return &InboundService{
		dispatcher: dispatcher,
		webhooks:   webhooks,
		users:      users,
		errorLog:   errorLog,
		signingKey: []byte(signingKey),
		secretFor:  secretFor,
		log:        logger.Component("inbound-webhook"),
	}
}

// HandleProviderWebhook processes a webhook signed with the provider's shared
// secret. Only a bad signature is returned, as apperror.ErrUnauthorized.
func (s *InboundService) HandleProviderWebhook(ctx context.Context, provider string, raw []byte, presentedSignature string) error {
	provider = integrationdomain.NormalizeProvider(provider)
	if !signature.VerifyProviderSignature(raw, presentedSignature, s.secretFor(provider)) {
		s.log.Warn().Str("provider", provider).Msg("rejected webhook with invalid signature")
		return apperror.ErrUnauthorized
	}

	env, err := ParseEnvelope(raw)
	if err != nil {
		s.errorLog.LogError(ctx, "Provider Webhook Handler", err.Error(), "", map[string]interface{}{
			"provider": provider,
			"body":     string(raw),
		})
		return nil
	}

	scope := Scope{Provider: provider}
	if s.users != nil && env.LocationID != "" {
		userID, err := s.users.FindUserIDByLocation(provider, env.LocationID)
		if err != nil {
			s.log.Error().Err(err).Str("location_id", env.LocationID).Msg("failed to resolve location owner")
		}
		scope.UserID = userID
	}

	s.process(ctx, "Provider Webhook Handler", scope, env)
	return nil
}

// HandleIncomingWebhook processes a webhook sent to a per-user URL. The token
// must belong to an active INCOMING webhook and verify against its owner; when
// the webhook has a secret the body signature is required too. Errors are
// returned only before authentication completes.
func (s *InboundService) HandleIncomingWebhook(ctx context.Context, provider, token string, raw []byte, presentedSignature string) error {
	hook, err := s.webhooks.FindIncomingByToken(provider, token)
	if err != nil {
		// Not yet authenticated, so the sender is told to retry.
		s.log.Error().Err(err).Str("provider", provider).Msg("failed to look up incoming webhook")
		return fmt.Errorf("find incoming webhook: %w", err)
	}
	if hook == nil || !signature.VerifyWebhookToken(s.signingKey, token, hook.UserID, hook.Provider) {
		s.log.Warn().Str("provider", provider).Msg("rejected webhook with invalid token")
		return apperror.ErrUnauthorized
	}
	if hook.SecretKey != "" && !signature.VerifyProviderSignature(raw, presentedSignature, hook.SecretKey) {
		s.log.Warn().Str("provider", provider).Str("webhook_id", hook.ID).Msg("rejected webhook with invalid signature")
		return apperror.ErrUnauthorized
	}

	if err := s.webhooks.RecordTrigger(hook.ID, time.Now()); err != nil {
		s.log.Warn().Err(err).Str("webhook_id", hook.ID).Msg("failed to record trigger")
	}
	s.log.Info().Str("provider", provider).Str("user_id", hook.UserID).Msg("received webhook")

	switch integrationdomain.NormalizeProvider(provider) {
	case integrationdomain.ProviderGHL:
		env, err := ParseEnvelope(raw)
		if err != nil {
			s.errorLog.LogError(ctx, provider+" Webhook Handler", "Failed to process webhook - invalid payload structure", "", map[string]interface{}{
				"webhook_id": hook.ID,
				"body":       string(raw),
			})
			return nil
		}
		if !hook.Accepts(env.Event) {
			s.log.Info().Str("webhook_id", hook.ID).Str("event", env.Event).Msg("event filtered by event_handling")
			return nil
		}
		s.process(ctx, "Dynamic Webhook Handler", Scope{UserID: hook.UserID, Provider: integrationdomain.ProviderGHL}, env)
	case "openai":
		// Reserved; accepted without processing.
	default:
		s.errorLog.LogError(ctx, "Webhook Handler", "Received webhook for unsupported provider: "+provider, "", map[string]interface{}{
			"webhook_id": hook.ID,
			"body":       string(raw),
		})
	}
	return nil
}

func (s *InboundService) process(ctx context.Context, errContext string, scope Scope, env *Envelope) {
	matched, err := s.dispatcher.Dispatch(ctx, scope, env)
	if !matched {
		s.log.Info().Str("event", env.Event).Msg("ignoring unhandled event")
		return
	}
	if err != nil {
		extra := map[string]interface{}{
			"event": env.Event,
			"data":  env.Data,
		}
		if scope.UserID != "" {
			extra["user_id"] = scope.UserID
		}
		kind := "error"
		switch {
		case errors.Is(err, apperror.ErrMalformedPayload):
			kind = "malformed_payload"
		case errors.Is(err, apperror.ErrUnsupportedEvent):
			kind = "unsupported_event"
		}
		extra["kind"] = kind
		s.errorLog.LogError(ctx, errContext, err.Error(), "", extra)
	}
}
