package usecase

import (
	"context"

	"crm-backend/internal/errorlog/domain"
	"crm-backend/internal/errorlog/repository"
	"crm-backend/pkg/logger"
)

// Sink records failures that are swallowed instead of returned.
type Sink interface {
	LogError(ctx context.Context, errContext, message, trace string, extra map[string]interface{})
	// Recent lists the newest entries attributed to userID; an empty userID
	// lists every entry and is reserved for admins.
	Recent(userID string, limit int) ([]*domain.ErrorLog, error)
}

type sink struct {
	repo repository.ErrorLogRepository
}

// NewSink creates a Sink backed by the error log table.
func NewSink(repo repository.ErrorLogRepository) Sink {
	return &sink{repo: repo}
}

// LogError never fails; a persistence error is only logged.
func (s *sink) LogError(ctx context.Context, errContext, message, trace string, extra map[string]interface{}) {
	event := logger.Logger.Error().Str("context", errContext)
	if trace != "" {
		event = event.Str("trace", trace)
	}
	if len(extra) > 0 {
		event = event.Interface("extra", extra)
	}
	event.Msg(message)

	if s.repo == nil {
		return
	}
	userID, _ := extra["user_id"].(string)
	entry := &domain.ErrorLog{
		UserID:  userID,
		Context: errContext,
		Message: message,
		Trace:   trace,
		Extra:   extra,
	}
	if err := s.repo.Create(entry); err != nil {
		logger.Logger.Error().Err(err).Str("context", errContext).Msg("failed to persist error log")
	}
}

func (s *sink) Recent(userID string, limit int) ([]*domain.ErrorLog, error) {
	if s.repo == nil {
		return nil, nil
	}
	return s.repo.ListRecent(userID, limit)
}
