package scheduler

import (
	"context"
	"sync"
	"time"

	"crm-backend/internal/integration/usecase"
	"crm-backend/pkg/logger"

	"github.com/rs/zerolog"
)

// TokenRefreshScheduler renews connections shortly before their access
// tokens expire so API callers rarely hit an expired token.
type TokenRefreshScheduler struct {
	integrationUsecase usecase.IntegrationUsecase
	interval           time.Duration
	leeway             time.Duration
	stopChan           chan struct{}
	stopOnce           sync.Once
	log                zerolog.Logger
}

// NewTokenRefreshScheduler creates a new scheduler
func NewTokenRefreshScheduler(integrationUsecase usecase.IntegrationUsecase, interval, leeway time.Duration) *TokenRefreshScheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &TokenRefreshScheduler{
		integrationUsecase: integrationUsecase,
		interval:           interval,
		leeway:             leeway,
		stopChan:           make(chan struct{}),
		log:                logger.Component("token-refresher"),
	}
}

// Start begins the scheduler loop
func (s *TokenRefreshScheduler) Start() {
	s.log.Info().Dur("interval", s.interval).Dur("leeway", s.leeway).Msg("starting token refresh scheduler")

	go func() {
		// Run immediately on start
		s.refreshExpiring()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.refreshExpiring()
			case <-s.stopChan:
				s.log.Info().Msg("scheduler stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the scheduler
func (s *TokenRefreshScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

func (s *TokenRefreshScheduler) refreshExpiring() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	renewed, err := s.integrationUsecase.RefreshExpiring(ctx, s.leeway)
	if err != nil {
		s.log.Error().Err(err).Msg("error refreshing expiring connections")
		return
	}
	if renewed > 0 {
		s.log.Info().Int("renewed", renewed).Msg("refreshed expiring connections")
	}
}
