package main

import (
	api "crm-backend/cmd/api"
	authdomain "crm-backend/internal/auth/domain"
	authRepo "crm-backend/internal/auth/repository"
	authUsecase "crm-backend/internal/auth/usecase"
	crmdomain "crm-backend/internal/crm/domain"
	crmRepo "crm-backend/internal/crm/repository"
	errorlogDelivery "crm-backend/internal/errorlog/delivery"
	errorlogdomain "crm-backend/internal/errorlog/domain"
	errorlogRepo "crm-backend/internal/errorlog/repository"
	errorlogUsecase "crm-backend/internal/errorlog/usecase"
	integrationDelivery "crm-backend/internal/integration/delivery"
	integrationdomain "crm-backend/internal/integration/domain"
	integrationRepo "crm-backend/internal/integration/repository"
	"crm-backend/internal/integration/scheduler"
	integrationUsecase "crm-backend/internal/integration/usecase"
	webhookDelivery "crm-backend/internal/webhook/delivery"
	webhookdomain "crm-backend/internal/webhook/domain"
	webhookRepo "crm-backend/internal/webhook/repository"
	webhookUsecase "crm-backend/internal/webhook/usecase"
	"crm-backend/pkg/config"
	"crm-backend/pkg/database"
	"crm-backend/pkg/ghl"
	"crm-backend/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogPretty)

	// Initialize database
	db, err := database.Open(cfg)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(
		&authdomain.User{},
		&integrationdomain.IntegrationConnection{},
		&webhookdomain.Webhook{},
		&crmdomain.Contact{},
		&crmdomain.ContactTag{},
		&crmdomain.Email{},
		&crmdomain.EmailDelivery{},
		&errorlogdomain.ErrorLog{},
	); err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	// Initialize repositories (dependency injection)
	userRepo := authRepo.NewUserRepository(db)
	connectionRepo := integrationRepo.NewConnectionRepository(db)
	webhookRepository := webhookRepo.NewWebhookRepository(db)
	contactRepo := crmRepo.NewContactRepository(db)
	emailRepo := crmRepo.NewEmailRepository(db)
	errorSink := errorlogUsecase.NewSink(errorlogRepo.NewErrorLogRepository(db))

	// Provider client
	ghlClient := ghl.NewClient(ghl.Options{
		ClientID:     cfg.GHLClientID,
		ClientSecret: cfg.GHLClientSecret,
		AuthURL:      cfg.GHLAuthURL,
		TokenURL:     cfg.GHLTokenURL,
		APIBaseURL:   cfg.GHLAPIBaseURL,
		APIVersion:   cfg.GHLAPIVersion,
		RedirectURI:  cfg.GHLRedirectURI,
		Scopes:       cfg.GHLScopes,
		Timeout:      cfg.ProviderTimeout,
	})
	if !ghlClient.Configured() {
		logger.Logger.Warn().Msg("GHL_CLIENT_ID/GHL_CLIENT_SECRET not set, OAuth connect will fail")
	}
	if cfg.GHLWebhookSecret == "" {
		logger.Logger.Warn().Msg("GHL_WEBHOOK_SECRET not set, provider webhooks are accepted unsigned")
	}

	// Initialize use cases (dependency injection)
	authUsecaseInstance := authUsecase.NewAuthUsecase(userRepo, cfg)
	integrationUsecaseInstance := integrationUsecase.NewIntegrationUsecase(connectionRepo, map[string]integrationUsecase.OAuthProvider{
		ghl.Provider: ghlClient,
	}, cfg.JWTSecret)

	// Outbound webhook workers
	outbound := webhookUsecase.NewOutboundEngine(webhookRepository, errorSink, cfg.OutboundTimeout, cfg.OutboundWorkers)
	outbound.Start()
	defer outbound.Stop()

	// Inbound event processing
	reconciler := webhookUsecase.NewReconciler(contactRepo, emailRepo, api.GetRuntimeDeliveryStatusPolicy, outbound)
	dispatcher := webhookUsecase.NewDispatcher()
	reconciler.Register(dispatcher)
	inbound := webhookUsecase.NewInboundService(dispatcher, webhookRepository, integrationUsecaseInstance, errorSink, cfg.WebhookSigningKey, cfg.ProviderWebhookSecret)
	webhookUsecaseInstance := webhookUsecase.NewWebhookUsecase(webhookRepository, outbound, cfg.WebhookSigningKey)

	// Background token refresh
	refreshScheduler := scheduler.NewTokenRefreshScheduler(integrationUsecaseInstance, cfg.TokenRefreshInterval, cfg.TokenRefreshLeeway)
	refreshScheduler.Start()
	defer refreshScheduler.Stop()

	// Initialize HTTP handler
	handler := api.NewHandler(
		authUsecaseInstance,
		integrationDelivery.NewIntegrationHandler(integrationUsecaseInstance, ghlClient, reconciler, cfg.FrontendURL),
		webhookDelivery.NewWebhookHandler(inbound, webhookUsecaseInstance, cfg.PublicURL),
		errorlogDelivery.NewErrorLogHandler(errorSink),
		cfg,
	)

	// Start server
	if err := handler.Start(":" + cfg.Port); err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to start server")
	}
}
