package usecase

import (
	"context"
	"sync"
	"testing"

	crmdomain "crm-backend/internal/crm/domain"
	crmrepo "crm-backend/internal/crm/repository"
	errorlogdomain "crm-backend/internal/errorlog/domain"
	errorlogrepo "crm-backend/internal/errorlog/repository"
	errorlogusecase "crm-backend/internal/errorlog/usecase"
	"crm-backend/internal/webhook/domain"
	"crm-backend/internal/webhook/repository"
	"crm-backend/pkg/database"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testEnv struct {
	db         *gorm.DB
	contacts   crmrepo.ContactRepository
	emails     crmrepo.EmailRepository
	webhooks   repository.WebhookRepository
	sink       errorlogusecase.Sink
	publisher  *recordingPublisher
	policy     crmdomain.StatusPolicy
	reconciler *Reconciler
	dispatcher *Dispatcher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.NewSQLiteConnection("file::memory:")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&crmdomain.Contact{}, &crmdomain.ContactTag{}, &crmdomain.Email{}, &crmdomain.EmailDelivery{},
		&domain.Webhook{}, &errorlogdomain.ErrorLog{},
	))

	env := &testEnv{
		db:        db,
		contacts:  crmrepo.NewContactRepository(db),
		emails:    crmrepo.NewEmailRepository(db),
		webhooks:  repository.NewWebhookRepository(db),
		sink:      errorlogusecase.NewSink(errorlogrepo.NewErrorLogRepository(db)),
		publisher: &recordingPublisher{},
		policy:    crmdomain.StatusPolicyOverwrite,
	}
	env.reconciler = NewReconciler(env.contacts, env.emails, func() crmdomain.StatusPolicy { return env.policy }, env.publisher)
	env.dispatcher = NewDispatcher()
	env.reconciler.Register(env.dispatcher)
	return env
}

func (e *testEnv) dispatch(t *testing.T, scope Scope, raw string) error {
	t.Helper()
	env, err := ParseEnvelope([]byte(raw))
	require.NoError(t, err)
	matched, err := e.dispatcher.Dispatch(context.Background(), scope, env)
	require.True(t, matched, "no handler for %s", env.Event)
	return err
}

func (e *testEnv) seedDelivery(t *testing.T, emailType crmdomain.EmailType, contactID, messageID string, status crmdomain.DeliveryStatus) {
	t.Helper()
	require.NoError(t, e.db.Create(&crmdomain.Email{ID: "email-" + messageID, Name: "Launch", Type: emailType}).Error)
	require.NoError(t, e.db.Create(&crmdomain.Contact{ID: contactID, Email: contactID + "@example.com"}).Error)
	require.NoError(t, e.db.Create(&crmdomain.EmailDelivery{
		ID:           "delivery-" + messageID,
		EmailID:      "email-" + messageID,
		ContactID:    contactID,
		GhlMessageID: &messageID,
		Status:       status,
	}).Error)
}

func (e *testEnv) countErrorLogs(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, e.db.Model(&errorlogdomain.ErrorLog{}).Count(&count).Error)
	return count
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.TriggerEvent
}

func (p *recordingPublisher) Publish(event domain.TriggerEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var names []string
	for _, e := range p.events {
		names = append(names, e.Name)
	}
	return names
}
