package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	crmdomain "crm-backend/internal/crm/domain"
	crmrepo "crm-backend/internal/crm/repository"
	"crm-backend/internal/webhook/domain"
	"crm-backend/pkg/apperror"
	"crm-backend/pkg/ghl"
	"crm-backend/pkg/logger"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"
)

// Publisher receives local trigger events for outbound delivery
type Publisher interface {
	Publish(event domain.TriggerEvent)
}

var emailEventStatus = map[string]crmdomain.DeliveryStatus{
	"delivered":  crmdomain.DeliveryStatusDelivered,
	"opened":     crmdomain.DeliveryStatusOpened,
	"clicked":    crmdomain.DeliveryStatusClicked,
	"bounced":    crmdomain.DeliveryStatusBounced,
	"complained": crmdomain.DeliveryStatusComplained,
}

// Reconciler turns provider events into contact and delivery mutations
type Reconciler struct {
	contacts  crmrepo.ContactRepository
	emails    crmrepo.EmailRepository
	policy    func() crmdomain.StatusPolicy
	publisher Publisher
	now       func() time.Time
	log       zerolog.Logger
}

// NewReconciler creates a Reconciler. policy is read on every email event so
// the delivery status policy can change at runtime; publisher may be nil.
func NewReconciler(contacts crmrepo.ContactRepository, emails crmrepo.EmailRepository, policy func() crmdomain.StatusPolicy, publisher Publisher) *Reconciler {
	if policy == nil {
		policy = func() crmdomain.StatusPolicy { return crmdomain.StatusPolicyOverwrite }
	}
	return &Reconciler{
		contacts:  contacts,
		emails:    emails,
		policy:    policy,
		publisher: publisher,
		now:       time.Now,
		log:       logger.Component("reconciler"),
	}
}

// Register wires the reconciler's handlers into d
func (r *Reconciler) Register(d *Dispatcher) {
	d.On("contact.created", r.HandleContactUpsert)
	d.On("contact.updated", r.HandleContactUpsert)
	d.On("contact.deleted", r.HandleContactDelete)
	d.OnPrefix("email.", r.HandleEmailEvent)
}

// HandleContactUpsert applies contact.created and contact.updated. Replaying
// the same payload leaves a single row in the same state.
func (r *Reconciler) HandleContactUpsert(ctx context.Context, scope Scope, env *Envelope) error {
	var c ghl.Contact
	if err := decodeData(env.Data, &c); err != nil {
		return err
	}
	if c.ID == "" {
		return fmt.Errorf("%w: missing contact id in %s", apperror.ErrMalformedPayload, env.Event)
	}

	projection, err := projectContact(c, crmdomain.ContactSourceWebhook)
	if err != nil {
		return err
	}
	contact, err := r.contacts.UpsertContactByGhlID(projection)
	if err != nil {
		return fmt.Errorf("upsert contact %s: %w", c.ID, err)
	}

	r.log.Info().Str("event", env.Event).Str("ghl_id", c.ID).Msg("contact upserted")
	r.publish(scope, env.Event, contactEventData(contact))
	return nil
}

// HandleContactDelete applies contact.deleted. An unknown contact is already deleted.
func (r *Reconciler) HandleContactDelete(ctx context.Context, scope Scope, env *Envelope) error {
	ghlID := stringField(env.Data, "id")
	if ghlID == "" {
		return fmt.Errorf("%w: missing contact id in %s", apperror.ErrMalformedPayload, env.Event)
	}

	contact, err := r.contacts.GetContactByGhlID(ghlID)
	if err != nil {
		return err
	}
	if contact == nil {
		r.log.Debug().Str("ghl_id", ghlID).Msg("contact already absent")
		return nil
	}
	if err := r.contacts.DeleteContact(contact.ID); err != nil {
		return fmt.Errorf("delete contact %s: %w", contact.ID, err)
	}

	r.log.Info().Str("ghl_id", ghlID).Msg("contact deleted")
	r.publish(scope, env.Event, contactEventData(contact))
	return nil
}

// HandleEmailEvent applies email.<status> to the delivery with the payload's
// message id and derives engagement tags on opens and clicks.
func (r *Reconciler) HandleEmailEvent(ctx context.Context, scope Scope, env *Envelope) error {
	suffix := strings.TrimPrefix(env.Event, "email.")
	status, ok := emailEventStatus[suffix]
	if !ok {
		return fmt.Errorf("%w: %s", apperror.ErrUnsupportedEvent, env.Event)
	}
	messageID := stringField(env.Data, "messageId")
	if messageID == "" {
		return fmt.Errorf("%w: missing messageId in %s", apperror.ErrMalformedPayload, env.Event)
	}

	policy := r.policy()
	delivery, applied, err := r.emails.UpdateEmailDeliveryByMessageID(messageID, status, policy)
	if err != nil {
		return fmt.Errorf("update delivery %s: %w", messageID, err)
	}
	if delivery == nil {
		r.log.Info().Str("message_id", messageID).Msg("no delivery for message id")
		return nil
	}
	if !applied {
		r.log.Info().Str("message_id", messageID).Str("current", string(delivery.Status)).
			Str("ignored", string(status)).Str("policy", string(policy)).Msg("status regression ignored")
		return nil
	}

	if status == crmdomain.DeliveryStatusOpened || status == crmdomain.DeliveryStatusClicked {
		if err := r.tagEngagement(delivery, status); err != nil {
			return err
		}
	}

	r.log.Info().Str("event", env.Event).Str("message_id", messageID).Msg("delivery status updated")
	r.publish(scope, env.Event, map[string]interface{}{
		"delivery_id": delivery.ID,
		"email_id":    delivery.EmailID,
		"contact_id":  delivery.ContactID,
		"message_id":  messageID,
		"status":      string(delivery.Status),
	})
	return nil
}

func (r *Reconciler) tagEngagement(delivery *crmdomain.EmailDelivery, status crmdomain.DeliveryStatus) error {
	email, err := r.emails.GetEmail(delivery.EmailID)
	if err != nil {
		return err
	}
	if email == nil {
		return nil
	}
	contact, err := r.contacts.GetContact(delivery.ContactID)
	if err != nil {
		return err
	}
	if contact == nil {
		return nil
	}

	priority := email.Type == crmdomain.EmailTypePriority
	var tags []string
	switch status {
	case crmdomain.DeliveryStatusOpened:
		tags = append(tags, crmdomain.TagOpenedEmail)
		if priority {
			tags = append(tags, crmdomain.TagOpenedPriorityEmail)
		}
	case crmdomain.DeliveryStatusClicked:
		tags = append(tags, crmdomain.TagClickedEmail, crmdomain.TagHighIntent)
		if priority {
			tags = append(tags, crmdomain.TagClickedPriorityEmail)
		}
	}

	for _, tag := range tags {
		if err := r.contacts.AddTagToContact(contact.ID, tag); err != nil {
			return fmt.Errorf("tag contact %s with %s: %w", contact.ID, tag, err)
		}
	}
	return nil
}

// ImportContacts upserts contacts fetched from the provider API. Contacts
// without an id are skipped.
func (r *Reconciler) ImportContacts(ctx context.Context, userID string, contacts []ghl.Contact) (int, error) {
	imported := 0
	for _, c := range contacts {
		if ctx.Err() != nil {
			return imported, ctx.Err()
		}
		if c.ID == "" {
			continue
		}
		projection, err := projectContact(c, crmdomain.ContactSourceImport)
		if err != nil {
			r.log.Warn().Err(err).Str("ghl_id", c.ID).Msg("skipping contact")
			continue
		}
		contact, err := r.contacts.UpsertContactByGhlID(projection)
		if err != nil {
			return imported, fmt.Errorf("import contact %s: %w", c.ID, err)
		}
		imported++
		r.publish(Scope{UserID: userID, Provider: "ghl"}, "contact.updated", contactEventData(contact))
	}
	r.log.Info().Str("user_id", userID).Int("imported", imported).Msg("contacts imported")
	return imported, nil
}

func (r *Reconciler) publish(scope Scope, event string, data map[string]interface{}) {
	if r.publisher == nil || scope.UserID == "" {
		return
	}
	r.publisher.Publish(domain.TriggerEvent{
		UserID:     scope.UserID,
		Name:       event,
		Data:       data,
		OccurredAt: r.now(),
	})
}

func projectContact(c ghl.Contact, source string) (*crmdomain.Contact, error) {
	ghlID := c.ID
	name := strings.TrimSpace(c.Name)
	if name == "" {
		name = strings.TrimSpace(c.ContactName)
	}
	if name == "" {
		name = strings.TrimSpace(c.FirstName + " " + c.LastName)
	}

	fields, err := parseCustomFields(c.CustomFields)
	if err != nil {
		return nil, err
	}

	projection := &crmdomain.Contact{
		GhlID:         &ghlID,
		Email:         strings.TrimSpace(c.Email),
		Name:          name,
		CustomFields:  fields,
		ContactSource: source,
	}

	joined := c.CreatedAt
	if joined == "" {
		joined = c.DateAdded
	}
	if joined != "" {
		if t, ok := parseTimestamp(joined); ok {
			projection.JoinedDate = &t
		}
	}
	return projection, nil
}

// parseCustomFields accepts either an object or the provider's
// [{"id": ..., "value": ...}] list.
func parseCustomFields(raw json.RawMessage) (datatypes.JSONMap, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	switch trimmed[0] {
	case '{':
		var m map[string]interface{}
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("%w: customFields: %v", apperror.ErrMalformedPayload, err)
		}
		return datatypes.JSONMap(m), nil
	case '[':
		var list []struct {
			ID    string      `json:"id"`
			Key   string      `json:"key"`
			Value interface{} `json:"value"`
		}
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("%w: customFields: %v", apperror.ErrMalformedPayload, err)
		}
		m := datatypes.JSONMap{}
		for _, f := range list {
			key := f.ID
			if key == "" {
				key = f.Key
			}
			if key != "" {
				m[key] = f.Value
			}
		}
		return m, nil
	}
	return nil, fmt.Errorf("%w: customFields must be an object or a list", apperror.ErrMalformedPayload)
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func decodeData(data map[string]interface{}, out interface{}) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("%w: %v", apperror.ErrMalformedPayload, err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("%w: %v", apperror.ErrMalformedPayload, err)
	}
	return nil
}

func stringField(data map[string]interface{}, key string) string {
	switch v := data[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	}
	return ""
}

func contactEventData(c *crmdomain.Contact) map[string]interface{} {
	data := map[string]interface{}{
		"id":    c.ID,
		"email": c.Email,
		"name":  c.Name,
		"tags":  c.Tags,
	}
	if c.GhlID != nil {
		data["ghl_id"] = *c.GhlID
	}
	if c.CustomFields != nil {
		data["custom_fields"] = map[string]interface{}(c.CustomFields)
	}
	if c.JoinedDate != nil {
		data["joined_date"] = c.JoinedDate.Format(time.RFC3339)
	}
	return data
}
