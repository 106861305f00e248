package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// StringArray is a custom type to handle JSON array in GORM
type StringArray []string

// Value implements driver.Valuer
func (a StringArray) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (a *StringArray) Scan(value interface{}) error {
	var bytes []byte
	switch v := value.(type) {
	case nil:
		*a = StringArray{}
		return nil
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported StringArray source %T", value)
	}
	if len(bytes) == 0 {
		*a = StringArray{}
		return nil
	}
	return json.Unmarshal(bytes, a)
}

// WebhookType discriminates the two webhook variants
type WebhookType string

const (
	WebhookTypeIncoming WebhookType = "INCOMING"
	WebhookTypeOutgoing WebhookType = "OUTGOING"
)

// ParseWebhookType validates a webhook type name
func ParseWebhookType(s string) (WebhookType, bool) {
	switch t := WebhookType(strings.ToUpper(strings.TrimSpace(s))); t {
	case WebhookTypeIncoming, WebhookTypeOutgoing:
		return t, true
	}
	return "", false
}

// Webhook is persisted as one row carrying the columns of both variants.
// Only the columns of its Type are meaningful; use Incoming or Outgoing to
// read it.
type Webhook struct {
	ID          string      `gorm:"primaryKey"`
	UserID      string      `gorm:"index;not null"`
	Type        WebhookType `gorm:"index;not null"`
	Name        string      `gorm:"not null"`
	Description string      `gorm:"type:text"`
	Provider    string      `gorm:"index"`
	IsActive    bool        `gorm:"not null"`

	// INCOMING
	EndpointToken     *string     `gorm:"uniqueIndex"`
	SecretKey         string      `gorm:"type:text"`
	EventHandling     StringArray `gorm:"type:text"`
	NotificationEmail string

	// OUTGOING
	TriggerEvent    string `gorm:"index"`
	TargetURL       string `gorm:"type:text"`
	HTTPMethod      string
	Headers         datatypes.JSONMap
	SelectedFields  StringArray `gorm:"type:text"`
	PayloadTemplate string      `gorm:"type:text"`

	LastTriggeredAt *time.Time
	TriggerCount    int64 `gorm:"not null;default:0"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// WebhookBase holds the fields common to both variants
type WebhookBase struct {
	ID              string      `json:"id"`
	UserID          string      `json:"user_id"`
	Type            WebhookType `json:"type"`
	Name            string      `json:"name"`
	Description     string      `json:"description,omitempty"`
	Provider        string      `json:"provider"`
	IsActive        bool        `json:"is_active"`
	LastTriggeredAt *time.Time  `json:"last_triggered_at,omitempty"`
	TriggerCount    int64       `json:"trigger_count"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// IncomingWebhook is the INCOMING view of a webhook
type IncomingWebhook struct {
	WebhookBase
	EndpointToken     string   `json:"endpoint_token"`
	SecretKey         string   `json:"secret_key,omitempty"`
	EventHandling     []string `json:"event_handling"`
	NotificationEmail string   `json:"notification_email,omitempty"`
}

// OutgoingWebhook is the OUTGOING view of a webhook
type OutgoingWebhook struct {
	WebhookBase
	TriggerEvent    string            `json:"trigger_event"`
	TargetURL       string            `json:"target_url"`
	HTTPMethod      string            `json:"http_method"`
	Headers         map[string]string `json:"headers"`
	SelectedFields  []string          `json:"selected_fields"`
	PayloadTemplate string            `json:"payload_template,omitempty"`
}

func (w *Webhook) base() WebhookBase {
	return WebhookBase{
		ID:              w.ID,
		UserID:          w.UserID,
		Type:            w.Type,
		Name:            w.Name,
		Description:     w.Description,
		Provider:        w.Provider,
		IsActive:        w.IsActive,
		LastTriggeredAt: w.LastTriggeredAt,
		TriggerCount:    w.TriggerCount,
		CreatedAt:       w.CreatedAt,
		UpdatedAt:       w.UpdatedAt,
	}
}

// Incoming returns the INCOMING view, ignoring outgoing columns.
func (w *Webhook) Incoming() IncomingWebhook {
	view := IncomingWebhook{
		WebhookBase:       w.base(),
		SecretKey:         w.SecretKey,
		EventHandling:     append([]string{}, w.EventHandling...),
		NotificationEmail: w.NotificationEmail,
	}
	if w.EndpointToken != nil {
		view.EndpointToken = *w.EndpointToken
	}
	return view
}

// Outgoing returns the OUTGOING view, ignoring incoming columns.
func (w *Webhook) Outgoing() OutgoingWebhook {
	return OutgoingWebhook{
		WebhookBase:     w.base(),
		TriggerEvent:    w.TriggerEvent,
		TargetURL:       w.TargetURL,
		HTTPMethod:      w.Method(),
		Headers:         w.HeaderMap(),
		SelectedFields:  append([]string{}, w.SelectedFields...),
		PayloadTemplate: w.PayloadTemplate,
	}
}

// View returns the variant-typed value for API responses.
func (w *Webhook) View() interface{} {
	if w.Type == WebhookTypeIncoming {
		return w.Incoming()
	}
	return w.Outgoing()
}

// Method is the outbound HTTP method, POST when unset.
func (w *Webhook) Method() string {
	if m := strings.ToUpper(strings.TrimSpace(w.HTTPMethod)); m != "" {
		return m
	}
	return "POST"
}

// HeaderMap flattens the stored headers to strings.
func (w *Webhook) HeaderMap() map[string]string {
	headers := make(map[string]string, len(w.Headers))
	for k, v := range w.Headers {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			headers[k] = s
			continue
		}
		headers[k] = fmt.Sprint(v)
	}
	return headers
}

// Accepts reports whether an INCOMING webhook processes the event. An empty
// event_handling list accepts everything; entries are exact names or
// "prefix.*" patterns.
func (w *Webhook) Accepts(event string) bool {
	if len(w.EventHandling) == 0 {
		return true
	}
	for _, pattern := range w.EventHandling {
		pattern = strings.TrimSpace(pattern)
		if pattern == "*" || pattern == event {
			return true
		}
		if strings.HasSuffix(pattern, ".*") && strings.HasPrefix(event, strings.TrimSuffix(pattern, "*")) {
			return true
		}
	}
	return false
}

// TriggerEvent is a local event offered to a user's OUTGOING webhooks
type TriggerEvent struct {
	UserID     string
	Name       string
	Data       map[string]interface{}
	OccurredAt time.Time
}
