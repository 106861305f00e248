package dto

// CreateWebhookRequest creates an INCOMING or OUTGOING webhook. Only the
// fields of the requested type are stored.
type CreateWebhookRequest struct {
	Type        string `json:"type" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Provider    string `json:"provider"`

	SecretKey         string   `json:"secret_key"`
	EventHandling     []string `json:"event_handling"`
	NotificationEmail string   `json:"notification_email"`

	TriggerEvent    string            `json:"trigger_event"`
	TargetURL       string            `json:"target_url"`
	HTTPMethod      string            `json:"http_method"`
	Headers         map[string]string `json:"headers"`
	SelectedFields  []string          `json:"selected_fields"`
	PayloadTemplate string            `json:"payload_template"`
}

// UpdateWebhookRequest patches a webhook. Nil fields are left unchanged and
// fields of the other variant are ignored.
type UpdateWebhookRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"is_active"`

	SecretKey         *string   `json:"secret_key"`
	EventHandling     *[]string `json:"event_handling"`
	NotificationEmail *string   `json:"notification_email"`

	TriggerEvent    *string            `json:"trigger_event"`
	TargetURL       *string            `json:"target_url"`
	HTTPMethod      *string            `json:"http_method"`
	Headers         *map[string]string `json:"headers"`
	SelectedFields  *[]string          `json:"selected_fields"`
	PayloadTemplate *string            `json:"payload_template"`
}

// WebhookResponse wraps a webhook view
type WebhookResponse struct {
	Webhook     interface{} `json:"webhook"`
	IncomingURL string      `json:"incoming_url,omitempty"`
}
