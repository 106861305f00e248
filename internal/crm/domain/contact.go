package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Contact sources written by the integration subsystem
const (
	ContactSourceWebhook = "provider_webhook"
	ContactSourceImport  = "provider_import"
)

// Contact is a CRM contact, optionally linked to the provider's contact id
type Contact struct {
	ID            string            `json:"id" gorm:"primaryKey"`
	GhlID         *string           `json:"ghl_id,omitempty" gorm:"uniqueIndex"`
	Email         string            `json:"email" gorm:"index"`
	Name          string            `json:"name"`
	CustomFields  datatypes.JSONMap `json:"custom_fields,omitempty"`
	JoinedDate    *time.Time        `json:"joined_date,omitempty"`
	ContactSource string            `json:"contact_source,omitempty"`
	Tags          []string          `json:"tags" gorm:"-"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// ContactTag is one member of a contact's tag set
type ContactTag struct {
	ContactID string    `json:"contact_id" gorm:"primaryKey"`
	Tag       string    `json:"tag" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
}

// Tags derived from email engagement
const (
	TagOpenedEmail          = "opened_email"
	TagOpenedPriorityEmail  = "opened_priority_email"
	TagClickedEmail         = "clicked_email"
	TagClickedPriorityEmail = "clicked_priority_email"
	TagHighIntent           = "high_intent"
)
