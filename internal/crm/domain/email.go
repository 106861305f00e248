package domain

import (
	"fmt"
	"strings"
	"time"
)

// EmailType classifies a campaign email
type EmailType string

const (
	EmailTypeTemplate   EmailType = "template"
	EmailTypePriority   EmailType = "priority"
	EmailTypeExperiment EmailType = "experiment"
)

// Email is a campaign email sent through the provider
type Email struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name"`
	Subject   string    `json:"subject"`
	Type      EmailType `json:"type" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeliveryStatus is the state of one email sent to one contact
type DeliveryStatus string

const (
	DeliveryStatusSent       DeliveryStatus = "SENT"
	DeliveryStatusDelivered  DeliveryStatus = "DELIVERED"
	DeliveryStatusOpened     DeliveryStatus = "OPENED"
	DeliveryStatusClicked    DeliveryStatus = "CLICKED"
	DeliveryStatusBounced    DeliveryStatus = "BOUNCED"
	DeliveryStatusComplained DeliveryStatus = "COMPLAINED"
)

var deliveryStatusRank = map[DeliveryStatus]int{
	DeliveryStatusSent:       1,
	DeliveryStatusDelivered:  2,
	DeliveryStatusOpened:     3,
	DeliveryStatusClicked:    4,
	DeliveryStatusBounced:    5,
	DeliveryStatusComplained: 5,
}

// Rank orders statuses by significance. Unknown statuses rank 0.
func (s DeliveryStatus) Rank() int {
	return deliveryStatusRank[s]
}

// NotAbove lists every status whose rank does not exceed s.
func (s DeliveryStatus) NotAbove() []DeliveryStatus {
	var out []DeliveryStatus
	for status, rank := range deliveryStatusRank {
		if rank <= s.Rank() {
			out = append(out, status)
		}
	}
	return out
}

// EmailDelivery tracks one email sent to one contact
type EmailDelivery struct {
	ID           string         `json:"id" gorm:"primaryKey"`
	EmailID      string         `json:"email_id" gorm:"index;not null"`
	ContactID    string         `json:"contact_id" gorm:"index;not null"`
	GhlMessageID *string        `json:"ghl_message_id,omitempty" gorm:"uniqueIndex"`
	Status       DeliveryStatus `json:"status" gorm:"not null"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// StatusPolicy decides whether an inbound status may replace the stored one
type StatusPolicy string

const (
	// StatusPolicyOverwrite applies every inbound status as received.
	StatusPolicyOverwrite StatusPolicy = "overwrite"
	// StatusPolicyMonotonic ignores updates that would lower the status rank.
	StatusPolicyMonotonic StatusPolicy = "monotonic"
)

// ParseStatusPolicy validates a policy name
func ParseStatusPolicy(name string) (StatusPolicy, error) {
	switch p := StatusPolicy(strings.ToLower(strings.TrimSpace(name))); p {
	case StatusPolicyOverwrite, StatusPolicyMonotonic:
		return p, nil
	}
	return "", fmt.Errorf("unknown delivery status policy %q", name)
}
