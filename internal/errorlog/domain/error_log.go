package domain

import (
	"time"

	"gorm.io/datatypes"
)

// ErrorLog is a persisted failure that was swallowed on a path that must not
// surface errors to its caller (inbound webhooks, background delivery).
// UserID is empty when the failure could not be attributed to a user.
type ErrorLog struct {
	ID        string            `json:"id" gorm:"primaryKey"`
	UserID    string            `json:"user_id,omitempty" gorm:"index"`
	Context   string            `json:"context" gorm:"index;not null"`
	Message   string            `json:"message" gorm:"type:text;not null"`
	Trace     string            `json:"trace,omitempty" gorm:"type:text"`
	Extra     datatypes.JSONMap `json:"extra,omitempty"`
	CreatedAt time.Time         `json:"created_at" gorm:"index"`
}
