package domain

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// ProviderGHL is the canonical provider key for GoHighLevel
const ProviderGHL = "ghl"

// NormalizeProvider maps provider aliases to their canonical key.
func NormalizeProvider(provider string) string {
	switch p := strings.ToLower(strings.TrimSpace(provider)); p {
	case "ghl", "gohighlevel", "highlevel":
		return ProviderGHL
	default:
		return p
	}
}

// IntegrationConnection holds a user's OAuth credentials for one provider.
// There is at most one row per (user_id, provider); rows are deactivated,
// never deleted.
type IntegrationConnection struct {
	ID               string            `json:"id" gorm:"primaryKey"`
	UserID           string            `json:"user_id" gorm:"uniqueIndex:idx_connection_user_provider;not null"`
	Provider         string            `json:"provider" gorm:"uniqueIndex:idx_connection_user_provider;not null"`
	AccessToken      string            `json:"-" gorm:"type:text"`
	RefreshToken     string            `json:"-" gorm:"type:text"`
	TokenType        string            `json:"token_type"`
	Scope            string            `json:"scope,omitempty" gorm:"type:text"`
	TokenExpiresAt   *time.Time        `json:"token_expires_at,omitempty" gorm:"index"`
	IsActive         bool              `json:"is_active" gorm:"not null"`
	Config           datatypes.JSONMap `json:"config,omitempty"`
	LastRefreshedAt  *time.Time        `json:"last_refreshed_at,omitempty"`
	RefreshFailedAt  *time.Time        `json:"refresh_failed_at,omitempty"`
	LastRefreshError string            `json:"last_refresh_error,omitempty" gorm:"type:text"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// IsExpired reports whether the access token expired before now. A nil
// expiry never expires.
func (c *IntegrationConnection) IsExpired(now time.Time) bool {
	return c.TokenExpiresAt != nil && c.TokenExpiresAt.Before(now)
}

// ConfigString returns a string value from the provider config.
func (c *IntegrationConnection) ConfigString(key string) string {
	if c.Config == nil {
		return ""
	}
	if v, ok := c.Config[key].(string); ok {
		return v
	}
	return ""
}
