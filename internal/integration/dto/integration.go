package dto

import "time"

// ConnectionStatusResponse is returned by GET /api/connection-status
type ConnectionStatusResponse struct {
	Connected      bool       `json:"connected"`
	Provider       string     `json:"provider"`
	Reason         string     `json:"reason,omitempty"`
	LocationID     string     `json:"location_id,omitempty"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
}

// AuthURLResponse is returned by GET /api/auth/:provider for JSON clients
type AuthURLResponse struct {
	URL string `json:"url"`
}

// SyncContactsResponse is returned by POST /api/integrations/:provider/sync-contacts
type SyncContactsResponse struct {
	Imported int `json:"imported"`
}
