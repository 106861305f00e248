// Package signature verifies inbound provider webhooks and the per-user tokens
// embedded in dynamically issued webhook URLs.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const prefix = "sha256="

// SignPayload returns the hex HMAC-SHA256 of body under secret.
func SignPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyProviderSignature checks presented against the HMAC of the exact raw
// body. An empty secret means the provider is configured for unsigned mode and
// every payload is accepted. A "sha256=" prefix on presented is tolerated.
func VerifyProviderSignature(rawBody []byte, presented, secret string) bool {
	if secret == "" {
		return true
	}
	presented = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(presented), prefix))
	if presented == "" {
		return false
	}
	got, err := hex.DecodeString(strings.ToLower(presented))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(rawBody)
	return hmac.Equal(mac.Sum(nil), got)
}

// WebhookToken returns the hex HMAC-SHA256 of "{userID}:{provider}" under key.
func WebhookToken(key []byte, userID, provider string) string {
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write([]byte(userID + ":" + provider))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookToken reports whether token is exactly WebhookToken(key, userID, provider).
func VerifyWebhookToken(key []byte, token, userID, provider string) bool {
	if len(key) == 0 || token == "" {
		return false
	}
	expected := WebhookToken(key, userID, provider)
	return hmac.Equal([]byte(expected), []byte(token))
}
