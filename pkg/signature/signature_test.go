package signature

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerifyProviderSignature(t *testing.T) {
	secret := "ghl_whsec"
	body := []byte(`{"event":"contact.created","data":{"id":"abc"}}`)
	sig := SignPayload(secret, body)

	require.True(t, VerifyProviderSignature(body, sig, secret))
	require.True(t, VerifyProviderSignature(body, "sha256="+sig, secret))
	require.False(t, VerifyProviderSignature(body, "", secret))
	require.False(t, VerifyProviderSignature(body, "not-hex", secret))
	require.False(t, VerifyProviderSignature(body, sig, "other-secret"))
}

func TestVerifyProviderSignatureUnsignedMode(t *testing.T) {
	require.True(t, VerifyProviderSignature([]byte(`{}`), "", ""))
	require.True(t, VerifyProviderSignature([]byte(`{}`), "garbage", ""))
}

func TestVerifyProviderSignatureRejectsBitFlips(t *testing.T) {
	secret := "s3cret"
	body := []byte(`{"event":"email.opened","data":{"messageId":"m1"}}`)
	sig := SignPayload(secret, body)

	for i := range body {
		for bit := 0; bit < 8; bit++ {
			mutated := append([]byte(nil), body...)
			mutated[i] ^= 1 << bit
			require.False(t, VerifyProviderSignature(mutated, sig, secret), "body byte %d bit %d", i, bit)
		}
	}

	raw, err := hex.DecodeString(sig)
	require.NoError(t, err)
	for i := range raw {
		for bit := 0; bit < 8; bit++ {
			mutated := append([]byte(nil), raw...)
			mutated[i] ^= 1 << bit
			require.False(t, VerifyProviderSignature(body, hex.EncodeToString(mutated), secret), "sig byte %d bit %d", i, bit)
		}
	}
}

func TestVerifyWebhookToken(t *testing.T) {
	key := []byte("server-signing-key")
	token := WebhookToken(key, "user-1", "gohighlevel")

	require.Len(t, token, 64)
	require.True(t, VerifyWebhookToken(key, token, "user-1", "gohighlevel"))
	require.False(t, VerifyWebhookToken(key, token, "user-2", "gohighlevel"))
	require.False(t, VerifyWebhookToken(key, token, "user-1", "openai"))
	require.False(t, VerifyWebhookToken([]byte("other-key"), token, "user-1", "gohighlevel"))
	require.False(t, VerifyWebhookToken(key, token[:63], "user-1", "gohighlevel"))
	require.False(t, VerifyWebhookToken(key, "", "user-1", "gohighlevel"))
	require.False(t, VerifyWebhookToken(nil, token, "user-1", "gohighlevel"))
}
