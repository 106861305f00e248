package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestAccepts(t *testing.T) {
	w := &Webhook{EventHandling: StringArray{"contact.created", "email.*"}}

	require.True(t, w.Accepts("contact.created"))
	require.True(t, w.Accepts("email.opened"))
	require.False(t, w.Accepts("contact.deleted"))
	require.False(t, w.Accepts("emails.opened"))

	require.True(t, (&Webhook{}).Accepts("anything"))
}

func TestViewsIgnoreOtherVariant(t *testing.T) {
	token := "tok"
	w := &Webhook{
		ID:            "w1",
		Type:          WebhookTypeIncoming,
		Name:          "GHL inbound",
		EndpointToken: &token,
		EventHandling: StringArray{"contact.*"},
		TargetURL:     "https://stale.example/hook",
		Headers:       datatypes.JSONMap{"X-Count": 3},
	}

	view, ok := w.View().(IncomingWebhook)
	require.True(t, ok)
	require.Equal(t, "tok", view.EndpointToken)
	require.Equal(t, []string{"contact.*"}, view.EventHandling)

	out := w.Outgoing()
	require.Equal(t, "POST", out.HTTPMethod)
	require.Equal(t, "3", out.Headers["X-Count"])
}

func TestStringArrayScan(t *testing.T) {
	var a StringArray
	require.NoError(t, a.Scan(`["a","b"]`))
	require.Equal(t, StringArray{"a", "b"}, a)

	require.NoError(t, a.Scan(nil))
	require.Empty(t, a)

	v, err := StringArray{}.Value()
	require.NoError(t, err)
	require.Equal(t, "[]", v)
}

func TestParseWebhookType(t *testing.T) {
	typ, ok := ParseWebhookType("incoming")
	require.True(t, ok)
	require.Equal(t, WebhookTypeIncoming, typ)

	_, ok = ParseWebhookType("BIDIRECTIONAL")
	require.False(t, ok)
}
