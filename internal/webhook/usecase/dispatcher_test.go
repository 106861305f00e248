package usecase

import (
	"context"
	"errors"
	"testing"

	"crm-backend/pkg/apperror"

	"github.com/stretchr/testify/require"
)

func TestParseEnvelope(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		env, err := ParseEnvelope([]byte(`{"event":"contact.created","locationId":"loc-1","data":{"id":"g1"}}`))
		require.NoError(t, err)
		require.Equal(t, "contact.created", env.Event)
		require.Equal(t, "g1", env.Data["id"])
		require.Equal(t, "loc-1", env.LocationID)
	})

	t.Run("location inside data", func(t *testing.T) {
		env, err := ParseEnvelope([]byte(`{"event":"contact.created","data":{"id":"g1","locationId":"loc-2"}}`))
		require.NoError(t, err)
		require.Equal(t, "loc-2", env.LocationID)
	})

	for name, body := range map[string]string{
		"not json":        `{"event":`,
		"missing event":   `{"data":{}}`,
		"empty event":     `{"event":"","data":{}}`,
		"numeric event":   `{"event":5,"data":{}}`,
		"missing data":    `{"event":"contact.created"}`,
		"data not object": `{"event":"contact.created","data":[1]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseEnvelope([]byte(body))
			require.ErrorIs(t, err, apperror.ErrMalformedPayload)
		})
	}
}

func TestDispatcherRouting(t *testing.T) {
	d := NewDispatcher()
	var got []string
	d.On("email.special", func(ctx context.Context, scope Scope, env *Envelope) error {
		got = append(got, "exact:"+env.Event)
		return nil
	})
	d.OnPrefix("email.", func(ctx context.Context, scope Scope, env *Envelope) error {
		got = append(got, "prefix:"+env.Event)
		return errors.New("boom")
	})

	matched, err := d.Dispatch(context.Background(), Scope{}, &Envelope{Event: "email.special"})
	require.True(t, matched)
	require.NoError(t, err)

	matched, err = d.Dispatch(context.Background(), Scope{}, &Envelope{Event: "email.opened"})
	require.True(t, matched)
	require.EqualError(t, err, "boom")

	matched, err = d.Dispatch(context.Background(), Scope{}, &Envelope{Event: "opportunity.created"})
	require.False(t, matched)
	require.NoError(t, err)

	require.Equal(t, []string{"exact:email.special", "prefix:email.opened"}, got)
}
