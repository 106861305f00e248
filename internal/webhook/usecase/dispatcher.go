package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"crm-backend/pkg/apperror"

	"github.com/tidwall/gjson"
)

// Envelope is a parsed inbound webhook body: {"event": ..., "data": {...}}.
type Envelope struct {
	Event      string
	Data       map[string]interface{}
	LocationID string
	Raw        []byte
}

// ParseEnvelope validates the envelope shape. The location id is read from
// the top level or from data.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: body is not valid JSON", apperror.ErrMalformedPayload)
	}

	event := gjson.GetBytes(raw, "event")
	if event.Type != gjson.String || event.Str == "" {
		return nil, fmt.Errorf("%w: missing event", apperror.ErrMalformedPayload)
	}
	data := gjson.GetBytes(raw, "data")
	if !data.IsObject() {
		return nil, fmt.Errorf("%w: missing data", apperror.ErrMalformedPayload)
	}

	env := &Envelope{Event: event.Str, Raw: raw}
	if err := json.Unmarshal([]byte(data.Raw), &env.Data); err != nil {
		return nil, fmt.Errorf("%w: %v", apperror.ErrMalformedPayload, err)
	}
	for _, path := range []string{"locationId", "data.locationId", "location_id", "data.location_id"} {
		if v := gjson.GetBytes(raw, path); v.Type == gjson.String && v.Str != "" {
			env.LocationID = v.Str
			break
		}
	}
	return env, nil
}

// Scope identifies who an inbound event belongs to. UserID may be empty when
// a signed provider webhook names no connected location.
type Scope struct {
	UserID   string
	Provider string
}

// EventHandler applies one inbound event
type EventHandler func(ctx context.Context, scope Scope, env *Envelope) error

type prefixRoute struct {
	prefix  string
	handler EventHandler
}

// Dispatcher routes events to handlers by exact name, then by prefix in
// registration order.
type Dispatcher struct {
	exact    map[string]EventHandler
	prefixes []prefixRoute
}

// NewDispatcher creates an empty Dispatcher
func NewDispatcher() *Dispatcher {
	return &Dispatcher{exact: make(map[string]EventHandler)}
}

// On registers a handler for an exact event name
func (d *Dispatcher) On(event string, handler EventHandler) {
	d.exact[event] = handler
}

// OnPrefix registers a handler for every event starting with prefix
func (d *Dispatcher) OnPrefix(prefix string, handler EventHandler) {
	d.prefixes = append(d.prefixes, prefixRoute{prefix: prefix, handler: handler})
}

// Dispatch runs the matching handler. matched is false when no handler is
// registered for the event.
func (d *Dispatcher) Dispatch(ctx context.Context, scope Scope, env *Envelope) (matched bool, err error) {
	if h, ok := d.exact[env.Event]; ok {
		return true, h(ctx, scope, env)
	}
	for _, route := range d.prefixes {
		if strings.HasPrefix(env.Event, route.prefix) {
			return true, route.handler(ctx, scope, env)
		}
	}
	return false, nil
}
