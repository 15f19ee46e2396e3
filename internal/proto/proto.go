// Package proto defines the event protocol spoken between the relay and its
// clients. Every frame is a JSON envelope {"event": name, "data": payload}.
package proto

import (
	"encoding/json"
	"fmt"

	"MapBoard/internal/state"
)

const (
	EventConnected      = "connected"
	EventStateInit      = "state init"
	EventPointClicked   = "point clicked"
	EventMapChanged     = "map changed"
	EventDrawCreate     = "draw create"
	EventDrawEdit       = "draw edit"
	EventDrawDelete     = "draw delete"
	EventDrawProgress   = "draw progress"
	EventViewChanged    = "view changed"
	EventPresenceUpdate = "presence update"
	EventUsernameSet    = "username set"
	EventUserJoined     = "user joined"
	EventUserLeft       = "user left"
	EventUserUpdated    = "user updated"
)

// Envelope is one frame on the wire.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode builds a frame for event carrying payload.
func Encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// Decode parses a frame.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode frame: %w", state.ErrValidation)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("frame without event: %w", state.ErrValidation)
	}
	return env, nil
}

// Connected tells a new session its own id.
type Connected struct {
	ID string `json:"id"`
}

// UserRef identifies a session in join and leave notices.
type UserRef struct {
	ID string `json:"id"`
}

// UserUpdated carries a session's canonical display name.
type UserUpdated struct {
	ID   string  `json:"id"`
	Name *string `json:"name"`
}

type UsernameSet struct {
	Name string `json:"name"`
}

// DecodeInto unmarshals a payload, mapping any decoding failure to
// state.ErrValidation.
func DecodeInto(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("empty payload: %w", state.ErrValidation)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%v: %w", err, state.ErrValidation)
	}
	return nil
}
