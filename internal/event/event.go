// Package event defines the immutable mutation record exchanged between
// peers and the classification of inbound wire messages.
package event

import (
	"encoding/json"
	"errors"
	"time"
)

// Action identifies the kind of mutation an event carries.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// EntityType identifies which entity map an event targets.
type EntityType string

const (
	EntityProject EntityType = "project"
	EntityTask    EntityType = "task"
)

// Event is an immutable mutation record. Once appended to the log it is
// never changed or removed. Timestamp is wall-clock and informational only;
// LamportTs is the sole ordering value.
type Event struct {
	ID         string          `json:"id"`
	LamportTs  int64           `json:"lamportTs"`
	Timestamp  string          `json:"timestamp"`
	Action     Action          `json:"action"`
	EntityType EntityType      `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Data       json.RawMessage `json:"data"`
}

// ErrMissingID indicates a malformed event without an identifier. Such
// events are dropped before they reach the log.
var ErrMissingID = errors.New("event missing id")

// Validate checks the single hard rule for accepting an event.
func (e *Event) Validate() error {
	if e.ID == "" {
		return ErrMissingID
	}
	return nil
}

// NowTimestamp returns the informational wall-clock stamp in the wire format.
func NowTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Marshal serializes the event to its wire form, a newline-free JSON object.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
