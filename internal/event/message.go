package event

import "encoding/json"

// Kind classifies an inbound wire message.
type Kind int

const (
	// KindUnknown is a structurally valid JSON object that fits neither
	// recognized shape. It is logged and dropped by the caller.
	KindUnknown Kind = iota
	// KindHandshake is the sync request a client sends on connect.
	KindHandshake
	// KindEvent is a mutation authored by a client.
	KindEvent
)

// Handshake is the catch-up request a client sends when it connects,
// declaring the newest Lamport value it has already applied.
type Handshake struct {
	Type               string `json:"type"`
	ClientID           string `json:"clientId"`
	LastKnownLamportTs int64  `json:"lastKnownLamportTs"`
}

// Message is the tagged union produced by Classify. Exactly one of
// Handshake or Event is set when Kind is not KindUnknown.
type Message struct {
	Kind      Kind
	Handshake *Handshake
	Event     *Event
}

// Classify decides the shape of an inbound message. It is the single place
// that inspects raw message structure; callers dispatch on Kind only.
// A non-JSON payload returns an error (parse failure); a JSON object that
// matches neither shape returns KindUnknown.
func Classify(raw []byte) (Message, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Message{}, err
	}

	if isHandshake(probe) {
		var hs Handshake
		if err := json.Unmarshal(raw, &hs); err != nil {
			return Message{}, err
		}
		return Message{Kind: KindHandshake, Handshake: &hs}, nil
	}

	if isEvent(probe) {
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return Message{}, err
		}
		return Message{Kind: KindEvent, Event: &ev}, nil
	}

	return Message{Kind: KindUnknown}, nil
}

func isHandshake(m map[string]json.RawMessage) bool {
	var typ string
	if raw, ok := m["type"]; !ok || json.Unmarshal(raw, &typ) != nil || typ != "handshake" {
		return false
	}
	if !hasString(m, "clientId") {
		return false
	}
	return hasNumber(m, "lastKnownLamportTs")
}

func isEvent(m map[string]json.RawMessage) bool {
	if !hasString(m, "id") || !hasNumber(m, "lamportTs") || !hasString(m, "timestamp") {
		return false
	}
	if !hasString(m, "action") || !hasString(m, "entityType") || !hasString(m, "entityId") {
		return false
	}
	_, ok := m["data"]
	return ok
}

func hasString(m map[string]json.RawMessage, key string) bool {
	raw, ok := m[key]
	if !ok {
		return false
	}
	var s string
	return json.Unmarshal(raw, &s) == nil
}

func hasNumber(m map[string]json.RawMessage, key string) bool {
	raw, ok := m[key]
	if !ok {
		return false
	}
	var n float64
	return json.Unmarshal(raw, &n) == nil
}
