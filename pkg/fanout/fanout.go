// Package fanout publishes persisted chat messages to real-time subscribers.
// Delivery is best-effort and fire-and-forget: the durable message log, not
// the fanout topic, is the source of truth.
package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// EventKind discriminates fanout payloads. The set is closed; consumers
// decode into it rather than switching on loose string fields.
type EventKind string

const (
	// KindMessage is a persisted chat message (user, admin, or system).
	KindMessage EventKind = "message"
	// KindSessionClosed announces a session reaching its terminal state.
	KindSessionClosed EventKind = "session_closed"
)

// Event is the wire payload mirroring the persisted message plus provenance.
type Event struct {
	Kind        EventKind `json:"kind"`
	MessageID   int64     `json:"messageId,omitempty"`
	SessionID   string    `json:"sessionId"`
	UserID      int64     `json:"userId"`
	Username    string    `json:"username,omitempty"`
	Body        string    `json:"body,omitempty"`
	SenderType  string    `json:"senderType,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Automated   bool      `json:"isAutomated,omitempty"`
	RuleMatched string    `json:"ruleMatched,omitempty"`
}

// Decode parses a raw fanout payload into an Event, rejecting unknown kinds.
func Decode(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	switch ev.Kind {
	case KindMessage, KindSessionClosed:
		return &ev, nil
	default:
		return nil, fmt.Errorf("unknown event kind %q", ev.Kind)
	}
}

// OperatorVisible reports whether the event belongs on the operator-wide
// channel: every user and admin message, and the system messages announcing
// admin requests and takeovers.
func (e *Event) OperatorVisible() bool {
	switch e.SenderType {
	case "USER", "ADMIN":
		return true
	case "SYSTEM":
		switch e.RuleMatched {
		case "ADMIN_REQUEST_USER", "ADMIN_REQUEST_NOTIFICATION", "ADMIN_TAKEOVER":
			return true
		}
	}
	return e.Kind == KindSessionClosed
}

// Publisher delivers events to subscribers. Implementations must not block
// the caller beyond the context and must never be required for correctness
// of the persisted record.
type Publisher interface {
	// Publish delivers an event to the session channel and, when operator
	// visible, to the operator channel.
	Publish(ctx context.Context, ev *Event) error

	// Close releases any resources held by the publisher.
	Close() error
}

// Nop is a Publisher that drops everything. Useful for tests and for running
// without a fanout backend.
type Nop struct{}

func (Nop) Publish(context.Context, *Event) error { return nil }
func (Nop) Close() error                          { return nil }
