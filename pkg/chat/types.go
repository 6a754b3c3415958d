// Package chat implements the support-conversation core: session records and
// their status lifecycle, the append-only message log, the automated-response
// pipeline, and the orchestrating service that ties persistence and fanout
// together with a stable side-effect ordering.
package chat

import (
	"time"
)

// SessionStatus is the lifecycle state of a support session.
type SessionStatus string

const (
	// StatusActive is the initial state: the automated assistant answers.
	StatusActive SessionStatus = "ACTIVE"
	// StatusWaitingForAdmin means an operator has been requested but has not
	// joined yet; inbound messages get a static acknowledgment only.
	StatusWaitingForAdmin SessionStatus = "WAITING_FOR_ADMIN"
	// StatusAdminActive means an operator owns the conversation; automation
	// is disabled until the session closes.
	StatusAdminActive SessionStatus = "ADMIN_ACTIVE"
	// StatusClosed is terminal.
	StatusClosed SessionStatus = "CLOSED"
)

// SenderType identifies who authored a message.
type SenderType string

const (
	SenderUser   SenderType = "USER"
	SenderAdmin  SenderType = "ADMIN"
	SenderSystem SenderType = "SYSTEM"
)

// Provenance tags for automated messages. Tags are stable strings so
// subscribers and tests can route on them.
const (
	TagWaitingForAdmin    = "WAITING_FOR_ADMIN"
	TagAdminRequestUser   = "ADMIN_REQUEST_USER"
	TagAdminRequestNotify = "ADMIN_REQUEST_NOTIFICATION"
	TagAdminTakeover      = "ADMIN_TAKEOVER"
	TagAIGenerated        = "AI_GENERATED"
	TagAIFallbackPrefix   = "AI_FALLBACK: "
	TagEmptyMessage       = "EMPTY_MESSAGE"
)

// Session is one continuous support conversation.
// SessionID is globally unique and immutable after creation; ClosedAt is set
// if and only if Status == StatusClosed.
type Session struct {
	// SessionID is the stable external identifier (UUID).
	SessionID string `json:"sessionId"`
	// UserID is the visitor who opened the session.
	UserID int64 `json:"userId"`
	// Username is the visitor's display name.
	Username string `json:"username"`
	// Status is the current lifecycle state.
	Status SessionStatus `json:"status"`
	// CreatedAt is when the session was created.
	CreatedAt time.Time `json:"createdAt"`
	// UpdatedAt is touched on every operation against the session.
	UpdatedAt time.Time `json:"updatedAt"`
	// ClosedAt is set when the session reaches StatusClosed.
	ClosedAt *time.Time `json:"closedAt,omitempty"`
}

// Open reports whether the session still accepts lifecycle transitions.
func (s *Session) Open() bool {
	return s.Status != StatusClosed
}

// Message is a single entry in a session's append-only log.
// Messages are created exactly once and never mutated.
type Message struct {
	// ID is assigned by the store, monotonically increasing per store.
	ID int64 `json:"id"`
	// SessionID references an existing session.
	SessionID string `json:"sessionId"`
	// UserID is the visitor the message concerns (also set on system messages
	// so subscribers can attribute them to a conversation participant).
	UserID int64 `json:"userId"`
	// Username is the display name of the author.
	Username string `json:"username"`
	// Body is the message text.
	Body string `json:"body"`
	// Sender identifies the author kind.
	Sender SenderType `json:"senderType"`
	// Timestamp orders the session history.
	Timestamp time.Time `json:"timestamp"`
	// Automated is true for machine-produced messages; implies SenderSystem.
	Automated bool `json:"isAutomated"`
	// RuleMatched is the provenance tag of an automated message.
	RuleMatched string `json:"ruleMatched,omitempty"`
}
