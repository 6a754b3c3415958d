package chat

import (
	"context"
	"errors"
)

// Common errors for session and message operations.
var (
	// ErrSessionNotFound is returned when a session doesn't exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionClosed is returned for lifecycle operations on a closed session.
	ErrSessionClosed = errors.New("session is closed")
	// ErrInvalidTransition is returned when a status change is not allowed by
	// the transition graph. State is left untouched.
	ErrInvalidTransition = errors.New("invalid session status transition")
	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("store is closed")
	// ErrValidation is returned for malformed input (missing required fields).
	ErrValidation = errors.New("invalid request")
)

// Store abstracts session and message persistence.
// Implementations must be safe for concurrent use. The message log is
// append-only: ListMessages returns messages in non-decreasing timestamp
// order for a given session.
type Store interface {
	// CreateSession persists a new session record.
	CreateSession(ctx context.Context, sess *Session) error

	// GetSession retrieves a session by its external id.
	// Returns ErrSessionNotFound if the session doesn't exist.
	GetSession(ctx context.Context, sessionID string) (*Session, error)

	// UpdateSession overwrites the mutable fields of an existing session.
	UpdateSession(ctx context.Context, sess *Session) error

	// ListSessionsByStatus returns sessions in any of the given statuses,
	// newest-created first.
	ListSessionsByStatus(ctx context.Context, statuses ...SessionStatus) ([]*Session, error)

	// ListSessionsByUser returns all sessions for a user, newest-created first.
	ListSessionsByUser(ctx context.Context, userID int64) ([]*Session, error)

	// AppendMessage assigns msg.ID and appends it to the session log.
	AppendMessage(ctx context.Context, msg *Message) error

	// ListMessages returns the full history for a session, ascending by
	// timestamp. A session with no messages yields an empty slice.
	ListMessages(ctx context.Context, sessionID string) ([]*Message, error)

	// RecentMessages returns up to n trailing messages in chronological order.
	RecentMessages(ctx context.Context, sessionID string, n int) ([]*Message, error)

	// Close releases any resources held by the store.
	Close() error
}
