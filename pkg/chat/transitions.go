package chat

import (
	"fmt"
	"time"
)

// transitionEvent is a lifecycle event applied to a session.
type transitionEvent string

const (
	eventRequestAdmin transitionEvent = "request-admin"
	eventTakeOver     transitionEvent = "take-over"
	eventClose        transitionEvent = "close"
)

// transitionTable is the legal status graph. Anything absent here is an
// invalid transition and must leave the session untouched.
var transitionTable = map[SessionStatus]map[transitionEvent]SessionStatus{
	StatusActive: {
		eventRequestAdmin: StatusWaitingForAdmin,
		eventTakeOver:     StatusAdminActive,
		eventClose:        StatusClosed,
	},
	StatusWaitingForAdmin: {
		eventTakeOver: StatusAdminActive,
		eventClose:    StatusClosed,
	},
	StatusAdminActive: {
		eventClose: StatusClosed,
	},
}

// applyTransition moves sess to the state the event leads to, touching
// UpdatedAt and setting ClosedAt on close. A closed session yields
// ErrSessionClosed; any other illegal event yields ErrInvalidTransition.
func applyTransition(sess *Session, event transitionEvent, now time.Time) error {
	if sess.Status == StatusClosed {
		return ErrSessionClosed
	}
	next, ok := transitionTable[sess.Status][event]
	if !ok {
		return fmt.Errorf("%w: %s on %s", ErrInvalidTransition, event, sess.Status)
	}
	sess.Status = next
	sess.UpdatedAt = now
	if next == StatusClosed {
		t := now
		sess.ClosedAt = &t
	}
	return nil
}

// Side-effect messages emitted by transitions. The texts are part of the
// product surface; the tags are the stable contract.

func adminRequestUserMessage(sess *Session, now time.Time) *Message {
	return &Message{
		SessionID:   sess.SessionID,
		UserID:      sess.UserID,
		Username:    "System",
		Body:        "Admin support has been requested. An administrator will join the conversation shortly.",
		Sender:      SenderSystem,
		Timestamp:   now,
		Automated:   true,
		RuleMatched: TagAdminRequestUser,
	}
}

func adminRequestNotifyMessage(sess *Session, now time.Time) *Message {
	return &Message{
		SessionID:   sess.SessionID,
		UserID:      sess.UserID,
		Username:    "System",
		Body:        fmt.Sprintf("User %s is requesting admin support", sess.Username),
		Sender:      SenderSystem,
		Timestamp:   now,
		Automated:   true,
		RuleMatched: TagAdminRequestNotify,
	}
}

func adminTakeoverMessage(sess *Session, now time.Time) *Message {
	return &Message{
		SessionID:   sess.SessionID,
		UserID:      sess.UserID,
		Username:    "System",
		Body:        "An administrator has joined the conversation. The AI assistant is now disabled and you will be speaking directly with a human support agent.",
		Sender:      SenderSystem,
		Timestamp:   now,
		Automated:   true,
		RuleMatched: TagAdminTakeover,
	}
}

func waitingForAdminMessage(sess *Session, userID int64, now time.Time) *Message {
	return &Message{
		SessionID:   sess.SessionID,
		UserID:      userID,
		Username:    "System",
		Body:        "Your message has been received. An administrator will respond shortly.",
		Sender:      SenderSystem,
		Timestamp:   now,
		Automated:   true,
		RuleMatched: TagWaitingForAdmin,
	}
}
