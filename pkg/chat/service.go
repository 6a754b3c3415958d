package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/supportflow-dev/supportflow/pkg/fanout"
	"github.com/supportflow-dev/supportflow/pkg/observability"
)

// Service is the top-level orchestrator for support conversations. It owns
// the side-effect ordering contract: an inbound message is persisted and
// published before any automated response is computed or published, and all
// operations on one session are serialized against each other. Operations on
// different sessions run fully in parallel.
type Service struct {
	store     Store
	responder *Responder
	publisher fanout.Publisher
	log       zerolog.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	now func() time.Time
}

// NewService wires the orchestrator.
func NewService(store Store, responder *Responder, publisher fanout.Publisher, log zerolog.Logger) *Service {
	if publisher == nil {
		publisher = fanout.Nop{}
	}
	return &Service{
		store:     store,
		responder: responder,
		publisher: publisher,
		log:       log.With().Str("component", "chat").Logger(),
		locks:     make(map[string]*sync.Mutex),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// sessionLock returns the mutex serializing operations on one session.
// Locks are never reclaimed; the map is bounded by the session count.
func (s *Service) sessionLock(sessionID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	mu, ok := s.locks[sessionID]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[sessionID] = mu
	}
	return mu
}

// AIEnabled reports whether the generative path is configured and available.
func (s *Service) AIEnabled() bool {
	return s.responder.AIEnabled()
}

// SubmitUserMessage records a visitor message and applies the automated
// behavior the session's status calls for. It returns the last message
// produced: the automated reply when one is emitted, the persisted user
// message otherwise.
//
// A blank body is a policy short-circuit: nothing is persisted or published
// and the returned message is a synthetic, unpersisted prompt (ID 0, tag
// EMPTY_MESSAGE).
func (s *Service) SubmitUserMessage(ctx context.Context, sessionID string, userID int64, username, body string) (*Message, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrValidation)
	}

	if strings.TrimSpace(body) == "" {
		return &Message{
			SessionID:   sessionID,
			UserID:      userID,
			Username:    "System",
			Body:        EmptyBodyPrompt,
			Sender:      SenderSystem,
			Timestamp:   s.now(),
			Automated:   true,
			RuleMatched: TagEmptyMessage,
		}, nil
	}

	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	mu := s.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.getOrCreateSession(ctx, sessionID, userID, username)
	if err != nil {
		return nil, err
	}

	userMsg := &Message{
		SessionID: sess.SessionID,
		UserID:    userID,
		Username:  username,
		Body:      body,
		Sender:    SenderUser,
		Timestamp: s.now(),
	}
	if err := s.store.AppendMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}
	observability.RecordMessage(string(SenderUser))
	s.publish(ctx, userMsg)

	last := userMsg
	switch sess.Status {
	case StatusActive:
		reply, err := s.respond(ctx, sess, userMsg)
		if err != nil {
			return nil, err
		}
		last = reply

	case StatusWaitingForAdmin:
		waiting := waitingForAdminMessage(sess, userID, s.now())
		if err := s.store.AppendMessage(ctx, waiting); err != nil {
			return nil, fmt.Errorf("persist waiting notice: %w", err)
		}
		observability.RecordMessage(string(SenderSystem))
		observability.RecordAutomatedReply("waiting")
		s.publish(ctx, waiting)
		last = waiting

	case StatusAdminActive, StatusClosed:
		// Operator owns the conversation, or the session is closed: the
		// inbound message is acknowledged without any automated reply.
	}

	sess.UpdatedAt = s.now()
	if err := s.store.UpdateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}

	return last, nil
}

// respond runs the fallback pipeline for an Active session and persists and
// publishes the resulting automated message.
func (s *Service) respond(ctx context.Context, sess *Session, userMsg *Message) (*Message, error) {
	history, err := s.store.RecentMessages(ctx, sess.SessionID, defaultHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	start := s.now()
	reply := s.responder.Respond(ctx, userMsg.Body, history)
	observability.ObserveResponderDuration(time.Since(start).Seconds())

	botMsg := &Message{
		SessionID:   sess.SessionID,
		UserID:      userMsg.UserID,
		Username:    "Support Bot",
		Body:        reply.Body,
		Sender:      SenderSystem,
		Timestamp:   s.now(),
		Automated:   true,
		RuleMatched: reply.Tag,
	}
	if err := s.store.AppendMessage(ctx, botMsg); err != nil {
		return nil, fmt.Errorf("persist automated reply: %w", err)
	}
	observability.RecordMessage(string(SenderSystem))
	observability.RecordAutomatedReply(replySource(reply.Tag))
	s.publish(ctx, botMsg)

	s.log.Debug().
		Str("session_id", sess.SessionID).
		Str("rule", reply.Tag).
		Msg("automated reply produced")

	return botMsg, nil
}

// SubmitAdminMessage records an operator message. The automated pipeline is
// never consulted. Returns ErrSessionNotFound when the session is absent.
func (s *Service) SubmitAdminMessage(ctx context.Context, sessionID string, adminID int64, username, body string) (*Message, error) {
	if username == "" || strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("%w: username and body are required", ErrValidation)
	}

	mu := s.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	msg := &Message{
		SessionID: sess.SessionID,
		UserID:    adminID,
		Username:  username,
		Body:      body,
		Sender:    SenderAdmin,
		Timestamp: s.now(),
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist admin message: %w", err)
	}
	observability.RecordMessage(string(SenderAdmin))
	s.publish(ctx, msg)

	sess.UpdatedAt = s.now()
	if err := s.store.UpdateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}

	return msg, nil
}

// RequestAdminSupport moves an Active session to WaitingForAdmin and emits
// the visitor acknowledgment plus the operator notification. A missing
// session is a silent no-op; an illegal current status surfaces as
// ErrInvalidTransition or ErrSessionClosed without mutating anything.
func (s *Service) RequestAdminSupport(ctx context.Context, sessionID string) error {
	mu := s.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if err == ErrSessionNotFound {
			s.log.Warn().Str("session_id", sessionID).Msg("admin request for unknown session ignored")
			return nil
		}
		return err
	}

	now := s.now()
	if err := applyTransition(sess, eventRequestAdmin, now); err != nil {
		return err
	}
	if err := s.store.UpdateSession(ctx, sess); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	observability.RecordTransition(string(StatusWaitingForAdmin))

	for _, msg := range []*Message{
		adminRequestUserMessage(sess, now),
		adminRequestNotifyMessage(sess, now),
	} {
		if err := s.store.AppendMessage(ctx, msg); err != nil {
			return fmt.Errorf("persist admin-request notice: %w", err)
		}
		observability.RecordMessage(string(SenderSystem))
		s.publish(ctx, msg)
	}

	s.log.Info().Str("session_id", sessionID).Msg("admin support requested")
	return nil
}

// TakeOverSession hands the conversation to an operator: the broadcast
// takeover notice is persisted and published, then the status flips to
// AdminActive. Missing session is a silent no-op.
func (s *Service) TakeOverSession(ctx context.Context, sessionID string, adminID int64) error {
	mu := s.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if err == ErrSessionNotFound {
			s.log.Warn().Str("session_id", sessionID).Msg("takeover of unknown session ignored")
			return nil
		}
		return err
	}

	now := s.now()
	// Validate before emitting the notice so an illegal takeover has no
	// side effects.
	probe := *sess
	if err := applyTransition(&probe, eventTakeOver, now); err != nil {
		return err
	}

	notice := adminTakeoverMessage(sess, now)
	if err := s.store.AppendMessage(ctx, notice); err != nil {
		return fmt.Errorf("persist takeover notice: %w", err)
	}
	observability.RecordMessage(string(SenderSystem))
	s.publish(ctx, notice)

	*sess = probe
	if err := s.store.UpdateSession(ctx, sess); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	observability.RecordTransition(string(StatusAdminActive))

	s.log.Info().
		Str("session_id", sessionID).
		Int64("admin_id", adminID).
		Msg("admin took over session")
	return nil
}

// CloseSession marks the session Closed and sets ClosedAt. It is idempotent:
// closing a missing or already-closed session is a no-op without error and
// without duplicate side effects.
func (s *Service) CloseSession(ctx context.Context, sessionID string) error {
	mu := s.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if err == ErrSessionNotFound {
			return nil
		}
		return err
	}
	if sess.Status == StatusClosed {
		return nil
	}

	now := s.now()
	if err := applyTransition(sess, eventClose, now); err != nil {
		return err
	}
	if err := s.store.UpdateSession(ctx, sess); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	observability.RecordTransition(string(StatusClosed))

	s.publishEvent(ctx, &fanout.Event{
		Kind:      fanout.KindSessionClosed,
		SessionID: sess.SessionID,
		UserID:    sess.UserID,
		Timestamp: now,
	})

	s.log.Info().Str("session_id", sessionID).Msg("session closed")
	return nil
}

// GetHistory returns the full message log for a session, ascending by
// timestamp. An unknown session yields an empty history.
func (s *Service) GetHistory(ctx context.Context, sessionID string) ([]*Message, error) {
	return s.store.ListMessages(ctx, sessionID)
}

// GetActiveSessions returns every session a visitor or operator may still
// act on, newest first.
func (s *Service) GetActiveSessions(ctx context.Context) ([]*Session, error) {
	return s.store.ListSessionsByStatus(ctx, StatusActive, StatusWaitingForAdmin, StatusAdminActive)
}

// GetUserSessions returns all sessions for a visitor, newest first.
func (s *Service) GetUserSessions(ctx context.Context, userID int64) ([]*Session, error) {
	return s.store.ListSessionsByUser(ctx, userID)
}

func (s *Service) getOrCreateSession(ctx context.Context, sessionID string, userID int64, username string) (*Session, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err == nil {
		return sess, nil
	}
	if err != ErrSessionNotFound {
		return nil, err
	}

	now := s.now()
	sess = &Session{
		SessionID: sessionID,
		UserID:    userID,
		Username:  username,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.log.Info().
		Str("session_id", sess.SessionID).
		Int64("user_id", userID).
		Msg("session created")
	return sess, nil
}

// publish fans a persisted message out. Failures are logged and counted but
// never surfaced: the durable log is the source of truth.
func (s *Service) publish(ctx context.Context, msg *Message) {
	s.publishEvent(ctx, &fanout.Event{
		Kind:        fanout.KindMessage,
		MessageID:   msg.ID,
		SessionID:   msg.SessionID,
		UserID:      msg.UserID,
		Username:    msg.Username,
		Body:        msg.Body,
		SenderType:  string(msg.Sender),
		Timestamp:   msg.Timestamp,
		Automated:   msg.Automated,
		RuleMatched: msg.RuleMatched,
	})
}

func (s *Service) publishEvent(ctx context.Context, ev *fanout.Event) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		observability.RecordPublishFailure()
		s.log.Error().Err(err).
			Str("session_id", ev.SessionID).
			Msg("fanout publish failed")
	}
}

// replySource buckets a provenance tag for metrics.
func replySource(tag string) string {
	switch {
	case tag == TagAIGenerated:
		return "generative"
	case strings.HasPrefix(tag, TagAIFallbackPrefix):
		return "fallback"
	default:
		return "rules"
	}
}
