package chat

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for tests and single-node deployments.
// It keeps sessions in a map and messages in per-session append-only slices.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	messages map[string][]*Message
	nextID   int64
	closed   bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		messages: make(map[string][]*Message),
	}
}

// CreateSession persists a new session record.
func (m *MemoryStore) CreateSession(ctx context.Context, sess *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	cp := *sess
	m.sessions[sess.SessionID] = &cp
	return nil
}

// GetSession retrieves a session by its external id.
func (m *MemoryStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

// UpdateSession overwrites the mutable fields of an existing session.
func (m *MemoryStore) UpdateSession(ctx context.Context, sess *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	if _, ok := m.sessions[sess.SessionID]; !ok {
		return ErrSessionNotFound
	}
	cp := *sess
	m.sessions[sess.SessionID] = &cp
	return nil
}

// ListSessionsByStatus returns sessions in any of the given statuses,
// newest-created first.
func (m *MemoryStore) ListSessionsByStatus(ctx context.Context, statuses ...SessionStatus) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	want := make(map[SessionStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	out := make([]*Session, 0)
	for _, sess := range m.sessions {
		if want[sess.Status] {
			cp := *sess
			out = append(out, &cp)
		}
	}
	sortSessionsNewestFirst(out)
	return out, nil
}

// ListSessionsByUser returns all sessions for a user, newest-created first.
func (m *MemoryStore) ListSessionsByUser(ctx context.Context, userID int64) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	out := make([]*Session, 0)
	for _, sess := range m.sessions {
		if sess.UserID == userID {
			cp := *sess
			out = append(out, &cp)
		}
	}
	sortSessionsNewestFirst(out)
	return out, nil
}

// AppendMessage assigns msg.ID and appends it to the session log.
func (m *MemoryStore) AppendMessage(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	if _, ok := m.sessions[msg.SessionID]; !ok {
		return ErrSessionNotFound
	}
	m.nextID++
	msg.ID = m.nextID
	cp := *msg
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], &cp)
	return nil
}

// ListMessages returns the full history for a session in append order.
func (m *MemoryStore) ListMessages(ctx context.Context, sessionID string) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	msgs := m.messages[sessionID]
	out := make([]*Message, len(msgs))
	for i, msg := range msgs {
		cp := *msg
		out[i] = &cp
	}
	return out, nil
}

// RecentMessages returns up to n trailing messages in chronological order.
func (m *MemoryStore) RecentMessages(ctx context.Context, sessionID string, n int) ([]*Message, error) {
	msgs, err := m.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs, nil
}

// Close releases the store. Subsequent calls fail with ErrStoreClosed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func sortSessionsNewestFirst(sessions []*Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
}
