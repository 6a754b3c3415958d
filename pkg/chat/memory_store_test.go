package chat

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestSession(id string, userID int64, status SessionStatus, created time.Time) *Session {
	return &Session{
		SessionID: id,
		UserID:    userID,
		Username:  "user",
		Status:    status,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestMemoryStoreSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	now := time.Now().UTC()
	sess := newTestSession("s1", 7, StatusActive, now)

	if err := store.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.UserID != 7 || got.Status != StatusActive {
		t.Errorf("GetSession = %+v", got)
	}

	got.Status = StatusClosed
	if err := store.UpdateSession(ctx, got); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	reread, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession after update: %v", err)
	}
	if reread.Status != StatusClosed {
		t.Errorf("Status = %s after update, want %s", reread.Status, StatusClosed)
	}
}

func TestMemoryStoreGetSessionNotFound(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	if _, err := store.GetSession(context.Background(), "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
	if err := store.UpdateSession(context.Background(), &Session{SessionID: "missing"}); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("UpdateSession err = %v, want ErrSessionNotFound", err)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	sess := newTestSession("s1", 1, StatusActive, time.Now().UTC())
	if err := store.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, _ := store.GetSession(ctx, "s1")
	got.Status = StatusClosed

	again, _ := store.GetSession(ctx, "s1")
	if again.Status != StatusActive {
		t.Error("mutating a returned session leaked into the store")
	}
}

func TestMemoryStoreListByStatus(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	base := time.Now().UTC()
	for i, st := range []SessionStatus{StatusActive, StatusWaitingForAdmin, StatusAdminActive, StatusClosed} {
		sess := newTestSession(string(rune('a'+i)), int64(i), st, base.Add(time.Duration(i)*time.Minute))
		if err := store.CreateSession(ctx, sess); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
	}

	open, err := store.ListSessionsByStatus(ctx, StatusActive, StatusWaitingForAdmin, StatusAdminActive)
	if err != nil {
		t.Fatalf("ListSessionsByStatus: %v", err)
	}
	if len(open) != 3 {
		t.Fatalf("len = %d, want 3", len(open))
	}
	// Newest-created first.
	for i := 1; i < len(open); i++ {
		if open[i].CreatedAt.After(open[i-1].CreatedAt) {
			t.Errorf("sessions not sorted newest first: %v then %v", open[i-1].CreatedAt, open[i].CreatedAt)
		}
	}
}

func TestMemoryStoreListByUser(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	base := time.Now().UTC()
	_ = store.CreateSession(ctx, newTestSession("s1", 7, StatusActive, base))
	_ = store.CreateSession(ctx, newTestSession("s2", 7, StatusClosed, base.Add(time.Minute)))
	_ = store.CreateSession(ctx, newTestSession("s3", 8, StatusActive, base))

	sessions, err := store.ListSessionsByUser(ctx, 7)
	if err != nil {
		t.Fatalf("ListSessionsByUser: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("len = %d, want 2", len(sessions))
	}
	if sessions[0].SessionID != "s2" {
		t.Errorf("first session = %s, want newest (s2)", sessions[0].SessionID)
	}
}

func TestMemoryStoreMessages(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	_ = store.CreateSession(ctx, newTestSession("s1", 1, StatusActive, time.Now().UTC()))

	for _, body := range []string{"first", "second", "third"} {
		msg := &Message{SessionID: "s1", Body: body, Sender: SenderUser, Timestamp: time.Now().UTC()}
		if err := store.AppendMessage(ctx, msg); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
		if msg.ID == 0 {
			t.Error("AppendMessage did not assign an id")
		}
	}

	msgs, err := store.ListMessages(ctx, "s1")
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}
	if msgs[0].Body != "first" || msgs[2].Body != "third" {
		t.Errorf("messages out of order: %v", msgs)
	}
	if msgs[0].ID >= msgs[1].ID || msgs[1].ID >= msgs[2].ID {
		t.Errorf("ids not monotonic: %d %d %d", msgs[0].ID, msgs[1].ID, msgs[2].ID)
	}

	recent, err := store.RecentMessages(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(recent) != 2 || recent[0].Body != "second" || recent[1].Body != "third" {
		t.Errorf("RecentMessages = %v", recent)
	}
}

func TestMemoryStoreAppendToMissingSession(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	err := store.AppendMessage(context.Background(), &Message{SessionID: "nope", Body: "x"})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestMemoryStoreHistoryForUnknownSessionIsEmpty(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	msgs, err := store.ListMessages(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("len = %d, want 0", len(msgs))
	}
}

func TestMemoryStoreClosed(t *testing.T) {
	store := NewMemoryStore()
	_ = store.Close()

	if err := store.CreateSession(context.Background(), &Session{SessionID: "s1"}); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("err = %v, want ErrStoreClosed", err)
	}
	if _, err := store.GetSession(context.Background(), "s1"); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("err = %v, want ErrStoreClosed", err)
	}
}
