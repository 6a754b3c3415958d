package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store using Redis. It provides distributed session
// storage suitable for multi-node deployments. Message logs are Redis lists,
// so append order (and therefore timestamp order under per-session
// serialization) is preserved.
type RedisStore struct {
	client *redis.Client
	prefix string
	mu     sync.RWMutex
	closed bool
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string
	// Password is the Redis password (optional).
	Password string
	// DB is the Redis database number.
	DB int
	// Prefix is the key prefix for all chat keys (default: "supportflow:chat:").
	Prefix string
	// PoolSize is the connection pool size (default: 10).
	PoolSize int
}

// NewRedisStore creates a new Redis-backed store and verifies connectivity.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisStoreFromClient(client, cfg.Prefix), nil
}

// NewRedisStoreFromClient creates a Redis store from an existing client.
// This is useful for testing with miniredis.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "supportflow:chat:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

// Key helpers
func (r *RedisStore) sessionKey(sessionID string) string {
	return r.prefix + "meta:" + sessionID
}

func (r *RedisStore) messagesKey(sessionID string) string {
	return r.prefix + "msgs:" + sessionID
}

func (r *RedisStore) statusIndexKey(status SessionStatus) string {
	return r.prefix + "status:" + string(status)
}

func (r *RedisStore) userIndexKey(userID int64) string {
	return r.prefix + "user:" + strconv.FormatInt(userID, 10)
}

func (r *RedisStore) seqKey() string {
	return r.prefix + "seq"
}

func (r *RedisStore) guard() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrStoreClosed
	}
	return nil
}

// CreateSession persists a new session record and indexes it.
func (r *RedisStore) CreateSession(ctx context.Context, sess *Session) error {
	if err := r.guard(); err != nil {
		return err
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, r.sessionKey(sess.SessionID), data, 0)
	pipe.SAdd(ctx, r.statusIndexKey(sess.Status), sess.SessionID)
	pipe.SAdd(ctx, r.userIndexKey(sess.UserID), sess.SessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by its external id.
func (r *RedisStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	if err := r.guard(); err != nil {
		return nil, err
	}

	data, err := r.client.Get(ctx, r.sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &sess, nil
}

// UpdateSession overwrites an existing session and refreshes the status index.
func (r *RedisStore) UpdateSession(ctx context.Context, sess *Session) error {
	if err := r.guard(); err != nil {
		return err
	}

	prev, err := r.GetSession(ctx, sess.SessionID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, r.sessionKey(sess.SessionID), data, 0)
	if prev.Status != sess.Status {
		pipe.SRem(ctx, r.statusIndexKey(prev.Status), sess.SessionID)
		pipe.SAdd(ctx, r.statusIndexKey(sess.Status), sess.SessionID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// ListSessionsByStatus returns sessions in any of the given statuses,
// newest-created first.
func (r *RedisStore) ListSessionsByStatus(ctx context.Context, statuses ...SessionStatus) ([]*Session, error) {
	if err := r.guard(); err != nil {
		return nil, err
	}

	keys := make([]string, len(statuses))
	for i, st := range statuses {
		keys[i] = r.statusIndexKey(st)
	}
	ids, err := r.client.SUnion(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions by status: %w", err)
	}
	return r.loadSessions(ctx, ids)
}

// ListSessionsByUser returns all sessions for a user, newest-created first.
func (r *RedisStore) ListSessionsByUser(ctx context.Context, userID int64) ([]*Session, error) {
	if err := r.guard(); err != nil {
		return nil, err
	}

	ids, err := r.client.SMembers(ctx, r.userIndexKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions by user: %w", err)
	}
	return r.loadSessions(ctx, ids)
}

func (r *RedisStore) loadSessions(ctx context.Context, ids []string) ([]*Session, error) {
	sessions := make([]*Session, 0, len(ids))
	for _, id := range ids {
		sess, err := r.GetSession(ctx, id)
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				continue
			}
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	sortSessionsNewestFirst(sessions)
	return sessions, nil
}

// AppendMessage assigns msg.ID from the store sequence and appends it to the
// session's message list.
func (r *RedisStore) AppendMessage(ctx context.Context, msg *Message) error {
	if err := r.guard(); err != nil {
		return err
	}

	if _, err := r.GetSession(ctx, msg.SessionID); err != nil {
		return err
	}

	id, err := r.client.Incr(ctx, r.seqKey()).Result()
	if err != nil {
		return fmt.Errorf("next message id: %w", err)
	}
	msg.ID = id

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.RPush(ctx, r.messagesKey(msg.SessionID), data).Err(); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// ListMessages returns the full history for a session in append order.
func (r *RedisStore) ListMessages(ctx context.Context, sessionID string) ([]*Message, error) {
	if err := r.guard(); err != nil {
		return nil, err
	}
	return r.rangeMessages(ctx, sessionID, 0, -1)
}

// RecentMessages returns up to n trailing messages in chronological order.
func (r *RedisStore) RecentMessages(ctx context.Context, sessionID string, n int) ([]*Message, error) {
	if err := r.guard(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return r.rangeMessages(ctx, sessionID, 0, -1)
	}
	return r.rangeMessages(ctx, sessionID, int64(-n), -1)
}

func (r *RedisStore) rangeMessages(ctx context.Context, sessionID string, start, stop int64) ([]*Message, error) {
	data, err := r.client.LRange(ctx, r.messagesKey(sessionID), start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	msgs := make([]*Message, 0, len(data))
	for _, d := range data {
		var msg Message
		if err := json.Unmarshal([]byte(d), &msg); err != nil {
			return nil, fmt.Errorf("unmarshal message: %w", err)
		}
		msgs = append(msgs, &msg)
	}
	return msgs, nil
}

// Close releases resources held by the store.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.client.Close()
}

// Ping checks if the Redis connection is alive.
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.guard(); err != nil {
		return err
	}
	return r.client.Ping(ctx).Err()
}
