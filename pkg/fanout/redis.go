package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix is the channel namespace used when none is configured.
const DefaultPrefix = "supportflow:chat:"

// RedisPublisher publishes events over Redis pub/sub. Each event goes to the
// per-session channel; operator-visible events additionally go to the shared
// operator channel.
type RedisPublisher struct {
	client *redis.Client
	prefix string
}

// NewRedisPublisher connects a publisher to Redis and verifies connectivity.
func NewRedisPublisher(addr, password string, db int, prefix string) (*RedisPublisher, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisPublisherFromClient(client, prefix), nil
}

// NewRedisPublisherFromClient wraps an existing client. Useful for testing
// with miniredis.
func NewRedisPublisherFromClient(client *redis.Client, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisPublisher{client: client, prefix: prefix}
}

// SessionChannel is the pub/sub channel carrying one session's events.
func SessionChannel(prefix, sessionID string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + "session:" + sessionID
}

// OperatorChannel is the pub/sub channel carrying operator-visible events.
func OperatorChannel(prefix string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + "operators"
}

// Publish delivers the event to its channels.
func (p *RedisPublisher) Publish(ctx context.Context, ev *Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pipe := p.client.Pipeline()
	pipe.Publish(ctx, SessionChannel(p.prefix, ev.SessionID), data)
	if ev.OperatorVisible() {
		pipe.Publish(ctx, OperatorChannel(p.prefix), data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
