package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ms-reminders/internal/models"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is the signed-in state of one user. It is created by Manager and
// handed to request handlers explicitly through the request context.
type Session struct {
	ID        string      `json:"id"`
	User      models.User `json:"user"`
	IssuedAt  time.Time   `json:"issuedAt"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

// Store persists sessions until they expire
type Store interface {
	Save(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}

// RedisStore keeps sessions under session:<id> with the remaining lifetime as TTL
type RedisStore struct {
	client redis.Cmdable
	now    func() time.Time
}

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func key(id string) string {
	return "session:" + id
}

func (r *RedisStore) Save(ctx context.Context, s Session) error {
	ttl := s.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return fmt.Errorf("session %s already expired", s.ID)
	}
	value, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := r.client.Set(ctx, key(s.ID), value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := r.client.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &s, nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
