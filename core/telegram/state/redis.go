package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

type redisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore stores sessions as JSON under "<prefix>session:<userID>".
// A positive ttl is applied as key expiry and refreshed on every Put.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) (Store, error) {
	if client == nil {
		return nil, errors.New("state: nil redis client")
	}
	return &redisStore{client: client, prefix: prefix, ttl: ttl, now: time.Now}, nil
}

func (r *redisStore) key(userID int64) string {
	return r.prefix + "session:" + strconv.FormatInt(userID, 10)
}

func (r *redisStore) Get(ctx context.Context, userID int64) (Session, error) {
	raw, err := r.client.Get(ctx, r.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return NewSession(StateIdle), nil
	}
	if err != nil {
		return Session{}, fmt.Errorf("state: redis get %d: %w", userID, err)
	}

	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return Session{}, fmt.Errorf("state: decode session %d: %w", userID, err)
	}
	if sess.Data == nil {
		sess.Data = make(map[string]string)
	}
	if sess.State == "" {
		sess.State = StateIdle
	}
	return sess, nil
}

func (r *redisStore) Put(ctx context.Context, userID int64, s Session) error {
	s.UpdatedAt = r.now().UTC()
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("state: encode session %d: %w", userID, err)
	}
	if err := r.client.Set(ctx, r.key(userID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("state: redis set %d: %w", userID, err)
	}
	return nil
}

func (r *redisStore) Clear(ctx context.Context, userID int64) error {
	if err := r.client.Del(ctx, r.key(userID)).Err(); err != nil {
		return fmt.Errorf("state: redis del %d: %w", userID, err)
	}
	return nil
}

// Len counts session keys with SCAN; idle sessions are included.
func (r *redisStore) Len(ctx context.Context) (int, error) {
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.prefix+"session:*", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("state: redis scan: %w", err)
		}
		total += len(keys)
		if next == 0 {
			return total, nil
		}
		cursor = next
	}
}

func (r *redisStore) Close() error {
	return r.client.Close()
}
