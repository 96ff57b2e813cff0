package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces session keys in a shared Redis.
const DefaultRedisPrefix = "doorman:session:"

// RedisStore keeps sessions in Redis as JSON values. Each key's TTL is the
// shorter of the remaining absolute lifetime and the idle timeout, so Redis
// evicts dead sessions on its own.
type RedisStore struct {
	client      redis.UniversalClient
	prefix      string
	idleTimeout time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a Redis-backed store. An empty prefix uses
// DefaultRedisPrefix. idleTimeout of 0 disables idle timeout checking.
func NewRedisStore(client redis.UniversalClient, prefix string, idleTimeout time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, idleTimeout: idleTimeout}
}

func (s *RedisStore) key(token string) string {
	return s.prefix + token
}

func (s *RedisStore) Get(ctx context.Context, token string) (Session, bool) {
	data, err := s.client.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		return Session{}, false
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		_ = s.Delete(ctx, token)
		return Session{}, false
	}
	if !sess.Live(time.Now(), s.idleTimeout) {
		_ = s.Delete(ctx, token)
		return Session{}, false
	}
	return sess, true
}

func (s *RedisStore) Put(ctx context.Context, token string, sess Session) error {
	ttl := time.Until(sess.ExpiresAt)
	if s.idleTimeout > 0 {
		if idle := s.idleTimeout - time.Since(sess.LastAccessedAt); idle < ttl {
			ttl = idle
		}
	}
	if ttl <= 0 {
		return s.Delete(ctx, token)
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(token), data, ttl).Err(); err != nil {
		return fmt.Errorf("storing session: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.key(token)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}
