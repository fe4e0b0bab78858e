package auth

import (
	"context"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the redis backed session store
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects and pings the server.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "redis ping failed")
	}

	return client, nil
}

// RedisSessionStore keeps each session in a redis hash. The hash expiry is
// refreshed on every write.
type RedisSessionStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ SessionStore = (*RedisSessionStore)(nil)

func NewRedisSessionStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisSessionStore {
	if prefix == "" {
		prefix = "portal:session:"
	}
	return &RedisSessionStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *RedisSessionStore) key(sessionID string) string {
	return s.prefix + sessionID
}

func (s *RedisSessionStore) Get(ctx context.Context, sessionID, key string) ([]byte, bool, error) {
	value, err := s.client.HGet(ctx, s.key(sessionID), key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

func (s *RedisSessionStore) Set(ctx context.Context, sessionID, key string, value []byte) error {
	k := s.key(sessionID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k, key, value)
		if s.ttl > 0 {
			pipe.Expire(ctx, k, s.ttl)
		}
		return nil
	})
	return err
}

func (s *RedisSessionStore) Delete(ctx context.Context, sessionID, key string) error {
	return s.client.HDel(ctx, s.key(sessionID), key).Err()
}

func (s *RedisSessionStore) Clear(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.key(sessionID)).Err()
}
