package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "homecloud:session:"

// RedisStore keeps sessions as JSON in Redis. Keys expire with the session.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a store using client. An empty prefix selects
// "homecloud:session:".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) tokenKey(token string) string { return s.prefix + "t:" + token }

func (s *RedisStore) userKey(userID string) string { return s.prefix + "u:" + userID }

func (s *RedisStore) Create(ctx context.Context, sess *Session) error {
	return s.write(ctx, sess, "")
}

func (s *RedisStore) Get(ctx context.Context, token string) (*Session, error) {
	data, err := s.client.Get(ctx, s.tokenKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: redis get: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("session: decode: %w", err)
	}
	return &sess, nil
}

func (s *RedisStore) Update(ctx context.Context, sess *Session, previousToken string) error {
	return s.write(ctx, sess, previousToken)
}

func (s *RedisStore) write(ctx context.Context, sess *Session, previousToken string) error {
	sess = sess.Snapshot()
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return ErrExpired
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if previousToken != "" && previousToken != sess.Token {
			p.Del(ctx, s.tokenKey(previousToken))
			if sess.UserID != "" {
				p.SRem(ctx, s.userKey(sess.UserID), previousToken)
			}
		}
		p.Set(ctx, s.tokenKey(sess.Token), data, ttl)
		if sess.UserID != "" {
			p.SAdd(ctx, s.userKey(sess.UserID), sess.Token)
			p.Expire(ctx, s.userKey(sess.UserID), ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("session: redis write: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	data, err := s.client.GetDel(ctx, s.tokenKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("session: redis delete: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err == nil && sess.UserID != "" {
		if err := s.client.SRem(ctx, s.userKey(sess.UserID), token).Err(); err != nil {
			return fmt.Errorf("session: redis delete: %w", err)
		}
	}
	return nil
}

func (s *RedisStore) DeleteByUserID(ctx context.Context, userID string) ([]string, error) {
	tokens, err := s.client.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("session: redis list user sessions: %w", err)
	}

	keys := make([]string, 0, len(tokens)+1)
	for _, t := range tokens {
		keys = append(keys, s.tokenKey(t))
	}
	keys = append(keys, s.userKey(userID))

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return nil, fmt.Errorf("session: redis delete user sessions: %w", err)
	}
	return tokens, nil
}

var _ Store = (*RedisStore)(nil)
