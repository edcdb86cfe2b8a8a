package storage

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/redis/go-redis/v9"
	pkgerr "github.com/pkg/errors"
)

// SessionRecord is the persisted liveness snapshot for one connection.
// It lives in the session store under session:<connID> and expires on its
// own; absence of the record while the connection is still registered is
// itself a staleness signal.
type SessionRecord struct {
	UserID        int64     `json:"user_id"`
	ConnectedAt   time.Time `json:"connected_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// SessionStore is the external expiring key-value contract the gateway
// consumes. The registry must never assume it is the sole writer: the
// heartbeat handler legitimately touches the same keys.
type SessionStore interface {
	Get(ctx context.Context, connID string) (*SessionRecord, error)
	Set(ctx context.Context, connID string, rec *SessionRecord, ttl time.Duration) error
	Delete(ctx context.Context, connID string) error
	Exists(ctx context.Context, connID string) (bool, error)
	// Touch refreshes last_heartbeat (and the key's expiry), preserving
	// connected_at when the record still exists. Missing records are
	// rewritten fresh rather than erroring.
	Touch(ctx context.Context, connID string, userID int64, now time.Time, ttl time.Duration) error
}

const sessionKeyPrefix = "session:"

func sessionKey(connID string) string { return sessionKeyPrefix + connID }

// RedisSessionStore implements SessionStore over go-redis.
type RedisSessionStore struct {
	client *goredis.Client
}

func NewRedisSessionStore(client *goredis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func (s *RedisSessionStore) Get(ctx context.Context, connID string) (*SessionRecord, error) {
	val, err := s.client.Get(ctx, sessionKey(connID)).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil // absent, not an error
		}
		return nil, pkgerr.Wrapf(err, "session get %s", connID)
	}
	var rec SessionRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, pkgerr.Wrapf(err, "session unmarshal %s", connID)
	}
	return &rec, nil
}

func (s *RedisSessionStore) Set(ctx context.Context, connID string, rec *SessionRecord, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return pkgerr.Wrapf(err, "session marshal %s", connID)
	}
	if err := s.client.Set(ctx, sessionKey(connID), data, ttl).Err(); err != nil {
		return pkgerr.Wrapf(err, "session set %s", connID)
	}
	return nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, connID string) error {
	if err := s.client.Del(ctx, sessionKey(connID)).Err(); err != nil {
		return pkgerr.Wrapf(err, "session delete %s", connID)
	}
	return nil
}

func (s *RedisSessionStore) Exists(ctx context.Context, connID string) (bool, error) {
	n, err := s.client.Exists(ctx, sessionKey(connID)).Result()
	if err != nil {
		return false, pkgerr.Wrapf(err, "session exists %s", connID)
	}
	return n > 0, nil
}

func (s *RedisSessionStore) Touch(ctx context.Context, connID string, userID int64, now time.Time, ttl time.Duration) error {
	rec, err := s.Get(ctx, connID)
	if err != nil {
		return err
	}
	if rec == nil {
		// Record expired under us; rewrite so the sweeper sees a live session.
		rec = &SessionRecord{UserID: userID, ConnectedAt: now}
	}
	rec.LastHeartbeat = now
	return s.Set(ctx, connID, rec, ttl)
}
