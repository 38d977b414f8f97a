package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idemLock      = "LOCK"
	idemResPrefix = "RES:"
)

// StoredResponse is a response replayed for a repeated Idempotency-Key.
type StoredResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// IdempotencyStore keeps one slot per key: first a short-lived lock while the
// request runs, then the response for ttl.
type IdempotencyStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewIdempotencyStore(rdb *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, ttl: ttl}
}

// AcquireLock claims key for lockTTL. It reports false when the key is locked or already holds a result.
func (s *IdempotencyStore) AcquireLock(ctx context.Context, key string, lockTTL time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, key, idemLock, lockTTL).Result()
}

func (s *IdempotencyStore) SaveResult(ctx context.Context, key string, res StoredResponse) error {
	b, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, idemResPrefix+string(b), s.ttl).Err()
}

func (s *IdempotencyStore) GetResult(ctx context.Context, key string) (StoredResponse, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return StoredResponse{}, false, nil
	}
	if err != nil {
		return StoredResponse{}, false, err
	}

	payload, ok := strings.CutPrefix(v, idemResPrefix)
	if !ok {
		return StoredResponse{}, false, nil
	}

	var res StoredResponse
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		return StoredResponse{}, false, err
	}

	return res, true, nil
}

func (s *IdempotencyStore) IsLocked(ctx context.Context, key string) (bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == idemLock, nil
}

// Release frees a lock so the request may be retried; stored results are left alone.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	locked, err := s.IsLocked(ctx, key)
	if err != nil || !locked {
		return err
	}
	return s.rdb.Del(ctx, key).Err()
}
