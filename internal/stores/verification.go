package stores

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// VerificationStore keeps email-verification challenges. Unlike resets there
// is no per-account pointer: re-registering is not possible while the
// pending account exists, so one live challenge per account is structural.
type VerificationStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewVerificationStore returns a VerificationStore namespaced by prefix.
func NewVerificationStore(redisClient redis.UniversalClient, prefix string, now func() time.Time) *VerificationStore {
	if prefix == "" {
		prefix = "ev"
	}
	if now == nil {
		now = time.Now
	}
	return &VerificationStore{redis: redisClient, prefix: prefix, now: now}
}

func (s *VerificationStore) key(tokenID string) string { return s.prefix + ":t:" + tokenID }

// Issue stores a new verification challenge.
func (s *VerificationStore) Issue(ctx context.Context, tokenID string, record *Record, ttl time.Duration) error {
	encoded, err := encodeRecord(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(tokenID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Consume validates and deletes the challenge in one GETDEL round trip, then
// checks the secret in constant time. A mismatch burns the token, which is
// acceptable: secrets are 32 random bytes and legitimate links carry them
// verbatim.
func (s *VerificationStore) Consume(ctx context.Context, tokenID string, providedHash [32]byte) (*Record, error) {
	data, err := s.redis.GetDel(ctx, s.key(tokenID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	record, err := decodeRecord(data)
	if err != nil {
		return nil, err
	}
	if s.now().Unix() > record.ExpiresAt {
		return nil, ErrNotFound
	}
	if subtle.ConstantTimeCompare(record.SecretHash[:], providedHash[:]) != 1 {
		return nil, ErrSecretMismatch
	}

	return record, nil
}
