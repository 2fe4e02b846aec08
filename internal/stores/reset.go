package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const recordVersionV1 = 1

var (
	// ErrNotFound covers missing, expired, and superseded records.
	ErrNotFound = errors.New("challenge record not found")
	// ErrSecretMismatch is returned when the presented secret hash does not
	// match the stored one.
	ErrSecretMismatch = errors.New("challenge secret mismatch")
	// ErrRedisUnavailable wraps transport failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// Record is one pending challenge: who it belongs to, the SHA-256 of its
// secret, and when it lapses. The plaintext secret never reaches Redis.
type Record struct {
	AccountID  string
	SecretHash [32]byte
	ExpiresAt  int64
}

// ResetStore keeps password-reset challenges. Alongside each record it keeps
// a per-account pointer key, so issuing a new challenge atomically retires
// the previous one: at most one reset token per account is ever redeemable.
type ResetStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewResetStore returns a ResetStore namespaced by prefix.
func NewResetStore(redisClient redis.UniversalClient, prefix string, now func() time.Time) *ResetStore {
	if prefix == "" {
		prefix = "pr"
	}
	if now == nil {
		now = time.Now
	}
	return &ResetStore{redis: redisClient, prefix: prefix, now: now}
}

func (s *ResetStore) tokenKey(resetID string) string     { return s.prefix + ":t:" + resetID }
func (s *ResetStore) pointerKey(accountID string) string { return s.prefix + ":p:" + accountID }

// issueScript retires the account's previous challenge (if any) and installs
// the new one, all atomically.
const issueScript = `
local old = redis.call("GET", KEYS[1])
if old then
  redis.call("DEL", ARGV[3] .. old)
end
redis.call("SET", KEYS[2], ARGV[1], "PX", tonumber(ARGV[2]))
redis.call("SET", KEYS[1], ARGV[4], "PX", tonumber(ARGV[2]))
return 1
`

var issueLua = redis.NewScript(issueScript)

// Issue stores a new challenge for the account, invalidating any prior one.
func (s *ResetStore) Issue(ctx context.Context, resetID string, record *Record, ttl time.Duration) error {
	encoded, err := encodeRecord(record)
	if err != nil {
		return err
	}

	err = issueLua.Run(ctx, s.redis,
		[]string{s.pointerKey(record.AccountID), s.tokenKey(resetID)},
		encoded, ttl.Milliseconds(), s.prefix+":t:", resetID,
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Consume validates the presented secret hash against the stored record and
// deletes both record and pointer in one optimistic transaction, so a token
// redeems exactly once even under concurrent confirms. Comparison is
// constant time.
func (s *ResetStore) Consume(ctx context.Context, resetID string, providedHash [32]byte) (*Record, error) {
	const maxRetries = 4
	key := s.tokenKey(resetID)

	for i := 0; i < maxRetries; i++ {
		var matched *Record

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeRecord(data)
			if err != nil {
				return err
			}

			if s.now().Unix() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrNotFound
			}

			if subtle.ConstantTimeCompare(record.SecretHash[:], providedHash[:]) != 1 {
				return ErrSecretMismatch
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				pipe.Del(ctx, s.pointerKey(record.AccountID))
				return nil
			})
			if err != nil {
				return err
			}

			matched = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, ErrNotFound
			case errors.Is(err, ErrNotFound), errors.Is(err, ErrSecretMismatch):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
		}

		return matched, nil
	}

	return nil, ErrNotFound
}

func encodeRecord(record *Record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recordVersionV1)
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.AccountID) > 65535 {
		return nil, errors.New("record account id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.AccountID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.AccountID)
	buf.Write(record.SecretHash[:])

	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordVersionV1 {
		return nil, errors.New("invalid record version")
	}

	record := &Record{}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var idLen uint16
	if err := binary.Read(reader, binary.BigEndian, &idLen); err != nil {
		return nil, err
	}
	accountID := make([]byte, idLen)
	if _, err := io.ReadFull(reader, accountID); err != nil {
		return nil, err
	}
	record.AccountID = string(accountID)

	if _, err := io.ReadFull(reader, record.SecretHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
