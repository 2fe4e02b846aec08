package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned when the session key is absent or expired.
	ErrNotFound = errors.New("session not found")
	// ErrRedisUnavailable wraps transport failures. Callers treat it as a
	// fail-closed condition.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// maxCreateRetries bounds the CAS loop when Create races a generation bump.
const maxCreateRetries = 4

// luaBE64 renders an integer as 8 big-endian bytes, matching the Go encoder.
const luaBE64 = `
local function be64(n)
  local b = {}
  for i = 8, 1, -1 do
    b[i] = n % 256
    n = math.floor(n / 256)
  end
  return string.char(b[1], b[2], b[3], b[4], b[5], b[6], b[7], b[8])
end
`

// createScript persists a new session only if the account generation still
// matches the one stamped into the blob. A concurrent CloseAll bumps the
// generation and forces the caller to re-stamp and retry, so the new login
// deterministically survives the revocation instead of half-landing.
const createScript = `
local gen = tonumber(redis.call("GET", KEYS[3]) or "0")
if gen ~= tonumber(ARGV[3]) then
  return {0, gen}
end
redis.call("SET", KEYS[1], ARGV[1], "PX", tonumber(ARGV[2]))
redis.call("SADD", KEYS[2], ARGV[4])
return {1, gen}
`

// touchScript patches last-activity (bytes 13..20) in place, preserving the
// TTL. Closed or missing sessions are a silent no-op.
const touchScript = luaBE64 + `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
if string.byte(data, 2) ~= 1 then
  return 0
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl <= 0 then
  return 0
end
local updated = string.sub(data, 1, 12) .. be64(tonumber(ARGV[1])) .. string.sub(data, 21)
redis.call("SET", KEYS[1], updated, "PX", ttl)
return 1
`

// closeScript marks one session inactive with a reason and closed-at stamp,
// keeping the blob readable until its TTL runs out. Idempotent: closing a
// closed or missing session returns 0. The owning account is read out of the
// blob (length-prefixed at byte 37) to locate the index set.
const closeScript = luaBE64 + `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
if string.byte(data, 2) ~= 1 then
  return 0
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl <= 0 then
  return 0
end
local alen = string.byte(data, 37)
local acct = string.sub(data, 38, 37 + alen)
local updated = string.sub(data, 1, 1)
  .. string.char(0)
  .. string.char(tonumber(ARGV[1]))
  .. string.sub(data, 4, 20)
  .. be64(tonumber(ARGV[2]))
  .. string.sub(data, 29)
redis.call("SET", KEYS[1], updated, "PX", ttl)
redis.call("SREM", ARGV[3] .. acct, ARGV[4])
return 1
`

// closeAllScript bumps the account generation and closes every indexed
// session in one atomic step, so no session can slip between the bump and
// the sweep.
const closeAllScript = luaBE64 + `
local gen = redis.call("INCR", KEYS[2])
local ids = redis.call("SMEMBERS", KEYS[1])
local count = 0
for _, id in ipairs(ids) do
  local key = ARGV[3] .. id
  local data = redis.call("GET", key)
  if data and string.byte(data, 2) == 1 then
    local ttl = redis.call("PTTL", key)
    if ttl > 0 then
      local updated = string.sub(data, 1, 1)
        .. string.char(0)
        .. string.char(tonumber(ARGV[1]))
        .. string.sub(data, 4, 20)
        .. be64(tonumber(ARGV[2]))
        .. string.sub(data, 29)
      redis.call("SET", key, updated, "PX", ttl)
      count = count + 1
    end
  end
end
redis.call("DEL", KEYS[1])
return {count, gen}
`

var (
	createLua   = redis.NewScript(createScript)
	touchLua    = redis.NewScript(touchScript)
	closeLua    = redis.NewScript(closeScript)
	closeAllLua = redis.NewScript(closeAllScript)
)

// Store keeps sessions in Redis under three key families:
//
//	<prefix>:s:<sessionID>  binary session blob, TTL = session lifetime
//	<prefix>:a:<accountID>  set of the account's open session IDs
//	<prefix>:g:<accountID>  generation counter, bumped by CloseAll
//
// A session is live only while its Active flag is set and its embedded
// generation equals the account counter. Closed blobs are retained with
// their close reason until natural expiry.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewStore returns a Store namespaced by prefix. now falls back to time.Now.
func NewStore(client redis.UniversalClient, prefix string, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{redis: client, prefix: prefix, now: now}
}

func (s *Store) sessionKey(sessionID string) string { return s.prefix + ":s:" + sessionID }
func (s *Store) accountKey(accountID string) string { return s.prefix + ":a:" + accountID }
func (s *Store) genKey(accountID string) string     { return s.prefix + ":g:" + accountID }

// sessionKeyPrefix is passed to scripts that rebuild session keys from IDs.
func (s *Store) sessionKeyPrefix() string { return s.prefix + ":s:" }
func (s *Store) accountKeyPrefix() string { return s.prefix + ":a:" }

// NewID returns a fresh session identifier.
func NewID() string { return uuid.NewString() }

// Generation returns the account's current revocation counter (0 if never
// bumped).
func (s *Store) Generation(ctx context.Context, accountID string) (int64, error) {
	gen, err := s.redis.Get(ctx, s.genKey(accountID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return gen, nil
}

// Create persists sess with the given TTL. The session's Generation field is
// stamped by Create; callers read it back for token issuance. If a CloseAll
// moves the counter mid-flight the write is retried against the new value.
func (s *Store) Create(ctx context.Context, sess *Session, ttl time.Duration) error {
	if sess.ID == "" || sess.AccountID == "" {
		return errors.New("session id and account id are required")
	}
	if ttl <= 0 {
		return errors.New("session ttl must be positive")
	}

	gen, err := s.Generation(ctx, sess.AccountID)
	if err != nil {
		return err
	}

	for attempt := 0; attempt < maxCreateRetries; attempt++ {
		sess.Generation = gen
		blob, err := Encode(sess)
		if err != nil {
			return err
		}

		result, err := createLua.Run(ctx, s.redis,
			[]string{s.sessionKey(sess.ID), s.accountKey(sess.AccountID), s.genKey(sess.AccountID)},
			blob, ttl.Milliseconds(), gen, sess.ID,
		).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}

		parts, ok := result.([]interface{})
		if !ok || len(parts) != 2 {
			return fmt.Errorf("%w: invalid create script response", ErrRedisUnavailable)
		}
		status, _ := parts[0].(int64)
		if status == 1 {
			return nil
		}
		gen, _ = parts[1].(int64)
	}

	return fmt.Errorf("%w: generation moved %d times during create", ErrRedisUnavailable, maxCreateRetries)
}

// Get returns the decoded session, open or closed. Missing or expired keys
// map to ErrNotFound.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.ID = sessionID
	return sess, nil
}

// IsActive reports whether the session exists, is flagged open, and belongs
// to the account's current generation.
func (s *Store) IsActive(ctx context.Context, sessionID string) (bool, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !sess.Active {
		return false, nil
	}

	gen, err := s.Generation(ctx, sess.AccountID)
	if err != nil {
		return false, err
	}
	return sess.Generation == gen, nil
}

// Touch refreshes the session's last-activity stamp without resetting its
// TTL. Closed and missing sessions are ignored.
func (s *Store) Touch(ctx context.Context, sessionID string) error {
	err := touchLua.Run(ctx, s.redis,
		[]string{s.sessionKey(sessionID)},
		s.now().Unix(),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Close marks one session inactive with the given reason. It reports whether
// this call performed the close; closing an already-closed or missing
// session is a no-op returning false.
func (s *Store) Close(ctx context.Context, sessionID string, reason CloseReason) (bool, error) {
	result, err := closeLua.Run(ctx, s.redis,
		[]string{s.sessionKey(sessionID)},
		uint8(reason), s.now().Unix(), s.accountKeyPrefix(), sessionID,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return result == 1, nil
}

// CloseAll atomically bumps the account generation and closes every open
// session, returning how many were closed and the new generation. Access and
// refresh tokens minted under earlier generations die with it.
func (s *Store) CloseAll(ctx context.Context, accountID string, reason CloseReason) (int, int64, error) {
	result, err := closeAllLua.Run(ctx, s.redis,
		[]string{s.accountKey(accountID), s.genKey(accountID)},
		uint8(reason), s.now().Unix(), s.sessionKeyPrefix(),
	).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: invalid close-all script response", ErrRedisUnavailable)
	}
	count, _ := parts[0].(int64)
	gen, _ := parts[1].(int64)
	return int(count), gen, nil
}

// ListActive returns the account's live sessions: indexed, decoded, still
// flagged open, and on the current generation. Index entries whose blobs
// have expired are skipped.
func (s *Store) ListActive(ctx context.Context, accountID string) ([]*Session, error) {
	ids, err := s.redis.SMembers(ctx, s.accountKey(accountID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*Session{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return []*Session{}, nil
	}

	gen, err := s.Generation(ctx, accountID)
	if err != nil {
		return nil, err
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.sessionKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sessions := make([]*Session, 0, len(ids))
	for i, cmd := range cmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, cmdErr)
		}

		sess, decErr := Decode(data)
		if decErr != nil {
			return nil, decErr
		}
		sess.ID = ids[i]
		if !sess.Active || sess.Generation != gen {
			continue
		}
		sessions = append(sessions, sess)
	}

	return sessions, nil
}
