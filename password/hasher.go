package password

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"
)

var (
	// ErrWeakPassword is returned by Hash when the plaintext fails the policy.
	ErrWeakPassword = errors.New("password does not meet strength requirements")
	// ErrCorruptHash is returned by Verify and NeedsUpgrade when the stored
	// PHC string cannot be parsed. A plain mismatch is (false, nil), never
	// an error.
	ErrCorruptHash = errors.New("stored password hash is malformed")
)

// Policy is the plaintext strength requirement enforced before hashing.
type Policy struct {
	MinLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
	RequireSpecial bool
}

// Check returns ErrWeakPassword when pw violates the policy.
func (p Policy) Check(pw string) error {
	if len(pw) < p.MinLength {
		return fmt.Errorf("%w: minimum length %d", ErrWeakPassword, p.MinLength)
	}
	var upper, lower, digit, special bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			special = true
		}
	}
	if p.RequireUpper && !upper {
		return fmt.Errorf("%w: uppercase letter required", ErrWeakPassword)
	}
	if p.RequireLower && !lower {
		return fmt.Errorf("%w: lowercase letter required", ErrWeakPassword)
	}
	if p.RequireDigit && !digit {
		return fmt.Errorf("%w: digit required", ErrWeakPassword)
	}
	if p.RequireSpecial && !special {
		return fmt.Errorf("%w: special character required", ErrWeakPassword)
	}
	return nil
}

// Config holds the Argon2id cost parameters, the strength policy, and the
// concurrency bound applied to hashing work.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	// MaxConcurrentHashes caps in-flight Argon2 computations so a burst of
	// logins cannot exhaust process memory. Zero means 4.
	MaxConcurrentHashes int

	Policy Policy
}

// Validate rejects parameter sets below the hardening floor.
func (c Config) Validate() error {
	if c.Memory < minMemoryKB {
		return errors.New("memory must be >= 8192 KB")
	}
	if c.Time < minTimeCost {
		return errors.New("time must be >= 1")
	}
	if c.Parallelism < minParallelism {
		return errors.New("parallelism must be >= 1")
	}
	if c.SaltLength < minSaltLength {
		return errors.New("salt length must be >= 16")
	}
	if c.KeyLength < minKeyLength {
		return errors.New("key length must be >= 16")
	}
	if c.MaxConcurrentHashes < 0 {
		return errors.New("max concurrent hashes must not be negative")
	}
	if c.Policy.MinLength < 1 {
		return errors.New("policy minimum length must be >= 1")
	}
	return nil
}

// Hasher hashes and verifies passwords as Argon2id PHC strings, e.g.
//
//	$argon2id$v=19$m=65536,t=3,p=2$<salt>$<hash>
//
// All methods are safe for concurrent use; actual Argon2 work is bounded by
// Config.MaxConcurrentHashes and honors context cancellation while waiting
// for a slot.
type Hasher struct {
	config Config
	slots  chan struct{}
}

// NewHasher validates cfg and returns a ready Hasher.
func NewHasher(cfg Config) (*Hasher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := cfg.MaxConcurrentHashes
	if n == 0 {
		n = 4
	}
	return &Hasher{
		config: cfg,
		slots:  make(chan struct{}, n),
	}, nil
}

func (h *Hasher) acquire(ctx context.Context) error {
	select {
	case h.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hasher) release() { <-h.slots }

// Hash checks pw against the policy and returns its PHC-encoded Argon2id
// hash. Policy violations surface as ErrWeakPassword.
func (h *Hasher) Hash(ctx context.Context, pw string) (string, error) {
	if err := h.config.Policy.Check(pw); err != nil {
		return "", err
	}
	if err := h.acquire(ctx); err != nil {
		return "", err
	}
	defer h.release()

	salt := make([]byte, h.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey(
		[]byte(pw),
		salt,
		h.config.Time,
		h.config.Memory,
		h.config.Parallelism,
		h.config.KeyLength,
	)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.config.Memory,
		h.config.Time,
		h.config.Parallelism,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(key),
	), nil
}

// Verify recomputes the hash with the parameters embedded in encoded and
// compares in constant time. The timing of a mismatch is indistinguishable
// from a match.
func (h *Hasher) Verify(ctx context.Context, pw, encoded string) (bool, error) {
	parsed, err := parsePHC(encoded)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCorruptHash, err)
	}
	if err := h.acquire(ctx); err != nil {
		return false, err
	}
	defer h.release()

	computed := argon2.IDKey(
		[]byte(pw),
		parsed.salt,
		parsed.time,
		parsed.memory,
		parsed.parallelism,
		parsed.keyLength,
	)

	return subtle.ConstantTimeCompare(computed, parsed.hash) == 1, nil
}

// NeedsUpgrade reports whether encoded was produced with weaker parameters
// than the current configuration, so callers can rehash on successful login.
func (h *Hasher) NeedsUpgrade(encoded string) (bool, error) {
	parsed, err := parsePHC(encoded)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCorruptHash, err)
	}
	if h.config.Memory > parsed.memory {
		return true, nil
	}
	if h.config.Time > parsed.time {
		return true, nil
	}
	if h.config.Parallelism > parsed.parallelism {
		return true, nil
	}
	if h.config.KeyLength != parsed.keyLength {
		return true, nil
	}
	return false, nil
}

type parsedPHC struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
	keyLength   uint32
}

func parsePHC(encoded string) (*parsedPHC, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, errors.New("invalid PHC format")
	}
	if parts[1] != algorithmID {
		return nil, errors.New("unsupported algorithm")
	}

	if !strings.HasPrefix(parts[2], "v=") {
		return nil, errors.New("missing argon2 version")
	}
	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil {
		return nil, errors.New("invalid argon2 version")
	}
	if version != argon2.Version {
		return nil, errors.New("unsupported argon2 version")
	}

	params, err := parseParams(parts[3])
	if err != nil {
		return nil, err
	}

	salt, err := base64.StdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, errors.New("invalid salt encoding")
	}
	if len(salt) < int(minSaltLength) {
		return nil, errors.New("invalid salt length")
	}

	hash, err := base64.StdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, errors.New("invalid hash encoding")
	}
	if len(hash) == 0 {
		return nil, errors.New("invalid hash length")
	}

	return &parsedPHC{
		memory:      params.memory,
		time:        params.time,
		parallelism: params.parallelism,
		salt:        salt,
		hash:        hash,
		keyLength:   uint32(len(hash)),
	}, nil
}

type parsedParams struct {
	memory      uint32
	time        uint32
	parallelism uint8
}

func parseParams(part string) (*parsedParams, error) {
	pairs := strings.Split(part, ",")
	if len(pairs) != 3 {
		return nil, errors.New("invalid parameter format")
	}

	var (
		memorySet, timeSet, parallelismSet bool
		params                             parsedParams
	)

	for _, pair := range pairs {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, errors.New("invalid parameter entry")
		}

		switch kv[0] {
		case "m":
			v, err := strconv.ParseUint(kv[1], 10, 32)
			if err != nil || v < uint64(minMemoryKB) {
				return nil, errors.New("invalid memory parameter")
			}
			params.memory = uint32(v)
			memorySet = true
		case "t":
			v, err := strconv.ParseUint(kv[1], 10, 32)
			if err != nil || v < uint64(minTimeCost) {
				return nil, errors.New("invalid time parameter")
			}
			params.time = uint32(v)
			timeSet = true
		case "p":
			v, err := strconv.ParseUint(kv[1], 10, 8)
			if err != nil || v < uint64(minParallelism) {
				return nil, errors.New("invalid parallelism parameter")
			}
			params.parallelism = uint8(v)
			parallelismSet = true
		default:
			return nil, errors.New("unsupported parameter")
		}
	}

	if !memorySet || !timeSet || !parallelismSet {
		return nil, errors.New("missing parameters")
	}

	return &params, nil
}
