package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/catequesis/authcore/internal/stores"
	"github.com/catequesis/authcore/password"
	"github.com/catequesis/authcore/session"
	"github.com/catequesis/authcore/token"
)

// Builder assembles a Service. Redis and an AccountStore are mandatory;
// everything else has a production default.
//
//	svc, err := authcore.New().
//		WithRedis(client).
//		WithAccountStore(store).
//		Build(ctx)
type Builder struct {
	config    Config
	configSet bool

	redis    redis.UniversalClient
	accounts AccountStore
	mailer   EmailSender
	devices  DeviceDetector
	limiter  RateLimiter
	clock    Clock
	sink     AuditSink
}

// New starts a Builder with DefaultConfig.
func New() *Builder {
	return &Builder{}
}

// WithConfig replaces the entire configuration tree.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	b.configSet = true
	return b
}

// WithRedis sets the Redis client backing sessions, challenges, and the
// default rate limiter.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccountStore sets the caller-owned account persistence.
func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.accounts = store
	return b
}

// WithEmailSender sets the outbound mail transport. Without one, verification
// and reset emails are silently skipped.
func (b *Builder) WithEmailSender(sender EmailSender) *Builder {
	b.mailer = sender
	return b
}

// WithDeviceDetector replaces the built-in User-Agent sniffer.
func (b *Builder) WithDeviceDetector(detector DeviceDetector) *Builder {
	b.devices = detector
	return b
}

// WithRateLimiter replaces the default Redis fixed-window limiter.
func (b *Builder) WithRateLimiter(limiter RateLimiter) *Builder {
	b.limiter = limiter
	return b
}

// WithClock injects a time source; tests use this to advance lockouts and
// token expiry deterministically.
func (b *Builder) WithClock(clock Clock) *Builder {
	b.clock = clock
	return b
}

// WithAuditSink sets the destination for audit events. Has no effect unless
// Config.Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// Build validates the configuration, wires every component, and precomputes
// the timing-equalization hash. The context bounds that initial hash only.
func (b *Builder) Build(ctx context.Context) (*Service, error) {
	if b.redis == nil {
		return nil, errors.New("authcore: redis client is required")
	}
	if b.accounts == nil {
		return nil, errors.New("authcore: account store is required")
	}

	cfg := b.config
	if !b.configSet {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("authcore: %w", err)
	}

	clock := b.clock
	if clock == nil {
		clock = systemClock{}
	}

	hasher, err := password.NewHasher(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("authcore: %w", err)
	}

	tokenCfg := cfg.Token
	tokenCfg.Now = clock.Now
	// TOTP.TempTokenTTL is the engine-level knob for the 2FA handshake
	// window; the codec reads it as its temp-token lifetime.
	tokenCfg.TempTTL = cfg.TOTP.TempTokenTTL
	codec, err := token.NewCodec(tokenCfg)
	if err != nil {
		return nil, fmt.Errorf("authcore: %w", err)
	}

	devices := b.devices
	if devices == nil {
		devices = defaultDeviceDetector{}
	}

	limiter := b.limiter
	if limiter == nil {
		limiter = NewRedisRateLimiter(b.redis, cfg.Session.RedisPrefix+":rl")
	}

	// The dummy plaintext carries every character class, so it survives any
	// sane policy and its hash costs the same as a real one.
	dummyHash, err := hasher.Hash(ctx, "Aa1!"+uuid.NewString()+uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("authcore: precomputing dummy hash: %w", err)
	}

	svc := &Service{
		config:        cfg,
		redis:         b.redis,
		accounts:      b.accounts,
		sessions:      session.NewStore(b.redis, cfg.Session.RedisPrefix, clock.Now),
		codec:         codec,
		hasher:        hasher,
		totp:          newTOTPManager(cfg.TOTP),
		resets:        stores.NewResetStore(b.redis, cfg.Session.RedisPrefix+":pr", clock.Now),
		verifications: stores.NewVerificationStore(b.redis, cfg.Session.RedisPrefix+":ev", clock.Now),
		limiter:       limiter,
		lockout: &lockoutPolicy{
			store:     b.accounts,
			threshold: cfg.Lockout.Threshold,
			duration:  cfg.Lockout.Duration,
			clock:     clock,
		},
		mailer:    b.mailer,
		devices:   devices,
		clock:     clock,
		audit:     newAuditDispatcher(cfg.Audit, b.sink),
		metrics:   NewMetrics(cfg.Metrics),
		dummyHash: dummyHash,
	}

	return svc, nil
}
