package authcore

import (
	"fmt"
	"time"

	"github.com/catequesis/authcore/password"
	"github.com/catequesis/authcore/token"
)

/*
====================================
TOP-LEVEL CONFIG
====================================
*/

// Config is the full configuration tree for a Service. The Builder uses the
// tree passed to WithConfig as-is and falls back to DefaultConfig only when
// WithConfig was never called; Validate runs at Build time.
type Config struct {
	Token    token.Config
	Password password.Config
	Session  SessionConfig
	Lockout  LockoutConfig
	Rate     RateConfig
	Reset    ResetConfig
	Verify   VerifyConfig
	TOTP     TOTPConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
SUB-CONFIGS
====================================
*/

// SessionConfig controls the Redis session store.
type SessionConfig struct {
	// RedisPrefix namespaces every session key.
	RedisPrefix string
	// Lifetime is the TTL of a session blob. RememberMe sessions use
	// RememberMeLifetime instead.
	Lifetime           time.Duration
	RememberMeLifetime time.Duration
}

// LockoutConfig controls the brute-force account lock.
type LockoutConfig struct {
	// Threshold is the failed-attempt count at which the lock engages.
	Threshold int
	// Duration is how long the lock holds before lazy expiry.
	Duration time.Duration
}

// RateConfig controls the sliding-window attempt limits. Login is keyed by
// client IP, reset requests by target email.
type RateConfig struct {
	LoginMax    int
	LoginWindow time.Duration
	ResetMax    int
	ResetWindow time.Duration
}

// ResetConfig controls the password-reset flow.
type ResetConfig struct {
	TokenTTL time.Duration
	// EnumerationDelayMin/Max bound the random sleep performed when a reset
	// is requested for an unknown email, so the response time matches the
	// known-email path.
	EnumerationDelayMin time.Duration
	EnumerationDelayMax time.Duration
}

// VerifyConfig controls email-verification tokens issued at registration.
type VerifyConfig struct {
	TokenTTL time.Duration
}

// TOTPConfig controls the time-based second factor.
type TOTPConfig struct {
	Issuer string
	Digits int
	Period int
	// Skew is how many periods either side of now are accepted.
	Skew int
	// Algorithm is SHA1, SHA256, or SHA512.
	Algorithm string
	// TempTokenTTL bounds the window between Login answering Requires2FA and
	// CompleteTwoFactor.
	TempTokenTTL time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events instead of blocking the auth path when the
	// buffer is saturated.
	DropIfFull bool
}

// MetricsConfig controls the atomic counter set.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULTS
====================================
*/

// DefaultConfig returns the configuration a production deployment starts
// from. Callers override fields before handing it to the Builder.
func DefaultConfig() Config {
	return Config{
		Token: token.Config{
			SigningMethod: "hs256",
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    30 * 24 * time.Hour,
			TempTTL:       5 * time.Minute,
			Leeway:        30 * time.Second,
		},
		Password: password.Config{
			Memory:              65536,
			Time:                3,
			Parallelism:         2,
			SaltLength:          16,
			KeyLength:           32,
			MaxConcurrentHashes: 4,
			Policy: password.Policy{
				MinLength:      8,
				RequireUpper:   true,
				RequireLower:   true,
				RequireDigit:   true,
				RequireSpecial: true,
			},
		},
		Session: SessionConfig{
			RedisPrefix:        "ac",
			Lifetime:           24 * time.Hour,
			RememberMeLifetime: 30 * 24 * time.Hour,
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Duration:  30 * time.Minute,
		},
		Rate: RateConfig{
			LoginMax:    5,
			LoginWindow: 15 * time.Minute,
			ResetMax:    3,
			ResetWindow: time.Hour,
		},
		Reset: ResetConfig{
			TokenTTL:            time.Hour,
			EnumerationDelayMin: 20 * time.Millisecond,
			EnumerationDelayMax: 40 * time.Millisecond,
		},
		Verify: VerifyConfig{
			TokenTTL: 24 * time.Hour,
		},
		TOTP: TOTPConfig{
			Issuer:       "authcore",
			Digits:       6,
			Period:       30,
			Skew:         1,
			Algorithm:    "SHA1",
			TempTokenTTL: 5 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects configurations that would weaken the security posture or
// misbehave at runtime. Build refuses to construct a Service on error.
func (c *Config) Validate() error {
	if err := c.Token.Validate(); err != nil {
		return fmt.Errorf("token config: %w", err)
	}
	if err := c.Password.Validate(); err != nil {
		return fmt.Errorf("password config: %w", err)
	}
	if c.Session.RedisPrefix == "" {
		return fmt.Errorf("session config: redis prefix must not be empty")
	}
	if c.Session.Lifetime <= 0 || c.Session.RememberMeLifetime <= 0 {
		return fmt.Errorf("session config: lifetimes must be positive")
	}
	if c.Lockout.Threshold < 1 {
		return fmt.Errorf("lockout config: threshold must be at least 1")
	}
	if c.Lockout.Duration <= 0 {
		return fmt.Errorf("lockout config: duration must be positive")
	}
	if c.Rate.LoginMax < 1 || c.Rate.ResetMax < 1 {
		return fmt.Errorf("rate config: attempt limits must be at least 1")
	}
	if c.Rate.LoginWindow <= 0 || c.Rate.ResetWindow <= 0 {
		return fmt.Errorf("rate config: windows must be positive")
	}
	if c.Reset.TokenTTL <= 0 {
		return fmt.Errorf("reset config: token ttl must be positive")
	}
	if c.Reset.EnumerationDelayMin < 0 || c.Reset.EnumerationDelayMax < c.Reset.EnumerationDelayMin {
		return fmt.Errorf("reset config: enumeration delay range is inverted")
	}
	if c.Verify.TokenTTL <= 0 {
		return fmt.Errorf("verify config: token ttl must be positive")
	}
	if c.TOTP.Digits < 6 || c.TOTP.Digits > 10 {
		return fmt.Errorf("totp config: digits must be between 6 and 10")
	}
	if c.TOTP.Period < 1 {
		return fmt.Errorf("totp config: period must be positive")
	}
	if c.TOTP.Skew < 0 {
		return fmt.Errorf("totp config: skew must not be negative")
	}
	switch c.TOTP.Algorithm {
	case "SHA1", "SHA256", "SHA512":
	default:
		return fmt.Errorf("totp config: unsupported algorithm %q", c.TOTP.Algorithm)
	}
	if c.TOTP.TempTokenTTL <= 0 {
		return fmt.Errorf("totp config: temp token ttl must be positive")
	}
	if c.Audit.Enabled && c.Audit.BufferSize < 1 {
		return fmt.Errorf("audit config: buffer size must be positive")
	}
	return nil
}
