package authcore

import (
	"testing"
	"time"
)

func validTestConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	return cfg
}

func TestConfigValidateTable(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "defaults with hs256 secret",
			mutate:    func(*Config) {},
			wantValid: true,
		},
		{
			name: "token leeway too large",
			mutate: func(c *Config) {
				c.Token.Leeway = 3 * time.Minute
			},
			wantValid: false,
		},
		{
			name: "hs256 secret too short",
			mutate: func(c *Config) {
				c.Token.PrivateKey = []byte("short")
			},
			wantValid: false,
		},
		{
			name: "unsupported signing method",
			mutate: func(c *Config) {
				c.Token.SigningMethod = "rs256"
			},
			wantValid: false,
		},
		{
			name: "argon2 memory below floor",
			mutate: func(c *Config) {
				c.Password.Memory = 1024
			},
			wantValid: false,
		},
		{
			name: "empty session prefix",
			mutate: func(c *Config) {
				c.Session.RedisPrefix = ""
			},
			wantValid: false,
		},
		{
			name: "non-positive session lifetime",
			mutate: func(c *Config) {
				c.Session.Lifetime = 0
			},
			wantValid: false,
		},
		{
			name: "zero lockout threshold",
			mutate: func(c *Config) {
				c.Lockout.Threshold = 0
			},
			wantValid: false,
		},
		{
			name: "zero rate limit",
			mutate: func(c *Config) {
				c.Rate.LoginMax = 0
			},
			wantValid: false,
		},
		{
			name: "inverted enumeration delay range",
			mutate: func(c *Config) {
				c.Reset.EnumerationDelayMin = 50 * time.Millisecond
				c.Reset.EnumerationDelayMax = 10 * time.Millisecond
			},
			wantValid: false,
		},
		{
			name: "totp digits out of range",
			mutate: func(c *Config) {
				c.TOTP.Digits = 4
			},
			wantValid: false,
		},
		{
			name: "totp unsupported algorithm",
			mutate: func(c *Config) {
				c.TOTP.Algorithm = "MD5"
			},
			wantValid: false,
		},
		{
			name: "totp sha512 valid",
			mutate: func(c *Config) {
				c.TOTP.Algorithm = "SHA512"
			},
			wantValid: true,
		},
		{
			name: "audit enabled needs buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validTestConfig()
			tc.mutate(&cfg)

			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatal("expected validation error, got nil")
			}
		})
	}
}

func TestDefaultConfigHardeningPosture(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Password.Memory < 65536 {
		t.Fatalf("default argon2 memory too low: %d", cfg.Password.Memory)
	}
	if cfg.Token.AccessTTL > time.Hour {
		t.Fatalf("default access TTL too long: %s", cfg.Token.AccessTTL)
	}
	if cfg.Lockout.Threshold > 10 {
		t.Fatalf("default lockout threshold too permissive: %d", cfg.Lockout.Threshold)
	}
	if !cfg.Password.Policy.RequireUpper || !cfg.Password.Policy.RequireDigit {
		t.Fatal("default password policy must require mixed character classes")
	}
}
