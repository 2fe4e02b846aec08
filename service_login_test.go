package authcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLoginSuccessIssuesTokenPair(t *testing.T) {
	env := newTestService(t, nil)
	seedAccount(t, env, nil)

	result := mustLogin(t, env, LoginRequest{Identifier: "alice", Password: testPassword})

	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	if result.TokenType != "Bearer" {
		t.Fatalf("unexpected token type %q", result.TokenType)
	}
	if result.SessionID == "" {
		t.Fatal("expected a session id")
	}
	if result.Requires2FA {
		t.Fatal("did not expect a 2FA gate")
	}
	if got := env.svc.Metrics().Value(MetricLoginSuccess); got != 1 {
		t.Fatalf("expected login success metric 1, got %d", got)
	}
}

func TestLoginAcceptsEmailAsIdentifier(t *testing.T) {
	env := newTestService(t, nil)
	seedAccount(t, env, nil)

	mustLogin(t, env, LoginRequest{Identifier: "alice@example.com", Password: testPassword})
}

func TestLoginUnknownIdentifier(t *testing.T) {
	env := newTestService(t, nil)
	seedAccount(t, env, nil)

	_, err := env.svc.Login(context.Background(), LoginRequest{Identifier: "mallory", Password: testPassword})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginWrongPasswordCountsAttempt(t *testing.T) {
	env := newTestService(t, nil)
	acct := seedAccount(t, env, nil)

	_, err := env.svc.Login(context.Background(), LoginRequest{Identifier: "alice", Password: "Wrong-Password-1!"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if got := env.store.snapshot(acct.ID).FailedAttempts; got != 1 {
		t.Fatalf("expected 1 failed attempt, got %d", got)
	}
}

func TestLoginInactiveAndPendingStatuses(t *testing.T) {
	env := newTestService(t, nil)
	seedAccount(t, env, func(a *Account) { a.Status = StatusInactive })

	_, err := env.svc.Login(context.Background(), LoginRequest{Identifier: "alice", Password: testPassword})
	if !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}

	env2 := newTestService(t, nil)
	seedAccount(t, env2, func(a *Account) { a.Status = StatusPendingVerification })

	_, err = env2.svc.Login(context.Background(), LoginRequest{Identifier: "alice", Password: testPassword})
	if !errors.Is(err, ErrAccountUnverified) {
		t.Fatalf("expected ErrAccountUnverified, got %v", err)
	}
}

func TestLockoutEngagesAtThreshold(t *testing.T) {
	env := newTestService(t, func(cfg *Config) {
		cfg.Rate.LoginMax = 100
	})
	acct := seedAccount(t, env, nil)

	wrong := LoginRequest{Identifier: "alice", Password: "Wrong-Password-1!"}
	for i := 0; i < 4; i++ {
		if _, err := env.svc.Login(context.Background(), wrong); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	if _, err := env.svc.Login(context.Background(), wrong); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("fifth failure: expected ErrAccountLocked, got %v", err)
	}
	if env.store.snapshot(acct.ID).LockedUntil == nil {
		t.Fatal("expected LockedUntil to be set")
	}

	// Correct password during the lock window still fails.
	_, err := env.svc.Login(context.Background(), LoginRequest{Identifier: "alice", Password: testPassword})
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked with correct password, got %v", err)
	}
}

func TestLockoutExpiresLazily(t *testing.T) {
	env := newTestService(t, func(cfg *Config) {
		cfg.Rate.LoginMax = 100
	})
	acct := seedAccount(t, env, nil)

	wrong := LoginRequest{Identifier: "alice", Password: "Wrong-Password-1!"}
	for i := 0; i < 5; i++ {
		_, _ = env.svc.Login(context.Background(), wrong)
	}

	env.clock.Advance(31 * time.Minute)

	mustLogin(t, env, LoginRequest{Identifier: "alice", Password: testPassword})

	snap := env.store.snapshot(acct.ID)
	if snap.FailedAttempts != 0 || snap.LockedUntil != nil {
		t.Fatalf("expected failure state cleared, got attempts=%d locked=%v", snap.FailedAttempts, snap.LockedUntil)
	}
}

func TestLoginRateLimitedPerIP(t *testing.T) {
	env := newTestService(t, func(cfg *Config) {
		cfg.Rate.LoginMax = 2
	})
	seedAccount(t, env, nil)

	ctx := WithClientIP(context.Background(), "203.0.113.9")
	wrong := LoginRequest{Identifier: "alice", Password: "Wrong-Password-1!"}

	for i := 0; i < 2; i++ {
		if _, err := env.svc.Login(ctx, wrong); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}
	if _, err := env.svc.Login(ctx, wrong); !errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("expected ErrLoginRateLimited, got %v", err)
	}

	// A different IP keeps its own window.
	other := WithClientIP(context.Background(), "203.0.113.10")
	if _, err := env.svc.Login(other, wrong); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials from other IP, got %v", err)
	}
}

func TestLoginPasswordChangeRequiredFlag(t *testing.T) {
	env := newTestService(t, nil)
	seedAccount(t, env, func(a *Account) { a.RequiresPasswordChange = true })

	result := mustLogin(t, env, LoginRequest{Identifier: "alice", Password: testPassword})
	if !result.PasswordChangeRequired {
		t.Fatal("expected PasswordChangeRequired flag")
	}
}

func TestLoginSessionRecordsDeviceAndIP(t *testing.T) {
	env := newTestService(t, nil)
	seedAccount(t, env, nil)

	ctx := WithClientIP(context.Background(), "198.51.100.7")
	ctx = WithUserAgent(ctx, "Mozilla/5.0 (iPhone) Mobile Safari/604.1")

	result, err := env.svc.Login(ctx, LoginRequest{Identifier: "alice", Password: testPassword})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	infos, err := env.svc.ListSessions(ctx, result.AccessToken)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("expected 1 session, got %d", len(infos))
	}
	if infos[0].IP != "198.51.100.7" {
		t.Fatalf("unexpected session IP %q", infos[0].IP)
	}
	if infos[0].Device != "mobile" || infos[0].Browser != "safari" {
		t.Fatalf("unexpected device fingerprint %q/%q", infos[0].Device, infos[0].Browser)
	}
	if !infos[0].Current {
		t.Fatal("expected the calling session to be flagged Current")
	}
}

func totpSecretForTest() []byte { return []byte("12345678901234567890") }

func totpCodeAt(t *testing.T, secret []byte, at time.Time) string {
	t.Helper()
	code, err := hotpCode(secret, at.Unix()/30, 6, "SHA1")
	if err != nil {
		t.Fatalf("hotpCode failed: %v", err)
	}
	return code
}

func TestLoginWithTwoFactorGate(t *testing.T) {
	env := newTestService(t, nil)
	seedAccount(t, env, func(a *Account) {
		a.TwoFactorEnabled = true
		a.TOTPSecret = totpSecretForTest()
	})

	first := mustLogin(t, env, LoginRequest{Identifier: "alice", Password: testPassword})
	if !first.Requires2FA || first.TempToken == "" {
		t.Fatalf("expected 2FA gate, got %+v", first)
	}
	if first.AccessToken != "" || first.RefreshToken != "" {
		t.Fatal("gated login must not issue real tokens")
	}

	code := totpCodeAt(t, totpSecretForTest(), env.clock.Now())
	final, err := env.svc.CompleteTwoFactor(context.Background(), first.TempToken, code, false)
	if err != nil {
		t.Fatalf("CompleteTwoFactor failed: %v", err)
	}
	if final.AccessToken == "" || final.RefreshToken == "" {
		t.Fatal("expected tokens after 2FA completion")
	}
}

func TestLoginWithInlineTwoFactorCode(t *testing.T) {
	env := newTestService(t, nil)
	seedAccount(t, env, func(a *Account) {
		a.TwoFactorEnabled = true
		a.TOTPSecret = totpSecretForTest()
	})

	code := totpCodeAt(t, totpSecretForTest(), env.clock.Now())
	result := mustLogin(t, env, LoginRequest{
		Identifier:    "alice",
		Password:      testPassword,
		TwoFactorCode: code,
	})
	if result.Requires2FA || result.AccessToken == "" {
		t.Fatalf("expected completed login, got %+v", result)
	}
}

func TestTwoFactorWrongCodeRejected(t *testing.T) {
	env := newTestService(t, nil)
	seedAccount(t, env, func(a *Account) {
		a.TwoFactorEnabled = true
		a.TOTPSecret = totpSecretForTest()
	})

	first := mustLogin(t, env, LoginRequest{Identifier: "alice", Password: testPassword})

	_, err := env.svc.CompleteTwoFactor(context.Background(), first.TempToken, "000000", false)
	if !errors.Is(err, ErrTwoFactorInvalid) {
		t.Fatalf("expected ErrTwoFactorInvalid, got %v", err)
	}
}

func TestTwoFactorCodeReplayRejected(t *testing.T) {
	env := newTestService(t, nil)
	seedAccount(t, env, func(a *Account) {
		a.TwoFactorEnabled = true
		a.TOTPSecret = totpSecretForTest()
	})

	code := totpCodeAt(t, totpSecretForTest(), env.clock.Now())

	mustLogin(t, env, LoginRequest{Identifier: "alice", Password: testPassword, TwoFactorCode: code})

	_, err := env.svc.Login(context.Background(), LoginRequest{
		Identifier:    "alice",
		Password:      testPassword,
		TwoFactorCode: code,
	})
	if !errors.Is(err, ErrTwoFactorInvalid) {
		t.Fatalf("expected replayed code to fail with ErrTwoFactorInvalid, got %v", err)
	}
}

func TestTempTokenHonorsConfiguredTTL(t *testing.T) {
	env := newTestService(t, func(cfg *Config) {
		cfg.TOTP.TempTokenTTL = time.Second
	})
	seedAccount(t, env, func(a *Account) {
		a.TwoFactorEnabled = true
		a.TOTPSecret = totpSecretForTest()
	})

	first := mustLogin(t, env, LoginRequest{Identifier: "alice", Password: testPassword})
	if !first.Requires2FA {
		t.Fatal("expected 2FA gate")
	}

	env.clock.Advance(2 * time.Minute)

	code := totpCodeAt(t, totpSecretForTest(), env.clock.Now())
	_, err := env.svc.CompleteTwoFactor(context.Background(), first.TempToken, code, false)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired for a stale temp token, got %v", err)
	}
}

func TestCompleteTwoFactorRejectsAccessToken(t *testing.T) {
	env := newTestService(t, nil)
	seedAccount(t, env, nil)

	result := mustLogin(t, env, LoginRequest{Identifier: "alice", Password: testPassword})

	_, err := env.svc.CompleteTwoFactor(context.Background(), result.AccessToken, "123456", false)
	if !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for wrong token type, got %v", err)
	}
}
