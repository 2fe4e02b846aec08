package authcore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func registerBob(t *testing.T, env *testEnv) *RegisterResult {
	t.Helper()

	result, err := env.svc.Register(context.Background(), RegisterRequest{
		Username: "bob",
		Email:    "bob@example.com",
		Password: "Str0ng-Passw0rd!",
		Roles:    []string{"member"},
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return result
}

// tokenFromMail pulls the opaque token out of the last message sent to the
// given address. Bodies end with ": <token>".
func tokenFromMail(t *testing.T, env *testEnv, to string) string {
	t.Helper()

	mails := env.mailer.all()
	for i := len(mails) - 1; i >= 0; i-- {
		if mails[i].To != to {
			continue
		}
		idx := strings.LastIndex(mails[i].Body, ": ")
		if idx < 0 {
			t.Fatalf("no token in mail body: %q", mails[i].Body)
		}
		return mails[i].Body[idx+2:]
	}
	t.Fatalf("no mail sent to %s", to)
	return ""
}

func TestRegisterCreatesPendingAccount(t *testing.T) {
	env := newTestService(t, nil)

	result := registerBob(t, env)

	if result.Status != StatusPendingVerification {
		t.Fatalf("expected pending status, got %v", result.Status)
	}
	snap := env.store.snapshot(result.AccountID)
	if snap == nil {
		t.Fatal("account not persisted")
	}
	if snap.PasswordHash == "" || strings.Contains(snap.PasswordHash, "Str0ng") {
		t.Fatal("password must be stored hashed")
	}
	if len(env.mailer.all()) != 1 {
		t.Fatalf("expected one verification mail, got %d", len(env.mailer.all()))
	}
}

func TestRegisterWeakPasswordRejected(t *testing.T) {
	env := newTestService(t, nil)

	_, err := env.svc.Register(context.Background(), RegisterRequest{
		Username: "bob",
		Email:    "bob@example.com",
		Password: "short",
	})
	if !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
}

func TestRegisterDuplicateRejected(t *testing.T) {
	env := newTestService(t, nil)
	registerBob(t, env)

	_, err := env.svc.Register(context.Background(), RegisterRequest{
		Username: "bob",
		Email:    "other@example.com",
		Password: "Str0ng-Passw0rd!",
	})
	if !errors.Is(err, ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount, got %v", err)
	}
}

func TestVerifyEmailActivatesAccount(t *testing.T) {
	env := newTestService(t, nil)
	result := registerBob(t, env)

	verifyToken := tokenFromMail(t, env, "bob@example.com")
	if err := env.svc.VerifyEmail(context.Background(), verifyToken); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}

	if got := env.store.snapshot(result.AccountID).Status; got != StatusActive {
		t.Fatalf("expected active status, got %v", got)
	}

	// The account can log in now.
	mustLogin(t, env, LoginRequest{Identifier: "bob", Password: "Str0ng-Passw0rd!"})
}

func TestVerifyEmailTokenSingleUse(t *testing.T) {
	env := newTestService(t, nil)
	registerBob(t, env)

	verifyToken := tokenFromMail(t, env, "bob@example.com")
	if err := env.svc.VerifyEmail(context.Background(), verifyToken); err != nil {
		t.Fatalf("first VerifyEmail failed: %v", err)
	}

	err := env.svc.VerifyEmail(context.Background(), verifyToken)
	if !errors.Is(err, ErrVerificationTokenInvalid) {
		t.Fatalf("expected ErrVerificationTokenInvalid on reuse, got %v", err)
	}
}

func TestVerifyEmailMalformedToken(t *testing.T) {
	env := newTestService(t, nil)

	err := env.svc.VerifyEmail(context.Background(), "garbage")
	if !errors.Is(err, ErrVerificationTokenInvalid) {
		t.Fatalf("expected ErrVerificationTokenInvalid, got %v", err)
	}
}

func TestVerifyEmailExpiredToken(t *testing.T) {
	env := newTestService(t, nil)
	registerBob(t, env)

	verifyToken := tokenFromMail(t, env, "bob@example.com")
	env.clock.Advance(25 * time.Hour)

	err := env.svc.VerifyEmail(context.Background(), verifyToken)
	if !errors.Is(err, ErrVerificationTokenInvalid) {
		t.Fatalf("expected ErrVerificationTokenInvalid after expiry, got %v", err)
	}
}

func TestResendVerification(t *testing.T) {
	env := newTestService(t, nil)
	result := registerBob(t, env)

	if err := env.svc.ResendVerification(context.Background(), "bob@example.com"); err != nil {
		t.Fatalf("ResendVerification failed: %v", err)
	}
	if len(env.mailer.all()) != 2 {
		t.Fatalf("expected 2 mails, got %d", len(env.mailer.all()))
	}

	// The newest token works.
	verifyToken := tokenFromMail(t, env, "bob@example.com")
	if err := env.svc.VerifyEmail(context.Background(), verifyToken); err != nil {
		t.Fatalf("VerifyEmail with resent token failed: %v", err)
	}
	if got := env.store.snapshot(result.AccountID).Status; got != StatusActive {
		t.Fatalf("expected active status, got %v", got)
	}
}

func TestResendVerificationUnknownEmailSilent(t *testing.T) {
	env := newTestService(t, nil)

	if err := env.svc.ResendVerification(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("expected silent success, got %v", err)
	}
	if len(env.mailer.all()) != 0 {
		t.Fatal("no mail should be sent for unknown emails")
	}
}
