package token

import (
	"errors"
	"testing"
	"time"
)

func testCodec(t *testing.T, now func() time.Time) *Codec {
	t.Helper()
	c, err := NewCodec(Config{
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "authcore-test",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    30 * 24 * time.Hour,
		TempTTL:       5 * time.Minute,
		Now:           now,
	})
	if err != nil {
		t.Fatalf("NewCodec error: %v", err)
	}
	return c
}

func TestAccessRoundTrip(t *testing.T) {
	c := testCodec(t, nil)

	raw, err := c.IssueAccess("acct-1", []string{"admin", "clergy"}, "sess-1", 3)
	if err != nil {
		t.Fatalf("IssueAccess error: %v", err)
	}

	claims, err := c.Verify(raw, TypeAccess)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if claims.AccountID() != "acct-1" {
		t.Fatalf("sub = %q, want acct-1", claims.AccountID())
	}
	if claims.SessionID != "sess-1" || claims.Generation != 3 {
		t.Fatalf("session binding lost: sid=%q gen=%d", claims.SessionID, claims.Generation)
	}
	if len(claims.Roles) != 2 || claims.Roles[0] != "admin" {
		t.Fatalf("roles lost: %v", claims.Roles)
	}
}

func TestTypeConfusionRejected(t *testing.T) {
	c := testCodec(t, nil)

	refresh, err := c.IssueRefresh("acct-1", "sess-1", 1)
	if err != nil {
		t.Fatalf("IssueRefresh error: %v", err)
	}
	if _, err := c.Verify(refresh, TypeAccess); !errors.Is(err, ErrWrongType) {
		t.Fatalf("refresh accepted as access: %v", err)
	}

	temp, err := c.IssueTemp("acct-1")
	if err != nil {
		t.Fatalf("IssueTemp error: %v", err)
	}
	if _, err := c.Verify(temp, TypeAccess); !errors.Is(err, ErrWrongType) {
		t.Fatalf("temp accepted as access: %v", err)
	}
	if _, err := c.Verify(temp, TypeRefresh); !errors.Is(err, ErrWrongType) {
		t.Fatalf("temp accepted as refresh: %v", err)
	}
}

func TestExpiryByFakeClock(t *testing.T) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := testCodec(t, func() time.Time { return current })

	raw, err := c.IssueAccess("acct-1", nil, "sess-1", 1)
	if err != nil {
		t.Fatalf("IssueAccess error: %v", err)
	}

	if _, err := c.Verify(raw, TypeAccess); err != nil {
		t.Fatalf("token rejected before expiry: %v", err)
	}

	current = current.Add(16 * time.Minute)
	if _, err := c.Verify(raw, TypeAccess); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestTamperedTokenRejected(t *testing.T) {
	c := testCodec(t, nil)

	raw, err := c.IssueAccess("acct-1", nil, "sess-1", 1)
	if err != nil {
		t.Fatalf("IssueAccess error: %v", err)
	}

	tampered := raw[:len(raw)-3] + "xyz"
	if _, err := c.Verify(tampered, TypeAccess); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestWrongKeyRejected(t *testing.T) {
	c := testCodec(t, nil)
	other, err := NewCodec(Config{
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("ffffffffffffffffffffffffffffffff"),
		Issuer:        "authcore-test",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    time.Hour,
		TempTTL:       5 * time.Minute,
	})
	if err != nil {
		t.Fatalf("NewCodec error: %v", err)
	}

	raw, err := other.IssueAccess("acct-1", nil, "sess-1", 1)
	if err != nil {
		t.Fatalf("IssueAccess error: %v", err)
	}
	if _, err := c.Verify(raw, TypeAccess); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for foreign signature, got %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	_, err := NewCodec(Config{
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("short"),
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		TempTTL:       time.Minute,
	})
	if err == nil {
		t.Fatal("expected short hs256 secret to be rejected")
	}

	_, err = NewCodec(Config{
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		AccessTTL:     0,
		RefreshTTL:    time.Hour,
		TempTTL:       time.Minute,
	})
	if err == nil {
		t.Fatal("expected zero access TTL to be rejected")
	}
}
