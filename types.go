package authcore

import (
	"context"
	"time"
)

// AccountStatus is the lifecycle state of an account as seen by the
// authentication core.
type AccountStatus uint8

const (
	// StatusActive allows login.
	StatusActive AccountStatus = iota
	// StatusInactive is an administratively disabled account.
	StatusInactive
	// StatusLocked is a temporary brute-force lock; it clears itself once
	// LockedUntil passes.
	StatusLocked
	// StatusPendingVerification is a freshly registered account that has not
	// confirmed its email address.
	StatusPendingVerification
)

// String returns the wire name of the status.
func (s AccountStatus) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusInactive:
		return "inactive"
	case StatusLocked:
		return "locked"
	case StatusPendingVerification:
		return "pending_verification"
	default:
		return "unknown"
	}
}

// Account is the slice of an account record the core needs to authenticate.
// Role names arrive already resolved by the AccountStore; the core never
// interprets them, it only embeds them in issued tokens.
type Account struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Status       AccountStatus
	Roles        []string

	FailedAttempts int
	LockedUntil    *time.Time
	LastLogin      *time.Time

	RequiresPasswordChange bool
	TwoFactorEnabled       bool
	TOTPSecret             []byte
}

// CreateAccountInput carries the fields Register hands to the AccountStore.
type CreateAccountInput struct {
	Username     string
	Email        string
	PasswordHash string
	Status       AccountStatus
	Roles        []string
}

// AccountStore is the caller-owned persistence boundary for accounts. All
// methods must be safe for concurrent use. Lookups that find nothing return
// ErrAccountNotFound; Create returns ErrDuplicateAccount on a username or
// email collision.
type AccountStore interface {
	GetByIdentifier(ctx context.Context, identifier string) (*Account, error)
	GetByID(ctx context.Context, id string) (*Account, error)
	Create(ctx context.Context, input CreateAccountInput) (*Account, error)

	// UpdatePasswordHash replaces the stored hash and clears any pending
	// password-change requirement.
	UpdatePasswordHash(ctx context.Context, id, hash string) error

	// IncrementFailedAttempts must be a single atomic increment-and-read so
	// concurrent failures cannot lose counts.
	IncrementFailedAttempts(ctx context.Context, id string) (int, error)

	// SetLock marks the account locked until the given instant.
	SetLock(ctx context.Context, id string, until time.Time) error
	// ClearLock resets the failure counter, removes the lock timestamp, and
	// restores StatusActive if the account was locked.
	ClearLock(ctx context.Context, id string) error
	// RecordLoginSuccess resets the failure counter, clears any lock, and
	// stamps the last successful login.
	RecordLoginSuccess(ctx context.Context, id string, at time.Time) error

	UpdateStatus(ctx context.Context, id string, status AccountStatus) error
}

// EmailSender delivers outbound mail. The core composes the message bodies;
// delivery failures are logged and never block the calling flow.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// DeviceInfo is the parsed client fingerprint recorded on a session.
type DeviceInfo struct {
	Device  string
	Browser string
}

// DeviceDetector turns a raw User-Agent string into a DeviceInfo. A small
// default implementation is used when none is injected.
type DeviceDetector interface {
	Parse(userAgent string) DeviceInfo
}

// RateLimiter is the sliding-window attempt counter consumed by login and
// password-reset flows. Allow reports whether the attempt identified by key
// is still within max attempts per window, counting this attempt. An error
// fails the guarded operation closed.
type RateLimiter interface {
	Allow(ctx context.Context, key string, max int, window time.Duration) (bool, error)
}

// Clock abstracts time for lockout expiry, token lifetimes, and session
// timestamps so tests can advance it deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// LoginRequest is the input to Service.Login.
type LoginRequest struct {
	Identifier    string
	Password      string
	TwoFactorCode string
	RememberMe    bool
}

// LoginResult is the outcome of a successful Login or CompleteTwoFactor call.
// When Requires2FA is set only TempToken is populated and the caller must
// follow up with CompleteTwoFactor.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64
	SessionID    string

	Requires2FA bool
	TempToken   string

	PasswordChangeRequired bool
}

// RefreshResult is the outcome of Service.Refresh.
type RefreshResult struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int64
}

// RegisterRequest is the input to Service.Register.
type RegisterRequest struct {
	Username string
	Email    string
	Password string
	Roles    []string
}

// RegisterResult reports the created account. The account starts in
// StatusPendingVerification until the emailed token is redeemed.
type RegisterResult struct {
	AccountID string
	Status    AccountStatus
}

// SessionInfo is the caller-facing view of one session, as returned by
// ListSessions.
type SessionInfo struct {
	ID             string
	CreatedAt      time.Time
	LastActivityAt time.Time
	IP             string
	Device         string
	Browser        string
	RememberMe     bool
	Current        bool
}
