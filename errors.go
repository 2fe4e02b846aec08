package authcore

import (
	"errors"

	"github.com/catequesis/authcore/password"
)

var (
	// ErrInvalidCredentials is returned for unknown identifiers and wrong
	// passwords alike; callers must not distinguish the two cases.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while a brute-force lock is in effect.
	ErrAccountLocked = errors.New("account temporarily locked")
	// ErrAccountInactive is returned when the account exists but is disabled.
	ErrAccountInactive = errors.New("account inactive")
	// ErrAccountUnverified is returned when the account has not completed
	// email verification.
	ErrAccountUnverified = errors.New("account pending verification")
	// ErrAccountNotFound must be returned by AccountStore lookups that miss.
	ErrAccountNotFound = errors.New("account not found")
	// ErrDuplicateAccount is returned by Register when the username or email
	// is already taken.
	ErrDuplicateAccount = errors.New("account already exists")

	// ErrLoginRateLimited is returned when the per-IP login window is spent.
	ErrLoginRateLimited = errors.New("too many login attempts")
	// ErrResetRateLimited is returned when the per-email reset window is spent.
	ErrResetRateLimited = errors.New("too many password reset requests")

	// ErrWeakPassword is returned when a new password fails the strength
	// policy. It is the password package's sentinel so errors.Is works across
	// both packages.
	ErrWeakPassword = password.ErrWeakPassword
	// ErrCorruptHash is returned when a stored password hash cannot be parsed.
	ErrCorruptHash = password.ErrCorruptHash

	// ErrTokenInvalid covers bad signatures, malformed tokens, and tokens of
	// the wrong type for the operation.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is returned when a token's exp claim has passed.
	ErrTokenExpired = errors.New("token expired")

	// ErrTwoFactorInvalid is returned for a wrong or replayed TOTP code.
	ErrTwoFactorInvalid = errors.New("invalid two-factor code")
	// ErrTwoFactorNotEnrolled is returned when a 2FA operation targets an
	// account with no secret configured.
	ErrTwoFactorNotEnrolled = errors.New("two-factor not enrolled")

	// ErrSessionNotFound is returned when a session is missing, closed, or
	// belongs to a revoked generation.
	ErrSessionNotFound = errors.New("session not found or inactive")
	// ErrSessionForbidden is returned when a caller targets a session owned
	// by a different account.
	ErrSessionForbidden = errors.New("session belongs to another account")

	// ErrResetTokenInvalid is returned for unknown, expired, superseded, or
	// already-used password reset tokens.
	ErrResetTokenInvalid = errors.New("invalid or expired reset token")
	// ErrVerificationTokenInvalid is returned for unknown or expired email
	// verification tokens.
	ErrVerificationTokenInvalid = errors.New("invalid or expired verification token")

	// ErrBackendUnavailable wraps Redis and AccountStore failures; security
	// decisions encountering it fail closed.
	ErrBackendUnavailable = errors.New("auth backend unavailable")
	// ErrServiceNotReady is returned by Service methods before Build completed.
	ErrServiceNotReady = errors.New("service not initialized")
)
