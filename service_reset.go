package authcore

import (
	"context"
	"errors"
	"fmt"
	mathrand "math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/catequesis/authcore/internal"
	"github.com/catequesis/authcore/internal/stores"
	"github.com/catequesis/authcore/session"
	"github.com/catequesis/authcore/token"
)

// RequestPasswordReset issues a reset token and emails it. The response is
// identical for known and unknown emails; the unknown path sleeps a random
// interval tuned to the real path's issue cost, so timing does not leak
// account existence either. Issuing a new token retires any previous one.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	if s == nil {
		return ErrServiceNotReady
	}

	allowed, err := s.limiter.Allow(ctx, "pwreset:"+email, s.config.Rate.ResetMax, s.config.Rate.ResetWindow)
	if err != nil {
		return err
	}
	if !allowed {
		s.emit(ctx, AuditEvent{EventType: AuditResetRateLimited, Metadata: map[string]string{"email": email}})
		return ErrResetRateLimited
	}

	acct, err := s.accounts.GetByIdentifier(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			s.enumerationDelay(ctx)
			return nil
		}
		return backendErr(err)
	}

	secret, err := internal.NewSecret()
	if err != nil {
		return err
	}
	resetID := uuid.New()

	record := &stores.Record{
		AccountID:  acct.ID,
		SecretHash: internal.HashSecret(secret),
		ExpiresAt:  s.clock.Now().Add(s.config.Reset.TokenTTL).Unix(),
	}
	if err := s.resets.Issue(ctx, resetID.String(), record, s.config.Reset.TokenTTL); err != nil {
		return backendErr(err)
	}

	s.metrics.Inc(MetricResetRequested)
	s.emit(ctx, AuditEvent{EventType: AuditResetRequested, AccountID: acct.ID, Success: true})

	s.sendMail(ctx, acct.Email,
		"Password reset requested",
		fmt.Sprintf("Use this token to reset your password. It expires in %s: %s",
			s.config.Reset.TokenTTL, internal.EncodeOpaqueToken(resetID, secret)),
	)
	return nil
}

// ConfirmPasswordReset redeems a reset token and installs the new password.
// The token burns on use, the lockout state clears, and every session closes:
// whoever holds the new password must log in fresh, and whoever held the old
// one is out.
func (s *Service) ConfirmPasswordReset(ctx context.Context, resetToken, newPassword string) error {
	if s == nil {
		return ErrServiceNotReady
	}

	id, secret, err := internal.DecodeOpaqueToken(resetToken)
	if err != nil {
		s.metrics.Inc(MetricResetFailure)
		return ErrResetTokenInvalid
	}

	// Policy-check before consuming, so a weak password does not burn the
	// caller's only token.
	if err := s.config.Password.Policy.Check(newPassword); err != nil {
		return err
	}

	record, err := s.resets.Consume(ctx, id.String(), internal.HashSecret(secret))
	if err != nil {
		switch {
		case errors.Is(err, stores.ErrNotFound), errors.Is(err, stores.ErrSecretMismatch):
			s.metrics.Inc(MetricResetFailure)
			s.emit(ctx, AuditEvent{EventType: AuditResetFailure})
			return ErrResetTokenInvalid
		default:
			return backendErr(err)
		}
	}

	return s.installNewPassword(ctx, record.AccountID, newPassword, AuditResetConfirmed)
}

// ChangePassword rotates the password of a logged-in account. The current
// password is re-verified even though the caller holds a valid access token.
// All sessions close afterwards, including the calling one.
func (s *Service) ChangePassword(ctx context.Context, accessToken, currentPassword, newPassword string) error {
	if s == nil {
		return ErrServiceNotReady
	}

	claims, err := s.verifyToken(accessToken, token.TypeAccess)
	if err != nil {
		return err
	}

	active, err := s.sessions.IsActive(ctx, claims.SessionID)
	if err != nil {
		return backendErr(err)
	}
	if !active {
		return ErrSessionNotFound
	}

	acct, err := s.accounts.GetByID(ctx, claims.AccountID())
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrInvalidCredentials
		}
		return backendErr(err)
	}

	ok, err := s.hasher.Verify(ctx, currentPassword, acct.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCredentials
	}

	return s.installNewPassword(ctx, acct.ID, newPassword, AuditPasswordChanged)
}

// installNewPassword hashes, persists, clears the lockout, and revokes every
// session under ReasonPasswordChanged.
func (s *Service) installNewPassword(ctx context.Context, accountID, newPassword, auditType string) error {
	hash, err := s.hasher.Hash(ctx, newPassword)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdatePasswordHash(ctx, accountID, hash); err != nil {
		return backendErr(err)
	}
	if err := s.accounts.ClearLock(ctx, accountID); err != nil {
		return backendErr(err)
	}

	if _, _, err := s.sessions.CloseAll(ctx, accountID, session.ReasonPasswordChanged); err != nil {
		return backendErr(err)
	}

	s.metrics.Inc(MetricResetConfirmed)
	s.emit(ctx, AuditEvent{EventType: auditType, AccountID: accountID, Success: true})
	return nil
}

// enumerationDelay sleeps a bounded random interval on the unknown-email
// path.
func (s *Service) enumerationDelay(ctx context.Context) {
	min := s.config.Reset.EnumerationDelayMin
	max := s.config.Reset.EnumerationDelayMax

	delay := min
	if max > min {
		delay += time.Duration(mathrand.Int63n(int64(max - min)))
	}
	if delay <= 0 {
		return
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
