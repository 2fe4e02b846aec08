package authcore

import (
	"context"
	"errors"
	"strconv"

	"github.com/catequesis/authcore/session"
	"github.com/catequesis/authcore/token"
)

// Refresh mints a new access token from a refresh token. The bound session
// must still exist, be open, and sit on the account's current generation; a
// revoked generation kills the refresh token even though its signature and
// expiry are fine. Roles are re-read from the account store, so a role change
// propagates on the next refresh.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if s == nil {
		return nil, ErrServiceNotReady
	}

	claims, err := s.verifyToken(refreshToken, token.TypeRefresh)
	if err != nil {
		s.metrics.Inc(MetricRefreshFailure)
		return nil, err
	}
	if claims.SessionID == "" {
		s.metrics.Inc(MetricRefreshFailure)
		return nil, ErrTokenInvalid
	}

	acct, err := s.accounts.GetByID(ctx, claims.AccountID())
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			s.metrics.Inc(MetricRefreshFailure)
			return nil, ErrSessionNotFound
		}
		return nil, backendErr(err)
	}
	if acct.Status != StatusActive {
		s.metrics.Inc(MetricRefreshFailure)
		s.emit(ctx, AuditEvent{EventType: AuditRefreshFailure, AccountID: acct.ID, Error: acct.Status.String()})
		return nil, ErrAccountInactive
	}

	active, err := s.sessions.IsActive(ctx, claims.SessionID)
	if err != nil {
		return nil, backendErr(err)
	}
	if !active {
		s.metrics.Inc(MetricRefreshFailure)
		s.emit(ctx, AuditEvent{EventType: AuditRefreshFailure, AccountID: acct.ID, SessionID: claims.SessionID})
		return nil, ErrSessionNotFound
	}

	if err := s.sessions.Touch(ctx, claims.SessionID); err != nil {
		return nil, backendErr(err)
	}

	access, err := s.codec.IssueAccess(acct.ID, acct.Roles, claims.SessionID, claims.Generation)
	if err != nil {
		return nil, err
	}

	s.metrics.Inc(MetricRefreshSuccess)
	s.emit(ctx, AuditEvent{
		EventType: AuditRefresh,
		AccountID: acct.ID,
		SessionID: claims.SessionID,
		Success:   true,
	})

	return &RefreshResult{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.codec.AccessTTL().Seconds()),
	}, nil
}

// Logout closes the session behind the presented access token. With all set,
// every session of the account is closed and the revocation generation is
// bumped, killing outstanding refresh tokens as well. Logout of an
// already-closed session succeeds silently.
func (s *Service) Logout(ctx context.Context, accessToken string, all bool) error {
	if s == nil {
		return ErrServiceNotReady
	}

	claims, err := s.verifyToken(accessToken, token.TypeAccess)
	if err != nil {
		return err
	}
	if claims.SessionID == "" {
		return ErrTokenInvalid
	}

	if all {
		count, _, err := s.sessions.CloseAll(ctx, claims.AccountID(), session.ReasonLogoutAll)
		if err != nil {
			return backendErr(err)
		}

		s.metrics.Inc(MetricLogoutAll)
		s.emit(ctx, AuditEvent{
			EventType: AuditLogoutAll,
			AccountID: claims.AccountID(),
			Success:   true,
			Metadata:  map[string]string{"sessions_closed": strconv.Itoa(count)},
		})
		return nil
	}

	if _, err := s.sessions.Close(ctx, claims.SessionID, session.ReasonLogout); err != nil {
		return backendErr(err)
	}

	s.metrics.Inc(MetricLogout)
	s.emit(ctx, AuditEvent{
		EventType: AuditLogout,
		AccountID: claims.AccountID(),
		SessionID: claims.SessionID,
		Success:   true,
	})
	return nil
}

// VerifyAccess validates an access token and confirms its session is still
// live. Middleware calls this on every request; it is the choke point that
// makes logout and revocation effective before token expiry.
func (s *Service) VerifyAccess(ctx context.Context, accessToken string) (*token.Claims, error) {
	if s == nil {
		return nil, ErrServiceNotReady
	}

	claims, err := s.verifyToken(accessToken, token.TypeAccess)
	if err != nil {
		return nil, err
	}
	if claims.SessionID == "" {
		return nil, ErrTokenInvalid
	}

	active, err := s.sessions.IsActive(ctx, claims.SessionID)
	if err != nil {
		return nil, backendErr(err)
	}
	if !active {
		return nil, ErrSessionNotFound
	}

	return claims, nil
}
