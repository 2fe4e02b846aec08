package authcore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/catequesis/authcore/session"
	"github.com/catequesis/authcore/token"
)

// ListSessions returns the caller's live sessions, newest first is not
// guaranteed; callers sort as needed. The session behind the presented token
// is flagged Current.
func (s *Service) ListSessions(ctx context.Context, accessToken string) ([]SessionInfo, error) {
	if s == nil {
		return nil, ErrServiceNotReady
	}

	claims, err := s.authorizeSessionAccess(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	sessions, err := s.sessions.ListActive(ctx, claims.AccountID())
	if err != nil {
		return nil, backendErr(err)
	}

	infos := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, SessionInfo{
			ID:             sess.ID,
			CreatedAt:      time.Unix(sess.CreatedAt, 0).UTC(),
			LastActivityAt: time.Unix(sess.LastActivityAt, 0).UTC(),
			IP:             sess.IP,
			Device:         sess.Device,
			Browser:        sess.Browser,
			RememberMe:     sess.RememberMe,
			Current:        sess.ID == claims.SessionID,
		})
	}
	return infos, nil
}

// RevokeSession closes one of the caller's sessions. Targeting another
// account's session fails with ErrSessionForbidden without revealing whether
// it exists; an already-closed own session maps to ErrSessionNotFound.
func (s *Service) RevokeSession(ctx context.Context, accessToken, sessionID string) error {
	if s == nil {
		return ErrServiceNotReady
	}

	claims, err := s.authorizeSessionAccess(ctx, accessToken)
	if err != nil {
		return err
	}

	target, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrSessionNotFound
		}
		return backendErr(err)
	}
	if target.AccountID != claims.AccountID() {
		return ErrSessionForbidden
	}

	performed, err := s.sessions.Close(ctx, sessionID, session.ReasonAdminRevoked)
	if err != nil {
		return backendErr(err)
	}
	if !performed {
		return ErrSessionNotFound
	}

	s.metrics.Inc(MetricSessionRevoked)
	s.emit(ctx, AuditEvent{
		EventType: AuditSessionRevoked,
		AccountID: claims.AccountID(),
		SessionID: sessionID,
		Success:   true,
	})
	return nil
}

// RevokeAllSessions closes every session of the caller's account, including
// the one behind the presented token, and bumps the revocation generation.
func (s *Service) RevokeAllSessions(ctx context.Context, accessToken string) error {
	if s == nil {
		return ErrServiceNotReady
	}

	claims, err := s.authorizeSessionAccess(ctx, accessToken)
	if err != nil {
		return err
	}

	count, _, err := s.sessions.CloseAll(ctx, claims.AccountID(), session.ReasonAdminRevoked)
	if err != nil {
		return backendErr(err)
	}

	s.metrics.Inc(MetricSessionRevoked)
	s.emit(ctx, AuditEvent{
		EventType: AuditSessionsInvalidate,
		AccountID: claims.AccountID(),
		Success:   true,
		Metadata:  map[string]string{"sessions_closed": strconv.Itoa(count)},
	})
	return nil
}

// InvalidateSessionsForRoleChange is the server-side hook for role updates:
// it revokes every session of the account so tokens carrying the old role
// set stop refreshing. No caller token is involved; this is trusted code.
func (s *Service) InvalidateSessionsForRoleChange(ctx context.Context, accountID string) error {
	if s == nil {
		return ErrServiceNotReady
	}

	count, _, err := s.sessions.CloseAll(ctx, accountID, session.ReasonRolesChanged)
	if err != nil {
		return backendErr(err)
	}

	s.emit(ctx, AuditEvent{
		EventType: AuditSessionsInvalidate,
		AccountID: accountID,
		Success:   true,
		Metadata: map[string]string{
			"reason":          session.ReasonRolesChanged.String(),
			"sessions_closed": strconv.Itoa(count),
		},
	})
	return nil
}

// authorizeSessionAccess is the shared guard for the session management API:
// a valid access token whose own session is still live.
func (s *Service) authorizeSessionAccess(ctx context.Context, accessToken string) (*token.Claims, error) {
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
