package authcore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/catequesis/authcore/session"
	"github.com/catequesis/authcore/token"
)

// totpGuardLua remembers the highest redeemed TOTP counter per account, so a
// sniffed code cannot be replayed within its validity window.
var totpGuardLua = redis.NewScript(`
local last = tonumber(redis.call("GET", KEYS[1]) or "-1")
if tonumber(ARGV[1]) <= last then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", tonumber(ARGV[2]))
return 1
`)

// Login authenticates with an identifier (username or email) and password.
//
// The failure order is fixed: rate limit, credential check, lock check,
// status check, second factor. Unknown identifiers and wrong passwords are
// indistinguishable in both the returned error and response timing.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if s == nil {
		return nil, ErrServiceNotReady
	}
	start := s.clock.Now()

	ip := clientIPFromContext(ctx)
	if err := s.checkLoginRate(ctx, ip); err != nil {
		return nil, err
	}

	acct, err := s.accounts.GetByIdentifier(ctx, req.Identifier)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			// Burn a real hash so the miss costs as much as a mismatch.
			_, _ = s.hasher.Verify(ctx, req.Password, s.dummyHash)
			s.metrics.Inc(MetricLoginFailure)
			s.emit(ctx, AuditEvent{
				EventType: AuditLoginFailure,
				IP:        ip,
				Metadata:  map[string]string{"identifier": req.Identifier},
			})
			return nil, ErrInvalidCredentials
		}
		return nil, backendErr(err)
	}

	locked, err := s.lockout.isLocked(ctx, acct)
	if err != nil {
		return nil, err
	}
	if locked {
		s.emit(ctx, AuditEvent{EventType: AuditLoginFailure, AccountID: acct.ID, IP: ip, Error: "locked"})
		return nil, ErrAccountLocked
	}

	if err := s.checkLoginStatus(acct); err != nil {
		return nil, err
	}

	ok, err := s.hasher.Verify(ctx, req.Password, acct.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.recordLoginFailure(ctx, acct.ID, ip)
	}

	if acct.TwoFactorEnabled {
		if req.TwoFactorCode == "" {
			return s.requireSecondFactor(ctx, acct)
		}
		if err := s.checkSecondFactor(ctx, acct, req.TwoFactorCode, ip); err != nil {
			return nil, err
		}
	}

	result, err := s.finishLogin(ctx, acct, req.RememberMe, req.Password)
	if err != nil {
		return nil, err
	}
	s.metrics.Observe(MetricLoginLatency, s.clock.Now().Sub(start))
	return result, nil
}

// CompleteTwoFactor finishes a login that Login paused with Requires2FA. The
// temp token proves the password already passed; only the TOTP code is
// checked here.
func (s *Service) CompleteTwoFactor(ctx context.Context, tempToken, code string, rememberMe bool) (*LoginResult, error) {
	if s == nil {
		return nil, ErrServiceNotReady
	}

	claims, err := s.verifyToken(tempToken, token.TypeTemp)
	if err != nil {
		return nil, err
	}

	acct, err := s.accounts.GetByID(ctx, claims.AccountID())
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, backendErr(err)
	}

	locked, err := s.lockout.isLocked(ctx, acct)
	if err != nil {
		return nil, err
	}
	if locked {
		return nil, ErrAccountLocked
	}
	if err := s.checkLoginStatus(acct); err != nil {
		return nil, err
	}
	if !acct.TwoFactorEnabled {
		return nil, ErrTwoFactorNotEnrolled
	}

	if err := s.checkSecondFactor(ctx, acct, code, clientIPFromContext(ctx)); err != nil {
		return nil, err
	}

	return s.finishLogin(ctx, acct, rememberMe, "")
}

func (s *Service) checkLoginRate(ctx context.Context, ip string) error {
	key := "login:" + ip
	if ip == "" {
		key = "login:unknown"
	}

	allowed, err := s.limiter.Allow(ctx, key, s.config.Rate.LoginMax, s.config.Rate.LoginWindow)
	if err != nil {
		return err
	}
	if !allowed {
		s.metrics.Inc(MetricLoginRateLimited)
		s.emit(ctx, AuditEvent{EventType: AuditLoginRateLimited, IP: ip})
		return ErrLoginRateLimited
	}
	return nil
}

func (s *Service) checkLoginStatus(acct *Account) error {
	switch acct.Status {
	case StatusInactive:
		return ErrAccountInactive
	case StatusPendingVerification:
		return ErrAccountUnverified
	default:
		return nil
	}
}

// recordLoginFailure counts the miss and reports either the lockout or the
// generic credential error.
func (s *Service) recordLoginFailure(ctx context.Context, accountID, ip string) error {
	s.metrics.Inc(MetricLoginFailure)

	lockedNow, err := s.lockout.registerFailure(ctx, accountID)
	if err != nil {
		return err
	}
	if lockedNow {
		s.metrics.Inc(MetricAccountLocked)
		s.emit(ctx, AuditEvent{EventType: AuditAccountLocked, AccountID: accountID, IP: ip})
		return ErrAccountLocked
	}

	s.emit(ctx, AuditEvent{EventType: AuditLoginFailure, AccountID: accountID, IP: ip})
	return ErrInvalidCredentials
}

func (s *Service) requireSecondFactor(ctx context.Context, acct *Account) (*LoginResult, error) {
	temp, err := s.codec.IssueTemp(acct.ID)
	if err != nil {
		return nil, err
	}

	s.metrics.Inc(MetricTwoFactorRequired)
	s.emit(ctx, AuditEvent{EventType: AuditTwoFactorRequired, AccountID: acct.ID, Success: true})

	return &LoginResult{Requires2FA: true, TempToken: temp}, nil
}

// checkSecondFactor verifies the TOTP code and records the redeemed counter.
// A wrong code counts toward the lockout threshold like a wrong password.
func (s *Service) checkSecondFactor(ctx context.Context, acct *Account, code, ip string) error {
	if len(acct.TOTPSecret) == 0 {
		return ErrTwoFactorNotEnrolled
	}

	match, counter, err := s.totp.VerifyCode(acct.TOTPSecret, code, s.clock.Now())
	if err != nil {
		return err
	}
	if match {
		fresh, guardErr := s.markTOTPCounter(ctx, acct.ID, counter)
		if guardErr != nil {
			return guardErr
		}
		if fresh {
			return nil
		}
	}

	s.metrics.Inc(MetricTwoFactorFailure)
	s.emit(ctx, AuditEvent{EventType: AuditTwoFactorFailure, AccountID: acct.ID, IP: ip})

	if _, err := s.lockout.registerFailure(ctx, acct.ID); err != nil {
		return err
	}
	return ErrTwoFactorInvalid
}

func (s *Service) markTOTPCounter(ctx context.Context, accountID string, counter int64) (bool, error) {
	key := s.config.Session.RedisPrefix + ":2fa:" + accountID
	window := time.Duration(s.config.TOTP.Period*(2*s.config.TOTP.Skew+2)) * time.Second

	fresh, err := totpGuardLua.Run(ctx, s.redis,
		[]string{key},
		strconv.FormatInt(counter, 10), window.Milliseconds(),
	).Int64()
	if err != nil {
		return false, backendErr(err)
	}
	return fresh == 1, nil
}

// finishLogin runs the success path shared by Login and CompleteTwoFactor:
// reset failure state, opportunistically upgrade the stored hash, open a
// session, and mint the token pair.
func (s *Service) finishLogin(ctx context.Context, acct *Account, rememberMe bool, plaintext string) (*LoginResult, error) {
	if err := s.lockout.registerSuccess(ctx, acct.ID); err != nil {
		return nil, err
	}

	if plaintext != "" {
		s.maybeUpgradeHash(ctx, acct, plaintext)
	}

	now := s.clock.Now()
	device := s.devices.Parse(userAgentFromContext(ctx))

	sess := &session.Session{
		ID:             session.NewID(),
		AccountID:      acct.ID,
		Active:         true,
		RememberMe:     rememberMe,
		CreatedAt:      now.Unix(),
		LastActivityAt: now.Unix(),
		IP:             clientIPFromContext(ctx),
		Device:         device.Device,
		Browser:        device.Browser,
	}
	if err := s.sessions.Create(ctx, sess, s.sessionLifetime(rememberMe)); err != nil {
		return nil, backendErr(err)
	}
	s.metrics.Inc(MetricSessionCreated)

	access, err := s.codec.IssueAccess(acct.ID, acct.Roles, sess.ID, sess.Generation)
	if err != nil {
		return nil, err
	}
	refresh, err := s.codec.IssueRefresh(acct.ID, sess.ID, sess.Generation)
	if err != nil {
		return nil, err
	}

	s.metrics.Inc(MetricLoginSuccess)
	s.emit(ctx, AuditEvent{
		EventType: AuditLoginSuccess,
		AccountID: acct.ID,
		SessionID: sess.ID,
		Success:   true,
	})

	return &LoginResult{
		AccessToken:            access,
		RefreshToken:           refresh,
		TokenType:              "Bearer",
		ExpiresIn:              int64(s.codec.AccessTTL().Seconds()),
		SessionID:              sess.ID,
		PasswordChangeRequired: acct.RequiresPasswordChange,
	}, nil
}

// maybeUpgradeHash rehashes under current parameters when the stored hash is
// weaker. Best effort: a failure here never fails the login.
func (s *Service) maybeUpgradeHash(ctx context.Context, acct *Account, plaintext string) {
	upgrade, err := s.hasher.NeedsUpgrade(acct.PasswordHash)
	if err != nil || !upgrade {
		return
	}
	rehashed, err := s.hasher.Hash(ctx, plaintext)
	if err != nil {
		return
	}
	_ = s.accounts.UpdatePasswordHash(ctx, acct.ID, rehashed)
}
