package authcore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/catequesis/authcore/internal/stores"
	"github.com/catequesis/authcore/password"
	"github.com/catequesis/authcore/session"
	"github.com/catequesis/authcore/token"
)

// Service is the authentication engine. Construct it through [Builder]; all
// methods are safe for concurrent use afterwards.
type Service struct {
	config Config
	redis  redis.UniversalClient

	accounts AccountStore
	sessions *session.Store
	codec    *token.Codec
	hasher   *password.Hasher
	totp     *totpManager

	resets        *stores.ResetStore
	verifications *stores.VerificationStore

	limiter RateLimiter
	lockout *lockoutPolicy
	mailer  EmailSender
	devices DeviceDetector
	clock   Clock

	audit   *auditDispatcher
	metrics *Metrics

	// dummyHash keeps the unknown-identifier path as expensive as a real
	// verification so response timing does not reveal account existence.
	dummyHash string
}

// Close flushes and stops the audit dispatcher. Safe to call more than once.
func (s *Service) Close() {
	if s == nil {
		return
	}
	s.audit.Close()
}

// Metrics exposes the counter set for scraping. Nil-safe.
func (s *Service) Metrics() *Metrics {
	if s == nil {
		return nil
	}
	return s.metrics
}

// MetricsSnapshot copies the current counters; metric exporters poll this.
func (s *Service) MetricsSnapshot() MetricsSnapshot {
	if s == nil {
		return MetricsSnapshot{}
	}
	return s.metrics.Snapshot()
}

// DroppedAuditEvents reports events shed by the dispatcher under load.
func (s *Service) DroppedAuditEvents() uint64 {
	if s == nil {
		return 0
	}
	return s.audit.Dropped()
}

func (s *Service) emit(ctx context.Context, event AuditEvent) {
	event.Timestamp = s.clock.Now()
	if event.IP == "" {
		event.IP = clientIPFromContext(ctx)
	}
	s.audit.Emit(ctx, event)
}

// verifyToken maps codec errors onto the service's sentinel set. Type
// confusion is reported as a plain invalid token; callers learn nothing
// about what kind of token they actually presented.
func (s *Service) verifyToken(raw string, expected token.Type) (*token.Claims, error) {
	claims, err := s.codec.Verify(raw, expected)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrExpired):
			return nil, ErrTokenExpired
		default:
			return nil, ErrTokenInvalid
		}
	}
	return claims, nil
}

// sessionLifetime picks the TTL for a new session.
func (s *Service) sessionLifetime(rememberMe bool) time.Duration {
	if rememberMe {
		return s.config.Session.RememberMeLifetime
	}
	return s.config.Session.Lifetime
}

// sendMail delivers best-effort: failures are logged and audited but never
// fail the calling flow, so a broken SMTP relay cannot block registration or
// password resets.
func (s *Service) sendMail(ctx context.Context, to, subject, body string) {
	if s.mailer == nil {
		return
	}
	if err := s.mailer.Send(ctx, to, subject, body); err != nil {
		log.Printf("authcore: mail delivery to %s failed: %v", to, err)
	}
}

func backendErr(err error) error {
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
}
