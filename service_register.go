package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/catequesis/authcore/internal"
	"github.com/catequesis/authcore/internal/stores"
)

// Register creates an account in StatusPendingVerification and emails a
// single-use verification link. The password is policy-checked and hashed
// before the store is touched, so a duplicate identifier never short-circuits
// the expensive path.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	if s == nil {
		return nil, ErrServiceNotReady
	}

	hash, err := s.hasher.Hash(ctx, req.Password)
	if err != nil {
		return nil, err
	}

	acct, err := s.accounts.Create(ctx, CreateAccountInput{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Status:       StatusPendingVerification,
		Roles:        req.Roles,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateAccount) {
			s.metrics.Inc(MetricRegisterDuplicate)
			return nil, ErrDuplicateAccount
		}
		return nil, backendErr(err)
	}

	verifyToken, err := s.issueVerification(ctx, acct.ID)
	if err != nil {
		return nil, err
	}

	s.metrics.Inc(MetricRegisterSuccess)
	s.emit(ctx, AuditEvent{EventType: AuditRegister, AccountID: acct.ID, Success: true})

	s.sendMail(ctx, req.Email,
		"Verify your email address",
		fmt.Sprintf("Welcome, %s. Use this token to verify your email address: %s", req.Username, verifyToken),
	)

	return &RegisterResult{AccountID: acct.ID, Status: acct.Status}, nil
}

// VerifyEmail redeems a verification token and activates the account. Tokens
// are single use; a second redemption fails with ErrVerificationTokenInvalid.
func (s *Service) VerifyEmail(ctx context.Context, verificationToken string) error {
	if s == nil {
		return ErrServiceNotReady
	}

	id, secret, err := internal.DecodeOpaqueToken(verificationToken)
	if err != nil {
		return ErrVerificationTokenInvalid
	}

	record, err := s.verifications.Consume(ctx, id.String(), internal.HashSecret(secret))
	if err != nil {
		switch {
		case errors.Is(err, stores.ErrNotFound), errors.Is(err, stores.ErrSecretMismatch):
			return ErrVerificationTokenInvalid
		default:
			return backendErr(err)
		}
	}

	if err := s.accounts.UpdateStatus(ctx, record.AccountID, StatusActive); err != nil {
		return backendErr(err)
	}

	s.metrics.Inc(MetricEmailVerified)
	s.emit(ctx, AuditEvent{EventType: AuditEmailVerified, AccountID: record.AccountID, Success: true})
	return nil
}

// ResendVerification issues a fresh verification token for an account still
// pending verification and emails it. Already-verified accounts are a no-op
// success, so the endpoint reveals nothing about account state.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	if s == nil {
		return ErrServiceNotReady
	}

	acct, err := s.accounts.GetByIdentifier(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil
		}
		return backendErr(err)
	}
	if acct.Status != StatusPendingVerification {
		return nil
	}

	verifyToken, err := s.issueVerification(ctx, acct.ID)
	if err != nil {
		return err
	}

	s.sendMail(ctx, acct.Email,
		"Verify your email address",
		"Use this token to verify your email address: "+verifyToken,
	)
	return nil
}

func (s *Service) issueVerification(ctx context.Context, accountID string) (string, error) {
	secret, err := internal.NewSecret()
	if err != nil {
		return "", err
	}
	tokenID := uuid.New()

	record := &stores.Record{
		AccountID:  accountID,
		SecretHash: internal.HashSecret(secret),
		ExpiresAt:  s.clock.Now().Add(s.config.Verify.TokenTTL).Unix(),
	}
	if err := s.verifications.Issue(ctx, tokenID.String(), record, s.config.Verify.TokenTTL); err != nil {
		return "", backendErr(err)
	}

	return internal.EncodeOpaqueToken(tokenID, secret), nil
}
