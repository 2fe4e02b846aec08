package authcore

import (
	"context"

	"github.com/catequesis/authcore/token"
)

// TwoFactorEnrollment is the material a caller needs to finish TOTP setup:
// the raw secret to persist on the account, its base32 form for manual entry,
// and the otpauth URI for QR display.
type TwoFactorEnrollment struct {
	Secret       []byte
	SecretBase32 string
	ProvisionURI string
}

// BeginTwoFactorEnrollment generates a fresh TOTP secret for the calling
// account. Nothing is persisted here: the caller shows the QR code, collects
// a first code, confirms it with ConfirmTwoFactorEnrollment, and only then
// stores the secret and sets TwoFactorEnabled.
func (s *Service) BeginTwoFactorEnrollment(ctx context.Context, accessToken string) (*TwoFactorEnrollment, error) {
	if s == nil {
		return nil, ErrServiceNotReady
	}

	claims, err := s.authorizeSessionAccess(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	secret, encoded, err := s.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}

	return &TwoFactorEnrollment{
		Secret:       secret,
		SecretBase32: encoded,
		ProvisionURI: s.totp.ProvisionURI(encoded, claims.AccountID()),
	}, nil
}

// ConfirmTwoFactorEnrollment checks the first code against a pending secret.
// ErrTwoFactorInvalid means the authenticator and server disagree; the caller
// must not persist the secret.
func (s *Service) ConfirmTwoFactorEnrollment(ctx context.Context, accessToken string, secret []byte, code string) error {
	if s == nil {
		return ErrServiceNotReady
	}

	if _, err := s.verifyToken(accessToken, token.TypeAccess); err != nil {
		return err
	}
	if len(secret) == 0 {
		return ErrTwoFactorNotEnrolled
	}

	match, _, err := s.totp.VerifyCode(secret, code, s.clock.Now())
	if err != nil {
		return err
	}
	if !match {
		return ErrTwoFactorInvalid
	}
	return nil
}
