package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"github.com/google/uuid"
)

// Opaque tokens (password reset, email verification) are 48 raw bytes:
// a 16-byte record UUID followed by a 32-byte secret, base64url encoded.
// Redis stores only the SHA-256 of the secret, keyed by the UUID, so a
// database dump never yields a redeemable token.
const (
	secretSize         = 32
	opaqueTokenRawSize = 16 + secretSize
)

// NewSecret returns 32 bytes of CSPRNG output.
func NewSecret() ([secretSize]byte, error) {
	var secret [secretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

// HashSecret is the storage form of an opaque-token secret.
func HashSecret(secret [secretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// EncodeOpaqueToken packs the record id and secret into the caller-facing
// token string.
func EncodeOpaqueToken(id uuid.UUID, secret [secretSize]byte) string {
	var raw [opaqueTokenRawSize]byte
	copy(raw[:16], id[:])
	copy(raw[16:], secret[:])
	return base64.RawURLEncoding.EncodeToString(raw[:])
}

// DecodeOpaqueToken splits a token string back into record id and secret.
// Malformed input returns an error without revealing which part failed.
func DecodeOpaqueToken(token string) (uuid.UUID, [secretSize]byte, error) {
	var secret [secretSize]byte

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return uuid.Nil, secret, errors.New("malformed token")
	}
	if len(raw) != opaqueTokenRawSize {
		return uuid.Nil, secret, errors.New("invalid token size")
	}

	var id uuid.UUID
	copy(id[:], raw[:16])
	copy(secret[:], raw[16:])
	return id, secret, nil
}
