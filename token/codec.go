package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Type discriminates the three token families the codec issues. A token is
// only accepted by operations expecting its exact type.
type Type string

const (
	// TypeAccess is the short-lived bearer credential.
	TypeAccess Type = "access"
	// TypeRefresh is the long-lived credential bound to one session.
	TypeRefresh Type = "refresh"
	// TypeTemp bridges a password-verified login and its pending second
	// factor; it grants no access.
	TypeTemp Type = "temp"
)

var (
	// ErrExpired is returned when the token's exp claim has passed.
	ErrExpired = errors.New("token expired")
	// ErrInvalid covers bad signatures, malformed tokens, and unknown issuers.
	ErrInvalid = errors.New("invalid token")
	// ErrWrongType is returned when a structurally valid token carries a typ
	// claim other than the one the operation expects.
	ErrWrongType = errors.New("token type mismatch")
)

// SigningMethod selects the JWT signature algorithm.
type SigningMethod string

const (
	// MethodHS256 signs with a shared HMAC secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 key pair.
	MethodEd25519 SigningMethod = "ed25519"
)

// Config holds the key material and lifetimes for the codec.
type Config struct {
	SigningMethod SigningMethod
	// PrivateKey is the HMAC secret for hs256 or the Ed25519 private key
	// (raw 64 bytes or PEM).
	PrivateKey []byte
	// PublicKey is required for ed25519 verification (raw 32 bytes or PEM).
	PublicKey []byte
	Issuer    string

	AccessTTL  time.Duration
	RefreshTTL time.Duration
	TempTTL    time.Duration

	Leeway time.Duration

	// Now overrides the time source for issuance and validation. Nil means
	// time.Now.
	Now func() time.Time
}

// Validate checks the key material against the selected method.
func (c Config) Validate() error {
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 || c.TempTTL <= 0 {
		return errors.New("token lifetimes must be positive")
	}
	if c.Leeway < 0 || c.Leeway > 2*time.Minute {
		return errors.New("leeway must be between 0 and 2 minutes")
	}
	switch c.SigningMethod {
	case MethodHS256:
		if len(c.PrivateKey) < 32 {
			return errors.New("hs256 requires a secret of at least 32 bytes")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(c.PrivateKey); err != nil {
			return err
		}
		if _, err := parseEdPublicKey(c.PublicKey); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported signing method %q", c.SigningMethod)
	}
	return nil
}

// Claims is the payload of every token the codec issues. Roles travel only
// in access tokens; SessionID and Generation only in access and refresh.
type Claims struct {
	Roles      []string `json:"roles,omitempty"`
	SessionID  string   `json:"sid,omitempty"`
	Generation int64    `json:"gen,omitempty"`
	TokenType  Type     `json:"typ"`
	jwt.RegisteredClaims
}

// AccountID returns the sub claim.
func (c *Claims) AccountID() string { return c.Subject }

// Codec issues and verifies the access, refresh, and temp tokens. It is
// immutable after construction and safe for concurrent use.
type Codec struct {
	config Config
	now    func() time.Time
}

// NewCodec validates cfg and returns a ready Codec.
func NewCodec(cfg Config) (*Codec, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Codec{config: cfg, now: now}, nil
}

// AccessTTL reports the configured access token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.config.AccessTTL }

// IssueAccess signs a short-lived access token carrying the resolved role
// names, the owning session, and that session's generation.
func (c *Codec) IssueAccess(accountID string, roles []string, sessionID string, generation int64) (string, error) {
	return c.sign(Claims{
		Roles:      roles,
		SessionID:  sessionID,
		Generation: generation,
		TokenType:  TypeAccess,
	}, accountID, c.config.AccessTTL)
}

// IssueRefresh signs a refresh token bound to one session and generation.
func (c *Codec) IssueRefresh(accountID, sessionID string, generation int64) (string, error) {
	return c.sign(Claims{
		SessionID:  sessionID,
		Generation: generation,
		TokenType:  TypeRefresh,
	}, accountID, c.config.RefreshTTL)
}

// IssueTemp signs the short-lived token handed back when a login still owes
// its second factor.
func (c *Codec) IssueTemp(accountID string) (string, error) {
	return c.sign(Claims{TokenType: TypeTemp}, accountID, c.config.TempTTL)
}

func (c *Codec) sign(claims Claims, accountID string, ttl time.Duration) (string, error) {
	now := c.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   accountID,
		Issuer:    c.config.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	tok := jwt.NewWithClaims(c.method(), claims)
	key, err := c.signKey()
	if err != nil {
		return "", err
	}
	return tok.SignedString(key)
}

// Verify parses raw, checks the signature and registered claims, and rejects
// tokens whose typ claim differs from expected. Expiry maps to ErrExpired;
// every other defect maps to ErrInvalid or ErrWrongType.
func (c *Codec) Verify(raw string, expected Type) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method().Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	}
	if c.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.config.Leeway))
	}
	if c.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return c.verifyKey()
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrInvalid
	}
	if claims.TokenType != expected {
		return nil, ErrWrongType
	}
	if claims.Subject == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}

func (c *Codec) method() jwt.SigningMethod {
	switch c.config.SigningMethod {
	case MethodEd25519:
		return jwt.SigningMethodEdDSA
	default:
		return jwt.SigningMethodHS256
	}
}

func (c *Codec) signKey() (interface{}, error) {
	switch c.config.SigningMethod {
	case MethodEd25519:
		return parseEdPrivateKey(c.config.PrivateKey)
	default:
		return c.config.PrivateKey, nil
	}
}

func (c *Codec) verifyKey() (interface{}, error) {
	switch c.config.SigningMethod {
	case MethodEd25519:
		return parseEdPublicKey(c.config.PublicKey)
	default:
		return c.config.PrivateKey, nil
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
