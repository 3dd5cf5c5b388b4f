package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/campus-admin-api/internal/models"
)

var (
	// ErrInvalidToken is returned when a token fails signature, expiry or claim checks.
	ErrInvalidToken = errors.New("invalid token")
	// ErrSharedSigningKey is returned when access and refresh keys are equal or empty.
	ErrSharedSigningKey = errors.New("access and refresh tokens require distinct non-empty keys")
)

// TokenConfig configures the token codec.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      []string
}

// TokenCodec issues and verifies HS256 access and refresh tokens.
// Each kind is signed with its own key so one can never stand in for the other.
type TokenCodec struct {
	accessKey  []byte
	refreshKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	audience   []string
	now        func() time.Time
}

// NewTokenCodec validates the configuration and builds a codec.
func NewTokenCodec(cfg TokenConfig) (*TokenCodec, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" || cfg.AccessSecret == cfg.RefreshSecret {
		return nil, ErrSharedSigningKey
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	return &TokenCodec{
		accessKey:  []byte(cfg.AccessSecret),
		refreshKey: []byte(cfg.RefreshSecret),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock returns a copy of the codec using now as its time source.
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	clone := *c
	clone.now = now
	return &clone
}

// AccessTTL returns the lifetime of access tokens.
func (c *TokenCodec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the lifetime of refresh tokens.
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

// IssueAccess signs a short-lived access token.
func (c *TokenCodec) IssueAccess(subject models.TokenSubject) (models.IssuedToken, error) {
	return c.issue(subject, models.TokenAccess, "")
}

// IssueRefresh signs a long-lived refresh token carrying a fresh random secret.
// The secret is returned so its hash can be stored on the session.
func (c *TokenCodec) IssueRefresh(subject models.TokenSubject) (models.IssuedToken, error) {
	secret, err := NewSecret()
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("generate refresh secret: %w", err)
	}
	return c.issue(subject, models.TokenRefresh, secret)
}

// Verify checks signature, expiry, issuer, audience and kind.
func (c *TokenCodec) Verify(token string, kind models.TokenKind) (*models.TokenClaims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	key, err := c.keyFor(kind)
	if err != nil {
		return nil, err
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}
	if len(c.audience) > 0 {
		opts = append(opts, jwt.WithAudience(c.audience[0]))
	}

	parsed, err := jwt.ParseWithClaims(token, &models.TokenClaims{}, func(t *jwt.Token) (interface{}, error) {
		return key, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*models.TokenClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Kind != kind || claims.Subject == "" || claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	if kind == models.TokenRefresh && claims.Secret == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (c *TokenCodec) issue(subject models.TokenSubject, kind models.TokenKind, secret string) (models.IssuedToken, error) {
	key, err := c.keyFor(kind)
	if err != nil {
		return models.IssuedToken{}, err
	}
	ttl := c.accessTTL
	if kind == models.TokenRefresh {
		ttl = c.refreshTTL
	}

	issuedAt := c.now()
	expiresAt := issuedAt.Add(ttl)
	claims := &models.TokenClaims{
		SessionID: subject.SessionID,
		Role:      subject.Role,
		Kind:      kind,
		Secret:    secret,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    c.issuer,
			Subject:   subject.SubjectID,
			Audience:  c.audience,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return models.IssuedToken{Value: signed, Secret: secret, ExpiresAt: expiresAt}, nil
}

func (c *TokenCodec) keyFor(kind models.TokenKind) ([]byte, error) {
	switch kind {
	case models.TokenAccess:
		return c.accessKey, nil
	case models.TokenRefresh:
		return c.refreshKey, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidToken, kind)
	}
}
