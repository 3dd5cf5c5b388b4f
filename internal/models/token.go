package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenKind distinguishes the two classes of bearer tokens.
type TokenKind string

const (
	TokenAccess  TokenKind = "access"
	TokenRefresh TokenKind = "refresh"
)

// TokenSubject is the payload bound into both token kinds.
type TokenSubject struct {
	SubjectID string
	SessionID string
	Role      UserRole
}

// TokenClaims represents the JWT payload for access and refresh tokens.
// Secret is only present on refresh tokens; its bcrypt hash is what the session stores.
type TokenClaims struct {
	SessionID string    `json:"sid"`
	Role      UserRole  `json:"role"`
	Kind      TokenKind `json:"kind"`
	Secret    string    `json:"rts,omitempty"`
	jwt.RegisteredClaims
}

// SubjectID returns the identity the token was issued to.
func (c *TokenClaims) SubjectID() string {
	return c.Subject
}

// ExpiresAtTime returns the expiry as a time value.
func (c *TokenClaims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// IssuedToken is a signed token with its metadata.
type IssuedToken struct {
	Value     string
	Secret    string
	ExpiresAt time.Time
}

// TokenPair is what gets written back to the client as cookies.
type TokenPair struct {
	AccessToken      string    `json:"-"`
	RefreshToken     string    `json:"-"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// DecodedToken is attached to authenticated requests for downstream handlers.
type DecodedToken struct {
	ID        string   `json:"id"`
	SessionID string   `json:"session_id"`
	Role      UserRole `json:"role"`
}
