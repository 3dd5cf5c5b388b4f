package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// ErrSecretTooLong is returned for secrets bcrypt would silently truncate.
var ErrSecretTooLong = errors.New("secret exceeds 72 bytes")

// Hasher hashes and verifies passwords and refresh-token secrets using bcrypt.
// Plaintext secrets must never be logged or persisted.
type Hasher struct {
	cost int

	decoyOnce sync.Once
	decoy     []byte
}

// NewHasher returns a Hasher with the given bcrypt cost, clamped to the valid range.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{cost: cost}
}

// Hash produces a salted bcrypt hash suitable for storage.
func (h *Hasher) Hash(secret string) (string, error) {
	if len(secret) > 72 {
		return "", ErrSecretTooLong
	}
	b, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether secret matches the stored hash.
func (h *Hasher) Verify(secret, hashed string) bool {
	if hashed == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(secret)) == nil
}

// Decoy spends the work of one Verify against a hash no caller knows the secret of,
// so an unknown account costs as much as a wrong password.
func (h *Hasher) Decoy(secret string) {
	h.decoyOnce.Do(func() {
		seed, err := NewSecret()
		if err != nil {
			seed = "decoy"
		}
		h.decoy, _ = bcrypt.GenerateFromPassword([]byte(seed), h.cost)
	})
	_ = bcrypt.CompareHashAndPassword(h.decoy, []byte(secret))
}

// NewSecret returns 32 random bytes encoded as URL-safe base64 (43 characters).
func NewSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
