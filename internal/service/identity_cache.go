package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-admin-api/internal/models"
)

const identityCachePrefix = "identity:"

type identityReader interface {
	FindByID(ctx context.Context, id string) (*models.Identity, error)
}

// cachedIdentity is the Redis representation of an identity. It never holds the password hash.
type cachedIdentity struct {
	ID             string          `json:"id"`
	Email          string          `json:"email"`
	Name           string          `json:"name"`
	Role           models.UserRole `json:"role"`
	InstitutionRef *string         `json:"institution_ref,omitempty"`
	Active         bool            `json:"active"`
	Profile        json.RawMessage `json:"profile,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func toCached(identity *models.Identity) cachedIdentity {
	return cachedIdentity{
		ID:             identity.ID,
		Email:          identity.Email,
		Name:           identity.Name,
		Role:           identity.Role,
		InstitutionRef: identity.InstitutionRef,
		Active:         identity.Active,
		Profile:        json.RawMessage(identity.ProfileData),
		CreatedAt:      identity.CreatedAt,
		UpdatedAt:      identity.UpdatedAt,
	}
}

func (c cachedIdentity) identity() *models.Identity {
	return &models.Identity{
		ID:             c.ID,
		Email:          c.Email,
		Name:           c.Name,
		Role:           c.Role,
		InstitutionRef: c.InstitutionRef,
		Active:         c.Active,
		ProfileData:    types.JSONText(c.Profile),
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

// IdentityCache serves identity lookups for the access-token fast path.
// Cache errors fall through to the repository; they never short-circuit a lookup.
type IdentityCache struct {
	cache  *CacheService
	repo   identityReader
	ttl    time.Duration
	logger *zap.Logger
}

// NewIdentityCache builds an IdentityCache. A nil or disabled cache reads the repository directly.
func NewIdentityCache(cache *CacheService, repo identityReader, ttl time.Duration, logger *zap.Logger) *IdentityCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentityCache{cache: cache, repo: repo, ttl: ttl, logger: logger}
}

func identityKey(id string) string {
	return identityCachePrefix + id
}

// Load returns the identity without secrets. Repository errors, including sql.ErrNoRows, are returned as is.
func (c *IdentityCache) Load(ctx context.Context, id string) (*models.Identity, error) {
	var cached cachedIdentity
	if hit, err := c.cache.Get(ctx, identityKey(id), &cached); err == nil && hit {
		return cached.identity(), nil
	}

	identity, err := c.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	identity.PasswordHash = ""

	if err := c.cache.Set(ctx, identityKey(id), toCached(identity), c.ttl); err != nil {
		c.logger.Debug("identity cache fill skipped", zap.String("user_id", id))
	}
	return identity, nil
}

// Invalidate drops the cached copy of the identity.
func (c *IdentityCache) Invalidate(ctx context.Context, id string) {
	if c == nil {
		return
	}
	_ = c.cache.Delete(ctx, identityKey(id))
}
