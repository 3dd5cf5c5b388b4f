package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-admin-api/internal/models"
	"github.com/noah-isme/campus-admin-api/internal/repository"
)

func newRedisIdentityCache(t *testing.T, h *harness) (*IdentityCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cacheSvc := NewCacheService(repository.NewCacheRepository(client, nil), NewMetricsService(), time.Minute, nil, true)
	return NewIdentityCache(cacheSvc, h.repo, time.Minute, nil), mr
}

func TestIdentityCacheServesRepeatedLookups(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	identity := h.seedIdentity(t, "student@campus.edu", models.RoleStudent)
	cache, mr := newRedisIdentityCache(t, h)
	h.repo.resetCounters()

	first, err := cache.Load(ctx, identity.ID)
	require.NoError(t, err)
	second, err := cache.Load(ctx, identity.ID)
	require.NoError(t, err)

	assert.Equal(t, first.Email, second.Email)
	assert.EqualValues(t, 1, atomic.LoadInt32(&h.repo.finds))

	raw, err := mr.Get(identityKey(identity.ID))
	require.NoError(t, err)
	assert.NotContains(t, raw, identity.PasswordHash)
	assert.Empty(t, second.PasswordHash)

	cache.Invalidate(ctx, identity.ID)
	_, err = cache.Load(ctx, identity.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&h.repo.finds))
}

func TestIdentityCacheFallsBackWhenRedisIsDown(t *testing.T) {
	h := newHarness(t)
	identity := h.seedIdentity(t, "student@campus.edu", models.RoleStudent)
	cache, mr := newRedisIdentityCache(t, h)
	mr.Close()

	loaded, err := cache.Load(context.Background(), identity.ID)
	require.NoError(t, err)
	assert.Equal(t, identity.ID, loaded.ID)
}

func TestCachedFastPathSeesDeactivation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := h.seedIdentity(t, "admin@campus.edu", models.RoleAdmin)
	student := h.seedIdentity(t, "student@campus.edu", models.RoleStudent)
	cache, _ := newRedisIdentityCache(t, h)
	engine := NewRotationEngine(h.repo, h.sessions, cache, h.codec, h.hasher, nil, nil, nil).WithClock(h.clock.Now)
	users := NewUserService(h.repo, h.sessions, cache, nil, nil, nil)
	pair := h.login(t, student.Email, laptop)

	_, err := engine.Authenticate(ctx, AuthenticateRequest{AccessToken: pair.AccessToken, Device: laptop})
	require.NoError(t, err)

	_, err = users.SetActive(ctx, student.ID, models.UpdateStatusRequest{Active: boolPtr(false)}, admin, laptop)
	require.NoError(t, err)

	_, err = engine.Authenticate(ctx, AuthenticateRequest{AccessToken: pair.AccessToken, Device: laptop})
	assert.Error(t, err)
}

// staleFillRepo refills the identity cache with a pre-deactivation copy while
// sessions are being removed, like a fast-path lookup that read before the update.
type staleFillRepo struct {
	*countingRepo
	fill func()
}

func (r *staleFillRepo) RemoveOtherSessions(ctx context.Context, userID, keepID string) (int64, error) {
	r.fill()
	return r.countingRepo.RemoveOtherSessions(ctx, userID, keepID)
}

func TestDeactivationDropsConcurrentCacheRefill(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := h.seedIdentity(t, "admin@campus.edu", models.RoleAdmin)
	student := h.seedIdentity(t, "student@campus.edu", models.RoleStudent)
	cache, _ := newRedisIdentityCache(t, h)

	stale, err := h.repo.FindByID(ctx, student.ID)
	require.NoError(t, err)
	repo := &staleFillRepo{countingRepo: h.repo, fill: func() {
		require.NoError(t, cache.cache.Set(ctx, identityKey(student.ID), toCached(stale), time.Minute))
	}}
	sessions := NewSessionStore(repo, models.DefaultSessionRetention, nil, nil).WithClock(h.clock.Now)
	users := NewUserService(h.repo, sessions, cache, nil, nil, nil)

	_, err = users.SetActive(ctx, student.ID, models.UpdateStatusRequest{Active: boolPtr(false)}, admin, laptop)
	require.NoError(t, err)

	loaded, err := cache.Load(ctx, student.ID)
	require.NoError(t, err)
	assert.False(t, loaded.Active)
}
