package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/campus-admin-api/internal/models"
	"github.com/noah-isme/campus-admin-api/internal/repository"
	"github.com/noah-isme/campus-admin-api/pkg/security"
)

const testPassword = "correct-horse-battery"

var (
	laptop = models.DeviceFingerprint{IP: "10.0.0.5", UserAgent: "Mozilla/5.0 (X11; Linux x86_64) Chrome/120.0", Browser: "Chrome", OS: "Linux", DeviceClass: "desktop"}
	phone  = models.DeviceFingerprint{IP: "10.0.0.9", UserAgent: "Mozilla/5.0 (iPhone) Mobile Safari/604.1", Browser: "Safari", OS: "iOS", DeviceClass: "mobile"}
)

// countingRepo counts session-store writes and identity reads on top of the in-memory repository.
type countingRepo struct {
	*repository.MemoryIdentityRepository
	writes      int32
	finds       int32
	findSessErr error
}

func (r *countingRepo) FindByID(ctx context.Context, id string) (*models.Identity, error) {
	atomic.AddInt32(&r.finds, 1)
	return r.MemoryIdentityRepository.FindByID(ctx, id)
}

func (r *countingRepo) FindSession(ctx context.Context, userID, sessionID string) (*models.Session, error) {
	if r.findSessErr != nil {
		return nil, r.findSessErr
	}
	return r.MemoryIdentityRepository.FindSession(ctx, userID, sessionID)
}

func (r *countingRepo) AppendSession(ctx context.Context, session *models.Session) error {
	atomic.AddInt32(&r.writes, 1)
	return r.MemoryIdentityRepository.AppendSession(ctx, session)
}

func (r *countingRepo) ReplaceSession(ctx context.Context, userID, oldID, expectedHash string, next *models.Session) (bool, error) {
	atomic.AddInt32(&r.writes, 1)
	return r.MemoryIdentityRepository.ReplaceSession(ctx, userID, oldID, expectedHash, next)
}

func (r *countingRepo) PruneSessions(ctx context.Context, userID string, cutoff time.Time, keepID string) (int64, error) {
	atomic.AddInt32(&r.writes, 1)
	return r.MemoryIdentityRepository.PruneSessions(ctx, userID, cutoff, keepID)
}

func (r *countingRepo) RemoveSession(ctx context.Context, userID, sessionID string) (bool, error) {
	atomic.AddInt32(&r.writes, 1)
	return r.MemoryIdentityRepository.RemoveSession(ctx, userID, sessionID)
}

func (r *countingRepo) RemoveOtherSessions(ctx context.Context, userID, keepID string) (int64, error) {
	atomic.AddInt32(&r.writes, 1)
	return r.MemoryIdentityRepository.RemoveOtherSessions(ctx, userID, keepID)
}

func (r *countingRepo) resetCounters() {
	atomic.StoreInt32(&r.writes, 0)
	atomic.StoreInt32(&r.finds, 0)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	clock    *testClock
	repo     *countingRepo
	hasher   *security.Hasher
	codec    *security.TokenCodec
	sessions *SessionStore
	engine   *RotationEngine
	audit    *AuditDispatcher
	auth     *AuthService
	users    *UserService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	repo := &countingRepo{MemoryIdentityRepository: repository.NewMemoryIdentityRepository()}

	codec, err := security.NewTokenCodec(security.TokenConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "campus",
	})
	require.NoError(t, err)
	codec = codec.WithClock(clock.Now)

	hasher := security.NewHasher(bcrypt.MinCost)
	sessions := NewSessionStore(repo, models.DefaultSessionRetention, nil, nil).WithClock(clock.Now)
	// never started, so every entry is written synchronously
	audit := NewAuditDispatcher(repo, nil, nil, AuditConfig{})
	engine := NewRotationEngine(repo, sessions, nil, codec, hasher, audit, nil, nil).WithClock(clock.Now)

	return &harness{
		clock:    clock,
		repo:     repo,
		hasher:   hasher,
		codec:    codec,
		sessions: sessions,
		engine:   engine,
		audit:    audit,
		auth:     NewAuthService(repo, engine, sessions, hasher, nil, audit, nil, nil),
		users:    NewUserService(repo, sessions, nil, nil, audit, nil),
	}
}

func (h *harness) seedIdentity(t *testing.T, email string, role models.UserRole) *models.Identity {
	t.Helper()
	hash, err := h.hasher.Hash(testPassword)
	require.NoError(t, err)
	identity := &models.Identity{Email: email, Name: "Test " + string(role), Role: role, PasswordHash: hash, Active: true}
	require.NoError(t, h.repo.Create(context.Background(), identity))
	return identity
}

func (h *harness) login(t *testing.T, email string, device models.DeviceFingerprint) *models.TokenPair {
	t.Helper()
	result, err := h.auth.Login(context.Background(), models.LoginRequest{Email: email, Password: testPassword}, device)
	require.NoError(t, err)
	require.NotNil(t, result.Tokens)
	return result.Tokens
}

func (h *harness) sessionIDOf(t *testing.T, refreshToken string) string {
	t.Helper()
	claims, err := h.codec.Verify(refreshToken, models.TokenRefresh)
	require.NoError(t, err)
	return claims.SessionID
}

func (h *harness) auditActions() []string {
	logs := h.repo.AuditLogs()
	actions := make([]string, 0, len(logs))
	for _, l := range logs {
		actions = append(actions, l.Action)
	}
	return actions
}
