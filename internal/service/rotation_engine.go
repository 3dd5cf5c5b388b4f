package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-admin-api/internal/models"
	appErrors "github.com/noah-isme/campus-admin-api/pkg/errors"
	"github.com/noah-isme/campus-admin-api/pkg/security"
)

// AuthenticateRequest carries the two cookies and the caller's device.
type AuthenticateRequest struct {
	AccessToken  string
	RefreshToken string
	Device       models.DeviceFingerprint
}

// AuthenticateResult is attached to the request once it is authenticated.
// Tokens is only set when the request went through a rotation and cookies must be re-issued.
type AuthenticateResult struct {
	Identity *models.Identity
	Decoded  models.DecodedToken
	Tokens   *models.TokenPair
}

// Rotated reports whether new cookies must be written.
func (r *AuthenticateResult) Rotated() bool {
	return r != nil && r.Tokens != nil
}

// RotationEngine decides per request between the access-token fast path and a refresh rotation.
type RotationEngine struct {
	repo     identityReader
	sessions *SessionStore
	cache    *IdentityCache
	codec    *security.TokenCodec
	hasher   *security.Hasher
	audit    *AuditDispatcher
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
}

// NewRotationEngine wires the engine. cache may be nil, in which case the fast path reads repo directly.
func NewRotationEngine(repo identityReader, sessions *SessionStore, cache *IdentityCache, codec *security.TokenCodec, hasher *security.Hasher, audit *AuditDispatcher, metrics *MetricsService, logger *zap.Logger) *RotationEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cache == nil {
		cache = NewIdentityCache(nil, repo, 0, logger)
	}
	return &RotationEngine{
		repo:     repo,
		sessions: sessions,
		cache:    cache,
		codec:    codec,
		hasher:   hasher,
		audit:    audit,
		metrics:  metrics,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock used for session timestamps.
func (e *RotationEngine) WithClock(now func() time.Time) *RotationEngine {
	e.now = now
	return e
}

// Authenticate runs the state machine for one request.
func (e *RotationEngine) Authenticate(ctx context.Context, req AuthenticateRequest) (*AuthenticateResult, error) {
	if req.AccessToken == "" && req.RefreshToken == "" {
		return nil, e.reject(ctx, appErrors.ErrMissingCredentials, "", "", req.Device)
	}

	if req.AccessToken != "" {
		if claims, err := e.codec.Verify(req.AccessToken, models.TokenAccess); err == nil {
			return e.fastPath(ctx, claims, req.Device)
		}
	}

	if req.RefreshToken == "" {
		return nil, e.reject(ctx, appErrors.ErrTokenInvalid, "", "", req.Device)
	}
	return e.Rotate(ctx, req.RefreshToken, req.Device)
}

// fastPath never writes to the session store.
func (e *RotationEngine) fastPath(ctx context.Context, claims *models.TokenClaims, device models.DeviceFingerprint) (*AuthenticateResult, error) {
	identity, err := e.cache.Load(ctx, claims.SubjectID())
	if err != nil {
		return nil, e.reject(ctx, identityLoadError(err), claims.SubjectID(), claims.SessionID, device)
	}
	if !identity.Active {
		return nil, e.reject(ctx, appErrors.ErrInactiveAccount, identity.ID, claims.SessionID, device)
	}

	e.metrics.RecordAuthOutcome(OutcomeFastPath)
	return &AuthenticateResult{
		Identity: identity,
		Decoded:  models.DecodedToken{ID: identity.ID, SessionID: claims.SessionID, Role: identity.Role},
	}, nil
}

// Rotate redeems a refresh token: the old session is atomically replaced by a new one and a fresh pair is minted.
func (e *RotationEngine) Rotate(ctx context.Context, refreshToken string, device models.DeviceFingerprint) (*AuthenticateResult, error) {
	claims, err := e.codec.Verify(refreshToken, models.TokenRefresh)
	if err != nil {
		return nil, e.reject(ctx, appErrors.ErrTokenInvalid, "", "", device)
	}
	userID, sessionID := claims.SubjectID(), claims.SessionID

	identity, err := e.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, e.reject(ctx, identityLoadError(err), userID, sessionID, device)
	}
	if !identity.Active {
		return nil, e.reject(ctx, appErrors.ErrInactiveAccount, userID, sessionID, device)
	}

	current, err := e.sessions.FindByID(ctx, userID, sessionID)
	if err != nil {
		return nil, e.reject(ctx, err, userID, sessionID, device)
	}
	if !device.SameDevice(current.Device()) {
		return nil, e.reject(ctx, appErrors.ErrDeviceMismatch, userID, sessionID, device)
	}
	if !e.hasher.Verify(claims.Secret, current.RefreshTokenHash) {
		return nil, e.reject(ctx, appErrors.ErrRefreshReplayed, userID, sessionID, device)
	}

	now := e.now()
	lastUsed := now
	if current.LastUsed.After(lastUsed) {
		lastUsed = current.LastUsed
	}
	next := &models.Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		IP:          current.IP,
		UserAgent:   current.UserAgent,
		Browser:     current.Browser,
		OS:          current.OS,
		DeviceClass: current.DeviceClass,
		CreatedAt:   current.CreatedAt,
		LastUsed:    lastUsed,
	}
	pair, err := e.mint(identity, next)
	if err != nil {
		return nil, e.reject(ctx, err, userID, sessionID, device)
	}

	if _, err := e.sessions.Prune(ctx, userID, current.ID); err != nil {
		e.logger.Warn("session prune failed", zap.String("user_id", userID), zap.Error(err))
	}

	if err := e.sessions.Replace(ctx, userID, current.ID, current.RefreshTokenHash, next); err != nil {
		return nil, e.reject(ctx, err, userID, sessionID, device)
	}

	e.metrics.RecordAuthOutcome(OutcomeRotated)
	e.audit.Record(ctx, AuditEvent{
		UserID:     userID,
		Action:     models.AuditActionTokenRotate,
		ResourceID: next.ID,
		Details:    map[string]interface{}{"previous_session": current.ID},
		Device:     device,
	})

	identity.PasswordHash = ""
	return &AuthenticateResult{
		Identity: identity,
		Decoded:  models.DecodedToken{ID: userID, SessionID: next.ID, Role: identity.Role},
		Tokens:   pair,
	}, nil
}

// IssueSession creates a brand new session for identity on device and returns its token pair.
func (e *RotationEngine) IssueSession(ctx context.Context, identity *models.Identity, device models.DeviceFingerprint) (*models.TokenPair, *models.Session, error) {
	now := e.now()
	session := &models.Session{
		ID:          uuid.NewString(),
		UserID:      identity.ID,
		IP:          device.IP,
		UserAgent:   device.UserAgent,
		Browser:     device.Browser,
		OS:          device.OS,
		DeviceClass: device.DeviceClass,
		CreatedAt:   now,
		LastUsed:    now,
	}
	pair, err := e.mint(identity, session)
	if err != nil {
		return nil, nil, err
	}
	if err := e.sessions.Append(ctx, session); err != nil {
		e.logger.Error("failed to persist session", zap.String("user_id", identity.ID), zap.Error(err))
		return nil, nil, err
	}
	if _, err := e.sessions.Prune(ctx, identity.ID, session.ID); err != nil {
		e.logger.Warn("session prune failed", zap.String("user_id", identity.ID), zap.Error(err))
	}
	return pair, session, nil
}

// VerifyRefresh checks a refresh token's signature and expiry only.
func (e *RotationEngine) VerifyRefresh(refreshToken string) (*models.TokenClaims, error) {
	claims, err := e.codec.Verify(refreshToken, models.TokenRefresh)
	if err != nil {
		return nil, appErrors.ErrTokenInvalid
	}
	return claims, nil
}

// mint issues both tokens bound to session and stores the refresh secret's hash on it.
func (e *RotationEngine) mint(identity *models.Identity, session *models.Session) (*models.TokenPair, error) {
	subject := models.TokenSubject{SubjectID: identity.ID, SessionID: session.ID, Role: identity.Role}
	access, err := e.codec.IssueAccess(subject)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue access token")
	}
	refresh, err := e.codec.IssueRefresh(subject)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue refresh token")
	}
	hash, err := e.hasher.Hash(refresh.Secret)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash refresh secret")
	}
	session.RefreshTokenHash = hash
	return &models.TokenPair{
		AccessToken:      access.Value,
		RefreshToken:     refresh.Value,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

// reject logs, counts and audits a failed authentication and returns err unchanged.
func (e *RotationEngine) reject(ctx context.Context, err error, userID, sessionID string, device models.DeviceFingerprint) error {
	kind := appErrors.FromError(err)
	fields := []zap.Field{zap.String("kind", kind.Code), zap.String("ip", device.IP)}
	if userID != "" {
		fields = append(fields, zap.String("user_id", userID))
	}
	if sessionID != "" {
		fields = append(fields, zap.String("session_id", sessionID))
	}

	if !appErrors.IsAuthFailure(err) {
		e.logger.Error("authentication aborted", append(fields, zap.Error(err))...)
		e.metrics.RecordAuthOutcome(kind.Code)
		return err
	}

	e.logger.Warn("authentication rejected", fields...)
	e.metrics.RecordAuthOutcome(kind.Code)
	if kind.Code != appErrors.ErrMissingCredentials.Code {
		e.audit.Record(ctx, AuditEvent{
			UserID:     userID,
			Action:     models.AuditActionAuthRejected,
			ResourceID: sessionID,
			Details:    map[string]interface{}{"kind": kind.Code},
			Device:     device,
		})
	}
	return err
}

func identityLoadError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrUnauthorized, "identity no longer exists")
	}
	return storageFailure(err, "failed to load identity")
}
