package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-admin-api/internal/models"
	appErrors "github.com/noah-isme/campus-admin-api/pkg/errors"
	"github.com/noah-isme/campus-admin-api/pkg/security"
)

type authIdentityRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.Identity, error)
	FindByID(ctx context.Context, id string) (*models.Identity, error)
	Create(ctx context.Context, identity *models.Identity) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
}

// AuthResult is returned by flows that may establish a session.
// Tokens is nil when no cookies should be written.
type AuthResult struct {
	User   models.UserInfo
	Tokens *models.TokenPair
}

// AuthService provides authentication use cases.
type AuthService struct {
	repo      authIdentityRepository
	engine    *RotationEngine
	sessions  *SessionStore
	hasher    *security.Hasher
	validator *validator.Validate
	audit     *AuditDispatcher
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(repo authIdentityRepository, engine *RotationEngine, sessions *SessionStore, hasher *security.Hasher, validate *validator.Validate, audit *AuditDispatcher, metrics *MetricsService, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AuthService{
		repo:      repo,
		engine:    engine,
		sessions:  sessions,
		hasher:    hasher,
		validator: validate,
		audit:     audit,
		metrics:   metrics,
		logger:    logger,
	}
}

// Login authenticates a user and opens a new session on the caller's device.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest, device models.DeviceFingerprint) (*AuthResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	identity, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.hasher.Decoy(req.Password)
			return nil, s.loginRejected(ctx, appErrors.ErrInvalidCredentials, "", device)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStorageFailure.Code, appErrors.ErrStorageFailure.Status, "failed to fetch identity")
	}

	if !s.hasher.Verify(req.Password, identity.PasswordHash) {
		return nil, s.loginRejected(ctx, appErrors.ErrInvalidCredentials, identity.ID, device)
	}

	if !identity.Active {
		return nil, s.loginRejected(ctx, appErrors.ErrInactiveAccount, identity.ID, device)
	}

	pair, session, err := s.engine.IssueSession(ctx, identity, device)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordAuthOutcome(OutcomeLogin)
	s.audit.Record(ctx, AuditEvent{
		UserID:     identity.ID,
		Action:     models.AuditActionLogin,
		ResourceID: session.ID,
		Details:    map[string]interface{}{"status": "success"},
		Device:     device,
	})

	return &AuthResult{User: identity.Public(), Tokens: pair}, nil
}

// Register creates a student or faculty identity.
// Faculty accounts require an admin actor. When an admin registers someone no session is
// opened, so the admin's own cookies stay in place; self-registration logs the new user in.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest, actor *models.Identity, device models.DeviceFingerprint) (*AuthResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid register payload")
	}

	privileged := actor != nil && actor.Active && actor.Role.IsAdmin()
	if req.Role == models.RoleFaculty && !privileged {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "faculty accounts can only be created by an administrator")
	}

	var profile models.RoleProfile
	switch req.Role {
	case models.RoleStudent:
		profile = *req.Student
	case models.RoleFaculty:
		profile = *req.Faculty
	}
	rawProfile, err := models.EncodeProfile(profile)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile")
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		if errors.Is(err, security.ErrSecretTooLong) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "password is too long")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	identity := &models.Identity{
		Email:          req.Email,
		PasswordHash:   passwordHash,
		Name:           req.Name,
		Role:           req.Role,
		InstitutionRef: req.InstitutionRef,
		Active:         true,
		ProfileData:    rawProfile,
	}
	if err := s.repo.Create(ctx, identity); err != nil {
		if errors.Is(err, models.ErrEmailTaken) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStorageFailure.Code, appErrors.ErrStorageFailure.Status, "failed to create identity")
	}

	event := AuditEvent{
		UserID:     identity.ID,
		Action:     models.AuditActionRegister,
		ResourceID: identity.ID,
		Details:    map[string]interface{}{"role": identity.Role},
		Device:     device,
	}
	if privileged {
		event.UserID = actor.ID
		s.audit.Record(ctx, event)
		return &AuthResult{User: identity.Public()}, nil
	}

	pair, _, err := s.engine.IssueSession(ctx, identity, device)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, event)
	return &AuthResult{User: identity.Public(), Tokens: pair}, nil
}

// BootstrapSuperAdmin creates the configured super admin unless the email is already
// registered, and reports whether it did. An existing account is left untouched.
func (s *AuthService) BootstrapSuperAdmin(ctx context.Context, email, password, name string) (bool, error) {
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return false, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return false, appErrors.Wrap(err, appErrors.ErrStorageFailure.Code, appErrors.ErrStorageFailure.Status, "failed to fetch identity")
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash bootstrap password")
	}
	profile, err := models.EncodeProfile(nil)
	if err != nil {
		return false, err
	}

	identity := &models.Identity{
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
		Role:         models.RoleSuperAdmin,
		Active:       true,
		ProfileData:  profile,
	}
	if err := s.repo.Create(ctx, identity); err != nil {
		if errors.Is(err, models.ErrEmailTaken) {
			return false, nil
		}
		return false, appErrors.Wrap(err, appErrors.ErrStorageFailure.Code, appErrors.ErrStorageFailure.Status, "failed to create bootstrap admin")
	}

	s.audit.Record(ctx, AuditEvent{
		UserID:     identity.ID,
		Action:     models.AuditActionBootstrap,
		ResourceID: identity.ID,
		Details:    map[string]interface{}{"role": identity.Role},
	})
	s.logger.Info("bootstrap super admin created", zap.String("user_id", identity.ID))
	return true, nil
}

// Logout removes the session named by the refresh token. Only signature and expiry are checked.
func (s *AuthService) Logout(ctx context.Context, refreshToken string, device models.DeviceFingerprint) error {
	if refreshToken == "" {
		return appErrors.ErrMissingCredentials
	}
	claims, err := s.engine.VerifyRefresh(refreshToken)
	if err != nil {
		return err
	}

	if err := s.sessions.RemoveByID(ctx, claims.SubjectID(), claims.SessionID); err != nil {
		if appErrors.IsAuthFailure(err) {
			s.logger.Warn("logout for unknown session", zap.String("user_id", claims.SubjectID()), zap.String("session_id", claims.SessionID))
		}
		return err
	}

	s.audit.Record(ctx, AuditEvent{
		UserID:     claims.SubjectID(),
		Action:     models.AuditActionLogout,
		ResourceID: claims.SessionID,
		Device:     device,
	})
	return nil
}

// ChangePassword changes the password and ends every other session of the user.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentSessionID string, req models.ChangePasswordRequest, device models.DeviceFingerprint) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid change password payload")
	}

	identity, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrStorageFailure.Code, appErrors.ErrStorageFailure.Status, "failed to load user")
	}

	if !s.hasher.Verify(req.OldPassword, identity.PasswordHash) {
		return appErrors.Clone(appErrors.ErrForbidden, "old password does not match")
	}

	newHash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	if err := s.repo.UpdatePassword(ctx, userID, newHash, time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrStorageFailure.Code, appErrors.ErrStorageFailure.Status, "failed to update password")
	}

	removed, err := s.sessions.RemoveOthers(ctx, userID, currentSessionID)
	if err != nil {
		s.logger.Warn("failed to end other sessions after password change", zap.String("user_id", userID), zap.Error(err))
	}

	s.audit.Record(ctx, AuditEvent{
		UserID:     userID,
		Action:     models.AuditActionPasswordChange,
		ResourceID: userID,
		Details:    map[string]interface{}{"sessions_ended": removed},
		Device:     device,
	})
	return nil
}

// ListSessions returns the caller's sessions, flagging the one behind the current request.
func (s *AuthService) ListSessions(ctx context.Context, userID, currentSessionID string) ([]models.SessionView, error) {
	sessions, err := s.sessions.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]models.SessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, models.SessionView{Session: session, Current: session.ID == currentSessionID})
	}
	return views, nil
}

// RevokeSession removes one of the caller's sessions.
func (s *AuthService) RevokeSession(ctx context.Context, userID, sessionID string, device models.DeviceFingerprint) error {
	if err := s.sessions.RemoveByID(ctx, userID, sessionID); err != nil {
		if appErrors.Is(err, appErrors.ErrSessionNotFound) {
			return appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return err
	}
	s.audit.Record(ctx, AuditEvent{
		UserID:     userID,
		Action:     models.AuditActionSessionRevoke,
		ResourceID: sessionID,
		Device:     device,
	})
	return nil
}

func (s *AuthService) loginRejected(ctx context.Context, err *appErrors.Error, userID string, device models.DeviceFingerprint) error {
	s.logger.Warn("login rejected", zap.String("kind", err.Code), zap.String("user_id", userID), zap.String("ip", device.IP))
	s.metrics.RecordAuthOutcome(err.Code)
	s.audit.Record(ctx, AuditEvent{
		UserID:  userID,
		Action:  models.AuditActionAuthRejected,
		Details: map[string]interface{}{"kind": err.Code, "stage": "login"},
		Device:  device,
	})
	return err
}
