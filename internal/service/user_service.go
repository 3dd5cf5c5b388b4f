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
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.Identity, int, error)
	FindByID(ctx context.Context, id string) (*models.Identity, error)
	SetActive(ctx context.Context, id string, active bool, updatedAt time.Time) error
}

// UserService handles administrative identity workflows.
type UserService struct {
	repo      userRepository
	sessions  *SessionStore
	cache     *IdentityCache
	validator *validator.Validate
	audit     *AuditDispatcher
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, sessions *SessionStore, cache *IdentityCache, validate *validator.Validate, audit *AuditDispatcher, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, sessions: sessions, cache: cache, validator: validate, audit: audit, logger: logger}
}

// List returns paginated identities and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.UserInfo, *models.Pagination, error) {
	identities, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrStorageFailure.Code, appErrors.ErrStorageFailure.Status, "failed to list users")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	users := make([]models.UserInfo, 0, len(identities))
	for i := range identities {
		users = append(users, identities[i].Public())
	}

	return users, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns an identity by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.UserInfo, error) {
	identity, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStorageFailure.Code, appErrors.ErrStorageFailure.Status, "failed to load user")
	}
	info := identity.Public()
	return &info, nil
}

// SetActive enables or disables an identity. Disabling ends every session and drops the cached
// identity so the next request is rejected even with an unexpired access token.
func (s *UserService) SetActive(ctx context.Context, id string, req models.UpdateStatusRequest, actor *models.Identity, device models.DeviceFingerprint) (*models.UserInfo, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.ID == id {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot change own status")
	}

	target, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStorageFailure.Code, appErrors.ErrStorageFailure.Status, "failed to load user")
	}
	if target.Role == models.RoleSuperAdmin && actor.Role != models.RoleSuperAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only a super admin can change a super admin")
	}

	active := *req.Active
	if err := s.repo.SetActive(ctx, id, active, time.Now().UTC()); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorageFailure.Code, appErrors.ErrStorageFailure.Status, "failed to update user status")
	}
	s.cache.Invalidate(ctx, id)

	var ended int64
	if !active {
		ended, err = s.sessions.RemoveOthers(ctx, id, "")
		if err != nil {
			s.logger.Error("failed to end sessions of deactivated user", zap.String("user_id", id), zap.Error(err))
		}
		// a fast-path read that started before the update may have refilled the cache
		s.cache.Invalidate(ctx, id)
	}

	s.audit.Record(ctx, AuditEvent{
		UserID:     actor.ID,
		Action:     models.AuditActionUserStatus,
		ResourceID: id,
		Details:    map[string]interface{}{"active": active, "sessions_ended": ended},
		Device:     device,
	})

	target.Active = active
	info := target.Public()
	return &info, nil
}
