package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-admin-api/internal/models"
	appErrors "github.com/noah-isme/campus-admin-api/pkg/errors"
)

type sessionRepository interface {
	AppendSession(ctx context.Context, session *models.Session) error
	FindSession(ctx context.Context, userID, sessionID string) (*models.Session, error)
	ListSessions(ctx context.Context, userID string) ([]models.Session, error)
	ReplaceSession(ctx context.Context, userID, oldID, expectedHash string, next *models.Session) (bool, error)
	PruneSessions(ctx context.Context, userID string, cutoff time.Time, keepID string) (int64, error)
	RemoveSession(ctx context.Context, userID, sessionID string) (bool, error)
	RemoveOtherSessions(ctx context.Context, userID, keepID string) (int64, error)
}

// SessionStore is the only writer of an identity's session list.
type SessionStore struct {
	repo      sessionRepository
	retention time.Duration
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewSessionStore constructs a SessionStore. A non-positive retention uses models.DefaultSessionRetention.
func NewSessionStore(repo sessionRepository, retention time.Duration, metrics *MetricsService, logger *zap.Logger) *SessionStore {
	if retention <= 0 {
		retention = models.DefaultSessionRetention
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionStore{repo: repo, retention: retention, metrics: metrics, logger: logger, now: time.Now}
}

// WithClock overrides the clock used for pruning cutoffs.
func (s *SessionStore) WithClock(now func() time.Time) *SessionStore {
	s.now = now
	return s
}

// Retention returns the configured idle window.
func (s *SessionStore) Retention() time.Duration {
	return s.retention
}

// Append stores a new session for the identity.
func (s *SessionStore) Append(ctx context.Context, session *models.Session) error {
	if err := s.repo.AppendSession(ctx, session); err != nil {
		return storageFailure(err, "failed to append session")
	}
	return nil
}

// FindByID loads one session. A missing session is ErrSessionNotFound.
func (s *SessionStore) FindByID(ctx context.Context, userID, sessionID string) (*models.Session, error) {
	session, err := s.repo.FindSession(ctx, userID, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrSessionNotFound
		}
		return nil, storageFailure(err, "failed to load session")
	}
	return session, nil
}

// List returns the identity's sessions, most recently used first.
func (s *SessionStore) List(ctx context.Context, userID string) ([]models.Session, error) {
	sessions, err := s.repo.ListSessions(ctx, userID)
	if err != nil {
		return nil, storageFailure(err, "failed to list sessions")
	}
	return sessions, nil
}

// Replace swaps oldID for next in one conditional write keyed on expectedHash.
// Losing a concurrent rotation for the same session yields ErrRefreshReplayed.
func (s *SessionStore) Replace(ctx context.Context, userID, oldID, expectedHash string, next *models.Session) error {
	replaced, err := s.repo.ReplaceSession(ctx, userID, oldID, expectedHash, next)
	if err != nil {
		return storageFailure(err, "failed to replace session")
	}
	if !replaced {
		return appErrors.ErrRefreshReplayed
	}
	return nil
}

// Prune removes sessions idle for longer than the retention window, never touching keepID.
func (s *SessionStore) Prune(ctx context.Context, userID, keepID string) (int64, error) {
	cutoff := s.now().UTC().Add(-s.retention)
	removed, err := s.repo.PruneSessions(ctx, userID, cutoff, keepID)
	if err != nil {
		return 0, storageFailure(err, "failed to prune sessions")
	}
	if removed > 0 {
		s.metrics.AddSessionsPruned(removed)
		s.logger.Debug("pruned idle sessions", zap.String("user_id", userID), zap.Int64("removed", removed))
	}
	return removed, nil
}

// RemoveByID deletes one session. A session that does not exist is ErrSessionNotFound.
func (s *SessionStore) RemoveByID(ctx context.Context, userID, sessionID string) error {
	removed, err := s.repo.RemoveSession(ctx, userID, sessionID)
	if err != nil {
		return storageFailure(err, "failed to remove session")
	}
	if !removed {
		return appErrors.ErrSessionNotFound
	}
	return nil
}

// RemoveOthers deletes every session except keepID. An empty keepID removes all of them.
func (s *SessionStore) RemoveOthers(ctx context.Context, userID, keepID string) (int64, error) {
	removed, err := s.repo.RemoveOtherSessions(ctx, userID, keepID)
	if err != nil {
		return 0, storageFailure(err, "failed to remove sessions")
	}
	return removed, nil
}

func storageFailure(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrStorageFailure.Code, appErrors.ErrStorageFailure.Status, message)
}
