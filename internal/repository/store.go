package repository

import (
	"context"
	"time"

	"github.com/noah-isme/campus-admin-api/internal/models"
)

// IdentityStore is the persistence contract shared by the Postgres and in-memory backends.
type IdentityStore interface {
	Ping(ctx context.Context) error

	FindByEmail(ctx context.Context, email string) (*models.Identity, error)
	FindByID(ctx context.Context, id string) (*models.Identity, error)
	Create(ctx context.Context, identity *models.Identity) error
	SetActive(ctx context.Context, id string, active bool, updatedAt time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
	List(ctx context.Context, filter models.UserFilter) ([]models.Identity, int, error)

	AppendSession(ctx context.Context, session *models.Session) error
	FindSession(ctx context.Context, userID, sessionID string) (*models.Session, error)
	ListSessions(ctx context.Context, userID string) ([]models.Session, error)
	// ReplaceSession swaps oldID for next only while the stored hash still equals expectedHash.
	ReplaceSession(ctx context.Context, userID, oldID, expectedHash string, next *models.Session) (bool, error)
	PruneSessions(ctx context.Context, userID string, cutoff time.Time, keepID string) (int64, error)
	RemoveSession(ctx context.Context, userID, sessionID string) (bool, error)
	RemoveOtherSessions(ctx context.Context, userID, keepID string) (int64, error)

	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

var (
	_ IdentityStore = (*IdentityRepository)(nil)
	_ IdentityStore = (*MemoryIdentityRepository)(nil)
)
