package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/campus-admin-api/internal/models"
)

const (
	identityColumns = `id, email, password_hash, name, role, institution_ref, active, profile, created_at, updated_at`
	sessionColumns  = `id, user_id, refresh_token_hash, ip_address, user_agent, browser, os, device_class, created_at, last_used`

	uniqueViolation = "23505"
)

// IdentityRepository provides database access for identities, their sessions and audit logs.
type IdentityRepository struct {
	db *sqlx.DB
}

// NewIdentityRepository creates a new instance of IdentityRepository.
func NewIdentityRepository(db *sqlx.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// Ping verifies the database connection.
func (r *IdentityRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// FindByEmail returns an identity by email address.
func (r *IdentityRepository) FindByEmail(ctx context.Context, email string) (*models.Identity, error) {
	const query = `SELECT ` + identityColumns + ` FROM identities WHERE email = $1 LIMIT 1`
	var identity models.Identity
	if err := r.db.GetContext(ctx, &identity, query, strings.ToLower(email)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find identity by email: %w", err)
	}
	return &identity, nil
}

// FindByID returns an identity by identifier.
func (r *IdentityRepository) FindByID(ctx context.Context, id string) (*models.Identity, error) {
	const query = `SELECT ` + identityColumns + ` FROM identities WHERE id = $1 LIMIT 1`
	var identity models.Identity
	if err := r.db.GetContext(ctx, &identity, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find identity by id: %w", err)
	}
	return &identity, nil
}

// Create inserts a new identity.
func (r *IdentityRepository) Create(ctx context.Context, identity *models.Identity) error {
	if identity.ID == "" {
		identity.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = now
	}
	identity.UpdatedAt = now
	identity.Email = strings.ToLower(identity.Email)

	const query = `INSERT INTO identities (id, email, password_hash, name, role, institution_ref, active, profile, created_at, updated_at) VALUES (:id, :email, :password_hash, :name, :role, :institution_ref, :active, :profile, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, identity); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return models.ErrEmailTaken
		}
		return fmt.Errorf("create identity: %w", err)
	}
	return nil
}

// SetActive toggles whether the identity may authenticate.
func (r *IdentityRepository) SetActive(ctx context.Context, id string, active bool, updatedAt time.Time) error {
	const query = `UPDATE identities SET active = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, active, updatedAt)
	if err != nil {
		return fmt.Errorf("set identity active: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdatePassword updates the stored password hash.
func (r *IdentityRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	const query = `UPDATE identities SET password_hash = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, passwordHash, updatedAt)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List returns identities based on filters with total count.
func (r *IdentityRepository) List(ctx context.Context, filter models.UserFilter) ([]models.Identity, int, error) {
	baseQuery := `FROM identities WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Role != nil {
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)+1))
		args = append(args, *filter.Role)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(email) LIKE $%d OR LOWER(name) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"email":      true,
		"name":       true,
		"created_at": true,
		"updated_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	page, pageSize := normalisePage(filter.Page, filter.PageSize)
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", identityColumns, baseQuery, sortBy, sortOrder, pageSize, offset)

	var identities []models.Identity
	if err := r.db.SelectContext(ctx, &identities, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list identities: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count identities: %w", err)
	}

	return identities, total, nil
}

// AppendSession stores a new session for the identity.
func (r *IdentityRepository) AppendSession(ctx context.Context, session *models.Session) error {
	const query = `INSERT INTO identity_sessions (` + sessionColumns + `) VALUES (:id, :user_id, :refresh_token_hash, :ip_address, :user_agent, :browser, :os, :device_class, :created_at, :last_used)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("append session: %w", err)
	}
	return nil
}

// FindSession returns one session of the identity.
func (r *IdentityRepository) FindSession(ctx context.Context, userID, sessionID string) (*models.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM identity_sessions WHERE user_id = $1 AND id = $2 LIMIT 1`
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, userID, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &session, nil
}

// ListSessions returns all sessions of the identity, most recently used first.
func (r *IdentityRepository) ListSessions(ctx context.Context, userID string) ([]models.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM identity_sessions WHERE user_id = $1 ORDER BY last_used DESC`
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, userID); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// ReplaceSession swaps the session oldID for next in a single conditional write.
// The row only changes when it still carries expectedHash, so of two concurrent
// rotations of the same session exactly one reports true.
func (r *IdentityRepository) ReplaceSession(ctx context.Context, userID, oldID, expectedHash string, next *models.Session) (bool, error) {
	const query = `UPDATE identity_sessions
SET id = $4, refresh_token_hash = $5, last_used = GREATEST(last_used, $6)
WHERE user_id = $1 AND id = $2 AND refresh_token_hash = $3`
	res, err := r.db.ExecContext(ctx, query, userID, oldID, expectedHash, next.ID, next.RefreshTokenHash, next.LastUsed)
	if err != nil {
		return false, fmt.Errorf("replace session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("replace session rows: %w", err)
	}
	return n == 1, nil
}

// PruneSessions removes sessions unused since cutoff, keeping the session named by keepID.
func (r *IdentityRepository) PruneSessions(ctx context.Context, userID string, cutoff time.Time, keepID string) (int64, error) {
	const query = `DELETE FROM identity_sessions WHERE user_id = $1 AND last_used < $2 AND id <> $3`
	res, err := r.db.ExecContext(ctx, query, userID, cutoff, keepID)
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// RemoveSession deletes one session. It reports whether a row was removed.
func (r *IdentityRepository) RemoveSession(ctx context.Context, userID, sessionID string) (bool, error) {
	const query = `DELETE FROM identity_sessions WHERE user_id = $1 AND id = $2`
	res, err := r.db.ExecContext(ctx, query, userID, sessionID)
	if err != nil {
		return false, fmt.Errorf("remove session: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// RemoveOtherSessions deletes every session of the identity except keepID (empty removes all).
func (r *IdentityRepository) RemoveOtherSessions(ctx context.Context, userID, keepID string) (int64, error) {
	const query = `DELETE FROM identity_sessions WHERE user_id = $1 AND id <> $2`
	res, err := r.db.ExecContext(ctx, query, userID, keepID)
	if err != nil {
		return 0, fmt.Errorf("remove other sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CreateAuditLog stores an audit log entry.
func (r *IdentityRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, user_id, action, resource, resource_id, old_values, new_values, ip_address, user_agent, created_at) VALUES (:id, :user_id, :action, :resource, :resource_id, :old_values, :new_values, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

func normalisePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
