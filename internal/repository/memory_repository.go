package repository

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/campus-admin-api/internal/models"
)

// MemoryIdentityRepository keeps identities, sessions and audit logs in process memory.
// It honours the same contract as IdentityRepository, including the conditional session replace.
type MemoryIdentityRepository struct {
	mu         sync.RWMutex
	identities map[string]*models.Identity
	byEmail    map[string]string
	sessions   map[string]map[string]models.Session
	auditLogs  []models.AuditLog
}

// NewMemoryIdentityRepository creates an empty in-memory repository.
func NewMemoryIdentityRepository() *MemoryIdentityRepository {
	return &MemoryIdentityRepository{
		identities: make(map[string]*models.Identity),
		byEmail:    make(map[string]string),
		sessions:   make(map[string]map[string]models.Session),
	}
}

// Ping always succeeds.
func (r *MemoryIdentityRepository) Ping(context.Context) error { return nil }

// FindByEmail returns an identity by email address.
func (r *MemoryIdentityRepository) FindByEmail(_ context.Context, email string) (*models.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return r.identities[id].Clone(), nil
}

// FindByID returns an identity by identifier.
func (r *MemoryIdentityRepository) FindByID(_ context.Context, id string) (*models.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	identity, ok := r.identities[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return identity.Clone(), nil
}

// Create inserts a new identity.
func (r *MemoryIdentityRepository) Create(_ context.Context, identity *models.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	email := strings.ToLower(identity.Email)
	if _, exists := r.byEmail[email]; exists {
		return models.ErrEmailTaken
	}
	if identity.ID == "" {
		identity.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = now
	}
	identity.UpdatedAt = now
	identity.Email = email
	r.identities[identity.ID] = identity.Clone()
	r.byEmail[email] = identity.ID
	return nil
}

// SetActive toggles whether the identity may authenticate.
func (r *MemoryIdentityRepository) SetActive(_ context.Context, id string, active bool, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok := r.identities[id]
	if !ok {
		return sql.ErrNoRows
	}
	identity.Active = active
	identity.UpdatedAt = updatedAt
	return nil
}

// UpdatePassword updates the stored password hash.
func (r *MemoryIdentityRepository) UpdatePassword(_ context.Context, id, passwordHash string, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok := r.identities[id]
	if !ok {
		return sql.ErrNoRows
	}
	identity.PasswordHash = passwordHash
	identity.UpdatedAt = updatedAt
	return nil
}

// List returns identities based on filters with total count.
func (r *MemoryIdentityRepository) List(_ context.Context, filter models.UserFilter) ([]models.Identity, int, error) {
	r.mu.RLock()
	matched := make([]models.Identity, 0, len(r.identities))
	search := strings.ToLower(filter.Search)
	for _, identity := range r.identities {
		if filter.Role != nil && identity.Role != *filter.Role {
			continue
		}
		if filter.Active != nil && identity.Active != *filter.Active {
			continue
		}
		if search != "" && !strings.Contains(identity.Email, search) && !strings.Contains(strings.ToLower(identity.Name), search) {
			continue
		}
		matched = append(matched, *identity.Clone())
	}
	r.mu.RUnlock()

	desc := !strings.EqualFold(filter.SortOrder, "asc")
	sort.SliceStable(matched, func(i, j int) bool {
		var less bool
		switch filter.SortBy {
		case "email":
			less = matched[i].Email < matched[j].Email
		case "name":
			less = matched[i].Name < matched[j].Name
		case "updated_at":
			less = matched[i].UpdatedAt.Before(matched[j].UpdatedAt)
		default:
			less = matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		if desc {
			return !less
		}
		return less
	})

	total := len(matched)
	page, pageSize := normalisePage(filter.Page, filter.PageSize)
	start := (page - 1) * pageSize
	if start >= total {
		return []models.Identity{}, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// AppendSession stores a new session for the identity.
func (r *MemoryIdentityRepository) AppendSession(_ context.Context, session *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.identities[session.UserID]; !ok {
		return sql.ErrNoRows
	}
	bucket, ok := r.sessions[session.UserID]
	if !ok {
		bucket = make(map[string]models.Session)
		r.sessions[session.UserID] = bucket
	}
	bucket[session.ID] = *session
	return nil
}

// FindSession returns one session of the identity.
func (r *MemoryIdentityRepository) FindSession(_ context.Context, userID, sessionID string) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[userID][sessionID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &session, nil
}

// ListSessions returns all sessions of the identity, most recently used first.
func (r *MemoryIdentityRepository) ListSessions(_ context.Context, userID string) ([]models.Session, error) {
	r.mu.RLock()
	sessions := make([]models.Session, 0, len(r.sessions[userID]))
	for _, session := range r.sessions[userID] {
		sessions = append(sessions, session)
	}
	r.mu.RUnlock()
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].LastUsed.After(sessions[j].LastUsed) })
	return sessions, nil
}

// ReplaceSession swaps oldID for next only while the stored hash still equals expectedHash.
func (r *MemoryIdentityRepository) ReplaceSession(_ context.Context, userID, oldID, expectedHash string, next *models.Session) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bucket := r.sessions[userID]
	current, ok := bucket[oldID]
	if !ok || current.RefreshTokenHash != expectedHash {
		return false, nil
	}
	replacement := current
	replacement.ID = next.ID
	replacement.RefreshTokenHash = next.RefreshTokenHash
	if next.LastUsed.After(current.LastUsed) {
		replacement.LastUsed = next.LastUsed
	}
	delete(bucket, oldID)
	bucket[replacement.ID] = replacement
	return true, nil
}

// PruneSessions removes sessions unused since cutoff, keeping the session named by keepID.
func (r *MemoryIdentityRepository) PruneSessions(_ context.Context, userID string, cutoff time.Time, keepID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for id, session := range r.sessions[userID] {
		if id != keepID && session.LastUsed.Before(cutoff) {
			delete(r.sessions[userID], id)
			removed++
		}
	}
	return removed, nil
}

// RemoveSession deletes one session. It reports whether a session was removed.
func (r *MemoryIdentityRepository) RemoveSession(_ context.Context, userID, sessionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[userID][sessionID]; !ok {
		return false, nil
	}
	delete(r.sessions[userID], sessionID)
	return true, nil
}

// RemoveOtherSessions deletes every session of the identity except keepID (empty removes all).
func (r *MemoryIdentityRepository) RemoveOtherSessions(_ context.Context, userID, keepID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for id := range r.sessions[userID] {
		if id != keepID {
			delete(r.sessions[userID], id)
			removed++
		}
	}
	return removed, nil
}

// CreateAuditLog stores an audit log entry.
func (r *MemoryIdentityRepository) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	r.auditLogs = append(r.auditLogs, *log)
	return nil
}

// AuditLogs returns a copy of the recorded audit entries.
func (r *MemoryIdentityRepository) AuditLogs() []models.AuditLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.AuditLog, len(r.auditLogs))
	copy(out, r.auditLogs)
	return out
}
