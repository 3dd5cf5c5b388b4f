package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleSuperAdmin UserRole = "superAdmin"
	RoleAdmin      UserRole = "admin"
	RoleFaculty    UserRole = "faculty"
	RoleStudent    UserRole = "student"
)

// Valid reports whether r is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleFaculty, RoleStudent:
		return true
	}
	return false
}

// IsAdmin reports whether r may manage other identities.
func (r UserRole) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Identity is an authenticated principal stored in the identities table.
// Sessions are loaded separately and are only mutated through the session store.
type Identity struct {
	ID             string         `db:"id" json:"id"`
	Email          string         `db:"email" json:"email"`
	PasswordHash   string         `db:"password_hash" json:"-"`
	Name           string         `db:"name" json:"name"`
	Role           UserRole       `db:"role" json:"role"`
	InstitutionRef *string        `db:"institution_ref" json:"institution_ref,omitempty"`
	Active         bool           `db:"active" json:"active"`
	ProfileData    types.JSONText `db:"profile" json:"-"`
	Sessions       []Session      `db:"-" json:"-"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// Public returns the identity without secrets or sessions.
func (i *Identity) Public() UserInfo {
	info := UserInfo{
		ID:             i.ID,
		Name:           i.Name,
		Email:          i.Email,
		Role:           i.Role,
		InstitutionRef: i.InstitutionRef,
		Active:         i.Active,
	}
	if profile, err := DecodeProfile(i.Role, i.ProfileData); err == nil {
		info.Profile = profile
	}
	return info
}

// Clone returns a deep copy that is safe to hand to callers.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	clone := *i
	if i.InstitutionRef != nil {
		ref := *i.InstitutionRef
		clone.InstitutionRef = &ref
	}
	if i.ProfileData != nil {
		clone.ProfileData = append(types.JSONText(nil), i.ProfileData...)
	}
	if i.Sessions != nil {
		clone.Sessions = append([]Session(nil), i.Sessions...)
	}
	return &clone
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Email          string      `json:"email"`
	Role           UserRole    `json:"role"`
	InstitutionRef *string     `json:"institution_ref,omitempty"`
	Active         bool        `json:"active"`
	Profile        RoleProfile `json:"profile,omitempty"`
}

// UnmarshalJSON picks the concrete profile type from the role.
func (u *UserInfo) UnmarshalJSON(data []byte) error {
	type plain UserInfo
	var raw struct {
		plain
		Profile json.RawMessage `json:"profile,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	profile, err := DecodeProfile(raw.Role, types.JSONText(raw.Profile))
	if err != nil {
		return err
	}
	*u = UserInfo(raw.plain)
	u.Profile = profile
	return nil
}

// RoleProfile is the role-specific payload carried next to the common identity fields.
type RoleProfile interface {
	ProfileRole() UserRole
}

// AdminProfile holds administrator specific attributes.
type AdminProfile struct {
	Designation string `json:"designation,omitempty"`
}

// ProfileRole implements RoleProfile.
func (AdminProfile) ProfileRole() UserRole { return RoleAdmin }

// FacultyProfile holds faculty specific attributes.
type FacultyProfile struct {
	EmployeeCode  string `json:"employee_code" validate:"required"`
	DepartmentRef string `json:"department_ref" validate:"required"`
	Designation   string `json:"designation,omitempty"`
}

// ProfileRole implements RoleProfile.
func (FacultyProfile) ProfileRole() UserRole { return RoleFaculty }

// StudentProfile holds student specific attributes.
type StudentProfile struct {
	EnrollmentNo string `json:"enrollment_no" validate:"required"`
	CourseRef    string `json:"course_ref" validate:"required"`
	Semester     int    `json:"semester" validate:"omitempty,min=1,max=12"`
}

// ProfileRole implements RoleProfile.
func (StudentProfile) ProfileRole() UserRole { return RoleStudent }

// EncodeProfile serialises a role profile for storage. A missing profile is
// stored as JSON null so the column never holds SQL NULL.
func EncodeProfile(profile RoleProfile) (types.JSONText, error) {
	if profile == nil {
		return types.JSONText("null"), nil
	}
	raw, err := json.Marshal(profile)
	if err != nil {
		return nil, fmt.Errorf("encode %s profile: %w", profile.ProfileRole(), err)
	}
	return types.JSONText(raw), nil
}

// DecodeProfile reads the stored profile payload for the given role.
// Super admins carry no profile. SQL NULL scans as {} and is treated the same as null.
func DecodeProfile(role UserRole, raw types.JSONText) (RoleProfile, error) {
	if len(raw) == 0 || string(raw) == "null" || string(raw) == "{}" {
		return nil, nil
	}
	switch role {
	case RoleAdmin:
		var p AdminProfile
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode admin profile: %w", err)
		}
		return p, nil
	case RoleFaculty:
		var p FacultyProfile
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode faculty profile: %w", err)
		}
		return p, nil
	case RoleStudent:
		var p StudentProfile
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode student profile: %w", err)
		}
		return p, nil
	default:
		return nil, nil
	}
}

// UserFilter captures filtering criteria for listing identities.
type UserFilter struct {
	Role      *UserRole
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// ErrEmailTaken is returned by repositories when the email is already registered.
var ErrEmailTaken = errors.New("email already registered")
