package models

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest creates a student or faculty identity.
type RegisterRequest struct {
	Role           UserRole        `json:"role" validate:"required,oneof=student faculty"`
	Name           string          `json:"name" validate:"required,max=120"`
	Email          string          `json:"email" validate:"required,email"`
	Password       string          `json:"password" validate:"required,min=8,max=72"`
	InstitutionRef *string         `json:"institution_ref,omitempty"`
	Student        *StudentProfile `json:"student,omitempty" validate:"required_if=Role student"`
	Faculty        *FacultyProfile `json:"faculty,omitempty" validate:"required_if=Role faculty"`
}

// ChangePasswordRequest payload for updating password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
}

// UpdateStatusRequest toggles whether an identity may authenticate.
type UpdateStatusRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// AuthResponse wraps the identity returned by login, register and verify.
type AuthResponse struct {
	User UserInfo `json:"user"`
}
