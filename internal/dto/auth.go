package dto

import "github.com/noah-isme/campus-gateway/internal/models"

// LoginRequest carries either credentials or a session resume token.
type LoginRequest struct {
	Username string `json:"username" validate:"required_without=Token,max=64"`
	Password string `json:"password" validate:"required_with=Username"`
	Token    string `json:"token" validate:"required_without=Username"`
}

// LoginResponse is returned on a successful login.
type LoginResponse struct {
	User         UserInfo `json:"user"`
	SessionToken string   `json:"sessionToken"`
	ExpiresIn    int64    `json:"expiresIn"`
}

// LogoutResponse confirms the session returned to the unauthenticated state.
type LogoutResponse struct {
	Message string `json:"message"`
}

// RegisterRequest creates a student account together with its enrollment profile.
type RegisterRequest struct {
	Username      string `json:"username" validate:"required,min=3,max=64,alphanum"`
	Password      string `json:"password" validate:"required,min=8,max=128"`
	FullName      string `json:"fullName" validate:"required,max=128"`
	Email         string `json:"email" validate:"omitempty,email"`
	StudentNumber string `json:"studentNumber" validate:"required,max=32"`
	AdmissionYear int    `json:"admissionYear" validate:"required,gte=1900,lte=2100"`
}

// UpdateUserRequest changes the caller's own account attributes.
type UpdateUserRequest struct {
	FullName        *string `json:"fullName" validate:"omitempty,min=1,max=128"`
	Email           *string `json:"email" validate:"omitempty,email"`
	CurrentPassword string  `json:"currentPassword" validate:"required_with=NewPassword"`
	NewPassword     string  `json:"newPassword" validate:"omitempty,min=8,max=128"`
}

// UserInfo is the public projection of a user.
type UserInfo struct {
	ID       string          `json:"id"`
	Username string          `json:"username"`
	Email    string          `json:"email,omitempty"`
	FullName string          `json:"fullName"`
	Role     models.UserRole `json:"role"`
	Active   bool            `json:"active"`
}

// NewUserInfo maps a stored user to its public projection.
func NewUserInfo(user *models.User) UserInfo {
	info := UserInfo{
		ID:       user.ID,
		Username: user.Username,
		FullName: user.FullName,
		Role:     user.Role,
		Active:   user.Active,
	}
	if user.Email != nil {
		info.Email = *user.Email
	}
	return info
}
