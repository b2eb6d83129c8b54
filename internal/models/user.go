package models

import "time"

// UserRole represents the roles a principal can hold.
type UserRole string

const (
	RoleStudent UserRole = "STUDENT"
	RoleTeacher UserRole = "TEACHER"
	RoleAdmin   UserRole = "ADMIN"
)

// User represents an account stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Username     string     `db:"username" json:"username"`
	Email        *string    `db:"email" json:"email,omitempty"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"fullName"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"lastLogin,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updatedAt"`
}

// Principal is the authenticated identity bound to one session.
type Principal struct {
	UserID          string     `json:"userId"`
	Username        string     `json:"username"`
	FullName        string     `json:"fullName"`
	Email           string     `json:"email,omitempty"`
	Roles           []UserRole `json:"roles"`
	AuthenticatedAt time.Time  `json:"authenticatedAt"`
}

// NewPrincipal derives a principal from a stored user.
func NewPrincipal(user *User, at time.Time) *Principal {
	p := &Principal{
		UserID:          user.ID,
		Username:        user.Username,
		FullName:        user.FullName,
		Roles:           []UserRole{user.Role},
		AuthenticatedAt: at,
	}
	if user.Email != nil {
		p.Email = *user.Email
	}
	return p
}

// HasRole reports whether the principal holds any of roles.
func (p *Principal) HasRole(roles ...UserRole) bool {
	if p == nil {
		return false
	}
	for _, held := range p.Roles {
		for _, want := range roles {
			if held == want {
				return true
			}
		}
	}
	return false
}

// IsAdmin is shorthand for HasRole(RoleAdmin).
func (p *Principal) IsAdmin() bool {
	return p.HasRole(RoleAdmin)
}
