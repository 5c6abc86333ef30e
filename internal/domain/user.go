package domain

import "time"

// Role is a user's authorization level.
type Role string

const (
	RoleUser    Role = "user"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// Privileged reports whether the role may act on tasks it does not own
// and see soft-deleted tasks. Single source of truth for the check.
func (r Role) Privileged() bool {
	return r == RoleManager || r == RoleAdmin
}

// Actor is the authenticated identity performing an operation.
// Resolved by the auth middleware from a verified access token.
type Actor struct {
	ID   int64
	Role Role
}

// User is the domain entity for an account.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	Role         Role

	// sha256 hex of the current refresh token; empty when logged out
	RefreshTokenHash string

	CreatedAt time.Time
	UpdatedAt time.Time
}
