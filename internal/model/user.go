package model

import "time"

// RoleAdmin is the only role; every account manages the catalogue.
const RoleAdmin = "ADMIN"

// User represents an administrator record as stored in the `users`
// table.  There are no json tags: handlers build their own responses so
// that PasswordHash never leaves the process.
//
// Fields:
//
//	ID           - primary key identifier of the user.
//	Username     - unique login name, stored lower-case.
//	PasswordHash - bcrypt hashed password.
//	Role         - role name (ADMIN).
//	IsActive     - disabled accounts cannot log in.
type User struct {
	ID           uint64    // users.id
	Username     string    // users.username
	PasswordHash string    // users.password_hash
	Role         string    // users.role
	IsActive     bool      // users.is_active
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// RefreshToken models an entry in the `refresh_tokens` table.  The plain
// token is never stored; only its SHA-256 hash.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
