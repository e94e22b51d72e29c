package model

import "time"

// Role is the closed set of roles a user can hold.  The value is stored
// verbatim in the users table and embedded into access tokens at issuance
// time, so a token carries the role the user had when it was signed, not
// necessarily the current one.
type Role string

const (
	RoleUser   Role = "USER"
	RoleAuthor Role = "AUTHOR"
	RoleAdmin  Role = "ADMIN"
)

// ParseRole maps a raw string onto a known role.  The second return value
// reports whether the input named a valid role.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleUser, RoleAuthor, RoleAdmin:
		return Role(s), true
	}
	return "", false
}

// Status describes whether an account may authenticate.  Only ACTIVE users
// can log in or redeem refresh tokens.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
	StatusBanned   Status = "BANNED"
)

// ParseStatus maps a raw string onto a known account status.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusActive, StatusInactive, StatusBanned:
		return Status(s), true
	}
	return "", false
}

// User mirrors the 'users' table.  Accounts are never hard-deleted by this
// service; DeletedAt records a soft delete.
type User struct {
	ID           uint64
	Email        string
	Username     string
	PasswordHash string
	Role         Role
	Status       Status
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// RefreshToken mirrors the 'refresh_tokens' table.  One row exists per live
// refresh credential.  The Token column is backfilled right after insertion
// because the signed token must embed the row's own id; a row is deleted
// exactly once, when it is rotated, revoked or swept after expiry.
type RefreshToken struct {
	ID        uint64
	UserID    uint64
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}
