// Package auth authenticates API callers of the access-schedule service.
package auth

// Role represents a caller role for authorization purposes.
type Role string

const (
	// RoleAdmin may manage rules and run access checks.
	RoleAdmin Role = "admin"
	// RoleGuard may only run access checks. UI guards and edge functions
	// use guard keys.
	RoleGuard Role = "guard"
)

// IsValid returns true if the role is a known valid role.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleGuard:
		return true
	default:
		return false
	}
}

// Permits reports whether a caller holding r may act as required.
// Admin implies guard.
func (r Role) Permits(required Role) bool {
	if r == RoleAdmin {
		return true
	}
	return r == required
}

// Key is a configured API key.
type Key struct {
	// Name is a human-readable label for this key.
	Name string
	// Hash is the stored hash (Argon2id PHC format or "sha256:<hex>").
	Hash string
	// Role is granted to callers presenting this key.
	Role Role
}

// Caller is an authenticated API caller.
type Caller struct {
	Name string
	Role Role
	// Local is set for loopback callers that skipped key checks.
	Local bool
}
