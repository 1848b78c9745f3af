package model

import "strings"

// Role scopes which events a terminal receives and tags the responses it sends.
type Role string

const (
	RoleAll   Role = "ALL"
	RoleLeft  Role = "LEFT"
	RoleRight Role = "RIGHT"
)

// Roles lists every valid role in display order.
var Roles = []Role{RoleAll, RoleLeft, RoleRight}

// NormalizeRole maps free-form input onto the closed role set. Only a
// case-insensitive exact match of LEFT or RIGHT survives; anything else,
// including the empty string, becomes ALL.
func NormalizeRole(s string) Role {
	switch strings.ToUpper(s) {
	case string(RoleLeft):
		return RoleLeft
	case string(RoleRight):
		return RoleRight
	default:
		return RoleAll
	}
}

// IsValidRole reports whether s names a role exactly (case-insensitive),
// without falling back to ALL.
func IsValidRole(s string) bool {
	switch strings.ToUpper(s) {
	case string(RoleAll), string(RoleLeft), string(RoleRight):
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }
