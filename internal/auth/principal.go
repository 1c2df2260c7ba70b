package auth

import "slices"

const (
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// Principal is the authenticated identity attached to a connection or request.
type Principal struct {
	UserID string
	Name   string
	Roles  []string
}

// HasRole reports whether the principal holds role.
func (p Principal) HasRole(role string) bool {
	return slices.Contains(p.Roles, role)
}

// IsModerator reports whether the principal may moderate chat.
func (p Principal) IsModerator() bool {
	return p.HasRole(RoleModerator) || p.HasRole(RoleAdmin)
}
