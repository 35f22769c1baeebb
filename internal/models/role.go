package models

// Role names form a fixed, closed set. There is no dynamic role registry by
// design; routing policy is keyed on these exact strings.
const (
	RolePublic     = "public"
	RoleUser       = "user"
	RoleVIP        = "vip"
	RoleDealer     = "dealer"
	RoleModerator  = "moderator"
	RoleAdmin      = "admin"
	RoleSuperadmin = "superadmin"
)

var allRoles = map[string]struct{}{
	RolePublic:     {},
	RoleUser:       {},
	RoleVIP:        {},
	RoleDealer:     {},
	RoleModerator:  {},
	RoleAdmin:      {},
	RoleSuperadmin: {},
}

// ValidRole reports whether name is a member of the closed role set.
func ValidRole(name string) bool {
	_, ok := allRoles[name]
	return ok
}

// Actor is the resolved identity of an authenticated request. It is built
// exactly once at the authentication boundary and passed by value.
type Actor struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}
