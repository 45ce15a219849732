package domain

// Role is the closed, ordered set of admin roles. Order matters: permission
// tables express a minimum role and anything above it qualifies.
type Role string

const (
	RoleViewer     Role = "viewer"
	RoleEditor     Role = "editor"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

// roleRank gives the hierarchy position. Unknown roles rank below viewer.
var roleRank = map[Role]int{
	RoleViewer:     1,
	RoleEditor:     2,
	RoleAdmin:      3,
	RoleSuperadmin: 4,
}

// ParseRole maps a stored role name onto the closed set.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	_, ok := roleRank[r]
	return r, ok
}

func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r sits at or above min in the hierarchy. Invalid
// roles never satisfy any minimum.
func (r Role) AtLeast(min Role) bool {
	rr, ok := roleRank[r]
	if !ok {
		return false
	}
	mr, ok := roleRank[min]
	if !ok {
		return false
	}
	return rr >= mr
}

func (r Role) String() string { return string(r) }
