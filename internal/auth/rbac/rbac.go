// Package rbac resolves role-based permissions from a static table. There is
// no store access: resolution is a pure map lookup so it can sit on the hot
// path of every authenticated request.
package rbac

import "github.com/cataloghq/authcore/internal/auth/domain"

// Permission identifies one guarded operation.
type Permission struct {
	Resource string
	Action   string
}

// minRole maps each permission to the minimum role required. Roles at or
// above the minimum qualify.
var minRole = map[Permission]domain.Role{
	{Resource: "products", Action: "read"}:     domain.RoleViewer,
	{Resource: "products", Action: "create"}:   domain.RoleEditor,
	{Resource: "products", Action: "update"}:   domain.RoleEditor,
	{Resource: "products", Action: "delete"}:   domain.RoleAdmin,
	{Resource: "categories", Action: "read"}:   domain.RoleViewer,
	{Resource: "categories", Action: "create"}: domain.RoleEditor,
	{Resource: "categories", Action: "update"}: domain.RoleEditor,
	{Resource: "categories", Action: "delete"}: domain.RoleAdmin,
	{Resource: "brands", Action: "read"}:       domain.RoleViewer,
	{Resource: "brands", Action: "create"}:     domain.RoleEditor,
	{Resource: "brands", Action: "update"}:     domain.RoleEditor,
	{Resource: "brands", Action: "delete"}:     domain.RoleAdmin,
	{Resource: "quotes", Action: "read"}:       domain.RoleAdmin,
	{Resource: "quotes", Action: "update"}:     domain.RoleAdmin,
	{Resource: "quotes", Action: "delete"}:     domain.RoleAdmin,
	{Resource: "accounts", Action: "read"}:     domain.RoleAdmin,
	{Resource: "accounts", Action: "update"}:   domain.RoleAdmin,
	{Resource: "audit", Action: "read"}:        domain.RoleAdmin,
}

// allowSets grants individual roles a permission below its minimum role.
// Editors handle quote workflows day to day, so they get read/update on
// quotes without the rest of the admin surface.
var allowSets = map[Permission]map[domain.Role]struct{}{
	{Resource: "quotes", Action: "read"}: {
		domain.RoleEditor: {},
	},
	{Resource: "quotes", Action: "update"}: {
		domain.RoleEditor: {},
	},
}

// Can reports whether role may perform action on resource. Superadmin passes
// every check; unknown permissions and unknown roles are denied.
func Can(role domain.Role, resource, action string) bool {
	if role == domain.RoleSuperadmin {
		return true
	}
	if !role.Valid() {
		return false
	}

	perm := Permission{Resource: resource, Action: action}

	if min, ok := minRole[perm]; ok && role.AtLeast(min) {
		return true
	}
	if set, ok := allowSets[perm]; ok {
		if _, ok := set[role]; ok {
			return true
		}
	}
	return false
}
