package rbac

import (
	"testing"

	"github.com/cataloghq/authcore/internal/auth/domain"
	"github.com/stretchr/testify/require"
)

func TestSuperadminAlwaysAllowed(t *testing.T) {
	t.Parallel()

	require.True(t, Can(domain.RoleSuperadmin, "products", "delete"))
	require.True(t, Can(domain.RoleSuperadmin, "quotes", "delete"))
	// Even permissions not in the table.
	require.True(t, Can(domain.RoleSuperadmin, "unknown", "anything"))
}

func TestMinimumRoleTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		role     domain.Role
		resource string
		action   string
		want     bool
	}{
		{domain.RoleViewer, "products", "read", true},
		{domain.RoleViewer, "products", "update", false},
		{domain.RoleEditor, "products", "update", true},
		{domain.RoleEditor, "products", "delete", false},
		{domain.RoleAdmin, "products", "delete", true},
		{domain.RoleViewer, "accounts", "read", false},
		{domain.RoleAdmin, "accounts", "update", true},
	}

	for _, tc := range tests {
		got := Can(tc.role, tc.resource, tc.action)
		require.Equal(t, tc.want, got, "%s %s:%s", tc.role, tc.resource, tc.action)
	}
}

func TestEditorQuoteAllowSet(t *testing.T) {
	t.Parallel()

	// Editors sit below the quotes minimum role but carry an explicit grant
	// for read and update.
	require.True(t, Can(domain.RoleEditor, "quotes", "read"))
	require.True(t, Can(domain.RoleEditor, "quotes", "update"))
	require.False(t, Can(domain.RoleEditor, "quotes", "delete"))
	require.False(t, Can(domain.RoleViewer, "quotes", "read"))
}

func TestMonotonicInHierarchy(t *testing.T) {
	t.Parallel()

	ordered := []domain.Role{
		domain.RoleViewer,
		domain.RoleEditor,
		domain.RoleAdmin,
		domain.RoleSuperadmin,
	}

	// If a role can do something, every role above it can too.
	for perm := range minRole {
		for i, lower := range ordered {
			if !Can(lower, perm.Resource, perm.Action) {
				continue
			}
			for _, higher := range ordered[i+1:] {
				require.True(t, Can(higher, perm.Resource, perm.Action),
					"%s allowed but %s denied for %s:%s",
					lower, higher, perm.Resource, perm.Action)
			}
		}
	}
}

func TestUnknownRoleAndPermissionDenied(t *testing.T) {
	t.Parallel()

	require.False(t, Can(domain.Role("owner"), "products", "read"))
	require.False(t, Can(domain.RoleAdmin, "products", "publish"))
	require.False(t, Can(domain.RoleAdmin, "warehouse", "read"))
}
