package permission

import (
	"reflect"
	"testing"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	r, err := NewDefaultResolver()
	if err != nil {
		t.Fatalf("default resolver: %v", err)
	}
	return r
}

func TestPrimaryRoleRespectsPrecedence(t *testing.T) {
	r := newTestResolver(t)

	tests := []struct {
		name  string
		roles []string
		want  string
		found bool
	}{
		{name: "empty", roles: nil, found: false},
		{name: "unknown only", roles: []string{"Auditor"}, found: false},
		{name: "single", roles: []string{RoleNameViewer}, want: RoleNameViewer, found: true},
		{name: "user and admin", roles: []string{RoleNameUser, RoleNameAdministrator}, want: RoleNameAdministrator, found: true},
		{name: "counter staff over user", roles: []string{RoleNameUser, RoleNameCounterStaff, RoleNameViewer}, want: RoleNameCounterStaff, found: true},
		{name: "unknown ignored", roles: []string{"Auditor", RoleNameManager}, want: RoleNameManager, found: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := r.PrimaryRole(tc.roles)
			if ok != tc.found || got != tc.want {
				t.Fatalf("PrimaryRole(%v) = %q,%v want %q,%v", tc.roles, got, ok, tc.want, tc.found)
			}
		})
	}
}

func TestPermissionsForEqualsPrimaryRoleTableEntry(t *testing.T) {
	r := newTestResolver(t)
	table := DefaultRoleTable()

	sets := [][]string{
		{RoleNameAdministrator},
		{RoleNameViewer, RoleNameManager},
		{RoleNameUser, RoleNameCounterStaff},
		{RoleNameUser},
		{RoleNameViewer},
	}

	for _, roles := range sets {
		primary, ok := r.PrimaryRole(roles)
		if !ok {
			t.Fatalf("expected primary role for %v", roles)
		}
		got := r.PermissionsFor(roles)
		want := inCatalogOrder(table[primary])
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("PermissionsFor(%v) = %v, want %v", roles, got, want)
		}
	}
}

func TestPermissionsForEmptyWithoutPrimaryRole(t *testing.T) {
	r := newTestResolver(t)

	if got := r.PermissionsFor(nil); len(got) != 0 {
		t.Fatalf("expected no permissions for empty roles, got %v", got)
	}
	if got := r.PermissionsFor([]string{"Auditor", "root"}); len(got) != 0 {
		t.Fatalf("expected no permissions for unrecognized roles, got %v", got)
	}
}

func TestLowerRolesContributeNothing(t *testing.T) {
	// CounterStaff may create installation logs; Manager also may. Viewer may not
	// download packages but User may. A Viewer+User set resolves to User only.
	r := newTestResolver(t)

	if r.HasPermission([]string{RoleNameViewer, RoleNameUser}, InstallLogsCreate) {
		t.Fatal("User must not gain CounterStaff permissions")
	}
	if !r.HasPermission([]string{RoleNameViewer, RoleNameUser}, PackagesDownload) {
		t.Fatal("User primary role should grant package download")
	}
	if r.HasPermission([]string{RoleNameManager, RoleNameAdministrator}, "unknown.perm") {
		t.Fatal("unregistered permission must never be granted")
	}
}

func TestHasAnyAndHasAll(t *testing.T) {
	r := newTestResolver(t)
	viewer := []string{RoleNameViewer}

	if !r.HasAny(viewer, UsersManage, DashboardView) {
		t.Fatal("expected HasAny to match dashboard.view")
	}
	if r.HasAny(viewer, UsersManage, PackagesDelete) {
		t.Fatal("expected HasAny to fail for viewer")
	}
	if !r.HasAll(viewer, DashboardView, PackagesView) {
		t.Fatal("expected HasAll to pass for viewer read permissions")
	}
	if r.HasAll(viewer, DashboardView, PackagesUpload) {
		t.Fatal("expected HasAll to fail when one permission is missing")
	}
	if r.HasAll(nil) {
		t.Fatal("HasAll without a primary role must be false")
	}
}

func TestNewResolverRejectsUnregisteredPrecedenceRole(t *testing.T) {
	_, err := Build(64, DefaultCatalog(), DefaultRoleTable(), []string{RoleNameAdministrator, "Ghost"})
	if err == nil {
		t.Fatal("expected error for precedence role without table entry")
	}
}

func TestRegistryLimitAndFreeze(t *testing.T) {
	reg, err := NewRegistry(64)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	for i := 0; i < 64; i++ {
		if _, err := reg.Register(string(rune('a'+i%26)) + string(rune('0'+i/26))); err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
	}
	if _, err := reg.Register("overflow"); err == nil {
		t.Fatal("expected limit error")
	}

	reg2, _ := NewRegistry(128)
	reg2.Freeze()
	if _, err := reg2.Register("late"); err == nil {
		t.Fatal("expected frozen registry error")
	}
	if _, err := NewRegistry(256); err == nil {
		t.Fatal("expected invalid width error")
	}
}

func TestMask128HighBits(t *testing.T) {
	var m Mask128
	m.Set(100)
	if !m.Has(100) || m.Has(36) {
		t.Fatal("expected only bit 100 set")
	}
	m.Clear(100)
	if !m.Empty() {
		t.Fatal("expected empty mask after clear")
	}
}

func inCatalogOrder(perms []string) []string {
	set := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	out := []string{}
	for _, p := range DefaultCatalog() {
		if _, ok := set[p]; ok {
			out = append(out, p)
		}
	}
	return out
}
