package permission

// Built-in roles of the package console, highest precedence first.
const (
	RoleNameAdministrator = "Administrator"
	RoleNameManager       = "Manager"
	RoleNameCounterStaff  = "CounterStaff"
	RoleNameUser          = "User"
	RoleNameViewer        = "Viewer"
)

// Built-in permission catalog.
const (
	DashboardView = "dashboard.view"

	ApplicationsView   = "applications.view"
	ApplicationsCreate = "applications.create"
	ApplicationsUpdate = "applications.update"
	ApplicationsDelete = "applications.delete"

	CategoriesView   = "categories.view"
	CategoriesCreate = "categories.create"
	CategoriesUpdate = "categories.update"
	CategoriesDelete = "categories.delete"

	IconsView   = "icons.view"
	IconsUpload = "icons.upload"
	IconsDelete = "icons.delete"

	PackagesView     = "packages.view"
	PackagesUpload   = "packages.upload"
	PackagesDownload = "packages.download"
	PackagesDelete   = "packages.delete"

	InstallLogsView   = "installlogs.view"
	InstallLogsCreate = "installlogs.create"
	InstallLogsDelete = "installlogs.delete"

	UsersManage = "users.manage"
)

// DefaultPrecedence is the fixed total order used to pick the active role.
func DefaultPrecedence() []string {
	return []string{RoleNameAdministrator, RoleNameManager, RoleNameCounterStaff, RoleNameUser, RoleNameViewer}
}

// DefaultCatalog returns the built-in permission names in registration order.
func DefaultCatalog() []string {
	return []string{
		DashboardView,
		ApplicationsView, ApplicationsCreate, ApplicationsUpdate, ApplicationsDelete,
		CategoriesView, CategoriesCreate, CategoriesUpdate, CategoriesDelete,
		IconsView, IconsUpload, IconsDelete,
		PackagesView, PackagesUpload, PackagesDownload, PackagesDelete,
		InstallLogsView, InstallLogsCreate, InstallLogsDelete,
		UsersManage,
	}
}

// DefaultRoleTable returns the built-in role to permission table.
func DefaultRoleTable() map[string][]string {
	view := []string{
		DashboardView,
		ApplicationsView,
		CategoriesView,
		IconsView,
		PackagesView,
		InstallLogsView,
	}

	manager := make([]string, 0, len(DefaultCatalog()))
	for _, p := range DefaultCatalog() {
		if p != UsersManage {
			manager = append(manager, p)
		}
	}

	return map[string][]string{
		RoleNameAdministrator: DefaultCatalog(),
		RoleNameManager:       manager,
		RoleNameCounterStaff:  append(append([]string{}, view...), PackagesDownload, InstallLogsCreate),
		RoleNameUser:          append(append([]string{}, view...), PackagesDownload),
		RoleNameViewer:        view,
	}
}
