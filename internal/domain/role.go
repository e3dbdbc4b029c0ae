package domain

// Roles almacenados. El visitante (sin sesion) no se persiste.
const (
	RoleRegularMember = "regular_member"
	RolePremiumMember = "premium_member"
	RoleWebsiteEditor = "website_editor"
	RoleAdministrator = "administrator"
)

type Role struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// KnownRoleNames lista los roles validos en orden de jerarquia ascendente.
func KnownRoleNames() []string {
	return []string{RoleRegularMember, RolePremiumMember, RoleWebsiteEditor, RoleAdministrator}
}
