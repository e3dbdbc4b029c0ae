package service

import "tube-archive/internal/domain"

// Mensajes de autorizacion que forman parte del contrato hacia los callers.
const (
	MsgUpgradeRequired = "需升級為高級會員"
	MsgSelfRoleChange  = "您無法變更自己的權限等級"
	MsgSelfDelete      = "您無法刪除自己的帳號"
	MsgNoAccess        = "無權限訪問此功能"
	MsgQuotaSuggestion = "請完成身份驗證以獲得無限配額"
)

// Page identifica una pagina o funcion gobernada por la matriz de acceso.
type Page string

const (
	PageHome         Page = "home"
	PageVideosList   Page = "videos_list"
	PageChannelsList Page = "channels_list"
	PageCommentsList Page = "comments_list"
	PageAdminPanel   Page = "admin_panel"
)

// HasRole evalua pertenencia sobre el conjunto de roles del usuario.
// Cualquier rol que satisface alcanza; no hay rol "primario" duro.
func HasRole(u *domain.User, role string) bool {
	return u != nil && u.HasRole(role)
}

// IsAdmin reporta si el usuario tiene el rol administrator.
func IsAdmin(u *domain.User) bool {
	return HasRole(u, domain.RoleAdministrator)
}

// CanUpdateRole permite cambios de rol solo a administradores y nunca sobre
// si mismos; el auto-cambio devuelve su propio error, distinto del generico.
func CanUpdateRole(acting *domain.User, target *domain.User) error {
	if !IsAdmin(acting) {
		return ErrPermissionDenied
	}
	if target != nil && acting.ID == target.ID {
		return ErrForbiddenSelfModification
	}
	return nil
}

// CanDelete aplica la misma regla de auto-exclusion que CanUpdateRole.
func CanDelete(acting *domain.User, target *domain.User) error {
	if !IsAdmin(acting) {
		return ErrPermissionDenied
	}
	if target != nil && acting.ID == target.ID {
		return ErrForbiddenSelfModification
	}
	return nil
}

// CanViewAny protege los listados de administracion: solo administradores.
func CanViewAny(u *domain.User) bool {
	return IsAdmin(u)
}

// CanViewPage aplica la matriz de acceso por pagina. u == nil es el
// visitante sin sesion.
func CanViewPage(u *domain.User, page Page) bool {
	switch page {
	case PageHome, PageVideosList:
		return true
	case PageChannelsList, PageCommentsList:
		return u != nil
	case PageAdminPanel:
		return IsAdmin(u)
	default:
		return false
	}
}

// CanUseOfficialImport gobierna la importacion via API oficial: miembros
// premium, editores y administradores. La denegacion al resto lleva el
// mensaje MsgUpgradeRequired, no un 403 generico.
func CanUseOfficialImport(u *domain.User) bool {
	return HasRole(u, domain.RolePremiumMember) ||
		HasRole(u, domain.RoleWebsiteEditor) ||
		HasRole(u, domain.RoleAdministrator)
}

// BypassesQuota reporta si el rol consume importaciones sin tocar la cuota.
func BypassesQuota(u *domain.User) bool {
	return IsAdmin(u)
}
