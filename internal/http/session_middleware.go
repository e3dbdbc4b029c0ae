package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tube-archive/internal/domain"
	"tube-archive/internal/service"
)

const (
	currentUserKey  = "current_user"
	sessionTokenKey = "session_token"

	passwordChangePath = "/api/auth/password/change"
)

// SessionAuthMiddleware valida el token de sesion opaco y deja el usuario en
// el contexto. Tambien aplica la compuerta transversal de cambio forzado de
// password: con must_change_password activo, toda ruta autenticada salvo el
// propio endpoint de cambio queda bloqueada.
func SessionAuthMiddleware(authSvc *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "missing session token"})
			c.Abort()
			return
		}

		token := strings.TrimSpace(header[len("Bearer "):])
		user, err := authSvc.ResolveSession(c.Request.Context(), token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "invalid session"})
			c.Abort()
			return
		}

		if user.MustChangePassword && c.FullPath() != passwordChangePath {
			c.JSON(http.StatusForbidden, gin.H{
				"success": false,
				"message": "password change required",
				"data":    gin.H{"must_change_password": true},
			})
			c.Abort()
			return
		}

		c.Set(currentUserKey, user)
		c.Set(sessionTokenKey, token)
		c.Next()
	}
}

// RequireAdmin corta con 403 a todo rol no administrador. No hay redireccion:
// premium, editor y regular reciben el mismo rechazo.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok || !service.IsAdmin(&user) {
			c.JSON(http.StatusForbidden, gin.H{"success": false, "message": service.MsgNoAccess})
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentUser obtiene el usuario autenticado desde el contexto.
func CurrentUser(c *gin.Context) (domain.User, bool) {
	val, ok := c.Get(currentUserKey)
	if !ok {
		return domain.User{}, false
	}
	user, ok := val.(domain.User)
	return user, ok
}

// SessionToken obtiene el token de sesion crudo del request actual.
func SessionToken(c *gin.Context) string {
	val, ok := c.Get(sessionTokenKey)
	if !ok {
		return ""
	}
	token, _ := val.(string)
	return token
}
