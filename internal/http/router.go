package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tube-archive/internal/service"
)

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(
	logger *zap.Logger,
	authSvc *service.AuthService,
	authH *AuthHandler,
	quotaH *QuotaHandler,
	adminH *AdminHandler,
) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging, recovery y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), jsonContentTypeMiddleware())

	// Rutas publicas: registro, verificacion y reseteo no requieren sesion.
	auth := r.Group("/api/auth")
	auth.POST("/register", authH.Register)
	auth.GET("/verify-email", authH.VerifyEmail)
	auth.POST("/verify-email/complete", authH.CompleteVerification)
	auth.POST("/verify-email/resend", authH.ResendVerification)
	auth.POST("/login", authH.Login)
	auth.POST("/password/reset/request", authH.RequestPasswordReset)
	auth.POST("/password/reset", authH.ResetPassword)

	// Rutas autenticadas detras del guard de sesion.
	guarded := r.Group("/api", SessionAuthMiddleware(authSvc))
	guarded.POST("/auth/logout", authH.Logout)
	guarded.POST("/auth/password/change", authH.ChangePassword)
	guarded.GET("/quota/check", quotaH.CheckQuota)
	guarded.POST("/import/official", quotaH.ImportOfficial)
	guarded.POST("/verification/submit", quotaH.SubmitIdentityVerification)

	// Panel de administracion: sesion + rol administrator, 403 para el resto.
	admin := r.Group("/admin", SessionAuthMiddleware(authSvc), RequireAdmin())
	admin.GET("/users", adminH.ListUsers)
	admin.PUT("/users/:id/role", adminH.UpdateUserRole)
	admin.DELETE("/users/:id", adminH.DeleteUser)
	admin.GET("/verifications", adminH.ListPendingVerifications)
	admin.POST("/verifications/:id/review", adminH.ReviewVerification)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
