package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tube-archive/internal/service"
)

// AuthHandler mantiene dependencias para endpoints de autenticacion.
type AuthHandler struct {
	logger    *zap.Logger
	verifServ *service.VerificationService
	authServ  *service.AuthService
	resetServ *service.ResetService
}

// NewAuthHandler crea una instancia de AuthHandler con dependencias necesarias.
func NewAuthHandler(logger *zap.Logger, verifServ *service.VerificationService, authServ *service.AuthService, resetServ *service.ResetService) *AuthHandler {
	return &AuthHandler{
		logger:    logger,
		verifServ: verifServ,
		authServ:  authServ,
		resetServ: resetServ,
	}
}

// Register maneja POST /api/auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
		Name  string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid register request", zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "message": "invalid email"})
		return
	}

	user, rec, err := h.verifServ.Register(c.Request.Context(), req.Email, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDuplicateEmail):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "message": "email already registered"})
		case errors.Is(err, service.ErrInvalidEmail):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "message": "invalid email"})
		default:
			h.logger.Error("register failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "could not register"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "verification email sent",
		"data": gin.H{
			"email":             user.Email,
			"verification_sent": true,
			"expires_in_hours":  int(rec.ExpiresAt.Sub(rec.CreatedAt).Hours()),
		},
	})
}

// VerifyEmail maneja GET /api/auth/verify-email. Valida sin consumir; las
// razones de falla se devuelven con granularidad (a diferencia del reseteo).
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	emailAddr := c.Query("email")
	token := c.Query("token")
	if emailAddr == "" || token == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "message": "email and token are required"})
		return
	}

	_, err := h.verifServ.ValidateToken(c.Request.Context(), emailAddr, token)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAlreadyVerified):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "email already verified"})
		case errors.Is(err, service.ErrTokenNotFound):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid token"})
		case errors.Is(err, service.ErrTokenExpired):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "token expired"})
		case errors.Is(err, service.ErrTokenAlreadyUsed):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "token already used"})
		default:
			h.logger.Error("verify email failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "could not verify email"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "token valid, set your password to finish"})
}

// CompleteVerification maneja POST /api/auth/verify-email/complete.
func (h *AuthHandler) CompleteVerification(c *gin.Context) {
	var req struct {
		Email                string `json:"email" binding:"required,email"`
		Token                string `json:"token" binding:"required"`
		Password             string `json:"password" binding:"required"`
		PasswordConfirmation string `json:"password_confirmation" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid complete verification request", zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "message": "invalid request"})
		return
	}

	user, err := h.verifServ.CompleteVerification(c.Request.Context(), req.Email, req.Token, req.Password, req.PasswordConfirmation)
	if err != nil {
		var weak *service.WeakPasswordError
		switch {
		case errors.As(err, &weak):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"success": false,
				"message": "password too weak",
				"data":    gin.H{"errors": weak.Kinds},
			})
		case errors.Is(err, service.ErrPasswordMismatch):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "message": "password confirmation does not match"})
		case errors.Is(err, service.ErrAlreadyVerified),
			errors.Is(err, service.ErrTokenNotFound),
			errors.Is(err, service.ErrTokenExpired),
			errors.Is(err, service.ErrTokenAlreadyUsed):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid or expired token"})
		default:
			h.logger.Error("complete verification failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "could not complete verification"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "email verified, you can log in now",
		"data":    gin.H{"user": user},
	})
}

// ResendVerification maneja POST /api/auth/verify-email/resend.
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "message": "invalid email"})
		return
	}

	_, err := h.verifServ.Resend(c.Request.Context(), req.Email)
	if err != nil {
		var limited *service.RateLimitedError
		switch {
		case errors.Is(err, service.ErrAlreadyVerified):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "message": "email already verified"})
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "user not found"})
		case errors.As(err, &limited):
			c.Header("Retry-After", retryAfterSeconds(limited))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"message": "too many verification emails requested",
				"data":    gin.H{"retry_after_seconds": int(limited.RetryAfter.Seconds())},
			})
		default:
			h.logger.Error("resend verification failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "could not resend verification"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "verification email sent"})
}

// Login maneja POST /api/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
		Remember bool   `json:"remember"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login request", zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "message": "email and password are required"})
		return
	}

	user, sessionToken, err := h.authServ.Login(c.Request.Context(), req.Email, req.Password, req.Remember)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "invalid credentials"})
		case errors.Is(err, service.ErrEmailNotVerified):
			c.JSON(http.StatusForbidden, gin.H{"success": false, "message": "email not verified"})
		default:
			h.logger.Error("login failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "could not login"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "logged in",
		"data": gin.H{
			"user": gin.H{
				"id":                   user.ID,
				"email":                user.Email,
				"name":                 user.Name,
				"is_email_verified":    user.IsEmailVerified,
				"has_default_password": user.HasDefaultPassword,
			},
			"session_token": sessionToken,
		},
	})
}

// Logout maneja POST /api/auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.authServ.Logout(c.Request.Context(), SessionToken(c)); err != nil {
		h.logger.Error("logout failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "could not logout"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "logged out"})
}

// ChangePassword maneja POST /api/auth/password/change.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req struct {
		CurrentPassword         string `json:"current_password"`
		NewPassword             string `json:"new_password" binding:"required"`
		NewPasswordConfirmation string `json:"new_password_confirmation" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "message": "invalid request"})
		return
	}

	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "unauthenticated"})
		return
	}

	err := h.authServ.ChangePassword(c.Request.Context(), user, req.CurrentPassword, req.NewPassword, req.NewPasswordConfirmation)
	if err != nil {
		var weak *service.WeakPasswordError
		switch {
		case errors.As(err, &weak):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"success": false,
				"message": "password too weak",
				"data":    gin.H{"errors": weak.Kinds},
			})
		case errors.Is(err, service.ErrPasswordMismatch):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "message": "password confirmation does not match"})
		case errors.Is(err, service.ErrInvalidCurrentPassword):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "message": "current password incorrect"})
		default:
			h.logger.Error("change password failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "could not change password"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "password changed"})
}

// RequestPasswordReset maneja POST /api/auth/password/reset/request.
// Para todo email bien formado responde exito, exista la cuenta o no.
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "message": "invalid email"})
		return
	}

	if err := h.resetServ.RequestReset(c.Request.Context(), req.Email); err != nil {
		var limited *service.RateLimitedError
		switch {
		case errors.As(err, &limited):
			c.Header("Retry-After", retryAfterSeconds(limited))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"message": "too many reset requests",
				"data":    gin.H{"retry_after_minutes": retryAfterMinutes(limited)},
			})
		case errors.Is(err, service.ErrInvalidEmail):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "message": "invalid email"})
		default:
			h.logger.Error("request password reset failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "could not request reset"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "if the account exists, a reset email was sent"})
}

// ResetPassword maneja POST /api/auth/password/reset. Las fallas de token se
// colapsan en un solo mensaje, sin distinguir el motivo.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req struct {
		Email                   string `json:"email" binding:"required,email"`
		Token                   string `json:"token" binding:"required"`
		NewPassword             string `json:"new_password" binding:"required"`
		NewPasswordConfirmation string `json:"new_password_confirmation" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "message": "invalid request"})
		return
	}

	err := h.resetServ.Reset(c.Request.Context(), req.Email, req.Token, req.NewPassword, req.NewPasswordConfirmation)
	if err != nil {
		var weak *service.WeakPasswordError
		switch {
		case errors.Is(err, service.ErrInvalidOrExpiredToken):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "message": "invalid or expired token"})
		case errors.Is(err, service.ErrPasswordMismatch):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "message": "password confirmation does not match"})
		case errors.As(err, &weak):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"success": false,
				"message": "password too weak",
				"data":    gin.H{"errors": weak.Kinds},
			})
		default:
			h.logger.Error("password reset failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "could not reset password"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "password reset, you can log in now"})
}

func retryAfterSeconds(e *service.RateLimitedError) string {
	secs := int(e.RetryAfter.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

func retryAfterMinutes(e *service.RateLimitedError) int {
	mins := int(e.RetryAfter.Minutes())
	if mins < 1 {
		mins = 1
	}
	return mins
}
