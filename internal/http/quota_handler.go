package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tube-archive/internal/service"
)

// QuotaHandler mantiene dependencias para endpoints de cuota e importacion.
type QuotaHandler struct {
	logger       *zap.Logger
	quotaServ    *service.QuotaService
	identityServ *service.IdentityService
}

// NewQuotaHandler crea una instancia de QuotaHandler con dependencias necesarias.
func NewQuotaHandler(logger *zap.Logger, quotaServ *service.QuotaService, identityServ *service.IdentityService) *QuotaHandler {
	return &QuotaHandler{
		logger:       logger,
		quotaServ:    quotaServ,
		identityServ: identityServ,
	}
}

// CheckQuota maneja GET /api/quota/check.
func (h *QuotaHandler) CheckQuota(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "unauthenticated"})
		return
	}

	allowed, usage, err := h.quotaServ.CheckQuota(c.Request.Context(), user)
	if err != nil {
		h.logger.Error("quota check failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "could not check quota"})
		return
	}

	message := "quota available"
	if !allowed {
		message = "monthly quota exhausted"
	}
	c.JSON(http.StatusOK, gin.H{
		"allowed": allowed,
		"message": message,
		"usage":   usage,
	})
}

// ImportOfficial maneja POST /api/import/official. La importacion real es un
// colaborador externo; aca se aplican la compuerta de rol y el consumo de
// cuota en el servidor, nunca calculado del lado cliente.
func (h *QuotaHandler) ImportOfficial(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "unauthenticated"})
		return
	}

	if !service.CanUseOfficialImport(&user) {
		c.JSON(http.StatusForbidden, gin.H{"success": false, "message": service.MsgUpgradeRequired})
		return
	}

	usage, err := h.quotaServ.Consume(c.Request.Context(), user)
	if err != nil {
		var exceeded *service.QuotaExceededError
		if errors.As(err, &exceeded) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"message": "monthly quota exceeded",
				"details": gin.H{
					"current_usage": exceeded.CurrentUsage,
					"limit":         exceeded.Limit,
					"suggestion":    exceeded.Suggestion,
				},
			})
			return
		}
		h.logger.Error("quota consume failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "could not start import"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "import accepted",
		"data":    gin.H{"usage": usage},
	})
}

// SubmitIdentityVerification maneja POST /api/verification/submit.
func (h *QuotaHandler) SubmitIdentityVerification(c *gin.Context) {
	var req struct {
		Method string `json:"method"`
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

	v, err := h.identityServ.Submit(c.Request.Context(), user.ID, req.Method)
	if err != nil {
		h.logger.Error("submit identity verification failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "could not submit verification"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "verification submitted",
		"data":    gin.H{"verification": v},
	})
}
