package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tube-archive/internal/service"
)

// AdminHandler mantiene dependencias para el panel de administracion.
type AdminHandler struct {
	logger       *zap.Logger
	adminServ    *service.AdminService
	identityServ *service.IdentityService
}

// NewAdminHandler crea una instancia de AdminHandler con dependencias necesarias.
func NewAdminHandler(logger *zap.Logger, adminServ *service.AdminService, identityServ *service.IdentityService) *AdminHandler {
	return &AdminHandler{
		logger:       logger,
		adminServ:    adminServ,
		identityServ: identityServ,
	}
}

// ListUsers maneja GET /admin/users.
func (h *AdminHandler) ListUsers(c *gin.Context) {
	acting, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "unauthenticated"})
		return
	}

	users, err := h.adminServ.ListUsers(c.Request.Context(), acting)
	if err != nil {
		if errors.Is(err, service.ErrPermissionDenied) {
			c.JSON(http.StatusForbidden, gin.H{"success": false, "message": service.MsgNoAccess})
			return
		}
		h.logger.Error("list users failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "could not list users"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"users": users}})
}

// UpdateUserRole maneja PUT /admin/users/:id/role. El auto-cambio de rol se
// niega siempre, con su mensaje propio.
func (h *AdminHandler) UpdateUserRole(c *gin.Context) {
	var req struct {
		RoleID int `json:"role_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "message": "role_id is required"})
		return
	}

	acting, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "unauthenticated"})
		return
	}

	target, err := h.adminServ.UpdateRole(c.Request.Context(), acting, c.Param("id"), req.RoleID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrForbiddenSelfModification):
			c.JSON(http.StatusForbidden, gin.H{"success": false, "message": service.MsgSelfRoleChange})
		case errors.Is(err, service.ErrPermissionDenied):
			c.JSON(http.StatusForbidden, gin.H{"success": false, "message": service.MsgNoAccess})
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "user not found"})
		case errors.Is(err, service.ErrInvalidRole):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "message": "invalid role_id"})
		default:
			h.logger.Error("update user role failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "could not update role"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "role updated",
		"data": gin.H{
			"id":    target.ID,
			"email": target.Email,
			"roles": target.Roles,
		},
	})
}

// DeleteUser maneja DELETE /admin/users/:id con la misma auto-exclusion.
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	acting, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "unauthenticated"})
		return
	}

	err := h.adminServ.DeleteUser(c.Request.Context(), acting, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrForbiddenSelfModification):
			c.JSON(http.StatusForbidden, gin.H{"success": false, "message": service.MsgSelfDelete})
		case errors.Is(err, service.ErrPermissionDenied):
			c.JSON(http.StatusForbidden, gin.H{"success": false, "message": service.MsgNoAccess})
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "user not found"})
		default:
			h.logger.Error("delete user failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "could not delete user"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "user deleted"})
}

// ReviewVerification maneja POST /admin/verifications/:id/review.
func (h *AdminHandler) ReviewVerification(c *gin.Context) {
	var req struct {
		Action string `json:"action" binding:"required"`
		Notes  string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "message": "action is required"})
		return
	}
	if req.Action != "approve" && req.Action != "reject" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "message": "action must be approve or reject"})
		return
	}

	v, err := h.identityServ.Review(c.Request.Context(), c.Param("id"), req.Action == "approve", req.Notes)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "verification not found"})
		case errors.Is(err, service.ErrAlreadyReviewed):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "message": "verification already reviewed"})
		default:
			h.logger.Error("review verification failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "could not review verification"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "verification reviewed",
		"data":    gin.H{"verification": v},
	})
}

// ListPendingVerifications maneja GET /admin/verifications.
func (h *AdminHandler) ListPendingVerifications(c *gin.Context) {
	pending, err := h.identityServ.ListPending(c.Request.Context())
	if err != nil {
		h.logger.Error("list pending verifications failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "could not list verifications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"verifications": pending}})
}
