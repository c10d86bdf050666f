package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"filevault/internal/middleware"
	"filevault/internal/service"
)

type adminUserResponse struct {
	ID                 string `json:"id"`
	Username           string `json:"username"`
	Role               string `json:"role"`
	QuotaBytes         int64  `json:"quotaBytes"`
	UsedBytes          int64  `json:"usedBytes"`
	ReservedBytes      int64  `json:"reservedBytes"`
	MustChangePassword bool   `json:"mustChangePassword"`
}

func (h HandlerSet) AdminListUsers(c *gin.Context) {
	views, err := h.adminService.ListUsers(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]adminUserResponse, 0, len(views))
	for _, v := range views {
		out = append(out, adminUserResponse{
			ID:                 v.User.ID,
			Username:           v.User.Username,
			Role:               string(v.User.Role),
			QuotaBytes:         v.Usage.QuotaBytes,
			UsedBytes:          v.Usage.UsedBytes,
			ReservedBytes:      v.Usage.ReservedBytes,
			MustChangePassword: v.User.MustChangePassword,
		})
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

type adminCreateUserRequest struct {
	Username   string `json:"username" binding:"required"`
	Password   string `json:"password" binding:"required"`
	QuotaBytes int64  `json:"quotaBytes"`
}

func (h HandlerSet) AdminCreateUser(c *gin.Context) {
	actor, _ := middleware.CurrentUser(c)

	var req adminCreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.adminService.CreateUser(c.Request.Context(), actor.ID, service.CreateUserInput{
		Username:   req.Username,
		Password:   req.Password,
		QuotaBytes: req.QuotaBytes,
		IPAddress:  c.ClientIP(),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toUserResponse(user))
}

type adminSetQuotaRequest struct {
	QuotaBytes int64 `json:"quotaBytes" binding:"required"`
}

func (h HandlerSet) AdminSetQuota(c *gin.Context) {
	actor, _ := middleware.CurrentUser(c)

	var req adminSetQuotaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.adminService.SetQuota(c.Request.Context(), actor.ID, c.Param("id"), req.QuotaBytes, c.ClientIP())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "quota_updated"})
}

type adminResetPasswordRequest struct {
	NewPassword string `json:"newPassword" binding:"required"`
}

func (h HandlerSet) AdminResetPassword(c *gin.Context) {
	actor, _ := middleware.CurrentUser(c)

	var req adminResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.adminService.ResetPassword(c.Request.Context(), actor.ID, c.Param("id"), req.NewPassword, c.ClientIP())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "password_reset"})
}

func (h HandlerSet) AdminToggleAdmin(c *gin.Context) {
	actor, _ := middleware.CurrentUser(c)

	role, err := h.adminService.ToggleAdmin(c.Request.Context(), actor.ID, c.Param("id"), c.ClientIP())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"role": string(role)})
}

func (h HandlerSet) AdminRecalcUsage(c *gin.Context) {
	actor, _ := middleware.CurrentUser(c)

	usedBytes, err := h.adminService.RecalcUsage(c.Request.Context(), actor.ID, c.Param("id"), c.ClientIP())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"usedBytes": usedBytes})
}

func (h HandlerSet) AdminDeleteUser(c *gin.Context) {
	actor, _ := middleware.CurrentUser(c)

	err := h.adminService.DeleteUser(c.Request.Context(), actor.ID, c.Param("id"), c.ClientIP())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "user_deleted"})
}

type auditEntryResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId,omitempty"`
	Operation string    `json:"operation"`
	FileName  string    `json:"fileName,omitempty"`
	SizeBytes int64     `json:"sizeBytes"`
	Outcome   string    `json:"outcome"`
	IPAddress string    `json:"ipAddress,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h HandlerSet) AdminAudit(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	entries, err := h.adminService.RecentAudit(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntryResponse{
			ID:        e.ID,
			UserID:    e.UserID,
			Operation: e.Operation,
			FileName:  e.FileName,
			SizeBytes: e.SizeBytes,
			Outcome:   e.Outcome,
			IPAddress: e.IPAddress,
			CreatedAt: e.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"entries": out})
}
