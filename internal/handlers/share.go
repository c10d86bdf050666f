package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"filevault/internal/middleware"
	"filevault/internal/models"
)

type shareResponse struct {
	ID        string     `json:"id"`
	URL       string     `json:"url,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
}

func toShareResponse(s models.ShareToken) shareResponse {
	return shareResponse{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
		RevokedAt: s.RevokedAt,
	}
}

type createShareRequest struct {
	// TTL in seconds; zero or absent means the token lives until revoked.
	TTLSeconds int64 `json:"ttlSeconds"`
}

func (h HandlerSet) CreateShare(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	var req createShareRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.TTLSeconds < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "negative_ttl"})
		return
	}

	result, err := h.fileService.CreateShare(
		c.Request.Context(),
		user.ID,
		c.Param("id"),
		time.Duration(req.TTLSeconds)*time.Second,
		c.ClientIP(),
	)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := toShareResponse(result.Share)
	resp.URL = "/s/" + result.Token
	c.JSON(http.StatusCreated, resp)
}

func (h HandlerSet) ListShares(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	shares, err := h.fileService.ListShares(c.Request.Context(), user.ID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]shareResponse, 0, len(shares))
	for _, s := range shares {
		out = append(out, toShareResponse(s))
	}
	c.JSON(http.StatusOK, gin.H{"shares": out})
}

func (h HandlerSet) RevokeShare(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	err := h.fileService.RevokeShare(c.Request.Context(), user.ID, c.Param("id"), c.Param("shareId"), c.ClientIP())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}

// DownloadShared serves a file through a share token without authentication.
// Any problem with the token or the file answers 404.
func (h HandlerSet) DownloadShared(c *gin.Context) {
	file, rc, err := h.fileService.OpenShared(c.Request.Context(), c.Param("token"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	defer rc.Close()

	h.streamFile(c, file, rc)
}
