package handlers

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"filevault/internal/middleware"
	"filevault/internal/models"
	"filevault/internal/service"
)

type fileResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	SizeBytes int64     `json:"sizeBytes"`
	Checksum  string    `json:"checksum"`
	CreatedAt time.Time `json:"createdAt"`
}

func toFileResponse(f models.FileObject) fileResponse {
	return fileResponse{
		ID:        f.ID,
		Name:      f.Name,
		SizeBytes: f.SizeBytes,
		Checksum:  hex.EncodeToString(f.Checksum),
		CreatedAt: f.CreatedAt,
	}
}

func (h HandlerSet) ListFiles(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	files, err := h.fileService.List(c.Request.Context(), user.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]fileResponse, 0, len(files))
	for _, f := range files {
		out = append(out, toFileResponse(f))
	}
	c.JSON(http.StatusOK, gin.H{"files": out})
}

// Upload accepts a multipart form with a "file" part. The part's size is the
// declared size the quota reservation is made against; a body that runs past
// it is rejected. autoRename=true resolves name collisions with a numeric
// suffix instead of failing.
func (h HandlerSet) Upload(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_file_part"})
		return
	}

	name := c.PostForm("name")
	if name == "" {
		name = fileHeader.Filename
	}
	autoRename := c.PostForm("autoRename") == "true" || c.Query("autoRename") == "true"

	src, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable_file_part"})
		return
	}
	defer src.Close()

	file, err := h.fileService.Upload(c.Request.Context(), service.UploadInput{
		OwnerID:      user.ID,
		Name:         name,
		DeclaredSize: fileHeader.Size,
		Body:         src,
		AutoRename:   autoRename,
		IPAddress:    c.ClientIP(),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toFileResponse(file))
}

func (h HandlerSet) DownloadFile(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	file, rc, err := h.fileService.Download(c.Request.Context(), user.ID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	defer rc.Close()

	h.streamFile(c, file, rc)
}

func (h HandlerSet) VerifyFile(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	file, err := h.fileService.Verify(c.Request.Context(), user.ID, c.Param("id"))
	if errors.Is(err, service.ErrIntegrityMismatch) {
		c.JSON(http.StatusOK, gin.H{"valid": false})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":    true,
		"checksum": hex.EncodeToString(file.Checksum),
	})
}

func (h HandlerSet) DeleteFile(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	if err := h.fileService.Delete(c.Request.Context(), user.ID, c.Param("id"), c.ClientIP()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h HandlerSet) Usage(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	usage, err := h.fileService.Usage(c.Request.Context(), user.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"usedBytes":     usage.UsedBytes,
		"reservedBytes": usage.ReservedBytes,
		"quotaBytes":    usage.QuotaBytes,
	})
}

func (h HandlerSet) streamFile(c *gin.Context, file models.FileObject, rc io.Reader) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	c.Header("Content-Length", strconv.FormatInt(file.SizeBytes, 10))
	c.Header("X-Checksum-Sha256", hex.EncodeToString(file.Checksum))
	c.DataFromReader(http.StatusOK, file.SizeBytes, "application/octet-stream", rc, nil)
}
