package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/carkeep/internal/api/middleware"
	"github.com/langchou/carkeep/internal/models"
	"github.com/langchou/carkeep/internal/service"
)

// ListLogs 列出车辆日志簿
func (h *Handler) ListLogs(c *gin.Context) {
	userID := middleware.UserID(c)

	logs, err := h.garageService.ListLogs(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.respondVehicleError(c, err, "Failed to list logs")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": logs})
}

// CreateLog 创建日志簿条目
func (h *Handler) CreateLog(c *gin.Context) {
	userID := middleware.UserID(c)

	var log models.VehicleLog
	if err := c.ShouldBindJSON(&log); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid log payload"})
		return
	}
	log.VehicleID = c.Param("id")

	if log.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Title is required"})
		return
	}

	if err := h.garageService.CreateLog(c.Request.Context(), userID, &log); err != nil {
		if errors.Is(err, service.ErrInvalidCategory) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid logbook category"})
			return
		}
		h.respondVehicleError(c, err, "Failed to create log")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": log})
}

// UploadLogImage 上传日志图片附件
func (h *Handler) UploadLogImage(c *gin.Context) {
	h.uploadLogAttachment(c, h.garageService.UploadLogImage)
}

// UploadLogFile 上传日志文件附件
func (h *Handler) UploadLogFile(c *gin.Context) {
	h.uploadLogAttachment(c, h.garageService.UploadLogFile)
}

func (h *Handler) uploadLogAttachment(c *gin.Context, upload func(ctx context.Context, userID, vehicleID, filename string, reader io.Reader, size int64, contentType string) (string, error)) {
	userID := middleware.UserID(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing file"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file"})
		return
	}
	defer file.Close()

	objectPath, err := upload(c.Request.Context(), userID, c.Param("id"),
		fileHeader.Filename, file, fileHeader.Size, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		h.respondVehicleError(c, err, "Failed to upload attachment")
		return
	}

	h.logger.Debug("Logbook attachment uploaded", zap.String("path", objectPath))
	c.JSON(http.StatusCreated, gin.H{"data": gin.H{"path": objectPath}})
}
